package data

import (
	"math/rand"
	"sync"

	"github.com/BoyuanWangMust/ATTAC/internal/domain/nn"
)

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	// BatchSize is the number of examples per batch.
	BatchSize int `json:"batchSize"`

	// Shuffle reshuffles the sample order on every pass.
	Shuffle bool `json:"shuffle"`

	// NumWorkers is how many batches the producer assembles ahead of the
	// consumer. Zero means no prefetch buffering.
	NumWorkers int `json:"numWorkers"`

	// Seed seeds the shuffle order.
	Seed int64 `json:"seed"`
}

// DefaultLoaderConfig returns the default loader configuration.
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{
		BatchSize:  64,
		Shuffle:    true,
		NumWorkers: 2,
		Seed:       1,
	}
}

// Loader produces mini-batches over a dataset. Batch assembly may be
// prefetched by worker goroutines; consumption is synchronous, so the
// concurrency is invisible to callers.
type Loader struct {
	mu  sync.Mutex
	ds  Dataset
	cfg LoaderConfig
	rng *rand.Rand
}

// NewLoader creates a loader over the given dataset.
func NewLoader(ds Dataset, cfg LoaderConfig) *Loader {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	return &Loader{
		ds:  ds,
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
}

// WithDataset returns a loader over a different dataset that keeps this
// loader's batching and prefetch configuration. Used when stored
// exemplars are merged into the training stream.
func (l *Loader) WithDataset(ds Dataset) *Loader {
	return NewLoader(ds, l.cfg)
}

// Dataset returns the underlying dataset.
func (l *Loader) Dataset() Dataset { return l.ds }

// BatchSize returns the configured batch size.
func (l *Loader) BatchSize() int { return l.cfg.BatchSize }

// NumWorkers returns the configured prefetch worker count.
func (l *Loader) NumWorkers() int { return l.cfg.NumWorkers }

// NumBatches returns the number of full batches in one pass.
func (l *Loader) NumBatches() int { return l.ds.Len() / l.cfg.BatchSize }

// order returns the sample order for one pass.
func (l *Loader) order() []int {
	n := l.ds.Len()
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if l.cfg.Shuffle {
		l.mu.Lock()
		l.rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		l.mu.Unlock()
	}
	return idx
}

// Batches starts one pass over the dataset and returns a channel of
// batches. The trailing partial batch, if any, is included. The channel
// is buffered by NumWorkers so batch assembly runs ahead of the consumer.
func (l *Loader) Batches() <-chan nn.Batch {
	idx := l.order()
	buf := l.cfg.NumWorkers
	if buf < 0 {
		buf = 0
	}
	out := make(chan nn.Batch, buf)

	go func() {
		defer close(out)
		bs := l.cfg.BatchSize
		for start := 0; start < len(idx); start += bs {
			end := start + bs
			if end > len(idx) {
				end = len(idx)
			}
			batch := nn.Batch{
				Inputs: make([][]float64, 0, end-start),
				Labels: make([]int, 0, end-start),
			}
			for _, i := range idx[start:end] {
				x, y := l.ds.Sample(i)
				batch.Inputs = append(batch.Inputs, x)
				batch.Labels = append(batch.Labels, y)
			}
			out <- batch
		}
	}()

	return out
}
