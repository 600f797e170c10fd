// Package exemplars stores a bounded set of past-task examples for
// rehearsal during later tasks.
package exemplars

import (
	"math/rand"
	"sync"

	"github.com/BoyuanWangMust/ATTAC/internal/domain/nn"
	"github.com/BoyuanWangMust/ATTAC/internal/infrastructure/data"
)

// StoreConfig configures the exemplar store.
type StoreConfig struct {
	// MaxPerClass is the retention budget per class. Zero disables the
	// store entirely.
	MaxPerClass int `json:"maxPerClass"`

	// Seed seeds exemplar selection.
	Seed int64 `json:"seed"`
}

// Store holds selected exemplars from completed tasks. Selection is a
// uniform per-class draw; smarter heuristics (herding etc.) belong to a
// dedicated selector and are out of scope here.
type Store struct {
	mu     sync.RWMutex
	cfg    StoreConfig
	rng    *rand.Rand
	inputs [][]float64
	labels []int
}

// NewStore creates an exemplar store.
func NewStore(cfg StoreConfig) *Store {
	return &Store{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Len returns the number of stored exemplars.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.labels)
}

// Dataset returns the stored exemplars as a dataset for concatenation
// with a task's training data.
func (s *Store) Dataset() data.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inputs := make([][]float64, len(s.inputs))
	copy(inputs, s.inputs)
	labels := make([]int, len(s.labels))
	copy(labels, s.labels)
	return data.NewSliceDataset(inputs, labels)
}

// CollectExemplars refreshes the store from the just-trained task's data,
// keeping up to MaxPerClass examples of every class seen in the loader's
// dataset in addition to what is already stored. The model argument keeps
// the collaborator contract open for representation-aware selectors; the
// uniform draw here does not consult it.
func (s *Store) CollectExemplars(m nn.Model, loader *data.Loader) {
	if s.cfg.MaxPerClass <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ds := loader.Dataset()
	byClass := make(map[int][]int)
	for i := 0; i < ds.Len(); i++ {
		_, y := ds.Sample(i)
		byClass[y] = append(byClass[y], i)
	}

	// Re-select from scratch: the loader already contains old exemplars
	// when rehearsal is active, so every seen class is represented.
	s.inputs = s.inputs[:0]
	s.labels = s.labels[:0]
	for y, idx := range byClass {
		s.rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		keep := len(idx)
		if keep > s.cfg.MaxPerClass {
			keep = s.cfg.MaxPerClass
		}
		for _, i := range idx[:keep] {
			x, _ := ds.Sample(i)
			s.inputs = append(s.inputs, x)
			s.labels = append(s.labels, y)
		}
	}
}
