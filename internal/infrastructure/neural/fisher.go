// Package neural implements the Fisher information machinery behind
// elastic weight consolidation.
package neural

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/BoyuanWangMust/ATTAC/internal/domain/ewc"
	"github.com/BoyuanWangMust/ATTAC/internal/domain/nn"
	"github.com/BoyuanWangMust/ATTAC/internal/infrastructure/data"
	infraNN "github.com/BoyuanWangMust/ATTAC/internal/infrastructure/nn"
)

// FisherEstimator produces a diagonal approximation of the Fisher
// information matrix over a model's backbone parameters: one non-negative
// scalar per parameter element, the mean squared gradient of the
// cross-entropy under the configured pseudo-label policy.
type FisherEstimator struct {
	cfg ewc.Config
	src rand.Source
}

// NewFisherEstimator creates an estimator. seed drives multinomial
// pseudo-label draws only.
func NewFisherEstimator(cfg ewc.Config, seed uint64) *FisherEstimator {
	return &FisherEstimator{
		cfg: cfg,
		src: rand.NewSource(seed),
	}
}

// sampleBatches returns how many batches one estimation consumes: the
// sampling budget rounded up to whole batches, or one pass over the
// dataset's full batches when the budget is non-positive.
func (e *FisherEstimator) sampleBatches(loader *data.Loader) int {
	if e.cfg.NumSamples > 0 {
		return e.cfg.NumSamples/loader.BatchSize() + 1
	}
	return loader.NumBatches()
}

// Estimate runs forward/backward passes over a sample of the loader's
// data and returns the accumulated importance map. The model's weights
// are left untouched; only its gradient buffers are mutated. The model is
// put into training mode for correct gradient semantics even though no
// optimizer step is taken.
func (e *FisherEstimator) Estimate(m nn.Model, loader *data.Loader) (*ewc.ParamMap, error) {
	backbone := m.BackboneParameters()
	fisher := ewc.ZerosLike(backbone)

	nBatches := e.sampleBatches(loader)
	if nBatches <= 0 {
		return fisher, nil
	}
	m.Train()

	consumed := 0
	for batch := range loader.Batches() {
		// Drain past the budget so the producer goroutine can finish.
		if consumed >= nBatches {
			continue
		}
		consumed++

		outputs, st := m.Forward(batch.Inputs)
		concat := outputs.Concat()

		preds, err := e.pseudoLabels(concat, batch.Labels)
		if err != nil {
			return nil, err
		}

		dLogits := infraNN.CrossEntropyGrad(concat, preds)
		m.ZeroGrad()
		m.Backward(st, dLogits)

		// Squared gradients weighted by batch size, so larger batches
		// contribute proportionally before the final averaging.
		w := float64(batch.Len())
		for _, p := range backbone {
			acc := fisher.Get(p.Name).Data
			for i, g := range p.Grad {
				acc[i] += g * g * w
			}
		}
	}

	nSamples := float64(nBatches * loader.BatchSize())
	for _, name := range fisher.Names() {
		d := fisher.Get(name).Data
		for i := range d {
			d[i] /= nSamples
		}
	}
	return fisher, nil
}

// pseudoLabels selects the label tensor for one batch per the configured
// sampling policy.
func (e *FisherEstimator) pseudoLabels(concat [][]float64, targets []int) ([]int, error) {
	switch e.cfg.SamplingType {
	case ewc.SamplingTrue:
		return targets, nil
	case ewc.SamplingMaxPred:
		preds := make([]int, len(concat))
		for i, row := range concat {
			preds[i] = infraNN.ArgMax(row)
		}
		return preds, nil
	case ewc.SamplingMultinomial:
		preds := make([]int, len(concat))
		for i, row := range concat {
			cat := distuv.NewCategorical(infraNN.Softmax(row), e.src)
			preds[i] = int(cat.Rand())
		}
		return preds, nil
	default:
		return nil, fmt.Errorf("unknown fisher sampling type %q", e.cfg.SamplingType)
	}
}
