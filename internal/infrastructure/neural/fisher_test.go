package neural

import (
	"math"
	"testing"

	"github.com/BoyuanWangMust/ATTAC/internal/domain/ewc"
	"github.com/BoyuanWangMust/ATTAC/internal/domain/nn"
	"github.com/BoyuanWangMust/ATTAC/internal/infrastructure/data"
	infraNN "github.com/BoyuanWangMust/ATTAC/internal/infrastructure/nn"
)

// stubModel is a minimal nn.Model whose backward pass writes a constant
// gradient, making the estimator's averaging arithmetic exactly checkable.
type stubModel struct {
	param        *nn.Parameter
	gradValue    float64
	forwardCalls int
	training     bool
}

func newStubModel(gradValue float64) *stubModel {
	return &stubModel{
		param:     nn.NewParameter("w", 1),
		gradValue: gradValue,
	}
}

func (m *stubModel) Train() { m.training = true }
func (m *stubModel) Eval()  { m.training = false }

func (m *stubModel) Forward(inputs [][]float64) (nn.Outputs, nn.State) {
	m.forwardCalls++
	logits := make([][]float64, len(inputs))
	for i := range inputs {
		logits[i] = []float64{2, 0}
	}
	return nn.Outputs{logits}, nil
}

func (m *stubModel) Backward(st nn.State, dLogits [][]float64) {
	m.param.Grad[0] = m.gradValue
}

func (m *stubModel) ZeroGrad() { m.param.ZeroGrad() }

func (m *stubModel) BackboneParameters() []*nn.Parameter  { return []*nn.Parameter{m.param} }
func (m *stubModel) HeadParameters(k int) []*nn.Parameter { return nil }
func (m *stubModel) Parameters() []*nn.Parameter          { return []*nn.Parameter{m.param} }
func (m *stubModel) AddHead(classes int)                  {}
func (m *stubModel) TaskClasses() []int                   { return []int{2} }
func (m *stubModel) TaskOffsets() []int                   { return []int{0} }

func stubLoader(n, batchSize int) *data.Loader {
	inputs := make([][]float64, n)
	labels := make([]int, n)
	for i := range inputs {
		inputs[i] = []float64{float64(i)}
		labels[i] = i % 2
	}
	return data.NewLoader(data.NewSliceDataset(inputs, labels), data.LoaderConfig{
		BatchSize: batchSize,
		Shuffle:   false,
	})
}

func TestEstimateConsumesAllBatchesByDefault(t *testing.T) {
	cfg := ewc.DefaultConfig() // NumSamples -1
	m := newStubModel(0.5)
	loader := stubLoader(20, 5)

	est := NewFisherEstimator(cfg, 7)
	fisher, err := est.Estimate(m, loader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m.forwardCalls != 4 {
		t.Errorf("expected 4 batches consumed, got %d", m.forwardCalls)
	}
	// Each batch contributes grad^2 * batchSize; the divisor is
	// batches*batchSize, so the mean is exactly grad^2.
	if got := fisher.Get("w").Data[0]; math.Abs(got-0.25) > 1e-12 {
		t.Errorf("expected mean squared gradient 0.25, got %v", got)
	}
}

func TestEstimateSampleBudgetRoundsUpToBatches(t *testing.T) {
	cfg := ewc.DefaultConfig()
	cfg.NumSamples = 5*3 + 1 // rounds up to 4 batches of 5
	m := newStubModel(1)
	loader := stubLoader(40, 5)

	est := NewFisherEstimator(cfg, 7)
	if _, err := est.Estimate(m, loader); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.forwardCalls != 4 {
		t.Errorf("expected 4 batches consumed, got %d", m.forwardCalls)
	}
}

func TestEstimateSmallBudgetUsesOneBatch(t *testing.T) {
	cfg := ewc.DefaultConfig()
	cfg.NumSamples = 1
	m := newStubModel(1)
	loader := stubLoader(40, 5)

	est := NewFisherEstimator(cfg, 7)
	if _, err := est.Estimate(m, loader); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.forwardCalls != 1 {
		t.Errorf("expected 1 batch consumed, got %d", m.forwardCalls)
	}
}

func TestEstimatePutsModelInTrainingMode(t *testing.T) {
	m := newStubModel(1)
	m.Eval()
	est := NewFisherEstimator(ewc.DefaultConfig(), 7)
	if _, err := est.Estimate(m, stubLoader(10, 5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.training {
		t.Error("estimation must run in training mode")
	}
}

func TestEstimateSamplingPolicies(t *testing.T) {
	for _, st := range []ewc.SamplingType{ewc.SamplingTrue, ewc.SamplingMaxPred, ewc.SamplingMultinomial} {
		cfg := ewc.DefaultConfig()
		cfg.SamplingType = st
		m := newStubModel(0.5)
		est := NewFisherEstimator(cfg, 7)
		fisher, err := est.Estimate(m, stubLoader(10, 5))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", st, err)
		}
		if fisher.Get("w").Data[0] < 0 {
			t.Errorf("%s: importance must be non-negative", st)
		}
	}
}

func TestEstimateEmptyLoaderReturnsZeroMap(t *testing.T) {
	m := newStubModel(1)
	est := NewFisherEstimator(ewc.DefaultConfig(), 7)

	fisher, err := est.Estimate(m, stubLoader(0, 5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.forwardCalls != 0 {
		t.Errorf("expected no forward passes, got %d", m.forwardCalls)
	}
	got := fisher.Get("w").Data[0]
	if got != 0 || math.IsNaN(got) {
		t.Errorf("expected zero importance for an empty loader, got %v", got)
	}
}

func TestEstimateUnknownSamplingTypeFails(t *testing.T) {
	cfg := ewc.DefaultConfig()
	cfg.SamplingType = "bogus"
	est := NewFisherEstimator(cfg, 7)
	if _, err := est.Estimate(newStubModel(1), stubLoader(10, 5)); err == nil {
		t.Error("expected an error for an unknown sampling type")
	}
}

func TestEstimateLeavesWeightsUntouched(t *testing.T) {
	model := infraNN.NewMultiHeadNet(infraNN.NetConfig{InputDim: 4, HiddenDim: 6, Dropout: 0, Seed: 3})
	model.AddHead(2)

	before := make(map[string][]float64)
	for _, p := range model.BackboneParameters() {
		before[p.Name] = p.CloneData()
	}

	ds := data.GenerateSynthetic(data.SyntheticConfig{Dim: 4, SamplesPerClass: 20, Spread: 0.5, Seed: 9}, 2, 0)
	loader := data.NewLoader(ds, data.LoaderConfig{BatchSize: 8, Shuffle: true, Seed: 1})

	est := NewFisherEstimator(ewc.DefaultConfig(), 7)
	fisher, err := est.Estimate(model, loader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, p := range model.BackboneParameters() {
		for i, v := range p.Data {
			if v != before[p.Name][i] {
				t.Fatalf("parameter %s changed during estimation", p.Name)
			}
		}
		for _, v := range fisher.Get(p.Name).Data {
			if v < 0 {
				t.Fatalf("negative importance for %s", p.Name)
			}
		}
	}
}
