package nn

import (
	"math"
	"math/rand"
	"testing"

	domainNN "github.com/BoyuanWangMust/ATTAC/internal/domain/nn"
)

func testNet() *MultiHeadNet {
	n := NewMultiHeadNet(NetConfig{InputDim: 3, HiddenDim: 4, Dropout: 0, Seed: 5})
	n.AddHead(2)
	n.AddHead(3)
	return n
}

func testBatch(rng *rand.Rand, n, dim int) [][]float64 {
	inputs := make([][]float64, n)
	for i := range inputs {
		inputs[i] = make([]float64, dim)
		for d := range inputs[i] {
			inputs[i][d] = rng.NormFloat64()
		}
	}
	return inputs
}

func TestTaskOffsets(t *testing.T) {
	n := testNet()
	offsets := n.TaskOffsets()
	if offsets[0] != 0 || offsets[1] != 2 {
		t.Errorf("expected offsets [0 2], got %v", offsets)
	}
	classes := n.TaskClasses()
	if classes[0] != 2 || classes[1] != 3 {
		t.Errorf("expected classes [2 3], got %v", classes)
	}
}

func TestForwardShapes(t *testing.T) {
	n := testNet()
	n.Eval()
	outputs, _ := n.Forward(testBatch(rand.New(rand.NewSource(1)), 5, 3))

	if len(outputs) != 2 {
		t.Fatalf("expected 2 heads, got %d", len(outputs))
	}
	if len(outputs[0]) != 5 || len(outputs[0][0]) != 2 {
		t.Errorf("head 0: expected 5x2 logits, got %dx%d", len(outputs[0]), len(outputs[0][0]))
	}
	if len(outputs[1][0]) != 3 {
		t.Errorf("head 1: expected 3 classes, got %d", len(outputs[1][0]))
	}
	if got := outputs.TotalClasses(); got != 5 {
		t.Errorf("expected 5 total classes, got %d", got)
	}
}

func TestEvalModeIsDeterministic(t *testing.T) {
	n := NewMultiHeadNet(NetConfig{InputDim: 3, HiddenDim: 8, Dropout: 0.5, Seed: 5})
	n.AddHead(2)
	n.Eval()

	inputs := testBatch(rand.New(rand.NewSource(2)), 1, 3)
	a, _ := n.Forward(inputs)
	b, _ := n.Forward(inputs)
	for c := range a[0][0] {
		if a[0][0][c] != b[0][0][c] {
			t.Fatal("eval-mode forward must not be stochastic")
		}
	}
}

// jointLoss is the scalar the gradient check differentiates: mean
// cross-entropy over concatenated heads.
func jointLoss(n *MultiHeadNet, inputs [][]float64, targets []int) float64 {
	outputs, _ := n.Forward(inputs)
	return CrossEntropy(outputs.Concat(), targets)
}

func TestBackwardMatchesNumericGradient(t *testing.T) {
	n := testNet()
	n.Eval() // no dropout noise in the check

	rng := rand.New(rand.NewSource(3))
	inputs := testBatch(rng, 4, 3)
	targets := []int{0, 1, 3, 4}

	outputs, st := n.Forward(inputs)
	dLogits := CrossEntropyGrad(outputs.Concat(), targets)
	n.ZeroGrad()
	n.Backward(st, dLogits)

	const eps = 1e-6
	for _, p := range n.Parameters() {
		// Spot-check a few elements per parameter.
		for _, i := range []int{0, p.Numel() / 2, p.Numel() - 1} {
			orig := p.Data[i]
			p.Data[i] = orig + eps
			up := jointLoss(n, inputs, targets)
			p.Data[i] = orig - eps
			down := jointLoss(n, inputs, targets)
			p.Data[i] = orig

			numeric := (up - down) / (2 * eps)
			if diff := math.Abs(numeric - p.Grad[i]); diff > 1e-4 {
				t.Errorf("%s[%d]: analytic %v vs numeric %v", p.Name, i, p.Grad[i], numeric)
			}
		}
	}
}

func TestBackwardSingleHeadLeavesOthersUntouched(t *testing.T) {
	n := testNet()
	n.Eval()

	inputs := testBatch(rand.New(rand.NewSource(4)), 3, 3)
	outputs, st := n.Forward(inputs)

	// Gradient only through head 1 (offset 2, 3 classes).
	headGrad := CrossEntropyGrad(outputs[1], []int{0, 1, 2})
	dLogits := make([][]float64, len(headGrad))
	for i, row := range headGrad {
		full := make([]float64, outputs.TotalClasses())
		copy(full[2:], row)
		dLogits[i] = full
	}

	n.ZeroGrad()
	n.Backward(st, dLogits)

	for _, p := range n.HeadParameters(0) {
		for i, g := range p.Grad {
			if g != 0 {
				t.Fatalf("head 0 parameter %s[%d] received gradient %v", p.Name, i, g)
			}
		}
	}

	var backboneGrad float64
	for _, p := range n.BackboneParameters() {
		for _, g := range p.Grad {
			backboneGrad += math.Abs(g)
		}
	}
	if backboneGrad == 0 {
		t.Error("backbone received no gradient through head 1")
	}
}

func TestSoftmaxSumsToOne(t *testing.T) {
	p := Softmax([]float64{3, 1, -2, 700})
	var sum float64
	for _, v := range p {
		if v < 0 {
			t.Errorf("negative probability %v", v)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Errorf("softmax sums to %v", sum)
	}
}

func TestParametersBackboneFirst(t *testing.T) {
	n := testNet()
	params := n.Parameters()
	if len(params) != 4+2+2 {
		t.Fatalf("expected 8 parameters, got %d", len(params))
	}
	if params[0].Name != "fc1.weight" || params[4].Name != "heads.0.weight" {
		t.Errorf("unexpected ordering: %s, %s", params[0].Name, params[4].Name)
	}

	var h domainNN.Model = n // contract check
	_ = h
}
