package nn

import (
	"fmt"
	"math"
	"math/rand"

	domainNN "github.com/BoyuanWangMust/ATTAC/internal/domain/nn"
)

// NetConfig configures the multi-head network.
type NetConfig struct {
	// InputDim is the feature vector length.
	InputDim int `json:"inputDim"`

	// HiddenDim is the width of both backbone layers.
	HiddenDim int `json:"hiddenDim"`

	// Dropout is the drop probability applied after the first backbone
	// layer, active only in training mode.
	Dropout float64 `json:"dropout"`

	// Seed seeds weight initialization and dropout masks.
	Seed int64 `json:"seed"`
}

// DefaultNetConfig returns the default network configuration.
func DefaultNetConfig() NetConfig {
	return NetConfig{
		InputDim:  32,
		HiddenDim: 64,
		Dropout:   0.1,
		Seed:      42,
	}
}

type head struct {
	weight  *domainNN.Parameter
	bias    *domainNN.Parameter
	classes int
}

// MultiHeadNet is a shared two-layer backbone with one linear
// classification head per task. The backbone parameters are the
// consolidation target; heads are tracked separately so importance
// bookkeeping never includes them.
type MultiHeadNet struct {
	cfg      NetConfig
	training bool
	rng      *rand.Rand

	fc1W, fc1b *domainNN.Parameter
	fc2W, fc2b *domainNN.Parameter
	heads      []head
}

// forwardState caches one forward pass for Backward.
type forwardState struct {
	inputs [][]float64
	h1pre  [][]float64 // before relu
	h1d    [][]float64 // after relu and dropout
	mask   [][]float64 // dropout keep mask, scaled; nil in eval mode
	h2pre  [][]float64
	feat   [][]float64
}

// NewMultiHeadNet creates a network with no heads. Heads are added per
// task via AddHead.
func NewMultiHeadNet(cfg NetConfig) *MultiHeadNet {
	n := &MultiHeadNet{
		cfg:  cfg,
		rng:  rand.New(rand.NewSource(cfg.Seed)),
		fc1W: domainNN.NewParameter("fc1.weight", cfg.HiddenDim, cfg.InputDim),
		fc1b: domainNN.NewParameter("fc1.bias", cfg.HiddenDim),
		fc2W: domainNN.NewParameter("fc2.weight", cfg.HiddenDim, cfg.HiddenDim),
		fc2b: domainNN.NewParameter("fc2.bias", cfg.HiddenDim),
	}
	n.initLinear(n.fc1W, cfg.InputDim)
	n.initLinear(n.fc2W, cfg.HiddenDim)
	return n
}

// initLinear applies He-style uniform initialization for a layer with the
// given fan-in. Biases stay zero.
func (n *MultiHeadNet) initLinear(w *domainNN.Parameter, fanIn int) {
	bound := math.Sqrt(6.0 / float64(fanIn))
	for i := range w.Data {
		w.Data[i] = (n.rng.Float64()*2 - 1) * bound
	}
}

// AddHead appends a classification head with the given class count.
func (n *MultiHeadNet) AddHead(classes int) {
	k := len(n.heads)
	h := head{
		weight:  domainNN.NewParameter(fmt.Sprintf("heads.%d.weight", k), classes, n.cfg.HiddenDim),
		bias:    domainNN.NewParameter(fmt.Sprintf("heads.%d.bias", k), classes),
		classes: classes,
	}
	n.initLinear(h.weight, n.cfg.HiddenDim)
	n.heads = append(n.heads, h)
}

// Train puts the network into training mode.
func (n *MultiHeadNet) Train() { n.training = true }

// Eval puts the network into evaluation mode.
func (n *MultiHeadNet) Eval() { n.training = false }

// TaskClasses returns the class count per head.
func (n *MultiHeadNet) TaskClasses() []int {
	out := make([]int, len(n.heads))
	for i, h := range n.heads {
		out[i] = h.classes
	}
	return out
}

// TaskOffsets returns the global label offset per head.
func (n *MultiHeadNet) TaskOffsets() []int {
	out := make([]int, len(n.heads))
	off := 0
	for i, h := range n.heads {
		out[i] = off
		off += h.classes
	}
	return out
}

// BackboneParameters returns the shared parameters in a stable order.
func (n *MultiHeadNet) BackboneParameters() []*domainNN.Parameter {
	return []*domainNN.Parameter{n.fc1W, n.fc1b, n.fc2W, n.fc2b}
}

// HeadParameters returns the parameters of head k.
func (n *MultiHeadNet) HeadParameters(k int) []*domainNN.Parameter {
	h := n.heads[k]
	return []*domainNN.Parameter{h.weight, h.bias}
}

// Parameters returns all trainable parameters, backbone first.
func (n *MultiHeadNet) Parameters() []*domainNN.Parameter {
	out := n.BackboneParameters()
	for k := range n.heads {
		out = append(out, n.HeadParameters(k)...)
	}
	return out
}

// ZeroGrad clears every gradient buffer.
func (n *MultiHeadNet) ZeroGrad() {
	for _, p := range n.Parameters() {
		p.ZeroGrad()
	}
}

// linear computes W*x + b for one example.
func linear(w *domainNN.Parameter, b *domainNN.Parameter, x []float64) []float64 {
	rows := w.Shape[0]
	cols := w.Shape[1]
	out := make([]float64, rows)
	for r := 0; r < rows; r++ {
		sum := b.Data[r]
		wr := w.Data[r*cols : (r+1)*cols]
		for c, xv := range x {
			sum += wr[c] * xv
		}
		out[r] = sum
	}
	return out
}

// Forward computes per-head logits and returns the cache for Backward.
func (n *MultiHeadNet) Forward(inputs [][]float64) (domainNN.Outputs, domainNN.State) {
	batch := len(inputs)
	st := &forwardState{
		inputs: inputs,
		h1pre:  make([][]float64, batch),
		h1d:    make([][]float64, batch),
		h2pre:  make([][]float64, batch),
		feat:   make([][]float64, batch),
	}
	if n.training && n.cfg.Dropout > 0 {
		st.mask = make([][]float64, batch)
	}

	for i, x := range inputs {
		h1pre := linear(n.fc1W, n.fc1b, x)
		h1 := make([]float64, len(h1pre))
		for j, v := range h1pre {
			if v > 0 {
				h1[j] = v
			}
		}
		if st.mask != nil {
			keep := 1 - n.cfg.Dropout
			mask := make([]float64, len(h1))
			for j := range h1 {
				if n.rng.Float64() < keep {
					mask[j] = 1 / keep
				}
				h1[j] *= mask[j]
			}
			st.mask[i] = mask
		}
		h2pre := linear(n.fc2W, n.fc2b, h1)
		feat := make([]float64, len(h2pre))
		for j, v := range h2pre {
			if v > 0 {
				feat[j] = v
			}
		}
		st.h1pre[i] = h1pre
		st.h1d[i] = h1
		st.h2pre[i] = h2pre
		st.feat[i] = feat
	}

	outputs := make(domainNN.Outputs, len(n.heads))
	for k, h := range n.heads {
		logits := make([][]float64, batch)
		for i := range inputs {
			logits[i] = linear(h.weight, h.bias, st.feat[i])
		}
		outputs[k] = logits
	}
	return outputs, st
}

// Backward accumulates gradients from the loss gradient with respect to
// the concatenated head logits. Zero slices in dLogits leave the
// corresponding heads untouched.
func (n *MultiHeadNet) Backward(state domainNN.State, dLogits [][]float64) {
	st, ok := state.(*forwardState)
	if !ok {
		panic("nn: Backward called with a foreign forward state")
	}

	hidden := n.cfg.HiddenDim
	offsets := n.TaskOffsets()

	for i := range st.inputs {
		feat := st.feat[i]
		dFeat := make([]float64, hidden)

		for k, h := range n.heads {
			off := offsets[k]
			for c := 0; c < h.classes; c++ {
				g := dLogits[i][off+c]
				if g == 0 {
					continue
				}
				wr := h.weight.Data[c*hidden : (c+1)*hidden]
				gw := h.weight.Grad[c*hidden : (c+1)*hidden]
				for j := 0; j < hidden; j++ {
					gw[j] += g * feat[j]
					dFeat[j] += g * wr[j]
				}
				h.bias.Grad[c] += g
			}
		}

		// Backbone layer 2.
		dH1d := make([]float64, hidden)
		h1d := st.h1d[i]
		for j := 0; j < hidden; j++ {
			if st.h2pre[i][j] <= 0 {
				continue
			}
			g := dFeat[j]
			wr := n.fc2W.Data[j*hidden : (j+1)*hidden]
			gw := n.fc2W.Grad[j*hidden : (j+1)*hidden]
			for l := 0; l < hidden; l++ {
				gw[l] += g * h1d[l]
				dH1d[l] += g * wr[l]
			}
			n.fc2b.Grad[j] += g
		}

		// Backbone layer 1, through dropout and relu.
		x := st.inputs[i]
		in := n.cfg.InputDim
		for l := 0; l < hidden; l++ {
			g := dH1d[l]
			if st.mask != nil {
				g *= st.mask[i][l]
			}
			if st.h1pre[i][l] <= 0 || g == 0 {
				continue
			}
			gw := n.fc1W.Grad[l*in : (l+1)*in]
			for m2 := 0; m2 < in; m2++ {
				gw[m2] += g * x[m2]
			}
			n.fc1b.Grad[l] += g
		}
	}
}
