// Package training owns the generic epoch loop: SGD, learning-rate
// schedule and early stopping. It knows nothing about consolidation; the
// approach plugs in through the Criterion interface.
package training

import (
	"math"

	"github.com/BoyuanWangMust/ATTAC/internal/domain/nn"
)

// SGD is stochastic gradient descent with optional momentum and weight
// decay, applied to an explicit parameter set chosen once per task.
type SGD struct {
	lr          float64
	momentum    float64
	weightDecay float64
	velocity    map[*nn.Parameter][]float64
}

// NewSGD creates an optimizer.
func NewSGD(lr, momentum, weightDecay float64) *SGD {
	return &SGD{
		lr:          lr,
		momentum:    momentum,
		weightDecay: weightDecay,
		velocity:    make(map[*nn.Parameter][]float64),
	}
}

// SetLR updates the learning rate.
func (o *SGD) SetLR(lr float64) { o.lr = lr }

// LR returns the current learning rate.
func (o *SGD) LR() float64 { return o.lr }

// Step applies one update to the given parameters from their gradient
// buffers.
func (o *SGD) Step(params []*nn.Parameter) {
	for _, p := range params {
		if !p.RequiresGrad {
			continue
		}
		if o.momentum != 0 {
			v, ok := o.velocity[p]
			if !ok {
				v = make([]float64, p.Numel())
				o.velocity[p] = v
			}
			for i := range p.Data {
				g := p.Grad[i] + o.weightDecay*p.Data[i]
				v[i] = o.momentum*v[i] + g
				p.Data[i] -= o.lr * v[i]
			}
			continue
		}
		for i := range p.Data {
			g := p.Grad[i] + o.weightDecay*p.Data[i]
			p.Data[i] -= o.lr * g
		}
	}
}

// ClipGradNorm rescales gradients so their global L2 norm does not exceed
// maxNorm. A non-positive maxNorm disables clipping.
func ClipGradNorm(params []*nn.Parameter, maxNorm float64) {
	if maxNorm <= 0 {
		return
	}
	var sq float64
	for _, p := range params {
		for _, g := range p.Grad {
			sq += g * g
		}
	}
	norm := math.Sqrt(sq)
	if norm <= maxNorm {
		return
	}
	scale := maxNorm / norm
	for _, p := range params {
		for i := range p.Grad {
			p.Grad[i] *= scale
		}
	}
}
