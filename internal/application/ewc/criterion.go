package ewc

import (
	"math"

	domainEWC "github.com/BoyuanWangMust/ATTAC/internal/domain/ewc"
	"github.com/BoyuanWangMust/ATTAC/internal/domain/nn"
	infraNN "github.com/BoyuanWangMust/ATTAC/internal/infrastructure/nn"
)

// Criterion returns the regularized loss for task t given per-head
// outputs and raw (global) targets.
//
// For t == 0 no consolidation penalty applies. For t > 0 the quadratic
// penalty lamb * 1/2 * sum F_i (theta_i - snapshot_i)^2 is added over all
// backbone parameters. The classification term uses all concatenated
// heads when exemplars from past tasks are in play, otherwise only the
// current head against task-local targets.
func (a *Approach) Criterion(t int, outputs nn.Outputs, targets []int) *domainEWC.Loss {
	loss := &domainEWC.Loss{}

	if t > 0 {
		var reg, drift, maxDrift float64
		elems := 0
		for _, p := range a.model.BackboneParameters() {
			f := a.fisher.Get(p.Name)
			snap := a.snapshot.Get(p.Name)
			for i, v := range p.Data {
				d := v - snap.Data[i]
				reg += f.Data[i] * d * d
				ad := math.Abs(d)
				drift += ad
				if ad > maxDrift {
					maxDrift = ad
				}
			}
			elems += p.Numel()
		}
		loss.RegularizationLoss = a.cfg.Lamb * reg / 2
		if elems > 0 {
			loss.ParameterDrift = drift / float64(elems)
		}
		loss.MaxDrift = maxDrift
	}

	if a.exemplars.Len() > 0 {
		loss.TaskLoss = infraNN.CrossEntropy(outputs.Concat(), targets)
	} else {
		loss.TaskLoss = infraNN.CrossEntropy(outputs[t], a.shiftTargets(t, targets))
	}
	loss.TotalLoss = loss.TaskLoss + loss.RegularizationLoss
	return loss
}

// criterionGrad returns d(loss)/d(concatenated logits) for the
// classification term. The consolidation penalty has no logit gradient;
// its parameter gradient is applied by Regularize.
func (a *Approach) criterionGrad(t int, outputs nn.Outputs, targets []int) [][]float64 {
	if a.exemplars.Len() > 0 {
		return infraNN.CrossEntropyGrad(outputs.Concat(), targets)
	}

	headGrad := infraNN.CrossEntropyGrad(outputs[t], a.shiftTargets(t, targets))
	total := outputs.TotalClasses()
	off := a.model.TaskOffsets()[t]

	grad := make([][]float64, len(headGrad))
	for i, row := range headGrad {
		full := make([]float64, total)
		copy(full[off:], row)
		grad[i] = full
	}
	return grad
}

// shiftTargets maps global labels into head t's local index range.
func (a *Approach) shiftTargets(t int, targets []int) []int {
	off := a.model.TaskOffsets()[t]
	out := make([]int, len(targets))
	for i, y := range targets {
		out[i] = y - off
	}
	return out
}

// taskCriterion adapts the approach to the trainer's Criterion contract
// for one task.
type taskCriterion struct {
	a *Approach
	t int
}

func (c *taskCriterion) Loss(outputs nn.Outputs, targets []int) (float64, [][]float64) {
	loss := c.a.Criterion(c.t, outputs, targets)
	c.a.mu.Lock()
	c.a.stats.TotalRegularization += loss.RegularizationLoss
	c.a.mu.Unlock()
	return loss.TotalLoss, c.a.criterionGrad(c.t, outputs, targets)
}

// Regularize adds the penalty gradient lamb * F * (theta - snapshot) to
// every backbone gradient buffer. No-op for the first task.
func (c *taskCriterion) Regularize() {
	if c.t == 0 {
		return
	}
	lamb := c.a.cfg.Lamb
	for _, p := range c.a.model.BackboneParameters() {
		f := c.a.fisher.Get(p.Name)
		snap := c.a.snapshot.Get(p.Name)
		for i := range p.Grad {
			p.Grad[i] += lamb * f.Data[i] * (p.Data[i] - snap.Data[i])
		}
	}
}
