package neural

import (
	"fmt"

	"github.com/BoyuanWangMust/ATTAC/internal/domain/ewc"
)

// FisherAccumulator fuses a freshly estimated importance map into the
// persisted one. Exactly one persisted map exists at any time; fusion is
// in place, so memory stays proportional to the parameter count rather
// than the task count.
type FisherAccumulator struct {
	alpha float64
}

// NewFisherAccumulator creates an accumulator with the given fusion
// weight. ewc.AlphaClassProportional selects class-proportional fusion;
// any other value is used as-is, in or out of [0,1].
func NewFisherAccumulator(alpha float64) *FisherAccumulator {
	return &FisherAccumulator{alpha: alpha}
}

// EffectiveAlpha returns the fusion weight applied for task t given the
// per-task class counts for tasks 0..t. In class-proportional mode the
// historical map is weighted by the fraction of classes seen before t.
func (a *FisherAccumulator) EffectiveAlpha(t int, taskClasses []int) float64 {
	if a.alpha != ewc.AlphaClassProportional {
		return a.alpha
	}
	var before, total float64
	for i, c := range taskClasses {
		if i < t {
			before += float64(c)
		}
		total += float64(c)
	}
	if total == 0 {
		return 0
	}
	return before / total
}

// Fuse updates old in place:
// old = alpha*old + (1-alpha)*current, elementwise per parameter.
// The two maps must agree on keys and shapes.
func (a *FisherAccumulator) Fuse(old, current *ewc.ParamMap, t int, taskClasses []int) error {
	if old.Len() != current.Len() {
		return fmt.Errorf("%w: persisted map has %d entries, estimate has %d",
			ewc.ErrParamMismatch, old.Len(), current.Len())
	}

	alpha := a.EffectiveAlpha(t, taskClasses)
	for _, name := range old.Names() {
		dst := old.Get(name)
		src := current.Get(name)
		if src == nil {
			return fmt.Errorf("%w: estimate is missing %q", ewc.ErrParamMismatch, name)
		}
		if dst.Numel() != src.Numel() {
			return fmt.Errorf("%w: %q has %d elements in persisted map, %d in estimate",
				ewc.ErrParamMismatch, name, dst.Numel(), src.Numel())
		}
		for i := range dst.Data {
			dst.Data[i] = alpha*dst.Data[i] + (1-alpha)*src.Data[i]
		}
	}
	return nil
}
