// Package ewc provides domain types for elastic weight consolidation.
package ewc

// SamplingType selects the pseudo-label policy used when estimating the
// Fisher information diagonal.
type SamplingType string

const (
	// SamplingTrue uses the ground-truth labels of each batch.
	SamplingTrue SamplingType = "true"
	// SamplingMaxPred uses the model's arg-max prediction over the
	// concatenated head outputs. Label-free.
	SamplingMaxPred SamplingType = "max_pred"
	// SamplingMultinomial draws one label per example from the softmax
	// distribution over the concatenated head outputs.
	SamplingMultinomial SamplingType = "multinomial"
)

// AlphaClassProportional is the Alpha sentinel that switches Fisher fusion
// to class-proportional weighting: historical importance is weighted by the
// fraction of classes seen before the current task.
const AlphaClassProportional = -1

// Config configures the EWC approach.
//
// No validation is applied: values outside the nominal ranges change the
// numeric behavior (e.g. Alpha outside [0,1] extrapolates instead of
// interpolating) rather than raising an error.
type Config struct {
	// Lamb is the forgetting-intransigence trade-off. It scales the
	// quadratic penalty on parameter drift.
	Lamb float64 `json:"lamb"`

	// Alpha is the Fisher fusion weight:
	// fused = alpha*old + (1-alpha)*current.
	// AlphaClassProportional selects class-proportional fusion.
	Alpha float64 `json:"alpha"`

	// SamplingType is the pseudo-label policy for Fisher estimation.
	SamplingType SamplingType `json:"fiSamplingType"`

	// NumSamples is the Fisher sampling budget, rounded up to whole
	// batches. Non-positive means one pass over all available batches.
	NumSamples int `json:"fiNumSamples"`
}

// DefaultConfig returns the default EWC configuration.
func DefaultConfig() Config {
	return Config{
		Lamb:         5000,
		Alpha:        0.5,
		SamplingType: SamplingMaxPred,
		NumSamples:   -1,
	}
}
