package ewc

// Loss holds the components of the regularized loss for one batch.
type Loss struct {
	// TaskLoss is the classification cross-entropy.
	TaskLoss float64 `json:"taskLoss"`

	// RegularizationLoss is the quadratic consolidation penalty:
	// lamb * 1/2 * sum_i F_i * (theta_i - theta_old_i)^2.
	RegularizationLoss float64 `json:"regularizationLoss"`

	// TotalLoss is TaskLoss + RegularizationLoss.
	TotalLoss float64 `json:"totalLoss"`

	// ParameterDrift is the mean absolute drift from the snapshot.
	ParameterDrift float64 `json:"parameterDrift"`

	// MaxDrift is the largest single-element drift from the snapshot.
	MaxDrift float64 `json:"maxDrift"`
}
