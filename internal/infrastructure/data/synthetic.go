package data

import (
	"math/rand"
)

// SyntheticConfig configures Gaussian-cluster dataset generation, used by
// the CLI demo and by tests.
type SyntheticConfig struct {
	// Dim is the feature vector length.
	Dim int

	// SamplesPerClass is the number of examples per class.
	SamplesPerClass int

	// Spread is the standard deviation around each class center.
	Spread float64

	// Seed seeds generation.
	Seed int64
}

// GenerateSynthetic produces one Gaussian cluster per class, labelled with
// global class indices starting at firstLabel.
func GenerateSynthetic(cfg SyntheticConfig, classes, firstLabel int) *SliceDataset {
	rng := rand.New(rand.NewSource(cfg.Seed))

	inputs := make([][]float64, 0, classes*cfg.SamplesPerClass)
	labels := make([]int, 0, classes*cfg.SamplesPerClass)

	for c := 0; c < classes; c++ {
		center := make([]float64, cfg.Dim)
		for d := range center {
			center[d] = rng.NormFloat64() * 2
		}
		for s := 0; s < cfg.SamplesPerClass; s++ {
			x := make([]float64, cfg.Dim)
			for d := range x {
				x[d] = center[d] + rng.NormFloat64()*cfg.Spread
			}
			inputs = append(inputs, x)
			labels = append(labels, firstLabel+c)
		}
	}

	return NewSliceDataset(inputs, labels)
}
