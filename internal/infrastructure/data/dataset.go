// Package data provides in-memory datasets and batch loading.
package data

// Dataset is a finite collection of (feature vector, global label) pairs.
type Dataset interface {
	Len() int
	Sample(i int) ([]float64, int)
}

// SliceDataset is a Dataset backed by parallel slices.
type SliceDataset struct {
	Inputs [][]float64
	Labels []int
}

// NewSliceDataset wraps the given slices without copying.
func NewSliceDataset(inputs [][]float64, labels []int) *SliceDataset {
	return &SliceDataset{Inputs: inputs, Labels: labels}
}

// Len returns the number of examples.
func (d *SliceDataset) Len() int { return len(d.Labels) }

// Sample returns example i.
func (d *SliceDataset) Sample(i int) ([]float64, int) {
	return d.Inputs[i], d.Labels[i]
}

// concatDataset presents two datasets as one, first then second.
type concatDataset struct {
	a, b Dataset
}

// Concat returns a dataset that chains a and b.
func Concat(a, b Dataset) Dataset {
	return &concatDataset{a: a, b: b}
}

func (d *concatDataset) Len() int { return d.a.Len() + d.b.Len() }

func (d *concatDataset) Sample(i int) ([]float64, int) {
	if i < d.a.Len() {
		return d.a.Sample(i)
	}
	return d.b.Sample(i - d.a.Len())
}
