// Package nn implements the multi-head incremental network.
package nn

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Softmax returns the softmax of a logit row, computed with the max
// subtracted for stability.
func Softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	max := floats.Max(logits)
	for i, v := range logits {
		out[i] = math.Exp(v - max)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}

// ArgMax returns the index of the largest element.
func ArgMax(row []float64) int {
	best := 0
	for i := 1; i < len(row); i++ {
		if row[i] > row[best] {
			best = i
		}
	}
	return best
}

// CrossEntropy returns the mean cross-entropy of a batch of logit rows
// against integer targets.
func CrossEntropy(logits [][]float64, targets []int) float64 {
	var total float64
	for i, row := range logits {
		p := Softmax(row)
		total += -math.Log(p[targets[i]] + 1e-12)
	}
	return total / float64(len(targets))
}

// CrossEntropyGrad returns d(mean cross-entropy)/d(logits):
// (softmax - onehot) / batch.
func CrossEntropyGrad(logits [][]float64, targets []int) [][]float64 {
	batch := float64(len(targets))
	grad := make([][]float64, len(logits))
	for i, row := range logits {
		g := Softmax(row)
		g[targets[i]] -= 1
		floats.Scale(1/batch, g)
		grad[i] = g
	}
	return grad
}
