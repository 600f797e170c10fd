// Package nn provides domain types for multi-head incremental networks.
package nn

// Parameter is a named, trainable tensor with an attached gradient buffer.
type Parameter struct {
	// Name identifies the parameter within its module, e.g. "fc1.weight".
	Name string `json:"name"`

	// Shape is the logical tensor shape.
	Shape []int `json:"shape"`

	// Data is the flattened parameter value, row-major.
	Data []float64 `json:"data"`

	// Grad is the flattened gradient buffer, same length as Data.
	Grad []float64 `json:"-"`

	// RequiresGrad marks the parameter as trainable.
	RequiresGrad bool `json:"requiresGrad"`
}

// NewParameter creates a trainable parameter of the given shape with
// zero-initialized value and gradient buffers.
func NewParameter(name string, shape ...int) *Parameter {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Parameter{
		Name:         name,
		Shape:        shape,
		Data:         make([]float64, n),
		Grad:         make([]float64, n),
		RequiresGrad: true,
	}
}

// Numel returns the number of elements in the parameter.
func (p *Parameter) Numel() int {
	return len(p.Data)
}

// ZeroGrad clears the gradient buffer.
func (p *Parameter) ZeroGrad() {
	for i := range p.Grad {
		p.Grad[i] = 0
	}
}

// CloneData returns a defensive copy of the parameter value.
func (p *Parameter) CloneData() []float64 {
	out := make([]float64, len(p.Data))
	copy(out, p.Data)
	return out
}
