package ewc

import (
	"encoding/json"
	"fmt"

	"github.com/BoyuanWangMust/ATTAC/internal/domain/nn"
)

// ErrParamMismatch is returned when a ParamMap's key set or shapes diverge
// from the live model's backbone parameters. Silent partial application
// would corrupt the regularization term, so this is fatal.
var ErrParamMismatch = fmt.Errorf("parameter map does not match model backbone")

// Tensor is a shaped block of float64 values.
type Tensor struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// NewTensor returns a zero tensor of the given shape.
func NewTensor(shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: make([]float64, n)}
}

// Numel returns the number of elements.
func (t *Tensor) Numel() int {
	return len(t.Data)
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	out := &Tensor{
		Shape: append([]int(nil), t.Shape...),
		Data:  make([]float64, len(t.Data)),
	}
	copy(out.Data, t.Data)
	return out
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ParamMap is an ordered mapping from parameter name to tensor. Two
// independent instances back the approach: the Snapshot (frozen values as
// of the last completed task) and the Importance Map (per-element Fisher
// information, fused across tasks).
type ParamMap struct {
	names   []string
	entries map[string]*Tensor
}

// NewParamMap returns an empty map.
func NewParamMap() *ParamMap {
	return &ParamMap{entries: make(map[string]*Tensor)}
}

// FromParameters clones the current values of the given parameters into a
// new map, preserving order.
func FromParameters(params []*nn.Parameter) *ParamMap {
	m := NewParamMap()
	for _, p := range params {
		m.Set(p.Name, &Tensor{Shape: append([]int(nil), p.Shape...), Data: p.CloneData()})
	}
	return m
}

// ZerosLike returns a map with one zero tensor per parameter.
func ZerosLike(params []*nn.Parameter) *ParamMap {
	m := NewParamMap()
	for _, p := range params {
		m.Set(p.Name, NewTensor(p.Shape...))
	}
	return m
}

// Set stores a tensor under the given name, appending to the order on
// first insertion.
func (m *ParamMap) Set(name string, t *Tensor) {
	if _, ok := m.entries[name]; !ok {
		m.names = append(m.names, name)
	}
	m.entries[name] = t
}

// Get returns the tensor stored under name, or nil.
func (m *ParamMap) Get(name string) *Tensor {
	return m.entries[name]
}

// Names returns the parameter names in insertion order.
func (m *ParamMap) Names() []string {
	return append([]string(nil), m.names...)
}

// Len returns the number of entries.
func (m *ParamMap) Len() int {
	return len(m.names)
}

// Clone returns a deep copy of the map.
func (m *ParamMap) Clone() *ParamMap {
	out := NewParamMap()
	for _, n := range m.names {
		out.Set(n, m.entries[n].Clone())
	}
	return out
}

// CheckParity verifies that the map holds exactly one entry per parameter
// with matching shapes. Any divergence wraps ErrParamMismatch.
func (m *ParamMap) CheckParity(params []*nn.Parameter) error {
	if len(params) != m.Len() {
		return fmt.Errorf("%w: map has %d entries, model has %d backbone parameters",
			ErrParamMismatch, m.Len(), len(params))
	}
	for _, p := range params {
		t, ok := m.entries[p.Name]
		if !ok {
			return fmt.Errorf("%w: missing entry %q", ErrParamMismatch, p.Name)
		}
		if !sameShape(t.Shape, p.Shape) {
			return fmt.Errorf("%w: shape of %q is %v, model has %v",
				ErrParamMismatch, p.Name, t.Shape, p.Shape)
		}
	}
	return nil
}

type paramMapJSON struct {
	Names   []string           `json:"names"`
	Entries map[string]*Tensor `json:"entries"`
}

// MarshalJSON serializes the map with its insertion order.
func (m *ParamMap) MarshalJSON() ([]byte, error) {
	return json.Marshal(paramMapJSON{Names: m.names, Entries: m.entries})
}

// UnmarshalJSON restores the map and its order.
func (m *ParamMap) UnmarshalJSON(data []byte) error {
	var raw paramMapJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.names = raw.Names
	m.entries = raw.Entries
	if m.entries == nil {
		m.entries = make(map[string]*Tensor)
	}
	return nil
}
