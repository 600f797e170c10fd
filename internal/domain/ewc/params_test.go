package ewc

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/BoyuanWangMust/ATTAC/internal/domain/nn"
)

func backboneFixture() []*nn.Parameter {
	w := nn.NewParameter("fc1.weight", 2, 3)
	b := nn.NewParameter("fc1.bias", 2)
	for i := range w.Data {
		w.Data[i] = float64(i) + 0.5
	}
	return []*nn.Parameter{w, b}
}

func TestFromParametersClonesValues(t *testing.T) {
	params := backboneFixture()
	m := FromParameters(params)

	if m.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", m.Len())
	}

	// Mutating the model must not leak into the snapshot.
	params[0].Data[0] = 99
	if m.Get("fc1.weight").Data[0] == 99 {
		t.Error("snapshot shares storage with the live parameter")
	}
}

func TestZerosLikeShapes(t *testing.T) {
	params := backboneFixture()
	m := ZerosLike(params)

	w := m.Get("fc1.weight")
	if w.Numel() != 6 {
		t.Errorf("expected 6 elements, got %d", w.Numel())
	}
	for i, v := range w.Data {
		if v != 0 {
			t.Errorf("element %d not zero: %v", i, v)
		}
	}
}

func TestCheckParity(t *testing.T) {
	params := backboneFixture()
	m := FromParameters(params)

	if err := m.CheckParity(params); err != nil {
		t.Fatalf("unexpected parity error: %v", err)
	}

	// Missing entry.
	extra := append(backboneFixture(), nn.NewParameter("fc2.weight", 4, 2))
	if err := m.CheckParity(extra); !errors.Is(err, ErrParamMismatch) {
		t.Errorf("expected ErrParamMismatch for missing key, got %v", err)
	}

	// Shape drift.
	reshaped := []*nn.Parameter{nn.NewParameter("fc1.weight", 3, 2), nn.NewParameter("fc1.bias", 2)}
	if err := m.CheckParity(reshaped); !errors.Is(err, ErrParamMismatch) {
		t.Errorf("expected ErrParamMismatch for shape drift, got %v", err)
	}
}

func TestParamMapOrderStableThroughJSON(t *testing.T) {
	params := backboneFixture()
	m := FromParameters(params)

	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	restored := NewParamMap()
	if err := json.Unmarshal(raw, restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := m.Names()
	got := restored.Names()
	if len(want) != len(got) {
		t.Fatalf("name count changed: %v vs %v", want, got)
	}
	for i := range want {
		if want[i] != got[i] {
			t.Errorf("order changed at %d: %s vs %s", i, want[i], got[i])
		}
	}
	if restored.Get("fc1.weight").Data[0] != m.Get("fc1.weight").Data[0] {
		t.Error("values changed through JSON roundtrip")
	}
}

func TestCloneIsDeep(t *testing.T) {
	m := FromParameters(backboneFixture())
	c := m.Clone()
	c.Get("fc1.weight").Data[0] = -1
	if m.Get("fc1.weight").Data[0] == -1 {
		t.Error("clone shares storage with original")
	}
}
