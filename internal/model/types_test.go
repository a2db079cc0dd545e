package model

import (
	"encoding/json"
	"testing"
)

func TestParameterOrdering(t *testing.T) {
	p := NewParameter(map[string]float64{"sigma": 2.5, "mu": -1, "alpha": 0.5})

	names := p.Names()
	want := []string{"alpha", "mu", "sigma"}
	if len(names) != len(want) {
		t.Fatalf("expected %d names, got %d", len(want), len(names))
	}
	for i, name := range want {
		if names[i] != name {
			t.Fatalf("expected name %q at %d, got %q", name, i, names[i])
		}
	}

	vals := p.Values()
	if vals[0] != 0.5 || vals[1] != -1 || vals[2] != 2.5 {
		t.Fatalf("values not aligned with sorted names: %v", vals)
	}

	if v, ok := p.Get("mu"); !ok || v != -1 {
		t.Fatalf("expected mu=-1, got %v ok=%v", v, ok)
	}
	if _, ok := p.Get("missing"); ok {
		t.Fatal("expected lookup of unknown name to fail")
	}
}

func TestParameterCopies(t *testing.T) {
	src := map[string]float64{"a": 1, "b": 2}
	p := NewParameter(src)
	src["a"] = 99

	if v, _ := p.Get("a"); v != 1 {
		t.Fatalf("parameter shares storage with source map: got %v", v)
	}

	vals := p.Values()
	vals[0] = 42
	if v, _ := p.Get("a"); v != 1 {
		t.Fatalf("mutating Values() result leaked into parameter: got %v", v)
	}
}

func TestParameterFromValues(t *testing.T) {
	p, err := ParameterFromValues([]string{"a", "b"}, []float64{1, 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := p.Get("b"); v != 2 {
		t.Fatalf("expected b=2, got %v", v)
	}

	if _, err := ParameterFromValues([]string{"b", "a"}, []float64{1, 2}); err == nil {
		t.Fatal("expected error for unsorted names")
	}
	if _, err := ParameterFromValues([]string{"a"}, []float64{1, 2}); err == nil {
		t.Fatal("expected error for length mismatch")
	}
}

func TestParameterJSONRoundTrip(t *testing.T) {
	p := NewParameter(map[string]float64{"mu": 1.5, "sigma": 0.25})
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var back Parameter
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if back.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", back.Len())
	}
	if v, _ := back.Get("mu"); v != 1.5 {
		t.Fatalf("expected mu=1.5 after round trip, got %v", v)
	}
}

func TestParticleValid(t *testing.T) {
	if (Particle{}).Valid() {
		t.Fatal("expected particle without distances to be invalid")
	}
	p := Particle{Distances: []float64{0.3}}
	if !p.Valid() {
		t.Fatal("expected particle with a distance to be valid")
	}
}

func TestSummaryStatsKeys(t *testing.T) {
	s := SummaryStats{"y": 1, "x": 2}
	keys := s.Keys()
	if len(keys) != 2 || keys[0] != "x" || keys[1] != "y" {
		t.Fatalf("expected sorted keys [x y], got %v", keys)
	}
}
