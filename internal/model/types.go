package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Parameter is an immutable named vector of parameter values. Names are
// kept sorted so that Values always aligns with Names, which lets kernels
// and priors agree on column order without passing name lists around.
type Parameter struct {
	names []string
	vals  []float64
}

// NewParameter copies values into a Parameter with sorted names.
func NewParameter(values map[string]float64) Parameter {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	vals := make([]float64, len(names))
	for i, name := range names {
		vals[i] = values[name]
	}
	return Parameter{names: names, vals: vals}
}

// ParameterFromValues builds a Parameter from names and a value vector in
// the same order NewParameter would produce. Names must already be sorted.
func ParameterFromValues(names []string, vals []float64) (Parameter, error) {
	if len(names) != len(vals) {
		return Parameter{}, fmt.Errorf("parameter names and values length mismatch: %d vs %d", len(names), len(vals))
	}
	if !sort.StringsAreSorted(names) {
		return Parameter{}, fmt.Errorf("parameter names must be sorted")
	}
	p := Parameter{names: make([]string, len(names)), vals: make([]float64, len(vals))}
	copy(p.names, names)
	copy(p.vals, vals)
	return p, nil
}

func (p Parameter) Len() int { return len(p.names) }

// Names returns a copy of the sorted parameter names.
func (p Parameter) Names() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// Values returns a copy of the values aligned with Names.
func (p Parameter) Values() []float64 {
	out := make([]float64, len(p.vals))
	copy(out, p.vals)
	return out
}

func (p Parameter) Get(name string) (float64, bool) {
	i := sort.SearchStrings(p.names, name)
	if i < len(p.names) && p.names[i] == name {
		return p.vals[i], true
	}
	return 0, false
}

// Map returns the parameter as a fresh name to value map.
func (p Parameter) Map() map[string]float64 {
	out := make(map[string]float64, len(p.names))
	for i, name := range p.names {
		out[name] = p.vals[i]
	}
	return out
}

func (p Parameter) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Map())
}

func (p *Parameter) UnmarshalJSON(data []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*p = NewParameter(m)
	return nil
}

// SummaryStats holds named summary statistics of observed or simulated data.
type SummaryStats map[string]float64

// Keys returns the statistic names in sorted order.
func (s SummaryStats) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Particle is a single weighted member of a population. Distances and
// SumStats hold one entry per accepted simulation of the particle.
type Particle struct {
	Model       int            `json:"model"`
	Parameter   Parameter      `json:"parameter"`
	Weight      float64        `json:"weight"`
	Distances   []float64      `json:"distances,omitempty"`
	SumStats    []SummaryStats `json:"summary_statistics,omitempty"`
	Preliminary bool           `json:"preliminary,omitempty"`
}

// Valid reports whether the particle was accepted at least once and may
// enter a population.
func (p Particle) Valid() bool { return len(p.Distances) > 0 }

// Item is one evaluation outcome produced by a sampler: the proposed model
// index, the number of simulations the evaluation consumed, and the
// resulting particle, which may be invalid when nothing was accepted.
type Item struct {
	Model    int      `json:"model"`
	Attempts int      `json:"attempts"`
	Particle Particle `json:"particle"`
}
