package model

import "errors"

var ErrDegenerateWeights = errors.New("accepted particle weights sum to zero")

// Sample collects the outcomes of one sampling round. Accepted items carry
// the particles that may enter a population; rejected items are kept only
// when RecordRejected is set, though their cost is always counted.
type Sample struct {
	Items          []Item `json:"items"`
	RejectedItems  []Item `json:"rejected_items,omitempty"`
	Ok             bool   `json:"ok"`
	Evaluations    int    `json:"evaluations"`
	TotalAttempts  int    `json:"total_attempts"`
	RecordRejected bool   `json:"-"`
}

func NewSample(recordRejected bool) *Sample {
	return &Sample{Ok: true, RecordRejected: recordRejected}
}

func (s *Sample) Accept(it Item) {
	s.Items = append(s.Items, it)
}

func (s *Sample) Reject(it Item) {
	if s.RecordRejected {
		s.RejectedItems = append(s.RejectedItems, it)
	}
}

func (s *Sample) NAccepted() int { return len(s.Items) }

// Particles returns the accepted particles in acceptance order.
func (s *Sample) Particles() []Particle {
	out := make([]Particle, len(s.Items))
	for i, it := range s.Items {
		out[i] = it.Particle
	}
	return out
}

// NormalizeWeights rescales accepted particle weights to sum to one. It is
// a no-op on an empty sample and fails when every weight is zero, since no
// meaningful population can be formed from such a sample.
func (s *Sample) NormalizeWeights() error {
	if len(s.Items) == 0 {
		return nil
	}
	total := 0.0
	for _, it := range s.Items {
		total += it.Particle.Weight
	}
	if total <= 0 {
		return ErrDegenerateWeights
	}
	for i := range s.Items {
		s.Items[i].Particle.Weight /= total
	}
	return nil
}
