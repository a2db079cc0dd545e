package model

// Population is the accepted, weighted outcome of one generation. Particles
// are valid and carry normalized weights summing to one across models.
type Population struct {
	T         int        `json:"t"`
	Epsilon   float64    `json:"epsilon"`
	Particles []Particle `json:"particles"`
}

func (p Population) Empty() bool { return len(p.Particles) == 0 }

// Weights returns the particle weights in particle order.
func (p Population) Weights() []float64 {
	out := make([]float64, len(p.Particles))
	for i, pt := range p.Particles {
		out[i] = pt.Weight
	}
	return out
}

// ModelProbabilities sums particle weights per model and renormalizes, so
// the result is a probability distribution over surviving models.
func (p Population) ModelProbabilities() map[int]float64 {
	probs := make(map[int]float64)
	total := 0.0
	for _, pt := range p.Particles {
		probs[pt.Model] += pt.Weight
		total += pt.Weight
	}
	if total > 0 {
		for m := range probs {
			probs[m] /= total
		}
	}
	return probs
}
