package kernel

import (
	"fmt"

	"golang.org/x/exp/rand"
)

// ModelKernel perturbs model indices: a proposal stays on the source model
// with probability Stay and otherwise jumps uniformly to one of the other
// models. With a single model it is the identity.
type ModelKernel struct {
	n    int
	stay float64
}

func NewModelKernel(n int, stay float64) (*ModelKernel, error) {
	if n < 1 {
		return nil, fmt.Errorf("model kernel needs at least one model, got %d", n)
	}
	if stay < 0 || stay > 1 {
		return nil, fmt.Errorf("stay probability %v outside [0, 1]", stay)
	}
	return &ModelKernel{n: n, stay: stay}, nil
}

func (k *ModelKernel) Len() int { return k.n }

// Rand perturbs the source model index m.
func (k *ModelKernel) Rand(rng *rand.Rand, m int) int {
	if k.n == 1 {
		return m
	}
	if rng.Float64() < k.stay {
		return m
	}
	// Uniform over the other n-1 models.
	j := rng.Intn(k.n - 1)
	if j >= m {
		j++
	}
	return j
}

// PMF returns the probability of proposing target when perturbing source.
func (k *ModelKernel) PMF(target, source int) float64 {
	if target < 0 || target >= k.n || source < 0 || source >= k.n {
		return 0
	}
	if k.n == 1 {
		return 1
	}
	if target == source {
		return k.stay
	}
	return (1 - k.stay) / float64(k.n-1)
}
