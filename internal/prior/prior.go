package prior

import (
	"fmt"
	"sort"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/fbergmann/pyABC/internal/model"
)

// RV is a one-dimensional random variable with a density.
type RV interface {
	Rand(rng *rand.Rand) float64
	PDF(x float64) float64
}

type Normal struct {
	Mu    float64 `json:"mu"`
	Sigma float64 `json:"sigma"`
}

func (n Normal) Rand(rng *rand.Rand) float64 {
	return distuv.Normal{Mu: n.Mu, Sigma: n.Sigma, Src: rng}.Rand()
}

func (n Normal) PDF(x float64) float64 {
	return distuv.Normal{Mu: n.Mu, Sigma: n.Sigma}.Prob(x)
}

type Uniform struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (u Uniform) Rand(rng *rand.Rand) float64 {
	return distuv.Uniform{Min: u.Min, Max: u.Max, Src: rng}.Rand()
}

func (u Uniform) PDF(x float64) float64 {
	return distuv.Uniform{Min: u.Min, Max: u.Max}.Prob(x)
}

type Beta struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

func (b Beta) Rand(rng *rand.Rand) float64 {
	return distuv.Beta{Alpha: b.Alpha, Beta: b.Beta, Src: rng}.Rand()
}

func (b Beta) PDF(x float64) float64 {
	return distuv.Beta{Alpha: b.Alpha, Beta: b.Beta}.Prob(x)
}

// Gamma is a gamma random variable with shape Alpha and rate Beta.
type Gamma struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

func (g Gamma) Rand(rng *rand.Rand) float64 {
	return distuv.Gamma{Alpha: g.Alpha, Beta: g.Beta, Src: rng}.Rand()
}

func (g Gamma) PDF(x float64) float64 {
	return distuv.Gamma{Alpha: g.Alpha, Beta: g.Beta}.Prob(x)
}

// LogNormal is a random variable whose logarithm is Normal(Mu, Sigma).
type LogNormal struct {
	Mu    float64 `json:"mu"`
	Sigma float64 `json:"sigma"`
}

func (l LogNormal) Rand(rng *rand.Rand) float64 {
	return distuv.LogNormal{Mu: l.Mu, Sigma: l.Sigma, Src: rng}.Rand()
}

func (l LogNormal) PDF(x float64) float64 {
	return distuv.LogNormal{Mu: l.Mu, Sigma: l.Sigma}.Prob(x)
}

// Distribution is a product prior over named parameters, one independent
// RV per name. Names are kept sorted to align with model.Parameter.
type Distribution struct {
	names []string
	rvs   []RV
}

// NewDistribution builds a product distribution from per-name RVs.
func NewDistribution(rvs map[string]RV) Distribution {
	names := make([]string, 0, len(rvs))
	for name := range rvs {
		names = append(names, name)
	}
	sort.Strings(names)
	ordered := make([]RV, len(names))
	for i, name := range names {
		ordered[i] = rvs[name]
	}
	return Distribution{names: names, rvs: ordered}
}

func (d Distribution) Len() int { return len(d.names) }

func (d Distribution) Names() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// Rand draws one parameter vector from the prior.
func (d Distribution) Rand(rng *rand.Rand) model.Parameter {
	vals := make(map[string]float64, len(d.names))
	for i, name := range d.names {
		vals[name] = d.rvs[i].Rand(rng)
	}
	return model.NewParameter(vals)
}

// PDF is the product of the marginal densities. A parameter that does not
// carry exactly the distribution's names has zero density.
func (d Distribution) PDF(p model.Parameter) float64 {
	if p.Len() != len(d.names) {
		return 0
	}
	density := 1.0
	for i, name := range d.names {
		v, ok := p.Get(name)
		if !ok {
			return 0
		}
		density *= d.rvs[i].PDF(v)
	}
	return density
}

// ModelPrior is a categorical prior over model indices.
type ModelPrior struct {
	weights []float64
}

// NewModelPrior normalizes the given weights into a model distribution.
func NewModelPrior(weights []float64) (*ModelPrior, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("model prior needs at least one weight")
	}
	total := 0.0
	for i, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("model prior weight %d is negative: %v", i, w)
		}
		total += w
	}
	if total <= 0 {
		return nil, fmt.Errorf("model prior weights sum to zero")
	}
	normalized := make([]float64, len(weights))
	for i, w := range weights {
		normalized[i] = w / total
	}
	return &ModelPrior{weights: normalized}, nil
}

// UniformModelPrior puts equal mass on n models.
func UniformModelPrior(n int) *ModelPrior {
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1
	}
	mp, _ := NewModelPrior(weights)
	return mp
}

func (mp *ModelPrior) Len() int { return len(mp.weights) }

func (mp *ModelPrior) Rand(rng *rand.Rand) int {
	return int(distuv.NewCategorical(mp.weights, rng).Rand())
}

// PMF returns the prior mass of model m, zero outside the model range.
func (mp *ModelPrior) PMF(m int) float64 {
	if m < 0 || m >= len(mp.weights) {
		return 0
	}
	return mp.weights[m]
}
