package kernel

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/fbergmann/pyABC/internal/model"
)

const defaultBandwidthFloor = 1e-6

// IndependentNormal perturbs each parameter dimension independently with a
// Gaussian whose bandwidth is Scale times the weighted standard deviation
// of that dimension. Collapsed dimensions fall back to a small floor
// bandwidth so the density never degenerates to zero.
type IndependentNormal struct {
	Scale float64
	Floor float64

	names   []string
	rows    [][]float64
	weights []float64
	bw      []float64
	fitted  bool
}

func NewIndependentNormal() *IndependentNormal {
	return &IndependentNormal{Scale: 1}
}

// IndependentNormalFactory returns a Factory producing unfitted kernels
// with the default scale.
func IndependentNormalFactory() Factory {
	return func() Transition { return NewIndependentNormal() }
}

func (*IndependentNormal) Name() string { return "independent_normal" }

func (k *IndependentNormal) Fit(params []model.Parameter, weights []float64) error {
	names, rows, ws, err := flattenSample(params, weights)
	if err != nil {
		return err
	}

	scale := k.Scale
	if scale <= 0 {
		scale = 1
	}
	floor := k.Floor
	if floor <= 0 {
		floor = defaultBandwidthFloor
	}

	dim := len(names)
	bw := make([]float64, dim)
	col := make([]float64, len(rows))
	for j := 0; j < dim; j++ {
		for i, row := range rows {
			col[i] = row[j]
		}
		sd := stat.StdDev(col, ws)
		b := scale * sd
		if math.IsNaN(b) || b <= 0 {
			b = floor
		}
		bw[j] = b
	}

	k.names = names
	k.rows = rows
	k.weights = ws
	k.bw = bw
	k.fitted = true
	return nil
}

func (k *IndependentNormal) Rand(rng *rand.Rand) model.Parameter {
	if !k.fitted || len(k.names) == 0 {
		return model.NewParameter(nil)
	}

	i := pickComponent(rng, k.weights)
	vals := make(map[string]float64, len(k.names))
	for j, name := range k.names {
		vals[name] = k.rows[i][j] + rng.NormFloat64()*k.bw[j]
	}
	return model.NewParameter(vals)
}

func (k *IndependentNormal) PDF(p model.Parameter) float64 {
	if !k.fitted {
		return 0
	}
	if len(k.names) == 0 {
		if p.Len() == 0 {
			return 1
		}
		return 0
	}
	if !sameNames(p.Names(), k.names) {
		return 0
	}

	x := p.Values()
	density := 0.0
	for i, w := range k.weights {
		if w == 0 {
			continue
		}
		component := w
		for j := range k.names {
			component *= distuv.Normal{Mu: k.rows[i][j], Sigma: k.bw[j]}.Prob(x[j])
		}
		density += component
	}
	return density
}
