package kernel

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/fbergmann/pyABC/internal/model"
)

const choleskyJitterRetries = 10

// MultivariateNormal perturbs a weighted sample with Gaussian noise sharing
// one covariance across components: Rand picks a source particle by weight
// and adds noise, PDF is the matching weighted mixture density. The fitted
// covariance is Scale times the weighted sample covariance, with the
// diagonal jittered until it factorizes, so the density stays proper even
// when the sample has collapsed onto few points.
type MultivariateNormal struct {
	Scale float64

	names   []string
	rows    *mat.Dense
	weights []float64
	lower   mat.TriDense
	noise   *distmv.Normal
	dim     int
	fitted  bool
}

func NewMultivariateNormal() *MultivariateNormal {
	return &MultivariateNormal{Scale: 1}
}

// MultivariateNormalFactory returns a Factory producing unfitted kernels
// with the default scale.
func MultivariateNormalFactory() Factory {
	return func() Transition { return NewMultivariateNormal() }
}

func (*MultivariateNormal) Name() string { return "multivariate_normal" }

func (k *MultivariateNormal) Fit(params []model.Parameter, weights []float64) error {
	names, rows, ws, err := flattenSample(params, weights)
	if err != nil {
		return err
	}

	k.names = names
	k.weights = ws
	k.dim = len(names)
	k.fitted = true
	k.noise = nil

	if k.dim == 0 {
		return nil
	}

	n := len(rows)
	flat := make([]float64, 0, n*k.dim)
	for _, row := range rows {
		flat = append(flat, row...)
	}
	k.rows = mat.NewDense(n, k.dim, flat)

	scale := k.Scale
	if scale <= 0 {
		scale = 1
	}

	cov := mat.NewSymDense(k.dim, nil)
	if n > 1 {
		stat.CovarianceMatrix(cov, k.rows, ws)
		finite := true
		for i := 0; i < k.dim && finite; i++ {
			for j := 0; j <= i; j++ {
				v := scale * cov.At(i, j)
				if math.IsNaN(v) || math.IsInf(v, 0) {
					finite = false
					break
				}
				cov.SetSym(i, j, v)
			}
		}
		// A sample with all mass on one particle yields an undefined
		// weighted covariance. Treat it like a collapsed sample.
		if !finite {
			cov = mat.NewSymDense(k.dim, nil)
		}
	}

	maxDiag := 0.0
	for i := 0; i < k.dim; i++ {
		if d := cov.At(i, i); d > maxDiag {
			maxDiag = d
		}
	}

	var chol mat.Cholesky
	jitter := 1e-9 * (1 + maxDiag)
	for attempt := 0; ; attempt++ {
		if chol.Factorize(cov) {
			break
		}
		if attempt >= choleskyJitterRetries {
			return fmt.Errorf("covariance not positive definite after %d jitter attempts", attempt)
		}
		for i := 0; i < k.dim; i++ {
			cov.SetSym(i, i, cov.At(i, i)+jitter)
		}
		jitter *= 10
	}

	chol.LTo(&k.lower)
	k.noise = distmv.NewNormalChol(make([]float64, k.dim), &chol, nil)
	return nil
}

func (k *MultivariateNormal) Rand(rng *rand.Rand) model.Parameter {
	if !k.fitted || k.dim == 0 {
		return model.NewParameter(nil)
	}

	i := pickComponent(rng, k.weights)
	z := mat.NewVecDense(k.dim, nil)
	for j := 0; j < k.dim; j++ {
		z.SetVec(j, rng.NormFloat64())
	}
	var noise mat.VecDense
	noise.MulVec(&k.lower, z)

	vals := make(map[string]float64, k.dim)
	for j, name := range k.names {
		vals[name] = k.rows.At(i, j) + noise.AtVec(j)
	}
	return model.NewParameter(vals)
}

func (k *MultivariateNormal) PDF(p model.Parameter) float64 {
	if !k.fitted {
		return 0
	}
	if k.dim == 0 {
		if p.Len() == 0 {
			return 1
		}
		return 0
	}
	if !sameNames(p.Names(), k.names) {
		return 0
	}

	x := p.Values()
	diff := make([]float64, k.dim)
	density := 0.0
	for i, w := range k.weights {
		if w == 0 {
			continue
		}
		for j := 0; j < k.dim; j++ {
			diff[j] = x[j] - k.rows.At(i, j)
		}
		density += w * math.Exp(k.noise.LogProb(diff))
	}
	return density
}
