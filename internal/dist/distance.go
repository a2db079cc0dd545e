package dist

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/fbergmann/pyABC/internal/model"
)

// Distance compares two summary statistics. Initialize is called once with
// a calibration sample drawn from the prior, before any Compare call, so
// adaptive distances can derive their scaling from it.
type Distance interface {
	Name() string
	Initialize(samples []model.SummaryStats) error
	Compare(x, y model.SummaryStats) (float64, error)
}

// alignedValues extracts the values of both stats over x's sorted keys,
// failing when the key sets differ.
func alignedValues(x, y model.SummaryStats) ([]float64, []float64, error) {
	if len(x) != len(y) {
		return nil, nil, fmt.Errorf("summary statistics have %d and %d entries", len(x), len(y))
	}
	keys := x.Keys()
	xv := make([]float64, len(keys))
	yv := make([]float64, len(keys))
	for i, k := range keys {
		v, ok := y[k]
		if !ok {
			return nil, nil, fmt.Errorf("summary statistic %q missing from second argument", k)
		}
		xv[i] = x[k]
		yv[i] = v
	}
	return xv, yv, nil
}

// Euclidean is the L2 distance over matching summary statistic keys.
type Euclidean struct{}

func (Euclidean) Name() string { return "euclidean" }

func (Euclidean) Initialize([]model.SummaryStats) error { return nil }

func (Euclidean) Compare(x, y model.SummaryStats) (float64, error) {
	xv, yv, err := alignedValues(x, y)
	if err != nil {
		return 0, err
	}
	return floats.Distance(xv, yv, 2), nil
}

// PNorm is the Minkowski distance of order P over matching summary
// statistic keys, with optional per-key weights applied to the
// differences. An infinite P yields the Chebyshev distance.
type PNorm struct {
	P       float64
	Weights map[string]float64
}

func NewPNorm(p float64, weights map[string]float64) (*PNorm, error) {
	if math.IsNaN(p) || p < 1 {
		return nil, fmt.Errorf("p-norm order must be >= 1, got %v", p)
	}
	for k, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("weight for %q must be >= 0, got %v", k, w)
		}
	}
	return &PNorm{P: p, Weights: weights}, nil
}

func (*PNorm) Name() string { return "pnorm" }

func (*PNorm) Initialize([]model.SummaryStats) error { return nil }

func (d *PNorm) Compare(x, y model.SummaryStats) (float64, error) {
	xv, yv, err := alignedValues(x, y)
	if err != nil {
		return 0, err
	}
	keys := x.Keys()

	if math.IsInf(d.P, 1) {
		worst := 0.0
		for i := range xv {
			if diff := math.Abs(d.weight(keys[i]) * (xv[i] - yv[i])); diff > worst {
				worst = diff
			}
		}
		return worst, nil
	}

	total := 0.0
	for i := range xv {
		total += math.Pow(math.Abs(d.weight(keys[i])*(xv[i]-yv[i])), d.P)
	}
	return math.Pow(total, 1/d.P), nil
}

func (d *PNorm) weight(key string) float64 {
	if w, ok := d.Weights[key]; ok {
		return w
	}
	return 1
}

// MinMax sums per-key absolute differences scaled by the value range each
// key showed in the calibration sample. Keys with a collapsed range fall
// back to an unscaled difference.
type MinMax struct {
	min map[string]float64
	max map[string]float64
}

func NewMinMax() *MinMax { return &MinMax{} }

func (*MinMax) Name() string { return "min-max" }

func (d *MinMax) Initialize(samples []model.SummaryStats) error {
	if len(samples) == 0 {
		return fmt.Errorf("min-max distance needs a calibration sample")
	}
	d.min = make(map[string]float64)
	d.max = make(map[string]float64)
	for _, s := range samples {
		for k, v := range s {
			lo, seen := d.min[k]
			if !seen || v < lo {
				d.min[k] = v
			}
			hi, seen := d.max[k]
			if !seen || v > hi {
				d.max[k] = v
			}
		}
	}
	return nil
}

func (d *MinMax) Compare(x, y model.SummaryStats) (float64, error) {
	if d.min == nil {
		return 0, fmt.Errorf("min-max distance used before initialization")
	}
	if len(x) != len(y) {
		return 0, fmt.Errorf("summary statistics have %d and %d entries", len(x), len(y))
	}
	total := 0.0
	for k, xv := range x {
		yv, ok := y[k]
		if !ok {
			return 0, fmt.Errorf("summary statistic %q missing from second argument", k)
		}
		diff := xv - yv
		if diff < 0 {
			diff = -diff
		}
		if span := d.max[k] - d.min[k]; span > 0 {
			diff /= span
		}
		total += diff
	}
	return total, nil
}
