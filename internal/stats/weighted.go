package stats

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Normalize rescales weights in place to sum to one.
func Normalize(weights []float64) error {
	if len(weights) == 0 {
		return fmt.Errorf("no weights to normalize")
	}
	for i, w := range weights {
		if w < 0 {
			return fmt.Errorf("negative weight %v at index %d", w, i)
		}
	}
	total := floats.Sum(weights)
	if total <= 0 {
		return fmt.Errorf("weights sum to %v, cannot normalize", total)
	}
	floats.Scale(1/total, weights)
	return nil
}

// EffectiveSampleSize estimates how many independent draws a weighted
// sample is worth, (sum w)^2 / sum w^2. Zero for an empty or all-zero
// weight vector.
func EffectiveSampleSize(weights []float64) float64 {
	if len(weights) == 0 {
		return 0
	}
	sumSq := floats.Dot(weights, weights)
	if sumSq == 0 {
		return 0
	}
	sum := floats.Sum(weights)
	return sum * sum / sumSq
}

// WeightedQuantile returns the empirical quantile q of values under the
// given weights. A nil weight slice means uniform weights. Inputs are
// copied, sorted together, and handed to gonum's quantile estimator.
func WeightedQuantile(q float64, values, weights []float64) (float64, error) {
	if q < 0 || q > 1 {
		return 0, fmt.Errorf("quantile %v outside [0, 1]", q)
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("no values for quantile")
	}
	xs := make([]float64, len(values))
	copy(xs, values)

	var ws []float64
	if weights != nil {
		if len(weights) != len(values) {
			return 0, fmt.Errorf("got %d weights for %d values", len(weights), len(values))
		}
		ws = make([]float64, len(weights))
		copy(ws, weights)
		if floats.Sum(ws) <= 0 {
			return 0, fmt.Errorf("quantile weights sum to zero")
		}
	}

	stat.SortWeighted(xs, ws)
	return stat.Quantile(q, stat.Empirical, xs, ws), nil
}

// WeightedMedian is WeightedQuantile at 0.5.
func WeightedMedian(values, weights []float64) (float64, error) {
	return WeightedQuantile(0.5, values, weights)
}
