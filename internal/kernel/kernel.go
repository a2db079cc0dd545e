package kernel

import (
	"errors"
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/fbergmann/pyABC/internal/model"
	"github.com/fbergmann/pyABC/internal/stats"
)

var ErrEmptySample = errors.New("no particles to fit transition")

// Transition proposes new parameters near a fitted weighted sample and
// reports the density of such proposals. A fresh instance is fitted for
// every generation and model; fitting again discards the previous state.
//
// PDF is safe for concurrent use after Fit. Rand consumes only the passed
// rng, so callers sharing an rng must serialize Rand themselves.
type Transition interface {
	Name() string
	Fit(params []model.Parameter, weights []float64) error
	Rand(rng *rand.Rand) model.Parameter
	PDF(p model.Parameter) float64
}

// Factory creates an unfitted Transition for one model and generation.
type Factory func() Transition

// flattenSample validates a weighted parameter sample and returns the
// shared sorted names, the rows as value vectors, and normalized weights.
func flattenSample(params []model.Parameter, weights []float64) ([]string, [][]float64, []float64, error) {
	if len(params) == 0 {
		return nil, nil, nil, ErrEmptySample
	}
	if len(weights) != len(params) {
		return nil, nil, nil, fmt.Errorf("got %d weights for %d particles", len(weights), len(params))
	}

	names := params[0].Names()
	rows := make([][]float64, len(params))
	for i, p := range params {
		if p.Len() != len(names) {
			return nil, nil, nil, fmt.Errorf("particle %d has %d parameters, want %d", i, p.Len(), len(names))
		}
		rows[i] = p.Values()
	}

	normalized := make([]float64, len(weights))
	copy(normalized, weights)
	if err := stats.Normalize(normalized); err != nil {
		return nil, nil, nil, fmt.Errorf("transition sample weights: %w", err)
	}
	return names, rows, normalized, nil
}

func pickComponent(rng *rand.Rand, weights []float64) int {
	return int(distuv.NewCategorical(weights, rng).Rand())
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
