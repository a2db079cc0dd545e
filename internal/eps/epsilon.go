package eps

import (
	"context"
	"fmt"

	"github.com/fbergmann/pyABC/internal/stats"
	"github.com/fbergmann/pyABC/internal/storage"
)

// Epsilon yields the acceptance threshold for each generation. Initialize
// is called once with the distances of the calibration sample (uniformly
// weighted when weights is nil) so adaptive schedules can seed their first
// threshold; Value may consult the store for earlier generations.
type Epsilon interface {
	Name() string
	Initialize(distances, weights []float64) error
	Value(ctx context.Context, t int, store storage.Store) (float64, error)
}

// List replays a fixed threshold schedule, repeating the last entry for
// generations beyond its length.
type List struct {
	Values []float64 `json:"values"`
}

func NewList(values ...float64) (*List, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("epsilon list needs at least one value")
	}
	return &List{Values: append([]float64(nil), values...)}, nil
}

func (*List) Name() string { return "list" }

func (*List) Initialize([]float64, []float64) error { return nil }

func (l *List) Value(_ context.Context, t int, _ storage.Store) (float64, error) {
	if t < 0 {
		return 0, fmt.Errorf("generation %d out of range", t)
	}
	if t >= len(l.Values) {
		t = len(l.Values) - 1
	}
	return l.Values[t], nil
}

// Constant holds the same acceptance threshold for every generation.
type Constant struct {
	Threshold float64 `json:"threshold"`
}

func NewConstant(threshold float64) *Constant {
	return &Constant{Threshold: threshold}
}

func (*Constant) Name() string { return "constant" }

func (*Constant) Initialize([]float64, []float64) error { return nil }

func (c *Constant) Value(_ context.Context, t int, _ storage.Store) (float64, error) {
	if t < 0 {
		return 0, fmt.Errorf("generation %d out of range", t)
	}
	return c.Threshold, nil
}

// Quantile tracks the acceptance threshold adaptively: generation t uses
// the weighted Q-quantile of the previous generation's accepted distances,
// scaled by Multiplier. Generation zero falls back to the calibration
// sample distances.
type Quantile struct {
	Q          float64 `json:"q"`
	Multiplier float64 `json:"multiplier"`

	initDistances []float64
	initWeights   []float64
	initialized   bool
}

func NewQuantile(q float64) (*Quantile, error) {
	if q <= 0 || q >= 1 {
		return nil, fmt.Errorf("quantile %v outside (0, 1)", q)
	}
	return &Quantile{Q: q, Multiplier: 1}, nil
}

// NewMedian is the common median schedule.
func NewMedian() *Quantile {
	return &Quantile{Q: 0.5, Multiplier: 1}
}

func (*Quantile) Name() string { return "quantile" }

func (e *Quantile) Initialize(distances, weights []float64) error {
	if len(distances) == 0 {
		return fmt.Errorf("quantile epsilon needs calibration distances")
	}
	e.initDistances = append([]float64(nil), distances...)
	e.initWeights = nil
	if weights != nil {
		if len(weights) != len(distances) {
			return fmt.Errorf("got %d weights for %d distances", len(weights), len(distances))
		}
		e.initWeights = append([]float64(nil), weights...)
	}
	e.initialized = true
	return nil
}

func (e *Quantile) Value(ctx context.Context, t int, store storage.Store) (float64, error) {
	mult := e.Multiplier
	if mult <= 0 {
		mult = 1
	}

	if t == 0 {
		if !e.initialized {
			return 0, fmt.Errorf("quantile epsilon used before initialization")
		}
		q, err := stats.WeightedQuantile(e.Q, e.initDistances, e.initWeights)
		if err != nil {
			return 0, err
		}
		return mult * q, nil
	}

	distances, weights, err := store.WeightedDistances(ctx, t-1)
	if err != nil {
		return 0, fmt.Errorf("epsilon for generation %d: %w", t, err)
	}
	if len(distances) == 0 {
		return 0, fmt.Errorf("no accepted distances in generation %d", t-1)
	}
	q, err := stats.WeightedQuantile(e.Q, distances, weights)
	if err != nil {
		return 0, err
	}
	return mult * q, nil
}
