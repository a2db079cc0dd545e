package sim

import (
	"context"
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/fbergmann/pyABC/internal/model"
)

// Model generates synthetic data summaries for a parameter vector. The
// rng is owned by the calling worker, so implementations may use it freely
// but must not stash it.
type Model interface {
	Name() string
	Simulate(ctx context.Context, rng *rand.Rand, p model.Parameter) (model.SummaryStats, error)
}

// Transform post-processes raw simulated statistics. A nil Transform is
// the identity.
type Transform func(model.SummaryStats) model.SummaryStats

// FuncModel adapts a plain function into a Model.
type FuncModel struct {
	ModelName string
	Fn        func(ctx context.Context, rng *rand.Rand, p model.Parameter) (model.SummaryStats, error)
}

func (m FuncModel) Name() string { return m.ModelName }

func (m FuncModel) Simulate(ctx context.Context, rng *rand.Rand, p model.Parameter) (model.SummaryStats, error) {
	if m.Fn == nil {
		return nil, fmt.Errorf("model %q has no simulation function", m.ModelName)
	}
	return m.Fn(ctx, rng, p)
}

// SummaryStatistics runs one simulation and applies the transform.
func SummaryStatistics(ctx context.Context, rng *rand.Rand, m Model, p model.Parameter, tr Transform) (model.SummaryStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stats, err := m.Simulate(ctx, rng, p)
	if err != nil {
		return nil, err
	}
	if tr != nil {
		stats = tr(stats)
	}
	return stats, nil
}

// Result is the outcome of a single accept attempt.
type Result struct {
	Accepted bool
	Distance float64
	Stats    model.SummaryStats
}

// AcceptOne simulates once, measures the distance to the observed data via
// distanceTo and accepts when it does not exceed eps.
func AcceptOne(ctx context.Context, rng *rand.Rand, m Model, p model.Parameter, tr Transform, distanceTo func(model.SummaryStats) (float64, error), eps float64) (Result, error) {
	stats, err := SummaryStatistics(ctx, rng, m, p, tr)
	if err != nil {
		return Result{}, err
	}
	d, err := distanceTo(stats)
	if err != nil {
		return Result{}, err
	}
	return Result{Accepted: d <= eps, Distance: d, Stats: stats}, nil
}
