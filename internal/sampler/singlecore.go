package sampler

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/exp/rand"

	"github.com/fbergmann/pyABC/internal/model"
)

// SingleCore evaluates proposals sequentially on the calling goroutine.
// With a fixed seed its results are fully reproducible.
type SingleCore struct{}

func (*SingleCore) Name() string { return "singlecore" }

func (*SingleCore) Sample(ctx context.Context, spec RunSpec) (*model.Sample, error) {
	rng := rand.New(rand.NewSource(spec.Seed))
	sample := model.NewSample(spec.RecordRejected)

	for sample.NAccepted() < spec.N {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if spec.MaxEval > 0 && sample.Evaluations >= spec.MaxEval {
			sample.Ok = false
			spec.Logger.Warn("evaluation budget exhausted",
				slog.Int("accepted", sample.NAccepted()),
				slog.Int("evaluations", sample.Evaluations),
				slog.Int("max_eval", spec.MaxEval))
			break
		}

		prop, err := spec.Request.Proposer.Propose(ctx)
		if err != nil {
			return nil, fmt.Errorf("propose: %w", err)
		}

		it, err := spec.Request.Evaluator.Evaluate(ctx, rng, prop)
		sample.Evaluations++
		sample.TotalAttempts += it.Attempts
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			spec.Logger.Warn("evaluation failed", slog.Any("error", err))
			continue
		}

		if spec.Request.AllAccepted || spec.Request.Acceptor.Accept(it) {
			sample.Accept(it)
		} else {
			sample.Reject(it)
		}
		if spec.Progress != nil {
			spec.Progress(sample.NAccepted(), sample.Evaluations)
		}
	}
	return sample, nil
}
