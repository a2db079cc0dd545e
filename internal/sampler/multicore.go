package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/rand"

	"github.com/fbergmann/pyABC/internal/model"
)

// Multicore fans evaluations out over a pool of worker goroutines. Each
// worker owns its own random stream; a shared atomic budget bounds the
// number of evaluations started when MaxEval is set. Workers race, so
// two runs with the same seed may interleave differently.
type Multicore struct {
	Workers int
}

func (*Multicore) Name() string { return "multicore" }

type outcome struct {
	item  model.Item
	err   error
	fatal bool
}

func (mc *Multicore) Sample(ctx context.Context, spec RunSpec) (*model.Sample, error) {
	workers := mc.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var budget atomic.Int64
	budget.Store(int64(spec.MaxEval))

	results := make(chan outcome, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			mc.work(genCtx, spec, id, &budget, results)
		}(w)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	sample := model.NewSample(spec.RecordRejected)
	var firstErr error
	for out := range results {
		if out.fatal {
			if firstErr == nil && genCtx.Err() == nil {
				firstErr = out.err
			}
			cancel()
			continue
		}
		sample.Evaluations++
		sample.TotalAttempts += out.item.Attempts
		if out.err != nil {
			if genCtx.Err() == nil {
				spec.Logger.Warn("evaluation failed", slog.Any("error", out.err))
			}
			continue
		}
		if sample.NAccepted() >= spec.N {
			// Surplus result from a worker that was already in flight
			// when the round completed. Its cost is counted above.
			continue
		}
		if spec.Request.AllAccepted || spec.Request.Acceptor.Accept(out.item) {
			sample.Accept(out.item)
			if sample.NAccepted() == spec.N {
				cancel()
			}
		} else {
			sample.Reject(out.item)
		}
		if spec.Progress != nil {
			spec.Progress(sample.NAccepted(), sample.Evaluations)
		}
	}

	if firstErr != nil {
		return nil, firstErr
	}
	if sample.NAccepted() < spec.N {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sample.Ok = false
		spec.Logger.Warn("evaluation budget exhausted",
			slog.Int("accepted", sample.NAccepted()),
			slog.Int("evaluations", sample.Evaluations),
			slog.Int("max_eval", spec.MaxEval))
	}
	return sample, nil
}

func (mc *Multicore) work(ctx context.Context, spec RunSpec, id int, budget *atomic.Int64, results chan<- outcome) {
	rng := rand.New(rand.NewSource(spec.Seed + uint64(id+1)*seedStride))
	for {
		if ctx.Err() != nil {
			return
		}
		if spec.MaxEval > 0 && budget.Add(-1) < 0 {
			return
		}

		prop, err := spec.Request.Proposer.Propose(ctx)
		if err != nil {
			select {
			case results <- outcome{err: fmt.Errorf("propose: %w", err), fatal: true}:
			case <-ctx.Done():
			}
			return
		}

		it, err := spec.Request.Evaluator.Evaluate(ctx, rng, prop)
		select {
		case results <- outcome{item: it, err: err}:
		case <-ctx.Done():
			return
		}
	}
}
