package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/exp/rand"

	"github.com/fbergmann/pyABC/internal/model"
)

// seedStride separates the random streams of successive sampling rounds
// and of workers within a round.
const seedStride = 0x9e3779b97f4a7c15

// Proposal is a model index with a parameter vector to evaluate.
type Proposal struct {
	Model     int
	Parameter model.Parameter
}

// Proposer draws proposals. Implementations synchronize internally, so
// concurrent workers may share one Proposer.
type Proposer interface {
	Propose(ctx context.Context) (Proposal, error)
}

// Evaluator simulates a proposal into an Item. The rng belongs to the
// calling worker. A returned error marks this evaluation as failed; its
// Attempts are still counted.
type Evaluator interface {
	Evaluate(ctx context.Context, rng *rand.Rand, prop Proposal) (model.Item, error)
}

// Acceptor decides whether an evaluated item enters the sample.
type Acceptor interface {
	Accept(it model.Item) bool
}

// Request bundles the per-generation collaborators for one sampling round.
// AllAccepted short-circuits the acceptance test: the first N evaluations
// all enter the sample, as when calibrating from the prior.
type Request struct {
	Proposer    Proposer
	Evaluator   Evaluator
	Acceptor    Acceptor
	AllAccepted bool
}

// RunSpec is the full, immutable instruction a strategy executes.
type RunSpec struct {
	N              int
	Request        Request
	MaxEval        int
	Seed           uint64
	RecordRejected bool
	Logger         *slog.Logger
	Progress       func(accepted, evaluations int)
}

// Strategy executes one sampling round. Implementations fill in the
// sample's Evaluations and TotalAttempts counters and clear Ok when they
// stop early on an exhausted evaluation budget.
type Strategy interface {
	Name() string
	Sample(ctx context.Context, spec RunSpec) (*model.Sample, error)
}

// Sampler wraps a Strategy with the invariants every strategy must honor:
// the returned sample holds exactly N accepted particles unless degraded,
// carries no preliminary particles, and has normalized weights. Keeping
// the checks here means a strategy cannot opt out of them.
type Sampler struct {
	MaxEval        int
	ShowProgress   bool
	RecordRejected bool
	Seed           uint64
	Logger         *slog.Logger

	strategy      Strategy
	analysisID    string
	calls         uint64
	nrEvaluations int
}

func New(strategy Strategy) *Sampler {
	return &Sampler{strategy: strategy}
}

func NewSingleCore() *Sampler { return New(&SingleCore{}) }

func NewMulticore(workers int) *Sampler { return New(&Multicore{Workers: workers}) }

func (s *Sampler) Name() string { return s.strategy.Name() }

// SetAnalysisID tags this sampler's log output with the run it serves.
func (s *Sampler) SetAnalysisID(id string) { s.analysisID = id }

func (s *Sampler) AnalysisID() string { return s.analysisID }

// NrEvaluations reports how many proposals the most recent round evaluated.
func (s *Sampler) NrEvaluations() int { return s.nrEvaluations }

// Stop releases resources of strategies that hold any.
func (s *Sampler) Stop() {
	if stopper, ok := s.strategy.(interface{ Stop() }); ok {
		stopper.Stop()
	}
}

// SampleUntilNAccepted runs the strategy until n proposals were accepted,
// then validates and normalizes the result.
func (s *Sampler) SampleUntilNAccepted(ctx context.Context, n int, req Request) (*model.Sample, error) {
	if n <= 0 {
		return nil, fmt.Errorf("population size must be positive, got %d", n)
	}
	if req.Proposer == nil || req.Evaluator == nil {
		return nil, fmt.Errorf("sampling request needs a proposer and an evaluator")
	}
	if req.Acceptor == nil && !req.AllAccepted {
		return nil, fmt.Errorf("sampling request needs an acceptor")
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("sampler", s.strategy.Name()))
	if s.analysisID != "" {
		logger = logger.With(slog.String("analysis_id", s.analysisID))
	}

	if s.Seed == 0 {
		s.Seed = uint64(time.Now().UnixNano())
	}
	seed := s.Seed + s.calls*seedStride
	s.calls++

	spec := RunSpec{
		N:              n,
		Request:        req,
		MaxEval:        s.MaxEval,
		Seed:           seed,
		RecordRejected: s.RecordRejected,
		Logger:         logger,
	}

	var printer *progressPrinter
	if s.ShowProgress {
		printer = newProgressPrinter(os.Stderr, n)
		spec.Progress = printer.update
	}

	sample, err := s.strategy.Sample(ctx, spec)
	if printer != nil {
		printer.finish()
	}
	if err != nil {
		return nil, err
	}

	s.nrEvaluations = sample.Evaluations

	if sample.Ok && sample.NAccepted() != n {
		return nil, fmt.Errorf("sampler %s returned %d accepted particles, want %d", s.strategy.Name(), sample.NAccepted(), n)
	}
	for _, it := range sample.Items {
		if it.Particle.Preliminary {
			return nil, fmt.Errorf("sampler %s returned a preliminary particle", s.strategy.Name())
		}
	}
	for _, it := range sample.RejectedItems {
		if it.Particle.Preliminary {
			return nil, fmt.Errorf("sampler %s recorded a preliminary particle", s.strategy.Name())
		}
	}
	if err := sample.NormalizeWeights(); err != nil {
		return nil, fmt.Errorf("normalize sample weights: %w", err)
	}
	return sample, nil
}
