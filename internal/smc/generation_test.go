package smc

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"golang.org/x/exp/rand"

	"github.com/fbergmann/pyABC/internal/dist"
	"github.com/fbergmann/pyABC/internal/kernel"
	"github.com/fbergmann/pyABC/internal/model"
	"github.com/fbergmann/pyABC/internal/prior"
	"github.com/fbergmann/pyABC/internal/sampler"
	"github.com/fbergmann/pyABC/internal/sim"
	"github.com/fbergmann/pyABC/internal/storage"
)

func newTestEvaluator(t *testing.T, gen int, epsilon float64, sims, maxAttempts int) *generationEvaluator {
	t.Helper()
	mk, err := kernel.NewModelKernel(1, 1)
	if err != nil {
		t.Fatalf("expected model kernel construction to succeed, got %v", err)
	}
	return &generationEvaluator{
		t:               gen,
		epsilon:         epsilon,
		simsPerParticle: sims,
		maxAttempts:     maxAttempts,
		observed:        model.SummaryStats{"y": 0},
		models:          []sim.Model{identityModel("identity")},
		distance:        dist.Euclidean{},
		priors:          []prior.Distribution{uniformPrior(-10, 10)},
		modelPrior:      prior.UniformModelPrior(1),
		modelKernel:     mk,
		logger:          quietLogger(),
	}
}

func proposal(x float64) sampler.Proposal {
	return sampler.Proposal{Model: 0, Parameter: model.NewParameter(map[string]float64{"x": x})}
}

func TestEvaluatorAcceptsWithinThreshold(t *testing.T) {
	ev := newTestEvaluator(t, 0, 2, 3, 10)
	rng := rand.New(rand.NewSource(1))

	it, err := ev.Evaluate(context.Background(), rng, proposal(1))
	if err != nil {
		t.Fatalf("expected evaluation to succeed, got %v", err)
	}
	if it.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", it.Attempts)
	}
	if len(it.Particle.Distances) != 3 {
		t.Fatalf("expected all 3 simulations accepted, got %d", len(it.Particle.Distances))
	}
	if it.Particle.Weight != 1 {
		t.Fatalf("expected full first-generation weight, got %v", it.Particle.Weight)
	}

	it, err = ev.Evaluate(context.Background(), rng, proposal(5))
	if err != nil {
		t.Fatalf("expected evaluation to succeed, got %v", err)
	}
	if it.Particle.Valid() {
		t.Fatalf("expected a proposal outside the threshold to be rejected")
	}
	if it.Attempts != 3 {
		t.Fatalf("expected the full simulation budget to be spent, got %d", it.Attempts)
	}
}

func TestEvaluatorCapAbandonsWholesale(t *testing.T) {
	ev := newTestEvaluator(t, 0, 100, 5, 2)
	rng := rand.New(rand.NewSource(1))

	it, err := ev.Evaluate(context.Background(), rng, proposal(1))
	if err != nil {
		t.Fatalf("expected evaluation to succeed, got %v", err)
	}
	if it.Attempts != 2 {
		t.Fatalf("expected the cap to stop after 2 attempts, got %d", it.Attempts)
	}
	if it.Particle.Valid() {
		t.Fatalf("expected a capped proposal to be abandoned wholesale")
	}
	if got := ev.capExceeded.Load(); got != 1 {
		t.Fatalf("expected one capped proposal, got %d", got)
	}
}

func TestEvaluatorPropagatesSimulationErrors(t *testing.T) {
	ev := newTestEvaluator(t, 0, 2, 3, 10)
	ev.models = []sim.Model{sim.FuncModel{ModelName: "broken", Fn: func(_ context.Context, _ *rand.Rand, _ model.Parameter) (model.SummaryStats, error) {
		return nil, errors.New("solver diverged")
	}}}
	rng := rand.New(rand.NewSource(1))

	it, err := ev.Evaluate(context.Background(), rng, proposal(1))
	if err == nil || !strings.Contains(err.Error(), "solver diverged") {
		t.Fatalf("expected the simulation error, got %v", err)
	}
	if it.Attempts != 1 {
		t.Fatalf("expected the failed simulation to count one attempt, got %d", it.Attempts)
	}
}

func TestWeightFirstGenerationIsAcceptedFraction(t *testing.T) {
	ev := newTestEvaluator(t, 0, 2, 4, 10)
	if got := ev.weight(proposal(1), 2); got != 0.5 {
		t.Fatalf("expected weight 0.5 for 2 of 4 accepted, got %v", got)
	}
}

func TestWeightLaterGeneration(t *testing.T) {
	ev := newTestEvaluator(t, 1, 2, 2, 10)

	tr := kernel.NewMultivariateNormal()
	params := []model.Parameter{
		model.NewParameter(map[string]float64{"x": 0}),
		model.NewParameter(map[string]float64{"x": 2}),
	}
	if err := tr.Fit(params, []float64{0.5, 0.5}); err != nil {
		t.Fatalf("expected transition fit to succeed, got %v", err)
	}
	ev.transitions = []kernel.Transition{tr}
	ev.prevProbs = map[int]float64{0: 1}

	prop := proposal(1)
	// Uniform(-10, 10) has density 1/20; the model kernel and the previous
	// model marginal are both the single-model identity.
	want := (1.0 / 20) * 0.5 / tr.PDF(prop.Parameter)
	got := ev.weight(prop, 1)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("expected weight %v, got %v", want, got)
	}
}

func TestWeightDegeneratesToZero(t *testing.T) {
	ev := newTestEvaluator(t, 1, 2, 2, 10)
	ev.transitions = []kernel.Transition{nil}
	ev.prevProbs = map[int]float64{0: 1}

	if got := ev.weight(proposal(1), 1); got != 0 {
		t.Fatalf("expected a vanished density to give weight 0, got %v", got)
	}
	if got := ev.degenerateWeights.Load(); got != 1 {
		t.Fatalf("expected one degenerate weight, got %d", got)
	}
}

func TestPriorProposerStaysInSupport(t *testing.T) {
	p := &priorProposer{
		rng:        rand.New(rand.NewSource(2)),
		modelPrior: prior.UniformModelPrior(1),
		priors:     []prior.Distribution{uniformPrior(-1, 1)},
	}
	for i := 0; i < 100; i++ {
		prop, err := p.Propose(context.Background())
		if err != nil {
			t.Fatalf("expected proposal %d to succeed, got %v", i, err)
		}
		if prop.Model != 0 {
			t.Fatalf("expected model 0, got %d", prop.Model)
		}
		x, ok := prop.Parameter.Get("x")
		if !ok || x < -1 || x > 1 {
			t.Fatalf("expected x within the prior support, got %v", x)
		}
	}
}

func TestPopulationProposerSkipsDeadModel(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("expected store init to succeed, got %v", err)
	}
	if err := store.SaveInitialData(ctx, storage.InitialData{RunID: "r", Observed: model.SummaryStats{"y": 0}}); err != nil {
		t.Fatalf("expected initial data save to succeed, got %v", err)
	}

	particles := []model.Particle{
		{Model: 0, Parameter: model.NewParameter(map[string]float64{"x": 0}), Weight: 0.3, Distances: []float64{0.1}},
		{Model: 0, Parameter: model.NewParameter(map[string]float64{"x": 2}), Weight: 0.3, Distances: []float64{0.2}},
		{Model: 1, Parameter: model.NewParameter(map[string]float64{"x": 5}), Weight: 0.4, Distances: []float64{0.3}},
	}
	if _, err := store.AppendPopulation(ctx, storage.PopulationRecord{T: 0, Epsilon: 1, Particles: particles}); err != nil {
		t.Fatalf("expected population append to succeed, got %v", err)
	}

	tr := kernel.NewMultivariateNormal()
	params, ws, err := store.WeightedParticles(ctx, 0, 0)
	if err != nil {
		t.Fatalf("expected weighted particles, got %v", err)
	}
	if err := tr.Fit(params, ws); err != nil {
		t.Fatalf("expected transition fit to succeed, got %v", err)
	}

	mk, err := kernel.NewModelKernel(2, 1)
	if err != nil {
		t.Fatalf("expected model kernel construction to succeed, got %v", err)
	}
	p := &populationProposer{
		rng:         rand.New(rand.NewSource(3)),
		t:           1,
		store:       store,
		modelPrior:  prior.UniformModelPrior(2),
		priors:      []prior.Distribution{uniformPrior(-10, 10), uniformPrior(-10, 10)},
		modelKernel: mk,
		transitions: []kernel.Transition{tr, nil},
	}
	for i := 0; i < 50; i++ {
		prop, err := p.Propose(ctx)
		if err != nil {
			t.Fatalf("expected proposal %d to succeed, got %v", i, err)
		}
		if prop.Model != 0 {
			t.Fatalf("expected only the surviving model to be proposed, got %d", prop.Model)
		}
	}
}

func TestPopulationProposerRetryLimit(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("expected store init to succeed, got %v", err)
	}
	if err := store.SaveInitialData(ctx, storage.InitialData{RunID: "r", Observed: model.SummaryStats{"y": 0}}); err != nil {
		t.Fatalf("expected initial data save to succeed, got %v", err)
	}
	particles := []model.Particle{
		{Model: 0, Parameter: model.NewParameter(map[string]float64{"x": 0}), Weight: 1, Distances: []float64{0.1}},
	}
	if _, err := store.AppendPopulation(ctx, storage.PopulationRecord{T: 0, Epsilon: 1, Particles: particles}); err != nil {
		t.Fatalf("expected population append to succeed, got %v", err)
	}

	mk, err := kernel.NewModelKernel(1, 1)
	if err != nil {
		t.Fatalf("expected model kernel construction to succeed, got %v", err)
	}
	p := &populationProposer{
		rng:         rand.New(rand.NewSource(4)),
		t:           1,
		store:       store,
		modelPrior:  prior.UniformModelPrior(1),
		priors:      []prior.Distribution{uniformPrior(-10, 10)},
		modelKernel: mk,
		transitions: []kernel.Transition{nil},
	}
	_, err = p.Propose(ctx)
	if err == nil || !strings.Contains(err.Error(), "no proposal") {
		t.Fatalf("expected the retry limit error, got %v", err)
	}
}
