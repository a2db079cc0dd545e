package smc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/exp/rand"

	"github.com/fbergmann/pyABC/internal/kernel"
	"github.com/fbergmann/pyABC/internal/model"
	"github.com/fbergmann/pyABC/internal/sampler"
	"github.com/fbergmann/pyABC/internal/stats"
	"github.com/fbergmann/pyABC/internal/storage"
)

// Engine drives one inference run: calibrate against observed data, then
// evolve weighted particle populations through a tightening threshold
// schedule until a stop condition fires.
type Engine struct {
	cfg    Config
	store  storage.Store
	logger *slog.Logger
	smp    *sampler.Sampler

	mu          sync.Mutex
	rng         *rand.Rand
	observed    model.SummaryStats
	priorSample []model.SummaryStats
	initialized bool
}

// New validates the configuration, fills its defaults and builds an
// engine around it.
func New(cfg Config) (*Engine, error) {
	cfg, err := validate(cfg)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:    cfg,
		store:  cfg.Store,
		logger: cfg.Logger.With(slog.String("run_id", cfg.RunID)),
		smp:    cfg.Sampler,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

func (e *Engine) RunID() string { return e.cfg.RunID }

func (e *Engine) Store() storage.Store { return e.store }

// InitOpts carries optional ground truth and free-form metadata recorded
// with the run.
type InitOpts struct {
	// GroundTruthModel is the index of the true model when known, or -1.
	GroundTruthModel     int
	GroundTruthParameter model.Parameter
	Meta                 map[string]string
}

// Initialize starts a fresh run against the observed summary statistics:
// it resets the store, draws the calibration sample from the prior,
// initializes the distance and the threshold schedule from it and
// persists the run description.
func (e *Engine) Initialize(ctx context.Context, observed model.SummaryStats, opts InitOpts) error {
	if len(observed) == 0 {
		return fmt.Errorf("observed summary statistics are required")
	}
	if err := e.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	sample, err := e.PriorSample(ctx)
	if err != nil {
		return fmt.Errorf("draw calibration sample: %w", err)
	}
	if err := e.cfg.Distance.Initialize(sample); err != nil {
		return fmt.Errorf("initialize distance: %w", err)
	}

	distances := make([]float64, len(sample))
	weights := make([]float64, len(sample))
	for i, s := range sample {
		d, err := e.cfg.Distance.Compare(s, observed)
		if err != nil {
			return fmt.Errorf("calibration distance %d: %w", i, err)
		}
		distances[i] = d
		weights[i] = 1
	}
	if err := e.cfg.Epsilon.Initialize(distances, weights); err != nil {
		return fmt.Errorf("initialize threshold schedule: %w", err)
	}

	names := make([]string, len(e.cfg.Models))
	for i, m := range e.cfg.Models {
		names[i] = m.Name()
	}
	obs := make(model.SummaryStats, len(observed))
	for k, v := range observed {
		obs[k] = v
	}
	data := storage.InitialData{
		RunID:                e.cfg.RunID,
		Observed:             obs,
		ModelNames:           names,
		GroundTruthModel:     opts.GroundTruthModel,
		GroundTruthParameter: opts.GroundTruthParameter,
		Distance:             storage.SpecFor(e.cfg.Distance.Name(), e.cfg.Distance),
		Epsilon:              storage.SpecFor(e.cfg.Epsilon.Name(), e.cfg.Epsilon),
		CalibrationDraws:     len(sample),
		Meta:                 opts.Meta,
		StartedAt:            time.Now().UTC(),
	}
	if err := e.store.SaveInitialData(ctx, data); err != nil {
		return fmt.Errorf("save initial data: %w", err)
	}
	e.smp.SetAnalysisID(e.cfg.RunID)

	e.mu.Lock()
	e.observed = obs
	e.initialized = true
	e.mu.Unlock()

	e.logger.Info("run initialized",
		slog.Int("models", len(e.cfg.Models)),
		slog.Int("calibration_draws", len(sample)),
		slog.String("distance", e.cfg.Distance.Name()),
		slog.String("epsilon", e.cfg.Epsilon.Name()))
	return nil
}

// PriorSample returns the calibration sample of prior-predictive summary
// statistics, drawing it on first use. Repeated calls return the same
// slice until ResetPriorSample.
func (e *Engine) PriorSample(ctx context.Context) ([]model.SummaryStats, error) {
	e.mu.Lock()
	cached := e.priorSample
	e.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	req := sampler.Request{
		Proposer:    &priorProposer{rng: e.rng, modelPrior: e.cfg.ModelPrior, priors: e.cfg.Priors},
		Evaluator:   &calibrationEvaluator{models: e.cfg.Models, transform: e.cfg.Transform},
		AllAccepted: true,
	}
	sample, err := e.smp.SampleUntilNAccepted(ctx, e.cfg.CalibrationDraws, req)
	if err != nil {
		return nil, err
	}

	drawn := make([]model.SummaryStats, 0, sample.NAccepted())
	for _, it := range sample.Items {
		if len(it.Particle.SumStats) > 0 {
			drawn = append(drawn, it.Particle.SumStats[0])
		}
	}

	e.mu.Lock()
	e.priorSample = drawn
	e.mu.Unlock()
	return drawn, nil
}

// ResetPriorSample discards the cached calibration sample so the next
// PriorSample draws a fresh one.
func (e *Engine) ResetPriorSample() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.priorSample = nil
}

// Run evolves one new population per entry of attemptsSchedule on top of
// whatever the store already holds; entry i is the number of simulations
// every proposal of the i-th new generation gets against that generation's
// threshold. It stops early when the threshold reaches minEpsilon, when
// the evaluation budget degrades a population, or when model competition
// leaves at most one model alive.
func (e *Engine) Run(ctx context.Context, minEpsilon float64, attemptsSchedule []int) (*RunReport, error) {
	if len(attemptsSchedule) == 0 {
		return nil, fmt.Errorf("attempts schedule must not be empty")
	}
	for i, budget := range attemptsSchedule {
		if budget <= 0 {
			return nil, fmt.Errorf("attempts schedule entry %d must be > 0, got %d", i, budget)
		}
	}
	if err := e.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	current, err := e.store.CurrentGeneration(ctx)
	if err != nil {
		return nil, err
	}
	start := current + 1

	report := &RunReport{RunID: e.cfg.RunID, MinEpsilon: minEpsilon}
	stop := ""
	for t := start; t < start+len(attemptsSchedule); t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		epsT, err := e.cfg.Epsilon.Value(ctx, t, e.store)
		if err != nil {
			return nil, fmt.Errorf("threshold for generation %d: %w", t, err)
		}
		budget := attemptsSchedule[t-start]
		e.logger.Info("starting generation",
			slog.Int("t", t),
			slog.Float64("epsilon", epsT),
			slog.Int("attempts_budget", budget))

		gen, nonEmpty, err := e.runGeneration(ctx, t, epsT, budget)
		if err != nil {
			return nil, err
		}
		report.Generations = append(report.Generations, gen)

		if !gen.Complete {
			stop = StopMaxEvaluations
			break
		}
		if !nonEmpty {
			stop = StopEmptyPopulation
			break
		}
		if epsT <= minEpsilon {
			stop = StopMinEpsilon
			break
		}
		if len(e.cfg.Models) > 1 && !e.cfg.ContinueOnSingleModel {
			alive, err := e.store.ModelsAlive(ctx, t)
			if err != nil {
				return nil, err
			}
			if alive <= 1 {
				stop = StopSingleModel
				break
			}
		}
	}
	if stop == "" {
		stop = StopMaxGenerations
	}
	report.StopReason = stop

	if err := e.store.Done(ctx); err != nil {
		return nil, err
	}
	total, err := e.store.TotalSimulations(ctx)
	if err != nil {
		return nil, err
	}
	report.TotalSimulations = total

	e.logger.Info("run finished",
		slog.String("stop_reason", stop),
		slog.Int("generations", len(report.Generations)),
		slog.Int("total_simulations", total))
	return report, nil
}

func (e *Engine) runGeneration(ctx context.Context, t int, epsT float64, budget int) (GenerationReport, bool, error) {
	proposer, evaluator, err := e.buildRound(ctx, t, epsT, budget)
	if err != nil {
		return GenerationReport{}, false, err
	}

	req := sampler.Request{Proposer: proposer, Evaluator: evaluator, Acceptor: acceptValid{}}
	sample, err := e.smp.SampleUntilNAccepted(ctx, e.cfg.PopulationSize, req)
	if err != nil {
		return GenerationReport{}, false, fmt.Errorf("generation %d: %w", t, err)
	}

	// Zero-weight particles count toward the reported acceptance but
	// carry no posterior mass, so they stay out of the stored population.
	particles := make([]model.Particle, 0, sample.NAccepted())
	for _, p := range sample.Particles() {
		if p.Weight > 0 {
			particles = append(particles, p)
		}
	}
	weights := make([]float64, len(particles))
	for i, p := range particles {
		weights[i] = p.Weight
	}

	rec := storage.PopulationRecord{
		T:                 t,
		Epsilon:           epsT,
		Particles:         particles,
		Accepted:          sample.NAccepted(),
		Evaluations:       sample.Evaluations,
		TotalAttempts:     sample.TotalAttempts,
		ESS:               stats.EffectiveSampleSize(weights),
		DegenerateWeights: int(evaluator.degenerateWeights.Load()),
		CapExceeded:       int(evaluator.capExceeded.Load()),
		CreatedAt:         time.Now().UTC(),
	}
	nonEmpty, err := e.store.AppendPopulation(ctx, rec)
	if err != nil {
		return GenerationReport{}, false, fmt.Errorf("append generation %d: %w", t, err)
	}

	gen := GenerationReport{
		T:                 t,
		Epsilon:           epsT,
		Accepted:          rec.Accepted,
		Evaluations:       rec.Evaluations,
		TotalAttempts:     rec.TotalAttempts,
		ESS:               rec.ESS,
		DegenerateWeights: rec.DegenerateWeights,
		CapExceeded:       rec.CapExceeded,
		Complete:          sample.Ok,
	}
	if rec.Evaluations > 0 {
		gen.AcceptanceRate = float64(rec.Accepted) / float64(rec.Evaluations)
	}

	e.logger.Info("generation finished",
		slog.Int("t", t),
		slog.Float64("epsilon", epsT),
		slog.Int("accepted", gen.Accepted),
		slog.Int("evaluations", gen.Evaluations),
		slog.Float64("acceptance_rate", gen.AcceptanceRate),
		slog.Float64("ess", gen.ESS))
	return gen, nonEmpty, nil
}

// buildRound assembles the proposer and evaluator for generation t. For
// t > 0 a fresh transition is fitted per surviving model; extinct models
// keep a nil transition and are skipped by the proposer.
func (e *Engine) buildRound(ctx context.Context, t int, epsT float64, budget int) (sampler.Proposer, *generationEvaluator, error) {
	e.mu.Lock()
	observed := e.observed
	e.mu.Unlock()

	evaluator := &generationEvaluator{
		t:               t,
		epsilon:         epsT,
		simsPerParticle: budget,
		maxAttempts:     e.cfg.MaxAttempts,
		observed:        observed,
		models:          e.cfg.Models,
		transform:       e.cfg.Transform,
		distance:        e.cfg.Distance,
		priors:          e.cfg.Priors,
		modelPrior:      e.cfg.ModelPrior,
		modelKernel:     e.cfg.ModelKernel,
		logger:          e.logger,
	}
	if t == 0 {
		proposer := &priorProposer{rng: e.rng, modelPrior: e.cfg.ModelPrior, priors: e.cfg.Priors}
		return proposer, evaluator, nil
	}

	probs, err := e.store.ModelProbabilities(ctx, t-1)
	if err != nil {
		return nil, nil, err
	}
	transitions := make([]kernel.Transition, len(e.cfg.Models))
	for m := range e.cfg.Models {
		if probs[m] <= 0 {
			continue
		}
		params, ws, err := e.store.WeightedParticles(ctx, t-1, m)
		if err != nil {
			return nil, nil, err
		}
		if len(params) == 0 {
			continue
		}
		tr := e.cfg.Transitions[m]()
		if err := tr.Fit(params, ws); err != nil {
			return nil, nil, fmt.Errorf("fit transition for model %d at generation %d: %w", m, t, err)
		}
		e.logger.Debug("fitted transition",
			slog.Int("t", t),
			slog.Int("model", m),
			slog.String("kernel", tr.Name()),
			slog.Int("particles", len(params)))
		transitions[m] = tr
	}
	evaluator.transitions = transitions
	evaluator.prevProbs = probs

	proposer := &populationProposer{
		rng:         e.rng,
		t:           t,
		store:       e.store,
		modelPrior:  e.cfg.ModelPrior,
		priors:      e.cfg.Priors,
		modelKernel: e.cfg.ModelKernel,
		transitions: transitions,
	}
	return proposer, evaluator, nil
}

// ensureInitialized adopts a run already present in the store when the
// engine itself was not initialized in this process.
func (e *Engine) ensureInitialized(ctx context.Context) error {
	e.mu.Lock()
	ok := e.initialized
	e.mu.Unlock()
	if ok {
		return nil
	}

	data, found, err := e.store.InitialData(ctx)
	if err != nil {
		return err
	}
	if !found {
		return storage.ErrNotInitialized
	}
	e.smp.SetAnalysisID(data.RunID)

	e.mu.Lock()
	e.cfg.RunID = data.RunID
	e.observed = data.Observed
	e.initialized = true
	e.mu.Unlock()
	return nil
}
