package pyabc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fbergmann/pyABC/internal/model"
	"github.com/fbergmann/pyABC/internal/problem"
	"github.com/fbergmann/pyABC/internal/sampler"
	"github.com/fbergmann/pyABC/internal/smc"
	"github.com/fbergmann/pyABC/internal/stats"
	"github.com/fbergmann/pyABC/internal/storage"
)

type Options struct {
	StoreKind string
	Logger    *slog.Logger
}

type Client struct {
	store  storage.Store
	logger *slog.Logger
}

type RunRequest struct {
	Problem string

	// RunID pins the run identifier. A request naming the run already held
	// by the client's store continues that run instead of starting over.
	RunID string

	Population int

	// Generations caps how many new populations this call may evolve on
	// top of whatever the store already holds.
	Generations int

	MinEpsilon float64

	// Simulations is the per-generation schedule of model simulations
	// every proposed particle gets; the last entry repeats when the run
	// has more generations than entries. Empty means one per particle.
	Simulations []int

	MaxAttempts int
	Seed        uint64

	Sampler        string
	Workers        int
	MaxEvaluations int
	ShowProgress   bool

	RecordRejected        bool
	ContinueOnSingleModel bool
}

type GenerationSummary struct {
	T              int
	Epsilon        float64
	Accepted       int
	Evaluations    int
	TotalAttempts  int
	AcceptanceRate float64
	ESS            float64
	Complete       bool
}

type RunSummary struct {
	RunID              string
	Problem            string
	StopReason         string
	TotalSimulations   int
	FinalEpsilon       float64
	ModelProbabilities map[int]float64
	Generations        []GenerationSummary
}

type PopulationSummary struct {
	T                  int
	Epsilon            float64
	Accepted           int
	Evaluations        int
	TotalAttempts      int
	ESS                float64
	ModelProbabilities map[int]float64
	CreatedAtUTC       string
}

type ParticleView struct {
	Model     int
	Parameter map[string]float64
	Weight    float64
	Distances []float64
}

type ProblemInfo struct {
	Name        string
	Description string
	Models      int
}

func New(opts Options) (*Client, error) {
	store, err := storage.NewStore(opts.StoreKind)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{store: store, logger: logger}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.Problem == "" {
		req.Problem = "gaussian-mean"
	}
	if req.Generations <= 0 {
		req.Generations = 10
	}
	if req.Sampler == "" {
		req.Sampler = "multicore"
	}
	if req.MinEpsilon < 0 {
		return RunSummary{}, errors.New("min epsilon must be >= 0")
	}
	if req.MaxEvaluations < 0 {
		return RunSummary{}, errors.New("max evaluations must be >= 0")
	}
	for i, s := range req.Simulations {
		if s <= 0 {
			return RunSummary{}, fmt.Errorf("simulations entry %d must be > 0, got %d", i, s)
		}
	}

	prob, err := problem.Resolve(req.Problem)
	if err != nil {
		return RunSummary{}, err
	}

	cfg := prob.Config
	if req.Population > 0 {
		cfg.PopulationSize = req.Population
	}
	if req.MaxAttempts > 0 {
		cfg.MaxAttempts = req.MaxAttempts
	}
	cfg.ContinueOnSingleModel = cfg.ContinueOnSingleModel || req.ContinueOnSingleModel
	cfg.RecordRejected = cfg.RecordRejected || req.RecordRejected
	cfg.Seed = req.Seed
	cfg.RunID = req.RunID
	cfg.Store = c.store
	cfg.Logger = c.logger

	var smp *sampler.Sampler
	switch req.Sampler {
	case "multicore":
		smp = sampler.NewMulticore(req.Workers)
	case "singlecore":
		smp = sampler.NewSingleCore()
	default:
		return RunSummary{}, fmt.Errorf("unsupported sampler kind: %s", req.Sampler)
	}
	smp.MaxEval = req.MaxEvaluations
	smp.ShowProgress = req.ShowProgress
	cfg.Sampler = smp

	eng, err := smc.New(cfg)
	if err != nil {
		return RunSummary{}, err
	}

	data, held, err := c.store.InitialData(ctx)
	if err != nil {
		return RunSummary{}, err
	}
	resume := held && req.RunID != "" && data.RunID == req.RunID
	if !resume {
		if held {
			c.logger.Warn("replacing stored run",
				slog.String("old_run_id", data.RunID),
				slog.String("new_run_id", eng.RunID()))
		}
		opts := smc.InitOpts{
			GroundTruthModel:     prob.GroundTruthModel,
			GroundTruthParameter: prob.GroundTruthParameter,
		}
		if err := eng.Initialize(ctx, prob.Observed, opts); err != nil {
			return RunSummary{}, err
		}
	}

	report, err := eng.Run(ctx, req.MinEpsilon, attemptsSchedule(req.Generations, req.Simulations))
	if err != nil {
		return RunSummary{}, err
	}

	summary := RunSummary{
		RunID:            report.RunID,
		Problem:          prob.Name,
		StopReason:       report.StopReason,
		TotalSimulations: report.TotalSimulations,
	}
	for _, gen := range report.Generations {
		summary.Generations = append(summary.Generations, GenerationSummary{
			T:              gen.T,
			Epsilon:        gen.Epsilon,
			Accepted:       gen.Accepted,
			Evaluations:    gen.Evaluations,
			TotalAttempts:  gen.TotalAttempts,
			AcceptanceRate: gen.AcceptanceRate,
			ESS:            gen.ESS,
			Complete:       gen.Complete,
		})
	}
	if n := len(report.Generations); n > 0 {
		last := report.Generations[n-1]
		summary.FinalEpsilon = last.Epsilon
		probs, err := c.store.ModelProbabilities(ctx, last.T)
		if err != nil {
			return RunSummary{}, err
		}
		summary.ModelProbabilities = probs
	}
	return summary, nil
}

func (c *Client) Populations(ctx context.Context) ([]PopulationSummary, error) {
	records, err := c.store.Populations(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]PopulationSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, PopulationSummary{
			T:                  rec.T,
			Epsilon:            rec.Epsilon,
			Accepted:           rec.Accepted,
			Evaluations:        rec.Evaluations,
			TotalAttempts:      rec.TotalAttempts,
			ESS:                rec.ESS,
			ModelProbabilities: rec.ModelProbabilities,
			CreatedAtUTC:       rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return out, nil
}

// Particles returns the stored population of generation t. A negative t
// selects the newest generation.
func (c *Client) Particles(ctx context.Context, t int) ([]ParticleView, error) {
	if t < 0 {
		current, err := c.store.CurrentGeneration(ctx)
		if err != nil {
			return nil, err
		}
		if current < 0 {
			return nil, errors.New("no populations stored")
		}
		t = current
	}

	rec, ok, err := c.store.Population(ctx, t)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", storage.ErrNoSuchGeneration, t)
	}

	out := make([]ParticleView, 0, len(rec.Particles))
	for _, p := range rec.Particles {
		out = append(out, particleView(p))
	}
	return out, nil
}

// Estimates returns the weighted posterior median of every parameter of
// model m in generation t. A negative t selects the newest generation.
func (c *Client) Estimates(ctx context.Context, t, m int) (map[string]float64, error) {
	if t < 0 {
		current, err := c.store.CurrentGeneration(ctx)
		if err != nil {
			return nil, err
		}
		if current < 0 {
			return nil, errors.New("no populations stored")
		}
		t = current
	}

	params, weights, err := c.store.WeightedParticles(ctx, t, m)
	if err != nil {
		return nil, err
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("model %d has no particles in generation %d", m, t)
	}

	out := make(map[string]float64, params[0].Len())
	for _, name := range params[0].Names() {
		values := make([]float64, len(params))
		for i, p := range params {
			v, _ := p.Get(name)
			values[i] = v
		}
		median, err := stats.WeightedMedian(values, weights)
		if err != nil {
			return nil, err
		}
		out[name] = median
	}
	return out, nil
}

func Problems() ([]ProblemInfo, error) {
	items, err := problem.Describe()
	if err != nil {
		return nil, err
	}

	out := make([]ProblemInfo, 0, len(items))
	for _, p := range items {
		out = append(out, ProblemInfo{
			Name:        p.Name,
			Description: p.Description,
			Models:      len(p.Config.Models),
		})
	}
	return out, nil
}

// attemptsSchedule expands the requested simulation counts to one entry
// per generation, repeating the last entry and defaulting to 1.
func attemptsSchedule(generations int, simulations []int) []int {
	schedule := make([]int, generations)
	for i := range schedule {
		switch {
		case len(simulations) == 0:
			schedule[i] = 1
		case i < len(simulations):
			schedule[i] = simulations[i]
		default:
			schedule[i] = simulations[len(simulations)-1]
		}
	}
	return schedule
}

func particleView(p model.Particle) ParticleView {
	return ParticleView{
		Model:     p.Model,
		Parameter: p.Parameter.Map(),
		Weight:    p.Weight,
		Distances: append([]float64(nil), p.Distances...),
	}
}
