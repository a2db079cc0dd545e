package smc

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fbergmann/pyABC/internal/dist"
	"github.com/fbergmann/pyABC/internal/eps"
	"github.com/fbergmann/pyABC/internal/kernel"
	"github.com/fbergmann/pyABC/internal/prior"
	"github.com/fbergmann/pyABC/internal/sampler"
	"github.com/fbergmann/pyABC/internal/sim"
	"github.com/fbergmann/pyABC/internal/storage"
)

const (
	defaultMaxAttempts = 500
	defaultModelStay   = 0.7
)

// Config assembles an inference run. Models and Priors align by index and
// are the only required pieces; everything else falls back to a sensible
// default in New.
type Config struct {
	Models []sim.Model
	Priors []prior.Distribution

	// ModelPrior defaults to the uniform distribution over Models.
	ModelPrior *prior.ModelPrior

	// Transitions holds one factory per model. A nil slice or a nil entry
	// falls back to the multivariate normal transition.
	Transitions []kernel.Factory

	// ModelKernel defaults to staying on the source model with
	// probability 0.7.
	ModelKernel *kernel.ModelKernel

	Distance dist.Distance
	Epsilon  eps.Epsilon

	// Transform post-processes simulated summary statistics.
	Transform sim.Transform

	PopulationSize int

	// MaxAttempts caps the simulations spent on a single proposal. A
	// proposal hitting the cap is abandoned. Defaults to 500.
	MaxAttempts int

	// CalibrationDraws is the size of the prior sample used to calibrate
	// adaptive distances and the first threshold. Defaults to
	// PopulationSize.
	CalibrationDraws int

	// ContinueOnSingleModel keeps a multi-model run going after all but
	// one model died out.
	ContinueOnSingleModel bool

	Sampler *sampler.Sampler
	Store   storage.Store
	Logger  *slog.Logger

	// Seed fixes all random streams of the run. Zero picks a time-based
	// seed.
	Seed uint64

	// RunID defaults to a fresh UUID.
	RunID string

	RecordRejected bool
}

func validate(cfg Config) (Config, error) {
	if len(cfg.Models) == 0 {
		return cfg, fmt.Errorf("at least one model is required")
	}
	if len(cfg.Priors) != len(cfg.Models) {
		return cfg, fmt.Errorf("got %d priors for %d models", len(cfg.Priors), len(cfg.Models))
	}
	for i, m := range cfg.Models {
		if m == nil {
			return cfg, fmt.Errorf("model %d is nil", i)
		}
	}
	if cfg.Transitions == nil {
		cfg.Transitions = make([]kernel.Factory, len(cfg.Models))
	}
	if len(cfg.Transitions) != len(cfg.Models) {
		return cfg, fmt.Errorf("got %d transition factories for %d models", len(cfg.Transitions), len(cfg.Models))
	}
	for i, f := range cfg.Transitions {
		if f == nil {
			cfg.Transitions[i] = kernel.MultivariateNormalFactory()
		}
	}
	if cfg.ModelPrior == nil {
		cfg.ModelPrior = prior.UniformModelPrior(len(cfg.Models))
	}
	if cfg.ModelPrior.Len() != len(cfg.Models) {
		return cfg, fmt.Errorf("model prior covers %d models, want %d", cfg.ModelPrior.Len(), len(cfg.Models))
	}
	if cfg.ModelKernel == nil {
		mk, err := kernel.NewModelKernel(len(cfg.Models), defaultModelStay)
		if err != nil {
			return cfg, err
		}
		cfg.ModelKernel = mk
	}
	if cfg.ModelKernel.Len() != len(cfg.Models) {
		return cfg, fmt.Errorf("model kernel covers %d models, want %d", cfg.ModelKernel.Len(), len(cfg.Models))
	}
	if cfg.Distance == nil {
		cfg.Distance = dist.Euclidean{}
	}
	if cfg.Epsilon == nil {
		cfg.Epsilon = eps.NewMedian()
	}
	if cfg.PopulationSize <= 0 {
		return cfg, fmt.Errorf("population size must be > 0")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.CalibrationDraws <= 0 {
		cfg.CalibrationDraws = cfg.PopulationSize
	}
	if cfg.Store == nil {
		cfg.Store = storage.NewMemoryStore()
	}
	if cfg.Sampler == nil {
		cfg.Sampler = sampler.NewSingleCore()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}
	if cfg.Sampler.Seed == 0 {
		cfg.Sampler.Seed = cfg.Seed + 1
	}
	if cfg.Sampler.Logger == nil {
		cfg.Sampler.Logger = cfg.Logger
	}
	cfg.Sampler.RecordRejected = cfg.Sampler.RecordRejected || cfg.RecordRejected
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	return cfg, nil
}
