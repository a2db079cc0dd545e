package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/exp/rand"

	"github.com/fbergmann/pyABC/internal/model"
)

var (
	ErrNotInitialized   = errors.New("store has no run data")
	ErrNoSuchGeneration = errors.New("generation not stored")
	ErrGenerationOrder  = errors.New("populations must be appended in generation order")
)

// ComponentSpec records which distance or epsilon implementation a run
// used, together with its marshalled configuration.
type ComponentSpec struct {
	Name   string          `json:"name"`
	Config json.RawMessage `json:"config,omitempty"`
}

// SpecFor marshals v into a ComponentSpec. Unmarshallable configurations
// degrade to a name-only spec.
func SpecFor(name string, v any) ComponentSpec {
	spec := ComponentSpec{Name: name}
	if v == nil {
		return spec
	}
	if data, err := json.Marshal(v); err == nil {
		spec.Config = data
	}
	return spec
}

// InitialData describes one inference run: the observed data the run
// conditions on and the fixed pieces needed to interpret its populations.
type InitialData struct {
	RunID                string             `json:"run_id"`
	Observed             model.SummaryStats `json:"observed"`
	ModelNames           []string           `json:"model_names"`
	GroundTruthModel     int                `json:"ground_truth_model"`
	GroundTruthParameter model.Parameter    `json:"ground_truth_parameter"`
	Distance             ComponentSpec      `json:"distance"`
	Epsilon              ComponentSpec      `json:"epsilon"`
	CalibrationDraws     int                `json:"calibration_draws"`
	Meta                 map[string]string  `json:"meta,omitempty"`
	StartedAt            time.Time          `json:"started_at"`
}

// PopulationRecord is one stored generation with its diagnostics.
type PopulationRecord struct {
	T                  int              `json:"t"`
	Epsilon            float64          `json:"epsilon"`
	Particles          []model.Particle `json:"particles"`
	ModelProbabilities map[int]float64  `json:"model_probabilities"`
	Accepted           int              `json:"accepted"`
	Evaluations        int              `json:"evaluations"`
	TotalAttempts      int              `json:"total_attempts"`
	ESS                float64          `json:"ess"`
	DegenerateWeights  int              `json:"degenerate_weights"`
	CapExceeded        int              `json:"cap_exceeded"`
	CreatedAt          time.Time        `json:"created_at"`
}

// Store persists one run: its initial data and the generation sequence.
// Appends happen strictly in generation order; reads hand out copies.
type Store interface {
	Init(ctx context.Context) error
	SaveInitialData(ctx context.Context, data InitialData) error
	InitialData(ctx context.Context) (InitialData, bool, error)
	AppendPopulation(ctx context.Context, rec PopulationRecord) (bool, error)
	CurrentGeneration(ctx context.Context) (int, error)
	Population(ctx context.Context, t int) (PopulationRecord, bool, error)
	Populations(ctx context.Context) ([]PopulationRecord, error)
	ModelProbabilities(ctx context.Context, t int) (map[int]float64, error)
	ModelsAlive(ctx context.Context, t int) (int, error)
	SampleModel(ctx context.Context, t int, rng *rand.Rand) (int, error)
	WeightedParticles(ctx context.Context, t, m int) ([]model.Parameter, []float64, error)
	WeightedDistances(ctx context.Context, t int) ([]float64, []float64, error)
	TotalSimulations(ctx context.Context) (int, error)
	FinishedAt(ctx context.Context) (time.Time, bool, error)
	Done(ctx context.Context) error
}
