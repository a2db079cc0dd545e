package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/fbergmann/pyABC/internal/model"
)

// MemoryStore keeps a run in process memory. It is safe for concurrent
// use; sampling workers read it while the engine appends between
// generations.
type MemoryStore struct {
	mu         sync.RWMutex
	initial    *InitialData
	pops       []PopulationRecord
	finishedAt time.Time
	finished   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Init resets the store to an empty run.
func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initial = nil
	s.pops = nil
	s.finished = false
	s.finishedAt = time.Time{}
	return nil
}

func (s *MemoryStore) SaveInitialData(_ context.Context, data InitialData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initial != nil {
		return fmt.Errorf("run %s already has initial data", s.initial.RunID)
	}
	copied := data
	copied.Observed = copyStats(data.Observed)
	copied.ModelNames = append([]string(nil), data.ModelNames...)
	copied.Meta = copyMeta(data.Meta)
	s.initial = &copied
	return nil
}

func (s *MemoryStore) InitialData(_ context.Context) (InitialData, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.initial == nil {
		return InitialData{}, false, nil
	}
	copied := *s.initial
	copied.Observed = copyStats(s.initial.Observed)
	copied.ModelNames = append([]string(nil), s.initial.ModelNames...)
	copied.Meta = copyMeta(s.initial.Meta)
	return copied, true, nil
}

// AppendPopulation stores the next generation and reports whether it holds
// any particles. Appending reopens a finished run.
func (s *MemoryStore) AppendPopulation(_ context.Context, rec PopulationRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initial == nil {
		return false, ErrNotInitialized
	}
	if rec.T != len(s.pops) {
		return false, fmt.Errorf("%w: got t=%d, want t=%d", ErrGenerationOrder, rec.T, len(s.pops))
	}

	copied := rec
	copied.Particles = append([]model.Particle(nil), rec.Particles...)
	if rec.ModelProbabilities == nil {
		copied.ModelProbabilities = model.Population{Particles: copied.Particles}.ModelProbabilities()
	} else {
		copied.ModelProbabilities = copyProbs(rec.ModelProbabilities)
	}
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}

	s.pops = append(s.pops, copied)
	s.finished = false
	return len(copied.Particles) > 0, nil
}

func (s *MemoryStore) CurrentGeneration(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.pops) - 1, nil
}

func (s *MemoryStore) Population(_ context.Context, t int) (PopulationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t < 0 || t >= len(s.pops) {
		return PopulationRecord{}, false, nil
	}
	return copyRecord(s.pops[t]), true, nil
}

func (s *MemoryStore) Populations(_ context.Context) ([]PopulationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]PopulationRecord, len(s.pops))
	for i, rec := range s.pops {
		out[i] = copyRecord(rec)
	}
	return out, nil
}

func (s *MemoryStore) ModelProbabilities(_ context.Context, t int) (map[int]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t < 0 || t >= len(s.pops) {
		return nil, fmt.Errorf("%w: t=%d", ErrNoSuchGeneration, t)
	}
	return copyProbs(s.pops[t].ModelProbabilities), nil
}

func (s *MemoryStore) ModelsAlive(_ context.Context, t int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t < 0 || t >= len(s.pops) {
		return 0, fmt.Errorf("%w: t=%d", ErrNoSuchGeneration, t)
	}
	alive := 0
	for _, p := range s.pops[t].ModelProbabilities {
		if p > 0 {
			alive++
		}
	}
	return alive, nil
}

// SampleModel draws a model index from generation t's model distribution.
func (s *MemoryStore) SampleModel(_ context.Context, t int, rng *rand.Rand) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t < 0 || t >= len(s.pops) {
		return 0, fmt.Errorf("%w: t=%d", ErrNoSuchGeneration, t)
	}
	probs := s.pops[t].ModelProbabilities

	maxModel := -1
	total := 0.0
	for m, p := range probs {
		if m > maxModel {
			maxModel = m
		}
		total += p
	}
	if maxModel < 0 || total <= 0 {
		return 0, fmt.Errorf("no surviving models in generation %d", t)
	}

	weights := make([]float64, maxModel+1)
	for m, p := range probs {
		weights[m] = p
	}
	return int(distuv.NewCategorical(weights, rng).Rand()), nil
}

// WeightedParticles returns the parameters and raw weights of generation
// t's particles belonging to model m.
func (s *MemoryStore) WeightedParticles(_ context.Context, t, m int) ([]model.Parameter, []float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t < 0 || t >= len(s.pops) {
		return nil, nil, fmt.Errorf("%w: t=%d", ErrNoSuchGeneration, t)
	}
	var params []model.Parameter
	var weights []float64
	for _, p := range s.pops[t].Particles {
		if p.Model != m {
			continue
		}
		params = append(params, p.Parameter)
		weights = append(weights, p.Weight)
	}
	return params, weights, nil
}

// WeightedDistances flattens generation t's accepted distances, pairing
// every distance with its particle's weight.
func (s *MemoryStore) WeightedDistances(_ context.Context, t int) ([]float64, []float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t < 0 || t >= len(s.pops) {
		return nil, nil, fmt.Errorf("%w: t=%d", ErrNoSuchGeneration, t)
	}
	var distances []float64
	var weights []float64
	for _, p := range s.pops[t].Particles {
		for _, d := range p.Distances {
			distances = append(distances, d)
			weights = append(weights, p.Weight)
		}
	}
	return distances, weights, nil
}

func (s *MemoryStore) TotalSimulations(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	if s.initial != nil {
		total += s.initial.CalibrationDraws
	}
	for _, rec := range s.pops {
		total += rec.TotalAttempts
	}
	return total, nil
}

func (s *MemoryStore) FinishedAt(_ context.Context) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.finishedAt, s.finished, nil
}

func (s *MemoryStore) Done(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initial == nil {
		return ErrNotInitialized
	}
	s.finished = true
	s.finishedAt = time.Now()
	return nil
}

func copyRecord(rec PopulationRecord) PopulationRecord {
	copied := rec
	copied.Particles = append([]model.Particle(nil), rec.Particles...)
	copied.ModelProbabilities = copyProbs(rec.ModelProbabilities)
	return copied
}

func copyProbs(probs map[int]float64) map[int]float64 {
	out := make(map[int]float64, len(probs))
	for m, p := range probs {
		out[m] = p
	}
	return out
}

func copyStats(stats model.SummaryStats) model.SummaryStats {
	if stats == nil {
		return nil
	}
	out := make(model.SummaryStats, len(stats))
	for k, v := range stats {
		out[k] = v
	}
	return out
}

func copyMeta(meta map[string]string) map[string]string {
	if meta == nil {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
