package smc

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/rand"

	"github.com/fbergmann/pyABC/internal/dist"
	"github.com/fbergmann/pyABC/internal/kernel"
	"github.com/fbergmann/pyABC/internal/model"
	"github.com/fbergmann/pyABC/internal/prior"
	"github.com/fbergmann/pyABC/internal/sampler"
	"github.com/fbergmann/pyABC/internal/sim"
	"github.com/fbergmann/pyABC/internal/storage"
)

// proposalRetryLimit bounds the rejection loop that discards proposals
// landing on a dead model or outside the prior support.
const proposalRetryLimit = 10000

// priorProposer draws models and parameters straight from the priors.
type priorProposer struct {
	mu         sync.Mutex
	rng        *rand.Rand
	modelPrior *prior.ModelPrior
	priors     []prior.Distribution
}

func (p *priorProposer) Propose(_ context.Context) (sampler.Proposal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := p.modelPrior.Rand(p.rng)
	return sampler.Proposal{Model: m, Parameter: p.priors[m].Rand(p.rng)}, nil
}

// populationProposer resamples the previous generation and perturbs the
// draw through the model kernel and the fitted transition, rejecting
// proposals the prior rules out.
type populationProposer struct {
	mu          sync.Mutex
	rng         *rand.Rand
	t           int
	store       storage.Store
	modelPrior  *prior.ModelPrior
	priors      []prior.Distribution
	modelKernel *kernel.ModelKernel
	transitions []kernel.Transition
}

func (p *populationProposer) Propose(ctx context.Context) (sampler.Proposal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < proposalRetryLimit; i++ {
		if err := ctx.Err(); err != nil {
			return sampler.Proposal{}, err
		}
		source, err := p.store.SampleModel(ctx, p.t-1, p.rng)
		if err != nil {
			return sampler.Proposal{}, err
		}
		m := p.modelKernel.Rand(p.rng, source)
		if p.transitions[m] == nil {
			// Perturbed onto a model with no surviving particles.
			continue
		}
		if p.modelPrior.PMF(m) <= 0 {
			continue
		}
		theta := p.transitions[m].Rand(p.rng)
		if p.priors[m].PDF(theta) <= 0 {
			continue
		}
		return sampler.Proposal{Model: m, Parameter: theta}, nil
	}
	return sampler.Proposal{}, fmt.Errorf("no proposal with positive prior density after %d draws", proposalRetryLimit)
}

// calibrationEvaluator simulates each proposal once without testing
// acceptance; the round runs with AllAccepted set.
type calibrationEvaluator struct {
	models    []sim.Model
	transform sim.Transform
}

func (e *calibrationEvaluator) Evaluate(ctx context.Context, rng *rand.Rand, prop sampler.Proposal) (model.Item, error) {
	it := model.Item{Model: prop.Model, Attempts: 1}
	stats, err := sim.SummaryStatistics(ctx, rng, e.models[prop.Model], prop.Parameter, e.transform)
	if err != nil {
		return it, err
	}
	it.Particle = model.Particle{
		Model:     prop.Model,
		Parameter: prop.Parameter,
		Weight:    1,
		SumStats:  []model.SummaryStats{stats},
	}
	return it, nil
}

// generationEvaluator spends the per-proposal simulation budget against
// the generation threshold and weights accepted particles by importance.
// It is shared across sampler workers, so its counters are atomic.
type generationEvaluator struct {
	t               int
	epsilon         float64
	simsPerParticle int
	maxAttempts     int
	observed        model.SummaryStats
	models          []sim.Model
	transform       sim.Transform
	distance        dist.Distance
	priors          []prior.Distribution
	modelPrior      *prior.ModelPrior
	modelKernel     *kernel.ModelKernel
	transitions     []kernel.Transition
	prevProbs       map[int]float64
	logger          *slog.Logger

	degenerateWeights atomic.Int64
	capExceeded       atomic.Int64
}

func (e *generationEvaluator) Evaluate(ctx context.Context, rng *rand.Rand, prop sampler.Proposal) (model.Item, error) {
	it := model.Item{Model: prop.Model}
	particle := model.Particle{Model: prop.Model, Parameter: prop.Parameter}

	distanceTo := func(s model.SummaryStats) (float64, error) {
		return e.distance.Compare(s, e.observed)
	}

	for i := 0; i < e.simsPerParticle; i++ {
		if it.Attempts >= e.maxAttempts {
			// The proposal ran out of its simulation budget; drop it
			// wholesale, including any hits collected so far.
			e.capExceeded.Add(1)
			particle.Distances = nil
			particle.SumStats = nil
			it.Particle = particle
			return it, nil
		}
		res, err := sim.AcceptOne(ctx, rng, e.models[prop.Model], prop.Parameter, e.transform, distanceTo, e.epsilon)
		it.Attempts++
		if err != nil {
			it.Particle = particle
			return it, err
		}
		if res.Accepted {
			particle.Distances = append(particle.Distances, res.Distance)
			particle.SumStats = append(particle.SumStats, res.Stats)
		}
	}

	if particle.Valid() {
		particle.Weight = e.weight(prop, len(particle.Distances))
	}
	it.Particle = particle
	return it, nil
}

// weight is the importance weight of a proposal accepted in the given
// number of its simulations. In the first generation it reduces to the
// accepted fraction; afterwards the prior density is divided by the
// mixture density of proposing this particle from the previous
// generation.
func (e *generationEvaluator) weight(prop sampler.Proposal, accepted int) float64 {
	fraction := float64(accepted) / float64(e.simsPerParticle)
	if e.t == 0 {
		return fraction
	}

	numerator := e.modelPrior.PMF(prop.Model) * e.priors[prop.Model].PDF(prop.Parameter) * fraction

	modelMass := 0.0
	for source := range e.priors {
		w := e.prevProbs[source]
		if w <= 0 {
			continue
		}
		modelMass += w * e.modelKernel.PMF(prop.Model, source)
	}
	density := 0.0
	if tr := e.transitions[prop.Model]; tr != nil {
		density = tr.PDF(prop.Parameter)
	}

	denominator := modelMass * density
	if denominator <= 0 || math.IsNaN(denominator) || math.IsInf(denominator, 0) {
		e.degenerateWeights.Add(1)
		e.logger.Warn("proposal density vanished under the previous generation",
			slog.Int("model", prop.Model),
			slog.Int("t", e.t))
		return 0
	}
	return numerator / denominator
}

// acceptValid admits particles with at least one accepted simulation.
type acceptValid struct{}

func (acceptValid) Accept(it model.Item) bool { return it.Particle.Valid() }
