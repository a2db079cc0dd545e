package problem

import (
	"context"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/fbergmann/pyABC/internal/dist"
	"github.com/fbergmann/pyABC/internal/eps"
	"github.com/fbergmann/pyABC/internal/kernel"
	"github.com/fbergmann/pyABC/internal/model"
	"github.com/fbergmann/pyABC/internal/prior"
	"github.com/fbergmann/pyABC/internal/sim"
	"github.com/fbergmann/pyABC/internal/smc"
)

func init() { registerBuiltins() }

func registerBuiltins() {
	mustRegister("gaussian-mean", gaussianMean)
	mustRegister("normal-vs-laplace", normalVsLaplace)
	mustRegister("model-extinction", modelExtinction)
	mustRegister("conversion-rate", conversionRate)
	mustRegister("linear-trend", linearTrend)
}

func mustRegister(name string, build Builder) {
	if err := Register(name, build); err != nil {
		panic(err)
	}
}

// gaussianMean infers the location of a unit-variance gaussian from a
// single observation.
func gaussianMean() (Problem, error) {
	m := sim.FuncModel{ModelName: "gaussian", Fn: func(_ context.Context, rng *rand.Rand, p model.Parameter) (model.SummaryStats, error) {
		mu, _ := p.Get("mu")
		return model.SummaryStats{"y": mu + rng.NormFloat64()}, nil
	}}
	return Problem{
		Description: "location of a unit-variance gaussian observed once",
		Observed:    model.SummaryStats{"y": 0},
		Config: smc.Config{
			Models:         []sim.Model{m},
			Priors:         []prior.Distribution{prior.NewDistribution(map[string]prior.RV{"mu": prior.Uniform{Min: -5, Max: 5}})},
			PopulationSize: 100,
		},
		GroundTruthModel:     0,
		GroundTruthParameter: model.NewParameter(map[string]float64{"mu": 0}),
	}, nil
}

// normalVsLaplace pits two noise shapes of equal variance against each
// other on the same location parameter.
func normalVsLaplace() (Problem, error) {
	normal := sim.FuncModel{ModelName: "normal", Fn: func(_ context.Context, rng *rand.Rand, p model.Parameter) (model.SummaryStats, error) {
		mu, _ := p.Get("mu")
		return model.SummaryStats{"y": distuv.Normal{Mu: mu, Sigma: 1, Src: rng}.Rand()}, nil
	}}
	laplace := sim.FuncModel{ModelName: "laplace", Fn: func(_ context.Context, rng *rand.Rand, p model.Parameter) (model.SummaryStats, error) {
		mu, _ := p.Get("mu")
		return model.SummaryStats{"y": distuv.Laplace{Mu: mu, Scale: 1 / math.Sqrt2, Src: rng}.Rand()}, nil
	}}
	locPrior := func() prior.Distribution {
		return prior.NewDistribution(map[string]prior.RV{"mu": prior.Uniform{Min: -3, Max: 3}})
	}
	manhattan, err := dist.NewPNorm(1, nil)
	if err != nil {
		return Problem{}, err
	}
	return Problem{
		Description: "normal against laplace noise of equal variance",
		Observed:    model.SummaryStats{"y": 0},
		Config: smc.Config{
			Models:         []sim.Model{normal, laplace},
			Priors:         []prior.Distribution{locPrior(), locPrior()},
			Distance:       manhattan,
			PopulationSize: 100,
		},
		GroundTruthModel: -1,
	}, nil
}

// modelExtinction pairs a model that can match the data with one that
// never can, so the hopeless model dies out in the first generation.
func modelExtinction() (Problem, error) {
	near := sim.FuncModel{ModelName: "near", Fn: func(_ context.Context, rng *rand.Rand, p model.Parameter) (model.SummaryStats, error) {
		mu, _ := p.Get("mu")
		return model.SummaryStats{"y": mu + 0.1*rng.NormFloat64()}, nil
	}}
	far := sim.FuncModel{ModelName: "far", Fn: func(_ context.Context, rng *rand.Rand, p model.Parameter) (model.SummaryStats, error) {
		shift, _ := p.Get("shift")
		return model.SummaryStats{"y": 50 + shift + 0.1*rng.NormFloat64()}, nil
	}}
	lopsided, err := prior.NewModelPrior([]float64{9, 1})
	if err != nil {
		return Problem{}, err
	}
	return Problem{
		Description: "a matching and a hopeless model under a lopsided model prior",
		Observed:    model.SummaryStats{"y": 0},
		Config: smc.Config{
			Models: []sim.Model{near, far},
			Priors: []prior.Distribution{
				prior.NewDistribution(map[string]prior.RV{"mu": prior.Uniform{Min: -1, Max: 1}}),
				prior.NewDistribution(map[string]prior.RV{"shift": prior.LogNormal{Mu: 0, Sigma: 0.5}}),
			},
			ModelPrior:     lopsided,
			PopulationSize: 100,
		},
		GroundTruthModel: -1,
	}, nil
}

const conversionTrials = 400

// conversionRate infers a success probability from an observed rate over
// a fixed number of trials.
func conversionRate() (Problem, error) {
	m := sim.FuncModel{ModelName: "binomial", Fn: func(_ context.Context, rng *rand.Rand, p model.Parameter) (model.SummaryStats, error) {
		rate, _ := p.Get("p")
		k := distuv.Binomial{N: conversionTrials, P: rate, Src: rng}.Rand()
		return model.SummaryStats{"rate": k / conversionTrials}, nil
	}}
	return Problem{
		Description: "success probability behind an observed conversion rate",
		Observed:    model.SummaryStats{"rate": 0.1},
		Config: smc.Config{
			Models:         []sim.Model{m},
			Priors:         []prior.Distribution{prior.NewDistribution(map[string]prior.RV{"p": prior.Beta{Alpha: 1, Beta: 1}})},
			PopulationSize: 100,
		},
		GroundTruthModel:     0,
		GroundTruthParameter: model.NewParameter(map[string]float64{"p": 0.1}),
	}, nil
}

// linearTrend fits a noisy line through its regression summaries, using
// the range-scaled distance and per-dimension transitions.
func linearTrend() (Problem, error) {
	xs := make([]float64, 10)
	for i := range xs {
		xs[i] = float64(i)
	}
	m := sim.FuncModel{ModelName: "linear", Fn: func(_ context.Context, rng *rand.Rand, p model.Parameter) (model.SummaryStats, error) {
		a, _ := p.Get("intercept")
		b, _ := p.Get("slope")
		ys := make([]float64, len(xs))
		for i, x := range xs {
			ys[i] = a + b*x + rng.NormFloat64()
		}
		alpha, beta := stat.LinearRegression(xs, ys, nil, false)
		return model.SummaryStats{"intercept": alpha, "slope": beta}, nil
	}}

	schedule, err := eps.NewQuantile(0.3)
	if err != nil {
		return Problem{}, err
	}
	return Problem{
		Description: "line fit under gaussian noise with range-scaled distance",
		Observed:    model.SummaryStats{"intercept": 1, "slope": 0.5},
		Config: smc.Config{
			Models: []sim.Model{m},
			Priors: []prior.Distribution{prior.NewDistribution(map[string]prior.RV{
				"intercept": prior.Normal{Mu: 0, Sigma: 2},
				"slope":     prior.Normal{Mu: 0, Sigma: 1},
			})},
			Transitions:    []kernel.Factory{kernel.IndependentNormalFactory()},
			Distance:       dist.NewMinMax(),
			Epsilon:        schedule,
			PopulationSize: 100,
		},
		GroundTruthModel:     0,
		GroundTruthParameter: model.NewParameter(map[string]float64{"intercept": 1, "slope": 0.5}),
	}, nil
}
