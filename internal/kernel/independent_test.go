package kernel

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"

	"github.com/fbergmann/pyABC/internal/model"
)

func TestIndependentNormalFitAndDraw(t *testing.T) {
	params := []model.Parameter{
		model.NewParameter(map[string]float64{"a": 0, "b": 100}),
		model.NewParameter(map[string]float64{"a": 10, "b": 100}),
	}
	k := NewIndependentNormal()
	if err := k.Fit(params, []float64{0.5, 0.5}); err != nil {
		t.Fatalf("fit failed: %v", err)
	}

	rng := rand.New(rand.NewSource(21))
	sumA, sumB := 0.0, 0.0
	const draws = 4000
	for i := 0; i < draws; i++ {
		p := k.Rand(rng)
		a, _ := p.Get("a")
		b, _ := p.Get("b")
		sumA += a
		sumB += b
	}
	if mean := sumA / draws; math.Abs(mean-5) > 0.7 {
		t.Fatalf("expected a-mean near 5, got %v", mean)
	}
	// b is constant across the sample, so its bandwidth is floored and
	// draws stay glued to 100.
	if mean := sumB / draws; math.Abs(mean-100) > 0.01 {
		t.Fatalf("expected b-mean near 100, got %v", mean)
	}
}

func TestIndependentNormalDensity(t *testing.T) {
	params := []model.Parameter{
		model.NewParameter(map[string]float64{"a": 0}),
		model.NewParameter(map[string]float64{"a": 10}),
	}
	k := NewIndependentNormal()
	if err := k.Fit(params, []float64{0.5, 0.5}); err != nil {
		t.Fatalf("fit failed: %v", err)
	}

	at := func(x float64) float64 {
		return k.PDF(model.NewParameter(map[string]float64{"a": x}))
	}
	if d1, d2 := at(3), at(7); math.Abs(d1-d2) > 1e-12*math.Max(d1, d2) {
		t.Fatalf("expected symmetric density, got %v and %v", d1, d2)
	}
	if at(0) <= 0 {
		t.Fatal("expected positive density at a sample point")
	}
	if k.PDF(model.NewParameter(map[string]float64{"z": 0})) != 0 {
		t.Fatal("expected zero density for mismatched names")
	}
}

func TestIndependentNormalSingleNonzeroWeight(t *testing.T) {
	params := []model.Parameter{
		model.NewParameter(map[string]float64{"a": 2}),
		model.NewParameter(map[string]float64{"a": 50}),
	}
	k := NewIndependentNormal()
	if err := k.Fit(params, []float64{1, 0}); err != nil {
		t.Fatalf("expected degenerate weights to fit, got %v", err)
	}

	rng := rand.New(rand.NewSource(22))
	for i := 0; i < 200; i++ {
		v, _ := k.Rand(rng).Get("a")
		if math.Abs(v-2) > 1 {
			t.Fatalf("expected draws near 2 under point mass, got %v", v)
		}
	}
	if k.PDF(model.NewParameter(map[string]float64{"a": 2})) <= 0 {
		t.Fatal("expected positive density at the mass point")
	}
}
