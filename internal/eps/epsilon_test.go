package eps

import (
	"context"
	"math"
	"testing"

	"github.com/fbergmann/pyABC/internal/model"
	"github.com/fbergmann/pyABC/internal/storage"
)

func TestListSchedule(t *testing.T) {
	if _, err := NewList(); err == nil {
		t.Fatal("expected error for empty schedule")
	}

	l, err := NewList(2, 1, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	for i, want := range []float64{2, 1, 0.5, 0.5, 0.5} {
		got, err := l.Value(ctx, i, nil)
		if err != nil {
			t.Fatalf("value at %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("expected eps %v at generation %d, got %v", want, i, got)
		}
	}

	if _, err := l.Value(ctx, -1, nil); err == nil {
		t.Fatal("expected error for negative generation")
	}
}

func TestConstantSchedule(t *testing.T) {
	c := NewConstant(0.75)
	if err := c.Initialize(nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	for _, gen := range []int{0, 1, 7} {
		got, err := c.Value(ctx, gen, nil)
		if err != nil {
			t.Fatalf("value at %d: %v", gen, err)
		}
		if got != 0.75 {
			t.Fatalf("expected eps 0.75 at generation %d, got %v", gen, got)
		}
	}

	if _, err := c.Value(ctx, -1, nil); err == nil {
		t.Fatal("expected error for negative generation")
	}
}

func TestQuantileValidation(t *testing.T) {
	if _, err := NewQuantile(0); err == nil {
		t.Fatal("expected error for quantile 0")
	}
	if _, err := NewQuantile(1); err == nil {
		t.Fatal("expected error for quantile 1")
	}

	e := NewMedian()
	if err := e.Initialize(nil, nil); err == nil {
		t.Fatal("expected error for empty calibration distances")
	}
	if err := e.Initialize([]float64{1, 2}, []float64{1}); err == nil {
		t.Fatal("expected error for mismatched weights")
	}
	if _, err := e.Value(context.Background(), 0, nil); err == nil {
		t.Fatal("expected error before initialization")
	}
}

func TestQuantileFromCalibration(t *testing.T) {
	e := NewMedian()
	if err := e.Initialize([]float64{1, 2, 3, 4}, nil); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	got, err := e.Value(context.Background(), 0, nil)
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if got != 2 {
		t.Fatalf("expected empirical median 2, got %v", got)
	}

	e.Multiplier = 0.5
	got, _ = e.Value(context.Background(), 0, nil)
	if got != 1 {
		t.Fatalf("expected halved median 1, got %v", got)
	}
}

func TestQuantileFromStore(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	if err := store.SaveInitialData(ctx, storage.InitialData{RunID: "run"}); err != nil {
		t.Fatalf("save initial data: %v", err)
	}
	rec := storage.PopulationRecord{
		T: 0,
		Particles: []model.Particle{
			{Model: 0, Weight: 0.5, Distances: []float64{4}},
			{Model: 0, Weight: 0.5, Distances: []float64{2}},
		},
	}
	if _, err := store.AppendPopulation(ctx, rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	e := NewMedian()
	got, err := e.Value(ctx, 1, store)
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if math.Abs(got-2) > 1e-12 {
		t.Fatalf("expected median 2 from stored distances, got %v", got)
	}

	if _, err := e.Value(ctx, 5, store); err == nil {
		t.Fatal("expected error for missing generation")
	}
}
