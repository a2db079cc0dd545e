package problem

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fbergmann/pyABC/internal/model"
	"github.com/fbergmann/pyABC/internal/smc"
)

var (
	ErrProblemExists   = errors.New("problem already registered")
	ErrProblemNotFound = errors.New("problem not found")
)

// Problem is a ready-to-run inference setup: an engine configuration plus
// the observed data it conditions on. GroundTruthModel is -1 when the
// problem has no known truth.
type Problem struct {
	Name                 string
	Description          string
	Observed             model.SummaryStats
	Config               smc.Config
	GroundTruthModel     int
	GroundTruthParameter model.Parameter
}

// Builder constructs a fresh Problem. A builder runs on every Resolve
// call, so callers may mutate the result freely.
type Builder func() (Problem, error)

var problemRegistry = struct {
	mu sync.RWMutex
	m  map[string]Builder
}{
	m: make(map[string]Builder),
}

// normalizeName canonicalizes user-supplied problem names so lookups
// tolerate case, spacing and separator variants.
func normalizeName(name string) string {
	n := strings.TrimSpace(strings.ToLower(name))
	n = strings.ReplaceAll(n, "_", "-")
	n = strings.ReplaceAll(n, " ", "-")
	return strings.Trim(n, "-")
}

func Register(name string, build Builder) error {
	name = normalizeName(name)
	if name == "" {
		return errors.New("problem name is required")
	}
	if build == nil {
		return errors.New("problem builder is required")
	}

	problemRegistry.mu.Lock()
	defer problemRegistry.mu.Unlock()

	if _, exists := problemRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrProblemExists, name)
	}
	problemRegistry.m[name] = build
	return nil
}

func Resolve(name string) (Problem, error) {
	canonical := normalizeName(name)

	problemRegistry.mu.RLock()
	build, ok := problemRegistry.m[canonical]
	problemRegistry.mu.RUnlock()

	if !ok {
		return Problem{}, fmt.Errorf("%w: %s", ErrProblemNotFound, name)
	}
	p, err := build()
	if err != nil {
		return Problem{}, fmt.Errorf("build problem %s: %w", canonical, err)
	}
	p.Name = canonical
	return p, nil
}

func List() []string {
	problemRegistry.mu.RLock()
	defer problemRegistry.mu.RUnlock()

	names := make([]string, 0, len(problemRegistry.m))
	for name := range problemRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the registered problems with their descriptions, in
// name order.
func Describe() ([]Problem, error) {
	out := make([]Problem, 0)
	for _, name := range List() {
		p, err := Resolve(name)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func resetRegistryForTests() {
	problemRegistry.mu.Lock()
	defer problemRegistry.mu.Unlock()
	problemRegistry.m = make(map[string]Builder)
}
