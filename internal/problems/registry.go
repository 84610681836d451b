// Package problems holds the named benchmark problems the CLI and client can
// run without writing code.
package problems

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"phylon/internal/evo"
	"phylon/internal/objective"
	"phylon/internal/problem"
	"phylon/internal/species"
)

var (
	ErrProblemExists   = errors.New("problem already registered")
	ErrProblemNotFound = errors.New("problem not found")
)

// Options tune a benchmark instance. Zero values select the benchmark's
// defaults.
type Options struct {
	Dimensions int
}

// Benchmark is a ready-to-run problem with the engine settings it works
// best with.
type Benchmark struct {
	Name        string
	Description string
	Objective   objective.Objective
	Problem     problem.Problem[any]
	Distance    species.Distance
	Alterers    []evo.Alterer
	// Optimum is the best reachable first-channel score when known.
	Optimum     *float64
	format      func(any) string
}

// Format renders a decoded value for display and persistence.
func (b Benchmark) Format(value any) string {
	if b.format != nil {
		return b.format(value)
	}
	return fmt.Sprint(value)
}

type Factory func(opts Options) (Benchmark, error)

// Info describes a registered benchmark without building it.
type Info struct {
	Name        string
	Description string
}

type entry struct {
	description string
	factory     Factory
}

var (
	registryMu sync.RWMutex
	registry   = map[string]entry{}
)

func Register(name, description string, factory Factory) error {
	name = Normalize(name)
	if name == "" {
		return fmt.Errorf("problem name is required")
	}
	if factory == nil {
		return fmt.Errorf("problem factory is nil")
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		return fmt.Errorf("%w: %s", ErrProblemExists, name)
	}
	registry[name] = entry{description: description, factory: factory}
	return nil
}

func Resolve(name string, opts Options) (Benchmark, error) {
	name = Normalize(name)

	registryMu.RLock()
	e, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return Benchmark{}, fmt.Errorf("%w: %s", ErrProblemNotFound, name)
	}
	if opts.Dimensions < 0 {
		return Benchmark{}, fmt.Errorf("problem %s: dimensions must be >= 0", name)
	}

	b, err := e.factory(opts)
	if err != nil {
		return Benchmark{}, fmt.Errorf("problem %s: %w", name, err)
	}
	b.Name = name
	b.Description = e.description
	return b, nil
}

func List() []Info {
	registryMu.RLock()
	defer registryMu.RUnlock()

	infos := make([]Info, 0, len(registry))
	for name, e := range registry {
		infos = append(infos, Info{Name: name, Description: e.description})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

var aliases = map[string]string{
	"one-max":      "onemax",
	"summin":       "sum-min",
	"zdt-1":        "zdt1",
	"dtlz-2":       "dtlz2",
	"weasel":       "target-string",
	"targetstring": "target-string",
	"salesman":     "tsp",
	"knapsack-01":  "knapsack",
	"de-jong":      "sphere",
	"dejong":       "sphere",
}

// Normalize canonicalizes problem names and known aliases.
func Normalize(name string) string {
	normalized := strings.TrimSpace(strings.ToLower(name))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	normalized = strings.Trim(normalized, "-")
	if canonical, ok := aliases[normalized]; ok {
		return canonical
	}
	return normalized
}

func dimensions(opts Options, fallback, minimum int) (int, error) {
	n := opts.Dimensions
	if n == 0 {
		n = fallback
	}
	if n < minimum {
		return 0, fmt.Errorf("needs at least %d dimensions, got %d", minimum, n)
	}
	return n, nil
}

func optimum(v float64) *float64 {
	return &v
}

func resetRegistryForTests() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = map[string]entry{}
}

func init() {
	registerBuiltins()
}

func registerBuiltins() {
	builtins := []struct {
		name, description string
		factory           Factory
	}{
		{"onemax", "maximize the number of set bits", newOneMax},
		{"knapsack", "0/1 knapsack over a fixed item set, overweight packs score negative", newKnapsack},
		{"sum-min", "minimize the sum of integers in [0,10]", newSumMin},
		{"sphere", "minimize the sum of squares over [-5.12,5.12]", newSphere},
		{"rastrigin", "minimize the multimodal Rastrigin function over [-5.12,5.12]", newRastrigin},
		{"target-string", "evolve the string METHINKS IT IS LIKE A WEASEL", newTargetString},
		{"tsp", "shortest closed tour through cities on a unit circle", newTSP},
		{"zdt1", "two-objective ZDT1 with a convex Pareto front", newZDT1},
		{"dtlz2", "three-objective DTLZ2 with a spherical Pareto front", newDTLZ2},
	}
	for _, b := range builtins {
		if err := Register(b.name, b.description, b.factory); err != nil {
			panic(err)
		}
	}
}
