package evo

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrOperatorExists   = errors.New("operator already registered")
	ErrOperatorNotFound = errors.New("operator not found")
)

// Params carries numeric operator settings resolved by name from
// configuration files and flags.
type Params map[string]float64

func (p Params) Float(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

func (p Params) Int(key string, def int) int {
	if v, ok := p[key]; ok {
		return int(v)
	}
	return def
}

type SelectorFactory func(params Params) (Selector, error)

// AltererFactory builds an alterer with the given rate.
type AltererFactory func(rate float64, params Params) (Alterer, error)

type ReplacementFactory func() Replacement

type registry[F any] struct {
	kind string
	mu   sync.RWMutex
	m    map[string]F
}

func newRegistry[F any](kind string) *registry[F] {
	return &registry[F]{kind: kind, m: make(map[string]F)}
}

func (r *registry[F]) register(name string, factory F, isNil bool) error {
	if name == "" {
		return fmt.Errorf("%s name is required", r.kind)
	}
	if isNil {
		return fmt.Errorf("%s factory is required", r.kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.m[name]; exists {
		return fmt.Errorf("%w: %s %s", ErrOperatorExists, r.kind, name)
	}
	r.m[name] = factory
	return nil
}

func (r *registry[F]) resolve(name string) (F, error) {
	r.mu.RLock()
	factory, ok := r.m[name]
	r.mu.RUnlock()

	if !ok {
		var zero F
		return zero, fmt.Errorf("%w: %s %s", ErrOperatorNotFound, r.kind, name)
	}
	return factory, nil
}

func (r *registry[F]) list() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.m))
	for name := range r.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *registry[F]) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m = make(map[string]F)
}

var (
	selectorRegistry    = newRegistry[SelectorFactory]("selector")
	altererRegistry     = newRegistry[AltererFactory]("alterer")
	replacementRegistry = newRegistry[ReplacementFactory]("replacement")
)

func RegisterSelector(name string, factory SelectorFactory) error {
	return selectorRegistry.register(name, factory, factory == nil)
}

func RegisterAlterer(name string, factory AltererFactory) error {
	return altererRegistry.register(name, factory, factory == nil)
}

func RegisterReplacement(name string, factory ReplacementFactory) error {
	return replacementRegistry.register(name, factory, factory == nil)
}

// ResolveSelector builds the named selector.
func ResolveSelector(name string, params Params) (Selector, error) {
	factory, err := selectorRegistry.resolve(name)
	if err != nil {
		return nil, err
	}
	return factory(params)
}

// ResolveAlterer builds the named alterer and checks its rate.
func ResolveAlterer(name string, rate float64, params Params) (Alterer, error) {
	factory, err := altererRegistry.resolve(name)
	if err != nil {
		return nil, err
	}
	if rate < 0 || rate > 1 {
		return nil, fmt.Errorf("alterer %s rate must be in [0,1], got %f", name, rate)
	}
	return factory(rate, params)
}

func ResolveReplacement(name string) (Replacement, error) {
	factory, err := replacementRegistry.resolve(name)
	if err != nil {
		return nil, err
	}
	return factory(), nil
}

func ListSelectors() []string    { return selectorRegistry.list() }
func ListAlterers() []string     { return altererRegistry.list() }
func ListReplacements() []string { return replacementRegistry.list() }

func resetRegistriesForTests() {
	selectorRegistry.reset()
	altererRegistry.reset()
	replacementRegistry.reset()
	registerBuiltins()
}

func init() {
	registerBuiltins()
}

func registerBuiltins() {
	selectors := map[string]SelectorFactory{
		"elite":  func(Params) (Selector, error) { return EliteSelector{}, nil },
		"random": func(Params) (Selector, error) { return RandomSelector{}, nil },
		"tournament": func(p Params) (Selector, error) {
			size := p.Int("size", 3)
			if size < 1 {
				return nil, fmt.Errorf("tournament size must be >= 1, got %d", size)
			}
			return TournamentSelector{Size: size}, nil
		},
		"truncation": func(p Params) (Selector, error) {
			return TruncationSelector{Fraction: p.Float("fraction", 0.5)}, nil
		},
		"roulette": func(Params) (Selector, error) { return RouletteSelector{}, nil },
		"rank": func(p Params) (Selector, error) {
			pressure := p.Float("pressure", 1.5)
			if pressure < 1 || pressure > 2 {
				return nil, fmt.Errorf("rank pressure must be in [1,2], got %f", pressure)
			}
			return RankSelector{Pressure: pressure}, nil
		},
		"boltzmann": func(p Params) (Selector, error) {
			temperature := p.Float("temperature", 1)
			if temperature <= 0 {
				return nil, fmt.Errorf("boltzmann temperature must be > 0, got %f", temperature)
			}
			return BoltzmannSelector{Temperature: temperature}, nil
		},
		"sus":   func(Params) (Selector, error) { return StochasticUniversalSelector{}, nil },
		"nsga2": func(Params) (Selector, error) { return NSGA2Selector{}, nil },
	}
	for name, factory := range selectors {
		_ = RegisterSelector(name, factory)
	}

	alterers := map[string]AltererFactory{
		"uniform_mutator": func(rate float64, _ Params) (Alterer, error) {
			return UniformMutator{Probability: rate}, nil
		},
		"gaussian_mutator": func(rate float64, p Params) (Alterer, error) {
			return GaussianMutator{Probability: rate, Sigma: p.Float("sigma", 0.1)}, nil
		},
		"arithmetic_mutator": func(rate float64, p Params) (Alterer, error) {
			return ArithmeticMutator{Probability: rate, Step: p.Float("step", 0.1)}, nil
		},
		"swap_mutator": func(rate float64, _ Params) (Alterer, error) {
			return SwapMutator{Probability: rate}, nil
		},
		"scramble_mutator": func(rate float64, _ Params) (Alterer, error) {
			return ScrambleMutator{Probability: rate}, nil
		},
		"inversion_mutator": func(rate float64, _ Params) (Alterer, error) {
			return InversionMutator{Probability: rate}, nil
		},
		"uniform_crossover": func(rate float64, p Params) (Alterer, error) {
			return UniformCrossover{Probability: rate, SwapProbability: p.Float("swap", 0.5)}, nil
		},
		"multi_point_crossover": func(rate float64, p Params) (Alterer, error) {
			points := p.Int("points", 1)
			if points < 1 {
				return nil, fmt.Errorf("crossover points must be >= 1, got %d", points)
			}
			return MultiPointCrossover{Probability: rate, Points: points}, nil
		},
		"mean_crossover": func(rate float64, _ Params) (Alterer, error) {
			return MeanCrossover{Probability: rate}, nil
		},
		"blend_crossover": func(rate float64, p Params) (Alterer, error) {
			return BlendCrossover{Probability: rate, Alpha: p.Float("alpha", 0.5)}, nil
		},
		"pmx_crossover": func(rate float64, _ Params) (Alterer, error) {
			return PartiallyMappedCrossover{Probability: rate}, nil
		},
	}
	for name, factory := range alterers {
		_ = RegisterAlterer(name, factory)
	}

	_ = RegisterReplacement(EncodeReplace{}.Name(), func() Replacement { return EncodeReplace{} })
	_ = RegisterReplacement(PopulationSampleReplace{}.Name(), func() Replacement { return PopulationSampleReplace{} })
}
