package evo

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"phylon/internal/genome"
	"phylon/internal/objective"
)

var ErrSelectionCount = errors.New("invalid selection count")

// Selector samples count phenotypes from a population ranked best-first.
// The input is never modified and every returned phenotype is an
// independent copy.
type Selector interface {
	Name() string
	Select(rng *rand.Rand, ranked genome.Population, obj objective.Objective, count int) (genome.Population, error)
}

// CountValidator is implemented by selectors that sample without
// replacement and therefore cannot return more phenotypes than they are
// given.
type CountValidator interface {
	ValidateCount(populationSize, count int) error
}

func checkSelect(rng *rand.Rand, ranked genome.Population, count int, needsRNG bool) error {
	if count < 0 {
		return fmt.Errorf("%w: count must be >= 0, got %d", ErrSelectionCount, count)
	}
	if count > 0 && len(ranked) == 0 {
		return fmt.Errorf("%w: cannot select %d from an empty population", ErrSelectionCount, count)
	}
	if needsRNG && rng == nil {
		return fmt.Errorf("random source is required")
	}
	return nil
}

// EliteSelector keeps the count best phenotypes. It consumes no randomness.
type EliteSelector struct{}

func (EliteSelector) Name() string {
	return "elite"
}

func (EliteSelector) ValidateCount(populationSize, count int) error {
	if count > populationSize {
		return fmt.Errorf("%w: elite selection of %d from %d", ErrSelectionCount, count, populationSize)
	}
	return nil
}

func (s EliteSelector) Select(_ *rand.Rand, ranked genome.Population, _ objective.Objective, count int) (genome.Population, error) {
	if err := checkSelect(nil, ranked, count, false); err != nil {
		return nil, err
	}
	if err := s.ValidateCount(len(ranked), count); err != nil {
		return nil, err
	}
	return ranked[:count].Clone(), nil
}

// TruncationSelector samples uniformly from the best Fraction of the
// population.
type TruncationSelector struct {
	Fraction float64
}

func (TruncationSelector) Name() string {
	return "truncation"
}

func (s TruncationSelector) Select(rng *rand.Rand, ranked genome.Population, _ objective.Objective, count int) (genome.Population, error) {
	if err := checkSelect(rng, ranked, count, true); err != nil {
		return nil, err
	}
	fraction := s.Fraction
	if fraction <= 0 || fraction > 1 {
		fraction = 0.5
	}
	pool := int(math.Ceil(fraction * float64(len(ranked))))
	if pool < 1 {
		pool = 1
	}
	out := make(genome.Population, count)
	for i := range out {
		out[i] = ranked[rng.Intn(pool)].Clone()
	}
	return out, nil
}

// RandomSelector samples uniformly with replacement.
type RandomSelector struct{}

func (RandomSelector) Name() string {
	return "random"
}

func (RandomSelector) Select(rng *rand.Rand, ranked genome.Population, _ objective.Objective, count int) (genome.Population, error) {
	if err := checkSelect(rng, ranked, count, true); err != nil {
		return nil, err
	}
	out := make(genome.Population, count)
	for i := range out {
		out[i] = ranked[rng.Intn(len(ranked))].Clone()
	}
	return out, nil
}

// TournamentSelector draws Size candidates with replacement and keeps the
// best ranked one.
type TournamentSelector struct {
	Size int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) Select(rng *rand.Rand, ranked genome.Population, _ objective.Objective, count int) (genome.Population, error) {
	if err := checkSelect(rng, ranked, count, true); err != nil {
		return nil, err
	}
	size := s.Size
	if size <= 0 {
		size = 3
	}
	out := make(genome.Population, count)
	for i := range out {
		best := rng.Intn(len(ranked))
		for k := 1; k < size; k++ {
			if candidate := rng.Intn(len(ranked)); candidate < best {
				best = candidate
			}
		}
		out[i] = ranked[best].Clone()
	}
	return out, nil
}

// RouletteSelector samples proportionally to normalized fitness.
type RouletteSelector struct{}

func (RouletteSelector) Name() string {
	return "roulette"
}

func (RouletteSelector) Select(rng *rand.Rand, ranked genome.Population, obj objective.Objective, count int) (genome.Population, error) {
	if err := checkSelect(rng, ranked, count, true); err != nil {
		return nil, err
	}
	return sampleWeighted(rng, ranked, normalizedFitness(ranked, obj), count), nil
}

// RankSelector implements linear ranking. Pressure is the expected number
// of copies of the best phenotype, in [1, 2].
type RankSelector struct {
	Pressure float64
}

func (RankSelector) Name() string {
	return "rank"
}

func (s RankSelector) Select(rng *rand.Rand, ranked genome.Population, _ objective.Objective, count int) (genome.Population, error) {
	if err := checkSelect(rng, ranked, count, true); err != nil {
		return nil, err
	}
	pressure := s.Pressure
	if pressure < 1 || pressure > 2 {
		pressure = 1.5
	}
	n := len(ranked)
	weights := make([]float64, n)
	for i := range weights {
		if n == 1 {
			weights[i] = 1
			continue
		}
		position := float64(n-1-i) / float64(n-1)
		weights[i] = (2 - pressure + 2*(pressure-1)*position) / float64(n)
	}
	return sampleWeighted(rng, ranked, weights, count), nil
}

// BoltzmannSelector weights each phenotype by exp(f/Temperature) where f
// is its normalized fitness in [0, 1]. Lower temperatures sharpen
// selection pressure.
type BoltzmannSelector struct {
	Temperature float64
}

func (BoltzmannSelector) Name() string {
	return "boltzmann"
}

func (s BoltzmannSelector) Select(rng *rand.Rand, ranked genome.Population, obj objective.Objective, count int) (genome.Population, error) {
	if err := checkSelect(rng, ranked, count, true); err != nil {
		return nil, err
	}
	temperature := s.Temperature
	if temperature <= 0 {
		temperature = 1
	}
	weights := normalizedFitness(ranked, obj)
	for i, f := range weights {
		weights[i] = math.Exp(f / temperature)
	}
	return sampleWeighted(rng, ranked, weights, count), nil
}

// StochasticUniversalSelector walks count evenly spaced pointers over the
// cumulative fitness wheel using a single random offset.
type StochasticUniversalSelector struct{}

func (StochasticUniversalSelector) Name() string {
	return "sus"
}

func (StochasticUniversalSelector) Select(rng *rand.Rand, ranked genome.Population, obj objective.Objective, count int) (genome.Population, error) {
	if err := checkSelect(rng, ranked, count, true); err != nil {
		return nil, err
	}
	if count == 0 {
		return genome.Population{}, nil
	}
	cumulative, total := cumulativeWeights(normalizedFitness(ranked, obj))
	step := total / float64(count)
	pointer := rng.Float64() * step
	out := make(genome.Population, count)
	idx := 0
	for i := range out {
		for idx < len(cumulative)-1 && cumulative[idx] <= pointer {
			idx++
		}
		out[i] = ranked[idx].Clone()
		pointer += step
	}
	return out, nil
}

// NSGA2Selector runs binary tournaments on non-dominated rank, breaking
// ties by larger crowding distance and then by ranked position.
type NSGA2Selector struct{}

func (NSGA2Selector) Name() string {
	return "nsga2"
}

func (NSGA2Selector) Select(rng *rand.Rand, ranked genome.Population, obj objective.Objective, count int) (genome.Population, error) {
	if err := checkSelect(rng, ranked, count, true); err != nil {
		return nil, err
	}
	ranks, crowding := objective.RanksAndCrowding(obj, ranked)
	better := func(a, b int) bool {
		if ranks[a] != ranks[b] {
			return ranks[a] < ranks[b]
		}
		if crowding[a] != crowding[b] {
			return crowding[a] > crowding[b]
		}
		return a < b
	}
	out := make(genome.Population, count)
	for i := range out {
		a := rng.Intn(len(ranked))
		b := rng.Intn(len(ranked))
		if better(b, a) {
			a = b
		}
		out[i] = ranked[a].Clone()
	}
	return out, nil
}

// normalizedFitness maps every phenotype onto [0, 1] with 1 for the best.
// Single-objective scores are scaled between the population extremes
// according to direction; vector scores fall back to ranked position.
// Unevaluated phenotypes get 0.
func normalizedFitness(ranked genome.Population, obj objective.Objective) []float64 {
	n := len(ranked)
	out := make([]float64, n)
	if obj.IsMulti() {
		for i := range out {
			if n == 1 {
				out[i] = 1
				continue
			}
			out[i] = float64(n-1-i) / float64(n-1)
		}
		return out
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range ranked {
		if !p.IsEvaluated() {
			continue
		}
		v := p.Score.Float64()
		if math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	minimize := obj.Len() > 0 && obj.Direction(0) == objective.Minimize
	for i, p := range ranked {
		if !p.IsEvaluated() {
			continue
		}
		v := p.Score.Float64()
		var f float64
		switch {
		case math.IsInf(v, 1):
			f = 1
		case math.IsInf(v, -1):
			f = 0
		case hi <= lo:
			f = 1
		default:
			f = (v - lo) / (hi - lo)
		}
		if minimize {
			f = 1 - f
		}
		out[i] = f
	}
	return out
}

func cumulativeWeights(weights []float64) ([]float64, float64) {
	total := 0.0
	for _, w := range weights {
		if w > 0 && !math.IsInf(w, 0) {
			total += w
		}
	}
	cumulative := make([]float64, len(weights))
	if total <= 0 {
		for i := range cumulative {
			cumulative[i] = float64(i + 1)
		}
		return cumulative, float64(len(weights))
	}
	acc := 0.0
	for i, w := range weights {
		if w > 0 && !math.IsInf(w, 0) {
			acc += w
		}
		cumulative[i] = acc
	}
	return cumulative, total
}

func sampleWeighted(rng *rand.Rand, ranked genome.Population, weights []float64, count int) genome.Population {
	cumulative, total := cumulativeWeights(weights)
	out := make(genome.Population, count)
	for i := range out {
		pick := rng.Float64() * total
		idx := sort.Search(len(cumulative), func(k int) bool { return cumulative[k] > pick })
		if idx >= len(cumulative) {
			idx = len(cumulative) - 1
		}
		out[i] = ranked[idx].Clone()
	}
	return out
}
