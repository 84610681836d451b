package evo

import (
	"errors"
	"math/rand"
	"testing"

	"phylon/internal/genes"
	"phylon/internal/genome"
	"phylon/internal/objective"
)

func intGenotype(values ...int) genome.Genotype {
	gs := make([]genome.Gene, len(values))
	for i, v := range values {
		gs[i] = genes.IntGene{Value: v, Min: 0, Max: 10}
	}
	return genome.NewGenotype(genome.NewChromosome(gs))
}

// rankedPopulation builds a population whose scores are already in
// best-first order for obj.
func rankedPopulation(obj objective.Objective, scores ...float64) genome.Population {
	pop := make(genome.Population, len(scores))
	for i, s := range scores {
		pop[i] = genome.NewPhenotype(uint64(i+1), intGenotype(i%10), 0).WithScore(genome.NewScore(s))
	}
	return obj.Sort(pop)
}

func allSelectors() []Selector {
	return []Selector{
		EliteSelector{},
		TruncationSelector{Fraction: 0.5},
		RandomSelector{},
		TournamentSelector{Size: 3},
		RouletteSelector{},
		RankSelector{Pressure: 1.5},
		BoltzmannSelector{Temperature: 0.5},
		StochasticUniversalSelector{},
		NSGA2Selector{},
	}
}

func TestSelectorsReturnExactCountOfIndependentCopies(t *testing.T) {
	obj := objective.Single(objective.Maximize)
	ranked := rankedPopulation(obj, 9, 7, 5, 3, 1, 0)
	before := ranked.Clone()

	for _, sel := range allSelectors() {
		for _, count := range []int{0, 1, 4, 6} {
			out, err := sel.Select(rand.New(rand.NewSource(3)), ranked, obj, count)
			if err != nil {
				t.Fatalf("%s select %d: %v", sel.Name(), count, err)
			}
			if len(out) != count {
				t.Fatalf("%s: expected %d selected, got %d", sel.Name(), count, len(out))
			}
			for i := range out {
				out[i].Age = 99
				out[i].Invalid = true
			}
		}
	}
	for i := range ranked {
		if ranked[i].Age != before[i].Age || ranked[i].Invalid || ranked[i].ID != before[i].ID {
			t.Fatalf("input population mutated at %d: %+v", i, ranked[i])
		}
	}
}

func TestEliteSelectorKeepsBestInOrder(t *testing.T) {
	obj := objective.Single(objective.Minimize)
	ranked := rankedPopulation(obj, 4, 1, 3, 2)

	out, err := EliteSelector{}.Select(nil, ranked, obj, 2)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if out[0].Score.Float64() != 1 || out[1].Score.Float64() != 2 {
		t.Fatalf("unexpected elite scores: %v %v", out[0].Score, out[1].Score)
	}
}

func TestEliteSelectorRejectsCountAbovePopulation(t *testing.T) {
	if err := (EliteSelector{}).ValidateCount(3, 4); !errors.Is(err, ErrSelectionCount) {
		t.Fatalf("expected ErrSelectionCount, got %v", err)
	}
	obj := objective.Single(objective.Maximize)
	if _, err := (EliteSelector{}).Select(nil, rankedPopulation(obj, 1, 2), obj, 3); !errors.Is(err, ErrSelectionCount) {
		t.Fatalf("expected ErrSelectionCount at select time, got %v", err)
	}
}

func TestSelectRejectsBadInput(t *testing.T) {
	obj := objective.Single(objective.Maximize)
	for _, sel := range allSelectors() {
		if _, err := sel.Select(rand.New(rand.NewSource(1)), rankedPopulation(obj, 1), obj, -1); err == nil {
			t.Fatalf("%s: expected error for negative count", sel.Name())
		}
		if _, err := sel.Select(rand.New(rand.NewSource(1)), nil, obj, 2); err == nil {
			t.Fatalf("%s: expected error for empty population", sel.Name())
		}
	}
	if _, err := (TournamentSelector{}).Select(nil, rankedPopulation(obj, 1), obj, 1); err == nil {
		t.Fatal("expected error for missing random source")
	}
}

func TestStochasticSelectorsAreDeterministicForSeed(t *testing.T) {
	obj := objective.Single(objective.Maximize)
	ranked := rankedPopulation(obj, 8, 6, 4, 2, 1, 0, 5, 3)

	for _, sel := range allSelectors() {
		a, err := sel.Select(rand.New(rand.NewSource(42)), ranked, obj, 20)
		if err != nil && !errors.Is(err, ErrSelectionCount) {
			t.Fatalf("%s: %v", sel.Name(), err)
		}
		b, _ := sel.Select(rand.New(rand.NewSource(42)), ranked, obj, 20)
		for i := range a {
			if a[i].ID != b[i].ID {
				t.Fatalf("%s: selection differs at %d: %d vs %d", sel.Name(), i, a[i].ID, b[i].ID)
			}
		}
	}
}

func TestRouletteFavorsFitterPhenotypes(t *testing.T) {
	obj := objective.Single(objective.Minimize)
	ranked := rankedPopulation(obj, 0, 9, 10, 10)
	out, err := RouletteSelector{}.Select(rand.New(rand.NewSource(7)), ranked, obj, 1000)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	counts := map[float64]int{}
	for _, p := range out {
		counts[p.Score.Float64()]++
	}
	if counts[0] <= counts[9] {
		t.Fatalf("expected best score to dominate roulette, got %v", counts)
	}
	if counts[10] != 0 {
		t.Fatalf("worst score has zero weight, got %d picks", counts[10])
	}
}

func TestStochasticUniversalSamplingWithEqualWeightsPicksEachOnce(t *testing.T) {
	obj := objective.Single(objective.Maximize)
	ranked := rankedPopulation(obj, 5, 5, 5, 5, 5)
	out, err := StochasticUniversalSelector{}.Select(rand.New(rand.NewSource(11)), ranked, obj, len(ranked))
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	seen := map[uint64]bool{}
	for _, p := range out {
		if seen[p.ID] {
			t.Fatalf("phenotype %d selected twice", p.ID)
		}
		seen[p.ID] = true
	}
}

func TestRankSelectorWeightsFavorTop(t *testing.T) {
	obj := objective.Single(objective.Maximize)
	ranked := rankedPopulation(obj, 4, 3, 2, 1)
	out, err := RankSelector{Pressure: 2}.Select(rand.New(rand.NewSource(5)), ranked, obj, 2000)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	counts := map[float64]int{}
	for _, p := range out {
		counts[p.Score.Float64()]++
	}
	if counts[4] <= counts[3] || counts[3] <= counts[2] || counts[1] != 0 {
		t.Fatalf("unexpected rank distribution: %v", counts)
	}
}

func TestNSGA2SelectorPrefersFirstFront(t *testing.T) {
	obj := objective.Multi(objective.Minimize, objective.Minimize)
	pop := genome.Population{
		genome.NewPhenotype(1, intGenotype(1), 0).WithScore(genome.NewScore(1, 4)),
		genome.NewPhenotype(2, intGenotype(2), 0).WithScore(genome.NewScore(4, 1)),
		genome.NewPhenotype(3, intGenotype(3), 0).WithScore(genome.NewScore(5, 5)),
		genome.NewPhenotype(4, intGenotype(4), 0).WithScore(genome.NewScore(6, 6)),
	}
	ranked := obj.Sort(pop)
	out, err := NSGA2Selector{}.Select(rand.New(rand.NewSource(9)), ranked, obj, 1000)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	firstFront := 0
	for _, p := range out {
		if p.ID == 1 || p.ID == 2 {
			firstFront++
		}
	}
	if firstFront < 650 {
		t.Fatalf("expected first front to win most tournaments, got %d/1000", firstFront)
	}
}

func TestNormalizedFitnessIsDirectionAware(t *testing.T) {
	maximize := objective.Single(objective.Maximize)
	minimize := objective.Single(objective.Minimize)
	pop := genome.Population{
		genome.NewPhenotype(1, intGenotype(1), 0).WithScore(genome.NewScore(10)),
		genome.NewPhenotype(2, intGenotype(2), 0).WithScore(genome.NewScore(5)),
		genome.NewPhenotype(3, intGenotype(3), 0).WithScore(genome.NewScore(0)),
		genome.NewPhenotype(4, intGenotype(4), 0),
	}
	gotMax := normalizedFitness(pop, maximize)
	gotMin := normalizedFitness(pop, minimize)
	wantMax := []float64{1, 0.5, 0, 0}
	wantMin := []float64{0, 0.5, 1, 0}
	for i := range pop {
		if gotMax[i] != wantMax[i] || gotMin[i] != wantMin[i] {
			t.Fatalf("index %d: max=%v min=%v", i, gotMax, gotMin)
		}
	}
}
