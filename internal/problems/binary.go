package problems

import (
	"math/rand"
	"strings"

	"phylon/internal/codec"
	"phylon/internal/evo"
	"phylon/internal/objective"
	"phylon/internal/problem"
	"phylon/internal/species"
)

func erased[T any](c codec.Codec[T], fitness problem.FitnessFunc[T]) (problem.Problem[any], error) {
	p, err := problem.New(c, fitness)
	if err != nil {
		return nil, err
	}
	return problem.Erase(p), nil
}

func formatBits(value any) string {
	bits, ok := value.([]bool)
	if !ok {
		return ""
	}
	var b strings.Builder
	b.Grow(len(bits))
	for _, bit := range bits {
		if bit {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

func bitAlterers(n int) []evo.Alterer {
	return []evo.Alterer{
		evo.UniformCrossover{Probability: 0.6, SwapProbability: 0.5},
		evo.UniformMutator{Probability: 1 / float64(n)},
	}
}

func newOneMax(opts Options) (Benchmark, error) {
	n, err := dimensions(opts, 32, 1)
	if err != nil {
		return Benchmark{}, err
	}
	p, err := erased[[]bool](codec.BitCodec{Length: n}, problem.Scalar(func(bits []bool) float64 {
		count := 0
		for _, bit := range bits {
			if bit {
				count++
			}
		}
		return float64(count)
	}))
	if err != nil {
		return Benchmark{}, err
	}
	return Benchmark{
		Objective: objective.Single(objective.Maximize),
		Problem:   p,
		Distance:  species.HammingDistance{},
		Alterers:  bitAlterers(n),
		Optimum:   optimum(float64(n)),
		format:    formatBits,
	}, nil
}

type knapsackItem struct {
	weight float64
	value  float64
}

// knapsackInstance derives a fixed item set from n so every run of the same
// size solves the same instance.
func knapsackInstance(n int) ([]knapsackItem, float64) {
	rng := rand.New(rand.NewSource(int64(n)))
	items := make([]knapsackItem, n)
	total := 0.0
	for i := range items {
		items[i] = knapsackItem{weight: float64(1 + rng.Intn(20)), value: float64(1 + rng.Intn(30))}
		total += items[i].weight
	}
	return items, total / 2
}

func newKnapsack(opts Options) (Benchmark, error) {
	n, err := dimensions(opts, 24, 1)
	if err != nil {
		return Benchmark{}, err
	}
	items, capacity := knapsackInstance(n)
	p, err := erased[[]bool](codec.BitCodec{Length: n}, problem.Scalar(func(take []bool) float64 {
		weight, value := 0.0, 0.0
		for i, in := range take {
			if in && i < len(items) {
				weight += items[i].weight
				value += items[i].value
			}
		}
		if weight > capacity {
			return capacity - weight
		}
		return value
	}))
	if err != nil {
		return Benchmark{}, err
	}
	return Benchmark{
		Objective: objective.Single(objective.Maximize),
		Problem:   p,
		Distance:  species.HammingDistance{},
		Alterers:  bitAlterers(n),
		format:    formatBits,
	}, nil
}
