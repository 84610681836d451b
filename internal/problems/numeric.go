package problems

import (
	"math"

	"phylon/internal/codec"
	"phylon/internal/evo"
	"phylon/internal/objective"
	"phylon/internal/problem"
	"phylon/internal/species"
)

const rastriginBound = 5.12

func realAlterers() []evo.Alterer {
	return []evo.Alterer{
		evo.BlendCrossover{Probability: 0.7, Alpha: 0.5},
		evo.GaussianMutator{Probability: 0.1, Sigma: 0.1},
	}
}

func newSumMin(opts Options) (Benchmark, error) {
	n, err := dimensions(opts, 3, 1)
	if err != nil {
		return Benchmark{}, err
	}
	p, err := erased[[]int](codec.IntCodec{Length: n, Min: 0, Max: 10}, problem.Scalar(func(values []int) float64 {
		sum := 0
		for _, v := range values {
			sum += v
		}
		return float64(sum)
	}))
	if err != nil {
		return Benchmark{}, err
	}
	return Benchmark{
		Objective: objective.Single(objective.Minimize),
		Problem:   p,
		Distance:  species.EuclideanDistance{},
		Alterers: []evo.Alterer{
			evo.UniformCrossover{Probability: 1, SwapProbability: 0.5},
			evo.UniformMutator{Probability: 0.2},
		},
		Optimum: optimum(0),
	}, nil
}

func newSphere(opts Options) (Benchmark, error) {
	n, err := dimensions(opts, 10, 1)
	if err != nil {
		return Benchmark{}, err
	}
	p, err := erased[[]float64](codec.FloatCodec{Length: n, Min: -rastriginBound, Max: rastriginBound}, problem.Scalar(sphere))
	if err != nil {
		return Benchmark{}, err
	}
	return Benchmark{
		Objective: objective.Single(objective.Minimize),
		Problem:   p,
		Distance:  species.EuclideanDistance{},
		Alterers:  realAlterers(),
		Optimum:   optimum(0),
	}, nil
}

func newRastrigin(opts Options) (Benchmark, error) {
	n, err := dimensions(opts, 10, 1)
	if err != nil {
		return Benchmark{}, err
	}
	p, err := erased[[]float64](codec.FloatCodec{Length: n, Min: -rastriginBound, Max: rastriginBound}, problem.Scalar(rastrigin))
	if err != nil {
		return Benchmark{}, err
	}
	return Benchmark{
		Objective: objective.Single(objective.Minimize),
		Problem:   p,
		Distance:  species.EuclideanDistance{},
		Alterers:  realAlterers(),
		Optimum:   optimum(0),
	}, nil
}

func sphere(x []float64) float64 {
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return sum
}

func rastrigin(x []float64) float64 {
	sum := 10 * float64(len(x))
	for _, v := range x {
		sum += v*v - 10*math.Cos(2*math.Pi*v)
	}
	return sum
}
