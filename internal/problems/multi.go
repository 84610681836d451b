package problems

import (
	"math"

	"phylon/internal/codec"
	"phylon/internal/evo"
	"phylon/internal/objective"
	"phylon/internal/problem"
	"phylon/internal/species"
)

func unitAlterers() []evo.Alterer {
	return []evo.Alterer{
		evo.BlendCrossover{Probability: 0.9, Alpha: 0.5},
		evo.GaussianMutator{Probability: 0.1, Sigma: 0.05},
	}
}

func newZDT1(opts Options) (Benchmark, error) {
	n, err := dimensions(opts, 30, 2)
	if err != nil {
		return Benchmark{}, err
	}
	p, err := erased[[]float64](codec.FloatCodec{Length: n, Min: 0, Max: 1}, problem.Vector(zdt1))
	if err != nil {
		return Benchmark{}, err
	}
	return Benchmark{
		Objective: objective.Multi(objective.Minimize, objective.Minimize),
		Problem:   p,
		Distance:  species.EuclideanDistance{},
		Alterers:  unitAlterers(),
	}, nil
}

func newDTLZ2(opts Options) (Benchmark, error) {
	n, err := dimensions(opts, 12, 3)
	if err != nil {
		return Benchmark{}, err
	}
	p, err := erased[[]float64](codec.FloatCodec{Length: n, Min: 0, Max: 1}, problem.Vector(dtlz2))
	if err != nil {
		return Benchmark{}, err
	}
	return Benchmark{
		Objective: objective.Multi(objective.Minimize, objective.Minimize, objective.Minimize),
		Problem:   p,
		Distance:  species.EuclideanDistance{},
		Alterers:  unitAlterers(),
	}, nil
}

func zdt1(x []float64) []float64 {
	f1 := x[0]
	sum := 0.0
	for _, v := range x[1:] {
		sum += v
	}
	g := 1 + 9*sum/float64(len(x)-1)
	return []float64{f1, g * (1 - math.Sqrt(f1/g))}
}

func dtlz2(x []float64) []float64 {
	g := 0.0
	for _, v := range x[2:] {
		g += (v - 0.5) * (v - 0.5)
	}
	a, b := x[0]*math.Pi/2, x[1]*math.Pi/2
	return []float64{
		(1 + g) * math.Cos(a) * math.Cos(b),
		(1 + g) * math.Cos(a) * math.Sin(b),
		(1 + g) * math.Sin(a),
	}
}
