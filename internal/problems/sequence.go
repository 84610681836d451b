package problems

import (
	"fmt"
	"math"

	"phylon/internal/codec"
	"phylon/internal/evo"
	"phylon/internal/objective"
	"phylon/internal/problem"
	"phylon/internal/species"
)

const (
	weaselTarget  = "METHINKS IT IS LIKE A WEASEL"
	weaselCharset = " ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

func newTargetString(opts Options) (Benchmark, error) {
	if opts.Dimensions != 0 && opts.Dimensions != len(weaselTarget) {
		return Benchmark{}, fmt.Errorf("target string has fixed length %d", len(weaselTarget))
	}
	p, err := erased[string](codec.CharCodec{Length: len(weaselTarget), Charset: weaselCharset}, problem.Scalar(func(s string) float64 {
		matches := 0
		for i, r := range []rune(s) {
			if i < len(weaselTarget) && rune(weaselTarget[i]) == r {
				matches++
			}
		}
		return float64(matches)
	}))
	if err != nil {
		return Benchmark{}, err
	}
	return Benchmark{
		Objective: objective.Single(objective.Maximize),
		Problem:   p,
		Distance:  species.HammingDistance{},
		Alterers: []evo.Alterer{
			evo.MultiPointCrossover{Probability: 0.7, Points: 2},
			evo.UniformMutator{Probability: 0.04},
		},
		Optimum: optimum(float64(len(weaselTarget))),
	}, nil
}

type city struct {
	X, Y float64
}

func (c city) String() string {
	return fmt.Sprintf("(%.3f,%.3f)", c.X, c.Y)
}

// circleCities places n cities evenly on the unit circle, so the optimal
// tour is the regular polygon perimeter.
func circleCities(n int) []city {
	cities := make([]city, n)
	for i := range cities {
		angle := 2 * math.Pi * float64(i) / float64(n)
		cities[i] = city{X: math.Cos(angle), Y: math.Sin(angle)}
	}
	return cities
}

func tourLength(tour []city) float64 {
	if len(tour) < 2 {
		return 0
	}
	length := 0.0
	for i := range tour {
		next := tour[(i+1)%len(tour)]
		length += math.Hypot(tour[i].X-next.X, tour[i].Y-next.Y)
	}
	return length
}

func newTSP(opts Options) (Benchmark, error) {
	n, err := dimensions(opts, 12, 3)
	if err != nil {
		return Benchmark{}, err
	}
	p, err := erased[[]city](codec.PermutationCodec[city]{Items: circleCities(n)}, problem.Scalar(tourLength))
	if err != nil {
		return Benchmark{}, err
	}
	return Benchmark{
		Objective: objective.Single(objective.Minimize),
		Problem:   p,
		Distance:  species.HammingDistance{},
		Alterers: []evo.Alterer{
			evo.PartiallyMappedCrossover{Probability: 0.7},
			evo.SwapMutator{Probability: 0.05},
			evo.InversionMutator{Probability: 0.2},
		},
		Optimum: optimum(2 * float64(n) * math.Sin(math.Pi/float64(n))),
	}, nil
}
