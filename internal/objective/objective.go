// Package objective compares scores under per-channel optimization
// directions and ranks populations best-first.
package objective

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"phylon/internal/genome"
)

type Optimize int

const (
	Maximize Optimize = iota
	Minimize
)

func (o Optimize) String() string {
	if o == Minimize {
		return "min"
	}
	return "max"
}

// ParseOptimize accepts "min"/"minimize" and "max"/"maximize".
func ParseOptimize(s string) (Optimize, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "min", "minimize":
		return Minimize, nil
	case "max", "maximize", "":
		return Maximize, nil
	default:
		return Maximize, fmt.Errorf("unknown optimize direction: %s", s)
	}
}

// better reports whether a is strictly better than b on one channel.
func (o Optimize) better(a, b float64) bool {
	if o == Minimize {
		return a < b
	}
	return a > b
}

type Ordering int

const (
	Worse Ordering = iota - 1
	Equal
	Better
)

var ErrScoreArity = errors.New("score arity does not match objective")

// Objective holds one direction per score channel. It is immutable.
type Objective struct {
	directions []Optimize
}

func Single(direction Optimize) Objective {
	return Objective{directions: []Optimize{direction}}
}

func Multi(directions ...Optimize) Objective {
	return Objective{directions: append([]Optimize(nil), directions...)}
}

func (o Objective) Len() int {
	return len(o.directions)
}

func (o Objective) IsMulti() bool {
	return len(o.directions) > 1
}

func (o Objective) Direction(i int) Optimize {
	return o.directions[i]
}

func (o Objective) Directions() []Optimize {
	return append([]Optimize(nil), o.directions...)
}

func (o Objective) String() string {
	parts := make([]string, len(o.directions))
	for i, d := range o.directions {
		parts[i] = d.String()
	}
	return strings.Join(parts, ",")
}

// Validate checks that score has one finite-or-infinite value per channel.
func (o Objective) Validate(score genome.Score) error {
	if score.Len() != len(o.directions) {
		return fmt.Errorf("%w: got=%d want=%d", ErrScoreArity, score.Len(), len(o.directions))
	}
	for i := 0; i < score.Len(); i++ {
		if math.IsNaN(score.At(i)) {
			return fmt.Errorf("score channel %d is NaN", i)
		}
	}
	return nil
}

// Compare orders a against b. Single-objective scores compare on the one
// channel; vector scores compare by Pareto dominance and mutually
// non-dominating scores are Equal. Unevaluated scores are worse than any
// evaluated score.
func (o Objective) Compare(a, b genome.Score) Ordering {
	switch {
	case a.IsZero() && b.IsZero():
		return Equal
	case a.IsZero():
		return Worse
	case b.IsZero():
		return Better
	}
	if !o.IsMulti() {
		d := o.directions[0]
		switch {
		case d.better(a.At(0), b.At(0)):
			return Better
		case d.better(b.At(0), a.At(0)):
			return Worse
		default:
			return Equal
		}
	}
	switch {
	case o.Dominates(a, b):
		return Better
	case o.Dominates(b, a):
		return Worse
	default:
		return Equal
	}
}

func (o Objective) IsBetter(a, b genome.Score) bool {
	return o.Compare(a, b) == Better
}

// Dominates reports whether a is no worse than b on every channel and
// strictly better on at least one.
func (o Objective) Dominates(a, b genome.Score) bool {
	if a.Len() != len(o.directions) || b.Len() != len(o.directions) {
		return false
	}
	strictly := false
	for i, d := range o.directions {
		av, bv := a.At(i), b.At(i)
		if d.better(bv, av) {
			return false
		}
		if d.better(av, bv) {
			strictly = true
		}
	}
	return strictly
}

// Sort returns a copy of pop ordered best-first. Single-objective populations
// are ordered by Compare; multi-objective populations by ascending
// non-dominated rank, then descending crowding distance within a rank. The
// sort is stable so ties keep insertion order. Unevaluated members sort last.
func (o Objective) Sort(pop genome.Population) genome.Population {
	out := append(genome.Population(nil), pop...)
	if !o.IsMulti() {
		sort.SliceStable(out, func(i, j int) bool {
			return o.Compare(out[i].Score, out[j].Score) == Better
		})
		return out
	}

	ranks, crowding := RanksAndCrowding(o, out)

	order := make([]int, len(out))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if ranks[a] != ranks[b] {
			return ranks[a] < ranks[b]
		}
		return crowding[a] > crowding[b]
	})
	sorted := make(genome.Population, len(out))
	for i, idx := range order {
		sorted[i] = out[idx]
	}
	return sorted
}

// Best returns the index of the best member, or -1 when none is evaluated.
func (o Objective) Best(pop genome.Population) int {
	best := -1
	for i := range pop {
		if !pop[i].IsEvaluated() {
			continue
		}
		if best == -1 || o.IsBetter(pop[i].Score, pop[best].Score) {
			best = i
		}
	}
	return best
}
