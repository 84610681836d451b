// Package pareto maintains a bounded set of mutually non-dominating
// individuals across epochs.
package pareto

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"phylon/internal/genome"
	"phylon/internal/objective"
)

var ErrInvalidRange = errors.New("invalid front size range")

// Range bounds the front size. Min must be positive and not exceed Max.
type Range struct {
	Min int
	Max int
}

func (r Range) Validate() error {
	if r.Min <= 0 {
		return fmt.Errorf("%w: min must be > 0, got %d", ErrInvalidRange, r.Min)
	}
	if r.Max < r.Min {
		return fmt.Errorf("%w: max %d < min %d", ErrInvalidRange, r.Max, r.Min)
	}
	return nil
}

// UpdateStats reports the effect of one Update call.
type UpdateStats struct {
	Added   int
	Removed int
	Trimmed int
}

// Front is not safe for concurrent use; the engine owns it exclusively.
type Front struct {
	objective objective.Objective
	size      Range
	members   genome.Population
}

func NewFront(obj objective.Objective, size Range) (*Front, error) {
	if err := size.Validate(); err != nil {
		return nil, err
	}
	return &Front{objective: obj, size: size}, nil
}

func (f *Front) Len() int {
	return len(f.members)
}

func (f *Front) Range() Range {
	return f.size
}

// Members returns an independent copy of the current front.
func (f *Front) Members() genome.Population {
	return f.members.Clone()
}

// Update offers every evaluated, valid candidate to the front. A candidate is
// admitted when no member dominates it and no member carries an identical
// score; admission evicts the members it dominates. Whenever the front grows
// past Max it is trimmed back to Max by dropping the most crowded member,
// recomputing crowding after each drop.
func (f *Front) Update(rng *rand.Rand, candidates genome.Population) UpdateStats {
	var stats UpdateStats
	for i := range candidates {
		candidate := candidates[i]
		if !candidate.IsEvaluated() || !candidate.IsValid() {
			continue
		}
		if !f.admissible(candidate.Score) {
			continue
		}

		kept := f.members[:0:0]
		for _, member := range f.members {
			if f.objective.Dominates(candidate.Score, member.Score) {
				stats.Removed++
				continue
			}
			kept = append(kept, member)
		}
		f.members = append(kept, candidate.Clone())
		stats.Added++

		if len(f.members) > f.size.Max {
			stats.Trimmed += f.trim(rng, f.size.Max)
		}
	}
	return stats
}

func (f *Front) admissible(score genome.Score) bool {
	for _, member := range f.members {
		if member.Score.Equal(score) || f.objective.Dominates(member.Score, score) {
			return false
		}
	}
	return true
}

func (f *Front) trim(rng *rand.Rand, target int) int {
	removed := 0
	for len(f.members) > target {
		distances := objective.CrowdingDistances(f.members.Scores())
		smallest := math.Inf(1)
		var candidates []int
		for i, d := range distances {
			switch {
			case d < smallest:
				smallest = d
				candidates = candidates[:0]
				candidates = append(candidates, i)
			case d == smallest:
				candidates = append(candidates, i)
			}
		}
		drop := candidates[0]
		if len(candidates) > 1 {
			drop = candidates[rng.Intn(len(candidates))]
		}
		f.members = append(f.members[:drop], f.members[drop+1:]...)
		removed++
	}
	return removed
}
