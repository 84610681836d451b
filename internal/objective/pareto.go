package objective

import (
	"math"
	"sort"

	"phylon/internal/genome"
)

// NonDominatedRanks assigns every score its Pareto front index (0 is the
// non-dominated set). Unevaluated scores are placed one rank behind the
// last evaluated front.
func NonDominatedRanks(o Objective, scores []genome.Score) []int {
	n := len(scores)
	ranks := make([]int, n)
	dominatedBy := make([][]int, n)
	domCount := make([]int, n)

	evaluated := make([]int, 0, n)
	for i, s := range scores {
		if !s.IsZero() {
			evaluated = append(evaluated, i)
		}
	}
	for x, i := range evaluated {
		for _, j := range evaluated[x+1:] {
			switch {
			case o.Dominates(scores[i], scores[j]):
				dominatedBy[i] = append(dominatedBy[i], j)
				domCount[j]++
			case o.Dominates(scores[j], scores[i]):
				dominatedBy[j] = append(dominatedBy[j], i)
				domCount[i]++
			}
		}
	}

	current := make([]int, 0, n)
	for _, i := range evaluated {
		if domCount[i] == 0 {
			current = append(current, i)
		}
	}
	rank := 0
	for len(current) > 0 {
		next := make([]int, 0)
		for _, i := range current {
			ranks[i] = rank
			for _, j := range dominatedBy[i] {
				domCount[j]--
				if domCount[j] == 0 {
					next = append(next, j)
				}
			}
		}
		sort.Ints(next)
		current = next
		rank++
	}
	for i, s := range scores {
		if s.IsZero() {
			ranks[i] = rank
		}
	}
	return ranks
}

// CrowdingDistances computes the NSGA-II crowding distance of every score in
// one front. For each channel members are ordered by value, ties keeping
// insertion order; the first and last in that order are boundary members
// and receive +Inf. Interior members add (next-prev)/(max-min). A channel
// whose values are all equal contributes nothing.
func CrowdingDistances(scores []genome.Score) []float64 {
	n := len(scores)
	distances := make([]float64, n)
	if n == 0 {
		return distances
	}
	if n <= 2 {
		for i := range distances {
			distances[i] = math.Inf(1)
		}
		return distances
	}

	channels := scores[0].Len()
	order := make([]int, n)
	for m := 0; m < channels; m++ {
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return scores[order[a]].At(m) < scores[order[b]].At(m)
		})
		lo := scores[order[0]].At(m)
		hi := scores[order[n-1]].At(m)
		span := hi - lo
		if span == 0 || math.IsInf(span, 0) || math.IsNaN(span) {
			continue
		}
		distances[order[0]] = math.Inf(1)
		distances[order[n-1]] = math.Inf(1)
		for k := 1; k < n-1; k++ {
			idx := order[k]
			if math.IsInf(distances[idx], 1) {
				continue
			}
			distances[idx] += (scores[order[k+1]].At(m) - scores[order[k-1]].At(m)) / span
		}
	}
	return distances
}

// groupByRank returns member indices per rank in insertion order.
func groupByRank(ranks []int) [][]int {
	maxRank := -1
	for _, r := range ranks {
		if r > maxRank {
			maxRank = r
		}
	}
	groups := make([][]int, maxRank+1)
	for i, r := range ranks {
		groups[r] = append(groups[r], i)
	}
	return groups
}

// RanksAndCrowding returns both measures for every member of pop.
func RanksAndCrowding(o Objective, pop genome.Population) ([]int, []float64) {
	scores := pop.Scores()
	ranks := NonDominatedRanks(o, scores)
	crowding := make([]float64, len(pop))
	for _, front := range groupByRank(ranks) {
		frontScores := make([]genome.Score, len(front))
		for k, idx := range front {
			frontScores[k] = scores[idx]
		}
		for k, d := range CrowdingDistances(frontScores) {
			crowding[front[k]] = d
		}
	}
	return ranks, crowding
}
