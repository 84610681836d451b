package evo

import (
	"math"
	"sort"

	"phylon/internal/genome"
	"phylon/internal/objective"
	"phylon/internal/species"
)

type speciesQuota struct {
	SpeciesKey string
	// Members are indices into the ranked population, best first.
	Members []int
	Count   int
}

// buildSpeciesOffspringPlan splits totalOffspring across species in
// proportion to each species' mean normalized fitness, rounding by largest
// remainder. Species scores are shared by all members, so one crowded
// niche cannot claim the whole offspring budget.
func buildSpeciesOffspringPlan(ranked genome.Population, obj objective.Objective, result species.Result, totalOffspring int) []speciesQuota {
	if totalOffspring <= 0 || len(ranked) == 0 || len(result.Species) == 0 {
		return nil
	}
	fitness := normalizedFitness(ranked, obj)

	type agg struct {
		key     string
		members []int
		sum     float64
		score   float64
	}
	buckets := make([]*agg, len(result.Species))
	for i, s := range result.Species {
		buckets[i] = &agg{key: s.Key}
	}
	for idx, s := range result.Assignment {
		if s < 0 || s >= len(buckets) {
			continue
		}
		buckets[s].members = append(buckets[s].members, idx)
		buckets[s].sum += fitness[idx]
	}

	byKey := make(map[string]*agg, len(buckets))
	keys := make([]string, 0, len(buckets))
	minMean := 0.0
	for _, bucket := range buckets {
		if len(bucket.members) == 0 {
			continue
		}
		bucket.score = bucket.sum / float64(len(bucket.members))
		if len(keys) == 0 || bucket.score < minMean {
			minMean = bucket.score
		}
		byKey[bucket.key] = bucket
		keys = append(keys, bucket.key)
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	shift := 0.0
	if minMean <= 0 {
		shift = -minMean + 1e-9
	}
	totalScore := 0.0
	for _, key := range keys {
		byKey[key].score += shift
		totalScore += byKey[key].score
	}
	if totalScore <= 0 {
		for _, key := range keys {
			byKey[key].score = 1.0
		}
		totalScore = float64(len(keys))
	}

	type alloc struct {
		key       string
		count     int
		remainder float64
	}
	allocs := make([]alloc, 0, len(keys))
	assigned := 0
	for _, key := range keys {
		share := byKey[key].score / totalScore * float64(totalOffspring)
		base := int(math.Floor(share))
		allocs = append(allocs, alloc{
			key:       key,
			count:     base,
			remainder: share - float64(base),
		})
		assigned += base
	}
	left := totalOffspring - assigned
	sort.Slice(allocs, func(i, j int) bool {
		if allocs[i].remainder == allocs[j].remainder {
			return allocs[i].key < allocs[j].key
		}
		return allocs[i].remainder > allocs[j].remainder
	})
	for i := 0; i < left; i++ {
		allocs[i%len(allocs)].count++
	}
	sort.Slice(allocs, func(i, j int) bool { return allocs[i].key < allocs[j].key })

	out := make([]speciesQuota, 0, len(allocs))
	for _, item := range allocs {
		if item.count <= 0 {
			continue
		}
		out = append(out, speciesQuota{
			SpeciesKey: item.key,
			Members:    byKey[item.key].members,
			Count:      item.count,
		})
	}
	return out
}
