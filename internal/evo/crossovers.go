package evo

import (
	"math/rand"
	"sort"

	"phylon/internal/genome"
)

// crossChromosomes calls fn for every chromosome position shared by a and b
// with gene slices it may rewrite, and rebuilds the changed chromosomes.
func crossChromosomes(a, b genome.Genotype, fn func(ga, gb []genome.Gene) int) (genome.Genotype, genome.Genotype, int) {
	total := 0
	for ci := 0; ci < chromosomePairs(a, b); ci++ {
		ga := a.Chromosome(ci).Genes()
		gb := b.Chromosome(ci).Genes()
		n := fn(ga, gb)
		if n == 0 {
			continue
		}
		a = a.WithChromosome(ci, genome.NewChromosome(ga))
		b = b.WithChromosome(ci, genome.NewChromosome(gb))
		total += n
	}
	return a, b, total
}

// UniformCrossover swaps each gene position independently with probability
// SwapProbability.
type UniformCrossover struct {
	Probability     float64
	SwapProbability float64
}

func (UniformCrossover) Name() string    { return "uniform_crossover" }
func (c UniformCrossover) Rate() float64 { return c.Probability }

func (c UniformCrossover) Cross(rng *rand.Rand, a, b genome.Genotype) (genome.Genotype, genome.Genotype, int) {
	swap := c.SwapProbability
	if swap <= 0 || swap > 1 {
		swap = 0.5
	}
	return crossChromosomes(a, b, func(ga, gb []genome.Gene) int {
		count := 0
		for i := 0; i < min(len(ga), len(gb)); i++ {
			if rng.Float64() < swap {
				ga[i], gb[i] = gb[i], ga[i]
				count++
			}
		}
		return count
	})
}

// MultiPointCrossover cuts each chromosome at Points random positions and
// exchanges every other segment. One point gives single-point crossover.
type MultiPointCrossover struct {
	Probability float64
	Points      int
}

func (MultiPointCrossover) Name() string    { return "multi_point_crossover" }
func (c MultiPointCrossover) Rate() float64 { return c.Probability }

func (c MultiPointCrossover) Cross(rng *rand.Rand, a, b genome.Genotype) (genome.Genotype, genome.Genotype, int) {
	points := c.Points
	if points <= 0 {
		points = 1
	}
	return crossChromosomes(a, b, func(ga, gb []genome.Gene) int {
		n := min(len(ga), len(gb))
		if n < 2 {
			return 0
		}
		k := min(points, n-1)
		cuts := rng.Perm(n - 1)[:k]
		for i := range cuts {
			cuts[i]++
		}
		sort.Ints(cuts)
		cuts = append(cuts, n)
		count := 0
		start := 0
		for seg, end := range cuts {
			if seg%2 == 1 {
				for i := start; i < end; i++ {
					ga[i], gb[i] = gb[i], ga[i]
					count++
				}
			}
			start = end
		}
		return count
	})
}

// MeanCrossover replaces the numeric genes of the first child by the mean of
// both parents. The second child is left unchanged.
type MeanCrossover struct {
	Probability float64
}

func (MeanCrossover) Name() string    { return "mean_crossover" }
func (c MeanCrossover) Rate() float64 { return c.Probability }

func (c MeanCrossover) Cross(_ *rand.Rand, a, b genome.Genotype) (genome.Genotype, genome.Genotype, int) {
	return crossChromosomes(a, b, func(ga, gb []genome.Gene) int {
		count := 0
		for i := 0; i < min(len(ga), len(gb)); i++ {
			na, okA := ga[i].(genome.NumericGene)
			nb, okB := gb[i].(genome.NumericGene)
			if !okA || !okB || na.Float64() == nb.Float64() {
				continue
			}
			ga[i] = genome.Mean(na, nb).Clamp()
			count++
		}
		return count
	})
}

// BlendCrossover implements BLX-alpha: each child gene is drawn uniformly
// from the parents' interval widened by Alpha on both sides, then clamped.
type BlendCrossover struct {
	Probability float64
	Alpha       float64
}

func (BlendCrossover) Name() string    { return "blend_crossover" }
func (c BlendCrossover) Rate() float64 { return c.Probability }

func (c BlendCrossover) Cross(rng *rand.Rand, a, b genome.Genotype) (genome.Genotype, genome.Genotype, int) {
	alpha := c.Alpha
	if alpha <= 0 {
		alpha = 0.5
	}
	return crossChromosomes(a, b, func(ga, gb []genome.Gene) int {
		count := 0
		for i := 0; i < min(len(ga), len(gb)); i++ {
			na, okA := ga[i].(genome.NumericGene)
			nb, okB := gb[i].(genome.NumericGene)
			if !okA || !okB {
				continue
			}
			lo, hi := na.Float64(), nb.Float64()
			if lo > hi {
				lo, hi = hi, lo
			}
			d := hi - lo
			lo, hi = lo-alpha*d, hi+alpha*d
			ga[i] = na.WithFloat64(lo + rng.Float64()*(hi-lo)).Clamp()
			gb[i] = nb.WithFloat64(lo + rng.Float64()*(hi-lo)).Clamp()
			count++
		}
		return count
	})
}

// PartiallyMappedCrossover (PMX) exchanges a random segment between two
// permutations and repairs the remaining positions through the segment
// mapping, so both children stay permutations of the same alleles.
// Alleles must be comparable.
type PartiallyMappedCrossover struct {
	Probability float64
}

func (PartiallyMappedCrossover) Name() string    { return "pmx_crossover" }
func (c PartiallyMappedCrossover) Rate() float64 { return c.Probability }

func (c PartiallyMappedCrossover) Cross(rng *rand.Rand, a, b genome.Genotype) (genome.Genotype, genome.Genotype, int) {
	return crossChromosomes(a, b, func(ga, gb []genome.Gene) int {
		n := len(ga)
		if n < 2 || len(gb) != n {
			return 0
		}
		i := rng.Intn(n - 1)
		j := i + 1 + rng.Intn(n-i)
		childA := pmxChild(ga, gb, i, j)
		childB := pmxChild(gb, ga, i, j)
		count := 0
		for k := 0; k < n; k++ {
			if childA[k].Allele() != ga[k].Allele() {
				count++
			}
		}
		copy(ga, childA)
		copy(gb, childB)
		return count
	})
}

// pmxChild copies donor[i:j] into base and resolves duplicates outside the
// segment by following the donor-to-base mapping.
func pmxChild(base, donor []genome.Gene, i, j int) []genome.Gene {
	child := append([]genome.Gene(nil), base...)
	mapping := make(map[any]any, j-i)
	inSegment := make(map[any]struct{}, j-i)
	for k := i; k < j; k++ {
		child[k] = donor[k]
		mapping[donor[k].Allele()] = base[k].Allele()
		inSegment[donor[k].Allele()] = struct{}{}
	}
	for k := 0; k < len(child); k++ {
		if k >= i && k < j {
			continue
		}
		allele := base[k].Allele()
		for steps := 0; steps <= j-i; steps++ {
			if _, clash := inSegment[allele]; !clash {
				break
			}
			allele = mapping[allele]
		}
		child[k] = base[k].WithAllele(allele)
	}
	return child
}
