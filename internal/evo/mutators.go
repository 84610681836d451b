package evo

import (
	"math/rand"

	"phylon/internal/genome"
)

// mapGenes applies fn to every gene selected with probability rate and
// rebuilds only the chromosomes that changed.
func mapGenes(rng *rand.Rand, g genome.Genotype, rate float64, fn func(genome.Gene) (genome.Gene, bool)) (genome.Genotype, int) {
	if rate <= 0 {
		return g, 0
	}
	out := g
	total := 0
	for ci := 0; ci < g.Len(); ci++ {
		chromosome := g.Chromosome(ci)
		var genes []genome.Gene
		for gi := 0; gi < chromosome.Len(); gi++ {
			if rng.Float64() >= rate {
				continue
			}
			replacement, ok := fn(chromosome.Gene(gi))
			if !ok {
				continue
			}
			if genes == nil {
				genes = chromosome.Genes()
			}
			genes[gi] = replacement
			total++
		}
		if genes != nil {
			out = out.WithChromosome(ci, genome.NewChromosome(genes))
		}
	}
	return out, total
}

// UniformMutator replaces each gene, with probability Probability, by a
// fresh random instance.
type UniformMutator struct {
	Probability float64
}

func (UniformMutator) Name() string    { return "uniform_mutator" }
func (m UniformMutator) Rate() float64 { return m.Probability }

func (m UniformMutator) Mutate(rng *rand.Rand, g genome.Genotype) (genome.Genotype, int) {
	return mapGenes(rng, g, m.Probability, func(gene genome.Gene) (genome.Gene, bool) {
		return gene.NewInstance(rng), true
	})
}

// GaussianMutator perturbs numeric genes by a normal draw whose standard
// deviation is Sigma times the gene's range, then clamps into bounds.
// Non-numeric genes are left alone.
type GaussianMutator struct {
	Probability float64
	Sigma       float64
}

func (GaussianMutator) Name() string    { return "gaussian_mutator" }
func (m GaussianMutator) Rate() float64 { return m.Probability }

func (m GaussianMutator) Mutate(rng *rand.Rand, g genome.Genotype) (genome.Genotype, int) {
	sigma := m.Sigma
	if sigma <= 0 {
		sigma = 0.1
	}
	return mapGenes(rng, g, m.Probability, func(gene genome.Gene) (genome.Gene, bool) {
		numeric, ok := gene.(genome.NumericGene)
		if !ok {
			return gene, false
		}
		lo, hi := numeric.Bounds()
		v := numeric.Float64() + rng.NormFloat64()*sigma*(hi-lo)
		return numeric.WithFloat64(v).Clamp(), true
	})
}

// ArithmeticMutator shifts numeric genes by a uniform delta in
// [-Step, Step] times the gene's range without clamping. Genes pushed out of
// bounds become invalid and the owning phenotype is replaced by the engine.
type ArithmeticMutator struct {
	Probability float64
	Step        float64
}

func (ArithmeticMutator) Name() string    { return "arithmetic_mutator" }
func (m ArithmeticMutator) Rate() float64 { return m.Probability }

func (m ArithmeticMutator) Mutate(rng *rand.Rand, g genome.Genotype) (genome.Genotype, int) {
	step := m.Step
	if step <= 0 {
		step = 0.1
	}
	return mapGenes(rng, g, m.Probability, func(gene genome.Gene) (genome.Gene, bool) {
		numeric, ok := gene.(genome.NumericGene)
		if !ok {
			return gene, false
		}
		lo, hi := numeric.Bounds()
		delta := numeric.WithFloat64((rng.Float64()*2 - 1) * step * (hi - lo))
		return genome.Add(numeric, delta), true
	})
}

// SwapMutator exchanges each gene, with probability Probability, with
// another random position of the same chromosome. It preserves
// permutations.
type SwapMutator struct {
	Probability float64
}

func (SwapMutator) Name() string    { return "swap_mutator" }
func (m SwapMutator) Rate() float64 { return m.Probability }

func (m SwapMutator) Mutate(rng *rand.Rand, g genome.Genotype) (genome.Genotype, int) {
	if m.Probability <= 0 {
		return g, 0
	}
	out := g
	total := 0
	for ci := 0; ci < g.Len(); ci++ {
		chromosome := g.Chromosome(ci)
		n := chromosome.Len()
		if n < 2 {
			continue
		}
		var genes []genome.Gene
		for i := 0; i < n; i++ {
			if rng.Float64() >= m.Probability {
				continue
			}
			if genes == nil {
				genes = chromosome.Genes()
			}
			j := rng.Intn(n)
			genes[i], genes[j] = genes[j], genes[i]
			total++
		}
		if genes != nil {
			out = out.WithChromosome(ci, genome.NewChromosome(genes))
		}
	}
	return out, total
}

// segmentMutator rewrites a random [i, j) slice of each chromosome selected
// with probability rate.
func segmentMutator(rng *rand.Rand, g genome.Genotype, rate float64, fn func(segment []genome.Gene)) (genome.Genotype, int) {
	if rate <= 0 {
		return g, 0
	}
	out := g
	total := 0
	for ci := 0; ci < g.Len(); ci++ {
		chromosome := g.Chromosome(ci)
		n := chromosome.Len()
		if n < 2 || rng.Float64() >= rate {
			continue
		}
		i := rng.Intn(n - 1)
		j := i + 2 + rng.Intn(n-i-1)
		genes := chromosome.Genes()
		fn(genes[i:j])
		out = out.WithChromosome(ci, genome.NewChromosome(genes))
		total++
	}
	return out, total
}

// ScrambleMutator shuffles a random segment of each chromosome with
// probability Probability.
type ScrambleMutator struct {
	Probability float64
}

func (ScrambleMutator) Name() string    { return "scramble_mutator" }
func (m ScrambleMutator) Rate() float64 { return m.Probability }

func (m ScrambleMutator) Mutate(rng *rand.Rand, g genome.Genotype) (genome.Genotype, int) {
	return segmentMutator(rng, g, m.Probability, func(segment []genome.Gene) {
		rng.Shuffle(len(segment), func(a, b int) { segment[a], segment[b] = segment[b], segment[a] })
	})
}

// InversionMutator reverses a random segment of each chromosome with
// probability Probability.
type InversionMutator struct {
	Probability float64
}

func (InversionMutator) Name() string    { return "inversion_mutator" }
func (m InversionMutator) Rate() float64 { return m.Probability }

func (m InversionMutator) Mutate(rng *rand.Rand, g genome.Genotype) (genome.Genotype, int) {
	return segmentMutator(rng, g, m.Probability, func(segment []genome.Gene) {
		for a, b := 0, len(segment)-1; a < b; a, b = a+1, b-1 {
			segment[a], segment[b] = segment[b], segment[a]
		}
	})
}
