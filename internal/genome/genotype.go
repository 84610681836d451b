package genome

import "math/rand"

// Genotype is the complete encoded solution of one individual.
type Genotype struct {
	chromosomes []Chromosome
}

func NewGenotype(chromosomes ...Chromosome) Genotype {
	return Genotype{chromosomes: append([]Chromosome(nil), chromosomes...)}
}

func (g Genotype) Len() int {
	return len(g.chromosomes)
}

func (g Genotype) Chromosome(i int) Chromosome {
	return g.chromosomes[i]
}

func (g Genotype) Chromosomes() []Chromosome {
	return append([]Chromosome(nil), g.chromosomes...)
}

func (g Genotype) WithChromosome(i int, c Chromosome) Genotype {
	chromosomes := g.Chromosomes()
	chromosomes[i] = c
	return Genotype{chromosomes: chromosomes}
}

// IsValid reports whether every gene of every chromosome is valid. An empty
// genotype is invalid.
func (g Genotype) IsValid() bool {
	if len(g.chromosomes) == 0 {
		return false
	}
	for _, c := range g.chromosomes {
		if !c.IsValid() {
			return false
		}
	}
	return true
}

// Shape returns the chromosome lengths, used to detect arity changes.
func (g Genotype) Shape() []int {
	shape := make([]int, len(g.chromosomes))
	for i, c := range g.chromosomes {
		shape[i] = c.Len()
	}
	return shape
}

func (g Genotype) HasShape(shape []int) bool {
	if len(shape) != len(g.chromosomes) {
		return false
	}
	for i, c := range g.chromosomes {
		if c.Len() != shape[i] {
			return false
		}
	}
	return true
}

func (g Genotype) GeneCount() int {
	total := 0
	for _, c := range g.chromosomes {
		total += c.Len()
	}
	return total
}

// Genes flattens all chromosomes in order.
func (g Genotype) Genes() []Gene {
	out := make([]Gene, 0, g.GeneCount())
	for _, c := range g.chromosomes {
		out = append(out, c.genes...)
	}
	return out
}

func (g Genotype) NewInstance(rng *rand.Rand) Genotype {
	chromosomes := make([]Chromosome, len(g.chromosomes))
	for i, c := range g.chromosomes {
		chromosomes[i] = c.NewInstance(rng)
	}
	return Genotype{chromosomes: chromosomes}
}

func (g Genotype) Clone() Genotype {
	chromosomes := make([]Chromosome, len(g.chromosomes))
	for i, c := range g.chromosomes {
		chromosomes[i] = c.Clone()
	}
	return Genotype{chromosomes: chromosomes}
}
