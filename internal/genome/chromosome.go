package genome

import "math/rand"

// Chromosome is a fixed-length ordered sequence of genes of one kind.
type Chromosome struct {
	genes []Gene
}

func NewChromosome(genes []Gene) Chromosome {
	return Chromosome{genes: append([]Gene(nil), genes...)}
}

func (c Chromosome) Len() int {
	return len(c.genes)
}

func (c Chromosome) Gene(i int) Gene {
	return c.genes[i]
}

// Genes returns a copy of the gene sequence that callers may modify and pass
// back to NewChromosome.
func (c Chromosome) Genes() []Gene {
	return append([]Gene(nil), c.genes...)
}

func (c Chromosome) WithGene(i int, gene Gene) Chromosome {
	genes := c.Genes()
	genes[i] = gene
	return Chromosome{genes: genes}
}

func (c Chromosome) IsValid() bool {
	for _, gene := range c.genes {
		if gene == nil || !gene.IsValid() {
			return false
		}
	}
	return true
}

func (c Chromosome) NewInstance(rng *rand.Rand) Chromosome {
	genes := make([]Gene, len(c.genes))
	for i, gene := range c.genes {
		genes[i] = gene.NewInstance(rng)
	}
	return Chromosome{genes: genes}
}

func (c Chromosome) Clone() Chromosome {
	return NewChromosome(c.genes)
}

func (c Chromosome) Alleles() []any {
	out := make([]any, len(c.genes))
	for i, gene := range c.genes {
		out[i] = gene.Allele()
	}
	return out
}
