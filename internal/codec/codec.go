// Package codec bridges problem-space values and genotypes.
package codec

import (
	"fmt"
	"math/rand"

	"phylon/internal/genes"
	"phylon/internal/genome"
)

// Codec encodes random genotypes and decodes them back into values of T.
type Codec[T any] interface {
	Encode(rng *rand.Rand) genome.Genotype
	Decode(g genome.Genotype) T
}

// IntCodec encodes a single chromosome of Length integers in [Min, Max].
type IntCodec struct {
	Length int
	Min    int
	Max    int
}

func (c IntCodec) Encode(rng *rand.Rand) genome.Genotype {
	gs := make([]genome.Gene, c.Length)
	for i := range gs {
		gs[i] = genes.NewIntGene(rng, c.Min, c.Max)
	}
	return genome.NewGenotype(genome.NewChromosome(gs))
}

func (IntCodec) Decode(g genome.Genotype) []int {
	out := make([]int, 0, g.GeneCount())
	for _, gene := range g.Genes() {
		v, _ := gene.Allele().(int)
		out = append(out, v)
	}
	return out
}

// FloatCodec encodes a single chromosome of Length floats in [Min, Max].
type FloatCodec struct {
	Length int
	Min    float64
	Max    float64
}

func (c FloatCodec) Encode(rng *rand.Rand) genome.Genotype {
	gs := make([]genome.Gene, c.Length)
	for i := range gs {
		gs[i] = genes.NewFloatGene(rng, c.Min, c.Max)
	}
	return genome.NewGenotype(genome.NewChromosome(gs))
}

func (FloatCodec) Decode(g genome.Genotype) []float64 {
	out := make([]float64, 0, g.GeneCount())
	for _, gene := range g.Genes() {
		v, _ := gene.Allele().(float64)
		out = append(out, v)
	}
	return out
}

// BitCodec encodes Chromosomes chromosomes of Length bits each.
type BitCodec struct {
	Chromosomes int
	Length      int
}

func (c BitCodec) Encode(rng *rand.Rand) genome.Genotype {
	count := c.Chromosomes
	if count <= 0 {
		count = 1
	}
	chromosomes := make([]genome.Chromosome, count)
	for i := range chromosomes {
		gs := make([]genome.Gene, c.Length)
		for j := range gs {
			gs[j] = genes.BitGene{}.NewInstance(rng)
		}
		chromosomes[i] = genome.NewChromosome(gs)
	}
	return genome.NewGenotype(chromosomes...)
}

func (BitCodec) Decode(g genome.Genotype) []bool {
	out := make([]bool, 0, g.GeneCount())
	for _, gene := range g.Genes() {
		v, _ := gene.Allele().(bool)
		out = append(out, v)
	}
	return out
}

// CharCodec encodes strings of Length runes drawn from Charset.
type CharCodec struct {
	Length  int
	Charset string
}

func (c CharCodec) Encode(rng *rand.Rand) genome.Genotype {
	charset := []rune(c.Charset)
	gs := make([]genome.Gene, c.Length)
	for i := range gs {
		gs[i] = genes.CharGene{Charset: charset}.NewInstance(rng)
	}
	return genome.NewGenotype(genome.NewChromosome(gs))
}

func (CharCodec) Decode(g genome.Genotype) string {
	out := make([]rune, 0, g.GeneCount())
	for _, gene := range g.Genes() {
		v, _ := gene.Allele().(rune)
		out = append(out, v)
	}
	return string(out)
}

// PermutationCodec encodes orderings of Items as a chromosome of indices.
type PermutationCodec[T any] struct {
	Items []T
}

func (c PermutationCodec[T]) Encode(rng *rand.Rand) genome.Genotype {
	n := len(c.Items)
	order := rng.Perm(n)
	gs := make([]genome.Gene, n)
	for i, idx := range order {
		gs[i] = genes.IntGene{Value: idx, Min: 0, Max: n - 1}
	}
	return genome.NewGenotype(genome.NewChromosome(gs))
}

func (c PermutationCodec[T]) Decode(g genome.Genotype) []T {
	out := make([]T, 0, len(c.Items))
	for _, gene := range g.Genes() {
		idx, _ := gene.Allele().(int)
		if idx >= 0 && idx < len(c.Items) {
			out = append(out, c.Items[idx])
		}
	}
	return out
}

// Validate reports malformed codec settings.
func (c IntCodec) Validate() error {
	if c.Length <= 0 {
		return fmt.Errorf("int codec length must be > 0")
	}
	if c.Min > c.Max {
		return fmt.Errorf("int codec min %d exceeds max %d", c.Min, c.Max)
	}
	return nil
}

func (c FloatCodec) Validate() error {
	if c.Length <= 0 {
		return fmt.Errorf("float codec length must be > 0")
	}
	if c.Min > c.Max {
		return fmt.Errorf("float codec min %f exceeds max %f", c.Min, c.Max)
	}
	return nil
}
