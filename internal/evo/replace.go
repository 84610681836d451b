package evo

import (
	"math/rand"

	"phylon/internal/genome"
)

// Encoder produces fresh random genotypes. Every problem.Problem is one.
type Encoder interface {
	Encode(rng *rand.Rand) genome.Genotype
}

// Replacement supplies the genotype that takes the place of an invalid or
// over-aged phenotype before a generation is finalized.
type Replacement interface {
	Name() string
	Replace(rng *rand.Rand, encoder Encoder, population genome.Population) genome.Genotype
}

// EncodeReplace reinitializes replaced individuals at random.
type EncodeReplace struct{}

func (EncodeReplace) Name() string {
	return "encode"
}

func (EncodeReplace) Replace(rng *rand.Rand, encoder Encoder, _ genome.Population) genome.Genotype {
	return encoder.Encode(rng)
}

// PopulationSampleReplace copies the genotype of a random valid member of
// the population, falling back to a fresh random genotype when none is
// valid.
type PopulationSampleReplace struct{}

func (PopulationSampleReplace) Name() string {
	return "sample"
}

func (PopulationSampleReplace) Replace(rng *rand.Rand, encoder Encoder, population genome.Population) genome.Genotype {
	eligible := make([]int, 0, len(population))
	for i, p := range population {
		if p.IsValid() {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) == 0 {
		return encoder.Encode(rng)
	}
	return population[eligible[rng.Intn(len(eligible))]].Genotype.Clone()
}
