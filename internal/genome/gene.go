// Package genome holds the generic containers evolved by the engine:
// genes, chromosomes, genotypes, phenotypes and populations. Containers are
// copy-on-write; nothing in this package mutates a value it was handed.
package genome

import "math/rand"

// Gene is the capability set the engine requires from any allele holder.
// Implementations must be immutable values.
type Gene interface {
	// Allele returns the raw value carried by the gene.
	Allele() any
	// IsValid reports whether the allele satisfies the gene's constraints.
	IsValid() bool
	// NewInstance returns a fresh random gene with the same constraints.
	NewInstance(rng *rand.Rand) Gene
	// WithAllele returns a gene with the same constraints holding allele.
	WithAllele(allele any) Gene
}

// NumericGene is implemented by genes whose allele maps onto a number.
type NumericGene interface {
	Gene
	Float64() float64
	Bounds() (lo, hi float64)
	// WithFloat64 returns a gene holding v. The result is not clamped and may
	// be invalid.
	WithFloat64(v float64) NumericGene
	Clamp() NumericGene
}

func Add(a, b NumericGene) NumericGene {
	return a.WithFloat64(a.Float64() + b.Float64())
}

func Sub(a, b NumericGene) NumericGene {
	return a.WithFloat64(a.Float64() - b.Float64())
}

func Mul(a, b NumericGene) NumericGene {
	return a.WithFloat64(a.Float64() * b.Float64())
}

func Mean(a, b NumericGene) NumericGene {
	return a.WithFloat64((a.Float64() + b.Float64()) / 2)
}
