// Package species partitions populations into persistent groups of
// genetically similar individuals.
package species

import (
	"math"

	"phylon/internal/genome"
)

// Distance measures genetic dissimilarity in [0, 1].
type Distance interface {
	Name() string
	Distance(a, b genome.Genotype) float64
}

// DistanceFunc adapts a plain function into a Distance.
type DistanceFunc func(a, b genome.Genotype) float64

func (DistanceFunc) Name() string { return "func" }

func (f DistanceFunc) Distance(a, b genome.Genotype) float64 {
	return clamp01(f(a, b))
}

// HammingDistance is the fraction of gene positions whose alleles differ.
// Positions present in only one genotype count as differences.
type HammingDistance struct{}

func (HammingDistance) Name() string { return "hamming" }

func (HammingDistance) Distance(a, b genome.Genotype) float64 {
	ga, gb := a.Genes(), b.Genes()
	longest := max(len(ga), len(gb))
	if longest == 0 {
		return 0
	}
	diff := longest - min(len(ga), len(gb))
	for i := 0; i < min(len(ga), len(gb)); i++ {
		if ga[i].Allele() != gb[i].Allele() {
			diff++
		}
	}
	return float64(diff) / float64(longest)
}

// EuclideanDistance is the root-mean-square gap between numeric genes, each
// normalized by its bounds. Non-numeric positions use allele equality.
type EuclideanDistance struct{}

func (EuclideanDistance) Name() string { return "euclidean" }

func (EuclideanDistance) Distance(a, b genome.Genotype) float64 {
	ga, gb := a.Genes(), b.Genes()
	n := min(len(ga), len(gb))
	longest := max(len(ga), len(gb))
	if longest == 0 {
		return 0
	}
	sum := float64(longest - n)
	for i := 0; i < n; i++ {
		d := normalizedGap(ga[i], gb[i])
		sum += d * d
	}
	return clamp01(math.Sqrt(sum / float64(longest)))
}

// CosineDistance maps the cosine similarity of the numeric gene vectors onto
// [0, 1], with 0 for identical directions.
type CosineDistance struct{}

func (CosineDistance) Name() string { return "cosine" }

func (CosineDistance) Distance(a, b genome.Genotype) float64 {
	ga, gb := a.Genes(), b.Genes()
	n := min(len(ga), len(gb))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, okx := ga[i].(genome.NumericGene)
		y, oky := gb[i].(genome.NumericGene)
		if !okx || !oky {
			continue
		}
		xv, yv := x.Float64(), y.Float64()
		dot += xv * yv
		na += xv * xv
		nb += yv * yv
	}
	if na == 0 && nb == 0 {
		return 0
	}
	if na == 0 || nb == 0 {
		return 1
	}
	similarity := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return clamp01((1 - similarity) / 2)
}

func normalizedGap(a, b genome.Gene) float64 {
	x, okx := a.(genome.NumericGene)
	y, oky := b.(genome.NumericGene)
	if !okx || !oky {
		if a.Allele() == b.Allele() {
			return 0
		}
		return 1
	}
	lo, hi := x.Bounds()
	span := hi - lo
	if span <= 0 {
		if x.Float64() == y.Float64() {
			return 0
		}
		return 1
	}
	return clamp01(math.Abs(x.Float64()-y.Float64()) / span)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
