// Package genes provides the concrete gene kinds used by the bundled codecs
// and benchmark problems.
package genes

import (
	"math"
	"math/rand"

	"phylon/internal/genome"
)

// IntGene holds an integer allele within the inclusive range [Min, Max].
type IntGene struct {
	Value int
	Min   int
	Max   int
}

var _ genome.NumericGene = IntGene{}

func NewIntGene(rng *rand.Rand, lo, hi int) IntGene {
	return IntGene{Min: lo, Max: hi}.randomize(rng)
}

func (g IntGene) randomize(rng *rand.Rand) IntGene {
	g.Value = g.Min + rng.Intn(g.Max-g.Min+1)
	return g
}

func (g IntGene) Allele() any { return g.Value }

func (g IntGene) IsValid() bool { return g.Value >= g.Min && g.Value <= g.Max }

func (g IntGene) NewInstance(rng *rand.Rand) genome.Gene { return g.randomize(rng) }

func (g IntGene) WithAllele(allele any) genome.Gene {
	if v, ok := allele.(int); ok {
		g.Value = v
	}
	return g
}

func (g IntGene) Float64() float64 { return float64(g.Value) }

func (g IntGene) Bounds() (float64, float64) { return float64(g.Min), float64(g.Max) }

func (g IntGene) WithFloat64(v float64) genome.NumericGene {
	g.Value = int(math.Round(v))
	return g
}

func (g IntGene) Clamp() genome.NumericGene {
	g.Value = min(max(g.Value, g.Min), g.Max)
	return g
}

// FloatGene holds a float allele within [Min, Max].
type FloatGene struct {
	Value float64
	Min   float64
	Max   float64
}

var _ genome.NumericGene = FloatGene{}

func NewFloatGene(rng *rand.Rand, lo, hi float64) FloatGene {
	return FloatGene{Min: lo, Max: hi}.randomize(rng)
}

func (g FloatGene) randomize(rng *rand.Rand) FloatGene {
	g.Value = g.Min + rng.Float64()*(g.Max-g.Min)
	return g
}

func (g FloatGene) Allele() any { return g.Value }

func (g FloatGene) IsValid() bool {
	return !math.IsNaN(g.Value) && g.Value >= g.Min && g.Value <= g.Max
}

func (g FloatGene) NewInstance(rng *rand.Rand) genome.Gene { return g.randomize(rng) }

func (g FloatGene) WithAllele(allele any) genome.Gene {
	if v, ok := allele.(float64); ok {
		g.Value = v
	}
	return g
}

func (g FloatGene) Float64() float64 { return g.Value }

func (g FloatGene) Bounds() (float64, float64) { return g.Min, g.Max }

func (g FloatGene) WithFloat64(v float64) genome.NumericGene {
	g.Value = v
	return g
}

func (g FloatGene) Clamp() genome.NumericGene {
	g.Value = math.Min(math.Max(g.Value, g.Min), g.Max)
	return g
}

// BitGene holds a boolean allele. It is always valid.
type BitGene struct {
	Value bool
}

func (g BitGene) Allele() any { return g.Value }

func (g BitGene) IsValid() bool { return true }

func (g BitGene) NewInstance(rng *rand.Rand) genome.Gene {
	return BitGene{Value: rng.Intn(2) == 1}
}

func (g BitGene) WithAllele(allele any) genome.Gene {
	if v, ok := allele.(bool); ok {
		g.Value = v
	}
	return g
}

// CharGene holds a rune drawn from Charset.
type CharGene struct {
	Value   rune
	Charset []rune
}

func (g CharGene) Allele() any { return g.Value }

func (g CharGene) IsValid() bool {
	for _, r := range g.Charset {
		if r == g.Value {
			return true
		}
	}
	return false
}

func (g CharGene) NewInstance(rng *rand.Rand) genome.Gene {
	g.Value = g.Charset[rng.Intn(len(g.Charset))]
	return g
}

func (g CharGene) WithAllele(allele any) genome.Gene {
	if v, ok := allele.(rune); ok {
		g.Value = v
	}
	return g
}
