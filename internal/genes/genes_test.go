package genes

import (
	"math"
	"math/rand"
	"testing"
)

func TestIntGeneBoundsAndRounding(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		g := NewIntGene(rng, -2, 2)
		if !g.IsValid() {
			t.Fatalf("random int gene out of range: %+v", g)
		}
	}
	g := IntGene{Value: 1, Min: 0, Max: 3}
	if got := g.WithFloat64(2.6).Float64(); got != 3 {
		t.Fatalf("expected rounding to 3, got %f", got)
	}
	if got := g.WithFloat64(7).Clamp().Float64(); got != 3 {
		t.Fatalf("expected clamp to 3, got %f", got)
	}
	if got := g.WithAllele("x").Allele(); got != 1 {
		t.Fatalf("wrong allele type must be ignored, got %v", got)
	}
}

func TestFloatGeneRejectsNaN(t *testing.T) {
	g := FloatGene{Value: math.NaN(), Min: 0, Max: 1}
	if g.IsValid() {
		t.Fatal("NaN allele must be invalid")
	}
	lo, hi := g.Bounds()
	if lo != 0 || hi != 1 {
		t.Fatalf("unexpected bounds %f %f", lo, hi)
	}
}

func TestBitAndCharGenes(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	if got := (BitGene{}).WithAllele(true).Allele(); got != true {
		t.Fatalf("unexpected bit allele %v", got)
	}
	charset := []rune("ab")
	c := CharGene{Value: 'a', Charset: charset}
	for i := 0; i < 20; i++ {
		if !c.NewInstance(rng).IsValid() {
			t.Fatal("random char outside charset")
		}
	}
	if c.WithAllele('z').IsValid() {
		t.Fatal("char outside charset must be invalid")
	}
}
