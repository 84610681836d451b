package evo

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"phylon/internal/genome"
	"phylon/internal/metrics"
)

// Alterer is one step of the alteration pipeline. Concrete alterers are
// either a Mutator or a Crossover.
type Alterer interface {
	Name() string
	// Rate is the per-unit mutation probability for mutators and the
	// per-invocation activation probability for crossovers.
	Rate() float64
}

// Mutator returns an altered copy of g and the number of units it changed.
// g itself is never modified.
type Mutator interface {
	Alterer
	Mutate(rng *rand.Rand, g genome.Genotype) (genome.Genotype, int)
}

// Crossover recombines two parents into two children and returns the
// number of units exchanged.
type Crossover interface {
	Alterer
	Cross(rng *rand.Rand, a, b genome.Genotype) (genome.Genotype, genome.Genotype, int)
}

// Pipeline applies alterers in declaration order; the output of each one is
// the input of the next.
type Pipeline struct {
	alterers []Alterer
}

func NewPipeline(alterers ...Alterer) (*Pipeline, error) {
	if len(alterers) == 0 {
		return nil, errors.New("at least one alterer is required")
	}
	for i, a := range alterers {
		if a == nil {
			return nil, fmt.Errorf("alterer is required at index %d", i)
		}
		switch a.(type) {
		case Mutator, Crossover:
		default:
			return nil, fmt.Errorf("alterer %s at index %d is neither a mutator nor a crossover", a.Name(), i)
		}
		if rate := a.Rate(); rate < 0 || rate > 1 {
			return nil, fmt.Errorf("alterer %s rate must be in [0,1], got %f", a.Name(), rate)
		}
	}
	return &Pipeline{alterers: append([]Alterer(nil), alterers...)}, nil
}

func (p *Pipeline) Alterers() []Alterer {
	return append([]Alterer(nil), p.alterers...)
}

// AlterResult holds the pipeline output, aligned by index with its input.
type AlterResult struct {
	Genotypes []genome.Genotype
	// Changed marks entries that at least one alterer modified.
	Changed []bool
	// Alterations is the total number of units changed.
	Alterations int
}

// Apply runs every alterer over the genotypes of offspring. The output
// always has exactly len(offspring) entries.
func (p *Pipeline) Apply(rng *rand.Rand, offspring genome.Population, sink *metrics.MetricSet) AlterResult {
	result := AlterResult{
		Genotypes: offspring.Genotypes(),
		Changed:   make([]bool, len(offspring)),
	}
	for _, a := range p.alterers {
		start := time.Now()
		var count int
		switch op := a.(type) {
		case Crossover:
			count = p.cross(rng, op, result)
		case Mutator:
			for i, g := range result.Genotypes {
				mutated, n := op.Mutate(rng, g)
				if n > 0 {
					result.Genotypes[i] = mutated
					result.Changed[i] = true
					count += n
				}
			}
		}
		result.Alterations += count
		if sink != nil {
			sink.AddCount("alter."+a.Name()+".count", count)
			sink.AddTime("alter."+a.Name()+".time", time.Since(start))
		}
	}
	return result
}

// cross gives every individual a Rate chance of mating with a random
// partner; both are replaced by the children.
func (p *Pipeline) cross(rng *rand.Rand, op Crossover, result AlterResult) int {
	n := len(result.Genotypes)
	if n < 2 {
		return 0
	}
	total := 0
	for i := 0; i < n; i++ {
		if rng.Float64() >= op.Rate() {
			continue
		}
		j := (i + 1 + rng.Intn(n-1)) % n
		a, b, count := op.Cross(rng, result.Genotypes[i], result.Genotypes[j])
		if count <= 0 {
			continue
		}
		result.Genotypes[i], result.Genotypes[j] = a, b
		result.Changed[i], result.Changed[j] = true, true
		total += count
	}
	return total
}

func chromosomePairs(a, b genome.Genotype) int {
	return min(a.Len(), b.Len())
}
