package genome

import "math"

// Phenotype is a genotype together with its evaluation state.
type Phenotype struct {
	ID       uint64
	Genotype Genotype
	Score    Score
	// Age counts the generations this individual has survived.
	Age int
	// Generation is the epoch in which the individual was created.
	Generation int
	// Invalid marks a structurally broken individual found after alteration.
	Invalid bool
}

func NewPhenotype(id uint64, genotype Genotype, generation int) Phenotype {
	return Phenotype{ID: id, Genotype: genotype, Generation: generation}
}

func (p Phenotype) IsEvaluated() bool {
	return !p.Score.IsZero()
}

func (p Phenotype) IsValid() bool {
	return !p.Invalid && p.Genotype.IsValid()
}

func (p Phenotype) WithScore(score Score) Phenotype {
	p.Score = score
	return p
}

// Clone returns a deep copy that shares no mutable storage with p.
func (p Phenotype) Clone() Phenotype {
	p.Genotype = p.Genotype.Clone()
	if !p.Score.IsZero() {
		p.Score = NewScore(p.Score.values...)
	}
	return p
}

// Population is the ordered set of individuals evolved in one epoch.
type Population []Phenotype

func (pop Population) Clone() Population {
	if pop == nil {
		return nil
	}
	out := make(Population, len(pop))
	for i := range pop {
		out[i] = pop[i].Clone()
	}
	return out
}

func (pop Population) Genotypes() []Genotype {
	out := make([]Genotype, len(pop))
	for i := range pop {
		out[i] = pop[i].Genotype
	}
	return out
}

// Scores returns the score of every member; unevaluated members yield a zero
// Score.
func (pop Population) Scores() []Score {
	out := make([]Score, len(pop))
	for i := range pop {
		out[i] = pop[i].Score
	}
	return out
}

func (pop Population) Unevaluated() []int {
	var idx []int
	for i := range pop {
		if !pop[i].IsEvaluated() {
			idx = append(idx, i)
		}
	}
	return idx
}

func nan() float64 {
	return math.NaN()
}
