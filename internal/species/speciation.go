package species

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"

	"phylon/internal/genome"
	"phylon/internal/objective"
)

var ErrInvalidConfig = errors.New("invalid speciation config")

// Species is a snapshot of one persistent group. Identity (Key) survives
// across generations; membership is rebuilt every pass.
type Species struct {
	Key            string
	Representative genome.Phenotype
	Members        genome.Population
	// Age counts the speciation passes this species has lived through.
	Age int
	// Stagnation counts consecutive passes without a new best score.
	Stagnation int
	BestScore  genome.Score
}

func (s Species) Clone() Species {
	s.Representative = s.Representative.Clone()
	s.Members = s.Members.Clone()
	if !s.BestScore.IsZero() {
		s.BestScore = genome.NewScore(s.BestScore.Values()...)
	}
	return s
}

// Stats summarizes one speciation pass.
type Stats struct {
	SpeciesCount       int
	Created            int
	Removed            int
	Extinct            int
	MeanSpeciesSize    float64
	LargestSpeciesSize int
}

// Result is the outcome of assigning a ranked population to species.
type Result struct {
	// Assignment holds the index into Species for every population member.
	Assignment []int
	Species    []Species
	Stats      Stats
}

// Members returns the population indices assigned to species i.
func (r Result) Members(i int) []int {
	var out []int
	for idx, s := range r.Assignment {
		if s == i {
			out = append(out, idx)
		}
	}
	return out
}

type Config struct {
	Distance  Distance
	Objective objective.Objective
	// Threshold is the distance below which an individual joins a species.
	Threshold float64
	// MaxAge is the number of passes without improvement after which a
	// species is dissolved. Zero disables pruning.
	MaxAge int
}

type group struct {
	key            string
	representative genome.Phenotype
	members        []int
	age            int
	stagnation     int
	best           genome.Score
	previous       genome.Population
}

// Speciator carries species identity across generations. It is owned by a
// single engine and is not safe for concurrent use.
type Speciator struct {
	cfg    Config
	groups []*group
	nextID int
}

func NewSpeciator(cfg Config) (*Speciator, error) {
	if cfg.Distance == nil {
		return nil, fmt.Errorf("%w: distance is required", ErrInvalidConfig)
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("%w: threshold must be in [0, 1], got %f", ErrInvalidConfig, cfg.Threshold)
	}
	if cfg.MaxAge < 0 {
		return nil, fmt.Errorf("%w: max age must be >= 0, got %d", ErrInvalidConfig, cfg.MaxAge)
	}
	if cfg.Objective.Len() == 0 {
		return nil, fmt.Errorf("%w: objective is required", ErrInvalidConfig)
	}
	return &Speciator{cfg: cfg, nextID: 1}, nil
}

// Speciate assigns every member of ranked (best-first) to exactly one
// species. Each surviving species first draws a new representative from its
// previous members; each member then joins the first species whose
// representative lies within the threshold, or founds a new one. Species
// without members go extinct. Species stagnant for longer than MaxAge are
// dissolved and their members reassigned in a second pass.
func (s *Speciator) Speciate(rng *rand.Rand, ranked genome.Population) Result {
	var stats Stats
	for _, g := range s.groups {
		if len(g.previous) > 0 {
			g.representative = g.previous[rng.Intn(len(g.previous))]
		}
		g.members = g.members[:0]
	}

	assignment := make([]int, len(ranked))
	for i := range assignment {
		assignment[i] = -1
	}
	pending := make([]int, len(ranked))
	for i := range pending {
		pending[i] = i
	}
	stats.Created += s.assign(ranked, pending)

	alive := s.groups[:0]
	for _, g := range s.groups {
		if len(g.members) == 0 {
			stats.Extinct++
			continue
		}
		alive = append(alive, g)
	}
	s.groups = alive

	var orphans []int
	kept := s.groups[:0]
	for _, g := range s.groups {
		s.track(g, ranked)
		if s.cfg.MaxAge > 0 && g.stagnation > s.cfg.MaxAge {
			stats.Removed++
			orphans = append(orphans, g.members...)
			continue
		}
		kept = append(kept, g)
	}
	s.groups = kept
	if len(orphans) > 0 {
		slices.Sort(orphans)
		stats.Created += s.assign(ranked, orphans)
		for _, g := range s.groups {
			if g.age == 0 {
				s.track(g, ranked)
			}
			slices.Sort(g.members)
		}
	}

	out := make([]Species, len(s.groups))
	largest, total := 0, 0
	for gi, g := range s.groups {
		members := make(genome.Population, len(g.members))
		for k, idx := range g.members {
			members[k] = ranked[idx]
			assignment[idx] = gi
		}
		g.previous = members
		out[gi] = Species{
			Key:            g.key,
			Representative: g.representative.Clone(),
			Members:        members.Clone(),
			Age:            g.age,
			Stagnation:     g.stagnation,
			BestScore:      g.best,
		}
		total += len(members)
		largest = max(largest, len(members))
	}
	stats.SpeciesCount = len(out)
	stats.LargestSpeciesSize = largest
	if len(out) > 0 {
		stats.MeanSpeciesSize = float64(total) / float64(len(out))
	}
	return Result{Assignment: assignment, Species: out, Stats: stats}
}

func (s *Speciator) assign(ranked genome.Population, indices []int) int {
	created := 0
	for _, idx := range indices {
		member := ranked[idx]
		joined := false
		for _, g := range s.groups {
			if s.cfg.Distance.Distance(g.representative.Genotype, member.Genotype) < s.cfg.Threshold {
				g.members = append(g.members, idx)
				joined = true
				break
			}
		}
		if joined {
			continue
		}
		s.groups = append(s.groups, &group{
			key:            fmt.Sprintf("sp-%03d", s.nextID),
			representative: member,
			members:        []int{idx},
		})
		s.nextID++
		created++
	}
	return created
}

// Len returns the number of live species.
func (s *Speciator) Len() int {
	return len(s.groups)
}

// track ages g by one pass and updates its best-score watermark.
func (s *Speciator) track(g *group, ranked genome.Population) {
	g.age++
	best := ranked[g.members[0]].Score
	for _, idx := range g.members[1:] {
		if s.cfg.Objective.IsBetter(ranked[idx].Score, best) {
			best = ranked[idx].Score
		}
	}
	if g.best.IsZero() || s.cfg.Objective.IsBetter(best, g.best) {
		g.best = best
		g.stagnation = 0
		return
	}
	g.stagnation++
}
