package pareto

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"phylon/internal/genome"
	"phylon/internal/objective"
)

func candidate(id uint64, values ...float64) genome.Phenotype {
	gene := constGene{}
	return genome.Phenotype{
		ID:       id,
		Genotype: genome.NewGenotype(genome.NewChromosome([]genome.Gene{gene})),
		Score:    genome.NewScore(values...),
	}
}

type constGene struct{}

func (constGene) Allele() any { return 0 }
func (constGene) IsValid() bool { return true }
func (g constGene) NewInstance(_ *rand.Rand) genome.Gene { return g }
func (g constGene) WithAllele(_ any) genome.Gene { return g }

func requireMutuallyNonDominating(t *testing.T, obj objective.Objective, members genome.Population) {
	t.Helper()
	for i := range members {
		for j := range members {
			if i == j {
				continue
			}
			require.Falsef(t, obj.Dominates(members[i].Score, members[j].Score),
				"member %d dominates member %d", members[i].ID, members[j].ID)
		}
	}
}

func TestFrontTrimsByCrowdingDistance(t *testing.T) {
	obj := objective.Multi(objective.Minimize, objective.Minimize)
	front, err := NewFront(obj, Range{Min: 2, Max: 4})
	require.NoError(t, err)

	stats := front.Update(rand.New(rand.NewSource(1)), genome.Population{
		candidate(1, 0, 10),
		candidate(2, 1, 6),
		candidate(3, 2, 5),
		candidate(4, 6, 1),
		candidate(5, 10, 0),
	})

	require.Equal(t, 5, stats.Added)
	require.Equal(t, 1, stats.Trimmed)
	require.Equal(t, 4, front.Len())
	members := front.Members()
	requireMutuallyNonDominating(t, obj, members)

	kept := map[uint64]bool{}
	for _, m := range members {
		kept[m.ID] = true
	}
	require.True(t, kept[1] && kept[5], "boundary members are never trimmed")
	require.False(t, kept[2], "most crowded interior member is trimmed")
}

func TestFrontEvictsDominatedMembers(t *testing.T) {
	obj := objective.Multi(objective.Minimize, objective.Minimize)
	front, err := NewFront(obj, Range{Min: 1, Max: 10})
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(2))

	front.Update(rng, genome.Population{candidate(1, 3, 3), candidate(2, 1, 5)})
	require.Equal(t, 2, front.Len())

	stats := front.Update(rng, genome.Population{candidate(3, 2, 2), candidate(4, 4, 4)})
	require.Equal(t, 1, stats.Added)
	require.Equal(t, 1, stats.Removed)

	members := front.Members()
	require.Len(t, members, 2)
	requireMutuallyNonDominating(t, obj, members)
}

func TestFrontRejectsDuplicatesAndUnscored(t *testing.T) {
	obj := objective.Multi(objective.Maximize, objective.Maximize)
	front, err := NewFront(obj, Range{Min: 1, Max: 3})
	require.NoError(t, err)

	stats := front.Update(rand.New(rand.NewSource(3)), genome.Population{
		candidate(1, 1, 2),
		candidate(2, 1, 2),
		{ID: 3},
	})
	require.Equal(t, 1, stats.Added)
	require.Equal(t, 1, front.Len())
}

func TestFrontMembersAreIndependentCopies(t *testing.T) {
	obj := objective.Multi(objective.Minimize, objective.Minimize)
	front, err := NewFront(obj, Range{Min: 1, Max: 2})
	require.NoError(t, err)
	front.Update(rand.New(rand.NewSource(4)), genome.Population{candidate(1, 1, 1)})

	members := front.Members()
	members[0].Age = 99
	require.Equal(t, 0, front.Members()[0].Age)
}

func TestFrontStaysWithinBoundsAcrossManyUpdates(t *testing.T) {
	obj := objective.Multi(objective.Minimize, objective.Minimize)
	size := Range{Min: 3, Max: 6}
	front, err := NewFront(obj, size)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(5))

	id := uint64(0)
	for round := 0; round < 20; round++ {
		batch := make(genome.Population, 0, 10)
		for i := 0; i < 10; i++ {
			x := rng.Float64()
			id++
			batch = append(batch, candidate(id, x, 1-x+rng.Float64()*0.1))
		}
		front.Update(rng, batch)
		require.LessOrEqual(t, front.Len(), size.Max)
		requireMutuallyNonDominating(t, obj, front.Members())
	}
	require.GreaterOrEqual(t, front.Len(), size.Min)
}

func TestRangeValidate(t *testing.T) {
	require.ErrorIs(t, Range{Min: 0, Max: 3}.Validate(), ErrInvalidRange)
	require.ErrorIs(t, Range{Min: 4, Max: 3}.Validate(), ErrInvalidRange)
	require.NoError(t, Range{Min: 3, Max: 3}.Validate())
}
