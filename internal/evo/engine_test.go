package evo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"

	"phylon/internal/codec"
	"phylon/internal/genome"
	"phylon/internal/metrics"
	"phylon/internal/objective"
	"phylon/internal/pareto"
	"phylon/internal/problem"
	"phylon/internal/species"
)

func sumProblem(t *testing.T) problem.Problem[[]int] {
	t.Helper()
	p, err := problem.New[[]int](codec.IntCodec{Length: 3, Min: 0, Max: 10}, problem.Scalar(func(v []int) float64 {
		total := 0
		for _, x := range v {
			total += x
		}
		return float64(total)
	}))
	if err != nil {
		t.Fatalf("new problem: %v", err)
	}
	return p
}

func sphereProblem(t *testing.T) problem.Problem[[]float64] {
	t.Helper()
	p, err := problem.New[[]float64](codec.FloatCodec{Length: 4, Min: 0, Max: 1}, problem.Scalar(func(v []float64) float64 {
		total := 0.0
		for _, x := range v {
			total += (x - 0.5) * (x - 0.5)
		}
		return total
	}))
	if err != nil {
		t.Fatalf("new problem: %v", err)
	}
	return p
}

func genotypeKey(g genome.Genotype) string {
	key := ""
	for _, c := range g.Chromosomes() {
		key += fmt.Sprint(c.Alleles())
	}
	return key
}

func mustEngine[T any](t *testing.T, cfg Config[T]) *Engine[T] {
	t.Helper()
	engine, err := New(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func mustNext[T any](t *testing.T, engine *Engine[T]) Epoch[T] {
	t.Helper()
	epoch, err := engine.Next(context.Background())
	if err != nil {
		t.Fatalf("next epoch: %v", err)
	}
	return epoch
}

func TestEngineElitesSurviveUnchanged(t *testing.T) {
	engine := mustEngine(t, Config[[]int]{
		Problem:           sumProblem(t),
		PopulationSize:    6,
		OffspringFraction: 4.0 / 6.0,
		Objective:         objective.Single(objective.Minimize),
		SurvivorSelector:  EliteSelector{},
		Alterers:          []Alterer{UniformCrossover{Probability: 1.0}, SwapMutator{Probability: 0.0}},
		Seed:              1,
	})

	first := mustNext(t, engine)
	if first.Index != 1 {
		t.Fatalf("expected first epoch index 1, got %d", first.Index)
	}
	elites := first.Evaluated[:2]
	for _, elite := range elites {
		found := false
		for _, p := range first.Population {
			if p.ID == elite.ID && p.Score.Equal(elite.Score) && genotypeKey(p.Genotype) == genotypeKey(elite.Genotype) {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("elite %d with score %s missing from next population", elite.ID, elite.Score)
		}
	}

	second := mustNext(t, engine)
	for _, elite := range elites {
		found := false
		for _, p := range second.Evaluated {
			if p.ID == elite.ID && p.Score.Equal(elite.Score) {
				found = true
			}
		}
		if !found {
			t.Fatalf("elite %d was re-scored or lost in epoch 2", elite.ID)
		}
	}
	if second.Best.Score.Float64() > first.Best.Score.Float64() {
		t.Fatalf("best score regressed: %v -> %v", first.Best.Score, second.Best.Score)
	}
}

func TestEngineIsDeterministicAcrossWorkerCounts(t *testing.T) {
	run := func(workers int) []Epoch[[]int] {
		engine := mustEngine(t, Config[[]int]{
			Problem:          sumProblem(t),
			PopulationSize:   12,
			Objective:        objective.Single(objective.Maximize),
			Alterers:         []Alterer{UniformCrossover{Probability: 0.7}, UniformMutator{Probability: 0.2}},
			Distance:         species.HammingDistance{},
			SpeciesThreshold: 0.5,
			MaxSpeciesAge:    2,
			Workers:          workers,
			Seed:             7,
		})
		epochs := make([]Epoch[[]int], 0, 6)
		for i := 0; i < 6; i++ {
			epochs = append(epochs, mustNext(t, engine))
		}
		return epochs
	}

	serial := run(1)
	parallel := run(8)
	for i := range serial {
		a, b := serial[i], parallel[i]
		if a.Index != b.Index || !a.Best.Score.Equal(b.Best.Score) {
			t.Fatalf("epoch %d best differs: %s vs %s", a.Index, a.Best.Score, b.Best.Score)
		}
		if len(a.Population) != len(b.Population) || len(a.Species) != len(b.Species) {
			t.Fatalf("epoch %d shape differs", a.Index)
		}
		for j := range a.Population {
			pa, pb := a.Population[j], b.Population[j]
			if pa.ID != pb.ID || pa.Age != pb.Age || !pa.Score.Equal(pb.Score) || genotypeKey(pa.Genotype) != genotypeKey(pb.Genotype) {
				t.Fatalf("epoch %d member %d differs: %+v vs %+v", a.Index, j, pa, pb)
			}
		}
		for j := range a.Species {
			if a.Species[j].Key != b.Species[j].Key || len(a.Species[j].Members) != len(b.Species[j].Members) {
				t.Fatalf("epoch %d species %d differs", a.Index, j)
			}
		}
	}
}

func TestEnginePopulationSizeIsInvariant(t *testing.T) {
	for _, sel := range allSelectors() {
		engine := mustEngine(t, Config[[]int]{
			Problem:           sumProblem(t),
			PopulationSize:    9,
			OffspringFraction: 0.5,
			Objective:         objective.Single(objective.Maximize),
			SurvivorSelector:  sel,
			OffspringSelector: sel,
			Alterers: []Alterer{
				MultiPointCrossover{Probability: 0.8, Points: 2},
				ArithmeticMutator{Probability: 0.3, Step: 0.5},
			},
			MaxPhenotypeAge: 2,
			Seed:            3,
		})
		for i := 0; i < 5; i++ {
			epoch := mustNext(t, engine)
			if len(epoch.Population) != 9 {
				t.Fatalf("%s: epoch %d population size %d", sel.Name(), epoch.Index, len(epoch.Population))
			}
			if len(epoch.Evaluated) != 9 {
				t.Fatalf("%s: epoch %d evaluated size %d", sel.Name(), epoch.Index, len(epoch.Evaluated))
			}
		}
	}
}

func TestEngineReplacesInvalidIndividuals(t *testing.T) {
	set := metrics.NewMetricSet()
	engine := mustEngine(t, Config[[]float64]{
		Problem:        sphereProblem(t),
		PopulationSize: 10,
		Objective:      objective.Single(objective.Minimize),
		Alterers:       []Alterer{ArithmeticMutator{Probability: 0.9, Step: 0.9}},
		Replacement:    PopulationSampleReplace{},
		Seed:           5,
	})

	replaced := 0
	for i := 0; i < 6; i++ {
		epoch := mustNext(t, engine)
		for _, p := range epoch.Population {
			if !p.IsValid() || p.Invalid {
				t.Fatalf("epoch %d finalized invalid phenotype %d", epoch.Index, p.ID)
			}
		}
		replaced += epoch.Summary.ReplacedInvalid
		set = epoch.Metrics
	}
	if replaced == 0 {
		t.Fatal("expected invalid offspring to be replaced")
	}
	m, ok := set.Get("evo.replace.invalid")
	if !ok || int(m.Sum) != replaced {
		t.Fatalf("replacement metric mismatch: metric=%+v summary=%d", m, replaced)
	}
}

func TestEngineReplacesAgedIndividuals(t *testing.T) {
	engine := mustEngine(t, Config[[]int]{
		Problem:           sumProblem(t),
		PopulationSize:    6,
		OffspringFraction: 0.5,
		Objective:         objective.Single(objective.Maximize),
		SurvivorSelector:  EliteSelector{},
		Alterers:          []Alterer{SwapMutator{Probability: 0.1}},
		MaxPhenotypeAge:   1,
		Seed:              2,
	})

	aged := 0
	for i := 0; i < 5; i++ {
		epoch := mustNext(t, engine)
		for _, p := range epoch.Population {
			if p.Age > 1 {
				t.Fatalf("epoch %d phenotype %d has age %d", epoch.Index, p.ID, p.Age)
			}
		}
		aged += epoch.Summary.ReplacedAged
	}
	if aged == 0 {
		t.Fatal("expected elites to be retired by age")
	}
}

func TestEngineSpeciesPartitionPopulation(t *testing.T) {
	const threshold = 0.4
	distance := species.EuclideanDistance{}
	engine := mustEngine(t, Config[[]float64]{
		Problem:          sphereProblem(t),
		PopulationSize:   16,
		Objective:        objective.Single(objective.Minimize),
		Alterers:         []Alterer{BlendCrossover{Probability: 0.6}, GaussianMutator{Probability: 0.3}},
		Distance:         distance,
		SpeciesThreshold: threshold,
		MaxSpeciesAge:    3,
		Seed:             11,
	})

	for i := 0; i < 6; i++ {
		epoch := mustNext(t, engine)
		assigned := 0
		seen := map[string]bool{}
		for _, s := range epoch.Species {
			if seen[s.Key] {
				t.Fatalf("duplicate species key %s", s.Key)
			}
			seen[s.Key] = true
			for _, m := range s.Members {
				if d := distance.Distance(s.Representative.Genotype, m.Genotype); d >= threshold {
					t.Fatalf("epoch %d species %s member %d at distance %f", epoch.Index, s.Key, m.ID, d)
				}
			}
			assigned += len(s.Members)
		}
		if assigned != len(epoch.Evaluated) {
			t.Fatalf("epoch %d: %d of %d phenotypes assigned", epoch.Index, assigned, len(epoch.Evaluated))
		}
		if epoch.Summary.SpeciesCount != len(epoch.Species) {
			t.Fatalf("summary species count %d, got %d species", epoch.Summary.SpeciesCount, len(epoch.Species))
		}
	}
}

func TestEngineMaintainsBoundedParetoFront(t *testing.T) {
	p, err := problem.New[[]float64](codec.FloatCodec{Length: 3, Min: 0, Max: 1}, problem.Vector(func(v []float64) []float64 {
		g := 1 + 9*(v[1]+v[2])/2
		return []float64{v[0], g * (1 - math.Sqrt(v[0]/g))}
	}))
	if err != nil {
		t.Fatalf("new problem: %v", err)
	}
	obj := objective.Multi(objective.Minimize, objective.Minimize)
	engine := mustEngine(t, Config[[]float64]{
		Problem:        p,
		PopulationSize: 20,
		Objective:      obj,
		Alterers:       []Alterer{BlendCrossover{Probability: 0.8}, GaussianMutator{Probability: 0.2}},
		FrontSize:      pareto.Range{Min: 2, Max: 4},
		Seed:           13,
	})

	for i := 0; i < 8; i++ {
		epoch := mustNext(t, engine)
		if len(epoch.Front) == 0 || len(epoch.Front) > 4 {
			t.Fatalf("epoch %d front size %d outside (0,4]", epoch.Index, len(epoch.Front))
		}
		for a := range epoch.Front {
			for b := range epoch.Front {
				if a != b && obj.Dominates(epoch.Front[a].Score, epoch.Front[b].Score) {
					t.Fatalf("epoch %d front member %d dominates %d", epoch.Index, epoch.Front[a].ID, epoch.Front[b].ID)
				}
			}
		}
		if epoch.Summary.FrontSize != len(epoch.Front) {
			t.Fatalf("summary front size %d, front %d", epoch.Summary.FrontSize, len(epoch.Front))
		}
	}
}

type boundedSelector struct {
	EliteSelector
	limit int
}

func (s boundedSelector) ValidateCount(_, count int) error {
	if count > s.limit {
		return fmt.Errorf("%w: limit %d", ErrSelectionCount, s.limit)
	}
	return nil
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	base := func() Config[[]int] {
		return Config[[]int]{
			Problem:        sumProblem(t),
			PopulationSize: 6,
			Alterers:       []Alterer{SwapMutator{Probability: 0.1}},
		}
	}
	cases := map[string]func(*Config[[]int]){
		"missing problem":     func(c *Config[[]int]) { c.Problem = nil },
		"zero population":     func(c *Config[[]int]) { c.PopulationSize = 0 },
		"offspring fraction":  func(c *Config[[]int]) { c.OffspringFraction = 1.5 },
		"no alterers":         func(c *Config[[]int]) { c.Alterers = nil },
		"bad alterer rate":    func(c *Config[[]int]) { c.Alterers = []Alterer{SwapMutator{Probability: 2}} },
		"negative age":        func(c *Config[[]int]) { c.MaxPhenotypeAge = -1 },
		"selection count":     func(c *Config[[]int]) { c.OffspringSelector = boundedSelector{limit: 2} },
		"species threshold":   func(c *Config[[]int]) { c.Distance = species.HammingDistance{}; c.SpeciesThreshold = 1.5 },
		"negative species age": func(c *Config[[]int]) {
			c.Distance = species.HammingDistance{}
			c.MaxSpeciesAge = -1
		},
		"front range": func(c *Config[[]int]) {
			c.Objective = objective.Multi(objective.Minimize, objective.Minimize)
			c.FrontSize = pareto.Range{Min: 5, Max: 2}
		},
		"too many initial": func(c *Config[[]int]) {
			c.Initial = make([]genome.Genotype, 7)
		},
		"initial shape": func(c *Config[[]int]) {
			c.Initial = []genome.Genotype{intGenotype(1, 2, 3), intGenotype(1, 2)}
		},
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(&cfg)
		if _, err := New(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
	if _, err := New(base()); err != nil {
		t.Fatalf("base config rejected: %v", err)
	}
}

func TestEngineEvaluationErrorAbortsEpoch(t *testing.T) {
	boom := errors.New("fitness exploded")
	var failing atomic.Bool
	failing.Store(true)
	p, err := problem.New[[]int](codec.IntCodec{Length: 3, Min: 0, Max: 10}, func(v []int) (genome.Score, error) {
		if failing.Load() && v[0] >= 5 {
			return genome.Score{}, boom
		}
		return genome.NewScore(float64(v[0] + v[1] + v[2])), nil
	})
	if err != nil {
		t.Fatalf("new problem: %v", err)
	}
	initial := []genome.Genotype{intGenotype(9, 9, 9), intGenotype(1, 1, 1)}
	engine := mustEngine(t, Config[[]int]{
		Problem:        p,
		PopulationSize: 4,
		Alterers:       []Alterer{UniformMutator{Probability: 0.1}},
		Initial:        initial,
		Workers:        3,
		Seed:           4,
	})

	_, err = engine.Next(context.Background())
	if !errors.Is(err, ErrEvaluation) || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped evaluation error, got %v", err)
	}
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) || evalErr.PhenotypeID != 1 {
		t.Fatalf("expected failure attributed to phenotype 1, got %v", err)
	}
	if engine.Generation() != 0 {
		t.Fatalf("failed epoch must not advance the generation, got %d", engine.Generation())
	}
	for _, ph := range engine.Ecosystem().Population {
		if ph.IsEvaluated() {
			t.Fatalf("failed epoch must not commit scores, phenotype %d has %s", ph.ID, ph.Score)
		}
	}

	failing.Store(false)
	epoch := mustNext(t, engine)
	if epoch.Index != 1 || epoch.Best.Score.Float64() < 27 {
		t.Fatalf("unexpected recovered epoch: index=%d best=%s", epoch.Index, epoch.Best.Score)
	}
}

func TestEngineRejectsWrongScoreArity(t *testing.T) {
	p, err := problem.New[[]int](codec.IntCodec{Length: 2, Min: 0, Max: 3}, problem.Vector(func(v []int) []float64 {
		return []float64{float64(v[0]), float64(v[1])}
	}))
	if err != nil {
		t.Fatalf("new problem: %v", err)
	}
	engine := mustEngine(t, Config[[]int]{
		Problem:        p,
		PopulationSize: 3,
		Objective:      objective.Single(objective.Maximize),
		Alterers:       []Alterer{SwapMutator{Probability: 0.5}},
	})
	if _, err := engine.Next(context.Background()); !errors.Is(err, objective.ErrScoreArity) {
		t.Fatalf("expected score arity error, got %v", err)
	}
}

type recordingSink struct {
	epochs []int
}

func (s *recordingSink) Observe(epoch int, set *metrics.MetricSet) {
	if _, ok := set.Get("evo.epoch.time"); ok {
		s.epochs = append(s.epochs, epoch)
	}
}

func TestEngineRunStopsOnPredicateAndFeedsSink(t *testing.T) {
	sink := &recordingSink{}
	engine := mustEngine(t, Config[[]int]{
		Problem:        sumProblem(t),
		PopulationSize: 8,
		Alterers:       []Alterer{UniformCrossover{Probability: 0.5}, UniformMutator{Probability: 0.1}},
		Metrics:        sink,
		Seed:           9,
	})

	epoch, err := engine.Run(context.Background(), Until[[]int](UntilGeneration(3)))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if epoch.Index != 3 || engine.Generation() != 3 {
		t.Fatalf("expected to stop at generation 3, got epoch=%d engine=%d", epoch.Index, engine.Generation())
	}
	if len(sink.epochs) != 3 || sink.epochs[2] != 3 {
		t.Fatalf("unexpected sink epochs: %v", sink.epochs)
	}
	if len(epoch.BestValue) != 3 {
		t.Fatalf("expected decoded best value, got %v", epoch.BestValue)
	}
	if epoch.Summary.Evaluations < 8 {
		t.Fatalf("expected evaluations to accumulate, got %d", epoch.Summary.Evaluations)
	}
	for _, name := range []string{"evo.evaluation.count", "evo.score", "evo.age", "select.elite.count", "select.tournament.count", "alter.uniform_crossover.count"} {
		if _, ok := epoch.Metrics.Get(name); !ok {
			t.Fatalf("missing metric %s in %v", name, epoch.Metrics.Names())
		}
	}
}

func TestEngineHonorsCanceledContextBetweenEpochs(t *testing.T) {
	engine := mustEngine(t, Config[[]int]{
		Problem:        sumProblem(t),
		PopulationSize: 4,
		Alterers:       []Alterer{UniformMutator{Probability: 0.1}},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := engine.Run(ctx, Until[[]int](UntilGeneration(10))); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := engine.Run(context.Background(), nil); err == nil {
		t.Fatal("expected error for missing stop predicate")
	}
}

func TestEpochSnapshotsDoNotAliasEngineState(t *testing.T) {
	engine := mustEngine(t, Config[[]int]{
		Problem:        sumProblem(t),
		PopulationSize: 4,
		Alterers:       []Alterer{UniformMutator{Probability: 0.1}},
		Seed:           6,
	})
	epoch := mustNext(t, engine)
	epoch.Population[0].Age = 1000
	epoch.Population[0].Invalid = true
	for _, p := range engine.Ecosystem().Population {
		if p.Age == 1000 || p.Invalid {
			t.Fatal("snapshot mutation leaked into engine state")
		}
	}
}

func TestEvaluatePopulationReportsFirstFailureInOrder(t *testing.T) {
	pop := populationOf(intGenotype(1), intGenotype(2), intGenotype(3))
	for i := range pop {
		pop[i].Score = genome.Score{}
	}
	eval := func(g genome.Genotype) (genome.Score, error) {
		v := g.Chromosome(0).Gene(0).Allele().(int)
		if v >= 2 {
			return genome.Score{}, fmt.Errorf("bad %d", v)
		}
		return genome.NewScore(float64(v)), nil
	}
	_, err := evaluatePopulation(pop, []int{0, 1, 2}, 3, eval, objective.Single(objective.Maximize))
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) || evalErr.PhenotypeID != 2 {
		t.Fatalf("expected failure of phenotype 2, got %v", err)
	}

	scores, err := evaluatePopulation(pop, []int{0}, 4, eval, objective.Single(objective.Maximize))
	if err != nil || len(scores) != 1 || scores[0].Float64() != 1 {
		t.Fatalf("unexpected scores %v err %v", scores, err)
	}
}
