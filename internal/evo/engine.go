package evo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"phylon/internal/genome"
	"phylon/internal/metrics"
	"phylon/internal/objective"
	"phylon/internal/pareto"
	"phylon/internal/species"
)

var ErrInvalidGenotype = errors.New("no valid genotype available")

const maxReplaceAttempts = 16

// Ecosystem is the run state carried from one generation to the next.
type Ecosystem struct {
	Population genome.Population
	Species    []species.Species
}

// Engine advances a population one generation per call to Next. It owns
// the ecosystem exclusively; callers only see snapshots. An Engine is not
// safe for concurrent use.
type Engine[T any] struct {
	cfg       Config[T]
	rng       *rand.Rand
	pipeline  *Pipeline
	front     *pareto.Front
	speciator *species.Speciator
	metrics   *metrics.MetricSet

	population  genome.Population
	species     []species.Species
	shape       []int
	generation  int
	nextID      uint64
	best        genome.Phenotype
	evaluations int
	started     time.Time
	err         error
}

func New[T any](cfg Config[T]) (*Engine[T], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	pipeline, err := NewPipeline(cfg.Alterers...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	e := &Engine[T]{
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		pipeline: pipeline,
		metrics:  metrics.NewMetricSet(),
	}
	if cfg.Objective.IsMulti() {
		front, err := pareto.NewFront(cfg.Objective, cfg.FrontSize)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		e.front = front
	}
	if cfg.Distance != nil {
		speciator, err := species.NewSpeciator(species.Config{
			Distance:  cfg.Distance,
			Objective: cfg.Objective,
			Threshold: cfg.SpeciesThreshold,
			MaxAge:    cfg.MaxSpeciesAge,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		e.speciator = speciator
	}
	return e, nil
}

// Generation returns the index of the last finalized epoch, 0 before the
// first call to Next.
func (e *Engine[T]) Generation() int {
	return e.generation
}

// Ecosystem returns a copy of the current population and species.
func (e *Engine[T]) Ecosystem() Ecosystem {
	out := Ecosystem{Population: e.population.Clone()}
	for _, s := range e.species {
		out.Species = append(out.Species, s.Clone())
	}
	return out
}

// Run advances until done reports true for an emitted epoch and returns
// that epoch. The context is checked between epochs only; an epoch that has
// started always completes.
func (e *Engine[T]) Run(ctx context.Context, done func(Epoch[T]) bool) (Epoch[T], error) {
	if done == nil {
		return Epoch[T]{}, errors.New("stop predicate is required")
	}
	for {
		epoch, err := e.Next(ctx)
		if err != nil {
			return Epoch[T]{}, err
		}
		if done(epoch) {
			return epoch, nil
		}
	}
}

// Next evaluates, ranks, speciates, selects and alters one generation and
// returns its snapshot. An evaluation failure aborts the epoch and leaves
// the ecosystem at the last finalized generation.
func (e *Engine[T]) Next(ctx context.Context) (Epoch[T], error) {
	if e.err != nil {
		return Epoch[T]{}, e.err
	}
	if err := ctx.Err(); err != nil {
		return Epoch[T]{}, err
	}
	if e.population == nil {
		if err := e.seed(); err != nil {
			e.err = err
			return Epoch[T]{}, err
		}
		e.started = time.Now()
	}

	index := e.generation + 1
	ctx, span := e.cfg.Tracer.Start(ctx, "evo.epoch",
		trace.WithAttributes(
			attribute.Int("generation", index),
			attribute.Int("population", len(e.population)),
		),
	)
	defer span.End()
	epochStart := time.Now()

	current := e.population.Clone()
	pending := current.Unevaluated()
	if err := e.evaluate(ctx, current, pending); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation failed")
		e.cfg.Logger.Error("epoch aborted", "generation", index, "error", err)
		return Epoch[T]{}, err
	}

	ranked := e.cfg.Objective.Sort(current)
	improved := false
	if !e.best.IsEvaluated() || e.cfg.Objective.Compare(ranked[0].Score, e.best.Score) == objective.Better {
		e.best = ranked[0].Clone()
		improved = true
	}

	frontSize := 0
	if e.front != nil {
		stats := e.front.Update(e.rng, ranked)
		frontSize = e.front.Len()
		e.metrics.AddCount("front.size", frontSize)
		e.metrics.AddCount("front.added", stats.Added)
		e.metrics.AddCount("front.removed", stats.Removed+stats.Trimmed)
	}

	var speciation *species.Result
	if e.speciator != nil {
		res := e.speciator.Speciate(e.rng, ranked)
		speciation = &res
		e.recordSpecies(index, res)
	}

	next, counts, err := e.breed(ranked, speciation, index)
	if err != nil {
		e.err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, "breeding failed")
		return Epoch[T]{}, err
	}

	for i := range next {
		if next[i].Generation < index {
			next[i].Age++
		}
	}

	e.metrics.AddDistribution("evo.score", scoreValues(ranked))
	e.metrics.AddDistribution("evo.age", ages(next))
	e.metrics.AddCount("evo.unique.scores", uniqueScores(ranked))
	e.metrics.AddTime("evo.epoch.time", time.Since(epochStart))

	e.population = next
	e.generation = index
	e.evaluations += len(pending)
	if speciation != nil {
		e.species = speciation.Species
	}

	summary := summarizeGeneration(ranked)
	summary.Generation = index
	summary.BestScore = e.best.Score.Values()
	summary.Improved = improved
	summary.Evaluations = e.evaluations
	summary.SpeciesCount = len(e.species)
	summary.FrontSize = frontSize
	summary.ReplacedInvalid = counts.invalid
	summary.ReplacedAged = counts.aged
	summary.Alterations = counts.alterations
	summary.Elapsed = time.Since(e.started)

	epoch := Epoch[T]{
		Index:      index,
		Best:       e.best.Clone(),
		BestValue:  e.cfg.Problem.Decode(e.best.Genotype),
		Evaluated:  ranked.Clone(),
		Population: next.Clone(),
		Metrics:    e.metrics.Clone(),
		Summary:    summary,
	}
	for _, s := range e.species {
		epoch.Species = append(epoch.Species, s.Clone())
	}
	if e.front != nil {
		epoch.Front = e.front.Members()
	}
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.Observe(index, epoch.Metrics)
	}

	span.SetAttributes(
		attribute.String("best", e.best.Score.String()),
		attribute.Int("evaluated", len(pending)),
	)
	e.cfg.Logger.Debug("epoch finalized",
		"generation", index,
		"best", e.best.Score.String(),
		"evaluated", len(pending),
		"species", summary.SpeciesCount,
		"front", frontSize,
		"replaced_invalid", counts.invalid,
		"replaced_aged", counts.aged,
	)
	return epoch, nil
}

func (e *Engine[T]) newPhenotype(g genome.Genotype, generation int) genome.Phenotype {
	e.nextID++
	return genome.NewPhenotype(e.nextID, g, generation)
}

// seed builds generation zero from the configured initial genotypes and
// fills the remainder with encoded ones.
func (e *Engine[T]) seed() error {
	pop := make(genome.Population, 0, e.cfg.PopulationSize)
	for _, g := range e.cfg.Initial {
		pop = append(pop, e.newPhenotype(g.Clone(), 0))
	}
	for len(pop) < e.cfg.PopulationSize {
		pop = append(pop, e.newPhenotype(e.cfg.Problem.Encode(e.rng), 0))
	}
	e.shape = pop[0].Genotype.Shape()

	pool := make(genome.Population, 0, len(pop))
	for _, p := range pop {
		if e.healthy(p) {
			pool = append(pool, p)
		}
	}
	for i := range pop {
		if e.healthy(pop[i]) {
			continue
		}
		g, err := e.freshGenotype(pool)
		if err != nil {
			return err
		}
		pop[i] = e.newPhenotype(g, 0)
	}
	e.population = pop
	return nil
}

func (e *Engine[T]) evaluate(ctx context.Context, pop genome.Population, pending []int) error {
	_, span := e.cfg.Tracer.Start(ctx, "evo.evaluate",
		trace.WithAttributes(
			attribute.Int("pending", len(pending)),
			attribute.Int("workers", e.cfg.Workers),
		),
	)
	defer span.End()

	start := time.Now()
	scores, err := evaluatePopulation(pop, pending, e.cfg.Workers, e.cfg.Problem.Eval, e.cfg.Objective)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation failed")
		return err
	}
	for slot, i := range pending {
		pop[i] = pop[i].WithScore(scores[slot])
	}
	e.metrics.AddCount("evo.evaluation.count", len(pending))
	e.metrics.AddTime("evo.evaluation.time", time.Since(start))
	return nil
}

func (e *Engine[T]) recordSpecies(index int, res species.Result) {
	e.metrics.AddCount("species.count", res.Stats.SpeciesCount)
	e.metrics.AddCount("species.created", res.Stats.Created)
	e.metrics.AddCount("species.removed", res.Stats.Removed)
	speciesAges := make([]float64, len(res.Species))
	sizes := make([]float64, len(res.Species))
	for i, s := range res.Species {
		speciesAges[i] = float64(s.Age)
		sizes[i] = float64(len(s.Members))
	}
	e.metrics.AddDistribution("species.age", speciesAges)
	e.metrics.AddDistribution("species.size", sizes)
	if res.Stats.Removed > 0 && res.Stats.Created == res.Stats.SpeciesCount {
		e.cfg.Logger.Warn("every species was pruned for stagnation",
			"generation", index,
			"removed", res.Stats.Removed,
			"created", res.Stats.Created,
		)
	}
}

type breedCounts struct {
	invalid     int
	aged        int
	alterations int
}

// breed selects survivors and offspring parents, alters the offspring and
// replaces invalid or over-aged individuals.
func (e *Engine[T]) breed(ranked genome.Population, speciation *species.Result, index int) (genome.Population, breedCounts, error) {
	var counts breedCounts
	offspringCount := e.cfg.offspringCount()

	survivors, err := e.selectWith(e.cfg.SurvivorSelector, ranked, e.cfg.PopulationSize-offspringCount)
	if err != nil {
		return nil, counts, err
	}
	parents, err := e.selectOffspringParents(ranked, speciation, offspringCount)
	if err != nil {
		return nil, counts, err
	}

	altered := e.pipeline.Apply(e.rng, parents, e.metrics)
	counts.alterations = altered.Alterations

	next := make(genome.Population, 0, e.cfg.PopulationSize)
	next = append(next, survivors...)
	for i, parent := range parents {
		if altered.Changed[i] {
			next = append(next, e.newPhenotype(altered.Genotypes[i], index))
			continue
		}
		next = append(next, parent)
	}

	pool := make(genome.Population, 0, len(next))
	for _, p := range next {
		if e.healthy(p) && !e.aged(p) {
			pool = append(pool, p)
		}
	}
	for i := range next {
		switch {
		case !e.healthy(next[i]):
			next[i].Invalid = true
			counts.invalid++
		case e.aged(next[i]):
			counts.aged++
		default:
			continue
		}
		g, err := e.freshGenotype(pool)
		if err != nil {
			return nil, counts, err
		}
		next[i] = e.newPhenotype(g, index)
	}
	e.metrics.AddCount("evo.replace.invalid", counts.invalid)
	e.metrics.AddCount("evo.replace.age", counts.aged)
	return next, counts, nil
}

func (e *Engine[T]) selectOffspringParents(ranked genome.Population, speciation *species.Result, count int) (genome.Population, error) {
	sel := e.cfg.OffspringSelector
	if speciation == nil {
		return e.selectWith(sel, ranked, count)
	}

	out := make(genome.Population, 0, count)
	for _, quota := range buildSpeciesOffspringPlan(ranked, e.cfg.Objective, *speciation, count) {
		pool := make(genome.Population, len(quota.Members))
		for k, idx := range quota.Members {
			pool[k] = ranked[idx]
		}
		if validator, ok := sel.(CountValidator); ok && validator.ValidateCount(len(pool), quota.Count) != nil {
			pool = ranked
		}
		picked, err := e.selectWith(sel, pool, quota.Count)
		if err != nil {
			return nil, err
		}
		out = append(out, picked...)
	}
	if len(out) < count {
		picked, err := e.selectWith(sel, ranked, count-len(out))
		if err != nil {
			return nil, err
		}
		out = append(out, picked...)
	}
	return out, nil
}

func (e *Engine[T]) selectWith(sel Selector, pool genome.Population, count int) (genome.Population, error) {
	start := time.Now()
	picked, err := sel.Select(e.rng, pool, e.cfg.Objective, count)
	if err != nil {
		return nil, fmt.Errorf("%s selection: %w", sel.Name(), err)
	}
	if len(picked) != count {
		return nil, fmt.Errorf("%w: %s selector returned %d of %d", ErrSelectionCount, sel.Name(), len(picked), count)
	}
	e.metrics.AddTime("select."+sel.Name()+".time", time.Since(start))
	e.metrics.AddCount("select."+sel.Name()+".count", count)
	return picked, nil
}

func (e *Engine[T]) healthy(p genome.Phenotype) bool {
	return p.IsValid() && p.Genotype.HasShape(e.shape)
}

// aged reports whether p would exceed the maximum age by surviving another
// generation.
func (e *Engine[T]) aged(p genome.Phenotype) bool {
	return e.cfg.MaxPhenotypeAge > 0 && p.Age >= e.cfg.MaxPhenotypeAge
}

// freshGenotype asks the replacement policy for a healthy genotype and
// falls back to encoding on the last attempt.
func (e *Engine[T]) freshGenotype(pool genome.Population) (genome.Genotype, error) {
	for attempt := 0; attempt < maxReplaceAttempts; attempt++ {
		var g genome.Genotype
		if attempt < maxReplaceAttempts-1 {
			g = e.cfg.Replacement.Replace(e.rng, e.cfg.Problem, pool)
		} else {
			g = e.cfg.Problem.Encode(e.rng)
		}
		if g.IsValid() && g.HasShape(e.shape) {
			return g, nil
		}
	}
	return genome.Genotype{}, fmt.Errorf("%w: after %d attempts", ErrInvalidGenotype, maxReplaceAttempts)
}
