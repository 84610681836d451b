package evo

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"phylon/internal/genome"
	"phylon/internal/metrics"
	"phylon/internal/objective"
	"phylon/internal/pareto"
	"phylon/internal/problem"
	"phylon/internal/species"
)

var ErrInvalidConfig = errors.New("invalid engine config")

// Config is validated once by New and never changes afterwards.
type Config[T any] struct {
	Problem        problem.Problem[T]
	PopulationSize int
	// OffspringFraction is the share of each generation produced by
	// alteration; the rest are survivors.
	OffspringFraction float64
	Objective         objective.Objective

	SurvivorSelector  Selector
	OffspringSelector Selector
	Alterers          []Alterer
	Replacement       Replacement
	// MaxPhenotypeAge replaces individuals that would survive longer than
	// this many generations. Zero disables the limit.
	MaxPhenotypeAge int

	// Distance enables speciation when set.
	Distance         species.Distance
	SpeciesThreshold float64
	MaxSpeciesAge    int

	// FrontSize bounds the Pareto front; used only for vector objectives.
	FrontSize pareto.Range

	Workers int
	Seed    int64
	// Initial seeds the first population; missing individuals are encoded.
	Initial []genome.Genotype

	Logger  *slog.Logger
	Metrics metrics.Sink
	Tracer  trace.Tracer
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// offspringCount rounds PopulationSize*OffspringFraction.
func (c Config[T]) offspringCount() int {
	return int(math.Round(float64(c.PopulationSize) * c.OffspringFraction))
}

func (c *Config[T]) validate() error {
	if c.Problem == nil {
		return invalid("problem is required")
	}
	if c.PopulationSize <= 0 {
		return invalid("population size must be > 0")
	}
	if c.OffspringFraction == 0 {
		c.OffspringFraction = 0.8
	}
	if c.OffspringFraction < 0 || c.OffspringFraction > 1 {
		return invalid("offspring fraction must be in (0,1], got %f", c.OffspringFraction)
	}
	if c.Objective.Len() == 0 {
		c.Objective = objective.Single(objective.Maximize)
	}
	if c.SurvivorSelector == nil {
		if c.Objective.IsMulti() {
			c.SurvivorSelector = NSGA2Selector{}
		} else {
			c.SurvivorSelector = EliteSelector{}
		}
	}
	if c.OffspringSelector == nil {
		if c.Objective.IsMulti() {
			c.OffspringSelector = NSGA2Selector{}
		} else {
			c.OffspringSelector = TournamentSelector{Size: 3}
		}
	}
	if c.Replacement == nil {
		c.Replacement = EncodeReplace{}
	}
	if len(c.Alterers) == 0 {
		return invalid("at least one alterer is required")
	}
	if c.MaxPhenotypeAge < 0 {
		return invalid("max phenotype age must be >= 0")
	}

	offspring := c.offspringCount()
	survivors := c.PopulationSize - offspring
	if err := validateCount(c.SurvivorSelector, c.PopulationSize, survivors); err != nil {
		return err
	}
	if err := validateCount(c.OffspringSelector, c.PopulationSize, offspring); err != nil {
		return err
	}

	if c.Distance != nil {
		if c.SpeciesThreshold < 0 || c.SpeciesThreshold > 1 {
			return invalid("species threshold must be in [0,1], got %f", c.SpeciesThreshold)
		}
		if c.MaxSpeciesAge < 0 {
			return invalid("max species age must be >= 0")
		}
	}

	if c.Objective.IsMulti() {
		if c.FrontSize == (pareto.Range{}) {
			c.FrontSize = pareto.Range{Min: max(1, c.PopulationSize/2), Max: c.PopulationSize}
		}
		if err := c.FrontSize.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	if c.Workers <= 0 {
		c.Workers = 1
	}
	if len(c.Initial) > c.PopulationSize {
		return invalid("initial population has %d genotypes, more than population size %d", len(c.Initial), c.PopulationSize)
	}
	for i := 1; i < len(c.Initial); i++ {
		if !c.Initial[i].HasShape(c.Initial[0].Shape()) {
			return invalid("initial genotype %d shape %v differs from %v", i, c.Initial[i].Shape(), c.Initial[0].Shape())
		}
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.Tracer == nil {
		c.Tracer = otel.Tracer("phylon/evo")
	}
	return nil
}

func validateCount(sel Selector, populationSize, count int) error {
	validator, ok := sel.(CountValidator)
	if !ok {
		return nil
	}
	if err := validator.ValidateCount(populationSize, count); err != nil {
		return fmt.Errorf("%w: %s selector: %w", ErrInvalidConfig, sel.Name(), err)
	}
	return nil
}
