package evo

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"phylon/internal/genome"
	"phylon/internal/metrics"
	"phylon/internal/species"
)

// Epoch is an immutable snapshot emitted after every finalized generation.
// Nothing in it aliases engine state.
type Epoch[T any] struct {
	// Index starts at 1 for the first evaluated generation.
	Index int
	// Best is the best evaluated phenotype seen so far and BestValue its
	// decoded form.
	Best      genome.Phenotype
	BestValue T
	// Evaluated is this generation ranked best-first, every member scored.
	Evaluated genome.Population
	// Population is the finalized next generation. Offspring changed by
	// alteration are not scored yet.
	Population genome.Population
	Species    []species.Species
	// Front is the Pareto front after this generation; nil for scalar
	// objectives.
	Front   genome.Population
	Metrics *metrics.MetricSet
	Summary Summary
}

// Summary carries the per-generation figures used by stop predicates and
// persisted run history.
type Summary struct {
	Generation      int           `json:"generation"`
	BestScore       []float64     `json:"best_score"`
	Improved        bool          `json:"improved"`
	MeanFitness     float64       `json:"mean_fitness"`
	StdDevFitness   float64       `json:"stddev_fitness"`
	MinFitness      float64       `json:"min_fitness"`
	MaxFitness      float64       `json:"max_fitness"`
	Evaluations     int           `json:"evaluations"`
	SpeciesCount    int           `json:"species_count"`
	FrontSize       int           `json:"front_size"`
	ReplacedInvalid int           `json:"replaced_invalid"`
	ReplacedAged    int           `json:"replaced_aged"`
	Alterations     int           `json:"alterations"`
	Elapsed         time.Duration `json:"elapsed"`
}

// summarizeGeneration reduces the first score channel of the evaluated
// population.
func summarizeGeneration(evaluated genome.Population) Summary {
	values := make([]float64, 0, len(evaluated))
	for _, p := range evaluated {
		if v := p.Score.Float64(); !math.IsNaN(v) && !math.IsInf(v, 0) {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return Summary{}
	}
	out := Summary{
		MeanFitness: stat.Mean(values, nil),
		MinFitness:  values[0],
		MaxFitness:  values[0],
	}
	if len(values) > 1 {
		out.StdDevFitness = stat.StdDev(values, nil)
	}
	for _, v := range values[1:] {
		out.MinFitness = math.Min(out.MinFitness, v)
		out.MaxFitness = math.Max(out.MaxFitness, v)
	}
	return out
}

func scoreValues(pop genome.Population) []float64 {
	out := make([]float64, 0, len(pop))
	for _, p := range pop {
		if p.IsEvaluated() {
			out = append(out, p.Score.Float64())
		}
	}
	return out
}

func ages(pop genome.Population) []float64 {
	out := make([]float64, len(pop))
	for i, p := range pop {
		out[i] = float64(p.Age)
	}
	return out
}

func uniqueScores(pop genome.Population) int {
	seen := make(map[string]struct{}, len(pop))
	for _, p := range pop {
		if p.IsEvaluated() {
			seen[p.Score.String()] = struct{}{}
		}
	}
	return len(seen)
}
