// Package problem defines the narrow interface the engine consumes to create,
// decode and score genotypes.
package problem

import (
	"errors"
	"math/rand"

	"phylon/internal/codec"
	"phylon/internal/genome"
)

// Problem is the triple the engine depends on. Eval is called concurrently
// from the evaluation worker pool and must not share mutable state.
type Problem[T any] interface {
	Encode(rng *rand.Rand) genome.Genotype
	Decode(g genome.Genotype) T
	Eval(g genome.Genotype) (genome.Score, error)
}

// FitnessFunc scores a decoded value.
type FitnessFunc[T any] func(value T) (genome.Score, error)

// Scalar adapts a single-objective fitness function.
func Scalar[T any](fn func(value T) float64) FitnessFunc[T] {
	return func(value T) (genome.Score, error) {
		return genome.NewScore(fn(value)), nil
	}
}

// Vector adapts a multi-objective fitness function.
func Vector[T any](fn func(value T) []float64) FitnessFunc[T] {
	return func(value T) (genome.Score, error) {
		return genome.NewScore(fn(value)...), nil
	}
}

type codecProblem[T any] struct {
	codec   codec.Codec[T]
	fitness FitnessFunc[T]
}

// New pairs a codec with a fitness function.
func New[T any](c codec.Codec[T], fitness FitnessFunc[T]) (Problem[T], error) {
	if c == nil {
		return nil, errors.New("codec is required")
	}
	if fitness == nil {
		return nil, errors.New("fitness function is required")
	}
	return codecProblem[T]{codec: c, fitness: fitness}, nil
}

func (p codecProblem[T]) Encode(rng *rand.Rand) genome.Genotype {
	return p.codec.Encode(rng)
}

func (p codecProblem[T]) Decode(g genome.Genotype) T {
	return p.codec.Decode(g)
}

func (p codecProblem[T]) Eval(g genome.Genotype) (genome.Score, error) {
	return p.fitness(p.codec.Decode(g))
}

type erased[T any] struct {
	inner Problem[T]
}

// Erase hides the decoded type so heterogeneous problems can share one
// registry and one engine instantiation.
func Erase[T any](p Problem[T]) Problem[any] {
	return erased[T]{inner: p}
}

func (e erased[T]) Encode(rng *rand.Rand) genome.Genotype { return e.inner.Encode(rng) }

func (e erased[T]) Decode(g genome.Genotype) any { return e.inner.Decode(g) }

func (e erased[T]) Eval(g genome.Genotype) (genome.Score, error) { return e.inner.Eval(g) }
