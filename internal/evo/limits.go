package evo

import (
	"math"
	"time"

	"phylon/internal/objective"
)

// Limit decides from a generation summary whether a run should stop.
// Limits may keep state and must not be shared between runs.
type Limit func(Summary) bool

// Until adapts limits into a stop predicate for Engine.Run. The run stops
// as soon as any limit is reached.
func Until[T any](limits ...Limit) func(Epoch[T]) bool {
	stop := AnyOf(limits...)
	return func(epoch Epoch[T]) bool {
		return stop(epoch.Summary)
	}
}

// AnyOf evaluates every limit on every summary, so stateful limits see the
// full history, and reports whether any was reached.
func AnyOf(limits ...Limit) Limit {
	return func(s Summary) bool {
		reached := false
		for _, limit := range limits {
			if limit(s) {
				reached = true
			}
		}
		return reached
	}
}

func UntilGeneration(n int) Limit {
	return func(s Summary) bool {
		return s.Generation >= n
	}
}

// UntilScore stops once the first channel of the best score reaches target.
func UntilScore(direction objective.Optimize, target float64) Limit {
	return func(s Summary) bool {
		if len(s.BestScore) == 0 {
			return false
		}
		if direction == objective.Minimize {
			return s.BestScore[0] <= target
		}
		return s.BestScore[0] >= target
	}
}

func UntilDuration(d time.Duration) Limit {
	return func(s Summary) bool {
		return s.Elapsed >= d
	}
}

// UntilConverged stops when the best score moved by at most epsilon over
// the last window generations.
func UntilConverged(window int, epsilon float64) Limit {
	if window < 1 {
		window = 1
	}
	var history []float64
	return func(s Summary) bool {
		if len(s.BestScore) == 0 {
			return false
		}
		history = append(history, s.BestScore[0])
		if len(history) > window+1 {
			history = history[1:]
		}
		if len(history) <= window {
			return false
		}
		return math.Abs(history[len(history)-1]-history[0]) <= epsilon
	}
}
