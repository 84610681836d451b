package evo

import (
	"errors"
	"fmt"
	"sync"

	"phylon/internal/genome"
	"phylon/internal/objective"
)

var ErrEvaluation = errors.New("evaluation failed")

// EvaluationError identifies the phenotype whose fitness evaluation failed.
type EvaluationError struct {
	PhenotypeID uint64
	Err         error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("%v: phenotype %d: %v", ErrEvaluation, e.PhenotypeID, e.Err)
}

func (e *EvaluationError) Unwrap() []error {
	return []error{ErrEvaluation, e.Err}
}

type scoreFunc func(g genome.Genotype) (genome.Score, error)

// evaluatePopulation scores the members at idx on a fixed pool of workers
// and returns the scores aligned with idx. Scores are pure functions of the
// genotype so completion order does not matter. The first failure in idx
// order is returned once every job has finished.
func evaluatePopulation(pop genome.Population, idx []int, workers int, eval scoreFunc, obj objective.Objective) ([]genome.Score, error) {
	type job struct {
		slot int
		g    genome.Genotype
	}
	type result struct {
		slot  int
		score genome.Score
		err   error
	}

	if len(idx) == 0 {
		return nil, nil
	}

	jobs := make(chan job)
	results := make(chan result, len(idx))

	workerCount := workers
	if workerCount > len(idx) {
		workerCount = len(idx)
	}
	if workerCount <= 0 {
		workerCount = 1
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				score, err := eval(j.g)
				if err == nil {
					err = obj.Validate(score)
				}
				results <- result{slot: j.slot, score: score, err: err}
			}
		}()
	}

	for slot, i := range idx {
		jobs <- job{slot: slot, g: pop[i].Genotype}
	}
	close(jobs)

	wg.Wait()
	close(results)

	scores := make([]genome.Score, len(idx))
	errs := make([]error, len(idx))
	for res := range results {
		scores[res.slot] = res.score
		errs[res.slot] = res.err
	}
	for slot, err := range errs {
		if err != nil {
			return nil, &EvaluationError{PhenotypeID: pop[idx[slot]].ID, Err: err}
		}
	}
	return scores, nil
}
