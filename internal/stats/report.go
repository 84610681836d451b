package stats

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"phylon/internal/model"
	"phylon/internal/objective"
)

// RunHistory pairs a run with its persisted epochs.
type RunHistory struct {
	Run    model.RunRecord
	Epochs []model.EpochRecord
}

type ReportRun struct {
	RunID             string  `json:"run_id"`
	Generations       int     `json:"generations"`
	Evaluations       int     `json:"evaluations"`
	FinalBest         float64 `json:"final_best"`
	Success           bool    `json:"success"`
	ReachedGeneration int     `json:"reached_generation,omitempty"`
}

type PlotPoint struct {
	Generation int     `json:"generation"`
	Mean       float64 `json:"mean"`
	StdDev     float64 `json:"stddev"`
	Runs       int     `json:"runs"`
}

// Report aggregates repeated runs of one problem.
type Report struct {
	Problem        string      `json:"problem"`
	Goal           *float64    `json:"goal,omitempty"`
	TotalRuns      int         `json:"total_runs"`
	SuccessRuns    int         `json:"success_runs"`
	SuccessRate    float64     `json:"success_rate"`
	AvgEvaluations float64     `json:"avg_evaluations"`
	StdEvaluations float64     `json:"std_evaluations"`
	MinEvaluations float64     `json:"min_evaluations"`
	MaxEvaluations float64     `json:"max_evaluations"`
	AvgFinalBest   float64     `json:"avg_final_best"`
	StdFinalBest   float64     `json:"std_final_best"`
	Runs           []ReportRun `json:"runs"`
	AverageBest    []PlotPoint `json:"average_best"`
}

// BuildReport summarizes histories that all belong to problem. A run
// succeeds when its first best-score channel reaches goal in the run's
// optimization direction; with no goal every run counts as successful at its
// last generation.
func BuildReport(problem string, goal *float64, histories []RunHistory) (Report, error) {
	report := Report{
		Problem:   problem,
		Goal:      goal,
		TotalRuns: len(histories),
		Runs:      make([]ReportRun, 0, len(histories)),
	}

	var evaluations, finals []float64
	series := make([][]float64, 0, len(histories))
	for _, history := range histories {
		if history.Run.Problem != problem {
			return Report{}, fmt.Errorf("run %s solves %s, not %s", history.Run.ID, history.Run.Problem, problem)
		}
		direction := objective.Maximize
		if len(history.Run.Objective) > 0 {
			parsed, err := objective.ParseOptimize(history.Run.Objective[0])
			if err != nil {
				return Report{}, fmt.Errorf("run %s: %w", history.Run.ID, err)
			}
			direction = parsed
		}

		run := evaluateHistory(history, direction, goal)
		report.Runs = append(report.Runs, run)
		finals = append(finals, run.FinalBest)
		series = append(series, bestSeries(history.Epochs))
		if run.Success {
			report.SuccessRuns++
			evaluations = append(evaluations, float64(run.Evaluations))
		}
	}

	if report.TotalRuns > 0 {
		report.SuccessRate = float64(report.SuccessRuns) / float64(report.TotalRuns)
		report.AvgFinalBest, report.StdFinalBest = meanStdDev(finals)
	}
	if len(evaluations) > 0 {
		report.AvgEvaluations, report.StdEvaluations = meanStdDev(evaluations)
		report.MinEvaluations, report.MaxEvaluations = evaluations[0], evaluations[0]
		for _, value := range evaluations[1:] {
			report.MinEvaluations = min(report.MinEvaluations, value)
			report.MaxEvaluations = max(report.MaxEvaluations, value)
		}
	}
	report.AverageBest = averagePlot(series)
	return report, nil
}

func evaluateHistory(history RunHistory, direction objective.Optimize, goal *float64) ReportRun {
	run := ReportRun{RunID: history.Run.ID, Generations: len(history.Epochs)}
	for _, epoch := range history.Epochs {
		if len(epoch.BestScore) == 0 {
			continue
		}
		run.FinalBest = epoch.BestScore[0]
		run.Evaluations = epoch.Evaluations
		if goal != nil && reached(direction, epoch.BestScore[0], *goal) {
			run.Success = true
			run.ReachedGeneration = epoch.Generation
			return run
		}
	}
	if goal == nil && len(history.Epochs) > 0 {
		run.Success = true
		run.ReachedGeneration = history.Epochs[len(history.Epochs)-1].Generation
	}
	return run
}

func reached(direction objective.Optimize, value, goal float64) bool {
	if direction == objective.Minimize {
		return value <= goal
	}
	return value >= goal
}

func bestSeries(epochs []model.EpochRecord) []float64 {
	series := make([]float64, 0, len(epochs))
	for _, epoch := range epochs {
		if len(epoch.BestScore) > 0 {
			series = append(series, epoch.BestScore[0])
		}
	}
	return series
}

// averagePlot averages the i-th entry of every series that is long enough.
func averagePlot(series [][]float64) []PlotPoint {
	longest := 0
	for _, s := range series {
		longest = max(longest, len(s))
	}
	points := make([]PlotPoint, 0, longest)
	for i := 0; i < longest; i++ {
		values := make([]float64, 0, len(series))
		for _, s := range series {
			if i < len(s) {
				values = append(values, s[i])
			}
		}
		mean, std := meanStdDev(values)
		points = append(points, PlotPoint{Generation: i + 1, Mean: mean, StdDev: std, Runs: len(values)})
	}
	return points
}

func meanStdDev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	if len(values) == 1 {
		return values[0], 0
	}
	return stat.MeanStdDev(values, nil)
}
