// Package phylon is the public entry point for running, persisting and
// exporting evolutionary runs.
package phylon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"phylon/internal/config"
	"phylon/internal/evo"
	"phylon/internal/genome"
	"phylon/internal/metrics"
	"phylon/internal/model"
	"phylon/internal/pareto"
	"phylon/internal/problems"
	"phylon/internal/stats"
	"phylon/internal/storage"
)

const (
	defaultExportsDir = "exports"
	defaultDBPath     = "phylon.db"
)

type Options struct {
	StoreKind  string
	DBPath     string
	ExportsDir string
	Logger     *slog.Logger
	// Metrics receives every epoch's metric set.
	Metrics metrics.Sink
	Tracer  trace.Tracer
}

type Client struct {
	store      storage.Store
	exportsDir string
	logger     *slog.Logger
	metrics    metrics.Sink
	tracer     trace.Tracer

	initMu      sync.Mutex
	initialized bool

	newRunID func() string
	now      func() time.Time
}

type RunRequest struct {
	Config config.RunConfig
	// OnEpoch observes each persisted epoch summary as the run advances.
	OnEpoch func(model.EpochRecord)
}

type RunSummary struct {
	RunID       string
	Problem     string
	Generations int
	Evaluations int
	BestScore   []float64
	BestValue   string
	FrontSize   int
	Elapsed     time.Duration
}

type RunsRequest struct {
	Problem string
	Limit   int
}

type HistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type FrontRequest struct {
	RunID  string
	Latest bool
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type ReportRequest struct {
	Problem string
	Goal    *float64
	Limit   int
}

func New(opts Options) (*Client, error) {
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	store, err := storage.NewStore(opts.StoreKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		exportsDir: exportsDir,
		logger:     logger,
		metrics:    opts.Metrics,
		tracer:     opts.Tracer,
		newRunID:   uuid.NewString,
		now:        time.Now,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	c.initialized = true
	return nil
}

// Problems lists the registered benchmark problems.
func (c *Client) Problems() []problems.Info {
	return problems.List()
}

// Run executes one configured run to completion, persisting the run record,
// its epoch history and its final front. A failed or canceled run is stored
// with status failed and whatever history it reached.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	cfg := req.Config
	if err := cfg.Validate(); err != nil {
		return RunSummary{}, err
	}
	bench, err := problems.Resolve(cfg.Problem, problems.Options{Dimensions: cfg.Dimensions})
	if err != nil {
		return RunSummary{}, err
	}
	ops, err := cfg.Operators(bench.Distance)
	if err != nil {
		return RunSummary{}, err
	}
	alterers := ops.Alterers
	if len(alterers) == 0 {
		alterers = bench.Alterers
	}

	engine, err := evo.New(evo.Config[any]{
		Problem:           bench.Problem,
		PopulationSize:    cfg.Population,
		OffspringFraction: cfg.OffspringFraction,
		Objective:         bench.Objective,
		SurvivorSelector:  ops.SurvivorSelector,
		OffspringSelector: ops.OffspringSelector,
		Alterers:          alterers,
		Replacement:       ops.Replacement,
		MaxPhenotypeAge:   cfg.MaxPhenotypeAge,
		Distance:          ops.Distance,
		SpeciesThreshold:  cfg.Speciation.Threshold,
		MaxSpeciesAge:     cfg.Speciation.MaxAge,
		FrontSize:         pareto.Range{Min: cfg.Front.Min, Max: cfg.Front.Max},
		Workers:           cfg.Workers,
		Seed:              cfg.Seed,
		Logger:            c.logger,
		Metrics:           c.metrics,
		Tracer:            c.tracer,
	})
	if err != nil {
		return RunSummary{}, err
	}
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}

	rawConfig, err := json.Marshal(cfg)
	if err != nil {
		return RunSummary{}, fmt.Errorf("encode run config: %w", err)
	}
	run := model.RunRecord{
		VersionedRecord: storage.CurrentVersion(),
		ID:              c.newRunID(),
		Problem:         bench.Name,
		Objective:       directionNames(bench),
		Seed:            cfg.Seed,
		PopulationSize:  cfg.Population,
		Status:          model.RunRunning,
		Config:          rawConfig,
		StartedAt:       c.now().UTC(),
	}
	if err := c.store.SaveRun(ctx, run); err != nil {
		return RunSummary{}, fmt.Errorf("save run %s: %w", run.ID, err)
	}
	logger := c.logger.With("run_id", run.ID, "problem", bench.Name)
	logger.Info("run started", "population", cfg.Population, "seed", cfg.Seed)

	var epochs []model.EpochRecord
	stop := evo.Until[any](cfg.Limits(bench.Objective.Direction(0))...)
	last, runErr := engine.Run(ctx, func(epoch evo.Epoch[any]) bool {
		record := epochRecord(epoch.Summary)
		epochs = append(epochs, record)
		if req.OnEpoch != nil {
			req.OnEpoch(record)
		}
		return stop(epoch)
	})

	// Persist with a fresh context so a canceled run still records its state.
	saveCtx := context.WithoutCancel(ctx)
	run.Generations = len(epochs)
	if len(epochs) > 0 {
		run.Evaluations = epochs[len(epochs)-1].Evaluations
		run.BestScore = append([]float64(nil), epochs[len(epochs)-1].BestScore...)
	}
	run.FinishedAt = c.now().UTC()
	if err := c.store.SaveEpochs(saveCtx, run.ID, epochs); err != nil {
		return RunSummary{}, fmt.Errorf("save epochs %s: %w", run.ID, err)
	}

	if runErr != nil {
		run.Status = model.RunFailed
		run.Error = runErr.Error()
		if err := c.store.SaveRun(saveCtx, run); err != nil {
			return RunSummary{}, errors.Join(runErr, fmt.Errorf("save run %s: %w", run.ID, err))
		}
		logger.Warn("run failed", "generations", run.Generations, "error", runErr)
		return RunSummary{RunID: run.ID, Problem: bench.Name, Generations: run.Generations}, fmt.Errorf("run %s: %w", run.ID, runErr)
	}

	front := frontMembers(bench, last)
	if err := c.store.SaveFront(saveCtx, run.ID, front); err != nil {
		return RunSummary{}, fmt.Errorf("save front %s: %w", run.ID, err)
	}
	run.Status = model.RunCompleted
	run.BestValue = bench.Format(last.BestValue)
	if err := c.store.SaveRun(saveCtx, run); err != nil {
		return RunSummary{}, fmt.Errorf("save run %s: %w", run.ID, err)
	}

	elapsed := run.FinishedAt.Sub(run.StartedAt)
	logger.Info("run completed", "generations", run.Generations, "evaluations", run.Evaluations, "best", run.BestScore, "elapsed", elapsed)
	return RunSummary{
		RunID:       run.ID,
		Problem:     bench.Name,
		Generations: run.Generations,
		Evaluations: run.Evaluations,
		BestScore:   append([]float64(nil), run.BestScore...),
		BestValue:   run.BestValue,
		FrontSize:   len(front),
		Elapsed:     elapsed,
	}, nil
}

// Runs lists stored runs, newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]model.RunRecord, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.RunRecord, 0, len(runs))
	problem := ""
	if req.Problem != "" {
		problem = problems.Normalize(req.Problem)
	}
	for _, run := range runs {
		if problem != "" && run.Problem != problem {
			continue
		}
		out = append(out, run)
		if req.Limit > 0 && len(out) == req.Limit {
			break
		}
	}
	return out, nil
}

func (c *Client) History(ctx context.Context, req HistoryRequest) ([]model.EpochRecord, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	epochs, ok, err := c.store.GetEpochs(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("history not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(epochs) > req.Limit {
		epochs = epochs[:req.Limit]
	}
	return epochs, nil
}

func (c *Client) Front(ctx context.Context, req FrontRequest) ([]model.FrontMember, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	front, ok, err := c.store.GetFront(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("front not found for run id: %s", runID)
	}
	return front, nil
}

// Export writes run.json, epochs.csv and front.csv for one stored run.
func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return ExportSummary{}, err
	}
	if !ok {
		return ExportSummary{}, fmt.Errorf("run not found: %s", runID)
	}
	epochs, _, err := c.store.GetEpochs(ctx, runID)
	if err != nil {
		return ExportSummary{}, err
	}
	front, _, err := c.store.GetFront(ctx, runID)
	if err != nil {
		return ExportSummary{}, err
	}

	dir, err := stats.WriteRunArtifacts(req.OutDir, stats.RunArtifacts{Run: run, Epochs: epochs, Front: front})
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(dir)}, nil
}

// Report aggregates the completed runs of one problem.
func (c *Client) Report(ctx context.Context, req ReportRequest) (stats.Report, error) {
	if req.Problem == "" {
		return stats.Report{}, errors.New("report requires a problem")
	}
	runs, err := c.Runs(ctx, RunsRequest{Problem: req.Problem})
	if err != nil {
		return stats.Report{}, err
	}

	histories := make([]stats.RunHistory, 0, len(runs))
	for _, run := range runs {
		if run.Status != model.RunCompleted {
			continue
		}
		epochs, _, err := c.store.GetEpochs(ctx, run.ID)
		if err != nil {
			return stats.Report{}, err
		}
		histories = append(histories, stats.RunHistory{Run: run, Epochs: epochs})
		if req.Limit > 0 && len(histories) == req.Limit {
			break
		}
	}
	return stats.BuildReport(problems.Normalize(req.Problem), req.Goal, histories)
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if err := c.Init(ctx); err != nil {
		return "", err
	}
	if !latest {
		if runID == "" {
			return "", errors.New("run id or latest is required")
		}
		return runID, nil
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", errors.New("no runs available")
	}
	return runs[0].ID, nil
}

func directionNames(bench problems.Benchmark) []string {
	names := make([]string, bench.Objective.Len())
	for i, d := range bench.Objective.Directions() {
		names[i] = d.String()
	}
	return names
}

func epochRecord(s evo.Summary) model.EpochRecord {
	return model.EpochRecord{
		Generation:      s.Generation,
		BestScore:       append([]float64(nil), s.BestScore...),
		Improved:        s.Improved,
		MeanFitness:     s.MeanFitness,
		StdDevFitness:   s.StdDevFitness,
		MinFitness:      s.MinFitness,
		MaxFitness:      s.MaxFitness,
		Evaluations:     s.Evaluations,
		SpeciesCount:    s.SpeciesCount,
		FrontSize:       s.FrontSize,
		ReplacedInvalid: s.ReplacedInvalid,
		ReplacedAged:    s.ReplacedAged,
		Alterations:     s.Alterations,
		ElapsedMS:       s.Elapsed.Milliseconds(),
	}
}

// frontMembers returns the Pareto front for vector objectives and the best
// phenotype otherwise.
func frontMembers(bench problems.Benchmark, epoch evo.Epoch[any]) []model.FrontMember {
	members := epoch.Front
	if !bench.Objective.IsMulti() {
		members = genome.Population{epoch.Best}
	}
	out := make([]model.FrontMember, 0, len(members))
	for _, p := range members {
		genes := p.Genotype.Genes()
		alleles := make([]string, len(genes))
		for i, gene := range genes {
			alleles[i] = fmt.Sprint(gene.Allele())
		}
		out = append(out, model.FrontMember{
			VersionedRecord: storage.CurrentVersion(),
			PhenotypeID:     p.ID,
			Generation:      p.Generation,
			Scores:          p.Score.Values(),
			Alleles:         alleles,
			Value:           bench.Format(bench.Problem.Decode(p.Genotype)),
		})
	}
	return out
}
