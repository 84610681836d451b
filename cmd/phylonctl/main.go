package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"phylon/internal/config"
	"phylon/internal/metrics"
	"phylon/internal/model"
	"phylon/internal/stats"
	"phylon/internal/storage"
	"phylon/pkg/phylon"
)

const (
	defaultDBPath = "phylon.db"
	exportsDir    = "exports"
)

var stdout io.Writer = os.Stdout

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:])
	case "benchmark":
		return runBenchmark(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "history":
		return runHistory(ctx, args[1:])
	case "front":
		return runFront(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "report":
		return runReport(ctx, args[1:])
	case "problems":
		return runProblems(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

// runFlags are the flags shared by run and benchmark; each overrides the
// loaded config only when set on the command line.
type runFlags struct {
	configPath  *string
	problem     *string
	dimensions  *int
	population  *int
	generations *int
	seed        *int64
	workers     *int
	target      *float64
	storeKind   *string
	dbPath      *string
	logLevel    *string
	metricsAddr *string
	jsonOut     *bool
}

func addRunFlags(fs *flag.FlagSet) runFlags {
	return runFlags{
		configPath:  fs.String("config", "", "optional run config YAML path"),
		problem:     fs.String("problem", "onemax", "benchmark problem name"),
		dimensions:  fs.Int("dims", 0, "problem dimensions (0 uses the problem default)"),
		population:  fs.Int("pop", 100, "population size"),
		generations: fs.Int("gens", 100, "generation limit (0 disables)"),
		seed:        fs.Int64("seed", 1, "rng seed"),
		workers:     fs.Int("workers", 1, "evaluation worker count"),
		target:      fs.Float64("target", 0, "stop once the first best score reaches this value"),
		storeKind:   fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite"),
		dbPath:      fs.String("db-path", defaultDBPath, "sqlite database path"),
		logLevel:    fs.String("log-level", "warn", "log level: debug|info|warn|error"),
		metricsAddr: fs.String("metrics-addr", "", "serve Prometheus metrics on this address while running"),
		jsonOut:     fs.Bool("json", false, "emit results as JSON"),
	}
}

func (f runFlags) load(fs *flag.FlagSet) (config.RunConfig, error) {
	cfg, err := config.Load(*f.configPath)
	if err != nil {
		return config.RunConfig{}, err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) {
		setFlags[fl.Name] = true
	})
	if setFlags["problem"] {
		cfg.Problem = *f.problem
	}
	if setFlags["dims"] {
		cfg.Dimensions = *f.dimensions
	}
	if setFlags["pop"] {
		cfg.Population = *f.population
	}
	if setFlags["gens"] {
		cfg.Stop.Generations = *f.generations
	}
	if setFlags["seed"] {
		cfg.Seed = *f.seed
	}
	if setFlags["workers"] {
		cfg.Workers = *f.workers
	}
	if setFlags["target"] {
		target := *f.target
		cfg.Stop.Target = &target
	}
	if setFlags["store"] {
		cfg.Store = *f.storeKind
	}
	if setFlags["db-path"] {
		cfg.DBPath = *f.dbPath
	}
	if err := cfg.Validate(); err != nil {
		return config.RunConfig{}, err
	}
	return cfg, nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	flags := addRunFlags(fs)
	outDir := fs.String("out", "", "export run artifacts to this directory after the run")
	progress := fs.Bool("progress", false, "print one line per generation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := flags.load(fs)
	if err != nil {
		return err
	}
	logger, err := newLogger(*flags.logLevel)
	if err != nil {
		return err
	}

	sink, shutdown, err := serveMetrics(*flags.metricsAddr, logger)
	if err != nil {
		return err
	}
	defer shutdown()

	client, err := phylon.New(phylon.Options{
		StoreKind:  cfg.Store,
		DBPath:     cfg.DBPath,
		ExportsDir: exportsDir,
		Logger:     logger,
		Metrics:    sink,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	req := phylon.RunRequest{Config: cfg}
	if *progress && !*flags.jsonOut {
		req.OnEpoch = func(e model.EpochRecord) {
			fmt.Fprintf(stdout, "generation=%d best=%s mean=%.6f evaluations=%s\n",
				e.Generation, formatScores(e.BestScore), e.MeanFitness, humanize.Comma(int64(e.Evaluations)))
		}
	}
	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}

	var export *phylon.ExportSummary
	if *outDir != "" {
		exported, err := client.Export(ctx, phylon.ExportRequest{RunID: summary.RunID, OutDir: *outDir})
		if err != nil {
			return err
		}
		export = &exported
	}

	if *flags.jsonOut {
		type runOutput struct {
			RunID       string    `json:"run_id"`
			Problem     string    `json:"problem"`
			Generations int       `json:"generations"`
			Evaluations int       `json:"evaluations"`
			BestScore   []float64 `json:"best_score"`
			BestValue   string    `json:"best_value"`
			FrontSize   int       `json:"front_size"`
			ElapsedMS   int64     `json:"elapsed_ms"`
			ExportDir   string    `json:"export_dir,omitempty"`
		}
		out := runOutput{
			RunID:       summary.RunID,
			Problem:     summary.Problem,
			Generations: summary.Generations,
			Evaluations: summary.Evaluations,
			BestScore:   summary.BestScore,
			BestValue:   summary.BestValue,
			FrontSize:   summary.FrontSize,
			ElapsedMS:   summary.Elapsed.Milliseconds(),
		}
		if export != nil {
			out.ExportDir = export.Directory
		}
		return writeJSON(out)
	}

	fmt.Fprintf(stdout, "run_id=%s problem=%s generations=%d evaluations=%s best=%s front=%d elapsed=%s\n",
		summary.RunID,
		summary.Problem,
		summary.Generations,
		humanize.Comma(int64(summary.Evaluations)),
		formatScores(summary.BestScore),
		summary.FrontSize,
		summary.Elapsed.Round(time.Millisecond),
	)
	fmt.Fprintf(stdout, "best_value=%s\n", summary.BestValue)
	if export != nil {
		fmt.Fprintf(stdout, "exported to=%s\n", export.Directory)
	}
	return nil
}

func runBenchmark(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("benchmark", flag.ContinueOnError)
	flags := addRunFlags(fs)
	runs := fs.Int("runs", 10, "number of runs with consecutive seeds")
	goal := fs.Float64("goal", 0, "success goal for the first best score (unset counts every run)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runs <= 0 {
		return errors.New("runs must be > 0")
	}
	cfg, err := flags.load(fs)
	if err != nil {
		return err
	}
	logger, err := newLogger(*flags.logLevel)
	if err != nil {
		return err
	}
	sink, shutdown, err := serveMetrics(*flags.metricsAddr, logger)
	if err != nil {
		return err
	}
	defer shutdown()

	client, err := phylon.New(phylon.Options{
		StoreKind:  cfg.Store,
		DBPath:     cfg.DBPath,
		ExportsDir: exportsDir,
		Logger:     logger,
		Metrics:    sink,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	baseSeed := cfg.Seed
	for i := 0; i < *runs; i++ {
		cfg.Seed = baseSeed + int64(i)
		summary, err := client.Run(ctx, phylon.RunRequest{Config: cfg})
		if err != nil {
			return err
		}
		if !*flags.jsonOut {
			fmt.Fprintf(stdout, "run=%d/%d run_id=%s seed=%d best=%s evaluations=%s\n",
				i+1, *runs, summary.RunID, cfg.Seed, formatScores(summary.BestScore), humanize.Comma(int64(summary.Evaluations)))
		}
	}

	req := phylon.ReportRequest{Problem: cfg.Problem, Limit: *runs}
	if flagWasSet(fs, "goal") {
		req.Goal = goal
	}
	report, err := client.Report(ctx, req)
	if err != nil {
		return err
	}
	return printReport(report, *flags.jsonOut)
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	storeKind, dbPath := addStoreFlags(fs)
	problem := fs.String("problem", "", "only list runs of this problem")
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx, phylon.RunsRequest{Problem: *problem, Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		if runs == nil {
			runs = []model.RunRecord{}
		}
		return writeJSON(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(stdout, "no runs found")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(stdout, "run_id=%s problem=%s status=%s seed=%d pop=%d generations=%d evaluations=%s best=%s started=%s\n",
			r.ID,
			r.Problem,
			r.Status,
			r.Seed,
			r.PopulationSize,
			r.Generations,
			humanize.Comma(int64(r.Evaluations)),
			formatScores(r.BestScore),
			humanize.Time(r.StartedAt),
		)
	}
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	storeKind, dbPath := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show the most recent run")
	limit := fs.Int("limit", 0, "max generations to show (0 shows all)")
	jsonOut := fs.Bool("json", false, "emit history as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireRunSelector(*runID, *latest); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	epochs, err := client.History(ctx, phylon.HistoryRequest{RunID: *runID, Latest: *latest, Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(epochs)
	}
	for _, e := range epochs {
		fmt.Fprintf(stdout, "generation=%d best=%s improved=%t mean=%.6f stddev=%.6f evaluations=%s species=%d front=%d invalid=%d aged=%d alterations=%d\n",
			e.Generation,
			formatScores(e.BestScore),
			e.Improved,
			e.MeanFitness,
			e.StdDevFitness,
			humanize.Comma(int64(e.Evaluations)),
			e.SpeciesCount,
			e.FrontSize,
			e.ReplacedInvalid,
			e.ReplacedAged,
			e.Alterations,
		)
	}
	return nil
}

func runFront(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("front", flag.ContinueOnError)
	storeKind, dbPath := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show the most recent run")
	jsonOut := fs.Bool("json", false, "emit front as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireRunSelector(*runID, *latest); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	front, err := client.Front(ctx, phylon.FrontRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(front)
	}
	for _, m := range front {
		fmt.Fprintf(stdout, "phenotype_id=%d generation=%d scores=%s value=%s\n",
			m.PhenotypeID, m.Generation, formatScores(m.Scores), m.Value)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	storeKind, dbPath := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireRunSelector(*runID, *latest); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, phylon.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
	return nil
}

func runReport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	storeKind, dbPath := addStoreFlags(fs)
	problem := fs.String("problem", "", "problem to summarize")
	goal := fs.Float64("goal", 0, "success goal for the first best score (unset counts every run)")
	limit := fs.Int("limit", 0, "max completed runs to include (0 includes all)")
	jsonOut := fs.Bool("json", false, "emit report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *problem == "" {
		return errors.New("report requires --problem")
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	req := phylon.ReportRequest{Problem: *problem, Limit: *limit}
	if flagWasSet(fs, "goal") {
		req.Goal = goal
	}
	report, err := client.Report(ctx, req)
	if err != nil {
		return err
	}
	return printReport(report, *jsonOut)
}

func runProblems(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("problems", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "emit problem list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient("memory", "")
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	list := client.Problems()
	if *jsonOut {
		type problemItem struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		items := make([]problemItem, 0, len(list))
		for _, p := range list {
			items = append(items, problemItem{Name: p.Name, Description: p.Description})
		}
		return writeJSON(items)
	}
	for _, p := range list {
		fmt.Fprintf(stdout, "%-14s %s\n", p.Name, p.Description)
	}
	return nil
}

func printReport(report stats.Report, jsonOut bool) error {
	if jsonOut {
		return writeJSON(report)
	}
	goal := "none"
	if report.Goal != nil {
		goal = strconv.FormatFloat(*report.Goal, 'g', -1, 64)
	}
	fmt.Fprintf(stdout, "problem=%s goal=%s runs=%d success=%d success_rate=%.2f\n",
		report.Problem, goal, report.TotalRuns, report.SuccessRuns, report.SuccessRate)
	fmt.Fprintf(stdout, "evaluations avg=%s std=%.2f min=%s max=%s\n",
		humanize.Commaf(report.AvgEvaluations),
		report.StdEvaluations,
		humanize.Commaf(report.MinEvaluations),
		humanize.Commaf(report.MaxEvaluations),
	)
	fmt.Fprintf(stdout, "final_best avg=%.6f std=%.6f\n", report.AvgFinalBest, report.StdFinalBest)
	for _, r := range report.Runs {
		fmt.Fprintf(stdout, "run_id=%s generations=%d evaluations=%s final_best=%.6f success=%t\n",
			r.RunID, r.Generations, humanize.Comma(int64(r.Evaluations)), r.FinalBest, r.Success)
	}
	return nil
}

func addStoreFlags(fs *flag.FlagSet) (*string, *string) {
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", defaultDBPath, "sqlite database path")
	return storeKind, dbPath
}

func newClient(storeKind, dbPath string) (*phylon.Client, error) {
	return phylon.New(phylon.Options{
		StoreKind:  storeKind,
		DBPath:     dbPath,
		ExportsDir: exportsDir,
	})
}

func requireRunSelector(runID string, latest bool) error {
	if runID != "" && latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if runID == "" && !latest {
		return errors.New("requires --run-id or --latest")
	}
	return nil
}

func flagWasSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

// serveMetrics starts a Prometheus endpoint on addr and returns the sink
// feeding it. An empty addr disables the endpoint.
func serveMetrics(addr string, logger *slog.Logger) (metrics.Sink, func(), error) {
	if addr == "" {
		return nil, func() {}, nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	exporter, err := metrics.NewExporter(reg, "phylon")
	if err != nil {
		return nil, nil, err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return exporter, shutdown, nil
}

func formatScores(scores []float64) string {
	if len(scores) == 0 {
		return "-"
	}
	parts := make([]string, len(scores))
	for i, v := range scores {
		parts[i] = strconv.FormatFloat(v, 'f', 6, 64)
	}
	return strings.Join(parts, ";")
}

func writeJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: phylonctl <run|benchmark|runs|history|front|export|report|problems> [flags]", msg)
}
