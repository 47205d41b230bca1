package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goffincedric/SimpleAI/internal/model"
	"github.com/goffincedric/SimpleAI/internal/storage"
	"github.com/goffincedric/SimpleAI/pkg/poleevo"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
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
	case "eval":
		return runEval(ctx, args[1:])
	case "inspect":
		return runInspect(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "history":
		return runHistory(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML run config")
	flags := registerRunFlags(fs, DefaultRunConfig())
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := LoadRunConfig(*configPath)
	if err != nil {
		return err
	}
	if err := flags.apply(&cfg, setFlagNames(fs)); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	var registerer prometheus.Registerer
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		shutdown := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer shutdown()
		registerer = reg
	}

	client, err := poleevo.New(poleevo.Options{
		StoreKind:  cfg.Store,
		DBPath:     cfg.DBPath,
		Logger:     logger,
		Registerer: registerer,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	req := cfg.Request()
	req.OnGeneration = func(diag model.GenerationDiagnostics) {
		fmt.Printf("generation=%d best=%.6f mean=%.6f edges=%d hidden=%d start_angle=%.0f failed=%d\n",
			diag.Generation, diag.BestFitness, diag.MeanFitness, diag.BestEdgeCount, diag.BestHiddenCount, diag.StartAngleDegrees, diag.FailedEvaluations)
	}
	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("run_id=%s generations=%d final_best=%.6f interrupted=%t loaded=%t\n",
		summary.RunID, len(summary.BestByGeneration), summary.FinalBestFitness, summary.Interrupted, summary.Loaded)
	if cfg.PopulationDir != "" {
		fmt.Printf("population_dir=%s\n", cfg.PopulationDir)
	}
	return nil
}

func runEval(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML run config for physics, rewards and activations")
	graphPath := fs.String("graph", "", "graph file to replay")
	steps := fs.Int("steps", 0, "timesteps (0 uses the config value)")
	angle := fs.Float64("start-angle", 0, "starting pole angle in degrees")
	fitness := fs.String("fitness", "", "fitness function (empty uses the config value)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *graphPath == "" {
		return errors.New("eval requires -graph")
	}
	cfg, err := LoadRunConfig(*configPath)
	if err != nil {
		return err
	}
	if *steps > 0 {
		cfg.Steps = *steps
	}
	if *fitness != "" {
		cfg.Fitness = *fitness
	}

	client, err := poleevo.New(poleevo.Options{StoreKind: "memory"})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Eval(ctx, poleevo.EvalRequest{
		GraphPath:         *graphPath,
		Steps:             cfg.Steps,
		StartAngleDegrees: *angle,
		StartPosition:     cfg.StartPosition,
		Fitness:           cfg.Fitness,
		Physics:           cfg.Physics,
		Rewards:           cfg.Rewards,
		Activations:       cfg.Activations,
	})
	if err != nil {
		return err
	}
	fmt.Printf("fitness=%.6f\n", summary.Fitness)
	keys := make([]string, 0, len(summary.Trace))
	for k := range summary.Trace {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s=%v\n", k, summary.Trace[k])
	}
	return nil
}

func runInspect(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	graphPath := fs.String("graph", "", "graph file to inspect")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *graphPath == "" {
		return errors.New("inspect requires -graph")
	}

	client, err := poleevo.New(poleevo.Options{StoreKind: "memory"})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	report, err := client.Inspect(ctx, *graphPath)
	if err != nil {
		return err
	}
	fmt.Printf("nodes=%d edges=%d hidden=%d max_edges=%d detached=%d\n",
		len(report.Nodes), len(report.Edges), report.HiddenCount, report.MaxPossibleEdges, len(report.Detached))
	labels := make(map[string]string, len(report.Nodes))
	for _, n := range report.Nodes {
		labels[n.ID] = fmt.Sprintf("%s(%s bias=%.4f)", n.ID, n.Role, n.Bias)
	}
	for i, layer := range report.Layers {
		parts := make([]string, 0, len(layer))
		for _, id := range layer {
			parts = append(parts, labels[id])
		}
		fmt.Printf("layer %d: %s\n", i, strings.Join(parts, " "))
	}
	for _, id := range report.Detached {
		fmt.Printf("detached: %s\n", labels[id])
	}
	for _, e := range report.Edges {
		fmt.Printf("edge %s -> %s weight=%.4f\n", e.From, e.To, e.Weight)
	}
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "poleevo.db", "sqlite database path")
	limit := fs.Int("limit", 20, "max runs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := poleevo.New(poleevo.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx, *limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Printf("run_id=%s created_at=%s seed=%d population=%d generations=%d fitness=%s best=%.6f interrupted=%t\n",
			r.ID, r.CreatedAtUTC, r.Seed, r.Population, r.Generations, r.Fitness, r.BestFitness, r.Interrupted)
	}
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "poleevo.db", "sqlite database path")
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	showLineage := fs.Bool("lineage", false, "also print how each member was produced")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := poleevo.New(poleevo.Options{StoreKind: *storeKind, DBPath: *dbPath})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	report, err := client.History(ctx, poleevo.HistoryRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}
	fmt.Printf("run_id=%s seed=%d population=%d generations=%d best=%.6f\n",
		report.Run.ID, report.Run.Seed, report.Run.Population, report.Run.Generations, report.Run.BestFitness)
	for _, d := range report.GenerationDiagnostics {
		fmt.Printf("generation=%d best=%.6f mean=%.6f min=%.6f edges=%d hidden=%d mean_nodes=%.2f elites=%d failed=%d start_angle=%.0f\n",
			d.Generation, d.BestFitness, d.MeanFitness, d.MinFitness, d.BestEdgeCount, d.BestHiddenCount, d.MeanNodeCount, d.EliteCount, d.FailedEvaluations, d.StartAngleDegrees)
	}
	if *showLineage {
		for _, l := range report.Lineage {
			fmt.Printf("lineage generation=%d index=%d parent_rank=%d op=%s\n", l.Generation, l.Index, l.ParentRank, l.Operation)
		}
	}
	return nil
}

func newLogger(level string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "poleevoctl",
		Level:  hclog.LevelFromString(level),
		Output: os.Stderr,
	})
}

// serveMetrics exposes reg on addr until the returned shutdown func runs.
func serveMetrics(addr string, reg *prometheus.Registry, logger hclog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: poleevoctl <run|eval|inspect|runs|history> [flags]", msg)
}
