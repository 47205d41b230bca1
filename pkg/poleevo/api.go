package poleevo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/goffincedric/SimpleAI/internal/agent"
	"github.com/goffincedric/SimpleAI/internal/evo"
	"github.com/goffincedric/SimpleAI/internal/genotype"
	"github.com/goffincedric/SimpleAI/internal/model"
	"github.com/goffincedric/SimpleAI/internal/nn"
	"github.com/goffincedric/SimpleAI/internal/scape"
	"github.com/goffincedric/SimpleAI/internal/storage"
)

const (
	defaultDBPath     = "poleevo.db"
	defaultPopulation = 100
	defaultSteps      = 1000
	angleChoices      = 360
)

// Controller ports. The state vector is [x, x', theta, theta'] and the only
// output is the force applied to the cart.
var (
	InputLabels  = []string{"CartPole position", "Cart velocity", "Pole angle", "Pole angular velocity"}
	OutputLabels = []string{"Force applied to cart"}
)

var ErrRunNotFound = errors.New("run not found")

type Options struct {
	StoreKind string
	DBPath    string
	Logger    hclog.Logger
	// Registerer receives the run metrics. Nil disables them.
	Registerer prometheus.Registerer
}

type Client struct {
	store   storage.Store
	logger  hclog.Logger
	metrics *evo.Metrics

	initOnce sync.Once
	initErr  error
}

type RunRequest struct {
	// PopulationDir is loaded when it already holds graph files and receives
	// the final population, best first. Empty keeps the run in memory.
	PopulationDir      string
	Population         int
	Generations        int
	Seed               int64
	Workers            int
	Steps              int
	// ElitePercentage nil keeps evo.DefaultElitePercentage; zero disables
	// elitism.
	ElitePercentage    *float64
	Selection          string
	TournamentSize     int
	MutationWeights    map[string]float64
	MutationCount      string
	ConstMutations     int
	// MutationSplit sets the partitioned policy's double and quadruple
	// shares. Nil keeps evo.DefaultPartitionedMutationCount.
	MutationSplit      *evo.PartitionedMutationCount
	MaxMutationRetries int
	InitStdDev         float64
	BiasStdDev         float64
	WeightStdDev       float64
	FaultPolicy        string
	SentinelFitness    *float64
	Fitness            string
	Physics            scape.CartPoleParams
	Rewards            scape.Rewards
	// StartAngleDegrees fixes the starting pole angle. Nil draws a whole
	// degree in [0, 360) per generation.
	StartAngleDegrees *float64
	StartPosition     float64
	WireSeed          bool
	Activations       nn.RoleActivations
	OnGeneration      func(model.GenerationDiagnostics)
}

type RunSummary struct {
	RunID                 string
	BestByGeneration      []float64
	GenerationDiagnostics []model.GenerationDiagnostics
	FinalBestFitness      float64
	BestGraph             model.GraphRecord
	Interrupted           bool
	Loaded                bool
}

type EvalRequest struct {
	GraphPath         string
	Steps             int
	StartAngleDegrees float64
	StartPosition     float64
	Fitness           string
	Physics           scape.CartPoleParams
	Rewards           scape.Rewards
	Activations       nn.RoleActivations
}

type EvalSummary struct {
	Fitness float64
	Trace   scape.Trace
}

type InspectSummary struct {
	Nodes            []model.Node
	Edges            []model.Edge
	Layers           [][]string
	Detached         []string
	HiddenCount      int
	MaxPossibleEdges int
}

type HistoryRequest struct {
	RunID  string
	Latest bool
}

type HistoryReport struct {
	Run                   model.RunSummary
	BestByGeneration      []float64
	GenerationDiagnostics []model.GenerationDiagnostics
	Lineage               []model.LineageRecord
}

func New(opts Options) (*Client, error) {
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	store, err := storage.NewStore(opts.StoreKind, dbPath)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	var metrics *evo.Metrics
	if opts.Registerer != nil {
		metrics = evo.NewMetrics(opts.Registerer)
	}
	return &Client{store: store, logger: logger, metrics: metrics}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	c.initOnce.Do(func() {
		c.initErr = c.store.Init(ctx)
	})
	return c.initErr
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	req = withRunDefaults(req)
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}

	fitness, err := fitnessFor(req.Fitness, req.Physics, req.Rewards)
	if err != nil {
		return RunSummary{}, err
	}
	activations, err := req.Activations.Resolve()
	if err != nil {
		return RunSummary{}, err
	}
	table, err := evo.MutationTableFromWeights(req.MutationWeights)
	if err != nil {
		return RunSummary{}, err
	}
	counts, err := mutationCountFor(req)
	if err != nil {
		return RunSummary{}, err
	}
	selector, err := evo.SelectorByName(req.Selection)
	if err != nil {
		return RunSummary{}, err
	}
	if t, ok := selector.(evo.TournamentSelector); ok {
		t.Size = req.TournamentSize
		selector = t
	}
	if req.StartAngleDegrees != nil && math.IsNaN(*req.StartAngleDegrees) {
		return RunSummary{}, errors.New("start angle must be a number")
	}

	initial, loaded, err := c.initialPopulation(req)
	if err != nil {
		return RunSummary{}, err
	}

	monitor, err := evo.NewMonitor(evo.MonitorConfig{
		Episodes:           episodeSource(req, fitness),
		MutationTable:      table,
		MutationCount:      counts,
		Selector:           selector,
		Activations:        activations,
		PopulationSize:     req.Population,
		ElitePercentage:    *req.ElitePercentage,
		Generations:        req.Generations,
		Workers:            req.Workers,
		Seed:               req.Seed,
		MaxMutationRetries: req.MaxMutationRetries,
		InitStdDev:         req.InitStdDev,
		BiasStdDev:         req.BiasStdDev,
		WeightStdDev:       req.WeightStdDev,
		FaultPolicy:        req.FaultPolicy,
		SentinelFitness:    req.SentinelFitness,
		Logger:             c.logger.Named("evo"),
		Metrics:            c.metrics,
		OnGeneration: func(diag model.GenerationDiagnostics, _ evo.Scored) {
			if req.OnGeneration != nil {
				req.OnGeneration(diag)
			}
		},
	})
	if err != nil {
		return RunSummary{}, err
	}

	result, err := monitor.Run(ctx, initial)
	if err != nil {
		return RunSummary{}, err
	}

	final := make([]*genotype.Graph, len(result.FinalPopulation))
	for i, item := range result.FinalPopulation {
		final[i] = item.Graph
	}
	if req.PopulationDir != "" {
		if err := storage.SavePopulationDir(req.PopulationDir, final); err != nil {
			return RunSummary{}, err
		}
	}

	// Persisting history must outlive the cancellation that ended the run.
	persistCtx := context.WithoutCancel(ctx)
	runID, err := c.persistRun(persistCtx, req, result)
	if err != nil {
		return RunSummary{}, err
	}
	c.logger.Info("run finished",
		"run_id", runID,
		"generations", len(result.BestByGeneration),
		"interrupted", result.Interrupted,
		"population_dir", req.PopulationDir,
	)

	version := storage.CurrentVersion()
	summary := RunSummary{
		RunID:                 runID,
		BestByGeneration:      append([]float64(nil), result.BestByGeneration...),
		GenerationDiagnostics: append([]model.GenerationDiagnostics(nil), result.GenerationDiagnostics...),
		BestGraph:             final[0].Record(version.SchemaVersion, version.CodecVersion),
		Interrupted:           result.Interrupted,
		Loaded:                loaded,
	}
	if n := len(result.BestByGeneration); n > 0 {
		summary.FinalBestFitness = result.BestByGeneration[n-1]
	}
	return summary, nil
}

func withRunDefaults(req RunRequest) RunRequest {
	if req.Population <= 0 {
		req.Population = defaultPopulation
	}
	if req.Steps <= 0 {
		req.Steps = defaultSteps
	}
	if req.ElitePercentage == nil {
		elite := evo.DefaultElitePercentage
		req.ElitePercentage = &elite
	}
	if req.Fitness == "" {
		req.Fitness = scape.FitnessPoleHeight
	}
	if len(req.MutationWeights) == 0 {
		req.MutationWeights = evo.DefaultMutationWeights()
	}
	if req.Physics == (scape.CartPoleParams{}) {
		req.Physics = scape.DefaultCartPoleParams()
	}
	if req.Rewards == (scape.Rewards{}) {
		req.Rewards = scape.DefaultRewards()
	}
	return req
}

func fitnessFor(name string, params scape.CartPoleParams, rewards scape.Rewards) (scape.FitnessFunc, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return scape.NewFitness(name, params, rewards)
}

func mutationCountFor(req RunRequest) (evo.MutationCountPolicy, error) {
	switch req.MutationCount {
	case "", "partitioned":
		if req.MutationSplit == nil {
			return evo.DefaultPartitionedMutationCount(), nil
		}
		return *req.MutationSplit, nil
	case "const":
		if req.ConstMutations <= 0 {
			return nil, errors.New("const mutation count must be > 0")
		}
		return evo.ConstMutationCount{Count: req.ConstMutations}, nil
	default:
		return nil, fmt.Errorf("unsupported mutation count policy: %s", req.MutationCount)
	}
}

// initialPopulation loads req.PopulationDir when it holds graphs and seeds
// fresh skeletons otherwise.
func (c *Client) initialPopulation(req RunRequest) ([]*genotype.Graph, bool, error) {
	if req.PopulationDir != "" && storage.CountPopulationDir(req.PopulationDir) > 0 {
		graphs, err := storage.LoadPopulationDir(req.PopulationDir, req.Population)
		if err != nil {
			return nil, false, err
		}
		for i, g := range graphs {
			if err := checkPorts(g); err != nil {
				return nil, false, fmt.Errorf("%s: %w", storage.GraphFileName(i), err)
			}
		}
		c.logger.Info("loaded population", "dir", req.PopulationDir, "size", len(graphs))
		return graphs, true, nil
	}
	// Offset keeps the seeding stream apart from the monitor's.
	rng := rand.New(rand.NewSource(req.Seed + 1000))
	graphs, err := evo.SeedPopulation(rng, req.Population, InputLabels, OutputLabels, req.WireSeed)
	if err != nil {
		return nil, false, err
	}
	return graphs, false, nil
}

// checkPorts rejects graphs whose ports do not match the cart-pole
// controller shape.
func checkPorts(g *genotype.Graph) error {
	inputs, outputs := 0, 0
	for _, n := range g.Nodes() {
		switch n.Role {
		case model.RoleInput:
			inputs++
		case model.RoleOutput:
			outputs++
		}
	}
	if inputs != len(InputLabels) || outputs != len(OutputLabels) {
		return fmt.Errorf("graph has %d inputs and %d outputs, want %d and %d", inputs, outputs, len(InputLabels), len(OutputLabels))
	}
	return nil
}

func episodeSource(req RunRequest, fitness scape.FitnessFunc) evo.EpisodeSource {
	return func(rng *rand.Rand, _ int) (evo.Episode, error) {
		var degrees float64
		if req.StartAngleDegrees != nil {
			degrees = *req.StartAngleDegrees
		} else {
			degrees = float64(rng.Intn(angleChoices))
		}
		return evo.Episode{
			Scape: scape.CartPoleScape{
				Params:        req.Physics,
				Fitness:       fitness,
				Steps:         req.Steps,
				StartPosition: req.StartPosition,
				StartAngle:    degrees * math.Pi / 180,
			},
			StartAngleDegrees: degrees,
		}, nil
	}
}

func (c *Client) persistRun(ctx context.Context, req RunRequest, result evo.RunResult) (string, error) {
	runID := uuid.NewString()
	version := storage.CurrentVersion()

	best := 0.0
	if n := len(result.BestByGeneration); n > 0 {
		best = result.BestByGeneration[n-1]
	}
	if err := c.store.SaveRun(ctx, model.RunSummary{
		VersionedRecord: version,
		ID:              runID,
		CreatedAtUTC:    time.Now().UTC().Format(time.RFC3339Nano),
		Seed:            req.Seed,
		Population:      req.Population,
		Generations:     len(result.BestByGeneration),
		BestFitness:     best,
		Fitness:         req.Fitness,
		Interrupted:     result.Interrupted,
	}); err != nil {
		return "", err
	}

	snapshot := model.PopulationSnapshot{
		VersionedRecord: version,
		ID:              runID + "-final",
		RunID:           runID,
		Generation:      len(result.BestByGeneration),
		Graphs:          make([]model.GraphRecord, 0, len(result.FinalPopulation)),
		Fitness:         make([]float64, 0, len(result.FinalPopulation)),
	}
	for _, item := range result.FinalPopulation {
		snapshot.Graphs = append(snapshot.Graphs, item.Graph.Record(version.SchemaVersion, version.CodecVersion))
		snapshot.Fitness = append(snapshot.Fitness, item.Fitness)
	}
	if err := c.store.SavePopulationSnapshot(ctx, snapshot); err != nil {
		return "", err
	}
	if err := c.store.SaveFitnessHistory(ctx, runID, result.BestByGeneration); err != nil {
		return "", err
	}
	if err := c.store.SaveGenerationDiagnostics(ctx, runID, result.GenerationDiagnostics); err != nil {
		return "", err
	}
	if err := c.store.SaveLineage(ctx, runID, result.Lineage); err != nil {
		return "", err
	}
	return runID, nil
}

// Eval replays one persisted graph for a single episode.
func (c *Client) Eval(ctx context.Context, req EvalRequest) (EvalSummary, error) {
	if req.GraphPath == "" {
		return EvalSummary{}, errors.New("eval requires a graph path")
	}
	if req.Steps <= 0 {
		req.Steps = defaultSteps
	}
	if req.Fitness == "" {
		req.Fitness = scape.FitnessPoleHeight
	}
	if req.Physics == (scape.CartPoleParams{}) {
		req.Physics = scape.DefaultCartPoleParams()
	}
	if req.Rewards == (scape.Rewards{}) {
		req.Rewards = scape.DefaultRewards()
	}
	fitness, err := fitnessFor(req.Fitness, req.Physics, req.Rewards)
	if err != nil {
		return EvalSummary{}, err
	}
	activations, err := req.Activations.Resolve()
	if err != nil {
		return EvalSummary{}, err
	}
	g, err := storage.LoadGraph(req.GraphPath)
	if err != nil {
		return EvalSummary{}, err
	}
	if err := checkPorts(g); err != nil {
		return EvalSummary{}, err
	}
	a, err := agent.New(g, activations)
	if err != nil {
		return EvalSummary{}, err
	}
	sc := scape.CartPoleScape{
		Params:        req.Physics,
		Fitness:       fitness,
		Steps:         req.Steps,
		StartPosition: req.StartPosition,
		StartAngle:    req.StartAngleDegrees * math.Pi / 180,
	}
	score, trace, err := sc.Evaluate(ctx, a)
	if err != nil {
		return EvalSummary{}, err
	}
	return EvalSummary{Fitness: float64(score), Trace: trace}, nil
}

// Inspect loads one graph file and reports its evaluation layers.
func (c *Client) Inspect(_ context.Context, path string) (InspectSummary, error) {
	g, err := storage.LoadGraph(path)
	if err != nil {
		return InspectSummary{}, err
	}
	layering, err := g.TopologicalLayers()
	if err != nil {
		return InspectSummary{}, err
	}
	return InspectSummary{
		Nodes:            g.Nodes(),
		Edges:            g.Edges(),
		Layers:           layering.Layers,
		Detached:         layering.Detached,
		HiddenCount:      g.HiddenCount(),
		MaxPossibleEdges: g.MaxPossibleEdges(),
	}, nil
}

// Runs lists stored runs, newest first.
func (c *Client) Runs(ctx context.Context, limit int) ([]model.RunSummary, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].CreatedAtUTC > runs[j].CreatedAtUTC })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (c *Client) History(ctx context.Context, req HistoryRequest) (HistoryReport, error) {
	if req.RunID != "" && req.Latest {
		return HistoryReport{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return HistoryReport{}, errors.New("history requires run id or latest")
	}
	if err := c.Init(ctx); err != nil {
		return HistoryReport{}, err
	}

	runID := req.RunID
	if req.Latest {
		runs, err := c.Runs(ctx, 1)
		if err != nil {
			return HistoryReport{}, err
		}
		if len(runs) == 0 {
			return HistoryReport{}, ErrRunNotFound
		}
		runID = runs[0].ID
	}

	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return HistoryReport{}, err
	}
	if !ok {
		return HistoryReport{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	report := HistoryReport{Run: run}
	if report.BestByGeneration, _, err = c.store.GetFitnessHistory(ctx, runID); err != nil {
		return HistoryReport{}, err
	}
	if report.GenerationDiagnostics, _, err = c.store.GetGenerationDiagnostics(ctx, runID); err != nil {
		return HistoryReport{}, err
	}
	if report.Lineage, _, err = c.store.GetLineage(ctx, runID); err != nil {
		return HistoryReport{}, err
	}
	return report, nil
}
