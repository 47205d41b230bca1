package evo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/errgroup"

	"github.com/goffincedric/SimpleAI/internal/agent"
	"github.com/goffincedric/SimpleAI/internal/genotype"
	"github.com/goffincedric/SimpleAI/internal/model"
	"github.com/goffincedric/SimpleAI/internal/nn"
	"github.com/goffincedric/SimpleAI/internal/scape"
)

// ErrEvaluationFault wraps an episode that returned an error or panicked.
var ErrEvaluationFault = errors.New("evaluation fault")

const (
	FaultPolicyFail     = "fail"
	FaultPolicySentinel = "sentinel"

	DefaultSentinelFitness    = -1e9
	DefaultMaxMutationRetries = 10
	DefaultElitePercentage    = 0.15

	opNoop = "noop"
)

// Episode is the scape shared by every individual of one generation.
type Episode struct {
	Scape             scape.Scape
	StartAngleDegrees float64
}

// EpisodeSource prepares the episode for a generation. It may draw from rng,
// which is the monitor's own seeded source.
type EpisodeSource func(rng *rand.Rand, generation int) (Episode, error)

// Scored is one evaluated individual.
type Scored struct {
	Graph   *genotype.Graph
	Fitness float64
	Trace   scape.Trace
	Failed  bool
	Err     error
}

type RunResult struct {
	BestByGeneration      []float64
	GenerationDiagnostics []model.GenerationDiagnostics
	Lineage               []model.LineageRecord
	// FinalPopulation is the last evaluated generation, best first.
	FinalPopulation []Scored
	Interrupted     bool
}

type MonitorConfig struct {
	Episodes           EpisodeSource
	MutationTable      []WeightedMutation
	MutationCount      MutationCountPolicy
	Selector           Selector
	Activations        nn.ActivationSet
	PopulationSize     int
	ElitePercentage    float64
	Generations        int
	Workers            int
	Seed               int64
	MaxMutationRetries int
	BiasStdDev         float64
	WeightStdDev       float64
	InitStdDev         float64
	FaultPolicy        string
	// SentinelFitness is the score of a failed individual under
	// FaultPolicySentinel. Nil uses DefaultSentinelFitness.
	SentinelFitness    *float64
	Logger             hclog.Logger
	Metrics            *Metrics
	OnGeneration       func(model.GenerationDiagnostics, Scored)
}

// Monitor runs the generational loop. Generations == 0 runs until ctx is
// cancelled; cancellation is only honoured between generations.
type Monitor struct {
	cfg      MonitorConfig
	rng      *rand.Rand
	sentinel float64
}

func NewMonitor(cfg MonitorConfig) (*Monitor, error) {
	if cfg.Episodes == nil {
		return nil, fmt.Errorf("episode source is required")
	}
	if len(cfg.MutationTable) == 0 {
		return nil, fmt.Errorf("mutation table is required")
	}
	positive := false
	for i, item := range cfg.MutationTable {
		if item.Operator == nil {
			return nil, fmt.Errorf("mutation table operator is required at index %d", i)
		}
		if item.Weight < 0 {
			return nil, fmt.Errorf("mutation table weight must be >= 0 at index %d", i)
		}
		positive = positive || item.Weight > 0
	}
	if !positive {
		return nil, fmt.Errorf("mutation table requires at least one positive weight")
	}
	if cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	if cfg.ElitePercentage < 0 || cfg.ElitePercentage > 1 {
		return nil, fmt.Errorf("elite percentage must be in [0, 1]")
	}
	if cfg.Generations < 0 {
		return nil, fmt.Errorf("generations must be >= 0")
	}
	if cfg.MaxMutationRetries < 0 {
		return nil, fmt.Errorf("max mutation retries must be >= 0")
	}
	if cfg.MaxMutationRetries == 0 {
		cfg.MaxMutationRetries = DefaultMaxMutationRetries
	}
	switch cfg.FaultPolicy {
	case "":
		cfg.FaultPolicy = FaultPolicyFail
	case FaultPolicyFail, FaultPolicySentinel:
	default:
		return nil, fmt.Errorf("unsupported fault policy: %s", cfg.FaultPolicy)
	}
	sentinel := DefaultSentinelFitness
	if cfg.SentinelFitness != nil {
		if math.IsNaN(*cfg.SentinelFitness) {
			return nil, fmt.Errorf("sentinel fitness must be a number")
		}
		sentinel = *cfg.SentinelFitness
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.MutationCount == nil {
		cfg.MutationCount = DefaultPartitionedMutationCount()
	}
	if cfg.Selector == nil {
		cfg.Selector = FitnessProportionalSelector{}
	}
	if cfg.Activations.IsZero() {
		cfg.Activations = nn.DefaultActivationSet()
	}
	if cfg.InitStdDev <= 0 {
		cfg.InitStdDev = genotype.DefaultInitStdDev
	}
	if cfg.BiasStdDev <= 0 {
		cfg.BiasStdDev = genotype.DefaultBiasStdDev
	}
	if cfg.WeightStdDev <= 0 {
		cfg.WeightStdDev = genotype.DefaultWeightStdDev
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	return &Monitor{
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		sentinel: sentinel,
	}, nil
}

func (m *Monitor) Run(ctx context.Context, initial []*genotype.Graph) (RunResult, error) {
	if len(initial) != m.cfg.PopulationSize {
		return RunResult{}, fmt.Errorf("initial population mismatch: got=%d want=%d", len(initial), m.cfg.PopulationSize)
	}

	population := append([]*genotype.Graph(nil), initial...)
	var result RunResult
	var ranked []Scored

	for gen := 1; m.cfg.Generations == 0 || gen <= m.cfg.Generations; gen++ {
		if ctx.Err() != nil {
			result.Interrupted = true
			break
		}

		episode, err := m.cfg.Episodes(m.rng, gen)
		if err != nil {
			return RunResult{}, fmt.Errorf("generation %d episode: %w", gen, err)
		}
		scored, err := m.evaluate(ctx, episode.Scape, population)
		if err != nil {
			return RunResult{}, fmt.Errorf("generation %d: %w", gen, err)
		}
		ranked = rank(scored)
		if ranked[0].Failed {
			return RunResult{}, fmt.Errorf("generation %d: %w: every individual failed", gen, ErrEvaluationFault)
		}

		eliteCount := m.eliteCount(ranked)
		diag := summarizeGeneration(ranked, gen, eliteCount, episode.StartAngleDegrees)
		result.BestByGeneration = append(result.BestByGeneration, diag.BestFitness)
		result.GenerationDiagnostics = append(result.GenerationDiagnostics, diag)
		m.cfg.Metrics.observeGeneration(diag)
		m.cfg.Logger.Info("generation evaluated",
			"generation", gen,
			"best_fitness", diag.BestFitness,
			"mean_fitness", diag.MeanFitness,
			"best_edges", diag.BestEdgeCount,
			"best_hidden", diag.BestHiddenCount,
			"failed", diag.FailedEvaluations,
		)
		if m.cfg.OnGeneration != nil {
			m.cfg.OnGeneration(diag, ranked[0])
		}

		if m.cfg.Generations > 0 && gen == m.cfg.Generations {
			break
		}
		if ctx.Err() != nil {
			result.Interrupted = true
			break
		}

		var lineage []model.LineageRecord
		population, lineage, err = m.nextGeneration(ranked, eliteCount, gen)
		if err != nil {
			return RunResult{}, fmt.Errorf("generation %d reproduce: %w", gen, err)
		}
		result.Lineage = append(result.Lineage, lineage...)
	}

	if ranked == nil {
		// Stopped before anything was scored.
		ranked = make([]Scored, len(population))
		for i, g := range population {
			ranked[i] = Scored{Graph: g}
		}
	}
	result.FinalPopulation = ranked
	return result, nil
}

// evaluate scores every graph on its own environment. The episode runs
// detached from ctx cancellation; results land at the graph's index.
func (m *Monitor) evaluate(ctx context.Context, sc scape.Scape, population []*genotype.Graph) ([]Scored, error) {
	episodeCtx := context.WithoutCancel(ctx)
	scored := make([]Scored, len(population))

	p := pool.New().WithMaxGoroutines(min(m.cfg.Workers, len(population))).WithErrors()
	for i, g := range population {
		p.Go(func() error {
			start := time.Now()
			var (
				fitness scape.Fitness
				trace   scape.Trace
				err     error
			)
			var catcher panics.Catcher
			catcher.Try(func() {
				var a *agent.Agent
				a, err = agent.New(g, m.cfg.Activations)
				if err != nil {
					return
				}
				fitness, trace, err = sc.Evaluate(episodeCtx, a)
			})
			if recovered := catcher.Recovered(); recovered != nil {
				err = recovered.AsError()
			}
			m.cfg.Metrics.observeEvaluation(time.Since(start), err != nil)

			if err == nil {
				scored[i] = Scored{Graph: g, Fitness: float64(fitness), Trace: trace}
				return nil
			}
			err = fmt.Errorf("%w: individual %d: %w", ErrEvaluationFault, i, err)
			if m.cfg.FaultPolicy == FaultPolicyFail {
				return err
			}
			m.cfg.Logger.Warn("evaluation failed, recording sentinel fitness", "individual", i, "error", err)
			scored[i] = Scored{Graph: g, Fitness: m.sentinel, Failed: true, Err: err}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return scored, nil
}

// rank orders by fitness, best first, with failed individuals last and
// smaller graphs winning ties.
func rank(scored []Scored) []Scored {
	ranked := append([]Scored(nil), scored...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Failed != b.Failed {
			return !a.Failed
		}
		if a.Fitness != b.Fitness {
			return a.Fitness > b.Fitness
		}
		return a.Graph.NodeCount() < b.Graph.NodeCount()
	})
	return ranked
}

// eliteCount is floor(N*P), at least one when P > 0, and never more than
// the individuals that evaluated cleanly.
func (m *Monitor) eliteCount(ranked []Scored) int {
	if m.cfg.ElitePercentage <= 0 {
		return 0
	}
	count := int(math.Floor(float64(len(ranked)) * m.cfg.ElitePercentage))
	count = max(count, 1)
	return min(count, len(eligibleIndexes(ranked)))
}

func summarizeGeneration(ranked []Scored, generation, eliteCount int, startAngle float64) model.GenerationDiagnostics {
	diag := model.GenerationDiagnostics{
		Generation:        generation,
		BestFitness:       ranked[0].Fitness,
		MinFitness:        ranked[0].Fitness,
		BestEdgeCount:     ranked[0].Graph.EdgeCount(),
		BestHiddenCount:   ranked[0].Graph.HiddenCount(),
		EliteCount:        eliteCount,
		StartAngleDegrees: startAngle,
	}
	total, nodes, ok := 0.0, 0, 0
	for _, item := range ranked {
		nodes += item.Graph.NodeCount()
		if item.Failed {
			diag.FailedEvaluations++
			continue
		}
		ok++
		total += item.Fitness
		diag.MinFitness = min(diag.MinFitness, item.Fitness)
	}
	diag.MeanFitness = total / float64(ok)
	diag.MeanNodeCount = float64(nodes) / float64(len(ranked))
	return diag
}

type childPlan struct {
	parentRank int
	mutations  int
	seed       int64
}

// nextGeneration clones the elites and fills the remaining slots with
// mutated copies of sampled parents. Every draw from the monitor's rng
// happens here in a fixed order; children are then mutated in parallel, each
// with its own source.
func (m *Monitor) nextGeneration(ranked []Scored, eliteCount, generation int) ([]*genotype.Graph, []model.LineageRecord, error) {
	next := make([]*genotype.Graph, m.cfg.PopulationSize)
	lineage := make([]model.LineageRecord, m.cfg.PopulationSize)
	for i := 0; i < eliteCount; i++ {
		next[i] = ranked[i].Graph.Clone()
		lineage[i] = model.LineageRecord{Generation: generation + 1, Index: i, ParentRank: i, Operation: "elite"}
	}

	offspring := m.cfg.PopulationSize - eliteCount
	counts, err := m.cfg.MutationCount.Assign(m.rng, offspring)
	if err != nil {
		return nil, nil, err
	}
	if len(counts) != offspring {
		return nil, nil, fmt.Errorf("mutation count policy %s assigned %d counts for %d offspring", m.cfg.MutationCount.Name(), len(counts), offspring)
	}
	plans := make([]childPlan, offspring)
	for i := range plans {
		parent, err := m.cfg.Selector.PickParent(m.rng, ranked)
		if err != nil {
			return nil, nil, err
		}
		plans[i] = childPlan{parentRank: parent, mutations: counts[i], seed: m.rng.Int63()}
	}

	var g errgroup.Group
	g.SetLimit(m.cfg.Workers)
	for i, plan := range plans {
		slot := eliteCount + i
		g.Go(func() error {
			child, ops, err := m.mutateFromParent(ranked[plan.parentRank].Graph, plan)
			if err != nil {
				return fmt.Errorf("offspring %d: %w", slot, err)
			}
			next[slot] = child
			lineage[slot] = model.LineageRecord{
				Generation: generation + 1,
				Index:      slot,
				ParentRank: plan.parentRank,
				Operation:  strings.Join(ops, "+"),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return next, lineage, nil
}

// mutateFromParent applies plan.mutations chained mutations to a clone of
// parent. Each step works on a fresh clone of the previous result. A step
// whose operator finds no candidate re-rolls among the operators not yet
// tried, at most MaxMutationRetries times, and is recorded as a noop if
// nothing applies.
func (m *Monitor) mutateFromParent(parent *genotype.Graph, plan childPlan) (*genotype.Graph, []string, error) {
	b := &genotype.Builder{
		Rand:         rand.New(rand.NewSource(plan.seed)),
		InitStdDev:   m.cfg.InitStdDev,
		BiasStdDev:   m.cfg.BiasStdDev,
		WeightStdDev: m.cfg.WeightStdDev,
	}
	current := parent.Clone()
	ops := make([]string, 0, plan.mutations)
	for step := 0; step < plan.mutations; step++ {
		tried := make(map[string]struct{})
		applied := false
		for attempt := 0; attempt <= m.cfg.MaxMutationRetries; attempt++ {
			op, ok := chooseMutation(b.Rand, m.cfg.MutationTable, tried)
			if !ok {
				break
			}
			candidate := current.Clone()
			done, err := op.Apply(candidate, b)
			if err != nil {
				return nil, nil, fmt.Errorf("%s: %w", op.Name(), err)
			}
			m.cfg.Metrics.observeMutation(op.Name(), done)
			if done {
				current = candidate
				ops = append(ops, op.Name())
				applied = true
				break
			}
			tried[op.Name()] = struct{}{}
		}
		if !applied {
			ops = append(ops, opNoop)
		}
	}
	return current, ops, nil
}
