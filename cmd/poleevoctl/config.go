package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"

	"github.com/goffincedric/SimpleAI/internal/evo"
	"github.com/goffincedric/SimpleAI/internal/nn"
	"github.com/goffincedric/SimpleAI/internal/scape"
	"github.com/goffincedric/SimpleAI/internal/storage"
	"github.com/goffincedric/SimpleAI/pkg/poleevo"
)

type MutationCountConfig struct {
	Policy    string  `yaml:"policy"`
	Count     int     `yaml:"count"`
	Double    float64 `yaml:"double"`
	Quadruple float64 `yaml:"quadruple"`
}

// RunConfig is the YAML run file. Flags given on the command line win over
// the file.
type RunConfig struct {
	Store              string               `yaml:"store"`
	DBPath             string               `yaml:"db_path"`
	LogLevel           string               `yaml:"log_level"`
	MetricsAddr        string               `yaml:"metrics_addr"`
	PopulationDir      string               `yaml:"population_dir"`
	Population         int                  `yaml:"population"`
	Generations        int                  `yaml:"generations"`
	Seed               int64                `yaml:"seed"`
	Workers            int                  `yaml:"workers"`
	Steps              int                  `yaml:"steps"`
	ElitePercentage    float64              `yaml:"elite_percentage"`
	Selection          string               `yaml:"selection"`
	TournamentSize     int                  `yaml:"tournament_size"`
	MutationWeights    map[string]float64   `yaml:"mutation_weights"`
	MutationCount      MutationCountConfig  `yaml:"mutation_count"`
	MaxMutationRetries int                  `yaml:"max_mutation_retries"`
	InitStdDev         float64              `yaml:"init_std_dev"`
	BiasStdDev         float64              `yaml:"bias_std_dev"`
	WeightStdDev       float64              `yaml:"weight_std_dev"`
	FaultPolicy        string               `yaml:"fault_policy"`
	SentinelFitness    float64              `yaml:"sentinel_fitness"`
	Fitness            string               `yaml:"fitness"`
	StartAngleDegrees  *float64             `yaml:"start_angle_degrees"`
	StartPosition      float64              `yaml:"start_position"`
	WireSeed           bool                 `yaml:"wire_seed"`
	Physics            scape.CartPoleParams `yaml:"physics"`
	Rewards            scape.Rewards        `yaml:"rewards"`
	Activations        nn.RoleActivations   `yaml:"activations"`
}

func DefaultRunConfig() RunConfig {
	return RunConfig{
		Store:              storage.DefaultStoreKind(),
		DBPath:             "poleevo.db",
		LogLevel:           "info",
		PopulationDir:      "population",
		Population:         100,
		Generations:        0,
		Seed:               1,
		Steps:              1000,
		ElitePercentage:    evo.DefaultElitePercentage,
		Selection:          "fitness_proportional",
		TournamentSize:     3,
		MutationWeights:    evo.DefaultMutationWeights(),
		MutationCount:      MutationCountConfig{Policy: "partitioned", Double: 0.2, Quadruple: 0.25},
		MaxMutationRetries: evo.DefaultMaxMutationRetries,
		InitStdDev:         1.0,
		BiasStdDev:         0.5,
		WeightStdDev:       0.25,
		FaultPolicy:        evo.FaultPolicyFail,
		SentinelFitness:    evo.DefaultSentinelFitness,
		Fitness:            scape.FitnessPoleHeight,
		WireSeed:           true,
		Physics:            scape.DefaultCartPoleParams(),
		Rewards:            scape.DefaultRewards(),
		Activations:        nn.DefaultRoleActivations(),
	}
}

// LoadRunConfig overlays the YAML file at path on the defaults. Unknown keys
// are rejected. An empty path returns the defaults.
func LoadRunConfig(path string) (RunConfig, error) {
	cfg := DefaultRunConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return RunConfig{}, err
	}
	// A weights table in the file replaces the default table as a whole.
	cfg.MutationWeights = nil
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return RunConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(cfg.MutationWeights) == 0 {
		cfg.MutationWeights = evo.DefaultMutationWeights()
	}
	return cfg, nil
}

func (c RunConfig) Validate() error {
	if c.Population <= 0 {
		return errors.New("population must be > 0")
	}
	if c.Generations < 0 {
		return errors.New("generations must be >= 0")
	}
	if c.Steps <= 0 {
		return errors.New("steps must be > 0")
	}
	if c.ElitePercentage < 0 || c.ElitePercentage > 1 {
		return errors.New("elite_percentage must be in [0, 1]")
	}
	if c.Workers < 0 {
		return errors.New("workers must be >= 0")
	}
	if c.MaxMutationRetries < 0 {
		return errors.New("max_mutation_retries must be >= 0")
	}
	if c.InitStdDev <= 0 || c.BiasStdDev <= 0 || c.WeightStdDev <= 0 {
		return errors.New("std devs must be > 0")
	}
	if hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
		return fmt.Errorf("unsupported log level: %s", c.LogLevel)
	}
	if _, err := evo.SelectorByName(c.Selection); err != nil {
		return err
	}
	if _, err := evo.MutationTableFromWeights(c.MutationWeights); err != nil {
		return err
	}
	if _, err := scape.NewFitness(c.Fitness, c.Physics, c.Rewards); err != nil {
		return err
	}
	if err := c.Physics.Validate(); err != nil {
		return err
	}
	if _, err := c.Activations.Resolve(); err != nil {
		return err
	}
	switch c.FaultPolicy {
	case evo.FaultPolicyFail, evo.FaultPolicySentinel:
	default:
		return fmt.Errorf("unsupported fault policy: %s", c.FaultPolicy)
	}
	switch c.MutationCount.Policy {
	case "partitioned":
		if c.MutationCount.Double < 0 || c.MutationCount.Quadruple < 0 || c.MutationCount.Double+c.MutationCount.Quadruple > 1 {
			return errors.New("mutation_count double and quadruple must be >= 0 and sum to <= 1")
		}
	case "const":
		if c.MutationCount.Count <= 0 {
			return errors.New("mutation_count count must be > 0 for the const policy")
		}
	default:
		return fmt.Errorf("unsupported mutation count policy: %s", c.MutationCount.Policy)
	}
	return nil
}

func (c RunConfig) Request() poleevo.RunRequest {
	elite, sentinel := c.ElitePercentage, c.SentinelFitness
	split := evo.PartitionedMutationCount{Double: c.MutationCount.Double, Quadruple: c.MutationCount.Quadruple}
	return poleevo.RunRequest{
		PopulationDir:      c.PopulationDir,
		Population:         c.Population,
		Generations:        c.Generations,
		Seed:               c.Seed,
		Workers:            c.Workers,
		Steps:              c.Steps,
		ElitePercentage:    &elite,
		Selection:          c.Selection,
		TournamentSize:     c.TournamentSize,
		MutationWeights:    c.MutationWeights,
		MutationCount:      c.MutationCount.Policy,
		ConstMutations:     c.MutationCount.Count,
		MutationSplit:      &split,
		MaxMutationRetries: c.MaxMutationRetries,
		InitStdDev:         c.InitStdDev,
		BiasStdDev:         c.BiasStdDev,
		WeightStdDev:       c.WeightStdDev,
		FaultPolicy:        c.FaultPolicy,
		SentinelFitness:    &sentinel,
		Fitness:            c.Fitness,
		Physics:            c.Physics,
		Rewards:            c.Rewards,
		StartAngleDegrees:  c.StartAngleDegrees,
		StartPosition:      c.StartPosition,
		WireSeed:           c.WireSeed,
		Activations:        c.Activations,
	}
}

// runFlags are the run settings that can be given on the command line.
type runFlags struct {
	store         string
	dbPath        string
	logLevel      string
	metricsAddr   string
	populationDir string
	selection     string
	fitness       string
	faultPolicy   string
	startAngle    string
	population    int
	generations   int
	workers       int
	steps         int
	seed          int64
	elite         float64
	wireSeed      bool
}

func registerRunFlags(fs *flag.FlagSet, d RunConfig) *runFlags {
	f := &runFlags{}
	fs.StringVar(&f.store, "store", d.Store, "store backend: memory|sqlite")
	fs.StringVar(&f.dbPath, "db-path", d.DBPath, "sqlite database path")
	fs.StringVar(&f.logLevel, "log-level", d.LogLevel, "log level: trace|debug|info|warn|error")
	fs.StringVar(&f.metricsAddr, "metrics-addr", d.MetricsAddr, "serve Prometheus metrics on this address (empty disables)")
	fs.StringVar(&f.populationDir, "population-dir", d.PopulationDir, "directory holding graph-<i>.bin files")
	fs.StringVar(&f.selection, "selection", d.Selection, "parent selection: fitness_proportional|uniform|tournament")
	fs.StringVar(&f.fitness, "fitness", d.Fitness, "fitness function: "+fitnessChoices())
	fs.StringVar(&f.faultPolicy, "fault-policy", d.FaultPolicy, "evaluation fault policy: fail|sentinel")
	fs.IntVar(&f.population, "pop", d.Population, "population size")
	fs.IntVar(&f.generations, "gens", d.Generations, "generation count (0 runs until interrupted)")
	fs.IntVar(&f.workers, "workers", d.Workers, "worker count (0 uses GOMAXPROCS)")
	fs.IntVar(&f.steps, "steps", d.Steps, "timesteps per episode")
	fs.Int64Var(&f.seed, "seed", d.Seed, "rng seed")
	fs.Float64Var(&f.elite, "elite", d.ElitePercentage, "fraction of each generation kept as elites")
	fs.StringVar(&f.startAngle, "start-angle", "", "fixed starting pole angle in degrees (empty draws one per generation)")
	fs.BoolVar(&f.wireSeed, "wire-seed", d.WireSeed, "connect every input to every output in seeded graphs")
	return f
}

// apply copies the flags named in set onto cfg.
func (f *runFlags) apply(cfg *RunConfig, set map[string]bool) error {
	if set["store"] {
		cfg.Store = f.store
	}
	if set["db-path"] {
		cfg.DBPath = f.dbPath
	}
	if set["log-level"] {
		cfg.LogLevel = f.logLevel
	}
	if set["metrics-addr"] {
		cfg.MetricsAddr = f.metricsAddr
	}
	if set["population-dir"] {
		cfg.PopulationDir = f.populationDir
	}
	if set["selection"] {
		cfg.Selection = f.selection
	}
	if set["fitness"] {
		cfg.Fitness = f.fitness
	}
	if set["fault-policy"] {
		cfg.FaultPolicy = f.faultPolicy
	}
	if set["pop"] {
		cfg.Population = f.population
	}
	if set["gens"] {
		cfg.Generations = f.generations
	}
	if set["workers"] {
		cfg.Workers = f.workers
	}
	if set["steps"] {
		cfg.Steps = f.steps
	}
	if set["seed"] {
		cfg.Seed = f.seed
	}
	if set["elite"] {
		cfg.ElitePercentage = f.elite
	}
	if set["wire-seed"] {
		cfg.WireSeed = f.wireSeed
	}
	if set["start-angle"] {
		if f.startAngle == "" {
			cfg.StartAngleDegrees = nil
		} else {
			v, err := strconv.ParseFloat(f.startAngle, 64)
			if err != nil {
				return fmt.Errorf("invalid -start-angle: %w", err)
			}
			cfg.StartAngleDegrees = &v
		}
	}
	return nil
}

func setFlagNames(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

func fitnessChoices() string {
	return strings.Join(scape.FitnessNames(), "|")
}
