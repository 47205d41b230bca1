package scape

import "context"

type Fitness float64

type Trace map[string]any

// Controller maps an environment state to a control vector and keeps the
// score it earns over one episode.
type Controller interface {
	Evaluate(state []float64) ([]float64, error)
	AddFitness(v float64)
	Fitness() float64
}

// Environment is a simulated plant advanced one fixed timestep at a time.
type Environment interface {
	State() []float64
	Advance(force float64)
	SetState(state []float64) error
}

// EnvironmentFactory creates a fresh environment for one episode.
type EnvironmentFactory func(position, angle float64) (Environment, error)

type Scape interface {
	Name() string
	Evaluate(ctx context.Context, controller Controller) (Fitness, Trace, error)
}
