package scape

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var ErrNoOutput = errors.New("controller produced no output")

// RunEpisode drives env with c for steps timesteps. Each step reads the
// state, applies the first output as force, then scores the new state.
func RunEpisode(ctx context.Context, c Controller, env Environment, steps int, fitness FitnessFunc) (Fitness, error) {
	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return Fitness(c.Fitness()), err
		}
		out, err := c.Evaluate(env.State())
		if err != nil {
			return Fitness(c.Fitness()), fmt.Errorf("step %d: %w", i, err)
		}
		if len(out) == 0 {
			return Fitness(c.Fitness()), fmt.Errorf("step %d: %w", i, ErrNoOutput)
		}
		env.Advance(out[0])
		c.AddFitness(fitness(env.State()))
	}
	return Fitness(c.Fitness()), nil
}

// CartPoleScape runs one cart-pole episode per evaluation from a fixed start.
// Environment builds the plant for each episode; nil uses Params.Factory().
type CartPoleScape struct {
	Params        CartPoleParams
	Environment   EnvironmentFactory
	Fitness       FitnessFunc
	Steps         int
	StartPosition float64
	StartAngle    float64
}

func (CartPoleScape) Name() string {
	return "cart-pole"
}

func (s CartPoleScape) Evaluate(ctx context.Context, c Controller) (Fitness, Trace, error) {
	if s.Fitness == nil {
		return 0, nil, errors.New("fitness function is required")
	}
	if s.Steps <= 0 {
		return 0, nil, fmt.Errorf("steps must be positive, got %d", s.Steps)
	}
	create := s.Environment
	if create == nil {
		create = s.Params.Factory()
	}
	env, err := create(s.StartPosition, s.StartAngle)
	if err != nil {
		return 0, nil, err
	}

	tracked := &trackingEnvironment{Environment: env}
	fitness, err := RunEpisode(ctx, c, tracked, s.Steps, s.Fitness)
	if err != nil {
		return fitness, nil, err
	}
	final := env.State()
	return fitness, Trace{
		"steps":              s.Steps,
		"start_angle":        s.StartAngle,
		"final_position":     final[StatePosition],
		"final_angle":        final[StateAngle],
		"max_abs_position":   tracked.maxPosition,
		"mean_pole_height":   tracked.heightSum / float64(s.Steps),
		"track_limit_breach": tracked.maxPosition > s.Params.TrackHalfLength,
	}, nil
}

type trackingEnvironment struct {
	Environment
	maxPosition float64
	heightSum   float64
}

func (t *trackingEnvironment) Advance(force float64) {
	t.Environment.Advance(force)
	state := t.Environment.State()
	t.maxPosition = math.Max(t.maxPosition, math.Abs(state[StatePosition]))
	t.heightSum += math.Cos(state[StateAngle])
}
