package scape

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestPoleHeightFitness(t *testing.T) {
	fn := PoleHeightFitness(0.8, 2)
	cases := []struct {
		angle, want float64
	}{
		{angle: 0, want: 2},
		{angle: math.Pi, want: 0},
		{angle: math.Pi / 2, want: 0},
		{angle: math.Acos(0.9), want: 1},
	}
	for _, tc := range cases {
		got := fn([]float64{0, 0, tc.angle, 0})
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("angle %f: got %f want %f", tc.angle, got, tc.want)
		}
	}
}

func TestBalancedFitness(t *testing.T) {
	params := DefaultCartPoleParams()
	r := DefaultRewards()
	fn := BalancedFitness(params, r)

	if got := fn([]float64{0, 0, 0, 0}); math.Abs(got-2.05) > 1e-9 {
		t.Fatalf("centred upright: got %f want 2.05", got)
	}
	if got := fn([]float64{params.TrackHalfLength + 1, 0, 0, 0}); got != r.TrackLimitPenalty {
		t.Fatalf("off track: got %f want %f", got, r.TrackLimitPenalty)
	}
	if got := fn([]float64{0, 0, math.Pi, 100}); math.Abs(got-(0.05-1.5)) > 1e-9 {
		t.Fatalf("hanging and spinning: got %f", got)
	}
}

func TestNewFitness(t *testing.T) {
	if _, err := NewFitness("balanced", DefaultCartPoleParams(), DefaultRewards()); err != nil {
		t.Fatalf("balanced: %v", err)
	}
	if _, err := NewFitness("", DefaultCartPoleParams(), DefaultRewards()); err != nil {
		t.Fatalf("default: %v", err)
	}
	if _, err := NewFitness("speed", DefaultCartPoleParams(), DefaultRewards()); err == nil {
		t.Fatal("expected unknown fitness error")
	}
}

type constController struct {
	force   float64
	out     []float64
	err     error
	fitness float64
	calls   int
}

func (c *constController) Evaluate(state []float64) ([]float64, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	if c.out != nil {
		return c.out, nil
	}
	return []float64{c.force}, nil
}

func (c *constController) AddFitness(v float64) { c.fitness += v }
func (c *constController) Fitness() float64     { return c.fitness }

func TestRunEpisodeSumsFitness(t *testing.T) {
	env, _ := NewCartPole(DefaultCartPoleParams(), 0, 0)
	c := &constController{}
	got, err := RunEpisode(context.Background(), c, env, 10, func([]float64) float64 { return 0.5 })
	if err != nil {
		t.Fatalf("run episode: %v", err)
	}
	if got != 5 || c.calls != 10 {
		t.Fatalf("unexpected result: fitness=%f calls=%d", got, c.calls)
	}
}

func TestRunEpisodeErrors(t *testing.T) {
	env, _ := NewCartPole(DefaultCartPoleParams(), 0, 0)
	if _, err := RunEpisode(context.Background(), &constController{out: []float64{}}, env, 3, PoleHeightFitness(0.8, 2)); !errors.Is(err, ErrNoOutput) {
		t.Fatalf("expected ErrNoOutput, got %v", err)
	}
	boom := errors.New("boom")
	if _, err := RunEpisode(context.Background(), &constController{err: boom}, env, 3, PoleHeightFitness(0.8, 2)); !errors.Is(err, boom) {
		t.Fatalf("expected controller error, got %v", err)
	}
}

func TestCartPoleScapeEvaluate(t *testing.T) {
	s := CartPoleScape{
		Params:  DefaultCartPoleParams(),
		Fitness: PoleHeightFitness(0.8, 2),
		Steps:   20,
	}
	fitness, trace, err := s.Evaluate(context.Background(), &constController{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if math.Abs(float64(fitness)-40) > 1e-9 {
		t.Fatalf("upright pole at rest should score 2 per step, got %f", fitness)
	}
	if trace["steps"] != 20 || trace["track_limit_breach"] != false {
		t.Fatalf("unexpected trace: %+v", trace)
	}
	if _, _, err := (CartPoleScape{Params: DefaultCartPoleParams(), Steps: 1}).Evaluate(context.Background(), &constController{}); err == nil {
		t.Fatal("expected missing fitness error")
	}
}

func TestCartPoleScapeUsesEnvironmentFactory(t *testing.T) {
	var gotPosition, gotAngle float64
	calls := 0
	s := CartPoleScape{
		Params: DefaultCartPoleParams(),
		Environment: func(position, angle float64) (Environment, error) {
			calls++
			gotPosition, gotAngle = position, angle
			return NewCartPole(DefaultCartPoleParams(), position, angle)
		},
		Fitness:       PoleHeightFitness(0.8, 2),
		Steps:         5,
		StartPosition: 0.5,
		StartAngle:    math.Pi,
	}
	if _, _, err := s.Evaluate(context.Background(), &constController{}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if calls != 1 || gotPosition != 0.5 || gotAngle != math.Pi {
		t.Fatalf("factory not used for start state: calls=%d position=%f angle=%f", calls, gotPosition, gotAngle)
	}

	boom := errors.New("no plant")
	s.Environment = func(float64, float64) (Environment, error) { return nil, boom }
	if _, _, err := s.Evaluate(context.Background(), &constController{}); !errors.Is(err, boom) {
		t.Fatalf("expected factory error, got %v", err)
	}
}
