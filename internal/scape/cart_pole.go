package scape

import (
	"fmt"
	"math"
	"strings"
)

const (
	StatePosition = iota
	StateVelocity
	StateAngle
	StateAngularVelocity
	stateWidth
)

const (
	IntegratorEuler = "euler"
	IntegratorRK4   = "rk4"
)

// CartPoleParams holds the equations-of-motion constants. Angles are radians
// from vertical, zero is upright and positive is clockwise.
type CartPoleParams struct {
	Gravity         float64 `yaml:"gravity"`
	PoleMass        float64 `yaml:"pole_mass"`
	CartMass        float64 `yaml:"cart_mass"`
	HalfPoleLength  float64 `yaml:"half_pole_length"`
	CartFriction    float64 `yaml:"cart_friction"`
	PoleFriction    float64 `yaml:"pole_friction"`
	TimeStep        float64 `yaml:"time_step"`
	MaxForce        float64 `yaml:"max_force"`
	TrackHalfLength float64 `yaml:"track_half_length"`
	Integrator      string  `yaml:"integrator"`
}

// DefaultCartPoleParams uses reduced gravity and a 2 m pole so that swinging
// the pole up from any start angle is feasible within one episode.
func DefaultCartPoleParams() CartPoleParams {
	return CartPoleParams{
		Gravity:         3,
		PoleMass:        0.1,
		CartMass:        1.0,
		HalfPoleLength:  1,
		CartFriction:    0.001,
		PoleFriction:    0.1,
		TimeStep:        0.01,
		MaxForce:        10,
		TrackHalfLength: 7,
		Integrator:      IntegratorRK4,
	}
}

func (p CartPoleParams) Validate() error {
	if p.PoleMass <= 0 || p.CartMass <= 0 {
		return fmt.Errorf("cart and pole mass must be positive")
	}
	if p.HalfPoleLength <= 0 {
		return fmt.Errorf("half pole length must be positive")
	}
	if p.TimeStep <= 0 {
		return fmt.Errorf("time step must be positive")
	}
	if p.MaxForce <= 0 {
		return fmt.Errorf("max force must be positive")
	}
	if p.TrackHalfLength <= 0 {
		return fmt.Errorf("track half length must be positive")
	}
	switch strings.ToLower(p.Integrator) {
	case IntegratorEuler, IntegratorRK4:
	default:
		return fmt.Errorf("unsupported integrator: %s", p.Integrator)
	}
	return nil
}

func (p CartPoleParams) PoleLength() float64 {
	return 2 * p.HalfPoleLength
}

// CartPole is a single pole on a cart driven by a horizontal force.
type CartPole struct {
	params CartPoleParams
	rk4    bool
	state  [stateWidth]float64
}

func NewCartPole(params CartPoleParams, position, angle float64) (*CartPole, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &CartPole{
		params: params,
		rk4:    strings.EqualFold(params.Integrator, IntegratorRK4),
		state:  [stateWidth]float64{StatePosition: position, StateAngle: angle},
	}, nil
}

// Factory returns an EnvironmentFactory bound to params.
func (p CartPoleParams) Factory() EnvironmentFactory {
	return func(position, angle float64) (Environment, error) {
		return NewCartPole(p, position, angle)
	}
}

func (c *CartPole) State() []float64 {
	out := make([]float64, stateWidth)
	copy(out, c.state[:])
	return out
}

func (c *CartPole) SetState(state []float64) error {
	if len(state) != stateWidth {
		return fmt.Errorf("cart-pole state needs %d values, got %d", stateWidth, len(state))
	}
	copy(c.state[:], state)
	return nil
}

// Advance applies force, clamped to MaxForce, for one timestep. A NaN force
// counts as no force.
func (c *CartPole) Advance(force float64) {
	if math.IsNaN(force) {
		force = 0
	}
	force = math.Max(-c.params.MaxForce, math.Min(c.params.MaxForce, force))
	if c.rk4 {
		c.state = c.stepRK4(force)
		return
	}
	c.state = c.stepEuler(force)
}

func (c *CartPole) stepEuler(force float64) [stateWidth]float64 {
	dt := c.params.TimeStep
	s := c.state
	xa, thetaa := c.accelerations(s, force)
	return [stateWidth]float64{
		s[StatePosition] + dt*s[StateVelocity],
		s[StateVelocity] + dt*xa,
		s[StateAngle] + dt*s[StateAngularVelocity],
		s[StateAngularVelocity] + dt*thetaa,
	}
}

func (c *CartPole) stepRK4(force float64) [stateWidth]float64 {
	dt := c.params.TimeStep
	s := c.state
	k1 := c.derivative(s, force)
	k2 := c.derivative(offset(s, k1, dt/2), force)
	k3 := c.derivative(offset(s, k2, dt/2), force)
	k4 := c.derivative(offset(s, k3, dt), force)
	var out [stateWidth]float64
	for i := range out {
		out[i] = s[i] + dt/6*(k1[i]+2*k2[i]+2*k3[i]+k4[i])
	}
	return out
}

func (c *CartPole) derivative(s [stateWidth]float64, force float64) [stateWidth]float64 {
	xa, thetaa := c.accelerations(s, force)
	return [stateWidth]float64{s[StateVelocity], xa, s[StateAngularVelocity], thetaa}
}

func offset(s, d [stateWidth]float64, h float64) [stateWidth]float64 {
	var out [stateWidth]float64
	for i := range out {
		out[i] = s[i] + h*d[i]
	}
	return out
}

// accelerations solves the cart-pole equations of motion with cart and pole
// friction.
func (c *CartPole) accelerations(s [stateWidth]float64, force float64) (float64, float64) {
	p := c.params
	total := p.CartMass + p.PoleMass
	sin, cos := math.Sin(s[StateAngle]), math.Cos(s[StateAngle])
	omega := s[StateAngularVelocity]

	tmp := (force + p.PoleMass*p.HalfPoleLength*omega*omega*sin - p.CartFriction*sign(s[StateVelocity])) / total
	thetaa := (p.Gravity*sin - cos*tmp - p.PoleFriction*omega/(p.PoleMass*p.HalfPoleLength)) /
		(p.HalfPoleLength * (4.0/3.0 - p.PoleMass*cos*cos/total))
	xa := tmp - p.PoleMass*p.HalfPoleLength*thetaa*cos/total
	return xa, thetaa
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
