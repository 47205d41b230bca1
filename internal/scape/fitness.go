package scape

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// FitnessFunc scores one environment state. Episode fitness is the sum over
// every step.
type FitnessFunc func(state []float64) float64

const (
	FitnessPoleHeight = "pole_height"
	FitnessBalanced   = "balanced"
)

// Rewards bounds each term of the balanced fitness.
type Rewards struct {
	MaxPoleUp           float64 `yaml:"max_pole_up"`
	MaxCentre           float64 `yaml:"max_centre"`
	TrackLimitPenalty   float64 `yaml:"track_limit_penalty"`
	MaxAngularPenalty   float64 `yaml:"max_angular_penalty"`
	AngularVelocityCap  float64 `yaml:"angular_velocity_cap"`
	HeightThresholdFrac float64 `yaml:"height_threshold"`
}

func DefaultRewards() Rewards {
	return Rewards{
		MaxPoleUp:           2,
		MaxCentre:           0.05,
		TrackLimitPenalty:   -1,
		MaxAngularPenalty:   -1.5,
		AngularVelocityCap:  2 * math.Pi,
		HeightThresholdFrac: 0.8,
	}
}

// PoleHeightFitness rewards the pole top only while it stands above
// threshold of its full height, rising linearly to maxReward when upright.
func PoleHeightFitness(threshold, maxReward float64) FitnessFunc {
	return func(state []float64) float64 {
		height := math.Cos(state[StateAngle])
		if height < threshold || threshold >= 1 {
			return 0
		}
		return (height - threshold) / (1 - threshold) * maxReward
	}
}

// BalancedFitness rewards an upright pole and a centred cart, and punishes
// spinning. Leaving the track overrides every other term.
func BalancedFitness(params CartPoleParams, r Rewards) FitnessFunc {
	return func(state []float64) float64 {
		position := math.Abs(state[StatePosition])
		if position > params.TrackHalfLength {
			return r.TrackLimitPenalty
		}
		upright := math.Max(0, math.Cos(state[StateAngle])) * r.MaxPoleUp
		centre := (1 - position/params.TrackHalfLength) * r.MaxCentre
		spin := 0.0
		if r.AngularVelocityCap > 0 {
			spin = math.Min(math.Abs(state[StateAngularVelocity])/r.AngularVelocityCap, 1) * r.MaxAngularPenalty
		}
		return upright + centre + spin
	}
}

// NewFitness resolves a fitness function by name.
func NewFitness(name string, params CartPoleParams, r Rewards) (FitnessFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", FitnessPoleHeight:
		return PoleHeightFitness(r.HeightThresholdFrac, r.MaxPoleUp), nil
	case FitnessBalanced:
		return BalancedFitness(params, r), nil
	default:
		return nil, fmt.Errorf("unsupported fitness: %s (want one of %s)", name, strings.Join(FitnessNames(), ", "))
	}
}

func FitnessNames() []string {
	names := []string{FitnessPoleHeight, FitnessBalanced}
	sort.Strings(names)
	return names
}
