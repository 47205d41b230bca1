package evo

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

var ErrNoEligibleParent = errors.New("no eligible parent")

// Selector picks the rank index of one parent. Failed individuals are never
// picked.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, ranked []Scored) (int, error)
}

// FitnessProportionalSelector samples with probability proportional to
// fitness. Non-positive scores are shifted so the worst eligible individual
// keeps a small chance.
type FitnessProportionalSelector struct{}

func (FitnessProportionalSelector) Name() string {
	return "fitness_proportional"
}

func (FitnessProportionalSelector) PickParent(rng *rand.Rand, ranked []Scored) (int, error) {
	eligible := eligibleIndexes(ranked)
	if len(eligible) == 0 {
		return 0, ErrNoEligibleParent
	}

	minFitness := ranked[eligible[0]].Fitness
	for _, i := range eligible {
		minFitness = min(minFitness, ranked[i].Fitness)
	}
	shift := 0.0
	if minFitness <= 0 {
		shift = -minFitness + 1e-9
	}

	weights := make([]float64, len(eligible))
	total := 0.0
	for k, i := range eligible {
		weights[k] = ranked[i].Fitness + shift
		total += weights[k]
	}
	if total <= 0 {
		return eligible[rng.Intn(len(eligible))], nil
	}
	pick := rng.Float64() * total
	acc := 0.0
	for k, w := range weights {
		acc += w
		if pick < acc {
			return eligible[k], nil
		}
	}
	return eligible[len(eligible)-1], nil
}

type UniformSelector struct{}

func (UniformSelector) Name() string {
	return "uniform"
}

func (UniformSelector) PickParent(rng *rand.Rand, ranked []Scored) (int, error) {
	eligible := eligibleIndexes(ranked)
	if len(eligible) == 0 {
		return 0, ErrNoEligibleParent
	}
	return eligible[rng.Intn(len(eligible))], nil
}

// TournamentSelector draws Size eligible individuals and keeps the best
// ranked one.
type TournamentSelector struct {
	Size int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) PickParent(rng *rand.Rand, ranked []Scored) (int, error) {
	eligible := eligibleIndexes(ranked)
	if len(eligible) == 0 {
		return 0, ErrNoEligibleParent
	}
	size := s.Size
	if size <= 0 {
		size = 3
	}
	best := eligible[rng.Intn(len(eligible))]
	for i := 1; i < size; i++ {
		// ranked is sorted, so a lower index is a better individual.
		best = min(best, eligible[rng.Intn(len(eligible))])
	}
	return best, nil
}

func SelectorByName(name string) (Selector, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "fitness_proportional":
		return FitnessProportionalSelector{}, nil
	case "uniform":
		return UniformSelector{}, nil
	case "tournament":
		return TournamentSelector{}, nil
	default:
		return nil, fmt.Errorf("unsupported selector: %s", name)
	}
}

func eligibleIndexes(ranked []Scored) []int {
	out := make([]int, 0, len(ranked))
	for i, item := range ranked {
		if !item.Failed {
			out = append(out, i)
		}
	}
	return out
}
