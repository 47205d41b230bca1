package evo

import (
	"fmt"
	"math"
	"math/rand"
)

// MutationCountPolicy decides how many chained mutations each offspring of a
// generation receives.
type MutationCountPolicy interface {
	Name() string
	Assign(rng *rand.Rand, offspring int) ([]int, error)
}

type ConstMutationCount struct {
	Count int
}

func (ConstMutationCount) Name() string {
	return "const"
}

func (p ConstMutationCount) Assign(_ *rand.Rand, offspring int) ([]int, error) {
	if p.Count <= 0 {
		return nil, fmt.Errorf("const mutation count must be > 0")
	}
	counts := make([]int, offspring)
	for i := range counts {
		counts[i] = p.Count
	}
	return counts, nil
}

// PartitionedMutationCount gives Double of the offspring two mutations,
// Quadruple of them four, and the rest three. Slots are shuffled so the
// partition does not follow parent order.
type PartitionedMutationCount struct {
	Double    float64
	Quadruple float64
}

func DefaultPartitionedMutationCount() PartitionedMutationCount {
	return PartitionedMutationCount{Double: 0.2, Quadruple: 0.25}
}

func (PartitionedMutationCount) Name() string {
	return "partitioned"
}

func (p PartitionedMutationCount) Assign(rng *rand.Rand, offspring int) ([]int, error) {
	if p.Double < 0 || p.Quadruple < 0 || p.Double+p.Quadruple > 1 {
		return nil, fmt.Errorf("mutation partition fractions must be >= 0 and sum to <= 1")
	}
	doubles := int(math.Round(float64(offspring) * p.Double))
	quads := int(math.Round(float64(offspring) * p.Quadruple))
	if doubles+quads > offspring {
		quads = offspring - doubles
	}

	counts := make([]int, offspring)
	for i := range counts {
		switch {
		case i < doubles:
			counts[i] = 2
		case i < doubles+quads:
			counts[i] = 4
		default:
			counts[i] = 3
		}
	}
	rng.Shuffle(len(counts), func(i, j int) { counts[i], counts[j] = counts[j], counts[i] })
	return counts, nil
}
