package evo

import (
	"fmt"
	"math/rand"
	"sort"
)

// WeightedMutation is one row of the operator probability table.
type WeightedMutation struct {
	Operator Operator
	Weight   float64
}

// DefaultMutationWeights favours parameter tweaks over topology changes.
func DefaultMutationWeights() map[string]float64 {
	return map[string]float64{
		OpAddEdge:       0.02,
		OpRemoveEdge:    0.08,
		OpSplitEdge:     0.025,
		OpAddNode:       0.025,
		OpRemoveNode:    0.05,
		OpPerturbBias:   0.50,
		OpPerturbWeight: 0.30,
	}
}

// MutationTableFromWeights resolves operator names. Rows are ordered by name
// so the same weights always yield the same table.
func MutationTableFromWeights(weights map[string]float64) ([]WeightedMutation, error) {
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	table := make([]WeightedMutation, 0, len(names))
	positive := false
	for _, name := range names {
		weight := weights[name]
		if weight < 0 {
			return nil, fmt.Errorf("mutation weight for %s must be >= 0", name)
		}
		op, err := OperatorByName(name)
		if err != nil {
			return nil, err
		}
		if weight > 0 {
			positive = true
		}
		table = append(table, WeightedMutation{Operator: op, Weight: weight})
	}
	if !positive {
		return nil, fmt.Errorf("mutation table requires at least one positive weight")
	}
	return table, nil
}

// chooseMutation rolls one operator from table, skipping names in exclude.
func chooseMutation(rng *rand.Rand, table []WeightedMutation, exclude map[string]struct{}) (Operator, bool) {
	total := 0.0
	for _, item := range table {
		if _, skip := exclude[item.Operator.Name()]; skip || item.Weight <= 0 {
			continue
		}
		total += item.Weight
	}
	if total <= 0 {
		return nil, false
	}
	pick := rng.Float64() * total
	acc := 0.0
	var last Operator
	for _, item := range table {
		if _, skip := exclude[item.Operator.Name()]; skip || item.Weight <= 0 {
			continue
		}
		acc += item.Weight
		last = item.Operator
		if pick < acc {
			return item.Operator, true
		}
	}
	return last, true
}
