package evo

import (
	"fmt"
	"math/rand"

	"github.com/goffincedric/SimpleAI/internal/genotype"
)

// SeedPopulation builds size skeleton graphs with one input node per input
// label and one output node per output label.
func SeedPopulation(rng *rand.Rand, size int, inputs, outputs []string, wired bool) ([]*genotype.Graph, error) {
	if size <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("seed population needs at least one input and one output")
	}
	b := genotype.NewBuilder(rng)
	population := make([]*genotype.Graph, 0, size)
	for i := 0; i < size; i++ {
		g, err := genotype.NewSkeleton(b, inputs, outputs, wired)
		if err != nil {
			return nil, fmt.Errorf("seed %d: %w", i, err)
		}
		population = append(population, g)
	}
	return population, nil
}
