package evo

import (
	"errors"
	"fmt"
	"sort"

	"github.com/goffincedric/SimpleAI/internal/genotype"
)

var ErrOperatorNotFound = errors.New("operator not found")

// Operator mutates a graph in place. It reports false when the graph has no
// legal candidate for it; errors are invariant violations.
type Operator interface {
	Name() string
	Apply(g *genotype.Graph, b *genotype.Builder) (bool, error)
}

const (
	OpAddEdge       = "add_edge"
	OpRemoveEdge    = "remove_edge"
	OpSplitEdge     = "split_edge"
	OpAddNode       = "add_node"
	OpRemoveNode    = "remove_node"
	OpPerturbBias   = "perturb_bias"
	OpPerturbWeight = "perturb_weight"
)

type AddEdge struct{}

func (AddEdge) Name() string { return OpAddEdge }

func (AddEdge) Apply(g *genotype.Graph, b *genotype.Builder) (bool, error) {
	return g.AddRandomEdge(b)
}

type RemoveEdge struct{}

func (RemoveEdge) Name() string { return OpRemoveEdge }

func (RemoveEdge) Apply(g *genotype.Graph, b *genotype.Builder) (bool, error) {
	return g.RemoveRandomEdge(b)
}

type SplitEdge struct{}

func (SplitEdge) Name() string { return OpSplitEdge }

func (SplitEdge) Apply(g *genotype.Graph, b *genotype.Builder) (bool, error) {
	return g.SplitRandomEdge(b)
}

type AddNode struct{}

func (AddNode) Name() string { return OpAddNode }

func (AddNode) Apply(g *genotype.Graph, b *genotype.Builder) (bool, error) {
	return g.AddRandomNode(b)
}

type RemoveNode struct{}

func (RemoveNode) Name() string { return OpRemoveNode }

func (RemoveNode) Apply(g *genotype.Graph, b *genotype.Builder) (bool, error) {
	return g.RemoveRandomNode(b)
}

type PerturbBias struct{}

func (PerturbBias) Name() string { return OpPerturbBias }

func (PerturbBias) Apply(g *genotype.Graph, b *genotype.Builder) (bool, error) {
	return g.PerturbRandomBias(b)
}

type PerturbWeight struct{}

func (PerturbWeight) Name() string { return OpPerturbWeight }

func (PerturbWeight) Apply(g *genotype.Graph, b *genotype.Builder) (bool, error) {
	return g.PerturbRandomWeight(b)
}

var builtinOperators = map[string]Operator{
	OpAddEdge:       AddEdge{},
	OpRemoveEdge:    RemoveEdge{},
	OpSplitEdge:     SplitEdge{},
	OpAddNode:       AddNode{},
	OpRemoveNode:    RemoveNode{},
	OpPerturbBias:   PerturbBias{},
	OpPerturbWeight: PerturbWeight{},
}

func OperatorByName(name string) (Operator, error) {
	op, ok := builtinOperators[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOperatorNotFound, name)
	}
	return op, nil
}

func OperatorNames() []string {
	names := make([]string, 0, len(builtinOperators))
	for name := range builtinOperators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
