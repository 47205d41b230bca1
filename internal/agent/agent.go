package agent

import (
	"errors"
	"fmt"

	"github.com/goffincedric/SimpleAI/internal/genotype"
	"github.com/goffincedric/SimpleAI/internal/model"
	"github.com/goffincedric/SimpleAI/internal/nn"
)

// ErrLayering means a node would read a parent that was never evaluated.
// It points at a bug in the layering, not at a bad input.
var ErrLayering = errors.New("parent not evaluated before child")

type parentRef struct {
	slot   int
	weight float64
}

type step struct {
	id       string
	role     model.Role
	port     int
	bias     float64
	activate nn.ActivationFunc
	parents  []parentRef
}

// Agent pairs one graph snapshot with the fitness it earns during an episode.
// Evaluate may be called concurrently; fitness bookkeeping may not.
type Agent struct {
	graph       *genotype.Graph
	steps       []step
	inputWidth  int
	outputWidth int
	fitness     float64
}

// New snapshots g and resolves its evaluation order once.
func New(g *genotype.Graph, activations nn.ActivationSet) (*Agent, error) {
	snapshot := g.Clone()
	layering, err := snapshot.TopologicalLayers()
	if err != nil {
		return nil, err
	}
	detached := make(map[string]struct{}, len(layering.Detached))
	for _, id := range layering.Detached {
		detached[id] = struct{}{}
	}

	a := &Agent{graph: snapshot}
	slots := make(map[string]int)
	for _, layer := range layering.Layers {
		for _, id := range layer {
			node, ok := snapshot.Node(id)
			if !ok {
				return nil, fmt.Errorf("layered node %s not in graph", id)
			}
			s := step{
				id:       id,
				role:     node.Role,
				bias:     node.Bias,
				activate: activations.ForRole(node.Role),
			}
			if port, ok := node.PortIndex(); ok {
				s.port = port
				switch node.Role {
				case model.RoleInput:
					a.inputWidth = max(a.inputWidth, port+1)
				case model.RoleOutput:
					a.outputWidth = max(a.outputWidth, port+1)
				}
			}
			for _, edge := range snapshot.Parents(id) {
				if _, skip := detached[edge.From]; skip {
					continue
				}
				slot, ok := slots[edge.From]
				if !ok {
					return nil, fmt.Errorf("%w: %s -> %s", ErrLayering, edge.From, id)
				}
				s.parents = append(s.parents, parentRef{slot: slot, weight: edge.Weight})
			}
			slots[id] = len(a.steps)
			a.steps = append(a.steps, s)
		}
	}
	return a, nil
}

// Evaluate runs one forward pass. state is indexed by input port and the
// result by output port.
func (a *Agent) Evaluate(state []float64) ([]float64, error) {
	if len(state) < a.inputWidth {
		return nil, fmt.Errorf("state has %d values, graph reads %d", len(state), a.inputWidth)
	}
	values := make([]float64, len(a.steps))
	result := make([]float64, a.outputWidth)
	for i, s := range a.steps {
		x := s.bias
		if s.role == model.RoleInput {
			x += state[s.port]
		}
		for _, p := range s.parents {
			x += values[p.slot] * p.weight
		}
		values[i] = s.activate(x)
		if s.role == model.RoleOutput {
			result[s.port] = values[i]
		}
	}
	return result, nil
}

func (a *Agent) Graph() *genotype.Graph {
	return a.graph
}

func (a *Agent) AddFitness(v float64) {
	a.fitness += v
}

func (a *Agent) Fitness() float64 {
	return a.fitness
}

// OutputWidth is the length of every Evaluate result.
func (a *Agent) OutputWidth() int {
	return a.outputWidth
}
