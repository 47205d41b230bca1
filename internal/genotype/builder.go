package genotype

import (
	"math/rand"

	"github.com/google/uuid"

	"github.com/goffincedric/SimpleAI/internal/model"
)

const (
	DefaultInitStdDev   = 1.0
	DefaultBiasStdDev   = 0.5
	DefaultWeightStdDev = 0.25
)

// Builder is the single source of randomness for graph construction and
// mutation. Node ids are drawn from Rand so a seeded Builder yields the same
// graphs every time.
type Builder struct {
	Rand *rand.Rand
	// InitStdDev spreads fresh biases and weights around zero.
	InitStdDev float64
	// BiasStdDev and WeightStdDev spread parameter perturbations.
	BiasStdDev   float64
	WeightStdDev float64
}

func NewBuilder(rng *rand.Rand) *Builder {
	return &Builder{
		Rand:         rng,
		InitStdDev:   DefaultInitStdDev,
		BiasStdDev:   DefaultBiasStdDev,
		WeightStdDev: DefaultWeightStdDev,
	}
}

func (b *Builder) NewID() string {
	return uuid.Must(uuid.NewRandomFromReader(b.Rand)).String()
}

func (b *Builder) Weight() float64 {
	return b.Rand.NormFloat64() * b.InitStdDev
}

func (b *Builder) Bias() float64 {
	return b.Rand.NormFloat64() * b.InitStdDev
}

func (b *Builder) BiasDelta() float64 {
	return b.Rand.NormFloat64() * b.BiasStdDev
}

func (b *Builder) WeightDelta() float64 {
	return b.Rand.NormFloat64() * b.WeightStdDev
}

func (b *Builder) HiddenNode(label string) model.Node {
	return model.Node{
		ID:    b.NewID(),
		Label: "Hidden node: " + label,
		Role:  model.RoleHidden,
		Bias:  b.Bias(),
	}
}

func (b *Builder) InputNode(label string, port int) model.Node {
	return model.Node{
		ID:    b.NewID(),
		Label: "Input node: " + label,
		Role:  model.RoleInput,
		Bias:  b.Bias(),
		Port:  &port,
	}
}

func (b *Builder) OutputNode(label string, port int) model.Node {
	return model.Node{
		ID:    b.NewID(),
		Label: "Output node: " + label,
		Role:  model.RoleOutput,
		Bias:  b.Bias(),
		Port:  &port,
	}
}

// NewSkeleton builds a graph with one input node per input label and one
// output node per output label, ports assigned in order. With wired set
// every input feeds every output.
func NewSkeleton(b *Builder, inputs, outputs []string, wired bool) (*Graph, error) {
	g := New()
	outNodes := make([]model.Node, 0, len(outputs))
	for port, label := range outputs {
		node := b.OutputNode(label, port)
		if err := g.AddNode(node, nil); err != nil {
			return nil, err
		}
		outNodes = append(outNodes, node)
	}
	for port, label := range inputs {
		var links []Link
		if wired {
			links = make([]Link, 0, len(outNodes))
			for _, out := range outNodes {
				links = append(links, Link{Target: out, Weight: b.Weight()})
			}
		}
		if err := g.AddNode(b.InputNode(label, port), links); err != nil {
			return nil, err
		}
	}
	return g, nil
}
