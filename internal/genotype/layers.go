package genotype

import (
	"sort"

	"github.com/goffincedric/SimpleAI/internal/model"
)

// Layering is an evaluation order. Every node in a layer depends only on
// nodes in earlier layers. Input nodes form the first layer and output nodes
// the last. Detached hidden nodes, those with no path from an input or no
// path to an output, are left out.
type Layering struct {
	Layers   [][]string
	Detached []string
}

// LayerOf maps every placed node id to its layer index.
func (l Layering) LayerOf() map[string]int {
	out := make(map[string]int)
	for i, layer := range l.Layers {
		for _, id := range layer {
			out[id] = i
		}
	}
	return out
}

// TopologicalLayers computes the layering without touching the graph.
func (g *Graph) TopologicalLayers() (Layering, error) {
	inputs := g.idsByPort(model.RoleInput)
	outputs := g.idsByPort(model.RoleOutput)

	fromInputs := g.reach(inputs, func(id string) []string { return sortedKeys(g.outgoing[id]) })
	toOutputs := g.reach(outputs, func(id string) []string { return sortedKeys(g.incoming[id]) })

	var layering Layering
	placed := make(map[string]struct{}, len(g.nodes))
	active := make(map[string]struct{}, len(g.nodes))
	var remaining []string
	for _, id := range inputs {
		active[id] = struct{}{}
	}
	for _, id := range g.idsWithRole(model.RoleHidden) {
		_, forward := fromInputs[id]
		_, backward := toOutputs[id]
		if forward && backward {
			active[id] = struct{}{}
			remaining = append(remaining, id)
			continue
		}
		layering.Detached = append(layering.Detached, id)
	}

	if len(inputs) > 0 {
		layering.Layers = append(layering.Layers, inputs)
		for _, id := range inputs {
			placed[id] = struct{}{}
		}
	}

	for len(remaining) > 0 {
		var ready, blocked []string
		for _, id := range remaining {
			if g.parentsPlaced(id, active, placed) {
				ready = append(ready, id)
			} else {
				blocked = append(blocked, id)
			}
		}
		if len(ready) == 0 {
			return Layering{}, invariant("no evaluable node among %d remaining hidden nodes", len(blocked))
		}
		for _, id := range ready {
			placed[id] = struct{}{}
		}
		layering.Layers = append(layering.Layers, ready)
		remaining = blocked
	}

	if len(outputs) > 0 {
		layering.Layers = append(layering.Layers, outputs)
	}
	return layering, nil
}

// TrimDeadEnds removes detached hidden nodes and reports how many went.
func (g *Graph) TrimDeadEnds() (int, error) {
	layering, err := g.TopologicalLayers()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range layering.Detached {
		if _, ok := g.nodes[id]; !ok {
			continue
		}
		if err := g.RemoveNode(id, false); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (g *Graph) parentsPlaced(id string, active, placed map[string]struct{}) bool {
	for parent := range g.incoming[id] {
		if _, ok := active[parent]; !ok {
			continue
		}
		if _, ok := placed[parent]; !ok {
			return false
		}
	}
	return true
}

func (g *Graph) reach(start []string, next func(string) []string) map[string]struct{} {
	seen := make(map[string]struct{}, len(g.nodes))
	queue := append([]string(nil), start...)
	for _, id := range start {
		seen[id] = struct{}{}
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, n := range next(current) {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			queue = append(queue, n)
		}
	}
	return seen
}

func (g *Graph) idsByPort(role model.Role) []string {
	ids := g.idsWithRole(role)
	sort.SliceStable(ids, func(i, j int) bool {
		pi, _ := g.nodes[ids[i]].PortIndex()
		pj, _ := g.nodes[ids[j]].PortIndex()
		return pi < pj
	})
	return ids
}
