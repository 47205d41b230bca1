package genotype

import (
	"github.com/goffincedric/SimpleAI/internal/model"
)

// The random operators below return false when the graph offers no legal
// candidate. Errors are reserved for invariant violations.

// AddRandomEdge connects a random non-output source to a random legal target.
func (g *Graph) AddRandomEdge(b *Builder) (bool, error) {
	from, to, ok := g.randomPair(b, true)
	if !ok {
		return false, nil
	}
	if err := g.AddEdge(from, to, b.Weight()); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveRandomEdge removes a random edge with cascade pruning.
func (g *Graph) RemoveRandomEdge(b *Builder) (bool, error) {
	edges := g.Edges()
	if len(edges) == 0 {
		return false, nil
	}
	edge := edges[b.Rand.Intn(len(edges))]
	if err := g.RemoveEdge(edge.From, edge.To, true); err != nil {
		return false, err
	}
	return true, nil
}

// SplitRandomEdge replaces a random edge u->v with u->n->v through a new
// hidden node n. u->n keeps the old weight.
func (g *Graph) SplitRandomEdge(b *Builder) (bool, error) {
	edges := g.Edges()
	if len(edges) == 0 {
		return false, nil
	}
	edge := edges[b.Rand.Intn(len(edges))]
	if err := g.RemoveEdge(edge.From, edge.To, false); err != nil {
		return false, err
	}

	node := b.HiddenNode("Split edge")
	if err := g.AddNode(node, nil); err != nil {
		return false, err
	}
	if err := g.AddEdge(edge.From, node.ID, edge.Weight); err != nil {
		return false, err
	}
	if err := g.AddEdge(node.ID, edge.To, b.Weight()); err != nil {
		if rbErr := g.RemoveNode(node.ID, false); rbErr != nil {
			return false, rbErr
		}
		if rbErr := g.AddEdge(edge.From, edge.To, edge.Weight); rbErr != nil {
			return false, rbErr
		}
		return false, nil
	}
	return true, nil
}

// AddRandomNode inserts a hidden node between a random legal (source, target)
// pair. Pairs that are already directly connected qualify.
func (g *Graph) AddRandomNode(b *Builder) (bool, error) {
	from, to, ok := g.randomPair(b, false)
	if !ok {
		return false, nil
	}
	target, _ := g.Node(to)
	node := b.HiddenNode("Add node")
	if err := g.AddNode(node, []Link{{Target: target, Weight: b.Weight()}}); err != nil {
		return false, err
	}
	if err := g.AddEdge(from, node.ID, b.Weight()); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveRandomNode removes a random hidden node with cascade pruning.
func (g *Graph) RemoveRandomNode(b *Builder) (bool, error) {
	hidden := g.idsWithRole(model.RoleHidden)
	if len(hidden) == 0 {
		return false, nil
	}
	if err := g.RemoveNode(hidden[b.Rand.Intn(len(hidden))], true); err != nil {
		return false, err
	}
	return true, nil
}

// PerturbRandomBias shifts the bias of a random node.
func (g *Graph) PerturbRandomBias(b *Builder) (bool, error) {
	ids := sortedKeys(g.nodes)
	if len(ids) == 0 {
		return false, nil
	}
	id := ids[b.Rand.Intn(len(ids))]
	node := g.nodes[id]
	node.Bias += b.BiasDelta()
	g.nodes[id] = node
	return true, nil
}

// PerturbRandomWeight picks a random node with inbound edges, then one of
// its inbound edges, and shifts that weight.
func (g *Graph) PerturbRandomWeight(b *Builder) (bool, error) {
	targets := sortedKeys(g.incoming)
	if len(targets) == 0 {
		return false, nil
	}
	to := targets[b.Rand.Intn(len(targets))]
	parents := sortedKeys(g.incoming[to])
	if len(parents) == 0 {
		return false, nil
	}
	from := parents[b.Rand.Intn(len(parents))]
	g.incoming[to][from] += b.WeightDelta()
	return true, nil
}

// randomPair draws sources without replacement until one has a legal target.
// When fresh is set, targets already connected to the source are skipped.
func (g *Graph) randomPair(b *Builder, fresh bool) (string, string, bool) {
	var sources []string
	for _, id := range sortedKeys(g.nodes) {
		if g.nodes[id].Role != model.RoleOutput {
			sources = append(sources, id)
		}
	}
	for len(sources) > 0 {
		i := b.Rand.Intn(len(sources))
		source := sources[i]
		sources = append(sources[:i], sources[i+1:]...)

		var targets []string
		for _, id := range sortedKeys(g.nodes) {
			if id == source || g.nodes[id].Role == model.RoleInput {
				continue
			}
			if fresh && g.HasEdge(source, id) {
				continue
			}
			if g.CausesCycle(source, []string{id}) {
				continue
			}
			targets = append(targets, id)
		}
		if len(targets) > 0 {
			return source, targets[b.Rand.Intn(len(targets))], true
		}
	}
	return "", "", false
}
