package genotype

import (
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/goffincedric/SimpleAI/internal/model"
)

// Validate rechecks every structural invariant from scratch. Acyclicity is
// decided by an independent topological sort rather than the incremental
// checks used while editing.
func (g *Graph) Validate() error {
	ids := sortedKeys(g.nodes)
	index := make(map[string]int64, len(ids))
	dag := simple.NewDirectedGraph()
	for i, id := range ids {
		if g.nodes[id].ID != id {
			return invariant("node keyed %s carries id %s", id, g.nodes[id].ID)
		}
		index[id] = int64(i)
		dag.AddNode(simple.Node(int64(i)))
	}

	ports := make(map[model.Role]map[int]string)
	for _, id := range ids {
		node := g.nodes[id]
		port, hasPort := node.PortIndex()
		if node.Role.HasPort() != hasPort {
			return invariant("%s node %s has inconsistent port", node.Role, id)
		}
		if !hasPort {
			continue
		}
		if ports[node.Role] == nil {
			ports[node.Role] = make(map[int]string)
		}
		if other, dup := ports[node.Role][port]; dup {
			return invariant("%s port %d shared by %s and %s", node.Role, port, other, id)
		}
		ports[node.Role][port] = id
	}

	mirrored := 0
	for _, from := range sortedKeys(g.outgoing) {
		src, ok := g.nodes[from]
		if !ok {
			return invariant("edge source %s not found", from)
		}
		for _, to := range sortedKeys(g.outgoing[from]) {
			dst, ok := g.nodes[to]
			if !ok {
				return invariant("edge target %s not found", to)
			}
			if _, ok := g.incoming[to][from]; !ok {
				return invariant("edge %s->%s missing inbound entry", from, to)
			}
			if from == to {
				return invariant("self loop on %s", from)
			}
			if src.Role == model.RoleOutput {
				return invariant("output node %s has outgoing edges", from)
			}
			if dst.Role == model.RoleInput {
				return invariant("input node %s has parents", to)
			}
			dag.SetEdge(dag.NewEdge(simple.Node(index[from]), simple.Node(index[to])))
			mirrored++
		}
	}
	inbound := 0
	for _, parents := range g.incoming {
		inbound += len(parents)
	}
	if inbound != mirrored {
		return invariant("adjacency out of sync: %d outgoing vs %d incoming", mirrored, inbound)
	}

	if _, err := topo.Sort(dag); err != nil {
		return invariant("graph has a cycle: %v", err)
	}
	return nil
}
