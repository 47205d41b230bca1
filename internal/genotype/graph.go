package genotype

import (
	"errors"
	"fmt"
	"sort"

	"github.com/goffincedric/SimpleAI/internal/model"
)

// ErrInvariantViolation marks caller bugs: duplicate ids, missing endpoints,
// role rule breaks or edges that would close a cycle.
var ErrInvariantViolation = errors.New("graph invariant violation")

func invariant(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvariantViolation}, args...)...)
}

// Graph is a weighted DAG stored as an arena of nodes keyed by id with
// adjacency kept in both directions.
type Graph struct {
	nodes    map[string]model.Node
	outgoing map[string]map[string]struct{}
	incoming map[string]map[string]float64
}

func New() *Graph {
	return &Graph{
		nodes:    make(map[string]model.Node),
		outgoing: make(map[string]map[string]struct{}),
		incoming: make(map[string]map[string]float64),
	}
}

// Clone copies every container. Node ids are shared.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		nodes:    make(map[string]model.Node, len(g.nodes)),
		outgoing: make(map[string]map[string]struct{}, len(g.outgoing)),
		incoming: make(map[string]map[string]float64, len(g.incoming)),
	}
	for id, node := range g.nodes {
		if node.Port != nil {
			port := *node.Port
			node.Port = &port
		}
		out.nodes[id] = node
	}
	for id, targets := range g.outgoing {
		copied := make(map[string]struct{}, len(targets))
		for to := range targets {
			copied[to] = struct{}{}
		}
		out.outgoing[id] = copied
	}
	for id, parents := range g.incoming {
		copied := make(map[string]float64, len(parents))
		for from, w := range parents {
			copied[from] = w
		}
		out.incoming[id] = copied
	}
	return out
}

func (g *Graph) Node(id string) (model.Node, bool) {
	node, ok := g.nodes[id]
	return node, ok
}

func (g *Graph) HasEdge(from, to string) bool {
	_, ok := g.outgoing[from][to]
	return ok
}

func (g *Graph) Weight(from, to string) (float64, bool) {
	w, ok := g.incoming[to][from]
	return w, ok
}

// Nodes returns every node ordered by id.
func (g *Graph) Nodes() []model.Node {
	out := make([]model.Node, 0, len(g.nodes))
	for _, id := range sortedKeys(g.nodes) {
		out = append(out, g.nodes[id])
	}
	return out
}

// Edges returns every edge ordered by (from, to).
func (g *Graph) Edges() []model.Edge {
	out := make([]model.Edge, 0, g.EdgeCount())
	for _, from := range sortedKeys(g.outgoing) {
		for _, to := range sortedKeys(g.outgoing[from]) {
			out = append(out, model.Edge{From: from, To: to, Weight: g.incoming[to][from]})
		}
	}
	return out
}

// Parents returns the inbound edges of id ordered by source id.
func (g *Graph) Parents(id string) []model.Edge {
	parents := g.incoming[id]
	out := make([]model.Edge, 0, len(parents))
	for _, from := range sortedKeys(parents) {
		out = append(out, model.Edge{From: from, To: id, Weight: parents[from]})
	}
	return out
}

// Children returns the target ids of id's outgoing edges in order.
func (g *Graph) Children(id string) []string {
	return sortedKeys(g.outgoing[id])
}

func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

func (g *Graph) EdgeCount() int {
	count := 0
	for _, targets := range g.outgoing {
		count += len(targets)
	}
	return count
}

func (g *Graph) HiddenCount() int {
	return len(g.idsWithRole(model.RoleHidden))
}

// MaxPossibleEdges is the edge count of a maximally connected DAG with the
// same role census: inputs feed every hidden and output node, hidden nodes
// form a total order among themselves and feed every output.
func (g *Graph) MaxPossibleEdges() int {
	in := len(g.idsWithRole(model.RoleInput))
	hidden := len(g.idsWithRole(model.RoleHidden))
	out := len(g.idsWithRole(model.RoleOutput))
	return in*(hidden+out) + hidden*(hidden-1)/2 + hidden*out
}

func (g *Graph) idsWithRole(role model.Role) []string {
	var ids []string
	for _, id := range sortedKeys(g.nodes) {
		if g.nodes[id].Role == role {
			ids = append(ids, id)
		}
	}
	return ids
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
