package genotype

import (
	"fmt"
	"sort"

	"github.com/goffincedric/SimpleAI/internal/model"
)

// Record flattens the graph into its persisted shape. Nodes are ordered by
// role, then port, then id; edges by (from, to).
func (g *Graph) Record(schemaVersion, codecVersion int) model.GraphRecord {
	nodes := g.Nodes()
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Role != nodes[j].Role {
			return nodes[i].Role < nodes[j].Role
		}
		pi, _ := nodes[i].PortIndex()
		pj, _ := nodes[j].PortIndex()
		return pi < pj
	})

	rec := model.GraphRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: schemaVersion, CodecVersion: codecVersion},
		Nodes:           make([]model.NodeRecord, 0, len(nodes)),
	}
	for _, n := range nodes {
		nr := model.NodeRecord{ID: n.ID, Label: n.Label, Role: n.Role, Bias: n.Bias}
		if port, ok := n.PortIndex(); ok {
			nr.Port = &port
		}
		rec.Nodes = append(rec.Nodes, nr)
	}
	for _, e := range g.Edges() {
		rec.Edges = append(rec.Edges, model.EdgeRecord{From: e.From, To: e.To, Weight: e.Weight})
	}
	return rec
}

// FromRecord rebuilds a graph, nodes first and then edges, rechecking every
// invariant on the way.
func FromRecord(rec model.GraphRecord) (*Graph, error) {
	g := New()
	for _, nr := range rec.Nodes {
		node := model.Node{ID: nr.ID, Label: nr.Label, Role: nr.Role, Bias: nr.Bias}
		if nr.Port != nil {
			port := *nr.Port
			node.Port = &port
		}
		if err := g.AddNode(node, nil); err != nil {
			return nil, fmt.Errorf("restore node %s: %w", nr.ID, err)
		}
	}
	for _, er := range rec.Edges {
		if err := g.AddEdge(er.From, er.To, er.Weight); err != nil {
			return nil, fmt.Errorf("restore edge %s->%s: %w", er.From, er.To, err)
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
