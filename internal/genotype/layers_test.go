package genotype

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goffincedric/SimpleAI/internal/model"
)

func assertLayeringValid(t *testing.T, g *Graph) {
	t.Helper()
	layering, err := g.TopologicalLayers()
	if err != nil {
		t.Fatalf("layers: %v", err)
	}
	layerOf := layering.LayerOf()
	last := len(layering.Layers) - 1
	for _, node := range g.Nodes() {
		idx, placed := layerOf[node.ID]
		switch node.Role {
		case model.RoleInput:
			if !placed || idx != 0 {
				t.Fatalf("input %s in layer %d (placed=%t)", node.ID, idx, placed)
			}
		case model.RoleOutput:
			if !placed || idx != last {
				t.Fatalf("output %s in layer %d, last is %d", node.ID, idx, last)
			}
		}
	}
	for _, e := range g.Edges() {
		from, okFrom := layerOf[e.From]
		to, okTo := layerOf[e.To]
		if !okFrom || !okTo {
			continue
		}
		if from >= to {
			t.Fatalf("edge %s->%s goes from layer %d to %d", e.From, e.To, from, to)
		}
	}
}

func TestTopologicalLayersChain(t *testing.T) {
	g := chainGraph(t)
	layering, err := g.TopologicalLayers()
	if err != nil {
		t.Fatalf("layers: %v", err)
	}
	want := [][]string{{"in"}, {"h1"}, {"h2"}, {"out"}}
	if diff := cmp.Diff(want, layering.Layers); diff != "" {
		t.Fatalf("layers mismatch (-want +got):\n%s", diff)
	}
	if len(layering.Detached) != 0 {
		t.Fatalf("unexpected detached nodes: %v", layering.Detached)
	}
}

func TestTopologicalLayersDetachesDeadEnds(t *testing.T) {
	g := chainGraph(t)
	// orphan has no parent, tail feeds nothing.
	if err := g.AddNode(hiddenNode("orphan"), []Link{{Target: hiddenNode("h2"), Weight: 1}}); err != nil {
		t.Fatalf("add orphan: %v", err)
	}
	if err := g.AddNode(hiddenNode("tail"), nil); err != nil {
		t.Fatalf("add tail: %v", err)
	}
	if err := g.AddEdge("h1", "tail", 1); err != nil {
		t.Fatalf("add tail edge: %v", err)
	}

	layering, err := g.TopologicalLayers()
	if err != nil {
		t.Fatalf("layers: %v", err)
	}
	if diff := cmp.Diff([]string{"orphan", "tail"}, layering.Detached); diff != "" {
		t.Fatalf("detached mismatch (-want +got):\n%s", diff)
	}
	// h2 must not wait on the detached orphan.
	if diff := cmp.Diff([][]string{{"in"}, {"h1"}, {"h2"}, {"out"}}, layering.Layers); diff != "" {
		t.Fatalf("layers mismatch (-want +got):\n%s", diff)
	}

	removed, err := g.TrimDeadEnds()
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if removed != 2 || g.NodeCount() != 4 {
		t.Fatalf("trim removed %d, %d nodes left", removed, g.NodeCount())
	}
}

func TestTopologicalLayersOrdersPorts(t *testing.T) {
	g := New()
	out0 := outputNode("z-out", 0)
	out1 := outputNode("a-out", 1)
	if err := g.AddNode(inputNode("b-in", 0), []Link{{Target: out0}, {Target: out1}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := g.AddNode(inputNode("a-in", 1), nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	layering, err := g.TopologicalLayers()
	if err != nil {
		t.Fatalf("layers: %v", err)
	}
	want := [][]string{{"b-in", "a-in"}, {"z-out", "a-out"}}
	if diff := cmp.Diff(want, layering.Layers); diff != "" {
		t.Fatalf("layers mismatch (-want +got):\n%s", diff)
	}
}
