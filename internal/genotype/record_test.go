package genotype

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goffincedric/SimpleAI/internal/model"
)

func TestRecordRoundTrip(t *testing.T) {
	b := testBuilder(11)
	g, err := NewSkeleton(b, cartPoleInputs, []string{"Force applied to cart"}, true)
	if err != nil {
		t.Fatalf("new skeleton: %v", err)
	}
	for i := 0; i < 25; i++ {
		if _, err := g.SplitRandomEdge(b); err != nil {
			t.Fatalf("split: %v", err)
		}
		if _, err := g.PerturbRandomWeight(b); err != nil {
			t.Fatalf("perturb: %v", err)
		}
	}

	restored, err := FromRecord(g.Record(1, 1))
	if err != nil {
		t.Fatalf("from record: %v", err)
	}
	if diff := cmp.Diff(g.Nodes(), restored.Nodes()); diff != "" {
		t.Fatalf("nodes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(g.Edges(), restored.Edges()); diff != "" {
		t.Fatalf("edges mismatch (-want +got):\n%s", diff)
	}
}

func TestFromRecordRejectsCycle(t *testing.T) {
	rec := model.GraphRecord{
		Nodes: []model.NodeRecord{
			{ID: "a", Role: model.RoleHidden},
			{ID: "b", Role: model.RoleHidden},
		},
		Edges: []model.EdgeRecord{
			{From: "a", To: "b", Weight: 1},
			{From: "b", To: "a", Weight: 1},
		},
	}
	if _, err := FromRecord(rec); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation, got %v", err)
	}
}
