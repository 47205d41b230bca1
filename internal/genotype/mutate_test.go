package genotype

import (
	"testing"

	"github.com/goffincedric/SimpleAI/internal/model"
)

var cartPoleInputs = []string{"CartPole position", "Cart velocity", "Pole angle", "Pole angular velocity"}

func TestNewSkeletonWired(t *testing.T) {
	g, err := NewSkeleton(testBuilder(1), cartPoleInputs, []string{"Force applied to cart"}, true)
	if err != nil {
		t.Fatalf("new skeleton: %v", err)
	}
	if g.NodeCount() != 5 || g.EdgeCount() != 4 {
		t.Fatalf("unexpected skeleton size: nodes=%d edges=%d", g.NodeCount(), g.EdgeCount())
	}
	bare, err := NewSkeleton(testBuilder(1), cartPoleInputs, []string{"Force applied to cart"}, false)
	if err != nil {
		t.Fatalf("new bare skeleton: %v", err)
	}
	if bare.EdgeCount() != 0 {
		t.Fatalf("expected no edges, got %d", bare.EdgeCount())
	}
}

func TestAddRandomEdgeOnSaturatedGraphFails(t *testing.T) {
	b := testBuilder(2)
	g, err := NewSkeleton(b, cartPoleInputs, []string{"Force applied to cart"}, true)
	if err != nil {
		t.Fatalf("new skeleton: %v", err)
	}
	ok, err := g.AddRandomEdge(b)
	if err != nil {
		t.Fatalf("add random edge: %v", err)
	}
	if ok {
		t.Fatal("expected no legal edge on a fully connected input/output graph")
	}
	if g.EdgeCount() != 4 {
		t.Fatalf("graph changed: %d edges", g.EdgeCount())
	}
}

func TestAddRandomEdgeOnBareSkeleton(t *testing.T) {
	b := testBuilder(3)
	g, err := NewSkeleton(b, cartPoleInputs, []string{"Force applied to cart"}, false)
	if err != nil {
		t.Fatalf("new skeleton: %v", err)
	}
	for i := 0; i < 4; i++ {
		ok, err := g.AddRandomEdge(b)
		if err != nil || !ok {
			t.Fatalf("add random edge %d: ok=%t err=%v", i, ok, err)
		}
	}
	if ok, _ := g.AddRandomEdge(b); ok {
		t.Fatal("expected saturation after four edges")
	}
}

func TestSplitRandomEdgeKeepsWeightOnFirstHalf(t *testing.T) {
	b := testBuilder(4)
	g := New()
	out := outputNode("out", 0)
	if err := g.AddNode(inputNode("in", 0), []Link{{Target: out, Weight: 1.75}}); err != nil {
		t.Fatalf("add node: %v", err)
	}

	ok, err := g.SplitRandomEdge(b)
	if err != nil || !ok {
		t.Fatalf("split: ok=%t err=%v", ok, err)
	}
	if g.HasEdge("in", "out") {
		t.Fatal("split edge still present")
	}
	children := g.Children("in")
	if len(children) != 1 {
		t.Fatalf("expected one child of in, got %v", children)
	}
	mid := children[0]
	node, _ := g.Node(mid)
	if node.Role != model.RoleHidden {
		t.Fatalf("expected hidden split node, got %s", node.Role)
	}
	if w, _ := g.Weight("in", mid); w != 1.75 {
		t.Fatalf("first half weight: got=%f want=1.75", w)
	}
	if !g.HasEdge(mid, "out") {
		t.Fatal("missing second half of split")
	}
}

func TestSplitRandomEdgeOnEmptyGraph(t *testing.T) {
	if ok, err := New().SplitRandomEdge(testBuilder(5)); ok || err != nil {
		t.Fatalf("expected quiet failure, got ok=%t err=%v", ok, err)
	}
}

func TestAddRandomNodeInsertsHiddenNode(t *testing.T) {
	b := testBuilder(6)
	g, err := NewSkeleton(b, cartPoleInputs, []string{"Force applied to cart"}, true)
	if err != nil {
		t.Fatalf("new skeleton: %v", err)
	}
	ok, err := g.AddRandomNode(b)
	if err != nil || !ok {
		t.Fatalf("add random node: ok=%t err=%v", ok, err)
	}
	if g.HiddenCount() != 1 || g.EdgeCount() != 6 {
		t.Fatalf("unexpected shape: hidden=%d edges=%d", g.HiddenCount(), g.EdgeCount())
	}
}

func TestRemoveRandomNodeWithoutHidden(t *testing.T) {
	b := testBuilder(7)
	g, err := NewSkeleton(b, cartPoleInputs, []string{"Force applied to cart"}, true)
	if err != nil {
		t.Fatalf("new skeleton: %v", err)
	}
	if ok, err := g.RemoveRandomNode(b); ok || err != nil {
		t.Fatalf("expected quiet failure, got ok=%t err=%v", ok, err)
	}
}

func TestPerturbRandomWeightChangesOneWeight(t *testing.T) {
	b := testBuilder(8)
	g, err := NewSkeleton(b, cartPoleInputs, []string{"Force applied to cart"}, true)
	if err != nil {
		t.Fatalf("new skeleton: %v", err)
	}
	before := g.Edges()
	if ok, err := g.PerturbRandomWeight(b); !ok || err != nil {
		t.Fatalf("perturb weight: ok=%t err=%v", ok, err)
	}
	after := g.Edges()
	changed := 0
	for i := range before {
		if before[i].Weight != after[i].Weight {
			changed++
		}
	}
	if changed != 1 {
		t.Fatalf("expected exactly one weight to change, got %d", changed)
	}
}

// Random operator sequences must never break acyclicity, the cascade rule
// or layering.
func TestRandomMutationSequencesKeepInvariants(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		b := testBuilder(seed)
		g, err := NewSkeleton(b, cartPoleInputs, []string{"Force applied to cart"}, seed%2 == 0)
		if err != nil {
			t.Fatalf("seed %d: new skeleton: %v", seed, err)
		}
		ops := []func(*Builder) (bool, error){
			g.AddRandomEdge, g.RemoveRandomEdge, g.SplitRandomEdge, g.AddRandomNode,
			g.RemoveRandomNode, g.PerturbRandomBias, g.PerturbRandomWeight,
		}
		for step := 0; step < 300; step++ {
			if _, err := ops[b.Rand.Intn(len(ops))](b); err != nil {
				t.Fatalf("seed %d step %d: %v", seed, step, err)
			}
			if err := g.Validate(); err != nil {
				t.Fatalf("seed %d step %d: validate: %v", seed, step, err)
			}
			for _, node := range g.Nodes() {
				for _, child := range g.Children(node.ID) {
					if g.PathExists(child, node.ID) {
						t.Fatalf("seed %d step %d: %s reachable from itself", seed, step, node.ID)
					}
				}
				if node.Role == model.RoleHidden && len(g.Parents(node.ID)) == 0 && len(g.Children(node.ID)) == 0 {
					t.Fatalf("seed %d step %d: isolated hidden node %s", seed, step, node.ID)
				}
			}
			assertLayeringValid(t, g)
		}
	}
}
