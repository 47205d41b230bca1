package storage

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goffincedric/SimpleAI/internal/genotype"
)

func randomGraph(t *testing.T, seed int64) *genotype.Graph {
	t.Helper()
	b := genotype.NewBuilder(rand.New(rand.NewSource(seed)))
	g, err := genotype.NewSkeleton(b, []string{"x", "v", "a", "w"}, []string{"force"}, true)
	if err != nil {
		t.Fatalf("skeleton: %v", err)
	}
	for i := 0; i < 15; i++ {
		if _, err := g.SplitRandomEdge(b); err != nil {
			t.Fatalf("split: %v", err)
		}
		if _, err := g.AddRandomEdge(b); err != nil {
			t.Fatalf("add edge: %v", err)
		}
		if _, err := g.PerturbRandomBias(b); err != nil {
			t.Fatalf("bias: %v", err)
		}
	}
	return g
}

func TestSaveLoadGraphRoundTrip(t *testing.T) {
	g := randomGraph(t, 1)
	path := filepath.Join(t.TempDir(), "graph-0.bin")
	if err := SaveGraph(path, g); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadGraph(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(g.Nodes(), loaded.Nodes()); diff != "" {
		t.Fatalf("nodes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(g.Edges(), loaded.Edges()); diff != "" {
		t.Fatalf("edges mismatch (-want +got):\n%s", diff)
	}
}

func TestGraphFileErrorsNamePath(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "graph-0.bin")
	if err := os.WriteFile(corrupt, []byte("not msgpack at all"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cases := map[string]func() error{
		"wrong extension on save": func() error { return SaveGraph(filepath.Join(dir, "graph.json"), randomGraph(t, 2)) },
		"wrong extension on load": func() error { _, err := LoadGraph(filepath.Join(dir, "graph.json")); return err },
		"missing file":            func() error { _, err := LoadGraph(filepath.Join(dir, "graph-9.bin")); return err },
		"corrupt file":            func() error { _, err := LoadGraph(corrupt); return err },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			err := fn()
			if !errors.Is(err, ErrSerialization) {
				t.Fatalf("expected ErrSerialization, got %v", err)
			}
			var serr *SerializationError
			if !errors.As(err, &serr) || !strings.HasPrefix(serr.Path, dir) {
				t.Fatalf("error should carry the path: %v", err)
			}
		})
	}
}

func TestPopulationDirRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "population")
	graphs := []*genotype.Graph{randomGraph(t, 1), randomGraph(t, 2), randomGraph(t, 3)}
	if err := SavePopulationDir(dir, graphs); err != nil {
		t.Fatalf("save population: %v", err)
	}
	if got := CountPopulationDir(dir); got != 3 {
		t.Fatalf("count: got %d want 3", got)
	}

	loaded, err := LoadPopulationDir(dir, 0)
	if err != nil {
		t.Fatalf("load population: %v", err)
	}
	if len(loaded) != len(graphs) {
		t.Fatalf("loaded %d graphs, want %d", len(loaded), len(graphs))
	}
	for i := range graphs {
		if diff := cmp.Diff(graphs[i].Edges(), loaded[i].Edges()); diff != "" {
			t.Fatalf("graph %d edges mismatch (-want +got):\n%s", i, diff)
		}
	}

	// A smaller population must not leave stale members behind.
	if err := SavePopulationDir(dir, graphs[:1]); err != nil {
		t.Fatalf("save smaller population: %v", err)
	}
	if got := CountPopulationDir(dir); got != 1 {
		t.Fatalf("count after shrink: got %d want 1", got)
	}
	if _, err := LoadPopulationDir(dir, 2); !errors.Is(err, ErrSerialization) {
		t.Fatalf("expected ErrSerialization for missing member, got %v", err)
	}
}

func TestLoadPopulationDirEmpty(t *testing.T) {
	if _, err := LoadPopulationDir(t.TempDir(), 0); !errors.Is(err, ErrSerialization) {
		t.Fatalf("expected ErrSerialization, got %v", err)
	}
}
