package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goffincedric/SimpleAI/internal/storage"
)

func TestRunRequiresCommand(t *testing.T) {
	if err := run(context.Background(), nil); err == nil || !strings.Contains(err.Error(), "usage") {
		t.Fatalf("expected usage error, got %v", err)
	}
	if err := run(context.Background(), []string{"fly"}); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestRunEvalInspectRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "population")
	err := run(context.Background(), []string{
		"run",
		"-store", "memory",
		"-population-dir", dir,
		"-pop", "4",
		"-gens", "2",
		"-steps", "30",
		"-start-angle", "10",
		"-log-level", "error",
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := storage.CountPopulationDir(dir); got != 4 {
		t.Fatalf("expected 4 persisted graphs, got %d", got)
	}

	graph := filepath.Join(dir, storage.GraphFileName(0))
	if err := run(context.Background(), []string{"eval", "-graph", graph, "-steps", "30", "-start-angle", "10"}); err != nil {
		t.Fatalf("eval: %v", err)
	}
	if err := run(context.Background(), []string{"inspect", "-graph", graph}); err != nil {
		t.Fatalf("inspect: %v", err)
	}
}

func TestRunRejectsInvalidFlags(t *testing.T) {
	err := run(context.Background(), []string{"run", "-store", "memory", "-pop", "0"})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestEvalAndInspectRequireGraph(t *testing.T) {
	if err := run(context.Background(), []string{"eval"}); err == nil {
		t.Fatal("expected eval to require -graph")
	}
	if err := run(context.Background(), []string{"inspect"}); err == nil {
		t.Fatal("expected inspect to require -graph")
	}
	missing := filepath.Join(t.TempDir(), "graph-0.bin")
	if err := run(context.Background(), []string{"inspect", "-graph", missing}); err == nil {
		t.Fatal("expected missing graph error")
	}
}

func TestHistoryOnMemoryStoreHasNoRuns(t *testing.T) {
	if err := run(context.Background(), []string{"history", "-store", "memory", "-latest"}); err == nil {
		t.Fatal("expected no runs in a fresh memory store")
	}
	if err := run(context.Background(), []string{"runs", "-store", "memory"}); err != nil {
		t.Fatalf("runs: %v", err)
	}
}
