//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goffincedric/SimpleAI/internal/model"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "poleevo.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	run := model.RunSummary{VersionedRecord: CurrentVersion(), ID: "run-1", Seed: 3, Population: 10, Generations: 2, BestFitness: 9.5, Fitness: "pole_height"}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save run: %v", err)
	}
	gotRun, ok, err := store.GetRun(ctx, run.ID)
	if err != nil || !ok {
		t.Fatalf("get run: ok=%t err=%v", ok, err)
	}
	if diff := cmp.Diff(run, gotRun); diff != "" {
		t.Fatalf("run mismatch (-want +got):\n%s", diff)
	}

	snapshot := model.PopulationSnapshot{
		VersionedRecord: CurrentVersion(),
		ID:              "run-1:final",
		RunID:           "run-1",
		Generation:      2,
		Graphs:          []model.GraphRecord{sampleGraphRecord()},
		Fitness:         []float64{9.5},
	}
	if err := store.SavePopulationSnapshot(ctx, snapshot); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	gotSnapshot, ok, err := store.GetPopulationSnapshot(ctx, snapshot.ID)
	if err != nil || !ok {
		t.Fatalf("get snapshot: ok=%t err=%v", ok, err)
	}
	if diff := cmp.Diff(snapshot, gotSnapshot); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	if err := store.SaveFitnessHistory(ctx, "run-1", []float64{1, 9.5}); err != nil {
		t.Fatalf("save history: %v", err)
	}
	if err := store.SaveFitnessHistory(ctx, "run-1", []float64{2, 9.5}); err != nil {
		t.Fatalf("overwrite history: %v", err)
	}
	history, ok, err := store.GetFitnessHistory(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get history: ok=%t err=%v", ok, err)
	}
	if diff := cmp.Diff([]float64{2, 9.5}, history); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}
	if _, ok, err := store.GetLineage(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected missing lineage, got ok=%t err=%v", ok, err)
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "poleevo.db")

	first := NewSQLiteStore(dbPath)
	if err := first.Init(ctx); err != nil {
		t.Fatalf("init first: %v", err)
	}
	diagnostics := []model.GenerationDiagnostics{{Generation: 1, BestFitness: 3, BestEdgeCount: 4}}
	if err := first.SaveGenerationDiagnostics(ctx, "run-1", diagnostics); err != nil {
		t.Fatalf("save diagnostics: %v", err)
	}
	if err := first.SaveRun(ctx, model.RunSummary{VersionedRecord: CurrentVersion(), ID: "run-1"}); err != nil {
		t.Fatalf("save run: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close first: %v", err)
	}

	second := NewSQLiteStore(dbPath)
	if err := second.Init(ctx); err != nil {
		t.Fatalf("init second: %v", err)
	}
	t.Cleanup(func() {
		_ = second.Close()
	})
	got, ok, err := second.GetGenerationDiagnostics(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get diagnostics: ok=%t err=%v", ok, err)
	}
	if diff := cmp.Diff(diagnostics, got); diff != "" {
		t.Fatalf("diagnostics mismatch (-want +got):\n%s", diff)
	}
	runs, err := second.ListRuns(ctx)
	if err != nil || len(runs) != 1 {
		t.Fatalf("list runs: %v %+v", err, runs)
	}
}
