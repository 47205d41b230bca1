package storage

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goffincedric/SimpleAI/internal/model"
)

func port(p int) *int { return &p }

func sampleGraphRecord() model.GraphRecord {
	return model.GraphRecord{
		VersionedRecord: CurrentVersion(),
		Nodes: []model.NodeRecord{
			{ID: "in", Label: "Input node: Pole angle", Role: model.RoleInput, Bias: 0.25, Port: port(2)},
			{ID: "h", Label: "Hidden node: Split edge", Role: model.RoleHidden, Bias: -1.5},
			{ID: "out", Label: "Output node: Force applied to cart", Role: model.RoleOutput, Bias: 0.125, Port: port(0)},
		},
		Edges: []model.EdgeRecord{
			{From: "in", To: "h", Weight: 0.75},
			{From: "h", To: "out", Weight: -2.5},
		},
	}
}

func TestGraphCodecRoundTrip(t *testing.T) {
	want := sampleGraphRecord()
	data, err := EncodeGraph(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeGraph(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("graph record mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeGraphVersionMismatch(t *testing.T) {
	rec := sampleGraphRecord()
	rec.CodecVersion = 99
	data, err := EncodeGraph(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeGraph(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestDecodeGraphCorrupt(t *testing.T) {
	if _, err := DecodeGraph([]byte{0xc1, 0x00, 0x13}); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestPopulationSnapshotCodecRoundTrip(t *testing.T) {
	want := model.PopulationSnapshot{
		VersionedRecord: CurrentVersion(),
		ID:              "run-1:gen-3",
		RunID:           "run-1",
		Generation:      3,
		Graphs:          []model.GraphRecord{sampleGraphRecord()},
		Fitness:         []float64{12.5},
	}
	data, err := EncodePopulationSnapshot(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodePopulationSnapshot(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	want.Graphs[0].SchemaVersion = 7
	data, _ = EncodePopulationSnapshot(want)
	if _, err := DecodePopulationSnapshot(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch for nested graph, got %v", err)
	}
}

func TestRunSummaryVersionMismatch(t *testing.T) {
	data, err := EncodeRunSummary(model.RunSummary{ID: "r1"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeRunSummary(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestGenerationDiagnosticsCodecRoundTrip(t *testing.T) {
	want := []model.GenerationDiagnostics{
		{Generation: 1, BestFitness: 3, MeanFitness: 1.5, MinFitness: 0, BestEdgeCount: 4, EliteCount: 2},
		{Generation: 2, BestFitness: 4, MeanFitness: 2, MinFitness: 1, BestHiddenCount: 1, FailedEvaluations: 1},
	}
	data, err := EncodeGenerationDiagnostics(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeGenerationDiagnostics(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("diagnostics mismatch (-want +got):\n%s", diff)
	}
}
