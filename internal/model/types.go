package model

import (
	"fmt"
	"strings"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version" msgpack:"schema_version"`
	CodecVersion  int `json:"codec_version" msgpack:"codec_version"`
}

// Role decides where a node sits in a graph and which activation it uses.
type Role int

const (
	RoleInput Role = iota
	RoleHidden
	RoleOutput
)

func (r Role) String() string {
	switch r {
	case RoleInput:
		return "input"
	case RoleHidden:
		return "hidden"
	case RoleOutput:
		return "output"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// HasPort reports whether nodes of this role read or write an external vector slot.
func (r Role) HasPort() bool {
	return r == RoleInput || r == RoleOutput
}

func (r Role) MarshalText() ([]byte, error) {
	switch r {
	case RoleInput, RoleHidden, RoleOutput:
		return []byte(r.String()), nil
	default:
		return nil, fmt.Errorf("unknown role %d", int(r))
	}
}

func (r *Role) UnmarshalText(text []byte) error {
	role, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "input":
		return RoleInput, nil
	case "hidden":
		return RoleHidden, nil
	case "output":
		return RoleOutput, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

// Node is one computation unit. Port is set only for input and output nodes.
type Node struct {
	ID    string
	Label string
	Role  Role
	Bias  float64
	Port  *int
}

// PortIndex returns the port and whether one is assigned.
func (n Node) PortIndex() (int, bool) {
	if n.Port == nil {
		return 0, false
	}
	return *n.Port, true
}

// Edge is a directed weighted connection between two nodes.
type Edge struct {
	From   string
	To     string
	Weight float64
}

// GraphRecord is the persisted shape of a graph. Activations are never stored;
// they follow from each node's role when the graph is rebuilt.
type GraphRecord struct {
	VersionedRecord
	Nodes []NodeRecord `json:"nodes" msgpack:"nodes"`
	Edges []EdgeRecord `json:"edges" msgpack:"edges"`
}

type NodeRecord struct {
	ID    string  `json:"id" msgpack:"id"`
	Label string  `json:"label" msgpack:"label"`
	Role  Role    `json:"role" msgpack:"role"`
	Bias  float64 `json:"bias" msgpack:"bias"`
	Port  *int    `json:"port,omitempty" msgpack:"port,omitempty"`
}

type EdgeRecord struct {
	From   string  `json:"from" msgpack:"from"`
	To     string  `json:"to" msgpack:"to"`
	Weight float64 `json:"weight" msgpack:"weight"`
}

// PopulationSnapshot stores one scored generation.
type PopulationSnapshot struct {
	VersionedRecord
	ID         string        `json:"id"`
	RunID      string        `json:"run_id"`
	Generation int           `json:"generation"`
	Graphs     []GraphRecord `json:"graphs"`
	Fitness    []float64     `json:"fitness"`
}

type GenerationDiagnostics struct {
	Generation        int     `json:"generation"`
	BestFitness       float64 `json:"best_fitness"`
	MeanFitness       float64 `json:"mean_fitness"`
	MinFitness        float64 `json:"min_fitness"`
	BestEdgeCount     int     `json:"best_edge_count"`
	BestHiddenCount   int     `json:"best_hidden_count"`
	MeanNodeCount     float64 `json:"mean_node_count"`
	FailedEvaluations int     `json:"failed_evaluations"`
	EliteCount        int     `json:"elite_count"`
	StartAngleDegrees float64 `json:"start_angle_degrees"`
}

// RunSummary is the stored header for one evolution run.
type RunSummary struct {
	VersionedRecord
	ID           string  `json:"id"`
	CreatedAtUTC string  `json:"created_at_utc"`
	Seed         int64   `json:"seed"`
	Population   int     `json:"population"`
	Generations  int     `json:"generations"`
	BestFitness  float64 `json:"best_fitness"`
	Fitness      string  `json:"fitness"`
	Interrupted  bool    `json:"interrupted,omitempty"`
}

// LineageRecord records how one member of a generation was produced.
type LineageRecord struct {
	Generation int    `json:"generation"`
	Index      int    `json:"index"`
	ParentRank int    `json:"parent_rank"`
	Operation  string `json:"operation"`
}
