package graph

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

const SnapshotVersion = 1

//go:embed schema/snapshot.schema.json
var snapshotSchemaSource string

var (
	snapshotSchemaOnce sync.Once
	snapshotSchema     *jsonschema.Schema
	snapshotSchemaErr  error
)

var ErrInvalidSnapshot = errors.New("invalid graph snapshot")

// Snapshot is the portable JSON form of a graph.
type Snapshot struct {
	Version   int        `json:"version"`
	RunID     string     `json:"run_id,omitempty"`
	Entities  []*Entity  `json:"entities"`
	Relations []Relation `json:"relations"`
}

func NewSnapshot(g *Graph, runID string) Snapshot {
	return Snapshot{
		Version:   SnapshotVersion,
		RunID:     runID,
		Entities:  g.Entities(),
		Relations: g.Relations(),
	}
}

// Graph rebuilds a graph from the snapshot contents.
func (s Snapshot) Graph() *Graph {
	g := NewGraph()
	for _, e := range s.Entities {
		g.AddEntity(e)
	}
	for _, r := range s.Relations {
		g.AddRelation(r)
	}
	return g
}

// SaveSnapshot writes g to path as indented JSON.
func SaveSnapshot(path string, g *Graph, runID string) error {
	data, err := json.MarshalIndent(NewSnapshot(g, runID), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}
	if err := ValidateJSON(data); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write graph file: %w", err)
	}
	return nil
}

// LoadSnapshot reads and validates a snapshot written by SaveSnapshot.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open graph file: %w", err)
	}
	if err := ValidateJSON(data); err != nil {
		return nil, err
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode graph: %w", err)
	}
	return &s, nil
}

// ValidateJSON checks an encoded graph or snapshot against the embedded
// schema.
func ValidateJSON(data []byte) error {
	schema, err := compiledSnapshotSchema()
	if err != nil {
		return fmt.Errorf("failed to compile snapshot schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return nil
}

func compiledSnapshotSchema() (*jsonschema.Schema, error) {
	snapshotSchemaOnce.Do(func() {
		snapshotSchema, snapshotSchemaErr = jsonschema.CompileString("snapshot.schema.json", snapshotSchemaSource)
	})
	return snapshotSchema, snapshotSchemaErr
}
