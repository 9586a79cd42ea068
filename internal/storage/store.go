package storage

import (
	"context"
	"errors"

	"codegraph/internal/graph"
)

var ErrNotFound = errors.New("entity not found")

// Store persists the final graph of an indexing run.
type Store interface {
	CodeGraphStore
	Close() error
}

// CodeGraphStore defines operations for persisting the code graph.
type CodeGraphStore interface {
	// SaveGraph replaces the stored graph with g. Rows are tagged with runID
	// and rows left over from earlier runs are removed.
	SaveGraph(ctx context.Context, g *graph.Graph, runID string) error

	// LoadGraph rebuilds the stored graph, dangling relations included.
	LoadGraph(ctx context.Context) (*graph.Graph, error)

	// GetEntity retrieves an entity by its ID.
	GetEntity(ctx context.Context, id string) (*graph.Entity, error)

	// FindEntitiesByFile retrieves all entities belonging to a specific file.
	FindEntitiesByFile(ctx context.Context, filePath string) ([]*graph.Entity, error)

	// Stats summarizes what is stored.
	Stats(ctx context.Context) (Stats, error)
}

// Stats describes the stored graph and the run that wrote it.
type Stats struct {
	Entities        int            `json:"entities"`
	Relations       int            `json:"relations"`
	EntitiesByKind  map[string]int `json:"entities_by_kind"`
	RelationsByKind map[string]int `json:"relations_by_kind"`
	LastRunID       string         `json:"last_run_id,omitempty"`
	LastRunAt       string         `json:"last_run_at,omitempty"`
}
