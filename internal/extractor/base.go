package extractor

import (
	"context"

	"codegraph/internal/graph"
	"codegraph/internal/index"
)

// Adapter turns one source file into graph facts. Implementations keep no
// state between calls, so one value may serve many goroutines.
type Adapter interface {
	Language() string
	Extensions() []string
	Extract(ctx context.Context, path string, buildIndex bool) (*FileResult, error)
}

// FileResult carries the four output streams of one extraction.
type FileResult struct {
	Path     string                   `json:"path"`
	Language string                   `json:"language"`
	Graph    *graph.Graph             `json:"graph"`
	Pending  []graph.PendingReference `json:"pending"`
	Index    index.Contribution       `json:"index"`
}

// NewFileResult returns an empty result for path.
func NewFileResult(path, language string) *FileResult {
	return &FileResult{
		Path:     path,
		Language: language,
		Graph:    graph.NewGraph(),
		Pending:  []graph.PendingReference{},
	}
}

// Empty reports whether the result carries no facts at all.
func (r *FileResult) Empty() bool {
	return r.Graph.EntityCount() == 0 && r.Graph.RelationCount() == 0 && len(r.Pending) == 0
}
