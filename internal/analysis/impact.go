package analysis

import (
	"sort"

	"codegraph/internal/git"
	"codegraph/internal/graph"
)

// ImpactReport summarizes the entities affected by changes.
type ImpactReport struct {
	DirectlyAffected   []*graph.Entity
	IndirectlyAffected []*graph.Entity
}

// Analyzer performs impact analysis on the code graph.
type Analyzer struct {
	g *graph.Graph
}

// NewAnalyzer creates a new analyzer.
func NewAnalyzer(g *graph.Graph) *Analyzer {
	return &Analyzer{g: g}
}

// AnalyzeImpact identifies which entities are affected by the given changes.
// Entities are matched on file path and line span; their dependents are
// the indirect impact.
func (a *Analyzer) AnalyzeImpact(changes []git.ChangedFile) (*ImpactReport, error) {
	report := &ImpactReport{
		DirectlyAffected:   []*graph.Entity{},
		IndirectlyAffected: []*graph.Entity{},
	}
	if a.g == nil {
		return report, nil
	}

	seenDirect := make(map[string]bool)
	seenIndirect := make(map[string]bool)

	// 1. Find Direct Impacts
	byFile := entitiesByFile(a.g)
	for _, change := range changes {
		for _, e := range byFile[change.Path] {
			if isAffected(e, change) && !seenDirect[e.ID] {
				report.DirectlyAffected = append(report.DirectlyAffected, e)
				seenDirect[e.ID] = true
			}
		}
	}

	// 2. Find Indirect Impacts (callers, importers, subclasses)
	for _, e := range report.DirectlyAffected {
		for _, dep := range a.g.GetDependents(e.ID) {
			if !seenDirect[dep.ID] && !seenIndirect[dep.ID] {
				report.IndirectlyAffected = append(report.IndirectlyAffected, dep)
				seenIndirect[dep.ID] = true
			}
		}
	}

	sortEntities(report.DirectlyAffected)
	sortEntities(report.IndirectlyAffected)
	return report, nil
}

func entitiesByFile(g *graph.Graph) map[string][]*graph.Entity {
	out := make(map[string][]*graph.Entity)
	for _, e := range g.Entities() {
		out[e.FilePath] = append(out[e.FilePath], e)
	}
	return out
}

func isAffected(e *graph.Entity, change git.ChangedFile) bool {
	if change.Deleted || e.Kind == graph.KindFile {
		return true
	}
	return lineRangeOverlaps(e.StartLine, e.EndLine, change.ChangedLines)
}

func lineRangeOverlaps(start, end int, changed []int) bool {
	if end < start {
		end = start
	}
	for _, line := range changed {
		if line >= start && line <= end {
			return true
		}
	}
	return false
}

func sortEntities(es []*graph.Entity) {
	sort.Slice(es, func(i, j int) bool { return es[i].ID < es[j].ID })
}
