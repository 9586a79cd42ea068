package resolver

import (
	"log/slog"

	"codegraph/internal/graph"
	"codegraph/internal/index"
)

// Pending is pass 2. It turns pending references into relations using the
// complete module index. References whose module or symbol is unknown are
// dropped and only counted.
type Pending struct {
	idx    *index.ModuleIndex
	refs   []graph.PendingReference
	logger *slog.Logger
}

func NewPending(idx *index.ModuleIndex, refs []graph.PendingReference, logger *slog.Logger) *Pending {
	if idx == nil {
		idx = index.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pending{idx: idx, refs: refs, logger: logger}
}

func (p *Pending) Name() string {
	return "pending"
}

func (p *Pending) Resolve(g *graph.Graph) (ResolveStats, error) {
	var stats ResolveStats
	if g == nil {
		return stats, nil
	}
	run := &pass{
		g:        g,
		idx:      p.idx,
		imported: make(map[string]struct{}),
	}
	for _, group := range groupBySource(p.refs) {
		for _, ref := range group {
			ok := run.resolve(ref)
			if !ok {
				p.logger.Debug("dropped pending reference",
					slog.String("kind", string(ref.Kind)),
					slog.String("source", ref.SourceID),
					slog.String("module", ref.TargetModule),
					slog.String("symbol", ref.TargetSymbol))
			}
			stats.record(ref.Kind, ok)
		}
	}
	return stats, nil
}

// groupBySource keeps sources in order of first appearance and references
// in pass-1 order within each source.
func groupBySource(refs []graph.PendingReference) [][]graph.PendingReference {
	pos := make(map[string]int)
	var groups [][]graph.PendingReference
	for _, ref := range refs {
		i, ok := pos[ref.SourceID]
		if !ok {
			i = len(groups)
			pos[ref.SourceID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], ref)
	}
	return groups
}

type pass struct {
	g        *graph.Graph
	idx      *index.ModuleIndex
	imported map[string]struct{} // importing file id + "|" + module
	methods  map[string]map[string]string
}

func (r *pass) resolve(ref graph.PendingReference) bool {
	switch ref.Kind {
	case graph.RefImportsModule:
		return r.importModule(ref.SourceID, ref.TargetModule)
	case graph.RefImportsSymbol:
		target, ok := r.idx.Symbol(ref.TargetModule, ref.TargetSymbol)
		if !ok {
			return false
		}
		r.g.AddRelation(graph.Relation{
			SourceID: ref.SourceID,
			TargetID: target,
			Kind:     graph.RelationImportsDefinition,
			Properties: map[string]any{
				"symbol": ref.TargetSymbol,
				"alias":  ref.OriginalAlias,
			},
		})
		r.importModule(ref.SourceID, ref.TargetModule)
		return true
	case graph.RefExtends, graph.RefCalls:
		target, ok := r.idx.Symbol(ref.TargetModule, ref.TargetSymbol)
		if !ok {
			return false
		}
		r.g.AddRelation(graph.Relation{
			SourceID: ref.SourceID,
			TargetID: target,
			Kind:     graph.RelationKind(ref.Kind),
		})
		r.importModule(r.fileOf(ref.SourceID), ref.TargetModule)
		return true
	case graph.RefCallsMethod:
		classID, ok := r.idx.Symbol(ref.TargetModule, ref.TargetClass)
		if !ok {
			return false
		}
		method, ok := r.method(classID, ref.TargetSymbol)
		if !ok {
			return false
		}
		r.g.AddRelation(graph.Relation{
			SourceID: ref.SourceID,
			TargetID: method,
			Kind:     graph.RelationCalls,
			Properties: map[string]any{
				"object": ref.OriginalAlias,
				"class":  ref.TargetClass,
			},
		})
		return true
	}
	return false
}

// importModule emits at most one IMPORTS_FROM per importing file and module.
func (r *pass) importModule(source, module string) bool {
	fileID, ok := r.idx.FileFor(module)
	if !ok || source == "" {
		return false
	}
	key := source + "|" + module
	if _, done := r.imported[key]; done {
		return true
	}
	r.imported[key] = struct{}{}
	r.g.AddRelation(graph.Relation{
		SourceID:   source,
		TargetID:   fileID,
		Kind:       graph.RelationImportsFrom,
		Properties: map[string]any{"module": module},
	})
	return true
}

// fileOf maps an entity id to the id of the file that declares it, so
// EXTENDS and CALLS edges share the file's IMPORTS_FROM edge.
func (r *pass) fileOf(id string) string {
	e, ok := r.g.Entity(id)
	if !ok {
		return ""
	}
	if e.Kind == graph.KindFile {
		return e.ID
	}
	return "file:" + e.FilePath
}

// method looks a method up by name among the DEFINES targets of classID.
// The index is built on first use; pass 2 adds no DEFINES relations.
func (r *pass) method(classID, name string) (string, bool) {
	if r.methods == nil {
		r.methods = make(map[string]map[string]string)
		for _, rel := range r.g.RelationsOfKind(graph.RelationDefines) {
			e, ok := r.g.Entity(rel.TargetID)
			if !ok || e.Kind != graph.KindMethod {
				continue
			}
			byName, ok := r.methods[rel.SourceID]
			if !ok {
				byName = make(map[string]string)
				r.methods[rel.SourceID] = byName
			}
			// overloads: lowest id wins
			if cur, ok := byName[e.Name]; !ok || e.ID < cur {
				byName[e.Name] = e.ID
			}
		}
	}
	id, ok := r.methods[classID][name]
	return id, ok
}
