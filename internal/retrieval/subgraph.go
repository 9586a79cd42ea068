package retrieval

import (
	"sort"

	"codegraph/internal/git"
	"codegraph/internal/graph"
)

// Config controls how impact subgraphs are extracted.
type Config struct {
	MaxHops      int
	AllowedKinds map[graph.RelationKind]bool
}

func DefaultConfig() Config {
	return Config{
		MaxHops:      2,
		AllowedKinds: nil,
	}
}

// Subgraph is the neighbourhood of the entities touched by a change.
// NodeIDs may include dangling targets; they have no entity behind them.
type Subgraph struct {
	MaxHops      int
	SeedIDs      []string
	UpdatedFiles []string
	NodeIDs      []string
	Depth        map[string]int
	Relations    []graph.Relation
}

func ExtractFromChanges(g *graph.Graph, changes []git.ChangedFile, cfg Config) *Subgraph {
	if g == nil {
		return &Subgraph{Depth: map[string]int{}}
	}
	if cfg.MaxHops < 0 {
		cfg.MaxHops = 0
	}

	seedSet := findSeedIDs(g, changes)
	seedIDs := sortedKeys(seedSet)
	updatedFiles := changedFilePaths(changes)

	if len(seedIDs) == 0 {
		return &Subgraph{
			MaxHops:      cfg.MaxHops,
			SeedIDs:      seedIDs,
			UpdatedFiles: updatedFiles,
			Depth:        map[string]int{},
		}
	}

	// edges are walked in both directions
	adj := make(map[string][]edgeHop)
	for _, r := range g.Relations() {
		if !relationAllowed(r, cfg) {
			continue
		}
		adj[r.SourceID] = append(adj[r.SourceID], edgeHop{to: r.TargetID, rel: r})
		adj[r.TargetID] = append(adj[r.TargetID], edgeHop{to: r.SourceID, rel: r})
	}

	depth := make(map[string]int, len(seedIDs))
	queue := make([]queueItem, 0, len(seedIDs))
	for _, id := range seedIDs {
		depth[id] = 0
		queue = append(queue, queueItem{id: id, depth: 0})
	}

	relSeen := make(map[string]bool)
	rels := make([]graph.Relation, 0)

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.depth >= cfg.MaxHops {
			continue
		}

		for _, next := range adj[cur.id] {
			if key := next.rel.Key(); !relSeen[key] {
				relSeen[key] = true
				rels = append(rels, next.rel)
			}
			nextDepth := cur.depth + 1
			prev, seen := depth[next.to]
			if !seen || nextDepth < prev {
				depth[next.to] = nextDepth
				queue = append(queue, queueItem{id: next.to, depth: nextDepth})
			}
		}
	}

	sort.Slice(rels, func(i, j int) bool { return rels[i].Key() < rels[j].Key() })

	return &Subgraph{
		MaxHops:      cfg.MaxHops,
		SeedIDs:      seedIDs,
		UpdatedFiles: updatedFiles,
		NodeIDs:      sortedKeys(depth),
		Depth:        depth,
		Relations:    rels,
	}
}

type queueItem struct {
	id    string
	depth int
}

type edgeHop struct {
	to  string
	rel graph.Relation
}

// findSeedIDs picks the non-file entities whose span covers a changed line.
// Files are left out so one edited line does not pull in every sibling.
func findSeedIDs(g *graph.Graph, changes []git.ChangedFile) map[string]int {
	out := make(map[string]int)
	for _, ch := range changes {
		for _, e := range g.Entities() {
			if e.FilePath != ch.Path || e.Kind == graph.KindFile {
				continue
			}
			if !ch.Deleted && !lineRangeOverlaps(e.StartLine, e.EndLine, ch.ChangedLines) {
				continue
			}
			out[e.ID] = 0
		}
	}
	return out
}

func lineRangeOverlaps(start, end int, changed []int) bool {
	if len(changed) == 0 {
		return true
	}
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

func relationAllowed(r graph.Relation, cfg Config) bool {
	if len(cfg.AllowedKinds) == 0 {
		return true
	}
	return cfg.AllowedKinds[r.Kind]
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func changedFilePaths(changes []git.ChangedFile) []string {
	seen := make(map[string]bool, len(changes))
	paths := make([]string, 0, len(changes))
	for _, ch := range changes {
		if ch.Path == "" || seen[ch.Path] {
			continue
		}
		seen[ch.Path] = true
		paths = append(paths, ch.Path)
	}
	sort.Strings(paths)
	return paths
}
