package resolver

import (
	"codegraph/internal/graph"
)

type ResolveStats struct {
	Attempted int
	Resolved  int
	Skipped   int
	ByKind    map[graph.ReferenceKind]KindStats
}

// KindStats splits resolution outcomes for one reference kind.
type KindStats struct {
	Resolved int
	Dropped  int
}

func (s *ResolveStats) record(kind graph.ReferenceKind, ok bool) {
	if s.ByKind == nil {
		s.ByKind = make(map[graph.ReferenceKind]KindStats)
	}
	ks := s.ByKind[kind]
	s.Attempted++
	if ok {
		s.Resolved++
		ks.Resolved++
	} else {
		s.Skipped++
		ks.Dropped++
	}
	s.ByKind[kind] = ks
}

type GraphResolver interface {
	Name() string
	Resolve(g *graph.Graph) (ResolveStats, error)
}

type StageResult struct {
	Resolver       string
	Stats          ResolveStats
	DanglingBefore int
	DanglingAfter  int
	EdgeCount      int
	Err            error
}

type ResolverChain struct {
	resolvers []GraphResolver
}

func NewResolverChain(resolvers ...GraphResolver) *ResolverChain {
	return &ResolverChain{resolvers: resolvers}
}

// NewDefaultChain resolves pending references and then audits what is
// still dangling.
func NewDefaultChain(p *Pending) *ResolverChain {
	return NewResolverChain(p, NewDanglingAudit())
}

func (c *ResolverChain) Run(g *graph.Graph) []StageResult {
	if g == nil {
		return nil
	}

	var out []StageResult
	for _, r := range c.resolvers {
		before := len(g.DanglingRelations())
		stats, err := r.Resolve(g)
		after := len(g.DanglingRelations())
		out = append(out, StageResult{
			Resolver:       r.Name(),
			Stats:          stats,
			DanglingBefore: before,
			DanglingAfter:  after,
			EdgeCount:      g.RelationCount(),
			Err:            err,
		})
		if err != nil {
			break
		}
	}
	return out
}

// DanglingAudit changes nothing. It reports how many relations point at ids
// with no entity, split by relation kind.
type DanglingAudit struct {
	ByKind map[graph.RelationKind]int
}

func NewDanglingAudit() *DanglingAudit {
	return &DanglingAudit{}
}

func (a *DanglingAudit) Name() string {
	return "dangling-audit"
}

func (a *DanglingAudit) Resolve(g *graph.Graph) (ResolveStats, error) {
	a.ByKind = make(map[graph.RelationKind]int)
	if g == nil {
		return ResolveStats{}, nil
	}
	dangling := g.DanglingRelations()
	for _, r := range dangling {
		a.ByKind[r.Kind]++
	}
	return ResolveStats{
		Attempted: g.RelationCount(),
		Resolved:  g.RelationCount() - len(dangling),
		Skipped:   len(dangling),
	}, nil
}
