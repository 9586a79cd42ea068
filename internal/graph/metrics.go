package graph

// Summary is the observable outcome of a graph build.
type Summary struct {
	Entities        int                  `json:"entities"`
	Relations       int                  `json:"relations"`
	Dangling        int                  `json:"dangling"`
	EntitiesByKind  map[EntityKind]int   `json:"entities_by_kind"`
	RelationsByKind map[RelationKind]int `json:"relations_by_kind"`
}

func (g *Graph) Summary() Summary {
	s := Summary{
		EntitiesByKind:  make(map[EntityKind]int),
		RelationsByKind: make(map[RelationKind]int),
	}
	if g == nil {
		return s
	}
	s.Entities = len(g.entities)
	s.Relations = len(g.relations)
	for _, e := range g.entities {
		s.EntitiesByKind[e.Kind]++
	}
	for _, r := range g.relations {
		s.RelationsByKind[r.Kind]++
		if _, ok := g.entities[r.TargetID]; !ok {
			s.Dangling++
		}
	}
	return s
}
