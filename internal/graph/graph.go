package graph

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Graph holds entities by id and relations by dedup key.
// A Graph is not safe for concurrent mutation; parallel producers each
// own one and are reduced with Merge.
type Graph struct {
	entities  map[string]*Entity
	relations map[string]Relation
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		entities:  make(map[string]*Entity),
		relations: make(map[string]Relation),
	}
}

// AddEntity inserts or overwrites an entity. When two different entities
// claim one id, the winner is picked by content so that arrival order
// never changes the outcome.
func (g *Graph) AddEntity(e *Entity) {
	if e == nil || e.ID == "" {
		return
	}
	if cur, ok := g.entities[e.ID]; ok && !prefer(e, cur) {
		return
	}
	g.entities[e.ID] = e
}

// AddRelation inserts r unless a relation with the same key exists.
// It reports whether the key was new.
func (g *Graph) AddRelation(r Relation) bool {
	key := r.Key()
	cur, ok := g.relations[key]
	if !ok {
		g.relations[key] = r
		return true
	}
	if prefer(r.Properties, cur.Properties) {
		g.relations[key] = r
	}
	return false
}

// HasRelation reports whether a relation with the given key exists.
func (g *Graph) HasRelation(key string) bool {
	_, ok := g.relations[key]
	return ok
}

// Merge folds other into g. Merge is associative and commutative.
func (g *Graph) Merge(other *Graph) {
	if other == nil {
		return
	}
	for _, e := range other.entities {
		g.AddEntity(e)
	}
	for _, r := range other.relations {
		g.AddRelation(r)
	}
}

// Entity returns the entity with the given id.
func (g *Graph) Entity(id string) (*Entity, bool) {
	e, ok := g.entities[id]
	return e, ok
}

// Entities returns all entities ordered by id.
func (g *Graph) Entities() []*Entity {
	out := make([]*Entity, 0, len(g.entities))
	for _, e := range g.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Relations returns all relations ordered by key.
func (g *Graph) Relations() []Relation {
	keys := make([]string, 0, len(g.relations))
	for k := range g.relations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Relation, 0, len(keys))
	for _, k := range keys {
		out = append(out, g.relations[k])
	}
	return out
}

// RelationsOfKind returns relations of one kind ordered by key.
func (g *Graph) RelationsOfKind(kind RelationKind) []Relation {
	var out []Relation
	for _, r := range g.Relations() {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// RelationsFrom returns the relations of one kind leaving id, ordered by key.
// An empty kind matches every kind.
func (g *Graph) RelationsFrom(id string, kind RelationKind) []Relation {
	var out []Relation
	for _, r := range g.Relations() {
		if r.SourceID == id && (kind == "" || r.Kind == kind) {
			out = append(out, r)
		}
	}
	return out
}

func (g *Graph) EntityCount() int   { return len(g.entities) }
func (g *Graph) RelationCount() int { return len(g.relations) }

// GetDependencies returns the entities the given entity points at.
// Dangling targets are skipped.
func (g *Graph) GetDependencies(id string) []*Entity {
	var deps []*Entity
	for _, r := range g.Relations() {
		if r.SourceID != id {
			continue
		}
		if e, ok := g.entities[r.TargetID]; ok {
			deps = append(deps, e)
		}
	}
	return deps
}

// GetDependents returns the entities pointing at the given entity.
func (g *Graph) GetDependents(id string) []*Entity {
	var deps []*Entity
	for _, r := range g.Relations() {
		if r.TargetID != id {
			continue
		}
		if e, ok := g.entities[r.SourceID]; ok {
			deps = append(deps, e)
		}
	}
	return deps
}

// DanglingRelations returns relations whose target is not a known entity,
// such as same-file calls assumed at line 0.
func (g *Graph) DanglingRelations() []Relation {
	var out []Relation
	for _, r := range g.Relations() {
		if _, ok := g.entities[r.TargetID]; !ok {
			out = append(out, r)
		}
	}
	return out
}

type graphJSON struct {
	Entities  []*Entity  `json:"entities"`
	Relations []Relation `json:"relations"`
}

// MarshalJSON encodes the graph in canonical order.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(graphJSON{
		Entities:  g.Entities(),
		Relations: g.Relations(),
	})
}

func (g *Graph) UnmarshalJSON(data []byte) error {
	var raw graphJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	g.entities = make(map[string]*Entity, len(raw.Entities))
	g.relations = make(map[string]Relation, len(raw.Relations))
	for _, e := range raw.Entities {
		g.AddEntity(e)
	}
	for _, r := range raw.Relations {
		g.AddRelation(r)
	}
	return nil
}

// prefer reports whether candidate should replace current. Equal content
// keeps current; otherwise the greater JSON encoding wins.
func prefer(candidate, current any) bool {
	a, errA := json.Marshal(candidate)
	b, errB := json.Marshal(current)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Compare(a, b) > 0
}
