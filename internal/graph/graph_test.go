package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleGraph() *Graph {
	g := NewGraph()
	g.AddEntity(&Entity{ID: "file:a.py", Kind: KindFile, Name: "a.py", FilePath: "a.py"})
	g.AddEntity(&Entity{ID: "Function:a.py:f:1", Kind: KindFunction, Name: "f", FilePath: "a.py", StartLine: 1, EndLine: 2})
	g.AddEntity(&Entity{ID: "Class:a.py:C:4", Kind: KindClass, Name: "C", FilePath: "a.py", StartLine: 4, EndLine: 6})
	g.AddEntity(&Entity{ID: "Method:a.py:m:5", Kind: KindMethod, Name: "m", FilePath: "a.py", StartLine: 5, EndLine: 6})
	g.AddRelation(Relation{SourceID: "file:a.py", TargetID: "Function:a.py:f:1", Kind: RelationContains})
	g.AddRelation(Relation{SourceID: "file:a.py", TargetID: "Class:a.py:C:4", Kind: RelationContains})
	g.AddRelation(Relation{SourceID: "Class:a.py:C:4", TargetID: "Method:a.py:m:5", Kind: RelationDefines})
	return g
}

func TestRelation_Key(t *testing.T) {
	t.Run("Plain relation", func(t *testing.T) {
		r := Relation{SourceID: "s", TargetID: "t", Kind: RelationCalls, Properties: map[string]any{"object": "o"}}
		assert.Equal(t, "s|CALLS|t", r.Key())
	})

	t.Run("Import definition includes symbol", func(t *testing.T) {
		a := Relation{SourceID: "s", TargetID: "t", Kind: RelationImportsDefinition, Properties: map[string]any{"symbol": "A"}}
		b := Relation{SourceID: "s", TargetID: "t", Kind: RelationImportsDefinition, Properties: map[string]any{"symbol": "B"}}
		assert.NotEqual(t, a.Key(), b.Key())
		assert.Equal(t, "s|IMPORTS_DEFINITION|t|A", a.Key())
	})
}

func TestGraph_AddRelationDedup(t *testing.T) {
	g := NewGraph()
	r := Relation{SourceID: "file:b.py", TargetID: "file:a.py", Kind: RelationImportsFrom}

	assert.True(t, g.AddRelation(r))
	assert.False(t, g.AddRelation(r))
	assert.Equal(t, 1, g.RelationCount())
	assert.True(t, g.HasRelation(r.Key()))
}

func TestGraph_MergeIsOrderIndependent(t *testing.T) {
	left := NewGraph()
	left.AddEntity(&Entity{ID: "x", Kind: KindClass, Name: "X", Properties: map[string]any{"language": "python"}})
	left.AddRelation(Relation{SourceID: "x", TargetID: "y", Kind: RelationCalls, Properties: map[string]any{"object": "a"}})

	right := NewGraph()
	right.AddEntity(&Entity{ID: "x", Kind: KindClass, Name: "X", Properties: map[string]any{"language": "java"}})
	right.AddRelation(Relation{SourceID: "x", TargetID: "y", Kind: RelationCalls, Properties: map[string]any{"object": "b"}})

	ab := NewGraph()
	ab.Merge(left)
	ab.Merge(right)

	ba := NewGraph()
	ba.Merge(right)
	ba.Merge(left)

	abJSON, err := json.Marshal(ab)
	require.NoError(t, err)
	baJSON, err := json.Marshal(ba)
	require.NoError(t, err)
	assert.JSONEq(t, string(abJSON), string(baJSON))
	assert.Equal(t, 1, ab.EntityCount())
	assert.Equal(t, 1, ab.RelationCount())
}

func TestGraph_Dependencies(t *testing.T) {
	g := sampleGraph()
	g.AddRelation(Relation{SourceID: "Method:a.py:m:5", TargetID: "Function:a.py:missing:0", Kind: RelationCalls})

	t.Run("Dependencies skip dangling targets", func(t *testing.T) {
		deps := g.GetDependencies("Method:a.py:m:5")
		assert.Empty(t, deps)
	})

	t.Run("Dependents", func(t *testing.T) {
		dependents := g.GetDependents("Method:a.py:m:5")
		require.Len(t, dependents, 1)
		assert.Equal(t, "C", dependents[0].Name)
	})

	t.Run("Dangling relations are reported", func(t *testing.T) {
		dangling := g.DanglingRelations()
		require.Len(t, dangling, 1)
		assert.Equal(t, "Function:a.py:missing:0", dangling[0].TargetID)
		dependents := g.GetDependents("Function:a.py:missing:0")
		require.Len(t, dependents, 1)
		assert.Equal(t, "m", dependents[0].Name)
	})

	t.Run("Summary", func(t *testing.T) {
		s := g.Summary()
		assert.Equal(t, 4, s.Entities)
		assert.Equal(t, 4, s.Relations)
		assert.Equal(t, 1, s.Dangling)
		assert.Equal(t, 2, s.RelationsByKind[RelationContains])
		assert.Equal(t, 1, s.EntitiesByKind[KindMethod])
	})
}

func TestGraph_JSONRoundTrip(t *testing.T) {
	g := sampleGraph()

	data, err := json.Marshal(g)
	require.NoError(t, err)
	require.NoError(t, ValidateJSON(data))

	restored := NewGraph()
	require.NoError(t, json.Unmarshal(data, restored))
	assert.Equal(t, g.Entities(), restored.Entities())
	assert.Equal(t, g.Relations(), restored.Relations())
}

func TestGraph_RelationsFrom(t *testing.T) {
	g := sampleGraph()
	g.AddRelation(Relation{SourceID: "Class:a.py:C:4", TargetID: "Class:b.py:Base:1", Kind: RelationExtends})

	defines := g.RelationsFrom("Class:a.py:C:4", RelationDefines)
	require.Len(t, defines, 1)
	assert.Equal(t, "Method:a.py:m:5", defines[0].TargetID)

	assert.Len(t, g.RelationsFrom("Class:a.py:C:4", ""), 2)
	assert.Empty(t, g.RelationsFrom("Function:a.py:f:1", RelationCalls))
}
