package resolver

import (
	"testing"

	"codegraph/internal/graph"
	"codegraph/internal/index"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture: models.py defines class Base (with method describe) and Mixin;
// app.py imports both.
func fixture() (*graph.Graph, *index.ModuleIndex) {
	g := graph.NewGraph()
	for _, e := range []*graph.Entity{
		{ID: "file:models.py", Kind: graph.KindFile, Name: "models.py", FilePath: "models.py"},
		{ID: "Class:models.py:Base:1", Kind: graph.KindClass, Name: "Base", FilePath: "models.py", StartLine: 1},
		{ID: "Method:models.py:describe:2", Kind: graph.KindMethod, Name: "describe", FilePath: "models.py", StartLine: 2},
		{ID: "Class:models.py:Mixin:5", Kind: graph.KindClass, Name: "Mixin", FilePath: "models.py", StartLine: 5},
		{ID: "file:app.py", Kind: graph.KindFile, Name: "app.py", FilePath: "app.py"},
		{ID: "Class:app.py:Dog:3", Kind: graph.KindClass, Name: "Dog", FilePath: "app.py", StartLine: 3},
		{ID: "Method:app.py:speak:4", Kind: graph.KindMethod, Name: "speak", FilePath: "app.py", StartLine: 4},
	} {
		g.AddEntity(e)
	}
	g.AddRelation(graph.Relation{SourceID: "Class:models.py:Base:1", TargetID: "Method:models.py:describe:2", Kind: graph.RelationDefines})
	g.AddRelation(graph.Relation{SourceID: "Class:app.py:Dog:3", TargetID: "Method:app.py:speak:4", Kind: graph.RelationDefines})

	idx := index.New()
	idx.Contribute(index.Contribution{
		Module: "models",
		FileID: "file:models.py",
		Symbols: map[string]string{
			"Base":  "Class:models.py:Base:1",
			"Mixin": "Class:models.py:Mixin:5",
		},
	})
	idx.Contribute(index.Contribution{
		Module:  "app",
		FileID:  "file:app.py",
		Symbols: map[string]string{"Dog": "Class:app.py:Dog:3"},
	})
	return g, idx
}

func TestPending_ImportDedup(t *testing.T) {
	g, idx := fixture()
	refs := []graph.PendingReference{
		{Kind: graph.RefImportsModule, SourceID: "file:app.py", TargetModule: "models", OriginalAlias: "models"},
		{Kind: graph.RefImportsSymbol, SourceID: "file:app.py", TargetModule: "models", TargetSymbol: "Base", OriginalAlias: "Base"},
		{Kind: graph.RefImportsModule, SourceID: "file:app.py", TargetModule: "models", OriginalAlias: "models"},
		{Kind: graph.RefImportsSymbol, SourceID: "file:app.py", TargetModule: "models", TargetSymbol: "Mixin", OriginalAlias: "M"},
	}

	stats, err := NewPending(idx, refs, nil).Resolve(g)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Attempted)
	assert.Equal(t, 4, stats.Resolved)

	from := g.RelationsOfKind(graph.RelationImportsFrom)
	require.Len(t, from, 1)
	assert.Equal(t, "file:app.py", from[0].SourceID)
	assert.Equal(t, "file:models.py", from[0].TargetID)

	defs := g.RelationsOfKind(graph.RelationImportsDefinition)
	require.Len(t, defs, 2)
	assert.Equal(t, "Class:models.py:Base:1", defs[0].TargetID)
	assert.Equal(t, "Class:models.py:Mixin:5", defs[1].TargetID)
	assert.Equal(t, "M", defs[1].Properties["alias"])
	assert.Equal(t, "Mixin", defs[1].Properties["symbol"])
}

func TestPending_DanglingImport(t *testing.T) {
	g, idx := fixture()
	before := g.RelationCount()
	refs := []graph.PendingReference{
		{Kind: graph.RefImportsSymbol, SourceID: "file:app.py", TargetModule: "missing", TargetSymbol: "X", OriginalAlias: "X"},
		{Kind: graph.RefImportsModule, SourceID: "file:app.py", TargetModule: "missing"},
		{Kind: graph.RefImportsSymbol, SourceID: "file:app.py", TargetModule: "models", TargetSymbol: "Nope"},
	}

	stats, err := NewPending(idx, refs, nil).Resolve(g)
	require.NoError(t, err)
	assert.Equal(t, before, g.RelationCount())
	assert.Equal(t, 3, stats.Skipped)
	assert.Equal(t, 2, stats.ByKind[graph.RefImportsSymbol].Dropped)
}

func TestPending_ExtendsAndCalls(t *testing.T) {
	g, idx := fixture()
	refs := []graph.PendingReference{
		{Kind: graph.RefImportsSymbol, SourceID: "file:app.py", TargetModule: "models", TargetSymbol: "Base", OriginalAlias: "Base"},
		{Kind: graph.RefExtends, SourceID: "Class:app.py:Dog:3", TargetModule: "models", TargetSymbol: "Base", OriginalAlias: "Base"},
		{Kind: graph.RefCallsMethod, SourceID: "Method:app.py:speak:4", TargetModule: "models", TargetClass: "Base", TargetSymbol: "describe", OriginalAlias: "Base"},
		{Kind: graph.RefCallsMethod, SourceID: "Method:app.py:speak:4", TargetModule: "models", TargetClass: "Base", TargetSymbol: "missing"},
	}

	stats, err := NewPending(idx, refs, nil).Resolve(g)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Resolved)
	assert.Equal(t, 1, stats.ByKind[graph.RefCallsMethod].Dropped)

	extends := g.RelationsOfKind(graph.RelationExtends)
	require.Len(t, extends, 1)
	assert.Equal(t, "Class:app.py:Dog:3", extends[0].SourceID)
	assert.Equal(t, "Class:models.py:Base:1", extends[0].TargetID)

	// EXTENDS shares the importing file's IMPORTS_FROM edge
	assert.Len(t, g.RelationsOfKind(graph.RelationImportsFrom), 1)

	calls := g.RelationsOfKind(graph.RelationCalls)
	require.Len(t, calls, 1)
	assert.Equal(t, "Method:models.py:describe:2", calls[0].TargetID)
	assert.Equal(t, "Base", calls[0].Properties["class"])
	assert.Equal(t, "Base", calls[0].Properties["object"])
}

func TestPending_OrderIndependent(t *testing.T) {
	refs := []graph.PendingReference{
		{Kind: graph.RefImportsSymbol, SourceID: "file:app.py", TargetModule: "models", TargetSymbol: "Base", OriginalAlias: "Base"},
		{Kind: graph.RefImportsSymbol, SourceID: "file:app.py", TargetModule: "models", TargetSymbol: "Base", OriginalAlias: "B"},
		{Kind: graph.RefExtends, SourceID: "Class:app.py:Dog:3", TargetModule: "models", TargetSymbol: "Base"},
	}
	reversed := []graph.PendingReference{refs[2], refs[1], refs[0]}

	g1, idx := fixture()
	_, err := NewPending(idx, refs, nil).Resolve(g1)
	require.NoError(t, err)
	g2, idx := fixture()
	_, err = NewPending(idx, reversed, nil).Resolve(g2)
	require.NoError(t, err)

	j1, err := g1.MarshalJSON()
	require.NoError(t, err)
	j2, err := g2.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, string(j1), string(j2))
}

func TestGroupBySource(t *testing.T) {
	refs := []graph.PendingReference{
		{SourceID: "b", TargetModule: "1"},
		{SourceID: "a", TargetModule: "2"},
		{SourceID: "b", TargetModule: "3"},
	}
	groups := groupBySource(refs)
	require.Len(t, groups, 2)
	assert.Equal(t, "b", groups[0][0].SourceID)
	assert.Equal(t, "3", groups[0][1].TargetModule)
	assert.Equal(t, "a", groups[1][0].SourceID)
}
