package analysis

import (
	"testing"

	"codegraph/internal/git"
	"codegraph/internal/graph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func impactGraph() *graph.Graph {
	g := graph.NewGraph()
	for _, e := range []*graph.Entity{
		{ID: "file:base.py", Kind: graph.KindFile, Name: "base.py", FilePath: "base.py"},
		{ID: "Class:base.py:Animal:1", Kind: graph.KindClass, Name: "Animal", FilePath: "base.py", StartLine: 1, EndLine: 3},
		{ID: "Method:base.py:speak:2", Kind: graph.KindMethod, Name: "speak", FilePath: "base.py", StartLine: 2, EndLine: 3},
		{ID: "Function:base.py:util:5", Kind: graph.KindFunction, Name: "util", FilePath: "base.py", StartLine: 5, EndLine: 6},
		{ID: "file:sub.py", Kind: graph.KindFile, Name: "sub.py", FilePath: "sub.py"},
		{ID: "Class:sub.py:Dog:3", Kind: graph.KindClass, Name: "Dog", FilePath: "sub.py", StartLine: 3, EndLine: 5},
	} {
		g.AddEntity(e)
	}
	g.AddRelation(graph.Relation{SourceID: "file:base.py", TargetID: "Class:base.py:Animal:1", Kind: graph.RelationContains})
	g.AddRelation(graph.Relation{SourceID: "Class:base.py:Animal:1", TargetID: "Method:base.py:speak:2", Kind: graph.RelationDefines})
	g.AddRelation(graph.Relation{SourceID: "Class:sub.py:Dog:3", TargetID: "Class:base.py:Animal:1", Kind: graph.RelationExtends})
	g.AddRelation(graph.Relation{SourceID: "file:sub.py", TargetID: "file:base.py", Kind: graph.RelationImportsFrom})
	g.AddRelation(graph.Relation{SourceID: "Class:sub.py:Dog:3", TargetID: "Function:sub.py:bark:0", Kind: graph.RelationCalls})
	return g
}

func ids(es []*graph.Entity) []string {
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.ID)
	}
	return out
}

func TestAnalyzeImpact(t *testing.T) {
	report, err := NewAnalyzer(impactGraph()).AnalyzeImpact([]git.ChangedFile{
		{Path: "base.py", ChangedLines: []int{2}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Class:base.py:Animal:1",
		"Method:base.py:speak:2",
		"file:base.py",
	}, ids(report.DirectlyAffected))
	assert.Equal(t, []string{
		"Class:sub.py:Dog:3",
		"file:sub.py",
	}, ids(report.IndirectlyAffected))
}

func TestAnalyzeImpact_DeletedFile(t *testing.T) {
	report, err := NewAnalyzer(impactGraph()).AnalyzeImpact([]git.ChangedFile{
		{Path: "base.py", Deleted: true},
	})
	require.NoError(t, err)
	assert.Len(t, report.DirectlyAffected, 4)
}

func TestAnalyzeImpact_UnknownFile(t *testing.T) {
	report, err := NewAnalyzer(impactGraph()).AnalyzeImpact([]git.ChangedFile{
		{Path: "other.py", ChangedLines: []int{1}},
	})
	require.NoError(t, err)
	assert.Empty(t, report.DirectlyAffected)
	assert.Empty(t, report.IndirectlyAffected)

	report, err = NewAnalyzer(nil).AnalyzeImpact(nil)
	require.NoError(t, err)
	assert.Empty(t, report.DirectlyAffected)
}
