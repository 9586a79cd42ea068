package retrieval

import (
	"testing"

	"codegraph/internal/git"
	"codegraph/internal/graph"

	"github.com/stretchr/testify/assert"
)

func addFunc(g *graph.Graph, id, path string, start, end int) {
	g.AddEntity(&graph.Entity{ID: id, Kind: graph.KindFunction, Name: id, FilePath: path, StartLine: start, EndLine: end})
}

func TestExtractFromChanges_BasicHopTraversal(t *testing.T) {
	g := graph.NewGraph()
	addFunc(g, "A", "a.py", 10, 40)
	addFunc(g, "B", "b.py", 1, 20)
	addFunc(g, "C", "c.py", 1, 20)
	g.AddRelation(graph.Relation{SourceID: "A", TargetID: "B", Kind: graph.RelationCalls})
	g.AddRelation(graph.Relation{SourceID: "B", TargetID: "C", Kind: graph.RelationCalls})

	changes := []git.ChangedFile{{Path: "a.py", ChangedLines: []int{20}}}
	sg := ExtractFromChanges(g, changes, Config{MaxHops: 1})

	assert.Equal(t, []string{"A"}, sg.SeedIDs)
	assert.Equal(t, []string{"A", "B"}, sg.NodeIDs)
	assert.Len(t, sg.Relations, 1)
	assert.Equal(t, "A", sg.Relations[0].SourceID)
	assert.Equal(t, "B", sg.Relations[0].TargetID)
	assert.Equal(t, 1, sg.Depth["B"])
	assert.Equal(t, []string{"a.py"}, sg.UpdatedFiles)
}

func TestExtractFromChanges_FiltersByRelationKind(t *testing.T) {
	g := graph.NewGraph()
	addFunc(g, "A", "a.py", 1, 10)
	addFunc(g, "B", "b.py", 1, 10)
	addFunc(g, "C", "c.py", 1, 10)
	g.AddRelation(graph.Relation{SourceID: "A", TargetID: "B", Kind: graph.RelationCalls})
	g.AddRelation(graph.Relation{SourceID: "A", TargetID: "C", Kind: graph.RelationExtends})

	changes := []git.ChangedFile{{Path: "a.py", ChangedLines: []int{2}}}
	sg := ExtractFromChanges(g, changes, Config{
		MaxHops: 2,
		AllowedKinds: map[graph.RelationKind]bool{
			graph.RelationExtends: true,
		},
	})

	assert.Equal(t, []string{"A", "C"}, sg.NodeIDs)
	assert.Len(t, sg.Relations, 1)
	assert.Equal(t, graph.RelationExtends, sg.Relations[0].Kind)
}

func TestExtractFromChanges_DanglingTargets(t *testing.T) {
	g := graph.NewGraph()
	addFunc(g, "A", "a.py", 1, 10)
	g.AddRelation(graph.Relation{SourceID: "A", TargetID: "Function:a.py:gone:0", Kind: graph.RelationCalls})

	sg := ExtractFromChanges(g, []git.ChangedFile{{Path: "a.py", ChangedLines: []int{5}}}, DefaultConfig())
	assert.Equal(t, []string{"A", "Function:a.py:gone:0"}, sg.NodeIDs)
}

func TestExtractFromChanges_NoSeeds(t *testing.T) {
	g := graph.NewGraph()
	addFunc(g, "A", "a.py", 1, 10)

	sg := ExtractFromChanges(g, []git.ChangedFile{{Path: "a.py", ChangedLines: []int{50}}}, DefaultConfig())
	assert.Empty(t, sg.SeedIDs)
	assert.Empty(t, sg.NodeIDs)

	sg = ExtractFromChanges(nil, nil, DefaultConfig())
	assert.Empty(t, sg.NodeIDs)
}
