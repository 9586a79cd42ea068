package extractor

import (
	"context"
	"testing"

	"codegraph/internal/graph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rustCanvas = `use crate::shapes::{Circle, Square as Sq};
use std::collections::HashMap;

pub struct Canvas {
    items: Vec<i32>,
}

pub trait Draw {
    fn draw(&self);
}

impl Canvas {
    pub fn new() -> Self {
        let c = Circle::new();
        helper();
        c.render();
        Canvas { items: Vec::new() }
    }
}

impl Draw for Canvas {
    fn draw(&self) {}
}

fn helper() {}
`

func TestRustAdapter_Extract(t *testing.T) {
	path := writeSource(t, t.TempDir(), "canvas.rs", rustCanvas)
	res, err := NewRustAdapter().Extract(context.Background(), path, true)
	require.NoError(t, err)

	canvasID := EntityID("Class", path, "Canvas", 4)
	newID := EntityID("Method", path, "new", 13)

	t.Run("Items", func(t *testing.T) {
		canvas, ok := res.Graph.Entity(canvasID)
		require.True(t, ok)
		assert.Equal(t, "struct", canvas.Properties["declaration"])

		draw, ok := res.Graph.Entity(EntityID("Class", path, "Draw", 8))
		require.True(t, ok)
		assert.Equal(t, "trait", draw.Properties["declaration"])

		helper, ok := res.Graph.Entity(EntityID("Function", path, "helper", 25))
		require.True(t, ok)
		assert.True(t, hasRelation(res, FileID(path), helper.ID, graph.RelationContains))
	})

	t.Run("Impl methods", func(t *testing.T) {
		assert.True(t, hasRelation(res, canvasID, newID, graph.RelationDefines))

		draw, ok := res.Graph.Entity(EntityID("Method", path, "draw", 22))
		require.True(t, ok)
		assert.Equal(t, "Draw", draw.Properties["trait"])
		assert.True(t, hasRelation(res, canvasID, draw.ID, graph.RelationDefines))
	})

	t.Run("Calls", func(t *testing.T) {
		assert.True(t, hasRelation(res, newID, AssumedID(graph.KindFunction, path, "helper"), graph.RelationCalls))

		methodCalls := pendingOfKind(res, graph.RefCallsMethod)
		require.Len(t, methodCalls, 1)
		assert.Equal(t, "shapes", methodCalls[0].TargetModule)
		assert.Equal(t, "Circle", methodCalls[0].TargetClass)
		assert.Equal(t, "new", methodCalls[0].TargetSymbol)
	})

	t.Run("Uses", func(t *testing.T) {
		modules := pendingOfKind(res, graph.RefImportsModule)
		require.Len(t, modules, 2)
		assert.Equal(t, "shapes", modules[0].TargetModule)
		assert.Equal(t, "std", modules[1].TargetModule)

		symbols := pendingOfKind(res, graph.RefImportsSymbol)
		require.Len(t, symbols, 3)
		assert.Equal(t, "Circle", symbols[0].TargetSymbol)
		assert.Equal(t, "Square", symbols[1].TargetSymbol)
		assert.Equal(t, "Sq", symbols[1].OriginalAlias)
		assert.Equal(t, "collections", symbols[2].TargetModule)
		assert.Equal(t, "HashMap", symbols[2].TargetSymbol)
	})

	assert.Equal(t, "canvas", res.Index.Module)
	assert.Equal(t, canvasID, res.Index.Symbols["Canvas"])
}

func TestRustSegments(t *testing.T) {
	assert.Equal(t, []string{"shapes", "Circle"}, rustSegments("crate::shapes::Circle"))
	assert.Equal(t, []string{"models"}, rustSegments("super::models::*"))
}
