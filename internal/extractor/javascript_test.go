package extractor

import (
	"context"
	"testing"

	"codegraph/internal/graph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsDog = `import Base, { helper as h } from './models/base.js';
import * as utils from '../utils';

export class Dog extends Base {
  async speak(loud) {
    this.bark();
    h(loud);
    utils.format(loud);
  }
}

export const run = (x) => x;
let counter = 0;
function local() { return run(1); }
export default local;
`

func TestJavaScriptAdapter_Extract(t *testing.T) {
	path := writeSource(t, t.TempDir(), "dog.js", jsDog)
	res, err := NewJavaScriptAdapter().Extract(context.Background(), path, true)
	require.NoError(t, err)

	fileID := FileID(path)
	dogID := EntityID("Class", path, "Dog", 4)
	speakID := EntityID("Method", path, "speak", 5)

	t.Run("Class", func(t *testing.T) {
		dog, ok := res.Graph.Entity(dogID)
		require.True(t, ok)
		assert.Equal(t, true, dog.Properties["exported"])
		assert.Equal(t, "named", dog.Properties["export_type"])
		assert.Contains(t, dog.Snippet, "class Dog")

		speak, ok := res.Graph.Entity(speakID)
		require.True(t, ok)
		assert.Equal(t, true, speak.Properties["is_async"])
		assert.Equal(t, []string{"loud"}, speak.Properties["parameters"])
		assert.Equal(t, "Dog", speak.Properties["parent_class"])
		assert.True(t, hasRelation(res, dogID, speakID, graph.RelationDefines))
	})

	t.Run("Functions and variables", func(t *testing.T) {
		run, ok := res.Graph.Entity(EntityID("Function", path, "run", 12))
		require.True(t, ok)
		assert.Equal(t, "arrow", run.Properties["function_style"])
		assert.Equal(t, true, run.Properties["exported"])

		local, ok := res.Graph.Entity(EntityID("Function", path, "local", 14))
		require.True(t, ok)
		assert.Equal(t, "standard", local.Properties["function_style"])
		assert.Equal(t, "default", local.Properties["export_type"])
		assert.True(t, hasRelation(res, local.ID, AssumedID(graph.KindFunction, path, "run"), graph.RelationCalls))

		counter, ok := res.Graph.Entity(EntityID("Variable", path, "counter", 13))
		require.True(t, ok)
		assert.Equal(t, "let", counter.Properties["declaration_type"])
		assert.True(t, hasRelation(res, fileID, counter.ID, graph.RelationContains))
	})

	t.Run("Calls", func(t *testing.T) {
		bark := graph.Relation{
			SourceID: speakID,
			TargetID: AssumedID(graph.KindMethod, path, "bark"),
			Kind:     graph.RelationCalls,
		}
		assert.True(t, res.Graph.HasRelation(bark.Key()))

		calls := pendingOfKind(res, graph.RefCalls)
		require.Len(t, calls, 2)
		assert.Equal(t, "base", calls[0].TargetModule)
		assert.Equal(t, "helper", calls[0].TargetSymbol)
		assert.Equal(t, "utils", calls[1].TargetModule)
		assert.Equal(t, "format", calls[1].TargetSymbol)
	})

	t.Run("Imports", func(t *testing.T) {
		modules := pendingOfKind(res, graph.RefImportsModule)
		require.Len(t, modules, 2)
		assert.Equal(t, "base", modules[0].TargetModule)
		assert.Equal(t, "./models/base.js", modules[0].OriginalAlias)
		assert.Equal(t, "utils", modules[1].TargetModule)

		symbols := pendingOfKind(res, graph.RefImportsSymbol)
		require.Len(t, symbols, 2)
		assert.Equal(t, "Base", symbols[0].TargetSymbol)
		assert.Equal(t, "helper", symbols[1].TargetSymbol)
		assert.Equal(t, "h", symbols[1].OriginalAlias)

		extends := pendingOfKind(res, graph.RefExtends)
		require.Len(t, extends, 1)
		assert.Equal(t, dogID, extends[0].SourceID)
		assert.Equal(t, "Base", extends[0].TargetSymbol)
	})

	t.Run("Index", func(t *testing.T) {
		assert.Equal(t, "dog", res.Index.Module)
		for _, name := range []string{"Dog", "run", "local"} {
			assert.Contains(t, res.Index.Symbols, name)
		}
	})
}

func TestJavaScriptAdapter_TypeScript(t *testing.T) {
	src := `import { Base } from "./base";

export class Cat extends Base {
  meow(times: number): void {}
}
`
	path := writeSource(t, t.TempDir(), "cat.ts", src)
	res, err := NewJavaScriptAdapter().Extract(context.Background(), path, false)
	require.NoError(t, err)

	cat, ok := res.Graph.Entity(EntityID("Class", path, "Cat", 3))
	require.True(t, ok)
	assert.Equal(t, "typescript", cat.Properties["language"])

	meow, ok := res.Graph.Entity(EntityID("Method", path, "meow", 4))
	require.True(t, ok)
	assert.Equal(t, []string{"times"}, meow.Properties["parameters"])

	extends := pendingOfKind(res, graph.RefExtends)
	require.Len(t, extends, 1)
	assert.Equal(t, "base", extends[0].TargetModule)
	assert.Equal(t, "Base", extends[0].TargetSymbol)
}

func TestJSModuleName(t *testing.T) {
	assert.Equal(t, "base", jsModuleName("./models/base.js"))
	assert.Equal(t, "utils", jsModuleName("../utils"))
	assert.Equal(t, "react", jsModuleName("react"))
	assert.Equal(t, "lib", jsModuleName("./lib/"))
}

func TestJavaScriptAdapter_ExportSkipsMembers(t *testing.T) {
	src := "class A {\n  render() {}\n}\nexport function render() {}\n"
	path := writeSource(t, t.TempDir(), "r.js", src)
	res, err := NewJavaScriptAdapter().Extract(context.Background(), path, false)
	require.NoError(t, err)

	fn, ok := res.Graph.Entity(EntityID("Function", path, "render", 4))
	require.True(t, ok)
	assert.Equal(t, true, fn.Properties["exported"])

	method, ok := res.Graph.Entity(EntityID("Method", path, "render", 2))
	require.True(t, ok)
	assert.NotContains(t, method.Properties, "exported")
}
