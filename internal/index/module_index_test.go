package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleName(t *testing.T) {
	assert.Equal(t, "utils", ModuleName("pkg/a/utils.py"))
	assert.Equal(t, "base", ModuleName("base.ts"))
	assert.Equal(t, "index.test", ModuleName("src/index.test.js"))
	assert.Equal(t, "Makefile", ModuleName("Makefile"))
}

func TestModuleIndex_Contribute(t *testing.T) {
	idx := New()
	idx.Contribute(Contribution{
		Module:  "base",
		FileID:  "file:base.py",
		Symbols: map[string]string{"Animal": "Class:base.py:Animal:1"},
	})

	fileID, ok := idx.FileFor("base")
	require.True(t, ok)
	assert.Equal(t, "file:base.py", fileID)

	id, ok := idx.Symbol("base", "Animal")
	require.True(t, ok)
	assert.Equal(t, "Class:base.py:Animal:1", id)

	_, ok = idx.Symbol("base", "Plant")
	assert.False(t, ok)
	_, ok = idx.Symbol("missing", "Animal")
	assert.False(t, ok)
	assert.Equal(t, []string{"base"}, idx.Modules())
}

func TestModuleIndex_CollidingModules(t *testing.T) {
	a := Contribution{
		Module:  "utils",
		FileID:  "file:a/utils.py",
		Symbols: map[string]string{"helper": "Function:a/utils.py:helper:1", "only_a": "Function:a/utils.py:only_a:4"},
	}
	b := Contribution{
		Module:  "utils",
		FileID:  "file:b/utils.py",
		Symbols: map[string]string{"helper": "Function:b/utils.py:helper:1"},
	}

	ab := New()
	ab.Contribute(a)
	ab.Contribute(b)

	ba := New()
	ba.Contribute(b)
	ba.Contribute(a)

	t.Run("Same winner regardless of order", func(t *testing.T) {
		fa, _ := ab.FileFor("utils")
		fb, _ := ba.FileFor("utils")
		assert.Equal(t, fa, fb)
		assert.Equal(t, "file:b/utils.py", fa)

		ha, _ := ab.Symbol("utils", "helper")
		hb, _ := ba.Symbol("utils", "helper")
		assert.Equal(t, ha, hb)
	})

	t.Run("Symbols of both files remain visible", func(t *testing.T) {
		id, ok := ab.Symbol("utils", "only_a")
		require.True(t, ok)
		assert.Equal(t, "Function:a/utils.py:only_a:4", id)
	})

	t.Run("Collision is recorded", func(t *testing.T) {
		assert.Equal(t, map[string][]string{"utils": {"file:a/utils.py", "file:b/utils.py"}}, ab.Collisions())
	})
}

func TestModuleIndex_Merge(t *testing.T) {
	left := New()
	left.Contribute(Contribution{Module: "a", FileID: "file:a.py", Symbols: map[string]string{"f": "Function:a.py:f:1"}})
	right := New()
	right.Contribute(Contribution{Module: "b", FileID: "file:b.py"})

	merged := New()
	merged.Merge(right)
	merged.Merge(left)
	merged.Merge(left)

	assert.Equal(t, []string{"a", "b"}, merged.Modules())
	assert.Empty(t, merged.Collisions())
	id, ok := merged.Symbol("a", "f")
	require.True(t, ok)
	assert.Equal(t, "Function:a.py:f:1", id)
	assert.Equal(t, 2, merged.Len())
}
