package crawler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, root, rel string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("x\n"), 0o644))
	return p
}

func TestCrawler_Collect(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "main.py")
	touch(t, root, "pkg/models.py")
	touch(t, root, "pkg/deep/util.go")
	touch(t, root, "node_modules/lib/index.js")
	touch(t, root, ".git/HEAD")
	touch(t, root, "pkg/__pycache__/models.pyc")
	touch(t, root, "gen/out.go")
	touch(t, root, "notes.log")
	touch(t, root, "web/app.min.js")
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("gen/\n*.log\n"), 0o644))

	c, err := NewCrawler([]string{"**.min.js"}, nil)
	require.NoError(t, err)

	files, err := c.Collect(root)
	require.NoError(t, err)

	var rel []string
	for _, f := range files {
		r, err := filepath.Rel(root, f)
		require.NoError(t, err)
		rel = append(rel, filepath.ToSlash(r))
	}
	assert.Equal(t, []string{".gitignore", "main.py", "pkg/deep/util.go", "pkg/models.py"}, rel)
}

func TestCrawler_RootErrors(t *testing.T) {
	c, err := NewCrawler(nil, nil)
	require.NoError(t, err)

	_, err = c.Collect(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrRootNotFound)

	file := touch(t, t.TempDir(), "a.py")
	_, err = c.Collect(file)
	assert.ErrorIs(t, err, ErrRootNotDir)
}

func TestNewCrawler_InvalidPattern(t *testing.T) {
	_, err := NewCrawler([]string{"[unclosed"}, nil)
	assert.ErrorIs(t, err, ErrInvalidPattern)
}
