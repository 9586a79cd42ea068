package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.True(t, cfg.Indexing.Parallel)
	assert.Equal(t, DefaultMinFilesForParallel, cfg.Indexing.MinFilesForParallel)
	assert.Equal(t, BackendAuto, cfg.Indexing.Backend)
	assert.Equal(t, DefaultMaxWorkers(), cfg.Indexing.MaxWorkers)
	assert.LessOrEqual(t, cfg.Indexing.MaxWorkers, 8)
	assert.Equal(t, DefaultDBPath, cfg.Storage.DBPath)
}

func TestLoadConfig_YAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codegraph.yaml")
	yml := `
project:
  root: ./src
  exclude: ["**/gen/**"]
indexing:
  parallel: true
  min_files_for_parallel: 10
  max_workers: 3
  backend: goroutine
  languages: [python, go]
storage:
  db_path: graph.db
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	t.Setenv("PARALLEL_INDEXING_ENABLED", "no")
	t.Setenv("MAX_WORKERS", "not-a-number")
	t.Setenv("CODEGRAPH_LANGUAGES", "rust, java")
	t.Setenv("CODEGRAPH_MAX_FILE_SIZE", "2048")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "./src", cfg.Project.Root)
	assert.Equal(t, []string{"**/gen/**"}, cfg.Project.Exclude)
	assert.False(t, cfg.Indexing.Parallel)
	assert.Equal(t, 10, cfg.Indexing.MinFilesForParallel)
	assert.Equal(t, 3, cfg.Indexing.MaxWorkers, "invalid env ints are ignored")
	assert.Equal(t, BackendGoroutine, cfg.Indexing.Backend)
	assert.Equal(t, []string{"rust", "java"}, cfg.Indexing.Languages)
	assert.Equal(t, int64(2048), cfg.Indexing.MaxFileSize)
	assert.Equal(t, "graph.db", cfg.Storage.DBPath)
}

func TestLoadConfig_InvalidBackend(t *testing.T) {
	t.Setenv("CODEGRAPH_BACKEND", "threads")
	_, err := LoadConfig("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Indexing.MinFilesForParallel = -1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Indexing.MaxWorkers = 0
	cfg.Indexing.Backend = ""
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultMaxWorkers(), cfg.Indexing.MaxWorkers)
	assert.Equal(t, BackendAuto, cfg.Indexing.Backend)
}
