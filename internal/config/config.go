package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend names accepted by Indexing.Backend.
const (
	BackendAuto      = "auto"
	BackendGoroutine = "goroutine"
	BackendProcess   = "process"
)

const (
	DefaultMinFilesForParallel = 50
	DefaultMaxFileSize         = 10 * 1024 * 1024
	DefaultDBPath              = "codegraph.db"
)

type Config struct {
	Project struct {
		Root    string   `yaml:"root"`
		Exclude []string `yaml:"exclude"`
	} `yaml:"project"`
	Indexing struct {
		Parallel            bool     `yaml:"parallel"`
		MinFilesForParallel int      `yaml:"min_files_for_parallel"`
		MaxWorkers          int      `yaml:"max_workers"`
		Backend             string   `yaml:"backend"`
		Languages           []string `yaml:"languages"`
		MaxFileSize         int64    `yaml:"max_file_size"`
		AllowSyntaxErrors   bool     `yaml:"allow_syntax_errors"`
	} `yaml:"indexing"`
	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.Project.Root = "."
	cfg.Indexing.Parallel = true
	cfg.Indexing.MinFilesForParallel = DefaultMinFilesForParallel
	cfg.Indexing.MaxWorkers = DefaultMaxWorkers()
	cfg.Indexing.Backend = BackendAuto
	cfg.Indexing.MaxFileSize = DefaultMaxFileSize
	cfg.Storage.DBPath = DefaultDBPath
	return &cfg
}

// DefaultMaxWorkers is min(NumCPU, 8).
func DefaultMaxWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

// LoadConfig reads path on top of the defaults and then applies environment
// overrides. An empty path or a missing file leaves the defaults in place.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	cfg := Default()

	// 2. Load YAML config
	if path != "" {
		file, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(file, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}

	// 3. Override with Environment Variables if present
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("PARALLEL_INDEXING_ENABLED"); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "false", "0", "no", "off":
			c.Indexing.Parallel = false
		case "true", "1", "yes", "on":
			c.Indexing.Parallel = true
		default:
			slog.Warn("ignoring invalid PARALLEL_INDEXING_ENABLED", slog.String("value", v))
		}
	}
	envInt("MIN_FILES_FOR_PARALLEL", &c.Indexing.MinFilesForParallel)
	envInt("MAX_WORKERS", &c.Indexing.MaxWorkers)
	if v := os.Getenv("CODEGRAPH_BACKEND"); v != "" {
		c.Indexing.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("CODEGRAPH_DB"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("CODEGRAPH_LANGUAGES"); v != "" {
		c.Indexing.Languages = SplitList(v)
	}
	if v := os.Getenv("CODEGRAPH_MAX_FILE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			slog.Warn("ignoring invalid CODEGRAPH_MAX_FILE_SIZE", slog.String("value", v))
		} else {
			c.Indexing.MaxFileSize = n
		}
	}
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		slog.Warn("ignoring invalid integer env", slog.String("key", key), slog.String("value", v))
		return
	}
	*dst = n
}

// SplitList splits a comma-separated list and drops empty items.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate rejects settings the indexer cannot run with. A non-positive
// worker count is reset to the default rather than rejected.
func (c *Config) Validate() error {
	switch c.Indexing.Backend {
	case BackendAuto, BackendGoroutine, BackendProcess:
	case "":
		c.Indexing.Backend = BackendAuto
	default:
		return fmt.Errorf("unknown backend %q (want auto, goroutine or process)", c.Indexing.Backend)
	}
	if c.Indexing.MinFilesForParallel < 0 {
		return fmt.Errorf("min_files_for_parallel must not be negative, got %d", c.Indexing.MinFilesForParallel)
	}
	if c.Indexing.MaxWorkers < 1 {
		c.Indexing.MaxWorkers = DefaultMaxWorkers()
	}
	if c.Indexing.MaxFileSize <= 0 {
		c.Indexing.MaxFileSize = DefaultMaxFileSize
	}
	return nil
}
