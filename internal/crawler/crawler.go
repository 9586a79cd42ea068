package crawler

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"
)

var (
	ErrRootNotFound   = errors.New("root path does not exist")
	ErrRootNotDir     = errors.New("root path is not a directory")
	ErrInvalidPattern = errors.New("invalid exclude pattern")
)

// DefaultIgnoredDirs are never entered, wherever they appear in the tree.
var DefaultIgnoredDirs = []string{".git", "vendor", "node_modules", "__pycache__", ".venv", "dist", "build"}

// Crawler scans a directory for source files.
type Crawler struct {
	ignored  map[string]struct{}
	excludes []glob.Glob
	logger   *slog.Logger
}

// NewCrawler creates a new crawler instance. Exclude patterns are matched
// against slash-separated paths relative to the root.
func NewCrawler(excludes []string, logger *slog.Logger) (*Crawler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Crawler{
		ignored: make(map[string]struct{}, len(DefaultIgnoredDirs)),
		logger:  logger,
	}
	for _, d := range DefaultIgnoredDirs {
		c.ignored[d] = struct{}{}
	}
	for _, p := range excludes {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, p, err)
		}
		c.excludes = append(c.excludes, g)
	}
	return c, nil
}

// Collect walks root and returns every regular file that is not ignored,
// sorted lexically. Paths keep root as their prefix.
func (c *Crawler) Collect(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRootNotFound, root)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotDir, root)
	}

	gitignore := c.loadGitignore(root)

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				c.logger.Warn("skipping unreadable path", slog.String("path", path))
				return nil
			}
			return err
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		// Skip ignored directories
		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := c.ignored[d.Name()]; skip {
				return filepath.SkipDir
			}
			if gitignore != nil && gitignore.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if gitignore != nil && gitignore.MatchesPath(rel) {
			return nil
		}
		if c.excluded(rel) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

func (c *Crawler) excluded(rel string) bool {
	for _, g := range c.excludes {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

func (c *Crawler) loadGitignore(root string) *ignore.GitIgnore {
	p := filepath.Join(root, ".gitignore")
	if _, err := os.Stat(p); err != nil {
		return nil
	}
	gi, err := ignore.CompileIgnoreFile(p)
	if err != nil {
		c.logger.Warn("ignoring unreadable .gitignore", slog.String("path", p), slog.Any("error", err))
		return nil
	}
	return gi
}
