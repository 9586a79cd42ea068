package crawler

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"codegraph/internal/extractor"
)

var ErrNoAdapter = errors.New("no adapter registered for language")

var extToLang = map[string]string{
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".cjs":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".java": "java",
	".cpp":  "cpp",
	".cc":   "cpp",
	".cxx":  "cpp",
	".hpp":  "cpp",
	".hh":   "cpp",
	".hxx":  "cpp",
	".c":    "c",
	".h":    "c",
	".rs":   "rust",
	".go":   "go",
}

// binary and asset files that are expected in a tree and not worth a warning
var quietExts = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".ico": {}, ".svg": {},
	".pdf": {}, ".zip": {}, ".gz": {}, ".tar": {}, ".jar": {}, ".class": {},
	".so": {}, ".dylib": {}, ".dll": {}, ".exe": {}, ".o": {}, ".a": {},
	".pyc": {}, ".wasm": {}, ".lock": {}, ".sum": {},
}

// DetectLanguage returns the language of path from its extension.
func DetectLanguage(path string) (string, bool) {
	lang, ok := extToLang[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// Routed pairs a file with the adapter that will extract it.
type Routed struct {
	Path     string
	Language string
	Adapter  extractor.Adapter
}

// Router maps extensions to adapters for the enabled languages.
type Router struct {
	byLang map[string]extractor.Adapter
	logger *slog.Logger
}

// NewRouter builds adapters for languages. An empty list enables every
// supported language. A requested language without an adapter is fatal.
func NewRouter(languages []string, logger *slog.Logger, opts ...extractor.Option) (*Router, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(languages) == 0 {
		languages = []string{"python", "javascript", "typescript", "go", "java", "cpp", "c", "rust"}
	}
	r := &Router{byLang: make(map[string]extractor.Adapter), logger: logger}
	for _, lang := range languages {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if lang == "" {
			continue
		}
		a, err := extractor.NewAdapter(lang, opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrNoAdapter, lang)
		}
		r.byLang[lang] = a
	}
	return r, nil
}

// Route returns the adapter for path, if its language is enabled.
func (r *Router) Route(path string) (Routed, bool) {
	lang, ok := DetectLanguage(path)
	if !ok {
		return Routed{}, false
	}
	a, ok := r.byLang[lang]
	if !ok {
		return Routed{}, false
	}
	return Routed{Path: path, Language: lang, Adapter: a}, true
}

// Partition routes files in order and counts the ones left out.
func (r *Router) Partition(files []string) ([]Routed, int) {
	routed := make([]Routed, 0, len(files))
	skipped := 0
	for _, f := range files {
		rt, ok := r.Route(f)
		if ok {
			routed = append(routed, rt)
			continue
		}
		skipped++
		ext := strings.ToLower(filepath.Ext(f))
		_, quiet := quietExts[ext]
		_, known := extToLang[ext]
		switch {
		case quiet || known:
			r.logger.Debug("skipping file", slog.String("path", f))
		default:
			r.logger.Warn("unsupported file type", slog.String("path", f), slog.String("ext", ext))
		}
	}
	return routed, skipped
}

// Languages lists the enabled language names.
func (r *Router) Languages() []string {
	out := make([]string, 0, len(r.byLang))
	for lang := range r.byLang {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}
