package extractor

import (
	"fmt"
	"sort"
	"strings"
)

// NewAdapter returns the adapter for a language name. "typescript" shares
// the JavaScript adapter and "c" shares the C++ one.
func NewAdapter(lang string, opts ...Option) (Adapter, error) {
	switch strings.ToLower(lang) {
	case "python":
		return NewPythonAdapter(opts...), nil
	case "javascript", "typescript":
		return NewJavaScriptAdapter(opts...), nil
	case "go":
		return NewGoExtractor(opts...), nil
	case "java":
		return NewJavaAdapter(opts...), nil
	case "cpp", "c":
		return NewCppAdapter(opts...), nil
	case "rust":
		return NewRustAdapter(opts...), nil
	default:
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}
}

// Languages lists the canonical language names with a registered adapter.
func Languages() []string {
	langs := []string{"python", "javascript", "go", "java", "cpp", "rust"}
	sort.Strings(langs)
	return langs
}

// All builds one adapter per canonical language.
func All(opts ...Option) []Adapter {
	var out []Adapter
	for _, lang := range Languages() {
		a, err := NewAdapter(lang, opts...)
		if err != nil {
			continue
		}
		out = append(out, a)
	}
	return out
}
