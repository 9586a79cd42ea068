package index

import (
	"path/filepath"
	"sort"
	"strings"
)

// Contribution is one file's share of the module index.
type Contribution struct {
	Module  string            `json:"module"`
	FileID  string            `json:"file_id"`
	Symbols map[string]string `json:"symbols,omitempty"`
}

// ModuleIndex maps a module name to its file entity and top-level symbols.
//
// Module names are file base names without extension, so two files named
// utils.py in different directories share one key. The colliding file with
// the greatest id owns the key and symbol maps are unioned; the collision is
// kept visible through Collisions rather than resolved by path.
type ModuleIndex struct {
	files   map[string]string
	symbols map[string]map[string]string
	claims  map[string]map[string]struct{}
}

func New() *ModuleIndex {
	return &ModuleIndex{
		files:   make(map[string]string),
		symbols: make(map[string]map[string]string),
		claims:  make(map[string]map[string]struct{}),
	}
}

// ModuleName derives the index key for a source path.
func ModuleName(path string) string {
	base := filepath.Base(filepath.ToSlash(path))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (m *ModuleIndex) Contribute(c Contribution) {
	if c.Module == "" {
		return
	}
	if c.FileID != "" {
		m.claim(c.Module, c.FileID)
	}
	if _, ok := m.symbols[c.Module]; !ok {
		m.symbols[c.Module] = make(map[string]string)
	}
	for name, id := range c.Symbols {
		m.setSymbol(c.Module, name, id)
	}
}

// Merge folds other into m. The result does not depend on merge order.
func (m *ModuleIndex) Merge(other *ModuleIndex) {
	if other == nil {
		return
	}
	for module, ids := range other.claims {
		for id := range ids {
			m.claim(module, id)
		}
	}
	for module, syms := range other.symbols {
		if _, ok := m.symbols[module]; !ok {
			m.symbols[module] = make(map[string]string)
		}
		for name, id := range syms {
			m.setSymbol(module, name, id)
		}
	}
}

func (m *ModuleIndex) claim(module, fileID string) {
	set, ok := m.claims[module]
	if !ok {
		set = make(map[string]struct{})
		m.claims[module] = set
	}
	set[fileID] = struct{}{}
	if cur, ok := m.files[module]; !ok || fileID > cur {
		m.files[module] = fileID
	}
}

func (m *ModuleIndex) setSymbol(module, name, id string) {
	syms := m.symbols[module]
	if cur, ok := syms[name]; !ok || id > cur {
		syms[name] = id
	}
}

// FileFor returns the file entity id registered for module.
func (m *ModuleIndex) FileFor(module string) (string, bool) {
	id, ok := m.files[module]
	return id, ok
}

// Symbol returns the entity id of a top-level symbol in module.
func (m *ModuleIndex) Symbol(module, name string) (string, bool) {
	syms, ok := m.symbols[module]
	if !ok {
		return "", false
	}
	id, ok := syms[name]
	return id, ok
}

// Modules lists known module names in sorted order.
func (m *ModuleIndex) Modules() []string {
	out := make([]string, 0, len(m.symbols))
	for module := range m.symbols {
		out = append(out, module)
	}
	sort.Strings(out)
	return out
}

// Collisions returns every module name claimed by more than one file,
// with the claiming file ids sorted.
func (m *ModuleIndex) Collisions() map[string][]string {
	out := make(map[string][]string)
	for module, set := range m.claims {
		if len(set) < 2 {
			continue
		}
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out[module] = ids
	}
	return out
}

func (m *ModuleIndex) Len() int { return len(m.symbols) }
