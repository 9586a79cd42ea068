package extractor

import (
	"context"
	"strings"

	"codegraph/internal/graph"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

// RustAdapter extracts structs, enums, traits, functions and impl methods.
type RustAdapter struct {
	opts options
}

func NewRustAdapter(opts ...Option) *RustAdapter {
	return &RustAdapter{opts: buildOptions(opts)}
}

func (r *RustAdapter) Language() string     { return "rust" }
func (r *RustAdapter) Extensions() []string { return []string{".rs"} }

func (r *RustAdapter) Extract(ctx context.Context, path string, buildIndex bool) (*FileResult, error) {
	return extract(ctx, path, r.Language(), rust.GetLanguage(), buildIndex, r.opts, func(b *builder, root *sitter.Node) {
		w := &rustWalker{b: b, aliases: make(map[string]importTarget), types: make(map[string]string)}
		w.walk(root)
	})
}

var rustTypeItems = map[string]bool{"struct_item": true, "enum_item": true, "trait_item": true}

type rustWalker struct {
	b       *builder
	aliases map[string]importTarget
	types   map[string]string
}

func (w *rustWalker) walk(root *sitter.Node) {
	findAll(root, "use_declaration", map[string]bool{"function_item": true}, func(n *sitter.Node) {
		w.use(n.ChildByFieldName("argument"), nil, true)
	})
	w.items(root)
	findAll(root, "impl_item", map[string]bool{"function_item": true}, w.impl)
}

// items records type items and free functions of a module body, descending
// into inline `mod` blocks.
func (w *rustWalker) items(n *sitter.Node) {
	b := w.b
	for _, item := range namedChildren(n) {
		switch {
		case rustTypeItems[item.Type()]:
			name := b.text(item.ChildByFieldName("name"))
			if name == "" {
				continue
			}
			id := b.entity(graph.KindClass, string(graph.KindClass), name, item, map[string]any{
				"declaration": strings.TrimSuffix(item.Type(), "_item"),
			})
			b.contains(id)
			b.export(name, id)
			w.types[name] = id
		case item.Type() == "function_item":
			name := b.text(item.ChildByFieldName("name"))
			if name == "" {
				continue
			}
			props := map[string]any{"is_method": false}
			if ret := item.ChildByFieldName("return_type"); ret != nil {
				props["return_type"] = b.text(ret)
			}
			id := b.entity(graph.KindFunction, string(graph.KindFunction), name, item, props)
			b.contains(id)
			b.export(name, id)
			w.calls(id, item.ChildByFieldName("body"))
		case item.Type() == "mod_item":
			w.items(item.ChildByFieldName("body"))
		}
	}
}

// use walks a use tree. prefix holds the path segments seen so far; only the
// outermost call records the IMPORTS_MODULE reference.
func (w *rustWalker) use(n *sitter.Node, prefix []string, root bool) {
	if n == nil {
		return
	}
	b := w.b
	switch n.Type() {
	case "scoped_use_list":
		segs := rustJoin(prefix, b.text(n.ChildByFieldName("path")))
		if root {
			w.useModule(segs, b.text(n))
		}
		for _, item := range namedChildren(n.ChildByFieldName("list")) {
			w.use(item, segs, false)
		}
	case "use_list":
		for _, item := range namedChildren(n) {
			w.use(item, prefix, root)
		}
	case "use_as_clause":
		segs := rustJoin(prefix, b.text(n.ChildByFieldName("path")))
		if root {
			w.useModule(segs, b.text(n))
		}
		w.useSymbol(segs, b.text(n.ChildByFieldName("alias")))
	case "scoped_identifier", "identifier":
		segs := rustJoin(prefix, b.text(n))
		if root {
			w.useModule(segs, b.text(n))
		}
		if len(segs) > 0 {
			w.useSymbol(segs, segs[len(segs)-1])
		}
	case "use_wildcard":
		if root {
			w.useModule(rustJoin(prefix, b.text(n)), b.text(n))
		}
	}
}

func rustJoin(prefix []string, p string) []string {
	out := make([]string, 0, len(prefix)+4)
	out = append(out, prefix...)
	return append(out, rustSegments(p)...)
}

// rustSegments splits a path and drops crate-relative anchors and globs.
func rustSegments(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "::") {
		seg = strings.TrimSpace(seg)
		switch seg {
		case "", "crate", "self", "super", "*":
			continue
		}
		out = append(out, seg)
	}
	return out
}

func (w *rustWalker) useModule(segs []string, alias string) {
	if len(segs) == 0 {
		return
	}
	w.b.pending(graph.PendingReference{
		Kind:          graph.RefImportsModule,
		SourceID:      w.b.fileID,
		TargetModule:  segs[0],
		OriginalAlias: alias,
	})
}

// useSymbol binds `a::b::Sym` as Sym from module b.
func (w *rustWalker) useSymbol(segs []string, alias string) {
	if len(segs) < 2 || alias == "" {
		return
	}
	module := segs[len(segs)-2]
	symbol := segs[len(segs)-1]
	w.aliases[alias] = importTarget{module: module, symbol: symbol, path: strings.Join(segs, "::")}
	w.b.pending(graph.PendingReference{
		Kind:          graph.RefImportsSymbol,
		SourceID:      w.b.fileID,
		TargetModule:  module,
		TargetSymbol:  symbol,
		OriginalAlias: alias,
	})
}

func (w *rustWalker) impl(n *sitter.Node) {
	b := w.b
	typeNode := n.ChildByFieldName("type")
	if typeNode == nil {
		return
	}
	if typeNode.Type() == "generic_type" {
		typeNode = typeNode.ChildByFieldName("type")
	}
	typeName := lastSegment(b.text(typeNode), "::")
	if typeName == "" {
		return
	}
	owner, ok := w.types[typeName]
	if !ok {
		owner = AssumedID(graph.KindClass, b.path, typeName)
	}
	trait := b.text(n.ChildByFieldName("trait"))

	for _, item := range namedChildren(n.ChildByFieldName("body")) {
		if item.Type() != "function_item" {
			continue
		}
		name := b.text(item.ChildByFieldName("name"))
		if name == "" {
			continue
		}
		props := map[string]any{"is_method": true, "parent_class": typeName}
		if trait != "" {
			props["trait"] = trait
		}
		id := b.entity(graph.KindMethod, string(graph.KindMethod), name, item, props)
		b.defines(owner, id)
		w.calls(id, item.ChildByFieldName("body"))
	}
}

func (w *rustWalker) calls(ownerID string, body *sitter.Node) {
	if body == nil {
		return
	}
	b := w.b
	findAll(body, "call_expression", map[string]bool{"function_item": true}, func(call *sitter.Node) {
		fn := call.ChildByFieldName("function")
		if fn == nil {
			return
		}
		switch fn.Type() {
		case "identifier":
			name := b.text(fn)
			if imp, ok := w.aliases[name]; ok {
				b.pending(graph.PendingReference{
					Kind:          graph.RefCalls,
					SourceID:      ownerID,
					TargetModule:  imp.module,
					TargetSymbol:  imp.symbol,
					OriginalAlias: name,
				})
				return
			}
			b.relate(ownerID, AssumedID(graph.KindFunction, b.path, name), graph.RelationCalls, nil)
		case "scoped_identifier":
			owner := b.text(fn.ChildByFieldName("path"))
			method := b.text(fn.ChildByFieldName("name"))
			if owner == "" || method == "" {
				return
			}
			if imp, ok := w.aliases[owner]; ok {
				b.pending(graph.PendingReference{
					Kind:          graph.RefCallsMethod,
					SourceID:      ownerID,
					TargetModule:  imp.module,
					TargetClass:   imp.symbol,
					TargetSymbol:  method,
					OriginalAlias: owner,
				})
				return
			}
			b.relate(ownerID, AssumedID(graph.KindMethod, b.path, method), graph.RelationCalls, map[string]any{"object": owner})
		case "field_expression":
			value := b.text(fn.ChildByFieldName("value"))
			field := b.text(fn.ChildByFieldName("field"))
			if value == "" || field == "" {
				return
			}
			b.relate(ownerID, AssumedID(graph.KindMethod, b.path, field), graph.RelationCalls, map[string]any{"object": value})
		}
	})
}
