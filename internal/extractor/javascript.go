package extractor

import (
	"context"
	"path"
	"path/filepath"
	"strings"

	"codegraph/internal/graph"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// JavaScriptAdapter handles JavaScript, JSX, TypeScript and TSX. The grammar
// is chosen per file from its extension.
type JavaScriptAdapter struct {
	opts options
}

func NewJavaScriptAdapter(opts ...Option) *JavaScriptAdapter {
	return &JavaScriptAdapter{opts: buildOptions(opts)}
}

func (j *JavaScriptAdapter) Language() string { return "javascript" }

func (j *JavaScriptAdapter) Extensions() []string {
	return []string{".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx"}
}

func (j *JavaScriptAdapter) Extract(ctx context.Context, filePath string, buildIndex bool) (*FileResult, error) {
	language, grammar := jsGrammar(filePath)
	return extract(ctx, filePath, language, grammar, buildIndex, j.opts, func(b *builder, root *sitter.Node) {
		w := &jsWalker{b: b, aliases: make(map[string]importTarget)}
		w.walk(root)
	})
}

func jsGrammar(filePath string) (string, *sitter.Language) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".ts":
		return "typescript", typescript.GetLanguage()
	case ".tsx":
		return "tsx", tsx.GetLanguage()
	case ".jsx":
		return "jsx", javascript.GetLanguage()
	default:
		return "javascript", javascript.GetLanguage()
	}
}

// jsModuleName maps an import source to a module index key: the last path
// segment without extension, so "./models/base.js" becomes "base".
func jsModuleName(source string) string {
	source = strings.TrimRight(source, "/")
	base := path.Base(source)
	if base == "." || base == "/" || base == "" {
		return source
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

type jsWalker struct {
	b       *builder
	aliases map[string]importTarget
}

func (w *jsWalker) walk(root *sitter.Node) {
	for _, child := range namedChildren(root) {
		if child.Type() == "import_statement" {
			w.importStatement(child)
		}
	}
	for _, child := range namedChildren(root) {
		w.topLevel(child)
	}
	for _, child := range namedChildren(root) {
		if child.Type() == "export_statement" {
			w.exports(child)
		}
	}
}

func (w *jsWalker) importStatement(n *sitter.Node) {
	b := w.b
	sourceNode := n.ChildByFieldName("source")
	if sourceNode == nil {
		sourceNode = firstChildOfType(n, "string")
	}
	source := strings.Trim(b.text(sourceNode), "\"'`")
	if source == "" {
		return
	}
	module := jsModuleName(source)
	b.pending(graph.PendingReference{
		Kind:          graph.RefImportsModule,
		SourceID:      b.fileID,
		TargetModule:  module,
		OriginalAlias: source,
	})

	clause := firstChildOfType(n, "import_clause")
	for _, child := range namedChildren(clause) {
		switch child.Type() {
		case "identifier":
			w.bindSymbol(module, b.text(child), b.text(child))
		case "named_imports":
			for _, spec := range namedChildren(child) {
				if spec.Type() != "import_specifier" {
					continue
				}
				name := b.text(spec.ChildByFieldName("name"))
				alias := b.text(spec.ChildByFieldName("alias"))
				if alias == "" {
					alias = name
				}
				w.bindSymbol(module, name, alias)
			}
		case "namespace_import":
			if id := firstChildOfType(child, "identifier"); id != nil {
				w.aliases[b.text(id)] = importTarget{module: module, path: source}
			}
		}
	}
}

func (w *jsWalker) bindSymbol(module, symbol, alias string) {
	if symbol == "" || alias == "" {
		return
	}
	w.aliases[alias] = importTarget{module: module, symbol: symbol}
	w.b.pending(graph.PendingReference{
		Kind:          graph.RefImportsSymbol,
		SourceID:      w.b.fileID,
		TargetModule:  module,
		TargetSymbol:  symbol,
		OriginalAlias: alias,
	})
}

func (w *jsWalker) topLevel(n *sitter.Node) {
	switch n.Type() {
	case "export_statement":
		if decl := n.ChildByFieldName("declaration"); decl != nil {
			w.topLevel(decl)
			return
		}
		for _, child := range namedChildren(n) {
			switch child.Type() {
			case "class_declaration", "function_declaration", "class":
				w.topLevel(child)
			}
		}
	case "class_declaration", "abstract_class_declaration", "class":
		w.class(n)
	case "function_declaration", "generator_function_declaration":
		w.function(n, w.b.text(n.ChildByFieldName("name")), "standard", n)
	case "lexical_declaration", "variable_declaration":
		w.declaration(n)
	}
}

func (w *jsWalker) class(n *sitter.Node) {
	b := w.b
	name := b.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	classID := b.entity(graph.KindClass, string(graph.KindClass), name, n, nil)
	b.snippet(classID, n)
	b.contains(classID)
	b.export(name, classID)

	if heritage := firstChildOfType(n, "class_heritage"); heritage != nil {
		w.heritage(classID, heritage)
	}

	body := n.ChildByFieldName("body")
	for _, member := range namedChildren(body) {
		if member.Type() != "method_definition" {
			continue
		}
		methodName := b.text(member.ChildByFieldName("name"))
		if methodName == "" {
			continue
		}
		id := b.entity(graph.KindMethod, string(graph.KindMethod), methodName, member, map[string]any{
			"is_method":    true,
			"parent_class": name,
			"parameters":   w.params(member),
			"is_async":     jsIsAsync(member),
		})
		b.snippet(id, member)
		b.defines(classID, id)
		w.calls(id, member.ChildByFieldName("body"))
	}
}

func (w *jsWalker) heritage(classID string, heritage *sitter.Node) {
	b := w.b
	target := heritage.NamedChild(0)
	if ext := firstChildOfType(heritage, "extends_clause"); ext != nil {
		target = ext.ChildByFieldName("value")
		if target == nil {
			target = ext.NamedChild(0)
		}
	}
	if target == nil {
		return
	}
	switch target.Type() {
	case "identifier":
		name := b.text(target)
		if imp, ok := w.aliases[name]; ok && imp.symbol != "" {
			b.pending(graph.PendingReference{
				Kind:          graph.RefExtends,
				SourceID:      classID,
				TargetModule:  imp.module,
				TargetSymbol:  imp.symbol,
				OriginalAlias: name,
			})
			return
		}
		b.relate(classID, AssumedID(graph.KindClass, b.path, name), graph.RelationExtends, nil)
	case "member_expression":
		obj := target.ChildByFieldName("object")
		prop := b.text(target.ChildByFieldName("property"))
		if obj == nil || obj.Type() != "identifier" || prop == "" {
			return
		}
		if imp, ok := w.aliases[b.text(obj)]; ok && imp.symbol == "" {
			b.pending(graph.PendingReference{
				Kind:          graph.RefExtends,
				SourceID:      classID,
				TargetModule:  imp.module,
				TargetSymbol:  prop,
				OriginalAlias: b.text(target),
			})
		}
	}
}

// function records a top-level function. node is the declaration that spans
// the entity; fn is the function-like node holding parameters and body.
func (w *jsWalker) function(node *sitter.Node, name, style string, fn *sitter.Node) {
	b := w.b
	if name == "" {
		return
	}
	id := b.entity(graph.KindFunction, string(graph.KindFunction), name, node, map[string]any{
		"is_method":      false,
		"parameters":     w.params(fn),
		"function_style": style,
		"is_async":       jsIsAsync(fn),
	})
	b.snippet(id, node)
	b.contains(id)
	b.export(name, id)
	w.calls(id, fn.ChildByFieldName("body"))
}

func (w *jsWalker) declaration(n *sitter.Node) {
	b := w.b
	declType := "var"
	if n.Type() == "lexical_declaration" {
		if kw := n.Child(0); kw != nil {
			declType = b.text(kw)
		}
	}
	for _, decl := range namedChildren(n) {
		if decl.Type() != "variable_declarator" {
			continue
		}
		nameNode := decl.ChildByFieldName("name")
		if nameNode == nil || nameNode.Type() != "identifier" {
			continue
		}
		name := b.text(nameNode)
		value := decl.ChildByFieldName("value")
		if value != nil {
			switch value.Type() {
			case "arrow_function", "function", "function_expression":
				w.function(n, name, "arrow", value)
				continue
			}
		}
		id := b.entity(graph.KindVariable, string(graph.KindVariable), name, decl, map[string]any{
			"declaration_type": declType,
		})
		b.contains(id)
	}
}

func (w *jsWalker) params(fn *sitter.Node) []string {
	b := w.b
	params := []string{}
	if single := fn.ChildByFieldName("parameter"); single != nil {
		return append(params, b.text(single))
	}
	formal := fn.ChildByFieldName("parameters")
	if formal == nil {
		formal = firstChildOfType(fn, "formal_parameters")
	}
	for _, p := range namedChildren(formal) {
		switch p.Type() {
		case "identifier":
			params = append(params, b.text(p))
		case "assignment_pattern":
			if left := p.ChildByFieldName("left"); left != nil && left.Type() == "identifier" {
				params = append(params, b.text(left))
			}
		case "rest_pattern":
			if id := firstChildOfType(p, "identifier"); id != nil {
				params = append(params, b.text(id))
			}
		case "required_parameter", "optional_parameter":
			if id := p.ChildByFieldName("pattern"); id != nil && id.Type() == "identifier" {
				params = append(params, b.text(id))
			} else if id := firstChildOfType(p, "identifier"); id != nil {
				params = append(params, b.text(id))
			}
		}
	}
	return params
}

func jsIsAsync(fn *sitter.Node) bool {
	return firstChildOfType(fn, "async") != nil
}

// calls records call expressions inside a function body. Nested function
// bodies are attributed to the enclosing top-level function or method.
func (w *jsWalker) calls(ownerID string, body *sitter.Node) {
	if body == nil {
		return
	}
	b := w.b
	findAll(body, "call_expression", map[string]bool{"class_declaration": true, "class": true}, func(call *sitter.Node) {
		fn := call.ChildByFieldName("function")
		if fn == nil {
			return
		}
		switch fn.Type() {
		case "identifier":
			name := b.text(fn)
			if imp, ok := w.aliases[name]; ok && imp.symbol != "" {
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
		case "member_expression":
			obj := fn.ChildByFieldName("object")
			method := b.text(fn.ChildByFieldName("property"))
			if obj == nil || method == "" {
				return
			}
			if obj.Type() != "identifier" && obj.Type() != "this" {
				return
			}
			objName := b.text(obj)
			imp, ok := w.aliases[objName]
			switch {
			case ok && imp.symbol != "":
				b.pending(graph.PendingReference{
					Kind:          graph.RefCallsMethod,
					SourceID:      ownerID,
					TargetModule:  imp.module,
					TargetClass:   imp.symbol,
					TargetSymbol:  method,
					OriginalAlias: objName,
				})
			case ok:
				b.pending(graph.PendingReference{
					Kind:          graph.RefCalls,
					SourceID:      ownerID,
					TargetModule:  imp.module,
					TargetSymbol:  method,
					OriginalAlias: objName,
				})
			default:
				b.relate(ownerID, AssumedID(graph.KindMethod, b.path, method), graph.RelationCalls, map[string]any{"object": objName})
			}
		}
	})
}

// exports marks exported entities of this file.
func (w *jsWalker) exports(n *sitter.Node) {
	b := w.b
	exportType := "named"
	if firstChildOfType(n, "default") != nil {
		exportType = "default"
	}
	props := map[string]any{"exported": true, "export_type": exportType}

	if decl := n.ChildByFieldName("declaration"); decl != nil {
		for _, name := range w.declaredNames(decl) {
			b.mark(name, props)
		}
		return
	}
	for _, child := range namedChildren(n) {
		switch child.Type() {
		case "export_clause":
			for _, spec := range namedChildren(child) {
				if spec.Type() == "export_specifier" {
					b.mark(b.text(spec.ChildByFieldName("name")), map[string]any{"exported": true, "export_type": "named"})
				}
			}
		case "identifier":
			b.mark(b.text(child), props)
		case "class_declaration", "function_declaration", "class":
			for _, name := range w.declaredNames(child) {
				b.mark(name, props)
			}
		}
	}
}

func (w *jsWalker) declaredNames(decl *sitter.Node) []string {
	b := w.b
	switch decl.Type() {
	case "lexical_declaration", "variable_declaration":
		var names []string
		for _, d := range namedChildren(decl) {
			if d.Type() == "variable_declarator" {
				if nameNode := d.ChildByFieldName("name"); nameNode != nil && nameNode.Type() == "identifier" {
					names = append(names, b.text(nameNode))
				}
			}
		}
		return names
	default:
		if name := b.text(decl.ChildByFieldName("name")); name != "" {
			return []string{name}
		}
	}
	return nil
}
