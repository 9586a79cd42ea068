package extractor

import (
	"context"
	"encoding/json"
	"strings"

	"codegraph/internal/graph"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// PythonAdapter extracts modules, classes, functions, methods and variables
// from Python sources.
type PythonAdapter struct {
	opts options
}

func NewPythonAdapter(opts ...Option) *PythonAdapter {
	return &PythonAdapter{opts: buildOptions(opts)}
}

func (p *PythonAdapter) Language() string     { return "python" }
func (p *PythonAdapter) Extensions() []string { return []string{".py"} }

func (p *PythonAdapter) Extract(ctx context.Context, path string, buildIndex bool) (*FileResult, error) {
	return extract(ctx, path, p.Language(), python.GetLanguage(), buildIndex, p.opts, func(b *builder, root *sitter.Node) {
		w := &pyWalker{b: b, aliases: make(map[string]importTarget)}
		w.walk(root)
	})
}

// importTarget is what a local alias was bound to by an import statement.
// An empty symbol means the alias names a whole module.
type importTarget struct {
	module string
	symbol string
	path   string
}

var pyScopeNodes = map[string]bool{"function_definition": true, "class_definition": true}

type pyWalker struct {
	b       *builder
	aliases map[string]importTarget
}

func (w *pyWalker) walk(root *sitter.Node) {
	w.imports(root)
	for _, child := range namedChildren(root) {
		def := child
		if child.Type() == "decorated_definition" {
			def = child.ChildByFieldName("definition")
			if def == nil {
				continue
			}
		}
		switch def.Type() {
		case "class_definition":
			w.class(def)
		case "function_definition":
			w.function(def)
		}
	}
	w.globals(root)
}

func (w *pyWalker) imports(root *sitter.Node) {
	b := w.b
	findAll(root, "import_statement", nil, func(n *sitter.Node) {
		for _, child := range namedChildren(n) {
			var name, alias string
			switch child.Type() {
			case "dotted_name":
				name = b.text(child)
				alias = name
			case "aliased_import":
				name = b.text(child.ChildByFieldName("name"))
				alias = b.text(child.ChildByFieldName("alias"))
			default:
				continue
			}
			if name == "" || alias == "" {
				continue
			}
			module := firstSegment(name, ".")
			w.aliases[alias] = importTarget{module: module, path: name}
			b.pending(graph.PendingReference{
				Kind:          graph.RefImportsModule,
				SourceID:      b.fileID,
				TargetModule:  module,
				OriginalAlias: alias,
			})
		}
	})

	findAll(root, "import_from_statement", nil, func(n *sitter.Node) {
		moduleNode := n.ChildByFieldName("module_name")
		if moduleNode == nil {
			return
		}
		module := pyFromModule(b.text(moduleNode))
		for _, child := range namedChildren(n) {
			if child.StartByte() == moduleNode.StartByte() {
				continue
			}
			var symbol, alias string
			switch child.Type() {
			case "dotted_name":
				symbol = b.text(child)
				alias = symbol
			case "aliased_import":
				symbol = b.text(child.ChildByFieldName("name"))
				alias = b.text(child.ChildByFieldName("alias"))
			default:
				continue
			}
			if symbol == "" || alias == "" {
				continue
			}
			w.aliases[alias] = importTarget{module: module, symbol: symbol, path: b.text(moduleNode) + "." + symbol}
			b.pending(graph.PendingReference{
				Kind:          graph.RefImportsSymbol,
				SourceID:      b.fileID,
				TargetModule:  module,
				TargetSymbol:  symbol,
				OriginalAlias: alias,
			})
		}
	})
}

// pyFromModule maps the module part of a from-import to an index key:
// "pkg.models" and ".models" both become "models"; a bare "." stays as is
// and never resolves.
func pyFromModule(raw string) string {
	trimmed := strings.TrimLeft(raw, ".")
	if trimmed == "" {
		return raw
	}
	return lastSegment(trimmed, ".")
}

// resolved returns the module and symbol a name refers to through an alias.
func (t importTarget) resolved() (module, symbol string) {
	if t.symbol != "" {
		return t.module, t.symbol
	}
	return t.module, lastSegment(t.path, ".")
}

func (w *pyWalker) class(n *sitter.Node) {
	b := w.b
	name := b.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	classID := b.entity(graph.KindClass, string(graph.KindClass), name, n, nil)
	b.contains(classID)
	b.export(name, classID)

	if supers := n.ChildByFieldName("superclasses"); supers != nil {
		for _, base := range namedChildren(supers) {
			w.superclass(classID, base)
		}
	}

	body := n.ChildByFieldName("body")
	for _, child := range namedChildren(body) {
		switch child.Type() {
		case "function_definition":
			w.method(classID, child)
		case "decorated_definition":
			if def := child.ChildByFieldName("definition"); def != nil && def.Type() == "function_definition" {
				w.method(classID, def)
			}
		case "expression_statement":
			for _, expr := range namedChildren(child) {
				if expr.Type() == "assignment" {
					w.classAttribute(classID, expr)
				}
			}
		}
	}
}

func (w *pyWalker) superclass(classID string, base *sitter.Node) {
	b := w.b
	switch base.Type() {
	case "identifier":
		name := b.text(base)
		if target, ok := w.aliases[name]; ok {
			module, symbol := target.resolved()
			b.pending(graph.PendingReference{
				Kind:          graph.RefExtends,
				SourceID:      classID,
				TargetModule:  module,
				TargetSymbol:  symbol,
				OriginalAlias: name,
			})
			return
		}
		b.relate(classID, AssumedID(graph.KindClass, b.path, name), graph.RelationExtends, nil)
	case "attribute":
		obj := base.ChildByFieldName("object")
		attr := b.text(base.ChildByFieldName("attribute"))
		if obj == nil || obj.Type() != "identifier" || attr == "" {
			return
		}
		if target, ok := w.aliases[b.text(obj)]; ok && target.symbol == "" {
			b.pending(graph.PendingReference{
				Kind:          graph.RefExtends,
				SourceID:      classID,
				TargetModule:  target.module,
				TargetSymbol:  attr,
				OriginalAlias: b.text(base),
			})
		}
	}
}

func (w *pyWalker) method(classID string, n *sitter.Node) {
	b := w.b
	name := b.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	props := map[string]any{"is_method": true}
	if args := w.args(n); args != "" {
		props["args"] = args
	}
	id := b.entity(graph.KindMethod, string(graph.KindMethod), name, n, props)
	b.defines(classID, id)
	w.body(id, n.ChildByFieldName("body"))
}

func (w *pyWalker) function(n *sitter.Node) {
	b := w.b
	name := b.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	props := map[string]any{"is_method": false}
	if args := w.args(n); args != "" {
		props["args"] = args
	}
	id := b.entity(graph.KindFunction, string(graph.KindFunction), name, n, props)
	b.contains(id)
	b.export(name, id)
	w.body(id, n.ChildByFieldName("body"))
}

type pyArg struct {
	Name       string `json:"name"`
	Type       string `json:"type,omitempty"`
	HasDefault bool   `json:"has_default,omitempty"`
}

// args encodes the parameter list as a JSON string property.
func (w *pyWalker) args(fn *sitter.Node) string {
	b := w.b
	params := fn.ChildByFieldName("parameters")
	var args []pyArg
	for _, p := range namedChildren(params) {
		switch p.Type() {
		case "identifier":
			args = append(args, pyArg{Name: b.text(p)})
		case "typed_parameter":
			nameNode := p.ChildByFieldName("name")
			if nameNode == nil {
				nameNode = p.NamedChild(0)
			}
			if nameNode != nil {
				args = append(args, pyArg{Name: b.text(nameNode), Type: b.text(p.ChildByFieldName("type"))})
			}
		case "default_parameter", "typed_default_parameter":
			if nameNode := p.ChildByFieldName("name"); nameNode != nil {
				args = append(args, pyArg{Name: b.text(nameNode), Type: b.text(p.ChildByFieldName("type")), HasDefault: true})
			}
		}
	}
	if len(args) == 0 {
		return ""
	}
	data, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	return string(data)
}

func (w *pyWalker) classAttribute(classID string, assign *sitter.Node) {
	b := w.b
	left := assign.ChildByFieldName("left")
	if left == nil || left.Type() != "identifier" {
		return
	}
	id := b.entity(graph.KindClassVariable, string(graph.KindClassVariable), b.text(left), assign, nil)
	b.defines(classID, id)
}

// body records local variables and calls made inside a function or method.
func (w *pyWalker) body(ownerID string, body *sitter.Node) {
	if body == nil {
		return
	}
	b := w.b
	findAll(body, "assignment", pyScopeNodes, func(assign *sitter.Node) {
		for _, name := range w.targets(assign.ChildByFieldName("left")) {
			id := b.entity(graph.KindLocalVariable, string(graph.KindLocalVariable), name, assign, nil)
			b.defines(ownerID, id)
		}
	})
	findAll(body, "call", nil, func(call *sitter.Node) {
		w.call(ownerID, call)
	})
}

func (w *pyWalker) call(ownerID string, call *sitter.Node) {
	b := w.b
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return
	}
	switch fn.Type() {
	case "identifier":
		name := b.text(fn)
		if target, ok := w.aliases[name]; ok {
			module, symbol := target.resolved()
			b.pending(graph.PendingReference{
				Kind:          graph.RefCalls,
				SourceID:      ownerID,
				TargetModule:  module,
				TargetSymbol:  symbol,
				OriginalAlias: name,
			})
			return
		}
		b.relate(ownerID, AssumedID(graph.KindFunction, b.path, name), graph.RelationCalls, nil)
	case "attribute":
		obj := fn.ChildByFieldName("object")
		method := b.text(fn.ChildByFieldName("attribute"))
		if obj == nil || obj.Type() != "identifier" || method == "" {
			return
		}
		objName := b.text(obj)
		target, ok := w.aliases[objName]
		switch {
		case ok && target.symbol != "":
			b.pending(graph.PendingReference{
				Kind:          graph.RefCallsMethod,
				SourceID:      ownerID,
				TargetModule:  target.module,
				TargetClass:   target.symbol,
				TargetSymbol:  method,
				OriginalAlias: objName,
			})
		case ok:
			b.pending(graph.PendingReference{
				Kind:          graph.RefCalls,
				SourceID:      ownerID,
				TargetModule:  target.module,
				TargetSymbol:  method,
				OriginalAlias: objName,
			})
		default:
			b.relate(ownerID, AssumedID(graph.KindMethod, b.path, method), graph.RelationCalls, map[string]any{"object": objName})
		}
	}
}

// globals records module-level assignments, including those nested in
// if/for/with/try blocks but not inside functions or classes.
func (w *pyWalker) globals(root *sitter.Node) {
	b := w.b
	findAll(root, "assignment", pyScopeNodes, func(assign *sitter.Node) {
		for _, name := range w.targets(assign.ChildByFieldName("left")) {
			id := b.entity(graph.KindGlobalVariable, VariablePrefix, name, assign, nil)
			b.defines(b.fileID, id)
		}
	})
}

func (w *pyWalker) targets(left *sitter.Node) []string {
	if left == nil {
		return nil
	}
	switch left.Type() {
	case "identifier":
		return []string{w.b.text(left)}
	case "pattern_list", "tuple_pattern":
		var names []string
		for _, c := range namedChildren(left) {
			if c.Type() == "identifier" {
				names = append(names, w.b.text(c))
			}
		}
		return names
	}
	return nil
}
