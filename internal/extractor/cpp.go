package extractor

import (
	"context"
	"path"
	"strings"

	"codegraph/internal/graph"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"
)

// CppAdapter extracts classes, structs, methods and free functions from C
// and C++ sources.
type CppAdapter struct {
	opts options
}

func NewCppAdapter(opts ...Option) *CppAdapter {
	return &CppAdapter{opts: buildOptions(opts)}
}

func (c *CppAdapter) Language() string { return "cpp" }

func (c *CppAdapter) Extensions() []string {
	return []string{".cpp", ".cc", ".cxx", ".hpp", ".hh", ".hxx", ".c", ".h"}
}

func (c *CppAdapter) Extract(ctx context.Context, filePath string, buildIndex bool) (*FileResult, error) {
	return extract(ctx, filePath, c.Language(), cpp.GetLanguage(), buildIndex, c.opts, func(b *builder, root *sitter.Node) {
		w := &cppWalker{b: b, classes: make(map[string]string)}
		w.walk(root)
	})
}

var cppClassNodes = map[string]bool{"class_specifier": true, "struct_specifier": true}

var cppStop = map[string]bool{
	"function_definition": true,
	"class_specifier":     true,
	"struct_specifier":    true,
}

type cppWalker struct {
	b       *builder
	classes map[string]string
}

func (w *cppWalker) walk(root *sitter.Node) {
	findAll(root, "preproc_include", nil, w.include)

	w.classesIn(root)
	findAll(root, "function_definition", cppStop, w.function)
}

// classesIn visits class and struct specifiers in document order so base
// classes declared earlier in the file resolve to their real ids.
func (w *cppWalker) classesIn(n *sitter.Node) {
	for _, c := range children(n) {
		switch {
		case cppClassNodes[c.Type()]:
			w.class(c, "")
		case c.Type() == "function_definition":
		default:
			w.classesIn(c)
		}
	}
}

func (w *cppWalker) include(n *sitter.Node) {
	b := w.b
	raw := strings.Trim(b.text(n.ChildByFieldName("path")), "\"<>")
	if raw == "" {
		return
	}
	base := path.Base(raw)
	module := strings.TrimSuffix(base, path.Ext(base))
	b.pending(graph.PendingReference{
		Kind:          graph.RefImportsModule,
		SourceID:      b.fileID,
		TargetModule:  module,
		OriginalAlias: raw,
	})
}

// class records a class or struct with a body. Nested classes are defined
// by their owner; only top-level ones are contained and indexed.
func (w *cppWalker) class(n *sitter.Node, owner string) {
	b := w.b
	body := n.ChildByFieldName("body")
	name := b.text(n.ChildByFieldName("name"))
	if body == nil || name == "" {
		return
	}
	classID := b.entity(graph.KindClass, string(graph.KindClass), name, n, map[string]any{
		"declaration": strings.TrimSuffix(n.Type(), "_specifier"),
	})
	if owner == "" {
		b.contains(classID)
		b.export(name, classID)
	} else {
		b.defines(owner, classID)
	}
	w.classes[name] = classID

	if bases := firstChildOfType(n, "base_class_clause"); bases != nil {
		for _, base := range namedChildren(bases) {
			switch base.Type() {
			case "type_identifier", "qualified_identifier", "template_type":
				baseName := firstSegment(b.text(base), "<")
				baseName = lastSegment(baseName, "::")
				target, ok := w.classes[baseName]
				if !ok {
					target = AssumedID(graph.KindClass, b.path, baseName)
				}
				b.relate(classID, target, graph.RelationExtends, nil)
			}
		}
	}

	for _, member := range namedChildren(body) {
		switch {
		case member.Type() == "function_definition":
			w.method(classID, name, member)
		case cppClassNodes[member.Type()]:
			w.class(member, classID)
		case member.Type() == "field_declaration":
			// class Inner { ... }; inside a body
			if inner := member.ChildByFieldName("type"); inner != nil && cppClassNodes[inner.Type()] {
				w.class(inner, classID)
			}
		}
	}
}

func (w *cppWalker) method(classID, className string, n *sitter.Node) {
	b := w.b
	name := w.declaratorName(n.ChildByFieldName("declarator"))
	if name == "" {
		return
	}
	id := b.entity(graph.KindMethod, string(graph.KindMethod), name, n, map[string]any{
		"is_method":    true,
		"parent_class": className,
	})
	b.defines(classID, id)
	w.calls(id, n.ChildByFieldName("body"))
}

// function handles free functions and out-of-class member definitions
// such as `void Shape::draw() {}`.
func (w *cppWalker) function(n *sitter.Node) {
	b := w.b
	full := w.declaratorName(n.ChildByFieldName("declarator"))
	if full == "" {
		return
	}
	if i := strings.LastIndex(full, "::"); i > 0 {
		owner := lastSegment(full[:i], "::")
		name := full[i+2:]
		id := b.entity(graph.KindMethod, string(graph.KindMethod), name, n, map[string]any{
			"is_method":    true,
			"parent_class": owner,
		})
		classID, ok := w.classes[owner]
		if !ok {
			classID = AssumedID(graph.KindClass, b.path, owner)
		}
		b.defines(classID, id)
		w.calls(id, n.ChildByFieldName("body"))
		return
	}
	props := map[string]any{"is_method": false}
	if ret := n.ChildByFieldName("type"); ret != nil {
		props["return_type"] = b.text(ret)
	}
	id := b.entity(graph.KindFunction, string(graph.KindFunction), full, n, props)
	b.contains(id)
	b.export(full, id)
	w.calls(id, n.ChildByFieldName("body"))
}

// declaratorName digs through pointer, reference and function declarators
// to the declared identifier.
func (w *cppWalker) declaratorName(n *sitter.Node) string {
	for n != nil {
		switch n.Type() {
		case "identifier", "field_identifier", "qualified_identifier", "destructor_name", "operator_name":
			return w.b.text(n)
		case "function_declarator", "pointer_declarator", "reference_declarator", "array_declarator", "parenthesized_declarator":
			next := n.ChildByFieldName("declarator")
			if next == nil {
				next = n.NamedChild(0)
			}
			n = next
		default:
			return ""
		}
	}
	return ""
}

func (w *cppWalker) calls(ownerID string, body *sitter.Node) {
	if body == nil {
		return
	}
	b := w.b
	findAll(body, "call_expression", nil, func(call *sitter.Node) {
		fn := call.ChildByFieldName("function")
		if fn == nil {
			return
		}
		switch fn.Type() {
		case "identifier":
			b.relate(ownerID, AssumedID(graph.KindFunction, b.path, b.text(fn)), graph.RelationCalls, nil)
		case "field_expression":
			obj := fn.ChildByFieldName("argument")
			field := b.text(fn.ChildByFieldName("field"))
			if obj == nil || field == "" {
				return
			}
			b.relate(ownerID, AssumedID(graph.KindMethod, b.path, field), graph.RelationCalls, map[string]any{"object": b.text(obj)})
		}
	})
}
