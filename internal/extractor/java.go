package extractor

import (
	"context"

	"codegraph/internal/graph"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
)

// JavaAdapter extracts classes, interfaces, enums, methods and fields.
type JavaAdapter struct {
	opts options
}

func NewJavaAdapter(opts ...Option) *JavaAdapter {
	return &JavaAdapter{opts: buildOptions(opts)}
}

func (j *JavaAdapter) Language() string     { return "java" }
func (j *JavaAdapter) Extensions() []string { return []string{".java"} }

func (j *JavaAdapter) Extract(ctx context.Context, path string, buildIndex bool) (*FileResult, error) {
	return extract(ctx, path, j.Language(), java.GetLanguage(), buildIndex, j.opts, func(b *builder, root *sitter.Node) {
		w := &javaWalker{b: b, aliases: make(map[string]importTarget)}
		w.walk(root)
	})
}

var javaTypeDecls = map[string]bool{
	"class_declaration":     true,
	"interface_declaration": true,
	"enum_declaration":      true,
	"record_declaration":    true,
}

type javaWalker struct {
	b       *builder
	aliases map[string]importTarget
}

func (w *javaWalker) walk(root *sitter.Node) {
	for _, child := range namedChildren(root) {
		if child.Type() == "import_declaration" {
			w.importDecl(child)
		}
	}
	for _, child := range namedChildren(root) {
		if javaTypeDecls[child.Type()] {
			w.typeDecl(child, "")
		}
	}
}

// importDecl handles `import a.b.C;`. Java files are named after their
// public class, so the class name doubles as the module key.
func (w *javaWalker) importDecl(n *sitter.Node) {
	b := w.b
	target := firstChildOfType(n, "scoped_identifier", "identifier")
	if target == nil {
		return
	}
	full := b.text(target)
	wildcard := firstChildOfType(n, "asterisk") != nil
	name := lastSegment(full, ".")
	b.pending(graph.PendingReference{
		Kind:          graph.RefImportsModule,
		SourceID:      b.fileID,
		TargetModule:  name,
		OriginalAlias: full,
	})
	if wildcard {
		return
	}
	w.aliases[name] = importTarget{module: name, symbol: name, path: full}
	b.pending(graph.PendingReference{
		Kind:          graph.RefImportsSymbol,
		SourceID:      b.fileID,
		TargetModule:  name,
		TargetSymbol:  name,
		OriginalAlias: name,
	})
}

// typeDecl records a type declaration. Nested types have an owner and hang
// off it with DEFINES; only top-level types are contained and indexed.
func (w *javaWalker) typeDecl(n *sitter.Node, owner string) {
	b := w.b
	name := b.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	props := map[string]any{"declaration": n.Type()}
	if mods := firstChildOfType(n, "modifiers"); mods != nil {
		props["modifiers"] = canonicalize(b.text(mods))
	}
	classID := b.entity(graph.KindClass, string(graph.KindClass), name, n, props)
	if owner == "" {
		b.contains(classID)
		b.export(name, classID)
	} else {
		b.defines(owner, classID)
	}

	if super := n.ChildByFieldName("superclass"); super != nil {
		w.superclass(classID, super)
	}

	body := n.ChildByFieldName("body")
	for _, member := range namedChildren(body) {
		switch member.Type() {
		case "method_declaration", "constructor_declaration":
			w.method(classID, name, member)
		case "field_declaration":
			w.field(classID, member)
		case "enum_body_declarations":
			for _, inner := range namedChildren(member) {
				switch inner.Type() {
				case "method_declaration", "constructor_declaration":
					w.method(classID, name, inner)
				case "field_declaration":
					w.field(classID, inner)
				}
			}
		default:
			if javaTypeDecls[member.Type()] {
				w.typeDecl(member, classID)
			}
		}
	}
}

func (w *javaWalker) superclass(classID string, super *sitter.Node) {
	b := w.b
	typeNode := firstChildOfType(super, "type_identifier", "generic_type", "scoped_type_identifier")
	if typeNode == nil {
		return
	}
	if typeNode.Type() == "generic_type" {
		typeNode = firstChildOfType(typeNode, "type_identifier", "scoped_type_identifier")
		if typeNode == nil {
			return
		}
	}
	name := lastSegment(b.text(typeNode), ".")
	if imp, ok := w.aliases[name]; ok {
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
}

func (w *javaWalker) method(classID, className string, n *sitter.Node) {
	b := w.b
	name := b.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	props := map[string]any{
		"is_method":    true,
		"parent_class": className,
		"parameters":   w.params(n.ChildByFieldName("parameters")),
	}
	if n.Type() == "constructor_declaration" {
		props["is_constructor"] = true
	}
	if ret := n.ChildByFieldName("type"); ret != nil {
		props["return_type"] = b.text(ret)
	}
	if mods := firstChildOfType(n, "modifiers"); mods != nil {
		props["modifiers"] = canonicalize(b.text(mods))
	}
	id := b.entity(graph.KindMethod, string(graph.KindMethod), name, n, props)
	b.defines(classID, id)
	w.calls(id, n.ChildByFieldName("body"))
}

func (w *javaWalker) params(formal *sitter.Node) []string {
	params := []string{}
	for _, p := range namedChildren(formal) {
		if p.Type() != "formal_parameter" && p.Type() != "spread_parameter" {
			continue
		}
		nameNode := p.ChildByFieldName("name")
		if nameNode == nil {
			if decl := firstChildOfType(p, "variable_declarator"); decl != nil {
				nameNode = decl.ChildByFieldName("name")
			}
		}
		if nameNode != nil {
			params = append(params, w.b.text(nameNode))
		}
	}
	return params
}

func (w *javaWalker) field(classID string, n *sitter.Node) {
	b := w.b
	fieldType := b.text(n.ChildByFieldName("type"))
	for _, decl := range namedChildren(n) {
		if decl.Type() != "variable_declarator" {
			continue
		}
		name := b.text(decl.ChildByFieldName("name"))
		if name == "" {
			continue
		}
		id := b.entity(graph.KindClassVariable, VariablePrefix, name, n, map[string]any{"type": fieldType})
		b.defines(classID, id)
	}
}

func (w *javaWalker) calls(ownerID string, body *sitter.Node) {
	if body == nil {
		return
	}
	b := w.b
	findAll(body, "method_invocation", map[string]bool{"class_body": true}, func(call *sitter.Node) {
		method := b.text(call.ChildByFieldName("name"))
		if method == "" {
			return
		}
		obj := call.ChildByFieldName("object")
		if obj == nil {
			b.relate(ownerID, AssumedID(graph.KindMethod, b.path, method), graph.RelationCalls, nil)
			return
		}
		if obj.Type() != "identifier" && obj.Type() != "this" {
			return
		}
		objName := b.text(obj)
		if imp, ok := w.aliases[objName]; ok {
			b.pending(graph.PendingReference{
				Kind:          graph.RefCallsMethod,
				SourceID:      ownerID,
				TargetModule:  imp.module,
				TargetClass:   imp.symbol,
				TargetSymbol:  method,
				OriginalAlias: objName,
			})
			return
		}
		b.relate(ownerID, AssumedID(graph.KindMethod, b.path, method), graph.RelationCalls, map[string]any{"object": objName})
	})
}
