package extractor

import (
	"context"
	"strings"

	"codegraph/internal/graph"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// GoExtractor implements Adapter for Go. Structs and interfaces become
// Class entities; methods hang off their receiver type.
type GoExtractor struct {
	opts options
}

func NewGoExtractor(opts ...Option) *GoExtractor {
	return &GoExtractor{opts: buildOptions(opts)}
}

func (g *GoExtractor) Language() string     { return "go" }
func (g *GoExtractor) Extensions() []string { return []string{".go"} }

func (g *GoExtractor) Extract(ctx context.Context, path string, buildIndex bool) (*FileResult, error) {
	return extract(ctx, path, g.Language(), golang.GetLanguage(), buildIndex, g.opts, func(b *builder, root *sitter.Node) {
		w := &goWalker{b: b, imports: make(map[string]string), types: make(map[string]string)}
		w.walk(root)
	})
}

var goBuiltins = map[string]bool{
	"append": true, "cap": true, "clear": true, "close": true, "complex": true, "copy": true,
	"delete": true, "imag": true, "len": true, "make": true, "max": true, "min": true,
	"new": true, "panic": true, "print": true, "println": true, "real": true, "recover": true,
}

type goWalker struct {
	b       *builder
	imports map[string]string // local package name -> module
	types   map[string]string // type name -> Class id
}

func (w *goWalker) walk(root *sitter.Node) {
	findAll(root, "import_spec", nil, w.importSpec)

	for _, decl := range namedChildren(root) {
		if decl.Type() != "type_declaration" {
			continue
		}
		for _, spec := range namedChildren(decl) {
			if spec.Type() == "type_spec" {
				w.typeSpec(decl, spec)
			}
		}
	}

	for _, decl := range namedChildren(root) {
		switch decl.Type() {
		case "function_declaration":
			w.function(decl)
		case "method_declaration":
			w.method(decl)
		case "const_declaration", "var_declaration":
			declType := "const"
			if decl.Type() == "var_declaration" {
				declType = "var"
			}
			findAll(decl, strings.Replace(decl.Type(), "_declaration", "_spec", 1), nil, func(spec *sitter.Node) {
				w.valueSpec(decl, spec, declType)
			})
		}
	}
}

func (w *goWalker) importSpec(spec *sitter.Node) {
	b := w.b
	importPath := strings.Trim(b.text(spec.ChildByFieldName("path")), "\"`")
	if importPath == "" {
		return
	}
	module := lastSegment(importPath, "/")
	alias := module
	if nameNode := spec.ChildByFieldName("name"); nameNode != nil {
		switch n := b.text(nameNode); n {
		case "_", ".":
		default:
			alias = n
		}
	}
	w.imports[alias] = module
	b.pending(graph.PendingReference{
		Kind:          graph.RefImportsModule,
		SourceID:      b.fileID,
		TargetModule:  module,
		OriginalAlias: importPath,
	})
}

func (w *goWalker) typeSpec(decl, spec *sitter.Node) {
	b := w.b
	name := b.text(spec.ChildByFieldName("name"))
	typeNode := spec.ChildByFieldName("type")
	if name == "" || typeNode == nil {
		return
	}
	var typeKind string
	switch typeNode.Type() {
	case "struct_type":
		typeKind = "struct"
	case "interface_type":
		typeKind = "interface"
	default:
		return
	}

	props := map[string]any{"type_kind": typeKind}
	if doc := w.extractDocComment(decl); doc != "" {
		props["doc"] = doc
	}
	classID := b.entity(graph.KindClass, string(graph.KindClass), name, decl, props)
	b.snippet(classID, decl)
	b.contains(classID)
	b.export(name, classID)
	w.types[name] = classID

	if typeKind == "struct" {
		w.structFields(classID, typeNode)
	}
}

// structFields records each named or embedded field as a ClassVariable.
func (w *goWalker) structFields(classID string, structNode *sitter.Node) {
	b := w.b
	fieldList := firstChildOfType(structNode, "field_declaration_list")
	for _, fieldDecl := range namedChildren(fieldList) {
		if fieldDecl.Type() != "field_declaration" {
			continue
		}
		fieldType := b.text(fieldDecl.ChildByFieldName("type"))
		props := map[string]any{"type": fieldType}
		if tag := b.text(fieldDecl.ChildByFieldName("tag")); tag != "" {
			props["tag"] = tag
		}

		foundNames := false
		for _, child := range namedChildren(fieldDecl) {
			if child.Type() != "field_identifier" {
				continue
			}
			id := b.entity(graph.KindClassVariable, string(graph.KindClassVariable), b.text(child), fieldDecl, copyProps(props))
			b.defines(classID, id)
			foundNames = true
		}

		if !foundNames && fieldType != "" {
			name := lastSegment(fieldType, ".")
			name = strings.TrimPrefix(name, "*")
			props["embedded"] = true
			id := b.entity(graph.KindClassVariable, string(graph.KindClassVariable), name, fieldDecl, props)
			b.defines(classID, id)
		}
	}
}

func (w *goWalker) function(node *sitter.Node) {
	b := w.b
	name := b.text(node.ChildByFieldName("name"))
	if name == "" {
		return
	}
	props := w.signatureProps(node)
	props["is_method"] = false
	id := b.entity(graph.KindFunction, string(graph.KindFunction), name, node, props)
	b.snippet(id, node)
	b.contains(id)
	b.export(name, id)
	w.calls(id, node.ChildByFieldName("body"))
}

func (w *goWalker) method(node *sitter.Node) {
	b := w.b
	name := b.text(node.ChildByFieldName("name"))
	receiverNode := node.ChildByFieldName("receiver")
	if name == "" || receiverNode == nil {
		return
	}
	receiverType := w.receiverType(receiverNode)
	if receiverType == "" {
		return
	}

	props := w.signatureProps(node)
	props["is_method"] = true
	props["receiver"] = b.text(receiverNode)
	props["parent_class"] = receiverType
	id := b.entity(graph.KindMethod, string(graph.KindMethod), name, node, props)
	b.snippet(id, node)

	owner, ok := w.types[receiverType]
	if !ok {
		owner = AssumedID(graph.KindClass, b.path, receiverType)
	}
	b.defines(owner, id)
	w.calls(id, node.ChildByFieldName("body"))
}

// receiverType returns T for receivers of the form (t T), (t *T) or (t T[K]).
func (w *goWalker) receiverType(receiver *sitter.Node) string {
	param := firstChildOfType(receiver, "parameter_declaration")
	if param == nil {
		return ""
	}
	typeNode := param.ChildByFieldName("type")
	for typeNode != nil {
		switch typeNode.Type() {
		case "type_identifier":
			return w.b.text(typeNode)
		case "pointer_type", "generic_type":
			typeNode = typeNode.NamedChild(0)
		default:
			return ""
		}
	}
	return ""
}

func (w *goWalker) signatureProps(node *sitter.Node) map[string]any {
	b := w.b
	props := map[string]any{}
	if doc := w.extractDocComment(node); doc != "" {
		props["doc"] = doc
	}
	if paramsNode := node.ChildByFieldName("parameters"); paramsNode != nil {
		props["parameters"] = w.extractParams(paramsNode)
	}
	if resultNode := node.ChildByFieldName("result"); resultNode != nil {
		props["returns"] = w.extractReturns(resultNode)
	}
	if bodyNode := node.ChildByFieldName("body"); bodyNode != nil {
		props["signature"] = canonicalize(string(b.src[node.StartByte():bodyNode.StartByte()]))
	} else {
		props["signature"] = canonicalize(b.text(node))
	}
	return props
}

// valueSpec records every name of a spec, so `var a, b = 1, 2` yields two
// variables.
func (w *goWalker) valueSpec(decl, spec *sitter.Node, declType string) {
	b := w.b
	var names []string
	for _, child := range namedChildren(spec) {
		if child.Type() != "identifier" {
			continue
		}
		if name := b.text(child); name != "_" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return
	}
	props := map[string]any{"declaration_type": declType}
	doc := w.extractDocComment(spec)
	if doc == "" {
		doc = w.extractDocComment(decl)
	}
	if doc != "" {
		props["doc"] = doc
	}
	if typeNode := spec.ChildByFieldName("type"); typeNode != nil {
		props["type"] = b.text(typeNode)
	}
	if valueNode := spec.ChildByFieldName("value"); valueNode != nil {
		props["value"] = b.text(valueNode)
	}
	for _, name := range names {
		id := b.entity(graph.KindVariable, string(graph.KindVariable), name, spec, copyProps(props))
		b.contains(id)
	}
}

func (w *goWalker) calls(ownerID string, body *sitter.Node) {
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
			name := b.text(fn)
			if goBuiltins[name] {
				return
			}
			b.relate(ownerID, AssumedID(graph.KindFunction, b.path, name), graph.RelationCalls, nil)
		case "selector_expression":
			operand := fn.ChildByFieldName("operand")
			field := b.text(fn.ChildByFieldName("field"))
			if operand == nil || operand.Type() != "identifier" || field == "" {
				return
			}
			objName := b.text(operand)
			if module, ok := w.imports[objName]; ok {
				b.pending(graph.PendingReference{
					Kind:          graph.RefCalls,
					SourceID:      ownerID,
					TargetModule:  module,
					TargetSymbol:  field,
					OriginalAlias: objName,
				})
				return
			}
			b.relate(ownerID, AssumedID(graph.KindMethod, b.path, field), graph.RelationCalls, map[string]any{"object": objName})
		}
	})
}

func (w *goWalker) extractDocComment(node *sitter.Node) string {
	var commentLines []string
	currentNode := node
	for {
		prevSibling := currentNode.PrevSibling()
		if prevSibling == nil || (currentNode.StartPoint().Row-prevSibling.EndPoint().Row > 1) {
			break
		}
		if prevSibling.Type() != "comment" {
			break
		}
		commentLines = append([]string{w.b.text(prevSibling)}, commentLines...)
		currentNode = prevSibling
	}
	return cleanDocComment(strings.Join(commentLines, "\n"))
}

// extractParams returns "name type" strings, one per declared name.
func (w *goWalker) extractParams(paramsNode *sitter.Node) []string {
	b := w.b
	params := []string{}
	for _, pNode := range namedChildren(paramsNode) {
		if pNode.Type() != "parameter_declaration" && pNode.Type() != "variadic_parameter_declaration" {
			continue
		}
		pType := b.text(pNode.ChildByFieldName("type"))
		if pNode.Type() == "variadic_parameter_declaration" {
			pType = "..." + pType
		}
		var names []string
		for _, c := range namedChildren(pNode) {
			if c.Type() == "identifier" {
				names = append(names, b.text(c))
			}
		}
		if len(names) == 0 {
			params = append(params, pType)
			continue
		}
		for _, n := range names {
			params = append(params, n+" "+pType)
		}
	}
	return params
}

func (w *goWalker) extractReturns(resultNode *sitter.Node) []string {
	if resultNode.Type() == "parameter_list" {
		return w.extractParams(resultNode)
	}
	return []string{w.b.text(resultNode)}
}

func cleanDocComment(rawComment string) string {
	if rawComment == "" {
		return ""
	}
	lines := strings.Split(rawComment, "\n")
	var cleaned []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		l = strings.TrimPrefix(l, "//")
		l = strings.TrimPrefix(l, "/*")
		l = strings.TrimSuffix(l, "*/")
		cleaned = append(cleaned, strings.TrimSpace(l))
	}
	return strings.Join(cleaned, "\n")
}

func copyProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
