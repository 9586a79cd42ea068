package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"codegraph/internal/graph"
	"codegraph/internal/index"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/zeebo/xxh3"
)

// DefaultMaxFileSize bounds the size of a single source file.
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// Per-file failures. None of them aborts a run.
var (
	ErrUnreadable      = errors.New("unreadable source file")
	ErrInvalidEncoding = errors.New("source is not valid UTF-8")
	ErrFileTooLarge    = errors.New("source file exceeds size limit")
	ErrSyntax          = errors.New("source has syntax errors")
	ErrAdapterPanic    = errors.New("adapter panicked")
)

type options struct {
	maxFileSize       int64
	allowSyntaxErrors bool
}

// Option configures an adapter.
type Option func(*options)

// WithMaxFileSize sets the largest file an adapter will parse.
func WithMaxFileSize(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxFileSize = n
		}
	}
}

// WithSyntaxErrors makes adapters extract what they can from trees that
// contain error nodes instead of rejecting the file.
func WithSyntaxErrors(allow bool) Option {
	return func(o *options) {
		o.allowSyntaxErrors = allow
	}
}

func buildOptions(opts []Option) options {
	o := options{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// walkFunc walks a parsed tree into the builder.
type walkFunc func(b *builder, root *sitter.Node)

// extract runs the shared read/parse/walk sequence. Every failure, including
// a panic inside walk, yields an empty result and a wrapped sentinel error.
func extract(ctx context.Context, path, language string, lang *sitter.Language, buildIndex bool, o options, walk walkFunc) (res *FileResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = NewFileResult(path, language)
			err = fmt.Errorf("%w: %s: %v", ErrAdapterPanic, path, r)
		}
	}()

	info, err := os.Stat(path)
	if err != nil {
		return NewFileResult(path, language), fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	if info.Size() > o.maxFileSize {
		return NewFileResult(path, language), fmt.Errorf("%w: %s (%d bytes)", ErrFileTooLarge, path, info.Size())
	}

	sourceCode, err := os.ReadFile(path)
	if err != nil {
		return NewFileResult(path, language), fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	if !utf8.Valid(sourceCode) {
		return NewFileResult(path, language), fmt.Errorf("%w: %s", ErrInvalidEncoding, path)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(ctx, nil, sourceCode)
	if err != nil {
		return NewFileResult(path, language), fmt.Errorf("failed to parse file %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() && !o.allowSyntaxErrors {
		return NewFileResult(path, language), fmt.Errorf("%w: %s", ErrSyntax, path)
	}

	b := newBuilder(path, language, sourceCode, buildIndex)
	walk(b, root)
	return b.result(), nil
}

// builder accumulates the facts of one file.
type builder struct {
	path       string
	language   string
	src        []byte
	fileID     string
	buildIndex bool

	res *FileResult
}

func newBuilder(path, language string, src []byte, buildIndex bool) *builder {
	b := &builder{
		path:       path,
		language:   language,
		src:        src,
		fileID:     FileID(path),
		buildIndex: buildIndex,
		res:        NewFileResult(path, language),
	}
	b.res.Graph.AddEntity(&graph.Entity{
		ID:        b.fileID,
		Kind:      graph.KindFile,
		Name:      filepath.Base(path),
		FilePath:  path,
		StartLine: 0,
		Properties: map[string]any{
			"language":     language,
			"content_hash": fmt.Sprintf("%016x", xxh3.Hash(src)),
		},
	})
	if buildIndex {
		b.res.Index = index.Contribution{
			Module:  index.ModuleName(path),
			FileID:  b.fileID,
			Symbols: map[string]string{},
		}
	}
	return b
}

func (b *builder) result() *FileResult {
	return b.res
}

// entity records an entity spanning node and returns its id.
func (b *builder) entity(kind graph.EntityKind, prefix, name string, node *sitter.Node, props map[string]any) string {
	line := startLine(node)
	id := EntityID(prefix, b.path, name, line)
	if props == nil {
		props = map[string]any{}
	}
	props["language"] = b.language
	b.res.Graph.AddEntity(&graph.Entity{
		ID:         id,
		Kind:       kind,
		Name:       name,
		FilePath:   b.path,
		StartLine:  line,
		EndLine:    endLine(node),
		Properties: props,
	})
	return id
}

// snippet attaches the node source text to an already recorded entity.
func (b *builder) snippet(id string, node *sitter.Node) {
	if e, ok := b.res.Graph.Entity(id); ok {
		e.Snippet = node.Content(b.src)
	}
}

// mark sets a property on every top-level entity of this file with the
// given name. Members with the same name are left alone.
func (b *builder) mark(name string, props map[string]any) {
	for _, e := range b.res.Graph.Entities() {
		if e.Name != name || e.Kind == graph.KindFile {
			continue
		}
		contains := graph.Relation{SourceID: b.fileID, TargetID: e.ID, Kind: graph.RelationContains}
		if !b.res.Graph.HasRelation(contains.Key()) {
			continue
		}
		for k, v := range props {
			e.Properties[k] = v
		}
	}
}

func (b *builder) relate(source, target string, kind graph.RelationKind, props map[string]any) {
	if len(props) == 0 {
		props = nil
	}
	b.res.Graph.AddRelation(graph.Relation{SourceID: source, TargetID: target, Kind: kind, Properties: props})
}

// contains links the file to a top-level entity.
func (b *builder) contains(id string) {
	b.relate(b.fileID, id, graph.RelationContains, nil)
}

func (b *builder) defines(owner, id string) {
	b.relate(owner, id, graph.RelationDefines, nil)
}

func (b *builder) pending(ref graph.PendingReference) {
	b.res.Pending = append(b.res.Pending, ref)
}

// export contributes a top-level symbol to the module index.
func (b *builder) export(name, id string) {
	if !b.buildIndex || name == "" {
		return
	}
	if _, ok := b.res.Index.Symbols[name]; ok {
		return
	}
	b.res.Index.Symbols[name] = id
}

func (b *builder) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(b.src)
}

func startLine(n *sitter.Node) int { return int(n.StartPoint().Row) + 1 }
func endLine(n *sitter.Node) int   { return int(n.EndPoint().Row) + 1 }

func children(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.ChildCount())
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func firstChildOfType(n *sitter.Node, types ...string) *sitter.Node {
	for _, c := range children(n) {
		for _, t := range types {
			if c.Type() == t {
				return c
			}
		}
	}
	return nil
}

// findAll visits every descendant of n (excluding n) in document order and
// calls fn for those of the given type. Subtrees rooted at a node whose type
// is in stop are not entered.
func findAll(n *sitter.Node, nodeType string, stop map[string]bool, fn func(*sitter.Node)) {
	for _, c := range children(n) {
		if c.Type() == nodeType {
			fn(c)
		}
		if stop[c.Type()] {
			continue
		}
		findAll(c, nodeType, stop, fn)
	}
}

// lastSegment returns the part of s after the final sep.
func lastSegment(s, sep string) string {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[i+len(sep):]
	}
	return s
}

// firstSegment returns the part of s before the first sep.
func firstSegment(s, sep string) string {
	head, _, _ := strings.Cut(s, sep)
	return head
}
