package graph

import "strings"

type EntityKind string

const (
	KindFile           EntityKind = "File"
	KindClass          EntityKind = "Class"
	KindFunction       EntityKind = "Function"
	KindMethod         EntityKind = "Method"
	KindVariable       EntityKind = "Variable"
	KindClassVariable  EntityKind = "ClassVariable"
	KindLocalVariable  EntityKind = "LocalVariable"
	KindGlobalVariable EntityKind = "GlobalVariable"
)

type RelationKind string

const (
	RelationContains          RelationKind = "CONTAINS"
	RelationDefines           RelationKind = "DEFINES"
	RelationExtends           RelationKind = "EXTENDS"
	RelationCalls             RelationKind = "CALLS"
	RelationImportsFrom       RelationKind = "IMPORTS_FROM"
	RelationImportsDefinition RelationKind = "IMPORTS_DEFINITION"
)

// ReferenceKind classifies a cross-file fact recorded during extraction.
type ReferenceKind string

const (
	RefImportsModule ReferenceKind = "IMPORTS_MODULE"
	RefImportsSymbol ReferenceKind = "IMPORTS_SYMBOL"
	RefExtends       ReferenceKind = "EXTENDS"
	RefCalls         ReferenceKind = "CALLS"
	RefCallsMethod   ReferenceKind = "CALLS_METHOD"
)

// Entity is a node in the code graph.
// Properties must hold JSON-safe values only; they cross process
// boundaries and are persisted as JSON.
type Entity struct {
	ID         string         `json:"id"`
	Kind       EntityKind     `json:"kind"`
	Name       string         `json:"name"`
	FilePath   string         `json:"file_path"`
	StartLine  int            `json:"start_line"`
	EndLine    int            `json:"end_line,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Snippet    string         `json:"snippet,omitempty"`
}

// Labels mirrors the label set graph stores attach to a node.
func (e *Entity) Labels() []string {
	return []string{"Base", string(e.Kind)}
}

// Relation is a directed, typed edge. TargetID may dangle.
type Relation struct {
	SourceID   string         `json:"source_id"`
	TargetID   string         `json:"target_id"`
	Kind       RelationKind   `json:"kind"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Key is the dedup identity of a relation. IMPORTS_DEFINITION edges also
// carry the imported symbol so two symbols from one module stay distinct.
func (r Relation) Key() string {
	var b strings.Builder
	b.WriteString(r.SourceID)
	b.WriteByte('|')
	b.WriteString(string(r.Kind))
	b.WriteByte('|')
	b.WriteString(r.TargetID)
	if r.Kind == RelationImportsDefinition {
		if sym, ok := r.Properties["symbol"].(string); ok {
			b.WriteByte('|')
			b.WriteString(sym)
		}
	}
	return b.String()
}

// PendingReference is an unresolved cross-file fact produced in pass 1
// and consumed exactly once in pass 2.
type PendingReference struct {
	Kind          ReferenceKind `json:"kind"`
	SourceID      string        `json:"source_id"`
	TargetModule  string        `json:"target_module"`
	TargetSymbol  string        `json:"target_symbol,omitempty"`
	TargetClass   string        `json:"target_class,omitempty"`
	OriginalAlias string        `json:"original_alias,omitempty"`
}
