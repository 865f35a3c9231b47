// Package extract derives typed entities and relationships from syntax
// trees. Language adapters translate node patterns into symbols; unknown
// constructs are ignored rather than treated as errors.
package extract

// Kind classifies an extracted entity.
type Kind string

const (
	KindFile     Kind = "file"
	KindModule   Kind = "module"
	KindFunction Kind = "function"
	KindMethod   Kind = "method"
	KindClass    Kind = "class"
	KindType     Kind = "type"
	KindVariable Kind = "variable"
	KindField    Kind = "field"
)

// Category groups relationship types.
type Category string

const (
	CategoryStructural Category = "structural"
	CategoryBehavioral Category = "behavioral"
)

// Relationship types persisted as graph edge labels.
const (
	RelContains   = "CONTAINS"
	RelImports    = "IMPORTS"
	RelCalls      = "CALLS"
	RelExtends    = "EXTENDS"
	RelImplements = "IMPLEMENTS"
	RelReferences = "REFERENCES"
)

// Entity is a semantic symbol derived from source.
type Entity struct {
	ID            string
	Kind          Kind
	Name          string
	QualifiedName string
	RelPath       string
	StartLine     int // 1-indexed
	EndLine       int
	SourceChunkID string
}

// Relationship is a typed directed edge between two entities. Both endpoints
// are always entities extracted from the same file, so a delete by source
// path never leaves dangling edges.
type Relationship struct {
	ID       string
	From     string
	To       string
	Category Category
	Type     string
	Metadata map[string]string
}

// categoryOf maps a relationship type to its category.
func categoryOf(relType string) Category {
	switch relType {
	case RelContains, RelImports:
		return CategoryStructural
	default:
		return CategoryBehavioral
	}
}
