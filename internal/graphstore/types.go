// Package graphstore is a FalkorDB client scoped to per-project spaces:
// lifecycle, idempotent schema bootstrap, and batched vertex/edge writes.
package graphstore

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultAddr    = "localhost:6379"
	DefaultTimeout = 10 * time.Second

	// vertexLabel is the single label all entities carry; the kind lives in
	// a property so deletes by source path need no per-label queries.
	vertexLabel = "Entity"
)

// Vertex is one entity node. Fields are serialized in a fixed order so the
// generated Cypher is deterministic.
type Vertex struct {
	ID                 string
	Kind               string
	Name               string
	QualifiedName      string
	SourceRelativePath string
	StartLine          int
	EndLine            int
	ChunkID            string
}

// Edge is one typed relationship between two vertices. Both endpoints must
// be written before the edge.
type Edge struct {
	ID       string
	From     string
	To       string
	Type     string
	Category string
}

// Config configures the client.
type Config struct {
	Addr     string
	Password string
	Timeout  time.Duration
}

// escape escapes single quotes and backslashes for Cypher string literals.
func escape(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '\'':
			b.WriteString("\\'")
		case '\\':
			b.WriteString("\\\\")
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

func (v Vertex) literal() string {
	return fmt.Sprintf(
		"{id:'%s',kind:'%s',name:'%s',qualifiedName:'%s',sourceRelativePath:'%s',startLine:%d,endLine:%d,chunkId:'%s'}",
		escape(v.ID), escape(v.Kind), escape(v.Name), escape(v.QualifiedName),
		escape(v.SourceRelativePath), v.StartLine, v.EndLine, escape(v.ChunkID),
	)
}

func (e Edge) literal() string {
	return fmt.Sprintf(
		"{id:'%s',from:'%s',to:'%s',category:'%s'}",
		escape(e.ID), escape(e.From), escape(e.To), escape(e.Category),
	)
}

// validEdgeType guards edge type names interpolated as Cypher labels.
func validEdgeType(t string) bool {
	if t == "" {
		return false
	}
	for _, c := range t {
		if (c < 'A' || c > 'Z') && c != '_' {
			return false
		}
	}
	return true
}
