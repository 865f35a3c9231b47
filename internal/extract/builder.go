package extract

import (
	"github.com/codescope/codescope/internal/chunk"
	"github.com/codescope/codescope/internal/ident"
)

// refKind distinguishes deferred references by how unresolved targets are
// handled: type references materialize a placeholder entity, call references
// are dropped.
type refKind int

const (
	refCall refKind = iota
	refType
)

// ref is a deferred relationship whose target is known only by name until
// all of the file's entities have been collected.
type ref struct {
	kind    refKind
	fromID  string
	name    string
	relType string
	line    int

	// reverse makes the resolved target the edge source instead of the
	// destination (used for ownership edges like type CONTAINS method).
	reverse bool
}

// builder accumulates one file's entities and relationships. Adapters add
// entities and name references; finish resolves references against the
// collected symbol table.
type builder struct {
	relPath  string
	source   []byte
	chunks   []*chunk.Chunk
	entities []*Entity
	rels     []*Relationship
	byID     map[string]*Entity
	byName   map[string]*Entity // simple name -> first declaration
	relSeen  map[string]bool
	refs     []ref
}

func newBuilder(relPath string, source []byte, chunks []*chunk.Chunk) *builder {
	return &builder{
		relPath: relPath,
		source:  source,
		chunks:  chunks,
		byID:    make(map[string]*Entity),
		byName:  make(map[string]*Entity),
		relSeen: make(map[string]bool),
	}
}

// addEntity registers an entity, deduplicating by deterministic id.
func (b *builder) addEntity(kind Kind, name, qualifiedName string, startLine, endLine int) *Entity {
	if qualifiedName == "" {
		qualifiedName = name
	}
	id := ident.EntityID(string(kind), qualifiedName, b.relPath, startLine)
	if existing, ok := b.byID[id]; ok {
		return existing
	}
	e := &Entity{
		ID:            id,
		Kind:          kind,
		Name:          name,
		QualifiedName: qualifiedName,
		RelPath:       b.relPath,
		StartLine:     startLine,
		EndLine:       endLine,
		SourceChunkID: b.chunkAt(startLine),
	}
	b.entities = append(b.entities, e)
	b.byID[id] = e
	if _, ok := b.byName[name]; !ok && kind != KindFile && kind != KindModule {
		b.byName[name] = e
	}
	return e
}

// addRel records a relationship between two known entities.
func (b *builder) addRel(fromID, toID, relType string, metadata map[string]string) {
	if fromID == "" || toID == "" || fromID == toID {
		return
	}
	id := ident.RelationshipID(fromID, toID, relType)
	if b.relSeen[id] {
		return
	}
	b.relSeen[id] = true
	b.rels = append(b.rels, &Relationship{
		ID:       id,
		From:     fromID,
		To:       toID,
		Category: categoryOf(relType),
		Type:     relType,
		Metadata: metadata,
	})
}

// addRef defers a relationship whose target is known only by name.
func (b *builder) addRef(kind refKind, fromID, name, relType string, line int) {
	if fromID == "" || name == "" {
		return
	}
	b.refs = append(b.refs, ref{kind: kind, fromID: fromID, name: name, relType: relType, line: line})
}

// addReverseRef defers a relationship where the named symbol is the edge
// source once resolved.
func (b *builder) addReverseRef(kind refKind, toID, name, relType string, line int) {
	if toID == "" || name == "" {
		return
	}
	b.refs = append(b.refs, ref{kind: kind, fromID: toID, name: name, relType: relType, line: line, reverse: true})
}

// chunkAt returns the id of the chunk covering the given line, or "".
func (b *builder) chunkAt(line int) string {
	for _, c := range b.chunks {
		if line >= c.StartLine && line <= c.EndLine {
			return c.ID
		}
	}
	return ""
}

// finish resolves deferred references. Call targets that do not resolve to a
// symbol in this file are dropped; unresolved type targets get a placeholder
// type entity at the referencing line so the edge endpoints always exist.
func (b *builder) finish() ([]*Entity, []*Relationship) {
	for _, r := range b.refs {
		target, ok := b.byName[r.name]
		if !ok {
			if r.kind == refCall {
				continue
			}
			target = b.addEntity(KindType, r.name, r.name, r.line, r.line)
		}
		if r.reverse {
			b.addRel(target.ID, r.fromID, r.relType, nil)
		} else {
			b.addRel(r.fromID, target.ID, r.relType, nil)
		}
	}
	return b.entities, b.rels
}

// nodeText returns the source text of a node.
func (b *builder) nodeText(n *chunk.Node) string {
	return n.Content(b.source)
}

// firstChild returns the first direct child matching any of the given types.
func firstChild(n *chunk.Node, types ...string) *chunk.Node {
	for _, child := range n.Children {
		for _, t := range types {
			if child.Type == t {
				return child
			}
		}
	}
	return nil
}

// findDescendant returns the first descendant (depth-first) matching any of
// the given types.
func findDescendant(n *chunk.Node, types ...string) *chunk.Node {
	var found *chunk.Node
	n.Walk(func(node *chunk.Node) bool {
		if found != nil {
			return false
		}
		if node != n {
			for _, t := range types {
				if node.Type == t {
					found = node
					return false
				}
			}
		}
		return true
	})
	return found
}

func startLine(n *chunk.Node) int { return int(n.StartRow) + 1 }
func endLine(n *chunk.Node) int   { return int(n.EndRow) + 1 }
