package extract

import (
	"context"
	"path"

	"github.com/codescope/codescope/internal/chunk"
	"github.com/codescope/codescope/internal/ident"
)

// adapter translates one language's node patterns into entities and
// references on the builder.
type adapter interface {
	extract(tree *chunk.Tree, fileID string, b *builder)
}

// Extractor derives entities and relationships from parsed files.
type Extractor struct {
	parser   *chunk.Parser
	adapters map[string]adapter
}

// New creates an extractor with the built-in language adapters.
func New() *Extractor {
	goAdapter := goLang{}
	js := jsLang{}
	py := pyLang{}
	return &Extractor{
		parser: chunk.NewParser(),
		adapters: map[string]adapter{
			"go":         goAdapter,
			"python":     py,
			"javascript": js,
			"jsx":        js,
			"typescript": js,
			"tsx":        js,
		},
	}
}

// Supports reports whether extraction is available for a language.
func (e *Extractor) Supports(language string) bool {
	_, ok := e.adapters[language]
	return ok
}

// Extract parses the file and returns its entities and relationships. The
// file itself is always emitted as an entity; languages without an adapter
// yield just that. Chunks are used to attribute each entity to the chunk
// covering its declaration.
func (e *Extractor) Extract(ctx context.Context, content []byte, language, relPath string, chunks []*chunk.Chunk) ([]*Entity, []*Relationship) {
	b := newBuilder(relPath, content, chunks)
	fileEntity := &Entity{
		ID:            ident.EntityID(string(KindFile), relPath, relPath, 1),
		Kind:          KindFile,
		Name:          path.Base(relPath),
		QualifiedName: relPath,
		RelPath:       relPath,
		StartLine:     1,
		EndLine:       1 + countLines(content),
	}
	b.entities = append(b.entities, fileEntity)
	b.byID[fileEntity.ID] = fileEntity

	if a, ok := e.adapters[language]; ok {
		// A parse failure degrades to file-level extraction only.
		if tree, err := e.parser.Parse(ctx, content, language); err == nil {
			a.extract(tree, fileEntity.ID, b)
		}
	}
	return b.finish()
}

func countLines(content []byte) int {
	n := 0
	for _, c := range content {
		if c == '\n' {
			n++
		}
	}
	return n
}
