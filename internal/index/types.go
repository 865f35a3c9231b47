// Package index runs indexing jobs: full walks, incremental plans, and
// watcher-driven updates, committing chunks to the vector store and
// entities to the graph store.
package index

import (
	"context"
	"time"

	"github.com/codescope/codescope/internal/chunk"
	"github.com/codescope/codescope/internal/extract"
	"github.com/codescope/codescope/internal/graphstore"
	"github.com/codescope/codescope/internal/vectorstore"
)

// State is the lifecycle state of an indexing job.
type State string

const (
	StateIdle      State = "idle"
	StatePlanning  State = "planning"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Progress is a per-file progress event emitted while a job runs.
type Progress struct {
	ProjectID   string
	State       State
	CurrentPath string
	Done        int
	Skipped     int
	Failed      int
	Total       int
}

// Result summarizes a finished job.
type Result struct {
	ProjectID string
	State     State
	Files     int
	Unchanged int
	Failed    int
	Chunks    int
	Entities  int
	Duration  time.Duration
}

// VectorStore is the slice of the vector client the pipeline needs.
type VectorStore interface {
	EnsureCollection(ctx context.Context, name string, dim int) error
	DeleteCollection(ctx context.Context, name string) error
	UpsertPoints(ctx context.Context, name string, points []vectorstore.Point) error
	DeleteByFilter(ctx context.Context, name string, filter vectorstore.Filter) error
}

// GraphStore is the slice of the graph client the pipeline needs.
type GraphStore interface {
	EnsureSpace(ctx context.Context, space string) error
	DropSpace(ctx context.Context, space string) error
	UpsertVertices(ctx context.Context, space string, vertices []graphstore.Vertex) error
	UpsertEdges(ctx context.Context, space string, edges []graphstore.Edge) error
	DeleteBySourcePath(ctx context.Context, space, relPath string) error
}

// vertexFromEntity maps an extracted entity onto its graph vertex.
func vertexFromEntity(e *extract.Entity) graphstore.Vertex {
	return graphstore.Vertex{
		ID:                 e.ID,
		Kind:               string(e.Kind),
		Name:               e.Name,
		QualifiedName:      e.QualifiedName,
		SourceRelativePath: e.RelPath,
		StartLine:          e.StartLine,
		EndLine:            e.EndLine,
		ChunkID:            e.SourceChunkID,
	}
}

// edgeFromRelationship maps an extracted relationship onto its graph edge.
func edgeFromRelationship(r *extract.Relationship) graphstore.Edge {
	return graphstore.Edge{
		ID:       r.ID,
		From:     r.From,
		To:       r.To,
		Type:     r.Type,
		Category: string(r.Category),
	}
}

// pointFromChunk maps a finalized chunk onto its vector point payload.
func pointFromChunk(projectID, relPath string, c *chunk.Chunk, vector []float32) vectorstore.Point {
	return vectorstore.Point{
		ID:     c.ID,
		Vector: vector,
		Payload: map[string]any{
			vectorstore.FieldProjectID:    projectID,
			vectorstore.FieldRelativePath: relPath,
			vectorstore.FieldStartLine:    c.StartLine,
			vectorstore.FieldEndLine:      c.EndLine,
			vectorstore.FieldChunkType:    string(c.Type),
			vectorstore.FieldLanguage:     c.Language,
			vectorstore.FieldContentHash:  c.ContentHash,
			vectorstore.FieldContent:      c.Content,
		},
	}
}
