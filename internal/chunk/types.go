// Package chunk splits source files into semantically meaningful chunks.
//
// Splitting uses three strategies with a fixed fallback chain: a syntax-tree
// walk over top-level declarations, a bracket-balanced line scan, and a plain
// sliding line window. A post-processing pipeline then repairs, filters,
// merges, and overlaps the raw chunks; its pass order is load-bearing.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/codescope/codescope/internal/ident"
)

// Default sizing, in characters of chunk content.
const (
	DefaultChunkSize    = 1000
	DefaultOverlapSize  = 200
	DefaultMinChunkSize = 100
	DefaultMaxChunkSize = 4000

	// DefaultBoundaryWindow is how many lines a chunk boundary may move to
	// land on a blank line.
	DefaultBoundaryWindow = 3

	// DefaultCommentAttachLines bounds how many leading comment lines are
	// attached to the declaration that follows them.
	DefaultCommentAttachLines = 20

	// balanceRepairBudget is how many trailing lines the balance-fix pass may
	// trim before giving up on a chunk.
	balanceRepairBudget = 10
)

// Type classifies how a chunk was produced and what it covers.
type Type string

const (
	TypeFunction  Type = "function"
	TypeClass     Type = "class"
	TypeMethod    Type = "method"
	TypeStatement Type = "statement"
	TypeBracket   Type = "bracket"
	TypeLine      Type = "line"
	TypeFallback  Type = "fallback"
)

// Chunk is a contiguous span of source text indexed as a single vector point.
type Chunk struct {
	// ID is assigned by Finalize; deterministic from (projectID, relPath,
	// StartLine, EndLine, ContentHash).
	ID string

	// Content is the chunk text, including any injected overlap prefix.
	Content string

	// ContentHash is the SHA-256 of Content minus the overlap prefix, so a
	// re-index does not see overlap-shifted bytes as changes.
	ContentHash string

	StartLine int // 1-indexed, inclusive
	EndLine   int // inclusive
	Language  string
	Type      Type

	// NodeIDs identifies the syntax nodes the chunk covers.
	NodeIDs []string

	// Indivisible marks a single syntax node that cannot be split further;
	// such chunks are exempt from the minimum-size filter.
	Indivisible bool

	// OverlapLen is the number of leading characters copied from the
	// previous chunk by the overlap pass.
	OverlapLen int
}

// body returns the chunk content without the injected overlap prefix.
func (c *Chunk) body() string {
	if c.OverlapLen > 0 && c.OverlapLen <= len(c.Content) {
		return c.Content[c.OverlapLen:]
	}
	return c.Content
}

// Options configures splitting and post-processing.
type Options struct {
	ChunkSize      int // target chunk size, characters
	OverlapSize    int // overlap window, characters; 0 disables overlap
	MinChunkSize   int
	MaxChunkSize   int
	BoundaryWindow int
}

// withDefaults fills zero values.
func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.OverlapSize < 0 {
		o.OverlapSize = 0
	}
	if o.MinChunkSize <= 0 {
		o.MinChunkSize = DefaultMinChunkSize
	}
	if o.MaxChunkSize <= 0 {
		o.MaxChunkSize = DefaultMaxChunkSize
	}
	if o.BoundaryWindow <= 0 {
		o.BoundaryWindow = DefaultBoundaryWindow
	}
	return o
}

// Finalize computes content hashes and deterministic ids for a file's chunks.
// Must be called after post-processing, once line ranges are settled.
func Finalize(projectID, relPath string, chunks []*Chunk) {
	for _, c := range chunks {
		sum := sha256.Sum256([]byte(c.body()))
		c.ContentHash = hex.EncodeToString(sum[:])
		c.ID = ident.ChunkID(projectID, relPath, c.StartLine, c.EndLine, c.ContentHash)
	}
}
