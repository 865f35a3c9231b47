// Package ident derives the deterministic identifiers used across the index:
// project ids, chunk ids, entity ids, and relationship ids. All ids are
// truncated hex SHA-256 digests so that re-indexing unchanged content always
// reproduces the same ids.
package ident

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// ProjectIDLength is the number of hex characters in a project id.
const ProjectIDLength = 16

// ProjectID derives a stable project id from the absolute project path.
// The path is cleaned and slash-normalized first so the same directory always
// maps to the same id regardless of how the caller spelled it.
func ProjectID(absPath string) string {
	norm := filepath.ToSlash(filepath.Clean(absPath))
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])[:ProjectIDLength]
}

// CollectionName returns the vector-store collection name for a project.
func CollectionName(projectID string) string {
	return "project-" + projectID
}

// SpaceName returns the graph-store space name for a project.
// Graph stores commonly forbid hyphens in space names, so underscores are used.
func SpaceName(projectID string) string {
	return "project_" + projectID
}

// FileHash returns the full SHA-256 hex digest of file content.
// The hash depends only on the bytes, never on the path.
func FileHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// ChunkID derives a chunk id from its identity tuple. Two chunks with the
// same project, path, line range, and content hash always share an id.
func ChunkID(projectID, relPath string, startLine, endLine int, contentHash string) string {
	key := fmt.Sprintf("%s\x00%s\x00%d\x00%d\x00%s", projectID, filepath.ToSlash(relPath), startLine, endLine, contentHash)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:32]
}

// EntityID derives an entity id from (kind, qualifiedName, filePath, startLine).
// The id is stable across re-indexing as long as that tuple is stable, which
// keeps vector payloads mergeable.
func EntityID(kind, qualifiedName, relPath string, startLine int) string {
	key := fmt.Sprintf("%s\x00%s\x00%s\x00%d", kind, qualifiedName, filepath.ToSlash(relPath), startLine)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:32]
}

// NodeID derives a syntax-node id from its location in a file.
func NodeID(relPath, nodeType string, startLine, endLine int) string {
	key := fmt.Sprintf("%s\x00%s\x00%d\x00%d", filepath.ToSlash(relPath), nodeType, startLine, endLine)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:32]
}

// RelationshipID derives a relationship id from its endpoints and type.
func RelationshipID(fromEntityID, toEntityID, relType string) string {
	key := strings.Join([]string{fromEntityID, toEntityID, relType}, "\x00")
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:32]
}
