package chunk

import (
	"context"
	"strings"

	"github.com/codescope/codescope/internal/ident"
)

// Splitter produces chunks from file content. Strategy selection follows a
// fixed fallback chain: syntax-tree walk when the language has a grammar,
// bracket-balanced scanning when parsing fails or the language is unknown,
// and a sliding line window as the last resort. A Splitter is safe for
// concurrent use; indexing workers share one instance.
type Splitter struct {
	parser   *Parser
	registry *LanguageRegistry
	opts     Options
}

// NewSplitter creates a splitter with the shared language registry.
func NewSplitter(opts Options) *Splitter {
	return &Splitter{
		parser:   NewParser(),
		registry: DefaultRegistry(),
		opts:     opts.withDefaults(),
	}
}

// Split chunks one file. The returned chunks are raw; callers run them
// through Process and Finalize.
func (s *Splitter) Split(ctx context.Context, content []byte, language, relPath string) []*Chunk {
	if len(strings.TrimSpace(string(content))) == 0 {
		return nil
	}
	lines := strings.Split(string(content), "\n")

	if s.registry.Supports(language) {
		tree, err := s.parser.Parse(ctx, content, language)
		if err == nil {
			if chunks := s.astSplit(tree, lines, language, relPath); len(chunks) > 0 {
				return chunks
			}
		}
	}

	if chunks := s.bracketSplit(lines, 0, language, TypeBracket); len(chunks) > 0 {
		return chunks
	}
	return s.lineSplit(lines, language, TypeLine)
}

// ChunkFile runs the full pipeline for one file: split, post-process, and
// assign deterministic ids.
func (s *Splitter) ChunkFile(ctx context.Context, projectID, relPath string, content []byte, language string) []*Chunk {
	chunks := s.Split(ctx, content, language, relPath)
	if len(chunks) == 0 {
		return nil
	}
	chunks = s.Process(strings.Split(string(content), "\n"), chunks)
	Finalize(projectID, relPath, chunks)
	return chunks
}

// astSplit walks top-level declarations of the syntax tree. Declarations
// within the size bound become one chunk each; oversized nodes are split
// through their children, bottoming out in a bracket scan. Top-level content
// between declarations accumulates into statement runs.
func (s *Splitter) astSplit(tree *Tree, lines []string, language, relPath string) []*Chunk {
	config, ok := s.registry.GetByName(language)
	if !ok {
		return nil
	}

	var chunks []*Chunk
	var pendingComments []*Node
	var run []*Node // statement run between declarations

	flushRun := func() {
		if len(run) == 0 {
			return
		}
		chunks = append(chunks, s.chunksFromRun(run, lines, language, relPath)...)
		run = nil
	}

	for _, node := range tree.Root.Children {
		if config.isComment(node.Type) {
			pendingComments = append(pendingComments, node)
			continue
		}

		declType := config.declarationType(node.Type)
		if declType == "" {
			// Imports and loose statements join the current run, along with
			// any comments that preceded them.
			run = append(run, pendingComments...)
			pendingComments = nil
			run = append(run, node)
			continue
		}

		flushRun()
		startLine := int(node.StartRow) + 1
		if attach := commentAttachLine(pendingComments, node); attach > 0 {
			startLine = attach
		}
		pendingComments = nil

		if node.Span() <= s.opts.MaxChunkSize {
			chunks = append(chunks, s.chunkFromLines(lines, startLine, int(node.EndRow)+1, language, declType, true,
				ident.NodeID(relPath, node.Type, int(node.StartRow)+1, int(node.EndRow)+1)))
			continue
		}
		chunks = append(chunks, s.splitOversized(node, lines, language, relPath, declType)...)
	}
	run = append(run, pendingComments...)
	flushRun()

	return chunks
}

// commentAttachLine returns the 1-indexed start line of the comment block to
// attach to node, or 0 when no comments attach. Comments attach when they sit
// directly above the declaration, allowing blank-separated groups up to the
// attach budget.
func commentAttachLine(comments []*Node, node *Node) int {
	if len(comments) == 0 {
		return 0
	}
	last := comments[len(comments)-1]
	// More than one blank line between comment and declaration breaks the
	// attachment.
	if int(node.StartRow)-int(last.EndRow) > 2 {
		return 0
	}
	start := len(comments) - 1
	for start > 0 {
		prev := comments[start-1]
		if int(comments[start].StartRow)-int(prev.EndRow) > 2 {
			break
		}
		start--
	}
	attachStart := int(comments[start].StartRow) + 1
	if int(node.StartRow)+1-attachStart > DefaultCommentAttachLines {
		attachStart = int(node.StartRow) + 1 - DefaultCommentAttachLines
	}
	return attachStart
}

// splitOversized recurses into an oversized declaration. Children that are
// themselves declarations or sized containers become chunks; a node with no
// splittable children falls back to a bracket scan over its own lines.
func (s *Splitter) splitOversized(node *Node, lines []string, language, relPath string, declType Type) []*Chunk {
	splittable := make([]*Node, 0, len(node.Children))
	for _, child := range node.Children {
		if child.Span() > 0 && int(child.EndRow) > int(child.StartRow) {
			splittable = append(splittable, child)
		}
	}
	if len(splittable) == 0 {
		return s.bracketSplit(lines[node.StartRow:node.EndRow+1], int(node.StartRow), language, TypeBracket)
	}

	config, _ := s.registry.GetByName(language)
	var chunks []*Chunk
	for _, child := range splittable {
		childType := TypeStatement
		if config != nil {
			if t := config.declarationType(child.Type); t != "" {
				childType = t
			}
		}
		if child.Span() <= s.opts.MaxChunkSize {
			chunks = append(chunks, s.chunkFromLines(lines, int(child.StartRow)+1, int(child.EndRow)+1, language, childType, true,
				ident.NodeID(relPath, child.Type, int(child.StartRow)+1, int(child.EndRow)+1)))
			continue
		}
		chunks = append(chunks, s.splitOversized(child, lines, language, relPath, childType)...)
	}
	if len(chunks) == 0 {
		return s.bracketSplit(lines[node.StartRow:node.EndRow+1], int(node.StartRow), language, TypeBracket)
	}
	return chunks
}

// chunksFromRun turns a run of loose top-level nodes into statement chunks.
func (s *Splitter) chunksFromRun(run []*Node, lines []string, language, relPath string) []*Chunk {
	startLine := int(run[0].StartRow) + 1
	endLine := int(run[len(run)-1].EndRow) + 1
	nodeIDs := make([]string, 0, len(run))
	for _, n := range run {
		nodeIDs = append(nodeIDs, ident.NodeID(relPath, n.Type, int(n.StartRow)+1, int(n.EndRow)+1))
	}

	c := s.chunkFromLines(lines, startLine, endLine, language, TypeStatement, false, nodeIDs...)
	if len(c.Content) <= s.opts.MaxChunkSize {
		return []*Chunk{c}
	}
	return s.bracketSplit(lines[startLine-1:endLine], startLine-1, language, TypeBracket)
}

// chunkFromLines builds a chunk from 1-indexed inclusive line bounds.
func (s *Splitter) chunkFromLines(lines []string, startLine, endLine int, language string, chunkType Type, indivisible bool, nodeIDs ...string) *Chunk {
	if startLine < 1 {
		startLine = 1
	}
	if endLine > len(lines) {
		endLine = len(lines)
	}
	return &Chunk{
		Content:     strings.Join(lines[startLine-1:endLine], "\n"),
		StartLine:   startLine,
		EndLine:     endLine,
		Language:    language,
		Type:        chunkType,
		NodeIDs:     nodeIDs,
		Indivisible: indivisible,
	}
}
