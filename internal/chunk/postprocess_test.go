package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawChunk(lines []string, startLine, endLine int, typ Type) *Chunk {
	return &Chunk{
		Content:   strings.Join(lines[startLine-1:endLine], "\n"),
		StartLine: startLine,
		EndLine:   endLine,
		Language:  "go",
		Type:      typ,
	}
}

func TestFixBalanceTrimsUnclosedTail(t *testing.T) {
	s := testSplitter(t, Options{MinChunkSize: 1})

	c := &Chunk{
		Content:   "func f() {\n\treturn 1\n}\nfunc g() {",
		StartLine: 1,
		EndLine:   4,
		Type:      TypeBracket,
	}
	out := s.fixBalance([]*Chunk{c})
	require.Len(t, out, 1)
	assert.Equal(t, "func f() {\n\treturn 1\n}", out[0].Content)
	assert.Equal(t, 3, out[0].EndLine)
	assert.Zero(t, contentDepth(out[0].Content))
}

func TestFixBalanceDropsUnrepairable(t *testing.T) {
	s := testSplitter(t, Options{MinChunkSize: 1})

	// Every line opens a scope; trimming within the budget never balances.
	var lines []string
	for i := 0; i < balanceRepairBudget+5; i++ {
		lines = append(lines, "block {")
	}
	c := &Chunk{Content: strings.Join(lines, "\n"), StartLine: 1, EndLine: len(lines), Type: TypeBracket}
	assert.Empty(t, s.fixBalance([]*Chunk{c}))
}

func TestFixBalanceSkipsLineChunks(t *testing.T) {
	s := testSplitter(t, Options{MinChunkSize: 1})

	c := &Chunk{Content: "opener {", StartLine: 1, EndLine: 1, Type: TypeLine}
	out := s.fixBalance([]*Chunk{c})
	require.Len(t, out, 1)
	assert.Equal(t, "opener {", out[0].Content)
}

func TestFilterDropsSmallChunks(t *testing.T) {
	s := testSplitter(t, Options{MinChunkSize: 20})

	chunks := []*Chunk{
		{Content: "tiny", Type: TypeStatement},
		{Content: "   \n\t", Type: TypeStatement},
		{Content: "x", Type: TypeFunction, Indivisible: true},
		{Content: strings.Repeat("long enough content\n", 3), Type: TypeStatement},
	}
	out := s.filter(chunks)
	require.Len(t, out, 2)
	assert.True(t, out[0].Indivisible)
}

func TestRebalanceMergesSmallNeighbors(t *testing.T) {
	s := testSplitter(t, Options{ChunkSize: 100, MinChunkSize: 1, MaxChunkSize: 500})

	lines := []string{
		"const a = 1",
		"const b = 2",
		"",
		"const c = 3",
	}
	chunks := []*Chunk{
		rawChunk(lines, 1, 2, TypeStatement),
		rawChunk(lines, 4, 4, TypeStatement),
	}
	out := s.rebalance(lines, chunks)
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].StartLine)
	assert.Equal(t, 4, out[0].EndLine)
	assert.Contains(t, out[0].Content, "const a = 1")
	assert.Contains(t, out[0].Content, "const c = 3")
	assert.False(t, out[0].Indivisible)
}

func TestRebalanceKeepsLargeChunksApart(t *testing.T) {
	s := testSplitter(t, Options{ChunkSize: 10, MinChunkSize: 1, MaxChunkSize: 500})

	lines := []string{
		"func a() { return longBody() }",
		"func b() { return longBody() }",
	}
	chunks := []*Chunk{
		rawChunk(lines, 1, 1, TypeFunction),
		rawChunk(lines, 2, 2, TypeFunction),
	}
	out := s.rebalance(lines, chunks)
	assert.Len(t, out, 2)
}

func TestRebalanceRespectsGap(t *testing.T) {
	s := testSplitter(t, Options{ChunkSize: 100, MinChunkSize: 1, MaxChunkSize: 500})

	lines := make([]string, 10)
	lines[0] = "const a = 1"
	lines[9] = "const b = 2"
	chunks := []*Chunk{
		rawChunk(lines, 1, 1, TypeStatement),
		rawChunk(lines, 10, 10, TypeStatement),
	}
	out := s.rebalance(lines, chunks)
	assert.Len(t, out, 2, "chunks separated by a large gap must not merge")
}

func TestOptimizeBoundariesMovesToBlankLine(t *testing.T) {
	s := testSplitter(t, Options{MinChunkSize: 1, BoundaryWindow: 3})

	lines := []string{
		"first section line one",   // 1
		"first section line two",   // 2
		"",                         // 3
		"second section line one",  // 4
		"second section line two",  // 5
		"second section line four", // 6
	}
	chunks := []*Chunk{
		rawChunk(lines, 1, 4, TypeBracket),
		rawChunk(lines, 5, 6, TypeBracket),
	}
	out := s.optimizeBoundaries(lines, chunks)
	require.Len(t, out, 2)
	assert.Equal(t, 2, out[0].EndLine)
	assert.Equal(t, 4, out[1].StartLine)
	assert.NotContains(t, out[0].Content, "second section")
	assert.Contains(t, out[1].Content, "second section line one")
}

func TestOptimizeBoundariesKeepsStatementEnds(t *testing.T) {
	s := testSplitter(t, Options{MinChunkSize: 1, BoundaryWindow: 3})

	lines := []string{
		"stmt one",
		"",
		"closing line }",
		"next chunk line",
		"next chunk tail",
	}
	chunks := []*Chunk{
		rawChunk(lines, 1, 3, TypeBracket),
		rawChunk(lines, 4, 5, TypeBracket),
	}
	out := s.optimizeBoundaries(lines, chunks)
	assert.Equal(t, 3, out[0].EndLine, "a boundary at an end-of-statement line stays put")
	assert.Equal(t, 4, out[1].StartLine)
}

func TestInjectOverlap(t *testing.T) {
	s := testSplitter(t, Options{OverlapSize: 10, MinChunkSize: 1})

	chunks := []*Chunk{
		{Content: "first chunk body text", StartLine: 1, EndLine: 2, Type: TypeFunction},
		{Content: "second chunk body", StartLine: 3, EndLine: 4, Type: TypeFunction},
	}
	out := s.injectOverlap(chunks)
	require.Len(t, out, 2)

	assert.Zero(t, out[0].OverlapLen)
	assert.Equal(t, 11, out[1].OverlapLen)
	assert.True(t, strings.HasSuffix(strings.SplitN(out[1].Content, "\n", 2)[0], "body text"))
	assert.Equal(t, "second chunk body", out[1].body())
}

func TestInjectOverlapSkipsLineChunks(t *testing.T) {
	s := testSplitter(t, Options{OverlapSize: 10, MinChunkSize: 1})

	chunks := []*Chunk{
		{Content: "window one", Type: TypeLine},
		{Content: "window two", Type: TypeLine},
	}
	out := s.injectOverlap(chunks)
	assert.Zero(t, out[1].OverlapLen)
	assert.Equal(t, "window two", out[1].Content)
}

func TestFinalizeHashExcludesOverlap(t *testing.T) {
	plain := &Chunk{Content: "shared body", StartLine: 5, EndLine: 6}
	overlapped := &Chunk{Content: "prefix\nshared body", StartLine: 5, EndLine: 6, OverlapLen: 7}

	Finalize("proj", "a.go", []*Chunk{plain})
	Finalize("proj", "a.go", []*Chunk{overlapped})

	assert.Equal(t, plain.ContentHash, overlapped.ContentHash)
	assert.Equal(t, plain.ID, overlapped.ID)
}

func TestProcessOrdersAndPipelines(t *testing.T) {
	s := testSplitter(t, Options{ChunkSize: 30, MinChunkSize: 5, MaxChunkSize: 200, OverlapSize: 0})

	lines := []string{
		"func a() {",
		"\tbody of a",
		"}",
		"",
		"func b() {",
		"\tbody of b",
		"}",
	}
	// Out of order on purpose; Process must sort by position first.
	chunks := []*Chunk{
		rawChunk(lines, 5, 7, TypeFunction),
		rawChunk(lines, 1, 3, TypeFunction),
	}
	out := s.Process(lines, chunks)
	require.NotEmpty(t, out)
	assert.Equal(t, 1, out[0].StartLine)
	for i := 1; i < len(out); i++ {
		assert.Greater(t, out[i].StartLine, out[i-1].StartLine)
	}
	for _, c := range out {
		assert.Zero(t, contentDepth(c.Content))
	}
}
