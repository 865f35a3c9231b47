package chunk

import (
	"sort"
	"strings"
)

// Process runs the post-processing pipeline over one file's raw chunks.
// The pass order is fixed and load-bearing:
//
//  1. symbol-balance fix
//  2. minimum-size filter
//  3. rebalance (merge undersized neighbors)
//  4. boundary optimization
//  5. overlap injection
//
// lines are the file's lines; chunk line numbers are 1-indexed into them.
func (s *Splitter) Process(lines []string, chunks []*Chunk) []*Chunk {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].StartLine != chunks[j].StartLine {
			return chunks[i].StartLine < chunks[j].StartLine
		}
		return chunks[i].EndLine < chunks[j].EndLine
	})

	chunks = s.fixBalance(chunks)
	chunks = s.filter(chunks)
	chunks = s.rebalance(lines, chunks)
	chunks = s.optimizeBoundaries(lines, chunks)
	chunks = s.injectOverlap(chunks)
	return chunks
}

// fixBalance closes unmatched opening brackets by trimming trailing
// incomplete tails, and drops chunks that stay unbalanced beyond the repair
// budget. Window chunks from the line strategy are exempt: they cut through
// syntax by construction.
func (s *Splitter) fixBalance(chunks []*Chunk) []*Chunk {
	out := chunks[:0]
	for _, c := range chunks {
		if c.Type == TypeLine || c.Type == TypeFallback {
			out = append(out, c)
			continue
		}
		if depth := contentDepth(c.Content); depth == 0 {
			out = append(out, c)
			continue
		} else if depth < 0 {
			// Leading closers cannot be repaired by trimming the tail.
			continue
		}

		lines := strings.Split(c.Content, "\n")
		repaired := false
		for trim := 1; trim <= balanceRepairBudget && trim < len(lines); trim++ {
			candidate := strings.Join(lines[:len(lines)-trim], "\n")
			if contentDepth(candidate) == 0 {
				c.Content = candidate
				c.EndLine -= trim
				repaired = true
				break
			}
		}
		if repaired && strings.TrimSpace(c.Content) != "" {
			out = append(out, c)
		}
	}
	return out
}

// contentDepth returns the net bracket depth of a text span.
func contentDepth(content string) int {
	var st scanState
	depth := 0
	for _, line := range strings.Split(content, "\n") {
		depth += st.depthDelta(line)
	}
	return depth
}

// filter drops whitespace-only chunks and chunks below the minimum size,
// keeping indivisible syntax nodes regardless of size.
func (s *Splitter) filter(chunks []*Chunk) []*Chunk {
	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		if len(c.Content) < s.opts.MinChunkSize && !c.Indivisible {
			continue
		}
		out = append(out, c)
	}
	return out
}

// rebalance merges adjacent chunks that are both below the target size when
// the result stays within the hard maximum. Merged content is re-read from
// the file lines so small gaps between the chunks are preserved.
func (s *Splitter) rebalance(lines []string, chunks []*Chunk) []*Chunk {
	if len(chunks) < 2 {
		return chunks
	}
	out := make([]*Chunk, 0, len(chunks))
	cur := chunks[0]
	for _, next := range chunks[1:] {
		gap := next.StartLine - cur.EndLine
		mergedLen := spanLen(lines, cur.StartLine, next.EndLine)
		if len(cur.Content) < s.opts.ChunkSize && len(next.Content) < s.opts.ChunkSize &&
			gap >= 0 && gap <= 2 && mergedLen <= s.opts.MaxChunkSize {
			cur = &Chunk{
				Content:     strings.Join(lines[cur.StartLine-1:next.EndLine], "\n"),
				StartLine:   cur.StartLine,
				EndLine:     next.EndLine,
				Language:    cur.Language,
				Type:        cur.Type,
				NodeIDs:     append(append([]string{}, cur.NodeIDs...), next.NodeIDs...),
				Indivisible: false,
			}
			continue
		}
		out = append(out, cur)
		cur = next
	}
	return append(out, cur)
}

func spanLen(lines []string, startLine, endLine int) int {
	n := 0
	for i := startLine - 1; i < endLine && i < len(lines); i++ {
		n += len(lines[i]) + 1
	}
	return n
}

// optimizeBoundaries nudges the boundary between contiguous chunks by up to
// the boundary window so it lands on a blank line. Boundaries already ending
// at an end-of-statement line stay put.
func (s *Splitter) optimizeBoundaries(lines []string, chunks []*Chunk) []*Chunk {
	for i := 0; i+1 < len(chunks); i++ {
		cur, next := chunks[i], chunks[i+1]
		if next.StartLine != cur.EndLine+1 {
			continue
		}
		if endsStatement(line(lines, cur.EndLine)) {
			continue
		}

		blank := 0
		for off := 1; off <= s.opts.BoundaryWindow; off++ {
			if l := cur.EndLine - off; l > cur.StartLine && strings.TrimSpace(line(lines, l)) == "" {
				blank = l
				break
			}
			if l := cur.EndLine + off; l < next.EndLine && strings.TrimSpace(line(lines, l)) == "" {
				blank = l
				break
			}
		}
		if blank == 0 {
			continue
		}

		newCurEnd := blank - 1
		newNextStart := blank + 1
		curLen := spanLen(lines, cur.StartLine, newCurEnd)
		nextLen := spanLen(lines, newNextStart, next.EndLine)
		if curLen < s.opts.MinChunkSize || nextLen < s.opts.MinChunkSize ||
			curLen > s.opts.MaxChunkSize || nextLen > s.opts.MaxChunkSize {
			continue
		}
		cur.EndLine = newCurEnd
		cur.Content = strings.Join(lines[cur.StartLine-1:newCurEnd], "\n")
		next.StartLine = newNextStart
		next.Content = strings.Join(lines[newNextStart-1:next.EndLine], "\n")
	}
	return chunks
}

func line(lines []string, n int) string {
	if n < 1 || n > len(lines) {
		return ""
	}
	return lines[n-1]
}

// endsStatement reports whether a line already forms a natural boundary.
func endsStatement(l string) bool {
	t := strings.TrimSpace(l)
	if t == "" {
		return true
	}
	switch t[len(t)-1] {
	case '}', ';', ':':
		return true
	}
	return false
}

// injectOverlap prepends the tail of each chunk to its successor, bounded by
// the overlap budget. The prefix length is recorded so content hashing and
// change detection ignore it. Window chunks already overlap by construction
// and are skipped.
func (s *Splitter) injectOverlap(chunks []*Chunk) []*Chunk {
	if s.opts.OverlapSize <= 0 {
		return chunks
	}
	for i := 1; i < len(chunks); i++ {
		prev, c := chunks[i-1], chunks[i]
		if c.Type == TypeLine || c.Type == TypeFallback {
			continue
		}
		tail := prev.body()
		if len(tail) > s.opts.OverlapSize {
			tail = tail[len(tail)-s.opts.OverlapSize:]
		}
		if tail == "" {
			continue
		}
		c.OverlapLen = len(tail) + 1
		c.Content = tail + "\n" + c.Content
	}
	return chunks
}
