package chunk

import "strings"

// scanState tracks string and comment context during a bracket scan so
// brackets inside literals and comments do not count toward depth.
type scanState struct {
	inBlockComment bool
	quote          byte // active quote character, 0 when outside strings
}

// depthDelta scans one line and returns the change in bracket depth,
// updating string/comment state across lines.
func (st *scanState) depthDelta(line string) int {
	delta := 0
	for i := 0; i < len(line); i++ {
		c := line[i]

		if st.inBlockComment {
			if c == '*' && i+1 < len(line) && line[i+1] == '/' {
				st.inBlockComment = false
				i++
			}
			continue
		}
		if st.quote != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == st.quote {
				st.quote = 0
			}
			continue
		}

		switch c {
		case '/':
			if i+1 < len(line) {
				if line[i+1] == '/' {
					return delta // line comment
				}
				if line[i+1] == '*' {
					st.inBlockComment = true
					i++
					continue
				}
			}
		case '#':
			return delta // line comment (python, shell)
		case '"', '\'', '`':
			st.quote = c
		case '{', '(', '[':
			delta++
		case '}', ')', ']':
			delta--
		}
	}
	// Single-quoted strings do not span lines in the languages handled here;
	// an unterminated quote is a scan artifact, not real state.
	if st.quote != 0 && st.quote != '`' {
		st.quote = 0
	}
	return delta
}

// bracketSplit scans lines while maintaining a bracket depth counter with
// string and comment awareness. A chunk is emitted when depth returns to zero
// at or past the target chunk size, or when adding another line would exceed
// the hard maximum. startOffset is the 0-indexed line offset of lines[0]
// within the file.
func (s *Splitter) bracketSplit(lines []string, startOffset int, language string, chunkType Type) []*Chunk {
	var chunks []*Chunk
	var st scanState
	depth := 0
	chunkStart := 0 // index into lines
	size := 0

	emit := func(endIdx int) {
		content := strings.Join(lines[chunkStart:endIdx+1], "\n")
		if strings.TrimSpace(content) != "" {
			chunks = append(chunks, &Chunk{
				Content:   content,
				StartLine: startOffset + chunkStart + 1,
				EndLine:   startOffset + endIdx + 1,
				Language:  language,
				Type:      chunkType,
			})
		}
		chunkStart = endIdx + 1
		size = 0
	}

	for i, line := range lines {
		lineSize := len(line) + 1
		if size > 0 && size+lineSize > s.opts.MaxChunkSize {
			emit(i - 1)
		}
		depth += st.depthDelta(line)
		if depth < 0 {
			depth = 0
		}
		size += lineSize

		if depth == 0 && size >= s.opts.ChunkSize {
			emit(i)
		}
	}
	if chunkStart < len(lines) {
		emit(len(lines) - 1)
	}
	return chunks
}

// lineSplit is the last-resort strategy: a sliding window that accumulates
// lines up to the target chunk size, re-seeding each window with the trailing
// lines of the previous one up to the overlap budget.
func (s *Splitter) lineSplit(lines []string, language string, chunkType Type) []*Chunk {
	var chunks []*Chunk
	i := 0
	for i < len(lines) {
		start := i
		size := 0
		for i < len(lines) {
			lineSize := len(lines[i]) + 1
			if size > 0 && size+lineSize > s.opts.ChunkSize {
				break
			}
			size += lineSize
			i++
		}
		content := strings.Join(lines[start:i], "\n")
		if strings.TrimSpace(content) != "" {
			chunks = append(chunks, &Chunk{
				Content:   content,
				StartLine: start + 1,
				EndLine:   i,
				Language:  language,
				Type:      chunkType,
			})
		}
		if i >= len(lines) {
			break
		}
		// Walk back to form the overlap for the next window.
		if s.opts.OverlapSize > 0 {
			overlap := 0
			back := i
			for back > start+1 && overlap+len(lines[back-1])+1 <= s.opts.OverlapSize {
				overlap += len(lines[back-1]) + 1
				back--
			}
			if back < i {
				i = back
			}
		}
	}
	return chunks
}
