package chunk

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goSource = `package sample

import "fmt"

// Add returns the sum of two ints.
func Add(a, b int) int {
	return a + b
}

// Greet prints a greeting for the given name.
func Greet(name string) {
	fmt.Println("hello", name)
}
`

func testSplitter(t *testing.T, opts Options) *Splitter {
	t.Helper()
	return NewSplitter(opts)
}

func TestSplitGoDeclarations(t *testing.T) {
	s := testSplitter(t, Options{ChunkSize: 40, MinChunkSize: 5, OverlapSize: 0})

	chunks := s.Split(context.Background(), []byte(goSource), "go", "sample.go")
	require.NotEmpty(t, chunks)

	var funcs []*Chunk
	for _, c := range chunks {
		if c.Type == TypeFunction {
			funcs = append(funcs, c)
		}
	}
	require.Len(t, funcs, 2)

	assert.Contains(t, funcs[0].Content, "func Add")
	assert.Contains(t, funcs[1].Content, "func Greet")
	for _, c := range funcs {
		assert.True(t, c.Indivisible)
		assert.NotEmpty(t, c.NodeIDs)
	}
}

func TestSplitAttachesDocComments(t *testing.T) {
	s := testSplitter(t, Options{ChunkSize: 40, MinChunkSize: 5, OverlapSize: 0})

	chunks := s.Split(context.Background(), []byte(goSource), "go", "sample.go")
	var add *Chunk
	for _, c := range chunks {
		if strings.Contains(c.Content, "func Add") {
			add = c
		}
	}
	require.NotNil(t, add)
	assert.Contains(t, add.Content, "// Add returns the sum")
}

func TestSplitUnknownLanguageFallsBackToBrackets(t *testing.T) {
	s := testSplitter(t, Options{ChunkSize: 30, MinChunkSize: 5, OverlapSize: 0})

	src := "setup {\n  step one\n  step two\n}\nteardown {\n  cleanup\n}\n"
	chunks := s.Split(context.Background(), []byte(src), "unknownlang", "config.dsl")
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, TypeBracket, c.Type)
		assert.Zero(t, contentDepth(c.Content), "chunk must be bracket-balanced: %q", c.Content)
	}
}

func TestSplitEmptyContent(t *testing.T) {
	s := testSplitter(t, Options{})

	assert.Nil(t, s.Split(context.Background(), nil, "go", "empty.go"))
	assert.Nil(t, s.Split(context.Background(), []byte("  \n\t\n"), "go", "blank.go"))
}

func TestBracketSplitRespectsStrings(t *testing.T) {
	s := testSplitter(t, Options{ChunkSize: 10, MinChunkSize: 1, OverlapSize: 0})

	// The brace inside the string literal must not open a scope.
	lines := []string{
		`msg = "not a { scope"`,
		`block {`,
		`  body`,
		`}`,
	}
	chunks := s.bracketSplit(lines, 0, "unknownlang", TypeBracket)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Zero(t, contentDepth(c.Content))
	}
}

func TestLineSplitWindows(t *testing.T) {
	s := testSplitter(t, Options{ChunkSize: 40, OverlapSize: 15, MinChunkSize: 1})

	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, strings.Repeat("x", 10))
	}
	chunks := s.lineSplit(lines, "text", TypeLine)
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		assert.Equal(t, TypeLine, c.Type)
		if i > 0 {
			// Windows overlap: each chunk starts at or before the previous
			// chunk's end line plus one.
			assert.LessOrEqual(t, c.StartLine, chunks[i-1].EndLine+1)
		}
	}
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, len(lines), chunks[len(chunks)-1].EndLine)
}

func TestChunkFileDeterministic(t *testing.T) {
	s := testSplitter(t, Options{ChunkSize: 40, MinChunkSize: 5, OverlapSize: 0})

	a := s.ChunkFile(context.Background(), "p1", "sample.go", []byte(goSource), "go")
	b := s.ChunkFile(context.Background(), "p1", "sample.go", []byte(goSource), "go")
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
		assert.Equal(t, a[i].ContentHash, b[i].ContentHash)
		assert.Len(t, a[i].ID, 32)
		assert.Len(t, a[i].ContentHash, 64)
	}

	// A different project yields different chunk ids for identical content.
	c := s.ChunkFile(context.Background(), "p2", "sample.go", []byte(goSource), "go")
	require.Equal(t, len(a), len(c))
	for i := range a {
		assert.NotEqual(t, a[i].ID, c[i].ID)
		assert.Equal(t, a[i].ContentHash, c[i].ContentHash)
	}
}

func TestSplitPythonClasses(t *testing.T) {
	src := `import os

class Greeter:
    """Says hello."""

    def greet(self, name):
        return "hello " + name

def main():
    print(Greeter().greet(os.environ.get("USER", "world")))
`
	s := testSplitter(t, Options{ChunkSize: 40, MinChunkSize: 5, OverlapSize: 0})
	chunks := s.Split(context.Background(), []byte(src), "python", "greeter.py")
	require.NotEmpty(t, chunks)

	var haveClass, haveFunc bool
	for _, c := range chunks {
		switch c.Type {
		case TypeClass:
			haveClass = true
			assert.Contains(t, c.Content, "class Greeter")
		case TypeFunction:
			haveFunc = true
			assert.Contains(t, c.Content, "def main")
		}
	}
	assert.True(t, haveClass)
	assert.True(t, haveFunc)
}

func TestDepthDelta(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  int
	}{
		{"plain open", []string{"func f() {"}, 1},
		{"balanced", []string{"if x { y() }"}, 0},
		{"brace in string", []string{`s := "{"`}, 0},
		{"brace in line comment", []string{"x() // {"}, 0},
		{"brace in block comment", []string{"/* { */ y()"}, 0},
		{"block comment spans lines", []string{"/* {", "{ still comment", "*/ {"}, 1},
		{"escaped quote", []string{`s := "a\"{" + t`}, 0},
		{"parens and squares", []string{"f(a[0]"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var st scanState
			depth := 0
			for _, l := range tt.lines {
				depth += st.depthDelta(l)
			}
			assert.Equal(t, tt.want, depth)
		})
	}
}

func TestChunkFileConcurrentWorkers(t *testing.T) {
	s := testSplitter(t, Options{})

	want := s.ChunkFile(context.Background(), "p1", "sample.go", []byte(goSource), "go")
	require.NotEmpty(t, want)

	// Indexing workers share one Splitter; parsing must hold up under
	// simultaneous calls across languages.
	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				got := s.ChunkFile(context.Background(), "p1", "sample.go", []byte(goSource), "go")
				if len(got) != len(want) {
					errs <- "chunk count diverged under concurrency"
					return
				}
				for k := range got {
					if got[k].ID != want[k].ID {
						errs <- "chunk ids diverged under concurrency"
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Fatal(msg)
	}
}
