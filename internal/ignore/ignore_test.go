package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTree creates files under root; entries map relative path -> content.
func writeTree(t *testing.T, root string, entries map[string]string) {
	t.Helper()
	for rel, content := range entries {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func loadResolver(t *testing.T, root string) *Resolver {
	t.Helper()
	r, err := Load(root, nil, nil)
	require.NoError(t, err)
	return r
}

func TestDefaults_IgnoreVersionControlAndDeps(t *testing.T) {
	r := loadResolver(t, t.TempDir())
	assert.True(t, r.Ignored(".git", true))
	assert.True(t, r.Ignored(".git/config", false))
	assert.True(t, r.Ignored("node_modules/x.js", false))
	assert.True(t, r.Ignored("src/node_modules/y.js", false))
	assert.True(t, r.Ignored("app.min.js", false))
	assert.False(t, r.Ignored("src/main.go", false))
}

func TestRootGitignore(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore": "# comment\n\n*.tmp\n/generated\ndocs/\n",
	})
	r := loadResolver(t, root)

	assert.True(t, r.Ignored("a.tmp", false))
	assert.True(t, r.Ignored("deep/nested/b.tmp", false))
	assert.True(t, r.Ignored("generated", true))
	assert.True(t, r.Ignored("generated/out.go", false))
	// Leading / anchors to the root.
	assert.False(t, r.Ignored("src/generated", true))
	// Trailing / is directory-only.
	assert.True(t, r.Ignored("docs", true))
	assert.True(t, r.Ignored("docs/readme.txt", false))
	assert.False(t, r.Ignored("docs", false))
}

func TestNegationIsDropped(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore": "*.generated.go\n!keep.generated.go\n",
	})
	r := loadResolver(t, root)
	// Negation is an explicit limitation: keep.generated.go stays ignored.
	assert.True(t, r.Ignored("keep.generated.go", false))
}

func TestSubdirectoryGitignoreIsScoped(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"web/.gitignore": "*.map\n",
		"web/app.js":     "",
	})
	r := loadResolver(t, root)
	assert.True(t, r.Ignored("web/app.js.map", false))
	assert.True(t, r.Ignored("web/static/app.js.map", false))
	// The pattern does not escape its subdirectory.
	assert.False(t, r.Ignored("server/app.js.map", false))
	assert.False(t, r.Ignored("app.js.map", false))
}

func TestIndexIgnoreFile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".indexignore": "testdata/\n*.snap\n",
	})
	r := loadResolver(t, root)
	assert.True(t, r.Ignored("testdata/golden.json", false))
	assert.True(t, r.Ignored("pkg/x.snap", false))
}

func TestCallerGlobs(t *testing.T) {
	root := t.TempDir()
	r, err := Load(root, []string{"src/**"}, []string{"**/*_gen.go"})
	require.NoError(t, err)

	assert.False(t, r.Ignored("src/main.go", false))
	assert.True(t, r.Ignored("cmd/main.go", false), "outside include set")
	assert.True(t, r.Ignored("src/types_gen.go", false), "exclude wins over include")
	// Directories stay traversable regardless of include globs.
	assert.False(t, r.Ignored("src", true))
}

func TestMatchingIsCaseSensitive(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{".gitignore": "Build/\n"})
	r := loadResolver(t, root)
	assert.True(t, r.Ignored("Build/a.go", false))
	// "build/" and "*.o" are in the defaults; use names not covered by
	// them.
	assert.False(t, r.Ignored("Builder/a.go", false))
}

func TestWildcardDoesNotCrossSlash(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{".gitignore": "/cache*\n"})
	r := loadResolver(t, root)
	assert.True(t, r.Ignored("cache-v2", false))
	assert.False(t, r.Ignored("sub/cache-v2", false))
}
