// Package ignore resolves which files of a project are excluded from
// indexing. A Resolver composes, in priority order: the internal default
// list, the root .gitignore, the .gitignore of each first-level subdirectory
// (scoped to that subdirectory), an optional root .indexignore, and
// caller-supplied include/exclude globs.
//
// Pattern translation follows a deliberate subset of gitignore syntax:
// comments and blank lines are skipped, negation (!) is dropped as an
// explicit limitation, a leading "/" anchors the pattern to its file's
// directory, a trailing "/" makes it directory-only. Matching is done against
// forward-slash relative paths, case-sensitively.
package ignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultPatterns is the internal default ignore list: version-control data,
// build artifacts, and dependency directories.
var DefaultPatterns = []string{
	".git/",
	".hg/",
	".svn/",
	".codescope/",
	"node_modules/",
	"vendor/",
	"bower_components/",
	"dist/",
	"build/",
	"out/",
	"target/",
	"__pycache__/",
	".venv/",
	"venv/",
	".tox/",
	".idea/",
	".vscode/",
	".DS_Store",
	"*.pyc",
	"*.o",
	"*.a",
	"*.so",
	"*.dylib",
	"*.exe",
	"*.class",
	"*.min.js",
	"*.min.css",
	"*.lock",
	"*.log",
}

// IndexIgnoreFile is the codescope-specific ignore file at the project root.
const IndexIgnoreFile = ".indexignore"

// rule is a single compiled ignore pattern. For directory-only rules,
// fileRegex requires the path to continue past the directory name so a plain
// file sharing the name is not matched.
type rule struct {
	pattern   string
	regex     *regexp.Regexp
	fileRegex *regexp.Regexp
	dirOnly   bool
	base      string // scoped subdirectory, "" for root
}

// Resolver answers whether a relative path is excluded from indexing.
type Resolver struct {
	rules    []rule
	includes []glob.Glob
	excludes []glob.Glob
}

// Load builds a Resolver for a project root. include and exclude are
// caller-supplied globs; a non-empty include list means only matching files
// are indexed.
func Load(root string, include, exclude []string) (*Resolver, error) {
	r := &Resolver{}

	for _, p := range DefaultPatterns {
		r.addPattern(p, "")
	}

	if err := r.addFile(filepath.Join(root, ".gitignore"), ""); err != nil {
		return nil, err
	}

	// First-level subdirectory .gitignores, scoped to their subdirectory.
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read project root: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(root, entry.Name(), ".gitignore")
		if err := r.addFile(path, entry.Name()); err != nil {
			return nil, err
		}
	}

	if err := r.addFile(filepath.Join(root, IndexIgnoreFile), ""); err != nil {
		return nil, err
	}

	for _, pattern := range include {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid include glob %q: %w", pattern, err)
		}
		r.includes = append(r.includes, g)
	}
	for _, pattern := range exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude glob %q: %w", pattern, err)
		}
		r.excludes = append(r.excludes, g)
	}

	return r, nil
}

// addFile reads an ignore file if it exists. base scopes the patterns to a
// first-level subdirectory.
func (r *Resolver) addFile(path, base string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		r.addPattern(scanner.Text(), base)
	}
	return scanner.Err()
}

// addPattern compiles one pattern line. Invalid or unsupported lines are
// silently dropped.
func (r *Resolver) addPattern(pattern, base string) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || strings.HasPrefix(pattern, "#") {
		return
	}
	// Negation is not supported and is dropped.
	if strings.HasPrefix(pattern, "!") {
		return
	}

	ru := rule{pattern: pattern, base: base}

	anchored := strings.HasPrefix(pattern, "/")
	pattern = strings.TrimPrefix(pattern, "/")

	if strings.HasSuffix(pattern, "/") {
		ru.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if pattern == "" {
		return
	}

	// A pattern with an internal slash is implicitly anchored.
	if strings.Contains(pattern, "/") {
		anchored = true
	}

	var b strings.Builder
	b.WriteString("^")
	if base != "" {
		b.WriteString(regexp.QuoteMeta(base))
		b.WriteString("/")
	}
	if !anchored {
		// Unanchored patterns match at any depth.
		b.WriteString("(?:.*/)?")
	}
	b.WriteString(translate(pattern))
	prefix := b.String()

	// Directory patterns also match everything inside the directory.
	// File patterns may name a directory too; either way the subtree is out.
	regex, err := regexp.Compile(prefix + "(?:/.*)?$")
	if err != nil {
		return
	}
	ru.regex = regex
	if ru.dirOnly {
		fileRegex, err := regexp.Compile(prefix + "/.+$")
		if err != nil {
			return
		}
		ru.fileRegex = fileRegex
	}
	r.rules = append(r.rules, ru)
}

// translate converts a gitignore pattern body to a regex fragment.
func translate(pattern string) string {
	var result strings.Builder
	i := 0
	for i < len(pattern) {
		c := pattern[i]
		switch c {
		case '*':
			if strings.HasPrefix(pattern[i:], "**/") {
				result.WriteString("(?:.*/)?")
				i += 3
				continue
			}
			if strings.HasPrefix(pattern[i:], "**") {
				result.WriteString(".*")
				i += 2
				continue
			}
			result.WriteString("[^/]*")
		case '?':
			result.WriteString("[^/]")
		case '[':
			// Pass character classes through, escaping only if unterminated.
			end := strings.IndexByte(pattern[i:], ']')
			if end > 0 {
				result.WriteString(pattern[i : i+end+1])
				i += end + 1
				continue
			}
			result.WriteString(regexp.QuoteMeta(string(c)))
		default:
			result.WriteString(regexp.QuoteMeta(string(c)))
		}
		i++
	}
	return result.String()
}

// Ignored reports whether relPath is excluded from indexing. relPath must be
// relative to the project root; separators are normalized here.
func (r *Resolver) Ignored(relPath string, isDir bool) bool {
	path := filepath.ToSlash(relPath)

	for _, g := range r.excludes {
		if g.Match(path) {
			return true
		}
	}

	for _, ru := range r.rules {
		if ru.dirOnly && !isDir {
			// A directory-only rule matches a file only through an ancestor.
			if ru.fileRegex.MatchString(path) {
				return true
			}
			continue
		}
		if ru.regex.MatchString(path) {
			return true
		}
	}

	// Include globs apply to files only: directories must stay traversable.
	if len(r.includes) > 0 && !isDir {
		for _, g := range r.includes {
			if g.Match(path) {
				return false
			}
		}
		return true
	}

	return false
}
