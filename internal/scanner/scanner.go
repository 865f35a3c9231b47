// Package scanner discovers indexable files in a project directory. It
// streams results over a channel, applying ignore rules, an extension
// whitelist, a size limit, and a binary-content heuristic. File content is
// never loaded here; downstream stages read the bytes.
package scanner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/codescope/codescope/internal/ignore"
)

// DefaultMaxFileSize is the default maximum file size (10 MiB).
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// binarySniffLen is how many leading bytes are inspected for the binary
// heuristic.
const binarySniffLen = 8192

// resolverCacheSize bounds the cached ignore resolvers in long-running
// watch sessions.
const resolverCacheSize = 64

// FileInfo contains metadata about a discovered file.
type FileInfo struct {
	AbsPath  string    // Absolute path
	RelPath  string    // Relative to the project root, forward slashes
	Size     int64     // File size in bytes
	ModTime  time.Time // Last modification time
	Language string    // go, typescript, python, ...
}

// Result is returned from the scan channel.
type Result struct {
	File *FileInfo
	Err  error
}

// Options configures a scan.
type Options struct {
	// RootDir is the project root directory to scan.
	RootDir string

	// IncludeGlobs and ExcludeGlobs are caller-supplied path globs layered on
	// top of .gitignore handling.
	IncludeGlobs []string
	ExcludeGlobs []string

	// Extensions whitelists file extensions (with leading dot). Empty means
	// every extension with a known language.
	Extensions []string

	// MaxFileSize is the largest file to emit (0 = DefaultMaxFileSize).
	MaxFileSize int64

	// FollowSymlinks enables following symbolic links (default: false).
	FollowSymlinks bool
}

// Scanner discovers indexable files. It caches per-root ignore resolvers so
// repeated incremental scans do not reparse every .gitignore.
type Scanner struct {
	resolverCache *lru.Cache[string, *ignore.Resolver]
}

// New creates a Scanner.
func New() (*Scanner, error) {
	cache, err := lru.New[string, *ignore.Resolver](resolverCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver cache: %w", err)
	}
	return &Scanner{resolverCache: cache}, nil
}

// InvalidateIgnoreRules drops the cached resolver for a root. Called when a
// .gitignore or .indexignore under the root changes.
func (s *Scanner) InvalidateIgnoreRules(root string) {
	if abs, err := filepath.Abs(root); err == nil {
		s.resolverCache.Remove(abs)
	}
}

// Resolver returns the ignore resolver for a root, building it on first use.
func (s *Scanner) Resolver(root string, include, exclude []string) (*ignore.Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if cached, ok := s.resolverCache.Get(abs); ok {
		return cached, nil
	}
	resolver, err := ignore.Load(abs, include, exclude)
	if err != nil {
		return nil, err
	}
	s.resolverCache.Add(abs, resolver)
	return resolver, nil
}

// Scan streams indexable files under opts.RootDir. The returned channel is
// closed when the walk completes or the context is cancelled.
func (s *Scanner) Scan(ctx context.Context, opts *Options) (<-chan Result, error) {
	if opts == nil || opts.RootDir == "" {
		return nil, fmt.Errorf("scan root is required")
	}
	absRoot, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", absRoot)
	}

	resolver, err := s.Resolver(absRoot, opts.IncludeGlobs, opts.ExcludeGlobs)
	if err != nil {
		return nil, err
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	extWhitelist := make(map[string]bool, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		extWhitelist[strings.ToLower(ext)] = true
	}

	results := make(chan Result, 64)
	go func() {
		defer close(results)
		s.walk(ctx, absRoot, resolver, extWhitelist, maxSize, opts.FollowSymlinks, results)
	}()
	return results, nil
}

func (s *Scanner) walk(ctx context.Context, absRoot string, resolver *ignore.Resolver, extWhitelist map[string]bool, maxSize int64, followSymlinks bool, results chan<- Result) {
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if walkErr != nil {
			// Permission problems skip the entry, never abort the walk.
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil || relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if resolver.Ignored(relPath, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 && !followSymlinks {
			return nil
		}
		if resolver.Ignored(relPath, false) {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(relPath))
		if len(extWhitelist) > 0 {
			if !extWhitelist[ext] {
				return nil
			}
		} else if languageMap[ext] == "" {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > maxSize {
			return nil
		}
		if isBinaryFile(path) {
			return nil
		}

		file := &FileInfo{
			AbsPath:  path,
			RelPath:  relPath,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			Language: DetectLanguage(relPath),
		}
		select {
		case results <- Result{File: file}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	if err != nil && err != context.Canceled && ctx.Err() == nil {
		select {
		case results <- Result{Err: err}:
		case <-ctx.Done():
		}
	}
}

// isBinaryFile sniffs the first bytes of a file and reports whether they look
// binary. A null byte, or a high ratio of non-text bytes, disqualifies it.
func isBinaryFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, binarySniffLen)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return true
	}
	return IsBinaryContent(buf[:n])
}

// IsBinaryContent reports whether content bytes look binary.
func IsBinaryContent(content []byte) bool {
	if len(content) == 0 {
		return false
	}
	sniff := content
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return true
	}
	// Count control characters that are not ordinary whitespace.
	var suspicious int
	for _, b := range sniff {
		if b < 0x20 && b != '\n' && b != '\r' && b != '\t' && b != '\f' {
			suspicious++
		}
	}
	return float64(suspicious)/float64(len(sniff)) > 0.3
}
