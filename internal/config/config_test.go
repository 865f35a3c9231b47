package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	cfg := New()
	assert.Equal(t, 50, cfg.Indexing.BatchSize)
	assert.Equal(t, 3, cfg.Indexing.MaxConcurrency)
	assert.Equal(t, 3, cfg.Indexing.RetryAttempts)
	assert.Equal(t, 30*time.Second, cfg.Indexing.Timeout)
	assert.Equal(t, StrategySmart, cfg.Indexing.Strategy)
	assert.Equal(t, int64(10*1024*1024), cfg.Files.MaxFileSize)
	assert.Equal(t, 0.90, cfg.Memory.Warning)
	assert.Equal(t, 0.94, cfg.Memory.Critical)
	assert.Equal(t, 0.98, cfg.Memory.Emergency)
	assert.Equal(t, 500*time.Millisecond, cfg.Watcher.DebounceInterval)
	assert.Equal(t, time.Second, cfg.Watcher.RenameWindow)
	assert.Equal(t, 10000, cfg.Watcher.MaxEventQueue)
	require.NoError(t, cfg.Validate())
}

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := `
indexing:
  batch_size: 25
  strategy: full
files:
  max_file_size: 1048576
embeddings:
  provider: openai
  model: text-embedding-3-small
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".codescope.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Indexing.BatchSize)
	assert.Equal(t, StrategyFull, cfg.Indexing.Strategy)
	assert.Equal(t, int64(1048576), cfg.Files.MaxFileSize)
	assert.Equal(t, "openai", cfg.Embeddings.Provider)
	// Untouched knobs keep defaults.
	assert.Equal(t, 3, cfg.Indexing.MaxConcurrency)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Indexing.BatchSize)
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".codescope.yaml"),
		[]byte("indexing:\n  max_concurrency: 2\n"), 0o644))
	t.Setenv("CODESCOPE_MAX_CONCURRENCY", "8")
	t.Setenv("CODESCOPE_VECTOR_URL", "http://qdrant:6333")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Indexing.MaxConcurrency)
	assert.Equal(t, "http://qdrant:6333", cfg.VectorStore.URL)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad strategy", func(c *Config) { c.Indexing.Strategy = "turbo" }},
		{"zero batch size", func(c *Config) { c.Indexing.BatchSize = 0 }},
		{"zero concurrency", func(c *Config) { c.Indexing.MaxConcurrency = 0 }},
		{"negative retries", func(c *Config) { c.Indexing.RetryAttempts = -1 }},
		{"zero max file size", func(c *Config) { c.Files.MaxFileSize = 0 }},
		{"overlap >= chunk size", func(c *Config) { c.Files.OverlapSize = c.Files.ChunkSize }},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "tfidf" }},
		{"non-ascending memory thresholds", func(c *Config) { c.Memory.Critical = 0.89 }},
		{"emergency above 1", func(c *Config) { c.Memory.Emergency = 1.5 }},
		{"zero event queue", func(c *Config) { c.Watcher.MaxEventQueue = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := New()
	cfg.Indexing.BatchSize = 7
	require.NoError(t, cfg.WriteYAML(path))

	loaded := New()
	require.NoError(t, loaded.loadYAML(path))
	assert.Equal(t, 7, loaded.Indexing.BatchSize)
}
