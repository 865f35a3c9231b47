// Package config loads and validates codescope configuration.
//
// Configuration is layered, later layers winning:
//  1. built-in defaults
//  2. user config (~/.config/codescope/config.yaml)
//  3. project config (.codescope.yaml in the project root)
//  4. CODESCOPE_* environment variables
//
// Each knob has exactly one canonical key; no deprecated aliases are honored.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete codescope configuration.
type Config struct {
	Version     int              `yaml:"version"`
	Paths       PathsConfig      `yaml:"paths"`
	Indexing    IndexingConfig   `yaml:"indexing"`
	Files       FilesConfig      `yaml:"files"`
	Embeddings  EmbeddingsConfig `yaml:"embeddings"`
	VectorStore VectorConfig     `yaml:"vector_store"`
	GraphStore  GraphConfig      `yaml:"graph_store"`
	Memory      MemoryConfig     `yaml:"memory"`
	Watcher     WatcherConfig    `yaml:"watcher"`
	Logging     LoggingConfig    `yaml:"logging"`
}

// PathsConfig configures caller-supplied include and exclude globs.
// These stack on top of .gitignore and .indexignore handling.
type PathsConfig struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// IndexingConfig configures the indexing coordinator.
type IndexingConfig struct {
	// BatchSize is the number of chunks per embedding/store batch.
	BatchSize int `yaml:"batch_size"`

	// MaxConcurrency is the per-project worker pool size.
	MaxConcurrency int `yaml:"max_concurrency"`

	// RetryAttempts bounds retries of transient failures.
	RetryAttempts int `yaml:"retry_attempts"`

	// RetryDelay is the initial backoff delay.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// Timeout bounds each external call made during indexing.
	Timeout time.Duration `yaml:"timeout"`

	// Strategy selects full, incremental, or smart indexing.
	// Smart runs incremental when file state exists and full otherwise.
	Strategy string `yaml:"strategy"`
}

// FilesConfig configures file discovery and chunk sizing.
type FilesConfig struct {
	// MaxFileSize is the largest file the walker will emit, in bytes.
	MaxFileSize int64 `yaml:"max_file_size"`

	// SupportedExtensions whitelists file extensions. Empty means the
	// built-in language table decides.
	SupportedExtensions []string `yaml:"supported_extensions"`

	// ChunkSize is the target chunk size in characters.
	ChunkSize int `yaml:"chunk_size"`

	// OverlapSize is the overlap window between adjacent chunks, characters.
	OverlapSize int `yaml:"overlap_size"`

	// MinChunkSize drops smaller chunks unless they are indivisible nodes.
	MinChunkSize int `yaml:"min_chunk_size"`

	// MaxChunkSize is the hard upper bound per chunk.
	MaxChunkSize int `yaml:"max_chunk_size"`
}

// Embedding provider names.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderVoyage = "voyage"
)

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider"` // ollama, openai, voyage
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`

	// Ollama settings (default, local)
	OllamaHost string `yaml:"ollama_host"`

	// OpenAI-compatible settings; the key is read from OPENAI_API_KEY.
	OpenAIBaseURL string `yaml:"openai_base_url"`

	Timeout time.Duration `yaml:"timeout"`
}

// VectorConfig configures the vector store client.
type VectorConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// GraphConfig configures the graph store client.
type GraphConfig struct {
	Addr        string        `yaml:"addr"`
	PasswordEnv string        `yaml:"password_env"`
	Timeout     time.Duration `yaml:"timeout"`
}

// MemoryConfig configures the memory guard thresholds as heap-used ratios.
type MemoryConfig struct {
	Warning       float64       `yaml:"warning"`
	Critical      float64       `yaml:"critical"`
	Emergency     float64       `yaml:"emergency"`
	CheckInterval time.Duration `yaml:"check_interval"`
}

// WatcherConfig configures filesystem change detection.
type WatcherConfig struct {
	DebounceInterval time.Duration `yaml:"debounce_interval"`
	RenameWindow     time.Duration `yaml:"rename_window"`
	MaxEventQueue    int           `yaml:"max_event_queue"`
	PollInterval     time.Duration `yaml:"poll_interval"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	File      string `yaml:"file"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
}

// Strategy names.
const (
	StrategyFull        = "full"
	StrategyIncremental = "incremental"
	StrategySmart       = "smart"
)

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Version: 1,
		Indexing: IndexingConfig{
			BatchSize:      50,
			MaxConcurrency: 3,
			RetryAttempts:  3,
			RetryDelay:     1 * time.Second,
			Timeout:        30 * time.Second,
			Strategy:       StrategySmart,
		},
		Files: FilesConfig{
			MaxFileSize:  10 * 1024 * 1024,
			ChunkSize:    1000,
			OverlapSize:  200,
			MinChunkSize: 100,
			MaxChunkSize: 4000,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			OllamaHost: "http://localhost:11434",
			BatchSize:  32,
			Timeout:    30 * time.Second,
		},
		VectorStore: VectorConfig{
			URL:     "http://localhost:6333",
			Timeout: 30 * time.Second,
		},
		GraphStore: GraphConfig{
			Addr:        "localhost:6379",
			PasswordEnv: "CODESCOPE_GRAPH_PASSWORD",
			Timeout:     10 * time.Second,
		},
		Memory: MemoryConfig{
			Warning:       0.90,
			Critical:      0.94,
			Emergency:     0.98,
			CheckInterval: 30 * time.Second,
		},
		Watcher: WatcherConfig{
			DebounceInterval: 500 * time.Millisecond,
			RenameWindow:     1 * time.Second,
			MaxEventQueue:    10000,
			PollInterval:     5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// UserConfigPath returns the path of the per-user config file.
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "codescope", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "codescope", "config.yaml")
}

// Load builds the effective configuration for a project directory.
func Load(dir string) (*Config, error) {
	cfg := New()

	if path := UserConfigPath(); path != "" {
		if err := cfg.loadYAML(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadProjectFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadProjectFile reads .codescope.yaml (or .yml) from the project root.
// A missing file is fine; defaults apply.
func (c *Config) loadProjectFile(dir string) error {
	for _, name := range []string{".codescope.yaml", ".codescope.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return c.loadYAML(path)
		}
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies CODESCOPE_* environment variables, the highest
// precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CODESCOPE_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("CODESCOPE_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("CODESCOPE_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("CODESCOPE_VECTOR_URL"); v != "" {
		c.VectorStore.URL = v
	}
	if v := os.Getenv("CODESCOPE_GRAPH_ADDR"); v != "" {
		c.GraphStore.Addr = v
	}
	if v := os.Getenv("CODESCOPE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CODESCOPE_INDEXING_STRATEGY"); v != "" {
		c.Indexing.Strategy = v
	}
	if v := os.Getenv("CODESCOPE_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexing.MaxConcurrency = n
		}
	}
	if v := os.Getenv("CODESCOPE_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexing.BatchSize = n
		}
	}
}

// Validate checks the final configuration.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Indexing.Strategy) {
	case StrategyFull, StrategyIncremental, StrategySmart:
	default:
		return fmt.Errorf("indexing.strategy must be full, incremental, or smart, got %q", c.Indexing.Strategy)
	}

	if c.Indexing.BatchSize <= 0 {
		return fmt.Errorf("indexing.batch_size must be positive, got %d", c.Indexing.BatchSize)
	}
	if c.Indexing.MaxConcurrency <= 0 {
		return fmt.Errorf("indexing.max_concurrency must be positive, got %d", c.Indexing.MaxConcurrency)
	}
	if c.Indexing.RetryAttempts < 0 {
		return fmt.Errorf("indexing.retry_attempts must be non-negative, got %d", c.Indexing.RetryAttempts)
	}

	if c.Files.MaxFileSize <= 0 {
		return fmt.Errorf("files.max_file_size must be positive, got %d", c.Files.MaxFileSize)
	}
	if c.Files.MinChunkSize < 0 || c.Files.MaxChunkSize < c.Files.MinChunkSize {
		return fmt.Errorf("files chunk bounds invalid: min=%d max=%d", c.Files.MinChunkSize, c.Files.MaxChunkSize)
	}
	if c.Files.OverlapSize >= c.Files.ChunkSize {
		return fmt.Errorf("files.overlap_size (%d) must be smaller than files.chunk_size (%d)", c.Files.OverlapSize, c.Files.ChunkSize)
	}

	validProviders := map[string]bool{"ollama": true, "openai": true, "voyage": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be ollama, openai, or voyage, got %q", c.Embeddings.Provider)
	}

	if !(c.Memory.Warning < c.Memory.Critical && c.Memory.Critical < c.Memory.Emergency) {
		return fmt.Errorf("memory thresholds must be ascending: warning=%.2f critical=%.2f emergency=%.2f",
			c.Memory.Warning, c.Memory.Critical, c.Memory.Emergency)
	}
	if c.Memory.Emergency > 1.0 || c.Memory.Warning <= 0 {
		return fmt.Errorf("memory thresholds must be ratios in (0, 1]")
	}

	if c.Watcher.MaxEventQueue <= 0 {
		return fmt.Errorf("watcher.max_event_queue must be positive, got %d", c.Watcher.MaxEventQueue)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

// WriteYAML writes the configuration to a file, creating parent directories.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
