package embed

import (
	"context"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/codescope/codescope/internal/errors"
)

const (
	DefaultOpenAIModel = "text-embedding-3-small"

	// openaiRequestsPerSecond bounds the request rate to stay inside the
	// provider's default tier limits.
	openaiRequestsPerSecond = 5
)

// openaiDimensions maps known models to their embedding dimension.
var openaiDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIConfig configures the OpenAI embedder.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string // optional, for compatible endpoints
	Model      string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
}

// OpenAIEmbedder generates embeddings through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client  *openai.Client
	config  OpenAIConfig
	limiter *rate.Limiter
	dims    int
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an OpenAI embedder.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.Validation("embed.openai", "api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	dims := cfg.Dimensions
	if dims == 0 {
		dims = openaiDimensions[cfg.Model]
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIEmbedder{
		client:  openai.NewClientWithConfig(clientCfg),
		config:  cfg,
		limiter: rate.NewLimiter(rate.Limit(openaiRequestsPerSecond), 1),
		dims:    dims,
	}, nil
}

// Embed requests embeddings for a batch of texts.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "embed.openai"
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > MaxBatchSize {
		return nil, errors.Validation(op, "batch exceeds maximum size")
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, errors.Transient(op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.config.Model),
	}
	if e.config.Dimensions > 0 {
		req.Dimensions = e.config.Dimensions
	}
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, translateOpenAIError(op, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.Validation(op, "embedding count does not match input count")
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, errors.Validation(op, "embedding index out of range")
		}
		if e.dims == 0 {
			e.dims = len(d.Embedding)
		}
		if len(d.Embedding) != e.dims {
			return nil, dimensionError(op, e.dims, len(d.Embedding))
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func translateOpenAIError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError(op, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusError(op, reqErr.HTTPStatusCode, reqErr.Error())
	}
	return errors.Transient(op, err)
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dims }

func (e *OpenAIEmbedder) Name() string { return "openai/" + e.config.Model }

func (e *OpenAIEmbedder) BatchSize() int { return e.config.BatchSize }

// Available reports readiness. The embeddings API has no cheap health probe,
// so a configured client is considered available.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	return e.client != nil
}

func (e *OpenAIEmbedder) Close() error { return nil }
