package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/codescope/codescope/internal/errors"
)

const (
	DefaultVoyageModel = "voyage-code-3"
	voyageEndpoint     = "https://api.voyageai.com/v1/embeddings"

	// voyageRequestsPerSecond stays inside the basic-tier rate limit.
	voyageRequestsPerSecond = 3
)

var voyageDimensions = map[string]int{
	"voyage-code-3":  1024,
	"voyage-3":       1024,
	"voyage-3-lite":  512,
	"voyage-3-large": 1024,
}

// VoyageConfig configures the Voyage embedder.
type VoyageConfig struct {
	APIKey     string
	Endpoint   string // optional override
	Model      string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
}

// VoyageEmbedder generates embeddings through the Voyage AI HTTP API.
type VoyageEmbedder struct {
	client  *http.Client
	config  VoyageConfig
	limiter *rate.Limiter
	dims    int
}

var _ Embedder = (*VoyageEmbedder)(nil)

type voyageRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type voyageResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// NewVoyageEmbedder creates a Voyage embedder.
func NewVoyageEmbedder(cfg VoyageConfig) (*VoyageEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.Validation("embed.voyage", "api key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = voyageEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultVoyageModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	dims := cfg.Dimensions
	if dims == 0 {
		dims = voyageDimensions[cfg.Model]
	}
	return &VoyageEmbedder{
		client:  &http.Client{},
		config:  cfg,
		limiter: rate.NewLimiter(rate.Limit(voyageRequestsPerSecond), 1),
		dims:    dims,
	}, nil
}

// Embed requests embeddings for a batch of texts.
func (e *VoyageEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "embed.voyage"
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > MaxBatchSize {
		return nil, errors.Validation(op, "batch exceeds maximum size")
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, errors.Transient(op, err)
	}

	body, err := json.Marshal(voyageRequest{Input: texts, Model: e.config.Model})
	if err != nil {
		return nil, errors.Internal(op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Internal(op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.Transient(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, statusError(op, resp.StatusCode, string(data))
	}

	var parsed voyageResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.Validation(op, "malformed embedding response")
	}
	if len(parsed.Data) != len(texts) {
		return nil, errors.Validation(op, "embedding count does not match input count")
	}

	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
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

func (e *VoyageEmbedder) Dimensions() int { return e.dims }

func (e *VoyageEmbedder) Name() string { return "voyage/" + e.config.Model }

func (e *VoyageEmbedder) BatchSize() int { return e.config.BatchSize }

// Available reports readiness; the API exposes no unauthenticated probe.
func (e *VoyageEmbedder) Available(ctx context.Context) bool {
	return e.config.APIKey != ""
}

func (e *VoyageEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
