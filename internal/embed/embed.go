// Package embed provides a uniform client interface over remote embedding
// providers (Ollama, OpenAI, Voyage).
package embed

import (
	"context"
	"strconv"
	"time"

	"github.com/codescope/codescope/internal/errors"
)

const (
	// MaxBatchSize caps a single embedding request.
	MaxBatchSize = 256

	// DefaultBatchSize is used when a provider does not declare one.
	DefaultBatchSize = 32

	// DefaultTimeout bounds a single embedding HTTP call.
	DefaultTimeout = 30 * time.Second
)

// Embedder generates vector embeddings for batches of text.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// Name returns the provider/model identifier.
	Name() string

	// BatchSize returns the provider's preferred batch size.
	BatchSize() int

	// Available reports whether the provider is reachable.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// statusError maps an HTTP status to the error taxonomy: 5xx and 429 are
// retryable, other 4xx are caller mistakes.
func statusError(op string, status int, body string) error {
	msg := "embedding request failed"
	if body != "" {
		msg = body
	}
	switch {
	case status == 429 || status >= 500:
		return errors.New(errors.KindTransient, op, msg).WithDetail("status", strconv.Itoa(status))
	default:
		return errors.Validation(op, msg).WithDetail("status", strconv.Itoa(status))
	}
}

// dimensionError reports a vector that does not match the expected dimension.
func dimensionError(op string, want, got int) error {
	return errors.Validation(op, "embedding dimension mismatch").
		WithDetail("want", strconv.Itoa(want)).
		WithDetail("got", strconv.Itoa(got))
}
