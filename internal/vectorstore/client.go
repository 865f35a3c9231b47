// Package vectorstore is a Qdrant REST client scoped to per-project
// collections: lifecycle, point upserts, and payload-filtered deletes.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codescope/codescope/internal/errors"
)

const DefaultURL = "http://localhost:6333"

// Payload field names. These match what the indexing pipeline writes and
// what delete filters select on.
const (
	FieldProjectID    = "projectId"
	FieldRelativePath = "relativePath"
	FieldStartLine    = "startLine"
	FieldEndLine      = "endLine"
	FieldChunkType    = "chunkType"
	FieldLanguage     = "language"
	FieldContentHash  = "contentHash"
	FieldContent      = "content"
)

// Point is one vector with its payload.
type Point struct {
	ID      string `json:"id"`
	Vector  []float32
	Payload map[string]any
}

// Config configures the client.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Client talks to a Qdrant-compatible HTTP API.
type Client struct {
	http   *http.Client
	config Config
}

// New creates a vector store client.
func New(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		http:   &http.Client{Transport: &http.Transport{MaxIdleConnsPerHost: 4}},
		config: cfg,
	}
}

// Close drops idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// do issues one JSON request and decodes the response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	op := "vectorstore." + method + " " + path

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Internal(op, err)
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.config.URL+path, reader)
	if err != nil {
		return errors.Internal(op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("api-key", c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Transient(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return errors.NotFound(op, "not found")
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := string(data)
		if resp.StatusCode >= 500 {
			return errors.New(errors.KindTransient, op, msg)
		}
		return errors.Validation(op, msg)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Validation(op, "malformed store response")
		}
	}
	return nil
}

type collectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

// CollectionExists reports whether the collection is present.
func (c *Client) CollectionExists(ctx context.Context, name string) (bool, error) {
	err := c.do(ctx, http.MethodGet, "/collections/"+name, nil, nil)
	if err == nil {
		return true, nil
	}
	if errors.KindOf(err) == errors.KindNotFound {
		return false, nil
	}
	return false, err
}

// EnsureCollection creates the collection with the given dimension, or
// verifies the dimension when it already exists. A dimension conflict is a
// validation error: collections are immutable in dimension.
func (c *Client) EnsureCollection(ctx context.Context, name string, dim int) error {
	const op = "vectorstore.EnsureCollection"
	if dim <= 0 {
		return errors.Validation(op, "dimension must be positive")
	}

	var info collectionInfo
	err := c.do(ctx, http.MethodGet, "/collections/"+name, nil, &info)
	if err == nil {
		if got := info.Result.Config.Params.Vectors.Size; got != dim {
			return errors.Validation(op, fmt.Sprintf("collection %s has dimension %d, embedder produces %d", name, got, dim))
		}
		return nil
	}
	if errors.KindOf(err) != errors.KindNotFound {
		return err
	}

	body := map[string]any{
		"vectors": map[string]any{"size": dim, "distance": "Cosine"},
	}
	return c.do(ctx, http.MethodPut, "/collections/"+name, body, nil)
}

// DeleteCollection removes the collection. Deleting a missing collection is
// not an error.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	err := c.do(ctx, http.MethodDelete, "/collections/"+name, nil, nil)
	if err != nil && errors.KindOf(err) == errors.KindNotFound {
		return nil
	}
	return err
}

// UpsertPoints writes points into the collection. Point ids are the 32-hex
// chunk ids formatted as UUIDs, so re-upserting a chunk overwrites in place.
func (c *Client) UpsertPoints(ctx context.Context, name string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	body := map[string]any{"points": make([]map[string]any, 0, len(points))}
	list := body["points"].([]map[string]any)
	for _, p := range points {
		id, err := PointID(p.ID)
		if err != nil {
			return err
		}
		list = append(list, map[string]any{
			"id":      id,
			"vector":  p.Vector,
			"payload": p.Payload,
		})
	}
	body["points"] = list
	return c.do(ctx, http.MethodPut, "/collections/"+name+"/points?wait=true", body, nil)
}
