package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codescope/codescope/internal/errors"
)

// fakeStore implements just enough of the points API to exercise the client.
type fakeStore struct {
	mu          sync.Mutex
	collections map[string]int              // name -> dimension
	points      map[string][]map[string]any // name -> raw points
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		collections: make(map[string]int),
		points:      make(map[string][]map[string]any),
	}
}

// routePattern matches requests the way the Go 1.22+ ServeMux patterns
// ("GET /collections/{name}" etc.) would; Go 1.21's ServeMux has neither
// method patterns nor wildcards, so dispatch is done by hand.
type fakeRoute struct {
	method  string
	suffix  string // path after /collections/{name}, "" for the collection itself
	handler func(w http.ResponseWriter, r *http.Request, name string)
}

type fakeMux struct {
	routes []fakeRoute
}

func (m *fakeMux) handle(method, suffix string, h func(w http.ResponseWriter, r *http.Request, name string)) {
	m.routes = append(m.routes, fakeRoute{method: method, suffix: suffix, handler: h})
}

func (m *fakeMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest, ok := strings.CutPrefix(r.URL.Path, "/collections/")
	if !ok || rest == "" {
		http.NotFound(w, r)
		return
	}
	name, sub, _ := strings.Cut(rest, "/")
	if sub != "" {
		sub = "/" + sub
	}
	for _, rt := range m.routes {
		if rt.method == r.Method && rt.suffix == sub {
			rt.handler(w, r, name)
			return
		}
	}
	http.NotFound(w, r)
}

func (f *fakeStore) handler(t *testing.T) http.Handler {
	mux := &fakeMux{}
	mux.handle(http.MethodGet, "", func(w http.ResponseWriter, r *http.Request, name string) {
		f.mu.Lock()
		defer f.mu.Unlock()
		dim, ok := f.collections[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{
				"config": map[string]any{
					"params": map[string]any{
						"vectors": map[string]any{"size": dim},
					},
				},
			},
		})
	})
	mux.handle(http.MethodPut, "", func(w http.ResponseWriter, r *http.Request, name string) {
		var body struct {
			Vectors struct {
				Size int `json:"size"`
			} `json:"vectors"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.collections[name] = body.Vectors.Size
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.handle(http.MethodDelete, "", func(w http.ResponseWriter, r *http.Request, name string) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.collections[name]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.collections, name)
		delete(f.points, name)
		w.WriteHeader(http.StatusOK)
	})
	mux.handle(http.MethodPut, "/points", func(w http.ResponseWriter, r *http.Request, name string) {
		var body struct {
			Points []map[string]any `json:"points"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		// Upsert by id.
		for _, p := range body.Points {
			replaced := false
			for i, existing := range f.points[name] {
				if existing["id"] == p["id"] {
					f.points[name][i] = p
					replaced = true
				}
			}
			if !replaced {
				f.points[name] = append(f.points[name], p)
			}
		}
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.handle(http.MethodPost, "/points/delete", func(w http.ResponseWriter, r *http.Request, name string) {
		var body struct {
			Filter map[string]any `json:"filter"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		var kept []map[string]any
		for _, p := range f.points[name] {
			if !matches(p, body.Filter) {
				kept = append(kept, p)
			}
		}
		f.points[name] = kept
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.handle(http.MethodPost, "/points/count", func(w http.ResponseWriter, r *http.Request, name string) {
		var body struct {
			Filter map[string]any `json:"filter"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		count := 0
		for _, p := range f.points[name] {
			if matches(p, body.Filter) {
				count++
			}
		}
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"count": count}})
	})
	return mux
}

func matches(point map[string]any, filter map[string]any) bool {
	payload, _ := point["payload"].(map[string]any)
	must, _ := filter["must"].([]any)
	for _, cond := range must {
		m, _ := cond.(map[string]any)
		key, _ := m["key"].(string)
		match, _ := m["match"].(map[string]any)
		if payload[key] != match["value"] {
			return false
		}
	}
	return true
}

func testClient(t *testing.T) (*Client, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	srv := httptest.NewServer(store.handler(t))
	t.Cleanup(srv.Close)
	c := New(Config{URL: srv.URL})
	t.Cleanup(func() { _ = c.Close() })
	return c, store
}

const testChunkID = "0123456789abcdef0123456789abcdef"

func testPoint(id, projectID, relPath string) Point {
	return Point{
		ID:     id,
		Vector: []float32{0.1, 0.2},
		Payload: map[string]any{
			FieldProjectID:    projectID,
			FieldRelativePath: relPath,
		},
	}
}

func TestPointID(t *testing.T) {
	id, err := PointID(testChunkID)
	require.NoError(t, err)
	assert.Equal(t, "01234567-89ab-cdef-0123-456789abcdef", id)

	_, err = PointID("nothex")
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func TestEnsureCollection(t *testing.T) {
	c, store := testClient(t)
	ctx := context.Background()

	require.NoError(t, c.EnsureCollection(ctx, "project-abc", 768))
	assert.Equal(t, 768, store.collections["project-abc"])

	// Idempotent for the same dimension.
	require.NoError(t, c.EnsureCollection(ctx, "project-abc", 768))

	// Dimension conflict is fatal, not retryable.
	err := c.EnsureCollection(ctx, "project-abc", 1024)
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
	assert.False(t, errors.IsRetryable(err))
}

func TestCollectionExists(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()

	exists, err := c.CollectionExists(ctx, "project-x")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, c.EnsureCollection(ctx, "project-x", 8))
	exists, err = c.CollectionExists(ctx, "project-x")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDeleteCollectionMissingIsNoError(t *testing.T) {
	c, _ := testClient(t)
	assert.NoError(t, c.DeleteCollection(context.Background(), "project-gone"))
}

func TestUpsertDeleteCount(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()
	require.NoError(t, c.EnsureCollection(ctx, "project-p", 2))

	points := []Point{
		testPoint("0123456789abcdef0123456789abcde0", "p", "a.go"),
		testPoint("0123456789abcdef0123456789abcde1", "p", "a.go"),
		testPoint("0123456789abcdef0123456789abcde2", "p", "b.go"),
	}
	require.NoError(t, c.UpsertPoints(ctx, "project-p", points))

	count, err := c.CountByFilter(ctx, "project-p", Filter{ProjectID: "p", RelativePath: "a.go"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Re-upserting the same ids does not grow the collection.
	require.NoError(t, c.UpsertPoints(ctx, "project-p", points))
	count, err = c.CountByFilter(ctx, "project-p", Filter{ProjectID: "p"})
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, c.DeleteByFilter(ctx, "project-p", Filter{ProjectID: "p", RelativePath: "a.go"}))
	count, err = c.CountByFilter(ctx, "project-p", Filter{ProjectID: "p"})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUpsertRejectsBadChunkID(t *testing.T) {
	c, _ := testClient(t)
	err := c.UpsertPoints(context.Background(), "project-p", []Point{{ID: "bad"}})
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func TestServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL})
	err := c.EnsureCollection(context.Background(), "x", 8)
	require.Error(t, err)
	assert.Equal(t, errors.KindTransient, errors.KindOf(err))
	assert.True(t, errors.IsRetryable(err))
}
