package graphstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/codescope/codescope/internal/errors"
)

// upsertBatchSize bounds how many vertices or edges go into one query.
const upsertBatchSize = 200

// commander is the slice of the redis client the store uses; tests swap in
// a fake.
type commander interface {
	Do(ctx context.Context, args ...interface{}) *redis.Cmd
}

// Client talks to a FalkorDB server over the RedisGraph protocol.
type Client struct {
	rdb    commander
	closer func() error
	config Config
}

// New creates a graph store client.
func New(cfg Config) *Client {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
	return &Client{rdb: rdb, closer: rdb.Close, config: cfg}
}

// newWithCommander is the test constructor.
func newWithCommander(rdb commander) *Client {
	return &Client{rdb: rdb, closer: func() error { return nil }, config: Config{Timeout: DefaultTimeout}}
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.closer()
}

// query runs one Cypher statement against a space.
func (c *Client) query(ctx context.Context, space, cypher string) error {
	const op = "graphstore.query"
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	if err := c.rdb.Do(ctx, "GRAPH.QUERY", space, cypher, "--compact").Err(); err != nil {
		return translateRedisError(op, err)
	}
	return nil
}

// translateRedisError maps transport failures to transient errors and
// server-side query rejections to validation errors.
func translateRedisError(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "Syntax error") || strings.Contains(msg, "Invalid input") ||
		strings.Contains(msg, "Type mismatch") {
		return errors.New(errors.KindValidation, op, msg)
	}
	return errors.Transient(op, err)
}

// Ping reports whether the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Do(ctx, "PING").Err(); err != nil {
		return errors.Transient("graphstore.Ping", err)
	}
	return nil
}

// EnsureSpace bootstraps a space's schema: indexes on entity id and source
// path. FalkorDB creates the graph on first write; index creation is the
// idempotent part. The schema is never altered in place once created.
func (c *Client) EnsureSpace(ctx context.Context, space string) error {
	for _, cypher := range []string{
		fmt.Sprintf("CREATE INDEX FOR (n:%s) ON (n.id)", vertexLabel),
		fmt.Sprintf("CREATE INDEX FOR (n:%s) ON (n.sourceRelativePath)", vertexLabel),
	} {
		if err := c.query(ctx, space, cypher); err != nil {
			if strings.Contains(err.Error(), "already indexed") ||
				strings.Contains(err.Error(), "already exists") {
				continue
			}
			return err
		}
	}
	return nil
}

// UpsertVertices merges vertices by id in bounded batches.
func (c *Client) UpsertVertices(ctx context.Context, space string, vertices []Vertex) error {
	for start := 0; start < len(vertices); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(vertices) {
			end = len(vertices)
		}
		batch := vertices[start:end]

		literals := make([]string, len(batch))
		for i, v := range batch {
			literals[i] = v.literal()
		}
		cypher := fmt.Sprintf(
			"UNWIND [%s] AS v MERGE (n:%s {id: v.id}) SET n = v",
			strings.Join(literals, ","), vertexLabel,
		)
		if err := c.query(ctx, space, cypher); err != nil {
			return err
		}
	}
	return nil
}

// UpsertEdges merges edges in bounded batches, grouped by edge type since
// the type is part of the Cypher pattern. Callers write vertices first.
func (c *Client) UpsertEdges(ctx context.Context, space string, edges []Edge) error {
	const op = "graphstore.UpsertEdges"
	byType := make(map[string][]Edge)
	order := make([]string, 0, 4)
	for _, e := range edges {
		if !validEdgeType(e.Type) {
			return errors.Validation(op, "invalid edge type: "+e.Type)
		}
		if _, ok := byType[e.Type]; !ok {
			order = append(order, e.Type)
		}
		byType[e.Type] = append(byType[e.Type], e)
	}

	for _, edgeType := range order {
		group := byType[edgeType]
		for start := 0; start < len(group); start += upsertBatchSize {
			end := start + upsertBatchSize
			if end > len(group) {
				end = len(group)
			}
			batch := group[start:end]

			literals := make([]string, len(batch))
			for i, e := range batch {
				literals[i] = e.literal()
			}
			cypher := fmt.Sprintf(
				"UNWIND [%s] AS e MATCH (a:%s {id: e.from}), (b:%s {id: e.to}) "+
					"MERGE (a)-[r:%s {id: e.id}]->(b) SET r.category = e.category",
				strings.Join(literals, ","), vertexLabel, vertexLabel, edgeType,
			)
			if err := c.query(ctx, space, cypher); err != nil {
				return err
			}
		}
	}
	return nil
}

// DeleteBySourcePath removes every vertex extracted from the given file,
// detaching its edges. Same-file endpoints mean no edge survives its file.
func (c *Client) DeleteBySourcePath(ctx context.Context, space, relPath string) error {
	cypher := fmt.Sprintf(
		"MATCH (n:%s {sourceRelativePath: '%s'}) DETACH DELETE n",
		vertexLabel, escape(relPath),
	)
	return c.query(ctx, space, cypher)
}

// CountBySourcePath returns the number of vertices for a file.
func (c *Client) CountBySourcePath(ctx context.Context, space, relPath string) (int, error) {
	const op = "graphstore.CountBySourcePath"
	cypher := fmt.Sprintf(
		"MATCH (n:%s {sourceRelativePath: '%s'}) RETURN count(n)",
		vertexLabel, escape(relPath),
	)
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	res, err := c.rdb.Do(ctx, "GRAPH.QUERY", space, cypher, "--compact").Result()
	if err != nil {
		return 0, translateRedisError(op, err)
	}
	return parseCount(res), nil
}

// parseCount digs the single integer out of a compact query reply. Replies
// it cannot interpret count as zero.
func parseCount(res any) int {
	rows, ok := res.([]any)
	if !ok || len(rows) < 2 {
		return 0
	}
	data, ok := rows[1].([]any)
	if !ok || len(data) == 0 {
		return 0
	}
	row, ok := data[0].([]any)
	if !ok || len(row) == 0 {
		return 0
	}
	return toInt(row[0])
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case []any:
		if len(n) == 2 {
			// Compact scalar encoding: [type, value].
			return toInt(n[1])
		}
	}
	return 0
}

// DropSpace deletes the whole graph. A missing space is not an error.
func (c *Client) DropSpace(ctx context.Context, space string) error {
	const op = "graphstore.DropSpace"
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	if err := c.rdb.Do(ctx, "GRAPH.DELETE", space).Err(); err != nil {
		if strings.Contains(err.Error(), "Invalid graph operation on empty key") ||
			strings.Contains(err.Error(), "empty key") {
			return nil
		}
		return translateRedisError(op, err)
	}
	return nil
}
