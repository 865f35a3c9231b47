package vectorstore

import (
	"context"
	"net/http"
	"regexp"

	"github.com/codescope/codescope/internal/errors"
)

var hex32 = regexp.MustCompile(`^[0-9a-f]{32}$`)

// PointID converts a 32-hex chunk id into UUID form, which the store
// requires for point ids. The mapping is a pure reformatting, so it stays
// deterministic.
func PointID(chunkID string) (string, error) {
	if !hex32.MatchString(chunkID) {
		return "", errors.Validation("vectorstore.PointID", "chunk id is not 32 hex characters: "+chunkID)
	}
	return chunkID[0:8] + "-" + chunkID[8:12] + "-" + chunkID[12:16] + "-" + chunkID[16:20] + "-" + chunkID[20:32], nil
}

// Filter matches points by payload fields. Zero-value fields are omitted
// from the generated filter.
type Filter struct {
	ProjectID    string
	RelativePath string
}

func (f Filter) toRequest() map[string]any {
	var must []map[string]any
	if f.ProjectID != "" {
		must = append(must, map[string]any{
			"key":   FieldProjectID,
			"match": map[string]any{"value": f.ProjectID},
		})
	}
	if f.RelativePath != "" {
		must = append(must, map[string]any{
			"key":   FieldRelativePath,
			"match": map[string]any{"value": f.RelativePath},
		})
	}
	return map[string]any{"must": must}
}

// DeleteByFilter removes all points whose payload matches the filter.
func (c *Client) DeleteByFilter(ctx context.Context, name string, filter Filter) error {
	body := map[string]any{"filter": filter.toRequest()}
	err := c.do(ctx, http.MethodPost, "/collections/"+name+"/points/delete?wait=true", body, nil)
	if err != nil && errors.KindOf(err) == errors.KindNotFound {
		// Nothing to delete when the collection does not exist yet.
		return nil
	}
	return err
}

type countResponse struct {
	Result struct {
		Count int `json:"count"`
	} `json:"result"`
}

// CountByFilter returns the number of points matching the filter.
func (c *Client) CountByFilter(ctx context.Context, name string, filter Filter) (int, error) {
	body := map[string]any{"filter": filter.toRequest(), "exact": true}
	var resp countResponse
	if err := c.do(ctx, http.MethodPost, "/collections/"+name+"/points/count", body, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}
