package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/kbforge/searchd/internal/db"
)

// docKey builds the storage key for a document under a physical index.
// The key prefix ties the document to the index created over "<index>:".
func docKey(index, id string) string {
	return index + ":" + id
}

// PutDocument stores a document as a JSON object under the index's key prefix.
func (s *Store) PutDocument(ctx context.Context, index, id string, fields map[string]any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", id, err)
	}

	cmd := s.b().Arbitrary("JSON.SET").Keys(docKey(index, id)).Args("$", string(data)).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpDocSet, Err: err}
	}
	return nil
}

// GetDocument retrieves a stored document by id.
func (s *Store) GetDocument(ctx context.Context, index, id string) (map[string]any, error) {
	cmd := s.b().Arbitrary("JSON.GET").Keys(docKey(index, id)).Build()
	raw, err := s.do(ctx, cmd).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, db.ErrDocNotFound
		}
		return nil, &db.Error{Op: db.OpDocGet, Err: err}
	}
	if raw == "" {
		return nil, db.ErrDocNotFound
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("unmarshal document %s: %w", id, err)
	}
	return fields, nil
}

// DeleteDocument removes a document. Deleting a missing document is not an error.
func (s *Store) DeleteDocument(ctx context.Context, index, id string) error {
	cmd := s.b().Del().Key(docKey(index, id)).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpDocDel, Err: err}
	}
	return nil
}

// CountDocuments returns the number of documents in the index via a
// zero-window search.
func (s *Store) CountDocuments(ctx context.Context, index string) (int, error) {
	cmd := s.b().Arbitrary("FT.SEARCH").Args(index, "*", "LIMIT", "0", "0").Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isRedisErr(err, "unknown index name") || isRedisErr(err, "no such index") {
			return 0, db.ErrIndexNotFound
		}
		return 0, &db.Error{Op: db.OpSearch, Err: err}
	}
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, fmt.Errorf("parse count: %w", err)
	}
	return int(total), nil
}

// parseScore converts an FT.SEARCH score string, tolerating missing values.
func parseScore(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
