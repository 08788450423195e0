// Package searchd embeds the search service in a Go process: an in-memory
// or on-disk bleve backend behind the same document types, query language,
// and relevance behavior the server exposes over HTTP.
package searchd

import (
	"context"
	"fmt"
	"time"

	"github.com/kbforge/searchd/internal/db/bleve"
	"github.com/kbforge/searchd/internal/doctype"
	repoindex "github.com/kbforge/searchd/internal/repository/index"
	"github.com/kbforge/searchd/internal/usecase/index"
	"github.com/kbforge/searchd/internal/usecase/search"
)

// Request is an embedded search call.
type Request = search.Request

// Response is a page of search results.
type Response = search.Response

// Strategy selects the retrieval approach.
type Strategy = search.Strategy

// Retrieval strategies. The embedded backend has no vector search, so
// semantic and hybrid degrade to traditional.
const (
	StrategyTraditional = search.StrategyTraditional
	StrategySemantic    = search.StrategySemantic
	StrategyHybrid      = search.StrategyHybrid
)

// IndexStatus describes one index base's aliases.
type IndexStatus = repoindex.Status

// Client is an embedded search service.
type Client struct {
	store   *bleve.Store
	search  *search.Service
	indexer *index.Service
	indexes *repoindex.Repo
}

// Open creates an embedded client and bootstraps the indexes. With no
// options the indexes live in memory and vanish on Close.
func Open(opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	store, err := bleve.NewStore(bleve.Config{Path: o.path})
	if err != nil {
		return nil, err
	}

	repo := repoindex.New(store, o.locales, 0, o.logger)
	if err := repo.EnsureIndexes(context.Background()); err != nil {
		store.Close()
		return nil, err
	}

	return &Client{
		store:   store,
		search:  search.New(store, nil, o.cfg, o.logger),
		indexer: index.New(store, o.source, nil, o.logger),
		indexes: repo,
	}, nil
}

// Search runs one query and returns the requested page of results.
func (c *Client) Search(ctx context.Context, req *Request) (*Response, error) {
	return c.search.Search(ctx, req)
}

// IndexRecord indexes one record map. The record carries the document
// type's field names plus "id" and optionally "locale".
func (c *Client) IndexRecord(ctx context.Context, docType string, record map[string]any) error {
	return c.indexer.IndexRecord(ctx, docType, record)
}

// Index fetches a record by id from the configured record source and
// indexes it. Requires WithRecordSource.
func (c *Client) Index(ctx context.Context, docType, id string) error {
	return c.indexer.Index(ctx, docType, id)
}

// BulkIndex indexes ids from the configured record source in chunks.
// Requires WithRecordSource.
func (c *Client) BulkIndex(ctx context.Context, docType string, ids []string) error {
	return c.indexer.BulkIndex(ctx, docType, ids)
}

// Delete removes one document.
func (c *Client) Delete(ctx context.Context, docType, id string) error {
	return c.indexer.Delete(ctx, docType, id)
}

// RemoveValueFromField rewrites every document carrying value in the named
// keyword field, dropping the value.
func (c *Client) RemoveValueFromField(ctx context.Context, docType, field, value string) error {
	return c.indexer.RemoveValueFromField(ctx, docType, field, value)
}

// Statuses reports alias targets and document counts per index base.
func (c *Client) Statuses(ctx context.Context) ([]IndexStatus, error) {
	return c.indexes.Statuses(ctx)
}

// MigrateWrites builds a fresh physical index for the type and repoints its
// write alias, leaving reads on the old index until MigrateReads.
func (c *Client) MigrateWrites(ctx context.Context, docType string) (string, error) {
	t, err := resolveType(docType)
	if err != nil {
		return "", err
	}
	return c.indexes.MigrateWrites(ctx, t, time.Now())
}

// MigrateReads repoints the type's read alias at the current write index.
func (c *Client) MigrateReads(ctx context.Context, docType string) (string, error) {
	t, err := resolveType(docType)
	if err != nil {
		return "", err
	}
	return c.indexes.MigrateReads(ctx, t)
}

// Close releases the backend.
func (c *Client) Close() {
	c.store.Close()
}

func resolveType(name string) (*doctype.Type, error) {
	t, ok := doctype.ByName(name)
	if !ok {
		return nil, fmt.Errorf("searchd: unknown document type %q", name)
	}
	return t, nil
}
