package index

import (
	"context"

	"github.com/kbforge/searchd/internal/db"
	"github.com/kbforge/searchd/internal/embedding"
)

// Store is the backend surface indexing needs: write-alias resolution,
// document persistence, and search for field rewrites.
type Store interface {
	AliasTarget(ctx context.Context, alias string) (string, error)
	PutDocument(ctx context.Context, index, id string, fields map[string]any) error
	DeleteDocument(ctx context.Context, index, id string) error
	Search(ctx context.Context, req *db.SearchRequest) (*db.SearchResult, error)
}

// RecordSource supplies domain records for indexing. Records are flat
// attribute maps keyed by the field names of the document type.
type RecordSource interface {
	// Fetch returns the record for one document, or nil when the record no
	// longer exists.
	Fetch(ctx context.Context, docType, id string) (map[string]any, error)
	// FetchMany returns the records that still exist among ids, in any
	// order. Missing ids are simply absent.
	FetchMany(ctx context.Context, docType string, ids []string) ([]map[string]any, error)
}

// Embedder vectorizes document text for semantic retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) (embedding.Result, error)
}
