package search

import (
	"context"

	"github.com/kbforge/searchd/internal/db"
	"github.com/kbforge/searchd/internal/embedding"
)

// Searcher executes structured queries against the backend.
type Searcher interface {
	Search(ctx context.Context, req *db.SearchRequest) (*db.SearchResult, error)
	SupportsVectorSearch() bool
}

// Embedder vectorizes query text for semantic retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) (embedding.Result, error)
}
