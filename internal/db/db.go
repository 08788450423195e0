package db

import (
	"context"
	"time"
)

// Store is the backend facade combining all sub-interfaces.
// Consumers should depend on the narrow sub-interfaces instead.
type Store interface {
	Pinger
	IndexManager
	AliasManager
	DocumentStore
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// IndexManager provides physical index lifecycle operations.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	ListIndexes(ctx context.Context, prefix string) ([]string, error)
}

// AliasManager maps alias names to physical indexes.
// An alias resolves to exactly one index; anything else is a configuration
// error and must be reported, never silently resolved.
type AliasManager interface {
	AliasTarget(ctx context.Context, alias string) (string, error)
	UpdateAlias(ctx context.Context, alias, index string) error
}

// DocumentStore provides document persistence under a physical index.
type DocumentStore interface {
	PutDocument(ctx context.Context, index, id string, fields map[string]any) error
	GetDocument(ctx context.Context, index, id string) (map[string]any, error)
	DeleteDocument(ctx context.Context, index, id string) error
	CountDocuments(ctx context.Context, index string) (int, error)
}

// Searcher executes structured queries against an index or alias.
type Searcher interface {
	Search(ctx context.Context, req *SearchRequest) (*SearchResult, error)
	// SupportsVectorSearch reports whether KNN query nodes can be executed.
	SupportsVectorSearch() bool
}

// SearchRequest is a structured query against a named index or alias.
type SearchRequest struct {
	Index string
	Query Node
	From  int
	Size  int
	// SourceFields limits the returned source to the named fields; empty
	// returns the full source.
	SourceFields []string
	// Timeout bounds this single request. Zero uses the store default.
	Timeout time.Duration
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total int
	Hits  []Hit
}

// Hit is a single document returned from a search.
type Hit struct {
	ID     string
	Index  string
	Score  float64
	Source map[string]any
}
