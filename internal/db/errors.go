package db

import (
	"errors"
	"fmt"
)

// Sentinel errors for backend operations.
var (
	ErrIndexNotFound = errors.New("db: index not found")
	ErrIndexExists   = errors.New("db: index already exists")
	ErrDocNotFound   = errors.New("db: document not found")
	ErrAliasNotFound = errors.New("db: alias not found")
	// ErrQueryRejected marks a backend rejection of the compiled query
	// itself (syntax-class failure). The orchestrator retries such
	// failures once with query parsing disabled.
	ErrQueryRejected = errors.New("db: query rejected by backend")
	// ErrVectorUnsupported is returned for KNN nodes on backends without
	// vector retrieval.
	ErrVectorUnsupported = errors.New("db: vector search not supported by backend")
)

// Op constants name backend operations for error context.
const (
	OpCreateIndex = "create_index"
	OpDropIndex   = "drop_index"
	OpIndexInfo   = "index_info"
	OpIndexList   = "index_list"
	OpAliasUpdate = "alias_update"
	OpSearch      = "search"
	OpDocSet      = "doc_set"
	OpDocGet      = "doc_get"
	OpDocDel      = "doc_del"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// AmbiguousAliasError reports an alias resolving to more than one index.
// This is an operational mistake and is always fatal.
type AmbiguousAliasError struct {
	Alias   string
	Indexes []string
}

func (e *AmbiguousAliasError) Error() string {
	return fmt.Sprintf("alias %q points at %d indexes, expected exactly one", e.Alias, len(e.Indexes))
}

// IsQueryRejected reports whether err is a syntax-class backend rejection.
func IsQueryRejected(err error) bool {
	return errors.Is(err, ErrQueryRejected)
}
