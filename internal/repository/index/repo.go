// Package index manages the physical index lifecycle behind the per-type
// read and write aliases. Schema changes are deployed by building a new
// timestamp-suffixed physical index and swapping aliases in two phases,
// never by altering an index in place.
package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kbforge/searchd/internal/db"
	"github.com/kbforge/searchd/internal/doctype"
)

// store is the consumer interface for index lifecycle operations.
type store interface {
	db.IndexManager
	db.AliasManager
	db.DocumentStore
}

// Repo manages index creation and alias migration for all document types.
//
// MigrateWrites and MigrateReads on the same type are not safe to run
// concurrently; callers serialize them (they are deployment steps, not
// request handling).
type Repo struct {
	store     store
	locales   []string
	vectorDim int
	logger    *zap.Logger
}

// New creates an index repository. vectorDim of zero builds schemas without
// vector fields.
func New(s store, locales []string, vectorDim int, logger *zap.Logger) *Repo {
	return &Repo{store: s, locales: locales, vectorDim: vectorDim, logger: logger}
}

// MigrateWrites creates a new timestamp-suffixed physical index for the type
// and repoints the write alias at it. The read alias is untouched: an
// operator backfills the new index before calling MigrateReads.
func (r *Repo) MigrateWrites(ctx context.Context, t *doctype.Type, ts time.Time) (string, error) {
	// Names have one-second granularity; bump past an index created in the
	// same second.
	var name string
	for attempt := 0; ; attempt++ {
		name = t.PhysicalIndexName(ts.Add(time.Duration(attempt) * time.Second))

		def, err := t.IndexDefinition(name, r.locales, r.vectorDim)
		if err != nil {
			return "", fmt.Errorf("build %s index definition: %w", t.Name, err)
		}
		err = r.store.CreateIndex(ctx, def)
		if err == nil {
			break
		}
		if errors.Is(err, db.ErrIndexExists) && attempt < 2 {
			continue
		}
		return "", fmt.Errorf("create index %s: %w", name, err)
	}
	if err := r.store.UpdateAlias(ctx, t.WriteAlias(), name); err != nil {
		return "", fmt.Errorf("repoint %s: %w", t.WriteAlias(), err)
	}

	r.logger.Info("write alias migrated",
		zap.String("doc_type", t.Name),
		zap.String("index", name))
	return name, nil
}

// MigrateReads repoints the read alias to wherever the write alias currently
// points. This is the go-live step of a reindex.
func (r *Repo) MigrateReads(ctx context.Context, t *doctype.Type) (string, error) {
	target, err := r.store.AliasTarget(ctx, t.WriteAlias())
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", t.WriteAlias(), err)
	}
	if err := r.store.UpdateAlias(ctx, t.ReadAlias(), target); err != nil {
		return "", fmt.Errorf("repoint %s: %w", t.ReadAlias(), err)
	}

	r.logger.Info("read alias migrated",
		zap.String("doc_type", t.Name),
		zap.String("index", target))
	return target, nil
}

// WriteIndex resolves the physical index documents are currently written to.
func (r *Repo) WriteIndex(ctx context.Context, t *doctype.Type) (string, error) {
	target, err := r.store.AliasTarget(ctx, t.WriteAlias())
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", t.WriteAlias(), err)
	}
	return target, nil
}

// EnsureIndexes bootstraps both aliases for every index base that has none
// yet. Existing aliases are left alone.
func (r *Repo) EnsureIndexes(ctx context.Context) error {
	now := time.Now()
	for _, t := range uniqueBases() {
		_, err := r.store.AliasTarget(ctx, t.WriteAlias())
		if err == nil {
			continue
		}
		if !errors.Is(err, db.ErrAliasNotFound) {
			return fmt.Errorf("check %s: %w", t.WriteAlias(), err)
		}
		if _, err := r.MigrateWrites(ctx, t, now); err != nil {
			return err
		}
		if _, err := r.MigrateReads(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// Status describes one index base's aliases.
type Status struct {
	DocType    string `json:"doc_type"`
	ReadIndex  string `json:"read_index"`
	WriteIndex string `json:"write_index"`
	Docs       int    `json:"docs"`
}

// Diverged reports that a reindex is in flight: writes land in an index not
// yet exposed to reads.
func (s Status) Diverged() bool {
	return s.ReadIndex != s.WriteIndex
}

// Statuses reports alias targets and document counts per index base.
func (r *Repo) Statuses(ctx context.Context) ([]Status, error) {
	var out []Status
	for _, t := range uniqueBases() {
		st := Status{DocType: t.Name}

		read, err := r.store.AliasTarget(ctx, t.ReadAlias())
		if err != nil && !errors.Is(err, db.ErrAliasNotFound) {
			return nil, fmt.Errorf("resolve %s: %w", t.ReadAlias(), err)
		}
		st.ReadIndex = read

		write, err := r.store.AliasTarget(ctx, t.WriteAlias())
		if err != nil && !errors.Is(err, db.ErrAliasNotFound) {
			return nil, fmt.Errorf("resolve %s: %w", t.WriteAlias(), err)
		}
		st.WriteIndex = write

		if read != "" {
			n, err := r.store.CountDocuments(ctx, read)
			if err != nil {
				return nil, fmt.Errorf("count %s: %w", read, err)
			}
			st.Docs = n
		}
		out = append(out, st)
	}
	return out, nil
}

// CheckAliases verifies every read and write alias resolves to exactly one
// index. Used by health reporting.
func (r *Repo) CheckAliases(ctx context.Context) error {
	for _, t := range uniqueBases() {
		if _, err := r.store.AliasTarget(ctx, t.ReadAlias()); err != nil {
			return fmt.Errorf("resolve %s: %w", t.ReadAlias(), err)
		}
		if _, err := r.store.AliasTarget(ctx, t.WriteAlias()); err != nil {
			return fmt.Errorf("resolve %s: %w", t.WriteAlias(), err)
		}
	}
	return nil
}

// uniqueBases returns one representative type per index base; answers share
// the question index.
func uniqueBases() []*doctype.Type {
	seen := make(map[string]bool)
	var out []*doctype.Type
	for _, t := range doctype.All {
		if seen[t.IndexBase] {
			continue
		}
		seen[t.IndexBase] = true
		out = append(out, t)
	}
	return out
}
