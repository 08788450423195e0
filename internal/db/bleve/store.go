// Package bleve implements db.Store on an embedded Bleve index, giving a
// zero-dependency local backend for development and tests. It has no vector
// retrieval: semantic and hybrid strategies degrade per their fallback rules.
package bleve

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"

	"github.com/kbforge/searchd/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

const aliasFile = "aliases.json"

// Config holds parameters for an embedded store.
type Config struct {
	// Path is the directory holding one sub-directory per physical index.
	// Empty means memory-only (tests).
	Path           string
	RequestTimeout time.Duration
}

// Store implements db.Store over embedded bleve indexes plus an in-process
// alias registry.
type Store struct {
	mu             sync.RWMutex
	path           string
	indexes        map[string]bleve.Index
	aliases        map[string][]string
	requestTimeout time.Duration
}

// NewStore opens (or creates) an embedded store rooted at cfg.Path.
func NewStore(cfg Config) (*Store, error) {
	s := &Store{
		path:           cfg.Path,
		indexes:        make(map[string]bleve.Index),
		aliases:        make(map[string][]string),
		requestTimeout: cfg.RequestTimeout,
	}
	if s.requestTimeout <= 0 {
		s.requestTimeout = 5 * time.Second
	}

	if cfg.Path != "" {
		if err := s.openExisting(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) openExisting() error {
	if err := os.MkdirAll(s.path, 0o750); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	entries, err := os.ReadDir(s.path)
	if err != nil {
		return fmt.Errorf("read store dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		idx, err := bleve.Open(filepath.Join(s.path, e.Name()))
		if err != nil {
			return fmt.Errorf("open index %s: %w", e.Name(), err)
		}
		s.indexes[e.Name()] = idx
	}

	data, err := os.ReadFile(filepath.Join(s.path, aliasFile))
	if err == nil {
		if err := json.Unmarshal(data, &s.aliases); err != nil {
			return fmt.Errorf("parse alias registry: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read alias registry: %w", err)
	}
	return nil
}

func (s *Store) saveAliases() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.aliases, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.path, aliasFile), data, 0o600)
}

// Ping always succeeds for an embedded store.
func (s *Store) Ping(_ context.Context) error { return nil }

// WaitForReady is immediate for an embedded store.
func (s *Store) WaitForReady(_ context.Context, _ time.Duration) error { return nil }

// Close closes all open indexes.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, idx := range s.indexes {
		_ = idx.Close()
	}
	s.indexes = make(map[string]bleve.Index)
}

// SupportsVectorSearch returns false: the embedded driver has no KNN.
func (s *Store) SupportsVectorSearch() bool { return false }

// CreateIndex creates a physical bleve index with a mapping derived from def.
func (s *Store) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.indexes[def.Name]; ok {
		return db.ErrIndexExists
	}

	imap, err := buildMapping(def)
	if err != nil {
		return err
	}

	var idx bleve.Index
	if s.path == "" {
		idx, err = bleve.NewMemOnly(imap)
	} else {
		idx, err = bleve.New(filepath.Join(s.path, def.Name), imap)
	}
	if err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}

	s.indexes[def.Name] = idx
	return nil
}

// DropIndex closes and removes a physical index.
func (s *Store) DropIndex(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indexes[name]
	if !ok {
		return db.ErrIndexNotFound
	}
	if err := idx.Close(); err != nil {
		return &db.Error{Op: db.OpDropIndex, Err: err}
	}
	delete(s.indexes, name)

	if s.path != "" {
		if err := os.RemoveAll(filepath.Join(s.path, name)); err != nil {
			return &db.Error{Op: db.OpDropIndex, Err: err}
		}
	}
	return nil
}

// IndexExists reports whether a physical index is open.
func (s *Store) IndexExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.indexes[name]
	return ok, nil
}

// ListIndexes returns open physical index names starting with prefix.
func (s *Store) ListIndexes(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	for name := range s.indexes {
		if prefix == "" || strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// AliasTarget resolves an alias to its single physical index.
func (s *Store) AliasTarget(_ context.Context, alias string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	targets, ok := s.aliases[alias]
	if !ok || len(targets) == 0 {
		return "", db.ErrAliasNotFound
	}
	if len(targets) > 1 {
		return "", &db.AmbiguousAliasError{Alias: alias, Indexes: targets}
	}
	return targets[0], nil
}

// UpdateAlias points alias at index, creating the alias if needed.
func (s *Store) UpdateAlias(_ context.Context, alias, index string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.indexes[index]; !ok {
		return db.ErrIndexNotFound
	}
	s.aliases[alias] = []string{index}
	if err := s.saveAliases(); err != nil {
		return &db.Error{Op: db.OpAliasUpdate, Err: err}
	}
	return nil
}

// setAliasTargets overrides the registry directly; used by tests to model a
// corrupted registry.
func (s *Store) setAliasTargets(alias string, targets []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliases[alias] = targets
}

// resolve returns the open index for a physical name or alias.
func (s *Store) resolve(name string) (bleve.Index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if idx, ok := s.indexes[name]; ok {
		return idx, nil
	}
	targets, ok := s.aliases[name]
	if ok {
		if len(targets) > 1 {
			return nil, &db.AmbiguousAliasError{Alias: name, Indexes: targets}
		}
		if len(targets) == 1 {
			if idx, ok := s.indexes[targets[0]]; ok {
				return idx, nil
			}
		}
	}
	return nil, db.ErrIndexNotFound
}
