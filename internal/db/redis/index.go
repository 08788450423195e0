package redis

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/kbforge/searchd/internal/db"
)

// CreateIndex creates an FT index from the given definition. Documents are
// stored as JSON under keys prefixed with "<name>:".
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	args, err := buildCreateArgs(def)
	if err != nil {
		return err
	}

	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}

// DropIndex removes an FT index and its documents.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	cmd := s.b().Arbitrary("FT.DROPINDEX").Args(name, "DD").Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "unknown index name") || isRedisErr(err, "no such index") {
			return db.ErrIndexNotFound
		}
		return &db.Error{Op: db.OpDropIndex, Err: err}
	}
	return nil
}

// IndexExists probes index existence via FT.INFO; "unknown index name" means absent.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(name).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "unknown index name") || isRedisErr(err, "no such index") {
			return false, nil
		}
		return false, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	return true, nil
}

// ListIndexes returns all FT index names starting with prefix.
func (s *Store) ListIndexes(ctx context.Context, prefix string) ([]string, error) {
	cmd := s.b().Arbitrary("FT._LIST").Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpIndexList, Err: err}
	}

	var names []string
	for _, msg := range raw {
		name, err := msg.ToString()
		if err != nil {
			continue
		}
		if prefix == "" || strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	return names, nil
}

// AliasTarget returns the physical index an alias points at. FT.INFO on an
// alias reports the underlying index_name; an alias in Redis can only ever
// point at one index, so ambiguity is impossible here (the bleve driver's
// registry is where it can arise).
func (s *Store) AliasTarget(ctx context.Context, alias string) (string, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(alias).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isRedisErr(err, "unknown index name") || isRedisErr(err, "no such index") {
			return "", db.ErrAliasNotFound
		}
		return "", &db.Error{Op: db.OpIndexInfo, Err: err}
	}

	// FT.INFO replies with a flat [name, value, ...] array.
	for i := 0; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil || key != "index_name" {
			continue
		}
		target, err := raw[i+1].ToString()
		if err != nil {
			return "", &db.Error{Op: db.OpIndexInfo, Err: err}
		}
		return target, nil
	}
	return "", &db.Error{Op: db.OpIndexInfo, Err: errors.New("index_name missing from FT.INFO reply")}
}

// UpdateAlias points alias at index, creating the alias if needed.
func (s *Store) UpdateAlias(ctx context.Context, alias, index string) error {
	cmd := s.b().Arbitrary("FT.ALIASUPDATE").Args(alias, index).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "unknown index name") || isRedisErr(err, "no such index") {
			return db.ErrIndexNotFound
		}
		return &db.Error{Op: db.OpAliasUpdate, Err: err}
	}
	return nil
}

func buildCreateArgs(idx *db.IndexDefinition) ([]string, error) {
	if err := idx.Validate(); err != nil {
		return nil, err
	}

	args := []string{idx.Name, "ON", "JSON", "PREFIX", "1", idx.Name + ":", "SCHEMA"}

	for i := range idx.Fields {
		fieldArgs, err := buildFieldArgs(&idx.Fields[i])
		if err != nil {
			return nil, err
		}
		args = append(args, fieldArgs...)
	}

	return args, nil
}

func buildFieldArgs(f *db.IndexField) ([]string, error) {
	path := `$["` + f.Name + `"]`
	if f.Multi {
		path += "[*]"
	}

	args := []string{path, "AS", fieldAlias(f.Name)}

	switch f.Type {
	case db.IndexFieldText:
		// INDEXMISSING lets ismissing(@field) drive locale-existence filters.
		args = append(args, "TEXT", "INDEXMISSING")

	case db.IndexFieldKeyword, db.IndexFieldBool:
		args = append(args, "TAG", "INDEXMISSING")

	case db.IndexFieldNumeric:
		args = append(args, "NUMERIC")

	case db.IndexFieldVector:
		vectorArgs, err := buildVectorFieldArgs(f)
		if err != nil {
			return nil, err
		}
		args = append(args, vectorArgs...)

	default:
		return nil, errors.New("unknown field type")
	}

	return args, nil
}

func buildVectorFieldArgs(f *db.IndexField) ([]string, error) {
	if f.VectorDim <= 0 {
		return nil, errors.New("vector DIM must be positive")
	}

	distance := f.VectorDistance
	if distance == "" {
		distance = db.DistanceCosine
	}

	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(f.VectorDim),
		"DISTANCE_METRIC", string(distance),
	}
	if f.VectorM > 0 {
		attrs = append(attrs, "M", strconv.Itoa(f.VectorM))
	}
	if f.VectorEFConstruct > 0 {
		attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(f.VectorEFConstruct))
	}

	result := make([]string, 0, 3+len(attrs))
	result = append(result, "VECTOR", "HNSW", strconv.Itoa(len(attrs)))
	result = append(result, attrs...)

	return result, nil
}
