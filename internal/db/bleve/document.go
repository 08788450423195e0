package bleve

import (
	"context"

	"github.com/kbforge/searchd/internal/db"
)

// PutDocument indexes a document. Flat dotted keys are expanded so they land
// in the nested mapping built from the index definition.
func (s *Store) PutDocument(_ context.Context, index, id string, fields map[string]any) error {
	idx, err := s.resolve(index)
	if err != nil {
		return err
	}
	if err := idx.Index(id, expandFields(fields)); err != nil {
		return &db.Error{Op: db.OpDocSet, Err: err}
	}
	return nil
}

// GetDocument fetches stored field values for a document id.
//
// Bleve has no primary-key lookup that returns the original source, so this
// runs a single-document search on _id and reassembles the stored fields.
func (s *Store) GetDocument(ctx context.Context, index, id string) (map[string]any, error) {
	idx, err := s.resolve(index)
	if err != nil {
		return nil, err
	}

	doc, err := idx.Document(id)
	if err != nil {
		return nil, &db.Error{Op: db.OpDocGet, Err: err}
	}
	if doc == nil {
		return nil, db.ErrDocNotFound
	}

	fields, err := storedFields(idx, id)
	if err != nil {
		return nil, &db.Error{Op: db.OpDocGet, Err: err}
	}
	return fields, nil
}

// DeleteDocument removes a document by id. Deleting an absent id is an error
// so callers can distinguish cleanup from no-ops.
func (s *Store) DeleteDocument(_ context.Context, index, id string) error {
	idx, err := s.resolve(index)
	if err != nil {
		return err
	}

	doc, err := idx.Document(id)
	if err != nil {
		return &db.Error{Op: db.OpDocDel, Err: err}
	}
	if doc == nil {
		return db.ErrDocNotFound
	}

	if err := idx.Delete(id); err != nil {
		return &db.Error{Op: db.OpDocDel, Err: err}
	}
	return nil
}

// CountDocuments returns the number of documents in an index.
func (s *Store) CountDocuments(_ context.Context, index string) (int, error) {
	idx, err := s.resolve(index)
	if err != nil {
		return 0, err
	}
	n, err := idx.DocCount()
	if err != nil {
		return 0, &db.Error{Op: db.OpSearch, Err: err}
	}
	return int(n), nil
}
