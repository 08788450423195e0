// Package index keeps the search backend in sync with the domain records:
// single and bulk document indexing, deletion, and field rewrites, all
// writing through the per-type write alias.
package index

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kbforge/searchd/internal/db"
	"github.com/kbforge/searchd/internal/doctype"
	"github.com/kbforge/searchd/internal/document"
	"github.com/kbforge/searchd/internal/metrics"
)

// ErrUnknownDocType is returned when an operation names a document type
// that does not exist.
var ErrUnknownDocType = errors.New("index: unknown document type")

// ErrNoRecordSource is returned by id-based operations when the service was
// built without a record source.
var ErrNoRecordSource = errors.New("index: no record source configured")

// DefaultBulkChunkSize bounds how many documents one bulk round trip
// handles.
const DefaultBulkChunkSize = 100

// ItemError is one per-document failure collected during a bulk operation.
type ItemError struct {
	ID    string
	Stage string
	Err   error
}

// BulkError reports the documents that failed during a bulk operation. The
// remaining documents were indexed.
type BulkError struct {
	DocType string
	Items   []ItemError
}

func (e *BulkError) Error() string {
	return fmt.Sprintf("index: bulk %s: %d documents failed", e.DocType, len(e.Items))
}

// Service indexes domain records into the search backend.
type Service struct {
	store     Store
	source    RecordSource
	embed     Embedder // nil disables vector fields
	chunkSize int
	log       *zap.Logger
}

// New creates an indexing service. embed may be nil when no embedding
// provider is configured.
func New(store Store, source RecordSource, embed Embedder, log *zap.Logger) *Service {
	return &Service{
		store:     store,
		source:    source,
		embed:     embed,
		chunkSize: DefaultBulkChunkSize,
		log:       log,
	}
}

// WithChunkSize configures the bulk chunk size.
func (s *Service) WithChunkSize(size int) *Service {
	if size > 0 {
		s.chunkSize = size
	}
	return s
}

// Index fetches one record and writes it through the type's write alias.
// A record that no longer exists is skipped without error.
func (s *Service) Index(ctx context.Context, docType, id string) error {
	if s.source == nil {
		return ErrNoRecordSource
	}
	t, index, err := s.resolveWrite(ctx, docType)
	if err != nil {
		s.countOp(docType, "index", err)
		return err
	}

	err = s.indexOne(ctx, t, index, id)
	s.countOp(docType, "index", err)
	return err
}

func (s *Service) indexOne(ctx context.Context, t *doctype.Type, index, id string) error {
	rec, err := s.source.Fetch(ctx, t.Name, id)
	if err != nil {
		return fmt.Errorf("fetch %s %s: %w", t.Name, id, err)
	}
	if rec == nil {
		s.log.Debug("record gone before indexing, skipped",
			zap.String("doc_type", t.Name), zap.String("id", id))
		return nil
	}

	doc, err := t.Prepare(rec)
	if err != nil {
		return fmt.Errorf("prepare %s %s: %w", t.Name, id, err)
	}
	if err := s.addEmbedding(ctx, t, doc); err != nil {
		return fmt.Errorf("embed %s %s: %w", t.Name, id, err)
	}
	if err := s.store.PutDocument(ctx, index, doc.ID, doc.Fields); err != nil {
		return fmt.Errorf("store %s %s: %w", t.Name, id, err)
	}
	return nil
}

// IndexRecord indexes a record the caller already has in hand, skipping the
// record source. Embedded deployments feed documents this way.
func (s *Service) IndexRecord(ctx context.Context, docType string, record map[string]any) error {
	t, index, err := s.resolveWrite(ctx, docType)
	if err != nil {
		s.countOp(docType, "index", err)
		return err
	}

	err = func() error {
		doc, err := t.Prepare(record)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", t.Name, err)
		}
		if err := s.addEmbedding(ctx, t, doc); err != nil {
			return fmt.Errorf("embed %s: %w", t.Name, err)
		}
		if err := s.store.PutDocument(ctx, index, doc.ID, doc.Fields); err != nil {
			return fmt.Errorf("store %s: %w", t.Name, err)
		}
		return nil
	}()
	s.countOp(docType, "index", err)
	return err
}

// BulkIndex indexes ids in chunks, collecting per-document failures instead
// of stopping. When any document failed the returned error is a *BulkError
// listing them; the rest were indexed.
func (s *Service) BulkIndex(ctx context.Context, docType string, ids []string) error {
	if s.source == nil {
		return ErrNoRecordSource
	}
	t, index, err := s.resolveWrite(ctx, docType)
	if err != nil {
		s.countOp(docType, "bulk_index", err)
		return err
	}

	var failed []ItemError
	for start := 0; start < len(ids); start += s.chunkSize {
		end := start + s.chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		failed = append(failed, s.bulkChunk(ctx, t, index, ids[start:end])...)
	}

	if len(failed) > 0 {
		for _, item := range failed {
			metrics.BulkFailuresTotal.WithLabelValues(t.Name, item.Stage).Inc()
		}
		err := &BulkError{DocType: t.Name, Items: failed}
		s.countOp(docType, "bulk_index", err)
		return err
	}
	s.countOp(docType, "bulk_index", nil)
	return nil
}

func (s *Service) bulkChunk(ctx context.Context, t *doctype.Type, index string, ids []string) []ItemError {
	records, err := s.source.FetchMany(ctx, t.Name, ids)
	if err != nil {
		failed := make([]ItemError, 0, len(ids))
		for _, id := range ids {
			failed = append(failed, ItemError{ID: id, Stage: "fetch", Err: err})
		}
		return failed
	}

	var failed []ItemError
	for _, rec := range records {
		id := document.PlainValue(rec, "id")

		doc, err := t.Prepare(rec)
		if err != nil {
			failed = append(failed, ItemError{ID: id, Stage: "prepare", Err: err})
			continue
		}
		if err := s.addEmbedding(ctx, t, doc); err != nil {
			failed = append(failed, ItemError{ID: id, Stage: "embed", Err: err})
			continue
		}
		if err := s.store.PutDocument(ctx, index, doc.ID, doc.Fields); err != nil {
			failed = append(failed, ItemError{ID: id, Stage: "store", Err: err})
		}
	}
	return failed
}

// Delete removes one document through the write alias. Deleting a document
// that is already gone is not an error.
func (s *Service) Delete(ctx context.Context, docType, id string) error {
	t, index, err := s.resolveWrite(ctx, docType)
	if err != nil {
		s.countOp(docType, "delete", err)
		return err
	}

	err = s.store.DeleteDocument(ctx, index, documentID(t, id))
	if errors.Is(err, db.ErrDocNotFound) {
		err = nil
	}
	s.countOp(docType, "delete", err)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", t.Name, id, err)
	}
	return nil
}

// RemoveValueFromField rewrites every document carrying value in the named
// keyword field, dropping the value. List fields lose the element; scalar
// fields lose the field.
func (s *Service) RemoveValueFromField(ctx context.Context, docType, field, value string) error {
	t, index, err := s.resolveWrite(ctx, docType)
	if err != nil {
		s.countOp(docType, "remove_field_value", err)
		return err
	}

	err = s.removeValue(ctx, index, field, value)
	s.countOp(docType, "remove_field_value", err)
	if err != nil {
		return fmt.Errorf("remove %s from %s.%s: %w", value, t.Name, field, err)
	}
	return nil
}

func (s *Service) removeValue(ctx context.Context, index, field, value string) error {
	for {
		res, err := s.store.Search(ctx, &db.SearchRequest{
			Index: index,
			Query: db.Term{Field: field, Value: value},
			Size:  s.chunkSize,
		})
		if err != nil {
			return err
		}
		if len(res.Hits) == 0 {
			return nil
		}

		for _, h := range res.Hits {
			fields := h.Source
			if kept, ok := withoutValue(fields[field], value); ok {
				fields[field] = kept
			} else {
				delete(fields, field)
			}
			if err := s.store.PutDocument(ctx, index, h.ID, fields); err != nil {
				return err
			}
		}

		// Rewritten documents no longer match; anything left is a later page.
		if len(res.Hits) >= res.Total {
			return nil
		}
	}
}

// withoutValue removes value from a stored field. ok is false when nothing
// remains and the field should be dropped.
func withoutValue(stored any, value string) (any, bool) {
	switch list := stored.(type) {
	case []any:
		kept := make([]any, 0, len(list))
		for _, v := range list {
			if fmt.Sprint(v) != value {
				kept = append(kept, v)
			}
		}
		return kept, len(kept) > 0
	case []string:
		kept := make([]string, 0, len(list))
		for _, v := range list {
			if v != value {
				kept = append(kept, v)
			}
		}
		return kept, len(kept) > 0
	default:
		return stored, fmt.Sprint(stored) != value
	}
}

// addEmbedding vectorizes the record's text and stores it under the
// locale-qualified embedding field.
func (s *Service) addEmbedding(ctx context.Context, t *doctype.Type, doc *document.Document) error {
	if s.embed == nil {
		return nil
	}
	locale, _ := doc.Fields["locale"].(string)
	if locale == "" {
		locale = document.DefaultLocale
	}
	text := embedText(t, doc, locale)
	if text == "" {
		return nil
	}
	res, err := s.embed.Embed(ctx, text)
	if err != nil {
		return err
	}
	doc.Fields[t.EmbeddingField(locale)] = res.Vector
	return nil
}

// embedText concatenates the type's searchable text for one locale.
func embedText(t *doctype.Type, doc *document.Document, locale string) string {
	parts := make([]string, 0, len(t.Fields))
	for _, f := range t.Fields {
		name := f.Name
		if f.Localized {
			name += "." + locale
		}
		if v, ok := doc.Fields[name].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

func (s *Service) resolveWrite(ctx context.Context, docType string) (*doctype.Type, string, error) {
	t, ok := doctype.ByName(docType)
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownDocType, docType)
	}
	index, err := s.store.AliasTarget(ctx, t.WriteAlias())
	if err != nil {
		return nil, "", fmt.Errorf("resolve write alias for %s: %w", docType, err)
	}
	return t, index, nil
}

func (s *Service) countOp(docType, op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.IndexOpsTotal.WithLabelValues(docType, op, status).Inc()
}

// documentID derives the backend document id for an operation that has no
// record to read it from.
func documentID(t *doctype.Type, id string) string {
	if t.DocID == nil {
		return id
	}
	return t.DocID(map[string]any{"id": id})
}
