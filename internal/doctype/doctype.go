// Package doctype describes the indexed document types. One generic
// orchestrator is parameterized by these descriptors instead of one search
// class per type and strategy combination.
package doctype

import (
	"fmt"
	"time"

	"github.com/kbforge/searchd/internal/db"
	"github.com/kbforge/searchd/internal/document"
	"github.com/kbforge/searchd/internal/query"
)

// Role classifies a searchable field for boost weighting.
type Role int

const (
	RoleContent Role = iota
	RoleTitle
	RoleKeywords
	RoleSummary
)

// Boost returns the scoring weight for a role. Titles dominate, keywords
// and summaries sit between, body content is the baseline.
func (r Role) Boost() float64 {
	switch r {
	case RoleTitle:
		return 8
	case RoleKeywords:
		return 4
	case RoleSummary:
		return 2
	default:
		return 1
	}
}

// Field is a searchable text field of a document type.
type Field struct {
	Name      string
	Role      Role
	Localized bool
}

// Ref resolves the field to a boost-weighted physical reference for a
// locale. The locale multiplier favors the caller's primary locale.
func (f Field) Ref(locale string, localeBoost float64) db.FieldRef {
	name := f.Name
	if f.Localized {
		name += "." + locale
	}
	boost := f.Role.Boost()
	if localeBoost > 0 {
		boost *= localeBoost
	}
	return db.FieldRef{Name: name, Boost: boost}
}

// FilterContext carries the request attributes filter builders depend on.
type FilterContext struct {
	Locale  string
	Product string
	// Simple reports that the raw query used no advanced syntax; some
	// filters (archived content exclusion) only apply to simple queries.
	Simple bool
	Now    time.Time
	// Retention overrides the question retention window; zero keeps the
	// QuestionRetention default.
	Retention time.Duration
}

// PrepareFunc overrides how a single field value is derived from a domain
// record.
type PrepareFunc func(record map[string]any) any

// Type is the complete descriptor of one document type.
type Type struct {
	// Name identifies the type in results and API parameters.
	Name string
	// IndexBase is the physical index name prefix; aliases and timestamped
	// physical indexes derive from it. Types sharing a base share an index.
	IndexBase string

	// Fields are the searchable text fields with their roles.
	Fields []Field
	// HighlightFields name the fields highlight fragments are built from,
	// in priority order.
	HighlightFields []Field
	// SummaryField is the stored field a result summary falls back to when
	// no highlight matched; ContentField is the final truncation fallback.
	SummaryField Field
	ContentField Field

	// PlainFields and LocaleFields are the non-searchable stored fields
	// Prepare copies from the domain record, flat and locale-qualified
	// respectively.
	PlainFields  []string
	LocaleFields []string
	// RequiredFields must be present and non-empty on the domain record;
	// a record missing one is rejected by Prepare.
	RequiredFields []string
	// PrepareOverrides replace the direct attribute read for a field.
	PrepareOverrides map[string]PrepareFunc
	// DocID derives the document id from the record; nil uses the "id"
	// attribute directly.
	DocID func(record map[string]any) string

	// Settings builds the advanced-syntax configuration for one locale.
	Settings func(locale string, spaceMinShouldPct int) *query.Settings
	// Filter builds the structural filter clauses for a search call.
	Filter func(fc FilterContext) (filter, mustNot []db.Node)
	// MakeResult shapes one raw hit into a display-ready result. The
	// summary is computed upstream from highlights and fallbacks.
	MakeResult func(hit db.Hit, locale, summary string) document.Result

	// IndexDefinition builds the physical index schema. vectorDim of zero
	// omits vector fields.
	IndexDefinition func(indexName string, locales []string, vectorDim int) (*db.IndexDefinition, error)
}

// ReadAlias is the alias queries resolve through.
func (t *Type) ReadAlias() string { return t.IndexBase + "_read" }

// WriteAlias is the alias indexing writes resolve through. The two can
// diverge during a reindex migration window.
func (t *Type) WriteAlias() string { return t.IndexBase + "_write" }

// PhysicalIndexName returns the timestamp-suffixed physical index name used
// by a write migration.
func (t *Type) PhysicalIndexName(ts time.Time) string {
	return fmt.Sprintf("%s_%s", t.IndexBase, ts.UTC().Format("20060102150405"))
}

// SearchFields returns the boost-weighted field references for one locale.
func (t *Type) SearchFields(locale string, localeBoost float64) []db.FieldRef {
	refs := make([]db.FieldRef, 0, len(t.Fields))
	for _, f := range t.Fields {
		refs = append(refs, f.Ref(locale, localeBoost))
	}
	return refs
}

// HighlightFieldNames resolves the highlight fields for one locale.
func (t *Type) HighlightFieldNames(locale string) []string {
	names := make([]string, 0, len(t.HighlightFields))
	for _, f := range t.HighlightFields {
		name := f.Name
		if f.Localized {
			name += "." + locale
		}
		names = append(names, name)
	}
	return names
}

// EmbeddingField returns the vector field name for a locale.
func (t *Type) EmbeddingField(locale string) string {
	return "embedding." + locale
}

// Prepare converts a domain record into an index-ready document. Locale
// qualified fields land under "<field>.<locale>" so documents for different
// locale variants of the same parent record accumulate side by side in the
// index.
func (t *Type) Prepare(record map[string]any) (*document.Document, error) {
	for _, req := range t.RequiredFields {
		if v, ok := record[req]; !ok || v == nil || v == "" {
			return nil, fmt.Errorf("%s record missing required field %q", t.Name, req)
		}
	}

	id := ""
	if t.DocID != nil {
		id = t.DocID(record)
	} else {
		id, _ = record["id"].(string)
	}
	if id == "" {
		return nil, fmt.Errorf("%s record has no id", t.Name)
	}

	locale, _ := record["locale"].(string)
	if locale == "" {
		locale = document.DefaultLocale
	}

	fields := make(map[string]any)
	for _, name := range t.LocaleFields {
		if v := t.fieldValue(name, record); v != nil {
			fields[name+"."+locale] = v
		}
	}
	for _, name := range t.PlainFields {
		if v := t.fieldValue(name, record); v != nil {
			fields[name] = v
		}
	}
	fields["locale"] = locale
	fields["indexed_on"] = time.Now().Unix()

	return &document.Document{ID: id, Fields: fields}, nil
}

func (t *Type) fieldValue(name string, record map[string]any) any {
	if t.PrepareOverrides != nil {
		if fn, ok := t.PrepareOverrides[name]; ok {
			return fn(record)
		}
	}
	return record[name]
}
