package bleve

import (
	"errors"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/kbforge/searchd/internal/db"
)

// buildMapping translates an index definition into a bleve index mapping.
// Dotted field names become nested document mappings so that the flattened
// field name bleve reports matches the definition exactly. Vector fields are
// skipped: this driver does not index them.
func buildMapping(def *db.IndexDefinition) (mapping.IndexMapping, error) {
	doc := bleve.NewDocumentMapping()

	for _, f := range def.Fields {
		var fm *mapping.FieldMapping
		switch f.Type {
		case db.IndexFieldText:
			fm = bleve.NewTextFieldMapping()
		case db.IndexFieldKeyword:
			fm = bleve.NewKeywordFieldMapping()
		case db.IndexFieldNumeric:
			fm = bleve.NewNumericFieldMapping()
		case db.IndexFieldBool:
			fm = bleve.NewBooleanFieldMapping()
		case db.IndexFieldVector:
			continue
		default:
			return nil, errors.New("unknown field type")
		}
		fm.Store = true
		addFieldAt(doc, strings.Split(f.Name, "."), fm)
	}

	imap := bleve.NewIndexMapping()
	imap.DefaultMapping = doc
	imap.StoreDynamic = true
	return imap, nil
}

func addFieldAt(doc *mapping.DocumentMapping, path []string, fm *mapping.FieldMapping) {
	if len(path) == 1 {
		doc.AddFieldMappingsAt(path[0], fm)
		return
	}
	child, ok := doc.Properties[path[0]]
	if !ok {
		child = bleve.NewDocumentMapping()
		doc.AddSubDocumentMapping(path[0], child)
	}
	addFieldAt(child, path[1:], fm)
}

// expandFields converts flat dotted keys into the nested structure bleve
// walks during indexing. Values under already-nested keys are left alone.
func expandFields(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for key, val := range flat {
		parts := strings.Split(key, ".")
		cur := out
		for i, part := range parts {
			if i == len(parts)-1 {
				cur[part] = val
				break
			}
			next, ok := cur[part].(map[string]any)
			if !ok {
				next = make(map[string]any)
				cur[part] = next
			}
			cur = next
		}
	}
	return out
}
