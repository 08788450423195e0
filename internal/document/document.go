// Package document holds the index-ready document representation shared by
// the indexing and search paths, and the display-ready result shape returned
// to callers.
package document

import (
	"strconv"
	"strings"
)

// DefaultLocale is the fallback locale every localized record is expected
// to carry.
const DefaultLocale = "en-US"

// Document is a prepared, index-ready record. Fields use flat keys; locale
// qualified values are stored under "<field>.<locale>".
type Document struct {
	ID     string
	Fields map[string]any
}

// LocaleValue looks up a locale-qualified field with the documented fallback
// order: requested locale, then en-US, then empty.
func LocaleValue(source map[string]any, field, locale string) string {
	if v := stringValue(source[field+"."+locale]); v != "" {
		return v
	}
	return stringValue(source[field+"."+DefaultLocale])
}

// PlainValue returns a non-localized field as a string.
func PlainValue(source map[string]any, field string) string {
	return stringValue(source[field])
}

// NumberValue returns a numeric field, tolerating the json float and string
// forms backends return.
func NumberValue(source map[string]any, field string) float64 {
	switch v := source[field].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case []any:
		if len(v) > 0 {
			return NumberValue(map[string]any{field: v[0]}, field)
		}
	}
	return 0
}

// BoolValue returns a boolean field, tolerating stored string forms.
func BoolValue(source map[string]any, field string) bool {
	switch v := source[field].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true") || v == "1"
	case float64:
		return v != 0
	case []any:
		if len(v) > 0 {
			return BoolValue(map[string]any{field: v[0]}, field)
		}
	}
	return false
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []any:
		// Stored multi-valued fields come back as lists; a singleton list
		// is the common case for locale maps.
		if len(s) > 0 {
			return stringValue(s[0])
		}
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}

// Result is a display-ready search result. Type-specific attributes that do
// not generalize live in Extra.
type Result struct {
	Type    string         `json:"type"`
	ID      string         `json:"id"`
	Title   string         `json:"title"`
	URL     string         `json:"url"`
	Summary string         `json:"search_summary"`
	Score   float64        `json:"score"`
	Extra   map[string]any `json:"extra,omitempty"`
}
