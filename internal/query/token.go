// Package query parses the user-facing search query language into a token
// tree, and compiles that tree into backend-neutral query nodes.
//
// The language: bare terms, "quoted phrases", field:name:value and
// name:value field restriction, exact:name:value categorical match,
// range:name:op:value numeric ranges, uppercase AND/OR/NOT, and
// parentheses. Anything unrecognized degrades to literal term matching.
package query

import (
	"strconv"
	"strings"

	"github.com/kbforge/searchd/internal/db"
)

// Token is a node in the parsed query tree. Compile never fails: tokens that
// cannot be honored against the given context degrade to plain text matches.
type Token interface {
	Compile(ctx *Context) db.Node
	String() string
}

// Context carries the per-document-type information a token needs to
// compile itself.
type Context struct {
	// Fields are the default boost-weighted text fields a term matches
	// against.
	Fields []db.FieldRef
	// Settings holds field restriction, exact and range mappings.
	Settings *Settings
}

// ExactMapping maps categorical display values onto the stored value of a
// keyword field, e.g. a category name onto its id. A nil Values dictionary
// passes the value through unchanged.
type ExactMapping struct {
	Field  string
	Values map[string]any
}

// Settings is the per-document-type query configuration.
type Settings struct {
	// FieldMappings maps a logical field name usable in field:name:value
	// syntax onto one or more physical text fields.
	FieldMappings map[string][]db.FieldRef
	// TermFields maps a logical field name onto a keyword field; a field
	// token naming one compiles to an exact term instead of a text match.
	TermFields map[string]string
	// ExactMappings maps a logical name usable in exact:name:value syntax
	// onto a keyword field and its value dictionary.
	ExactMappings map[string]ExactMapping
	// RangeAllowed lists numeric fields permitted in range:name:op:value.
	RangeAllowed map[string]bool
	// SpaceMinShouldPct is the minimum-should-match percentage applied to a
	// run of juxtaposed tokens. Zero means any clause may match.
	SpaceMinShouldPct int
}

func (s *Settings) fieldRefs(name string) []db.FieldRef {
	if s == nil {
		return nil
	}
	return s.FieldMappings[name]
}

// TermToken is a single bare word matched against all configured fields.
type TermToken struct {
	Text string
}

func (t TermToken) Compile(ctx *Context) db.Node {
	return compileText(t.Text, ctx.Fields, db.OpAnd, 0)
}

func (t TermToken) String() string { return t.Text }

// PhraseToken is a quoted phrase matched exactly against all configured
// fields.
type PhraseToken struct {
	Text string
}

func (t PhraseToken) Compile(ctx *Context) db.Node {
	if strings.TrimSpace(t.Text) == "" {
		return db.MatchAll{}
	}
	return db.Phrase{Fields: ctx.Fields, Text: t.Text}
}

func (t PhraseToken) String() string { return strconv.Quote(t.Text) }

// ExactToken is exact:name:value syntax: a categorical filter resolved
// through the type's exact mappings. Unknown names or values degrade to a
// literal term.
type ExactToken struct {
	Field string
	Value string
}

func (t ExactToken) Compile(ctx *Context) db.Node {
	if ctx.Settings != nil {
		if m, ok := ctx.Settings.ExactMappings[t.Field]; ok {
			if m.Values == nil {
				return db.Term{Field: m.Field, Value: t.Value}
			}
			if v, ok := m.Values[t.Value]; ok {
				return db.Term{Field: m.Field, Value: v}
			}
		}
	}
	return compileText(t.String(), ctx.Fields, db.OpAnd, 0)
}

func (t ExactToken) String() string { return "exact:" + t.Field + ":" + t.Value }

// RangeToken is range:name:op:value syntax. Fields outside RangeAllowed and
// non-numeric values degrade to a literal term.
type RangeToken struct {
	Field    string
	Operator string // gte, lte, gt, lt
	Value    string
}

func (t RangeToken) Compile(ctx *Context) db.Node {
	if ctx.Settings != nil && ctx.Settings.RangeAllowed[t.Field] {
		if v, err := strconv.ParseFloat(t.Value, 64); err == nil {
			r := db.Range{Field: t.Field}
			switch t.Operator {
			case "gte":
				r.GTE = &v
			case "lte":
				r.LTE = &v
			case "gt":
				r.GT = &v
			case "lt":
				r.LT = &v
			default:
				return compileText(t.String(), ctx.Fields, db.OpAnd, 0)
			}
			return r
		}
	}
	return compileText(t.String(), ctx.Fields, db.OpAnd, 0)
}

func (t RangeToken) String() string {
	return "range:" + t.Field + ":" + t.Operator + ":" + t.Value
}

// FieldToken restricts its inner token to one logical field. Unknown field
// names degrade to matching the literal text against all fields.
type FieldToken struct {
	Field string
	Token Token
}

func (t FieldToken) Compile(ctx *Context) db.Node {
	if ctx.Settings != nil {
		if kw, ok := ctx.Settings.TermFields[t.Field]; ok {
			return db.Term{Field: kw, Value: t.Token.String()}
		}
	}
	refs := ctx.Settings.fieldRefs(t.Field)
	if len(refs) == 0 {
		return compileText(t.String(), ctx.Fields, db.OpAnd, 0)
	}
	inner := *ctx
	inner.Fields = refs
	return t.Token.Compile(&inner)
}

func (t FieldToken) String() string { return t.Field + ":" + t.Token.String() }

// AndToken requires both sides to match.
type AndToken struct {
	Left, Right Token
}

func (t AndToken) Compile(ctx *Context) db.Node {
	return &db.Bool{Must: []db.Node{t.Left.Compile(ctx), t.Right.Compile(ctx)}}
}

func (t AndToken) String() string { return t.Left.String() + " AND " + t.Right.String() }

// OrToken requires either side to match.
type OrToken struct {
	Left, Right Token
}

func (t OrToken) Compile(ctx *Context) db.Node {
	return &db.Bool{Should: []db.Node{t.Left.Compile(ctx), t.Right.Compile(ctx)}}
}

func (t OrToken) String() string { return t.Left.String() + " OR " + t.Right.String() }

// NotToken inverts its inner token.
type NotToken struct {
	Token Token
}

func (t NotToken) Compile(ctx *Context) db.Node {
	return &db.Bool{
		Must:    []db.Node{db.MatchAll{}},
		MustNot: []db.Node{t.Token.Compile(ctx)},
	}
}

func (t NotToken) String() string { return "NOT " + t.Token.String() }

// SpaceToken is a run of juxtaposed tokens with no explicit operator. It
// compiles to should clauses under a minimum-should-match percentage rather
// than a strict AND, so partial matches still qualify while full matches
// score highest. This looseness is intentional relevance behavior.
type SpaceToken struct {
	Tokens []Token
}

func (t SpaceToken) Compile(ctx *Context) db.Node {
	switch len(t.Tokens) {
	case 0:
		return db.MatchAll{}
	case 1:
		return t.Tokens[0].Compile(ctx)
	}

	msm := 0
	if ctx.Settings != nil {
		msm = ctx.Settings.SpaceMinShouldPct
	}

	// A run of bare terms collapses into one multi-field match so the
	// minimum applies over terms, not over separate clauses.
	if texts, ok := bareTerms(t.Tokens); ok {
		return compileText(strings.Join(texts, " "), ctx.Fields, db.OpOr, msm)
	}

	should := make([]db.Node, 0, len(t.Tokens))
	for _, tok := range t.Tokens {
		should = append(should, tok.Compile(ctx))
	}
	return &db.Bool{Should: should, MinShouldPct: msm}
}

func (t SpaceToken) String() string {
	parts := make([]string, 0, len(t.Tokens))
	for _, tok := range t.Tokens {
		parts = append(parts, tok.String())
	}
	return strings.Join(parts, " ")
}

func bareTerms(tokens []Token) ([]string, bool) {
	texts := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		term, ok := tok.(TermToken)
		if !ok {
			return nil, false
		}
		texts = append(texts, term.Text)
	}
	return texts, true
}

// compileText builds a multi-field text match, the shared degradation target
// for every token that cannot be honored structurally.
func compileText(text string, fields []db.FieldRef, op db.Operator, minShouldPct int) db.Node {
	if strings.TrimSpace(text) == "" {
		return db.MatchAll{}
	}
	return db.MultiMatch{
		Fields:       fields,
		Query:        text,
		Operator:     op,
		MinShouldPct: minShouldPct,
	}
}
