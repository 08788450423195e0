package query

import (
	"testing"

	"github.com/kbforge/searchd/internal/db"
)

func testContext() *Context {
	return &Context{
		Fields: []db.FieldRef{
			{Name: "title.en-US", Boost: 8},
			{Name: "content.en-US", Boost: 1},
		},
		Settings: &Settings{
			FieldMappings: map[string][]db.FieldRef{
				"title": {{Name: "title.en-US", Boost: 8}},
			},
			ExactMappings: map[string]ExactMapping{
				"category": {Field: "category", Values: map[string]any{"how-to": 10}},
			},
			RangeAllowed:      map[string]bool{"created": true},
			SpaceMinShouldPct: 66,
		},
	}
}

func TestTermCompilesToMultiMatch(t *testing.T) {
	node := TermToken{Text: "firefox"}.Compile(testContext())
	mm, ok := node.(db.MultiMatch)
	if !ok {
		t.Fatalf("want MultiMatch, got %T", node)
	}
	if mm.Query != "firefox" || mm.Operator != db.OpAnd || len(mm.Fields) != 2 {
		t.Fatalf("unexpected match: %+v", mm)
	}
}

func TestEmptySpaceCompilesToMatchAll(t *testing.T) {
	node := SpaceToken{}.Compile(testContext())
	if _, ok := node.(db.MatchAll); !ok {
		t.Fatalf("want MatchAll, got %T", node)
	}
}

func TestSpaceRunKeepsLooseness(t *testing.T) {
	tok := SpaceToken{Tokens: []Token{
		TermToken{Text: "clear"},
		TermToken{Text: "cookies"},
		TermToken{Text: "firefox"},
	}}
	node := tok.Compile(testContext())
	mm, ok := node.(db.MultiMatch)
	if !ok {
		t.Fatalf("want MultiMatch, got %T", node)
	}
	if mm.Operator != db.OpOr {
		t.Fatal("juxtaposed terms must compile to should semantics, not strict AND")
	}
	if mm.MinShouldPct != 66 {
		t.Fatalf("want configured minimum 66, got %d", mm.MinShouldPct)
	}
}

func TestFieldTokenRestrictsFields(t *testing.T) {
	tok := FieldToken{Field: "title", Token: TermToken{Text: "install"}}
	node := tok.Compile(testContext())
	mm, ok := node.(db.MultiMatch)
	if !ok {
		t.Fatalf("want MultiMatch, got %T", node)
	}
	if len(mm.Fields) != 1 || mm.Fields[0].Name != "title.en-US" {
		t.Fatalf("want title field only, got %+v", mm.Fields)
	}
}

func TestUnknownFieldDegradesToText(t *testing.T) {
	tok := FieldToken{Field: "bogus", Token: TermToken{Text: "install"}}
	node := tok.Compile(testContext())
	mm, ok := node.(db.MultiMatch)
	if !ok {
		t.Fatalf("want MultiMatch, got %T", node)
	}
	if len(mm.Fields) != 2 || mm.Query != "bogus:install" {
		t.Fatalf("want literal text over all fields, got %+v", mm)
	}
}

func TestExactTokenMapsValue(t *testing.T) {
	node := ExactToken{Field: "category", Value: "how-to"}.Compile(testContext())
	term, ok := node.(db.Term)
	if !ok {
		t.Fatalf("want Term, got %T", node)
	}
	if term.Field != "category" || term.Value != 10 {
		t.Fatalf("unexpected term: %+v", term)
	}

	// Unknown categorical value degrades to text.
	node = ExactToken{Field: "category", Value: "nope"}.Compile(testContext())
	if _, ok := node.(db.MultiMatch); !ok {
		t.Fatalf("want text degradation, got %T", node)
	}
}

func TestRangeTokenCompiles(t *testing.T) {
	node := RangeToken{Field: "created", Operator: "gte", Value: "1700000000"}.Compile(testContext())
	rng, ok := node.(db.Range)
	if !ok {
		t.Fatalf("want Range, got %T", node)
	}
	if rng.GTE == nil || *rng.GTE != 1700000000 {
		t.Fatalf("unexpected range: %+v", rng)
	}
}

func TestRangeOutsideAllowedDegrades(t *testing.T) {
	cases := []RangeToken{
		{Field: "votes", Operator: "gte", Value: "5"},        // field not allowed
		{Field: "created", Operator: "gte", Value: "abc"},    // non-numeric
		{Field: "created", Operator: "between", Value: "1"},  // bad operator
	}
	for _, tok := range cases {
		node := tok.Compile(testContext())
		if _, ok := node.(db.MultiMatch); !ok {
			t.Errorf("%v: want text degradation, got %T", tok, node)
		}
	}
}

func TestNotCompilesWithAnchor(t *testing.T) {
	node := NotToken{Token: TermToken{Text: "archived"}}.Compile(testContext())
	b, ok := node.(*db.Bool)
	if !ok {
		t.Fatalf("want Bool, got %T", node)
	}
	if len(b.Must) != 1 || len(b.MustNot) != 1 {
		t.Fatalf("want anchored negation, got %+v", b)
	}
	if _, ok := b.Must[0].(db.MatchAll); !ok {
		t.Fatal("negation must be anchored on match-all")
	}
}

func TestParseCompileEndToEnd(t *testing.T) {
	tok, err := Parse(`"install-and-update" AND field:title:firefox`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	node := tok.Compile(testContext())
	b, ok := node.(*db.Bool)
	if !ok || len(b.Must) != 2 {
		t.Fatalf("want Bool with two musts, got %v", node)
	}
	if _, ok := b.Must[0].(db.Phrase); !ok {
		t.Fatalf("want phrase must, got %T", b.Must[0])
	}
}
