package doctype

import (
	"strings"
	"testing"
	"time"

	"github.com/kbforge/searchd/internal/db"
)

func TestPrepareWikiRecord(t *testing.T) {
	doc, err := Wiki.Prepare(map[string]any{
		"id":          "42",
		"locale":      "de",
		"title":       "Firefox installieren",
		"content":     "Schritt fuer Schritt.",
		"slug":        "firefox-installieren",
		"product_ids": []string{"firefox"},
		"category":    20,
	})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if doc.ID != "42" {
		t.Fatalf("want id 42, got %q", doc.ID)
	}
	if doc.Fields["title.de"] != "Firefox installieren" {
		t.Fatalf("locale field not qualified: %v", doc.Fields)
	}
	if _, flat := doc.Fields["title"]; flat {
		t.Fatal("localized field must not be stored flat")
	}
	if doc.Fields["category"] != 20 {
		t.Fatalf("plain field lost: %v", doc.Fields["category"])
	}
	if _, ok := doc.Fields["indexed_on"]; !ok {
		t.Fatal("missing indexed_on")
	}
}

func TestPrepareRejectsIncompleteRecord(t *testing.T) {
	if _, err := Wiki.Prepare(map[string]any{"id": "1"}); err == nil {
		t.Fatal("want error for record without title")
	}
	if _, err := Wiki.Prepare(map[string]any{"title": "no id"}); err == nil {
		t.Fatal("want error for record without id")
	}
}

func TestPrepareOverride(t *testing.T) {
	typ := &Type{
		Name:           "t",
		IndexBase:      "t",
		LocaleFields:   []string{"title"},
		RequiredFields: []string{"id"},
		PrepareOverrides: map[string]PrepareFunc{
			"title": func(record map[string]any) any {
				return strings.ToUpper(record["title"].(string))
			},
		},
	}
	doc, err := typ.Prepare(map[string]any{"id": "1", "title": "hello"})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if doc.Fields["title.en-US"] != "HELLO" {
		t.Fatalf("override not applied: %v", doc.Fields)
	}
}

func TestAnswerDocID(t *testing.T) {
	doc, err := Answer.Prepare(map[string]any{
		"id":             "7",
		"question_id":    "42",
		"question_title": "How do I clear cookies?",
		"answer_content": "Open settings and clear data.",
	})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if doc.ID != "a_7" {
		t.Fatalf("want answer id a_7, got %q", doc.ID)
	}
	if Answer.IndexBase != Question.IndexBase {
		t.Fatal("answers must share the question index")
	}
}

func TestAliasNames(t *testing.T) {
	if Wiki.ReadAlias() != "wiki_read" || Wiki.WriteAlias() != "wiki_write" {
		t.Fatalf("unexpected aliases: %s / %s", Wiki.ReadAlias(), Wiki.WriteAlias())
	}
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := Wiki.PhysicalIndexName(ts); got != "wiki_20240101000000" {
		t.Fatalf("unexpected physical name %q", got)
	}
}

func TestSearchFieldBoosts(t *testing.T) {
	refs := Wiki.SearchFields("en-US", 1)
	byName := map[string]float64{}
	for _, r := range refs {
		byName[r.Name] = r.Boost
	}
	checks := map[string]float64{
		"title.en-US":    8,
		"keywords.en-US": 4,
		"summary.en-US":  2,
		"content.en-US":  1,
	}
	for name, want := range checks {
		if byName[name] != want {
			t.Errorf("%s: want boost %v, got %v", name, want, byName[name])
		}
	}

	// Primary locale multiplier scales every boost.
	boosted := Wiki.SearchFields("en-US", 1.5)
	if boosted[0].Boost != refs[0].Boost*1.5 {
		t.Fatalf("locale multiplier not applied: %v", boosted[0])
	}
}

func TestQuestionFilterRetentionWindow(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	filter, mustNot := Question.Filter(FilterContext{
		Locale: "en-US",
		Simple: true,
		Now:    now,
	})

	var sawRetention, sawArchived bool
	for _, f := range filter {
		switch n := f.(type) {
		case db.Range:
			if n.Field == "question_created" && n.GTE != nil {
				want := float64(now.Add(-QuestionRetention).Unix())
				if *n.GTE != want {
					t.Fatalf("retention cutoff: want %v, got %v", want, *n.GTE)
				}
				sawRetention = true
			}
		case db.Term:
			if n.Field == "question_is_archived" && n.Value == false {
				sawArchived = true
			}
		}
	}
	if !sawRetention {
		t.Fatal("missing question retention window filter")
	}
	if !sawArchived {
		t.Fatal("simple queries must exclude archived questions")
	}
	if len(mustNot) != 1 {
		t.Fatalf("want updated-exists exclusion, got %v", mustNot)
	}

	// Advanced queries search archived content too.
	filter, _ = Question.Filter(FilterContext{Locale: "en-US", Now: now})
	for _, f := range filter {
		if n, ok := f.(db.Term); ok && n.Field == "question_is_archived" {
			t.Fatal("archived filter must not apply to advanced queries")
		}
	}
}

func TestWikiCategoryExactMapping(t *testing.T) {
	s := Wiki.Settings("en-US", 66)
	m, ok := s.ExactMappings["category"]
	if !ok {
		t.Fatal("wiki must map exact:category")
	}
	if m.Values["how-to"] != 20 {
		t.Fatalf("how-to category: want 20, got %v", m.Values["how-to"])
	}
	if s.ExactMappings["slug"].Field != "slug.en-US" {
		t.Fatalf("slug mapping must be locale qualified, got %q", s.ExactMappings["slug"].Field)
	}
}

func TestMakeResultLocaleFallback(t *testing.T) {
	hit := db.Hit{
		ID:    "42",
		Score: 1.2,
		Source: map[string]any{
			"title.en-US": "Install Firefox",
			"slug.en-US":  "install-firefox",
		},
	}
	// Requested locale has no value; falls back to en-US.
	res := Wiki.MakeResult(hit, "de", "summary text")
	if res.Title != "Install Firefox" {
		t.Fatalf("want en-US fallback title, got %q", res.Title)
	}
	if res.URL != "/kb/install-firefox" {
		t.Fatalf("unexpected url %q", res.URL)
	}
	if res.Type != "document" {
		t.Fatalf("unexpected type %q", res.Type)
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"wiki", "question", "answer", "forum", "profile"} {
		if _, ok := ByName(name); !ok {
			t.Errorf("missing type %s", name)
		}
	}
	if _, ok := ByName("nope"); ok {
		t.Fatal("unknown type must not resolve")
	}
}
