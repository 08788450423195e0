package doctype

import (
	"fmt"
	"time"

	"github.com/kbforge/searchd/internal/db"
	"github.com/kbforge/searchd/internal/document"
	"github.com/kbforge/searchd/internal/query"
)

// QuestionRetention is the default time window searched over questions;
// older threads are excluded from default search results.
const QuestionRetention = 2 * 365 * 24 * time.Hour

// HNSW build parameters shared by all vector fields.
const (
	vectorM           = 16
	vectorEFConstruct = 200
)

// knowledge base article categories, addressable as exact:category:<slug>
var wikiCategories = map[string]any{
	"troubleshooting":   10,
	"how-to":            20,
	"how-to-contribute": 30,
	"administration":    40,
	"navigation":        50,
	"templates":         60,
	"canned-responses":  70,
}

// Wiki is the knowledge base article type.
var Wiki = &Type{
	Name:      "wiki",
	IndexBase: "wiki",
	Fields: []Field{
		{Name: "title", Role: RoleTitle, Localized: true},
		{Name: "content", Role: RoleContent, Localized: true},
		{Name: "summary", Role: RoleSummary, Localized: true},
		{Name: "keywords", Role: RoleKeywords, Localized: true},
	},
	HighlightFields: []Field{
		{Name: "content", Localized: true},
		{Name: "summary", Localized: true},
	},
	SummaryField: Field{Name: "summary", Localized: true},
	ContentField: Field{Name: "content", Localized: true},

	LocaleFields:   []string{"title", "content", "summary", "keywords", "slug"},
	PlainFields:    []string{"product_ids", "category"},
	RequiredFields: []string{"id", "title"},

	Settings: func(locale string, spaceMinShouldPct int) *query.Settings {
		return &query.Settings{
			FieldMappings: map[string][]db.FieldRef{
				"title":    {{Name: "title." + locale, Boost: RoleTitle.Boost()}},
				"content":  {{Name: "content." + locale, Boost: RoleContent.Boost()}},
				"summary":  {{Name: "summary." + locale, Boost: RoleSummary.Boost()}},
				"keywords": {{Name: "keywords." + locale, Boost: RoleKeywords.Boost()}},
			},
			TermFields: map[string]string{
				"product": "product_ids",
			},
			ExactMappings: map[string]query.ExactMapping{
				"slug":     {Field: "slug." + locale},
				"category": {Field: "category", Values: wikiCategories},
			},
			SpaceMinShouldPct: spaceMinShouldPct,
		}
	},
	Filter: func(fc FilterContext) (filter, mustNot []db.Node) {
		filter = []db.Node{db.Exists{Field: "title." + fc.Locale}}
		if fc.Product != "" {
			filter = append(filter, db.Term{Field: "product_ids", Value: fc.Product})
		}
		return filter, nil
	},
	MakeResult: func(hit db.Hit, locale, summary string) document.Result {
		slug := document.LocaleValue(hit.Source, "slug", locale)
		return document.Result{
			Type:    "document",
			ID:      hit.ID,
			Title:   document.LocaleValue(hit.Source, "title", locale),
			URL:     "/kb/" + slug,
			Summary: summary,
			Score:   hit.Score,
		}
	},
	IndexDefinition: func(indexName string, locales []string, vectorDim int) (*db.IndexDefinition, error) {
		b := db.NewIndex(indexName).
			TextLocalized("title", locales).
			TextLocalized("content", locales).
			TextLocalized("summary", locales).
			TextLocalized("keywords", locales).
			KeywordLocalized("slug", locales).
			Keyword("locale").
			KeywordList("product_ids").
			Numeric("category").
			Numeric("indexed_on")
		if vectorDim > 0 {
			b.VectorHNSWLocalized("embedding", locales, vectorDim, db.DistanceCosine, vectorM, vectorEFConstruct)
		}
		return b.Build()
	},
}

func questionFilter(fc FilterContext) (filter, mustNot []db.Node) {
	retention := fc.Retention
	if retention <= 0 {
		retention = QuestionRetention
	}
	cutoff := float64(fc.Now.Add(-retention).Unix())
	filter = []db.Node{
		db.Exists{Field: "question_title." + fc.Locale},
		db.Range{Field: "question_created", GTE: &cutoff},
	}
	if fc.Simple {
		filter = append(filter, db.Term{Field: "question_is_archived", Value: false})
	}
	if fc.Product != "" {
		filter = append(filter, db.Term{Field: "question_product_id", Value: fc.Product})
	}
	return filter, []db.Node{db.Exists{Field: "updated"}}
}

func questionResult(hit db.Hit, locale, summary string) document.Result {
	return document.Result{
		Type:    "question",
		ID:      hit.ID,
		Title:   document.LocaleValue(hit.Source, "question_title", locale),
		URL:     "/questions/" + document.PlainValue(hit.Source, "question_id"),
		Summary: summary,
		Score:   hit.Score,
		Extra: map[string]any{
			"is_solved": document.BoolValue(hit.Source, "question_has_solution"),
			"created":   document.NumberValue(hit.Source, "question_created"),
			"num_votes": document.NumberValue(hit.Source, "question_num_votes"),
		},
	}
}

func questionSettings(locale string, spaceMinShouldPct int) *query.Settings {
	return &query.Settings{
		FieldMappings: map[string][]db.FieldRef{
			"title":   {{Name: "question_title." + locale, Boost: RoleTitle.Boost()}},
			"content": {{Name: "question_content." + locale, Boost: RoleContent.Boost()}},
			"answer":  {{Name: "answer_content." + locale, Boost: RoleContent.Boost()}},
		},
		TermFields: map[string]string{
			"product": "question_product_id",
		},
		RangeAllowed: map[string]bool{
			"question_created":   true,
			"question_num_votes": true,
		},
		SpaceMinShouldPct: spaceMinShouldPct,
	}
}

func questionIndexDefinition(indexName string, locales []string, vectorDim int) (*db.IndexDefinition, error) {
	b := db.NewIndex(indexName).
		TextLocalized("question_title", locales).
		TextLocalized("question_content", locales).
		TextLocalized("answer_content", locales).
		Keyword("locale").
		Keyword("question_id").
		Keyword("question_product_id").
		Numeric("question_created").
		Numeric("question_num_votes").
		Numeric("updated").
		Bool("question_is_archived").
		Bool("question_has_solution").
		Numeric("indexed_on")
	if vectorDim > 0 {
		b.VectorHNSWLocalized("embedding", locales, vectorDim, db.DistanceCosine, vectorM, vectorEFConstruct)
	}
	return b.Build()
}

// Question is the support question type.
var Question = &Type{
	Name:      "question",
	IndexBase: "question",
	Fields: []Field{
		{Name: "question_title", Role: RoleTitle, Localized: true},
		{Name: "question_content", Role: RoleContent, Localized: true},
		{Name: "answer_content", Role: RoleContent, Localized: true},
	},
	HighlightFields: []Field{
		{Name: "question_title", Localized: true},
		{Name: "question_content", Localized: true},
		{Name: "answer_content", Localized: true},
	},
	SummaryField: Field{Name: "question_content", Localized: true},
	ContentField: Field{Name: "question_content", Localized: true},

	LocaleFields: []string{"question_title", "question_content"},
	PlainFields: []string{
		"question_id", "question_product_id", "question_created",
		"question_num_votes", "question_is_archived", "question_has_solution",
	},
	RequiredFields: []string{"id", "question_title"},

	Settings:        questionSettings,
	Filter:          questionFilter,
	MakeResult:      questionResult,
	IndexDefinition: questionIndexDefinition,
}

// Answer documents live in the question index under an "a_" prefixed id, so
// answers surface as hits on their parent question. This type is used by the
// indexing path only; question search configuration covers its hits.
var Answer = &Type{
	Name:      "answer",
	IndexBase: "question",
	DocID: func(record map[string]any) string {
		id, _ := record["id"].(string)
		if id == "" {
			return ""
		}
		return "a_" + id
	},
	LocaleFields: []string{"answer_content", "question_title", "question_content"},
	PlainFields: []string{
		"question_id", "question_product_id", "question_created",
		"question_num_votes", "question_is_archived", "question_has_solution",
	},
	RequiredFields: []string{"id", "question_id", "answer_content"},

	Settings:        questionSettings,
	Filter:          questionFilter,
	MakeResult:      questionResult,
	IndexDefinition: questionIndexDefinition,
}

// Forum is the discussion forum post type. Forum fields are not localized.
var Forum = &Type{
	Name:      "forum",
	IndexBase: "forum",
	Fields: []Field{
		{Name: "thread_title", Role: RoleTitle},
		{Name: "content", Role: RoleContent},
	},
	HighlightFields: []Field{
		{Name: "thread_title"},
		{Name: "content"},
	},
	SummaryField: Field{Name: "content"},
	ContentField: Field{Name: "content"},

	PlainFields:    []string{"thread_title", "content", "thread_id", "forum_slug", "thread_created"},
	RequiredFields: []string{"id", "thread_title"},

	Settings: func(locale string, spaceMinShouldPct int) *query.Settings {
		return &query.Settings{
			FieldMappings: map[string][]db.FieldRef{
				"title":   {{Name: "thread_title", Boost: RoleTitle.Boost()}},
				"content": {{Name: "content", Boost: RoleContent.Boost()}},
			},
			SpaceMinShouldPct: spaceMinShouldPct,
		}
	},
	Filter: func(fc FilterContext) (filter, mustNot []db.Node) {
		return nil, nil
	},
	MakeResult: func(hit db.Hit, locale, summary string) document.Result {
		return document.Result{
			Type:    "thread",
			ID:      hit.ID,
			Title:   document.PlainValue(hit.Source, "thread_title"),
			URL: fmt.Sprintf("/forums/%s/%s",
				document.PlainValue(hit.Source, "forum_slug"),
				document.PlainValue(hit.Source, "thread_id")),
			Summary: summary,
			Score:   hit.Score,
		}
	},
	IndexDefinition: func(indexName string, locales []string, vectorDim int) (*db.IndexDefinition, error) {
		return db.NewIndex(indexName).
			Text("thread_title").
			Text("content").
			Keyword("locale").
			Keyword("forum_slug").
			Keyword("thread_id").
			Numeric("thread_created").
			Numeric("indexed_on").
			Build()
	},
}

// Profile is the user profile type.
var Profile = &Type{
	Name:      "profile",
	IndexBase: "profile",
	Fields: []Field{
		{Name: "username", Role: RoleTitle},
		{Name: "name", Role: RoleContent},
	},

	PlainFields:    []string{"username", "name", "avatar"},
	RequiredFields: []string{"id", "username"},

	Settings: func(locale string, spaceMinShouldPct int) *query.Settings {
		return &query.Settings{
			FieldMappings: map[string][]db.FieldRef{
				"username": {{Name: "username", Boost: RoleTitle.Boost()}},
				"name":     {{Name: "name", Boost: RoleContent.Boost()}},
			},
			SpaceMinShouldPct: spaceMinShouldPct,
		}
	},
	Filter: func(fc FilterContext) (filter, mustNot []db.Node) {
		return nil, nil
	},
	MakeResult: func(hit db.Hit, locale, summary string) document.Result {
		username := document.PlainValue(hit.Source, "username")
		return document.Result{
			Type:    "user",
			ID:      hit.ID,
			Title:   username,
			URL:     "/user/" + username,
			Summary: summary,
			Score:   hit.Score,
			Extra: map[string]any{
				"avatar": document.PlainValue(hit.Source, "avatar"),
			},
		}
	},
	IndexDefinition: func(indexName string, locales []string, vectorDim int) (*db.IndexDefinition, error) {
		return db.NewIndex(indexName).
			Text("username").
			Text("name").
			Keyword("locale").
			Keyword("avatar").
			Numeric("indexed_on").
			Build()
	},
}

// All lists every document type the indexing path accepts.
var All = []*Type{Wiki, Question, Answer, Forum, Profile}

// SearchTypes lists the types searchable on their own. Answer hits surface
// through the question type.
var SearchTypes = []*Type{Wiki, Question, Forum, Profile}

// ByName resolves a type name.
func ByName(name string) (*Type, bool) {
	for _, t := range All {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}
