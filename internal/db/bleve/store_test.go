package bleve

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kbforge/searchd/internal/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(Config{RequestTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func articlesDef(name string) *db.IndexDefinition {
	def, _ := db.NewIndex(name).
		Text("title.en-US").
		Text("content.en-US").
		Keyword("locale").
		KeywordList("product_ids").
		Numeric("created").
		Bool("is_archived").
		Build()
	return def
}

func seedArticles(t *testing.T, s *Store, index string) {
	t.Helper()
	ctx := context.Background()
	docs := map[string]map[string]any{
		"1": {
			"title.en-US":   "Install Firefox on Linux",
			"content.en-US": "Download the tarball and extract it to opt.",
			"locale":        "en-US",
			"product_ids":   []string{"firefox"},
			"created":       float64(1700000000),
			"is_archived":   false,
		},
		"2": {
			"title.en-US":   "Clear cookies and site data",
			"content.en-US": "Open settings, then privacy, then clear data.",
			"locale":        "en-US",
			"product_ids":   []string{"firefox", "focus"},
			"created":       float64(1710000000),
			"is_archived":   true,
		},
		"3": {
			"title.en-US":   "Update Firefox to the latest release",
			"content.en-US": "Updates install automatically unless disabled.",
			"locale":        "en-US",
			"product_ids":   []string{"firefox"},
			"created":       float64(1720000000),
			"is_archived":   false,
		},
	}
	for id, fields := range docs {
		if err := s.PutDocument(ctx, index, id, fields); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}
}

func TestCreateIndexTwice(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateIndex(ctx, articlesDef("wiki_1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateIndex(ctx, articlesDef("wiki_1")); !errors.Is(err, db.ErrIndexExists) {
		t.Fatalf("want ErrIndexExists, got %v", err)
	}
}

func TestMatchSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.CreateIndex(ctx, articlesDef("wiki_1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	seedArticles(t, s, "wiki_1")

	res, err := s.Search(ctx, &db.SearchRequest{
		Index: "wiki_1",
		Query: db.Match{Field: "title.en-US", Query: "firefox", Operator: db.OpOr},
		Size:  10,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Total != 2 {
		t.Fatalf("want 2 hits, got %d", res.Total)
	}
	for _, h := range res.Hits {
		if h.ID != "1" && h.ID != "3" {
			t.Errorf("unexpected hit %s", h.ID)
		}
		if _, ok := h.Source["title.en-US"]; !ok {
			t.Errorf("hit %s missing stored title", h.ID)
		}
	}
}

func TestBoolWithFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.CreateIndex(ctx, articlesDef("wiki_1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	seedArticles(t, s, "wiki_1")

	res, err := s.Search(ctx, &db.SearchRequest{
		Index: "wiki_1",
		Query: &db.Bool{
			Must: []db.Node{
				db.Match{Field: "content.en-US", Query: "data", Operator: db.OpOr},
			},
			Filter: []db.Node{
				db.Term{Field: "product_ids", Value: "focus"},
			},
		},
		Size: 10,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Total != 1 || res.Hits[0].ID != "2" {
		t.Fatalf("want only doc 2, got %+v", res.Hits)
	}
}

func TestMinimumShouldMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.CreateIndex(ctx, articlesDef("wiki_1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	seedArticles(t, s, "wiki_1")

	// Three terms at 65%: two must match. Only doc 3 has both "update"
	// and "firefox" in the title.
	res, err := s.Search(ctx, &db.SearchRequest{
		Index: "wiki_1",
		Query: db.MultiMatch{
			Fields:       []db.FieldRef{{Name: "title.en-US", Boost: 8}},
			Query:        "update firefox nonsenseword",
			Operator:     db.OpOr,
			MinShouldPct: 65,
		},
		Size: 10,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Total != 1 || res.Hits[0].ID != "3" {
		t.Fatalf("want only doc 3, got %+v", res.Hits)
	}
}

func TestRangeQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.CreateIndex(ctx, articlesDef("wiki_1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	seedArticles(t, s, "wiki_1")

	lo := float64(1705000000)
	res, err := s.Search(ctx, &db.SearchRequest{
		Index: "wiki_1",
		Query: db.Range{Field: "created", GTE: &lo},
		Size:  10,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Total != 2 {
		t.Fatalf("want 2 hits, got %d", res.Total)
	}
}

func TestMatchNoneSkipsIndex(t *testing.T) {
	s := newTestStore(t)

	// No index exists at all; a MatchNone query must still succeed with an
	// empty result because it never reaches the backend.
	res, err := s.Search(context.Background(), &db.SearchRequest{
		Index: "missing",
		Query: db.MatchNone{},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Total != 0 || len(res.Hits) != 0 {
		t.Fatalf("want empty result, got %+v", res)
	}
}

func TestKNNUnsupported(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.CreateIndex(ctx, articlesDef("wiki_1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err := s.Search(ctx, &db.SearchRequest{
		Index: "wiki_1",
		Query: db.KNN{Field: "embedding", Vector: []float32{0.1, 0.2}, K: 5},
	})
	if !errors.Is(err, db.ErrVectorUnsupported) {
		t.Fatalf("want ErrVectorUnsupported, got %v", err)
	}
	if s.SupportsVectorSearch() {
		t.Fatal("embedded driver must report no vector support")
	}
}

func TestAliasLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.AliasTarget(ctx, "wiki_read"); !errors.Is(err, db.ErrAliasNotFound) {
		t.Fatalf("want ErrAliasNotFound, got %v", err)
	}

	if err := s.CreateIndex(ctx, articlesDef("wiki_1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateIndex(ctx, articlesDef("wiki_2")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.UpdateAlias(ctx, "wiki_read", "wiki_1"); err != nil {
		t.Fatalf("alias: %v", err)
	}
	target, err := s.AliasTarget(ctx, "wiki_read")
	if err != nil || target != "wiki_1" {
		t.Fatalf("want wiki_1, got %q err %v", target, err)
	}

	// Repointing replaces the target, never accumulates.
	if err := s.UpdateAlias(ctx, "wiki_read", "wiki_2"); err != nil {
		t.Fatalf("repoint: %v", err)
	}
	target, err = s.AliasTarget(ctx, "wiki_read")
	if err != nil || target != "wiki_2" {
		t.Fatalf("want wiki_2, got %q err %v", target, err)
	}

	seedArticles(t, s, "wiki_read")
	n, err := s.CountDocuments(ctx, "wiki_2")
	if err != nil || n != 3 {
		t.Fatalf("want 3 docs behind alias, got %d err %v", n, err)
	}
}

func TestAmbiguousAliasIsFatal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.CreateIndex(ctx, articlesDef("wiki_1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateIndex(ctx, articlesDef("wiki_2")); err != nil {
		t.Fatalf("create: %v", err)
	}
	s.setAliasTargets("wiki_read", []string{"wiki_1", "wiki_2"})

	_, err := s.AliasTarget(ctx, "wiki_read")
	var ambErr *db.AmbiguousAliasError
	if !errors.As(err, &ambErr) {
		t.Fatalf("want AmbiguousAliasError, got %v", err)
	}
	if len(ambErr.Indexes) != 2 {
		t.Fatalf("want both indexes reported, got %v", ambErr.Indexes)
	}

	if _, err := s.Search(ctx, &db.SearchRequest{Index: "wiki_read", Query: db.MatchAll{}}); !errors.As(err, &ambErr) {
		t.Fatalf("search through ambiguous alias must fail, got %v", err)
	}
}

func TestDocumentLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.CreateIndex(ctx, articlesDef("wiki_1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	seedArticles(t, s, "wiki_1")

	fields, err := s.GetDocument(ctx, "wiki_1", "2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fields["locale"] != "en-US" {
		t.Fatalf("unexpected locale %v", fields["locale"])
	}

	if err := s.DeleteDocument(ctx, "wiki_1", "2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteDocument(ctx, "wiki_1", "2"); !errors.Is(err, db.ErrDocNotFound) {
		t.Fatalf("want ErrDocNotFound, got %v", err)
	}
	if _, err := s.GetDocument(ctx, "wiki_1", "2"); !errors.Is(err, db.ErrDocNotFound) {
		t.Fatalf("want ErrDocNotFound, got %v", err)
	}

	n, err := s.CountDocuments(ctx, "wiki_1")
	if err != nil || n != 2 {
		t.Fatalf("want 2 docs, got %d err %v", n, err)
	}
}
