package search

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/kbforge/searchd/internal/db"
	"github.com/kbforge/searchd/internal/doctype"
	"github.com/kbforge/searchd/internal/embedding"
)

type mockSearcher struct {
	calls   []*db.SearchRequest
	results []*db.SearchResult
	errs    []error
	vectors bool
}

func (m *mockSearcher) Search(_ context.Context, req *db.SearchRequest) (*db.SearchResult, error) {
	i := len(m.calls)
	m.calls = append(m.calls, req)
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if len(m.results) == 0 {
		return &db.SearchResult{}, nil
	}
	if i >= len(m.results) {
		i = len(m.results) - 1
	}
	return m.results[i], nil
}

func (m *mockSearcher) SupportsVectorSearch() bool { return m.vectors }

type stubEmbedder struct {
	calls int
}

func (e *stubEmbedder) Embed(_ context.Context, _ string) (embedding.Result, error) {
	e.calls++
	return embedding.Result{Vector: []float32{0.1, 0.2}}, nil
}

func newTestService(store *mockSearcher, embed Embedder) *Service {
	return New(store, embed, DefaultConfig(), zap.NewNop())
}

func wikiHit(id, title, content string, score float64) db.Hit {
	return db.Hit{
		ID:    id,
		Index: "wiki_read",
		Score: score,
		Source: map[string]any{
			"title.en-US":   title,
			"content.en-US": content,
			"slug.en-US":    id,
		},
	}
}

func TestSearch_GibberishNeverReachesBackend(t *testing.T) {
	store := &mockSearcher{}
	svc := newTestService(store, nil)

	resp, err := svc.Search(context.Background(), &Request{Query: "zxkcvbqw"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Total != 0 || len(resp.Results) != 0 {
		t.Fatalf("expected empty response, got total=%d results=%d", resp.Total, len(resp.Results))
	}
	if len(store.calls) != 0 {
		t.Fatalf("expected 0 backend calls, got %d", len(store.calls))
	}
}

func TestSearch_GibberishCheckCanBeDisabled(t *testing.T) {
	store := &mockSearcher{}
	cfg := DefaultConfig()
	cfg.DisableGibberish = true
	svc := New(store, nil, cfg, zap.NewNop())

	_, err := svc.Search(context.Background(), &Request{Query: "zxkcvbqw", Strategy: StrategyTraditional})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(store.calls) == 0 {
		t.Fatal("expected the query to reach the backend")
	}
}

func TestSearch_UnknownDocType(t *testing.T) {
	svc := newTestService(&mockSearcher{}, nil)

	_, err := svc.Search(context.Background(), &Request{Query: "firefox", DocTypes: []string{"nope"}})
	if err == nil || !errors.Is(err, ErrUnknownDocType) {
		t.Fatalf("expected unknown doc type error, got %v", err)
	}
}

func TestSearch_DefaultsToSearchableTypes(t *testing.T) {
	store := &mockSearcher{}
	svc := newTestService(store, nil)

	if _, err := svc.Search(context.Background(), &Request{Query: "firefox"}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(store.calls) != len(doctype.SearchTypes) {
		t.Fatalf("expected %d backend calls, got %d", len(doctype.SearchTypes), len(store.calls))
	}
	indexes := make(map[string]bool)
	for _, c := range store.calls {
		indexes[c.Index] = true
	}
	for _, dt := range doctype.SearchTypes {
		if !indexes[dt.ReadAlias()] {
			t.Fatalf("type %s not searched via its read alias", dt.Name)
		}
	}
}

func TestSearch_RetriesOnceWithoutParsing(t *testing.T) {
	store := &mockSearcher{
		errs: []error{db.ErrQueryRejected},
		results: []*db.SearchResult{
			nil,
			{Total: 1, Hits: []db.Hit{wikiHit("clear-cookies", "Clear cookies", "How to clear cookies.", 2)}},
		},
	}
	svc := newTestService(store, nil)

	resp, err := svc.Search(context.Background(), &Request{
		Query:    "clear AND cookies",
		DocTypes: []string{"wiki"},
		Strategy: StrategyTraditional,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(store.calls) != 2 {
		t.Fatalf("expected exactly 2 backend calls, got %d", len(store.calls))
	}
	if resp.Total != 1 || len(resp.Results) != 1 {
		t.Fatalf("expected the retry's hit, got total=%d results=%d", resp.Total, len(resp.Results))
	}

	// The retry must not interpret operator syntax.
	retry, ok := store.calls[1].Query.(*db.Bool)
	if !ok {
		t.Fatalf("retry query is %T, want *db.Bool", store.calls[1].Query)
	}
	if _, ok := retry.Must[0].(db.MultiMatch); !ok {
		t.Fatalf("retry scoring is %T, want db.MultiMatch", retry.Must[0])
	}
}

func TestSearch_NonSyntaxErrorNotRetried(t *testing.T) {
	store := &mockSearcher{errs: []error{context.DeadlineExceeded}}
	svc := newTestService(store, nil)

	_, err := svc.Search(context.Background(), &Request{
		Query:    "firefox",
		DocTypes: []string{"wiki"},
		Strategy: StrategyTraditional,
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(store.calls) != 1 {
		t.Fatalf("expected 1 backend call, got %d", len(store.calls))
	}
}

func TestSearch_HybridFusesRankings(t *testing.T) {
	store := &mockSearcher{
		vectors: true,
		results: []*db.SearchResult{
			{Total: 3, Hits: []db.Hit{
				wikiHit("a", "A", "", 9),
				wikiHit("b", "B", "", 8),
				wikiHit("c", "C", "", 7),
			}},
			{Total: 2, Hits: []db.Hit{
				wikiHit("c", "C", "", 0.9),
				wikiHit("d", "D", "", 0.8),
			}},
		},
	}
	embed := &stubEmbedder{}
	svc := newTestService(store, embed)

	resp, err := svc.Search(context.Background(), &Request{
		Query:    "firefox profiles",
		DocTypes: []string{"wiki"},
		Strategy: StrategyHybrid,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if embed.calls != 1 {
		t.Fatalf("expected 1 embedding call, got %d", embed.calls)
	}
	if len(store.calls) != 2 {
		t.Fatalf("expected lexical + semantic backend calls, got %d", len(store.calls))
	}
	if store.calls[0].Size != 100 || store.calls[1].Size != 100 {
		t.Fatalf("expected rank window of 100, got %d and %d", store.calls[0].Size, store.calls[1].Size)
	}

	ids := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		ids = append(ids, r.ID)
	}
	want := []string{"c", "a", "d", "b"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("fused order = %v, want %v", ids, want)
	}
}

func TestSearch_HybridAdvancedSyntaxBypassesSemantic(t *testing.T) {
	store := &mockSearcher{vectors: true}
	embed := &stubEmbedder{}
	svc := newTestService(store, embed)

	_, err := svc.Search(context.Background(), &Request{
		Query:    `"clear cookies" AND field:product:firefox`,
		DocTypes: []string{"wiki"},
		Strategy: StrategyHybrid,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if embed.calls != 0 {
		t.Fatalf("expected no embedding calls, got %d", embed.calls)
	}
	if len(store.calls) != 1 {
		t.Fatalf("expected a single lexical call, got %d", len(store.calls))
	}
}

func TestSearch_HybridWithoutVectorSupportDegrades(t *testing.T) {
	store := &mockSearcher{vectors: false}
	embed := &stubEmbedder{}
	svc := newTestService(store, embed)

	_, err := svc.Search(context.Background(), &Request{
		Query:    "firefox",
		DocTypes: []string{"wiki"},
		Strategy: StrategyHybrid,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if embed.calls != 0 || len(store.calls) != 1 {
		t.Fatalf("expected traditional-only execution, got %d embeds and %d searches",
			embed.calls, len(store.calls))
	}
}

func TestSearch_SemanticMergesLexicalScores(t *testing.T) {
	store := &mockSearcher{
		vectors: true,
		results: []*db.SearchResult{
			{Total: 2, Hits: []db.Hit{
				wikiHit("sem", "Semantic only", "", 0.9),
				wikiHit("both", "Both", "", 0.8),
			}},
			{Total: 2, Hits: []db.Hit{
				wikiHit("both", "Both", "", 0.5),
				wikiHit("lex", "Lexical only", "", 0.4),
			}},
		},
	}
	svc := newTestService(store, &stubEmbedder{})

	resp, err := svc.Search(context.Background(), &Request{
		Query:    "firefox profiles",
		DocTypes: []string{"wiki"},
		Strategy: StrategySemantic,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(store.calls) != 2 {
		t.Fatalf("expected vector + lexical backend calls, got %d", len(store.calls))
	}

	// The vector leg must reach the driver with the KNN clause in required
	// position, never nested inside a should.
	scoring := store.calls[0].Query
	if b, ok := scoring.(*db.Bool); ok {
		if len(b.Must) == 0 {
			t.Fatalf("vector query has no must clause: %#v", b)
		}
		scoring = b.Must[0]
	}
	if _, ok := scoring.(db.KNN); !ok {
		t.Fatalf("vector query scoring is %T, want db.KNN", scoring)
	}

	ids := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		ids = append(ids, r.ID)
	}
	// "both" sums its scores across the two rankings.
	want := []string{"both", "sem", "lex"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("merged order = %v, want %v", ids, want)
	}
}

func TestSearch_SemanticFallsBackBelowMinScore(t *testing.T) {
	store := &mockSearcher{
		vectors: true,
		results: []*db.SearchResult{
			{Total: 1, Hits: []db.Hit{wikiHit("weak", "Weak", "", 0.001)}},
			{Total: 1, Hits: []db.Hit{wikiHit("lexical", "Lexical", "", 3)}},
		},
	}
	svc := newTestService(store, &stubEmbedder{})

	resp, err := svc.Search(context.Background(), &Request{
		Query:    "firefox",
		DocTypes: []string{"wiki"},
		Strategy: StrategySemantic,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(store.calls) != 2 {
		t.Fatalf("expected semantic then lexical calls, got %d", len(store.calls))
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != "lexical" {
		t.Fatalf("expected the lexical fallback hit, got %+v", resp.Results)
	}
}

func TestSearch_PaginatesMergedResults(t *testing.T) {
	hits := []db.Hit{
		wikiHit("1", "One", "", 5),
		wikiHit("2", "Two", "", 4),
		wikiHit("3", "Three", "", 3),
	}
	store := &mockSearcher{results: []*db.SearchResult{{Total: 3, Hits: hits}}}
	svc := newTestService(store, nil)

	resp, err := svc.Search(context.Background(), &Request{
		Query:    "firefox",
		DocTypes: []string{"wiki"},
		Strategy: StrategyTraditional,
		Page:     2,
		PerPage:  2,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Total != 3 || resp.Page != 2 || resp.PerPage != 2 {
		t.Fatalf("unexpected paging: total=%d page=%d per_page=%d", resp.Total, resp.Page, resp.PerPage)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != "3" {
		t.Fatalf("expected only the third hit on page 2, got %+v", resp.Results)
	}
}

func TestSearch_SummaryPrefersHighlight(t *testing.T) {
	hit := wikiHit("clear-cookies", "Clear cookies", "Open settings. Cookies are stored per site.", 2)
	hit.Source["summary.en-US"] = "A stored summary."
	store := &mockSearcher{results: []*db.SearchResult{{Total: 1, Hits: []db.Hit{hit}}}}
	svc := newTestService(store, nil)

	resp, err := svc.Search(context.Background(), &Request{
		Query:    "cookies",
		DocTypes: []string{"wiki"},
		Strategy: StrategyTraditional,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	got := resp.Results[0].Summary
	if got != "<strong>Cookies</strong> are stored per site." {
		t.Fatalf("unexpected summary: %q", got)
	}
}

func TestSearch_SummaryFallsBackToStoredSummary(t *testing.T) {
	hit := wikiHit("profiles", "Profiles", "Long body without the words.", 2)
	hit.Source["summary.en-US"] = "Profiles hold settings."
	store := &mockSearcher{results: []*db.SearchResult{{Total: 1, Hits: []db.Hit{hit}}}}
	svc := newTestService(store, nil)

	resp, err := svc.Search(context.Background(), &Request{
		Query:    "bookmarks",
		DocTypes: []string{"wiki"},
		Strategy: StrategyTraditional,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := resp.Results[0].Summary; got != "Profiles hold settings." {
		t.Fatalf("unexpected summary: %q", got)
	}
}

func TestTypeForHit_RoutesAnswersToAnswerType(t *testing.T) {
	svc := newTestService(&mockSearcher{}, nil)
	types := []*doctype.Type{doctype.Wiki, doctype.Question}

	if got := svc.typeForHit(types, db.Hit{Index: "question_read", ID: "a_12"}); got != doctype.Answer {
		t.Fatalf("answer hit routed to %v", got)
	}
	if got := svc.typeForHit(types, db.Hit{Index: "question_read", ID: "12"}); got != doctype.Question {
		t.Fatalf("question hit routed to %v", got)
	}
	if got := svc.typeForHit(types, db.Hit{Index: "wiki_read", ID: "a_12"}); got != doctype.Wiki {
		t.Fatalf("wiki hit routed to %v", got)
	}
	if got := svc.typeForHit(types, db.Hit{Index: "stray", ID: "1"}); got != nil {
		t.Fatalf("stray hit routed to %v", got)
	}
}

func TestRequestLocales_Deduplicates(t *testing.T) {
	svc := newTestService(&mockSearcher{}, nil)

	got := svc.requestLocales(&Request{Locale: "de", Locales: []string{"de", "fr", "fr", "en-US"}})
	want := []string{"de", "fr", "en-US"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("requestLocales = %v, want %v", got, want)
	}

	if got := svc.requestLocales(&Request{}); !reflect.DeepEqual(got, []string{"en-US"}) {
		t.Fatalf("default locale = %v", got)
	}
}

func TestLexicalQuery_SingleLocaleHasNoWrapper(t *testing.T) {
	svc := newTestService(&mockSearcher{}, nil)

	single := svc.lexicalQuery(doctype.Wiki, "clear cookies", []string{"de"}, true)
	direct := svc.localeLexical(doctype.Wiki, "clear cookies", "de", 1, true)
	if !reflect.DeepEqual(single, direct) {
		t.Fatalf("single-locale query wrapped: %#v", single)
	}
}

func TestLexicalQuery_MultiLocaleBoostsPrimary(t *testing.T) {
	svc := newTestService(&mockSearcher{}, nil)

	node := svc.lexicalQuery(doctype.Wiki, "cookies", []string{"de", "en-US"}, true)
	b, ok := node.(*db.Bool)
	if !ok || len(b.Should) != 2 {
		t.Fatalf("expected a should pair, got %#v", node)
	}

	primary, ok := b.Should[0].(db.MultiMatch)
	if !ok {
		t.Fatalf("primary clause is %T", b.Should[0])
	}
	secondary := b.Should[1].(db.MultiMatch)
	if primary.Fields[0].Name != "title.de" || secondary.Fields[0].Name != "title.en-US" {
		t.Fatalf("locale fields wrong: %q / %q", primary.Fields[0].Name, secondary.Fields[0].Name)
	}
	if primary.Fields[0].Boost != 1.5*secondary.Fields[0].Boost {
		t.Fatalf("primary locale not boosted: %v vs %v",
			primary.Fields[0].Boost, secondary.Fields[0].Boost)
	}
}

func TestPlainQuery_MinShouldSchedule(t *testing.T) {
	svc := newTestService(&mockSearcher{}, nil)

	short := svc.plainQuery(doctype.Wiki, "clear all cookies", "en-US", 1).(db.MultiMatch)
	if short.Operator != db.OpAnd {
		t.Fatalf("3-term query should require all terms, got %v", short.Operator)
	}

	long := svc.plainQuery(doctype.Wiki, "how do i clear all cookies", "en-US", 1).(db.MultiMatch)
	if long.Operator != db.OpOr || long.MinShouldPct != 65 {
		t.Fatalf("6-term query: operator=%v msm=%d", long.Operator, long.MinShouldPct)
	}

	if pct := plainMinShouldPct(2); pct != 100 {
		t.Fatalf("2 terms: msm=%d", pct)
	}
	if pct := plainMinShouldPct(3); pct != 75 {
		t.Fatalf("3 terms: msm=%d", pct)
	}
}
