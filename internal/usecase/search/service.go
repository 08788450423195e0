// Package search orchestrates query execution: strategy selection, per-type
// filters, retrieval, rank fusion, pagination, and snippet highlighting.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kbforge/searchd/internal/db"
	"github.com/kbforge/searchd/internal/doctype"
	"github.com/kbforge/searchd/internal/document"
	"github.com/kbforge/searchd/internal/metrics"
	"github.com/kbforge/searchd/internal/query"
)

// ErrUnknownDocType is returned when a request names a document type that
// does not exist.
var ErrUnknownDocType = errors.New("search: unknown document type")

// Config holds the relevance and result-shaping tunables.
type Config struct {
	DefaultLocale      string
	ResultsPerPage     int
	MaxPageSize        int
	RRFRankWindowSize  int
	RRFRankConstant    int
	SpaceMinShouldPct  int
	PrimaryLocaleBoost float64
	HighlightTag       string
	SnippetLength      int
	SemanticMinScore   float64
	// QuestionRetention bounds how far back question results reach; zero
	// keeps the document-type default of two years.
	QuestionRetention time.Duration
	// DisableGibberish turns off the single-word gibberish short-circuit.
	DisableGibberish bool
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		DefaultLocale:      document.DefaultLocale,
		ResultsPerPage:     20,
		MaxPageSize:        100,
		RRFRankWindowSize:  100,
		RRFRankConstant:    20,
		SpaceMinShouldPct:  66,
		PrimaryLocaleBoost: 1.5,
		HighlightTag:       "strong",
		SnippetLength:      500,
		SemanticMinScore:   0.01,
	}
}

// Request is one search call. Zero values fall back to defaults: all
// searchable types, the configured locale, hybrid strategy, page one.
type Request struct {
	Query    string
	DocTypes []string
	// Locale is the primary locale; Locales lists additional locales
	// searched alongside it at a lower weight.
	Locale   string
	Locales  []string
	Product  string
	Page     int
	PerPage  int
	Strategy Strategy
}

// Response is a page of display-ready results.
type Response struct {
	Query   string            `json:"query"`
	Page    int               `json:"page"`
	PerPage int               `json:"per_page"`
	Total   int               `json:"total"`
	Results []document.Result `json:"results"`
}

// Service executes searches across document types.
type Service struct {
	store Searcher
	embed Embedder // nil disables semantic retrieval
	cfg   Config
	log   *zap.Logger
	hl    *highlighter
	now   func() time.Time
}

// New creates a search service. embed may be nil when no embedding provider
// is configured; semantic and hybrid requests then degrade to traditional.
func New(store Searcher, embed Embedder, cfg Config, log *zap.Logger) *Service {
	return &Service{
		store: store,
		embed: embed,
		cfg:   cfg,
		log:   log,
		hl:    newHighlighter(cfg.HighlightTag, cfg.SnippetLength),
		now:   time.Now,
	}
}

// Search runs one query across the requested document types and returns the
// requested page of merged results.
func (s *Service) Search(ctx context.Context, req *Request) (*Response, error) {
	raw := strings.TrimSpace(req.Query)
	page := req.Page
	if page < 1 {
		page = 1
	}
	perPage := req.PerPage
	if perPage <= 0 {
		perPage = s.cfg.ResultsPerPage
	}
	if perPage > s.cfg.MaxPageSize {
		perPage = s.cfg.MaxPageSize
	}

	resp := &Response{Query: raw, Page: page, PerPage: perPage, Results: []document.Result{}}

	types, err := s.resolveTypes(req.DocTypes)
	if err != nil {
		return nil, err
	}
	locales := s.requestLocales(req)

	if !s.cfg.DisableGibberish && looksGibberish(raw) {
		metrics.SearchGibberishTotal.Inc()
		s.log.Debug("gibberish query answered empty", zap.String("query", raw))
		return resp, nil
	}

	advanced := query.IsAdvanced(raw)
	strategy := req.Strategy
	if strategy == "" {
		strategy = StrategyHybrid
	}

	var vector []float32
	if strategy != StrategyTraditional {
		vector, strategy = s.prepareSemantic(ctx, raw, strategy, advanced)
	}

	window := page * perPage
	if strategy == StrategyHybrid && window < s.cfg.RRFRankWindowSize {
		window = s.cfg.RRFRankWindowSize
	}

	fc := doctype.FilterContext{
		Locale:    locales[0],
		Product:   req.Product,
		Simple:    !advanced,
		Now:       s.now(),
		Retention: s.cfg.QuestionRetention,
	}

	var merged []db.Hit
	for _, t := range types {
		hits, total, err := s.searchType(ctx, t, raw, strategy, locales, vector, fc, window)
		if err != nil {
			return nil, err
		}
		merged = append(merged, hits...)
		resp.Total += total
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })

	from := (page - 1) * perPage
	if from >= len(merged) {
		return resp, nil
	}
	pageHits := merged[from:]
	if len(pageHits) > perPage {
		pageHits = pageHits[:perPage]
	}

	terms := queryTerms(raw)
	for _, h := range pageHits {
		t := s.typeForHit(types, h)
		if t == nil {
			s.log.Warn("hit from unrecognized index dropped",
				zap.String("index", h.Index), zap.String("id", h.ID))
			continue
		}
		summary := s.summarize(t, h, locales[0], terms)
		resp.Results = append(resp.Results, t.MakeResult(h, locales[0], summary))
	}
	return resp, nil
}

// prepareSemantic embeds the query text. Advanced syntax, missing vector
// support, and embedding failures all degrade the strategy to traditional.
func (s *Service) prepareSemantic(ctx context.Context, raw string, strategy Strategy, advanced bool) ([]float32, Strategy) {
	if advanced {
		s.log.Debug("advanced syntax bypasses semantic retrieval", zap.String("query", raw))
		return nil, StrategyTraditional
	}
	if s.embed == nil || !s.store.SupportsVectorSearch() {
		s.log.Debug("semantic retrieval unavailable, using traditional",
			zap.String("strategy", string(strategy)))
		return nil, StrategyTraditional
	}
	res, err := s.embed.Embed(ctx, raw)
	if err != nil {
		s.log.Warn("query embedding failed, using traditional", zap.Error(err))
		return nil, StrategyTraditional
	}
	return res.Vector, strategy
}

func (s *Service) searchType(
	ctx context.Context, t *doctype.Type, raw string, strategy Strategy,
	locales []string, vector []float32, fc doctype.FilterContext, window int,
) ([]db.Hit, int, error) {
	start := time.Now()
	hits, total, err := s.retrieve(ctx, t, raw, strategy, locales, vector, fc, window)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.SearchRequestsTotal.WithLabelValues(t.Name, string(strategy), status).Inc()
	metrics.SearchRequestDuration.WithLabelValues(t.Name, string(strategy)).
		Observe(time.Since(start).Seconds())

	return hits, total, err
}

func (s *Service) retrieve(
	ctx context.Context, t *doctype.Type, raw string, strategy Strategy,
	locales []string, vector []float32, fc doctype.FilterContext, window int,
) ([]db.Hit, int, error) {
	switch strategy {
	case StrategySemantic:
		knn := s.knnQuery(t, locales[0], vector, window)
		semHits, semTotal, err := s.runQuery(ctx, t, knn, fc, window)
		if err != nil {
			return nil, 0, err
		}
		if len(semHits) == 0 || semHits[0].Score < s.cfg.SemanticMinScore {
			s.log.Debug("semantic scores below threshold, falling back to lexical",
				zap.String("doc_type", t.Name))
			return s.runLexical(ctx, t, raw, locales, fc, window, true)
		}
		lexHits, lexTotal, err := s.runQuery(ctx, t, s.lexicalQuery(t, raw, locales, false), fc, window)
		if err != nil {
			return nil, 0, err
		}
		hits := mergeScored(semHits, lexHits)
		if len(hits) > window {
			hits = hits[:window]
		}
		total := semTotal
		if lexTotal > total {
			total = lexTotal
		}
		return hits, total, nil

	case StrategyHybrid:
		lexHits, lexTotal, err := s.runLexical(ctx, t, raw, locales, fc, window, false)
		if err != nil {
			return nil, 0, err
		}
		semHits, _, err := s.runQuery(ctx, t, s.knnQuery(t, locales[0], vector, window), fc, window)
		if err != nil {
			return nil, 0, err
		}
		fused := fuseRRF(s.cfg.RRFRankConstant, lexHits, semHits)
		if len(fused) > window {
			fused = fused[:window]
		}
		return fused, lexTotal, nil

	default:
		return s.runLexical(ctx, t, raw, locales, fc, window, true)
	}
}

// runLexical executes the lexical query, retrying exactly once with parsing
// disabled when the backend rejects the compiled form.
func (s *Service) runLexical(
	ctx context.Context, t *doctype.Type, raw string, locales []string,
	fc doctype.FilterContext, window int, parse bool,
) ([]db.Hit, int, error) {
	hits, total, err := s.runQuery(ctx, t, s.lexicalQuery(t, raw, locales, parse), fc, window)
	if parse && db.IsQueryRejected(err) {
		metrics.SearchNoParseRetriesTotal.WithLabelValues(t.Name).Inc()
		s.log.Warn("backend rejected query, retrying without parsing",
			zap.String("doc_type", t.Name), zap.String("query", raw), zap.Error(err))
		return s.runQuery(ctx, t, s.lexicalQuery(t, raw, locales, false), fc, window)
	}
	return hits, total, err
}

func (s *Service) runQuery(
	ctx context.Context, t *doctype.Type, scoring db.Node,
	fc doctype.FilterContext, window int,
) ([]db.Hit, int, error) {
	if db.IsMatchNone(scoring) {
		return nil, 0, nil
	}

	q := scoring
	if filter, mustNot := t.Filter(fc); len(filter)+len(mustNot) > 0 {
		q = &db.Bool{Must: []db.Node{scoring}, Filter: filter, MustNot: mustNot}
	}

	res, err := s.store.Search(ctx, &db.SearchRequest{
		Index: t.ReadAlias(),
		Query: q,
		Size:  window,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("search %s: %w", t.Name, err)
	}
	return res.Hits, res.Total, nil
}

// summarize builds the result summary: the first highlight fragment, else
// the stored summary, else truncated content.
func (s *Service) summarize(t *doctype.Type, hit db.Hit, locale string, terms []string) string {
	for _, f := range t.HighlightFields {
		if frag, ok := s.hl.Fragment(fieldText(f, hit, locale), terms); ok {
			return frag
		}
	}
	if t.SummaryField.Name != "" {
		if text := fieldText(t.SummaryField, hit, locale); text != "" {
			return s.hl.Truncate(text)
		}
	}
	if t.ContentField.Name != "" {
		return s.hl.Truncate(fieldText(t.ContentField, hit, locale))
	}
	return ""
}

func fieldText(f doctype.Field, hit db.Hit, locale string) string {
	if f.Localized {
		return document.LocaleValue(hit.Source, f.Name, locale)
	}
	return document.PlainValue(hit.Source, f.Name)
}

// typeForHit routes a hit back to the type that renders it. Answers live in
// the question index under prefixed ids.
func (s *Service) typeForHit(types []*doctype.Type, h db.Hit) *doctype.Type {
	for _, t := range types {
		if h.Index != t.ReadAlias() && !strings.HasPrefix(h.Index, t.IndexBase+"_") {
			continue
		}
		if t == doctype.Question && strings.HasPrefix(h.ID, "a_") {
			return doctype.Answer
		}
		return t
	}
	return nil
}

func (s *Service) resolveTypes(names []string) ([]*doctype.Type, error) {
	if len(names) == 0 {
		return doctype.SearchTypes, nil
	}
	types := make([]*doctype.Type, 0, len(names))
	for _, n := range names {
		t, ok := doctype.ByName(n)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownDocType, n)
		}
		types = append(types, t)
	}
	return types, nil
}

func (s *Service) requestLocales(req *Request) []string {
	primary := req.Locale
	if primary == "" {
		primary = s.cfg.DefaultLocale
	}
	locales := []string{primary}
	seen := map[string]bool{primary: true}
	for _, l := range req.Locales {
		if seen[l] {
			continue
		}
		seen[l] = true
		locales = append(locales, l)
	}
	return locales
}
