package search

import (
	"strings"

	"go.uber.org/zap"

	"github.com/kbforge/searchd/internal/db"
	"github.com/kbforge/searchd/internal/doctype"
	"github.com/kbforge/searchd/internal/query"
)

// Strategy selects the retrieval approach for a search request.
type Strategy string

const (
	// StrategyTraditional is lexical BM25 retrieval with the full query
	// syntax available.
	StrategyTraditional Strategy = "traditional"
	// StrategySemantic is vector retrieval with a lexical ranking merged
	// in as fallback scoring.
	StrategySemantic Strategy = "semantic"
	// StrategyHybrid fuses traditional and semantic rankings client-side.
	StrategyHybrid Strategy = "hybrid"
)

// Queries with more terms than this match loosely instead of requiring
// every term.
const plainAndMaxTerms = 3

// plainMinShouldPct loosens matching as plain queries grow longer.
func plainMinShouldPct(terms int) int {
	switch {
	case terms <= 2:
		return 100
	case terms == 3:
		return 75
	default:
		return 65
	}
}

// lexicalQuery builds the scoring query for one type across the requested
// locales. The first locale is primary and its fields score higher; a
// single-locale request gets the plain per-locale query unchanged.
func (s *Service) lexicalQuery(t *doctype.Type, raw string, locales []string, parse bool) db.Node {
	if len(locales) == 1 {
		return s.localeLexical(t, raw, locales[0], 1, parse)
	}
	shoulds := make([]db.Node, 0, len(locales))
	for i, loc := range locales {
		boost := 1.0
		if i == 0 {
			boost = s.cfg.PrimaryLocaleBoost
		}
		shoulds = append(shoulds, s.localeLexical(t, raw, loc, boost, parse))
	}
	return &db.Bool{Should: shoulds}
}

func (s *Service) localeLexical(t *doctype.Type, raw, locale string, boost float64, parse bool) db.Node {
	if parse {
		tok, err := query.Parse(raw)
		if err == nil {
			cctx := &query.Context{
				Fields:   t.SearchFields(locale, boost),
				Settings: t.Settings(locale, s.cfg.SpaceMinShouldPct),
			}
			return tok.Compile(cctx)
		}
		s.log.Debug("query parse failed, matching plainly",
			zap.String("query", raw), zap.Error(err))
	}
	return s.plainQuery(t, raw, locale, boost)
}

// plainQuery matches raw text without interpreting any operator syntax.
// Short queries require every term; longer ones relax to a percentage.
func (s *Service) plainQuery(t *doctype.Type, raw, locale string, boost float64) db.Node {
	fields := t.SearchFields(locale, boost)
	n := len(strings.Fields(raw))
	switch {
	case n == 0:
		return db.MatchAll{}
	case n <= plainAndMaxTerms:
		return db.MultiMatch{Fields: fields, Query: raw, Operator: db.OpAnd}
	default:
		return db.MultiMatch{
			Fields:       fields,
			Query:        raw,
			Operator:     db.OpOr,
			MinShouldPct: plainMinShouldPct(n),
		}
	}
}

// knnQuery retrieves by vector similarity over the primary locale's
// embedding. RediSearch only accepts KNN as the top-level clause of a
// query, so the lexical leg runs as a separate request and the two
// rankings merge client-side.
func (s *Service) knnQuery(t *doctype.Type, locale string, vector []float32, k int) db.Node {
	return db.KNN{Field: t.EmbeddingField(locale), Vector: vector, K: k}
}
