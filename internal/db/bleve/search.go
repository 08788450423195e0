package bleve

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/kbforge/searchd/internal/db"
)

// Search compiles the request's query tree into a bleve query and executes
// it. A top-level MatchNone never reaches the index.
func (s *Store) Search(ctx context.Context, req *db.SearchRequest) (*db.SearchResult, error) {
	if db.IsMatchNone(req.Query) {
		return &db.SearchResult{}, nil
	}

	idx, err := s.resolve(req.Index)
	if err != nil {
		return nil, err
	}

	q, err := compile(req.Query)
	if err != nil {
		return nil, err
	}

	size := req.Size
	if size <= 0 {
		size = 10
	}

	sr := bleve.NewSearchRequestOptions(q, size, req.From, false)
	if len(req.SourceFields) > 0 {
		sr.Fields = req.SourceFields
	} else {
		sr.Fields = []string{"*"}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.requestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := idx.SearchInContext(ctx, sr)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	out := &db.SearchResult{Total: int(res.Total)}
	for _, hit := range res.Hits {
		out.Hits = append(out.Hits, db.Hit{
			ID:     hit.ID,
			Index:  req.Index,
			Score:  hit.Score,
			Source: hit.Fields,
		})
	}
	return out, nil
}

// storedFields fetches the stored field values of one document via a
// single-hit id query.
func storedFields(idx bleve.Index, id string) (map[string]any, error) {
	q := query.NewDocIDQuery([]string{id})
	sr := bleve.NewSearchRequestOptions(q, 1, 0, false)
	sr.Fields = []string{"*"}

	res, err := idx.Search(sr)
	if err != nil {
		return nil, err
	}
	if len(res.Hits) == 0 {
		return nil, db.ErrDocNotFound
	}
	return res.Hits[0].Fields, nil
}

// compile translates a query node into a bleve query. MatchNone below the
// top level compiles to a native match-none query; KNN is unsupported here.
func compile(n db.Node) (query.Query, error) {
	switch q := n.(type) {
	case db.MatchAll:
		return query.NewMatchAllQuery(), nil
	case db.MatchNone:
		return query.NewMatchNoneQuery(), nil
	case db.Match:
		return compileMatch(q), nil
	case db.MultiMatch:
		return compileMultiMatch(q), nil
	case db.Phrase:
		return compilePhrase(q), nil
	case db.Term:
		return compileTerm(q), nil
	case db.Range:
		return compileRange(q), nil
	case db.Exists:
		wq := query.NewWildcardQuery("*")
		wq.SetField(q.Field)
		return wq, nil
	case *db.Bool:
		return compileBool(q)
	case db.KNN:
		return nil, db.ErrVectorUnsupported
	default:
		return nil, db.ErrQueryRejected
	}
}

func compileMatch(m db.Match) query.Query {
	mq := query.NewMatchQuery(m.Query)
	mq.SetField(m.Field)
	if m.Operator == db.OpAnd {
		mq.SetOperator(query.MatchQueryOperatorAnd)
	}
	if m.Boost > 0 {
		mq.SetBoost(m.Boost)
	}
	return mq
}

// compileMultiMatch fans the text across fields as a disjunction of per-field
// match queries. MinShouldPct applies inside each field by lowering the
// disjunction's Min over the query's terms; bleve has no per-match minimum,
// so each field match is split into per-term queries when a minimum applies.
func compileMultiMatch(m db.MultiMatch) query.Query {
	terms := strings.Fields(m.Query)

	perField := make([]query.Query, 0, len(m.Fields))
	for _, f := range m.Fields {
		var fq query.Query
		switch {
		case m.Operator == db.OpAnd || m.MinShouldPct >= 100:
			mq := query.NewMatchQuery(m.Query)
			mq.SetField(f.Name)
			mq.SetOperator(query.MatchQueryOperatorAnd)
			fq = mq
		case m.MinShouldPct > 0 && len(terms) > 1:
			dq := query.NewDisjunctionQuery(nil)
			for _, t := range terms {
				tq := query.NewMatchQuery(t)
				tq.SetField(f.Name)
				dq.AddQuery(tq)
			}
			dq.SetMin(float64(db.MinShouldCount(m.MinShouldPct, len(terms))))
			fq = dq
		default:
			mq := query.NewMatchQuery(m.Query)
			mq.SetField(f.Name)
			fq = mq
		}
		if f.Boost > 0 {
			if b, ok := fq.(query.BoostableQuery); ok {
				b.SetBoost(f.Boost)
			}
		}
		perField = append(perField, fq)
	}

	if len(perField) == 1 {
		return perField[0]
	}
	return query.NewDisjunctionQuery(perField)
}

func compilePhrase(p db.Phrase) query.Query {
	perField := make([]query.Query, 0, len(p.Fields))
	for _, f := range p.Fields {
		pq := query.NewMatchPhraseQuery(p.Text)
		pq.SetField(f.Name)
		if f.Boost > 0 {
			pq.SetBoost(f.Boost)
		}
		perField = append(perField, pq)
	}
	if len(perField) == 1 {
		return perField[0]
	}
	return query.NewDisjunctionQuery(perField)
}

func compileTerm(t db.Term) query.Query {
	switch v := t.Value.(type) {
	case bool:
		bq := query.NewBoolFieldQuery(v)
		bq.SetField(t.Field)
		return bq
	case string:
		tq := query.NewTermQuery(v)
		tq.SetField(t.Field)
		return tq
	default:
		f, ok := toFloat(t.Value)
		if !ok {
			tq := query.NewTermQuery(toString(t.Value))
			tq.SetField(t.Field)
			return tq
		}
		inclusive := true
		rq := query.NewNumericRangeInclusiveQuery(&f, &f, &inclusive, &inclusive)
		rq.SetField(t.Field)
		return rq
	}
}

func compileRange(r db.Range) query.Query {
	var minVal, maxVal *float64
	minInc, maxInc := true, true

	switch {
	case r.GTE != nil:
		minVal = r.GTE
	case r.GT != nil:
		minVal, minInc = r.GT, false
	}
	switch {
	case r.LTE != nil:
		maxVal = r.LTE
	case r.LT != nil:
		maxVal, maxInc = r.LT, false
	}

	rq := query.NewNumericRangeInclusiveQuery(minVal, maxVal, &minInc, &maxInc)
	rq.SetField(r.Field)
	return rq
}

func compileBool(b *db.Bool) (query.Query, error) {
	bq := query.NewBooleanQuery(nil, nil, nil)

	for _, n := range b.Must {
		q, err := compile(n)
		if err != nil {
			return nil, err
		}
		bq.AddMust(q)
	}
	// Filter clauses are non-scoring in principle; bleve scores everything,
	// so they join the conjunction and the score difference is accepted.
	for _, n := range b.Filter {
		q, err := compile(n)
		if err != nil {
			return nil, err
		}
		bq.AddMust(q)
	}
	for _, n := range b.Should {
		q, err := compile(n)
		if err != nil {
			return nil, err
		}
		bq.AddShould(q)
	}
	for _, n := range b.MustNot {
		q, err := compile(n)
		if err != nil {
			return nil, err
		}
		bq.AddMustNot(q)
	}

	if b.MinShouldPct > 0 && len(b.Should) > 0 {
		bq.SetMinShould(float64(db.MinShouldCount(b.MinShouldPct, len(b.Should))))
	}
	if b.Boost > 0 {
		bq.SetBoost(b.Boost)
	}
	return bq, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
