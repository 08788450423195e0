package redis

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kbforge/searchd/internal/db"
)

// Search compiles the query tree into FT.SEARCH syntax and executes it.
func (s *Store) Search(ctx context.Context, req *db.SearchRequest) (*db.SearchResult, error) {
	if req.Index == "" {
		return nil, fmt.Errorf("index name is required")
	}

	query := req.Query
	if query == nil {
		query = db.MatchAll{}
	}
	if db.IsMatchNone(query) {
		return &db.SearchResult{}, nil
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.requestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	filter, knn := splitKNN(query)

	if knn != nil {
		return s.searchKNN(ctx, req, filter, knn)
	}
	return s.searchText(ctx, req, filter)
}

func (s *Store) searchText(ctx context.Context, req *db.SearchRequest, query db.Node) (*db.SearchResult, error) {
	queryStr, err := renderNode(query)
	if err != nil {
		return nil, err
	}
	if queryStr == "" {
		queryStr = "*"
	}

	args := []string{req.Index, queryStr,
		"WITHSCORES",
		"LIMIT", strconv.Itoa(req.From), strconv.Itoa(req.Size),
		"DIALECT", "2",
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, wrapSearchErr(err)
	}

	return parseScoredResult(raw, req)
}

func (s *Store) searchKNN(ctx context.Context, req *db.SearchRequest, filter db.Node, knn *db.KNN) (*db.SearchResult, error) {
	filterStr, err := renderNode(filter)
	if err != nil {
		return nil, err
	}
	if filterStr == "" {
		filterStr = "*"
	}

	queryStr := fmt.Sprintf("(%s)=>[KNN %d @%s $BLOB AS dist]", filterStr, knn.K, fieldAlias(knn.Field))

	args := []string{req.Index, queryStr,
		"SORTBY", "dist", "ASC",
		"RETURN", "2", "dist", "$",
		"LIMIT", strconv.Itoa(req.From), strconv.Itoa(req.Size),
		"PARAMS", "2", "BLOB", vectorToBytes(knn.Vector),
		"DIALECT", "2",
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, wrapSearchErr(err)
	}

	return parseKNNResult(raw, req)
}

func wrapSearchErr(err error) error {
	if isRedisErr(err, "syntax error") || isRedisErr(err, "unknown argument") ||
		isRedisErr(err, "no such field") || isRedisErr(err, "unknown field") {
		return fmt.Errorf("%w: %w", db.ErrQueryRejected, err)
	}
	if isRedisErr(err, "unknown index name") || isRedisErr(err, "no such index") {
		return db.ErrIndexNotFound
	}
	return &db.Error{Op: db.OpSearch, Err: err}
}

// splitKNN extracts a required KNN node from the query, returning the
// remaining filter tree. RediSearch requires the KNN clause at the top of
// the query string, so the search path lifts it out of any chain of
// must-wrappers the caller used to attach filters.
func splitKNN(n db.Node) (db.Node, *db.KNN) {
	switch q := n.(type) {
	case db.KNN:
		return db.MatchAll{}, &q
	case *db.Bool:
		for i, m := range q.Must {
			inner, knn := splitKNN(m)
			if knn == nil {
				continue
			}
			musts := make([]db.Node, 0, len(q.Must))
			musts = append(musts, q.Must[:i]...)
			if _, all := inner.(db.MatchAll); !all {
				musts = append(musts, inner)
			}
			musts = append(musts, q.Must[i+1:]...)
			rest := &db.Bool{
				Must:         musts,
				Should:       q.Should,
				MustNot:      q.MustNot,
				Filter:       q.Filter,
				MinShouldPct: q.MinShouldPct,
				Boost:        q.Boost,
			}
			return rest, knn
		}
	}
	return n, nil
}

// --- Result parsing ---

// parseScoredResult parses the WITHSCORES reply:
// [total, key1, score1, fields1, key2, score2, fields2, ...]
func parseScoredResult(raw []rueidis.RedisMessage, req *db.SearchRequest) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}

	hits := make([]db.Hit, 0, (len(raw)-1)/3)
	for i := 1; i+2 < len(raw); i += 3 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		scoreStr, err := raw[i+1].ToString()
		if err != nil {
			continue
		}
		fields, err := raw[i+2].ToArray()
		if err != nil {
			continue
		}

		hit := db.Hit{
			ID:     docID(req.Index, key),
			Index:  req.Index,
			Score:  parseScore(scoreStr),
			Source: parseSource(fields, req.SourceFields),
		}
		hits = append(hits, hit)
	}

	return &db.SearchResult{Total: int(total), Hits: hits}, nil
}

// parseKNNResult parses the SORTBY dist reply:
// [total, key1, fields1, key2, fields2, ...] where fields carry dist and $.
func parseKNNResult(raw []rueidis.RedisMessage, req *db.SearchRequest) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}

	hits := make([]db.Hit, 0, (len(raw)-1)/2)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		pairs := parseFieldPairs(fields)

		hit := db.Hit{
			ID:    docID(req.Index, key),
			Index: req.Index,
		}
		if dist, ok := pairs["dist"]; ok {
			// cosine distance -> similarity, clamped to [0,1]
			hit.Score = math.Max(0, 1.0-parseScore(dist))
		}
		if docJSON, ok := pairs["$"]; ok {
			hit.Source = unmarshalSource(docJSON, req.SourceFields)
		}
		hits = append(hits, hit)
	}

	return &db.SearchResult{Total: int(total), Hits: hits}, nil
}

// docID strips the "<index>:" key prefix back off the storage key.
func docID(index, key string) string {
	return strings.TrimPrefix(key, index+":")
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

func parseSource(fields []rueidis.RedisMessage, wanted []string) map[string]any {
	pairs := parseFieldPairs(fields)
	if docJSON, ok := pairs["$"]; ok {
		return unmarshalSource(docJSON, wanted)
	}
	return nil
}

func unmarshalSource(docJSON string, wanted []string) map[string]any {
	var source map[string]any
	if err := json.Unmarshal([]byte(docJSON), &source); err != nil {
		return nil
	}
	if len(wanted) == 0 {
		return source
	}
	filtered := make(map[string]any, len(wanted))
	for _, name := range wanted {
		if v, ok := source[name]; ok {
			filtered[name] = v
		}
	}
	return filtered
}

// --- Query rendering ---

func renderNode(n db.Node) (string, error) {
	switch q := n.(type) {
	case db.MatchAll:
		return "*", nil

	case db.MatchNone:
		// Callers short-circuit MatchNone before reaching a driver; a
		// nested MatchNone clause cannot be expressed in FT syntax.
		return "", fmt.Errorf("%w: match_none is not renderable", db.ErrQueryRejected)

	case db.Match:
		return renderMatch(q.Field, q.Query, q.Operator, q.Boost), nil

	case db.MultiMatch:
		return renderMultiMatch(q), nil

	case db.Phrase:
		return renderPhrase(q), nil

	case db.Term:
		return renderTerm(q)

	case db.Range:
		return renderRange(q), nil

	case db.Exists:
		return fmt.Sprintf("-ismissing(@%s)", fieldAlias(q.Field)), nil

	case *db.Bool:
		return renderBool(q)

	case db.KNN:
		return "", fmt.Errorf("%w: KNN clause must be at the query top level", db.ErrQueryRejected)

	default:
		return "", fmt.Errorf("%w: unknown query node %T", db.ErrQueryRejected, n)
	}
}

func renderMatch(field, text string, op db.Operator, boost float64) string {
	tokens := tokenizeAndEscape(text)
	if len(tokens) == 0 {
		return "*"
	}

	sep := " "
	if op == db.OpOr {
		sep = "|"
	}
	clause := fmt.Sprintf("@%s:(%s)", fieldAlias(field), strings.Join(tokens, sep))
	return withWeight(clause, boost)
}

func renderMultiMatch(q db.MultiMatch) string {
	op := q.Operator
	// RediSearch has no minimum-should-match; a full-match requirement
	// maps to AND, anything partial maps to OR.
	if op == db.OpOr && q.MinShouldPct >= 100 {
		op = db.OpAnd
	}

	parts := make([]string, 0, len(q.Fields))
	for _, f := range q.Fields {
		parts = append(parts, renderMatch(f.Name, q.Query, op, f.Boost))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, "|") + ")"
}

func renderPhrase(q db.Phrase) string {
	escaped := phraseEscaper.Replace(q.Text)
	parts := make([]string, 0, len(q.Fields))
	for _, f := range q.Fields {
		clause := fmt.Sprintf("@%s:%q", fieldAlias(f.Name), escaped)
		parts = append(parts, withWeight(clause, f.Boost))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, "|") + ")"
}

func renderTerm(q db.Term) (string, error) {
	alias := fieldAlias(q.Field)
	switch v := q.Value.(type) {
	case string:
		return fmt.Sprintf("@%s:{%s}", alias, tagEscaper.Replace(v)), nil
	case bool:
		return fmt.Sprintf("@%s:{%t}", alias, v), nil
	case int:
		return fmt.Sprintf("@%s:[%d %d]", alias, v, v), nil
	case int64:
		return fmt.Sprintf("@%s:[%d %d]", alias, v, v), nil
	case float64:
		return fmt.Sprintf("@%s:[%g %g]", alias, v, v), nil
	default:
		return "", fmt.Errorf("%w: unsupported term value %T", db.ErrQueryRejected, q.Value)
	}
}

func renderRange(q db.Range) string {
	minBound := "-inf"
	maxBound := "+inf"

	if q.GT != nil {
		minBound = fmt.Sprintf("(%g", *q.GT)
	} else if q.GTE != nil {
		minBound = fmt.Sprintf("%g", *q.GTE)
	}
	if q.LT != nil {
		maxBound = fmt.Sprintf("(%g", *q.LT)
	} else if q.LTE != nil {
		maxBound = fmt.Sprintf("%g", *q.LTE)
	}

	return fmt.Sprintf("@%s:[%s %s]", fieldAlias(q.Field), minBound, maxBound)
}

func renderBool(q *db.Bool) (string, error) {
	var parts []string

	for _, m := range append(append([]db.Node{}, q.Must...), q.Filter...) {
		s, err := renderNode(m)
		if err != nil {
			return "", err
		}
		if s != "" && s != "*" {
			parts = append(parts, s)
		}
	}

	if len(q.Should) > 0 {
		rendered := make([]string, 0, len(q.Should))
		for _, sh := range q.Should {
			s, err := renderNode(sh)
			if err != nil {
				return "", err
			}
			rendered = append(rendered, s)
		}
		// Full minimum-should-match collapses to AND; partial thresholds
		// degrade to plain OR (no native support).
		sep := "|"
		if q.MinShouldPct >= 100 {
			sep = " "
		}
		parts = append(parts, "("+strings.Join(rendered, sep)+")")
	}

	for _, mn := range q.MustNot {
		s, err := renderNode(mn)
		if err != nil {
			return "", err
		}
		parts = append(parts, "-("+s+")")
	}

	if len(parts) == 0 {
		return "*", nil
	}

	joined := strings.Join(parts, " ")
	if len(parts) > 1 {
		joined = "(" + joined + ")"
	}
	return withWeight(joined, q.Boost), nil
}

func withWeight(clause string, boost float64) string {
	if boost <= 0 || boost == 1 {
		return clause
	}
	return fmt.Sprintf("(%s)=>{$weight: %g;}", clause, boost)
}

// --- Escaping ---

var tagEscaper = strings.NewReplacer(
	",", "\\,", ".", "\\.", "<", "\\<", ">", "\\>", "{", "\\{", "}", "\\}",
	"[", "\\[", "]", "\\]", "\"", "\\\"", "'", "\\'", ":", "\\:", ";", "\\;",
	"!", "\\!", "@", "\\@", "#", "\\#", "$", "\\$", "%", "\\%", "^", "\\^",
	"&", "\\&", "*", "\\*", "(", "\\(", ")", "\\)", "-", "\\-", "+", "\\+",
	"=", "\\=", "~", "\\~", " ", "\\ ", "|", "\\|", "/", "\\/",
)

var phraseEscaper = strings.NewReplacer("\"", "\\\"", "\\", "\\\\")

func tokenizeAndEscape(text string) []string {
	raw := strings.Fields(text)
	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		escaped := tagEscaper.Replace(t)
		if escaped != "" {
			tokens = append(tokens, escaped)
		}
	}
	return tokens
}

// vectorToBytes encodes float32s as little-endian binary for PARAMS BLOB.
func vectorToBytes(vec []float32) string {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return string(buf)
}
