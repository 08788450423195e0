package db

// Node is a backend-neutral query tree node. Drivers compile the tree into
// their native query form.
type Node interface {
	isNode()
}

// FieldRef names a searchable field with a scoring boost.
type FieldRef struct {
	Name  string
	Boost float64
}

// MatchAll matches every document.
type MatchAll struct{}

// MatchNone matches no documents. Drivers must not touch the backend when
// a request's top-level query is MatchNone.
type MatchNone struct{}

// Match is an analyzed text match against a single field.
type Match struct {
	Field    string
	Query    string
	Boost    float64
	Operator Operator
}

// MultiMatch is an analyzed text match fanned across several fields,
// scored by the best-matching field.
type MultiMatch struct {
	Fields   []FieldRef
	Query    string
	Operator Operator
	// MinShouldPct applies when Operator is Or: the percentage of query
	// terms that must match (0 means any).
	MinShouldPct int
}

// Phrase is an exact phrase match fanned across several fields.
type Phrase struct {
	Fields []FieldRef
	Text   string
}

// Term is an exact, unanalyzed value match.
// Value may be a string, bool, or numeric type.
type Term struct {
	Field string
	Value any
}

// Range is a numeric range filter. Nil bounds are open.
type Range struct {
	Field string
	GT    *float64
	GTE   *float64
	LT    *float64
	LTE   *float64
}

// Exists matches documents where the field has any value.
type Exists struct {
	Field string
}

// Bool combines sub-queries with boolean semantics.
type Bool struct {
	Must    []Node
	Should  []Node
	MustNot []Node
	// Filter clauses constrain matches without contributing to scoring.
	Filter []Node
	// MinShouldPct is the percentage of Should clauses that must match
	// (0 means the backend default: 1 when there is no Must, else 0).
	MinShouldPct int
	Boost        float64
}

// KNN is a vector similarity retrieval over a vector field.
type KNN struct {
	Field  string
	Vector []float32
	K      int
	Boost  float64
}

// Operator selects how multiple analyzed terms combine inside a match.
type Operator string

const (
	// OpAnd requires all terms to match.
	OpAnd Operator = "and"
	// OpOr requires any term to match, subject to MinShouldPct.
	OpOr Operator = "or"
)

func (MatchAll) isNode()   {}
func (MatchNone) isNode()  {}
func (Match) isNode()      {}
func (MultiMatch) isNode() {}
func (Phrase) isNode()     {}
func (Term) isNode()       {}
func (Range) isNode()      {}
func (Exists) isNode()     {}
func (*Bool) isNode()      {}
func (KNN) isNode()        {}

// IsMatchNone reports whether n is a MatchNone node.
func IsMatchNone(n Node) bool {
	_, ok := n.(MatchNone)
	return ok
}

// MinShouldCount converts a percentage into a clause count, rounding down
// but never below one when pct is positive.
func MinShouldCount(pct, clauses int) int {
	if pct <= 0 || clauses == 0 {
		return 0
	}
	n := clauses * pct / 100
	if n < 1 {
		n = 1
	}
	if n > clauses {
		n = clauses
	}
	return n
}
