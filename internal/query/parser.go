package query

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// SyntaxError reports a query string the grammar cannot match. Callers must
// treat it as recoverable and fall back to literal term matching.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("query syntax error at %d: %s", e.Pos, e.Msg)
}

var advancedRe = regexp.MustCompile(`\b(AND|OR|NOT)\b`)

// advancedOps are the colon prefixes the grammar recognizes. A colon in any
// other word stays a literal term, so it does not mark the query advanced.
var advancedOps = []string{"field:", "exact:", "range:"}

// IsAdvanced reports whether raw uses any advanced query syntax: recognized
// colon operators, quoted phrases, or boolean keywords.
func IsAdvanced(raw string) bool {
	if strings.ContainsRune(raw, '"') || advancedRe.MatchString(raw) {
		return true
	}
	for _, op := range advancedOps {
		if strings.Contains(raw, op) {
			return true
		}
	}
	return false
}

// Parse parses raw into a token tree. An empty string parses to an empty
// SpaceToken, which compiles to match-everything.
func Parse(raw string) (Token, error) {
	lexed, err := lex(raw)
	if err != nil {
		return nil, err
	}
	p := &parser{items: lexed}
	root, err := p.parseSpace()
	if err != nil {
		return nil, err
	}
	if !p.eof() {
		return nil, &SyntaxError{Pos: p.peek().pos, Msg: "unexpected " + p.peek().text}
	}
	return root, nil
}

type itemKind int

const (
	itemWord itemKind = iota
	itemQuoted
	itemLParen
	itemRParen
)

type item struct {
	kind itemKind
	text string
	pos  int
}

func lex(raw string) ([]item, error) {
	var items []item
	runes := []rune(raw)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			items = append(items, item{kind: itemLParen, text: "(", pos: i})
			i++
		case r == ')':
			items = append(items, item{kind: itemRParen, text: ")", pos: i})
			i++
		case r == '"':
			start := i
			i++
			var sb strings.Builder
			for i < len(runes) && runes[i] != '"' {
				sb.WriteRune(runes[i])
				i++
			}
			if i >= len(runes) {
				return nil, &SyntaxError{Pos: start, Msg: "unterminated quote"}
			}
			i++
			items = append(items, item{kind: itemQuoted, text: sb.String(), pos: start})
		default:
			start := i
			var sb strings.Builder
			for i < len(runes) && !unicode.IsSpace(runes[i]) &&
				runes[i] != '(' && runes[i] != ')' && runes[i] != '"' {
				sb.WriteRune(runes[i])
				i++
			}
			items = append(items, item{kind: itemWord, text: sb.String(), pos: start})
		}
	}
	return items, nil
}

type parser struct {
	items []item
	next  int
}

func (p *parser) eof() bool  { return p.next >= len(p.items) }
func (p *parser) peek() item { return p.items[p.next] }
func (p *parser) advance() item {
	it := p.items[p.next]
	p.next++
	return it
}

func (p *parser) peekWord(text string) bool {
	return !p.eof() && p.peek().kind == itemWord && p.peek().text == text
}

// parseSpace collects operator expressions separated only by whitespace.
// The juxtaposition operator binds loosest of all.
func (p *parser) parseSpace() (Token, error) {
	var tokens []Token
	for !p.eof() && p.peek().kind != itemRParen {
		tok, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
	if len(tokens) == 1 {
		return tokens[0], nil
	}
	return SpaceToken{Tokens: tokens}, nil
}

func (p *parser) parseOr() (Token, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peekWord("OR") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = OrToken{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Token, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peekWord("AND") {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = AndToken{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Token, error) {
	if p.peekWord("NOT") {
		it := p.advance()
		if p.eof() || p.peek().kind == itemRParen {
			return nil, &SyntaxError{Pos: it.pos, Msg: "NOT without operand"}
		}
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return NotToken{Token: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Token, error) {
	if p.eof() {
		return nil, &SyntaxError{Pos: len(p.items), Msg: "unexpected end of query"}
	}

	it := p.advance()
	switch it.kind {
	case itemLParen:
		inner, err := p.parseSpace()
		if err != nil {
			return nil, err
		}
		if p.eof() || p.peek().kind != itemRParen {
			return nil, &SyntaxError{Pos: it.pos, Msg: "unclosed parenthesis"}
		}
		p.advance()
		return inner, nil
	case itemRParen:
		return nil, &SyntaxError{Pos: it.pos, Msg: "unexpected )"}
	case itemQuoted:
		return PhraseToken{Text: it.text}, nil
	case itemWord:
		if it.text == "AND" || it.text == "OR" {
			return nil, &SyntaxError{Pos: it.pos, Msg: it.text + " without operand"}
		}
		return parseWord(it.text), nil
	}
	return nil, &SyntaxError{Pos: it.pos, Msg: "unexpected token"}
}

var rangeOps = map[string]bool{"gte": true, "lte": true, "gt": true, "lt": true}

// parseWord recognizes the three colon-keyword forms. A colon word with no
// recognized keyword on the left stays a plain term containing the literal
// colon.
func parseWord(word string) Token {
	switch {
	case strings.HasPrefix(word, "field:"):
		rest := strings.SplitN(word[len("field:"):], ":", 2)
		if len(rest) == 2 && rest[0] != "" && rest[1] != "" {
			return FieldToken{Field: rest[0], Token: TermToken{Text: rest[1]}}
		}
	case strings.HasPrefix(word, "exact:"):
		rest := strings.SplitN(word[len("exact:"):], ":", 2)
		if len(rest) == 2 && rest[0] != "" && rest[1] != "" {
			return ExactToken{Field: rest[0], Value: rest[1]}
		}
	case strings.HasPrefix(word, "range:"):
		rest := strings.SplitN(word[len("range:"):], ":", 3)
		if len(rest) == 3 && rest[0] != "" && rest[2] != "" && rangeOps[rest[1]] {
			return RangeToken{Field: rest[0], Operator: rest[1], Value: rest[2]}
		}
	}
	return TermToken{Text: word}
}
