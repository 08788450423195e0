package search

import (
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// highlighter builds result snippets client-side. The backend returns stored
// source only; fragmenting here keeps both drivers on identical output.
type highlighter struct {
	tag      string
	budget   int
	sanitize *bluemonday.Policy
}

func newHighlighter(tag string, budget int) *highlighter {
	return &highlighter{tag: tag, budget: budget, sanitize: bluemonday.StrictPolicy()}
}

// Fragment returns a sentence-aligned snippet around the first query term
// occurrence, with every in-window occurrence wrapped in the highlight tag.
// ok is false when no term occurs in the text.
func (h *highlighter) Fragment(text string, terms []string) (frag string, ok bool) {
	plain := h.clean(text)
	if plain == "" || len(terms) == 0 {
		return "", false
	}

	lower := strings.ToLower(plain)
	first := -1
	for _, t := range terms {
		if i := indexWord(lower, t, 0); i >= 0 && (first < 0 || i < first) {
			first = i
		}
	}
	if first < 0 {
		return "", false
	}

	start := sentenceStart(plain, first)
	if first-start >= h.budget {
		// The sentence is longer than the whole budget; anchor on the match.
		start = first
	}
	frag = plain[start:]
	if len(frag) > h.budget {
		frag = trimToBoundary(cutAtRune(frag, h.budget))
	}
	return h.wrap(frag, terms), true
}

// Truncate strips markup and cuts the text to the snippet budget on a
// sentence boundary.
func (h *highlighter) Truncate(text string) string {
	plain := h.clean(text)
	if len(plain) <= h.budget {
		return plain
	}
	return trimToBoundary(cutAtRune(plain, h.budget))
}

func (h *highlighter) clean(text string) string {
	plain := html.UnescapeString(h.sanitize.Sanitize(text))
	return strings.Join(strings.Fields(plain), " ")
}

func (h *highlighter) wrap(frag string, terms []string) string {
	lower := strings.ToLower(frag)
	open, closing := "<"+h.tag+">", "</"+h.tag+">"

	var b strings.Builder
	i := 0
	for i < len(frag) {
		best, bestLen := -1, 0
		for _, t := range terms {
			j := indexWord(lower, t, i)
			if j >= 0 && (best < 0 || j < best || (j == best && len(t) > bestLen)) {
				best, bestLen = j, len(t)
			}
		}
		if best < 0 {
			b.WriteString(frag[i:])
			break
		}
		b.WriteString(frag[i:best])
		b.WriteString(open)
		b.WriteString(frag[best : best+bestLen])
		b.WriteString(closing)
		i = best + bestLen
	}
	return b.String()
}

// queryTerms extracts the highlightable words from a raw query, dropping
// operator keywords and syntax punctuation.
func queryTerms(raw string) []string {
	words := strings.FieldsFunc(raw, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	seen := make(map[string]bool, len(words))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		switch w {
		case "AND", "OR", "NOT":
			continue
		}
		lw := strings.ToLower(w)
		switch lw {
		case "field", "exact", "range":
			continue
		}
		if seen[lw] {
			continue
		}
		seen[lw] = true
		terms = append(terms, lw)
	}
	return terms
}

// indexWord finds term in lower at or after from, on word boundaries.
func indexWord(lower, term string, from int) int {
	for from <= len(lower)-len(term) {
		j := strings.Index(lower[from:], term)
		if j < 0 {
			return -1
		}
		j += from
		if isBoundary(lower, j-1) && isBoundary(lower, j+len(term)) {
			return j
		}
		from = j + 1
	}
	return -1
}

func isBoundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	r := rune(s[i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// sentenceStart returns the index of the first character of the sentence
// containing pos.
func sentenceStart(s string, pos int) int {
	start := 0
	if i := strings.LastIndexAny(s[:pos], ".!?"); i >= 0 {
		start = i + 1
	}
	for start < pos && s[start] == ' ' {
		start++
	}
	return start
}

// cutAtRune shortens s to at most n bytes without splitting a rune.
func cutAtRune(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// trimToBoundary cuts back to the last sentence end, or the last word break
// when the fragment holds no complete sentence.
func trimToBoundary(s string) string {
	if i := strings.LastIndexAny(s, ".!?"); i > 0 {
		return s[:i+1]
	}
	if i := strings.LastIndex(s, " "); i > 0 {
		return s[:i]
	}
	return s
}
