package search

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestHighlighter_FragmentWrapsMatches(t *testing.T) {
	hl := newHighlighter("strong", 500)

	frag, ok := hl.Fragment("Firefox stores cookies per site. Clearing cookies signs you out.", []string{"cookies"})
	if !ok {
		t.Fatal("expected a fragment")
	}
	if got := strings.Count(frag, "<strong>cookies</strong>"); got != 2 {
		t.Fatalf("expected 2 wrapped occurrences, got %d in %q", got, frag)
	}
}

func TestHighlighter_NoMatchReturnsFalse(t *testing.T) {
	hl := newHighlighter("strong", 500)

	if frag, ok := hl.Fragment("Nothing relevant here.", []string{"bookmarks"}); ok {
		t.Fatalf("expected no fragment, got %q", frag)
	}
	if _, ok := hl.Fragment("", []string{"bookmarks"}); ok {
		t.Fatal("expected no fragment for empty text")
	}
}

func TestHighlighter_MatchesWholeWordsOnly(t *testing.T) {
	hl := newHighlighter("strong", 500)

	frag, ok := hl.Fragment("The synchronize option differs from sync.", []string{"sync"})
	if !ok {
		t.Fatal("expected a fragment")
	}
	if strings.Contains(frag, "<strong>sync</strong>hronize") {
		t.Fatalf("matched inside a longer word: %q", frag)
	}
	if !strings.Contains(frag, "<strong>sync</strong>.") {
		t.Fatalf("missed the standalone word: %q", frag)
	}
}

func TestHighlighter_StripsMarkupExceptTag(t *testing.T) {
	hl := newHighlighter("strong", 500)

	text := `<p>Clear your <em>cache</em> first.</p><script>alert(1)</script>`
	frag, ok := hl.Fragment(text, []string{"cache"})
	if !ok {
		t.Fatal("expected a fragment")
	}
	if strings.Contains(frag, "<em>") || strings.Contains(frag, "<p>") || strings.Contains(frag, "script") {
		t.Fatalf("markup survived stripping: %q", frag)
	}
	if !strings.Contains(frag, "<strong>cache</strong>") {
		t.Fatalf("highlight tag missing: %q", frag)
	}
}

func TestHighlighter_FragmentHonorsBudgetAndSentences(t *testing.T) {
	hl := newHighlighter("strong", 80)

	var b strings.Builder
	b.WriteString("An unrelated opening sentence sits here. ")
	b.WriteString("Profiles hold your settings. ")
	for i := 0; i < 10; i++ {
		b.WriteString("More trailing filler text keeps arriving in waves. ")
	}

	frag, ok := hl.Fragment(b.String(), []string{"profiles"})
	if !ok {
		t.Fatal("expected a fragment")
	}
	plain := strings.NewReplacer("<strong>", "", "</strong>", "").Replace(frag)
	if len(plain) > 80 {
		t.Fatalf("fragment exceeds budget: %d chars", len(plain))
	}
	if strings.Contains(frag, "unrelated opening") {
		t.Fatalf("fragment starts before the matched sentence: %q", frag)
	}
	if !strings.HasPrefix(frag, "<strong>Profiles</strong>") {
		t.Fatalf("fragment does not start at the sentence: %q", frag)
	}
	if !strings.HasSuffix(plain, ".") {
		t.Fatalf("fragment does not end on a sentence boundary: %q", frag)
	}
}

func TestHighlighter_TruncateCutsOnSentence(t *testing.T) {
	hl := newHighlighter("strong", 60)

	out := hl.Truncate("First sentence here. Second sentence follows. Third one never fits at all.")
	if len(out) > 60 {
		t.Fatalf("truncation exceeds budget: %d chars", len(out))
	}
	if !strings.HasSuffix(out, ".") {
		t.Fatalf("truncation not on a sentence boundary: %q", out)
	}

	short := hl.Truncate("Fits whole.")
	if short != "Fits whole." {
		t.Fatalf("short text modified: %q", short)
	}
}

func TestHighlighter_TruncateKeepsRunesWhole(t *testing.T) {
	hl := newHighlighter("strong", 500)

	out := hl.Truncate(strings.Repeat("安", 200))
	if !utf8.ValidString(out) {
		t.Fatalf("truncation split a rune: %q", out[len(out)-4:])
	}
	if len(out) > 500 {
		t.Fatalf("truncation exceeds budget: %d bytes", len(out))
	}

	frag, ok := hl.Fragment("設定 "+strings.Repeat("安", 200), []string{"設定"})
	if !ok {
		t.Fatal("expected a fragment")
	}
	if !utf8.ValidString(frag) {
		t.Fatalf("fragment split a rune: %q", frag)
	}
}

func TestQueryTerms_DropsOperatorsAndSyntax(t *testing.T) {
	got := queryTerms(`"clear cookies" AND field:product:firefox NOT cache`)
	want := []string{"clear", "cookies", "product", "firefox", "cache"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("queryTerms = %v, want %v", got, want)
	}
}

func TestQueryTerms_LowercaseOperatorsAreWords(t *testing.T) {
	got := queryTerms("cookies and cache")
	want := []string{"cookies", "and", "cache"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("queryTerms = %v, want %v", got, want)
	}
}
