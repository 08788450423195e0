package search

import (
	"strings"
	"unicode"
)

const maxConsonantRun = 6

// looksGibberish flags single-word queries that cannot plausibly be words:
// all consonants, or an improbably long consonant run (keyboard mashing).
// Such queries are answered empty without touching the backend.
func looksGibberish(raw string) bool {
	word := strings.ToLower(strings.TrimSpace(raw))
	if len(word) < 4 || strings.ContainsAny(word, " \t") {
		return false
	}

	vowels := 0
	run := 0
	maxRun := 0
	for _, r := range word {
		if r > unicode.MaxASCII || unicode.IsDigit(r) {
			// Numbers and non-ASCII words are outside the heuristic.
			return false
		}
		switch {
		case strings.ContainsRune("aeiouy", r):
			vowels++
			run = 0
		case r >= 'a' && r <= 'z':
			run++
			if run > maxRun {
				maxRun = run
			}
		default:
			run = 0
		}
	}
	return vowels == 0 || maxRun >= maxConsonantRun
}
