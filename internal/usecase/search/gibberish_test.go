package search

import "testing"

func TestLooksGibberish(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"xkcdqwrt", true},
		{"zxkcvbnm", true},
		{"asdfghjklqw", true},
		{"firefox", false},
		{"cookies", false},
		{"sync", false},
		{"zzz", false},
		{"crash reports", false},
		{"12345", false},
		{"http2", false},
		{"straße", false},
		{"", false},
		{"   ", false},
	}
	for _, tt := range tests {
		if got := looksGibberish(tt.query); got != tt.want {
			t.Errorf("looksGibberish(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}
