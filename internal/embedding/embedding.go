// Package embedding defines the text embedding contract consumed by the
// semantic and hybrid search strategies.
package embedding

import (
	"context"
	"errors"
)

// ErrProviderError marks failures of the embedding provider; callers map it
// to an upstream-unavailable response.
var ErrProviderError = errors.New("embedding provider error")

// Result is one embedded text.
type Result struct {
	Vector       []float32
	PromptTokens int
	TotalTokens  int
}

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) (Result, error)
}
