// Package embcache decorates an embedder with an in-process LRU cache keyed
// by content hash, so repeated query texts do not burn provider tokens.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kbforge/searchd/internal/embedding"
)

// CachedEmbedder caches embedding vectors in an LRU keyed by text hash.
type CachedEmbedder struct {
	inner      embedding.Embedder
	cache      *lru.Cache[string, []float32]
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator with the given capacity.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	inner embedding.Embedder,
	size int,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) (*CachedEmbedder, error) {
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &CachedEmbedder{
		inner:      inner,
		cache:      cache,
		cacheTotal: cacheTotal,
		logger:     logger,
	}, nil
}

// Embed returns a cached vector or calls the inner embedder.
// Cache hit: TotalTokens = 0 (no real tokens consumed).
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (embedding.Result, error) {
	key := cacheKey(text)

	if vec, ok := c.cache.Get(key); ok {
		c.incCache("hit")
		return embedding.Result{Vector: vec}, nil
	}

	c.incCache("miss")

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return embedding.Result{}, fmt.Errorf("embed text: %w", err)
	}

	c.cache.Add(key, result.Vector)
	return result, nil
}

func (c *CachedEmbedder) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
