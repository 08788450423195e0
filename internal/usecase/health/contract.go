package health

import "context"

// StorePinger checks search backend availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// IndexChecker verifies the index aliases resolve.
type IndexChecker interface {
	CheckAliases(ctx context.Context) error
}
