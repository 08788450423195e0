package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/kbforge/searchd/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

const defaultRequestTimeout = 5 * time.Second

// Config holds connection parameters for a RediSearch store.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
	// RequestTimeout bounds individual search requests unless the request
	// carries its own timeout.
	RequestTimeout time.Duration
}

// Store implements db.Store via rueidis against RediSearch (Redis 8+).
type Store struct {
	client         rueidis.Client
	requestTimeout time.Duration
}

// NewStore creates a RediSearch store via rueidis.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &Store{client: client, requestTimeout: timeout}, nil
}

// NewStoreWithClient wraps an existing rueidis client (used by tests).
func NewStoreWithClient(client rueidis.Client) *Store {
	return &Store{client: client, requestTimeout: defaultRequestTimeout}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// WaitForReady polls Ping until the store responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// SupportsVectorSearch returns true: RediSearch executes KNN queries natively.
func (s *Store) SupportsVectorSearch() bool {
	return true
}

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}

// fieldAlias maps a logical field name to a RediSearch attribute name.
// Locale-qualified names contain dots and dashes, which FT attribute
// syntax cannot reference, so they are normalized for the schema and for
// @field references; stored JSON keeps the original names.
func fieldAlias(name string) string {
	return strings.NewReplacer(".", "__", "-", "_").Replace(name)
}

// isRedisErr checks if err is a Redis server error containing substr (case-insensitive).
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}
