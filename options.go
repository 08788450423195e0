package searchd

import (
	"go.uber.org/zap"

	"github.com/kbforge/searchd/internal/usecase/index"
	"github.com/kbforge/searchd/internal/usecase/search"
)

// Option configures an embedded client.
type Option func(*options)

type options struct {
	path    string
	locales []string
	source  index.RecordSource
	cfg     search.Config
	logger  *zap.Logger
}

func defaultOptions() *options {
	return &options{
		locales: []string{"en-US"},
		cfg:     search.DefaultConfig(),
		logger:  zap.NewNop(),
	}
}

// WithPath stores the indexes on disk instead of in memory.
func WithPath(path string) Option {
	return func(o *options) { o.path = path }
}

// WithLocales sets the locales indexed per document type.
func WithLocales(locales ...string) Option {
	return func(o *options) {
		if len(locales) > 0 {
			o.locales = locales
		}
	}
}

// WithRecordSource enables id-based indexing backed by the given source.
func WithRecordSource(source index.RecordSource) Option {
	return func(o *options) { o.source = source }
}

// WithSearchConfig overrides the relevance tunables.
func WithSearchConfig(cfg search.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
