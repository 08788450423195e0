package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kbforge/searchd/internal/config"
	"github.com/kbforge/searchd/internal/db"
	dbBleve "github.com/kbforge/searchd/internal/db/bleve"
	dbRedis "github.com/kbforge/searchd/internal/db/redis"
	"github.com/kbforge/searchd/internal/embedding"
	logpkg "github.com/kbforge/searchd/internal/logger"
	"github.com/kbforge/searchd/internal/metrics"
	"github.com/kbforge/searchd/internal/repository/embcache"
	repoindex "github.com/kbforge/searchd/internal/repository/index"
	"github.com/kbforge/searchd/internal/repository/records"
	chiTransport "github.com/kbforge/searchd/internal/transport/chi"
	openaiEmb "github.com/kbforge/searchd/internal/transport/openai"
	healthuc "github.com/kbforge/searchd/internal/usecase/health"
	indexuc "github.com/kbforge/searchd/internal/usecase/index"
	searchuc "github.com/kbforge/searchd/internal/usecase/search"
	"github.com/kbforge/searchd/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting searchd API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("locales", cfg.Search.Locales),
	)

	// Create search backend store based on driver
	var store db.Store
	switch cfg.Database.Driver {
	case "redis":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:          cfg.Database.Addrs,
			Username:       cfg.Database.Username,
			Password:       cfg.Database.Password,
			DB:             cfg.Database.DB,
			RequestTimeout: time.Duration(cfg.Database.RequestTimeoutSec) * time.Second,
		})
	case "bleve":
		store, err = dbBleve.NewStore(dbBleve.Config{
			Path:           cfg.Database.Path,
			RequestTimeout: time.Duration(cfg.Database.RequestTimeoutSec) * time.Second,
		})
	default:
		logger.Fatal("Unknown database driver", zap.String("driver", cfg.Database.Driver))
	}
	if err != nil {
		logger.Fatal("Failed to create store", zap.Error(err))
	}
	defer store.Close()

	// Wait for the backend to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeoutSec)*time.Second); err != nil {
		logger.Fatal("Search backend not ready", zap.Error(err))
	}
	logger.Info("Connected to search backend")

	// Register search metrics explicitly (no init())
	metrics.RegisterSearchMetrics()

	// Build embedder chain when semantic search is configured. A zero
	// dimension count disables vector fields and semantic retrieval.
	var embedder embedding.Embedder
	var embeddingChecker healthuc.EmbeddingChecker
	if cfg.Embedding.Dimensions > 0 {
		base := openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Logger:     logger,
		})
		cached, err := embcache.New(base, cfg.Embedding.CacheSize, metrics.EmbeddingCacheTotal, logger)
		if err != nil {
			logger.Fatal("Failed to create embedding cache", zap.Error(err))
		}
		embedder = cached
		embeddingChecker = base
		logger.Info("Embedder created",
			zap.String("model", cfg.Embedding.Model),
			zap.Int("dimensions", cfg.Embedding.Dimensions),
			zap.Int("cache_size", cfg.Embedding.CacheSize),
		)
	}

	// Record source; without one, records arrive inline over the API.
	var source indexuc.RecordSource
	if cfg.Source.BaseURL != "" {
		source = records.New(records.Config{
			BaseURL: cfg.Source.BaseURL,
			APIKey:  cfg.Source.APIKey,
			Timeout: time.Duration(cfg.Source.TimeoutSec) * time.Second,
		}, logger)
		logger.Info("Record source configured", zap.String("base_url", cfg.Source.BaseURL))
	}

	// Index lifecycle repository; creates missing indexes and aliases.
	indexes := repoindex.New(store, cfg.Search.Locales, cfg.Embedding.Dimensions, logger)
	if err := indexes.EnsureIndexes(ctx); err != nil {
		logger.Fatal("Failed to ensure indexes", zap.Error(err))
	}

	// Create use case services
	searchSvc := searchuc.New(store, embedder, searchuc.Config{
		DefaultLocale:      cfg.Search.DefaultLocale,
		ResultsPerPage:     cfg.Search.ResultsPerPage,
		MaxPageSize:        cfg.Search.MaxPageSize,
		RRFRankWindowSize:  cfg.Search.RRFRankWindowSize,
		RRFRankConstant:    cfg.Search.RRFRankConstant,
		SpaceMinShouldPct:  cfg.Search.SpaceMinShouldPct,
		PrimaryLocaleBoost: cfg.Search.PrimaryLocaleBoost,
		HighlightTag:       cfg.Search.HighlightTag,
		SnippetLength:      cfg.Search.SnippetLength,
		SemanticMinScore:   cfg.Search.SemanticMinScore,
		QuestionRetention:  time.Duration(cfg.Search.QuestionRetentionDays) * 24 * time.Hour,
		DisableGibberish:   cfg.Search.DisableGibberish,
	}, logger)

	indexSvc := indexuc.New(store, source, embedder, logger).
		WithChunkSize(cfg.Indexing.BulkChunkSize)

	worker, err := indexuc.NewWorker(indexSvc, cfg.Indexing.WorkerPool, logger)
	if err != nil {
		logger.Fatal("Failed to create worker pool", zap.Error(err))
	}
	worker.WithTimeout(time.Duration(cfg.Indexing.JobTimeoutSec) * time.Second)
	defer worker.Close()

	// Health service
	healthSvc := healthuc.New(store, embeddingChecker, indexes)

	// Create chi server
	server := chiTransport.NewServer(searchSvc, indexSvc, worker, indexes, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
