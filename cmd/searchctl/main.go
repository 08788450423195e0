// Command searchctl is an operator CLI for the search service. It talks to
// the backend directly using the same configuration files as searchd, so
// index migrations and spot-check queries work without the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kbforge/searchd/internal/config"
	"github.com/kbforge/searchd/internal/db"
	dbBleve "github.com/kbforge/searchd/internal/db/bleve"
	dbRedis "github.com/kbforge/searchd/internal/db/redis"
	"github.com/kbforge/searchd/internal/doctype"
	"github.com/kbforge/searchd/internal/embedding"
	logpkg "github.com/kbforge/searchd/internal/logger"
	"github.com/kbforge/searchd/internal/metrics"
	"github.com/kbforge/searchd/internal/repository/embcache"
	repoindex "github.com/kbforge/searchd/internal/repository/index"
	"github.com/kbforge/searchd/internal/repository/records"
	openaiEmb "github.com/kbforge/searchd/internal/transport/openai"
	indexuc "github.com/kbforge/searchd/internal/usecase/index"
	searchuc "github.com/kbforge/searchd/internal/usecase/search"
	"github.com/kbforge/searchd/internal/version"
)

// env holds everything a subcommand needs after connecting.
type env struct {
	cfg    config.Config
	store  db.Store
	repo   *repoindex.Repo
	logger *zap.Logger
}

func connect() (*env, error) {
	name := config.GetEnv()
	cfg, err := config.Load(name)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(name, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

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
		err = fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeoutSec)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("backend not ready: %w", err)
	}

	repo := repoindex.New(store, cfg.Search.Locales, cfg.Embedding.Dimensions, logger)
	return &env{cfg: cfg, store: store, repo: repo, logger: logger}, nil
}

func (e *env) close() {
	e.store.Close()
	_ = e.logger.Sync()
}

// embedder builds the same caching chain searchd uses, or nil when
// semantic search is not configured.
func (e *env) embedder() (embedding.Embedder, error) {
	if e.cfg.Embedding.Dimensions <= 0 {
		return nil, nil
	}
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     e.cfg.Embedding.APIKey,
		BaseURL:    e.cfg.Embedding.BaseURL,
		Model:      e.cfg.Embedding.Model,
		Dimensions: e.cfg.Embedding.Dimensions,
		Logger:     e.logger,
	})
	cached, err := embcache.New(base, e.cfg.Embedding.CacheSize, metrics.EmbeddingCacheTotal, e.logger)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

func resolveType(name string) (*doctype.Type, error) {
	t, ok := doctype.ByName(name)
	if !ok {
		return nil, fmt.Errorf("unknown document type %q", name)
	}
	return t, nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	e, err := connect()
	if err != nil {
		return err
	}
	defer e.close()

	statuses, err := e.repo.Statuses(cmd.Context())
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-10s %-30s %-30s %8s\n", "TYPE", "READ", "WRITE", "DOCS")
	for _, st := range statuses {
		marker := ""
		if st.Diverged() {
			marker = "  (reindex in flight)"
		}
		fmt.Fprintf(w, "%-10s %-30s %-30s %8d%s\n", st.DocType, st.ReadIndex, st.WriteIndex, st.Docs, marker)
	}
	return nil
}

func runMigrateWrites(cmd *cobra.Command, args []string) error {
	t, err := resolveType(args[0])
	if err != nil {
		return err
	}

	e, err := connect()
	if err != nil {
		return err
	}
	defer e.close()

	index, err := e.repo.MigrateWrites(cmd.Context(), t, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "writes for %s now target %s\n", t.Name, index)
	return nil
}

func runMigrateReads(cmd *cobra.Command, args []string) error {
	t, err := resolveType(args[0])
	if err != nil {
		return err
	}

	e, err := connect()
	if err != nil {
		return err
	}
	defer e.close()

	index, err := e.repo.MigrateReads(cmd.Context(), t)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "reads for %s now target %s\n", t.Name, index)
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	e, err := connect()
	if err != nil {
		return err
	}
	defer e.close()

	emb, err := e.embedder()
	if err != nil {
		return err
	}

	metrics.RegisterSearchMetrics()
	svc := searchuc.New(e.store, emb, searchuc.Config{
		DefaultLocale:      e.cfg.Search.DefaultLocale,
		ResultsPerPage:     e.cfg.Search.ResultsPerPage,
		MaxPageSize:        e.cfg.Search.MaxPageSize,
		RRFRankWindowSize:  e.cfg.Search.RRFRankWindowSize,
		RRFRankConstant:    e.cfg.Search.RRFRankConstant,
		SpaceMinShouldPct:  e.cfg.Search.SpaceMinShouldPct,
		PrimaryLocaleBoost: e.cfg.Search.PrimaryLocaleBoost,
		HighlightTag:       e.cfg.Search.HighlightTag,
		SnippetLength:      e.cfg.Search.SnippetLength,
		SemanticMinScore:   e.cfg.Search.SemanticMinScore,
		QuestionRetention:  time.Duration(e.cfg.Search.QuestionRetentionDays) * 24 * time.Hour,
		DisableGibberish:   e.cfg.Search.DisableGibberish,
	}, e.logger)

	req := &searchuc.Request{
		Query:    strings.Join(args, " "),
		Locale:   searchLocale,
		Strategy: searchuc.Strategy(searchStrategy),
		Page:     searchPage,
	}
	if searchTypes != "" {
		req.DocTypes = strings.Split(searchTypes, ",")
	}

	resp, err := svc.Search(cmd.Context(), req)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func runReindex(cmd *cobra.Command, args []string) error {
	t, err := resolveType(args[0])
	if err != nil {
		return err
	}

	e, err := connect()
	if err != nil {
		return err
	}
	defer e.close()

	if e.cfg.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url must be configured for reindexing")
	}
	source := records.New(records.Config{
		BaseURL: e.cfg.Source.BaseURL,
		APIKey:  e.cfg.Source.APIKey,
		Timeout: time.Duration(e.cfg.Source.TimeoutSec) * time.Second,
	}, e.logger)

	emb, err := e.embedder()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	ids := reindexIDs
	if len(ids) == 0 {
		ids, err = source.IDs(ctx, t.Name)
		if err != nil {
			return fmt.Errorf("list record ids: %w", err)
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("no records to index")
	}

	if reindexMigrate {
		index, err := e.repo.MigrateWrites(ctx, t, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "writes for %s now target %s\n", t.Name, index)
	}

	metrics.RegisterSearchMetrics()
	svc := indexuc.New(e.store, source, emb, e.logger).
		WithChunkSize(e.cfg.Indexing.BulkChunkSize)

	if err := svc.BulkIndex(ctx, t.Name, ids); err != nil {
		return err
	}
	fmt.Fprintf(out, "indexed %d records into %s\n", len(ids), t.Name)

	if reindexMigrate {
		index, err := e.repo.MigrateReads(ctx, t)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "reads for %s now target %s\n", t.Name, index)
	}
	return nil
}

var (
	searchTypes    string
	searchLocale   string
	searchStrategy string
	searchPage     int
	reindexIDs     []string
	reindexMigrate bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "searchctl",
		Short: "Operator CLI for the search service",
		Long:  `searchctl manages search indexes and runs ad-hoc queries against the backend configured for the current ENV.`,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show read/write alias targets and document counts",
		RunE:  runStatus,
	}

	migrateWritesCmd := &cobra.Command{
		Use:   "migrate-writes [type]",
		Short: "Create a fresh physical index and point writes at it",
		Args:  cobra.ExactArgs(1),
		RunE:  runMigrateWrites,
	}

	migrateReadsCmd := &cobra.Command{
		Use:   "migrate-reads [type]",
		Short: "Point reads at the current write index",
		Args:  cobra.ExactArgs(1),
		RunE:  runMigrateReads,
	}

	searchCmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Run a query and print the response as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}
	searchCmd.Flags().StringVar(&searchTypes, "type", "", "Comma-separated document types (default: all searchable)")
	searchCmd.Flags().StringVar(&searchLocale, "locale", "", "Primary locale")
	searchCmd.Flags().StringVar(&searchStrategy, "strategy", "", "traditional, semantic, or hybrid")
	searchCmd.Flags().IntVar(&searchPage, "page", 1, "Result page")

	reindexCmd := &cobra.Command{
		Use:   "reindex [type]",
		Short: "Bulk index records from the configured record source",
		Long:  `Bulk index records from the configured record source. Without --ids every record of the type is indexed; with --migrate the run targets a fresh index and repoints reads when done.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runReindex,
	}
	reindexCmd.Flags().StringSliceVar(&reindexIDs, "ids", nil, "Only index these record ids")
	reindexCmd.Flags().BoolVar(&reindexMigrate, "migrate", false, "Migrate writes before and reads after the run")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the searchctl version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(migrateWritesCmd)
	rootCmd.AddCommand(migrateReadsCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
