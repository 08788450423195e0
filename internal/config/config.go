// Package config loads the searchd YAML configuration with environment
// variable expansion, defaults, and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the searchd configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Search    SearchConfig    `yaml:"search"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Source    SourceConfig    `yaml:"source"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SourceConfig points at the platform API that serves index records. An
// empty base URL disables id-based indexing; records then arrive inline
// over the indexing API.
type SourceConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds search backend settings.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // redis, bleve (default: redis)

	// redis driver
	Addrs    []string `yaml:"addrs"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`

	// bleve driver
	Path string `yaml:"path"` // empty means in-memory

	ReadinessTimeoutSec int `yaml:"readiness_timeout_sec"`
	RequestTimeoutSec   int `yaml:"request_timeout_sec"`
}

// SearchConfig holds relevance tuning and result shaping settings. The
// numeric defaults are tuned heuristics, kept as configuration rather than
// constants.
type SearchConfig struct {
	Locales       []string `yaml:"locales"`        // locales indexed per type
	DefaultLocale string   `yaml:"default_locale"` // fallback locale

	ResultsPerPage int `yaml:"results_per_page"`
	MaxPageSize    int `yaml:"max_page_size"`

	// Hybrid RRF fusion parameters.
	RRFRankWindowSize int `yaml:"rrf_rank_window_size"`
	RRFRankConstant   int `yaml:"rrf_rank_constant"`

	// Minimum-should-match percentage for juxtaposed query terms.
	SpaceMinShouldPct int `yaml:"space_min_should_pct"`

	// Boost multiplier applied to the primary locale in multi-locale search.
	PrimaryLocaleBoost float64 `yaml:"primary_locale_boost"`

	// Highlighting.
	HighlightTag  string `yaml:"highlight_tag"`
	SnippetLength int    `yaml:"snippet_length"`

	// Scores below this from a semantic retriever trigger fallback.
	SemanticMinScore float64 `yaml:"semantic_min_score"`

	// Questions older than this many days are excluded from results.
	QuestionRetentionDays int `yaml:"question_retention_days"`

	// DisableGibberish turns off the single-word gibberish short-circuit.
	DisableGibberish bool `yaml:"disable_gibberish_detection"`
}

// IndexingConfig holds index build and bulk ingestion settings.
type IndexingConfig struct {
	BulkChunkSize int `yaml:"bulk_chunk_size"`
	WorkerPool    int `yaml:"worker_pool"`
	JobTimeoutSec int `yaml:"job_timeout_sec"` // caps one async job, bulk included
}

// EmbeddingConfig holds embedding provider settings. A zero Dimensions
// disables vector fields and semantic retrieval entirely.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "redis"
	}
	if c.Database.ReadinessTimeoutSec <= 0 {
		c.Database.ReadinessTimeoutSec = 10
	}
	if c.Database.RequestTimeoutSec <= 0 {
		c.Database.RequestTimeoutSec = 5
	}
	if len(c.Search.Locales) == 0 {
		c.Search.Locales = []string{"en-US"}
	}
	if c.Search.DefaultLocale == "" {
		c.Search.DefaultLocale = "en-US"
	}
	if c.Search.ResultsPerPage <= 0 {
		c.Search.ResultsPerPage = 20
	}
	if c.Search.MaxPageSize <= 0 {
		c.Search.MaxPageSize = 100
	}
	if c.Search.RRFRankWindowSize <= 0 {
		c.Search.RRFRankWindowSize = 100
	}
	if c.Search.RRFRankConstant <= 0 {
		c.Search.RRFRankConstant = 20
	}
	if c.Search.SpaceMinShouldPct <= 0 {
		c.Search.SpaceMinShouldPct = 66
	}
	if c.Search.PrimaryLocaleBoost <= 0 {
		c.Search.PrimaryLocaleBoost = 1.5
	}
	if c.Search.HighlightTag == "" {
		c.Search.HighlightTag = "strong"
	}
	if c.Search.SnippetLength <= 0 {
		c.Search.SnippetLength = 500
	}
	if c.Search.SemanticMinScore <= 0 {
		c.Search.SemanticMinScore = 0.01
	}
	if c.Search.QuestionRetentionDays <= 0 {
		c.Search.QuestionRetentionDays = 730
	}
	if c.Indexing.BulkChunkSize <= 0 {
		c.Indexing.BulkChunkSize = 100
	}
	if c.Indexing.WorkerPool <= 0 {
		c.Indexing.WorkerPool = 4
	}
	if c.Indexing.JobTimeoutSec <= 0 {
		c.Indexing.JobTimeoutSec = 300
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.CacheSize <= 0 {
		c.Embedding.CacheSize = 1024
	}
	if c.Source.TimeoutSec <= 0 {
		c.Source.TimeoutSec = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "redis":
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for the redis driver")
		}
	case "bleve":
		// in-memory when path is empty
	default:
		return fmt.Errorf("database.driver must be \"redis\" or \"bleve\", got %q", c.Database.Driver)
	}
	if c.Embedding.Dimensions > 0 && c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding.api_key is required when embedding.dimensions is set")
	}
	hasDefault := false
	for _, l := range c.Search.Locales {
		if l == c.Search.DefaultLocale {
			hasDefault = true
			break
		}
	}
	if !hasDefault {
		return fmt.Errorf("search.locales must include the default locale %q", c.Search.DefaultLocale)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
