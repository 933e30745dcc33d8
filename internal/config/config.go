package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Engine backends.
const (
	EngineRedis = "redis"
	EngineBleve = "bleve"
)

// Config holds the asset search service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Engine   EngineConfig   `yaml:"engine"`
	Cache    CacheConfig    `yaml:"cache"`
	Search   SearchConfig   `yaml:"search"`
	Suggest  SuggestConfig  `yaml:"suggest"`
	Sync     SyncConfig     `yaml:"sync"`
	Rewriter RewriterConfig `yaml:"rewriter"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
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

// RedisConfig holds the Redis connection used by the cache, the experiment
// store, the dead-letter list and, with the redis engine, the index.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// PostgresConfig holds the system-of-record connection.
type PostgresConfig struct {
	DSN                string `yaml:"dsn"`
	MaxOpenConns       int    `yaml:"max_open_conns"`
	MaxIdleConns       int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeSec int    `yaml:"conn_max_lifetime_sec"`
	EnsureSchema       bool   `yaml:"ensure_schema"`
}

// EngineConfig selects the index engine.
type EngineConfig struct {
	Backend string `yaml:"backend"` // redis (default) or bleve
	// BlevePath is the on-disk bleve index; empty keeps the index in memory.
	BlevePath string `yaml:"bleve_path"`
}

// Persistent reports whether the index survives a restart.
func (c EngineConfig) Persistent() bool {
	return c.Backend == EngineRedis || c.BlevePath != ""
}

// CacheConfig holds per-tier lifetimes.
type CacheConfig struct {
	Disabled               bool `yaml:"disabled"`
	LiveTTLSec             int  `yaml:"live_ttl_sec"`
	SearchTTLSec           int  `yaml:"search_ttl_sec"`
	SuggestionTTLSec       int  `yaml:"suggestion_ttl_sec"`
	PopularTTLSec          int  `yaml:"popular_ttl_sec"`
	CompressThresholdBytes int  `yaml:"compress_threshold_bytes"` // negative disables compression
}

// SearchConfig holds read-path deadlines and re-ranking parameters.
type SearchConfig struct {
	LiveTimeoutMs        int   `yaml:"live_timeout_ms"`
	SearchTimeoutMs      int   `yaml:"search_timeout_ms"`
	FallbackTimeoutMs    int   `yaml:"fallback_timeout_ms"`
	CandidateWindow      int   `yaml:"candidate_window"`
	RecencyHalfLifeHours int   `yaml:"recency_half_life_hours"`
	PopularityCap        int64 `yaml:"popularity_cap"`
}

// SuggestConfig holds suggestion deadlines.
type SuggestConfig struct {
	EngineTimeoutMs   int `yaml:"engine_timeout_ms"`
	FallbackTimeoutMs int `yaml:"fallback_timeout_ms"`
}

// SyncConfig holds sync queue settings.
type SyncConfig struct {
	BatchSize        int     `yaml:"batch_size"`
	MaxAttempts      int     `yaml:"max_attempts"`
	BackoffBase      float64 `yaml:"backoff_base"`
	BackoffUnitMs    int     `yaml:"backoff_unit_ms"`
	MaxBackoffSec    int     `yaml:"max_backoff_sec"`
	IntervalSec      int     `yaml:"interval_sec"`
	WritesPerSecond  float64 `yaml:"writes_per_second"` // 0 = unpaced
	FullSyncPageSize int     `yaml:"full_sync_page_size"`
}

// RewriterConfig holds the optional query rewriter. Empty APIKey disables it.
type RewriterConfig struct {
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	Provider string `yaml:"provider"`
	User     string `yaml:"user"`

	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	BudgetAction      string `yaml:"budget_action"`       // "warn" (default) | "skip"
	CacheTTLSec       int    `yaml:"cache_ttl_sec"`
}

// Enabled reports whether a rewriter is configured.
func (c RewriterConfig) Enabled() bool { return c.APIKey != "" }

// ArchiveConfig holds the optional S3-compatible dead-letter archive. Empty
// Endpoint disables it.
type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled reports whether an archive is configured.
func (c ArchiveConfig) Enabled() bool { return c.Endpoint != "" }

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse expands ${VAR} references in data, decodes it, applies defaults and validates.
func Parse(data []byte) (Config, error) {
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
	if c.Redis.ReadinessTimeout <= 0 {
		c.Redis.ReadinessTimeout = 10
	}
	if c.Engine.Backend == "" {
		c.Engine.Backend = EngineRedis
	}

	defaultInt(&c.Cache.LiveTTLSec, 30)
	defaultInt(&c.Cache.SearchTTLSec, 300)
	defaultInt(&c.Cache.SuggestionTTLSec, 1800)
	defaultInt(&c.Cache.PopularTTLSec, 3600)
	if c.Cache.CompressThresholdBytes == 0 {
		c.Cache.CompressThresholdBytes = 4096
	}

	defaultInt(&c.Search.LiveTimeoutMs, 200)
	defaultInt(&c.Search.SearchTimeoutMs, 1500)
	defaultInt(&c.Search.FallbackTimeoutMs, 2000)
	defaultInt(&c.Search.CandidateWindow, 100)
	defaultInt(&c.Search.RecencyHalfLifeHours, 30*24)
	if c.Search.PopularityCap <= 0 {
		c.Search.PopularityCap = 1000
	}

	defaultInt(&c.Suggest.EngineTimeoutMs, 200)
	defaultInt(&c.Suggest.FallbackTimeoutMs, 2000)

	defaultInt(&c.Sync.BatchSize, 50)
	defaultInt(&c.Sync.MaxAttempts, 5)
	if c.Sync.BackoffBase <= 1 {
		c.Sync.BackoffBase = 2
	}
	defaultInt(&c.Sync.BackoffUnitMs, 1000)
	defaultInt(&c.Sync.MaxBackoffSec, 300)
	defaultInt(&c.Sync.IntervalSec, 5)
	defaultInt(&c.Sync.FullSyncPageSize, 500)

	if c.Rewriter.Model == "" {
		c.Rewriter.Model = "gpt-4o-mini"
	}
	if c.Rewriter.Provider == "" {
		c.Rewriter.Provider = "openai"
	}
	if c.Rewriter.BudgetAction == "" {
		c.Rewriter.BudgetAction = "warn"
	}
	defaultInt(&c.Rewriter.CacheTTLSec, 24*3600)
	if c.Archive.Prefix == "" {
		c.Archive.Prefix = "assetsearch"
	}
}

func defaultInt(v *int, d int) {
	if *v <= 0 {
		*v = d
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("redis.addrs is required")
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	switch c.Engine.Backend {
	case EngineRedis, EngineBleve:
	default:
		return fmt.Errorf("engine.backend must be %q or %q, got %q", EngineRedis, EngineBleve, c.Engine.Backend)
	}
	if c.Search.CandidateWindow > 100 {
		return fmt.Errorf("search.candidate_window must be at most 100, got %d", c.Search.CandidateWindow)
	}
	if c.Sync.WritesPerSecond < 0 {
		return fmt.Errorf("sync.writes_per_second must not be negative")
	}
	switch c.Rewriter.BudgetAction {
	case "warn", "skip":
	default:
		return fmt.Errorf("rewriter.budget_action must be \"warn\" or \"skip\", got %q", c.Rewriter.BudgetAction)
	}
	if c.Rewriter.DailyTokenLimit < 0 || c.Rewriter.MonthlyTokenLimit < 0 {
		return fmt.Errorf("rewriter token limits must not be negative")
	}
	if c.Archive.Enabled() && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required when archive.endpoint is set")
	}
	return nil
}

// TTL returns the configured lifetime for a tier name.
func (c CacheConfig) TTL(tierName string) time.Duration {
	switch tierName {
	case "live":
		return seconds(c.LiveTTLSec)
	case "search":
		return seconds(c.SearchTTLSec)
	case "suggestion":
		return seconds(c.SuggestionTTLSec)
	case "popular":
		return seconds(c.PopularTTLSec)
	}
	return 0
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// Millis converts a millisecond setting.
func Millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Seconds converts a second setting.
func Seconds(n int) time.Duration { return seconds(n) }

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

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
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
