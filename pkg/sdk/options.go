package assetsearch

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type engineKind int

const (
	engineMemory engineKind = iota
	engineDisk
	engineRedis
)

type clientConfig struct {
	engine    engineKind
	path      string
	addrs     []string
	password  string
	readyWait time.Duration

	source   Source
	syncRate float64

	searchTimeout time.Duration
	liveTimeout   time.Duration

	logger     *slog.Logger
	zapLogger  *zap.Logger
	metricsReg prometheus.Registerer
}

func defaultConfig() clientConfig {
	return clientConfig{engine: engineMemory, readyWait: 10 * time.Second}
}

// WithMemoryIndex keeps the index in process memory (default).
func WithMemoryIndex() Option {
	return optionFunc(func(c *clientConfig) {
		c.engine = engineMemory
	})
}

// WithIndexPath stores the index on disk at path, creating it if missing.
func WithIndexPath(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.engine = engineDisk
		c.path = path
	})
}

// WithRedis uses a Redis 8+ instance (search module bundled) as the index engine.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.engine = engineRedis
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithSource enables the sync queue. Records are read from src when
// scheduled tasks are processed by RunSync.
func WithSource(src Source) Option {
	return optionFunc(func(c *clientConfig) {
		c.source = src
	})
}

// WithSyncRate caps sync writes per second. Zero means unlimited (default).
func WithSyncRate(perSecond float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.syncRate = perSecond
	})
}

// WithTimeouts overrides the engine deadlines for Search and LiveSearch.
// Zero keeps the default.
func WithTimeouts(search, live time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.searchTimeout = search
		c.liveTimeout = live
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithZapLogger routes the engine's internal logs (fallbacks, sync retries)
// to l. They are discarded by default.
func WithZapLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.zapLogger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
