// Package config provides configuration management for the enrichment service.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anatolykoptev/go-kit/env"
)

const (
	// Default values
	DefaultPort     = 8790
	DefaultLogLevel = "info"
	DefaultDataDir  = ".enricher"

	// Environment variable names
	EnvPort        = "ENRICHER_PORT"
	EnvLogLevel    = "ENRICHER_LOG_LEVEL"
	EnvDataDir     = "ENRICHER_DATA_DIR"
	EnvDatabaseURL = "ENRICHER_DATABASE_URL"
	EnvRedisURL    = "ENRICHER_REDIS_URL"

	// Worker pool
	EnvWorkers     = "ENRICHER_WORKERS"
	EnvQueueSize   = "ENRICHER_QUEUE_SIZE"
	EnvJobTimeout  = "ENRICHER_JOB_TIMEOUT"
	EnvMaxAttempts = "ENRICHER_MAX_ATTEMPTS"
	EnvRetryDelay  = "ENRICHER_RETRY_DELAY"

	// Caption languages
	EnvSecondaryLanguage  = "ENRICHER_SECONDARY_LANGUAGE"
	EnvPreferredLanguages = "ENRICHER_PREFERRED_LANGUAGES"

	// Speech-to-text
	EnvSTTURL         = "ENRICHER_STT_URL"
	EnvSTTAPIKey      = "ENRICHER_STT_API_KEY"
	EnvSTTModel       = "ENRICHER_STT_MODEL"
	EnvSTTConcurrency = "ENRICHER_STT_CONCURRENCY"
	EnvSTTInterval    = "ENRICHER_STT_INTERVAL"

	// Adaptive limiter and breaker
	EnvLimiterBaseDelay = "ENRICHER_LIMITER_BASE_DELAY"
	EnvLimiterBackoff   = "ENRICHER_LIMITER_BACKOFF"
	EnvLimiterRecovery  = "ENRICHER_LIMITER_RECOVERY"
	EnvLimiterMaxDelay  = "ENRICHER_LIMITER_MAX_DELAY"
	EnvBreakerThreshold = "ENRICHER_BREAKER_THRESHOLD"
	EnvBreakerCooldown  = "ENRICHER_BREAKER_COOLDOWN"

	// External tools
	EnvYtDlpPath       = "ENRICHER_YTDLP_PATH"
	EnvFFmpegPath      = "ENRICHER_FFMPEG_PATH"
	EnvFFprobePath     = "ENRICHER_FFPROBE_PATH"
	EnvMetadataTimeout = "ENRICHER_METADATA_TIMEOUT"

	// Database filename
	DBFilename = "enricher.db"

	DefaultWorkers           = 4
	DefaultQueueSize         = 256
	DefaultJobTimeout        = 30 * time.Minute
	DefaultMaxAttempts       = 3
	DefaultRetryDelay        = 30 * time.Second
	DefaultSecondaryLanguage = "de"
	DefaultSTTURL            = "https://api.openai.com"
	DefaultSTTModel          = "whisper-1"
	DefaultSTTConcurrency    = 3
	DefaultSTTInterval       = 3 * time.Second
	DefaultLimiterBaseDelay  = time.Second
	DefaultLimiterBackoff    = 2.0
	DefaultLimiterRecovery   = 0.8
	DefaultLimiterMaxDelay   = 60 * time.Second
	DefaultBreakerThreshold  = 5
	DefaultBreakerCooldown   = 30 * time.Second
	DefaultMetadataTimeout   = 15 * time.Second
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	AudioDir() string
	DatabaseURL() string
	RedisURL() string

	Workers() int
	QueueSize() int
	JobTimeout() time.Duration
	MaxAttempts() int
	RetryDelay() time.Duration

	SecondaryLanguage() string
	PreferredLanguages() []string

	STTURL() string
	STTAPIKey() string
	STTModel() string
	STTConcurrency() int
	STTInterval() time.Duration

	LimiterBaseDelay() time.Duration
	LimiterBackoff() float64
	LimiterRecovery() float64
	LimiterMaxDelay() time.Duration
	BreakerThreshold() int
	BreakerCooldown() time.Duration

	YtDlpPath() string
	FFmpegPath() string
	FFprobePath() string
	MetadataTimeout() time.Duration
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port        int
	logLevel    string
	dataDir     string
	databaseURL string
	redisURL    string

	workers     int
	queueSize   int
	jobTimeout  time.Duration
	maxAttempts int
	retryDelay  time.Duration

	secondaryLanguage  string
	preferredLanguages []string

	sttURL         string
	sttAPIKey      string
	sttModel       string
	sttConcurrency int
	sttInterval    time.Duration

	limiterBaseDelay time.Duration
	limiterBackoff   float64
	limiterRecovery  float64
	limiterMaxDelay  time.Duration
	breakerThreshold int
	breakerCooldown  time.Duration

	ytdlpPath       string
	ffmpegPath      string
	ffprobePath     string
	metadataTimeout time.Duration
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:        env.Int(EnvPort, DefaultPort),
		logLevel:    env.Str(EnvLogLevel, DefaultLogLevel),
		dataDir:     env.Str(EnvDataDir, defaultDataDir()),
		databaseURL: env.Str(EnvDatabaseURL, ""),
		redisURL:    env.Str(EnvRedisURL, ""),

		workers:     env.Int(EnvWorkers, DefaultWorkers),
		queueSize:   env.Int(EnvQueueSize, DefaultQueueSize),
		jobTimeout:  env.Duration(EnvJobTimeout, DefaultJobTimeout),
		maxAttempts: env.Int(EnvMaxAttempts, DefaultMaxAttempts),
		retryDelay:  env.Duration(EnvRetryDelay, DefaultRetryDelay),

		secondaryLanguage:  strings.ToLower(env.Str(EnvSecondaryLanguage, DefaultSecondaryLanguage)),
		preferredLanguages: nonEmpty(env.List(EnvPreferredLanguages, "")),

		sttURL:         strings.TrimRight(env.Str(EnvSTTURL, DefaultSTTURL), "/"),
		sttAPIKey:      env.Str(EnvSTTAPIKey, ""),
		sttModel:       env.Str(EnvSTTModel, DefaultSTTModel),
		sttConcurrency: env.Int(EnvSTTConcurrency, DefaultSTTConcurrency),
		sttInterval:    env.Duration(EnvSTTInterval, DefaultSTTInterval),

		limiterBaseDelay: env.Duration(EnvLimiterBaseDelay, DefaultLimiterBaseDelay),
		limiterBackoff:   env.Float(EnvLimiterBackoff, DefaultLimiterBackoff),
		limiterRecovery:  env.Float(EnvLimiterRecovery, DefaultLimiterRecovery),
		limiterMaxDelay:  env.Duration(EnvLimiterMaxDelay, DefaultLimiterMaxDelay),
		breakerThreshold: env.Int(EnvBreakerThreshold, DefaultBreakerThreshold),
		breakerCooldown:  env.Duration(EnvBreakerCooldown, DefaultBreakerCooldown),

		ytdlpPath:       env.Str(EnvYtDlpPath, "yt-dlp"),
		ffmpegPath:      env.Str(EnvFFmpegPath, "ffmpeg"),
		ffprobePath:     env.Str(EnvFFprobePath, "ffprobe"),
		metadataTimeout: env.Duration(EnvMetadataTimeout, DefaultMetadataTimeout),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EnvConfig) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
	}
	if c.workers < 1 {
		return fmt.Errorf("invalid %s: must be at least 1", EnvWorkers)
	}
	if c.queueSize < 1 {
		return fmt.Errorf("invalid %s: must be at least 1", EnvQueueSize)
	}
	if c.maxAttempts < 1 {
		return fmt.Errorf("invalid %s: must be at least 1", EnvMaxAttempts)
	}
	if c.sttConcurrency < 1 {
		return fmt.Errorf("invalid %s: must be at least 1", EnvSTTConcurrency)
	}
	if c.limiterBackoff <= 1 {
		return fmt.Errorf("invalid %s: backoff factor must be above 1", EnvLimiterBackoff)
	}
	if c.limiterRecovery <= 0 || c.limiterRecovery >= 1 {
		return fmt.Errorf("invalid %s: recovery factor must be in (0, 1)", EnvLimiterRecovery)
	}
	if c.limiterMaxDelay < c.limiterBaseDelay {
		return fmt.Errorf("invalid %s: max delay is below base delay", EnvLimiterMaxDelay)
	}
	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// AudioDir is where downloaded audio and chunks live while a run is active.
func (c *EnvConfig) AudioDir() string {
	return filepath.Join(c.dataDir, "audio")
}

// DatabaseURL selects Postgres storage when set; SQLite otherwise.
func (c *EnvConfig) DatabaseURL() string {
	return c.databaseURL
}

// RedisURL enables progress publishing to Redis when set.
func (c *EnvConfig) RedisURL() string {
	return c.redisURL
}

func (c *EnvConfig) Workers() int {
	return c.workers
}

func (c *EnvConfig) QueueSize() int {
	return c.queueSize
}

func (c *EnvConfig) JobTimeout() time.Duration {
	return c.jobTimeout
}

func (c *EnvConfig) MaxAttempts() int {
	return c.maxAttempts
}

func (c *EnvConfig) RetryDelay() time.Duration {
	return c.retryDelay
}

func (c *EnvConfig) SecondaryLanguage() string {
	return c.secondaryLanguage
}

func (c *EnvConfig) PreferredLanguages() []string {
	return c.preferredLanguages
}

func (c *EnvConfig) STTURL() string {
	return c.sttURL
}

func (c *EnvConfig) STTAPIKey() string {
	return c.sttAPIKey
}

func (c *EnvConfig) STTModel() string {
	return c.sttModel
}

func (c *EnvConfig) STTConcurrency() int {
	return c.sttConcurrency
}

func (c *EnvConfig) STTInterval() time.Duration {
	return c.sttInterval
}

func (c *EnvConfig) LimiterBaseDelay() time.Duration {
	return c.limiterBaseDelay
}

func (c *EnvConfig) LimiterBackoff() float64 {
	return c.limiterBackoff
}

func (c *EnvConfig) LimiterRecovery() float64 {
	return c.limiterRecovery
}

func (c *EnvConfig) LimiterMaxDelay() time.Duration {
	return c.limiterMaxDelay
}

func (c *EnvConfig) BreakerThreshold() int {
	return c.breakerThreshold
}

func (c *EnvConfig) BreakerCooldown() time.Duration {
	return c.breakerCooldown
}

func (c *EnvConfig) YtDlpPath() string {
	return c.ytdlpPath
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

func (c *EnvConfig) MetadataTimeout() time.Duration {
	return c.metadataTimeout
}

func nonEmpty(items []string) []string {
	out := items[:0]
	for _, it := range items {
		if it = strings.ToLower(strings.TrimSpace(it)); it != "" {
			out = append(out, it)
		}
	}
	return out
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
