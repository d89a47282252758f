package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/levyline/taxflow/pkg/api"
)

type (
	// Config holds configuration settings for the engine and its surfaces
	Config struct {
		// API Server
		APIHost  string
		APIPort  int
		LogLevel string

		// Stores & Archiving
		Store            StoreConfig
		ArchiveBucketURL string
		ArchivePrefix    string

		// Definitions
		DefinitionsDir   string
		PropertyDataFile string
		ReplaceWorkflows bool

		// Engine
		StepTimeout      int64
		WorkflowTimeout  int64
		TrackerCacheSize int
		ShutdownTimeout  time.Duration
	}

	// StoreConfig selects and configures the execution and definition
	// stores
	StoreConfig struct {
		Type         string
		Addr         string
		Password     string
		Prefix       string
		DB           int
		ExecutionTTL int64
		MemorySize   int
	}
)

const (
	StoreTypeMemory = "memory"
	StoreTypeRedis  = "redis"
)

const (
	DefaultStepTimeout     = 30 * api.Second
	DefaultWorkflowTimeout = 5 * api.Minute
	DefaultShutdownTimeout = 10 * time.Second

	DefaultAPIPort = 8080
	DefaultAPIHost = "0.0.0.0"
	MaxTCPPort     = 65535
	DefaultRedisDB = 0

	DefaultRedisEndpoint    = "localhost:6379"
	DefaultRedisPrefix      = "taxflow"
	DefaultArchivePrefix    = "executions/"
	DefaultExecutionTTL     = 24 * api.Hour
	DefaultTrackerCacheSize = 4096
	DefaultMemoryStoreSize  = 100_000

	MaxTrackerCacheSize = 1_000_000
	MaxMemoryStoreSize  = 10_000_000
	MaxRedisDB          = 15
	MaxStepTimeout      = 24 * api.Hour
	MaxWorkflowTimeout  = 7 * 24 * api.Hour
	MaxExecutionTTL     = 365 * 24 * api.Hour
	MaxShutdownTimeout  = 10 * api.Minute
)

var (
	ErrInvalidAPIPort         = errors.New("invalid API port")
	ErrInvalidStepTimeout     = errors.New("step timeout must be positive")
	ErrInvalidWorkflowTimeout = errors.New(
		"workflow timeout cannot be negative",
	)
	ErrInvalidStoreType    = errors.New("invalid store type")
	ErrInvalidCacheSize    = errors.New("tracker cache size must be positive")
	ErrInvalidMemorySize   = errors.New("memory store size must be positive")
	ErrInvalidExecutionTTL = errors.New("execution TTL must be positive")
	ErrRedisAddrRequired   = errors.New("redis store requires an address")
)

// NewDefaultConfig creates a configuration with sensible defaults for the
// API server, stores, and engine timeouts
func NewDefaultConfig() *Config {
	return &Config{
		APIHost:  DefaultAPIHost,
		APIPort:  DefaultAPIPort,
		LogLevel: "info",
		Store: StoreConfig{
			Type:         StoreTypeMemory,
			Addr:         DefaultRedisEndpoint,
			Prefix:       DefaultRedisPrefix,
			DB:           DefaultRedisDB,
			ExecutionTTL: DefaultExecutionTTL,
			MemorySize:   DefaultMemoryStoreSize,
		},
		ArchivePrefix:    DefaultArchivePrefix,
		StepTimeout:      DefaultStepTimeout,
		WorkflowTimeout:  DefaultWorkflowTimeout,
		TrackerCacheSize: DefaultTrackerCacheSize,
		ShutdownTimeout:  DefaultShutdownTimeout,
	}
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed.
func (c *Config) LoadFromEnv() error {
	loadEnvString("API_HOST", &c.APIHost)
	loadEnvString("LOG_LEVEL", &c.LogLevel)
	loadEnvString("STORE_TYPE", &c.Store.Type)
	loadEnvString("REDIS_ADDR", &c.Store.Addr)
	loadEnvString("REDIS_PASSWORD", &c.Store.Password)
	loadEnvString("REDIS_PREFIX", &c.Store.Prefix)
	loadEnvString("ARCHIVE_BUCKET_URL", &c.ArchiveBucketURL)
	loadEnvString("ARCHIVE_PREFIX", &c.ArchivePrefix)
	loadEnvString("DEFINITIONS_DIR", &c.DefinitionsDir)
	loadEnvString("PROPERTY_DATA_FILE", &c.PropertyDataFile)

	if err := loadEnvBool(
		"REPLACE_WORKFLOWS", &c.ReplaceWorkflows,
	); err != nil {
		return err
	}

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}
	if err := loadEnvInt("REDIS_DB", &c.Store.DB, -1, MaxRedisDB); err != nil {
		return err
	}
	if err := loadEnvInt(
		"EXECUTION_TTL", &c.Store.ExecutionTTL, 0, MaxExecutionTTL,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"MEMORY_STORE_SIZE", &c.Store.MemorySize, 0, MaxMemoryStoreSize,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"TRACKER_CACHE_SIZE", &c.TrackerCacheSize, 0, MaxTrackerCacheSize,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"STEP_TIMEOUT", &c.StepTimeout, 0, MaxStepTimeout,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"WORKFLOW_TIMEOUT", &c.WorkflowTimeout, -1, MaxWorkflowTimeout,
	); err != nil {
		return err
	}

	shutdown := c.ShutdownTimeout.Milliseconds()
	if err := loadEnvInt(
		"SHUTDOWN_TIMEOUT", &shutdown, 0, MaxShutdownTimeout,
	); err != nil {
		return err
	}
	c.ShutdownTimeout = time.Duration(shutdown) * time.Millisecond

	return nil
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}

	if c.StepTimeout <= 0 {
		return ErrInvalidStepTimeout
	}

	if c.WorkflowTimeout < 0 {
		return ErrInvalidWorkflowTimeout
	}

	if c.TrackerCacheSize <= 0 {
		return ErrInvalidCacheSize
	}

	switch c.Store.Type {
	case StoreTypeMemory:
		if c.Store.MemorySize <= 0 {
			return ErrInvalidMemorySize
		}
	case StoreTypeRedis:
		if c.Store.Addr == "" {
			return ErrRedisAddrRequired
		}
		if c.Store.ExecutionTTL <= 0 {
			return ErrInvalidExecutionTTL
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidStoreType, c.Store.Type)
	}

	return nil
}

// StepTimeoutDuration returns the default per-step timeout
func (c *Config) StepTimeoutDuration() time.Duration {
	return time.Duration(c.StepTimeout) * time.Millisecond
}

// WorkflowTimeoutDuration returns the default per-workflow timeout. Zero
// means workflows are bounded only by their own declared timeout
func (c *Config) WorkflowTimeoutDuration() time.Duration {
	return time.Duration(c.WorkflowTimeout) * time.Millisecond
}

// ExecutionTTLDuration returns how long executions are retained in Redis
func (c *StoreConfig) ExecutionTTLDuration() time.Duration {
	return time.Duration(c.ExecutionTTL) * time.Millisecond
}

func loadEnvString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func loadEnvBool(key string, dst *bool) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	*dst = v
	return nil
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max]. Returns an error if
// the value cannot be parsed or falls outside the valid range.
func loadEnvInt[T ~int | ~int64](key string, dst *T, min, max T) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	tv := T(v)
	if tv <= min || tv > max {
		return fmt.Errorf("invalid %s: %d out of range [%d, %d]",
			key, tv, min+1, max)
	}
	*dst = tv
	return nil
}
