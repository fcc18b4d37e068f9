package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/keyhole/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage StorageConfig

	// Session configuration
	Session SessionConfig

	// Flood protection configuration
	Flood FloodConfig

	// Observability configuration
	Observability ObservabilityConfig

	// AllowlistFile is the YAML file listing usernames allowed to log in
	// through the identity provider
	AllowlistFile string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// SiteURL is the canonical public URL of the site, used as the
	// post-logout redirect target
	SiteURL string
}

// StorageConfig holds flood history and delegation state storage settings
type StorageConfig struct {
	Type string // "postgres", "sqlite", "redis"

	// SQL history config
	DatabaseURL       string
	HistoryTable      string
	TimestampLocation string
	MaxConns          int

	// Redis config
	RedisURL         string
	RedisPassword    string
	RedisDB          int
	RedisPoolSize    int
	HistoryRetention time.Duration

	// StateStore selects where in-flight delegation state is held:
	// "redis" (shared between instances) or "memory"
	StateStore string
}

// SessionConfig holds local session cookie settings
type SessionConfig struct {
	Secret       string
	TTL          time.Duration
	CookieName   string
	SecureCookie bool
}

// FloodConfig holds submission flood protection settings
type FloodConfig struct {
	// DelaySeconds is the minimum number of seconds between two writes from
	// the same address. Zero disables flood protection.
	DelaySeconds int

	// IPWhitelist is the raw comma-separated list of exempt addresses
	IPWhitelist string

	// Installing puts the host in initial setup mode, which disables
	// flood protection
	Installing bool

	// TrustForwarded makes the guard read the client address from
	// X-Forwarded-For / X-Real-IP instead of the transport peer
	TrustForwarded bool

	// LoginRateLimit is the number of unauthenticated requests per minute
	// one address may send to the login gate. Zero disables the limit.
	LoginRateLimit int
}

// Whitelist returns the trimmed, non-empty whitelist entries
func (f FloodConfig) Whitelist() []string {
	var entries []string
	for _, entry := range strings.Split(f.IPWhitelist, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			entries = append(entries, entry)
		}
	}
	return entries
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Session:       loadSessionConfig(),
		Flood:         loadFloodConfig(),
		Observability: loadObservabilityConfig(),
		AllowlistFile: getEnv("KEYHOLE_ALLOWLIST_FILE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("KEYHOLE_HOST", "0.0.0.0"),
		Port:            getEnv("KEYHOLE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("KEYHOLE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("KEYHOLE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("KEYHOLE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("KEYHOLE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("KEYHOLE_HEALTH_PORT", "9090"),
		SiteURL:         strings.TrimRight(getEnv("KEYHOLE_SITE_URL", "http://localhost:8080"), "/"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() StorageConfig {
	cfg := StorageConfig{
		Type:              getEnv("KEYHOLE_STORAGE_TYPE", "sqlite"),
		DatabaseURL:       getEnv("KEYHOLE_DATABASE_URL", "file:keyhole.db?cache=shared"),
		HistoryTable:      getEnv("KEYHOLE_HISTORY_TABLE", "submissions"),
		TimestampLocation: getEnv("KEYHOLE_TIMESTAMP_LOCATION", "UTC"),
		MaxConns:          getEnvInt("KEYHOLE_DATABASE_MAX_CONNS", 10),
		RedisURL:          getEnv("KEYHOLE_REDIS_URL", ""),
		RedisPassword:     getEnv("KEYHOLE_REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("KEYHOLE_REDIS_DB", 0),
		RedisPoolSize:     getEnvInt("KEYHOLE_REDIS_POOL_SIZE", 10),
		HistoryRetention:  getEnvDuration("KEYHOLE_HISTORY_RETENTION", 24*time.Hour),
		StateStore:        getEnv("KEYHOLE_STATE_STORE", ""),
	}

	if cfg.StateStore == "" {
		if cfg.RedisURL != "" {
			cfg.StateStore = "redis"
		} else {
			cfg.StateStore = "memory"
		}
	}

	return cfg
}

// loadSessionConfig loads session cookie configuration from environment
func loadSessionConfig() SessionConfig {
	return SessionConfig{
		Secret:       getEnv("KEYHOLE_SESSION_SECRET", ""),
		TTL:          getEnvDuration("KEYHOLE_SESSION_TTL", 24*time.Hour),
		CookieName:   getEnv("KEYHOLE_SESSION_COOKIE", "keyhole_session"),
		SecureCookie: getEnvBool("KEYHOLE_SESSION_SECURE", true),
	}
}

// loadFloodConfig loads flood protection configuration from environment
func loadFloodConfig() FloodConfig {
	return FloodConfig{
		DelaySeconds:   getEnvInt("KEYHOLE_FLOOD_DELAY_SECONDS", 0),
		IPWhitelist:    getEnv("KEYHOLE_FLOOD_IP_WHITELIST", ""),
		Installing:     getEnvBool("KEYHOLE_INSTALLING", false),
		TrustForwarded: getEnvBool("KEYHOLE_TRUST_FORWARDED", false),
		LoginRateLimit: getEnvInt("KEYHOLE_LOGIN_RATE_LIMIT", 30),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	cfg := ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("KEYHOLE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("KEYHOLE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("KEYHOLE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("KEYHOLE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("KEYHOLE_OTEL_SERVICE_NAME", "keyhole"),
		OTelServiceVersion: getEnv("KEYHOLE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("KEYHOLE_OTEL_INSECURE", true),
	}

	return cfg
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.SiteURL == "" {
		return fmt.Errorf("site URL is required")
	}

	// Validate storage config based on type
	switch c.Storage.Type {
	case "postgres", "sqlite":
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for %s storage", c.Storage.Type)
		}
		if c.Storage.HistoryTable == "" {
			return fmt.Errorf("history table is required for %s storage", c.Storage.Type)
		}
		if _, err := time.LoadLocation(c.Storage.TimestampLocation); err != nil {
			return fmt.Errorf("invalid timestamp location %q: %w", c.Storage.TimestampLocation, err)
		}
	case "redis":
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be postgres, sqlite, or redis)", c.Storage.Type)
	}

	switch c.Storage.StateStore {
	case "memory":
	case "redis":
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis state store")
		}
	default:
		return fmt.Errorf("invalid state store: %s (must be memory or redis)", c.Storage.StateStore)
	}

	// Validate session config
	if len(c.Session.Secret) < 32 {
		return fmt.Errorf("session secret must be at least 32 characters")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}

	if c.Flood.DelaySeconds < 0 {
		return fmt.Errorf("flood delay cannot be negative")
	}
	if c.Flood.LoginRateLimit < 0 {
		return fmt.Errorf("login rate limit cannot be negative")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
