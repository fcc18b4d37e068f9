package config

import (
	"os"
	"testing"
	"time"

	"github.com/platinummonkey/keyhole/pkg/observability"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_BOOL", "1")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty")
	t.Setenv("TEST_DURATION", "90s")

	if !getEnvBool("TEST_BOOL", false) {
		t.Error("getEnvBool() should accept '1'")
	}
	if got := getEnvInt("TEST_INT", 0); got != 42 {
		t.Errorf("getEnvInt() = %d, want 42", got)
	}
	if got := getEnvInt("TEST_BAD_INT", 7); got != 7 {
		t.Errorf("getEnvInt() with invalid value = %d, want default 7", got)
	}
	if got := getEnvDuration("TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("getEnvDuration() = %v, want 90s", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]observability.LogLevel{
		"debug":   observability.DebugLevel,
		"INFO":    observability.InfoLevel,
		"warning": observability.WarnLevel,
		"error":   observability.ErrorLevel,
		"bogus":   observability.InfoLevel,
	}
	for input, want := range tests {
		if got := parseLogLevel(input); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:       "8080",
			HealthPort: "9090",
			SiteURL:    "https://sho.rt",
		},
		Storage: StorageConfig{
			Type:              "sqlite",
			DatabaseURL:       "file::memory:",
			HistoryTable:      "submissions",
			TimestampLocation: "UTC",
			StateStore:        "memory",
		},
		Session: SessionConfig{
			Secret: "0123456789abcdef0123456789abcdef",
			TTL:    time.Hour,
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing port", mutate: func(c *Config) { c.Server.Port = "" }, wantErr: true},
		{name: "same ports", mutate: func(c *Config) { c.Server.HealthPort = "8080" }, wantErr: true},
		{name: "missing site url", mutate: func(c *Config) { c.Server.SiteURL = "" }, wantErr: true},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Type = "mysql" }, wantErr: true},
		{name: "bad location", mutate: func(c *Config) { c.Storage.TimestampLocation = "Mars/Olympus" }, wantErr: true},
		{name: "redis without url", mutate: func(c *Config) { c.Storage.Type = "redis" }, wantErr: true},
		{name: "redis state store without url", mutate: func(c *Config) { c.Storage.StateStore = "redis" }, wantErr: true},
		{name: "short session secret", mutate: func(c *Config) { c.Session.Secret = "short" }, wantErr: true},
		{name: "negative flood delay", mutate: func(c *Config) { c.Flood.DelaySeconds = -1 }, wantErr: true},
		{name: "otel without endpoint", mutate: func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelServiceName = "keyhole"
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("KEYHOLE_SESSION_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("KEYHOLE_SITE_URL", "https://sho.rt/")
	t.Setenv("KEYHOLE_FLOOD_DELAY_SECONDS", "15")
	t.Setenv("KEYHOLE_FLOOD_IP_WHITELIST", " 10.0.0.1 ,10.0.0.2,, ")
	os.Unsetenv("KEYHOLE_REDIS_URL")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.SiteURL != "https://sho.rt" {
		t.Errorf("SiteURL = %q, want trailing slash trimmed", cfg.Server.SiteURL)
	}
	if cfg.Flood.DelaySeconds != 15 {
		t.Errorf("DelaySeconds = %d, want 15", cfg.Flood.DelaySeconds)
	}
	if cfg.Storage.StateStore != "memory" {
		t.Errorf("StateStore = %q, want memory without redis", cfg.Storage.StateStore)
	}

	whitelist := cfg.Flood.Whitelist()
	if len(whitelist) != 2 || whitelist[0] != "10.0.0.1" || whitelist[1] != "10.0.0.2" {
		t.Errorf("Whitelist() = %v, want [10.0.0.1 10.0.0.2]", whitelist)
	}
}
