package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the resolution core.
type Config struct {
	Port      int
	Version   string
	Database  DatabaseConfig
	Directory DirectoryConfig
	Flow      FlowConfig
	Hook      HookConfig
	Telemetry TelemetryConfig
}

type DatabaseConfig struct {
	// URL is the Postgres connection string. Empty selects the in-memory
	// store with snapshot persistence.
	URL            string
	MaxConnections int
}

type DirectoryConfig struct {
	// BaseURL points at the external user/channel/network directory.
	// Empty selects the store-backed local network registry.
	BaseURL string
	Timeout time.Duration
}

type FlowConfig struct {
	Timeout time.Duration
	MaxHops int
}

type HookConfig struct {
	Timeout time.Duration
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("MEGABOT_PORT", 8080),
		Version: envStr("MEGABOT_VERSION", "0.1.0"),
		Database: DatabaseConfig{
			URL:            envStr("MEGABOT_DATABASE_URL", ""),
			MaxConnections: envInt("MEGABOT_DATABASE_MAX_CONNECTIONS", 25),
		},
		Directory: DirectoryConfig{
			BaseURL: envStr("MEGABOT_DIRECTORY_URL", ""),
			Timeout: envDuration("MEGABOT_DIRECTORY_TIMEOUT", 5*time.Second),
		},
		Flow: FlowConfig{
			Timeout: envDuration("MEGABOT_FLOW_TIMEOUT", 30*time.Second),
			MaxHops: envInt("MEGABOT_FLOW_MAX_HOPS", 5),
		},
		Hook: HookConfig{
			Timeout: envDuration("MEGABOT_HOOK_TIMEOUT", 10*time.Second),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", true),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "megabot-resolution-core"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
