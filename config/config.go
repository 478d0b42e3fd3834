// Package config holds the environment-driven configuration for quiz-ui.
package config

import (
	"log/slog"
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - backend.go: quiz backend connection
//   - storage.go: session storage and Redis
//   - http.go: web front configuration
//   - session.go: refresh and keep-alive behavior
//   - services.go: which components run
//   - observability.go: StatsD mirror
type AppConfig struct {
	// IsDev controls development mode behavior (template reloading, text logs).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Backend BackendConfig
	Storage StorageConfig
	Redis   RedisConfig `envPrefix:"REDIS_"`
	HTTP    HTTPConfig
	Session SessionConfig

	// Services is a comma-delimited list of components to run.
	Services string `env:"SERVICES" envDefault:"http,keepalive"`

	// MetricsEnabled exposes Prometheus metrics at /metrics.
	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`

	StatsD StatsDConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Backend.Sanitize()
	c.Storage.Sanitize()
	c.Redis.Sanitize()
	c.HTTP.Sanitize()
	c.Session.Sanitize()
	c.StatsD.Sanitize()
	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// SlogLevel maps LogLevel onto slog levels, defaulting to info.
func (c *AppConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the web front is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeHTTP]
}

// IsKeepAliveEnabled returns true if the background credential refresher is enabled.
func (c *AppConfig) IsKeepAliveEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeKeepAlive]
}
