package config

import (
	"strings"
	"time"
)

// BackendConfig locates the quiz REST backend.
type BackendConfig struct {
	// BaseURL is the backend root, e.g. "http://localhost:8000".
	BaseURL string        `env:"BACKEND_BASE_URL" envDefault:"http://localhost:8000"`
	Timeout time.Duration `env:"BACKEND_TIMEOUT"  envDefault:"10s"`
}

// Sanitize trims the URL and clamps the timeout.
func (c *BackendConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}
