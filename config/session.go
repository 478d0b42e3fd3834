package config

import "time"

// SessionConfig controls refresh behavior.
type SessionConfig struct {
	// RefreshOnStart re-validates a restored session with the backend at startup.
	RefreshOnStart bool `env:"SESSION_REFRESH_ON_START" envDefault:"true"`
	// RefreshWindow is how close to credential expiry the keep-alive refreshes.
	RefreshWindow time.Duration `env:"SESSION_REFRESH_WINDOW" envDefault:"2m"`
	// KeepAliveInterval is how often the keep-alive checks the credential.
	KeepAliveInterval time.Duration `env:"SESSION_KEEPALIVE_INTERVAL" envDefault:"1m"`
}

// Sanitize clamps intervals to sane minimums.
func (c *SessionConfig) Sanitize() {
	if c.RefreshWindow <= 0 {
		c.RefreshWindow = 2 * time.Minute
	}
	if c.KeepAliveInterval < time.Second {
		c.KeepAliveInterval = time.Second
	}
}
