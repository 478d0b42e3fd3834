package config

import (
	"net"
	"strings"
	"time"
)

// DefaultHTTPAddr binds the web front to loopback only.
const DefaultHTTPAddr = "127.0.0.1:8080"

// HTTPConfig contains web front configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to. The process holds a single session
	// and serves it to every caller: guarded pages render for it and /api requests carry
	// its bearer token. Binding a non-loopback address hands that session, admin included,
	// to anyone who can reach the port.
	Addr string `env:"HTTP_ADDR" envDefault:"127.0.0.1:8080"`

	// CookieDomain is the domain for nav_state and CSRF cookies.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// LoginPath and HomePath are where guards send visitors.
	LoginPath string `env:"LOGIN_PATH" envDefault:"/login"`
	HomePath  string `env:"HOME_PATH"  envDefault:"/home"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.Addr = strings.TrimSpace(h.Addr)
	if h.Addr == "" {
		h.Addr = DefaultHTTPAddr
	}
	h.LoginPath = sanitizePath(h.LoginPath, "/login")
	h.HomePath = sanitizePath(h.HomePath, "/home")
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 10 * time.Second
	}
}

// LoopbackOnly reports whether Addr binds loopback interfaces only. An empty host
// (":8080") listens on every interface.
func (h HTTPConfig) LoopbackOnly() bool {
	host, _, err := net.SplitHostPort(h.Addr)
	if err != nil || host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// sanitizePath requires a rooted, non-root path without query or wildcard syntax.
func sanitizePath(p, fallback string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") || p == "/" || strings.HasPrefix(p, "//") || strings.ContainsAny(p, "?#{} ") {
		return fallback
	}
	return p
}
