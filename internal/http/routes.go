// Package httpx serves the quiz web front: guarded pages, the sign-in forms, session
// status and events, and the /api proxy to the backend.
package httpx

import (
	"log/slog"
	"net/http"

	"github.com/target/quiz-ui/internal/apiclient"
	"github.com/target/quiz-ui/internal/guard"
)

// AdminPath is the admin-only page.
const AdminPath = "/admin"

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth     AuthServiceInterface // Required
	Sessions SessionFeed          // Required
	Renderer *TemplateRenderer    // Required
	// Optional: enables the /api backend proxy.
	Client *apiclient.Client
	// Optional: served at /metrics.
	Metrics      http.Handler
	Paths        guard.Paths
	CookieDomain string
	Logger       *slog.Logger
}

// NewRouter creates and configures a new HTTP router with browser middleware.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	paths := services.Paths
	if paths.Login == "" {
		paths.Login = guard.DefaultLoginPath
	}
	if paths.Home == "" {
		paths.Home = guard.DefaultHomePath
	}

	mux := http.NewServeMux()

	authHandlers := &AuthHandlers{
		Svc:          services.Auth,
		Sessions:     services.Sessions,
		Renderer:     services.Renderer,
		Paths:        paths,
		CookieDomain: services.CookieDomain,
		Logger:       logger,
	}
	pageHandlers := &PageHandlers{Renderer: services.Renderer, Paths: paths}
	eventHandlers := &EventHandlers{Sessions: services.Sessions, Logger: logger}

	guarded := func(g guard.Guard, h http.HandlerFunc) http.Handler {
		return Guarded(GuardConfig{Guard: g, Sessions: services.Sessions, CookieDomain: services.CookieDomain})(h)
	}

	mux.Handle("GET /{$}", landingHandler(guard.Landing(paths), services.Sessions))
	mux.HandleFunc("GET "+paths.Login, authHandlers.LoginPage)
	mux.HandleFunc("POST "+paths.Login, authHandlers.Login)
	mux.HandleFunc("GET /register", authHandlers.RegisterPage)
	mux.HandleFunc("POST /register", authHandlers.Register)
	mux.HandleFunc("POST /logout", authHandlers.Logout)
	mux.Handle("GET "+paths.Home, guarded(guard.RequireAuthenticated(paths), pageHandlers.Home))
	mux.Handle("GET "+AdminPath, guarded(guard.RequireAdmin(paths), pageHandlers.Admin))

	mux.HandleFunc("GET /auth/status", authHandlers.Status)
	mux.HandleFunc("POST /auth/refresh", authHandlers.Refresh)
	mux.HandleFunc("GET /auth/events", eventHandlers.Stream)

	if services.Client != nil {
		mux.Handle(DefaultAPIPrefix+"/", NewAPIProxy(ProxyConfig{Client: services.Client, Logger: logger}))
	}
	if services.Metrics != nil {
		mux.Handle("GET /metrics", services.Metrics)
	}
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	var handler http.Handler = mux
	handler = CSRFProtection(CSRFConfig{CookieDomain: services.CookieDomain})(handler)
	handler = BrowserDetection()(handler)
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return RequestID()(handler)
}
