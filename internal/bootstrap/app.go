package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	quizui "github.com/target/quiz-ui"
	"github.com/target/quiz-ui/config"
	"github.com/target/quiz-ui/internal/apiclient"
	"github.com/target/quiz-ui/internal/guard"
	httpx "github.com/target/quiz-ui/internal/http"
	"github.com/target/quiz-ui/internal/observability/metrics"
	"github.com/target/quiz-ui/internal/observability/statsd"
	"github.com/target/quiz-ui/internal/ports"
	"github.com/target/quiz-ui/internal/service"
	"github.com/target/quiz-ui/internal/session"
)

const devTemplateDir = "frontend/templates"

// AppDeps contains the inputs for NewApp.
type AppDeps struct {
	Config *config.AppConfig // Required
	Logger *slog.Logger
	// Storage replaces the configured backend when set.
	Storage ports.Storage
	// TemplateFS replaces the embedded templates when set.
	TemplateFS fs.FS
	// Registry receives metrics; nil creates a private registry.
	Registry *prometheus.Registry
}

// App is one wired quiz-ui instance: a session store over shared storage, the auth
// service driving it and, when enabled, the web front.
type App struct {
	Store   *session.Store
	Auth    *service.AuthService
	Client  *apiclient.Client
	Metrics *metrics.AuthMetrics
	Handler http.Handler
	Origin  string

	cfg         *config.AppConfig
	logger      *slog.Logger
	storage     StorageHandle
	statsd      *statsd.Client
	unsubscribe func()
}

// NewApp builds every component and loads the persisted session.
func NewApp(ctx context.Context, deps AppDeps) (*App, error) {
	if deps.Config == nil {
		return nil, errors.New("app config is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origin := uuid.NewString()

	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	authMetrics := metrics.NewAuthMetrics(reg)

	mirror, err := statsd.NewClient(ctx, statsd.Config{
		Address: cfg.StatsD.Addr,
		Prefix:  cfg.StatsD.Prefix,
		Tags:    cfg.StatsD.Tags,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("statsd: %w", err)
	}
	if mirror != nil {
		authMetrics.Mirror = mirror
		logger.InfoContext(ctx, "mirroring metrics to statsd", "addr", cfg.StatsD.Addr)
	}

	app := &App{
		Metrics: authMetrics,
		Origin:  origin,
		cfg:     cfg,
		logger:  logger,
		statsd:  mirror,
		storage: StorageHandle{Storage: deps.Storage},
	}
	if app.storage.Storage == nil {
		app.storage, err = BuildStorage(ctx, StorageDeps{
			Storage: cfg.Storage,
			Redis:   cfg.Redis,
			Origin:  origin,
			Logger:  logger,
		})
		if err != nil {
			return nil, errors.Join(err, app.Close())
		}
	}

	if err = app.wire(ctx, reg, deps.TemplateFS); err != nil {
		return nil, errors.Join(err, app.Close())
	}
	return app, nil
}

func (a *App) wire(ctx context.Context, reg *prometheus.Registry, templates fs.FS) error {
	a.Store = session.New(session.Options{
		Storage: withEventMetrics(a.storage.Storage, a.Metrics),
		Logger:  a.logger,
	})
	if err := a.Store.Init(ctx); err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	client, err := apiclient.New(apiclient.Config{
		BaseURL: a.cfg.Backend.BaseURL,
		Timeout: a.cfg.Backend.Timeout,
		Headers: a.Store,
		Logger:  a.logger,
	})
	if err != nil {
		return fmt.Errorf("build backend client: %w", err)
	}
	a.Client = client

	a.Auth = service.NewAuthService(service.AuthServiceOptions{
		Backend: apiclient.NewBackend(client),
		Store:   a.Store,
		Config: service.AuthServiceConfig{
			Logger:         a.logger,
			Metrics:        a.Metrics,
			RefreshWindow:  a.cfg.Session.RefreshWindow,
			RefreshTimeout: a.cfg.Backend.Timeout,
		},
	})
	client.SetUnauthorizedHandler(a.Auth.HandleUnauthorized)

	a.Metrics.SetAuthenticated(a.Store.Snapshot().Authenticated())
	a.unsubscribe = a.Store.Subscribe(func() {
		a.Metrics.SetAuthenticated(a.Store.Snapshot().Authenticated())
	})

	if !a.cfg.IsHTTPServerEnabled() {
		return nil
	}
	return a.buildHandler(reg, templates)
}

func (a *App) buildHandler(reg *prometheus.Registry, templates fs.FS) error {
	if templates == nil {
		templates = a.templateFS()
	}
	renderer, err := httpx.NewTemplateRenderer(httpx.TemplateRendererConfig{
		TemplateFS: templates,
		DevMode:    a.cfg.IsDev,
		Logger:     a.logger,
	})
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	var metricsHandler http.Handler
	if a.cfg.MetricsEnabled {
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}

	a.Handler = httpx.NewRouter(httpx.RouterServices{
		Auth:     a.Auth,
		Sessions: a.Store,
		Renderer: renderer,
		Client:   a.Client,
		Metrics:  metricsHandler,
		Paths: guard.Paths{
			Login: a.cfg.HTTP.LoginPath,
			Home:  a.cfg.HTTP.HomePath,
		},
		CookieDomain: a.cfg.HTTP.CookieDomain,
		Logger:       a.logger,
	})
	return nil
}

// templateFS reads templates from disk in dev mode so edits show up without a rebuild.
func (a *App) templateFS() fs.FS {
	if a.cfg.IsDev {
		if st, err := os.Stat(devTemplateDir); err == nil && st.IsDir() {
			a.logger.Info("serving templates from disk", "dir", devTemplateDir)
			return os.DirFS(devTemplateDir)
		}
	}
	sub, err := fs.Sub(quizui.TemplateFS, "frontend/templates")
	if err != nil {
		// The embed pattern guarantees the directory exists.
		panic(err)
	}
	return sub
}

// Run starts the enabled services and blocks until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Session.RefreshOnStart && a.Store.Snapshot().Authenticated() {
		if a.Auth.Refresh(ctx) == nil {
			a.logger.InfoContext(ctx, "stored session no longer valid, signed out")
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.Store.Watch(gctx); err != nil {
			return fmt.Errorf("watch storage: %w", err)
		}
		return nil
	})

	if a.cfg.IsKeepAliveEnabled() {
		g.Go(func() error {
			a.logger.InfoContext(gctx, "starting keepalive", "interval", a.cfg.Session.KeepAliveInterval)
			return a.Auth.KeepAlive(gctx, a.cfg.Session.KeepAliveInterval)
		})
	}

	if a.Handler != nil {
		server := newHTTPServer(a.cfg.HTTP.Addr, a.Handler)
		g.Go(func() error {
			return serveHTTP(gctx, httpServeConfig{
				Server:          server,
				ShutdownTimeout: a.cfg.HTTP.ShutdownTimeout,
				Logger:          a.logger,
			})
		})
	}

	return g.Wait()
}

// Close releases the storage backend and the StatsD socket.
func (a *App) Close() error {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	return errors.Join(a.storage.Close(), a.statsd.Close())
}
