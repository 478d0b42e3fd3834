package httpx

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"

	domainauth "github.com/target/quiz-ui/internal/domain/auth"
)

// Page identifiers; each maps to pages/<name>.tmpl.
const (
	PageLogin    = "login"
	PageRegister = "register"
	PageHome     = "home"
	PageAdmin    = "admin"
)

var pageNames = []string{PageLogin, PageRegister, PageHome, PageAdmin}

// RegisterForm echoes submitted registration fields back into the form.
type RegisterForm struct {
	FirstName string
	LastName  string
}

// PageData is the view model every page template receives.
type PageData struct {
	Title     string
	Page      string
	State     string
	Identity  *domainauth.Identity
	CSRF      string
	Error     string
	Message   string
	Email     string
	Form      RegisterForm
	LoginPath string
	HomePath  string
}

// TemplateRendererConfig holds configuration for creating a TemplateRenderer.
type TemplateRendererConfig struct {
	TemplateFS fs.FS        // Filesystem containing layout.tmpl and pages/ (required)
	DevMode    bool         // Re-parse templates on every render
	Logger     *slog.Logger // Logger for template errors (optional)
}

// TemplateRenderer renders HTML pages: one template set per page, each cloned from the
// shared layout.
type TemplateRenderer struct {
	fsys    fs.FS
	devMode bool
	logger  *slog.Logger

	mu    sync.RWMutex
	pages map[string]*template.Template
}

// NewTemplateRenderer parses the layout and every page up front so broken templates fail
// at startup.
func NewTemplateRenderer(cfg TemplateRendererConfig) (*TemplateRenderer, error) {
	if cfg.TemplateFS == nil {
		return nil, errors.New("TemplateFS is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &TemplateRenderer{fsys: cfg.TemplateFS, devMode: cfg.DevMode, logger: logger}
	pages, err := parsePages(cfg.TemplateFS)
	if err != nil {
		return nil, err
	}
	r.pages = pages
	return r, nil
}

func parsePages(fsys fs.FS) (map[string]*template.Template, error) {
	base, err := template.New("layout").ParseFS(fsys, "layout.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, cloneErr := base.Clone()
		if cloneErr != nil {
			return nil, fmt.Errorf("clone layout for %s: %w", name, cloneErr)
		}
		if _, err = t.ParseFS(fsys, "pages/"+name+".tmpl"); err != nil {
			return nil, fmt.Errorf("parse page %s: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

func (r *TemplateRenderer) page(name string) (*template.Template, error) {
	if r.devMode {
		pages, err := parsePages(r.fsys)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.pages = pages
		r.mu.Unlock()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.pages[name]
	if !ok {
		return nil, fmt.Errorf("unknown page %q", name)
	}
	return t, nil
}

// Render executes the page into a buffer first so a template error never produces a
// half-written response.
func (r *TemplateRenderer) Render(w http.ResponseWriter, status int, data PageData) {
	t, err := r.page(data.Page)
	if err != nil {
		r.logger.Error("template lookup failed", "page", data.Page, "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err = t.ExecuteTemplate(&buf, "layout", data); err != nil {
		r.logger.Error("template render failed", "page", data.Page, "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err = buf.WriteTo(w); err != nil {
		r.logger.Debug("write rendered page", "page", data.Page, "error", err)
	}
}
