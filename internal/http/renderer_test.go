package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/quiz-ui/internal/domain/auth"
)

func minimalTemplates() fstest.MapFS {
	fsys := fstest.MapFS{
		"layout.tmpl": {Data: []byte(`{{define "layout"}}[{{.Title}}]{{template "content" .}}{{end}}`)},
	}
	for _, name := range pageNames {
		fsys["pages/"+name+".tmpl"] = &fstest.MapFile{Data: []byte(`{{define "content"}}` + name + `:{{.Email}}{{end}}`)}
	}
	return fsys
}

func TestNewTemplateRenderer_Errors(t *testing.T) {
	_, err := NewTemplateRenderer(TemplateRendererConfig{})
	require.Error(t, err)

	fsys := minimalTemplates()
	delete(fsys, "pages/admin.tmpl")
	_, err = NewTemplateRenderer(TemplateRendererConfig{TemplateFS: fsys})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin")
}

func TestTemplateRenderer_RendersPageInLayout(t *testing.T) {
	tr, err := NewTemplateRenderer(TemplateRendererConfig{TemplateFS: minimalTemplates()})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	tr.Render(rec, http.StatusUnauthorized, PageData{Title: "Sign in", Page: PageLogin, Email: "<x>"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "[Sign in]login:&lt;x&gt;", rec.Body.String())
}

func TestTemplateRenderer_UnknownPage(t *testing.T) {
	tr, err := NewTemplateRenderer(TemplateRendererConfig{TemplateFS: minimalTemplates()})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	tr.Render(rec, http.StatusOK, PageData{Page: "nope"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTemplateRenderer_DevModeReloads(t *testing.T) {
	fsys := minimalTemplates()
	tr, err := NewTemplateRenderer(TemplateRendererConfig{TemplateFS: fsys, DevMode: true})
	require.NoError(t, err)

	fsys["pages/home.tmpl"] = &fstest.MapFile{Data: []byte(`{{define "content"}}edited{{end}}`)}

	rec := httptest.NewRecorder()
	tr.Render(rec, http.StatusOK, PageData{Title: "Home", Page: PageHome})
	assert.Equal(t, "[Home]edited", rec.Body.String())
}

func TestEmbeddedTemplatesRenderEveryPage(t *testing.T) {
	tr := requireTemplateRenderer(t)
	admin := &domainauth.Identity{ID: "2", Email: "admin@b.com", FullName: "Ada", Role: domainauth.RoleAdmin, Status: domainauth.StatusActive}

	for _, page := range pageNames {
		t.Run(page, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tr.Render(rec, http.StatusOK, PageData{Title: page, Page: page, Identity: admin, CSRF: "tok", LoginPath: "/login", HomePath: "/home"})
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), `href="/admin"`)
		})
	}
}
