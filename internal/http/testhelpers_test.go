package httpx

import (
	"context"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	quizui "github.com/target/quiz-ui"
	"github.com/target/quiz-ui/internal/adapters/memory"
	"github.com/target/quiz-ui/internal/apiclient"
	"github.com/target/quiz-ui/internal/service"
	"github.com/target/quiz-ui/internal/session"
	"github.com/target/quiz-ui/internal/testutil"
)

const testCSRFToken = "csrf-test-token"

// testApp is the full web front wired against a stub backend.
type testApp struct {
	stub    *testutil.StubBackend
	store   *session.Store
	svc     *service.AuthService
	client  *apiclient.Client
	handler http.Handler
}

func requireTemplateRenderer(t *testing.T) *TemplateRenderer {
	t.Helper()
	sub, err := fs.Sub(quizui.TemplateFS, "frontend/templates")
	require.NoError(t, err)
	tr, err := NewTemplateRenderer(TemplateRendererConfig{TemplateFS: sub})
	require.NoError(t, err)
	return tr
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	stub := testutil.NewStubBackend(t)
	stub.AddUser("a@b.com", "secret1", map[string]any{
		"user_id": 1, "email": "a@b.com", "firstname": "Ann", "lastname": "Bee", "role": "user", "status": "active",
	})
	stub.AddUser("admin@b.com", "secret2", map[string]any{
		"user_id": 2, "email": "admin@b.com", "firstname": "Ada", "is_admin": true,
	})

	store := session.New(session.Options{Storage: memory.NewBacking().Storage("tab")})
	require.NoError(t, store.Init(context.Background()))

	client, err := apiclient.New(apiclient.Config{BaseURL: stub.URL(), Headers: store})
	require.NoError(t, err)

	svc := service.NewAuthService(service.AuthServiceOptions{
		Backend: apiclient.NewBackend(client),
		Store:   store,
	})
	client.SetUnauthorizedHandler(svc.HandleUnauthorized)

	handler := NewRouter(RouterServices{
		Auth:     svc,
		Sessions: store,
		Renderer: requireTemplateRenderer(t),
		Client:   client,
	})

	return &testApp{stub: stub, store: store, svc: svc, client: client, handler: handler}
}

func (a *testApp) login(t *testing.T, email, password string) {
	t.Helper()
	_, err := a.svc.Login(context.Background(), email, password)
	require.NoError(t, err)
}

func (a *testApp) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func browserGet(target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	return req
}

func apiGet(target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Accept", "application/json")
	return req
}

// formPost builds a browser form submission carrying a valid CSRF token.
func formPost(target string, form url.Values) *http.Request {
	form.Set(DefaultCSRFCookieName, testCSRFToken)
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/html")
	req.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: testCSRFToken})
	return req
}

func jsonPost(target, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func newRecorder(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
