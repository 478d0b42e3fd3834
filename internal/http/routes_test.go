package httpx

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_LandingRedirects(t *testing.T) {
	app := newTestApp(t)

	rec := app.serve(browserGet("/"))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	app.login(t, "a@b.com", "secret1")
	rec = app.serve(apiGet("/"))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/home", rec.Header().Get("Location"))
}

func TestRouter_HomeRequiresSignIn(t *testing.T) {
	app := newTestApp(t)

	rec := app.serve(browserGet("/home?tab=2"))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"), "requested location never leaks into the redirect")

	nav := findCookie(rec, navStateCookie)
	require.NotNil(t, nav)
	assert.True(t, nav.HttpOnly)
	raw, err := base64.RawURLEncoding.DecodeString(nav.Value)
	require.NoError(t, err)
	assert.Equal(t, "/home?tab=2", string(raw))
}

func TestRouter_HomeAPIRequestGets401(t *testing.T) {
	app := newTestApp(t)

	rec := app.serve(apiGet("/home"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"authentication_required","message":"authentication required"}`, rec.Body.String())
	assert.Nil(t, findCookie(rec, navStateCookie))
}

func TestRouter_HomeRendersForSignedIn(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "a@b.com", "secret1")

	rec := app.serve(browserGet("/home"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Welcome, Ann Bee")
	assert.NotContains(t, rec.Body.String(), `href="/admin"`)
}

func TestRouter_GuardReevaluatesEveryRequest(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "a@b.com", "secret1")
	require.Equal(t, http.StatusOK, app.serve(browserGet("/home")).Code)

	require.NoError(t, app.svc.Logout(t.Context()))
	assert.Equal(t, http.StatusSeeOther, app.serve(browserGet("/home")).Code)
}

func TestRouter_AdminGuard(t *testing.T) {
	tests := []struct {
		name       string
		email      string
		password   string
		accept     string
		wantStatus int
		wantLoc    string
	}{
		{name: "anonymous browser", accept: "text/html", wantStatus: http.StatusSeeOther, wantLoc: "/login"},
		{name: "user browser goes home", email: "a@b.com", password: "secret1", accept: "text/html", wantStatus: http.StatusSeeOther, wantLoc: "/home"},
		{name: "user api forbidden", email: "a@b.com", password: "secret1", accept: "application/json", wantStatus: http.StatusForbidden},
		{name: "admin renders", email: "admin@b.com", password: "secret2", accept: "text/html", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t)
			if tt.email != "" {
				app.login(t, tt.email, tt.password)
			}

			req := browserGet("/admin")
			req.Header.Set("Accept", tt.accept)
			rec := app.serve(req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantLoc, rec.Header().Get("Location"))
			if tt.wantLoc == "/home" {
				assert.Nil(t, findCookie(rec, navStateCookie), "non-admins are sent home without a return location")
			}
		})
	}
}

func TestRouter_LoginReturnsToSavedLocation(t *testing.T) {
	app := newTestApp(t)

	guarded := app.serve(browserGet("/admin?view=users"))
	nav := findCookie(guarded, navStateCookie)
	require.NotNil(t, nav)

	req := formPost("/login", url.Values{"email": {"admin@b.com"}, "password": {"secret2"}})
	req.AddCookie(nav)
	rec := app.serve(req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin?view=users", rec.Header().Get("Location"))
	cleared := findCookie(rec, navStateCookie)
	require.NotNil(t, cleared)
	assert.Negative(t, cleared.MaxAge)

	require.NotNil(t, app.store.CurrentIdentity())
	assert.True(t, app.store.CurrentIdentity().IsAdmin())
}

func TestRouter_LoginIgnoresOffsiteNavState(t *testing.T) {
	app := newTestApp(t)

	req := formPost("/login", url.Values{"email": {"a@b.com"}, "password": {"secret1"}})
	req.AddCookie(&http.Cookie{Name: navStateCookie, Value: base64.RawURLEncoding.EncodeToString([]byte("//evil.example/x"))})
	rec := app.serve(req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/home", rec.Header().Get("Location"))
}

func TestRouter_LoginFailureRendersFormAndLeavesSession(t *testing.T) {
	app := newTestApp(t)

	rec := app.serve(formPost("/login", url.Values{"email": {"a@b.com"}, "password": {"nope"}}))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid credentials")
	assert.Contains(t, rec.Body.String(), `value="a@b.com"`)
	assert.Nil(t, app.store.CurrentIdentity())
	assert.Empty(t, app.store.Credential())
}

func TestRouter_LoginJSON(t *testing.T) {
	app := newTestApp(t)

	rec := app.serve(jsonPost("/login", `{"email":"a@b.com","password":"secret1"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		User struct {
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
		RedirectTo string `json:"redirect_to"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "a@b.com", body.User.Email)
	assert.Equal(t, "user", body.User.Role)
	assert.Equal(t, "/home", body.RedirectTo)
}

func TestRouter_LoginJSONValidation(t *testing.T) {
	app := newTestApp(t)

	rec := app.serve(jsonPost("/login", `{"email":"","password":"x"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"validation"`)
	assert.Zero(t, app.stub.Calls("/auth/login"))
}

func TestRouter_LoginPageRedirectsWhenSignedIn(t *testing.T) {
	app := newTestApp(t)

	rec := app.serve(browserGet("/login"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="csrf_token"`)

	app.login(t, "a@b.com", "secret1")
	rec = app.serve(browserGet("/login"))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/home", rec.Header().Get("Location"))
}

func TestRouter_RegisterThenLogin(t *testing.T) {
	app := newTestApp(t)

	rec := app.serve(formPost("/register", url.Values{
		"email": {"new@b.com"}, "password": {"pw"}, "firstname": {"New"}, "lastname": {"User"},
	}))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?registered=1", rec.Header().Get("Location"))
	assert.Nil(t, app.store.CurrentIdentity(), "registration never signs in")

	page := app.serve(browserGet("/login?registered=1"))
	assert.Contains(t, page.Body.String(), "Registration complete")

	app.login(t, "new@b.com", "pw")
	assert.Equal(t, "New User", app.store.CurrentIdentity().FullName)
}

func TestRouter_RegisterDuplicate(t *testing.T) {
	app := newTestApp(t)

	rec := app.serve(jsonPost("/register", `{"email":"a@b.com","password":"pw"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Email already registered")

	rec = app.serve(formPost("/register", url.Values{"email": {"a@b.com"}, "password": {"pw"}, "firstname": {"Dup"}}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Email already registered")
	assert.Contains(t, rec.Body.String(), `value="Dup"`)
}

func TestRouter_Logout(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "a@b.com", "secret1")

	rec := app.serve(formPost("/logout", url.Values{}))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.Nil(t, app.store.CurrentIdentity())
	assert.Empty(t, app.store.Credential())
	assert.Equal(t, 1, app.stub.Calls("/auth/logout"))

	// Signing out twice is harmless.
	rec = app.serve(jsonPost("/logout", `{}`))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_FormPostWithoutCSRFIsRejected(t *testing.T) {
	app := newTestApp(t)

	req := formPost("/login", url.Values{"email": {"a@b.com"}, "password": {"secret1"}})
	req.Header.Del("Cookie")
	rec := app.serve(req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Nil(t, app.store.CurrentIdentity())
	assert.NotNil(t, findCookie(rec, DefaultCSRFCookieName))
}

func TestRouter_StatusNeverExposesCredential(t *testing.T) {
	app := newTestApp(t)

	rec := app.serve(apiGet("/auth/status"))
	assert.JSONEq(t, `{"authenticated":false,"state":"anonymous"}`, rec.Body.String())

	app.login(t, "admin@b.com", "secret2")
	rec = app.serve(apiGet("/auth/status"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"authenticated_admin"`)
	assert.NotContains(t, rec.Body.String(), app.store.Credential())
}

func TestRouter_RefreshEndpoint(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "a@b.com", "secret1")

	rec := app.serve(jsonPost("/auth/refresh", ``))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"authenticated":true`)

	app.stub.Revoke(app.store.Credential())
	rec = app.serve(jsonPost("/auth/refresh", ``))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"authenticated":false`)
	assert.Nil(t, app.store.CurrentIdentity())
}

func TestRouter_Healthz(t *testing.T) {
	app := newTestApp(t)

	rec := app.serve(apiGet("/healthz"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouter_MetricsOnlyWhenConfigured(t *testing.T) {
	app := newTestApp(t)
	assert.Equal(t, http.StatusNotFound, app.serve(apiGet("/metrics")).Code)

	handler := NewRouter(RouterServices{
		Auth:     app.svc,
		Sessions: app.store,
		Renderer: requireTemplateRenderer(t),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("quiz_ui_up 1\n"))
		}),
	})
	rec := newRecorder(handler, apiGet("/metrics"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, newRecorder(handler, apiGet("/api/quiz/history")).Code, "proxy is off without a client")
}
