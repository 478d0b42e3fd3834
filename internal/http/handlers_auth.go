package httpx

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	domainauth "github.com/target/quiz-ui/internal/domain/auth"
	apperrors "github.com/target/quiz-ui/internal/errors"
	"github.com/target/quiz-ui/internal/guard"
	"github.com/target/quiz-ui/internal/service"
)

// AuthServiceInterface defines the auth operations the handlers drive.
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password string) (domainauth.Identity, error)
	Register(ctx context.Context, in service.RegisterInput) (service.RegisterResult, error)
	Refresh(ctx context.Context) *domainauth.Identity
	Logout(ctx context.Context) error
}

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Svc          AuthServiceInterface
	Sessions     SessionSource
	Renderer     *TemplateRenderer
	Paths        guard.Paths
	CookieDomain string
	Logger       *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *AuthHandlers) loginPath() string {
	if h.Paths.Login != "" {
		return h.Paths.Login
	}
	return guard.DefaultLoginPath
}

func (h *AuthHandlers) homePath() string {
	if h.Paths.Home != "" {
		return h.Paths.Home
	}
	return guard.DefaultHomePath
}

func (h *AuthHandlers) pageData(r *http.Request, page, title string) PageData {
	sess := h.Sessions.Snapshot()
	return PageData{
		Title:     title,
		Page:      page,
		State:     sess.State().String(),
		Identity:  sess.Identity,
		CSRF:      GetCSRFToken(r),
		LoginPath: h.loginPath(),
		HomePath:  h.homePath(),
	}
}

// credentials is the login request body for JSON callers.
type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// registration is the register request body for JSON callers.
type registration struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Active    *bool  `json:"active,omitempty"`
	Admin     *bool  `json:"admin,omitempty"`
}

func isJSONBody(r *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt == "application/json"
}

// LoginPage renders the sign-in form. Signed-in visitors go straight home.
// GET /login.
func (h *AuthHandlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	if h.Sessions.Snapshot().Authenticated() {
		http.Redirect(w, r, h.homePath(), http.StatusSeeOther)
		return
	}
	data := h.pageData(r, PageLogin, "Sign in")
	if r.URL.Query().Get("registered") == "1" {
		data.Message = "Registration complete. You can sign in now."
	}
	h.Renderer.Render(w, http.StatusOK, data)
}

// Login signs in with email and password and, for browsers, returns the user to the page
// a guard sent them away from.
// POST /login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if isJSONBody(r) {
		if !DecodeJSON(w, r, &in) {
			return
		}
	} else {
		in.Email = r.PostFormValue("email")
		in.Password = r.PostFormValue("password")
	}

	identity, err := h.Svc.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		h.logger().InfoContext(r.Context(), "login rejected", "error_code", apperrors.GetCode(err))
		if !IsBrowserRequest(r) {
			WriteAppError(w, err)
			return
		}
		data := h.pageData(r, PageLogin, "Sign in")
		data.Error = userMessage(err)
		data.Email = strings.TrimSpace(in.Email)
		h.Renderer.Render(w, StatusFor(err), data)
		return
	}

	target := consumeNavState(w, r, navStateParams{Domain: h.CookieDomain, From: h.homePath()})
	if !IsBrowserRequest(r) {
		WriteJSON(w, http.StatusOK, map[string]any{
			"user":        identity,
			"redirect_to": target,
		})
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// RegisterPage renders the registration form.
// GET /register.
func (h *AuthHandlers) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.Renderer.Render(w, http.StatusOK, h.pageData(r, PageRegister, "Register"))
}

// Register creates an account without signing in.
// POST /register.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var in registration
	if isJSONBody(r) {
		if !DecodeJSON(w, r, &in) {
			return
		}
	} else {
		in.Email = r.PostFormValue("email")
		in.Password = r.PostFormValue("password")
		in.FirstName = r.PostFormValue("firstname")
		in.LastName = r.PostFormValue("lastname")
		in.Active = formBool(r, "active")
		in.Admin = formBool(r, "admin")
	}

	res, err := h.Svc.Register(r.Context(), service.RegisterInput{
		Email:     in.Email,
		Password:  in.Password,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Active:    in.Active,
		Admin:     in.Admin,
	})
	if err != nil {
		if !IsBrowserRequest(r) {
			WriteAppError(w, err)
			return
		}
		data := h.pageData(r, PageRegister, "Register")
		data.Error = userMessage(err)
		data.Email = strings.TrimSpace(in.Email)
		data.Form = RegisterForm{FirstName: in.FirstName, LastName: in.LastName}
		h.Renderer.Render(w, StatusFor(err), data)
		return
	}

	if !IsBrowserRequest(r) {
		WriteJSON(w, http.StatusCreated, map[string]string{"message": res.Message})
		return
	}
	http.Redirect(w, r, h.loginPath()+"?registered=1", http.StatusSeeOther)
}

func formBool(r *http.Request, key string) *bool {
	raw := r.PostFormValue(key)
	if raw == "" {
		return nil
	}
	if raw == "on" {
		v := true
		return &v
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}

// Logout ends the session. The local session is cleared even if the backend call fails.
// POST /logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Logout(r.Context()); err != nil {
		h.logger().ErrorContext(r.Context(), "logout failed to clear session", "error", err)
		if !IsBrowserRequest(r) {
			WriteAppError(w, err)
			return
		}
		http.Error(w, "Sign out failed", http.StatusInternalServerError)
		return
	}

	clearCookie(w, r, clearCookieParams{Name: navStateCookie, Domain: h.CookieDomain})
	if !IsBrowserRequest(r) {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":      "success",
			"redirect_to": h.loginPath(),
		})
		return
	}
	http.Redirect(w, r, h.loginPath(), http.StatusSeeOther)
}

// Refresh re-validates the session with the backend.
// POST /auth/refresh.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	h.Svc.Refresh(r.Context())
	WriteJSON(w, http.StatusOK, statusBody(h.Sessions.Snapshot()))
}

// Status returns the current authentication status.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, statusBody(h.Sessions.Snapshot()))
}

// statusBody never includes the credential.
func statusBody(sess domainauth.Session) map[string]any {
	body := map[string]any{
		"authenticated": sess.Authenticated(),
		"state":         sess.State().String(),
	}
	if sess.Identity != nil {
		body["user"] = sess.Identity
	}
	return body
}

// userMessage turns an operation error into text fit for the sign-in pages.
func userMessage(err error) string {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeNetwork:
		return "The quiz service is unavailable. Please try again."
	case apperrors.ErrCodeSuperseded:
		return "Sign-in was interrupted. Please try again."
	case apperrors.ErrCodeInternal, "":
		return "Something went wrong. Please try again."
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}
