package httpx

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/target/quiz-ui/internal/apiclient"
	domainauth "github.com/target/quiz-ui/internal/domain/auth"
	"github.com/target/quiz-ui/internal/guard"
)

const (
	navStateCookie = "nav_state"
	navStateMaxAge = 5 * 60
)

// SessionSource yields the live session snapshot guards evaluate.
type SessionSource interface {
	Snapshot() domainauth.Session
}

// requestIDKey is an unexported context key type for the correlation id.
type requestIDKey struct{}

// RequestID ensures every request carries an X-Request-ID, echoing it on the response.
// The id stays on the inbound headers so proxied calls reuse it.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(apiclient.RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
				r.Header.Set(apiclient.RequestIDHeader, id)
			}
			w.Header().Set(apiclient.RequestIDHeader, id)
			ctx := context.WithValue(r.Context(), requestIDKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDFromContext returns the correlation id set by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", RequestIDFromContext(r.Context())),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach Flush on the underlying writer.
func (w *respWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// browserRequestKey is an unexported context key type for browser request detection.
type browserRequestKey struct{}

// BrowserDetection returns a middleware that detects browser requests vs API requests.
// Downstream handlers use it to choose between redirects/HTML and JSON responses.
func BrowserDetection() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), browserRequestKey{}, isBrowserRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IsBrowserRequest returns true if the current request is from a browser.
func IsBrowserRequest(r *http.Request) bool {
	if isBrowser, ok := r.Context().Value(browserRequestKey{}).(bool); ok {
		return isBrowser
	}
	return isBrowserRequest(r)
}

// isBrowserRequest treats /api/ paths and clients that do not accept HTML as API callers.
func isBrowserRequest(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return false
	}
	accept := r.Header.Get("Accept")
	if accept == "" {
		return true
	}
	return strings.Contains(accept, "text/html")
}

// GuardConfig binds a guard to the live session.
type GuardConfig struct {
	Guard        guard.Guard
	Sessions     SessionSource
	CookieDomain string
}

// Guarded evaluates the guard against the current session on every request. When the
// guard renders, the snapshot is placed in the request context. Otherwise browsers are
// redirected with 303 and the originally requested location is kept in the nav_state
// cookie; API callers get 401 when signed out and 403 when signed in.
func Guarded(cfg GuardConfig) func(http.Handler) http.Handler {
	if cfg.Guard == nil {
		panic("Guarded: Guard is required")
	}
	if cfg.Sessions == nil {
		panic("Guarded: Sessions is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := cfg.Sessions.Snapshot()
			d := cfg.Guard.Decide(sess, guard.Location{Path: r.URL.Path, RawQuery: r.URL.RawQuery})
			if d.Render {
				next.ServeHTTP(w, r.WithContext(SetSessionInContext(r.Context(), sess)))
				return
			}

			if !IsBrowserRequest(r) {
				writeGuardRejection(w, sess)
				return
			}

			if d.From != nil {
				setNavState(w, r, navStateParams{Domain: cfg.CookieDomain, From: d.From.String()})
			}
			http.Redirect(w, r, d.Redirect, http.StatusSeeOther)
		})
	}
}

func writeGuardRejection(w http.ResponseWriter, sess domainauth.Session) {
	if !sess.Authenticated() {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errors.New("authentication required"),
		})
		return
	}
	WriteError(w, ErrorParams{
		Code:    http.StatusForbidden,
		ErrCode: "insufficient_permissions",
		Err:     errors.New("insufficient permissions"),
	})
}

// navStateParams groups the values needed to set the nav_state cookie.
type navStateParams struct {
	Domain string
	From   string
}

func setNavState(w http.ResponseWriter, r *http.Request, p navStateParams) {
	http.SetCookie(w, &http.Cookie{
		Name:     navStateCookie,
		Value:    base64.RawURLEncoding.EncodeToString([]byte(p.From)),
		Path:     "/",
		Domain:   p.Domain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   navStateMaxAge,
	})
}

// consumeNavState returns the location saved by Guarded, or fallback, and clears the cookie.
func consumeNavState(w http.ResponseWriter, r *http.Request, p navStateParams) string {
	c, err := r.Cookie(navStateCookie)
	if err != nil {
		return p.From
	}
	clearCookie(w, r, clearCookieParams{Name: navStateCookie, Domain: p.Domain})

	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return p.From
	}
	return safeRedirectPath(string(raw), p.From)
}

// clearCookieParams groups the attributes needed to delete a cookie.
type clearCookieParams struct {
	Name   string
	Domain string
}

// clearCookie expires a cookie, mirroring the attributes used when it was set.
func clearCookie(w http.ResponseWriter, r *http.Request, p clearCookieParams) {
	http.SetCookie(w, &http.Cookie{
		Name:     p.Name,
		Value:    "",
		Path:     "/",
		Domain:   p.Domain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

// isSecureRequest reports TLS directly or via a proxy's X-Forwarded-Proto, which may be a
// comma-separated list.
func isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	for _, proto := range strings.Split(r.Header.Get("X-Forwarded-Proto"), ",") {
		if strings.EqualFold(strings.TrimSpace(proto), "https") {
			return true
		}
	}
	return false
}

// safeRedirectPath ensures the redirect is a same-origin relative path starting with "/".
// Returns fallback when invalid.
func safeRedirectPath(candidate, fallback string) string {
	if candidate == "" || strings.HasPrefix(candidate, "//") || strings.HasPrefix(candidate, "/\\") {
		return fallback
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return fallback
	}
	return candidate
}
