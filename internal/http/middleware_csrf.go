package httpx

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
)

const (
	// DefaultCSRFCookieName is the cookie (and form field) carrying the CSRF token.
	DefaultCSRFCookieName = "csrf_token"
	// DefaultCSRFHeaderName is the header scripts use to echo the token (canonical form).
	DefaultCSRFHeaderName = "X-Csrf-Token"

	csrfTokenBytes = 32
	csrfMaxAge     = 12 * 3600
)

// CSRFConfig holds configuration for CSRF protection middleware.
type CSRFConfig struct {
	CookieName   string
	HeaderName   string
	CookieDomain string
}

// CSRFProtection guards state-changing requests with the double-submit cookie pattern.
// A token cookie is issued when missing; POST and friends must echo it in the header or
// the csrf_token form field. Requests with a JSON body are exempt since they require a
// CORS preflight, which this server never grants.
func CSRFProtection(cfg CSRFConfig) func(http.Handler) http.Handler {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCSRFCookieName
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultCSRFHeaderName
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if c, err := r.Cookie(cfg.CookieName); err == nil {
				token = c.Value
			}

			fresh := token == ""
			if fresh {
				var err error
				if token, err = generateCSRFToken(); err != nil {
					http.Error(w, "unable to generate CSRF token", http.StatusInternalServerError)
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     cfg.CookieName,
					Value:    token,
					Path:     "/",
					Domain:   cfg.CookieDomain,
					HttpOnly: false, // scripts read it to set the header
					Secure:   isSecureRequest(r),
					SameSite: http.SameSiteStrictMode,
					MaxAge:   csrfMaxAge,
				})
			}

			r = r.WithContext(context.WithValue(r.Context(), csrfTokenKey{}, token))

			// A freshly issued token cannot match anything the client sent.
			if requiresCSRFValidation(r) && (fresh || !validCSRFToken(r, token, cfg)) {
				http.Error(w, "CSRF token validation failed", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func requiresCSRFValidation(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	}
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt != "application/json"
}

func generateCSRFToken() (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("csrf token generation failed: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// validCSRFToken compares the header, then the form field, against the cookie in
// constant time.
func validCSRFToken(r *http.Request, cookieToken string, cfg CSRFConfig) bool {
	submitted := r.Header.Get(cfg.HeaderName)
	if submitted == "" {
		if err := r.ParseForm(); err != nil {
			return false
		}
		submitted = r.PostFormValue(cfg.CookieName)
	}
	if submitted == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(cookieToken)) == 1
}

// csrfTokenKey is an unexported context key type for CSRF token storage.
type csrfTokenKey struct{}

// GetCSRFToken returns the token for templates to embed in forms.
func GetCSRFToken(r *http.Request) string {
	token, _ := r.Context().Value(csrfTokenKey{}).(string)
	return token
}
