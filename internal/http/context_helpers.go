package httpx

import (
	"context"

	domainauth "github.com/target/quiz-ui/internal/domain/auth"
)

// sessionKey is an unexported context key type to avoid collisions across packages.
// Centralized in this file so all handlers/middleware use the same key.
type sessionKey struct{}

// SetSessionInContext returns a child context that carries the session snapshot a guard
// evaluated for this request.
func SetSessionInContext(ctx context.Context, session domainauth.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// GetSessionFromContext returns the session snapshot and whether one was set.
func GetSessionFromContext(ctx context.Context) (domainauth.Session, bool) {
	session, ok := ctx.Value(sessionKey{}).(domainauth.Session)
	return session, ok
}

// IdentityFromContext returns the signed-in identity for the request, or nil.
func IdentityFromContext(ctx context.Context) *domainauth.Identity {
	if s, ok := GetSessionFromContext(ctx); ok {
		return s.Identity
	}
	return nil
}
