package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialExpiry reads the exp claim of a JWT bearer credential without verifying it.
// The signature is the backend's business; the client only needs to know when to refresh.
// ok is false for opaque (non-JWT) credentials or tokens without exp.
func CredentialExpiry(token string) (time.Time, bool) {
	token = strings.TrimSpace(token)
	if token == "" || strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
