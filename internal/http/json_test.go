package httpx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/target/quiz-ui/internal/errors"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: apperrors.ValidationField("email", "email is required"), want: http.StatusBadRequest},
		{name: "invalid credentials", err: apperrors.InvalidCredentials("Invalid credentials"), want: http.StatusUnauthorized},
		{name: "unauthorized", err: apperrors.Unauthorized("Unauthorized"), want: http.StatusUnauthorized},
		{name: "superseded", err: apperrors.Superseded("later login"), want: http.StatusConflict},
		{name: "network", err: apperrors.Network(errors.New("dial"), "backend unavailable"), want: http.StatusBadGateway},
		{name: "plain error", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestWriteAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteAppError(rec, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal","message":"boom"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	WriteAppError(rec, apperrors.InvalidCredentials("Invalid credentials"))
	assert.JSONEq(t, `{"error":"invalid_credentials","message":"Invalid credentials"}`, rec.Body.String())
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "Invalid credentials", userMessage(apperrors.InvalidCredentials("Invalid credentials")))
	assert.Contains(t, userMessage(apperrors.Network(errors.New("dial"), "x")), "unavailable")
	assert.Contains(t, userMessage(errors.New("raw")), "Something went wrong")
}
