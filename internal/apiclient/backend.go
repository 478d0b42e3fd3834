package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	apperrors "github.com/target/quiz-ui/internal/errors"
	"github.com/target/quiz-ui/internal/ports"
)

const defaultRegisterMessage = "User registered successfully"

// Backend implements ports.AuthBackend against the quiz backend's /auth endpoints.
type Backend struct {
	client *Client
}

var _ ports.AuthBackend = (*Backend)(nil)

// NewBackend wraps client.
func NewBackend(client *Client) *Backend {
	return &Backend{client: client}
}

type authData struct {
	User  map[string]any `json:"user"`
	Token string         `json:"token"`
}

// Login exchanges credentials for a user payload and bearer token. Rejections are
// invalid_credentials; server failures, transport errors and answers missing the user
// or the token are network.
func (b *Backend) Login(ctx context.Context, email, password string) (ports.LoginResult, error) {
	body := map[string]string{"email": email, "password": password}
	res, err := b.client.Do(ctx, http.MethodPost, "/auth/login", body, WithoutUnauthorizedHook())
	if err != nil {
		return ports.LoginResult{}, classify(err, func(se *StatusError) error {
			e := apperrors.InvalidCredentials(se.Message)
			e.Status = se.Status
			return e
		})
	}

	data, err := decodeAuthData(res)
	if err != nil {
		return ports.LoginResult{}, err
	}
	if data.User == nil {
		return ports.LoginResult{}, apperrors.Network(nil, "login response carried no user")
	}
	token := strings.TrimSpace(data.Token)
	if token == "" {
		return ports.LoginResult{}, apperrors.Network(nil, "login response carried no token")
	}
	return ports.LoginResult{User: data.User, Token: token}, nil
}

// Register creates an account. Field names are sent in both casings the backend has
// accepted over time.
func (b *Backend) Register(ctx context.Context, req ports.RegisterRequest) (string, error) {
	body := map[string]any{
		"email":    req.Email,
		"password": req.Password,
	}
	if req.FirstName != "" {
		body["firstName"] = req.FirstName
		body["firstname"] = req.FirstName
	}
	if req.LastName != "" {
		body["lastName"] = req.LastName
		body["lastname"] = req.LastName
	}
	if req.Active != nil {
		body["isActive"] = *req.Active
		body["is_active"] = *req.Active
	}
	if req.Admin != nil {
		body["isAdmin"] = *req.Admin
		body["is_admin"] = *req.Admin
	}

	res, err := b.client.Do(ctx, http.MethodPost, "/auth/register", body, WithoutUnauthorizedHook())
	if err != nil {
		return "", classify(err, func(se *StatusError) error {
			e := apperrors.Validation(se.Message)
			e.Status = se.Status
			return e
		})
	}

	msg := strings.TrimSpace(res.Message)
	if msg == "" {
		msg = defaultRegisterMessage
	}
	return msg, nil
}

// Refresh asks the backend to re-issue the session using the bearer header or the
// refresh cookie. Token is empty when the backend relies on the cookie alone.
func (b *Backend) Refresh(ctx context.Context) (ports.LoginResult, error) {
	res, err := b.client.Do(ctx, http.MethodPost, "/auth/refresh", nil)
	if err != nil {
		return ports.LoginResult{}, classify(err, rejection)
	}
	data, err := decodeAuthData(res)
	if err != nil {
		return ports.LoginResult{}, err
	}
	if data.User == nil {
		return ports.LoginResult{}, apperrors.Network(nil, "refresh response carried no user")
	}
	return ports.LoginResult{User: data.User, Token: strings.TrimSpace(data.Token)}, nil
}

// Logout tells the backend to drop the session.
func (b *Backend) Logout(ctx context.Context) error {
	_, err := b.client.Do(ctx, http.MethodPost, "/auth/logout", nil, WithoutUnauthorizedHook())
	if err != nil {
		return classify(err, rejection)
	}
	return nil
}

func decodeAuthData(res *Result) (authData, error) {
	var data authData
	if err := json.Unmarshal(res.Data, &data); err != nil {
		return authData{}, apperrors.Network(err, "decode auth response")
	}
	return data, nil
}

// classify maps Do errors onto the auth error taxonomy. onClient decides what a 4xx or
// ok:false rejection means for the calling operation.
func classify(err error, onClient func(*StatusError) error) error {
	var se *StatusError
	if !errors.As(err, &se) {
		return err
	}
	if !se.ClientError() {
		e := apperrors.Network(se, "backend unavailable")
		e.Status = se.Status
		return e
	}
	return onClient(se)
}

func rejection(se *StatusError) error {
	if se.Status == http.StatusUnauthorized {
		return apperrors.Unauthorized(se.Message)
	}
	e := apperrors.Wrap(se, apperrors.ErrCodeValidation, se.Message)
	e.Status = se.Status
	return e
}
