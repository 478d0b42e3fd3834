package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// StubBackend emulates the quiz backend's auth endpoints for tests.
// Responses follow the backend's wire shapes: {ok, data} on success and
// {detail} with a 4xx status on failure.
type StubBackend struct {
	Server *httptest.Server

	mu      sync.Mutex
	users   map[string]stubUser
	tokens  map[string]string // token -> email
	calls   map[string]int
	headers map[string]http.Header
	nextTok int

	// FixedToken, when set, is issued by every successful login.
	FixedToken string
}

type stubUser struct {
	password string
	user     map[string]any
}

// NewStubBackend starts a stub backend closed at test cleanup.
func NewStubBackend(t interface {
	Helper()
	Cleanup(func())
},
) *StubBackend {
	t.Helper()
	b := &StubBackend{
		users:   make(map[string]stubUser),
		tokens:  make(map[string]string),
		calls:   make(map[string]int),
		headers: make(map[string]http.Header),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", b.login)
	mux.HandleFunc("POST /auth/register", b.register)
	mux.HandleFunc("POST /auth/refresh", b.refresh)
	mux.HandleFunc("POST /auth/logout", b.logout)
	mux.HandleFunc("GET /quiz/history", b.history)

	b.Server = httptest.NewServer(b.record(mux))
	t.Cleanup(b.Server.Close)
	return b
}

// URL returns the backend base URL.
func (b *StubBackend) URL() string { return b.Server.URL }

// AddUser registers a user payload returned verbatim on login/refresh.
func (b *StubBackend) AddUser(email, password string, user map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[email] = stubUser{password: password, user: user}
}

// Revoke invalidates a token so that subsequent authenticated calls get 401.
func (b *StubBackend) Revoke(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tokens, token)
}

// Calls returns how many requests hit path.
func (b *StubBackend) Calls(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path]
}

// LastHeader returns the headers of the most recent request to path.
func (b *StubBackend) LastHeader(path string) http.Header {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.headers[path]
}

func (b *StubBackend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls[r.URL.Path]++
		b.headers[r.URL.Path] = r.Header.Clone()
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (b *StubBackend) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeStub(w, http.StatusUnprocessableEntity, map[string]any{"detail": "invalid body"})
		return
	}

	b.mu.Lock()
	u, ok := b.users[body.Email]
	if !ok || u.password != body.Password {
		b.mu.Unlock()
		writeStub(w, http.StatusBadRequest, map[string]any{"detail": "Invalid credentials"})
		return
	}
	token := b.FixedToken
	if token == "" {
		b.nextTok++
		token = fmt.Sprintf("tok-%d", b.nextTok)
	}
	b.tokens[token] = body.Email
	b.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: "token", Value: token, Path: "/", HttpOnly: true})
	writeStub(w, http.StatusOK, map[string]any{
		"ok":   true,
		"data": map[string]any{"user": u.user, "token": token},
	})
}

func (b *StubBackend) register(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeStub(w, http.StatusUnprocessableEntity, map[string]any{"detail": "invalid body"})
		return
	}
	email, _ := body["email"].(string)
	password, _ := body["password"].(string)
	if email == "" || password == "" {
		writeStub(w, http.StatusUnprocessableEntity, map[string]any{"detail": "email and password are required"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.users[email]; exists {
		writeStub(w, http.StatusBadRequest, map[string]any{"detail": "Email already registered"})
		return
	}
	b.users[email] = stubUser{password: password, user: map[string]any{
		"user_id":   len(b.users) + 1,
		"email":     email,
		"firstname": body["firstname"],
		"lastname":  body["lastname"],
		"is_admin":  false,
		"is_active": true,
	}}
	writeStub(w, http.StatusOK, map[string]any{"ok": true, "message": "User registered successfully"})
}

func (b *StubBackend) refresh(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	email, ok := b.tokens[requestToken(r)]
	var u stubUser
	if ok {
		u = b.users[email]
	}
	b.mu.Unlock()

	if !ok {
		writeStub(w, http.StatusUnauthorized, map[string]any{"detail": "Unauthorized"})
		return
	}
	writeStub(w, http.StatusOK, map[string]any{"ok": true, "data": map[string]any{"user": u.user}})
}

func (b *StubBackend) logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: "token", Value: "", Path: "/", MaxAge: -1})
	writeStub(w, http.StatusOK, map[string]any{"ok": true, "data": map[string]any{"message": "logged out"}})
}

func (b *StubBackend) history(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	_, ok := b.tokens[requestToken(r)]
	b.mu.Unlock()
	if !ok {
		writeStub(w, http.StatusUnauthorized, map[string]any{"detail": "Unauthorized"})
		return
	}
	writeStub(w, http.StatusOK, map[string]any{"ok": true, "data": []any{}})
}

func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return strings.TrimSpace(h[len("bearer "):])
	}
	if c, err := r.Cookie("token"); err == nil {
		return c.Value
	}
	return ""
}

func writeStub(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
