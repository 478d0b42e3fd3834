// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.
package auth

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/target/quiz-ui/internal/errors"
	"github.com/target/quiz-ui/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthBackend = (*FakeBackend)(nil)
	_ ports.Storage     = (*FlakyStorage)(nil)
)

// FakeBackend simulates the quiz backend in memory. Users are registered with AddUser
// or Register; every login issues a deterministic token "<TokenPrefix>-<n>".
// Any *Func field overrides the built-in behavior.
type FakeBackend struct {
	LoginFunc    func(ctx context.Context, email, password string) (ports.LoginResult, error)
	RegisterFunc func(ctx context.Context, req ports.RegisterRequest) (string, error)
	RefreshFunc  func(ctx context.Context) (ports.LoginResult, error)
	LogoutFunc   func(ctx context.Context) error

	TokenPrefix string

	mu        sync.Mutex
	users     map[string]fakeUser
	current   string
	issued    int
	callCount map[string]int
}

type fakeUser struct {
	password string
	payload  map[string]any
}

// NewFakeBackend creates a FakeBackend with sensible defaults.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		TokenPrefix: "tok",
		users:       make(map[string]fakeUser),
		callCount:   make(map[string]int),
	}
}

// AddUser registers a user whose payload is returned verbatim by Login and Refresh.
func (f *FakeBackend) AddUser(email, password string, payload map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[email] = fakeUser{password: password, payload: payload}
}

// Calls returns how many times method was invoked.
func (f *FakeBackend) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callCount[method]
}

func (f *FakeBackend) record(method string) {
	f.mu.Lock()
	f.callCount[method]++
	f.mu.Unlock()
}

func (f *FakeBackend) Login(ctx context.Context, email, password string) (ports.LoginResult, error) {
	f.record("Login")
	if f.LoginFunc != nil {
		return f.LoginFunc(ctx, email, password)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok || u.password != password {
		return ports.LoginResult{}, apperrors.InvalidCredentials("Invalid credentials")
	}
	f.issued++
	f.current = email
	return ports.LoginResult{User: u.payload, Token: fmt.Sprintf("%s-%d", f.TokenPrefix, f.issued)}, nil
}

func (f *FakeBackend) Register(ctx context.Context, req ports.RegisterRequest) (string, error) {
	f.record("Register")
	if f.RegisterFunc != nil {
		return f.RegisterFunc(ctx, req)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.users[req.Email]; exists {
		return "", apperrors.Validation("Email already registered")
	}
	payload := map[string]any{
		"user_id":   fmt.Sprint(len(f.users) + 1),
		"email":     req.Email,
		"firstname": req.FirstName,
		"lastname":  req.LastName,
	}
	f.users[req.Email] = fakeUser{password: req.Password, payload: payload}
	return "User registered successfully", nil
}

func (f *FakeBackend) Refresh(ctx context.Context) (ports.LoginResult, error) {
	f.record("Refresh")
	if f.RefreshFunc != nil {
		return f.RefreshFunc(ctx)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[f.current]
	if f.current == "" || !ok {
		return ports.LoginResult{}, apperrors.Unauthorized("Unauthorized")
	}
	return ports.LoginResult{User: u.payload}, nil
}

func (f *FakeBackend) Logout(ctx context.Context) error {
	f.record("Logout")
	if f.LogoutFunc != nil {
		return f.LogoutFunc(ctx)
	}
	f.mu.Lock()
	f.current = ""
	f.mu.Unlock()
	return nil
}

// FlakyStorage wraps a storage and fails writes to keys listed in FailKeys.
type FlakyStorage struct {
	ports.Storage
	Err error

	mu       sync.Mutex
	failKeys map[string]bool
}

// NewFlakyStorage wraps inner. Writes succeed until FailWrites is called.
func NewFlakyStorage(inner ports.Storage, err error) *FlakyStorage {
	return &FlakyStorage{Storage: inner, Err: err, failKeys: make(map[string]bool)}
}

// FailWrites makes writes to keys fail; with no keys every write fails.
func (f *FlakyStorage) FailWrites(keys ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(keys) == 0 {
		f.failKeys["*"] = true
		return
	}
	for _, k := range keys {
		f.failKeys[k] = true
	}
}

// Heal makes all writes succeed again.
func (f *FlakyStorage) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failKeys = make(map[string]bool)
}

func (f *FlakyStorage) failing(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failKeys["*"] || f.failKeys[key]
}

func (f *FlakyStorage) Set(ctx context.Context, key, value string) error {
	if f.failing(key) {
		return f.Err
	}
	return f.Storage.Set(ctx, key, value)
}

func (f *FlakyStorage) Delete(ctx context.Context, key string) error {
	if f.failing(key) {
		return f.Err
	}
	return f.Storage.Delete(ctx, key)
}
