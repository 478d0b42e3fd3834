// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters and internal/apiclient; orchestration in internal/service.
package ports

import (
	"context"
)

// StorageEvent reports that a slot was written by another instance sharing the same storage.
type StorageEvent struct {
	Key    string
	Origin string
}

// Storage is the durable key/value slot store backing a session.
// Instances sharing the same backing storage play the role of browser tabs.
type Storage interface {
	// Get returns the stored value and whether it was present.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set overwrites the slot.
	Set(ctx context.Context, key, value string) error
	// Delete removes the slot. Deleting an absent slot is not an error.
	Delete(ctx context.Context, key string) error
	// Watch blocks until ctx is done, calling fn for every write made by another instance.
	Watch(ctx context.Context, fn func(StorageEvent)) error
}

// LoginResult carries the raw user payload and bearer token returned by the backend.
// Token may be empty for refresh responses that rely on a cookie.
type LoginResult struct {
	User  map[string]any
	Token string
}

// RegisterRequest groups the registration fields. Active and Admin are requests;
// the backend decides whether to honor them.
type RegisterRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Active    *bool
	Admin     *bool
}

// AuthBackend performs the identity lifecycle round trips against the quiz backend.
// Errors are *errors.AppError values classified per operation.
type AuthBackend interface {
	Login(ctx context.Context, email, password string) (LoginResult, error)
	Register(ctx context.Context, req RegisterRequest) (message string, err error)
	Refresh(ctx context.Context) (LoginResult, error)
	Logout(ctx context.Context) error
}
