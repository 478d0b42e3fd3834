// Package session holds the process-wide authenticated identity and bearer credential.
// It persists them in durable storage, caches them in memory and signals every change
// (local or from another instance sharing the storage) through one subscription interface.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	domainauth "github.com/target/quiz-ui/internal/domain/auth"
	apperrors "github.com/target/quiz-ui/internal/errors"
	"github.com/target/quiz-ui/internal/ports"
)

// Keys names the two storage slots.
type Keys struct {
	Identity   string
	Credential string
}

// DefaultKeys returns the slot names used when none are configured.
func DefaultKeys() Keys {
	return Keys{Identity: "session", Credential: "auth:token"}
}

// Options groups dependencies for Store.
type Options struct {
	Storage ports.Storage
	Keys    Keys
	Logger  *slog.Logger
}

// Store is the single source of truth for the current identity and credential.
// Reads are served from memory; writes go through to storage before the cache changes.
type Store struct {
	storage ports.Storage
	keys    Keys
	logger  *slog.Logger
	changes Broadcaster

	mu         sync.RWMutex
	identity   *domainauth.Identity
	credential string
}

// New constructs a Store. Call Init to load persisted state.
func New(opts Options) *Store {
	keys := opts.Keys
	defaults := DefaultKeys()
	if keys.Identity == "" {
		keys.Identity = defaults.Identity
	}
	if keys.Credential == "" {
		keys.Credential = defaults.Credential
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{storage: opts.Storage, keys: keys, logger: logger}
}

// Keys returns the slot names this store uses.
func (s *Store) Keys() Keys { return s.keys }

// Init reads both slots from storage into memory. Unreadable data leaves the store
// anonymous; only storage transport failures are returned.
func (s *Store) Init(ctx context.Context) error {
	return s.reload(ctx)
}

func (s *Store) reload(ctx context.Context) error {
	identity, idErr := s.loadIdentity(ctx)
	credential, credErr := s.loadCredential(ctx)

	s.mu.Lock()
	if idErr == nil {
		s.identity = identity
	}
	if credErr == nil {
		s.credential = credential
	}
	s.mu.Unlock()

	return errors.Join(idErr, credErr)
}

func (s *Store) loadIdentity(ctx context.Context) (*domainauth.Identity, error) {
	raw, ok, err := s.storage.Get(ctx, s.keys.Identity)
	if err != nil {
		return nil, fmt.Errorf("read identity: %w", err)
	}
	if !ok {
		return nil, nil
	}

	identity, decodeErr := decodeIdentity(raw)
	if decodeErr != nil {
		s.logger.DebugContext(ctx, "stored identity unreadable, treating as signed out",
			"key", s.keys.Identity, "error", decodeErr)
		return nil, nil
	}
	return identity, nil
}

func (s *Store) loadCredential(ctx context.Context) (string, error) {
	raw, ok, err := s.storage.Get(ctx, s.keys.Credential)
	if err != nil {
		return "", fmt.Errorf("read credential: %w", err)
	}
	if !ok {
		return "", nil
	}
	return strings.TrimSpace(raw), nil
}

// decodeIdentity runs stored JSON through NormalizeUser so records written by older
// versions, or with missing fields, still come back with valid role and status.
func decodeIdentity(raw string) (*domainauth.Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, apperrors.MalformedState(err, "decode stored identity")
	}
	if fields == nil {
		return nil, nil
	}
	identity := domainauth.NormalizeUser(fields)
	return &identity, nil
}

// CurrentIdentity returns a copy of the current identity, or nil when signed out.
func (s *Store) CurrentIdentity() *domainauth.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	cp := *s.identity
	return &cp
}

// Credential returns the bearer token, or "" when absent.
func (s *Store) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential
}

// Snapshot returns identity and credential as one value.
func (s *Store) Snapshot() domainauth.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess := domainauth.Session{Credential: s.credential}
	if s.identity != nil {
		cp := *s.identity
		sess.Identity = &cp
	}
	return sess
}

// SetIdentity replaces the stored identity, or clears it when identity is nil,
// then notifies subscribers once. The identity is kept in its sanitized form. Nothing changes and nobody is notified if the
// storage write fails.
func (s *Store) SetIdentity(ctx context.Context, identity *domainauth.Identity) error {
	if identity == nil {
		if err := s.storage.Delete(ctx, s.keys.Identity); err != nil {
			return fmt.Errorf("clear identity: %w", err)
		}
		s.mu.Lock()
		s.identity = nil
		s.mu.Unlock()
		s.changes.Notify()
		return nil
	}

	cp := identity.Sanitized()
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	if err = s.storage.Set(ctx, s.keys.Identity, string(data)); err != nil {
		return fmt.Errorf("store identity: %w", err)
	}
	s.mu.Lock()
	s.identity = &cp
	s.mu.Unlock()
	s.changes.Notify()
	return nil
}

// SetCredential replaces the stored token, or clears it when token is empty,
// then notifies subscribers once.
func (s *Store) SetCredential(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	var err error
	if token == "" {
		err = s.storage.Delete(ctx, s.keys.Credential)
	} else {
		err = s.storage.Set(ctx, s.keys.Credential, token)
	}
	if err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	s.mu.Lock()
	s.credential = token
	s.mu.Unlock()
	s.changes.Notify()
	return nil
}

// Clear removes credential and identity. Both are attempted even if one fails.
func (s *Store) Clear(ctx context.Context) error {
	credErr := s.SetCredential(ctx, "")
	idErr := s.SetIdentity(ctx, nil)
	return errors.Join(credErr, idErr)
}

// AuthorizationHeader returns a header set carrying the bearer credential,
// or an empty set when there is none. Callers merge it into outgoing requests.
func (s *Store) AuthorizationHeader() http.Header {
	h := http.Header{}
	if token := s.Credential(); token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

// Subscribe registers fn for change notifications.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	return s.changes.Subscribe(fn)
}

// HandleStorageEvent is the input for changes made by other instances: the cache is
// re-read from storage and subscribers are notified once.
func (s *Store) HandleStorageEvent(ctx context.Context, ev ports.StorageEvent) {
	if err := s.reload(ctx); err != nil {
		s.logger.WarnContext(ctx, "reload session after storage event failed",
			"key", ev.Key, "origin", ev.Origin, "error", err)
	}
	s.changes.Notify()
}

// Watch feeds storage events from other instances into HandleStorageEvent until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	return s.storage.Watch(ctx, func(ev ports.StorageEvent) {
		s.HandleStorageEvent(ctx, ev)
	})
}
