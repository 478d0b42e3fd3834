package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	domainauth "github.com/target/quiz-ui/internal/domain/auth"
	apperrors "github.com/target/quiz-ui/internal/errors"
	"github.com/target/quiz-ui/internal/observability/metrics"
	"github.com/target/quiz-ui/internal/ports"
)

const (
	defaultRefreshWindow  = 2 * time.Minute
	defaultRefreshTimeout = 30 * time.Second
	refreshFlightKey     = "refresh"
)

// SessionStore is the subset of session.Store the auth flows mutate.
type SessionStore interface {
	CurrentIdentity() *domainauth.Identity
	Credential() string
	SetIdentity(ctx context.Context, identity *domainauth.Identity) error
	SetCredential(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// AuthServiceConfig holds optional settings for AuthService.
type AuthServiceConfig struct {
	Logger  *slog.Logger
	Metrics *metrics.AuthMetrics
	// RefreshWindow is how close to credential expiry KeepAlive refreshes.
	RefreshWindow time.Duration
	// RefreshTimeout bounds the shared refresh request.
	RefreshTimeout time.Duration
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Backend ports.AuthBackend // Required
	Store   SessionStore      // Required
	Config  AuthServiceConfig // Optional
}

// AuthService runs the identity lifecycle (login, register, refresh, logout) against the
// backend and keeps the session store in step with the results.
type AuthService struct {
	backend ports.AuthBackend
	store   SessionStore
	logger  *slog.Logger
	metrics *metrics.AuthMetrics
	window  time.Duration
	timeout time.Duration
	now     func() time.Time

	// seq hands out tickets; a result is applied only while its ticket is the latest.
	seq     atomic.Uint64
	applyMu sync.Mutex
	flights singleflight.Group
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	if opts.Backend == nil {
		panic("AuthService: Backend is required")
	}
	if opts.Store == nil {
		panic("AuthService: Store is required")
	}

	logger := opts.Config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	window := opts.Config.RefreshWindow
	if window <= 0 {
		window = defaultRefreshWindow
	}
	timeout := opts.Config.RefreshTimeout
	if timeout <= 0 {
		timeout = defaultRefreshTimeout
	}
	now := opts.Config.Now
	if now == nil {
		now = time.Now
	}

	return &AuthService{
		backend: opts.Backend,
		store:   opts.Store,
		logger:  logger.With("component", "auth_service"),
		metrics: opts.Config.Metrics,
		window:  window,
		timeout: timeout,
		now:     now,
	}
}

func (s *AuthService) begin() uint64 { return s.seq.Add(1) }

func (s *AuthService) latest(ticket uint64) bool { return s.seq.Load() == ticket }

// Login authenticates with email and password. On success the identity and credential are
// stored, in that order, and the identity is returned. On failure the store is untouched.
func (s *AuthService) Login(ctx context.Context, email, password string) (domainauth.Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return domainauth.Identity{}, apperrors.ValidationField("email", "email is required")
	}
	if password == "" {
		return domainauth.Identity{}, apperrors.ValidationField("password", "password is required")
	}

	ticket := s.begin()
	start := s.now()
	res, err := s.backend.Login(ctx, email, password)
	if err != nil {
		s.metrics.ObserveOperation(metrics.OpLogin, start, metrics.ResultError, err)
		s.logger.InfoContext(ctx, "login failed", "email", email, "error_code", apperrors.GetCode(err))
		return domainauth.Identity{}, err
	}

	identity := domainauth.NormalizeUser(res.User)

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	if !s.latest(ticket) {
		s.metrics.ObserveOperation(metrics.OpLogin, start, metrics.ResultSuperseded, nil)
		s.logger.InfoContext(ctx, "discarding superseded login result", "email", email)
		return domainauth.Identity{}, apperrors.Superseded("login superseded by a newer auth operation")
	}

	if err = s.persist(ctx, &identity, res.Token); err != nil {
		s.metrics.ObserveOperation(metrics.OpLogin, start, metrics.ResultError, err)
		return domainauth.Identity{}, err
	}

	s.metrics.ObserveOperation(metrics.OpLogin, start, metrics.ResultSuccess, nil)
	s.logger.InfoContext(ctx, "login succeeded", "user_id", identity.ID, "role", identity.Role)
	return identity, nil
}

// persist writes identity then credential. If the credential write fails the identity
// write is rolled back so the store never holds half a session.
func (s *AuthService) persist(ctx context.Context, identity *domainauth.Identity, token string) error {
	if err := s.store.SetIdentity(ctx, identity); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "persist identity")
	}
	if err := s.store.SetCredential(ctx, token); err != nil {
		if clearErr := s.store.SetIdentity(ctx, nil); clearErr != nil {
			s.logger.WarnContext(ctx, "rollback identity after credential write failure", "error", clearErr)
		}
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "persist credential")
	}
	return nil
}

// RegisterInput holds the registration form. Active and Admin are optional requests.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Active    *bool
	Admin     *bool
}

// RegisterResult carries the backend's confirmation message.
type RegisterResult struct {
	Message string
}

// Register creates an account. It never touches the session.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return RegisterResult{}, apperrors.ValidationField("email", "email is required")
	}
	if in.Password == "" {
		return RegisterResult{}, apperrors.ValidationField("password", "password is required")
	}

	start := s.now()
	msg, err := s.backend.Register(ctx, ports.RegisterRequest{
		Email:     email,
		Password:  in.Password,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Active:    in.Active,
		Admin:     in.Admin,
	})
	if err != nil {
		s.metrics.ObserveOperation(metrics.OpRegister, start, metrics.ResultError, err)
		return RegisterResult{}, err
	}

	s.metrics.ObserveOperation(metrics.OpRegister, start, metrics.ResultSuccess, nil)
	s.logger.InfoContext(ctx, "registration accepted", "email", email)
	return RegisterResult{Message: msg}, nil
}

// Refresh re-validates the session with the backend. On success the new credential (when
// issued) and identity are stored and the identity returned. On any failure both slots are
// cleared and nil is returned.
//
// Concurrent callers share one backend request. It runs detached from the caller that
// started it, bounded by RefreshTimeout. A caller whose ctx ends first gets the current
// identity back and the shared request carries on for the others.
func (s *AuthService) Refresh(ctx context.Context) *domainauth.Identity {
	ch := s.flights.DoChan(refreshFlightKey, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.refresh(flightCtx), nil
	})

	select {
	case res := <-ch:
		identity, _ := res.Val.(*domainauth.Identity)
		if identity == nil {
			return nil
		}
		cp := *identity
		return &cp
	case <-ctx.Done():
		return s.store.CurrentIdentity()
	}
}

func (s *AuthService) refresh(ctx context.Context) *domainauth.Identity {
	ticket := s.begin()
	start := s.now()
	res, err := s.backend.Refresh(ctx)

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	if !s.latest(ticket) {
		s.metrics.ObserveOperation(metrics.OpRefresh, start, metrics.ResultSuperseded, nil)
		return s.store.CurrentIdentity()
	}

	if err != nil {
		s.metrics.ObserveOperation(metrics.OpRefresh, start, metrics.ResultError, err)
		s.logger.InfoContext(ctx, "session refresh failed, signing out", "error_code", apperrors.GetCode(err), "error", err)
		s.clear(ctx, "refresh_failed")
		return nil
	}

	identity := domainauth.NormalizeUser(res.User)
	if res.Token != "" {
		if err = s.store.SetCredential(ctx, res.Token); err != nil {
			s.metrics.ObserveOperation(metrics.OpRefresh, start, metrics.ResultError, err)
			s.logger.WarnContext(ctx, "persist refreshed credential failed", "error", err)
			s.clear(ctx, "refresh_failed")
			return nil
		}
	}
	if err = s.store.SetIdentity(ctx, &identity); err != nil {
		s.metrics.ObserveOperation(metrics.OpRefresh, start, metrics.ResultError, err)
		s.logger.WarnContext(ctx, "persist refreshed identity failed", "error", err)
		s.clear(ctx, "refresh_failed")
		return nil
	}

	s.metrics.ObserveOperation(metrics.OpRefresh, start, metrics.ResultSuccess, nil)
	return &identity
}

// Logout tells the backend to end the session (best effort) and then clears the store.
// Any login or refresh still in flight is discarded when it completes.
func (s *AuthService) Logout(ctx context.Context) error {
	s.begin()
	start := s.now()
	if err := s.backend.Logout(ctx); err != nil {
		s.metrics.ObserveOperation(metrics.OpLogout, start, metrics.ResultError, err)
		s.logger.WarnContext(ctx, "backend logout failed, clearing local session anyway", "error", err)
	} else {
		s.metrics.ObserveOperation(metrics.OpLogout, start, metrics.ResultSuccess, nil)
	}

	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	return s.clearErr(ctx, "logout")
}

// HandleUnauthorized clears the session after the backend rejected credential, the token
// the rejected request carried. It makes no backend call. It is a no-op when already
// signed out or when the session has moved on to a different credential since the
// request was sent.
func (s *AuthService) HandleUnauthorized(ctx context.Context, credential string) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	current := s.store.Credential()
	if s.store.CurrentIdentity() == nil && current == "" {
		return
	}
	if credential != current {
		s.logger.DebugContext(ctx, "ignoring 401 for a replaced credential")
		return
	}
	s.logger.InfoContext(ctx, "backend rejected credential, signing out")
	s.clear(ctx, metrics.OpUnauthorized)
}

func (s *AuthService) clear(ctx context.Context, reason string) {
	if err := s.clearErr(ctx, reason); err != nil {
		s.logger.WarnContext(ctx, "clear session failed", "reason", reason, "error", err)
	}
}

func (s *AuthService) clearErr(ctx context.Context, reason string) error {
	if err := s.store.Clear(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "clear session")
	}
	s.metrics.SessionClearedBy(reason)
	return nil
}

// RefreshIfExpiring refreshes when the stored credential is a JWT expiring within the
// refresh window. It reports whether a refresh was attempted.
func (s *AuthService) RefreshIfExpiring(ctx context.Context) bool {
	token := s.store.Credential()
	if token == "" {
		return false
	}
	exp, ok := domainauth.CredentialExpiry(token)
	if !ok {
		return false
	}
	if s.now().Add(s.window).Before(exp) {
		return false
	}
	s.logger.DebugContext(ctx, "credential near expiry, refreshing", "expires_at", exp)
	s.Refresh(ctx)
	return true
}

// KeepAlive checks the credential every interval and refreshes it before it expires.
// It returns when ctx is done.
func (s *AuthService) KeepAlive(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.RefreshIfExpiring(ctx)
		}
	}
}
