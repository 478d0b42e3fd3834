package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/quiz-ui/internal/adapters/memory"
	apperrors "github.com/target/quiz-ui/internal/errors"
	"github.com/target/quiz-ui/internal/ports"
)

func TestFakeBackend_LoginIssuesSequentialTokens(t *testing.T) {
	backend := NewFakeBackend()
	backend.AddUser("a@b.com", "secret1", map[string]any{"email": "a@b.com"})
	ctx := context.Background()

	first, err := backend.Login(ctx, "a@b.com", "secret1")
	require.NoError(t, err)
	second, err := backend.Login(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	assert.Equal(t, "tok-1", first.Token)
	assert.Equal(t, "tok-2", second.Token)
	assert.Equal(t, 2, backend.Calls("Login"))
}

func TestFakeBackend_LoginRejectsBadPassword(t *testing.T) {
	backend := NewFakeBackend()
	backend.AddUser("a@b.com", "secret1", nil)

	_, err := backend.Login(context.Background(), "a@b.com", "nope")
	assert.True(t, apperrors.IsInvalidCredentials(err))
}

func TestFakeBackend_RefreshRequiresLogin(t *testing.T) {
	backend := NewFakeBackend()
	backend.AddUser("a@b.com", "secret1", map[string]any{"email": "a@b.com"})
	ctx := context.Background()

	_, err := backend.Refresh(ctx)
	assert.True(t, apperrors.IsUnauthorized(err))

	_, err = backend.Login(ctx, "a@b.com", "secret1")
	require.NoError(t, err)
	res, err := backend.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", res.User["email"])

	require.NoError(t, backend.Logout(ctx))
	_, err = backend.Refresh(ctx)
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestFakeBackend_RegisterDuplicate(t *testing.T) {
	backend := NewFakeBackend()
	ctx := context.Background()

	_, err := backend.Register(ctx, ports.RegisterRequest{Email: "n@b.com", Password: "pw"})
	require.NoError(t, err)
	_, err = backend.Register(ctx, ports.RegisterRequest{Email: "n@b.com", Password: "pw"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestFakeBackend_FuncOverride(t *testing.T) {
	backend := NewFakeBackend()
	boom := errors.New("boom")
	backend.LogoutFunc = func(context.Context) error { return boom }

	assert.ErrorIs(t, backend.Logout(context.Background()), boom)
	assert.Equal(t, 1, backend.Calls("Logout"))
}

func TestFlakyStorage_FailWrites(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("quota exceeded")
	storage := NewFlakyStorage(memory.NewBacking().Storage("tab"), boom)

	require.NoError(t, storage.Set(ctx, "session", "v1"))

	storage.FailWrites("auth:token")
	require.NoError(t, storage.Set(ctx, "session", "v2"))
	assert.ErrorIs(t, storage.Set(ctx, "auth:token", "t"), boom)

	storage.FailWrites()
	assert.ErrorIs(t, storage.Delete(ctx, "session"), boom)

	storage.Heal()
	require.NoError(t, storage.Delete(ctx, "session"))
	_, ok, err := storage.Get(ctx, "session")
	require.NoError(t, err)
	assert.False(t, ok)
}
