package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/voyagen/arematv/internal/session"
)

func newTestAuth(t *testing.T) *Auth {
	t.Helper()
	a := NewAuth(newEmptyStore(t), session.NewMemoryStore(time.Hour))
	a.cost = bcrypt.MinCost
	return a
}

func TestAuth_SignUpSignInSignOut(t *testing.T) {
	a := newTestAuth(t)
	ctx := context.Background()

	u, token, err := a.SignUp(ctx, "Viewer@Example.com", "passw0rd")
	require.NoError(t, err)
	assert.Equal(t, "viewer@example.com", u.Email)
	assert.NotEqual(t, "passw0rd", u.PasswordHash)
	require.NotEmpty(t, token)

	me, err := a.CurrentUser(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, me.ID)

	u2, token2, err := a.SignIn(ctx, "viewer@example.com", "passw0rd")
	require.NoError(t, err)
	assert.Equal(t, u.ID, u2.ID)
	assert.NotEqual(t, token, token2)

	require.NoError(t, a.SignOut(ctx, token))
	_, err = a.CurrentUser(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = a.CurrentUser(ctx, token2)
	assert.NoError(t, err)
}

func TestAuth_SignUpDuplicate(t *testing.T) {
	a := newTestAuth(t)
	ctx := context.Background()

	_, _, err := a.SignUp(ctx, "a@example.com", "passw0rd")
	require.NoError(t, err)
	_, _, err = a.SignUp(ctx, "A@example.com", "different1")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestAuth_SignUpValidation(t *testing.T) {
	a := newTestAuth(t)
	tests := []struct {
		name, email, password string
	}{
		{"empty email", "", "passw0rd"},
		{"not an address", "nope", "passw0rd"},
		{"display name", "Viewer <v@example.com>", "passw0rd"},
		{"short password", "v@example.com", "pa55"},
		{"no digit", "v@example.com", "password"},
		{"no letter", "v@example.com", "12345678"},
		{"too long", "v@example.com", "a1" + strings.Repeat("x", 71)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := a.SignUp(context.Background(), tt.email, tt.password)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestAuth_SignInFailures(t *testing.T) {
	a := newTestAuth(t)
	ctx := context.Background()
	_, _, err := a.SignUp(ctx, "a@example.com", "passw0rd")
	require.NoError(t, err)

	_, _, err = a.SignIn(ctx, "a@example.com", "wrong-pass1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = a.SignIn(ctx, "b@example.com", "passw0rd")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = a.SignIn(ctx, "garbage", "passw0rd")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuth_CurrentUserWithoutSession(t *testing.T) {
	a := newTestAuth(t)
	ctx := context.Background()

	_, err := a.CurrentUser(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = a.CurrentUser(ctx, "unknown-token")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.NoError(t, a.SignOut(ctx, ""))
}
