package users

import (
	"context"
	"testing"

	"minder/internal/db"

	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newStore() *Store {
	return NewStore(db.NewMemory(), bcrypt.MinCost, clock.New())
}

func TestCreateAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	u, err := s.Create(ctx, " Admin ", "correct horse", true)
	require.NoError(t, err)
	assert.Equal(t, "admin", u.Username)
	assert.True(t, u.Enabled)
	assert.True(t, u.IsAdmin)
	assert.NotEqual(t, "correct horse", u.PasswordHash)

	got, err := s.Authenticate(ctx, "ADMIN", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.Authenticate(ctx, "admin", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Authenticate(ctx, "nobody", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreateRejects(t *testing.T) {
	ctx := context.Background()
	s := newStore()

	_, err := s.Create(ctx, "admin", "correct horse", false)
	require.NoError(t, err)
	_, err = s.Create(ctx, "admin", "another one", false)
	assert.ErrorIs(t, err, ErrUserExists)

	_, err = s.Create(ctx, "bob", "short", false)
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = s.Create(ctx, "  ", "correct horse", false)
	assert.Error(t, err)
}

func TestDisableAndPasswordChange(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	_, err := s.Create(ctx, "admin", "correct horse", true)
	require.NoError(t, err)

	require.NoError(t, s.SetEnabled(ctx, "admin", false))
	_, err = s.Authenticate(ctx, "admin", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, s.SetEnabled(ctx, "admin", true))
	require.NoError(t, s.SetPassword(ctx, "admin", "battery staple"))
	_, err = s.Authenticate(ctx, "admin", "battery staple")
	assert.NoError(t, err)

	assert.ErrorIs(t, s.SetPassword(ctx, "ghost", "battery staple"), ErrUserNotFound)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	for _, name := range []string{"carol", "alice", "bob"} {
		_, err := s.Create(ctx, name, "password123", false)
		require.NoError(t, err)
	}

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "alice", all[0].Username)
}
