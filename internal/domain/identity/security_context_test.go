package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/pharmalytics/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Admin ")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)

	r, err = ParseRole("user")
	require.NoError(t, err)
	assert.Equal(t, RoleUser, r)

	_, err = ParseRole("superuser")
	assert.True(t, errors.Is(err, shared.ErrUnauthorized))
}

func TestNewSecurityContext(t *testing.T) {
	userID := uuid.New()
	pharmacyID := uuid.New()

	t.Run("user requires pharmacy", func(t *testing.T) {
		_, err := NewSecurityContext(userID, "jdoe", RoleUser, uuid.Nil)
		assert.True(t, errors.Is(err, shared.ErrUnauthorized))
	})

	t.Run("user keeps pharmacy", func(t *testing.T) {
		sc, err := NewSecurityContext(userID, "jdoe", RoleUser, pharmacyID)
		require.NoError(t, err)
		assert.False(t, sc.IsAdmin())
		assert.Equal(t, pharmacyID, sc.PharmacyID())
		assert.Equal(t, userID, sc.UserID())
	})

	t.Run("admin drops pharmacy binding", func(t *testing.T) {
		sc, err := NewSecurityContext(userID, "root", RoleAdmin, pharmacyID)
		require.NoError(t, err)
		assert.True(t, sc.IsAdmin())
		assert.Equal(t, uuid.Nil, sc.PharmacyID())
	})

	t.Run("missing user id", func(t *testing.T) {
		_, err := NewSecurityContext(uuid.Nil, "x", RoleAdmin, uuid.Nil)
		assert.Error(t, err)
	})
}

func TestSecurityContextInContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	sc, err := NewSecurityContext(uuid.New(), "root", RoleAdmin, uuid.Nil)
	require.NoError(t, err)
	got, ok := FromContext(WithSecurityContext(context.Background(), sc))
	require.True(t, ok)
	assert.Same(t, sc, got)
}
