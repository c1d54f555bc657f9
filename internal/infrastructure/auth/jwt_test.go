package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pharmalytics/backend/internal/domain/identity"
	"github.com/pharmalytics/backend/internal/domain/shared"
	"github.com/pharmalytics/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-at-least-32-chars"

func newTestJWTService() *JWTService {
	return NewJWTService(config.JWTConfig{
		Secret:                testSecret,
		AccessTokenExpiration: 15 * time.Minute,
		Issuer:                "test-issuer",
	})
}

func newUserInput() GenerateTokenInput {
	return GenerateTokenInput{
		UserID:     uuid.New(),
		Username:   "pharmacien",
		Role:       identity.RoleUser,
		PharmacyID: uuid.New(),
	}
}

// signRaw signs arbitrary claims with the test secret
func signRaw(t *testing.T, claims *Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func validRegistered() jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Issuer:    "test-issuer",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
}

func TestNewJWTService(t *testing.T) {
	cfg := config.JWTConfig{
		Secret:                "test-secret",
		AccessTokenExpiration: 15 * time.Minute,
		Issuer:                "test-issuer",
	}

	svc := NewJWTService(cfg)

	assert.Equal(t, []byte(cfg.Secret), svc.secret)
	assert.Equal(t, cfg.Issuer, svc.issuer)
	assert.Equal(t, cfg.AccessTokenExpiration, svc.GetAccessTokenExpiration())
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc := newTestJWTService()
	input := newUserInput()

	token, expiresAt, err := svc.GenerateToken(input)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, input.UserID.String(), claims.UserID)
	assert.Equal(t, input.Username, claims.Username)
	assert.Equal(t, "user", claims.Role)
	assert.Equal(t, input.PharmacyID.String(), claims.PharmacyID)
	assert.WithinDuration(t, expiresAt, claims.GetExpiresAtTime(), time.Second)
}

func TestParseToken(t *testing.T) {
	svc := newTestJWTService()

	t.Run("user", func(t *testing.T) {
		input := newUserInput()
		token, _, err := svc.GenerateToken(input)
		require.NoError(t, err)

		sc, err := svc.ParseToken(token)
		require.NoError(t, err)
		assert.Equal(t, input.UserID, sc.UserID())
		assert.Equal(t, identity.RoleUser, sc.Role())
		assert.Equal(t, input.PharmacyID, sc.PharmacyID())
		assert.False(t, sc.IsAdmin())
	})

	t.Run("admin", func(t *testing.T) {
		token, _, err := svc.GenerateToken(GenerateTokenInput{UserID: uuid.New(), Username: "siege", Role: identity.RoleAdmin})
		require.NoError(t, err)

		sc, err := svc.ParseToken(token)
		require.NoError(t, err)
		assert.True(t, sc.IsAdmin())
		assert.Equal(t, uuid.Nil, sc.PharmacyID())
	})
}

func TestParseToken_InconsistentClaims(t *testing.T) {
	svc := newTestJWTService()

	tests := []struct {
		name   string
		claims *Claims
	}{
		{"user without pharmacy", &Claims{RegisteredClaims: validRegistered(), UserID: uuid.NewString(), Role: "user"}},
		{"unknown role", &Claims{RegisteredClaims: validRegistered(), UserID: uuid.NewString(), Role: "superuser"}},
		{"malformed pharmacy id", &Claims{RegisteredClaims: validRegistered(), UserID: uuid.NewString(), Role: "user", PharmacyID: "not-a-uuid"}},
		{"malformed user id", &Claims{RegisteredClaims: validRegistered(), UserID: "42", Role: "admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, err := svc.ParseToken(signRaw(t, tt.claims))
			assert.Error(t, err)
			assert.Nil(t, sc)
		})
	}

	t.Run("unknown role is unauthorized", func(t *testing.T) {
		_, err := svc.ParseToken(signRaw(t, tests[1].claims))
		assert.True(t, errors.Is(err, shared.ErrUnauthorized))
	})
}

func TestValidateToken_MissingClaims(t *testing.T) {
	svc := newTestJWTService()

	_, err := svc.ValidateToken(signRaw(t, &Claims{RegisteredClaims: validRegistered(), Role: "admin"}))
	assert.ErrorIs(t, err, ErrMissingUserID)

	_, err = svc.ValidateToken(signRaw(t, &Claims{RegisteredClaims: validRegistered(), UserID: uuid.NewString()}))
	assert.ErrorIs(t, err, ErrMissingRole)
}

func TestValidateToken_ExpiredToken(t *testing.T) {
	svc := NewJWTService(config.JWTConfig{
		Secret:                testSecret,
		AccessTokenExpiration: -1 * time.Hour,
		Issuer:                "test-issuer",
	})
	token, _, err := svc.GenerateToken(newUserInput())
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateToken_InvalidToken(t *testing.T) {
	svc := newTestJWTService()

	_, err := svc.ValidateToken("invalid-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	other := NewJWTService(config.JWTConfig{
		Secret:                "another-secret-key-at-least-32-chars",
		AccessTokenExpiration: time.Hour,
		Issuer:                "test-issuer",
	})
	token, _, err := other.GenerateToken(newUserInput())
	require.NoError(t, err)

	_, err = newTestJWTService().ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_WrongIssuer(t *testing.T) {
	other := NewJWTService(config.JWTConfig{
		Secret:                testSecret,
		AccessTokenExpiration: time.Hour,
		Issuer:                "someone-else",
	})
	token, _, err := other.GenerateToken(newUserInput())
	require.NoError(t, err)

	_, err = newTestJWTService().ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_RejectsNoneAlgorithm(t *testing.T) {
	claims := &Claims{RegisteredClaims: validRegistered(), UserID: uuid.NewString(), Role: "admin"}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTestJWTService().ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
