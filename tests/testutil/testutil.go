// Package testutil provides shared helpers for the analytics test suites:
// a sqlmock-backed GORM connection, deterministic ids, security contexts and
// signed bearer tokens.
package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pharmalytics/backend/internal/domain/identity"
	"github.com/pharmalytics/backend/internal/infrastructure/auth"
	"github.com/pharmalytics/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// TestJWTSecret signs the tokens issued by NewTestJWTService
const TestJWTSecret = "test-secret-key-that-is-at-least-32-chars"

// MockDB wraps a GORM database with sqlmock for testing.
type MockDB struct {
	DB    *gorm.DB
	Mock  sqlmock.Sqlmock
	SqlDB *sql.DB
}

// NewMockDB creates a mock database closed at the end of the test.
func NewMockDB(t *testing.T) *MockDB {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err, "Failed to create sqlmock")

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err, "Failed to open GORM connection")

	t.Cleanup(func() { _ = mockDB.Close() })
	return &MockDB{DB: gormDB, Mock: mock, SqlDB: mockDB}
}

// ExpectationsWereMet verifies that all expectations were met.
func (m *MockDB) ExpectationsWereMet(t *testing.T) {
	t.Helper()
	require.NoError(t, m.Mock.ExpectationsWereMet(), "Unmet database expectations")
}

// NewTestUUID generates a deterministic UUID from seed.
func NewTestUUID(seed string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed))
}

// AdminContext returns an admin security context.
func AdminContext(t *testing.T) *identity.SecurityContext {
	t.Helper()
	sc, err := identity.NewSecurityContext(NewTestUUID("admin"), "admin", identity.RoleAdmin, uuid.Nil)
	require.NoError(t, err)
	return sc
}

// UserContext returns the security context of a user bound to pharmacyID.
func UserContext(t *testing.T, pharmacyID uuid.UUID) *identity.SecurityContext {
	t.Helper()
	sc, err := identity.NewSecurityContext(NewTestUUID("user:"+pharmacyID.String()), "pharmacist", identity.RoleUser, pharmacyID)
	require.NoError(t, err)
	return sc
}

// NewTestJWTService returns a JWT service signing with TestJWTSecret.
func NewTestJWTService() *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{
		Secret:                TestJWTSecret,
		Issuer:                "pharmalytics-test",
		AccessTokenExpiration: time.Hour,
	})
}

// TokenFor signs a bearer token carrying sc.
func TokenFor(t *testing.T, svc *auth.JWTService, sc *identity.SecurityContext) string {
	t.Helper()
	token, _, err := svc.GenerateToken(auth.GenerateTokenInput{
		UserID:     sc.UserID(),
		Username:   sc.Username(),
		Role:       sc.Role(),
		PharmacyID: sc.PharmacyID(),
	})
	require.NoError(t, err)
	return token
}
