package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pharmalytics/backend/internal/domain/identity"
	"github.com/pharmalytics/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// JWT context keys
const (
	SecurityContextKey = "security_context"
	AuthHeaderKey      = "Authorization"
	BearerPrefix       = "Bearer "
)

// TokenParser resolves a bearer token into the caller's security context
type TokenParser interface {
	ParseToken(token string) (*identity.SecurityContext, error)
}

// JWTMiddlewareConfig holds configuration for JWT middleware
type JWTMiddlewareConfig struct {
	// Parser is required for token validation
	Parser TokenParser
	// Logger for middleware logging
	Logger *zap.Logger
}

// JWTAuth resolves the security context of the request. A request without a
// valid token continues without one; handlers answer 401 when they need it.
func JWTAuth(cfg JWTMiddlewareConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}

		sc, err := cfg.Parser.ParseToken(tokenString)
		if err != nil {
			log.Warn("JWT authentication failed",
				zap.Error(err),
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", GetRequestID(c)),
			)
			c.Next()
			return
		}

		c.Set(SecurityContextKey, sc)
		ctx := identity.WithSecurityContext(c.Request.Context(), sc)
		ctx = logger.WithUserID(ctx, sc.UserID().String())
		ctx = logger.WithRole(ctx, string(sc.Role()))
		if !sc.IsAdmin() {
			ctx = logger.WithPharmacyID(ctx, sc.PharmacyID().String())
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// bearerToken extracts the token of an "Authorization: Bearer <token>" header
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader(AuthHeaderKey)
	if !strings.HasPrefix(authHeader, BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, BearerPrefix))
	return token, token != ""
}

// SecurityContextFrom returns the security context resolved for the request, if any
func SecurityContextFrom(c *gin.Context) (*identity.SecurityContext, bool) {
	if v, exists := c.Get(SecurityContextKey); exists {
		if sc, ok := v.(*identity.SecurityContext); ok && sc != nil {
			return sc, true
		}
	}
	return identity.FromContext(c.Request.Context())
}

// RequireAdmin rejects requests without a security context (401) or from
// non-admin callers (403).
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		sc, ok := SecurityContextFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		if !sc.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden: admin role required"})
			return
		}
		c.Next()
	}
}
