// Package identity holds the caller identity resolved for each analytics request.
package identity

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pharmalytics/backend/internal/domain/shared"
)

// Role is the visibility level of a caller
type Role string

const (
	// RoleAdmin sees every pharmacy of the chain
	RoleAdmin Role = "admin"
	// RoleUser is bound to a single home pharmacy
	RoleUser Role = "user"
)

// ParseRole parses a role claim, case-insensitively
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleUser:
		return RoleUser, nil
	default:
		return "", shared.ErrUnauthorized.WithMessage("unknown role: " + s)
	}
}

// SecurityContext is the resolved identity of the caller.
// It is built once per request and never mutated afterwards.
type SecurityContext struct {
	userID     uuid.UUID
	username   string
	role       Role
	pharmacyID uuid.UUID
}

// NewSecurityContext validates the role/pharmacy binding and builds a context.
// A user-role caller must have a home pharmacy; an admin never carries one.
func NewSecurityContext(userID uuid.UUID, username string, role Role, pharmacyID uuid.UUID) (*SecurityContext, error) {
	if userID == uuid.Nil {
		return nil, shared.ErrUnauthorized.WithMessage("missing user id")
	}
	switch role {
	case RoleAdmin:
		pharmacyID = uuid.Nil
	case RoleUser:
		if pharmacyID == uuid.Nil {
			return nil, shared.ErrUnauthorized.WithMessage("user is not bound to a pharmacy")
		}
	default:
		return nil, shared.ErrUnauthorized.WithMessage("unknown role: " + string(role))
	}
	return &SecurityContext{
		userID:     userID,
		username:   username,
		role:       role,
		pharmacyID: pharmacyID,
	}, nil
}

// UserID returns the caller's user id
func (s *SecurityContext) UserID() uuid.UUID { return s.userID }

// Username returns the caller's login name
func (s *SecurityContext) Username() string { return s.username }

// Role returns the caller's role
func (s *SecurityContext) Role() Role { return s.role }

// IsAdmin reports whether the caller has chain-wide visibility
func (s *SecurityContext) IsAdmin() bool { return s.role == RoleAdmin }

// PharmacyID returns the home pharmacy; uuid.Nil for admins
func (s *SecurityContext) PharmacyID() uuid.UUID { return s.pharmacyID }

type securityContextKey struct{}

// WithSecurityContext stores the security context in ctx
func WithSecurityContext(ctx context.Context, sc *SecurityContext) context.Context {
	return context.WithValue(ctx, securityContextKey{}, sc)
}

// FromContext returns the security context stored in ctx, if any
func FromContext(ctx context.Context) (*SecurityContext, bool) {
	sc, ok := ctx.Value(securityContextKey{}).(*SecurityContext)
	return sc, ok && sc != nil
}
