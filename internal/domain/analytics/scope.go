package analytics

import (
	"slices"

	"github.com/google/uuid"
	"github.com/pharmalytics/backend/internal/domain/identity"
	"github.com/pharmalytics/backend/internal/domain/shared"
)

// EnforcedFilters is a filter set whose pharmacy scope has been checked
// against the caller's security context. It can only be built by Enforce,
// so every query path receives a scope that went through that check.
type EnforcedFilters struct {
	filters FilterSet
	role    identity.Role
	mode    QueryMode
}

// Enforce replaces the requested pharmacy scope according to the caller role:
// a user is always scoped to exactly their own pharmacy, whatever the request
// says; an admin keeps the requested set (empty means every pharmacy).
func Enforce(requested FilterSet, sc *identity.SecurityContext) (EnforcedFilters, error) {
	if sc == nil {
		return EnforcedFilters{}, shared.ErrUnauthorized
	}
	filters := requested.Clone()
	filters.Normalize()
	if sc.IsAdmin() {
		filters.SetPharmacies(filters.PharmacyIDs)
	} else {
		filters.SetPharmacies([]uuid.UUID{sc.PharmacyID()})
	}
	return EnforcedFilters{
		filters: filters,
		role:    sc.Role(),
		mode:    SelectMode(sc, filters.PharmacyIDs),
	}, nil
}

// Filters returns a copy of the enforced filter set
func (e EnforcedFilters) Filters() FilterSet {
	return e.filters.Clone()
}

// Scope returns the pharmacy ids actually used by queries
func (e EnforcedFilters) Scope() []uuid.UUID {
	return slices.Clone(e.filters.PharmacyIDs)
}

// Role returns the role the scope was enforced for
func (e EnforcedFilters) Role() identity.Role { return e.role }

// Mode returns the query strategy selected for this scope
func (e EnforcedFilters) Mode() QueryMode { return e.mode }

// Period returns the current analysis period
func (e EnforcedFilters) Period() DateRange { return e.filters.DateRange }

// ComparisonPeriod returns the comparison period (explicit or N-1)
func (e EnforcedFilters) ComparisonPeriod() DateRange { return e.filters.ComparisonPeriod() }
