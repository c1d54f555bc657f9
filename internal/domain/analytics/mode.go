package analytics

import (
	"github.com/google/uuid"
	"github.com/pharmalytics/backend/internal/domain/identity"
)

// QueryMode selects how "selection" and "market" are split in aggregate queries
type QueryMode int

const (
	// ModeUserScoped: selection is the caller's pharmacy, market is every other pharmacy
	ModeUserScoped QueryMode = iota
	// ModeAdminWithSelection: selection is the chosen pharmacies, market is the rest
	ModeAdminWithSelection
	// ModeAdminWithoutSelection: selection and market are the same aggregate
	ModeAdminWithoutSelection
)

// String returns the mode name used in logs and spans
func (m QueryMode) String() string {
	switch m {
	case ModeUserScoped:
		return "user_scoped"
	case ModeAdminWithSelection:
		return "admin_with_selection"
	case ModeAdminWithoutSelection:
		return "admin_without_selection"
	}
	return "unknown"
}

// HasMarketSplit reports whether selection and market are distinct populations
func (m QueryMode) HasMarketSplit() bool {
	return m != ModeAdminWithoutSelection
}

// SelectMode picks the query strategy from the caller role and the enforced scope
func SelectMode(sc *identity.SecurityContext, scope []uuid.UUID) QueryMode {
	if !sc.IsAdmin() {
		return ModeUserScoped
	}
	if len(scope) == 0 {
		return ModeAdminWithoutSelection
	}
	return ModeAdminWithSelection
}
