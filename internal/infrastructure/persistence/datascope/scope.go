// Package datascope binds the enforced pharmacy scope of an analytics request
// to SQL predicates.
//
// Each query mode yields a selection predicate and a market predicate over a
// pharmacy column:
//   - user scoped: selection = own pharmacy, market = every other pharmacy
//   - admin with selection: selection = chosen pharmacies, market = the rest
//   - admin without selection: both are TRUE
//
// Usage:
//
//	split, err := datascope.Bind(filters, datascope.ColumnSalesPharmacy)
//	sq.Expr("SELECT ... (?) AS in_selection, (?) AS in_market ...", split.Selection, split.Market)
package datascope

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pharmalytics/backend/internal/domain/analytics"
)

// Pharmacy columns a scope can be bound to
const (
	ColumnSalesPharmacy    = "ip.pharmacy_id"
	ColumnOrderPharmacy    = "o.pharmacy_id"
	ColumnPharmacyID       = "ph.id"
	ColumnSnapshotPharmacy = "sip.pharmacy_id"
)

// allowedScopeColumns is the whitelist of bindable columns
var allowedScopeColumns = map[string]bool{
	ColumnSalesPharmacy:    true,
	ColumnOrderPharmacy:    true,
	ColumnPharmacyID:       true,
	ColumnSnapshotPharmacy: true,
}

// Split is the pair of predicates separating selection rows from market rows
type Split struct {
	Selection sq.Sqlizer
	Market    sq.Sqlizer
}

var matchAll = sq.Expr("TRUE")

// Bind returns the selection and market predicates for the enforced scope
func Bind(f analytics.EnforcedFilters, column string) (Split, error) {
	if !allowedScopeColumns[column] {
		return Split{}, fmt.Errorf("datascope: column %q is not a pharmacy scope column", column)
	}
	ids := idStrings(f.Scope())

	switch f.Mode() {
	case analytics.ModeUserScoped:
		if len(ids) != 1 {
			return Split{}, fmt.Errorf("datascope: user scope must hold exactly one pharmacy, got %d", len(ids))
		}
		return Split{
			Selection: sq.Eq{column: ids[0]},
			Market:    sq.NotEq{column: ids[0]},
		}, nil
	case analytics.ModeAdminWithSelection:
		if len(ids) == 0 {
			return Split{}, fmt.Errorf("datascope: admin selection is empty")
		}
		return Split{
			Selection: sq.Eq{column: ids},
			Market:    sq.NotEq{column: ids},
		}, nil
	case analytics.ModeAdminWithoutSelection:
		return Split{Selection: matchAll, Market: matchAll}, nil
	}
	return Split{}, fmt.Errorf("datascope: unknown query mode %d", f.Mode())
}

// Restrict returns the selection predicate alone, for shapes without a market side
func Restrict(f analytics.EnforcedFilters, column string) (sq.Sqlizer, error) {
	split, err := Bind(f, column)
	if err != nil {
		return nil, err
	}
	return split.Selection, nil
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
