// Package conditions compiles analytics filter sets into SQL condition fragments.
//
// Fragments are squirrel Sqlizers with positional "?" placeholders. They are
// embedded into a query template and numbered once when the whole statement
// is rendered, so no fragment ever computes a parameter index itself.
package conditions

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/pharmalytics/backend/internal/domain/analytics"
)

// ColumnMap maps each filter group to the SQL expression it constrains.
// Expressions are fixed by the query templates and never come from input.
type ColumnMap map[analytics.FilterGroup]string

// Conditions is the compiled form of a filter set
type Conditions struct {
	// Chain joins the active groups with the caller's operators; nil when no group is active
	Chain sq.Sqlizer
	// Exclusions are always AND-combined with the chain
	Exclusions []sq.Sqlizer
}

// IsEmpty reports whether nothing constrains the rows
func (c Conditions) IsEmpty() bool {
	return c.Chain == nil && len(c.Exclusions) == 0
}

// Sqlizer returns the full predicate; TRUE when empty
func (c Conditions) Sqlizer() sq.Sqlizer {
	if c.IsEmpty() {
		return sq.Expr("TRUE")
	}
	if len(c.Exclusions) == 0 {
		return c.Chain
	}
	parts := make(sq.And, 0, len(c.Exclusions)+1)
	if c.Chain != nil {
		parts = append(parts, c.Chain)
	}
	return append(parts, c.Exclusions...)
}

// Builder compiles filter sets against one ColumnMap
type Builder struct {
	columns ColumnMap
}

// NewBuilder creates a builder for a query shape
func NewBuilder(columns ColumnMap) *Builder {
	return &Builder{columns: columns}
}

// Build compiles the filter set. Operators are matched positionally to the
// active groups in canonical order and evaluated left to right. The pharmacy
// group takes part in operator matching but is rendered by the query mode
// (see FilterSet.RowChain).
func (b *Builder) Build(f analytics.FilterSet) (Conditions, error) {
	active, ops := f.RowChain()

	var out Conditions
	for i, g := range active {
		cond, err := b.condition(&f, g)
		if err != nil {
			return Conditions{}, err
		}
		if i == 0 {
			out.Chain = cond
			continue
		}
		if ops[i-1] == analytics.OperatorOr {
			out.Chain = sq.Or{out.Chain, cond}
		} else {
			out.Chain = sq.And{out.Chain, cond}
		}
	}

	exclusions := []struct {
		group analytics.FilterGroup
		codes []string
	}{
		{analytics.GroupLaboratories, f.ExcludedLaboratories},
		{analytics.GroupCategories, f.ExcludedCategories},
		{analytics.GroupProducts, f.ExcludedProductCodes},
	}
	for _, ex := range exclusions {
		if len(ex.codes) == 0 {
			continue
		}
		col, err := b.column(ex.group)
		if err != nil {
			return Conditions{}, err
		}
		out.Exclusions = append(out.Exclusions, sq.NotEq{col: ex.codes})
	}
	return out, nil
}

func (b *Builder) column(g analytics.FilterGroup) (string, error) {
	col, ok := b.columns[g]
	if !ok || col == "" {
		return "", fmt.Errorf("conditions: no column mapped for %s", g)
	}
	return col, nil
}

func (b *Builder) condition(f *analytics.FilterSet, g analytics.FilterGroup) (sq.Sqlizer, error) {
	col, err := b.column(g)
	if err != nil {
		return nil, err
	}
	switch g {
	case analytics.GroupLaboratories:
		return sq.Eq{col: f.Laboratories}, nil
	case analytics.GroupCategories:
		return sq.Eq{col: f.Categories}, nil
	case analytics.GroupProducts:
		return sq.Eq{col: f.ProductCodes}, nil
	case analytics.GroupTVARates:
		return sq.Eq{col: f.TVARates}, nil
	case analytics.GroupGenericStatus:
		return genericCondition(col, f.GenericStatus), nil
	case analytics.GroupReimbursementStatus:
		return sq.Eq{col: f.ReimbursementStatus == analytics.ReimbursementReimbursed}, nil
	}
	if g.IsRange() {
		r := f.Range(g)
		return sq.Expr(fmt.Sprintf("(%s) BETWEEN ? AND ?", col), r.Min, r.Max), nil
	}
	return nil, fmt.Errorf("conditions: unsupported group %s", g)
}

// stored generic_status values
const (
	storedGeneric  = "generic"
	storedPrinceps = "princeps"
)

func genericCondition(col string, s analytics.GenericStatus) sq.Sqlizer {
	switch s {
	case analytics.GenericStatusGeneric:
		return sq.Eq{col: storedGeneric}
	case analytics.GenericStatusPrinceps:
		return sq.Eq{col: storedPrinceps}
	default:
		return sq.Eq{col: []string{storedGeneric, storedPrinceps}}
	}
}
