package persistence

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/pharmalytics/backend/internal/domain/analytics"
	"github.com/pharmalytics/backend/internal/infrastructure/persistence/conditions"
	"github.com/pharmalytics/backend/internal/infrastructure/persistence/datascope"
	"gorm.io/gorm"
)

// DefaultMaxRows caps every aggregate result when no limit is configured
const DefaultMaxRows = 1000

// GormAnalyticsRepository implements analytics.Repository using GORM raw queries
type GormAnalyticsRepository struct {
	db      *gorm.DB
	sales   *conditions.Builder
	orders  *conditions.Builder
	maxRows int
}

// NewGormAnalyticsRepository creates a new GormAnalyticsRepository
func NewGormAnalyticsRepository(db *gorm.DB, maxRows int) *GormAnalyticsRepository {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &GormAnalyticsRepository{
		db:      db,
		sales:   conditions.NewBuilder(salesColumns),
		orders:  conditions.NewBuilder(orderColumns),
		maxRows: maxRows,
	}
}

var _ analytics.Repository = (*GormAnalyticsRepository)(nil)

// CompetitiveAnalysis returns selection vs market prices per product
func (r *GormAnalyticsRepository) CompetitiveAnalysis(ctx context.Context, q analytics.Query) ([]analytics.CompetitiveAggregate, error) {
	cte, err := r.scopedSales(q, false)
	if err != nil {
		return nil, err
	}
	var rows []analytics.CompetitiveAggregate
	err = r.run(ctx, "competitive analysis", sq.Expr(competitiveSQL, append(cte, r.limit(q))...), &rows)
	return rows, err
}

// ProductSales returns the selection's sales per product, with the latest stock
func (r *GormAnalyticsRepository) ProductSales(ctx context.Context, q analytics.Query) ([]analytics.ProductAggregate, error) {
	cte, err := r.scopedSales(q, true)
	if err != nil {
		return nil, err
	}
	stock, err := latestStock(q)
	if err != nil {
		return nil, err
	}
	args := append(cte, stock...)
	args = append(args, r.limit(q))

	var rows []analytics.ProductAggregate
	err = r.run(ctx, "product sales", sq.Expr(productsSQL, args...), &rows)
	return rows, err
}

// LaboratorySales returns selection vs market sales per laboratory
func (r *GormAnalyticsRepository) LaboratorySales(ctx context.Context, q analytics.Query) ([]analytics.LaboratoryAggregate, error) {
	cte, err := r.scopedSales(q, false)
	if err != nil {
		return nil, err
	}
	var rows []analytics.LaboratoryAggregate
	err = r.run(ctx, "laboratory sales", sq.Expr(laboratoriesSQL, append(cte, r.limit(q))...), &rows)
	return rows, err
}

// PharmacySales returns sales per pharmacy of the selection. Pharmacies without
// sales in the period are listed with zero values.
func (r *GormAnalyticsRepository) PharmacySales(ctx context.Context, q analytics.Query) ([]analytics.PharmacyAggregate, error) {
	cte, err := r.scopedSales(q, true)
	if err != nil {
		return nil, err
	}
	listed, err := datascope.Restrict(q.Filters, datascope.ColumnPharmacyID)
	if err != nil {
		return nil, err
	}
	args := append(cte, listed, r.limit(q))

	var rows []analytics.PharmacyAggregate
	err = r.run(ctx, "pharmacy sales", sq.Expr(pharmaciesSQL, args...), &rows)
	return rows, err
}

// SalesEvolution returns selection vs market sales per time bucket
func (r *GormAnalyticsRepository) SalesEvolution(ctx context.Context, q analytics.Query) ([]analytics.EvolutionAggregate, error) {
	cte, err := r.scopedSales(q, false)
	if err != nil {
		return nil, err
	}
	granularity := q.Filters.Filters().Granularity
	if granularity == "" {
		granularity = analytics.GranularityMonth
	}
	args := append(cte, string(granularity), r.limit(q))

	var rows []analytics.EvolutionAggregate
	err = r.run(ctx, "sales evolution", sq.Expr(evolutionSQL, args...), &rows)
	return rows, err
}

// Ruptures returns products whose received quantity fell short of the ordered one
func (r *GormAnalyticsRepository) Ruptures(ctx context.Context, q analytics.Query) ([]analytics.RuptureAggregate, error) {
	selection, err := datascope.Restrict(q.Filters, datascope.ColumnOrderPharmacy)
	if err != nil {
		return nil, err
	}
	conds, err := r.orders.Build(q.Filters.Filters())
	if err != nil {
		return nil, err
	}
	stock, err := latestStock(q)
	if err != nil {
		return nil, err
	}
	args := []any{q.Period.Start, q.Period.EndExclusive(), selection, conds.Sqlizer()}
	args = append(args, stock...)
	args = append(args, r.limit(q))

	var rows []analytics.RuptureAggregate
	err = r.run(ctx, "ruptures", sq.Expr(rupturesSQL, args...), &rows)
	return rows, err
}

// scopedSales returns the arguments of scopedSalesCTE. selectionOnly drops
// market rows when the shape has no market side.
func (r *GormAnalyticsRepository) scopedSales(q analytics.Query, selectionOnly bool) ([]any, error) {
	split, err := datascope.Bind(q.Filters, datascope.ColumnSalesPharmacy)
	if err != nil {
		return nil, err
	}
	conds, err := r.sales.Build(q.Filters.Filters())
	if err != nil {
		return nil, err
	}
	var rowScope sq.Sqlizer = sq.Expr("TRUE")
	if selectionOnly {
		rowScope = split.Selection
	}
	return []any{
		split.Selection,
		split.Market,
		q.Period.Start,
		q.Period.EndExclusive(),
		rowScope,
		conds.Sqlizer(),
		keysPredicate(q.Keys),
	}, nil
}

// latestStock returns the arguments of latestStockCTE
func latestStock(q analytics.Query) ([]any, error) {
	selection, err := datascope.Restrict(q.Filters, datascope.ColumnSnapshotPharmacy)
	if err != nil {
		return nil, err
	}
	return []any{q.Period.End, selection}, nil
}

func keysPredicate(keys []string) sq.Sqlizer {
	if len(keys) == 0 {
		return sq.Expr("TRUE")
	}
	return sq.Eq{"gp.code_13_ref": keys}
}

func (r *GormAnalyticsRepository) limit(q analytics.Query) int {
	if q.Limit <= 0 || q.Limit > r.maxRows {
		return r.maxRows
	}
	return q.Limit
}

// run renders the statement and scans the result into dest
func (r *GormAnalyticsRepository) run(ctx context.Context, name string, stmt sq.Sqlizer, dest any) error {
	query, args, err := stmt.ToSql()
	if err != nil {
		return fmt.Errorf("failed to render %s query: %w", name, err)
	}
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(dest).Error; err != nil {
		return fmt.Errorf("failed to execute %s query: %w", name, err)
	}
	return nil
}
