// Package analytics runs the pharmacy analytics operations: it derives the
// cache key, serves cached results, and otherwise runs the aggregation
// templates and turns the aggregates into rounded metric rows.
package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pharmalytics/backend/internal/domain/analytics"
	"github.com/pharmalytics/backend/internal/domain/identity"
	"github.com/pharmalytics/backend/internal/domain/shared"
	"github.com/pharmalytics/backend/internal/infrastructure/config"
	"github.com/pharmalytics/backend/internal/infrastructure/logger"
	"github.com/pharmalytics/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Endpoint names used in logs, spans and metrics
const (
	EndpointCompetitive  = "competitive_analysis"
	EndpointProducts     = "products"
	EndpointLaboratories = "laboratories_market_share"
	EndpointPharmacies   = "pharmacies"
	EndpointEvolution    = "sales_evolution"
	EndpointRuptures     = "stock_ruptures"
)

// Service provides the analytics operations
type Service struct {
	repo    analytics.Repository
	cache   *CacheAside
	cfg     config.AnalyticsConfig
	metrics *telemetry.AnalyticsMetrics
	logger  *zap.Logger
}

// NewService creates a new analytics Service
func NewService(
	repo analytics.Repository,
	cacheAside *CacheAside,
	cfg config.AnalyticsConfig,
	metrics *telemetry.AnalyticsMetrics,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheAside == nil {
		cacheAside = NewCacheAside(nil, false, metrics, logger)
	}
	return &Service{
		repo:    repo,
		cache:   cacheAside,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
}

// ===================== Operations =====================

// CompetitiveAnalysis positions the selection's sell prices against the market, per product
func (s *Service) CompetitiveAnalysis(ctx context.Context, filters analytics.EnforcedFilters) (Result[analytics.CompetitiveRow], error) {
	return execute(ctx, s, EndpointCompetitive, NamespaceCompetitive, s.cfg.CompetitiveTTL, false, filters,
		func(ctx context.Context) ([]analytics.CompetitiveRow, error) {
			aggs, err := s.repo.CompetitiveAnalysis(ctx, analytics.Query{Filters: filters, Period: filters.Period()})
			if err != nil {
				return nil, err
			}
			mode := filters.Mode()
			rows := make([]analytics.CompetitiveRow, 0, len(aggs))
			for _, a := range aggs {
				rows = append(rows, analytics.CompetitiveRow{
					ProductCode:         a.ProductCode,
					ProductName:         a.ProductName,
					Laboratory:          a.Laboratory,
					MyAvgSellPrice:      analytics.Round2(a.SelectionAvgPrice),
					GlobalAvgSellPrice:  analytics.Round2(a.MarketAvgPrice),
					GlobalMinSellPrice:  analytics.Round2(a.MarketMinPrice),
					GlobalMaxSellPrice:  analytics.Round2(a.MarketMaxPrice),
					PriceGapPct:         analytics.Round2(analytics.PriceGapPct(mode, a.SelectionAvgPrice, a.MarketAvgPrice)),
					MyQuantity:          analytics.Round2(a.SelectionQuantity),
					GlobalQuantity:      analytics.Round2(a.MarketQuantity),
					MyMarginRatePct:     analytics.Round2(analytics.MarginRate(a.SelectionMarginHT, a.SelectionSalesHT)),
					GlobalMarginRatePct: analytics.Round2(analytics.MarginRate(a.MarketMarginHT, a.MarketSalesHT)),
					GlobalPharmacyCount: a.MarketPharmacyCount,
				})
			}
			return rows, nil
		})
}

// ProductSales lists the selection's products with margin, stock, market share and evolution
// against the comparison period.
func (s *Service) ProductSales(ctx context.Context, filters analytics.EnforcedFilters) (Result[analytics.ProductRow], error) {
	return execute(ctx, s, EndpointProducts, NamespaceProducts, s.cfg.ProductsTTL, true, filters,
		func(ctx context.Context) ([]analytics.ProductRow, error) {
			current, err := s.repo.ProductSales(ctx, analytics.Query{Filters: filters, Period: filters.Period()})
			if err != nil {
				return nil, err
			}
			if len(current) == 0 {
				return []analytics.ProductRow{}, nil
			}

			keys := make([]string, 0, len(current))
			for _, a := range current {
				keys = append(keys, a.ProductCode)
			}
			previous, err := s.repo.ProductSales(ctx, analytics.Query{
				Filters: filters,
				Period:  filters.ComparisonPeriod(),
				Keys:    keys,
			})
			if err != nil {
				return nil, err
			}
			prevByCode := make(map[string]analytics.ProductAggregate, len(previous))
			for _, p := range previous {
				prevByCode[p.ProductCode] = p
			}

			rows := make([]analytics.ProductRow, 0, len(current))
			for _, a := range current {
				prev := prevByCode[a.ProductCode]
				rows = append(rows, analytics.ProductRow{
					ProductCode:          a.ProductCode,
					ProductName:          a.ProductName,
					Laboratory:           a.Laboratory,
					Category:             a.Category,
					Quantity:             analytics.Round2(a.Quantity),
					SalesTTC:             analytics.Round2(a.SalesTTC),
					SalesHT:              analytics.Round2(a.SalesHT),
					MarginHT:             analytics.Round2(a.MarginHT),
					MarginRatePct:        analytics.Round2(analytics.MarginRate(a.MarginHT, a.SalesHT)),
					CurrentStock:         analytics.Round2(a.CurrentStock),
					AvgSellPrice:         analytics.Round2(a.AvgSellPrice),
					AvgPurchasePrice:     analytics.Round2(a.AvgPurchasePrice),
					MarketSharePct:       analytics.Round2(analytics.MarketSharePct(a.SalesTTC, a.TotalSalesTTC)),
					PreviousSalesTTC:     analytics.Round2(prev.SalesTTC),
					SalesEvolutionPct:    analytics.Round2(analytics.EvolutionPct(a.SalesTTC, prev.SalesTTC)),
					QuantityEvolutionPct: analytics.Round2(analytics.EvolutionPct(a.Quantity, prev.Quantity)),
				})
			}
			return rows, nil
		})
}

// LaboratoryMarketShare compares each laboratory's share of the selection with its share of the market
func (s *Service) LaboratoryMarketShare(ctx context.Context, filters analytics.EnforcedFilters) (Result[analytics.LaboratoryRow], error) {
	return execute(ctx, s, EndpointLaboratories, NamespaceLaboratories, s.cfg.LaboratoryTTL, true, filters,
		func(ctx context.Context) ([]analytics.LaboratoryRow, error) {
			var current, previous []analytics.LaboratoryAggregate
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				var err error
				current, err = s.repo.LaboratorySales(gctx, analytics.Query{Filters: filters, Period: filters.Period()})
				return err
			})
			g.Go(func() error {
				var err error
				previous, err = s.repo.LaboratorySales(gctx, analytics.Query{Filters: filters, Period: filters.ComparisonPeriod()})
				return err
			})
			if err := g.Wait(); err != nil {
				return nil, err
			}

			prevByLab := make(map[string]analytics.LaboratoryAggregate, len(previous))
			for _, p := range previous {
				prevByLab[p.Laboratory] = p
			}
			rows := make([]analytics.LaboratoryRow, 0, len(current))
			for _, a := range current {
				prev := prevByLab[a.Laboratory]
				rows = append(rows, analytics.LaboratoryRow{
					Laboratory:              a.Laboratory,
					ProductCount:            a.ProductCount,
					MySalesTTC:              analytics.Round2(a.SelectionSalesTTC),
					GlobalSalesTTC:          analytics.Round2(a.MarketSalesTTC),
					MyQuantity:              analytics.Round2(a.SelectionQuantity),
					GlobalQuantity:          analytics.Round2(a.MarketQuantity),
					MyMarketSharePct:        analytics.Round2(analytics.MarketSharePct(a.SelectionSalesTTC, a.SelectionTotalTTC)),
					GlobalMarketSharePct:    analytics.Round2(analytics.MarketSharePct(a.MarketSalesTTC, a.MarketTotalTTC)),
					MyMarginRatePct:         analytics.Round2(analytics.MarginRate(a.SelectionMarginHT, a.SelectionSalesHT)),
					MySalesEvolutionPct:     analytics.Round2(analytics.EvolutionPct(a.SelectionSalesTTC, prev.SelectionSalesTTC)),
					GlobalSalesEvolutionPct: analytics.Round2(analytics.EvolutionPct(a.MarketSalesTTC, prev.MarketSalesTTC)),
				})
			}
			return rows, nil
		})
}

// PharmacyBenchmark ranks pharmacies by sales and scores each one's evolution
// against the median evolution. Admin only.
func (s *Service) PharmacyBenchmark(ctx context.Context, filters analytics.EnforcedFilters) (Result[analytics.PharmacyRow], error) {
	if filters.Role() != identity.RoleAdmin {
		return Result[analytics.PharmacyRow]{}, shared.ErrForbidden.WithMessage("pharmacy analytics are restricted to administrators")
	}
	return execute(ctx, s, EndpointPharmacies, NamespacePharmacies, s.cfg.PharmacyTTL, true, filters,
		func(ctx context.Context) ([]analytics.PharmacyRow, error) {
			var current, previous []analytics.PharmacyAggregate
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				var err error
				current, err = s.repo.PharmacySales(gctx, analytics.Query{Filters: filters, Period: filters.Period()})
				return err
			})
			g.Go(func() error {
				var err error
				previous, err = s.repo.PharmacySales(gctx, analytics.Query{Filters: filters, Period: filters.ComparisonPeriod()})
				return err
			})
			if err := g.Wait(); err != nil {
				return nil, err
			}
			return benchmarkPharmacies(current, previous), nil
		})
}

// SalesEvolution returns the selection and market sales series bucketed by the requested granularity
func (s *Service) SalesEvolution(ctx context.Context, filters analytics.EnforcedFilters) (Result[analytics.EvolutionRow], error) {
	return execute(ctx, s, EndpointEvolution, NamespaceEvolution, s.cfg.EvolutionTTL, false, filters,
		func(ctx context.Context) ([]analytics.EvolutionRow, error) {
			aggs, err := s.repo.SalesEvolution(ctx, analytics.Query{Filters: filters, Period: filters.Period()})
			if err != nil {
				return nil, err
			}
			layout := periodLayout(filters.Filters().Granularity)
			rows := make([]analytics.EvolutionRow, 0, len(aggs))
			for _, a := range aggs {
				rows = append(rows, analytics.EvolutionRow{
					Period:                    a.Period.Format(layout),
					MySalesTTC:                analytics.Round2(a.SelectionSalesTTC),
					GlobalSalesTTC:            analytics.Round2(a.MarketSalesTTC),
					MyQuantity:                analytics.Round2(a.SelectionQuantity),
					GlobalQuantity:            analytics.Round2(a.MarketQuantity),
					MyMarginRatePct:           analytics.Round2(analytics.MarginRate(a.SelectionMarginHT, a.SelectionSalesHT)),
					MySharePct:                analytics.Round2(analytics.MarketSharePct(a.SelectionSalesTTC, a.TotalSalesTTC)),
					MyAvgSalesPerPharmacy:     analytics.Round2(analytics.SafeRatio(a.SelectionSalesTTC, decimal.NewFromInt(a.SelectionPharmacyCount))),
					GlobalAvgSalesPerPharmacy: analytics.Round2(analytics.SafeRatio(a.MarketSalesTTC, decimal.NewFromInt(a.MarketPharmacyCount))),
				})
			}
			return rows, nil
		})
}

// StockRuptures lists the products whose ordered quantity was not fully received
func (s *Service) StockRuptures(ctx context.Context, filters analytics.EnforcedFilters) (Result[analytics.RuptureRow], error) {
	return execute(ctx, s, EndpointRuptures, NamespaceRuptures, s.cfg.RuptureTTL, false, filters,
		func(ctx context.Context) ([]analytics.RuptureRow, error) {
			aggs, err := s.repo.Ruptures(ctx, analytics.Query{Filters: filters, Period: filters.Period()})
			if err != nil {
				return nil, err
			}
			rows := make([]analytics.RuptureRow, 0, len(aggs))
			for _, a := range aggs {
				missing := a.QuantityOrdered.Sub(a.QuantityReceived)
				rows = append(rows, analytics.RuptureRow{
					ProductCode:      a.ProductCode,
					ProductName:      a.ProductName,
					Laboratory:       a.Laboratory,
					OrderCount:       a.OrderCount,
					QuantityOrdered:  analytics.Round2(a.QuantityOrdered),
					QuantityReceived: analytics.Round2(a.QuantityReceived),
					RuptureQuantity:  analytics.Round2(missing),
					RuptureRatePct:   analytics.Round2(analytics.MarketSharePct(missing, a.QuantityOrdered)),
					CurrentStock:     analytics.Round2(a.CurrentStock),
				})
			}
			return rows, nil
		})
}

// ===================== Assembly helpers =====================

// benchmarkPharmacies joins current and previous sales per pharmacy, ranks by
// current sales and attaches the median-relative evolution.
func benchmarkPharmacies(current, previous []analytics.PharmacyAggregate) []analytics.PharmacyRow {
	prevByID := make(map[uuid.UUID]analytics.PharmacyAggregate, len(previous))
	for _, p := range previous {
		prevByID[p.PharmacyID] = p
	}
	pairs := make([]analytics.PeriodPair, 0, len(current))
	for _, a := range current {
		pairs = append(pairs, analytics.PeriodPair{Current: a.SalesTTC, Previous: prevByID[a.PharmacyID].SalesTTC})
	}
	evolutions, _ := analytics.MedianRelativeEvolutions(pairs)
	ranks := rankBySales(current)

	rows := make([]analytics.PharmacyRow, 0, len(current))
	for i, a := range current {
		rows = append(rows, analytics.PharmacyRow{
			PharmacyID:           a.PharmacyID.String(),
			PharmacyName:         a.PharmacyName,
			Area:                 a.Area,
			SalesTTC:             analytics.Round2(a.SalesTTC),
			PreviousSalesTTC:     analytics.Round2(pairs[i].Previous),
			SalesEvolutionPct:    analytics.Round2(evolutions[i].Evolution),
			RelativeEvolutionPct: analytics.Round2Ptr(evolutions[i].Relative),
			MarginRatePct:        analytics.Round2(analytics.MarginRate(a.MarginHT, a.SalesHT)),
			Quantity:             analytics.Round2(a.Quantity),
			MarketSharePct:       analytics.Round2(analytics.MarketSharePct(a.SalesTTC, a.TotalSalesTTC)),
			Rank:                 ranks[i],
		})
	}
	return rows
}

// rankBySales returns the 1-based sales rank of each aggregate; ties share a rank
func rankBySales(aggs []analytics.PharmacyAggregate) []int {
	ranks := make([]int, len(aggs))
	for i, a := range aggs {
		rank := 1
		for _, other := range aggs {
			if other.SalesTTC.GreaterThan(a.SalesTTC) {
				rank++
			}
		}
		ranks[i] = rank
	}
	return ranks
}

func periodLayout(g analytics.Granularity) string {
	if g == analytics.GranularityMonth || g == "" {
		return "2006-01"
	}
	return analytics.DateLayout
}

// ===================== Execution =====================

// execute wraps one operation with its span, cache lookup, timeout, metrics,
// profile labels and logging. comparison marks endpoints that read the
// comparison period, which then takes part in the cache key.
func execute[T any](
	ctx context.Context,
	s *Service,
	endpoint, namespace string,
	ttl time.Duration,
	comparison bool,
	filters analytics.EnforcedFilters,
	compute func(context.Context) ([]T, error),
) (Result[T], error) {
	mode := filters.Mode().String()
	ctx, span := telemetry.StartServiceSpan(ctx, "analytics", endpoint,
		telemetry.SpanAttrEndpoint.String(endpoint),
		telemetry.SpanAttrMode.String(mode),
		telemetry.SpanAttrRole.String(string(filters.Role())),
		telemetry.SpanAttrScopeSize.Int(len(filters.Scope())),
	)
	defer span.End()

	fs := filters.Filters()
	key, err := DeriveKey(namespace, filters, KeyOptions{ProductFilter: fs.HasProductFilter(), Comparison: comparison})
	if err != nil {
		telemetry.RecordError(span, err)
		return Result[T]{}, shared.ErrInternal.Wrap(err)
	}

	timed := func(ctx context.Context) ([]T, error) {
		if s.cfg.QueryTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.QueryTimeout)
			defer cancel()
		}
		start := time.Now()
		var rows []T
		var err error
		telemetry.WithQueryLabels(ctx, endpoint, mode, func(ctx context.Context) {
			rows, err = compute(ctx)
		})
		elapsed := time.Since(start)
		s.metrics.RecordQuery(ctx, endpoint, mode, elapsed, err)
		if err != nil {
			s.log(ctx).Error("Analytics query failed",
				zap.String("endpoint", endpoint),
				zap.String("mode", mode),
				zap.Duration("duration", elapsed),
				zap.Error(err),
			)
			return nil, err
		}
		s.log(ctx).Debug("Analytics query computed",
			zap.String("endpoint", endpoint),
			zap.String("mode", mode),
			zap.Int("rows", len(rows)),
			zap.Duration("duration", elapsed),
		)
		return rows, nil
	}

	result, err := Fetch(ctx, s.cache, endpoint, key, ttl, timed)
	if err != nil {
		telemetry.RecordError(span, err)
		if _, ok := shared.AsDomainError(err); ok {
			return Result[T]{}, err
		}
		return Result[T]{}, shared.ErrInternal.Wrap(err)
	}
	span.SetAttributes(
		telemetry.SpanAttrCached.Bool(result.Cached),
		telemetry.SpanAttrRowCount.Int(result.Count),
	)
	return result, nil
}

// log returns the service logger enriched with the request fields of ctx
func (s *Service) log(ctx context.Context) *zap.Logger {
	return s.logger.With(logger.Fields(ctx)...)
}
