package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pharmalytics/backend/internal/domain/analytics"
	"github.com/pharmalytics/backend/internal/domain/identity"
	"github.com/pharmalytics/backend/internal/domain/shared"
	"github.com/pharmalytics/backend/internal/infrastructure/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockAnalyticsRepository is a mock implementation of analytics.Repository
type MockAnalyticsRepository struct {
	mock.Mock
}

func (m *MockAnalyticsRepository) CompetitiveAnalysis(ctx context.Context, q analytics.Query) ([]analytics.CompetitiveAggregate, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]analytics.CompetitiveAggregate), args.Error(1)
}

func (m *MockAnalyticsRepository) ProductSales(ctx context.Context, q analytics.Query) ([]analytics.ProductAggregate, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]analytics.ProductAggregate), args.Error(1)
}

func (m *MockAnalyticsRepository) LaboratorySales(ctx context.Context, q analytics.Query) ([]analytics.LaboratoryAggregate, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]analytics.LaboratoryAggregate), args.Error(1)
}

func (m *MockAnalyticsRepository) PharmacySales(ctx context.Context, q analytics.Query) ([]analytics.PharmacyAggregate, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]analytics.PharmacyAggregate), args.Error(1)
}

func (m *MockAnalyticsRepository) SalesEvolution(ctx context.Context, q analytics.Query) ([]analytics.EvolutionAggregate, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]analytics.EvolutionAggregate), args.Error(1)
}

func (m *MockAnalyticsRepository) Ruptures(ctx context.Context, q analytics.Query) ([]analytics.RuptureAggregate, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]analytics.RuptureAggregate), args.Error(1)
}

var _ analytics.Repository = (*MockAnalyticsRepository)(nil)

func testAnalyticsConfig() config.AnalyticsConfig {
	return config.AnalyticsConfig{
		MaxRows:        1000,
		QueryTimeout:   5 * time.Second,
		CompetitiveTTL: 12 * time.Hour,
		ProductsTTL:    time.Hour,
		LaboratoryTTL:  12 * time.Hour,
		PharmacyTTL:    time.Hour,
		EvolutionTTL:   time.Hour,
		RuptureTTL:     time.Hour,
	}
}

func newTestService(t *testing.T) (*Service, *MockAnalyticsRepository) {
	t.Helper()
	repo := new(MockAnalyticsRepository)
	c, _ := newMemoryCacheAside(t)
	return NewService(repo, c, testAnalyticsConfig(), nil, nil), repo
}

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// forPeriod matches a query over the given period
func forPeriod(period analytics.DateRange) any {
	return mock.MatchedBy(func(q analytics.Query) bool {
		return q.Period.Start.Equal(period.Start) && q.Period.End.Equal(period.End)
	})
}

func TestService_CompetitiveAnalysis_AdminWithoutSelection(t *testing.T) {
	svc, repo := newTestService(t)
	admin := securityContext(t, identity.RoleAdmin, uuid.Nil)
	filters := enforce(t, admin, func(f *analytics.FilterSet) { f.SetProductCodes([]string{"EAN1"}) })
	require.Equal(t, analytics.ModeAdminWithoutSelection, filters.Mode())

	repo.On("CompetitiveAnalysis", mock.Anything, forPeriod(january)).Return([]analytics.CompetitiveAggregate{{
		ProductCode:         "EAN1",
		ProductName:         "DOLIPRANE 1000MG",
		Laboratory:          "SANOFI",
		SelectionAvgPrice:   dec(2.18),
		MarketAvgPrice:      dec(2.18),
		MarketMinPrice:      dec(1.95),
		MarketMaxPrice:      dec(2.5),
		SelectionQuantity:   dec(420),
		MarketQuantity:      dec(420),
		SelectionSalesHT:    dec(800),
		SelectionMarginHT:   dec(200),
		MarketSalesHT:       dec(800),
		MarketMarginHT:      dec(200),
		MarketPharmacyCount: 12,
	}}, nil).Once()

	first, err := svc.CompetitiveAnalysis(context.Background(), filters)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	require.Len(t, first.Rows, 1)
	row := first.Rows[0]
	assert.Equal(t, row.MyAvgSellPrice, row.GlobalAvgSellPrice)
	assert.Equal(t, row.MyQuantity, row.GlobalQuantity)
	assert.Equal(t, 0.0, row.PriceGapPct)
	assert.Equal(t, 25.0, row.MyMarginRatePct)
	assert.Equal(t, int64(12), row.GlobalPharmacyCount)

	second, err := svc.CompetitiveAnalysis(context.Background(), filters)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Count, second.Count)
	assert.Equal(t, first.Rows, second.Rows)
	repo.AssertExpectations(t)
}

func TestService_CompetitiveAnalysis_PriceGapAgainstMarket(t *testing.T) {
	svc, repo := newTestService(t)
	filters := enforce(t, securityContext(t, identity.RoleUser, uuid.New()), nil)

	repo.On("CompetitiveAnalysis", mock.Anything, mock.Anything).Return([]analytics.CompetitiveAggregate{
		{ProductCode: "EAN1", SelectionAvgPrice: dec(11), MarketAvgPrice: dec(10)},
		{ProductCode: "EAN2", SelectionAvgPrice: dec(5), MarketAvgPrice: decimal.Zero},
	}, nil)

	res, err := svc.CompetitiveAnalysis(context.Background(), filters)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, 10.0, res.Rows[0].PriceGapPct)
	assert.Equal(t, 0.0, res.Rows[1].PriceGapPct)
}

func TestService_ProductSales(t *testing.T) {
	svc, repo := newTestService(t)
	filters := enforce(t, securityContext(t, identity.RoleUser, uuid.New()), nil)
	previousYear := january.PreviousYear()

	repo.On("ProductSales", mock.Anything, forPeriod(january)).Return([]analytics.ProductAggregate{
		{ProductCode: "EAN1", ProductName: "A", Quantity: dec(30), SalesTTC: dec(150), SalesHT: dec(120), MarginHT: dec(30), TotalSalesTTC: dec(200)},
		{ProductCode: "EAN2", ProductName: "B", Quantity: dec(10), SalesTTC: dec(50), SalesHT: dec(40), MarginHT: dec(0), TotalSalesTTC: dec(200)},
	}, nil).Once()
	repo.On("ProductSales", mock.Anything, mock.MatchedBy(func(q analytics.Query) bool {
		return q.Period.Start.Equal(previousYear.Start) && assert.ObjectsAreEqual([]string{"EAN1", "EAN2"}, q.Keys)
	})).Return([]analytics.ProductAggregate{
		{ProductCode: "EAN1", Quantity: dec(20), SalesTTC: dec(100)},
	}, nil).Once()

	res, err := svc.ProductSales(context.Background(), filters)
	require.NoError(t, err)
	require.Equal(t, 2, res.Count)

	ean1 := res.Rows[0]
	assert.Equal(t, 75.0, ean1.MarketSharePct)
	assert.Equal(t, 25.0, ean1.MarginRatePct)
	assert.Equal(t, 100.0, ean1.PreviousSalesTTC)
	assert.Equal(t, 50.0, ean1.SalesEvolutionPct)
	assert.Equal(t, 50.0, ean1.QuantityEvolutionPct)

	ean2 := res.Rows[1]
	assert.Equal(t, 0.0, ean2.PreviousSalesTTC)
	assert.Equal(t, 0.0, ean2.SalesEvolutionPct)
	assert.Equal(t, 25.0, ean2.MarketSharePct)
	repo.AssertExpectations(t)
}

func TestService_ProductSales_EmptySkipsComparison(t *testing.T) {
	svc, repo := newTestService(t)
	filters := enforce(t, securityContext(t, identity.RoleUser, uuid.New()), nil)
	repo.On("ProductSales", mock.Anything, forPeriod(january)).Return([]analytics.ProductAggregate{}, nil).Once()

	res, err := svc.ProductSales(context.Background(), filters)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
	assert.NotNil(t, res.Rows)
	repo.AssertNumberOfCalls(t, "ProductSales", 1)
}

func TestService_LaboratoryMarketShare(t *testing.T) {
	svc, repo := newTestService(t)
	comparison := analytics.DateRange{Start: date(2023, 12, 1), End: date(2023, 12, 31)}
	filters := enforce(t, securityContext(t, identity.RoleAdmin, uuid.Nil), func(f *analytics.FilterSet) {
		f.SetPharmacies([]uuid.UUID{uuid.New()})
		f.ComparisonDateRange = &comparison
	})
	require.Equal(t, analytics.ModeAdminWithSelection, filters.Mode())

	repo.On("LaboratorySales", mock.Anything, forPeriod(january)).Return([]analytics.LaboratoryAggregate{
		{Laboratory: "SANOFI", ProductCount: 3, SelectionSalesTTC: dec(300), MarketSalesTTC: dec(1000), SelectionTotalTTC: dec(1200), MarketTotalTTC: dec(4000), SelectionSalesHT: dec(250), SelectionMarginHT: dec(50)},
		{Laboratory: "BIOGARAN", ProductCount: 1, SelectionSalesTTC: dec(900), MarketSalesTTC: dec(3000), SelectionTotalTTC: dec(1200), MarketTotalTTC: dec(4000)},
	}, nil).Once()
	repo.On("LaboratorySales", mock.Anything, forPeriod(comparison)).Return([]analytics.LaboratoryAggregate{
		{Laboratory: "SANOFI", SelectionSalesTTC: dec(200), MarketSalesTTC: dec(1250)},
	}, nil).Once()

	res, err := svc.LaboratoryMarketShare(context.Background(), filters)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)

	sanofi := res.Rows[0]
	assert.Equal(t, 25.0, sanofi.MyMarketSharePct)
	assert.Equal(t, 25.0, sanofi.GlobalMarketSharePct)
	assert.Equal(t, 20.0, sanofi.MyMarginRatePct)
	assert.Equal(t, 50.0, sanofi.MySalesEvolutionPct)
	assert.Equal(t, -20.0, sanofi.GlobalSalesEvolutionPct)

	biogaran := res.Rows[1]
	assert.Equal(t, 75.0, biogaran.MyMarketSharePct)
	assert.Equal(t, 0.0, biogaran.MySalesEvolutionPct)
	repo.AssertExpectations(t)
}

func TestService_PharmacyBenchmark_MedianRelativeEvolution(t *testing.T) {
	svc, repo := newTestService(t)
	filters := enforce(t, securityContext(t, identity.RoleAdmin, uuid.Nil), nil)
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}

	current := []analytics.PharmacyAggregate{
		{PharmacyID: ids[0], PharmacyName: "Outlier", SalesTTC: dec(-50), TotalSalesTTC: dec(310)},
		{PharmacyID: ids[1], PharmacyName: "Centre", SalesTTC: dec(110), TotalSalesTTC: dec(310)},
		{PharmacyID: ids[2], PharmacyName: "Gare", SalesTTC: dec(120), TotalSalesTTC: dec(310)},
		{PharmacyID: ids[3], PharmacyName: "Port", SalesTTC: dec(130), SalesHT: dec(100), MarginHT: dec(30), TotalSalesTTC: dec(310)},
	}
	previous := make([]analytics.PharmacyAggregate, 0, len(ids))
	for _, id := range ids {
		previous = append(previous, analytics.PharmacyAggregate{PharmacyID: id, SalesTTC: dec(100)})
	}
	repo.On("PharmacySales", mock.Anything, forPeriod(january)).Return(current, nil).Once()
	repo.On("PharmacySales", mock.Anything, forPeriod(january.PreviousYear())).Return(previous, nil).Once()

	res, err := svc.PharmacyBenchmark(context.Background(), filters)
	require.NoError(t, err)
	require.Len(t, res.Rows, 4)

	assert.Equal(t, -150.0, res.Rows[0].SalesEvolutionPct)
	assert.Nil(t, res.Rows[0].RelativeEvolutionPct)
	assert.Equal(t, 4, res.Rows[0].Rank)

	wantRelative := []float64{-10, 0, 10}
	wantRank := []int{3, 2, 1}
	for i, row := range res.Rows[1:] {
		require.NotNil(t, row.RelativeEvolutionPct, row.PharmacyName)
		assert.Equal(t, wantRelative[i], *row.RelativeEvolutionPct, row.PharmacyName)
		assert.Equal(t, wantRank[i], row.Rank, row.PharmacyName)
	}
	assert.Equal(t, 30.0, res.Rows[3].MarginRatePct)
	assert.Equal(t, ids[3].String(), res.Rows[3].PharmacyID)
	repo.AssertExpectations(t)
}

func TestService_PharmacyBenchmark_ForbiddenForUsers(t *testing.T) {
	svc, repo := newTestService(t)
	filters := enforce(t, securityContext(t, identity.RoleUser, uuid.New()), nil)

	_, err := svc.PharmacyBenchmark(context.Background(), filters)
	assert.True(t, errors.Is(err, shared.ErrForbidden))
	repo.AssertNotCalled(t, "PharmacySales", mock.Anything, mock.Anything)
}

func TestService_SalesEvolution(t *testing.T) {
	svc, repo := newTestService(t)
	filters := enforce(t, securityContext(t, identity.RoleUser, uuid.New()), nil)

	repo.On("SalesEvolution", mock.Anything, mock.Anything).Return([]analytics.EvolutionAggregate{{
		Period:                 date(2024, 1, 1),
		SelectionSalesTTC:      dec(500),
		MarketSalesTTC:         dec(4500),
		TotalSalesTTC:          dec(5000),
		SelectionSalesHT:       dec(400),
		SelectionMarginHT:      dec(100),
		SelectionPharmacyCount: 1,
		MarketPharmacyCount:    0,
	}}, nil).Once()

	res, err := svc.SalesEvolution(context.Background(), filters)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	row := res.Rows[0]
	assert.Equal(t, "2024-01", row.Period)
	assert.Equal(t, 10.0, row.MySharePct)
	assert.Equal(t, 25.0, row.MyMarginRatePct)
	assert.Equal(t, 500.0, row.MyAvgSalesPerPharmacy)
	assert.Equal(t, 0.0, row.GlobalAvgSalesPerPharmacy)
}

func TestService_SalesEvolution_DailyPeriodFormat(t *testing.T) {
	svc, repo := newTestService(t)
	filters := enforce(t, securityContext(t, identity.RoleUser, uuid.New()), func(f *analytics.FilterSet) {
		f.Granularity = analytics.GranularityDay
	})
	repo.On("SalesEvolution", mock.Anything, mock.Anything).Return([]analytics.EvolutionAggregate{
		{Period: date(2024, 1, 15)},
	}, nil).Once()

	res, err := svc.SalesEvolution(context.Background(), filters)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", res.Rows[0].Period)
}

func TestService_StockRuptures(t *testing.T) {
	svc, repo := newTestService(t)
	filters := enforce(t, securityContext(t, identity.RoleUser, uuid.New()), nil)
	repo.On("Ruptures", mock.Anything, mock.Anything).Return([]analytics.RuptureAggregate{
		{ProductCode: "EAN1", OrderCount: 3, QuantityOrdered: dec(10), QuantityReceived: dec(6), CurrentStock: dec(2)},
	}, nil).Once()

	res, err := svc.StockRuptures(context.Background(), filters)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 4.0, res.Rows[0].RuptureQuantity)
	assert.Equal(t, 40.0, res.Rows[0].RuptureRatePct)
	assert.Equal(t, int64(3), res.Rows[0].OrderCount)
}

func TestService_QueryErrorIsInternalAndNotCached(t *testing.T) {
	svc, repo := newTestService(t)
	filters := enforce(t, securityContext(t, identity.RoleUser, uuid.New()), nil)
	dbErr := errors.New("failed to execute ruptures query: connection reset")
	repo.On("Ruptures", mock.Anything, mock.Anything).Return(nil, dbErr).Twice()

	for range 2 {
		_, err := svc.StockRuptures(context.Background(), filters)
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInternal))
		assert.True(t, errors.Is(err, dbErr))
	}
	repo.AssertExpectations(t)
}

func TestService_AppliesQueryTimeout(t *testing.T) {
	svc, repo := newTestService(t)
	filters := enforce(t, securityContext(t, identity.RoleUser, uuid.New()), nil)
	withDeadline := mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	})
	repo.On("SalesEvolution", withDeadline, mock.Anything).Return([]analytics.EvolutionAggregate{}, nil).Once()

	_, err := svc.SalesEvolution(context.Background(), filters)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestService_WithoutCache(t *testing.T) {
	repo := new(MockAnalyticsRepository)
	svc := NewService(repo, nil, testAnalyticsConfig(), nil, nil)
	filters := enforce(t, securityContext(t, identity.RoleUser, uuid.New()), nil)
	repo.On("Ruptures", mock.Anything, mock.Anything).Return([]analytics.RuptureAggregate{}, nil).Twice()

	for range 2 {
		res, err := svc.StockRuptures(context.Background(), filters)
		require.NoError(t, err)
		assert.False(t, res.Cached)
	}
	repo.AssertExpectations(t)
}
