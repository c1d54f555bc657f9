package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	analyticsapp "github.com/pharmalytics/backend/internal/application/analytics"
	"github.com/pharmalytics/backend/internal/domain/analytics"
	"github.com/pharmalytics/backend/internal/interfaces/http/dto"
	"github.com/pharmalytics/backend/internal/interfaces/http/middleware"
)

// Result array field of each endpoint
const (
	FieldProducts     = "products"
	FieldLaboratories = "laboratories"
	FieldPharmacies   = "pharmacies"
	FieldEvolution    = "evolution"
	FieldRuptures     = "ruptures"
)

// AnalyticsService computes the analytics endpoints for an enforced filter set
type AnalyticsService interface {
	CompetitiveAnalysis(ctx context.Context, filters analytics.EnforcedFilters) (analyticsapp.Result[analytics.CompetitiveRow], error)
	ProductSales(ctx context.Context, filters analytics.EnforcedFilters) (analyticsapp.Result[analytics.ProductRow], error)
	LaboratoryMarketShare(ctx context.Context, filters analytics.EnforcedFilters) (analyticsapp.Result[analytics.LaboratoryRow], error)
	PharmacyBenchmark(ctx context.Context, filters analytics.EnforcedFilters) (analyticsapp.Result[analytics.PharmacyRow], error)
	SalesEvolution(ctx context.Context, filters analytics.EnforcedFilters) (analyticsapp.Result[analytics.EvolutionRow], error)
	StockRuptures(ctx context.Context, filters analytics.EnforcedFilters) (analyticsapp.Result[analytics.RuptureRow], error)
}

// AnalyticsHandler serves the analytics endpoints
type AnalyticsHandler struct {
	BaseHandler
	service AnalyticsService
	now     func() time.Time
}

// NewAnalyticsHandler creates a new AnalyticsHandler
func NewAnalyticsHandler(service AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: service,
		now:     time.Now,
	}
}

// CompetitiveAnalysis positions the selection's prices against the market.
// POST /analytics/competitive-analysis
func (h *AnalyticsHandler) CompetitiveAnalysis(c *gin.Context) {
	serve(h, c, FieldProducts, h.service.CompetitiveAnalysis)
}

// ProductSales lists the selection's products with their N-1 evolution.
// POST /analytics/products
func (h *AnalyticsHandler) ProductSales(c *gin.Context) {
	serve(h, c, FieldProducts, h.service.ProductSales)
}

// LaboratoryMarketShare reports laboratory market shares.
// POST /analytics/laboratories/market-share
func (h *AnalyticsHandler) LaboratoryMarketShare(c *gin.Context) {
	serve(h, c, FieldLaboratories, h.service.LaboratoryMarketShare)
}

// PharmacyBenchmark ranks pharmacies against each other. Admin only.
// POST /analytics/pharmacies
func (h *AnalyticsHandler) PharmacyBenchmark(c *gin.Context) {
	serve(h, c, FieldPharmacies, h.service.PharmacyBenchmark)
}

// SalesEvolution returns the sales time series.
// POST /analytics/sales/evolution
func (h *AnalyticsHandler) SalesEvolution(c *gin.Context) {
	serve(h, c, FieldEvolution, h.service.SalesEvolution)
}

// StockRuptures lists supply shortfalls.
// POST /analytics/stock/ruptures
func (h *AnalyticsHandler) StockRuptures(c *gin.Context) {
	serve(h, c, FieldRuptures, h.service.StockRuptures)
}

// serve runs the shared request pipeline: authenticate, bind, scope, compute.
func serve[T any](
	h *AnalyticsHandler,
	c *gin.Context,
	field string,
	run func(context.Context, analytics.EnforcedFilters) (analyticsapp.Result[T], error),
) {
	start := time.Now()

	sc, ok := middleware.SecurityContextFrom(c)
	if !ok {
		h.Unauthorized(c, "Unauthorized")
		return
	}

	var req dto.AnalyticsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, middleware.FormatValidationErrors(err))
		return
	}

	requested, err := req.ToFilterSet(h.now())
	if err != nil {
		h.HandleError(c, err, time.Since(start))
		return
	}

	enforced, err := analytics.Enforce(requested, sc)
	if err != nil {
		h.HandleError(c, err, time.Since(start))
		return
	}

	result, err := run(c.Request.Context(), enforced)
	if err != nil {
		h.HandleError(c, err, time.Since(start))
		return
	}

	c.JSON(http.StatusOK, dto.NewAnalyticsResponse(field, result.Rows, result.Count, time.Since(start), result.Cached))
}
