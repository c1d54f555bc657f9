package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	analyticsapp "github.com/pharmalytics/backend/internal/application/analytics"
	"github.com/pharmalytics/backend/internal/domain/analytics"
	"github.com/pharmalytics/backend/internal/domain/identity"
	"github.com/pharmalytics/backend/internal/interfaces/http/handler"
	"github.com/pharmalytics/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewRouter(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	assert.NotNil(t, r)
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)
}

func TestRouterWithAPIVersion(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v2"))

	assert.Equal(t, "v2", r.apiVersion)

	r = NewRouter(engine, WithAPIVersion(""))
	assert.Equal(t, "v1", r.apiVersion)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v1"))

	group := NewDomainGroup("/test")
	group.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	r.Register(group)
	r.Setup()

	req := httptest.NewRequest("GET", "/api/v1/test/ping", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestRouterUse(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine).Use(func(c *gin.Context) {
		c.Header("X-API", "true")
		c.Next()
	})
	r.Register(NewDomainGroup("/test").GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	}))
	r.Setup()
	engine.GET("/outside", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/test/ping", nil))
	assert.Equal(t, "true", w.Header().Get("X-API"))

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest("GET", "/outside", nil))
	assert.Empty(t, w.Header().Get("X-API"))
}

func TestDomainGroup(t *testing.T) {
	t.Run("registers POST route", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("/test")
		g.POST("/items", func(c *gin.Context) {
			c.String(http.StatusCreated, "created")
		})

		g.RegisterRoutes(engine.Group("/api/v1"))

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/test/items", nil))
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("group middleware reaches subgroups only below it", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("/analytics")
		g.GET("/open", func(c *gin.Context) { c.Status(http.StatusOK) })
		g.Group("/stock").
			Use(func(c *gin.Context) { c.AbortWithStatus(http.StatusForbidden) }).
			GET("/ruptures", func(c *gin.Context) { c.Status(http.StatusOK) })

		g.RegisterRoutes(engine.Group("/api/v1"))

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/analytics/open", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/analytics/stock/ruptures", nil))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("applies middleware", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("/test")
		g.Use(func(c *gin.Context) {
			c.AbortWithStatus(http.StatusTeapot)
		})
		g.GET("/items", func(c *gin.Context) {
			c.Status(http.StatusOK)
		})

		g.RegisterRoutes(engine.Group("/api/v1"))

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/test/items", nil))
		assert.Equal(t, http.StatusTeapot, w.Code)
	})

	t.Run("creates subgroups", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("/analytics")
		g.Group("/stock").POST("/ruptures", func(c *gin.Context) {
			c.String(http.StatusOK, "ruptures")
		})

		g.RegisterRoutes(engine.Group("/api/v1"))

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/analytics/stock/ruptures", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ruptures", w.Body.String())
	})
}

// emptyAnalyticsService answers every endpoint with no rows
type emptyAnalyticsService struct{}

func (emptyAnalyticsService) CompetitiveAnalysis(context.Context, analytics.EnforcedFilters) (analyticsapp.Result[analytics.CompetitiveRow], error) {
	return analyticsapp.Result[analytics.CompetitiveRow]{Rows: []analytics.CompetitiveRow{}}, nil
}

func (emptyAnalyticsService) ProductSales(context.Context, analytics.EnforcedFilters) (analyticsapp.Result[analytics.ProductRow], error) {
	return analyticsapp.Result[analytics.ProductRow]{Rows: []analytics.ProductRow{}}, nil
}

func (emptyAnalyticsService) LaboratoryMarketShare(context.Context, analytics.EnforcedFilters) (analyticsapp.Result[analytics.LaboratoryRow], error) {
	return analyticsapp.Result[analytics.LaboratoryRow]{Rows: []analytics.LaboratoryRow{}}, nil
}

func (emptyAnalyticsService) PharmacyBenchmark(context.Context, analytics.EnforcedFilters) (analyticsapp.Result[analytics.PharmacyRow], error) {
	return analyticsapp.Result[analytics.PharmacyRow]{Rows: []analytics.PharmacyRow{}}, nil
}

func (emptyAnalyticsService) SalesEvolution(context.Context, analytics.EnforcedFilters) (analyticsapp.Result[analytics.EvolutionRow], error) {
	return analyticsapp.Result[analytics.EvolutionRow]{Rows: []analytics.EvolutionRow{}}, nil
}

func (emptyAnalyticsService) StockRuptures(context.Context, analytics.EnforcedFilters) (analyticsapp.Result[analytics.RuptureRow], error) {
	return analyticsapp.Result[analytics.RuptureRow]{Rows: []analytics.RuptureRow{}}, nil
}

func setupAnalytics(t *testing.T, role identity.Role, pharmacyID uuid.UUID) *gin.Engine {
	t.Helper()
	engine := gin.New()
	r := NewRouter(engine)
	if role != "" {
		sc, err := identity.NewSecurityContext(uuid.New(), "tester", role, pharmacyID)
		require.NoError(t, err)
		r.Use(func(c *gin.Context) {
			c.Set(middleware.SecurityContextKey, sc)
			c.Next()
		})
	}
	r.Register(AnalyticsRoutes(handler.NewAnalyticsHandler(emptyAnalyticsService{})))
	r.Setup()
	return engine
}

func postJanuary(engine *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path,
		strings.NewReader(`{"dateRange":{"start":"2024-01-01","end":"2024-01-31"}}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestAnalyticsRoutes(t *testing.T) {
	paths := []string{
		"/api/v1/analytics/competitive-analysis",
		"/api/v1/analytics/products",
		"/api/v1/analytics/laboratories/market-share",
		"/api/v1/analytics/sales/evolution",
		"/api/v1/analytics/stock/ruptures",
	}

	engine := setupAnalytics(t, identity.RoleUser, uuid.New())
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			w := postJanuary(engine, path)
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestAnalyticsRoutes_PharmaciesAdminOnly(t *testing.T) {
	const path = "/api/v1/analytics/pharmacies"

	t.Run("admin", func(t *testing.T) {
		w := postJanuary(setupAnalytics(t, identity.RoleAdmin, uuid.Nil), path)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("user", func(t *testing.T) {
		w := postJanuary(setupAnalytics(t, identity.RoleUser, uuid.New()), path)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("anonymous", func(t *testing.T) {
		w := postJanuary(setupAnalytics(t, "", uuid.Nil), path)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAnalyticsRoutes_APIVersion(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v2"))
	sc, err := identity.NewSecurityContext(uuid.New(), "tester", identity.RoleUser, uuid.New())
	require.NoError(t, err)
	r.Use(func(c *gin.Context) {
		c.Set(middleware.SecurityContextKey, sc)
		c.Next()
	})
	r.Register(AnalyticsRoutes(handler.NewAnalyticsHandler(emptyAnalyticsService{})))
	r.Setup()

	assert.Equal(t, http.StatusOK, postJanuary(engine, "/api/v2/analytics/stock/ruptures").Code)
	assert.Equal(t, http.StatusNotFound, postJanuary(engine, "/api/v1/analytics/stock/ruptures").Code)
}

func TestRegisterHealthRoutes(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine).Use(func(c *gin.Context) {
		c.AbortWithStatus(http.StatusUnauthorized)
	})
	r.Setup()

	failing := handler.PingFunc(func(context.Context) error { return errors.New("connection refused") })
	RegisterHealthRoutes(engine, handler.NewHealthHandler(map[string]handler.Pinger{"database": failing}))

	tests := []struct {
		path string
		want int
	}{
		{"/health", http.StatusOK},
		{"/health/ready", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
