// Package router assembles the versioned API route tree.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pharmalytics/backend/internal/interfaces/http/handler"
	"github.com/pharmalytics/backend/internal/interfaces/http/middleware"
)

// RouteRegistrar mounts its routes under a parent group
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router mounts registrars under /api/<version> with the shared API middleware
type Router struct {
	engine     *gin.Engine
	apiVersion string
	middleware []gin.HandlerFunc
	registrars []RouteRegistrar
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithAPIVersion sets the version segment of the API prefix. Empty keeps v1.
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		if version != "" {
			r.apiVersion = version
		}
	}
}

// NewRouter creates a Router serving /api/v1 unless configured otherwise
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine, apiVersion: "v1"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Use adds middleware applied to every versioned API route
func (r *Router) Use(middleware ...gin.HandlerFunc) *Router {
	r.middleware = append(r.middleware, middleware...)
	return r
}

// Register queues a registrar for Setup
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup mounts every registered group on the engine
func (r *Router) Setup() {
	api := r.engine.Group("/api/" + r.apiVersion)
	api.Use(r.middleware...)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// DomainGroup is a declarative route group: routes and nested groups are
// collected first and mounted together by RegisterRoutes.
type DomainGroup struct {
	prefix     string
	middleware []gin.HandlerFunc
	routes     []route
	subgroups  []*DomainGroup
}

type route struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewDomainGroup creates a group mounted at prefix
func NewDomainGroup(prefix string) *DomainGroup {
	return &DomainGroup{prefix: prefix}
}

// Use adds middleware to this group and its subgroups
func (dg *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	dg.middleware = append(dg.middleware, middleware...)
	return dg
}

// GET adds a GET route
func (dg *DomainGroup) GET(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodGet, path, handlers)
}

// POST adds a POST route
func (dg *DomainGroup) POST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodPost, path, handlers)
}

func (dg *DomainGroup) handle(method, path string, handlers []gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, route{method: method, path: path, handlers: handlers})
	return dg
}

// Group returns a nested group mounted at prefix below this one
func (dg *DomainGroup) Group(prefix string) *DomainGroup {
	sub := NewDomainGroup(prefix)
	dg.subgroups = append(dg.subgroups, sub)
	return sub
}

// RegisterRoutes implements RouteRegistrar
func (dg *DomainGroup) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(dg.prefix, dg.middleware...)
	for _, rt := range dg.routes {
		group.Handle(rt.method, rt.path, rt.handlers...)
	}
	for _, sub := range dg.subgroups {
		sub.RegisterRoutes(group)
	}
}

// AnalyticsRoutes builds the /analytics tree. The pharmacy benchmark is
// restricted to admins before the handler runs.
func AnalyticsRoutes(h *handler.AnalyticsHandler) *DomainGroup {
	g := NewDomainGroup("/analytics")
	g.POST("/competitive-analysis", h.CompetitiveAnalysis)
	g.POST("/products", h.ProductSales)
	g.POST("/pharmacies", middleware.RequireAdmin(), h.PharmacyBenchmark)
	g.Group("/laboratories").POST("/market-share", h.LaboratoryMarketShare)
	g.Group("/sales").POST("/evolution", h.SalesEvolution)
	g.Group("/stock").POST("/ruptures", h.StockRuptures)
	return g
}

// HealthRoutes builds the /health probes
func HealthRoutes(h *handler.HealthHandler) *DomainGroup {
	return NewDomainGroup("/health").
		GET("", h.Health).
		GET("/ready", h.Ready)
}

// RegisterHealthRoutes mounts the probes on the engine root, outside API
// versioning and the API middleware.
func RegisterHealthRoutes(engine *gin.Engine, h *handler.HealthHandler) {
	HealthRoutes(h).RegisterRoutes(&engine.RouterGroup)
}
