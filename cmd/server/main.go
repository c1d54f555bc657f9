// Command server runs the pharmacy analytics HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	analyticsapp "github.com/pharmalytics/backend/internal/application/analytics"
	"github.com/pharmalytics/backend/internal/infrastructure/auth"
	"github.com/pharmalytics/backend/internal/infrastructure/cache"
	"github.com/pharmalytics/backend/internal/infrastructure/config"
	"github.com/pharmalytics/backend/internal/infrastructure/logger"
	"github.com/pharmalytics/backend/internal/infrastructure/persistence"
	"github.com/pharmalytics/backend/internal/infrastructure/telemetry"
	"github.com/pharmalytics/backend/internal/interfaces/http/handler"
	"github.com/pharmalytics/backend/internal/interfaces/http/middleware"
	"github.com/pharmalytics/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/pharmalytics/backend"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting Pharmalytics analytics API",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Telemetry first so the database and HTTP instrumentation pick up the global providers
	provider, err := telemetry.NewProvider(context.Background(), telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
		LogsEnabled:       cfg.Telemetry.LogsEnabled,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	log = provider.BridgeLogger(log, logger.ParseLevel(cfg.Log.Level))
	meter := provider.Meter(instrumentationName)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Telemetry.ProfilingEnabled,
		ServerAddress:     cfg.Telemetry.ProfilingServerAddress,
		ApplicationName:   cfg.Telemetry.ServiceName,
		BasicAuthUser:     cfg.Telemetry.ProfilingBasicAuthUser,
		BasicAuthPassword: cfg.Telemetry.ProfilingBasicAuthPassword,
		ProfileTypes:      cfg.Telemetry.ProfilingTypes,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() && cfg.Telemetry.SpanProfilesEnabled {
		provider.EnableSpanProfiles()
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), cfg.Database.SlowThreshold)
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBName:          cfg.Database.DBName,
	}, log)
	if err := dbTracing.Register(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	log.Info("Database connected successfully")

	store, err := cache.NewResultStore(cfg.Cache, cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to initialize result cache", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Error closing result cache", zap.Error(err))
		}
	}()

	analyticsMetrics, err := telemetry.NewAnalyticsMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create analytics metrics", zap.Error(err))
	}

	repo := persistence.NewGormAnalyticsRepository(db.DB, cfg.Analytics.MaxRows)
	cacheAside := analyticsapp.NewCacheAside(store, cfg.Cache.Enabled, analyticsMetrics, log)
	analyticsService := analyticsapp.NewService(repo, cacheAside, cfg.Analytics, analyticsMetrics, log)
	jwtService := auth.NewJWTService(cfg.JWT)

	middleware.SetupValidator()
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Strings("proxies", cfg.HTTP.TrustedProxies), zap.Error(err))
	}

	// Order matters: the request id feeds the logger and the span, and the
	// tracing span must be open before anything that annotates it.
	engine.Use(
		middleware.RequestID(),
		logger.Recovery(log),
		middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		}),
		middleware.SpanErrorMarker(),
		logger.GinMiddleware(log),
		middleware.HTTPMetrics(meter),
		middleware.Secure(),
		middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
			AllowMethods:     cfg.HTTP.CORSAllowMethods,
			AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
			ExposeHeaders:    []string{middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)

	r := router.NewRouter(engine, router.WithAPIVersion(cfg.HTTP.APIVersion))
	r.Use(
		middleware.JWTAuth(middleware.JWTMiddlewareConfig{Parser: jwtService, Logger: log}),
		middleware.TracingAttributeInjector(),
	)

	var limiter *middleware.RateLimiter
	if cfg.HTTP.RateLimitEnabled {
		limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		r.Use(middleware.RateLimit(limiter))
	}

	r.Register(router.AnalyticsRoutes(handler.NewAnalyticsHandler(analyticsService)))
	r.Setup()

	router.RegisterHealthRoutes(engine, handler.NewHealthHandler(map[string]handler.Pinger{
		"database": db,
		"cache":    store,
	}))

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if limiter != nil {
		limiter.Stop()
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Profiler shutdown failed", zap.Error(err))
	}
	if err := provider.Shutdown(ctx); err != nil {
		log.Error("Telemetry shutdown failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
