// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"unitrack/internal/infrastructure/http/v1/dto"
	"unitrack/internal/infrastructure/http/v1/handlers"
	"unitrack/internal/infrastructure/http/v1/middleware"
	"unitrack/internal/infrastructure/metrics"
	"unitrack/internal/infrastructure/storage/postgres"
	"unitrack/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Engine serves the unit endpoints
	Engine handlers.UnitEngine

	// Pool is reported by health checks; nil on the in-memory store
	Pool *postgres.Pool

	// HealthChecks are extra readiness checks, keyed by name
	HealthChecks map[string]handlers.Pinger

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// DefaultLowStock is the low-stock threshold when a request names none
	DefaultLowStock int

	// Metrics enables /metrics and request and engine counters; nil disables
	Metrics *metrics.Metrics

	// ServiceName names the request spans
	ServiceName string

	// CORSOrigins lists allowed browser origins; empty allows any
	CORSOrigins []string

	// Development enables gin debug mode
	Development bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "unitrack"
	}
	if err := dto.RegisterValidators(); err != nil {
		panic(err)
	}

	router := gin.New()

	// Global middleware (order matters!). Recovery sits inside ErrorHandler
	// so a recovered panic is still rendered as JSON.
	router.Use(middleware.Trace())
	router.Use(middleware.Tracing(cfg.ServiceName))
	router.Use(middleware.CORS(cfg.CORSOrigins))
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.Middleware())
	}
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())

	healthHandler := handlers.NewHealthHandler(cfg.Pool, cfg.HealthChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	engine := cfg.Engine
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
		engine = cfg.Metrics.InstrumentEngine(engine)
	}

	v1 := router.Group("/api/v1")
	{
		facility := v1.Group("/facilities/:facility")
		facility.Use(middleware.Auth(cfg.JWTValidator))
		facility.Use(middleware.RequireFacility())
		facility.Use(middleware.Idempotency())

		unitHandler := handlers.NewUnitHandler(handlers.NewBaseHandler(), engine, cfg.DefaultLowStock)
		RegisterUnitRoutes(facility, unitHandler)
	}

	return router
}
