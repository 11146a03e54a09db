// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"lagervarde/internal/domain/rates"
	"lagervarde/internal/domain/valuation"
	"lagervarde/internal/infrastructure/http/v1/handlers"
	"lagervarde/internal/infrastructure/http/v1/middleware"
	"lagervarde/internal/infrastructure/storage/postgres"
	"lagervarde/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// Pool is the database connection (nil in fixture mode)
	Pool *postgres.Pool

	// Valuation runs the engine
	Valuation *valuation.Service

	// Archive stores completed runs (nil in fixture mode)
	Archive *postgres.RunArchive

	// RateResolver answers rate lookups
	RateResolver *rates.Resolver

	// RateSource is the upstream provider (nil when not configured)
	RateSource rates.Source

	// RateRepo is the observation cache store
	RateRepo rates.Repository
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	// API v1
	base := handlers.NewBaseHandler()
	v1 := router.Group("/api/v1")
	{
		valuationHandler := handlers.NewValuationHandler(base, cfg.Valuation, cfg.Archive)
		companies := v1.Group("/companies/:companyId")
		{
			companies.POST("/valuations", valuationHandler.Run)
			companies.GET("/valuations", valuationHandler.List)
		}
		runs := v1.Group("/runs/:runId")
		{
			runs.GET("", valuationHandler.Get)
			runs.GET("/export", valuationHandler.Export)
		}

		ratesHandler := handlers.NewRatesHandler(base, cfg.RateResolver, cfg.RateSource, cfg.RateRepo)
		ratesGroup := v1.Group("/rates")
		{
			ratesGroup.POST("/backfill", ratesHandler.Backfill)
			ratesGroup.GET("/:currency", ratesHandler.Get)
		}
	}

	return router
}
