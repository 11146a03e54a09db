// Package main is the entry point for the lagervarde API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lagervarde/internal/domain/feeds"
	"lagervarde/internal/domain/rates"
	"lagervarde/internal/domain/valuation"
	"lagervarde/internal/infrastructure/feedhttp"
	"lagervarde/internal/infrastructure/fixture"
	v1 "lagervarde/internal/infrastructure/http/v1"
	"lagervarde/internal/infrastructure/ratefeed"
	"lagervarde/internal/infrastructure/storage/postgres"
	"lagervarde/internal/infrastructure/storage/postgres/rate_repo"
	"lagervarde/pkg/logger"
)

func main() {
	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("starting lagervarde server")

	// --- Database (optional: fixture mode runs without one) ---
	var pool *postgres.Pool
	var archive *postgres.RunArchive
	var rateRepo rates.Repository

	if dsn := getEnv("DATABASE_URL", ""); dsn != "" {
		pool, err = postgres.NewPool(ctx, postgres.DefaultPoolConfig(dsn))
		if err != nil {
			log.Fatalw("failed to connect to database", "error", err)
		}
		defer pool.Close()
		log.Info("database connection established")

		archive, err = postgres.NewRunArchive(pool)
		if err != nil {
			log.Fatalw("failed to create run archive", "error", err)
		}
		rateRepo = rate_repo.NewRateRepo(pool)
	} else {
		log.Warn("DATABASE_URL not set, rate cache is in-memory and runs are not archived")
		rateRepo = rates.NewInMemoryRepository()
	}

	// --- Exchange rate resolver ---
	var rateSource rates.Source
	if url := getEnv("RATEFEED_URL", ""); url != "" {
		rateSource = ratefeed.NewClient(url)
	} else {
		log.Warn("RATEFEED_URL not set, unresolvable rates fall back to 1")
	}
	resolver := rates.NewResolver(rateRepo, rateSource)

	// --- Feed providers ---
	stock, channel, ledger, err := buildProviders(log)
	if err != nil {
		log.Fatalw("failed to set up feed providers", "error", err)
	}

	// --- Valuation engine ---
	engine := valuation.NewService(stock, channel, ledger, resolver, valuation.Config{
		AgeBuckets: valuation.DefaultAgeBuckets(),
		Workers:    getEnvInt("VALUATION_WORKERS", 8),
	})

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Logger:       log,
		Pool:         pool,
		Valuation:    engine,
		Archive:      archive,
		RateResolver: resolver,
		RateSource:   rateSource,
		RateRepo:     rateRepo,
	})

	// --- HTTP Server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // a cold-cache valuation run can be slow
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

// buildProviders wires either the connector gateway or a local fixture file.
func buildProviders(log *logger.Logger) (feeds.StockProvider, feeds.ChannelProvider, feeds.LedgerProvider, error) {
	if path := getEnv("FIXTURE_PATH", ""); path != "" {
		log.Infow("using fixture feed provider", "path", path)
		p, err := fixture.Load(path)
		if err != nil {
			return nil, nil, nil, err
		}
		return p, p, p, nil
	}

	gateway := feedhttp.NewClient(mustEnv("FEED_GATEWAY_URL"))
	return gateway, gateway, gateway, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
