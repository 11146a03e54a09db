// Package main is the entry point for the lagervarde background worker. It
// keeps the exchange-rate cache warm so API valuation runs never pay the
// cold-fetch cost against the rate provider.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"lagervarde/internal/domain/rates"
	"lagervarde/internal/infrastructure/ratefeed"
	"lagervarde/internal/infrastructure/storage/postgres"
	"lagervarde/internal/infrastructure/storage/postgres/rate_repo"
	"lagervarde/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting lagervarde rate worker")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("DATABASE_URL")))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	source := ratefeed.NewClient(mustEnv("RATEFEED_URL"))
	repo := rate_repo.NewRateRepo(pool)
	resolver := rates.NewResolver(repo, source)

	currencies := splitCurrencies(getEnv("RATE_CURRENCIES", "EUR,USD,GBP,NOK,DKK"))
	interval := getEnvDuration("RATE_REFRESH_INTERVAL", 24*time.Hour)

	worker := NewRateWorker(resolver, pool, currencies, interval, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// RateWorker refreshes the observation cache on a fixed interval.
type RateWorker struct {
	resolver   *rates.Resolver
	pool       *postgres.Pool
	currencies []string
	interval   time.Duration
	log        *logger.Logger
}

func NewRateWorker(resolver *rates.Resolver, pool *postgres.Pool, currencies []string, interval time.Duration, log *logger.Logger) *RateWorker {
	return &RateWorker{
		resolver:   resolver,
		pool:       pool,
		currencies: currencies,
		interval:   interval,
		log:        log.WithComponent("rate-worker"),
	}
}

// Run refreshes immediately on start, then on every tick.
func (w *RateWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(1 * time.Hour)
	defer statsTicker.Stop()

	w.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.refresh(ctx)
		case <-statsTicker.C:
			postgres.LogPoolStats(ctx, w.pool.Unwrap())
		}
	}
}

// refresh resolves today's rate for every configured currency. A lookup past
// the cached range makes the resolver fetch the missing days from the
// provider and persist them, which is exactly the cache warm-up we want.
func (w *RateWorker) refresh(ctx context.Context) {
	today := time.Now().UTC()
	for _, currency := range w.currencies {
		rate, quality, err := w.resolver.GetRate(ctx, currency, today)
		if err != nil {
			w.log.Errorw("rate refresh failed", "currency", currency, "error", err)
			continue
		}
		w.log.Infow("rate refreshed",
			"currency", currency,
			"date", rates.DateKey(today),
			"rate", rate.String(),
			"quality", quality.String(),
		)
	}
}

func splitCurrencies(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" && p != rates.BaseCurrency {
			out = append(out, p)
		}
	}
	return out
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
