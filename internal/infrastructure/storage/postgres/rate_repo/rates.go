// Package rate_repo provides the PostgreSQL implementation of the exchange
// rate observation cache.
package rate_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"lagervarde/internal/domain/rates"
	"lagervarde/internal/infrastructure/storage/postgres"
)

const rateObservationsTable = "rate_observations"

// RateRepo implements rates.Repository on PostgreSQL. The table is
// append-only: (currency, rate_date) is the primary key and conflicting
// writes are dropped, so the first observation for a date always wins.
type RateRepo struct {
	pool    *postgres.Pool
	builder squirrel.StatementBuilderType
}

// NewRateRepo creates a new rate observation repository.
func NewRateRepo(pool *postgres.Pool) *RateRepo {
	return &RateRepo{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// observationRow is the scan target. The rate is selected as text because
// numeric precision must survive the round trip unchanged.
type observationRow struct {
	Currency string    `db:"currency"`
	RateDate time.Time `db:"rate_date"`
	Rate     string    `db:"rate"`
	Quality  string    `db:"quality"`
}

// LoadCurrency implements rates.Repository.
func (r *RateRepo) LoadCurrency(ctx context.Context, currency string) ([]rates.Observation, error) {
	q := r.builder.Select(
		"currency", "rate_date", "rate::text AS rate", "quality",
	).From(rateObservationsTable).
		Where(squirrel.Eq{"currency": currency}).
		OrderBy("rate_date")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []observationRow
	if err := pgxscan.Select(ctx, r.pool, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select observations: %w", err)
	}

	obs := make([]rates.Observation, 0, len(rows))
	for _, row := range rows {
		rate, err := decimal.NewFromString(row.Rate)
		if err != nil {
			return nil, fmt.Errorf("parse rate %q for %s: %w", row.Rate, row.Currency, err)
		}
		obs = append(obs, rates.Observation{
			Currency: row.Currency,
			Date:     rates.DateKey(row.RateDate),
			Rate:     rate,
			Quality:  parseQuality(row.Quality),
		})
	}
	return obs, nil
}

// SaveObservations implements rates.Repository.
func (r *RateRepo) SaveObservations(ctx context.Context, obs []rates.Observation) error {
	if len(obs) == 0 {
		return nil
	}

	q := r.builder.Insert(rateObservationsTable).
		Columns("currency", "rate_date", "rate", "quality")
	for _, o := range obs {
		q = q.Values(o.Currency, o.Date, o.Rate.String(), o.Quality.String())
	}
	q = q.Suffix("ON CONFLICT (currency, rate_date) DO NOTHING")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert observations: %w", err)
	}
	return nil
}

func parseQuality(s string) rates.Quality {
	switch s {
	case "carried":
		return rates.QualityCarried
	case "fallback":
		return rates.QualityFallback
	default:
		return rates.QualityObserved
	}
}

// Ensure interface compliance.
var _ rates.Repository = (*RateRepo)(nil)
