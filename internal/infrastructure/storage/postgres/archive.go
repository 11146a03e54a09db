package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	"lagervarde/internal/domain/valuation"
)

const valuationRunsTable = "valuation_runs"

// CompressionAlgo specifies the compression algorithm used for a payload.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// RunRecord is the archived header of one valuation run. The full tree is
// stored compressed alongside it and only decoded on demand.
type RunRecord struct {
	RunID           string    `db:"run_id"`
	CompanyID       string    `db:"company_id"`
	GeneratedAt     time.Time `db:"generated_at"`
	TotalValue      string    `db:"total_value"`
	TotalQuantity   int       `db:"total_quantity"`
	UnknownQuantity int       `db:"unknown_quantity"`
	CreatedAt       time.Time `db:"created_at"`
}

// RunArchive persists completed valuation runs. Runs are immutable once
// written; a new run is always a new row.
type RunArchive struct {
	pool    *Pool
	builder squirrel.StatementBuilderType
	encoder *zstd.Encoder
	decoder *zstd.Decoder

	// compressThreshold is the payload size in bytes above which zstd kicks
	// in. Small portfolios are stored as plain JSON.
	compressThreshold int
}

// NewRunArchive creates a new run archive.
func NewRunArchive(pool *Pool) (*RunArchive, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &RunArchive{
		pool:              pool,
		builder:           squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
	}, nil
}

// Save archives a completed valuation run.
func (a *RunArchive) Save(ctx context.Context, pv *valuation.PortfolioValuation) error {
	payload, err := json.Marshal(pv)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	algo := CompressionNone
	if len(payload) > a.compressThreshold {
		payload = a.encoder.EncodeAll(payload, nil)
		algo = CompressionZstd
	}

	q := a.builder.Insert(valuationRunsTable).
		Columns(
			"run_id", "company_id", "generated_at",
			"total_value", "total_quantity", "unknown_quantity",
			"payload", "compression_algo", "created_at",
		).
		Values(
			pv.RunID, pv.CompanyID, pv.GeneratedAt,
			pv.Summary.TotalValue.String(), pv.Summary.TotalQuantity, pv.Summary.UnknownQuantity,
			payload, string(algo), time.Now().UTC(),
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := a.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// List returns run headers for a company, newest first.
func (a *RunArchive) List(ctx context.Context, companyID string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	q := a.builder.Select(
		"run_id", "company_id", "generated_at",
		"total_value::text AS total_value", "total_quantity", "unknown_quantity",
		"created_at",
	).From(valuationRunsTable).
		Where(squirrel.Eq{"company_id": companyID}).
		OrderBy("generated_at DESC").
		Limit(uint64(limit))

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var records []RunRecord
	if err := pgxscan.Select(ctx, a.pool, &records, sql, args...); err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	return records, nil
}

// Get loads one archived run and decodes the full valuation tree.
func (a *RunArchive) Get(ctx context.Context, runID string) (*valuation.PortfolioValuation, error) {
	q := a.builder.Select("payload", "compression_algo").
		From(valuationRunsTable).
		Where(squirrel.Eq{"run_id": runID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row struct {
		Payload         []byte `db:"payload"`
		CompressionAlgo string `db:"compression_algo"`
	}
	if err := pgxscan.Get(ctx, a.pool, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get run: %w", err)
	}

	payload := row.Payload
	if CompressionAlgo(row.CompressionAlgo) == CompressionZstd {
		payload, err = a.decoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress run: %w", err)
		}
	}

	var pv valuation.PortfolioValuation
	if err := json.Unmarshal(payload, &pv); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &pv, nil
}
