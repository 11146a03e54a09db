package valuation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"lagervarde/internal/core/apperror"
	appctx "lagervarde/internal/core/context"
	"lagervarde/internal/core/id"
	"lagervarde/internal/domain/feeds"
	"lagervarde/pkg/logger"
)

var tracer = otel.Tracer("lagervarde/valuation")

// Config holds valuation engine configuration.
type Config struct {
	// AgeBuckets are the stock-age thresholds for the summary breakdown.
	AgeBuckets AgeBucketConfig

	// Workers bounds the per-SKU build parallelism. Zero means 8.
	Workers int
}

// Service is the valuation engine: it fetches the snapshot and ledgers,
// builds FIFO layers per SKU and aggregates them into the valuation tree.
// It is a pure read-side computation; upstream data is never mutated.
type Service struct {
	stock   feeds.StockProvider
	channel feeds.ChannelProvider // nil when no secondary channel is wired
	ledger  feeds.LedgerProvider
	rates   RateResolver
	agg     *Aggregator
	workers int
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the valuation engine.
func NewService(stock feeds.StockProvider, channel feeds.ChannelProvider, ledger feeds.LedgerProvider, rr RateResolver, cfg Config, opts ...Option) *Service {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 8
	}
	s := &Service{
		stock:   stock,
		channel: channel,
		ledger:  ledger,
		rates:   rr,
		agg:     NewAggregator(cfg.AgeBuckets),
		workers: workers,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run computes a full portfolio valuation for a company.
//
// The stock snapshot is mandatory: without it there is no well-defined
// output and the run fails loudly. Every other feed degrades to empty with a
// data-quality note, so one broken connector never hides the rest of the
// portfolio.
func (s *Service) Run(ctx context.Context, companyID string) (*PortfolioValuation, error) {
	runID := id.New().String()
	ctx = appctx.WithRun(ctx, &appctx.RunContext{RunID: runID, CompanyID: companyID})

	ctx, span := tracer.Start(ctx, "valuation.run",
		trace.WithAttributes(
			attribute.String("company_id", companyID),
			attribute.String("run_id", runID),
		))
	defer span.End()

	// One clock reading per run keeps age math and repeated runs over the
	// same input bit-identical.
	now := s.now().UTC()

	snapshot, channelRows, grouped, degraded, err := s.fetchAll(ctx, companyID)
	if err != nil {
		return nil, err
	}

	rows, collisions := mergeSnapshot(snapshot)
	channelOnly := mergeChannel(rows, channelRows)

	sizes, fallbackCurrencies, err := s.buildAll(ctx, now, rows, channelOnly, grouped)
	if err != nil {
		return nil, err
	}

	dq := DataQuality{
		FallbackRateCurrencies: fallbackCurrencies,
		SizeKeyCollisions:      collisions,
		EANCollisions:          grouped.EANCollisions(),
		DegradedSources:        degraded,
	}

	pv := s.agg.Portfolio(companyID, runID, now, sizes, dq)

	logger.Info(ctx, "valuation run complete",
		"products", len(pv.Products),
		"total_value", pv.Summary.TotalValue,
		"total_quantity", pv.Summary.TotalQuantity,
		"unknown_quantity", pv.Summary.UnknownQuantity,
		"degraded_sources", degraded,
	)
	return pv, nil
}

// fetchAll pulls all four feeds concurrently. Only a snapshot failure aborts.
func (s *Service) fetchAll(ctx context.Context, companyID string) (
	snapshot []feeds.OnHandRow,
	channelRows []feeds.ChannelStockRow,
	grouped *feeds.GroupedLedger,
	degraded []string,
	err error,
) {
	var (
		channelErr    error
		deliveriesErr error
		changesErr    error
		deliveries    []feeds.LedgerEntry
		stockChanges  []feeds.LedgerEntry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var ferr error
		snapshot, ferr = s.stock.FetchOnHand(gctx, companyID)
		if ferr != nil {
			// Mandatory feed: returning the error cancels the siblings.
			return apperror.NewSnapshotMissing(companyID, ferr)
		}
		return nil
	})
	g.Go(func() error {
		if s.channel == nil {
			return nil
		}
		channelRows, channelErr = s.channel.FetchChannelStock(gctx, companyID)
		return nil
	})
	g.Go(func() error {
		deliveries, deliveriesErr = s.ledger.FetchDeliveries(gctx, companyID)
		return nil
	})
	g.Go(func() error {
		stockChanges, changesErr = s.ledger.FetchStockChanges(gctx, companyID)
		return nil
	})
	if err = g.Wait(); err != nil {
		return nil, nil, nil, nil, err
	}

	for name, ferr := range map[string]error{
		"channel":      channelErr,
		"deliveries":   deliveriesErr,
		"stockChanges": changesErr,
	} {
		if ferr != nil {
			logger.Warn(ctx, "feed degraded to empty", "feed", name, "error", ferr)
			degraded = append(degraded, name)
		}
	}
	sort.Strings(degraded)

	grouped = feeds.GroupLedger(deliveries, stockChanges)
	return snapshot, channelRows, grouped, degraded, nil
}

// skuRow is one merged snapshot row: the per-SKU on-hand baseline.
type skuRow struct {
	feeds.OnHandRow
	StoreQty int
}

// mergeSnapshot combines duplicate snapshot rows per SKU key and reports
// keys claimed by more than one product. Collisions are surfaced, never
// merged into one product.
func mergeSnapshot(snapshot []feeds.OnHandRow) ([]skuRow, []string) {
	byKey := make(map[feeds.SKUKey]*skuRow, len(snapshot))
	colliding := make(map[feeds.SKUKey]struct{})
	var order []feeds.SKUKey

	for _, row := range snapshot {
		existing, ok := byKey[row.SKU]
		if !ok {
			r := skuRow{OnHandRow: row}
			byKey[row.SKU] = &r
			order = append(order, row.SKU)
			continue
		}
		existing.WarehouseQty += row.WarehouseQty
		if existing.ProductID != row.ProductID {
			colliding[row.SKU] = struct{}{}
		}
	}

	rows := make([]skuRow, 0, len(order))
	for _, k := range order {
		rows = append(rows, *byKey[k])
	}
	var collisions []string
	for k := range colliding {
		collisions = append(collisions, k.String())
	}
	sort.Strings(collisions)
	return rows, collisions
}

// mergeChannel folds channel quantities into snapshot rows (store location)
// and returns the channel rows with no snapshot match, which go through the
// channel-only reconciliation path.
func mergeChannel(rows []skuRow, channelRows []feeds.ChannelStockRow) []feeds.ChannelStockRow {
	index := make(map[feeds.SKUKey]*skuRow, len(rows))
	for i := range rows {
		index[rows[i].SKU] = &rows[i]
	}

	var unmatched []feeds.ChannelStockRow
	for _, cr := range channelRows {
		if cr.SKU != nil {
			if row, ok := index[*cr.SKU]; ok {
				row.StoreQty += cr.Quantity
				continue
			}
		}
		unmatched = append(unmatched, cr)
	}
	return unmatched
}

// buildAll runs the layer builder across all units with a bounded worker
// pool. SKUs share no mutable state, so builds are embarrassingly parallel;
// results keep their input slot to stay deterministic.
func (s *Service) buildAll(ctx context.Context, now time.Time, rows []skuRow, channelOnly []feeds.ChannelStockRow, grouped *feeds.GroupedLedger) ([]SizeValuation, []string, error) {
	results := make([]*SizeValuation, len(rows)+len(channelOnly))
	fallbacks := make([][]string, len(rows)+len(channelOnly))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i := range rows {
		i := i
		g.Go(func() error {
			sv, fb, err := s.buildSnapshotRow(gctx, now, rows[i], grouped)
			if err != nil {
				return err
			}
			results[i] = sv
			fallbacks[i] = fb
			return nil
		})
	}
	for j := range channelOnly {
		j := j
		g.Go(func() error {
			sv, fb, err := s.buildChannelOnly(gctx, now, channelOnly[j], grouped)
			if err != nil {
				return err
			}
			results[len(rows)+j] = sv
			fallbacks[len(rows)+j] = fb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var sizes []SizeValuation
	fallbackSet := make(map[string]struct{})
	for i, sv := range results {
		if sv == nil {
			continue
		}
		sizes = append(sizes, *sv)
		for _, cur := range fallbacks[i] {
			fallbackSet[cur] = struct{}{}
		}
	}
	return sizes, sortedKeys(fallbackSet), nil
}

// buildSnapshotRow values one snapshot SKU via the canonical size-key join.
// A SKU with zero on-hand across both locations is skipped entirely.
func (s *Service) buildSnapshotRow(ctx context.Context, now time.Time, row skuRow, grouped *feeds.GroupedLedger) (*SizeValuation, []string, error) {
	if row.WarehouseQty+row.StoreQty <= 0 {
		return nil, nil, nil
	}

	res, err := BuildLayers(ctx, s.rates, now, BuildInput{
		Key:          row.SKU,
		WarehouseQty: row.WarehouseQty,
		StoreQty:     row.StoreQty,
		Deliveries:   grouped.DeliveriesFor(row.SKU),
		StockChanges: grouped.StockChangesFor(row.SKU),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build layers for %s: %w", row.SKU, err)
	}

	sv := &SizeValuation{
		SKU:             row.SKU,
		EAN:             row.EAN,
		ProductID:       row.ProductID,
		ProductName:     row.ProductName,
		VariantName:     row.VariantName,
		WarehouseQty:    row.WarehouseQty,
		StoreQty:        row.StoreQty,
		UnknownQuantity: res.UnknownQuantity,
		Layers:          res.Layers,
		PrimarySource:   res.PrimarySource,
	}
	s.agg.FinishSize(sv)
	return sv, res.FallbackCurrencies, nil
}

// buildChannelOnly values a unit present only in the secondary channel. The
// on-hand baseline is the channel quantity in the store location; the ledger
// join uses the SKU key when the channel knows it and falls back to the EAN
// otherwise. A unit with no ledger data at all is excluded: no information,
// no fabricated value.
func (s *Service) buildChannelOnly(ctx context.Context, now time.Time, cr feeds.ChannelStockRow, grouped *feeds.GroupedLedger) (*SizeValuation, []string, error) {
	if cr.Quantity <= 0 {
		return nil, nil, nil
	}

	var deliveries, stockChanges []feeds.LedgerEntry
	if cr.SKU != nil {
		deliveries = grouped.DeliveriesFor(*cr.SKU)
		stockChanges = grouped.StockChangesFor(*cr.SKU)
	}
	if len(deliveries) == 0 && len(stockChanges) == 0 && cr.EAN != "" {
		deliveries, stockChanges = grouped.ByEAN(cr.EAN)
	}
	if len(deliveries) == 0 && len(stockChanges) == 0 {
		return nil, nil, nil
	}

	key := channelKey(cr, deliveries, stockChanges)
	res, err := BuildLayers(ctx, s.rates, now, BuildInput{
		Key:          key,
		WarehouseQty: 0,
		StoreQty:     cr.Quantity,
		Deliveries:   deliveries,
		StockChanges: stockChanges,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build channel-only layers for %s: %w", key, err)
	}

	name := cr.Name
	if name == "" {
		name = "Zettle " + cr.EAN
	}
	var ean *string
	if cr.EAN != "" {
		ean = &cr.EAN
	}
	sv := &SizeValuation{
		SKU:             key,
		EAN:             ean,
		ProductID:       "zettle:" + key.VariantID,
		ProductName:     name,
		VariantName:     name,
		StoreQty:        cr.Quantity,
		UnknownQuantity: res.UnknownQuantity,
		Layers:          res.Layers,
		PrimarySource:   res.PrimarySource,
	}
	s.agg.FinishSize(sv)
	return sv, res.FallbackCurrencies, nil
}

// channelKey picks the best SKU identity for a channel-only unit: the
// channel's own key, else the key carried by the joined ledger entries,
// else a synthetic EAN-based key.
func channelKey(cr feeds.ChannelStockRow, deliveries, stockChanges []feeds.LedgerEntry) feeds.SKUKey {
	if cr.SKU != nil {
		return *cr.SKU
	}
	for _, e := range deliveries {
		if !e.SKU.IsZero() {
			return e.SKU
		}
	}
	for _, e := range stockChanges {
		if !e.SKU.IsZero() {
			return e.SKU
		}
	}
	return feeds.SKUKey{VariantID: "ean:" + cr.EAN}
}
