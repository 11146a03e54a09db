package rates

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"lagervarde/internal/core/types"
	"lagervarde/pkg/logger"
)

// Source fetches observations from the upstream rate-provider API.
// Implementations handle provider rate-limiting (backoff on 429) internally;
// the resolver retries the whole fetch at most once per lookup.
type Source interface {
	FetchRange(ctx context.Context, currency string, from, to time.Time) ([]Observation, error)
}

// defaultEpoch is the earliest date ever fetched from the provider when a
// currency has no cached data at all.
var defaultEpoch = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)

// Resolver answers GetRate(currency, date) lookups against the observation
// cache, fetching missing days from the upstream source when a lookup lands
// past the cached range and carrying rates forward over non-trading days
// inside it.
//
// Concurrency: independent currencies resolve in parallel. Each currency's
// cache segment has a single writer (its own lock); reads take the segment's
// read lock only, so steady-state lookups never contend across currencies.
type Resolver struct {
	repo   Repository
	source Source // nil when no upstream is configured
	epoch  time.Time
	now    func() time.Time

	mu         sync.Mutex
	currencies map[string]*currencyCache
}

type currencyCache struct {
	mu     sync.RWMutex
	loaded bool
	dates  []string               // sorted ascending
	byDate map[string]Observation
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithEpoch overrides the first-fetch epoch.
func WithEpoch(epoch time.Time) Option {
	return func(r *Resolver) { r.epoch = epoch }
}

// NewResolver creates a Resolver over a repository and an optional upstream
// source.
func NewResolver(repo Repository, source Source, opts ...Option) *Resolver {
	r := &Resolver{
		repo:       repo,
		source:     source,
		epoch:      defaultEpoch,
		now:        time.Now,
		currencies: make(map[string]*currencyCache),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetRate returns SEK units per one unit of currency on the given calendar
// date. The base currency always resolves to 1 with observed quality.
//
// Resolution order: exact cached date; for a date past the cached range,
// upstream fetch of the missing days and an exact retry; nearest prior
// cached date carried forward (written back under the requested date so the
// next weekend/holiday lookup is a cache hit); and finally rate 1 flagged as
// fallback quality. Carry-forward never preempts the fetch: a stale cache
// must not freeze rates the provider has since published. The fallback is
// preserved for parity with the reports this engine replaces; callers must
// surface it, never absorb it.
func (r *Resolver) GetRate(ctx context.Context, currency string, date time.Time) (types.Money, Quality, error) {
	if currency == "" || currency == BaseCurrency {
		return decimal.NewFromInt(1), QualityObserved, nil
	}

	day := DateKey(date)
	cc := r.segment(currency)

	if err := r.ensureLoaded(ctx, currency, cc); err != nil {
		// A broken cache store degrades to the upstream path; it must not
		// abort the valuation.
		logger.Warn(ctx, "rate cache load failed, continuing without cache",
			"currency", currency, "error", err)
	}

	if obs, ok := r.exact(cc, day); ok {
		return obs.Rate, obs.Quality, nil
	}

	// Past the cached range the provider may have newer observations; an
	// empty cache compares past "" too. Inside the range a miss is a
	// non-trading day and the fetch is skipped.
	if r.source != nil && day > r.latestCached(cc) {
		r.fetchAndMerge(ctx, currency, cc, day)
		if obs, ok := r.exact(cc, day); ok {
			return obs.Rate, obs.Quality, nil
		}
	}

	if obs, quality, ok := r.carryForward(ctx, currency, cc, day); ok {
		return obs.Rate, quality, nil
	}

	logger.Warn(ctx, "no exchange rate at or before date, falling back to 1",
		"currency", currency, "date", day)
	return decimal.NewFromInt(1), QualityFallback, nil
}

// segment returns the per-currency cache segment, creating it on first use.
func (r *Resolver) segment(currency string) *currencyCache {
	r.mu.Lock()
	defer r.mu.Unlock()

	cc := r.currencies[currency]
	if cc == nil {
		cc = &currencyCache{byDate: make(map[string]Observation)}
		r.currencies[currency] = cc
	}
	return cc
}

func (r *Resolver) ensureLoaded(ctx context.Context, currency string, cc *currencyCache) error {
	cc.mu.RLock()
	loaded := cc.loaded
	cc.mu.RUnlock()
	if loaded {
		return nil
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.loaded {
		return nil
	}

	obs, err := r.repo.LoadCurrency(ctx, currency)
	if err != nil {
		cc.loaded = true // do not retry the load on every lookup
		return err
	}
	for _, o := range obs {
		if _, exists := cc.byDate[o.Date]; !exists {
			cc.byDate[o.Date] = o
			cc.dates = append(cc.dates, o.Date)
		}
	}
	sort.Strings(cc.dates)
	cc.loaded = true
	return nil
}

// exact answers an exact-date hit from the in-memory segment.
func (r *Resolver) exact(cc *currencyCache, day string) (Observation, bool) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	obs, ok := cc.byDate[day]
	return obs, ok
}

// latestCached returns the latest cached date, or "" for an empty segment.
func (r *Resolver) latestCached(cc *currencyCache) string {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	if len(cc.dates) == 0 {
		return ""
	}
	return cc.dates[len(cc.dates)-1]
}

// carryForward resolves the nearest prior cached date.
func (r *Resolver) carryForward(ctx context.Context, currency string, cc *currencyCache, day string) (Observation, Quality, bool) {
	cc.mu.RLock()
	prior, ok := nearestPrior(cc.dates, day)
	var priorObs Observation
	if ok {
		priorObs = cc.byDate[prior]
	}
	cc.mu.RUnlock()

	if !ok {
		return Observation{}, 0, false
	}

	// Write the carried rate back under the requested date so weekend and
	// holiday lookups are exact hits next time.
	carried := Observation{Currency: currency, Date: day, Rate: priorObs.Rate, Quality: QualityCarried}
	r.insert(cc, carried)
	if err := r.repo.SaveObservations(ctx, []Observation{carried}); err != nil {
		logger.Warn(ctx, "failed to persist carried rate observation",
			"currency", currency, "date", day, "error", err)
	}
	return carried, QualityCarried, true
}

// fetchAndMerge pulls a date range from the upstream source and merges it
// into the segment and the repository. The range starts the day after the
// latest cached observation, or at the epoch when the cache is empty.
func (r *Resolver) fetchAndMerge(ctx context.Context, currency string, cc *currencyCache, day string) {
	cc.mu.RLock()
	var from time.Time
	if len(cc.dates) > 0 {
		latest, err := time.Parse(DateLayout, cc.dates[len(cc.dates)-1])
		if err == nil {
			from = latest.AddDate(0, 0, 1)
		}
	}
	cc.mu.RUnlock()
	if from.IsZero() {
		from = r.epoch
	}

	to := r.now().UTC()
	if !from.Before(to) {
		return
	}

	fetched, err := r.source.FetchRange(ctx, currency, from, to)
	if err != nil {
		logger.Warn(ctx, "rate provider fetch failed",
			"currency", currency, "from", DateKey(from), "to", DateKey(to), "error", err)
		return
	}

	merged := make([]Observation, 0, len(fetched))
	for _, o := range fetched {
		o.Currency = currency
		o.Quality = QualityObserved
		merged = append(merged, o)
	}
	for _, o := range merged {
		r.insert(cc, o)
	}
	if len(merged) > 0 {
		if err := r.repo.SaveObservations(ctx, merged); err != nil {
			logger.Warn(ctx, "failed to persist fetched rate observations",
				"currency", currency, "count", len(merged), "error", err)
		}
		logger.Info(ctx, "merged rate observations from provider",
			"currency", currency, "count", len(merged), "requested_date", day)
	}
}

func (r *Resolver) insert(cc *currencyCache, o Observation) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if _, exists := cc.byDate[o.Date]; exists {
		return
	}
	cc.byDate[o.Date] = o
	i := sort.SearchStrings(cc.dates, o.Date)
	cc.dates = append(cc.dates, "")
	copy(cc.dates[i+1:], cc.dates[i:])
	cc.dates[i] = o.Date
}

// nearestPrior returns the latest date in sorted dates that is <= day.
func nearestPrior(dates []string, day string) (string, bool) {
	i := sort.SearchStrings(dates, day)
	if i < len(dates) && dates[i] == day {
		return dates[i], true
	}
	if i == 0 {
		return "", false
	}
	return dates[i-1], true
}
