package rates

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lagervarde/internal/core/types"
)

func fixedClock(date string) func() time.Time {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

func day(date string) time.Time {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		panic(err)
	}
	return t
}

type fakeSource struct {
	mu      sync.Mutex
	obs     []Observation
	err     error
	calls   int
	lastReq [2]string
}

func (f *fakeSource) FetchRange(_ context.Context, currency string, from, to time.Time) ([]Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = [2]string{DateKey(from), DateKey(to)}
	if f.err != nil {
		return nil, f.err
	}
	var out []Observation
	for _, o := range f.obs {
		if o.Currency == currency && o.Date >= DateKey(from) && o.Date <= DateKey(to) {
			out = append(out, o)
		}
	}
	return out, nil
}

func TestGetRate_BaseCurrencyIdentity(t *testing.T) {
	r := NewResolver(NewInMemoryRepository(), nil, WithClock(fixedClock("2024-06-15")))

	rate, quality, err := r.GetRate(context.Background(), "SEK", day("2024-06-10"))
	require.NoError(t, err)
	assert.True(t, rate.Equal(types.MustMoney("1")))
	assert.Equal(t, QualityObserved, quality)
}

func TestGetRate_ExactCacheHit(t *testing.T) {
	repo := NewInMemoryRepository().Seed(
		Observation{Currency: "USD", Date: "2024-03-01", Rate: types.MustMoney("9.0")},
	)
	r := NewResolver(repo, nil, WithClock(fixedClock("2024-06-15")))

	rate, quality, err := r.GetRate(context.Background(), "USD", day("2024-03-01"))
	require.NoError(t, err)
	assert.True(t, rate.Equal(types.MustMoney("9.0")), "got %s", rate)
	assert.Equal(t, QualityObserved, quality)
}

func TestGetRate_CarriesForwardOverNonTradingDays(t *testing.T) {
	repo := NewInMemoryRepository().Seed(
		Observation{Currency: "EUR", Date: "2024-03-01", Rate: types.MustMoney("11.20")}, // Friday
	)
	r := NewResolver(repo, nil, WithClock(fixedClock("2024-06-15")))
	ctx := context.Background()

	rate, quality, err := r.GetRate(ctx, "EUR", day("2024-03-03")) // Sunday
	require.NoError(t, err)
	assert.True(t, rate.Equal(types.MustMoney("11.20")))
	assert.Equal(t, QualityCarried, quality)

	// Carried rate must be written back under the requested date, both in
	// the in-memory segment and the repository.
	persisted, err := repo.LoadCurrency(ctx, "EUR")
	require.NoError(t, err)
	var found bool
	for _, o := range persisted {
		if o.Date == "2024-03-03" {
			found = true
			assert.Equal(t, QualityCarried, o.Quality)
		}
	}
	assert.True(t, found, "carried observation not persisted under requested date")

	// Second lookup is an exact hit on the carried observation.
	rate2, quality2, err := r.GetRate(ctx, "EUR", day("2024-03-03"))
	require.NoError(t, err)
	assert.True(t, rate2.Equal(rate))
	assert.Equal(t, QualityCarried, quality2)
}

func TestGetRate_FetchesFromSourceOnCacheMiss(t *testing.T) {
	src := &fakeSource{obs: []Observation{
		{Currency: "USD", Date: "2024-03-01", Rate: types.MustMoney("9.0")},
		{Currency: "USD", Date: "2024-03-04", Rate: types.MustMoney("9.1")},
	}}
	repo := NewInMemoryRepository()
	r := NewResolver(repo, src, WithClock(fixedClock("2024-06-15")))
	ctx := context.Background()

	rate, quality, err := r.GetRate(ctx, "USD", day("2024-03-04"))
	require.NoError(t, err)
	assert.True(t, rate.Equal(types.MustMoney("9.1")), "got %s", rate)
	assert.Equal(t, QualityObserved, quality)
	assert.Equal(t, 1, src.calls)

	// Fetch starts at the epoch when the cache was empty.
	assert.Equal(t, DateKey(defaultEpoch), src.lastReq[0])
	assert.Equal(t, "2024-06-15", src.lastReq[1])

	// Fetched observations are persisted; a fresh resolver over the same
	// repository answers without touching the source again.
	r2 := NewResolver(repo, src, WithClock(fixedClock("2024-06-15")))
	_, _, err = r2.GetRate(ctx, "USD", day("2024-03-01"))
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
}

func TestGetRate_FetchStartsAfterLatestCachedDate(t *testing.T) {
	repo := NewInMemoryRepository().Seed(
		Observation{Currency: "USD", Date: "2024-02-01", Rate: types.MustMoney("8.9")},
	)
	src := &fakeSource{obs: []Observation{
		{Currency: "USD", Date: "2024-05-02", Rate: types.MustMoney("9.4")},
	}}
	r := NewResolver(repo, src, WithClock(fixedClock("2024-06-15")))

	rate, quality, err := r.GetRate(context.Background(), "USD", day("2024-05-02"))
	require.NoError(t, err)
	assert.True(t, rate.Equal(types.MustMoney("9.4")))
	assert.Equal(t, QualityObserved, quality)
	assert.Equal(t, "2024-02-02", src.lastReq[0])
}

func TestGetRate_StaleCacheDoesNotShadowSource(t *testing.T) {
	// A lookup past the cached range must reach the provider even though an
	// older observation could be carried forward; otherwise rates freeze at
	// the last cached value forever.
	repo := NewInMemoryRepository().Seed(
		Observation{Currency: "USD", Date: "2024-02-01", Rate: types.MustMoney("8.9")},
	)
	src := &fakeSource{obs: []Observation{
		{Currency: "USD", Date: "2024-05-02", Rate: types.MustMoney("9.4")},
		{Currency: "USD", Date: "2024-05-03", Rate: types.MustMoney("9.3")},
	}}
	r := NewResolver(repo, src, WithClock(fixedClock("2024-06-15")))
	ctx := context.Background()

	rate, quality, err := r.GetRate(ctx, "USD", day("2024-05-02"))
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
	assert.True(t, rate.Equal(types.MustMoney("9.4")), "got %s", rate)
	assert.Equal(t, QualityObserved, quality)

	// A weekend past the fetched range carries from the freshly fetched
	// observation, not from the stale one.
	rate, quality, err = r.GetRate(ctx, "USD", day("2024-05-04"))
	require.NoError(t, err)
	assert.True(t, rate.Equal(types.MustMoney("9.3")), "got %s", rate)
	assert.Equal(t, QualityCarried, quality)
}

func TestGetRate_MissInsideCachedRangeDoesNotFetch(t *testing.T) {
	repo := NewInMemoryRepository().Seed(
		Observation{Currency: "EUR", Date: "2024-03-01", Rate: types.MustMoney("11.20")}, // Friday
		Observation{Currency: "EUR", Date: "2024-03-04", Rate: types.MustMoney("11.25")}, // Monday
	)
	src := &fakeSource{}
	r := NewResolver(repo, src, WithClock(fixedClock("2024-06-15")))

	rate, quality, err := r.GetRate(context.Background(), "EUR", day("2024-03-02")) // Saturday
	require.NoError(t, err)
	assert.Equal(t, 0, src.calls, "non-trading day inside the cached range must not hit the provider")
	assert.True(t, rate.Equal(types.MustMoney("11.20")))
	assert.Equal(t, QualityCarried, quality)
}

func TestGetRate_FallbackWhenNothingResolvable(t *testing.T) {
	src := &fakeSource{err: errors.New("upstream down")}
	r := NewResolver(NewInMemoryRepository(), src, WithClock(fixedClock("2024-06-15")))

	rate, quality, err := r.GetRate(context.Background(), "NOK", day("2024-01-10"))
	require.NoError(t, err, "fallback must not fail the valuation")
	assert.True(t, rate.Equal(types.MustMoney("1")))
	assert.Equal(t, QualityFallback, quality)
}

func TestGetRate_NoFutureRateUsed(t *testing.T) {
	// Only a later observation exists: nearest prior must not find it.
	repo := NewInMemoryRepository().Seed(
		Observation{Currency: "USD", Date: "2024-06-01", Rate: types.MustMoney("9.9")},
	)
	r := NewResolver(repo, nil, WithClock(fixedClock("2024-06-15")))

	rate, quality, err := r.GetRate(context.Background(), "USD", day("2024-01-01"))
	require.NoError(t, err)
	assert.Equal(t, QualityFallback, quality)
	assert.True(t, rate.Equal(types.MustMoney("1")))
}

func TestGetRate_Determinism(t *testing.T) {
	repo := NewInMemoryRepository().Seed(
		Observation{Currency: "USD", Date: "2024-03-01", Rate: types.MustMoney("9.0")},
	)
	r := NewResolver(repo, nil, WithClock(fixedClock("2024-06-15")))
	ctx := context.Background()

	first, _, err := r.GetRate(ctx, "USD", day("2024-03-15"))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, _, err := r.GetRate(ctx, "USD", day("2024-03-15"))
		require.NoError(t, err)
		assert.True(t, again.Equal(first))
	}
}

func TestGetRate_ParallelCurrencies(t *testing.T) {
	repo := NewInMemoryRepository().Seed(
		Observation{Currency: "USD", Date: "2024-03-01", Rate: types.MustMoney("9.0")},
		Observation{Currency: "EUR", Date: "2024-03-01", Rate: types.MustMoney("11.2")},
		Observation{Currency: "GBP", Date: "2024-03-01", Rate: types.MustMoney("13.1")},
	)
	r := NewResolver(repo, nil, WithClock(fixedClock("2024-06-15")))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		for _, cur := range []string{"USD", "EUR", "GBP"} {
			wg.Add(1)
			go func(cur string, offset int) {
				defer wg.Done()
				_, _, err := r.GetRate(ctx, cur, day("2024-03-01").AddDate(0, 0, offset%20))
				assert.NoError(t, err)
			}(cur, i)
		}
	}
	wg.Wait()
}

func TestNearestPrior(t *testing.T) {
	dates := []string{"2024-01-01", "2024-01-05", "2024-02-01"}

	tests := []struct {
		day  string
		want string
		ok   bool
	}{
		{"2024-01-01", "2024-01-01", true},
		{"2024-01-03", "2024-01-01", true},
		{"2024-01-05", "2024-01-05", true},
		{"2024-03-01", "2024-02-01", true},
		{"2023-12-31", "", false},
	}
	for _, tt := range tests {
		got, ok := nearestPrior(dates, tt.day)
		if ok != tt.ok || got != tt.want {
			t.Errorf("nearestPrior(%s) = %q,%v want %q,%v", tt.day, got, ok, tt.want, tt.ok)
		}
	}
}
