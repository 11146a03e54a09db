package rates

import (
	"context"
	"sort"
	"sync"
)

// Repository persists rate observations. The resolver loads a currency's
// observations once and appends new ones as they are discovered; nothing is
// ever updated or deleted.
type Repository interface {
	// LoadCurrency returns all cached observations for a currency, any order.
	LoadCurrency(ctx context.Context, currency string) ([]Observation, error)

	// SaveObservations appends observations. Implementations must tolerate
	// duplicates on (currency, date) by keeping the first write.
	SaveObservations(ctx context.Context, obs []Observation) error
}

// InMemoryRepository is a Repository for tests and single-process dev runs.
type InMemoryRepository struct {
	mu  sync.Mutex
	obs map[string]map[string]Observation // currency -> date -> observation
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{obs: make(map[string]map[string]Observation)}
}

// Seed inserts observations directly, for test setup.
func (r *InMemoryRepository) Seed(obs ...Observation) *InMemoryRepository {
	_ = r.SaveObservations(context.Background(), obs)
	return r
}

// LoadCurrency implements Repository.
func (r *InMemoryRepository) LoadCurrency(_ context.Context, currency string) ([]Observation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byDate := r.obs[currency]
	out := make([]Observation, 0, len(byDate))
	for _, o := range byDate {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// SaveObservations implements Repository.
func (r *InMemoryRepository) SaveObservations(_ context.Context, obs []Observation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, o := range obs {
		byDate := r.obs[o.Currency]
		if byDate == nil {
			byDate = make(map[string]Observation)
			r.obs[o.Currency] = byDate
		}
		if _, exists := byDate[o.Date]; !exists {
			byDate[o.Date] = o
		}
	}
	return nil
}
