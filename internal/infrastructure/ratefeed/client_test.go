package ratefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lagervarde/internal/core/apperror"
	"lagervarde/internal/core/types"
)

func TestFetchRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rates/USD", r.URL.Path)
		assert.Equal(t, "2024-01-01", r.URL.Query().Get("from"))
		assert.Equal(t, "2024-01-05", r.URL.Query().Get("to"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"currency": "USD",
			"observations": [
				{"date": "2024-01-02", "rate": "10.41"},
				{"date": "2024-01-03", "rate": "10.38"}
			]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	obs, err := c.FetchRange(context.Background(), "USD", from, to)
	require.NoError(t, err)

	require.Len(t, obs, 2)
	assert.Equal(t, "USD", obs[0].Currency)
	assert.Equal(t, "2024-01-02", obs[0].Date)
	assert.True(t, obs[0].Rate.Equal(types.MustMoney("10.41")))
}

func TestFetchRangeRetriesOnRateLimit(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"currency": "EUR", "observations": []}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.FetchRange(context.Background(), "EUR",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestFetchRangeRejectsMalformedRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"currency": "USD",
			"observations": [{"date": "2024-01-02", "rate": "not-a-number"}]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.FetchRange(context.Background(), "USD",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeDataQuality, appErr.Code)
	assert.Equal(t, "2024-01-02", appErr.Details["date"])
}

func TestFetchRangeDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.FetchRange(context.Background(), "XXX",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
