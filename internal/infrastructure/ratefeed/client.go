// Package ratefeed implements the HTTP client for the upstream exchange-rate
// provider.
package ratefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"lagervarde/internal/core/apperror"
	"lagervarde/internal/domain/rates"
	"lagervarde/pkg/logger"
)

var tracer = otel.Tracer("lagervarde/ratefeed")

const (
	defaultTimeout = 15 * time.Second
	maxRetries     = 3
	baseBackoff    = 500 * time.Millisecond
)

// Client fetches historical rate observations over HTTP. It implements
// rates.Source and handles provider rate limiting itself: a 429 or 5xx is
// retried with exponential backoff, honoring Retry-After when present.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a provider client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

type observationPayload struct {
	Date string `json:"date"`
	Rate string `json:"rate"`
}

type rangePayload struct {
	Currency     string               `json:"currency"`
	Observations []observationPayload `json:"observations"`
}

// FetchRange implements rates.Source.
func (c *Client) FetchRange(ctx context.Context, currency string, from, to time.Time) ([]rates.Observation, error) {
	ctx, span := tracer.Start(ctx, "ratefeed.fetch_range",
		trace.WithAttributes(
			attribute.String("currency", currency),
			attribute.String("from", rates.DateKey(from)),
			attribute.String("to", rates.DateKey(to)),
		))
	defer span.End()

	u := fmt.Sprintf("%s/v1/rates/%s?from=%s&to=%s",
		c.baseURL, url.PathEscape(currency),
		rates.DateKey(from), rates.DateKey(to))

	body, err := c.getWithRetry(ctx, u)
	if err != nil {
		return nil, apperror.NewProviderUnavailable("ratefeed", err)
	}

	var payload rangePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode rate response: %w", err)
	}

	obs := make([]rates.Observation, 0, len(payload.Observations))
	for _, p := range payload.Observations {
		rate, err := decimal.NewFromString(p.Rate)
		if err != nil {
			return nil, apperror.NewDataQuality("unparseable rate value from provider").
				WithDetail("currency", currency).
				WithDetail("date", p.Date).
				WithDetail("rate", p.Rate).
				WithCause(err)
		}
		obs = append(obs, rates.Observation{
			Currency: currency,
			Date:     p.Date,
			Rate:     rate,
			Quality:  rates.QualityObserved,
		})
	}
	return obs, nil
}

func (c *Client) getWithRetry(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, backoffDelay(attempt, lastErr)); err != nil {
				return nil, err
			}
		}

		body, retryable, err := c.get(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		logger.Warn(ctx, "rate provider request failed, retrying",
			"url", url, "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("after %d attempts: %w", maxRetries+1, lastErr)
}

// statusError carries the HTTP status so the backoff can honor Retry-After.
type statusError struct {
	status     int
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return "unexpected status " + strconv.Itoa(e.status)
}

func (c *Client) get(ctx context.Context, url string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err = io.ReadAll(resp.Body)
		return body, false, err
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, &statusError{
			status:     resp.StatusCode,
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	default:
		return nil, false, &statusError{status: resp.StatusCode}
	}
}

func backoffDelay(attempt int, lastErr error) time.Duration {
	if se, ok := lastErr.(*statusError); ok && se.retryAfter > 0 {
		return se.retryAfter
	}
	return baseBackoff << (attempt - 1)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Ensure interface compliance.
var _ rates.Source = (*Client)(nil)
