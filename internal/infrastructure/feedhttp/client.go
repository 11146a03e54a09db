// Package feedhttp implements the feed provider interfaces against the
// connector gateway, the internal service that fronts the vendor APIs
// (warehouse system, Zettle, purchase ledger).
package feedhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"lagervarde/internal/core/apperror"
	"lagervarde/internal/domain/feeds"
)

const defaultTimeout = 30 * time.Second

// Client fetches all four feeds from the connector gateway. Each feed is one
// GET returning the full dataset; the engine owns degradation policy, so the
// client reports errors instead of retrying.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a gateway client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// FetchOnHand implements feeds.StockProvider.
func (c *Client) FetchOnHand(ctx context.Context, companyID string) ([]feeds.OnHandRow, error) {
	var payload struct {
		Rows []feeds.OnHandRow `json:"rows"`
	}
	if err := c.get(ctx, companyID, "stock/on-hand", &payload); err != nil {
		return nil, err
	}
	return payload.Rows, nil
}

// FetchChannelStock implements feeds.ChannelProvider.
func (c *Client) FetchChannelStock(ctx context.Context, companyID string) ([]feeds.ChannelStockRow, error) {
	var payload struct {
		Rows []feeds.ChannelStockRow `json:"rows"`
	}
	if err := c.get(ctx, companyID, "channel-stock", &payload); err != nil {
		return nil, err
	}
	return payload.Rows, nil
}

// FetchDeliveries implements feeds.LedgerProvider.
func (c *Client) FetchDeliveries(ctx context.Context, companyID string) ([]feeds.LedgerEntry, error) {
	var payload struct {
		Entries []feeds.LedgerEntry `json:"entries"`
	}
	if err := c.get(ctx, companyID, "ledger/deliveries", &payload); err != nil {
		return nil, err
	}
	return payload.Entries, nil
}

// FetchStockChanges implements feeds.LedgerProvider.
func (c *Client) FetchStockChanges(ctx context.Context, companyID string) ([]feeds.LedgerEntry, error) {
	var payload struct {
		Entries []feeds.LedgerEntry `json:"entries"`
	}
	if err := c.get(ctx, companyID, "ledger/stock-changes", &payload); err != nil {
		return nil, err
	}
	return payload.Entries, nil
}

func (c *Client) get(ctx context.Context, companyID, path string, out any) error {
	u := fmt.Sprintf("%s/v1/companies/%s/%s", c.baseURL, url.PathEscape(companyID), path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperror.NewProviderUnavailable(path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperror.NewProviderUnavailable(path, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperror.NewProviderUnavailable(path, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

var (
	_ feeds.StockProvider   = (*Client)(nil)
	_ feeds.ChannelProvider = (*Client)(nil)
	_ feeds.LedgerProvider  = (*Client)(nil)
)
