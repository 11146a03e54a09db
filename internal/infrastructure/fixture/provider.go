// Package fixture provides file-backed feed providers for development and
// demo environments, where the real vendor connectors are not reachable.
package fixture

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"lagervarde/internal/domain/feeds"
)

// snapshotFile is the on-disk fixture layout: one JSON document with all four
// feeds for one company.
type snapshotFile struct {
	OnHand       []feeds.OnHandRow       `json:"onHand"`
	ChannelStock []feeds.ChannelStockRow `json:"channelStock"`
	Deliveries   []feeds.LedgerEntry     `json:"deliveries"`
	StockChanges []feeds.LedgerEntry     `json:"stockChanges"`
}

// Provider serves all feed interfaces from a single fixture file. The file is
// read once at construction; a run over a fixture is fully reproducible.
type Provider struct {
	data snapshotFile
}

// Load reads a fixture file.
func Load(path string) (*Provider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}

	var data snapshotFile
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &Provider{data: data}, nil
}

// FetchOnHand implements feeds.StockProvider.
func (p *Provider) FetchOnHand(context.Context, string) ([]feeds.OnHandRow, error) {
	return p.data.OnHand, nil
}

// FetchChannelStock implements feeds.ChannelProvider.
func (p *Provider) FetchChannelStock(context.Context, string) ([]feeds.ChannelStockRow, error) {
	return p.data.ChannelStock, nil
}

// FetchDeliveries implements feeds.LedgerProvider.
func (p *Provider) FetchDeliveries(context.Context, string) ([]feeds.LedgerEntry, error) {
	return p.data.Deliveries, nil
}

// FetchStockChanges implements feeds.LedgerProvider.
func (p *Provider) FetchStockChanges(context.Context, string) ([]feeds.LedgerEntry, error) {
	return p.data.StockChanges, nil
}

var (
	_ feeds.StockProvider   = (*Provider)(nil)
	_ feeds.ChannelProvider = (*Provider)(nil)
	_ feeds.LedgerProvider  = (*Provider)(nil)
)
