package valuation

import (
	"context"
	"sort"
	"time"

	"lagervarde/internal/core/types"
	"lagervarde/internal/domain/feeds"
	"lagervarde/internal/domain/rates"
)

// RateResolver converts a ledger entry's cost into SEK using the rate in
// effect on the entry's own date.
type RateResolver interface {
	GetRate(ctx context.Context, currency string, date time.Time) (types.Money, rates.Quality, error)
}

// BuildInput is one SKU's reconciliation input: the on-hand baseline per
// location and the ledger entries for the chosen join, each oldest first.
type BuildInput struct {
	Key          feeds.SKUKey
	WarehouseQty int
	StoreQty     int
	Deliveries   []feeds.LedgerEntry
	StockChanges []feeds.LedgerEntry
}

// BuildResult is the layer set for one SKU plus its reconciliation facts.
type BuildResult struct {
	Layers []Layer

	// UnknownQuantity is on-hand stock exceeding all receipts of the chosen
	// source. No layer exists for it and it carries no value.
	UnknownQuantity int

	// PrimarySource is the source accounting for the largest surviving
	// quantity; SourceUnknown when no source accounts for any.
	PrimarySource feeds.SourceKind

	// TotalReceived is the receipt total over the chosen source only.
	TotalReceived int

	// SoldQuantity is how much left inventory since the earliest tracked
	// receipt, consumed oldest first.
	SoldQuantity int

	// FallbackCurrencies lists currencies that resolved to the rate-1
	// fallback while pricing this SKU's layers.
	FallbackCurrencies []string
}

// BuildLayers reconciles one SKU's on-hand quantity against its ledger and
// produces the surviving FIFO cost layers.
//
// Source priority is strict: when any delivery entries exist, stock-change
// entries are ignored entirely for this SKU. Deliveries are the trusted
// ledger, not merely the preferred one.
func BuildLayers(ctx context.Context, rr RateResolver, now time.Time, in BuildInput) (BuildResult, error) {
	totalOnHand := in.WarehouseQty + in.StoreQty
	if totalOnHand <= 0 {
		// Nothing on hand is not an error; the SKU simply has no valuation.
		return BuildResult{PrimarySource: feeds.SourceUnknown}, nil
	}

	entries := in.Deliveries
	if len(entries) == 0 {
		entries = in.StockChanges
	}

	res := BuildResult{PrimarySource: feeds.SourceUnknown}
	fallback := make(map[string]struct{})

	for _, e := range entries {
		res.TotalReceived += e.Quantity
	}

	remainingToConsume := res.TotalReceived - totalOnHand
	if remainingToConsume < 0 {
		remainingToConsume = 0
	}
	res.SoldQuantity = remainingToConsume

	surviving := 0
	for _, e := range entries {
		consumedHere := e.Quantity
		if consumedHere > remainingToConsume {
			consumedHere = remainingToConsume
		}
		remainingToConsume -= consumedHere

		remainingFromEntry := e.Quantity - consumedHere
		if remainingFromEntry <= 0 {
			continue
		}

		rate, quality, err := rr.GetRate(ctx, e.Currency, e.Timestamp)
		if err != nil {
			return BuildResult{}, err
		}
		if quality == rates.QualityFallback {
			fallback[e.Currency] = struct{}{}
		}

		unitCostBase := types.RoundMoney(e.LandedUnitCost().Mul(rate))
		layer := Layer{
			EntryTimestamp:    e.Timestamp,
			Source:            e.Source,
			Supplier:          e.Supplier,
			Currency:          e.Currency,
			OriginalQuantity:  e.Quantity,
			RemainingQuantity: remainingFromEntry,
			UnitCostBase:      unitCostBase,
			LayerValue:        types.MulRound(remainingFromEntry, unitCostBase),
			AgeDays:           ageInDays(now, e.Timestamp),
			RateQuality:       quality,
		}
		res.Layers = append(res.Layers, layer)
		surviving += remainingFromEntry
	}

	if totalOnHand > surviving {
		res.UnknownQuantity = totalOnHand - surviving
	}

	if surviving > 0 {
		// All chosen entries share one source kind under the strict priority
		// rule, so the largest surviving source is simply the chosen one.
		res.PrimarySource = entries[0].Source
	}

	res.FallbackCurrencies = sortedKeys(fallback)
	return res, nil
}

func ageInDays(now, ts time.Time) int {
	d := int(now.Sub(ts).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
