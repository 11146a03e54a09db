package valuation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lagervarde/internal/core/types"
	"lagervarde/internal/domain/feeds"
	"lagervarde/internal/domain/rates"
)

// stubRates resolves from a fixed currency->rate table and falls back to 1
// for anything unknown, like the real resolver does when upstream has no data.
type stubRates struct {
	table map[string]types.Money
}

func (s stubRates) GetRate(_ context.Context, currency string, _ time.Time) (types.Money, rates.Quality, error) {
	if currency == rates.BaseCurrency {
		return types.MustMoney("1"), rates.QualityObserved, nil
	}
	if r, ok := s.table[currency]; ok {
		return r, rates.QualityObserved, nil
	}
	return types.MustMoney("1"), rates.QualityFallback, nil
}

func delivery(ts string, qty int, unitCost, currency string) feeds.LedgerEntry {
	t, _ := time.Parse("2006-01-02", ts)
	return feeds.LedgerEntry{
		SKU:       feeds.SKUKey{VariantID: "v1", Size: 40},
		Timestamp: t,
		Quantity:  qty,
		UnitCost:  types.MustMoney(unitCost),
		Currency:  currency,
		Supplier:  "Supplier AB",
		Source:    feeds.SourceDelivery,
	}
}

func stockChange(ts string, qty int, unitCost, currency string) feeds.LedgerEntry {
	e := delivery(ts, qty, unitCost, currency)
	e.Supplier = ""
	e.Source = feeds.SourceStockChange
	return e
}

func TestBuildLayersFIFOConsumption(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	in := BuildInput{
		Key:          feeds.SKUKey{VariantID: "v1", Size: 40},
		WarehouseQty: 12,
		Deliveries: []feeds.LedgerEntry{
			delivery("2024-01-01", 10, "100", "SEK"),
			delivery("2024-06-01", 10, "120", "SEK"),
		},
	}

	res, err := BuildLayers(context.Background(), stubRates{}, now, in)
	require.NoError(t, err)

	// 20 received, 12 on hand: 8 sold, consumed from the oldest delivery.
	assert.Equal(t, 20, res.TotalReceived)
	assert.Equal(t, 8, res.SoldQuantity)
	assert.Equal(t, 0, res.UnknownQuantity)
	assert.Equal(t, feeds.SourceDelivery, res.PrimarySource)

	require.Len(t, res.Layers, 2)
	assert.Equal(t, 2, res.Layers[0].RemainingQuantity)
	assert.Equal(t, 10, res.Layers[0].OriginalQuantity)
	assert.True(t, res.Layers[0].UnitCostBase.Equal(types.MustMoney("100")))
	assert.True(t, res.Layers[0].LayerValue.Equal(types.MustMoney("200")))

	assert.Equal(t, 10, res.Layers[1].RemainingQuantity)
	assert.True(t, res.Layers[1].UnitCostBase.Equal(types.MustMoney("120")))
	assert.True(t, res.Layers[1].LayerValue.Equal(types.MustMoney("1200")))

	total := res.Layers[0].LayerValue.Add(res.Layers[1].LayerValue)
	assert.True(t, total.Equal(types.MustMoney("1400")))
}

func TestBuildLayersStockChangeWhenNoDeliveries(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	rr := stubRates{table: map[string]types.Money{"USD": types.MustMoney("9.0")}}
	in := BuildInput{
		Key:          feeds.SKUKey{VariantID: "v2", Size: 38},
		WarehouseQty: 5,
		StockChanges: []feeds.LedgerEntry{
			stockChange("2024-03-15", 5, "50", "USD"),
		},
	}

	res, err := BuildLayers(context.Background(), rr, now, in)
	require.NoError(t, err)

	assert.Equal(t, feeds.SourceStockChange, res.PrimarySource)
	require.Len(t, res.Layers, 1)
	assert.Equal(t, 5, res.Layers[0].RemainingQuantity)
	assert.True(t, res.Layers[0].UnitCostBase.Equal(types.MustMoney("450")))
	assert.True(t, res.Layers[0].LayerValue.Equal(types.MustMoney("2250")))
	assert.Empty(t, res.FallbackCurrencies)
}

func TestBuildLayersDeliveriesShadowStockChanges(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	in := BuildInput{
		Key:          feeds.SKUKey{VariantID: "v3", Size: 42},
		WarehouseQty: 4,
		Deliveries: []feeds.LedgerEntry{
			delivery("2024-02-01", 4, "100", "SEK"),
		},
		// Cheaper and more plentiful, but stock changes must not contribute
		// once any delivery exists for the SKU.
		StockChanges: []feeds.LedgerEntry{
			stockChange("2024-01-01", 10, "1", "SEK"),
		},
	}

	res, err := BuildLayers(context.Background(), stubRates{}, now, in)
	require.NoError(t, err)

	assert.Equal(t, 4, res.TotalReceived)
	require.Len(t, res.Layers, 1)
	assert.Equal(t, feeds.SourceDelivery, res.Layers[0].Source)
	assert.True(t, res.Layers[0].LayerValue.Equal(types.MustMoney("400")))
}

func TestBuildLayersUnknownQuantity(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	in := BuildInput{
		Key:          feeds.SKUKey{VariantID: "v4", Size: 36},
		WarehouseQty: 3,
	}

	res, err := BuildLayers(context.Background(), stubRates{}, now, in)
	require.NoError(t, err)

	assert.Empty(t, res.Layers)
	assert.Equal(t, 3, res.UnknownQuantity)
	assert.Equal(t, feeds.SourceUnknown, res.PrimarySource)
	assert.Equal(t, 0, res.SoldQuantity)
}

func TestBuildLayersPartialUnknown(t *testing.T) {
	// 7 on hand but only 5 ever received: 5 priced, 2 unknown, nothing sold.
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	in := BuildInput{
		Key:          feeds.SKUKey{VariantID: "v5", Size: 41},
		WarehouseQty: 4,
		StoreQty:     3,
		Deliveries: []feeds.LedgerEntry{
			delivery("2024-04-01", 5, "80", "SEK"),
		},
	}

	res, err := BuildLayers(context.Background(), stubRates{}, now, in)
	require.NoError(t, err)

	assert.Equal(t, 0, res.SoldQuantity)
	assert.Equal(t, 2, res.UnknownQuantity)
	require.Len(t, res.Layers, 1)
	assert.Equal(t, 5, res.Layers[0].RemainingQuantity)
}

func TestBuildLayersConservation(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	for _, tc := range []struct {
		name    string
		onHand  int
		entries []feeds.LedgerEntry
	}{
		{"fully covered", 12, []feeds.LedgerEntry{delivery("2024-01-01", 10, "100", "SEK"), delivery("2024-06-01", 10, "120", "SEK")}},
		{"over-covered", 1, []feeds.LedgerEntry{delivery("2024-01-01", 50, "100", "SEK")}},
		{"under-covered", 9, []feeds.LedgerEntry{delivery("2024-01-01", 4, "100", "SEK")}},
		{"no receipts", 6, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			res, err := BuildLayers(context.Background(), stubRates{}, now, BuildInput{
				Key:          feeds.SKUKey{VariantID: "v6", Size: 40},
				WarehouseQty: tc.onHand,
				Deliveries:   tc.entries,
			})
			require.NoError(t, err)

			surviving := 0
			for _, l := range res.Layers {
				surviving += l.RemainingQuantity
			}
			assert.Equal(t, tc.onHand, surviving+res.UnknownQuantity)
		})
	}
}

func TestBuildLayersFallbackCurrencyFlagged(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	in := BuildInput{
		Key:          feeds.SKUKey{VariantID: "v7", Size: 39},
		WarehouseQty: 2,
		Deliveries: []feeds.LedgerEntry{
			delivery("2024-05-01", 2, "300", "NOK"),
		},
	}

	res, err := BuildLayers(context.Background(), stubRates{}, now, in)
	require.NoError(t, err)

	require.Len(t, res.Layers, 1)
	assert.Equal(t, rates.QualityFallback, res.Layers[0].RateQuality)
	assert.Equal(t, []string{"NOK"}, res.FallbackCurrencies)
	// Fallback rate is 1: the layer is priced at face value, flagged, not dropped.
	assert.True(t, res.Layers[0].LayerValue.Equal(types.MustMoney("600")))
}

func TestBuildLayersZeroOnHand(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	res, err := BuildLayers(context.Background(), stubRates{}, now, BuildInput{
		Key:        feeds.SKUKey{VariantID: "v8", Size: 40},
		Deliveries: []feeds.LedgerEntry{delivery("2024-01-01", 10, "100", "SEK")},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Layers)
	assert.Equal(t, 0, res.UnknownQuantity)
}

func TestAgeInDaysClampsFuture(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, ageInDays(now, now.Add(48*time.Hour)))
	assert.Equal(t, 30, ageInDays(now, now.AddDate(0, 0, -30)))
}
