package feeds

import (
	"testing"
	"time"

	"lagervarde/internal/core/types"
)

func entry(variant string, size int, ean string, ts string, qty int, cost string) LedgerEntry {
	t, err := time.Parse("2006-01-02", ts)
	if err != nil {
		panic(err)
	}
	e := LedgerEntry{
		SKU:       SKUKey{VariantID: variant, Size: size},
		Timestamp: t,
		Quantity:  qty,
		UnitCost:  types.MustMoney(cost),
		Currency:  "SEK",
	}
	if ean != "" {
		e.EAN = &ean
	}
	return e
}

func TestGroupLedger_SortsOldestFirst(t *testing.T) {
	deliveries := []LedgerEntry{
		entry("v1", 38, "", "2024-06-01", 10, "120"),
		entry("v1", 38, "", "2024-01-01", 10, "100"),
		entry("v1", 38, "", "2024-03-15", 5, "110"),
	}

	g := GroupLedger(deliveries, nil)
	got := g.DeliveriesFor(SKUKey{VariantID: "v1", Size: 38})

	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Errorf("entries not oldest-first at index %d: %v after %v",
				i, got[i].Timestamp, got[i-1].Timestamp)
		}
	}
	if got[0].Source != SourceDelivery {
		t.Errorf("expected delivery source, got %v", got[0].Source)
	}
}

func TestGroupLedger_SourceSeparation(t *testing.T) {
	key := SKUKey{VariantID: "v2", Size: 40}
	deliveries := []LedgerEntry{entry("v2", 40, "7350001", "2024-02-01", 4, "80")}
	changes := []LedgerEntry{entry("v2", 40, "7350001", "2024-02-10", 2, "85")}

	g := GroupLedger(deliveries, changes)

	if n := len(g.DeliveriesFor(key)); n != 1 {
		t.Errorf("deliveries: expected 1, got %d", n)
	}
	if n := len(g.StockChangesFor(key)); n != 1 {
		t.Errorf("stock changes: expected 1, got %d", n)
	}
	if g.StockChangesFor(key)[0].Source != SourceStockChange {
		t.Errorf("stock change entries must be tagged SourceStockChange")
	}

	dels, chs := g.ByEAN("7350001")
	if len(dels) != 1 || len(chs) != 1 {
		t.Errorf("EAN index: expected 1 delivery and 1 stock change, got %d/%d", len(dels), len(chs))
	}
}

func TestGroupLedger_EANCollisions(t *testing.T) {
	deliveries := []LedgerEntry{
		entry("v1", 38, "7350002", "2024-01-01", 1, "100"),
		entry("v9", 44, "7350002", "2024-01-05", 1, "50"), // same EAN, unrelated SKU
		entry("v1", 39, "7350003", "2024-01-01", 1, "100"),
	}

	g := GroupLedger(deliveries, nil)
	collisions := g.EANCollisions()

	if len(collisions) != 1 || collisions[0] != "7350002" {
		t.Fatalf("expected single collision on 7350002, got %v", collisions)
	}
}

func TestGroupLedger_HasEntries(t *testing.T) {
	g := GroupLedger(nil, []LedgerEntry{entry("v3", 36, "", "2024-04-01", 5, "50")})

	if !g.HasEntries(SKUKey{VariantID: "v3", Size: 36}) {
		t.Error("expected entries for v3/36")
	}
	if g.HasEntries(SKUKey{VariantID: "v3", Size: 37}) {
		t.Error("unexpected entries for v3/37")
	}
}

func TestLedgerEntry_LandedUnitCost(t *testing.T) {
	e := LedgerEntry{
		UnitCost:     types.MustMoney("100.00"),
		CustomsCost:  types.MustMoney("12.50"),
		ShippingCost: types.MustMoney("7.25"),
	}
	if got := e.LandedUnitCost(); !got.Equal(types.MustMoney("119.75")) {
		t.Errorf("landed cost: expected 119.75, got %s", got)
	}
}
