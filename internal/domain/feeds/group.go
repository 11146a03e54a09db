package feeds

import (
	"sort"
)

// GroupedLedger indexes ledger entries for the layer builder: per SKU key for
// the canonical join, per EAN for the channel-only fallback join. Entries in
// every bucket are sorted oldest first; the builder never reorders them.
type GroupedLedger struct {
	deliveries   map[SKUKey][]LedgerEntry
	stockChanges map[SKUKey][]LedgerEntry

	// EAN fallback index, kept per source kind so the strict delivery-first
	// priority rule applies on this join path too.
	deliveriesByEAN   map[string][]LedgerEntry
	stockChangesByEAN map[string][]LedgerEntry
}

// GroupLedger builds the join indexes from both raw ledger feeds. Either
// slice may be nil when its provider degraded to empty.
func GroupLedger(deliveries, stockChanges []LedgerEntry) *GroupedLedger {
	g := &GroupedLedger{
		deliveries:        make(map[SKUKey][]LedgerEntry),
		stockChanges:      make(map[SKUKey][]LedgerEntry),
		deliveriesByEAN:   make(map[string][]LedgerEntry),
		stockChangesByEAN: make(map[string][]LedgerEntry),
	}

	for _, e := range deliveries {
		e.Source = SourceDelivery
		g.add(g.deliveries, g.deliveriesByEAN, e)
	}
	for _, e := range stockChanges {
		e.Source = SourceStockChange
		g.add(g.stockChanges, g.stockChangesByEAN, e)
	}

	for _, m := range []map[SKUKey][]LedgerEntry{g.deliveries, g.stockChanges} {
		for k := range m {
			sortOldestFirst(m[k])
		}
	}
	for _, m := range []map[string][]LedgerEntry{g.deliveriesByEAN, g.stockChangesByEAN} {
		for k := range m {
			sortOldestFirst(m[k])
		}
	}

	return g
}

func (g *GroupedLedger) add(byKey map[SKUKey][]LedgerEntry, byEAN map[string][]LedgerEntry, e LedgerEntry) {
	if !e.SKU.IsZero() {
		byKey[e.SKU] = append(byKey[e.SKU], e)
	}
	if e.EAN != nil && *e.EAN != "" {
		byEAN[*e.EAN] = append(byEAN[*e.EAN], e)
	}
}

// sortOldestFirst orders entries by timestamp, breaking ties by supplier and
// quantity so repeated runs over identical input stay deterministic.
func sortOldestFirst(entries []LedgerEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.Before(entries[j].Timestamp)
		}
		if entries[i].Supplier != entries[j].Supplier {
			return entries[i].Supplier < entries[j].Supplier
		}
		return entries[i].Quantity < entries[j].Quantity
	})
}

// DeliveriesFor returns delivery entries for a SKU key, oldest first.
func (g *GroupedLedger) DeliveriesFor(key SKUKey) []LedgerEntry {
	return g.deliveries[key]
}

// StockChangesFor returns stock-change entries for a SKU key, oldest first.
func (g *GroupedLedger) StockChangesFor(key SKUKey) []LedgerEntry {
	return g.stockChanges[key]
}

// ByEAN returns both ledgers' entries for an EAN, oldest first. This is the
// fallback join used only for channel-only units without a variant identity.
func (g *GroupedLedger) ByEAN(ean string) (deliveries, stockChanges []LedgerEntry) {
	return g.deliveriesByEAN[ean], g.stockChangesByEAN[ean]
}

// HasEntries reports whether any ledger entry exists for a SKU key.
func (g *GroupedLedger) HasEntries(key SKUKey) bool {
	return len(g.deliveries[key]) > 0 || len(g.stockChanges[key]) > 0
}

// EANCollisions lists EANs whose ledger entries span more than one SKU key.
// A shared EAN is a data-quality signal, never auto-merged: the canonical
// size-key join is unaffected, but the fallback join for such an EAN is
// untrustworthy.
func (g *GroupedLedger) EANCollisions() []string {
	seen := make(map[string]map[SKUKey]struct{})
	collect := func(m map[string][]LedgerEntry) {
		for ean, entries := range m {
			for _, e := range entries {
				if e.SKU.IsZero() {
					continue
				}
				if seen[ean] == nil {
					seen[ean] = make(map[SKUKey]struct{})
				}
				seen[ean][e.SKU] = struct{}{}
			}
		}
	}
	collect(g.deliveriesByEAN)
	collect(g.stockChangesByEAN)

	var out []string
	for ean, keys := range seen {
		if len(keys) > 1 {
			out = append(out, ean)
		}
	}
	sort.Strings(out)
	return out
}
