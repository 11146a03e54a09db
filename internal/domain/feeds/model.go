// Package feeds defines the read-only upstream feeds the valuation engine
// consumes: the warehouse stock snapshot, the secondary sales-channel stock,
// and the two cost ledgers (purchase deliveries and stock changes).
//
// The vendor wire clients live outside this repository; the engine depends
// only on the interfaces declared here.
package feeds

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"lagervarde/internal/core/types"
)

// SKUKey identifies one sellable size of a variant. It is the canonical join
// key between the stock snapshot and the ledgers. The EAN exists on most rows
// as well but may be null or improperly shared across records, so it is used
// only as the explicit fallback join for channel-only units.
type SKUKey struct {
	VariantID string `json:"variantId"`
	Size      int    `json:"size"`
}

// String renders the key as "variantId/size".
func (k SKUKey) String() string {
	return fmt.Sprintf("%s/%d", k.VariantID, k.Size)
}

// IsZero reports whether the key is unset.
func (k SKUKey) IsZero() bool {
	return k.VariantID == "" && k.Size == 0
}

// SourceKind is the closed set of cost sources a ledger entry (and hence an
// inventory layer) can come from. New kinds must be added here and handled
// exhaustively at the aggregation boundary.
type SourceKind int

const (
	// SourceUnknown marks stock with no traceable cost basis.
	SourceUnknown SourceKind = iota

	// SourceDelivery is a purchase-order delivery receipt. Deliveries carry
	// the full landed-cost breakdown and are strictly primary.
	SourceDelivery

	// SourceStockChange is a manual stock-adjustment receipt. Used only when
	// no delivery data exists for a unit.
	SourceStockChange
)

// String implements fmt.Stringer.
func (s SourceKind) String() string {
	switch s {
	case SourceUnknown:
		return "unknown"
	case SourceDelivery:
		return "delivery"
	case SourceStockChange:
		return "stockChange"
	default:
		return fmt.Sprintf("SourceKind(%d)", int(s))
	}
}

// IsValid reports whether s is a member of the closed set.
func (s SourceKind) IsValid() bool {
	switch s {
	case SourceUnknown, SourceDelivery, SourceStockChange:
		return true
	default:
		return false
	}
}

// MarshalJSON encodes the kind as its string name.
func (s SourceKind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON decodes the string name back into the kind.
func (s *SourceKind) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"delivery"`:
		*s = SourceDelivery
	case `"stockChange"`:
		*s = SourceStockChange
	case `"unknown"`:
		*s = SourceUnknown
	default:
		return fmt.Errorf("unknown source kind %s", data)
	}
	return nil
}

// OnHandRow is one row of the warehouse stock snapshot: current on-hand
// quantity for one SKU, plus the catalog identity needed to build the
// product → variant → size valuation tree.
type OnHandRow struct {
	SKU          SKUKey  `json:"sku"`
	EAN          *string `json:"ean,omitempty"`
	ProductID    string  `json:"productId"`
	ProductName  string  `json:"productName"`
	VariantName  string  `json:"variantName"`
	WarehouseQty int     `json:"warehouseQty"`
}

// ChannelStockRow is one row of the secondary sales-channel (Zettle)
// inventory. Channel rows are joined to the snapshot by SKU key when the
// channel knows the variant, otherwise by EAN.
type ChannelStockRow struct {
	EAN      string  `json:"ean"`
	SKU      *SKUKey `json:"sku,omitempty"`
	Name     string  `json:"name,omitempty"`
	Quantity int     `json:"quantity"`
}

// LedgerEntry is one receipt event from either cost ledger. Deliveries carry
// supplier and the landed-cost breakdown; stock changes carry a single unit
// cost and an empty supplier.
type LedgerEntry struct {
	SKU       SKUKey    `json:"sku"`
	EAN       *string   `json:"ean,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Quantity  int       `json:"quantity"`

	// Per-unit costs in the entry's own currency.
	UnitCost     types.Money `json:"unitCost"`
	CustomsCost  types.Money `json:"customsCost"`
	ShippingCost types.Money `json:"shippingCost"`

	Currency string     `json:"currency"`
	Supplier string     `json:"supplier,omitempty"`
	Source   SourceKind `json:"source"`
}

// LandedUnitCost returns the full per-unit cost (product + customs +
// shipping) in the entry's currency.
func (e LedgerEntry) LandedUnitCost() types.Money {
	return e.UnitCost.Add(e.CustomsCost).Add(e.ShippingCost)
}

// HasCost reports whether the entry carries any cost information at all.
func (e LedgerEntry) HasCost() bool {
	return !e.LandedUnitCost().Equal(decimal.Zero)
}

// --- Provider contracts ---

// StockProvider supplies the point-in-time warehouse snapshot. This feed is
// mandatory: the engine has no well-defined output without it.
type StockProvider interface {
	FetchOnHand(ctx context.Context, companyID string) ([]OnHandRow, error)
}

// ChannelProvider supplies the secondary sales-channel inventory. A failure
// here degrades the store location to empty rather than aborting the run.
type ChannelProvider interface {
	FetchChannelStock(ctx context.Context, companyID string) ([]ChannelStockRow, error)
}

// LedgerProvider supplies both cost ledgers. Either feed failing degrades
// that source for all SKUs; it never aborts the run.
type LedgerProvider interface {
	FetchDeliveries(ctx context.Context, companyID string) ([]LedgerEntry, error)
	FetchStockChanges(ctx context.Context, companyID string) ([]LedgerEntry, error)
}
