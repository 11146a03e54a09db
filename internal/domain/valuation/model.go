// Package valuation implements FIFO inventory valuation: each unit still on
// hand is priced at the historical landed cost of the oldest unconsumed
// receipt that could have supplied it, converted to SEK at the rate in effect
// on the receipt date.
//
// Layers and every aggregate are rebuilt from scratch on each run; nothing in
// this package mutates upstream inventory or persists state between runs.
package valuation

import (
	"fmt"
	"time"

	"lagervarde/internal/core/types"
	"lagervarde/internal/domain/feeds"
	"lagervarde/internal/domain/rates"
)

// Location is the closed set of stock locations.
type Location int

const (
	LocationWarehouse Location = iota
	LocationStore
)

// String implements fmt.Stringer.
func (l Location) String() string {
	switch l {
	case LocationWarehouse:
		return "warehouse"
	case LocationStore:
		return "store"
	default:
		return fmt.Sprintf("Location(%d)", int(l))
	}
}

// AgeBucket is the closed set of stock-age classifications.
type AgeBucket int

const (
	AgeFresh AgeBucket = iota
	AgeAging
	AgeOld
)

// String implements fmt.Stringer.
func (b AgeBucket) String() string {
	switch b {
	case AgeFresh:
		return "fresh"
	case AgeAging:
		return "aging"
	case AgeOld:
		return "old"
	default:
		return fmt.Sprintf("AgeBucket(%d)", int(b))
	}
}

// MarshalJSON encodes the bucket as its string name.
func (b AgeBucket) MarshalJSON() ([]byte, error) {
	return []byte(`"` + b.String() + `"`), nil
}

// Layer is one surviving slice of a ledger receipt. Layers are immutable
// after construction; a re-run recomputes them from scratch.
type Layer struct {
	EntryTimestamp    time.Time        `json:"entryTimestamp"`
	Source            feeds.SourceKind `json:"source"`
	Supplier          string           `json:"supplier,omitempty"`
	Currency          string           `json:"currency"`
	OriginalQuantity  int              `json:"originalQuantity"`
	RemainingQuantity int              `json:"remainingQuantity"`

	// UnitCostBase is the landed unit cost converted to SEK at the entry's
	// own date, rounded to 2 decimals.
	UnitCostBase types.Money `json:"unitCostBase"`

	// LayerValue is RemainingQuantity × UnitCostBase, rounded to 2 decimals.
	LayerValue types.Money `json:"layerValue"`

	AgeDays     int           `json:"ageDays"`
	RateQuality rates.Quality `json:"rateQuality"`
}

// SizeValuation is the leaf of the valuation tree: one (variant, size) SKU.
type SizeValuation struct {
	SKU feeds.SKUKey `json:"sku"`
	EAN *string      `json:"ean,omitempty"`

	// Catalog identity, used for grouping into variants and products.
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	VariantName string `json:"variantName"`

	WarehouseQty int `json:"warehouseQty"`
	StoreQty     int `json:"storeQty"`

	// TotalQuantity is warehouse + store on-hand.
	TotalQuantity int `json:"totalQuantity"`

	// UnknownQuantity is on-hand stock with no traceable cost basis. It is
	// reported, never priced and never averaged away.
	UnknownQuantity int `json:"unknownQuantity"`

	Layers        []Layer          `json:"layers"`
	PrimarySource feeds.SourceKind `json:"primarySource"`

	TotalValue     types.Money `json:"totalValue"`
	WarehouseValue types.Money `json:"warehouseValue"`
	StoreValue     types.Money `json:"storeValue"`

	WeightedAgeDays float64 `json:"weightedAgeDays"`
	MaxAgeDays      int     `json:"maxAgeDays"`
}

// VariantValuation rolls sizes up to one variant (color/style).
type VariantValuation struct {
	VariantID   string `json:"variantId"`
	VariantName string `json:"variantName"`

	Sizes []SizeValuation `json:"sizes"`

	TotalQuantity   int         `json:"totalQuantity"`
	UnknownQuantity int         `json:"unknownQuantity"`
	TotalValue      types.Money `json:"totalValue"`
	WarehouseValue  types.Money `json:"warehouseValue"`
	StoreValue      types.Money `json:"storeValue"`
	WeightedAgeDays float64     `json:"weightedAgeDays"`
	MaxAgeDays      int         `json:"maxAgeDays"`
}

// ProductValuation rolls variants up to one product.
type ProductValuation struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`

	Variants []VariantValuation `json:"variants"`

	TotalQuantity   int         `json:"totalQuantity"`
	UnknownQuantity int         `json:"unknownQuantity"`
	TotalValue      types.Money `json:"totalValue"`
	WarehouseValue  types.Money `json:"warehouseValue"`
	StoreValue      types.Money `json:"storeValue"`
	WeightedAgeDays float64     `json:"weightedAgeDays"`
	MaxAgeDays      int         `json:"maxAgeDays"`
}

// BucketTotal is a quantity/value pair for one summary bucket.
type BucketTotal struct {
	Quantity int         `json:"quantity"`
	Value    types.Money `json:"value"`
}

// AgeBreakdown sums layers into the closed age buckets.
type AgeBreakdown struct {
	Fresh BucketTotal `json:"fresh"`
	Aging BucketTotal `json:"aging"`
	Old   BucketTotal `json:"old"`
}

// SourceBreakdown sums surviving quantity and value per cost source.
// Unknown carries quantity only; unknown stock is never priced.
type SourceBreakdown struct {
	Delivery    BucketTotal `json:"delivery"`
	StockChange BucketTotal `json:"stockChange"`
	Unknown     BucketTotal `json:"unknown"`
}

// LocationSplit is the proportional value split across stock locations.
type LocationSplit struct {
	WarehouseValue types.Money `json:"warehouseValue"`
	StoreValue     types.Money `json:"storeValue"`
}

// DataQuality surfaces inconsistencies discovered during a run. They are
// reported, never auto-corrected.
type DataQuality struct {
	// FallbackRateCurrencies lists currencies valued at the rate-1 fallback
	// because no observation could be resolved at all.
	FallbackRateCurrencies []string `json:"fallbackRateCurrencies,omitempty"`

	// SizeKeyCollisions lists (variant, size) keys claimed by more than one
	// product in the stock snapshot.
	SizeKeyCollisions []string `json:"sizeKeyCollisions,omitempty"`

	// EANCollisions lists barcodes shared across unrelated SKUs in the
	// ledgers, which makes the EAN fallback join untrustworthy for them.
	EANCollisions []string `json:"eanCollisions,omitempty"`

	// DegradedSources names feeds that failed and were degraded to empty.
	DegradedSources []string `json:"degradedSources,omitempty"`
}

// PortfolioSummary is the roll-up over the whole valuation tree.
type PortfolioSummary struct {
	// TotalValue is rounded to whole SEK; all lower levels keep 2 decimals.
	TotalValue      types.Money `json:"totalValue"`
	TotalQuantity   int         `json:"totalQuantity"`
	UnknownQuantity int         `json:"unknownQuantity"`

	WeightedAgeDays float64 `json:"weightedAgeDays"`
	MaxAgeDays      int     `json:"maxAgeDays"`

	AgeBuckets AgeBreakdown    `json:"ageBuckets"`
	Sources    SourceBreakdown `json:"sources"`
	Locations  LocationSplit   `json:"locations"`

	DataQuality DataQuality `json:"dataQuality"`
}

// PortfolioValuation is the full result of one valuation run.
type PortfolioValuation struct {
	CompanyID   string    `json:"companyId"`
	RunID       string    `json:"runId"`
	GeneratedAt time.Time `json:"generatedAt"`

	Products []ProductValuation `json:"products"`
	Summary  PortfolioSummary   `json:"summary"`
}
