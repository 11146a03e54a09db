package valuation

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"lagervarde/internal/core/types"
	"lagervarde/internal/domain/feeds"
)

// Aggregator rolls size-level valuations up into variant, product and
// portfolio summaries. Every level is computed strictly from its children;
// no total is ever derived independently.
type Aggregator struct {
	buckets AgeBucketConfig
}

// NewAggregator creates an Aggregator with the given age-bucket thresholds.
func NewAggregator(buckets AgeBucketConfig) *Aggregator {
	return &Aggregator{buckets: buckets}
}

// FinishSize computes a size's own totals from its layers. The location
// split is proportional to on-hand quantity per location; a zero-quantity
// size splits to zero, never NaN.
func (a *Aggregator) FinishSize(sv *SizeValuation) {
	total := types.Zero()
	ageWeight := 0.0
	pricedQty := 0
	maxAge := 0

	for _, l := range sv.Layers {
		total = total.Add(l.LayerValue)
		ageWeight += float64(l.AgeDays) * float64(l.RemainingQuantity)
		pricedQty += l.RemainingQuantity
		if l.AgeDays > maxAge {
			maxAge = l.AgeDays
		}
	}

	sv.TotalQuantity = sv.WarehouseQty + sv.StoreQty
	sv.TotalValue = types.RoundMoney(total)
	sv.MaxAgeDays = maxAge
	if pricedQty > 0 {
		sv.WeightedAgeDays = ageWeight / float64(pricedQty)
	}
	sv.WarehouseValue, sv.StoreValue = splitByLocation(sv.TotalValue, sv.WarehouseQty, sv.StoreQty)
}

// Portfolio builds the complete valuation tree from finished sizes.
func (a *Aggregator) Portfolio(companyID, runID string, generatedAt time.Time, sizes []SizeValuation, dq DataQuality) *PortfolioValuation {
	sort.Slice(sizes, func(i, j int) bool {
		if sizes[i].ProductID != sizes[j].ProductID {
			return sizes[i].ProductID < sizes[j].ProductID
		}
		if sizes[i].SKU.VariantID != sizes[j].SKU.VariantID {
			return sizes[i].SKU.VariantID < sizes[j].SKU.VariantID
		}
		return sizes[i].SKU.Size < sizes[j].SKU.Size
	})

	var products []ProductValuation
	for start := 0; start < len(sizes); {
		end := start
		for end < len(sizes) && sizes[end].ProductID == sizes[start].ProductID {
			end++
		}
		products = append(products, a.rollUpProduct(sizes[start:end]))
		start = end
	}

	pv := &PortfolioValuation{
		CompanyID:   companyID,
		RunID:       runID,
		GeneratedAt: generatedAt,
		Products:    products,
	}
	pv.Summary = a.summarize(products, dq)
	return pv
}

func (a *Aggregator) rollUpProduct(sizes []SizeValuation) ProductValuation {
	var variants []VariantValuation
	for start := 0; start < len(sizes); {
		end := start
		for end < len(sizes) && sizes[end].SKU.VariantID == sizes[start].SKU.VariantID {
			end++
		}
		variants = append(variants, a.rollUpVariant(sizes[start:end]))
		start = end
	}

	p := ProductValuation{
		ProductID:   sizes[0].ProductID,
		ProductName: sizes[0].ProductName,
		Variants:    variants,
	}

	total := types.Zero()
	ageWeight := 0.0
	pricedQty := 0
	warehouseQty, storeQty := 0, 0
	for _, v := range variants {
		p.TotalQuantity += v.TotalQuantity
		p.UnknownQuantity += v.UnknownQuantity
		total = total.Add(v.TotalValue)
		priced := v.TotalQuantity - v.UnknownQuantity
		ageWeight += v.WeightedAgeDays * float64(priced)
		pricedQty += priced
		if v.MaxAgeDays > p.MaxAgeDays {
			p.MaxAgeDays = v.MaxAgeDays
		}
		for _, s := range v.Sizes {
			warehouseQty += s.WarehouseQty
			storeQty += s.StoreQty
		}
	}
	p.TotalValue = types.RoundMoney(total)
	if pricedQty > 0 {
		p.WeightedAgeDays = ageWeight / float64(pricedQty)
	}
	p.WarehouseValue, p.StoreValue = splitByLocation(p.TotalValue, warehouseQty, storeQty)
	return p
}

func (a *Aggregator) rollUpVariant(sizes []SizeValuation) VariantValuation {
	v := VariantValuation{
		VariantID:   sizes[0].SKU.VariantID,
		VariantName: sizes[0].VariantName,
		Sizes:       sizes,
	}

	total := types.Zero()
	ageWeight := 0.0
	pricedQty := 0
	warehouseQty, storeQty := 0, 0
	for _, s := range sizes {
		v.TotalQuantity += s.TotalQuantity
		v.UnknownQuantity += s.UnknownQuantity
		total = total.Add(s.TotalValue)
		priced := s.TotalQuantity - s.UnknownQuantity
		ageWeight += s.WeightedAgeDays * float64(priced)
		pricedQty += priced
		if s.MaxAgeDays > v.MaxAgeDays {
			v.MaxAgeDays = s.MaxAgeDays
		}
		warehouseQty += s.WarehouseQty
		storeQty += s.StoreQty
	}
	v.TotalValue = types.RoundMoney(total)
	if pricedQty > 0 {
		v.WeightedAgeDays = ageWeight / float64(pricedQty)
	}
	v.WarehouseValue, v.StoreValue = splitByLocation(v.TotalValue, warehouseQty, storeQty)
	return v
}

// summarize walks every layer once to fill the age, source and location
// breakdowns. The switch over SourceKind is exhaustive on purpose: a new
// source kind must be classified here before it can ship.
func (a *Aggregator) summarize(products []ProductValuation, dq DataQuality) PortfolioSummary {
	s := PortfolioSummary{DataQuality: dq}

	total := types.Zero()
	ageWeight := 0.0
	pricedQty := 0
	warehouseQty, storeQty := 0, 0

	for _, p := range products {
		s.TotalQuantity += p.TotalQuantity
		s.UnknownQuantity += p.UnknownQuantity
		total = total.Add(p.TotalValue)
		if p.MaxAgeDays > s.MaxAgeDays {
			s.MaxAgeDays = p.MaxAgeDays
		}

		for _, v := range p.Variants {
			for _, sz := range v.Sizes {
				warehouseQty += sz.WarehouseQty
				storeQty += sz.StoreQty
				priced := sz.TotalQuantity - sz.UnknownQuantity
				ageWeight += sz.WeightedAgeDays * float64(priced)
				pricedQty += priced

				s.Sources.Unknown.Quantity += sz.UnknownQuantity

				for _, l := range sz.Layers {
					switch a.buckets.Classify(l.AgeDays) {
					case AgeFresh:
						s.AgeBuckets.Fresh.Quantity += l.RemainingQuantity
						s.AgeBuckets.Fresh.Value = s.AgeBuckets.Fresh.Value.Add(l.LayerValue)
					case AgeAging:
						s.AgeBuckets.Aging.Quantity += l.RemainingQuantity
						s.AgeBuckets.Aging.Value = s.AgeBuckets.Aging.Value.Add(l.LayerValue)
					case AgeOld:
						s.AgeBuckets.Old.Quantity += l.RemainingQuantity
						s.AgeBuckets.Old.Value = s.AgeBuckets.Old.Value.Add(l.LayerValue)
					}

					switch l.Source {
					case feeds.SourceDelivery:
						s.Sources.Delivery.Quantity += l.RemainingQuantity
						s.Sources.Delivery.Value = s.Sources.Delivery.Value.Add(l.LayerValue)
					case feeds.SourceStockChange:
						s.Sources.StockChange.Quantity += l.RemainingQuantity
						s.Sources.StockChange.Value = s.Sources.StockChange.Value.Add(l.LayerValue)
					case feeds.SourceUnknown:
						// Layers are only built from real receipts; an
						// unknown-source layer is a programming error.
						s.Sources.Unknown.Quantity += l.RemainingQuantity
					}
				}
			}
		}
	}

	// Portfolio totals are whole SEK; bucket values keep layer precision.
	s.TotalValue = types.RoundWholeMoney(total)
	if pricedQty > 0 {
		s.WeightedAgeDays = ageWeight / float64(pricedQty)
	}
	s.AgeBuckets.Fresh.Value = types.RoundMoney(s.AgeBuckets.Fresh.Value)
	s.AgeBuckets.Aging.Value = types.RoundMoney(s.AgeBuckets.Aging.Value)
	s.AgeBuckets.Old.Value = types.RoundMoney(s.AgeBuckets.Old.Value)
	s.Sources.Delivery.Value = types.RoundMoney(s.Sources.Delivery.Value)
	s.Sources.StockChange.Value = types.RoundMoney(s.Sources.StockChange.Value)
	s.Sources.Unknown.Value = types.Zero()
	s.Locations.WarehouseValue, s.Locations.StoreValue = splitByLocation(total, warehouseQty, storeQty)
	return s
}

// splitByLocation apportions a value across locations by on-hand quantity,
// rounded to 2 decimals. Zero total quantity splits to zero on both sides.
func splitByLocation(value types.Money, warehouseQty, storeQty int) (warehouse, store types.Money) {
	totalQty := warehouseQty + storeQty
	if totalQty == 0 {
		return types.Zero(), types.Zero()
	}
	warehouse = types.RoundMoney(value.
		Mul(decimal.NewFromInt(int64(warehouseQty))).
		Div(decimal.NewFromInt(int64(totalQty))))
	store = types.RoundMoney(value.
		Mul(decimal.NewFromInt(int64(storeQty))).
		Div(decimal.NewFromInt(int64(totalQty))))
	return warehouse, store
}
