// Package export renders a portfolio valuation as an Excel workbook for the
// finance team.
package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"lagervarde/internal/domain/valuation"
)

const (
	summarySheet = "Summary"
	sizesSheet   = "Sizes"
)

// Excel renders the valuation tree into a two-sheet workbook: a portfolio
// summary and the flat per-size detail the finance team filters on.
func Excel(pv *valuation.PortfolioValuation) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", summarySheet)
	if _, err := f.NewSheet(sizesSheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}

	if err := writeSummary(f, pv); err != nil {
		return nil, err
	}
	if err := writeSizes(f, pv); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, pv *valuation.PortfolioValuation) error {
	s := pv.Summary
	rows := [][]any{
		{"Company", pv.CompanyID},
		{"Run", pv.RunID},
		{"Generated at", pv.GeneratedAt.Format("2006-01-02 15:04 MST")},
		{},
		{"Total value (SEK)", s.TotalValue.String()},
		{"Total quantity", s.TotalQuantity},
		{"Unknown quantity", s.UnknownQuantity},
		{"Weighted age (days)", s.WeightedAgeDays},
		{"Max age (days)", s.MaxAgeDays},
		{},
		{"Age bucket", "Quantity", "Value (SEK)"},
		{"Fresh", s.AgeBuckets.Fresh.Quantity, s.AgeBuckets.Fresh.Value.String()},
		{"Aging", s.AgeBuckets.Aging.Quantity, s.AgeBuckets.Aging.Value.String()},
		{"Old", s.AgeBuckets.Old.Quantity, s.AgeBuckets.Old.Value.String()},
		{},
		{"Source", "Quantity", "Value (SEK)"},
		{"Delivery", s.Sources.Delivery.Quantity, s.Sources.Delivery.Value.String()},
		{"Stock change", s.Sources.StockChange.Quantity, s.Sources.StockChange.Value.String()},
		{"Unknown", s.Sources.Unknown.Quantity, s.Sources.Unknown.Value.String()},
		{},
		{"Location", "Value (SEK)"},
		{"Warehouse", s.Locations.WarehouseValue.String()},
		{"Store", s.Locations.StoreValue.String()},
	}

	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row %d: %w", i+1, err)
		}
	}
	return nil
}

func writeSizes(f *excelize.File, pv *valuation.PortfolioValuation) error {
	header := []any{
		"Product", "Variant", "Size", "EAN",
		"Warehouse qty", "Store qty", "Unknown qty",
		"Value (SEK)", "Source", "Weighted age (days)", "Max age (days)",
	}
	if err := f.SetSheetRow(sizesSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	rowNum := 2
	for _, p := range pv.Products {
		for _, v := range p.Variants {
			for _, sz := range v.Sizes {
				ean := ""
				if sz.EAN != nil {
					ean = *sz.EAN
				}
				row := []any{
					p.ProductName, v.VariantName, sz.SKU.Size, ean,
					sz.WarehouseQty, sz.StoreQty, sz.UnknownQuantity,
					sz.TotalValue.String(), sz.PrimarySource.String(),
					sz.WeightedAgeDays, sz.MaxAgeDays,
				}
				cell, err := excelize.CoordinatesToCellName(1, rowNum)
				if err != nil {
					return err
				}
				if err := f.SetSheetRow(sizesSheet, cell, &row); err != nil {
					return fmt.Errorf("write size row %d: %w", rowNum, err)
				}
				rowNum++
			}
		}
	}
	return nil
}
