package dto

import "time"

// RunSummary is the archived-run header returned by the run list endpoint.
type RunSummary struct {
	RunID           string    `json:"runId"`
	CompanyID       string    `json:"companyId"`
	GeneratedAt     time.Time `json:"generatedAt"`
	TotalValue      string    `json:"totalValue"`
	TotalQuantity   int       `json:"totalQuantity"`
	UnknownQuantity int       `json:"unknownQuantity"`
}

// RunListResponse wraps the archived-run list.
type RunListResponse struct {
	Runs []RunSummary `json:"runs"`
}
