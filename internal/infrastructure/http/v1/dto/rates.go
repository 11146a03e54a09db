package dto

// RateQuery selects the observation date for a rate lookup. An empty date
// means today.
type RateQuery struct {
	Date string `form:"date"`
}

// RateResponse is one resolved currency→SEK rate.
type RateResponse struct {
	Currency string `json:"currency"`
	Date     string `json:"date"`
	Rate     string `json:"rate"`
	Quality  string `json:"quality"`
}

// BackfillRequest asks the provider for a historical range and persists it.
type BackfillRequest struct {
	Currencies []string `json:"currencies" binding:"required,min=1"`
	From       string   `json:"from" binding:"required"`
	To         string   `json:"to" binding:"required"`
}

// BackfillResponse reports how many observations each currency gained.
type BackfillResponse struct {
	Fetched map[string]int `json:"fetched"`
}
