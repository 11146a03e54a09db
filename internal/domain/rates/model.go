// Package rates provides the historical exchange-rate resolver: date-indexed
// currency→SEK lookup backed by a persistent, append-only observation cache
// with an upstream rate-provider fallback.
package rates

import (
	"fmt"
	"time"

	"lagervarde/internal/core/types"
)

// BaseCurrency is the currency all valuations are expressed in.
const BaseCurrency = "SEK"

// DateLayout is the calendar-date key format used throughout the cache.
const DateLayout = "2006-01-02"

// Quality describes how trustworthy a resolved rate is.
type Quality int

const (
	// QualityObserved means the rate was published by the provider for the
	// exact requested date.
	QualityObserved Quality = iota

	// QualityCarried means the rate was carried forward from the nearest
	// prior business day. Rates are assumed flat over non-trading days; this
	// is a documented policy choice for this domain, not a discovery.
	QualityCarried

	// QualityFallback means no observation existed at or before the date and
	// the upstream fetch produced nothing. The resolver returns rate 1 so a
	// valuation can still complete, but the observation must be flagged in
	// the output, never treated as authoritative.
	QualityFallback
)

// String implements fmt.Stringer.
func (q Quality) String() string {
	switch q {
	case QualityObserved:
		return "observed"
	case QualityCarried:
		return "carried"
	case QualityFallback:
		return "fallback"
	default:
		return fmt.Sprintf("Quality(%d)", int(q))
	}
}

// MarshalJSON encodes the quality as its string name.
func (q Quality) MarshalJSON() ([]byte, error) {
	return []byte(`"` + q.String() + `"`), nil
}

// UnmarshalJSON decodes the string name back into the quality.
func (q *Quality) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"observed"`:
		*q = QualityObserved
	case `"carried"`:
		*q = QualityCarried
	case `"fallback"`:
		*q = QualityFallback
	default:
		return fmt.Errorf("unknown rate quality %s", data)
	}
	return nil
}

// Observation is one (currency, date) → rate-to-SEK data point. Observations
// are append-only; a date is never re-priced once cached.
type Observation struct {
	Currency string      `json:"currency"`
	Date     string      `json:"date"` // DateLayout calendar date
	Rate     types.Money `json:"rate"`
	Quality  Quality     `json:"quality"`
}

// DateKey formats a timestamp as the calendar-date cache key, in UTC.
func DateKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
