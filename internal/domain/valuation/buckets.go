package valuation

// AgeBucketConfig holds the day thresholds for stock-age classification.
// The defaults are the reporting conventions this engine replaces; both
// bounds are configuration, not inline constants.
type AgeBucketConfig struct {
	// FreshMaxDays is the exclusive upper bound of the fresh bucket.
	FreshMaxDays int

	// AgingMaxDays is the inclusive upper bound of the aging bucket;
	// anything older is old stock.
	AgingMaxDays int
}

// DefaultAgeBuckets classifies under ~6 months as fresh and over ~18 months
// as old.
func DefaultAgeBuckets() AgeBucketConfig {
	return AgeBucketConfig{FreshMaxDays: 183, AgingMaxDays: 547}
}

// Classify maps a layer age in days onto its bucket.
func (c AgeBucketConfig) Classify(ageDays int) AgeBucket {
	switch {
	case ageDays < c.FreshMaxDays:
		return AgeFresh
	case ageDays <= c.AgingMaxDays:
		return AgeAging
	default:
		return AgeOld
	}
}
