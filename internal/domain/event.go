package domain

import "time"

// Aggregators accepted verbatim on ingest. Anything else is coerced to
// AggregatorUnknown rather than rejected. The Hooks registry can extend
// this set at runtime.
const (
	AggregatorFeedzy    = "Feedzy"
	AggregatorWPeMatico = "WPeMatico"
	AggregatorUnknown   = "Unknown"
	AggregatorTest      = "Test"
)

// DedupWindow is the fixed trailing window used for duplicate
// classification. It is intentionally not configurable; the scanning
// window used for spike detection is a separate setting.
const DedupWindow = 24 * time.Hour

// SyndicationEvent is a single republish report from an agent site.
type SyndicationEvent struct {
	ID int64

	// PostID identifies the original content item on the source site.
	PostID int64

	// SiteURL is the reporting agent's origin. Together with PostID it
	// forms the dedup dimension.
	SiteURL string

	SiteName   string
	Aggregator string

	// IsDuplicate is computed once at insert time and never mutated.
	IsDuplicate bool

	Timestamp time.Time
}

// Metrics is the all-time aggregate over stored events.
type Metrics struct {
	Total          int64   `json:"total"`
	Duplicates     int64   `json:"duplicates"`
	UniquePartners int64   `json:"unique_partners"`
	DuplicateRate  float64 `json:"duplicate_rate"`
}

// WindowMetrics is the aggregate restricted to a trailing window.
type WindowMetrics struct {
	Total      int64 `json:"total"`
	Duplicates int64 `json:"duplicates"`
}
