package model

import "time"

// QualityOverview summarizes confidence across every lineage entry.
// AvgConfidence, MinConfidence and MaxConfidence are nil on an empty store.
type QualityOverview struct {
	Total         int64    `json:"total_entries" yaml:"total_entries"`
	AvgConfidence *float64 `json:"avg_confidence" yaml:"avg_confidence"`
	MinConfidence *float64 `json:"min_confidence" yaml:"min_confidence"`
	MaxConfidence *float64 `json:"max_confidence" yaml:"max_confidence"`
	High          int64    `json:"count_high" yaml:"count_high"`
	Medium        int64    `json:"count_medium" yaml:"count_medium"`
	Low           int64    `json:"count_low" yaml:"count_low"`
	HighThreshold float64  `json:"high_threshold" yaml:"high_threshold"`
	LowThreshold  float64  `json:"low_threshold" yaml:"low_threshold"`
	TablesTracked int64    `json:"tables_tracked" yaml:"tables_tracked"`
	TotalSources  int64    `json:"total_sources" yaml:"total_sources"`
}

// BucketSize is the width of a timeline bucket.
type BucketSize string

const (
	BucketHour  BucketSize = "hour"
	BucketDay   BucketSize = "day"
	BucketWeek  BucketSize = "week"
	BucketMonth BucketSize = "month"
)

// Valid reports whether b is a supported bucket size.
func (b BucketSize) Valid() bool {
	switch b {
	case BucketHour, BucketDay, BucketWeek, BucketMonth:
		return true
	}
	return false
}

// TimelinePoint is one bucket of extraction activity. Bucket is the UTC start
// of the bucket; weeks start on Monday.
type TimelinePoint struct {
	Bucket        time.Time `json:"bucket" yaml:"bucket"`
	Count         int64     `json:"count" yaml:"count"`
	AvgConfidence float64   `json:"avg_confidence" yaml:"avg_confidence"`
}

// Coverage is the share of an application table's rows with at least one
// lineage entry. TotalRows is supplied by the caller.
type Coverage struct {
	Table          string  `json:"table" yaml:"table"`
	TrackedRecords int64   `json:"tracked_records" yaml:"tracked_records"`
	TotalRows      int64   `json:"total_rows" yaml:"total_rows"`
	Percent        float64 `json:"percent" yaml:"percent"`
}

// TableSummary aggregates lineage entries for one tracked table.
type TableSummary struct {
	Table   string `json:"table" yaml:"table"`
	Entries int64  `json:"entries" yaml:"entries"`
	Records int64  `json:"records" yaml:"records"`
	Sources int64  `json:"sources" yaml:"sources"`
}

// BandCount is the number of entries whose score falls in a quality band.
type BandCount struct {
	Label string  `json:"label" yaml:"label"`
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
	Count int64   `json:"count" yaml:"count"`
}
