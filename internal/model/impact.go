package model

// TableCount is the number of lineage entries in one table for a source.
type TableCount struct {
	Table string `json:"table" yaml:"table"`
	Count int64  `json:"count" yaml:"count"`
}

// Impact is the set of application records attributable to one source report.
// The sum of Breakdown counts always equals TotalRecords. Source is nil when
// the source report no longer exists.
type Impact struct {
	SourceReportID int64         `json:"source_report_id" yaml:"source_report_id"`
	Source         *SourceReport `json:"source,omitempty" yaml:"source,omitempty"`
	TotalRecords   int64         `json:"total_records" yaml:"total_records"`
	Breakdown      []TableCount  `json:"breakdown" yaml:"breakdown"`
}
