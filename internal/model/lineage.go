package model

import (
	"fmt"
	"time"
)

// RecordRef is a typed reference to a row in an application table.
// The core never owns the referenced row.
type RecordRef struct {
	Table string `json:"table" yaml:"table"`
	ID    int64  `json:"id" yaml:"id"`
}

func (r RecordRef) String() string {
	return fmt.Sprintf("%s:%d", r.Table, r.ID)
}

// LineageEntry links one application record to the source report and page it
// was extracted from. Entries are append-only history: several entries may
// exist for the same record, the latest by ExtractedAt (then ID) is current.
type LineageEntry struct {
	ID              int64     `json:"id" yaml:"id"`
	TableName       string    `json:"table_name" yaml:"table_name"`
	RecordID        int64     `json:"record_id" yaml:"record_id"`
	SourceReportID  int64     `json:"source_report_id" yaml:"source_report_id"`
	PageNumber      int       `json:"page_number,omitempty" yaml:"page_number,omitempty"`
	ConfidenceScore float64   `json:"confidence_score" yaml:"confidence_score"`
	ExtractedAt     time.Time `json:"extracted_at" yaml:"extracted_at"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"updated_at"`
}

// Ref returns the record reference of the entry.
func (e LineageEntry) Ref() RecordRef {
	return RecordRef{Table: e.TableName, ID: e.RecordID}
}

// TrackRequest carries the fields for a new lineage entry. PageNumber 0 means
// the page is unknown.
type TrackRequest struct {
	Record          RecordRef `json:"record"`
	SourceReportID  int64     `json:"source_report_id"`
	PageNumber      int       `json:"page_number,omitempty"`
	ConfidenceScore float64   `json:"confidence_score"`
}

// LowConfidenceQuery selects entries scoring strictly below Threshold.
type LowConfidenceQuery struct {
	Threshold float64 `json:"threshold"`
	Table     string  `json:"table,omitempty"`
	Limit     int     `json:"limit,omitempty"`
	Offset    int     `json:"offset,omitempty"`
}

// RecordLineage pairs an entry with the source it references. Source is nil
// when the entry is orphaned.
type RecordLineage struct {
	Entry  LineageEntry  `json:"entry" yaml:"entry"`
	Source *SourceReport `json:"source,omitempty" yaml:"source,omitempty"`
}
