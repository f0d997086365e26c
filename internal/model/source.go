package model

import "time"

// SourceStatus represents the ingestion state of a source report.
type SourceStatus string

const (
	SourceStatusRegistered SourceStatus = "registered"
	SourceStatusIngested   SourceStatus = "ingested"
	SourceStatusFailed     SourceStatus = "failed"
)

// Valid reports whether s is a known status.
func (s SourceStatus) Valid() bool {
	switch s {
	case SourceStatusRegistered, SourceStatusIngested, SourceStatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether a source may move from s to next.
// Re-applying the current status is allowed and treated as a no-op.
func (s SourceStatus) CanTransition(next SourceStatus) bool {
	if s == next {
		return true
	}
	return s == SourceStatusRegistered &&
		(next == SourceStatusIngested || next == SourceStatusFailed)
}

// SourceReport is an external document registered as the origin of lineage entries.
type SourceReport struct {
	ID            int64        `json:"id" yaml:"id"`
	Filename      string       `json:"filename" yaml:"filename"`
	ReportType    string       `json:"report_type" yaml:"report_type"`
	Locality      string       `json:"locality,omitempty" yaml:"locality,omitempty"`
	Period        string       `json:"period,omitempty" yaml:"period,omitempty"`
	PageCount     int          `json:"page_count,omitempty" yaml:"page_count,omitempty"`
	Status        SourceStatus `json:"status" yaml:"status"`
	FailureReason string       `json:"failure_reason,omitempty" yaml:"failure_reason,omitempty"`
	RegisteredAt  time.Time    `json:"registered_at" yaml:"registered_at"`
	UpdatedAt     time.Time    `json:"updated_at" yaml:"updated_at"`
	ArchivedAt    *time.Time   `json:"archived_at,omitempty" yaml:"archived_at,omitempty"`
}

// NewSource holds the caller-supplied fields for registering a source report.
// Locality and Period are optional tags; PageCount 0 means unknown.
type NewSource struct {
	Filename   string `json:"filename"`
	ReportType string `json:"report_type"`
	Locality   string `json:"locality,omitempty"`
	Period     string `json:"period,omitempty"`
	PageCount  int    `json:"page_count,omitempty"`
}
