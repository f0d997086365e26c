package model

import "time"

// IssueKind identifies the kind of integrity problem.
type IssueKind string

const (
	IssueOrphanedEntry IssueKind = "orphaned_entry"
	IssueUnusedSource  IssueKind = "unused_source"
)

// IntegrityIssue is one problem found by validation. For orphaned entries
// EntryID, Table and RecordID name the entry and SourceReportID the missing
// source; for unused sources only SourceReportID and Filename are set.
type IntegrityIssue struct {
	Kind           IssueKind `json:"kind" yaml:"kind"`
	EntryID        int64     `json:"entry_id,omitempty" yaml:"entry_id,omitempty"`
	Table          string    `json:"table,omitempty" yaml:"table,omitempty"`
	RecordID       int64     `json:"record_id,omitempty" yaml:"record_id,omitempty"`
	SourceReportID int64     `json:"source_report_id" yaml:"source_report_id"`
	Filename       string    `json:"filename,omitempty" yaml:"filename,omitempty"`
	Message        string    `json:"message" yaml:"message"`
}

// IntegrityReport is the result of a validation pass. It carries no
// timestamps so repeated passes over unchanged data compare equal.
type IntegrityReport struct {
	IsValid         bool             `json:"is_valid" yaml:"is_valid"`
	ChecksPerformed int              `json:"checks_performed" yaml:"checks_performed"`
	OrphanedEntries int              `json:"orphaned_entries" yaml:"orphaned_entries"`
	UnusedSources   int              `json:"unused_sources" yaml:"unused_sources"`
	Issues          []IntegrityIssue `json:"issues" yaml:"issues"`
}

// MaintenanceAction names an operator cleanup action.
type MaintenanceAction string

const (
	ActionDeleteOrphans MaintenanceAction = "delete_orphans"
	ActionArchiveUnused MaintenanceAction = "archive_unused_sources"
	ActionDeleteSource  MaintenanceAction = "delete_source"
)

// MaintenanceRecord is an audit row written for every applied cleanup action.
type MaintenanceRecord struct {
	ID          string            `json:"id" yaml:"id"`
	Action      MaintenanceAction `json:"action" yaml:"action"`
	Affected    int64             `json:"affected" yaml:"affected"`
	Details     map[string]any    `json:"details,omitempty" yaml:"details,omitempty"`
	PerformedAt time.Time         `json:"performed_at" yaml:"performed_at"`
}

// CleanupResult reports what a cleanup action did or would do.
type CleanupResult struct {
	Action   MaintenanceAction `json:"action" yaml:"action"`
	DryRun   bool              `json:"dry_run" yaml:"dry_run"`
	Affected int64             `json:"affected" yaml:"affected"`
	AuditID  string            `json:"audit_id,omitempty" yaml:"audit_id,omitempty"`
}
