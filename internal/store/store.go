package store

import (
	"context"
	"time"

	"github.com/sells-group/lineage/internal/model"
)

// SourceFilter specifies criteria for listing source reports.
type SourceFilter struct {
	Status     model.SourceStatus `json:"status,omitempty"`
	ReportType string             `json:"report_type,omitempty"`
	Limit      int                `json:"limit,omitempty"`
	Offset     int                `json:"offset,omitempty"`
}

// TimelineRange bounds a timeline scan. Zero times leave that side open.
type TimelineRange struct {
	Bucket model.BucketSize
	Since  time.Time
	Until  time.Time
}

// Reader is the read-only query surface. Empty results are returned as empty
// slices or nil pointers, never as errors.
type Reader interface {
	// Sources
	GetSource(ctx context.Context, id int64) (*model.SourceReport, error)
	GetSourceByFilename(ctx context.Context, filename string) (*model.SourceReport, error)
	ListSources(ctx context.Context, filter SourceFilter) ([]model.SourceReport, error)
	CountSources(ctx context.Context) (int64, error)

	// Lineage
	FindByRecord(ctx context.Context, ref model.RecordRef) ([]model.LineageEntry, error)
	FindBySource(ctx context.Context, sourceID int64, table string) ([]model.LineageEntry, error)
	FindLowConfidence(ctx context.Context, q model.LowConfidenceQuery) ([]model.LineageEntry, error)

	// Aggregates
	ConfidenceStats(ctx context.Context, high, low float64) (*model.QualityOverview, error)
	CountInRange(ctx context.Context, lo, hi float64, inclusiveMax bool) (int64, error)
	Timeline(ctx context.Context, rng TimelineRange, fn func(model.TimelinePoint) error) error
	CountTrackedRecords(ctx context.Context, table string) (int64, error)
	TableSummaries(ctx context.Context) ([]model.TableSummary, error)
	SourceBreakdown(ctx context.Context, sourceID int64) ([]model.TableCount, error)
	SourcesWithLineage(ctx context.Context) ([]int64, error)

	// Integrity scans. Rows are streamed to fn in id order; returning an
	// error from fn stops the scan.
	ScanOrphanedEntries(ctx context.Context, fn func(model.LineageEntry) error) error
	ScanUnusedSources(ctx context.Context, fn func(model.SourceReport) error) error
}

// Writer adds the mutating operations. Every Writer can also read, so write
// paths can check references through the same handle.
type Writer interface {
	Reader

	InsertSource(ctx context.Context, src model.NewSource) (*model.SourceReport, error)
	SetSourceStatus(ctx context.Context, id int64, status model.SourceStatus, reason string) error
	DeleteSource(ctx context.Context, id int64) (bool, error)
	ArchiveUnusedSources(ctx context.Context) (int64, error)

	InsertLineage(ctx context.Context, req model.TrackRequest) (*model.LineageEntry, error)
	InsertLineageBatch(ctx context.Context, reqs []model.TrackRequest) (int64, error)
	UpdateLatestConfidence(ctx context.Context, ref model.RecordRef, score float64) (*model.LineageEntry, error)
	DeleteOrphanedLineage(ctx context.Context) (int64, error)

	LogMaintenance(ctx context.Context, rec model.MaintenanceRecord) error
}

// Tx is a Writer bound to a caller-owned transaction. InsertRecord and
// ExecRecord let the extraction pipeline write its application row in the
// same transaction as the lineage entry that describes it.
type Tx interface {
	Writer

	// InsertRecord executes an INSERT ... RETURNING id and returns the id.
	InsertRecord(ctx context.Context, query string, args ...any) (int64, error)
	// ExecRecord executes a statement and returns the affected row count.
	ExecRecord(ctx context.Context, query string, args ...any) (int64, error)
}

// ReadStore is the surface handed to reporting code: reads plus consistent
// multi-query snapshots.
type ReadStore interface {
	Reader
	// WithSnapshot runs fn against a single read transaction so every query
	// inside sees the same committed state.
	WithSnapshot(ctx context.Context, fn func(r Reader) error) error
}

// Store defines the persistence interface for lineage tracking.
type Store interface {
	Writer
	ReadStore

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Tx    = (*sqliteTx)(nil)
	_ Tx    = (*pgTx)(nil)
)
