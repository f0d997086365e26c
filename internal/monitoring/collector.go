package monitoring

import (
	"context"
	"iter"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lineage/internal/model"
	"github.com/sells-group/lineage/internal/store"
)

// MetricsSnapshot holds a point-in-time view of lineage health.
type MetricsSnapshot struct {
	// Integrity.
	IntegrityValid  bool `json:"integrity_valid" yaml:"integrity_valid"`
	OrphanedEntries int  `json:"orphaned_entries" yaml:"orphaned_entries"`
	UnusedSources   int  `json:"unused_sources" yaml:"unused_sources"`

	// Quality across all entries.
	TotalEntries       int64    `json:"total_entries" yaml:"total_entries"`
	AvgConfidence      *float64 `json:"avg_confidence" yaml:"avg_confidence"`
	LowConfidence      int64    `json:"low_confidence" yaml:"low_confidence"`
	LowConfidenceShare float64  `json:"low_confidence_share" yaml:"low_confidence_share"`

	// Activity within the lookback window.
	RecentEntries       int64   `json:"recent_entries" yaml:"recent_entries"`
	RecentAvgConfidence float64 `json:"recent_avg_confidence" yaml:"recent_avg_confidence"`

	// Sources.
	FailedSources int `json:"failed_sources" yaml:"failed_sources"`

	LookbackHours int       `json:"lookback_hours" yaml:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at" yaml:"collected_at"`
}

// IntegrityChecker runs the integrity validation pass.
type IntegrityChecker interface {
	Validate(ctx context.Context) (*model.IntegrityReport, error)
}

// QualityReader exposes the quality aggregates the collector needs.
type QualityReader interface {
	Overview(ctx context.Context) (*model.QualityOverview, error)
	Timeline(ctx context.Context, bucket model.BucketSize, since, until time.Time) iter.Seq2[model.TimelinePoint, error]
}

// SourceLister lists registered source reports.
type SourceLister interface {
	List(ctx context.Context, filter store.SourceFilter) ([]model.SourceReport, error)
}

// maxFailedSources bounds the failed-source listing.
const maxFailedSources = 10000

// Collector gathers metrics from the lineage components.
type Collector struct {
	integrity IntegrityChecker
	quality   QualityReader
	sources   SourceLister
	now       func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(integrity IntegrityChecker, quality QualityReader, sources SourceLister) *Collector {
	return &Collector{
		integrity: integrity,
		quality:   quality,
		sources:   sources,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Collect gathers a snapshot of lineage metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	report, err := c.integrity.Validate(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: validate integrity")
	}
	snap.IntegrityValid = report.IsValid
	snap.OrphanedEntries = report.OrphanedEntries
	snap.UnusedSources = report.UnusedSources

	ov, err := c.quality.Overview(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: quality overview")
	}
	snap.TotalEntries = ov.Total
	snap.AvgConfidence = ov.AvgConfidence
	snap.LowConfidence = ov.Low
	if ov.Total > 0 {
		snap.LowConfidenceShare = float64(ov.Low) / float64(ov.Total)
	}

	if lookbackHours > 0 {
		since := now.Add(-time.Duration(lookbackHours) * time.Hour)
		var weighted float64
		for p, err := range c.quality.Timeline(ctx, model.BucketHour, since, time.Time{}) {
			if err != nil {
				return nil, eris.Wrap(err, "monitoring: timeline")
			}
			snap.RecentEntries += p.Count
			weighted += p.AvgConfidence * float64(p.Count)
		}
		if snap.RecentEntries > 0 {
			snap.RecentAvgConfidence = weighted / float64(snap.RecentEntries)
		}
	}

	failed, err := c.sources.List(ctx, store.SourceFilter{Status: model.SourceStatusFailed, Limit: maxFailedSources})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list failed sources")
	}
	snap.FailedSources = len(failed)

	return snap, nil
}
