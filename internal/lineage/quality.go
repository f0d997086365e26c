package lineage

import (
	"context"
	"errors"
	"iter"
	"math"
	"time"

	"github.com/sells-group/lineage/internal/model"
	"github.com/sells-group/lineage/internal/store"
)

// Default confidence thresholds for the overview counts.
const (
	DefaultHighThreshold = 0.8
	DefaultLowThreshold  = 0.5
)

var errStopTimeline = errors.New("timeline: consumer stopped")

// QualityConfig tunes the quality metrics.
type QualityConfig struct {
	HighThreshold float64
	LowThreshold  float64
	Bands         []Band
}

// Quality computes aggregate data-quality signals.
type Quality struct {
	r      store.ReadStore
	tables *TableRegistry
	high   float64
	low    float64
	bands  *BandPolicy
}

// NewQuality validates cfg and returns a Quality over r. Zero thresholds take
// the defaults.
func NewQuality(r store.ReadStore, tables *TableRegistry, cfg QualityConfig) (*Quality, error) {
	high, low := cfg.HighThreshold, cfg.LowThreshold
	if high == 0 {
		high = DefaultHighThreshold
	}
	if low == 0 {
		low = DefaultLowThreshold
	}
	if err := ValidateScore(high); err != nil {
		return nil, model.NewValidationError("high_threshold", "must be within [0,1], got %v", high)
	}
	if err := ValidateScore(low); err != nil {
		return nil, model.NewValidationError("low_threshold", "must be within [0,1], got %v", low)
	}
	if low > high {
		return nil, model.NewValidationError("low_threshold", "%v exceeds high threshold %v", low, high)
	}
	bands, err := NewBandPolicy(cfg.Bands)
	if err != nil {
		return nil, err
	}
	return &Quality{r: r, tables: tables, high: high, low: low, bands: bands}, nil
}

// Policy returns the band policy in use.
func (q *Quality) Policy() *BandPolicy { return q.bands }

// Thresholds returns the high and low confidence thresholds in use.
func (q *Quality) Thresholds() (high, low float64) { return q.high, q.low }

// Overview summarizes confidence across all entries in one snapshot. On an
// empty store the counts are zero and the average is nil.
func (q *Quality) Overview(ctx context.Context) (*model.QualityOverview, error) {
	var ov *model.QualityOverview
	err := q.r.WithSnapshot(ctx, func(r store.Reader) error {
		var err error
		ov, err = r.ConfidenceStats(ctx, q.high, q.low)
		if err != nil {
			return err
		}
		ov.TotalSources, err = r.CountSources(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ov, nil
}

// Timeline yields extraction activity per bucket in ascending bucket order.
// Rows are read as the consumer iterates; breaking out of the loop ends the
// query. Zero since or until leaves that side open.
func (q *Quality) Timeline(ctx context.Context, bucket model.BucketSize, since, until time.Time) iter.Seq2[model.TimelinePoint, error] {
	return func(yield func(model.TimelinePoint, error) bool) {
		if !bucket.Valid() {
			yield(model.TimelinePoint{}, model.NewValidationError("bucket", "unsupported bucket %q", bucket))
			return
		}
		if !since.IsZero() && !until.IsZero() && until.Before(since) {
			yield(model.TimelinePoint{}, model.NewValidationError("until", "before since"))
			return
		}
		rng := store.TimelineRange{Bucket: bucket, Since: since, Until: until}
		err := q.r.Timeline(ctx, rng, func(p model.TimelinePoint) error {
			if !yield(p, nil) {
				return errStopTimeline
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopTimeline) {
			yield(model.TimelinePoint{}, err)
		}
	}
}

// TableCoverage reports the share of totalRows that have at least one
// lineage entry. totalRows comes from the caller, who owns the table; a stale
// count can make tracked exceed it, so the percentage is capped at 100.
func (q *Quality) TableCoverage(ctx context.Context, table string, totalRows int64) (*model.Coverage, error) {
	if err := q.tables.Check(table); err != nil {
		return nil, err
	}
	tracked, err := q.r.CountTrackedRecords(ctx, table)
	if err != nil {
		return nil, err
	}
	cov := &model.Coverage{Table: table, TrackedRecords: tracked, TotalRows: totalRows}
	if totalRows <= 0 {
		if tracked > 0 {
			return nil, model.NewValidationError("total_rows", "%d with %d tracked records", totalRows, tracked)
		}
		return cov, nil
	}
	cov.Percent = math.Min(100, float64(tracked)/float64(totalRows)*100)
	return cov, nil
}

// TableSummary returns per-table entry, record and source counts, busiest
// table first.
func (q *Quality) TableSummary(ctx context.Context) ([]model.TableSummary, error) {
	return q.r.TableSummaries(ctx)
}

// Bands counts entries per configured band, highest band first.
func (q *Quality) Bands(ctx context.Context) ([]model.BandCount, error) {
	out := q.bands.ranges()
	err := q.r.WithSnapshot(ctx, func(r store.Reader) error {
		for i := range out {
			n, err := r.CountInRange(ctx, out[i].Min, out[i].Max, i == 0)
			if err != nil {
				return err
			}
			out[i].Count = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
