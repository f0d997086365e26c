package lineage

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/sells-group/lineage/internal/model"
	"github.com/sells-group/lineage/internal/store"
)

// Tracker records and queries lineage entries. It never owns a transaction:
// to pair an entry with its application row, bind it to the caller's
// transaction with On.
type Tracker struct {
	w      store.Writer
	tables *TableRegistry
	log    *zap.Logger
}

// NewTracker returns a Tracker writing through w and validating tables
// against tables (nil accepts any well-formed name).
func NewTracker(w store.Writer, tables *TableRegistry) *Tracker {
	return &Tracker{
		w:      w,
		tables: tables,
		log:    zap.L().With(zap.String("component", "lineage.tracker")),
	}
}

// On returns a Tracker bound to tx. A failed Track on it returns an error the
// caller propagates out of WithTx, rolling back the paired record.
func (t *Tracker) On(tx store.Tx) *Tracker {
	return &Tracker{w: tx, tables: t.tables, log: t.log}
}

// ValidateScore rejects NaN and scores outside [0,1].
func ValidateScore(score float64) error {
	if math.IsNaN(score) || score < 0 || score > 1 {
		return model.NewValidationError("confidence_score", "must be within [0,1], got %v", score)
	}
	return nil
}

func (t *Tracker) validate(req model.TrackRequest) error {
	if err := t.tables.CheckRef(req.Record); err != nil {
		return err
	}
	if err := ValidateScore(req.ConfidenceScore); err != nil {
		return err
	}
	if req.PageNumber < 0 {
		return model.NewValidationError("page_number", "must not be negative, got %d", req.PageNumber)
	}
	if req.SourceReportID <= 0 {
		return &model.UnknownSourceError{ID: req.SourceReportID}
	}
	return nil
}

// Track appends a lineage entry. Existing entries for the record are kept as
// history.
func (t *Tracker) Track(ctx context.Context, req model.TrackRequest) (*model.LineageEntry, error) {
	if err := t.validate(req); err != nil {
		return nil, err
	}
	e, err := t.w.InsertLineage(ctx, req)
	if err != nil {
		return nil, err
	}
	t.log.Debug("lineage tracked",
		zap.Int64("entry_id", e.ID),
		zap.Stringer("record", req.Record),
		zap.Int64("source_report_id", req.SourceReportID),
		zap.Float64("confidence", req.ConfidenceScore),
	)
	return e, nil
}

// TrackBatch validates every request, then inserts them all or none.
func (t *Tracker) TrackBatch(ctx context.Context, reqs []model.TrackRequest) (int64, error) {
	if len(reqs) == 0 {
		return 0, nil
	}
	for i, req := range reqs {
		if err := t.validate(req); err != nil {
			t.log.Debug("batch rejected", zap.Int("index", i), zap.Error(err))
			return 0, err
		}
	}
	n, err := t.w.InsertLineageBatch(ctx, reqs)
	if err != nil {
		return 0, err
	}
	t.log.Debug("lineage batch tracked", zap.Int64("entries", n))
	return n, nil
}

// UpdateConfidence rewrites the score of the record's latest entry only.
// It returns nil when the record has no lineage.
func (t *Tracker) UpdateConfidence(ctx context.Context, ref model.RecordRef, score float64) (*model.LineageEntry, error) {
	if err := t.tables.CheckRef(ref); err != nil {
		return nil, err
	}
	if err := ValidateScore(score); err != nil {
		return nil, err
	}
	e, err := t.w.UpdateLatestConfidence(ctx, ref, score)
	if err != nil {
		return nil, err
	}
	if e == nil {
		t.log.Debug("no lineage to update", zap.Stringer("record", ref))
		return nil, nil
	}
	t.log.Info("confidence updated", zap.Stringer("record", ref), zap.Int64("entry_id", e.ID), zap.Float64("confidence", score))
	return e, nil
}

// FindByRecord returns every entry for ref, newest first.
func (t *Tracker) FindByRecord(ctx context.Context, ref model.RecordRef) ([]model.LineageEntry, error) {
	if err := t.tables.CheckRef(ref); err != nil {
		return nil, err
	}
	return t.w.FindByRecord(ctx, ref)
}

// FindBySource returns the source's entries in extraction order, optionally
// limited to one table.
func (t *Tracker) FindBySource(ctx context.Context, sourceID int64, table string) ([]model.LineageEntry, error) {
	if table != "" {
		if err := t.tables.Check(table); err != nil {
			return nil, err
		}
	}
	return t.w.FindBySource(ctx, sourceID, table)
}

// FindLowConfidence returns entries scoring strictly below q.Threshold,
// weakest first.
func (t *Tracker) FindLowConfidence(ctx context.Context, q model.LowConfidenceQuery) ([]model.LineageEntry, error) {
	if math.IsNaN(q.Threshold) || q.Threshold < 0 || q.Threshold > 1 {
		return nil, model.NewValidationError("threshold", "must be within [0,1], got %v", q.Threshold)
	}
	if q.Table != "" {
		if err := t.tables.Check(q.Table); err != nil {
			return nil, err
		}
	}
	if q.Limit < 0 || q.Offset < 0 {
		return nil, model.NewValidationError("limit", "limit and offset must not be negative")
	}
	return t.w.FindLowConfidence(ctx, q)
}

// Provenance returns the record's entries, newest first, each paired with
// its source report. Orphaned entries carry a nil source.
func (t *Tracker) Provenance(ctx context.Context, ref model.RecordRef) ([]model.RecordLineage, error) {
	entries, err := t.FindByRecord(ctx, ref)
	if err != nil {
		return nil, err
	}
	sources := make(map[int64]*model.SourceReport)
	out := make([]model.RecordLineage, 0, len(entries))
	for _, e := range entries {
		src, seen := sources[e.SourceReportID]
		if !seen {
			src, err = t.w.GetSource(ctx, e.SourceReportID)
			if err != nil {
				return nil, err
			}
			sources[e.SourceReportID] = src
		}
		out = append(out, model.RecordLineage{Entry: e, Source: src})
	}
	return out, nil
}
