package lineage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/lineage/internal/model"
	"github.com/sells-group/lineage/internal/store"
)

// Maintenance applies operator cleanup actions. Every applied action writes
// an audit row in the same transaction; dry runs only count.
type Maintenance struct {
	s     store.Store
	now   func() time.Time
	newID func() string
	log   *zap.Logger
}

// NewMaintenance returns a Maintenance over s.
func NewMaintenance(s store.Store) *Maintenance {
	return &Maintenance{
		s:     s,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.New().String() },
		log:   zap.L().With(zap.String("component", "lineage.maintenance")),
	}
}

// DeleteOrphans removes entries whose source report no longer exists.
func (m *Maintenance) DeleteOrphans(ctx context.Context, dryRun bool) (*model.CleanupResult, error) {
	if dryRun {
		var n int64
		err := m.s.WithSnapshot(ctx, func(r store.Reader) error {
			return r.ScanOrphanedEntries(ctx, func(model.LineageEntry) error {
				n++
				return nil
			})
		})
		if err != nil {
			return nil, err
		}
		return &model.CleanupResult{Action: model.ActionDeleteOrphans, DryRun: true, Affected: n}, nil
	}

	return m.apply(ctx, model.ActionDeleteOrphans, func(tx store.Tx) (int64, map[string]any, error) {
		n, err := tx.DeleteOrphanedLineage(ctx)
		return n, nil, err
	})
}

// ArchiveUnusedSources marks ingested sources with no lineage as archived.
// Archived sources stay queryable but drop out of integrity reports.
func (m *Maintenance) ArchiveUnusedSources(ctx context.Context, dryRun bool) (*model.CleanupResult, error) {
	if dryRun {
		var n int64
		err := m.s.WithSnapshot(ctx, func(r store.Reader) error {
			return r.ScanUnusedSources(ctx, func(model.SourceReport) error {
				n++
				return nil
			})
		})
		if err != nil {
			return nil, err
		}
		return &model.CleanupResult{Action: model.ActionArchiveUnused, DryRun: true, Affected: n}, nil
	}

	return m.apply(ctx, model.ActionArchiveUnused, func(tx store.Tx) (int64, map[string]any, error) {
		n, err := tx.ArchiveUnusedSources(ctx)
		return n, nil, err
	})
}

// DeleteSource removes a source report without touching its lineage entries,
// which become orphans.
func (m *Maintenance) DeleteSource(ctx context.Context, id int64) (*model.CleanupResult, error) {
	return m.apply(ctx, model.ActionDeleteSource, func(tx store.Tx) (int64, map[string]any, error) {
		src, err := tx.GetSource(ctx, id)
		if err != nil {
			return 0, nil, err
		}
		if src == nil {
			return 0, nil, &model.UnknownSourceError{ID: id}
		}
		breakdown, err := tx.SourceBreakdown(ctx, id)
		if err != nil {
			return 0, nil, err
		}
		var orphaned int64
		for _, tc := range breakdown {
			orphaned += tc.Count
		}
		if _, err := tx.DeleteSource(ctx, id); err != nil {
			return 0, nil, err
		}
		return 1, map[string]any{
			"source_report_id": id,
			"filename":         src.Filename,
			"orphaned_entries": orphaned,
		}, nil
	})
}

func (m *Maintenance) apply(ctx context.Context, action model.MaintenanceAction, fn func(tx store.Tx) (int64, map[string]any, error)) (*model.CleanupResult, error) {
	rec := model.MaintenanceRecord{ID: m.newID(), Action: action}
	err := m.s.WithTx(ctx, func(tx store.Tx) error {
		n, details, err := fn(tx)
		if err != nil {
			return err
		}
		rec.Affected = n
		rec.Details = details
		rec.PerformedAt = m.now()
		return tx.LogMaintenance(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("maintenance applied",
		zap.String("action", string(action)),
		zap.Int64("affected", rec.Affected),
		zap.String("audit_id", rec.ID),
	)
	return &model.CleanupResult{Action: action, Affected: rec.Affected, AuditID: rec.ID}, nil
}
