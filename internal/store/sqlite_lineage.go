package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lineage/internal/model"
)

const sqliteLineageColumns = `id, table_name, record_id, source_report_id, page_number, confidence_score, extracted_at, updated_at`

func (o sqliteOps) InsertLineage(ctx context.Context, req model.TrackRequest) (*model.LineageEntry, error) {
	if err := o.requireSource(ctx, req.SourceReportID); err != nil {
		return nil, err
	}

	row := o.q.QueryRowContext(ctx,
		`INSERT INTO data_lineage (table_name, record_id, source_report_id, page_number, confidence_score, extracted_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, `+sqliteNow+`, `+sqliteNow+`)
		 RETURNING `+sqliteLineageColumns,
		req.Record.Table, req.Record.ID, req.SourceReportID, req.PageNumber, req.ConfidenceScore,
	)
	e, err := scanSQLiteLineage(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert lineage %s", req.Record)
	}
	return e, nil
}

// InsertLineageBatch inserts every request on the bound handle. Each distinct
// source id is checked once.
func (o sqliteOps) InsertLineageBatch(ctx context.Context, reqs []model.TrackRequest) (int64, error) {
	checked := make(map[int64]struct{})
	for _, req := range reqs {
		if _, ok := checked[req.SourceReportID]; ok {
			continue
		}
		if err := o.requireSource(ctx, req.SourceReportID); err != nil {
			return 0, err
		}
		checked[req.SourceReportID] = struct{}{}
	}

	var n int64
	for _, req := range reqs {
		_, err := o.q.ExecContext(ctx,
			`INSERT INTO data_lineage (table_name, record_id, source_report_id, page_number, confidence_score, extracted_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, `+sqliteNow+`, `+sqliteNow+`)`,
			req.Record.Table, req.Record.ID, req.SourceReportID, req.PageNumber, req.ConfidenceScore,
		)
		if err != nil {
			return n, eris.Wrapf(err, "sqlite: insert lineage %s", req.Record)
		}
		n++
	}
	return n, nil
}

// UpdateLatestConfidence rewrites the score of the newest entry for ref in a
// single statement. Older entries keep their scores. Returns nil when the
// record has no lineage.
func (o sqliteOps) UpdateLatestConfidence(ctx context.Context, ref model.RecordRef, score float64) (*model.LineageEntry, error) {
	row := o.q.QueryRowContext(ctx,
		`UPDATE data_lineage SET confidence_score = ?, updated_at = `+sqliteNow+`
		 WHERE id = (
			SELECT id FROM data_lineage
			WHERE table_name = ? AND record_id = ?
			ORDER BY extracted_at DESC, id DESC LIMIT 1
		 )
		 RETURNING `+sqliteLineageColumns,
		score, ref.Table, ref.ID,
	)
	e, err := scanSQLiteLineage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update confidence %s", ref)
	}
	return e, nil
}

func (o sqliteOps) DeleteOrphanedLineage(ctx context.Context) (int64, error) {
	res, err := o.q.ExecContext(ctx,
		`DELETE FROM data_lineage
		 WHERE NOT EXISTS (SELECT 1 FROM source_reports WHERE source_reports.id = data_lineage.source_report_id)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete orphaned lineage")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: rows affected")
}

func (o sqliteOps) LogMaintenance(ctx context.Context, rec model.MaintenanceRecord) error {
	details, err := marshalDetails(rec.Details)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal maintenance details")
	}
	_, err = o.q.ExecContext(ctx,
		`INSERT INTO maintenance_log (id, action, affected, details, performed_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Action), rec.Affected, string(details), sqliteTime(rec.PerformedAt),
	)
	return eris.Wrapf(err, "sqlite: log maintenance %s", rec.Action)
}

func (o sqliteOps) FindByRecord(ctx context.Context, ref model.RecordRef) ([]model.LineageEntry, error) {
	return o.queryLineage(ctx, "sqlite: find by record",
		`SELECT `+sqliteLineageColumns+` FROM data_lineage
		 WHERE table_name = ? AND record_id = ?
		 ORDER BY extracted_at DESC, id DESC`,
		ref.Table, ref.ID,
	)
}

func (o sqliteOps) FindBySource(ctx context.Context, sourceID int64, table string) ([]model.LineageEntry, error) {
	query := `SELECT ` + sqliteLineageColumns + ` FROM data_lineage WHERE source_report_id = ?`
	args := []any{sourceID}
	if table != "" {
		query += ` AND table_name = ?`
		args = append(args, table)
	}
	query += ` ORDER BY extracted_at ASC, id ASC`
	return o.queryLineage(ctx, "sqlite: find by source", query, args...)
}

func (o sqliteOps) FindLowConfidence(ctx context.Context, q model.LowConfidenceQuery) ([]model.LineageEntry, error) {
	query := `SELECT ` + sqliteLineageColumns + ` FROM data_lineage WHERE confidence_score < ?`
	args := []any{q.Threshold}
	if q.Table != "" {
		query += ` AND table_name = ?`
		args = append(args, q.Table)
	}
	query += ` ORDER BY confidence_score ASC, extracted_at ASC, id ASC`

	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	} else if q.Offset > 0 {
		query += ` LIMIT -1`
	}
	if q.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, q.Offset)
	}
	return o.queryLineage(ctx, "sqlite: find low confidence", query, args...)
}

func (o sqliteOps) ScanOrphanedEntries(ctx context.Context, fn func(model.LineageEntry) error) error {
	rows, err := o.q.QueryContext(ctx,
		`SELECT `+sqliteLineageColumns+` FROM data_lineage
		 WHERE NOT EXISTS (SELECT 1 FROM source_reports WHERE source_reports.id = data_lineage.source_report_id)
		 ORDER BY id`)
	if err != nil {
		return eris.Wrap(err, "sqlite: scan orphaned entries")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		e, err := scanSQLiteLineage(rows)
		if err != nil {
			return eris.Wrap(err, "sqlite: scan lineage")
		}
		if err := fn(*e); err != nil {
			return err
		}
	}
	return eris.Wrap(rows.Err(), "sqlite: scan orphaned entries iterate")
}

func (o sqliteOps) ScanUnusedSources(ctx context.Context, fn func(model.SourceReport) error) error {
	rows, err := o.q.QueryContext(ctx,
		`SELECT `+sqliteSourceColumns+` FROM source_reports
		 WHERE status = ? AND archived_at IS NULL
		   AND NOT EXISTS (SELECT 1 FROM data_lineage WHERE data_lineage.source_report_id = source_reports.id)
		 ORDER BY id`,
		string(model.SourceStatusIngested))
	if err != nil {
		return eris.Wrap(err, "sqlite: scan unused sources")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		src, err := scanSQLiteSource(rows)
		if err != nil {
			return eris.Wrap(err, "sqlite: scan source")
		}
		if err := fn(*src); err != nil {
			return err
		}
	}
	return eris.Wrap(rows.Err(), "sqlite: scan unused sources iterate")
}

func (o sqliteOps) queryLineage(ctx context.Context, action, query string, args ...any) ([]model.LineageEntry, error) {
	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, action)
	}
	defer rows.Close() //nolint:errcheck

	entries := []model.LineageEntry{}
	for rows.Next() {
		e, err := scanSQLiteLineage(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lineage")
		}
		entries = append(entries, *e)
	}
	return entries, eris.Wrap(rows.Err(), action+" iterate")
}

func scanSQLiteLineage(row scannable) (*model.LineageEntry, error) {
	var e model.LineageEntry
	var extractedAt, updatedAt string

	err := row.Scan(&e.ID, &e.TableName, &e.RecordID, &e.SourceReportID, &e.PageNumber,
		&e.ConfidenceScore, &extractedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if e.ExtractedAt, err = parseSQLiteTime(extractedAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}
