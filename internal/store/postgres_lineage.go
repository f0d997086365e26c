package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lineage/internal/db"
	"github.com/sells-group/lineage/internal/model"
)

const pgLineageColumns = `id, table_name, record_id, source_report_id, page_number, confidence_score, extracted_at, updated_at`

// lineageCopyColumns are the caller-supplied columns; ids and timestamps
// come from column defaults.
var lineageCopyColumns = []string{"table_name", "record_id", "source_report_id", "page_number", "confidence_score"}

func (o pgOps) InsertLineage(ctx context.Context, req model.TrackRequest) (*model.LineageEntry, error) {
	if err := o.requireSource(ctx, req.SourceReportID); err != nil {
		return nil, err
	}

	e := model.LineageEntry{
		TableName:       req.Record.Table,
		RecordID:        req.Record.ID,
		SourceReportID:  req.SourceReportID,
		PageNumber:      req.PageNumber,
		ConfidenceScore: req.ConfidenceScore,
	}
	err := o.q.QueryRow(ctx,
		`INSERT INTO data_lineage (table_name, record_id, source_report_id, page_number, confidence_score)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, extracted_at, updated_at`,
		req.Record.Table, req.Record.ID, req.SourceReportID, req.PageNumber, req.ConfidenceScore,
	).Scan(&e.ID, &e.ExtractedAt, &e.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert lineage %s", req.Record)
	}
	e.ExtractedAt = e.ExtractedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

// InsertLineageBatch checks each distinct source once, then copies the rows.
func (o pgOps) InsertLineageBatch(ctx context.Context, reqs []model.TrackRequest) (int64, error) {
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
	return db.CopyFrom(ctx, o.q, "data_lineage", lineageCopyColumns, reqs, func(req model.TrackRequest) []any {
		return []any{req.Record.Table, req.Record.ID, req.SourceReportID, req.PageNumber, req.ConfidenceScore}
	})
}

// UpdateLatestConfidence rewrites the score of the newest entry for ref in a
// single statement. Older entries keep their scores. Returns nil when the
// record has no lineage.
func (o pgOps) UpdateLatestConfidence(ctx context.Context, ref model.RecordRef, score float64) (*model.LineageEntry, error) {
	e, err := scanPgLineage(o.q.QueryRow(ctx,
		`UPDATE data_lineage SET confidence_score = $1, updated_at = clock_timestamp()
		 WHERE id = (
			SELECT id FROM data_lineage
			WHERE table_name = $2 AND record_id = $3
			ORDER BY extracted_at DESC, id DESC
			LIMIT 1
			FOR UPDATE
		 )
		 RETURNING `+pgLineageColumns,
		score, ref.Table, ref.ID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update confidence %s", ref)
	}
	return e, nil
}

func (o pgOps) DeleteOrphanedLineage(ctx context.Context) (int64, error) {
	tag, err := o.q.Exec(ctx,
		`DELETE FROM data_lineage
		 WHERE NOT EXISTS (SELECT 1 FROM source_reports WHERE source_reports.id = data_lineage.source_report_id)`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete orphaned lineage")
	}
	return tag.RowsAffected(), nil
}

func (o pgOps) LogMaintenance(ctx context.Context, rec model.MaintenanceRecord) error {
	details, err := marshalDetails(rec.Details)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal maintenance details")
	}
	_, err = o.q.Exec(ctx,
		`INSERT INTO maintenance_log (id, action, affected, details, performed_at) VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, string(rec.Action), rec.Affected, string(details), rec.PerformedAt,
	)
	return eris.Wrapf(err, "postgres: log maintenance %s", rec.Action)
}

func (o pgOps) FindByRecord(ctx context.Context, ref model.RecordRef) ([]model.LineageEntry, error) {
	return o.queryLineage(ctx, "postgres: find by record",
		`SELECT `+pgLineageColumns+` FROM data_lineage
		 WHERE table_name = $1 AND record_id = $2
		 ORDER BY extracted_at DESC, id DESC`,
		ref.Table, ref.ID,
	)
}

func (o pgOps) FindBySource(ctx context.Context, sourceID int64, table string) ([]model.LineageEntry, error) {
	query := `SELECT ` + pgLineageColumns + ` FROM data_lineage WHERE source_report_id = $1`
	args := []any{sourceID}
	if table != "" {
		query += ` AND table_name = $2`
		args = append(args, table)
	}
	query += ` ORDER BY extracted_at ASC, id ASC`
	return o.queryLineage(ctx, "postgres: find by source", query, args...)
}

func (o pgOps) FindLowConfidence(ctx context.Context, q model.LowConfidenceQuery) ([]model.LineageEntry, error) {
	query := `SELECT ` + pgLineageColumns + ` FROM data_lineage WHERE confidence_score < $1`
	args := []any{q.Threshold}
	argIdx := 2

	if q.Table != "" {
		query += fmt.Sprintf(` AND table_name = $%d`, argIdx)
		args = append(args, q.Table)
		argIdx++
	}
	query += ` ORDER BY confidence_score ASC, extracted_at ASC, id ASC`

	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, q.Limit)
		argIdx++
	}
	if q.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, q.Offset)
	}
	return o.queryLineage(ctx, "postgres: find low confidence", query, args...)
}

func (o pgOps) ScanOrphanedEntries(ctx context.Context, fn func(model.LineageEntry) error) error {
	rows, err := o.q.Query(ctx,
		`SELECT `+pgLineageColumns+` FROM data_lineage
		 WHERE NOT EXISTS (SELECT 1 FROM source_reports WHERE source_reports.id = data_lineage.source_report_id)
		 ORDER BY id`)
	if err != nil {
		return eris.Wrap(err, "postgres: scan orphaned entries")
	}
	defer rows.Close()

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		e, err := scanPgLineage(rows)
		if err != nil {
			return eris.Wrap(err, "postgres: scan lineage")
		}
		if err := fn(*e); err != nil {
			return err
		}
	}
	return eris.Wrap(rows.Err(), "postgres: scan orphaned entries iterate")
}

func (o pgOps) ScanUnusedSources(ctx context.Context, fn func(model.SourceReport) error) error {
	rows, err := o.q.Query(ctx,
		`SELECT `+pgSourceColumns+` FROM source_reports
		 WHERE status = $1 AND archived_at IS NULL
		   AND NOT EXISTS (SELECT 1 FROM data_lineage WHERE data_lineage.source_report_id = source_reports.id)
		 ORDER BY id`,
		string(model.SourceStatusIngested))
	if err != nil {
		return eris.Wrap(err, "postgres: scan unused sources")
	}
	defer rows.Close()

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		src, err := scanPgSource(rows)
		if err != nil {
			return eris.Wrap(err, "postgres: scan source")
		}
		if err := fn(*src); err != nil {
			return err
		}
	}
	return eris.Wrap(rows.Err(), "postgres: scan unused sources iterate")
}

func (o pgOps) queryLineage(ctx context.Context, action, query string, args ...any) ([]model.LineageEntry, error) {
	rows, err := o.q.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, action)
	}
	defer rows.Close()

	entries := []model.LineageEntry{}
	for rows.Next() {
		e, err := scanPgLineage(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lineage")
		}
		entries = append(entries, *e)
	}
	return entries, eris.Wrap(rows.Err(), action+" iterate")
}

func scanPgLineage(row scannable) (*model.LineageEntry, error) {
	var e model.LineageEntry
	err := row.Scan(&e.ID, &e.TableName, &e.RecordID, &e.SourceReportID, &e.PageNumber,
		&e.ConfidenceScore, &e.ExtractedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.ExtractedAt = e.ExtractedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}
