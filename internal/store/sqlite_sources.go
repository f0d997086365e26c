package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lineage/internal/model"
)

const sqliteSourceColumns = `id, filename, report_type, locality, period, page_count, status, failure_reason, registered_at, updated_at, archived_at`

func (o sqliteOps) InsertSource(ctx context.Context, src model.NewSource) (*model.SourceReport, error) {
	row := o.q.QueryRowContext(ctx,
		`INSERT INTO source_reports (filename, report_type, locality, period, page_count, status, registered_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, `+sqliteNow+`, `+sqliteNow+`)
		 RETURNING `+sqliteSourceColumns,
		src.Filename, src.ReportType, src.Locality, src.Period, src.PageCount,
		string(model.SourceStatusRegistered),
	)
	created, err := scanSQLiteSource(row)
	if isUniqueViolation(err) {
		return nil, &model.DuplicateSourceError{Filename: src.Filename}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert source %s", src.Filename)
	}
	return created, nil
}

// SetSourceStatus moves a source forward. The conditional UPDATE decides
// races between concurrent transitions; a zero row count is resolved into
// a no-op, an unknown id or a rejected transition.
func (o sqliteOps) SetSourceStatus(ctx context.Context, id int64, status model.SourceStatus, reason string) error {
	if status != model.SourceStatusRegistered {
		res, err := o.q.ExecContext(ctx,
			`UPDATE source_reports SET status = ?, failure_reason = ?, updated_at = `+sqliteNow+`
			 WHERE id = ? AND status = ?`,
			string(status), reason, id, string(model.SourceStatusRegistered),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: set source %d status", id)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return eris.Wrap(err, "sqlite: rows affected")
		}
		if n > 0 {
			return nil
		}
	}

	var current model.SourceStatus
	err := o.q.QueryRowContext(ctx, `SELECT status FROM source_reports WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.UnknownSourceError{ID: id}
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: get source %d status", id)
	}
	if current == status {
		return nil
	}
	return &model.TransitionError{ID: id, From: current, To: status}
}

func (o sqliteOps) DeleteSource(ctx context.Context, id int64) (bool, error) {
	res, err := o.q.ExecContext(ctx, `DELETE FROM source_reports WHERE id = ?`, id)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: delete source %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (o sqliteOps) ArchiveUnusedSources(ctx context.Context) (int64, error) {
	res, err := o.q.ExecContext(ctx,
		`UPDATE source_reports SET archived_at = `+sqliteNow+`, updated_at = `+sqliteNow+`
		 WHERE status = ? AND archived_at IS NULL
		   AND NOT EXISTS (SELECT 1 FROM data_lineage WHERE data_lineage.source_report_id = source_reports.id)`,
		string(model.SourceStatusIngested),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: archive unused sources")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: rows affected")
}

func (o sqliteOps) GetSource(ctx context.Context, id int64) (*model.SourceReport, error) {
	row := o.q.QueryRowContext(ctx,
		`SELECT `+sqliteSourceColumns+` FROM source_reports WHERE id = ?`, id)
	src, err := scanSQLiteSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return src, eris.Wrapf(err, "sqlite: get source %d", id)
}

func (o sqliteOps) GetSourceByFilename(ctx context.Context, filename string) (*model.SourceReport, error) {
	row := o.q.QueryRowContext(ctx,
		`SELECT `+sqliteSourceColumns+` FROM source_reports WHERE filename = ?`, filename)
	src, err := scanSQLiteSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return src, eris.Wrapf(err, "sqlite: get source %s", filename)
}

func (o sqliteOps) ListSources(ctx context.Context, filter SourceFilter) ([]model.SourceReport, error) {
	query := `SELECT ` + sqliteSourceColumns + ` FROM source_reports WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.ReportType != "" {
		query += ` AND report_type = ?`
		args = append(args, filter.ReportType)
	}
	query += ` ORDER BY registered_at DESC, id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sources")
	}
	defer rows.Close() //nolint:errcheck

	sources := []model.SourceReport{}
	for rows.Next() {
		src, err := scanSQLiteSource(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source")
		}
		sources = append(sources, *src)
	}
	return sources, eris.Wrap(rows.Err(), "sqlite: list sources iterate")
}

func (o sqliteOps) CountSources(ctx context.Context) (int64, error) {
	var n int64
	err := o.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM source_reports`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count sources")
}

// requireSource returns UnknownSourceError when id does not resolve.
func (o sqliteOps) requireSource(ctx context.Context, id int64) error {
	var exists bool
	err := o.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM source_reports WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return eris.Wrapf(err, "sqlite: check source %d", id)
	}
	if !exists {
		return &model.UnknownSourceError{ID: id}
	}
	return nil
}

func scanSQLiteSource(row scannable) (*model.SourceReport, error) {
	var s model.SourceReport
	var registeredAt, updatedAt string
	var archivedAt sql.NullString

	err := row.Scan(&s.ID, &s.Filename, &s.ReportType, &s.Locality, &s.Period, &s.PageCount,
		&s.Status, &s.FailureReason, &registeredAt, &updatedAt, &archivedAt)
	if err != nil {
		return nil, err
	}

	if s.RegisteredAt, err = parseSQLiteTime(registeredAt); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
		return nil, err
	}
	if archivedAt.Valid {
		t, err := parseSQLiteTime(archivedAt.String)
		if err != nil {
			return nil, err
		}
		s.ArchivedAt = &t
	}
	return &s, nil
}
