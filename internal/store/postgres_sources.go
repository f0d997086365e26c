package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lineage/internal/model"
)

// archived_at is read as a flag plus a non-null timestamp so scans never see NULL.
const pgSourceColumns = `id, filename, report_type, locality, period, page_count, status, failure_reason,
	registered_at, updated_at, archived_at IS NOT NULL, COALESCE(archived_at, updated_at)`

func (o pgOps) InsertSource(ctx context.Context, src model.NewSource) (*model.SourceReport, error) {
	out := model.SourceReport{
		Filename:   src.Filename,
		ReportType: src.ReportType,
		Locality:   src.Locality,
		Period:     src.Period,
		PageCount:  src.PageCount,
	}
	var status string
	err := o.q.QueryRow(ctx,
		`INSERT INTO source_reports (filename, report_type, locality, period, page_count)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, status, registered_at, updated_at`,
		src.Filename, src.ReportType, src.Locality, src.Period, src.PageCount,
	).Scan(&out.ID, &status, &out.RegisteredAt, &out.UpdatedAt)
	if isUniqueViolation(err) {
		return nil, &model.DuplicateSourceError{Filename: src.Filename}
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert source %s", src.Filename)
	}
	out.Status = model.SourceStatus(status)
	out.RegisteredAt = out.RegisteredAt.UTC()
	out.UpdatedAt = out.UpdatedAt.UTC()
	return &out, nil
}

// SetSourceStatus moves a source forward. The conditional UPDATE decides
// races between concurrent transitions; a zero row count is resolved into
// a no-op, an unknown id or a rejected transition.
func (o pgOps) SetSourceStatus(ctx context.Context, id int64, status model.SourceStatus, reason string) error {
	if status != model.SourceStatusRegistered {
		tag, err := o.q.Exec(ctx,
			`UPDATE source_reports SET status = $1, failure_reason = $2, updated_at = clock_timestamp()
			 WHERE id = $3 AND status = $4`,
			string(status), reason, id, string(model.SourceStatusRegistered),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: set source %d status", id)
		}
		if tag.RowsAffected() > 0 {
			return nil
		}
	}

	var current string
	err := o.q.QueryRow(ctx, `SELECT status FROM source_reports WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.UnknownSourceError{ID: id}
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: get source %d status", id)
	}
	if model.SourceStatus(current) == status {
		return nil
	}
	return &model.TransitionError{ID: id, From: model.SourceStatus(current), To: status}
}

func (o pgOps) DeleteSource(ctx context.Context, id int64) (bool, error) {
	tag, err := o.q.Exec(ctx, `DELETE FROM source_reports WHERE id = $1`, id)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: delete source %d", id)
	}
	return tag.RowsAffected() > 0, nil
}

func (o pgOps) ArchiveUnusedSources(ctx context.Context) (int64, error) {
	tag, err := o.q.Exec(ctx,
		`UPDATE source_reports SET archived_at = clock_timestamp(), updated_at = clock_timestamp()
		 WHERE status = $1 AND archived_at IS NULL
		   AND NOT EXISTS (SELECT 1 FROM data_lineage WHERE data_lineage.source_report_id = source_reports.id)`,
		string(model.SourceStatusIngested),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: archive unused sources")
	}
	return tag.RowsAffected(), nil
}

func (o pgOps) GetSource(ctx context.Context, id int64) (*model.SourceReport, error) {
	src, err := scanPgSource(o.q.QueryRow(ctx,
		`SELECT `+pgSourceColumns+` FROM source_reports WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get source %d", id)
	}
	return src, nil
}

func (o pgOps) GetSourceByFilename(ctx context.Context, filename string) (*model.SourceReport, error) {
	src, err := scanPgSource(o.q.QueryRow(ctx,
		`SELECT `+pgSourceColumns+` FROM source_reports WHERE filename = $1`, filename))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get source %s", filename)
	}
	return src, nil
}

func (o pgOps) ListSources(ctx context.Context, filter SourceFilter) ([]model.SourceReport, error) {
	query := `SELECT ` + pgSourceColumns + ` FROM source_reports WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.ReportType != "" {
		query += fmt.Sprintf(` AND report_type = $%d`, argIdx)
		args = append(args, filter.ReportType)
		argIdx++
	}
	query += ` ORDER BY registered_at DESC, id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := o.q.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sources")
	}
	defer rows.Close()

	sources := []model.SourceReport{}
	for rows.Next() {
		src, err := scanPgSource(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		sources = append(sources, *src)
	}
	return sources, eris.Wrap(rows.Err(), "postgres: list sources iterate")
}

func (o pgOps) CountSources(ctx context.Context) (int64, error) {
	var n int64
	err := o.q.QueryRow(ctx, `SELECT COUNT(*) FROM source_reports`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count sources")
}

// requireSource returns UnknownSourceError when id does not resolve. The key
// share lock holds off a concurrent delete until the caller's transaction ends.
func (o pgOps) requireSource(ctx context.Context, id int64) error {
	var found int64
	err := o.q.QueryRow(ctx,
		`SELECT id FROM source_reports WHERE id = $1 FOR KEY SHARE`, id).Scan(&found)
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.UnknownSourceError{ID: id}
	}
	return eris.Wrapf(err, "postgres: check source %d", id)
}

func scanPgSource(row scannable) (*model.SourceReport, error) {
	var (
		s          model.SourceReport
		status     string
		archived   bool
		archivedAt time.Time
	)
	err := row.Scan(&s.ID, &s.Filename, &s.ReportType, &s.Locality, &s.Period, &s.PageCount,
		&status, &s.FailureReason, &s.RegisteredAt, &s.UpdatedAt, &archived, &archivedAt)
	if err != nil {
		return nil, err
	}
	s.Status = model.SourceStatus(status)
	s.RegisteredAt = s.RegisteredAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	if archived {
		t := archivedAt.UTC()
		s.ArchivedAt = &t
	}
	return &s, nil
}
