package store

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lineage/internal/model"
)

func (o pgOps) ConfidenceStats(ctx context.Context, high, low float64) (*model.QualityOverview, error) {
	var (
		ov          = model.QualityOverview{HighThreshold: high, LowThreshold: low}
		avg, lo, hi float64
	)
	err := o.q.QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(AVG(confidence_score), 0)::float8,
		        COALESCE(MIN(confidence_score), 0)::float8,
		        COALESCE(MAX(confidence_score), 0)::float8,
		        COUNT(*) FILTER (WHERE confidence_score >= $1),
		        COUNT(*) FILTER (WHERE confidence_score < $2),
		        COUNT(DISTINCT table_name)
		 FROM data_lineage`,
		high, low,
	).Scan(&ov.Total, &avg, &lo, &hi, &ov.High, &ov.Low, &ov.TablesTracked)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: confidence stats")
	}
	finishOverview(&ov, avg, lo, hi)
	return &ov, nil
}

func (o pgOps) CountInRange(ctx context.Context, lo, hi float64, inclusiveMax bool) (int64, error) {
	op := "<"
	if inclusiveMax {
		op = "<="
	}
	var n int64
	err := o.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM data_lineage WHERE confidence_score >= $1 AND confidence_score `+op+` $2`,
		lo, hi,
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count in range")
}

func (o pgOps) Timeline(ctx context.Context, rng TimelineRange, fn func(model.TimelinePoint) error) error {
	if !rng.Bucket.Valid() {
		return eris.Errorf("postgres: unsupported bucket %q", rng.Bucket)
	}

	query := fmt.Sprintf(
		`SELECT date_trunc('%s', extracted_at AT TIME ZONE 'UTC') AS bucket, COUNT(*), AVG(confidence_score)::float8
		 FROM data_lineage WHERE true`, rng.Bucket)
	args := []any{}
	argIdx := 1
	if !rng.Since.IsZero() {
		query += fmt.Sprintf(` AND extracted_at >= $%d`, argIdx)
		args = append(args, rng.Since.UTC())
		argIdx++
	}
	if !rng.Until.IsZero() {
		query += fmt.Sprintf(` AND extracted_at < $%d`, argIdx)
		args = append(args, rng.Until.UTC())
	}
	query += ` GROUP BY bucket ORDER BY bucket ASC`

	rows, err := o.q.Query(ctx, query, args...)
	if err != nil {
		return eris.Wrap(err, "postgres: timeline")
	}
	defer rows.Close()

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var p model.TimelinePoint
		if err := rows.Scan(&p.Bucket, &p.Count, &p.AvgConfidence); err != nil {
			return eris.Wrap(err, "postgres: scan timeline")
		}
		p.Bucket = p.Bucket.UTC()
		if err := fn(p); err != nil {
			return err
		}
	}
	return eris.Wrap(rows.Err(), "postgres: timeline iterate")
}

func (o pgOps) CountTrackedRecords(ctx context.Context, table string) (int64, error) {
	var n int64
	err := o.q.QueryRow(ctx,
		`SELECT COUNT(DISTINCT record_id) FROM data_lineage WHERE table_name = $1`, table,
	).Scan(&n)
	return n, eris.Wrapf(err, "postgres: count tracked records in %s", table)
}

func (o pgOps) TableSummaries(ctx context.Context) ([]model.TableSummary, error) {
	rows, err := o.q.Query(ctx,
		`SELECT table_name, COUNT(*), COUNT(DISTINCT record_id), COUNT(DISTINCT source_report_id)
		 FROM data_lineage
		 GROUP BY table_name
		 ORDER BY COUNT(*) DESC, table_name ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: table summaries")
	}
	defer rows.Close()

	out := []model.TableSummary{}
	for rows.Next() {
		var s model.TableSummary
		if err := rows.Scan(&s.Table, &s.Entries, &s.Records, &s.Sources); err != nil {
			return nil, eris.Wrap(err, "postgres: scan table summary")
		}
		out = append(out, s)
	}
	return out, eris.Wrap(rows.Err(), "postgres: table summaries iterate")
}

func (o pgOps) SourceBreakdown(ctx context.Context, sourceID int64) ([]model.TableCount, error) {
	rows, err := o.q.Query(ctx,
		`SELECT table_name, COUNT(*) FROM data_lineage
		 WHERE source_report_id = $1
		 GROUP BY table_name
		 ORDER BY COUNT(*) DESC, table_name ASC`, sourceID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: source breakdown %d", sourceID)
	}
	defer rows.Close()

	out := []model.TableCount{}
	for rows.Next() {
		var tc model.TableCount
		if err := rows.Scan(&tc.Table, &tc.Count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan table count")
		}
		out = append(out, tc)
	}
	return out, eris.Wrap(rows.Err(), "postgres: source breakdown iterate")
}

func (o pgOps) SourcesWithLineage(ctx context.Context) ([]int64, error) {
	rows, err := o.q.Query(ctx,
		`SELECT source_report_id FROM data_lineage
		 GROUP BY source_report_id
		 ORDER BY COUNT(*) DESC, source_report_id ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: sources with lineage")
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: sources with lineage iterate")
}
