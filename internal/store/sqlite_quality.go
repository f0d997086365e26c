package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lineage/internal/model"
)

// sqliteBuckets maps a bucket size to an expression yielding the bucket start.
// Weeks start on Monday: step forward to Sunday, then back six days.
var sqliteBuckets = map[model.BucketSize]string{
	model.BucketHour:  `strftime('%Y-%m-%d %H:00:00', extracted_at)`,
	model.BucketDay:   `strftime('%Y-%m-%d 00:00:00', extracted_at)`,
	model.BucketWeek:  `strftime('%Y-%m-%d 00:00:00', extracted_at, 'weekday 0', '-6 days')`,
	model.BucketMonth: `strftime('%Y-%m-01 00:00:00', extracted_at)`,
}

const bucketLayout = "2006-01-02 15:04:05"

func (o sqliteOps) ConfidenceStats(ctx context.Context, high, low float64) (*model.QualityOverview, error) {
	var (
		ov          = model.QualityOverview{HighThreshold: high, LowThreshold: low}
		avg, lo, hi float64
	)
	err := o.q.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(AVG(confidence_score), 0),
		        COALESCE(MIN(confidence_score), 0),
		        COALESCE(MAX(confidence_score), 0),
		        COALESCE(SUM(CASE WHEN confidence_score >= ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN confidence_score < ? THEN 1 ELSE 0 END), 0),
		        COUNT(DISTINCT table_name)
		 FROM data_lineage`,
		high, low,
	).Scan(&ov.Total, &avg, &lo, &hi, &ov.High, &ov.Low, &ov.TablesTracked)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: confidence stats")
	}
	finishOverview(&ov, avg, lo, hi)
	return &ov, nil
}

func (o sqliteOps) CountInRange(ctx context.Context, lo, hi float64, inclusiveMax bool) (int64, error) {
	op := "<"
	if inclusiveMax {
		op = "<="
	}
	var n int64
	err := o.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM data_lineage WHERE confidence_score >= ? AND confidence_score `+op+` ?`,
		lo, hi,
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count in range")
}

func (o sqliteOps) Timeline(ctx context.Context, rng TimelineRange, fn func(model.TimelinePoint) error) error {
	expr, ok := sqliteBuckets[rng.Bucket]
	if !ok {
		return eris.Errorf("sqlite: unsupported bucket %q", rng.Bucket)
	}

	query := `SELECT ` + expr + ` AS bucket, COUNT(*), AVG(confidence_score) FROM data_lineage WHERE 1=1`
	var args []any
	if !rng.Since.IsZero() {
		query += ` AND extracted_at >= ?`
		args = append(args, sqliteTime(rng.Since))
	}
	if !rng.Until.IsZero() {
		query += ` AND extracted_at < ?`
		args = append(args, sqliteTime(rng.Until))
	}
	query += ` GROUP BY bucket ORDER BY bucket ASC`

	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return eris.Wrap(err, "sqlite: timeline")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var (
			p      model.TimelinePoint
			bucket string
		)
		if err := rows.Scan(&bucket, &p.Count, &p.AvgConfidence); err != nil {
			return eris.Wrap(err, "sqlite: scan timeline")
		}
		if p.Bucket, err = time.Parse(bucketLayout, bucket); err != nil {
			return eris.Wrapf(err, "sqlite: parse bucket %q", bucket)
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return eris.Wrap(rows.Err(), "sqlite: timeline iterate")
}

func (o sqliteOps) CountTrackedRecords(ctx context.Context, table string) (int64, error) {
	var n int64
	err := o.q.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT record_id) FROM data_lineage WHERE table_name = ?`, table,
	).Scan(&n)
	return n, eris.Wrapf(err, "sqlite: count tracked records in %s", table)
}

func (o sqliteOps) TableSummaries(ctx context.Context) ([]model.TableSummary, error) {
	rows, err := o.q.QueryContext(ctx,
		`SELECT table_name, COUNT(*), COUNT(DISTINCT record_id), COUNT(DISTINCT source_report_id)
		 FROM data_lineage
		 GROUP BY table_name
		 ORDER BY COUNT(*) DESC, table_name ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: table summaries")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.TableSummary{}
	for rows.Next() {
		var s model.TableSummary
		if err := rows.Scan(&s.Table, &s.Entries, &s.Records, &s.Sources); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan table summary")
		}
		out = append(out, s)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: table summaries iterate")
}

func (o sqliteOps) SourceBreakdown(ctx context.Context, sourceID int64) ([]model.TableCount, error) {
	rows, err := o.q.QueryContext(ctx,
		`SELECT table_name, COUNT(*) FROM data_lineage
		 WHERE source_report_id = ?
		 GROUP BY table_name
		 ORDER BY COUNT(*) DESC, table_name ASC`, sourceID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: source breakdown %d", sourceID)
	}
	defer rows.Close() //nolint:errcheck

	out := []model.TableCount{}
	for rows.Next() {
		var tc model.TableCount
		if err := rows.Scan(&tc.Table, &tc.Count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan table count")
		}
		out = append(out, tc)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: source breakdown iterate")
}

func (o sqliteOps) SourcesWithLineage(ctx context.Context) ([]int64, error) {
	rows, err := o.q.QueryContext(ctx,
		`SELECT source_report_id FROM data_lineage
		 GROUP BY source_report_id
		 ORDER BY COUNT(*) DESC, source_report_id ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: sources with lineage")
	}
	defer rows.Close() //nolint:errcheck

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: sources with lineage iterate")
}

// finishOverview derives Medium and sets the nullable statistics when the
// store has entries.
func finishOverview(ov *model.QualityOverview, avg, lo, hi float64) {
	if ov.Total == 0 {
		return
	}
	ov.AvgConfidence = &avg
	ov.MinConfidence = &lo
	ov.MaxConfidence = &hi
	ov.Medium = ov.Total - ov.High - ov.Low
	if ov.Medium < 0 {
		ov.Medium = 0
	}
}
