// Package export writes lineage data to files for offline review.
package export

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/lineage/internal/lineage"
	"github.com/sells-group/lineage/internal/model"
)

// Sheet names in a review workbook.
const (
	ReviewSheet  = "Review"
	SummarySheet = "Summary"
)

var reviewHeader = []string{
	"Entry ID", "Table", "Record ID", "Confidence", "Band",
	"Source ID", "Filename", "Report Type", "Page", "Extracted At",
}

// ReviewResult describes a written review workbook.
type ReviewResult struct {
	Path      string  `json:"path" yaml:"path"`
	Entries   int     `json:"entries" yaml:"entries"`
	Orphans   int     `json:"orphans" yaml:"orphans"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// WriteReview saves the entries matching q to an XLSX workbook at path, one
// row per entry with its source and confidence band, weakest first.
func WriteReview(ctx context.Context, svc *lineage.Service, q model.LowConfidenceQuery, path string) (*ReviewResult, error) {
	entries, err := svc.Tracker.FindLowConfidence(ctx, q)
	if err != nil {
		return nil, err
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(ReviewSheet)
	if err != nil {
		return nil, eris.Wrap(err, "export: add review sheet")
	}
	addStrings(sheet.AddRow(), reviewHeader...)

	res := &ReviewResult{Path: path, Entries: len(entries), Threshold: q.Threshold}
	policy := svc.Quality.Policy()
	sources := make(map[int64]*model.SourceReport)
	for _, e := range entries {
		src, seen := sources[e.SourceReportID]
		if !seen {
			src, err = svc.Registry.Get(ctx, e.SourceReportID)
			if err != nil && !model.IsUnknownSource(err) {
				return nil, err
			}
			sources[e.SourceReportID] = src
		}

		row := sheet.AddRow()
		row.AddCell().SetInt64(e.ID)
		row.AddCell().SetString(e.TableName)
		row.AddCell().SetInt64(e.RecordID)
		row.AddCell().SetFloatWithFormat(e.ConfidenceScore, "0.000")
		row.AddCell().SetString(policy.Label(e.ConfidenceScore))
		row.AddCell().SetInt64(e.SourceReportID)
		if src != nil {
			addStrings(row, src.Filename, src.ReportType)
		} else {
			res.Orphans++
			addStrings(row, "(missing source)", "")
		}
		if e.PageNumber > 0 {
			row.AddCell().SetInt(e.PageNumber)
		} else {
			row.AddCell().SetString("")
		}
		row.AddCell().SetString(e.ExtractedAt.UTC().Format(time.RFC3339))
	}

	summary, err := f.AddSheet(SummarySheet)
	if err != nil {
		return nil, eris.Wrap(err, "export: add summary sheet")
	}
	table := q.Table
	if table == "" {
		table = "(all)"
	}
	addStrings(summary.AddRow(), "Generated At", time.Now().UTC().Format(time.RFC3339))
	addStrings(summary.AddRow(), "Table", table)
	row := summary.AddRow()
	row.AddCell().SetString("Threshold")
	row.AddCell().SetFloat(q.Threshold)
	row = summary.AddRow()
	row.AddCell().SetString("Entries")
	row.AddCell().SetInt(res.Entries)
	row = summary.AddRow()
	row.AddCell().SetString("Orphaned")
	row.AddCell().SetInt(res.Orphans)

	if err := f.Save(path); err != nil {
		return nil, eris.Wrapf(err, "export: save %s", path)
	}

	zap.L().Info("review workbook written",
		zap.String("path", path),
		zap.Int("entries", res.Entries),
		zap.Int("orphans", res.Orphans),
	)
	return res, nil
}

func addStrings(row *xlsx.Row, values ...string) {
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
