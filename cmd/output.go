package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lineage/internal/model"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

var numbers = message.NewPrinter(language.English)

// render writes v as JSON or YAML, or fills and renders a table.
func render(w io.Writer, v any, fill func(t table.Writer)) error {
	switch outputFormat {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(v), "render json")
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "render yaml")
		}
		return eris.Wrap(enc.Close(), "render yaml")
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	fill(t)
	t.Render()
	return nil
}

func count(n int64) string {
	return numbers.Sprintf("%d", n)
}

func score(f float64) string {
	return fmt.Sprintf("%.3f", f)
}

func optScore(f *float64) string {
	if f == nil {
		return "-"
	}
	return score(*f)
}

func percent(f float64) string {
	return numbers.Sprintf("%.1f%%", f)
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func page(n int) string {
	if n <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d", n)
}

func sourcesTable(sources []model.SourceReport) func(table.Writer) {
	return func(t table.Writer) {
		t.AppendHeader(table.Row{"ID", "Filename", "Type", "Locality", "Period", "Pages", "Status", "Registered"})
		for _, s := range sources {
			status := string(s.Status)
			if s.ArchivedAt != nil {
				status += " (archived)"
			}
			t.AppendRow(table.Row{s.ID, s.Filename, s.ReportType, s.Locality, s.Period, page(s.PageCount), status, timestamp(s.RegisteredAt)})
		}
		t.AppendFooter(table.Row{"", fmt.Sprintf("%s sources", count(int64(len(sources))))})
	}
}

func sourceTable(s *model.SourceReport) func(table.Writer) {
	return func(t table.Writer) {
		t.AppendRows([]table.Row{
			{"ID", s.ID},
			{"Filename", s.Filename},
			{"Report type", s.ReportType},
			{"Locality", s.Locality},
			{"Period", s.Period},
			{"Pages", page(s.PageCount)},
			{"Status", s.Status},
			{"Failure reason", s.FailureReason},
			{"Registered", timestamp(s.RegisteredAt)},
			{"Updated", timestamp(s.UpdatedAt)},
		})
		if s.ArchivedAt != nil {
			t.AppendRow(table.Row{"Archived", timestamp(*s.ArchivedAt)})
		}
	}
}

func entriesTable(entries []model.LineageEntry) func(table.Writer) {
	return func(t table.Writer) {
		t.AppendHeader(table.Row{"ID", "Record", "Source", "Page", "Confidence", "Extracted"})
		for _, e := range entries {
			t.AppendRow(table.Row{e.ID, e.Ref().String(), e.SourceReportID, page(e.PageNumber), score(e.ConfidenceScore), timestamp(e.ExtractedAt)})
		}
		t.AppendFooter(table.Row{"", fmt.Sprintf("%s entries", count(int64(len(entries))))})
	}
}

func provenanceTable(history []model.RecordLineage) func(table.Writer) {
	return func(t table.Writer) {
		t.AppendHeader(table.Row{"Entry", "Confidence", "Page", "Source", "Filename", "Type", "Extracted"})
		for _, h := range history {
			filename, typ := "(missing source)", ""
			if h.Source != nil {
				filename, typ = h.Source.Filename, h.Source.ReportType
			}
			e := h.Entry
			t.AppendRow(table.Row{e.ID, score(e.ConfidenceScore), page(e.PageNumber), e.SourceReportID, filename, typ, timestamp(e.ExtractedAt)})
		}
	}
}

func overviewTable(ov *model.QualityOverview) func(table.Writer) {
	return func(t table.Writer) {
		t.AppendRows([]table.Row{
			{"Entries", count(ov.Total)},
			{"Tables tracked", count(ov.TablesTracked)},
			{"Sources", count(ov.TotalSources)},
			{"Average confidence", optScore(ov.AvgConfidence)},
			{"Min confidence", optScore(ov.MinConfidence)},
			{"Max confidence", optScore(ov.MaxConfidence)},
			{fmt.Sprintf("High (>= %s)", score(ov.HighThreshold)), count(ov.High)},
			{"Medium", count(ov.Medium)},
			{fmt.Sprintf("Low (< %s)", score(ov.LowThreshold)), count(ov.Low)},
		})
	}
}

func timelineTable(points []model.TimelinePoint) func(table.Writer) {
	return func(t table.Writer) {
		t.AppendHeader(table.Row{"Bucket", "Entries", "Avg confidence"})
		for _, p := range points {
			t.AppendRow(table.Row{timestamp(p.Bucket), count(p.Count), score(p.AvgConfidence)})
		}
	}
}

func coverageTable(c *model.Coverage) func(table.Writer) {
	return func(t table.Writer) {
		t.AppendHeader(table.Row{"Table", "Tracked", "Total rows", "Coverage"})
		t.AppendRow(table.Row{c.Table, count(c.TrackedRecords), count(c.TotalRows), percent(c.Percent)})
	}
}

func tableSummaryTable(tables []model.TableSummary) func(table.Writer) {
	return func(t table.Writer) {
		t.AppendHeader(table.Row{"Table", "Entries", "Records", "Sources"})
		for _, s := range tables {
			t.AppendRow(table.Row{s.Table, count(s.Entries), count(s.Records), count(s.Sources)})
		}
	}
}

func bandsTable(bands []model.BandCount) func(table.Writer) {
	return func(t table.Writer) {
		t.AppendHeader(table.Row{"Band", "Range", "Entries"})
		for i, b := range bands {
			closing := ")"
			if i == 0 {
				closing = "]"
			}
			t.AppendRow(table.Row{b.Label, fmt.Sprintf("[%.2f, %.2f%s", b.Min, b.Max, closing), count(b.Count)})
		}
	}
}

func integrityTable(r *model.IntegrityReport) func(table.Writer) {
	return func(t table.Writer) {
		t.AppendHeader(table.Row{"Kind", "Source", "Entry", "Record", "Message"})
		for _, i := range r.Issues {
			entry, record := "", ""
			if i.Kind == model.IssueOrphanedEntry {
				entry = fmt.Sprintf("%d", i.EntryID)
				record = model.RecordRef{Table: i.Table, ID: i.RecordID}.String()
			}
			t.AppendRow(table.Row{i.Kind, i.SourceReportID, entry, record, i.Message})
		}
		status := "valid"
		if !r.IsValid {
			status = "INVALID"
		}
		t.AppendFooter(table.Row{status, fmt.Sprintf("%d checks", r.ChecksPerformed),
			fmt.Sprintf("%d orphaned", r.OrphanedEntries), fmt.Sprintf("%d unused", r.UnusedSources)})
	}
}

func impactTable(impacts []model.Impact) func(table.Writer) {
	return func(t table.Writer) {
		t.AppendHeader(table.Row{"Source", "Filename", "Records", "Breakdown"})
		for _, imp := range impacts {
			filename := "(missing source)"
			if imp.Source != nil {
				filename = imp.Source.Filename
			}
			breakdown := ""
			for i, tc := range imp.Breakdown {
				if i > 0 {
					breakdown += ", "
				}
				breakdown += fmt.Sprintf("%s=%s", tc.Table, count(tc.Count))
			}
			t.AppendRow(table.Row{imp.SourceReportID, filename, count(imp.TotalRecords), breakdown})
		}
	}
}

func cleanupTable(r *model.CleanupResult) func(table.Writer) {
	return func(t table.Writer) {
		t.AppendHeader(table.Row{"Action", "Dry run", "Affected", "Audit ID"})
		t.AppendRow(table.Row{r.Action, r.DryRun, count(r.Affected), r.AuditID})
	}
}
