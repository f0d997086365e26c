package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/lineage/internal/model"
	"github.com/sells-group/lineage/internal/store"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// Health reports store reachability.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RecordProvenance returns every lineage entry for a record with its source.
func (h *Handlers) RecordProvenance(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "record_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ref := model.RecordRef{Table: chi.URLParam(r, "table"), ID: id}
	history, err := h.svc.Tracker.Provenance(r.Context(), ref)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"record":  ref,
		"lineage": nonNil(history),
	})
}

// ListSources lists source reports filtered by status and report type.
func (h *Handlers) ListSources(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := paging(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	sources, err := h.svc.Registry.List(r.Context(), store.SourceFilter{
		Status:     model.SourceStatus(q.Get("status")),
		ReportType: q.Get("report_type"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(sources))
}

// GetSource returns one source report.
func (h *Handlers) GetSource(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "source_report_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	src, err := h.svc.Registry.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

// SourceImpact returns the records attributable to a source report.
func (h *Handlers) SourceImpact(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "source_report_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	imp, err := h.svc.Impact.Analyze(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, imp)
}

// SourceLineage returns the entries extracted from a source report,
// optionally narrowed to one table.
func (h *Handlers) SourceLineage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "source_report_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	entries, err := h.svc.Tracker.FindBySource(r.Context(), id, r.URL.Query().Get("table"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

// ImpactRanking returns per-source impact ordered by record count.
func (h *Handlers) ImpactRanking(w http.ResponseWriter, r *http.Request) {
	limit, err := pageLimit(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	impacts, err := h.svc.Impact.AnalyzeAll(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(impacts))
}

// QualityOverview returns confidence statistics across all entries.
func (h *Handlers) QualityOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.svc.Quality.Overview(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// QualityTimeline returns extraction volume bucketed by time. Query
// parameters: bucket (hour, day, week, month; default day), since and until
// as RFC 3339 timestamps.
func (h *Handlers) QualityTimeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	bucket := model.BucketSize(q.Get("bucket"))
	if bucket == "" {
		bucket = model.BucketDay
	}
	since, err := queryTime(q.Get("since"), "since")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	until, err := queryTime(q.Get("until"), "until")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	points := []model.TimelinePoint{}
	for p, err := range h.svc.Quality.Timeline(r.Context(), bucket, since, until) {
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		points = append(points, p)
	}
	writeJSON(w, http.StatusOK, points)
}

// TableCoverage returns the share of a table's rows that have lineage.
// total_rows is required.
func (h *Handlers) TableCoverage(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("total_rows")
	if raw == "" {
		h.writeError(w, r, model.NewValidationError("total_rows", "required"))
		return
	}
	total, err := queryInt(r, "total_rows", 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	cov, err := h.svc.Quality.TableCoverage(r.Context(), chi.URLParam(r, "table"), int64(total))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cov)
}

// TableSummary returns per-table entry counts.
func (h *Handlers) TableSummary(w http.ResponseWriter, r *http.Request) {
	tables, err := h.svc.Quality.TableSummary(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(tables))
}

// QualityBands returns entry counts per confidence band.
func (h *Handlers) QualityBands(w http.ResponseWriter, r *http.Request) {
	bands, err := h.svc.Quality.Bands(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(bands))
}

// LowConfidence returns entries scoring below threshold (default: the
// configured low threshold).
func (h *Handlers) LowConfidence(w http.ResponseWriter, r *http.Request) {
	_, low := h.svc.Quality.Thresholds()
	threshold, err := queryFloat(r, "threshold", low)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, offset, err := paging(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	entries, err := h.svc.Tracker.FindLowConfidence(r.Context(), model.LowConfidenceQuery{
		Threshold: threshold,
		Table:     r.URL.Query().Get("table"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

// Integrity runs a validation pass.
func (h *Handlers) Integrity(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Validator.Validate(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// pageLimit reads limit, defaulting to defaultPageSize and capped at
// maxPageSize.
func pageLimit(r *http.Request) (int, error) {
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil {
		return 0, err
	}
	if limit <= 0 || limit > maxPageSize {
		return 0, model.NewValidationError("limit", "must be between 1 and %d", maxPageSize)
	}
	return limit, nil
}

func paging(r *http.Request) (limit, offset int, err error) {
	limit, err = pageLimit(r)
	if err != nil {
		return 0, 0, err
	}
	offset, err = queryInt(r, "offset", 0)
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

func queryTime(raw, field string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, model.NewValidationError(field, "not an RFC 3339 timestamp: %q", raw)
	}
	return t.UTC(), nil
}
