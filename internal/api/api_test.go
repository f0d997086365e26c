package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/lineage/internal/lineage"
	"github.com/sells-group/lineage/internal/model"
	"github.com/sells-group/lineage/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	svc     *lineage.Service
	st      store.Store
	handler http.Handler
}

func newFixture(t *testing.T, tables ...string) *fixture {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "lineage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	svc, err := lineage.New(st, lineage.Config{Tables: tables})
	require.NoError(t, err)
	return &fixture{
		svc:     svc,
		st:      st,
		handler: NewRouter(NewHandlers(svc, st), []string{"*"}),
	}
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) seed(t *testing.T) *model.SourceReport {
	t.Helper()
	ctx := context.Background()
	src, err := f.svc.Registry.Register(ctx, model.NewSource{Filename: "capital-plan-2024.pdf", ReportType: "capital_plan"})
	require.NoError(t, err)
	track := func(table string, id int64, score float64) {
		_, err := f.svc.Tracker.Track(ctx, model.TrackRequest{
			Record:          model.RecordRef{Table: table, ID: id},
			SourceReportID:  src.ID,
			PageNumber:      4,
			ConfidenceScore: score,
		})
		require.NoError(t, err)
	}
	track("projects", 1, 0.95)
	track("projects", 2, 0.4)
	track("projects", 3, 0.7)
	track("prices", 1, 0.2)
	track("prices", 2, 0.85)
	return src
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth_StoreDown(t *testing.T) {
	f := newFixture(t)
	h := NewRouter(NewHandlers(f.svc, downStore{}), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecordProvenance(t *testing.T) {
	f := newFixture(t)
	src := f.seed(t)

	rec := f.get(t, "/api/records/projects/2")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Record  model.RecordRef       `json:"record"`
		Lineage []model.RecordLineage `json:"lineage"`
	}](t, rec)
	assert.Equal(t, model.RecordRef{Table: "projects", ID: 2}, body.Record)
	require.Len(t, body.Lineage, 1)
	assert.InDelta(t, 0.4, body.Lineage[0].Entry.ConfidenceScore, 0.0001)
	require.NotNil(t, body.Lineage[0].Source)
	assert.Equal(t, src.Filename, body.Lineage[0].Source.Filename)
}

func TestRecordProvenance_UntrackedIsEmpty(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/api/records/projects/99")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"record":{"table":"projects","id":99},"lineage":[]}`, rec.Body.String())
}

func TestRecordProvenance_BadInput(t *testing.T) {
	f := newFixture(t, "projects")

	tests := []struct {
		path string
		want string
	}{
		{"/api/records/projects/abc", "record_id"},
		{"/api/records/projects/0", "record_id"},
		{"/api/records/vendors/1", "table"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := f.get(t, tt.path)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decode[errorBody](t, rec).Error, tt.want)
		})
	}
}

func TestSources(t *testing.T) {
	f := newFixture(t)
	src := f.seed(t)

	rec := f.get(t, "/api/sources")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]model.SourceReport](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, src.ID, list[0].ID)

	rec = f.get(t, "/api/sources?status=ingested")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = f.get(t, "/api/sources?status=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.get(t, "/api/sources?limit=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.get(t, "/api/sources/999")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSourceImpactAndLineage(t *testing.T) {
	f := newFixture(t)
	src := f.seed(t)

	rec := f.get(t, "/api/sources/1/impact")
	require.Equal(t, http.StatusOK, rec.Code)
	imp := decode[model.Impact](t, rec)
	assert.Equal(t, src.ID, imp.SourceReportID)
	assert.Equal(t, int64(5), imp.TotalRecords)
	assert.Equal(t, []model.TableCount{{Table: "projects", Count: 3}, {Table: "prices", Count: 2}}, imp.Breakdown)

	rec = f.get(t, "/api/sources/1/lineage?table=prices")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.LineageEntry](t, rec), 2)

	rec = f.get(t, "/api/impact")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Impact](t, rec), 1)
}

func TestImpactRankingLimit(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()
	other, err := f.svc.Registry.Register(ctx, model.NewSource{Filename: "budget-2025.pdf", ReportType: "budget"})
	require.NoError(t, err)
	_, err = f.svc.Tracker.Track(ctx, model.TrackRequest{
		Record:          model.RecordRef{Table: "projects", ID: 9},
		SourceReportID:  other.ID,
		ConfidenceScore: 0.8,
	})
	require.NoError(t, err)

	rec := f.get(t, "/api/impact")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Impact](t, rec), 2)

	rec = f.get(t, "/api/impact?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	ranked := decode[[]model.Impact](t, rec)
	require.Len(t, ranked, 1)
	assert.Equal(t, int64(5), ranked[0].TotalRecords)

	for _, q := range []string{"0", "1001", "-3"} {
		rec = f.get(t, "/api/impact?limit="+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", q)
	}
}

func TestQualityEndpoints(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	rec := f.get(t, "/api/quality/overview")
	require.Equal(t, http.StatusOK, rec.Code)
	ov := decode[model.QualityOverview](t, rec)
	assert.Equal(t, int64(5), ov.Total)
	assert.Equal(t, int64(2), ov.High)
	assert.Equal(t, int64(2), ov.Low)

	rec = f.get(t, "/api/quality/timeline")
	require.Equal(t, http.StatusOK, rec.Code)
	points := decode[[]model.TimelinePoint](t, rec)
	require.Len(t, points, 1)
	assert.Equal(t, int64(5), points[0].Count)

	rec = f.get(t, "/api/quality/timeline?bucket=fortnight")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.get(t, "/api/quality/timeline?since=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.get(t, "/api/quality/coverage/projects?total_rows=6")
	require.Equal(t, http.StatusOK, rec.Code)
	cov := decode[model.Coverage](t, rec)
	assert.Equal(t, int64(3), cov.TrackedRecords)
	assert.InDelta(t, 50.0, cov.Percent, 0.0001)

	rec = f.get(t, "/api/quality/coverage/projects")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.get(t, "/api/quality/tables")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.TableSummary](t, rec), 2)

	rec = f.get(t, "/api/quality/bands")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.BandCount](t, rec), 5)

	rec = f.get(t, "/api/quality/low")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.LineageEntry](t, rec), 2)

	rec = f.get(t, "/api/quality/low?threshold=0.75&table=projects")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.LineageEntry](t, rec), 2)

	rec = f.get(t, "/api/quality/low?threshold=1.5")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIntegrity(t *testing.T) {
	f := newFixture(t)
	src := f.seed(t)

	rec := f.get(t, "/api/integrity")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[model.IntegrityReport](t, rec).IsValid)

	_, err := f.st.DeleteSource(context.Background(), src.ID)
	require.NoError(t, err)

	rec = f.get(t, "/api/integrity")
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[model.IntegrityReport](t, rec)
	assert.False(t, report.IsValid)
	assert.Equal(t, 5, report.OrphanedEntries)
}

func TestReadOnly(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/sources", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORS(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", model.NewValidationError("x", "bad"), http.StatusBadRequest},
		{"unknown", &model.UnknownSourceError{ID: 1}, http.StatusNotFound},
		{"duplicate", &model.DuplicateSourceError{Filename: "a"}, http.StatusConflict},
		{"transition", &model.TransitionError{ID: 1}, http.StatusConflict},
		{"wrapped", eris.Wrap(&model.UnknownSourceError{ID: 1}, "lookup"), http.StatusNotFound},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
