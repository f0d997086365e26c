package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lineage/internal/config"
	"github.com/sells-group/lineage/internal/model"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	svc := newTestService(t)
	cfg := config.MonitoringConfig{
		CheckIntervalSecs:   1,
		LookbackWindowHours: 24,
	}
	checker := NewChecker(newServiceCollector(svc), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	svc := newTestService(t)

	checker := NewChecker(newServiceCollector(svc), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{
		CheckIntervalSecs: 0,
	})
	assert.Equal(t, 5*time.Minute, checker.Interval())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_CheckSendsOrphanAlert(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	src, err := svc.Registry.Register(ctx, model.NewSource{Filename: "budget.pdf", ReportType: "budget"})
	require.NoError(t, err)
	_, err = svc.Tracker.Track(ctx, model.TrackRequest{
		Record:          model.RecordRef{Table: "projects", ID: 7},
		SourceReportID:  src.ID,
		ConfidenceScore: 0.9,
	})
	require.NoError(t, err)
	// Deleting the source directly leaves its entry orphaned.
	_, err = svc.Maintenance.DeleteSource(ctx, src.ID)
	require.NoError(t, err)

	var (
		mu       sync.Mutex
		received []Alert
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var alert Alert
		if err := json.NewDecoder(r.Body).Decode(&alert); err == nil {
			mu.Lock()
			received = append(received, alert)
			mu.Unlock()
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	cfg := config.MonitoringConfig{LookbackWindowHours: 24, WebhookURL: ts.URL}
	checker := NewChecker(newServiceCollector(svc), NewAlerter(cfg), cfg)
	res, err := checker.Check(ctx)
	require.NoError(t, err)
	assert.False(t, res.Snapshot.IntegrityValid)
	assert.Equal(t, 1, res.Sent)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, AlertOrphanedEntries, received[0].Type)
}

func TestChecker_EvaluateDoesNotSend(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	src, err := svc.Registry.Register(ctx, model.NewSource{Filename: "audit.pdf", ReportType: "audit"})
	require.NoError(t, err)
	require.NoError(t, svc.Registry.MarkFailed(ctx, src.ID, "password protected"))

	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	cfg := config.MonitoringConfig{WebhookURL: ts.URL, FailedSourceThreshold: 1}
	checker := NewChecker(newServiceCollector(svc), NewAlerter(cfg), cfg)
	res, err := checker.Evaluate(ctx)
	require.NoError(t, err)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, AlertFailedSources, res.Alerts[0].Type)
	assert.Zero(t, res.Sent)
	assert.Zero(t, calls)
}

func TestChecker_EvaluateHealthyStore(t *testing.T) {
	svc := newTestService(t)
	cfg := config.MonitoringConfig{LookbackWindowHours: 24}
	res, err := NewChecker(newServiceCollector(svc), NewAlerter(cfg), cfg).Evaluate(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Snapshot.IntegrityValid)
	assert.NotNil(t, res.Alerts)
	assert.Empty(t, res.Alerts)
}
