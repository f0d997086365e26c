package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lineage/internal/config"
	"github.com/sells-group/lineage/internal/resilience"
)

func thresholds() config.MonitoringConfig {
	return config.MonitoringConfig{
		LowConfidenceShareThreshold: 0.25,
		MinEntries:                  20,
		UnusedSourceThreshold:       1,
		FailedSourceThreshold:       1,
	}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(thresholds())

	snap := &MetricsSnapshot{
		IntegrityValid:     true,
		TotalEntries:       100,
		LowConfidence:      10,
		LowConfidenceShare: 0.10,
		LookbackHours:      24,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_OrphanedEntries(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	alerts := a.Evaluate(&MetricsSnapshot{OrphanedEntries: 3})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertOrphanedEntries, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "3 lineage entries")
}

func TestAlerter_Evaluate_LowConfidenceShare(t *testing.T) {
	a := NewAlerter(thresholds())

	alerts := a.Evaluate(&MetricsSnapshot{
		TotalEntries:       40,
		LowConfidence:      16,
		LowConfidenceShare: 0.4,
	})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertLowConfidence, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
	assert.Contains(t, alerts[0].Message, "16 of 40")
}

func TestAlerter_Evaluate_MinimumEntriesRequired(t *testing.T) {
	a := NewAlerter(thresholds())

	// Only 4 entries, below the 20-entry minimum.
	alerts := a.Evaluate(&MetricsSnapshot{
		TotalEntries:       4,
		LowConfidence:      3,
		LowConfidenceShare: 0.75,
	})
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(thresholds())

	alerts := a.Evaluate(&MetricsSnapshot{
		OrphanedEntries:    1,
		UnusedSources:      2,
		TotalEntries:       50,
		LowConfidence:      25,
		LowConfidenceShare: 0.5,
		FailedSources:      1,
	})
	assert.Len(t, alerts, 4)

	types := make(map[AlertType]bool)
	for _, a := range alerts {
		types[a.Type] = true
	}
	assert.True(t, types[AlertOrphanedEntries])
	assert.True(t, types[AlertUnusedSources])
	assert.True(t, types[AlertLowConfidence])
	assert.True(t, types[AlertFailedSources])
}

func TestAlerter_Evaluate_ZeroThresholdsDisable(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	alerts := a.Evaluate(&MetricsSnapshot{
		UnusedSources:      9,
		TotalEntries:       100,
		LowConfidence:      90,
		LowConfidenceShare: 0.9,
		FailedSources:      9,
	})
	assert.Empty(t, alerts)
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	alerts := []Alert{
		{Type: AlertOrphanedEntries, Severity: "high", Message: "test alert 1"},
		{Type: AlertFailedSources, Severity: "medium", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{WebhookURL: ""})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertOrphanedEntries, Message: "test"},
	})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{WebhookURL: "http://example.com"})

	sent := a.SendAlerts(context.Background(), nil)
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertOrphanedEntries, Message: "test"}})
	assert.Equal(t, 1, sent)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAlerter_SendAlerts_PermanentErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertOrphanedEntries, Message: "test"}})
	assert.Equal(t, 0, sent)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAlerter_SendAlerts_BreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{
		WebhookURL:          ts.URL,
		BreakerThreshold:    2,
		BreakerCooldownSecs: 3600,
	})

	alerts := []Alert{
		{Type: AlertOrphanedEntries, Message: "1"},
		{Type: AlertUnusedSources, Message: "2"},
		{Type: AlertFailedSources, Message: "3"},
	}
	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 0, sent)
	// The third alert is rejected without reaching the webhook.
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, resilience.CircuitOpen, a.breaker.State())
}
