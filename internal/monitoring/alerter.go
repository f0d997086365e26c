package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lineage/internal/config"
	"github.com/sells-group/lineage/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertOrphanedEntries AlertType = "orphaned_entries"
	AlertUnusedSources   AlertType = "unused_sources"
	AlertLowConfidence   AlertType = "low_confidence"
	AlertFailedSources   AlertType = "failed_sources"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type" yaml:"type"`
	Severity  string         `json:"severity" yaml:"severity"`
	Message   string         `json:"message" yaml:"message"`
	Details   map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg     config.MonitoringConfig
	client  *http.Client
	breaker *resilience.Breaker
	retry   resilience.RetryConfig
}

// NewAlerter creates a new Alerter with the given monitoring config.
// Webhook calls are retried on transient statuses and stop for a cooldown
// after repeated failures.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	log := zap.L().With(zap.String("component", "monitoring.alerter"))
	breakerCfg := resilience.FromBreakerConfig(cfg.BreakerThreshold, cfg.BreakerCooldownSecs)
	breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
		log.Warn("webhook breaker state changed", zap.Stringer("from", from), zap.Stringer("to", to))
	}
	retry := resilience.FromRetryConfig(3, 200, 2000)
	retry.OnRetry = resilience.RetryLogger("monitoring.alerter", "webhook")

	return &Alerter{
		cfg:     cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: resilience.NewBreaker(breakerCfg),
		retry:   retry,
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Orphans always alert: they mean a source was deleted under live lineage.
	if snap.OrphanedEntries > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertOrphanedEntries,
			Severity: "high",
			Message:  fmt.Sprintf("%d lineage entries reference missing source reports", snap.OrphanedEntries),
			Details: map[string]any{
				"orphaned_entries": snap.OrphanedEntries,
			},
			Timestamp: now,
		})
	}

	if a.cfg.UnusedSourceThreshold > 0 && snap.UnusedSources >= a.cfg.UnusedSourceThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertUnusedSources,
			Severity: "low",
			Message:  fmt.Sprintf("%d ingested source reports have no lineage entries", snap.UnusedSources),
			Details: map[string]any{
				"unused_sources": snap.UnusedSources,
				"threshold":      a.cfg.UnusedSourceThreshold,
			},
			Timestamp: now,
		})
	}

	if a.cfg.LowConfidenceShareThreshold > 0 &&
		snap.TotalEntries >= a.cfg.MinEntries &&
		snap.LowConfidenceShare > a.cfg.LowConfidenceShareThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertLowConfidence,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Low-confidence share %.1f%% exceeds threshold %.1f%% (%d of %d entries)",
				snap.LowConfidenceShare*100, a.cfg.LowConfidenceShareThreshold*100,
				snap.LowConfidence, snap.TotalEntries,
			),
			Details: map[string]any{
				"low_confidence": snap.LowConfidence,
				"total_entries":  snap.TotalEntries,
				"share":          snap.LowConfidenceShare,
				"threshold":      a.cfg.LowConfidenceShareThreshold,
			},
			Timestamp: now,
		})
	}

	if a.cfg.FailedSourceThreshold > 0 && snap.FailedSources >= a.cfg.FailedSourceThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFailedSources,
			Severity: "medium",
			Message:  fmt.Sprintf("%d source reports failed ingestion", snap.FailedSources),
			Details: map[string]any{
				"failed_sources": snap.FailedSources,
				"threshold":      a.cfg.FailedSourceThreshold,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		err := a.breaker.Execute(ctx, func(ctx context.Context) error {
			return resilience.Do(ctx, a.retry, func(ctx context.Context) error {
				return a.sendWebhook(ctx, alert)
			})
		})
		if err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		err := eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	return nil
}
