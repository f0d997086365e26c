package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lineage/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// CheckResult is the outcome of one monitoring pass.
type CheckResult struct {
	Snapshot *MetricsSnapshot `json:"snapshot" yaml:"snapshot"`
	Alerts   []Alert          `json:"alerts" yaml:"alerts"`
	Sent     int              `json:"sent" yaml:"sent"`
}

// Checker collects metrics, evaluates them and delivers alerts, either once
// or on an interval.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int
	log       *zap.Logger
}

// NewChecker creates a checker. A non-positive interval takes the default.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		lookback:  cfg.LookbackWindowHours,
		log:       zap.L().With(zap.String("component", "monitoring.checker")),
	}
}

// Interval returns the time between scheduled checks.
func (c *Checker) Interval() time.Duration { return c.interval }

// Run checks once at start and then on every tick. It blocks until ctx is
// cancelled. Failed passes are logged and do not stop the loop.
func (c *Checker) Run(ctx context.Context) {
	c.log.Info("monitoring started",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			c.log.Info("monitoring stopped")
			return
		}
		if _, err := c.Check(ctx); err != nil && ctx.Err() == nil {
			c.log.Error("monitoring check failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			c.log.Info("monitoring stopped")
			return
		case <-ticker.C:
		}
	}
}

// Check runs one pass and sends whatever alerts it raises.
func (c *Checker) Check(ctx context.Context) (*CheckResult, error) {
	res, err := c.Evaluate(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Alerts) > 0 {
		res.Sent = c.alerter.SendAlerts(ctx, res.Alerts)
	}
	c.log.Info("monitoring check complete",
		zap.Bool("integrity_valid", res.Snapshot.IntegrityValid),
		zap.Int64("entries", res.Snapshot.TotalEntries),
		zap.Int("alerts_triggered", len(res.Alerts)),
		zap.Int("alerts_sent", res.Sent),
	)
	return res, nil
}

// Evaluate runs one pass without delivering alerts.
func (c *Checker) Evaluate(ctx context.Context) (*CheckResult, error) {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		return nil, err
	}
	alerts := c.alerter.Evaluate(snap)
	if alerts == nil {
		alerts = []Alert{}
	}
	return &CheckResult{Snapshot: snap, Alerts: alerts}, nil
}
