package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leadgate/internal/config"
)

const (
	defaultCheckInterval = 5 * time.Minute
	// realertAfter suppresses repeats of an alert type that is still firing.
	realertAfter = time.Hour
)

// Checker periodically collects a snapshot, evaluates it and posts the
// resulting alerts. An alert type that was delivered is not posted again
// until realertAfter has passed.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig

	lastSent map[AlertType]time.Time
	now      func() time.Time
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		lastSent:  make(map[AlertType]time.Time),
		now:       time.Now,
	}
}

// Run checks once immediately, then on every tick until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("alert checker started",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ctx.Err() == nil {
			c.check(ctx, log)
		}
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: collect failed", zap.Error(err))
		return
	}
	log.Debug("monitoring: snapshot",
		zap.Int("leads", snap.LeadsTotal),
		zap.Float64("refund_rate", snap.RefundRate),
		zap.Int("dlq_depth", snap.DLQDepth),
	)

	now := c.now()
	var sent, suppressed int
	for _, alert := range c.alerter.Evaluate(snap) {
		if last, ok := c.lastSent[alert.Type]; ok && now.Sub(last) < realertAfter {
			suppressed++
			continue
		}
		if err := c.alerter.Send(ctx, alert); err != nil {
			log.Error("monitoring: send alert", zap.String("type", string(alert.Type)), zap.Error(err))
			continue
		}
		c.lastSent[alert.Type] = now
		sent++
	}
	if sent+suppressed > 0 {
		log.Info("monitoring: alerts evaluated", zap.Int("sent", sent), zap.Int("suppressed", suppressed))
	}
}
