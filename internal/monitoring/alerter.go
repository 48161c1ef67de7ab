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

	"github.com/sells-group/leadgate/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRefundRate AlertType = "refund_rate"
	AlertDLQBacklog AlertType = "dlq_backlog"
)

// Severity levels carried in the webhook payload.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
)

// minChargedForRate is the fewest charged leads that make a refund rate
// meaningful.
const minChargedForRate = 5

// Alert is the webhook payload.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// rule inspects a snapshot and returns a filled alert when its threshold is
// breached. Type, Severity and Timestamp are set by Evaluate.
type rule struct {
	typ      AlertType
	severity string
	check    func(cfg config.MonitoringConfig, snap *MetricsSnapshot) (Alert, bool)
}

var rules = []rule{
	{AlertRefundRate, SeverityHigh, func(cfg config.MonitoringConfig, s *MetricsSnapshot) (Alert, bool) {
		limit := cfg.RefundRateThreshold
		if limit <= 0 || s.LeadsCharged < minChargedForRate || s.RefundRate <= limit {
			return Alert{}, false
		}
		return Alert{
			Message: fmt.Sprintf("refund rate %.1f%% over %.1f%% (%d of %d charged leads refunded in %dh)",
				s.RefundRate*100, limit*100, s.LeadsRefunded, s.LeadsCharged, s.LookbackHours),
			Details: map[string]any{
				"refund_rate": s.RefundRate,
				"threshold":   limit,
				"refunded":    s.LeadsRefunded,
				"charged":     s.LeadsCharged,
			},
		}, true
	}},
	{AlertDLQBacklog, SeverityMedium, func(cfg config.MonitoringConfig, s *MetricsSnapshot) (Alert, bool) {
		limit := cfg.DLQDepthThreshold
		if limit <= 0 || s.DLQDepth <= limit {
			return Alert{}, false
		}
		return Alert{
			Message: fmt.Sprintf("%d candidates waiting in the dead letter queue (threshold %d)", s.DLQDepth, limit),
			Details: map[string]any{"dlq_depth": s.DLQDepth, "threshold": limit},
		}, true
	}},
}

// Alerter turns snapshots into alerts and posts them to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	now    func() time.Time
}

// NewAlerter creates an Alerter. A zero threshold disables its rule.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Evaluate returns one alert per breached threshold.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	for _, r := range rules {
		alert, ok := r.check(a.cfg, snap)
		if !ok {
			continue
		}
		alert.Type, alert.Severity, alert.Timestamp = r.typ, r.severity, a.now().UTC()
		alerts = append(alerts, alert)
	}
	return alerts
}

// ErrNoWebhook is returned by Send when no webhook URL is configured.
var ErrNoWebhook = eris.New("monitoring: no webhook configured")

// Send posts one alert as JSON. Any status of 400 or above is an error.
func (a *Alerter) Send(ctx context.Context, alert Alert) error {
	if a.cfg.WebhookURL == "" {
		return ErrNoWebhook
	}
	body, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= http.StatusBadRequest {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}

	zap.L().Info("monitoring: alert sent",
		zap.String("type", string(alert.Type)),
		zap.String("severity", alert.Severity))
	return nil
}
