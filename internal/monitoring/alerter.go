// Package monitoring evaluates run summaries against alert thresholds and
// delivers breaches to a webhook.
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

	"github.com/sells-group/addrverify/internal/config"
	"github.com/sells-group/addrverify/internal/report"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertUnresolvedRate AlertType = "unresolved_rate"
	AlertReviewRate     AlertType = "review_rate"
	AlertCostOverrun    AlertType = "cost_overrun"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	RunID     string         `json:"run_id"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a run summary against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	now    func() time.Time
}

// NewAlerter creates a new Alerter with the given monitoring config.
// A zero threshold disables its check.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate checks the summary against thresholds and returns any alerts.
func (a *Alerter) Evaluate(s report.Summary) []Alert {
	var alerts []Alert
	now := a.now()

	if s.TotalRecords > 0 && s.TotalRecords >= a.cfg.MinRecords {
		total := float64(s.TotalRecords)

		rate := float64(s.UnresolvedCount) / total
		if a.cfg.UnresolvedRateThreshold > 0 && rate > a.cfg.UnresolvedRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertUnresolvedRate,
				Severity: "high",
				RunID:    s.RunID,
				Message: fmt.Sprintf(
					"%.1f%% of records have unresolved provider failures, threshold %.1f%% (%d of %d)",
					rate*100, a.cfg.UnresolvedRateThreshold*100, s.UnresolvedCount, s.TotalRecords,
				),
				Details: map[string]any{
					"unresolved_rate":       rate,
					"threshold":             a.cfg.UnresolvedRateThreshold,
					"api_error_code_counts": s.APIErrorCodeCounts,
				},
				Timestamp: now,
			})
		}

		review := float64(s.ReviewQueueCount) / total
		if a.cfg.ReviewRateThreshold > 0 && review > a.cfg.ReviewRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertReviewRate,
				Severity: "medium",
				RunID:    s.RunID,
				Message: fmt.Sprintf(
					"review queue holds %.1f%% of records, threshold %.1f%% (%d of %d)",
					review*100, a.cfg.ReviewRateThreshold*100, s.ReviewQueueCount, s.TotalRecords,
				),
				Details: map[string]any{
					"review_rate":       review,
					"threshold":         a.cfg.ReviewRateThreshold,
					"final_flag_counts": s.FinalFlagCounts,
				},
				Timestamp: now,
			})
		}
	}

	if a.cfg.CostThresholdUSD > 0 && s.Usage != nil && s.Usage.TotalUSD > a.cfg.CostThresholdUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "high",
			RunID:    s.RunID,
			Message: fmt.Sprintf(
				"provider cost $%.2f exceeds threshold $%.2f",
				s.Usage.TotalUSD, a.cfg.CostThresholdUSD,
			),
			Details: map[string]any{
				"cost_usd":      s.Usage.TotalUSD,
				"threshold_usd": a.cfg.CostThresholdUSD,
				"requests":      s.Usage.Requests,
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
		if err := a.sendWebhook(ctx, alert); err != nil {
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
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
