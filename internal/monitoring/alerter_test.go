package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/addrverify/internal/config"
	"github.com/sells-group/addrverify/internal/cost"
	"github.com/sells-group/addrverify/internal/report"
)

func thresholds() config.MonitoringConfig {
	return config.MonitoringConfig{
		UnresolvedRateThreshold: 0.10,
		ReviewRateThreshold:     0.50,
		CostThresholdUSD:        100,
	}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(thresholds())

	alerts := a.Evaluate(report.Summary{
		RunID:            "run-1",
		TotalRecords:     100,
		UnresolvedCount:  5,
		ReviewQueueCount: 20,
		Usage:            &cost.Usage{TotalUSD: 10},
	})
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_UnresolvedRate(t *testing.T) {
	a := NewAlerter(thresholds())

	alerts := a.Evaluate(report.Summary{
		RunID:           "run-1",
		TotalRecords:    20,
		UnresolvedCount: 8,
	})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertUnresolvedRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Equal(t, "run-1", alerts[0].RunID)
	assert.Contains(t, alerts[0].Message, "40.0%")
}

func TestAlerter_Evaluate_ReviewRate(t *testing.T) {
	a := NewAlerter(thresholds())

	alerts := a.Evaluate(report.Summary{TotalRecords: 10, ReviewQueueCount: 6})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertReviewRate, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)
}

func TestAlerter_Evaluate_CostOverrun(t *testing.T) {
	a := NewAlerter(thresholds())

	alerts := a.Evaluate(report.Summary{TotalRecords: 10, Usage: &cost.Usage{TotalUSD: 150.5}})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCostOverrun, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "$150.50")
}

func TestAlerter_Evaluate_MinRecords(t *testing.T) {
	cfg := thresholds()
	cfg.MinRecords = 50
	a := NewAlerter(cfg)

	alerts := a.Evaluate(report.Summary{TotalRecords: 10, UnresolvedCount: 10, ReviewQueueCount: 10})
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_ZeroThresholdsDisabled(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	alerts := a.Evaluate(report.Summary{
		TotalRecords:     10,
		UnresolvedCount:  10,
		ReviewQueueCount: 10,
		Usage:            &cost.Usage{TotalUSD: 1e6},
	})
	assert.Empty(t, alerts)
}

func TestAlerter_SendAlerts(t *testing.T) {
	var received atomic.Int32
	var got Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := thresholds()
	cfg.WebhookURL = srv.URL
	a := NewAlerter(cfg)
	a.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }

	alerts := a.Evaluate(report.Summary{RunID: "run-9", TotalRecords: 10, UnresolvedCount: 5})
	require.Len(t, alerts, 1)

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 1, sent)
	assert.Equal(t, int32(1), received.Load())
	assert.Equal(t, "run-9", got.RunID)
	assert.Equal(t, AlertUnresolvedRate, got.Type)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := thresholds()
	cfg.WebhookURL = srv.URL
	a := NewAlerter(cfg)

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertCostOverrun}})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_NoWebhook(t *testing.T) {
	a := NewAlerter(thresholds())
	assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertCostOverrun}}))
}
