package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/addrverify/internal/model"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func newObservedLog(t *testing.T) (*CallLog, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	return NewCallLog(zap.New(core), "run-1"), logs
}

func TestCall_SuccessFirstAttempt(t *testing.T) {
	a := NewAdapter(ProviderGeocoding, WithRetry(fastRetry()))
	calls := 0
	res := Call(context.Background(), a, "geocode", "rec-1", func(_ context.Context) (string, error) {
		calls++
		return "ok", nil
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, model.OutcomeOK, res.Outcome)
	assert.Equal(t, model.StatusOK, res.Code)
	assert.Equal(t, "ok", res.Value)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, res.ErrorCodes)
}

func TestCall_RetryCapIsThree(t *testing.T) {
	log, logs := newObservedLog(t)
	a := NewAdapter(ProviderGeocoding, WithRetry(fastRetry()), WithCallLog(log))

	calls := 0
	res := Call(context.Background(), a, "geocode", "rec-1", func(_ context.Context) (int, error) {
		calls++
		return 0, HTTPStatusError(503)
	})

	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, model.OutcomeAPIFailure, res.Outcome)
	assert.Equal(t, "HTTP_503", res.Code)
	assert.Equal(t, []string{"geocoding:HTTP_503", "geocoding:HTTP_503", "geocoding:HTTP_503"}, res.ErrorCodes)
	assert.Equal(t, 3, logs.Len())
	assert.Equal(t, int64(3), a.Attempts())
}

func TestCall_ClampsConfiguredAttempts(t *testing.T) {
	cfg := fastRetry()
	cfg.MaxAttempts = 10
	a := NewAdapter(ProviderImagery, WithRetry(cfg))

	calls := 0
	res := Call(context.Background(), a, "metadata", "rec-1", func(_ context.Context) (int, error) {
		calls++
		return 0, NewTransientError("UNKNOWN_ERROR", 200, nil)
	})

	assert.Equal(t, 3, calls)
	assert.Equal(t, model.OutcomeAPIFailure, res.Outcome)
}

func TestCall_SuccessAfterRetry(t *testing.T) {
	a := NewAdapter(ProviderGeocoding, WithRetry(fastRetry()))
	calls := 0
	res := Call(context.Background(), a, "geocode", "rec-1", func(_ context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", HTTPStatusError(429)
		}
		return "done", nil
	})

	assert.Equal(t, 2, calls)
	assert.Equal(t, model.OutcomeOK, res.Outcome)
	assert.Equal(t, "done", res.Value)
	assert.Equal(t, []string{"geocoding:HTTP_429"}, res.ErrorCodes)
}

func TestCall_TerminalOutcomeNotRetried(t *testing.T) {
	a := NewAdapter(ProviderGeocoding, WithRetry(fastRetry()))
	calls := 0
	res := Call(context.Background(), a, "geocode", "rec-1", func(_ context.Context) (string, error) {
		calls++
		return "", NewTerminalOutcome(model.StatusZeroResults)
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, model.OutcomeTerminal, res.Outcome)
	assert.Equal(t, model.StatusZeroResults, res.Code)
	assert.Empty(t, res.ErrorCodes)
}

func TestCall_PermanentErrorNotRetried(t *testing.T) {
	a := NewAdapter(ProviderValidation, WithRetry(fastRetry()))
	calls := 0
	res := Call(context.Background(), a, "validate", "rec-1", func(_ context.Context) (string, error) {
		calls++
		return "", HTTPStatusError(403)
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, model.OutcomePermanent, res.Outcome)
	assert.Equal(t, []string{"validation:HTTP_403"}, res.ErrorCodes)
}

func TestCall_TimeoutCountsAsTransient(t *testing.T) {
	a := NewAdapter(ProviderImagery, WithRetry(fastRetry()), WithTimeout(5*time.Millisecond))
	calls := 0
	res := Call(context.Background(), a, "metadata", "rec-1", func(ctx context.Context) (string, error) {
		calls++
		<-ctx.Done()
		return "", ctx.Err()
	})

	assert.Equal(t, 3, calls)
	assert.Equal(t, model.OutcomeAPIFailure, res.Outcome)
	assert.Equal(t, "TIMEOUT", res.Code)
}

func TestCall_AbortStopsNewAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := NewAdapter(ProviderGeocoding, WithRetry(RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     time.Second,
	}))

	calls := 0
	var inflightErr error
	res := Call(ctx, a, "geocode", "rec-1", func(actx context.Context) (string, error) {
		calls++
		cancel()
		inflightErr = actx.Err()
		return "", HTTPStatusError(503)
	})

	assert.Equal(t, 1, calls)
	assert.NoError(t, inflightErr, "in-flight attempt must not be cancelled by the run context")
	assert.Equal(t, model.OutcomeAPIFailure, res.Outcome)
	assert.Equal(t, model.StatusAborted, res.Code)
	assert.Equal(t, []string{"geocoding:HTTP_503", "geocoding:ABORTED"}, res.ErrorCodes)
}

func TestCall_CanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewAdapter(ProviderGeocoding, WithRetry(fastRetry()))
	calls := 0
	res := Call(ctx, a, "geocode", "rec-1", func(_ context.Context) (string, error) {
		calls++
		return "x", nil
	})

	assert.Equal(t, 0, calls)
	assert.Equal(t, model.OutcomeAPIFailure, res.Outcome)
	assert.Equal(t, 0, res.Attempts)
}

func TestCall_CallLogFields(t *testing.T) {
	log, logs := newObservedLog(t)
	a := NewAdapter(ProviderGeocoding, WithRetry(fastRetry()), WithCallLog(log))

	Call(context.Background(), a, "geocode", "rec-9", func(_ context.Context) (string, error) {
		return "", NewPermanentError("REQUEST_DENIED", 200, nil)
	})

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "run-1", fields["run_id"])
	assert.Equal(t, "geocoding", fields["provider"])
	assert.Equal(t, "rec-9", fields["record_id"])
	assert.Equal(t, int64(1), fields["attempt"])
	assert.Equal(t, "REQUEST_DENIED", fields["code"])
	assert.Equal(t, string(KindPermanent), fields["kind"])
	assert.Equal(t, int64(200), fields["http_status"])
	assert.Equal(t, "PERMANENT_ERROR", fields["outcome"])
	assert.NotContains(t, fields, "key")
	assert.NotContains(t, fields, "url")
}

func TestCall_CallLogMarksRetriedAttempts(t *testing.T) {
	log, logs := newObservedLog(t)
	a := NewAdapter(ProviderImagery, WithRetry(fastRetry()), WithCallLog(log))

	calls := 0
	res := Call(context.Background(), a, "streetview_metadata", "rec-3", func(_ context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError("UNKNOWN_ERROR", 503, nil)
		}
		return "ok", nil
	})
	require.Equal(t, model.OutcomeOK, res.Outcome)

	require.Equal(t, 3, logs.Len())
	var outcomes []string
	for _, e := range logs.All() {
		outcome, _ := e.ContextMap()["outcome"].(string)
		require.NotEmpty(t, outcome)
		outcomes = append(outcomes, outcome)
	}
	assert.Equal(t, []string{"RETRY", "RETRY", "OK"}, outcomes)
}
