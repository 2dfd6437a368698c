package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/addrverify/internal/model"
)

// Provider names used for adapters, cache entries, and the call log.
const (
	ProviderGeocoding  = "geocoding"
	ProviderImagery    = "imagery"
	ProviderFootprint  = "footprint"
	ProviderValidation = "validation"
)

// Adapter wraps calls to one provider with bounded retry, a per-attempt
// timeout, an optional rate limit, and audit logging of every attempt.
type Adapter struct {
	provider string
	retry    RetryConfig
	timeout  time.Duration
	limiter  *rate.Limiter
	calls    *CallLog
	attempts atomic.Int64
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithRetry sets the retry policy. MaxAttempts is clamped to MaxAttemptsCap.
func WithRetry(cfg RetryConfig) AdapterOption {
	return func(a *Adapter) { a.retry = applyDefaults(cfg) }
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) AdapterOption {
	return func(a *Adapter) { a.timeout = d }
}

// WithRateLimit caps attempts per second. Zero or negative disables it.
func WithRateLimit(perSecond float64) AdapterOption {
	return func(a *Adapter) {
		if perSecond > 0 {
			a.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithCallLog sets the audit log that receives one event per attempt.
func WithCallLog(l *CallLog) AdapterOption {
	return func(a *Adapter) { a.calls = l }
}

// NewAdapter creates an Adapter for the named provider.
func NewAdapter(provider string, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		provider: provider,
		retry:    DefaultRetryConfig(),
		timeout:  15 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Provider returns the provider name.
func (a *Adapter) Provider() string { return a.provider }

// Attempts returns the number of attempts started through this adapter.
func (a *Adapter) Attempts() int64 { return a.attempts.Load() }

// Result is the typed outcome of an adapted call. Code holds the status of
// the last attempt ("OK", "ZERO_RESULTS", "HTTP_503", "TIMEOUT", ...).
// ErrorCodes lists "provider:code" for every failed attempt.
type Result[T any] struct {
	Value      T
	Outcome    model.Outcome
	Code       string
	Attempts   int
	ErrorCodes []string
}

// Call runs fn through the adapter's retry policy and always returns a
// Result. Transient failures are retried up to the attempt cap, after which
// the outcome is API_FAILURE. Terminal outcomes and permanent errors return
// immediately. Once ctx is done no further attempt starts; an attempt that
// is already running is detached from ctx and ends on its own timeout.
func Call[T any](ctx context.Context, a *Adapter, op, recordID string, fn func(ctx context.Context) (T, error)) Result[T] {
	var res Result[T]
	log := zap.L().With(
		zap.String("provider", a.provider),
		zap.String("operation", op),
		zap.String("record_id", recordID),
	)

	for attempt := 1; attempt <= a.retry.MaxAttempts; attempt++ {
		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				return aborted(res, a.provider)
			}
		}
		if ctx.Err() != nil {
			return aborted(res, a.provider)
		}

		start := time.Now()
		a.attempts.Add(1)
		val, err := runAttempt(ctx, a.timeout, fn)
		res.Attempts = attempt

		ev := CallEvent{
			Provider:  a.provider,
			Operation: op,
			RecordID:  recordID,
			Attempt:   attempt,
			Duration:  time.Since(start),
		}

		if err == nil {
			res.Value = val
			res.Outcome = model.OutcomeOK
			res.Code = model.StatusOK
			ev.Code, ev.Outcome = res.Code, res.Outcome
			a.calls.Record(ev)
			return res
		}

		kind, code := Classify(err)
		res.Code = code
		ev.Kind, ev.Code = kind, code
		var pe *ProviderError
		if errors.As(err, &pe) {
			ev.HTTPStatus = pe.StatusCode
		}

		switch kind {
		case KindTerminal:
			res.Outcome = model.OutcomeTerminal
			ev.Outcome = res.Outcome
			a.calls.Record(ev)
			return res
		case KindPermanent:
			res.Outcome = model.OutcomePermanent
			res.ErrorCodes = append(res.ErrorCodes, a.provider+":"+code)
			ev.Outcome = res.Outcome
			a.calls.Record(ev)
			log.Warn("provider call failed", zap.String("code", code), zap.Error(err))
			return res
		}

		res.ErrorCodes = append(res.ErrorCodes, a.provider+":"+code)
		if attempt == a.retry.MaxAttempts {
			res.Outcome = model.OutcomeAPIFailure
			ev.Outcome = res.Outcome
			a.calls.Record(ev)
			log.Warn("provider retries exhausted",
				zap.String("code", code),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return res
		}
		ev.Outcome = model.OutcomeRetry
		a.calls.Record(ev)

		log.Debug("retrying provider call",
			zap.Int("attempt", attempt),
			zap.String("code", code),
			zap.Error(err),
		)

		timer := time.NewTimer(computeBackoff(attempt-1, a.retry))
		select {
		case <-ctx.Done():
			timer.Stop()
			return aborted(res, a.provider)
		case <-timer.C:
		}
	}

	res.Outcome = model.OutcomeAPIFailure
	return res
}

// runAttempt runs fn once under the per-attempt timeout. The attempt
// context does not inherit cancellation from ctx, only its values.
func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	actx := context.WithoutCancel(ctx)
	if timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(actx, timeout)
		defer cancel()
	}

	val, err := fn(actx)
	if err != nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		var pe *ProviderError
		if !errors.As(err, &pe) {
			err = NewTransientError("TIMEOUT", 0, err)
		}
	}
	return val, err
}

func aborted[T any](res Result[T], provider string) Result[T] {
	res.Outcome = model.OutcomeAPIFailure
	res.Code = model.StatusAborted
	res.ErrorCodes = append(res.ErrorCodes, provider+":"+model.StatusAborted)
	return res
}
