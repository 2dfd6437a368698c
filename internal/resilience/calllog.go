package resilience

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/addrverify/internal/model"
)

// CallEvent is one provider attempt as recorded in the call log. It never
// carries request URLs, headers, or keys.
type CallEvent struct {
	Provider   string
	Operation  string
	RecordID   string
	Attempt    int
	Kind       ErrorKind
	Code       string
	HTTPStatus int
	Outcome    model.Outcome
	Duration   time.Duration
}

// CallLog is an append-only JSON-lines audit log of provider attempts.
// A nil *CallLog discards events.
type CallLog struct {
	logger *zap.Logger
	runID  string
	file   *os.File
}

// OpenCallLog opens (or creates) path for appending.
func OpenCallLog(path, runID string) (*CallLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, eris.Wrapf(err, "resilience: open call log %s", path)
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		MessageKey:     "event",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zapcore.InfoLevel)

	return &CallLog{logger: zap.New(core), runID: runID, file: f}, nil
}

// NewCallLog wraps an existing logger. Used by tests and by callers that
// route the audit trail through their own sink.
func NewCallLog(logger *zap.Logger, runID string) *CallLog {
	return &CallLog{logger: logger, runID: runID}
}

// Record appends one event.
func (l *CallLog) Record(ev CallEvent) {
	if l == nil {
		return
	}
	fields := []zap.Field{
		zap.String("run_id", l.runID),
		zap.String("provider", ev.Provider),
		zap.String("operation", ev.Operation),
		zap.String("record_id", ev.RecordID),
		zap.Int("attempt", ev.Attempt),
		zap.String("code", ev.Code),
		zap.String("outcome", string(ev.Outcome)),
		zap.Int64("duration_ms", ev.Duration.Milliseconds()),
	}
	if ev.Kind != "" {
		fields = append(fields, zap.String("kind", string(ev.Kind)))
	}
	if ev.HTTPStatus != 0 {
		fields = append(fields, zap.Int("http_status", ev.HTTPStatus))
	}
	l.logger.Info("provider_call", fields...)
}

// Close flushes and closes the underlying file, if any.
func (l *CallLog) Close() error {
	if l == nil {
		return nil
	}
	_ = l.logger.Sync()
	if l.file == nil {
		return nil
	}
	return eris.Wrap(l.file.Close(), "resilience: close call log")
}
