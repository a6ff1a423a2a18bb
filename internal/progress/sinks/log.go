package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/edital-crawler/internal/progress"
)

// LogSink emits one structured log line per progress event. Failed attempts
// and locators log at warn level, everything else at info.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.Locator != "" {
			fields = append(fields, zap.String("locator", evt.Locator))
		}
		if evt.Backend != "" {
			fields = append(fields, zap.String("backend", evt.Backend))
		}
		if evt.Op != "" {
			fields = append(fields, zap.String("op", evt.Op))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Backoff > 0 {
			fields = append(fields, zap.Duration("backoff", evt.Backoff))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Log(levelFor(evt.Stage), "progress event", fields...)
	}
	return nil
}

func levelFor(stage progress.Stage) zapcore.Level {
	switch stage {
	case progress.StageAttemptQuota,
		progress.StageAttemptNotFound,
		progress.StageAttemptError,
		progress.StageAttemptInvalid,
		progress.StageLocatorError,
		progress.StageRunError:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
