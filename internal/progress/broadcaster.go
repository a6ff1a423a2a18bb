package progress

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Broadcaster fans each event out to every sink synchronously, so sinks see
// events in the order they were emitted.
type Broadcaster struct {
	sinks  []Sink
	now    func() time.Time
	logger *zap.Logger
}

// NewBroadcaster builds a Broadcaster over the supplied sinks.
func NewBroadcaster(logger *zap.Logger, sinks ...Sink) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		sinks:  append([]Sink(nil), sinks...),
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// Emit stamps the event with the scope in ctx and delivers it. Sink failures
// are logged and never reach the caller.
func (b *Broadcaster) Emit(ctx context.Context, evt Event) {
	if b == nil {
		return
	}
	scope := ScopeFrom(ctx)
	if evt.RunID == "" {
		evt.RunID = scope.RunID
	}
	if evt.Locator == "" {
		evt.Locator = scope.Locator
	}
	if evt.TS.IsZero() {
		evt.TS = b.now()
	}
	if err := evt.Validate(); err != nil {
		b.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	batch := []Event{evt}
	for _, sink := range b.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Consume(ctx, batch); err != nil {
			b.logger.Warn("progress sink consume failed", zap.String("stage", string(evt.Stage)), zap.Error(err))
		}
	}
}

// Close closes every sink and joins their errors.
func (b *Broadcaster) Close(ctx context.Context) error {
	if b == nil {
		return nil
	}
	var errs []error
	for _, sink := range b.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
