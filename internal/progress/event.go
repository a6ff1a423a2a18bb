package progress

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart        Stage = "RUN_START"
	StageRunDone         Stage = "RUN_DONE"
	StageRunError        Stage = "RUN_ERROR"
	StageLocatorDone     Stage = "LOCATOR_DONE"
	StageLocatorError    Stage = "LOCATOR_ERROR"
	StageAttemptSuccess  Stage = "ATTEMPT_SUCCESS"
	StageAttemptQuota    Stage = "ATTEMPT_QUOTA"
	StageAttemptNotFound Stage = "ATTEMPT_NOT_FOUND"
	StageAttemptError    Stage = "ATTEMPT_ERROR"
	StageAttemptInvalid  Stage = "ATTEMPT_INVALID"
)

// Event captures a single component of pipeline progress.
type Event struct {
	// RunID identifies one pass over the locator list.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Locator is the source being processed, when applicable.
	Locator string
	// Backend is the backend identifier for attempt stages.
	Backend string
	// Op is the upsert operation for LOCATOR_DONE.
	Op string
	// Dur captures latency of the attempt, locator, or run.
	Dur time.Duration
	// Backoff is the wait applied after a quota attempt.
	Backoff time.Duration
	// Note carries low-volume debug context (e.g. error text).
	Note string
}

// IsAttempt reports whether the event describes one backend attempt.
func (e Event) IsAttempt() bool {
	switch e.Stage {
	case StageAttemptSuccess, StageAttemptQuota, StageAttemptNotFound, StageAttemptError, StageAttemptInvalid:
		return true
	default:
		return false
	}
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch {
	case e.IsAttempt():
		if e.Backend == "" {
			return fmt.Errorf("%s requires backend", e.Stage)
		}
	case e.Stage == StageLocatorDone, e.Stage == StageLocatorError:
		if e.Locator == "" {
			return fmt.Errorf("%s requires locator", e.Stage)
		}
	case e.Stage == StageRunStart, e.Stage == StageRunDone, e.Stage == StageRunError:
		if e.RunID == "" {
			return fmt.Errorf("%s requires run id", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 || e.Backoff < 0 {
		return errors.New("durations must be >= 0")
	}
	return nil
}

type scopeKey struct{}

// Scope is the run/locator context attached to emitted events.
type Scope struct {
	RunID   string
	Locator string
}

// WithScope returns a context whose events are tagged with scope.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom returns the scope stored in ctx, if any.
func ScopeFrom(ctx context.Context) Scope {
	scope, _ := ctx.Value(scopeKey{}).(Scope)
	return scope
}
