package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/edital-crawler/internal/edital"
	"github.com/JakeFAU/edital-crawler/internal/progress"
)

// DefaultCallTimeout bounds a single backend invocation.
const DefaultCallTimeout = 60 * time.Second

// BackendInvoker calls one backend by identifier and returns the raw response
// body. Failures should be *BackendError values; anything else counts as Other.
type BackendInvoker interface {
	Invoke(ctx context.Context, backend string, req Request) (string, error)
}

// InvokerFunc adapts a plain function to BackendInvoker.
type InvokerFunc func(ctx context.Context, backend string, req Request) (string, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, backend string, req Request) (string, error) {
	return f(ctx, backend, req)
}

// Config tunes an Extractor. Zero values fall back to defaults.
type Config struct {
	CallTimeout time.Duration
	Backoff     Backoff
	Sleeper     Sleeper
	Emitter     progress.Emitter
	Logger      *zap.Logger
}

// Extractor walks an ordered backend list until one yields a valid record.
type Extractor struct {
	invoker     BackendInvoker
	callTimeout time.Duration
	backoff     Backoff
	sleeper     Sleeper
	emitter     progress.Emitter
	logger      *zap.Logger
	validator   *validator
	now         func() time.Time
}

// New wires an Extractor around invoker.
func New(invoker BackendInvoker, cfg Config) (*Extractor, error) {
	if invoker == nil {
		return nil, errors.New("extract: invoker is required")
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.Backoff == nil {
		cfg.Backoff = NewExponentialBackoff(0, 0)
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = timerSleeper{}
	}
	if cfg.Emitter == nil {
		cfg.Emitter = progress.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Extractor{
		invoker:     invoker,
		callTimeout: cfg.CallTimeout,
		backoff:     cfg.Backoff,
		sleeper:     cfg.Sleeper,
		emitter:     cfg.Emitter,
		logger:      cfg.Logger,
		validator:   newValidator(),
		now:         time.Now,
	}, nil
}

// Extract submits text to each backend in order and returns the first record
// that parses and satisfies schema. Each backend is tried at most once.
func (e *Extractor) Extract(ctx context.Context, text string, schema edital.Schema, backends []string) (edital.Record, error) {
	if err := schema.Validate(); err != nil {
		return edital.Record{}, fmt.Errorf("extract: %w", err)
	}
	req := Request{Text: text, Schema: schema}
	attempts := make([]Attempt, 0, len(backends))
	quotaHits := 0
	sawInvalid := false

	for i, backend := range backends {
		if err := ctx.Err(); err != nil {
			return edital.Record{}, fmt.Errorf("extract: %w", err)
		}
		logger := e.logger.With(zap.String("backend", backend))

		start := e.now()
		rec, err := e.attempt(ctx, backend, req)
		attempt := Attempt{Backend: backend, Duration: e.now().Sub(start), Err: err}

		if err == nil {
			attempt.Outcome = OutcomeSuccess
			e.record(ctx, attempt)
			logger.Info("extraction succeeded", zap.Int("attempt", i+1))
			return rec, nil
		}
		// A cancelled parent context is not the backend's fault.
		if ctx.Err() != nil {
			return edital.Record{}, fmt.Errorf("extract: %w", ctx.Err())
		}

		hasNext := i < len(backends)-1
		switch {
		case errors.Is(err, ErrSchemaViolation):
			attempt.Outcome = OutcomeInvalid
			sawInvalid = true
			logger.Warn("response violates schema", zap.Error(err))
		case Classify(err) == KindQuota:
			attempt.Outcome = OutcomeQuota
			if hasNext {
				attempt.Backoff = e.backoff.Delay(quotaHits, retryAfter(err))
			}
			quotaHits++
			logger.Warn("backend quota exhausted", zap.Duration("backoff", attempt.Backoff), zap.Error(err))
		case Classify(err) == KindNotFound:
			attempt.Outcome = OutcomeNotFound
			logger.Warn("backend not found", zap.Error(err))
		default:
			attempt.Outcome = OutcomeError
			logger.Warn("backend failed", zap.Error(err))
		}

		attempts = append(attempts, attempt)
		e.record(ctx, attempt)

		if attempt.Backoff > 0 {
			if err := e.sleeper.Sleep(ctx, attempt.Backoff); err != nil {
				return edital.Record{}, fmt.Errorf("extract: %w", err)
			}
		}
	}

	kind := AllBackendsExhausted
	if sawInvalid {
		kind = SchemaViolation
	}
	failure := &Failure{Kind: kind, Attempts: attempts}
	e.logger.Error("extraction failed", zap.String("kind", string(kind)), zap.Int("attempts", len(attempts)))
	return edital.Record{}, failure
}

// attempt performs one bounded invocation and turns the body into a record.
func (e *Extractor) attempt(ctx context.Context, backend string, req Request) (edital.Record, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	body, err := e.invoker.Invoke(callCtx, backend, req)
	if err != nil {
		return edital.Record{}, err
	}
	raw, err := parseStructuredJSON(body)
	if err != nil {
		return edital.Record{}, OtherError(backend, err)
	}
	return e.validator.decode(req.Schema, json.RawMessage(raw))
}

func (e *Extractor) record(ctx context.Context, a Attempt) {
	evt := progress.Event{
		Stage:   stageFor(a.Outcome),
		Backend: a.Backend,
		Dur:     a.Duration,
		Backoff: a.Backoff,
	}
	if a.Err != nil {
		evt.Note = a.Err.Error()
	}
	e.emitter.Emit(ctx, evt)
}

func stageFor(o Outcome) progress.Stage {
	switch o {
	case OutcomeSuccess:
		return progress.StageAttemptSuccess
	case OutcomeQuota:
		return progress.StageAttemptQuota
	case OutcomeNotFound:
		return progress.StageAttemptNotFound
	case OutcomeInvalid:
		return progress.StageAttemptInvalid
	default:
		return progress.StageAttemptError
	}
}

func retryAfter(err error) time.Duration {
	var be *BackendError
	if errors.As(err, &be) {
		return be.RetryAfter
	}
	return 0
}
