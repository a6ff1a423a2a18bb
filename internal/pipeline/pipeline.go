// Package pipeline drives locators through fetch, extraction, and upsert.
//
// Locators are processed strictly in order, one at a time. The first locator
// that fails aborts the run. Archiving the source text and publishing a
// notification are side channels: their failures are logged and ignored.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/JakeFAU/edital-crawler/internal/edital"
	"github.com/JakeFAU/edital-crawler/internal/progress"
)

// Stage names the step at which a locator failed.
type Stage string

// Locator stages.
const (
	StageFetch   Stage = "fetch"
	StageExtract Stage = "extract"
	StageStore   Stage = "store"
)

// LocatorError reports the locator and stage that aborted a run.
type LocatorError struct {
	Locator string
	Stage   Stage
	Err     error
}

func (e *LocatorError) Error() string {
	return fmt.Sprintf("locator %s: %s: %v", e.Locator, e.Stage, e.Err)
}

func (e *LocatorError) Unwrap() error {
	return e.Err
}

// Extractor turns page text into a record.
type Extractor interface {
	Extract(ctx context.Context, text string, schema edital.Schema, backends []string) (edital.Record, error)
}

// Config holds the per-run settings.
type Config struct {
	Backends      []string
	Schema        edital.Schema
	ArchivePrefix string
	Topic         string
}

// Deps are the collaborators a Pipeline needs. Archive and Publisher are optional.
type Deps struct {
	Fetcher   edital.Fetcher
	Extractor Extractor
	Recorder  edital.Recorder
	Archive   edital.BlobStore
	Publisher edital.Publisher
	Hasher    edital.Hasher
	IDs       edital.IDGenerator
	Clock     edital.Clock
	Emitter   progress.Emitter
	Tracer    trace.Tracer
	Logger    *zap.Logger
}

// LocatorResult is what one successful locator produced.
type LocatorResult struct {
	Locator        string              `json:"locator"`
	Record         edital.Record       `json:"record"`
	Upsert         edital.UpsertResult `json:"upsert"`
	SourceURI      string              `json:"source_uri,omitempty"`
	NotificationID string              `json:"notification_id,omitempty"`
	Duration       time.Duration       `json:"duration"`
}

// Summary describes a finished run, successful or not.
type Summary struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Results    []LocatorResult `json:"results"`
	Error      string          `json:"error,omitempty"`
}

// Notification is published once per upserted record.
type Notification struct {
	RunID       string          `json:"run_id"`
	Locator     string          `json:"locator"`
	Institution string          `json:"instituicao"`
	Specialty   string          `json:"especialidade"`
	Op          edital.UpsertOp `json:"op"`
	Projected   bool            `json:"previsto"`
	SourceURI   string          `json:"source_uri,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Pipeline runs locators through the Fetcher, Extractor, and Recorder.
type Pipeline struct {
	cfg  Config
	deps Deps
}

// New validates deps and returns a Pipeline.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, errors.New("pipeline: fetcher is required")
	case deps.Extractor == nil:
		return nil, errors.New("pipeline: extractor is required")
	case deps.Recorder == nil:
		return nil, errors.New("pipeline: recorder is required")
	case deps.IDs == nil:
		return nil, errors.New("pipeline: id generator is required")
	case deps.Clock == nil:
		return nil, errors.New("pipeline: clock is required")
	case deps.Archive != nil && deps.Hasher == nil:
		return nil, errors.New("pipeline: hasher is required when archiving")
	case deps.Publisher != nil && cfg.Topic == "":
		return nil, errors.New("pipeline: topic is required when publishing")
	}
	if len(cfg.Schema.Fields) == 0 {
		cfg.Schema = edital.DefaultSchema()
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "sources"
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.Nop{}
	}
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("pipeline")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, deps: deps}, nil
}

// Run processes locators in order and stops at the first failure, which is
// returned as a *LocatorError. The summary covers every locator that finished.
func (p *Pipeline) Run(ctx context.Context, locators []string) (Summary, error) {
	runID, err := p.deps.IDs.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("allocate run id: %w", err)
	}
	summary := Summary{RunID: runID, StartedAt: p.deps.Clock.Now(), Results: []LocatorResult{}}
	ctx, span := p.deps.Tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Int("locators", len(locators)),
	))
	defer span.End()
	ctx = progress.WithScope(ctx, progress.Scope{RunID: runID})
	logger := p.deps.Logger.With(zap.String("run_id", runID))

	p.deps.Emitter.Emit(ctx, progress.Event{Stage: progress.StageRunStart, Note: fmt.Sprintf("%d locators", len(locators))})
	logger.Info("run started", zap.Int("locators", len(locators)), zap.Strings("backends", p.cfg.Backends))

	for _, locator := range locators {
		if err := ctx.Err(); err != nil {
			return p.fail(ctx, logger, summary, fmt.Errorf("run canceled: %w", err))
		}
		lctx := progress.WithScope(ctx, progress.Scope{RunID: runID, Locator: locator})
		result, err := p.traceLocator(lctx, runID, locator, logger.With(zap.String("locator", locator)))
		if err != nil {
			p.deps.Emitter.Emit(lctx, progress.Event{Stage: progress.StageLocatorError, Note: err.Error()})
			return p.fail(ctx, logger, summary, err)
		}
		summary.Results = append(summary.Results, result)
		p.deps.Emitter.Emit(lctx, progress.Event{
			Stage: progress.StageLocatorDone,
			Op:    string(result.Upsert.Op),
			Dur:   result.Duration,
		})
	}

	summary.FinishedAt = p.deps.Clock.Now()
	p.deps.Emitter.Emit(ctx, progress.Event{Stage: progress.StageRunDone, Dur: summary.FinishedAt.Sub(summary.StartedAt)})
	logger.Info("run finished", zap.Int("records", len(summary.Results)))
	return summary, nil
}

func (p *Pipeline) fail(ctx context.Context, logger *zap.Logger, summary Summary, err error) (Summary, error) {
	summary.FinishedAt = p.deps.Clock.Now()
	summary.Error = err.Error()
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, "run aborted")
	p.deps.Emitter.Emit(ctx, progress.Event{
		Stage: progress.StageRunError,
		Dur:   summary.FinishedAt.Sub(summary.StartedAt),
		Note:  err.Error(),
	})
	logger.Error("run aborted", zap.Error(err))
	return summary, err
}

func (p *Pipeline) traceLocator(ctx context.Context, runID, locator string, logger *zap.Logger) (LocatorResult, error) {
	ctx, span := p.deps.Tracer.Start(ctx, "pipeline.locator", trace.WithAttributes(attribute.String("locator", locator)))
	defer span.End()

	result, err := p.processLocator(ctx, runID, locator, logger)
	if err != nil {
		var locErr *LocatorError
		if errors.As(err, &locErr) {
			span.SetAttributes(attribute.String("stage", string(locErr.Stage)))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "locator failed")
		return result, err
	}
	span.SetAttributes(
		attribute.String("op", string(result.Upsert.Op)),
		attribute.String("record_id", result.Upsert.ID),
	)
	return result, nil
}

func (p *Pipeline) processLocator(ctx context.Context, runID, locator string, logger *zap.Logger) (LocatorResult, error) {
	start := p.deps.Clock.Now()
	result := LocatorResult{Locator: locator}

	text, err := p.deps.Fetcher.Fetch(ctx, locator)
	if err != nil {
		return result, &LocatorError{Locator: locator, Stage: StageFetch, Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return result, &LocatorError{Locator: locator, Stage: StageFetch, Err: errors.New("fetched text is empty")}
	}
	result.SourceURI = p.archive(ctx, runID, text, logger)

	rec, err := p.deps.Extractor.Extract(ctx, text, p.cfg.Schema, p.cfg.Backends)
	if err != nil {
		return result, &LocatorError{Locator: locator, Stage: StageExtract, Err: err}
	}
	rec = rec.WithDefaultLink(locator)
	result.Record = rec

	upsert, err := p.deps.Recorder.Upsert(ctx, rec)
	if err != nil {
		return result, &LocatorError{Locator: locator, Stage: StageStore, Err: err}
	}
	result.Upsert = upsert
	logger.Info("edital recorded",
		zap.String("id", upsert.ID),
		zap.String("op", string(upsert.Op)),
		zap.Stringer("key", rec.Key()),
		zap.Bool("previsto", rec.Projected),
	)

	result.NotificationID = p.notify(ctx, Notification{
		RunID:       runID,
		Locator:     locator,
		Institution: rec.Institution,
		Specialty:   rec.Specialty,
		Op:          upsert.Op,
		Projected:   rec.Projected,
		SourceURI:   result.SourceURI,
		Timestamp:   p.deps.Clock.Now(),
	}, logger)
	result.Duration = p.deps.Clock.Now().Sub(start)
	return result, nil
}

// archive stores the source text under <prefix>/<run_id>/<sha256>.txt.
func (p *Pipeline) archive(ctx context.Context, runID, text string, logger *zap.Logger) string {
	if p.deps.Archive == nil {
		return ""
	}
	digest, err := p.deps.Hasher.Hash([]byte(text))
	if err != nil {
		logger.Warn("hash source text failed", zap.Error(err))
		return ""
	}
	objectPath := path.Join(p.cfg.ArchivePrefix, runID, digest+".txt")
	uri, err := p.deps.Archive.PutObject(ctx, objectPath, "text/plain; charset=utf-8", strings.NewReader(text))
	if err != nil {
		logger.Warn("archive source text failed", zap.String("path", objectPath), zap.Error(err))
		return ""
	}
	return uri
}

func (p *Pipeline) notify(ctx context.Context, n Notification, logger *zap.Logger) string {
	if p.deps.Publisher == nil {
		return ""
	}
	id, err := p.deps.Publisher.Publish(ctx, p.cfg.Topic, n)
	if err != nil {
		logger.Warn("publish notification failed", zap.String("topic", p.cfg.Topic), zap.Error(err))
		return ""
	}
	return id
}
