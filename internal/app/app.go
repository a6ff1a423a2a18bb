// Package app builds the long-lived services from configuration and owns
// their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/edital-crawler/internal/clock/system"
	"github.com/JakeFAU/edital-crawler/internal/config"
	"github.com/JakeFAU/edital-crawler/internal/edital"
	"github.com/JakeFAU/edital-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/edital-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/edital-crawler/internal/fetcher/static"
	"github.com/JakeFAU/edital-crawler/internal/hash/sha256"
	"github.com/JakeFAU/edital-crawler/internal/id/uuid"
	"github.com/JakeFAU/edital-crawler/internal/llm"
	openaiinvoker "github.com/JakeFAU/edital-crawler/internal/llm/openai"
	"github.com/JakeFAU/edital-crawler/internal/llm/rules"
	"github.com/JakeFAU/edital-crawler/internal/metrics"
	"github.com/JakeFAU/edital-crawler/internal/pipeline"
	"github.com/JakeFAU/edital-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/edital-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/edital-crawler/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/edital-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/edital-crawler/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/edital-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/edital-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/edital-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/edital-crawler/internal/storage/postgres"
	"github.com/JakeFAU/edital-crawler/internal/telemetry"
)

// Recorder is an edital.Recorder that can report its health.
type Recorder interface {
	edital.Recorder
	Ping(ctx context.Context) error
}

// App holds the services shared by the run and serve commands.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Collectors

	pipeline  *pipeline.Pipeline
	serial    *pipeline.Serial
	progress  *progress.Broadcaster
	recorder  Recorder
	pgStore   *pgstore.EditalStore
	pubsub    *gcppublisher.Publisher
	gcsClient *storage.Client
	tracer    *sdktrace.TracerProvider
	ids       edital.IDGenerator
	clock     edital.Clock
}

// Option overrides a collaborator, mostly for tests.
type Option func(*options)

type options struct {
	fetcher  edital.Fetcher
	recorder Recorder
}

// WithFetcher replaces the configured fetcher.
func WithFetcher(f edital.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithRecorder replaces the configured store.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// Build creates every dependency named by cfg. On error, anything already
// opened is closed.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		ids:      uuid.New(),
		clock:    system.New(),
	}
	defer func() {
		if err != nil {
			a.closeInfrastructure()
		}
	}()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	logger.Info("building application dependencies",
		zap.Strings("backends", cfg.LLM.Backends),
		zap.String("fetcher", cfg.Fetcher.Provider),
		zap.String("store", cfg.Store.Provider),
		zap.String("archive", cfg.Archive.Provider),
		zap.String("publisher", cfg.Publisher.Provider),
	)

	if a.metrics, err = metrics.New(a.registry); err != nil {
		return nil, fmt.Errorf("metrics init failed: %w", err)
	}
	a.tracer, err = telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: "edital-crawler",
		Exporter:    cfg.Tracing.Exporter,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing init failed: %w", err)
	}
	if err = a.setupProgress(); err != nil {
		return nil, err
	}
	extractor, err := a.setupExtractor()
	if err != nil {
		return nil, err
	}
	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = a.setupFetcher()
	}
	fetcher = a.metrics.InstrumentFetcher(ratelimit.New(ratelimit.Config{
		PerHostRPS: cfg.Fetcher.PerHostRPS,
		Burst:      cfg.Fetcher.Burst,
		OnDelay:    a.metrics.ObserveRateLimitDelay,
	}).Wrap(fetcher))
	a.recorder = o.recorder
	if a.recorder == nil {
		if a.recorder, err = a.setupStore(ctx); err != nil {
			return nil, err
		}
	}
	archive, err := a.setupArchive(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}

	a.pipeline, err = pipeline.New(pipeline.Config{
		Backends:      cfg.LLM.Backends,
		ArchivePrefix: cfg.Archive.Prefix,
		Topic:         cfg.Publisher.Topic,
	}, pipeline.Deps{
		Fetcher:   fetcher,
		Extractor: extractor,
		Recorder:  a.recorder,
		Archive:   archive,
		Publisher: publisher,
		Hasher:    sha256.New(),
		IDs:       a.ids,
		Clock:     a.clock,
		Emitter:   a.progress,
		Tracer:    a.tracer.Tracer("github.com/JakeFAU/edital-crawler/internal/pipeline"),
		Logger:    logger.Named("pipeline"),
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}
	a.serial = pipeline.NewSerial(a.pipeline, logger.Named("runs"))
	return a, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Pipeline returns the run driver.
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// Runs returns the serialized run coordinator used by serve mode.
func (a *App) Runs() *pipeline.Serial {
	return a.serial
}

// Registry returns the Prometheus registry holding the pipeline metrics.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// Metrics returns the HTTP and fetch collectors.
func (a *App) Metrics() *metrics.Collectors {
	return a.metrics
}

// Ready reports whether the store is reachable.
func (a *App) Ready(ctx context.Context) error {
	if a.recorder == nil {
		return errors.New("store not configured")
	}
	if err := a.recorder.Ping(ctx); err != nil {
		return fmt.Errorf("store ping: %w", err)
	}
	return nil
}

// Close waits for background runs and releases every client.
func (a *App) Close(ctx context.Context) error {
	if a.serial != nil {
		a.serial.Wait()
	}
	var errs []error
	if a.progress != nil {
		if err := a.progress.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close progress: %w", err))
		}
	}
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	return errors.Join(errs...)
}

func (a *App) closeInfrastructure() {
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
		a.pubsub = nil
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.gcsClient = nil
	}
	if a.pgStore != nil {
		a.pgStore.Close()
		a.pgStore = nil
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
		a.tracer = nil
	}
}

func (a *App) setupProgress() error {
	promSink, err := progresssinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("prometheus sink init failed: %w", err)
	}
	a.progress = progress.NewBroadcaster(
		a.logger.Named("progress"),
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
		promSink,
	)
	return nil
}

func (a *App) setupExtractor() (*extract.Extractor, error) {
	router := llm.NewRouter(llm.DefaultProvider)
	router.Register("rules", rules.New())
	if a.cfg.LLM.APIKey != "" {
		inv, err := openaiinvoker.New(openaiinvoker.Config{
			APIKey:  a.cfg.LLM.APIKey,
			BaseURL: a.cfg.LLM.BaseURL,
			Timeout: a.cfg.LLM.CallTimeout,
			Logger:  a.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("model client init failed: %w", err)
		}
		router.Register(llm.DefaultProvider, inv)
	}
	a.logger.Info("model providers registered", zap.Strings("providers", router.Providers()))

	ex, err := extract.New(router, extract.Config{
		CallTimeout: a.cfg.LLM.CallTimeout,
		Backoff:     extract.NewExponentialBackoff(a.cfg.LLM.BackoffBase, a.cfg.LLM.BackoffMax),
		Emitter:     a.progress,
		Logger:      a.logger.Named("extract"),
	})
	if err != nil {
		return nil, fmt.Errorf("extractor init failed: %w", err)
	}
	return ex, nil
}

func (a *App) setupFetcher() edital.Fetcher {
	if a.cfg.Fetcher.Provider == "static" {
		a.logger.Info("using static fetcher with the sample notice")
		return static.NewSample()
	}
	a.logger.Info("using colly fetcher",
		zap.String("user_agent", a.cfg.Fetcher.UserAgent),
		zap.Bool("respect_robots", a.cfg.Fetcher.RespectRobots),
	)
	return collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.Fetcher.UserAgent,
		RespectRobots: a.cfg.Fetcher.RespectRobots,
		Timeout:       a.cfg.Fetcher.Timeout,
	}, a.logger.Named("fetcher"))
}

func (a *App) setupStore(ctx context.Context) (Recorder, error) {
	if a.cfg.Store.Provider == "memory" {
		a.logger.Warn("using in-memory store; records are lost on exit")
		return memorystorage.NewEditalStore(a.ids, a.clock), nil
	}
	st, err := pgstore.NewEditalStore(ctx, pgstore.Config{
		DSN:             a.cfg.Store.DSN,
		Password:        a.cfg.Store.Password,
		Table:           a.cfg.Store.Table,
		MaxConns:        a.cfg.Store.MaxConns,
		ConnectAttempts: a.cfg.Store.ConnectAttempts,
		ConnectDelay:    a.cfg.Store.ConnectDelay,
		OpTimeout:       a.cfg.Store.OpTimeout,
	}, a.ids, a.clock, pgstore.WithLogger(a.logger.Named("store")))
	if err != nil {
		return nil, &edital.StoreError{Op: "connect", Err: err}
	}
	a.pgStore = st
	if a.cfg.Store.AutoMigrate {
		if err := st.EnsureSchema(ctx); err != nil {
			return nil, &edital.StoreError{Op: "migrate", Err: err}
		}
		a.logger.Info("store schema ensured", zap.String("table", a.cfg.Store.Table))
	}
	return st, nil
}

func (a *App) setupArchive(ctx context.Context) (edital.BlobStore, error) {
	switch a.cfg.Archive.Provider {
	case "memory":
		a.logger.Info("archiving source text in memory")
		return memorystorage.NewBlobStore(), nil
	case "local":
		bs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		a.logger.Info("archiving source text locally", zap.String("path", a.cfg.Archive.BaseDir))
		return bs, nil
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		bs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Archive.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		a.logger.Info("archiving source text to GCS", zap.String("bucket", a.cfg.Archive.Bucket))
		return bs, nil
	default:
		return nil, nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (edital.Publisher, error) {
	switch a.cfg.Publisher.Provider {
	case "memory":
		return memorypublisher.New(), nil
	case "pubsub":
		client, err := pubsub.NewClient(ctx, a.cfg.Publisher.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsub = gcppublisher.New(client)
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.Publisher.ProjectID),
			zap.String("topic", a.cfg.Publisher.Topic),
		)
		return a.pubsub, nil
	default:
		return nil, nil
	}
}
