package sinks

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/edital-crawler/internal/progress"
)

// PrometheusSink exports pipeline progress via Prometheus. It owns the
// collectors for runs, locators, backend attempts, and backoff waits.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	locators *prometheus.CounterVec
	upserts  *prometheus.CounterVec

	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	backoffSeconds  prometheus.Histogram
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "edital_runs_started_total",
			Help: "Total pipeline runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edital_runs_completed_total",
			Help: "Total pipeline runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edital_runs_running",
			Help: "Number of pipeline runs in progress.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edital_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		locators: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edital_locators_total",
			Help: "Locators processed partitioned by result.",
		}, []string{"result"}),
		upserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edital_records_upserted_total",
			Help: "Records written partitioned by operation.",
		}, []string{"op"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edital_backend_attempts_total",
			Help: "Backend attempts partitioned by backend and outcome.",
		}, []string{"backend", "outcome"}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edital_backend_attempt_duration_seconds",
			Help:    "Backend call latency partitioned by backend.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"backend"}),
		backoffSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "edital_backoff_delay_seconds",
			Help:    "Waits applied after quota failures.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.locators,
		s.upserts,
		s.attempts,
		s.attemptDuration,
		s.backoffSeconds,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch {
	case evt.IsAttempt():
		s.handleAttempt(evt)
	case evt.Stage == progress.StageLocatorDone:
		s.locators.WithLabelValues("success").Inc()
		if evt.Op != "" {
			s.upserts.WithLabelValues(evt.Op).Inc()
		}
	case evt.Stage == progress.StageLocatorError:
		s.locators.WithLabelValues("error").Inc()
	case evt.Stage == progress.StageRunStart:
		s.runsStarted.Inc()
		s.runsRunning.Inc()
	case evt.Stage == progress.StageRunDone:
		s.finishRun(evt, "success")
	case evt.Stage == progress.StageRunError:
		s.finishRun(evt, "error")
	}
}

func (s *PrometheusSink) handleAttempt(evt progress.Event) {
	outcome := strings.ToLower(strings.TrimPrefix(string(evt.Stage), "ATTEMPT_"))
	s.attempts.WithLabelValues(evt.Backend, outcome).Inc()
	if evt.Dur > 0 {
		s.attemptDuration.WithLabelValues(evt.Backend).Observe(evt.Dur.Seconds())
	}
	if evt.Backoff > 0 {
		s.backoffSeconds.Observe(evt.Backoff.Seconds())
	}
}

func (s *PrometheusSink) finishRun(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(result).Inc()
	s.runsRunning.Dec()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
