package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/edital-crawler/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	batch := []progress.Event{
		{RunID: "run-1", TS: now, Stage: progress.StageRunStart},
		{TS: now, Stage: progress.StageAttemptQuota, Backend: "gemini-2.5-flash", Dur: time.Second, Backoff: 2 * time.Second},
		{TS: now, Stage: progress.StageAttemptNotFound, Backend: "gemini-2.0-flash", Dur: 100 * time.Millisecond},
		{TS: now, Stage: progress.StageAttemptSuccess, Backend: "gemini-1.5-flash", Dur: 3 * time.Second},
		{TS: now, Stage: progress.StageLocatorDone, Locator: "https://example.com", Op: "inserted"},
		{RunID: "run-1", TS: now, Stage: progress.StageRunDone, Dur: 10 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.attempts.WithLabelValues("gemini-2.5-flash", "quota")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.attempts.WithLabelValues("gemini-2.0-flash", "not_found")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.attempts.WithLabelValues("gemini-1.5-flash", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.locators.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.upserts.WithLabelValues("inserted")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.backoffSeconds, "edital_backoff_delay_seconds"))
	require.Equal(t, 3, testutil.CollectAndCount(sink.attemptDuration, "edital_backend_attempt_duration_seconds"))
	require.NoError(t, sink.Close(context.Background()))
}

// TestPrometheusSinkRejectsDuplicateRegistration verifies registration errors surface.
func TestPrometheusSinkRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

// TestLogSinkLevels checks failures log at warn and successes at info.
func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))

	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: "run-1", Stage: progress.StageAttemptQuota, Backend: "b1", Backoff: time.Second},
		{RunID: "run-1", Stage: progress.StageAttemptSuccess, Backend: "b2"},
	})
	require.NoError(t, err)

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, zap.WarnLevel, entries[0].Level)
	require.Equal(t, "b1", entries[0].ContextMap()["backend"])
	require.Equal(t, zap.InfoLevel, entries[1].Level)
	require.NoError(t, sink.Close(context.Background()))
}
