// Package app_test contains unit tests for the app package.
package app_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/edital-crawler/internal/app"
	"github.com/JakeFAU/edital-crawler/internal/config"
	"github.com/JakeFAU/edital-crawler/internal/edital"
	"github.com/JakeFAU/edital-crawler/internal/fetcher/static"
)

// MockRecorder mocks the app.Recorder interface.
type MockRecorder struct {
	mock.Mock
}

// Upsert satisfies edital.Recorder for the mock.
func (m *MockRecorder) Upsert(ctx context.Context, rec edital.Record) (edital.UpsertResult, error) {
	args := m.Called(ctx, rec)
	return args.Get(0).(edital.UpsertResult), args.Error(1)
}

// Ping satisfies app.Recorder for the mock.
func (m *MockRecorder) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// offlineConfig needs no network: rules backend, static fetcher, memory store.
func offlineConfig() config.Config {
	return config.Config{
		LLM: config.LLMConfig{
			Backends:    []string{"rules:v1"},
			CallTimeout: time.Second,
			BackoffBase: time.Millisecond,
			BackoffMax:  time.Millisecond,
		},
		Fetcher:   config.FetcherConfig{Provider: "static", Timeout: time.Second},
		Store:     config.StoreConfig{Provider: "memory", OpTimeout: time.Second},
		Archive:   config.ArchiveConfig{Provider: "memory", Prefix: "sources"},
		Publisher: config.PublisherConfig{Provider: "memory", Topic: "editais"},
		Server:    config.ServerConfig{Addr: ":0"},
	}
}

func TestBuildOfflineRunsSample(t *testing.T) {
	t.Parallel()

	a, err := app.Build(context.Background(), offlineConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	require.NoError(t, a.Ready(context.Background()))

	summary, err := a.Pipeline().Run(context.Background(), []string{"https://example.com/enare"})
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	rec := summary.Results[0].Record
	assert.Equal(t, "ENARE", rec.Institution)
	assert.Equal(t, "https://example.com/enare", rec.Link)
	assert.True(t, strings.HasPrefix(summary.Results[0].SourceURI, "memory://sources/"))
	assert.NotEmpty(t, summary.Results[0].NotificationID)

	count, err := testutil.GatherAndCount(a.Registry(), "edital_runs_started_total", "edital_backend_attempts_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestBuildWithOverrides(t *testing.T) {
	t.Parallel()

	recorder := &MockRecorder{}
	recorder.On("Ping", mock.Anything).Return(errors.New("connection refused"))
	recorder.On("Upsert", mock.Anything, mock.MatchedBy(func(r edital.Record) bool {
		return r.Institution == "HCFMUSP"
	})).Return(edital.UpsertResult{ID: "row-1", Op: edital.OpInserted}, nil)

	notice := `EDITAL Nº 12/2026 do HCFMUSP
Serão oferecidas 20 vagas de Cardiologia.`
	cfg := offlineConfig()
	cfg.Archive.Provider = "none"
	cfg.Publisher.Provider = "none"
	a, err := app.Build(context.Background(), cfg, nil,
		app.WithFetcher(static.New(map[string]string{"hc": notice}, "")),
		app.WithRecorder(recorder),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	assert.ErrorContains(t, a.Ready(context.Background()), "connection refused")

	summary, err := a.Runs().Run(context.Background(), []string{"hc"})
	require.NoError(t, err)
	assert.Equal(t, "row-1", summary.Results[0].Upsert.ID)
	assert.False(t, summary.Results[0].Record.Projected)
	assert.Empty(t, summary.Results[0].SourceURI)
	recorder.AssertExpectations(t)
}

func TestBuildLocalArchive(t *testing.T) {
	t.Parallel()

	cfg := offlineConfig()
	cfg.Archive = config.ArchiveConfig{Provider: "local", BaseDir: filepath.Join(t.TempDir(), "archive")}
	a, err := app.Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	summary, err := a.Pipeline().Run(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(summary.Results[0].SourceURI, "file://"))
}

func TestBuildFailsWithoutReachableStore(t *testing.T) {
	t.Parallel()

	cfg := offlineConfig()
	cfg.Store = config.StoreConfig{
		Provider:        "postgres",
		DSN:             "postgres://edital@127.0.0.1:1/edital?connect_timeout=1",
		Password:        "pw",
		Table:           "editais",
		MaxConns:        1,
		ConnectAttempts: 1,
		ConnectDelay:    time.Millisecond,
		OpTimeout:       time.Second,
	}
	_, err := app.Build(context.Background(), cfg, nil)
	var storeErr *edital.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "connect", storeErr.Op)
}
