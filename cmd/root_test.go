package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/edital-crawler/internal/app"
	"github.com/JakeFAU/edital-crawler/internal/config"
	"github.com/JakeFAU/edital-crawler/internal/edital"
	"github.com/JakeFAU/edital-crawler/internal/fetcher/static"
	"github.com/JakeFAU/edital-crawler/internal/pipeline"
)

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
		Archive:   config.ArchiveConfig{Provider: "none"},
		Publisher: config.PublisherConfig{Provider: "none"},
		Server:    config.ServerConfig{Addr: "127.0.0.1:0"},
	}
}

type failingRecorder struct{}

func (failingRecorder) Upsert(_ context.Context, rec edital.Record) (edital.UpsertResult, error) {
	return edital.UpsertResult{}, &edital.StoreError{Op: "upsert", Key: rec.Key(), Err: errors.New("disk full")}
}

func (failingRecorder) Ping(context.Context) error { return nil }

// testCLI returns a cli whose collaborators never touch the network.
func testCLI(cfg config.Config, opts ...app.Option) (*cli, *int) {
	builds := 0
	c := newCLI()
	c.loadConfig = func(string) (config.Config, error) { return cfg, nil }
	c.newLogger = func(config.Config) (*zap.Logger, error) { return zap.NewNop(), nil }
	c.newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
		builds++
		return app.Build(ctx, cfg, logger, opts...)
	}
	return c, &builds
}

func runCLI(t *testing.T, c *cli, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := c.newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	c.close()
	return stdout.String(), stderr.String(), ExitCode(err)
}

func TestRunCommandPrintsSummary(t *testing.T) {
	t.Parallel()

	c, _ := testCLI(offlineConfig())
	out, _, code := runCLI(t, c, "run", "https://example.com/enare")
	require.Equal(t, ExitOK, code)
	assert.True(t, strings.HasPrefix(out, "inserted\tENARE/"), "unexpected output %q", out)
	assert.Contains(t, out, "https://example.com/enare")
}

func TestRunCommandJSON(t *testing.T) {
	t.Parallel()

	c, _ := testCLI(offlineConfig())
	out, _, code := runCLI(t, c, "run", "--json", "https://example.com/a", "https://example.com/b")
	require.Equal(t, ExitOK, code)

	var summary pipeline.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	require.Len(t, summary.Results, 2)
	assert.Equal(t, edital.OpInserted, summary.Results[0].Upsert.Op)
	// Both locators resolve to the same natural key.
	assert.Equal(t, edital.OpUpdated, summary.Results[1].Upsert.Op)
	assert.Equal(t, summary.Results[0].Upsert.ID, summary.Results[1].Upsert.ID)
	assert.Equal(t, "https://example.com/b", summary.Results[1].Record.Link)
}

func TestRunCommandUsesConfiguredLocators(t *testing.T) {
	t.Parallel()

	cfg := offlineConfig()
	cfg.Pipeline.Locators = []string{"https://example.com/from-config"}
	c, _ := testCLI(cfg)
	out, _, code := runCLI(t, c, "run")
	require.Equal(t, ExitOK, code)
	assert.Contains(t, out, "https://example.com/from-config")
}

func TestRunCommandWithoutLocatorsFailsBeforeBuild(t *testing.T) {
	t.Parallel()

	c, builds := testCLI(offlineConfig())
	_, _, code := runCLI(t, c, "run")
	assert.Equal(t, ExitConfig, code)
	assert.Zero(t, *builds, "app must not be built without locators")
}

func TestRunCommandFetchFailure(t *testing.T) {
	t.Parallel()

	c, _ := testCLI(offlineConfig(), app.WithFetcher(static.New(nil, "")))
	out, _, code := runCLI(t, c, "run", "https://example.com/missing")
	assert.Equal(t, ExitExtraction, code)
	assert.Empty(t, out)
}

func TestRunCommandStoreFailure(t *testing.T) {
	t.Parallel()

	c, _ := testCLI(offlineConfig(), app.WithRecorder(failingRecorder{}))
	_, _, code := runCLI(t, c, "run", "https://example.com/enare")
	assert.Equal(t, ExitStore, code)
}

func TestExecuteReportsConfigErrors(t *testing.T) {
	t.Parallel()

	c := newCLI()
	c.loadConfig = func(string) (config.Config, error) {
		return config.Config{}, config.ErrInvalid
	}
	assert.Equal(t, ExitConfig, c.execute(context.Background(), []string{"run", "https://example.com"}))
}

func TestUnknownFlagIsConfigError(t *testing.T) {
	t.Parallel()

	c, builds := testCLI(offlineConfig())
	_, _, code := runCLI(t, c, "run", "--no-such-flag")
	assert.Equal(t, ExitConfig, code)
	assert.Zero(t, *builds)
}

func TestSchemaCommandSkipsConfig(t *testing.T) {
	t.Parallel()

	c := newCLI()
	c.loadConfig = func(string) (config.Config, error) {
		t.Fatal("schema must not load configuration")
		return config.Config{}, nil
	}
	out, _, code := runCLI(t, c, "schema")
	require.Equal(t, ExitOK, code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok, "schema has no properties: %s", out)
	assert.Contains(t, props, "instituicao")
	assert.Contains(t, props, "previsto")

	out, _, code = runCLI(t, c, "schema", "--fields")
	require.Equal(t, ExitOK, code)
	assert.Contains(t, out, "- especialidade")
}
