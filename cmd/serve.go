package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/edital-crawler/internal/api"
	"github.com/JakeFAU/edital-crawler/internal/config"
	"github.com/JakeFAU/edital-crawler/internal/pipeline"
	"github.com/JakeFAU/edital-crawler/internal/server"
)

func (c *cli) newServeCmd() *cobra.Command {
	var (
		addr     string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and optionally run on an interval",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := c.app.Config()
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("interval") {
				cfg.Server.Interval = interval
			}
			return c.serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "trigger a run every interval (overrides server.interval)")
	return cmd
}

func (c *cli) serve(ctx context.Context, cfg config.Config) error {
	logger := c.app.Logger()
	locators := cfg.Pipeline.Locators
	if cfg.Server.Interval < 0 {
		return fmt.Errorf("%w: interval must be >= 0", config.ErrInvalid)
	}
	if cfg.Server.Interval > 0 && len(locators) == 0 {
		return fmt.Errorf("%w: periodic runs need pipeline.locators", config.ErrInvalid)
	}

	runs := c.app.Runs()
	handler := api.NewServer(
		ctx,
		runs,
		c.app.Ready,
		promhttp.HandlerFor(c.app.Registry(), promhttp.HandlerOpts{}),
		locators,
		logger.Named("api"),
		c.app.Metrics().Middleware,
	)

	return server.Run(ctx, server.Options{
		Addr:     cfg.Server.Addr,
		Handler:  handler.Handler(),
		Interval: cfg.Server.Interval,
		Tick: func(ctx context.Context) {
			_, err := runs.Run(ctx, locators)
			switch {
			case errors.Is(err, pipeline.ErrBusy):
				logger.Info("skipping periodic run; a run is already in progress")
			case err != nil:
				logger.Error("periodic run failed", zap.Error(err), zap.Int("exit_code", ExitCode(err)))
			}
		},
		Logger: logger.Named("server"),
	})
}
