package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/edital-crawler/internal/app"
	"github.com/JakeFAU/edital-crawler/internal/config"
	"github.com/JakeFAU/edital-crawler/internal/logging"
)

const (
	// annotationSkipApp marks commands that run without configuration.
	annotationSkipApp = "edital/skip-app"
	// annotationLocators marks commands that need at least one locator.
	annotationLocators = "edital/locators"
)

// cli carries state shared by the commands of one invocation.
type cli struct {
	cfgFile string
	app     *app.App

	// Replaced in tests.
	loadConfig func(path string) (config.Config, error)
	newLogger  func(cfg config.Config) (*zap.Logger, error)
	newApp     func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error)
}

func newCLI() *cli {
	return &cli{
		loadConfig: config.Load,
		newLogger: func(cfg config.Config) (*zap.Logger, error) {
			return logging.New(cfg.Logging.Development, cfg.Logging.Level)
		},
		newApp: func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
			return app.Build(ctx, cfg, logger)
		},
	}
}

// newRootCmd creates the root command and its subcommands.
func (c *cli) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edital",
		Short: "Extracts medical residency notices into structured records.",
		Long: `edital fetches pages describing medical residency admission notices,
asks an ordered chain of language-model backends to turn the text into a
structured record, and upserts the record keyed by institution and specialty.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.preRun,
	}
	cmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "optional YAML config file")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	})

	cmd.AddCommand(c.newRunCmd(), c.newServeCmd(), newSchemaCmd())
	return cmd
}

// preRun loads configuration and builds the app before any locator is touched.
func (c *cli) preRun(cmd *cobra.Command, args []string) error {
	if cmd.Annotations[annotationSkipApp] == "true" {
		return nil
	}
	cfg, err := c.loadConfig(c.cfgFile)
	if err != nil {
		return err
	}
	if cmd.Annotations[annotationLocators] == "required" {
		if _, err := cfg.Locators(args); err != nil {
			return err
		}
	}
	logger, err := c.newLogger(cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	c.app, err = c.newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}
	return nil
}

func (c *cli) close() {
	if c.app == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.app.Close(ctx); err != nil {
		c.app.Logger().Warn("shutdown failed", zap.Error(err))
	}
	c.app = nil
}

// execute runs the command tree and returns the process exit code.
func (c *cli) execute(ctx context.Context, args []string) int {
	root := c.newRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	c.close()
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(root.ErrOrStderr(), "edital: %v\n", err)
	}
	return ExitCode(err)
}

// Execute is the main entry point. It returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return newCLI().execute(ctx, os.Args[1:])
}
