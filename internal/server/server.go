// Package server runs the HTTP listener and the optional periodic trigger
// for serve mode, and drains both on shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultShutdownTimeout bounds the graceful HTTP drain.
const DefaultShutdownTimeout = 10 * time.Second

// Options configures Run.
type Options struct {
	Addr    string
	Handler http.Handler
	// Listener overrides Addr when set.
	Listener net.Listener
	// Interval enables Tick when positive.
	Interval        time.Duration
	Tick            func(ctx context.Context)
	ShutdownTimeout time.Duration
	Logger          *zap.Logger
}

// Run serves HTTP until ctx is canceled or the listener fails. With a
// positive Interval, Tick is called once per interval in its own goroutine;
// a slow Tick delays the next one rather than overlapping it.
func Run(ctx context.Context, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Handler == nil {
		return errors.New("server: handler is required")
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}

	ln := opts.Listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", opts.Addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", opts.Addr, err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Handler:           opts.Handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	tickDone := make(chan struct{})
	go func() {
		defer close(tickDone)
		if opts.Interval <= 0 || opts.Tick == nil {
			return
		}
		logger.Info("periodic runs enabled", zap.Duration("interval", opts.Interval))
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				opts.Tick(ctx)
			}
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server error", zap.Error(err))
			runErr = fmt.Errorf("serve http: %w", err)
		}
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		if runErr == nil {
			runErr = fmt.Errorf("shutdown http: %w", err)
		}
	}
	<-tickDone
	logger.Info("shutdown complete")
	return runErr
}
