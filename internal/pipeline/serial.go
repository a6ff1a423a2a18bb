package pipeline

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrBusy is returned when a run is requested while another is in progress.
var ErrBusy = errors.New("a run is already in progress")

// Runner executes one run over a list of locators.
type Runner interface {
	Run(ctx context.Context, locators []string) (Summary, error)
}

// Status reports whether a run is active and how the last one ended.
type Status struct {
	Running bool     `json:"running"`
	Last    *Summary `json:"last,omitempty"`
}

// Serial guarantees runs never overlap. Requests that arrive while a run is
// active are rejected with ErrBusy rather than queued.
type Serial struct {
	runner Runner
	logger *zap.Logger

	busy sync.Mutex
	wg   sync.WaitGroup

	mu      sync.RWMutex
	running bool
	last    *Summary
}

// NewSerial wraps runner.
func NewSerial(runner Runner, logger *zap.Logger) *Serial {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Serial{runner: runner, logger: logger}
}

// Run executes a run in the caller's goroutine.
func (s *Serial) Run(ctx context.Context, locators []string) (Summary, error) {
	if !s.busy.TryLock() {
		return Summary{}, ErrBusy
	}
	defer s.busy.Unlock()
	return s.run(ctx, locators)
}

// Start launches a run in the background. ctx should outlive the caller's
// request; Wait blocks until background runs finish.
func (s *Serial) Start(ctx context.Context, locators []string) error {
	if !s.busy.TryLock() {
		return ErrBusy
	}
	s.setRunning()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.busy.Unlock()
		if _, err := s.run(ctx, locators); err != nil {
			s.logger.Warn("background run failed", zap.Error(err))
		}
	}()
	return nil
}

// Wait blocks until every background run has returned.
func (s *Serial) Wait() {
	s.wg.Wait()
}

// Status returns a snapshot of the run state.
func (s *Serial) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{Running: s.running}
	if s.last != nil {
		last := *s.last
		st.Last = &last
	}
	return st
}

func (s *Serial) setRunning() {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
}

func (s *Serial) run(ctx context.Context, locators []string) (Summary, error) {
	s.setRunning()
	summary, err := s.runner.Run(ctx, locators)

	s.mu.Lock()
	s.running = false
	s.last = &summary
	s.mu.Unlock()
	return summary, err
}
