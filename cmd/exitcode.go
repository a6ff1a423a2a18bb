package cmd

import (
	"context"
	"errors"

	"github.com/JakeFAU/edital-crawler/internal/config"
	"github.com/JakeFAU/edital-crawler/internal/edital"
	"github.com/JakeFAU/edital-crawler/internal/pipeline"
)

// Process exit codes.
const (
	ExitOK         = 0
	ExitConfig     = 1
	ExitExtraction = 2
	ExitStore      = 3
)

// ExitCode maps a command error onto the process exit code. Fetch failures
// and cancellation count as extraction failures; setup errors that are not
// persistence failures count as configuration errors.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, config.ErrInvalid) {
		return ExitConfig
	}
	var storeErr *edital.StoreError
	if errors.As(err, &storeErr) {
		return ExitStore
	}
	var locErr *pipeline.LocatorError
	if errors.As(err, &locErr) {
		if locErr.Stage == pipeline.StageStore {
			return ExitStore
		}
		return ExitExtraction
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ExitExtraction
	}
	return ExitConfig
}
