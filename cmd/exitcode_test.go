package cmd

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/JakeFAU/edital-crawler/internal/config"
	"github.com/JakeFAU/edital-crawler/internal/edital"
	"github.com/JakeFAU/edital-crawler/internal/pipeline"
)

func TestExitCode(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "success", err: nil, want: ExitOK},
		{name: "invalid config", err: fmt.Errorf("%w: no locators", config.ErrInvalid), want: ExitConfig},
		{name: "fetch failure", err: &pipeline.LocatorError{Locator: "l", Stage: pipeline.StageFetch, Err: boom}, want: ExitExtraction},
		{name: "extract failure", err: &pipeline.LocatorError{Locator: "l", Stage: pipeline.StageExtract, Err: boom}, want: ExitExtraction},
		{name: "store failure", err: &pipeline.LocatorError{Locator: "l", Stage: pipeline.StageStore, Err: boom}, want: ExitStore},
		{name: "store connect", err: fmt.Errorf("initialize application services: %w", &edital.StoreError{Op: "connect", Err: boom}), want: ExitStore},
		{name: "canceled", err: fmt.Errorf("run canceled: %w", context.Canceled), want: ExitExtraction},
		{name: "unknown setup error", err: boom, want: ExitConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ExitCode(tt.err); got != tt.want {
				t.Fatalf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
