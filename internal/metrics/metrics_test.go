package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/JakeFAU/edital-crawler/internal/fetcher/static"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestNewRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := New(reg); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestInstrumentFetcher(t *testing.T) {
	c, err := New(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f := c.InstrumentFetcher(static.New(map[string]string{"https://Site.example/a": "edital"}, ""))

	text, err := f.Fetch(context.Background(), "https://Site.example/a")
	if err != nil || text != "edital" {
		t.Fatalf("Fetch() = %q, %v", text, err)
	}
	if _, err := f.Fetch(context.Background(), "https://site.example/missing"); !errors.Is(err, static.ErrNoPage) {
		t.Fatalf("expected ErrNoPage, got %v", err)
	}

	if val := testutil.ToFloat64(c.fetchTotal.WithLabelValues("site.example", "ok")); val != 1 {
		t.Errorf("expected one ok fetch, got %f", val)
	}
	if val := testutil.ToFloat64(c.fetchTotal.WithLabelValues("site.example", "error")); val != 1 {
		t.Errorf("expected one failed fetch, got %f", val)
	}
	if val := testutil.ToFloat64(c.fetchBytesTotal.WithLabelValues("site.example")); val != 6 {
		t.Errorf("expected 6 bytes, got %f", val)
	}
}

func TestFetchStatus(t *testing.T) {
	cases := map[string]error{
		"ok":       nil,
		"timeout":  context.DeadlineExceeded,
		"canceled": context.Canceled,
		"error":    errors.New("boom"),
	}
	for want, err := range cases {
		if got := fetchStatus(err); got != want {
			t.Errorf("fetchStatus(%v) = %q; want %q", err, got, want)
		}
	}
	c, _ := New(prometheus.NewRegistry())
	c.ObserveFetch("https://x.example", "ok", 0, time.Millisecond)
	if val := testutil.ToFloat64(c.fetchBytesTotal.WithLabelValues("x.example")); val != 0 {
		t.Errorf("expected no bytes recorded, got %f", val)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}

func TestObserveRateLimitDelay(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	c.ObserveRateLimitDelay("Example.com", 250*time.Millisecond)

	if got := testutil.CollectAndCount(c.rateLimitDelaySeconds, "edital_fetch_rate_limit_delay_seconds"); got != 1 {
		t.Fatalf("expected one series, got %d", got)
	}
}
