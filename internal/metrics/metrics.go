// Package metrics exposes Prometheus collectors for the HTTP API and for
// page fetches. Collectors register against a caller-supplied registry.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/edital-crawler/internal/edital"
)

// Collectors groups the HTTP and fetch metrics.
type Collectors struct {
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	fetchTotal                 *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) (*Collectors, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collectors{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		),
		httpRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		),
		fetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edital_fetch_total",
				Help: "Total number of page fetches, labeled by site and status.",
			},
			[]string{"site", "status"},
		),
		fetchBytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edital_fetch_bytes_total",
				Help: "Total bytes of text extracted from fetched pages, labeled by site.",
			},
			[]string{"site"},
		),
		fetchDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edital_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by site.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		),
		rateLimitDelaySeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edital_fetch_rate_limit_delay_seconds",
				Help:    "Histogram of per-host rate limit waits before a fetch.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		),
	}
	for _, col := range []prometheus.Collector{
		c.httpRequestsTotal,
		c.httpRequestDurationSeconds,
		c.fetchTotal,
		c.fetchBytesTotal,
		c.fetchDurationSeconds,
		c.rateLimitDelaySeconds,
	} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("register metrics collector: %w", err)
		}
	}
	return c, nil
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func (c *Collectors) ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, fmt.Sprint(code)).Inc()
	c.httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveFetch records one fetch outcome.
func (c *Collectors) ObserveFetch(locator, status string, textBytes int, duration time.Duration) {
	site := SanitizeSite(locator)
	c.fetchTotal.WithLabelValues(site, status).Inc()
	if textBytes > 0 {
		c.fetchBytesTotal.WithLabelValues(site).Add(float64(textBytes))
	}
	c.fetchDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records how long a fetch waited for its host's token.
func (c *Collectors) ObserveRateLimitDelay(host string, waited time.Duration) {
	c.rateLimitDelaySeconds.WithLabelValues(SanitizeSite(host)).Observe(waited.Seconds())
}

// InstrumentFetcher wraps f so every fetch is observed.
func (c *Collectors) InstrumentFetcher(f edital.Fetcher) edital.Fetcher {
	return &instrumentedFetcher{next: f, metrics: c}
}

type instrumentedFetcher struct {
	next    edital.Fetcher
	metrics *Collectors
}

func (f *instrumentedFetcher) Fetch(ctx context.Context, locator string) (string, error) {
	start := time.Now()
	text, err := f.next.Fetch(ctx, locator)
	f.metrics.ObserveFetch(locator, fetchStatus(err), len(text), time.Since(start))
	return text, err
}

func fetchStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
