// Package collyfetcher implements edital.Fetcher using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// DefaultTimeout applies when Config.Timeout is unset.
const DefaultTimeout = 15 * time.Second

// ErrEmptyBody is returned when a page yields no text.
var ErrEmptyBody = errors.New("page has no text content")

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	Headers       http.Header
}

// Fetcher retrieves a page and reduces it to plain text.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
	logger    *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:       cfg,
		transport: newHTTPTransport(),
		logger:    logger.Named("fetcher"),
	}
}

// Fetch executes a single HTTP GET using Colly and returns the page text.
func (f *Fetcher) Fetch(ctx context.Context, locator string) (string, error) {
	var (
		page     fetchedPage
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector()
	f.configureCollectorHooks(collector, &page, &fetchErr)

	if err := f.runCollector(ctx, collector, locator, &fetchErr); err != nil {
		return "", err
	}
	text, err := page.text()
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", locator, err)
	}
	f.logger.Debug("page fetched",
		zap.String("locator", locator),
		zap.Int("status", page.status),
		zap.Int("bytes", len(page.body)),
		zap.Duration("dur", time.Since(start)),
	)
	return text, nil
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.WithTransport(f.transport)
	return collector
}

type fetchedPage struct {
	status      int
	contentType string
	body        []byte
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, page *fetchedPage, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range f.cfg.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*page = fetchedPage{
			status: r.StatusCode,
			body:   append([]byte(nil), r.Body...),
		}
		if r.Headers != nil {
			page.contentType = r.Headers.Get("Content-Type")
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func (p fetchedPage) text() (string, error) {
	var text string
	if strings.Contains(strings.ToLower(p.contentType), "html") {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.body))
		if err != nil {
			return "", fmt.Errorf("parse html: %w", err)
		}
		doc.Find("script, style, noscript, template").Remove()
		text = doc.Find("body").Text()
		if strings.TrimSpace(text) == "" {
			text = doc.Text()
		}
	} else {
		text = string(p.body)
	}
	text = collapseWhitespace(text)
	if text == "" {
		return "", ErrEmptyBody
	}
	return text, nil
}

// collapseWhitespace squeezes runs of blanks inside each line and drops empty lines.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if fields := strings.Fields(line); len(fields) > 0 {
			out = append(out, strings.Join(fields, " "))
		}
	}
	return strings.Join(out, "\n")
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
