// Package fetcher performs the crawler's HTTP GETs through colly and decides
// which URLs robots.txt lets it visit.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-genre-books/config"
)

// Fetcher issues one synchronous GET at a time.
type Fetcher struct {
	collector *colly.Collector
	headers   map[string]string
	retry     retryPolicy
	observer  RetryObserver
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithRetryObserver registers o to be told about retries.
func WithRetryObserver(o RetryObserver) Option {
	return func(f *Fetcher) {
		f.observer = o
	}
}

// WithTransport replaces the HTTP transport, e.g. with a mock in tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) {
		f.collector.WithTransport(rt)
	}
}

// New builds a Fetcher limited to the host of cfg.BaseURL.
func New(cfg *config.Config, opts ...Option) (*Fetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	// Synchronous is colly's default; Visit returns once the callbacks ran.
	collector := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	// robots.txt is enforced by RobotsPolicy before a URL reaches the fetcher.
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(newHTTPTransport(cfg.Timeout))

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	f := &Fetcher{
		collector: collector,
		headers:   cfg.Headers,
		retry: retryPolicy{
			maxRetries: cfg.MaxRetries,
			base:       cfg.RetryBackoff,
			max:        cfg.RetryBackoffMax,
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Fetch returns the body of rawURL. Transient failures are retried with
// capped exponential backoff; every other failure is returned at once as a
// *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	for attempt := 1; ; attempt++ {
		body, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil || !f.retry.allow(attempt, err) {
			return nil, err
		}

		delay := f.retry.backoff(attempt)
		slog.Debug("retrying fetch",
			slog.String("url", rawURL),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("category", ErrorKind(err)),
		)
		if f.observer != nil {
			f.observer.ObserveRetry(rawURL, attempt, err)
		}
		if serr := sleepWithContext(ctx, delay); serr != nil {
			return nil, err
		}
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		body       []byte
		statusCode int
		hookErr    error
	)
	c := f.collector.Clone()
	c.OnRequest(func(r *colly.Request) {
		for key, value := range f.headers {
			r.Headers.Set(key, value)
		}
	})
	c.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	c.OnError(func(r *colly.Response, err error) {
		hookErr = err
		if r != nil {
			statusCode = r.StatusCode
		}
	})

	done := make(chan error, 1)
	go func() {
		done <- c.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch %s canceled: %w", rawURL, ctx.Err())
	case err := <-done:
		if err == nil {
			err = hookErr
		}
		if classified := classify(rawURL, err, statusCode); classified != nil {
			return nil, classified
		}
		return body, nil
	}
}

func newHTTPTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}
