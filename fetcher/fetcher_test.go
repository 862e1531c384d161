package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/go-genre-books/config"
)

const pageURL = "http://books.test/book/show/1"

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://books.test"
	cfg.Timeout = time.Second
	cfg.MaxRetries = 0
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = 2 * time.Millisecond
	return cfg
}

func newTestFetcher(t *testing.T, cfg *config.Config, transport http.RoundTripper, opts ...Option) *Fetcher {
	t.Helper()
	f, err := New(cfg, append([]Option{WithTransport(transport)}, opts...)...)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	return f
}

type retryRecorder struct {
	mu       sync.Mutex
	attempts []int
}

func (r *retryRecorder) ObserveRetry(_ string, attempt int, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, attempt)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "ok status", err: nil, statusCode: http.StatusOK, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: errors.New("Not Found"), statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error", err: nil, statusCode: http.StatusBadGateway, expected: "http_status"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorKind(classify(pageURL, tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classify(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestErrorKindForeignError(t *testing.T) {
	if got := ErrorKind(fmt.Errorf("wrapped: %w", errors.New("boom"))); got != "other" {
		t.Fatalf("ErrorKind() = %q, want other", got)
	}
	wrapped := fmt.Errorf("book: %w", &FetchError{Kind: KindNotFound, URL: pageURL})
	if got := ErrorKind(wrapped); got != "not_found" {
		t.Fatalf("ErrorKind() = %q, want not_found", got)
	}
}

func TestFetchReturnsBodyAndSendsHeaders(t *testing.T) {
	cfg := testConfig()
	cfg.Headers = map[string]string{"Accept-Language": "en-US"}

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", pageURL, func(req *http.Request) (*http.Response, error) {
		if got := req.Header.Get("User-Agent"); got != cfg.UserAgent {
			return httpmock.NewStringResponse(http.StatusBadRequest, "bad agent "+got), nil
		}
		if got := req.Header.Get("Accept-Language"); got != "en-US" {
			return httpmock.NewStringResponse(http.StatusBadRequest, "missing header"), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, "<html><h1>Dune</h1></html>"), nil
	})

	f := newTestFetcher(t, cfg, transport)
	body, err := f.Fetch(context.Background(), pageURL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != "<html><h1>Dune</h1></html>" {
		t.Fatalf("body = %q", body)
	}
}

func TestFetchWaitsForResponse(t *testing.T) {
	goneURL := "http://books.test/book/show/2"
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", goneURL, httpmock.NewStringResponder(http.StatusNotFound, "gone"))
	transport.RegisterResponder("GET", pageURL, httpmock.NewStringResponder(http.StatusOK, "<h1>Dune</h1>"))

	f := newTestFetcher(t, testConfig(), transport)
	if f.collector.Async {
		t.Fatalf("collector must be synchronous")
	}

	body, err := f.Fetch(context.Background(), goneURL)
	if got := ErrorKind(err); got != "not_found" || body != nil {
		t.Fatalf("404 page: body=%q err=%v", body, err)
	}
	body, err = f.Fetch(context.Background(), pageURL)
	if err != nil || string(body) != "<h1>Dune</h1>" {
		t.Fatalf("200 page: body=%q err=%v", body, err)
	}
}

func TestFetchHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{status: http.StatusTooManyRequests, expected: "rate_limited"},
		{status: http.StatusForbidden, expected: "forbidden"},
		{status: http.StatusNotFound, expected: "not_found"},
		{status: http.StatusInternalServerError, expected: "http_status"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			cfg := testConfig()
			cfg.MaxRetries = 3

			transport := httpmock.NewMockTransport()
			transport.RegisterResponder("GET", pageURL, httpmock.NewStringResponder(tt.status, ""))

			f := newTestFetcher(t, cfg, transport)
			_, err := f.Fetch(context.Background(), pageURL)
			if got := ErrorKind(err); got != tt.expected {
				t.Fatalf("ErrorKind() = %q, want %q (err %v)", got, tt.expected, err)
			}
			var fetchErr *FetchError
			if !errors.As(err, &fetchErr) || fetchErr.StatusCode != tt.status || fetchErr.URL != pageURL {
				t.Fatalf("unexpected error detail: %#v", err)
			}
			if calls := transport.GetTotalCallCount(); calls != 1 {
				t.Fatalf("non-transient failures must not be retried, got %d calls", calls)
			}
		})
	}
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 2

	calls := 0
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", pageURL, func(*http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
		}
		return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
	})

	recorder := &retryRecorder{}
	f := newTestFetcher(t, cfg, transport, WithRetryObserver(recorder))
	body, err := f.Fetch(context.Background(), pageURL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != "ok" {
		t.Fatalf("body = %q", body)
	}
	if len(recorder.attempts) != 2 {
		t.Fatalf("observed retries = %v, want 2", recorder.attempts)
	}
}

func TestFetchGivesUpAfterMaxRetries(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", pageURL, httpmock.NewErrorResponder(&net.DNSError{IsTimeout: true}))

	f := newTestFetcher(t, cfg, transport)
	_, err := f.Fetch(context.Background(), pageURL)
	if got := ErrorKind(err); got != "timeout" {
		t.Fatalf("ErrorKind() = %q, want timeout (err %v)", got, err)
	}
	if calls := transport.GetTotalCallCount(); calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestFetchRejectsForeignDomain(t *testing.T) {
	transport := httpmock.NewMockTransport()
	f := newTestFetcher(t, testConfig(), transport)

	_, err := f.Fetch(context.Background(), "http://elsewhere.test/book/show/1")
	if err == nil {
		t.Fatalf("expected error for a host outside the base url")
	}
	if calls := transport.GetTotalCallCount(); calls != 0 {
		t.Fatalf("no request should be sent, got %d", calls)
	}
}

func TestFetchCanceledContext(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", pageURL, httpmock.NewStringResponder(http.StatusOK, "ok"))
	f := newTestFetcher(t, testConfig(), transport)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Fetch(ctx, pageURL); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRetryBackoffCapped(t *testing.T) {
	p := retryPolicy{maxRetries: 5, base: 200 * time.Millisecond, max: 500 * time.Millisecond}
	if got := p.backoff(1); got != 200*time.Millisecond {
		t.Fatalf("backoff(1) = %v", got)
	}
	if got := p.backoff(2); got != 400*time.Millisecond {
		t.Fatalf("backoff(2) = %v", got)
	}
	if got := p.backoff(4); got != p.max {
		t.Fatalf("backoff(4) = %v, want cap %v", got, p.max)
	}
}

func TestRetryPolicyAllow(t *testing.T) {
	p := retryPolicy{maxRetries: 1}
	transient := &FetchError{Kind: KindConnection}
	if !p.allow(1, transient) {
		t.Fatalf("first retry of a transient failure should be allowed")
	}
	if p.allow(2, transient) {
		t.Fatalf("retry beyond max should be refused")
	}
	if p.allow(1, &FetchError{Kind: KindRateLimited}) {
		t.Fatalf("rate limited responses must not be retried")
	}
}
