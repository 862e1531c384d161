package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/temoto/robotstxt"
)

// Policy decides whether a URL may be fetched.
type Policy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// AllowAll permits every URL.
type AllowAll struct{}

// Allowed implements Policy.
func (AllowAll) Allowed(context.Context, string) bool { return true }

// RobotsPolicy enforces robots.txt per host. A robots.txt that is missing or
// cannot be fetched allows everything.
type RobotsPolicy struct {
	client    *http.Client
	cache     *lru.Cache[string, *robotstxt.RobotsData]
	userAgent string
}

// NewRobotsPolicy returns AllowAll when respect is false.
func NewRobotsPolicy(respect bool, userAgent string, cacheSize int, transport http.RoundTripper) (Policy, error) {
	if !respect {
		return AllowAll{}, nil
	}
	if cacheSize <= 0 {
		cacheSize = 64
	}
	cache, err := lru.New[string, *robotstxt.RobotsData](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("robots cache: %w", err)
	}
	return &RobotsPolicy{
		client:    &http.Client{Timeout: 10 * time.Second, Transport: transport},
		cache:     cache,
		userAgent: userAgent,
	}, nil
}

// Allowed implements Policy.
func (r *RobotsPolicy) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}
	data, err := r.load(ctx, parsed)
	if err != nil {
		slog.Warn("robots fetch failed; allowing access",
			slog.String("host", parsed.Host),
			slog.Any("error", err),
		)
		return true
	}
	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	return data.TestAgent(path, r.userAgent)
}

func (r *RobotsPolicy) load(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	hostKey := strings.ToLower(parsed.Scheme + "://" + parsed.Host)
	if data, ok := r.cache.Get(hostKey); ok {
		return data, nil
	}

	robotsURL := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/robots.txt"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer resp.Body.Close()

	// Server errors are not cached so a later URL gets another chance.
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("fetch robots: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	r.cache.Add(hostKey, data)
	return data, nil
}
