package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind labels a fetch failure.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindConnection  Kind = "connection"
	KindForbidden   Kind = "forbidden"
	KindNotFound    Kind = "not_found"
	KindRateLimited Kind = "rate_limited"
	KindHTTPStatus  Kind = "http_status"
	KindOther       Kind = "other"
)

// FetchError describes a failed page fetch.
type FetchError struct {
	Kind       Kind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: GET %s: status %d: %v", e.Kind, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: GET %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Transient reports whether another attempt might succeed.
func (e *FetchError) Transient() bool {
	return e.Kind == KindTimeout || e.Kind == KindConnection
}

// ErrorKind returns the label used in logs, metrics and result counters.
func ErrorKind(err error) string {
	if err == nil {
		return "unknown"
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return string(fetchErr.Kind)
	}
	return string(KindOther)
}

// IsTransient reports whether err is a retryable fetch failure.
func IsTransient(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr) && fetchErr.Transient()
}

// classify converts a transport error and/or response status into a
// *FetchError. It returns nil for a successful exchange.
func classify(rawURL string, err error, statusCode int) error {
	if err == nil && (statusCode == 0 || statusCode < http.StatusMultipleChoices) {
		return nil
	}
	kind := classifyKind(err, statusCode)
	if err == nil {
		err = errors.New(http.StatusText(statusCode))
	}
	return &FetchError{Kind: kind, URL: rawURL, StatusCode: statusCode, Err: err}
}

func classifyKind(err error, statusCode int) Kind {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return KindTimeout
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return KindTimeout
		}
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return KindConnection
		}
	}

	switch {
	case statusCode == http.StatusForbidden:
		return KindForbidden
	case statusCode == http.StatusNotFound:
		return KindNotFound
	case statusCode == http.StatusTooManyRequests:
		return KindRateLimited
	case statusCode >= http.StatusMultipleChoices:
		return KindHTTPStatus
	}
	return KindOther
}
