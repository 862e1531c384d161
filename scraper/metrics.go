package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for a crawl.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	PromotedTotal   *prometheus.CounterVec
	DiscardedTotal  *prometheus.CounterVec
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
	GenreCount      *prometheus.GaugeVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_requests_total",
			Help: "Total page fetches issued by the crawler.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crawler_request_duration_seconds",
			Help:    "Page fetch latency, retries included.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)
	promoted := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_books_promoted_total",
			Help: "Books accepted into a genre quota.",
		},
		[]string{"genre"},
	)
	discarded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_books_discarded_total",
			Help: "Extracted books that were not promoted, by reason.",
		},
		[]string{"reason"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_retries_total",
			Help: "Total number of fetch retries.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_errors_total",
			Help: "Total number of failed fetches by type.",
		},
		[]string{"error_type"},
	)
	genreCount := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crawler_genre_count",
			Help: "Books collected so far per genre.",
		},
		[]string{"genre"},
	)

	registry.MustRegister(requests, requestDuration, promoted, discarded, retries, errorsTotal, genreCount)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		PromotedTotal:   promoted,
		DiscardedTotal:  discarded,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
		GenreCount:      genreCount,
	}
}

// ObserveRequest counts a fetch and records its duration.
func (m *Metrics) ObserveRequest(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
	m.RequestDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// IncPromoted counts a promoted book and updates the genre gauge.
func (m *Metrics) IncPromoted(genre string, count int) {
	if m == nil {
		return
	}
	m.PromotedTotal.WithLabelValues(genre).Inc()
	m.GenreCount.WithLabelValues(genre).Set(float64(count))
}

// IncDiscarded increments the discarded counter for a reason.
func (m *Metrics) IncDiscarded(reason string) {
	if m == nil {
		return
	}
	m.DiscardedTotal.WithLabelValues(reason).Inc()
}

// ObserveRetry implements fetcher.RetryObserver.
func (m *Metrics) ObserveRetry(string, int, error) {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
