// Package models defines data structures for the crawler.
package models

import (
	"net/url"
	"strings"
	"time"
)

// Book is one extracted book record. Empty strings mean the field was not found.
type Book struct {
	Title       string `csv:"title" json:"title"`
	Author      string `csv:"author" json:"author"`
	URL         string `csv:"url" json:"url"`
	Description string `csv:"description" json:"description"`
	Rating      string `csv:"rating" json:"rating"`
	Genre       string `csv:"genre" json:"genre"`

	// GenreLabels holds the raw genre link texts found on the page. It feeds
	// classification and is never persisted.
	GenreLabels []string `csv:"-" json:"-"`
}

// DedupKey identifies a record: its source URL, with scheme and host folded
// to lower case, together with its title and author.
func (b *Book) DedupKey() string {
	return strings.Join([]string{
		canonicalURL(b.URL),
		strings.ToLower(strings.TrimSpace(b.Title)),
		strings.ToLower(strings.TrimSpace(b.Author)),
	}, "|")
}

func canonicalURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String()
}

// Close reasons reported for a genre.
const (
	ReasonReachedTarget = "reached_target"
	ReasonExhausted     = "exhausted"
	ReasonIndexFailed   = "index_failed"
	ReasonNoIndexPages  = "no_index_pages"
)

// GenreReport summarises how collection ended for one genre.
type GenreReport struct {
	Genre     string `json:"genre"`
	Count     int    `json:"count"`
	Target    int    `json:"target"`
	Reason    string `json:"reason"`
	Shortfall int    `json:"shortfall"`
}

// ReachedTarget reports whether the genre closed with a full quota.
func (g GenreReport) ReachedTarget() bool {
	return g.Reason == ReasonReachedTarget
}

// ScraperResult holds the overall result of a crawl run.
type ScraperResult struct {
	Books            []*Book
	Genres           []GenreReport
	StartTime        time.Time
	EndTime          time.Time
	TotalCount       int
	IndexPages       int
	SkippedIndexURLs []string
	RequestCount     int
	ErrorCount       int
	ErrorsByType     map[string]int
	FailedURLs       []string
	DisallowedURLs   []string
	Discarded        map[string]int
	Interrupted      bool
}

// Report converts the result into the summary consumed by dashboards and schedulers.
func (r *ScraperResult) Report() RunReport {
	genres := make([]GenreReport, len(r.Genres))
	copy(genres, r.Genres)
	return RunReport{
		LastRun:    r.EndTime,
		TotalBooks: r.TotalCount,
		Genres:     genres,
	}
}

// RunReport is the persisted summary of the last completed run.
type RunReport struct {
	LastRun    time.Time     `json:"last_run"`
	TotalBooks int           `json:"total_books"`
	Genres     []GenreReport `json:"genres"`
}
