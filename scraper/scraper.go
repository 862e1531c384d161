// Package scraper walks genre index pages and collects a fixed number of
// books per allowed genre.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-genre-books/config"
	"github.com/aluiziolira/go-genre-books/fetcher"
	"github.com/aluiziolira/go-genre-books/genre"
	"github.com/aluiziolira/go-genre-books/models"
	"github.com/aluiziolira/go-genre-books/parser"
)

// Discard reasons for extracted books that were not promoted.
const (
	DiscardNoGenre       = "no_genre"
	DiscardGenreMismatch = "genre_mismatch"
	DiscardDuplicate     = "duplicate"
)

// Fetcher returns the body of a page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Sink receives promoted books as they are accepted.
type Sink interface {
	Process(books ...*models.Book) error
}

// PauseFunc waits d or until ctx is done.
type PauseFunc func(ctx context.Context, d time.Duration) error

// Option customises a Scraper.
type Option func(*Scraper)

// WithPolicy sets the robots policy consulted before every fetch.
func WithPolicy(p fetcher.Policy) Option {
	return func(s *Scraper) { s.policy = p }
}

// WithSink streams promoted books to sink.
func WithSink(sink Sink) Option {
	return func(s *Scraper) { s.sink = sink }
}

// WithExtractor replaces the default field extractor.
func WithExtractor(e *parser.Extractor) Option {
	return func(s *Scraper) { s.extractor = e }
}

// WithPause replaces the courtesy delay, e.g. with a no-op in tests.
func WithPause(p PauseFunc) Option {
	return func(s *Scraper) { s.pause = p }
}

// WithMetrics replaces the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(s *Scraper) { s.Metrics = m }
}

// Scraper is the sequential crawl orchestrator. It is not safe for
// concurrent use; every fetch completes before the next begins.
type Scraper struct {
	cfg       *config.Config
	genres    genre.Set
	fetcher   Fetcher
	policy    fetcher.Policy
	sink      Sink
	extractor *parser.Extractor
	pause     PauseFunc
	Metrics   *Metrics
}

// NewScraper builds a scraper for cfg.AllowedGenres with a quota of cfg.Target.
func NewScraper(cfg *config.Config, f Fetcher, opts ...Option) (*Scraper, error) {
	if f == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	genres := genre.NewSet(cfg.AllowedGenres...)
	if genres.Len() == 0 {
		return nil, fmt.Errorf("no allowed genres configured")
	}
	if cfg.Target <= 0 {
		return nil, fmt.Errorf("target must be positive")
	}

	s := &Scraper{
		cfg:       cfg,
		genres:    genres,
		fetcher:   f,
		policy:    fetcher.AllowAll{},
		extractor: parser.NewExtractor(),
		pause:     sleep,
		Metrics:   NewMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// run is the state of a single Run call.
type run struct {
	board      *quotaBoard
	seen       map[string]struct{}
	result     *models.ScraperResult
	indexCount int
}

// Run processes indexURLs in order until every genre is closed or the list
// runs out. Failures on single pages never abort the run. When ctx is
// canceled between steps the partial result is returned together with the
// context error.
func (s *Scraper) Run(ctx context.Context, indexURLs []string) (*models.ScraperResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	r := &run{
		board: newQuotaBoard(s.genres.Names(), s.cfg.Target),
		seen:  make(map[string]struct{}),
		result: &models.ScraperResult{
			StartTime:    time.Now(),
			ErrorsByType: make(map[string]int),
			Discarded:    make(map[string]int),
		},
	}

	slog.Info("crawl started",
		slog.Int("index_urls", len(indexURLs)),
		slog.Any("genres", s.genres.Names()),
		slog.Int("target", s.cfg.Target),
	)

	var err error
	for _, raw := range indexURLs {
		if r.board.AllClosed() {
			slog.Info("all genres closed, stopping")
			break
		}
		if err = ctx.Err(); err != nil {
			break
		}

		name, ok := s.resolveGenre(r, raw)
		if !ok {
			r.result.SkippedIndexURLs = append(r.result.SkippedIndexURLs, raw)
			continue
		}
		if err = s.crawlIndex(ctx, r, raw, name); err != nil {
			break
		}
	}

	if err == nil {
		for _, name := range r.board.CloseRemaining(models.ReasonNoIndexPages) {
			slog.Warn("genre closed without a usable index page", slog.String("genre", name))
		}
	}
	return s.finish(r, err)
}

// resolveGenre picks the first open allowed genre whose index path matches
// raw, unless it collides with a closed genre.
func (s *Scraper) resolveGenre(r *run, raw string) (string, bool) {
	candidates := s.genres.IndexGenres(raw)
	if len(candidates) == 0 {
		slog.Debug("not an allowed genre index", slog.String("url", raw))
		return "", false
	}
	name := ""
	for _, c := range candidates {
		if r.board.IsOpen(c) {
			name = c
			break
		}
	}
	if name == "" {
		slog.Debug("genre already closed", slog.String("url", raw), slog.Any("genres", candidates))
		return "", false
	}
	if closed, collides := r.board.ClosedOverlap(name); collides {
		slog.Info("skipping index page overlapping a closed genre",
			slog.String("url", raw),
			slog.String("genre", name),
			slog.String("closed", closed),
		)
		return "", false
	}
	return name, true
}

// crawlIndex handles one index page. Only context cancellation is returned.
func (s *Scraper) crawlIndex(ctx context.Context, r *run, raw, name string) error {
	if !s.policy.Allowed(ctx, raw) {
		slog.Info("index page disallowed by robots.txt", slog.String("url", raw))
		r.result.DisallowedURLs = append(r.result.DisallowedURLs, raw)
		return nil
	}
	if r.indexCount > 0 {
		if err := s.pause(ctx, s.cfg.IndexDelay); err != nil {
			return err
		}
	}
	r.indexCount++

	body, err := s.fetch(ctx, r, "index", raw)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.board.ForceClose(name, models.ReasonIndexFailed)
		slog.Warn("index page failed, closing genre",
			slog.String("genre", name),
			slog.String("url", raw),
			slog.Int("count", r.board.Count(name)),
		)
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		r.board.ForceClose(name, models.ReasonIndexFailed)
		slog.Warn("index page unparseable, closing genre", slog.String("genre", name), slog.Any("error", err))
		return nil
	}
	r.result.IndexPages++

	base, _ := url.Parse(raw)
	links := parser.HarvestBookLinks(doc, base)
	slog.Info("index page harvested",
		slog.String("genre", name),
		slog.String("url", raw),
		slog.Int("links", len(links)),
	)

	for _, link := range links {
		if !r.board.IsOpen(name) {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.crawlBook(ctx, r, link, name); err != nil {
			return err
		}
	}

	if r.board.IsOpen(name) {
		r.board.ForceClose(name, models.ReasonExhausted)
		slog.Warn("index page exhausted below target",
			slog.String("genre", name),
			slog.Int("count", r.board.Count(name)),
			slog.Int("shortfall", s.cfg.Target-r.board.Count(name)),
		)
	}
	return nil
}

// crawlBook fetches and classifies one detail page, promoting it when it
// belongs to name. Only context cancellation is returned.
func (s *Scraper) crawlBook(ctx context.Context, r *run, link, name string) error {
	if !s.policy.Allowed(ctx, link) {
		slog.Debug("book page disallowed by robots.txt", slog.String("url", link))
		r.result.DisallowedURLs = append(r.result.DisallowedURLs, link)
		return nil
	}
	if err := s.pause(ctx, s.cfg.BookDelay); err != nil {
		return err
	}

	body, err := s.fetch(ctx, r, "book", link)
	if err != nil {
		return ctx.Err()
	}

	book := s.extractor.ExtractHTML(body, link)
	classified, ok := s.genres.Classify(book.GenreLabels)
	switch {
	case !ok:
		s.discard(r, DiscardNoGenre, book)
		return nil
	case !strings.EqualFold(classified, name):
		s.discard(r, DiscardGenreMismatch, book, slog.String("classified", classified))
		return nil
	}
	book.Genre = name

	key := book.DedupKey()
	if _, dup := r.seen[key]; dup {
		s.discard(r, DiscardDuplicate, book)
		return nil
	}
	r.seen[key] = struct{}{}

	r.board.Accept(name)
	r.result.Books = append(r.result.Books, book)
	s.Metrics.IncPromoted(name, r.board.Count(name))
	slog.Info("book promoted",
		slog.String("genre", name),
		slog.String("title", book.Title),
		slog.Int("count", r.board.Count(name)),
	)
	if s.sink != nil {
		if err := s.sink.Process(book); err != nil {
			slog.Error("sink process error", slog.String("url", link), slog.Any("error", err))
		}
	}
	return nil
}

func (s *Scraper) fetch(ctx context.Context, r *run, phase, rawURL string) ([]byte, error) {
	start := time.Now()
	r.result.RequestCount++
	body, err := s.fetcher.Fetch(ctx, rawURL)
	s.Metrics.ObserveRequest(phase, time.Since(start))
	if err == nil {
		return body, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	category := fetcher.ErrorKind(err)
	r.result.ErrorCount++
	r.result.ErrorsByType[category]++
	r.result.FailedURLs = append(r.result.FailedURLs, rawURL)
	s.Metrics.IncError(category)
	slog.Error("request error",
		slog.String("url", rawURL),
		slog.String("phase", phase),
		slog.String("category", category),
		slog.Any("error", err),
	)
	return nil, err
}

func (s *Scraper) discard(r *run, reason string, book *models.Book, attrs ...any) {
	r.result.Discarded[reason]++
	s.Metrics.IncDiscarded(reason)
	args := append([]any{slog.String("reason", reason), slog.String("url", book.URL)}, attrs...)
	slog.Debug("book discarded", args...)
}

func (s *Scraper) finish(r *run, err error) (*models.ScraperResult, error) {
	r.result.EndTime = time.Now()
	r.result.Genres = r.board.Report()
	r.result.TotalCount = len(r.result.Books)
	if err != nil {
		r.result.Interrupted = true
		slog.Warn("crawl interrupted", slog.Any("error", err), slog.Int("books", r.result.TotalCount))
		return r.result, err
	}
	slog.Info("crawl finished",
		slog.Int("books", r.result.TotalCount),
		slog.Int("index_pages", r.result.IndexPages),
		slog.Int("errors", r.result.ErrorCount),
	)
	return r.result, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
