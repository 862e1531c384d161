package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-genre-books/config"
	"github.com/aluiziolira/go-genre-books/discovery"
	"github.com/aluiziolira/go-genre-books/fetcher"
	"github.com/aluiziolira/go-genre-books/models"
	"github.com/aluiziolira/go-genre-books/pipeline"
	"github.com/aluiziolira/go-genre-books/scraper"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("crawl failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// loadConfig layers defaults, an optional YAML file, CRAWLER_* variables
// and finally command line flags.
func loadConfig(args []string) (*config.Config, error) {
	fs := flag.NewFlagSet("crawler", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file")
	// The config file is needed before the remaining flags get their defaults.
	_ = fs.Parse(filterConfigFlag(args))

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	fs = flag.NewFlagSet("crawler", flag.ContinueOnError)
	fs.String("config", *configPath, "YAML config file")
	genres := fs.String("genres", strings.Join(cfg.AllowedGenres, ","), "Comma separated allowed genres")
	fs.IntVar(&cfg.Target, "target", cfg.Target, "Books to collect per genre")
	fs.StringVar(&cfg.SeedsFile, "seeds", cfg.SeedsFile, "Sitemap (.xml) or URL list of genre index pages; empty builds /genres/<slug> URLs")
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Site root; fetches outside its host are refused")
	fs.DurationVar(&cfg.BookDelay, "book-delay", cfg.BookDelay, "Pause before each book page fetch")
	fs.DurationVar(&cfg.IndexDelay, "index-delay", cfg.IndexDelay, "Pause between genre index pages")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Retries for timeouts and connection errors")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Initial retry backoff")
	fs.DurationVar(&cfg.RetryBackoffMax, "retry-backoff-max", cfg.RetryBackoffMax, "Maximum retry backoff")
	fs.BoolVar(&cfg.RespectRobotsTxt, "respect-robots", cfg.RespectRobotsTxt, "Respect robots.txt directives")
	fs.StringVar(&cfg.OutputFile, "output", cfg.OutputFile, "Output file path")
	format := fs.String("format", cfg.OutputFormat, "Output format: csv, json, or dual")
	fs.StringVar(&cfg.ReportFile, "report", cfg.ReportFile, "Run report path; empty disables it")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Enable verbose logging")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.AllowedGenres = config.ParseGenres(*genres)
	cfg.OutputFormat = strings.ToLower(*format)
	return cfg, nil
}

// filterConfigFlag keeps only -config so the first parse ignores the rest.
func filterConfigFlag(args []string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name := strings.TrimLeft(arg, "-")
		switch {
		case strings.HasPrefix(name, "config="):
			out = append(out, arg)
		case name == "config" && i+1 < len(args):
			out = append(out, arg, args[i+1])
			i++
		}
	}
	return out
}

func run(cfg *config.Config) error {
	indexURLs, err := seedURLs(cfg)
	if err != nil {
		return err
	}

	slog.Info("starting crawl",
		slog.String("base_url", cfg.BaseURL),
		slog.Any("genres", cfg.AllowedGenres),
		slog.Int("target", cfg.Target),
		slog.Int("index_urls", len(indexURLs)),
	)

	metrics := scraper.NewMetrics()
	f, err := fetcher.New(cfg, fetcher.WithRetryObserver(metrics))
	if err != nil {
		return fmt.Errorf("initialising fetcher: %w", err)
	}
	policy, err := fetcher.NewRobotsPolicy(cfg.RespectRobotsTxt, cfg.UserAgent, cfg.RobotsCacheSize, nil)
	if err != nil {
		return fmt.Errorf("initialising robots policy: %w", err)
	}

	writer, err := pipeline.NewWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsServer := startMetricsServer(cfg.MetricsAddr, metrics)

	p := pipeline.NewPipeline(ctx, writer, cfg)
	p.Start(1)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	s, err := scraper.NewScraper(cfg, f,
		scraper.WithPolicy(policy),
		scraper.WithSink(p),
		scraper.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}

	result, runErr := s.Run(ctx, indexURLs)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if runErr != nil {
		slog.Info("shutdown signal received, keeping partial results")
	}

	if err := p.Close(); err != nil {
		return fmt.Errorf("pipeline shutdown: %w", err)
	}
	if err := writer.Validate(); err != nil {
		slog.Warn("output has no records", slog.Any("error", err))
	}

	if cfg.ReportFile != "" && !result.Interrupted {
		if err := pipeline.WriteRunReport(cfg.ReportFile, result.Report()); err != nil {
			slog.Error("write run report", slog.Any("error", err))
		}
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(result, cfg.OutputFile, p.GetMetrics())
	return nil
}

func seedURLs(cfg *config.Config) ([]string, error) {
	if cfg.SeedsFile == "" {
		return discovery.GenreIndexURLs(cfg.BaseURL, cfg.AllowedGenres), nil
	}
	urls, err := discovery.LoadSeeds(cfg.SeedsFile)
	if err != nil {
		return nil, fmt.Errorf("loading seeds: %w", err)
	}
	return urls, nil
}

func startMetricsServer(addr string, metrics *scraper.Metrics) *http.Server {
	if addr == "" {
		return nil
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func printSummary(result *models.ScraperResult, outputFile string, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	if result.Interrupted {
		fmt.Println("Crawl interrupted")
	} else {
		fmt.Println("Crawl complete")
	}

	for _, g := range result.Genres {
		status := "reached"
		if !g.ReachedTarget() {
			status = fmt.Sprintf("short by %d (%s)", g.Shortfall, g.Reason)
		}
		fmt.Printf("  %-18s %d/%d  %s\n", g.Genre+":", g.Count, g.Target, status)
	}

	fmt.Printf("  Total books:   %d\n", result.TotalCount)
	fmt.Printf("  Index pages:   %d\n", result.IndexPages)
	fmt.Printf("  Requests:      %d\n", result.RequestCount)
	fmt.Printf("  Errors:        %d\n", result.ErrorCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	if len(result.Discarded) > 0 {
		fmt.Printf("  Discarded:     %v\n", result.Discarded)
	}
	if len(result.DisallowedURLs) > 0 {
		fmt.Printf("  Disallowed:    %d\n", len(result.DisallowedURLs))
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Printf("  Validation:    %v\n", valErrors)
	}
	fmt.Printf("  Duration:      %v\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
