// Package config defines crawler settings, their defaults and how they are
// layered from a YAML file, CRAWLER_* environment variables and flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultGenres is the allowed genre set used when none is configured.
var DefaultGenres = []string{"Thriller", "Classics", "Comics", "Fantasy", "Fiction", "Science Fiction"}

// Config holds crawler configuration.
type Config struct {
	BaseURL       string   `yaml:"base_url"`
	AllowedGenres []string `yaml:"allowed_genres"`
	Target        int      `yaml:"target"`
	SeedsFile     string   `yaml:"seeds_file"`

	BookDelay  time.Duration `yaml:"book_delay"`
	IndexDelay time.Duration `yaml:"index_delay"`

	Timeout         time.Duration     `yaml:"timeout"`
	MaxRetries      int               `yaml:"max_retries"`
	RetryBackoff    time.Duration     `yaml:"retry_backoff"`
	RetryBackoffMax time.Duration     `yaml:"retry_backoff_max"`
	UserAgent       string            `yaml:"user_agent"`
	Headers         map[string]string `yaml:"headers"`

	RespectRobotsTxt bool `yaml:"respect_robots_txt"`
	RobotsCacheSize  int  `yaml:"robots_cache_size"`

	OutputFile         string `yaml:"output_file"`
	OutputFormat       string `yaml:"output_format"` // csv, json, or dual
	ReportFile         string `yaml:"report_file"`
	PipelineBufferSize int    `yaml:"pipeline_buffer_size"`
	BatchSize          int    `yaml:"batch_size"`
	DedupeMaxSize      int    `yaml:"dedupe_max_size"`

	MetricsAddr string `yaml:"metrics_addr"`
	Verbose     bool   `yaml:"verbose"`
}

// DefaultConfig returns polite defaults for the public book catalogue.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:       "https://www.goodreads.com",
		AllowedGenres: append([]string(nil), DefaultGenres...),
		Target:        5,
		BookDelay:     5 * time.Second,
		IndexDelay:    10 * time.Second,

		Timeout:         15 * time.Second,
		MaxRetries:      2,
		RetryBackoff:    500 * time.Millisecond,
		RetryBackoffMax: 5 * time.Second,
		UserAgent:       "Mozilla/5.0 (compatible; MyGoodreadsCrawler/1.0; +https://yourdomain.example)",
		Headers: map[string]string{
			"Accept":          "text/html,application/xhtml+xml",
			"Accept-Language": "en-US,en;q=0.9",
		},

		RespectRobotsTxt: true,
		RobotsCacheSize:  64,

		OutputFile:         "output/books.csv",
		OutputFormat:       "csv",
		ReportFile:         "output/last_run.json",
		PipelineBufferSize: 64,
		BatchSize:          10,
		DedupeMaxSize:      10000,
	}
}

// LoadFile reads a YAML file on top of DefaultConfig. Keys absent from the
// file keep their defaults; unknown keys are rejected.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any CRAWLER_* variables that are set.
func ApplyEnv(cfg *Config) error {
	if value, ok := EnvString("CRAWLER_BASE_URL"); ok {
		cfg.BaseURL = value
	}
	if value, ok := EnvString("CRAWLER_GENRES"); ok {
		cfg.AllowedGenres = ParseGenres(value)
	}
	if value, ok, err := EnvInt("CRAWLER_TARGET"); err != nil {
		return err
	} else if ok {
		cfg.Target = value
	}
	if value, ok, err := EnvDuration("CRAWLER_BOOK_DELAY"); err != nil {
		return err
	} else if ok {
		cfg.BookDelay = value
	}
	if value, ok, err := EnvDuration("CRAWLER_INDEX_DELAY"); err != nil {
		return err
	} else if ok {
		cfg.IndexDelay = value
	}
	if value, ok, err := EnvInt("CRAWLER_MAX_RETRIES"); err != nil {
		return err
	} else if ok {
		cfg.MaxRetries = value
	}
	if value, ok := EnvString("CRAWLER_SEEDS"); ok {
		cfg.SeedsFile = value
	}
	if value, ok := EnvString("CRAWLER_OUTPUT"); ok {
		cfg.OutputFile = value
	}
	if value, ok := EnvString("CRAWLER_REPORT"); ok {
		cfg.ReportFile = value
	}
	if value, ok := EnvString("CRAWLER_METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}
	return nil
}

// ParseGenres splits a comma separated genre list, dropping blanks.
func ParseGenres(value string) []string {
	var genres []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			genres = append(genres, part)
		}
	}
	return genres
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if len(c.AllowedGenres) == 0 {
		return fmt.Errorf("allowed genres cannot be empty")
	}
	for _, g := range c.AllowedGenres {
		if strings.TrimSpace(g) == "" {
			return fmt.Errorf("allowed genres cannot contain blank names")
		}
	}
	if c.Target <= 0 {
		return fmt.Errorf("target must be positive")
	}
	if c.BookDelay < 0 {
		return fmt.Errorf("book delay cannot be negative")
	}
	if c.IndexDelay < 0 {
		return fmt.Errorf("index delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.RobotsCacheSize <= 0 {
		return fmt.Errorf("robots cache size must be positive")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	return nil
}
