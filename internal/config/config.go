// Package config loads and validates the miner's configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Caia-Tech/bitext-miner/internal/output"
	"github.com/Caia-Tech/bitext-miner/internal/pipeline"
	"github.com/Caia-Tech/bitext-miner/internal/quality"
	"github.com/Caia-Tech/bitext-miner/internal/scraping"
	"github.com/Caia-Tech/bitext-miner/internal/sitemap"
	"github.com/Caia-Tech/bitext-miner/pkg/logging"
)

// Configuration validation errors.
var (
	ErrMissingSitemapURL    = errors.New("mining.sitemap_url is required")
	ErrInvalidSitemapURL    = errors.New("mining.sitemap_url must be an absolute http or https URL")
	ErrInvalidWorkers       = errors.New("mining.workers must be at least 1")
	ErrInvalidRequestDelay  = errors.New("mining.request_delay_ms must be non-negative")
	ErrMissingLinkSelector  = errors.New("mining.language_link_selector is required")
	ErrMissingLinkText      = errors.New("mining.language_link_text is required")
	ErrMissingContentQuery  = errors.New("mining.content_selector is required")
	ErrMissingUserAgent     = errors.New("http.user_agent is required")
	ErrInvalidTimeout       = errors.New("http.timeout_sec must be at least 1")
	ErrInvalidMaxRetries    = errors.New("http.max_retries must be non-negative")
	ErrInvalidBackoff       = errors.New("http.backoff_multiplier must be >= 1.0")
	ErrInvalidPoolSize      = errors.New("http.pool_size must be at least 1")
	ErrInvalidContentSize   = errors.New("http.max_content_mb must be at least 1")
	ErrInvalidSitemapDepth  = errors.New("sitemap.max_depth must be non-negative")
	ErrInvalidConcurrency   = errors.New("sitemap.concurrency must be at least 1")
	ErrInvalidCacheSize     = errors.New("sitemap.cache_size must be at least 1")
	ErrMissingOutputDir     = errors.New("output.dir is required")
	ErrMissingOutputFile    = errors.New("output.filename is required")
	ErrInvalidLogLevel      = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat     = errors.New("logging.format must be 'json' or 'pretty'")
	ErrInvalidServerPort    = errors.New("server.port must be between 1 and 65535")
	ErrInvalidEventBuffer   = errors.New("events.buffer_size must be at least 1")
	ErrInvalidEventWorkers  = errors.New("events.workers must be at least 1")
	ErrInvalidEntityCache   = errors.New("quality.entity_cache_size must be at least 1")
	ErrInvalidRobotsCaching = errors.New("mining.robots_cache_hours must be non-negative")
)

// Config is the complete miner configuration. Durations appear as integers
// with the unit in the field name, so plain YAML numbers are enough.
type Config struct {
	Mining  MiningConfig             `json:"mining" yaml:"mining"`
	HTTP    HTTPConfig               `json:"http" yaml:"http"`
	Sitemap sitemap.EnumeratorConfig `json:"sitemap" yaml:"sitemap"`
	Quality quality.FilterConfig     `json:"quality" yaml:"quality"`
	Output  output.WriterConfig      `json:"output" yaml:"output"`
	Logging logging.LogConfig        `json:"logging" yaml:"logging"`
	Server  ServerConfig             `json:"server" yaml:"server"`
	Events  EventsConfig             `json:"events" yaml:"events"`
}

// MiningConfig holds the run-level mining policy.
type MiningConfig struct {
	SitemapURL           string   `json:"sitemap_url" yaml:"sitemap_url"`
	Workers              int      `json:"workers" yaml:"workers"`
	RequestDelayMs       int      `json:"request_delay_ms" yaml:"request_delay_ms"`
	RespectRobots        bool     `json:"respect_robots" yaml:"respect_robots"`
	RobotsCacheHours     int      `json:"robots_cache_hours" yaml:"robots_cache_hours"`
	LanguageLinkSelector string   `json:"language_link_selector" yaml:"language_link_selector"`
	LanguageLinkText     string   `json:"language_link_text" yaml:"language_link_text"`
	ContentSelector      string   `json:"content_selector" yaml:"content_selector"`
	StripTags            []string `json:"strip_tags" yaml:"strip_tags"`
}

// HTTPConfig holds HTTP client settings.
type HTTPConfig struct {
	UserAgent         string   `json:"user_agent" yaml:"user_agent"`
	TimeoutSec        int      `json:"timeout_sec" yaml:"timeout_sec"`
	MaxContentMb      int      `json:"max_content_mb" yaml:"max_content_mb"`
	PoolSize          int      `json:"pool_size" yaml:"pool_size"`
	MaxRetries        int      `json:"max_retries" yaml:"max_retries"`
	RetryBaseDelayMs  int      `json:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelaySec  int      `json:"retry_max_delay_sec" yaml:"retry_max_delay_sec"`
	BackoffMultiplier float64  `json:"backoff_multiplier" yaml:"backoff_multiplier"`
	RetryStatusCodes  []int    `json:"retry_status_codes" yaml:"retry_status_codes"`
	AcceptLanguages   []string `json:"accept_languages" yaml:"accept_languages"`
}

// ServerConfig holds the status API settings.
type ServerConfig struct {
	Enabled         bool   `json:"enabled" yaml:"enabled"`
	Host            string `json:"host" yaml:"host"`
	Port            int    `json:"port" yaml:"port"`
	ReadTimeoutSec  int    `json:"read_timeout_sec" yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `json:"write_timeout_sec" yaml:"write_timeout_sec"`
}

// EventsConfig sizes the event bus.
type EventsConfig struct {
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`
	Workers    int `json:"workers" yaml:"workers"`
}

// Default returns the complete default configuration
func Default() *Config {
	return &Config{
		Mining: MiningConfig{
			SitemapURL:           "https://gov.wales/sitemap.xml",
			Workers:              20,
			RequestDelayMs:       500,
			RespectRobots:        true,
			RobotsCacheHours:     24,
			LanguageLinkSelector: "a.language-link",
			LanguageLinkText:     "Cymraeg",
			ContentSelector:      "div.announcement-item__article",
			StripTags:            []string{"a"},
		},

		HTTP: HTTPConfig{
			UserAgent:         "BitextMiner/1.0 (+https://caia.tech/bot)",
			TimeoutSec:        30,
			MaxContentMb:      10,
			PoolSize:          100,
			MaxRetries:        5,
			RetryBaseDelayMs:  100,
			RetryMaxDelaySec:  10,
			BackoffMultiplier: 2.0,
			RetryStatusCodes:  []int{500, 502, 503, 504},
			AcceptLanguages:   []string{"en", "cy"},
		},

		Sitemap: *sitemap.DefaultEnumeratorConfig(),
		Quality: *quality.DefaultFilterConfig(),
		Output:  *output.DefaultWriterConfig(),
		Logging: *logging.DefaultLogConfig(),

		Server: ServerConfig{
			Enabled:         false,
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeoutSec:  30,
			WriteTimeoutSec: 30,
		},

		Events: EventsConfig{
			BufferSize: 1000,
			Workers:    2,
		},
	}
}

// Development returns a configuration tuned for local runs
func Development() *Config {
	config := Default()

	config.Logging.Level = "debug"
	config.Logging.Format = "pretty"
	config.Logging.Console = true

	config.Mining.Workers = 4
	config.Mining.RequestDelayMs = 100

	return config
}

// Load reads a YAML config file over the defaults and validates the result.
// Fields absent from the file keep their default values.
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config file %s: %w", path, err)
	}

	return config, nil
}

// LoadOrDefault loads path when given, otherwise returns validated defaults
// with environment overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}

	config := Default()
	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides lets the environment override the most commonly tuned
// settings without a config file edit.
func (c *Config) applyEnvOverrides() {
	if sitemapURL := os.Getenv("BITEXT_SITEMAP_URL"); sitemapURL != "" {
		c.Mining.SitemapURL = sitemapURL
	}

	if workers := os.Getenv("BITEXT_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			c.Mining.Workers = n
		}
	}

	if delay := os.Getenv("BITEXT_REQUEST_DELAY"); delay != "" {
		if d, err := time.ParseDuration(delay); err == nil {
			c.Mining.RequestDelayMs = int(d.Milliseconds())
		}
	}

	if dir := os.Getenv("BITEXT_OUTPUT_DIR"); dir != "" {
		c.Output.Dir = dir
	}

	if level := os.Getenv("BITEXT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Mining.SitemapURL == "" {
		return ErrMissingSitemapURL
	}

	parsed, err := url.Parse(c.Mining.SitemapURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("%w: %q", ErrInvalidSitemapURL, c.Mining.SitemapURL)
	}

	if c.Mining.Workers < 1 {
		return ErrInvalidWorkers
	}

	if c.Mining.RequestDelayMs < 0 {
		return ErrInvalidRequestDelay
	}

	if c.Mining.RobotsCacheHours < 0 {
		return ErrInvalidRobotsCaching
	}

	if c.Mining.LanguageLinkSelector == "" {
		return ErrMissingLinkSelector
	}

	if c.Mining.LanguageLinkText == "" {
		return ErrMissingLinkText
	}

	if c.Mining.ContentSelector == "" {
		return ErrMissingContentQuery
	}

	if c.HTTP.UserAgent == "" {
		return ErrMissingUserAgent
	}

	if c.HTTP.TimeoutSec < 1 {
		return ErrInvalidTimeout
	}

	if c.HTTP.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}

	if c.HTTP.BackoffMultiplier < 1.0 {
		return ErrInvalidBackoff
	}

	if c.HTTP.PoolSize < 1 {
		return ErrInvalidPoolSize
	}

	if c.HTTP.MaxContentMb < 1 {
		return ErrInvalidContentSize
	}

	if c.Sitemap.MaxDepth < 0 {
		return ErrInvalidSitemapDepth
	}

	if c.Sitemap.Concurrency < 1 {
		return ErrInvalidConcurrency
	}

	if c.Sitemap.CacheSize < 1 {
		return ErrInvalidCacheSize
	}

	if c.Quality.EntityCacheSize < 1 {
		return ErrInvalidEntityCache
	}

	if c.Output.Dir == "" {
		return ErrMissingOutputDir
	}

	if c.Output.Filename == "" {
		return ErrMissingOutputFile
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "pretty" {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
	}

	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return ErrInvalidServerPort
	}

	if c.Events.BufferSize < 1 {
		return ErrInvalidEventBuffer
	}

	if c.Events.Workers < 1 {
		return ErrInvalidEventWorkers
	}

	return nil
}

// RequestDelay returns the inter-request delay as a duration
func (c *Config) RequestDelay() time.Duration {
	return time.Duration(c.Mining.RequestDelayMs) * time.Millisecond
}

// ClientConfig assembles the HTTP client configuration
func (c *Config) ClientConfig() *scraping.ClientConfig {
	return &scraping.ClientConfig{
		UserAgent:       c.HTTP.UserAgent,
		Timeout:         time.Duration(c.HTTP.TimeoutSec) * time.Second,
		MaxContentSize:  int64(c.HTTP.MaxContentMb) * 1024 * 1024,
		PoolSize:        c.HTTP.PoolSize,
		AcceptLanguages: append([]string(nil), c.HTTP.AcceptLanguages...),
		Retry: &scraping.RetryPolicy{
			MaxRetries:       c.HTTP.MaxRetries,
			BaseDelay:        time.Duration(c.HTTP.RetryBaseDelayMs) * time.Millisecond,
			MaxDelay:         time.Duration(c.HTTP.RetryMaxDelaySec) * time.Second,
			BackoffFactor:    c.HTTP.BackoffMultiplier,
			RetryStatusCodes: append([]int(nil), c.HTTP.RetryStatusCodes...),
		},
	}
}

// ComplianceConfig assembles the robots.txt gate configuration
func (c *Config) ComplianceConfig() *scraping.ComplianceConfig {
	return &scraping.ComplianceConfig{
		RespectRobotsTxt: c.Mining.RespectRobots,
		CacheTimeout:     time.Duration(c.Mining.RobotsCacheHours) * time.Hour,
		UserAgent:        c.HTTP.UserAgent,
	}
}

// ResolverConfig assembles the language pair resolver configuration
func (c *Config) ResolverConfig() *scraping.ResolverConfig {
	return &scraping.ResolverConfig{
		LinkSelector: c.Mining.LanguageLinkSelector,
		LinkText:     c.Mining.LanguageLinkText,
	}
}

// ScraperConfig assembles the content scraper configuration
func (c *Config) ScraperConfig() *scraping.ScraperConfig {
	return &scraping.ScraperConfig{
		ContentSelector: c.Mining.ContentSelector,
		StripTags:       append([]string(nil), c.Mining.StripTags...),
	}
}

// EnumeratorConfig assembles the sitemap enumerator configuration
func (c *Config) EnumeratorConfig() *sitemap.EnumeratorConfig {
	cfg := c.Sitemap
	return &cfg
}

// FilterConfig assembles the quality filter configuration
func (c *Config) FilterConfig() *quality.FilterConfig {
	cfg := c.Quality
	return &cfg
}

// WriterConfig assembles the result writer configuration
func (c *Config) WriterConfig() *output.WriterConfig {
	cfg := c.Output
	return &cfg
}

// LogConfig assembles the logging configuration
func (c *Config) LogConfig() *logging.LogConfig {
	cfg := c.Logging
	return &cfg
}

// OrchestratorConfig assembles the pipeline orchestrator configuration
func (c *Config) OrchestratorConfig() *pipeline.OrchestratorConfig {
	return &pipeline.OrchestratorConfig{
		SitemapURL: c.Mining.SitemapURL,
		Workers:    c.Mining.Workers,
	}
}

// String returns a short description of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Sitemap: %s, Workers: %d, Delay: %s, Output: %s}",
		c.Mining.SitemapURL, c.Mining.Workers, c.RequestDelay(), c.Output.Dir)
}
