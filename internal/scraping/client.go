package scraping

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Client fetches pages over HTTP with retry and backoff. The miner shares one
// Client across all components so connection pooling and retry behavior stay
// uniform.
type Client struct {
	httpClient *http.Client
	config     *ClientConfig
}

// ClientConfig configures HTTP fetching behavior
type ClientConfig struct {
	UserAgent       string        `json:"user_agent" yaml:"user_agent"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout"`
	MaxContentSize  int64         `json:"max_content_size" yaml:"max_content_size"`
	PoolSize        int           `json:"pool_size" yaml:"pool_size"`
	AcceptLanguages []string      `json:"accept_languages" yaml:"accept_languages"`
	Retry           *RetryPolicy  `json:"retry" yaml:"retry"`
}

// RetryPolicy defines retry behavior for failed requests
type RetryPolicy struct {
	MaxRetries       int           `json:"max_retries" yaml:"max_retries"`
	BaseDelay        time.Duration `json:"base_delay" yaml:"base_delay"`
	MaxDelay         time.Duration `json:"max_delay" yaml:"max_delay"`
	BackoffFactor    float64       `json:"backoff_factor" yaml:"backoff_factor"`
	RetryStatusCodes []int         `json:"retry_status_codes" yaml:"retry_status_codes"`
}

// Response is a fetched page. URL holds the final URL after redirects so
// callers can resolve relative links against it.
type Response struct {
	StatusCode  int
	Body        []byte
	ContentType string
	URL         string
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		UserAgent:       "BitextMiner/1.0 (+https://caia.tech/bot)",
		Timeout:         30 * time.Second,
		MaxContentSize:  10 * 1024 * 1024, // 10MB
		PoolSize:        100,
		AcceptLanguages: []string{"en", "cy"},
		Retry:           DefaultRetryPolicy(),
	}
}

// DefaultRetryPolicy returns the default retry policy for transient failures
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:       5,
		BaseDelay:        100 * time.Millisecond,
		MaxDelay:         10 * time.Second,
		BackoffFactor:    2.0,
		RetryStatusCodes: []int{500, 502, 503, 504},
	}
}

// NewClient creates a new HTTP client
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultClientConfig()
	}
	if config.Retry == nil {
		config.Retry = DefaultRetryPolicy()
	}

	transport := &http.Transport{
		MaxIdleConns:        config.PoolSize,
		MaxIdleConnsPerHost: config.PoolSize,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
		config: config,
	}
}

// Do fetches targetURL, retrying transport errors and retryable status codes
// with exponential backoff. Non-retryable statuses come back as a normal
// Response so callers decide what a 404 means for them.
func (c *Client) Do(ctx context.Context, targetURL string) (*Response, error) {
	var lastErr error
	retry := c.config.Retry

	for attempt := 0; attempt <= retry.MaxRetries; attempt++ {
		if attempt > 0 {
			// First retry waits the base delay, each one after multiplies
			delay := time.Duration(float64(retry.BaseDelay) * backoffFactor(attempt-1, retry.BackoffFactor))
			if delay > retry.MaxDelay {
				delay = retry.MaxDelay
			}

			log.Debug().
				Str("url", targetURL).
				Int("attempt", attempt).
				Dur("delay", delay).
				Err(lastErr).
				Msg("Retrying fetch after delay")

			select {
			case <-time.After(delay):
				// Continue with retry
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := c.fetch(ctx, targetURL)
		if err == nil && !c.shouldRetry(resp.StatusCode) {
			return resp, nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("fetch failed after %d attempts: %w", retry.MaxRetries+1, lastErr)
}

// Get fetches targetURL and returns the response body, treating any non-200
// status as an error.
func (c *Client) Get(ctx context.Context, targetURL string) ([]byte, error) {
	resp, err := c.Do(ctx, targetURL)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	return resp.Body, nil
}

// fetch performs a single request attempt
func (c *Client) fetch(ctx context.Context, targetURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", targetURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if len(c.config.AcceptLanguages) > 0 {
		req.Header.Set("Accept-Language", strings.Join(c.config.AcceptLanguages, ","))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Read content with size limit
	limitedReader := &io.LimitedReader{
		R: resp.Body,
		N: c.config.MaxContentSize,
	}

	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, err
	}

	if limitedReader.N <= 0 {
		return nil, fmt.Errorf("content exceeds maximum size limit")
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		URL:         resp.Request.URL.String(),
	}, nil
}

func (c *Client) shouldRetry(statusCode int) bool {
	for _, code := range c.config.Retry.RetryStatusCodes {
		if statusCode == code {
			return true
		}
	}
	return false
}

func backoffFactor(attempt int, factor float64) float64 {
	result := 1.0
	for i := 0; i < attempt; i++ {
		result *= factor
	}
	return result
}
