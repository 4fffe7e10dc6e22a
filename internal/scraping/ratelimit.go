package scraping

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces outbound requests per host so the miner never hammers a
// site, no matter how many workers share the Client.
type RateLimiter struct {
	mu       sync.Mutex
	delay    time.Duration
	limiters map[string]*hostLimiter
}

type hostLimiter struct {
	limiter      *rate.Limiter
	requestCount int64
}

// NewRateLimiter creates a limiter that allows one request per delay per
// host. A zero or negative delay disables pacing.
func NewRateLimiter(delay time.Duration) *RateLimiter {
	return &RateLimiter{
		delay:    delay,
		limiters: make(map[string]*hostLimiter),
	}
}

// Wait blocks until it's safe to make a request to the host of rawURL
func (r *RateLimiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)

	r.mu.Lock()
	hl, exists := r.limiters[host]
	if !exists {
		hl = &hostLimiter{limiter: rate.NewLimiter(rate.Every(r.delay), 1)}
		r.limiters[host] = hl
	}
	hl.requestCount++
	r.mu.Unlock()

	return hl.limiter.Wait(ctx)
}

// Stats returns the number of requests admitted per host
func (r *RateLimiter) Stats() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make(map[string]int64, len(r.limiters))
	for host, hl := range r.limiters {
		stats[host] = hl.requestCount
	}
	return stats
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}
