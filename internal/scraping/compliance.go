package scraping

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// ComplianceGate checks robots.txt before any page fetch. Parsed rules are
// cached per site so a mining run fetches each robots.txt once; concurrent
// cold-cache lookups for the same site collapse into one fetch.
type ComplianceGate struct {
	mu     sync.RWMutex
	cache  map[string]*robotsEntry
	flight singleflight.Group
	client *Client
	config *ComplianceConfig
}

type robotsEntry struct {
	group       *robotstxt.Group
	lastFetched time.Time
}

// ComplianceConfig configures robots.txt checking behavior
type ComplianceConfig struct {
	RespectRobotsTxt bool          `json:"respect_robots_txt" yaml:"respect_robots_txt"`
	CacheTimeout     time.Duration `json:"cache_timeout" yaml:"cache_timeout"`
	UserAgent        string        `json:"user_agent" yaml:"user_agent"`
}

// DefaultComplianceConfig returns default compliance configuration
func DefaultComplianceConfig() *ComplianceConfig {
	return &ComplianceConfig{
		RespectRobotsTxt: true,
		CacheTimeout:     24 * time.Hour,
		UserAgent:        "BitextMiner/1.0 (+https://caia.tech/bot)",
	}
}

// NewComplianceGate creates a compliance gate backed by the shared client
func NewComplianceGate(client *Client, config *ComplianceConfig) *ComplianceGate {
	if config == nil {
		config = DefaultComplianceConfig()
	}

	return &ComplianceGate{
		cache:  make(map[string]*robotsEntry),
		client: client,
		config: config,
	}
}

// Allowed reports whether robots.txt permits fetching targetURL. An
// unreachable or unparseable robots.txt is treated as permissive.
func (cg *ComplianceGate) Allowed(ctx context.Context, targetURL string) (bool, error) {
	if !cg.config.RespectRobotsTxt {
		return true, nil
	}

	parsedURL, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("invalid URL: %w", err)
	}

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)

	cg.mu.RLock()
	entry, exists := cg.cache[baseURL]
	cg.mu.RUnlock()

	if !exists || time.Since(entry.lastFetched) > cg.config.CacheTimeout {
		fetched, _, _ := cg.flight.Do(baseURL, func() (interface{}, error) {
			// Re-check under the flight: a caller that lost the race may
			// arrive after the winner already stored a fresh entry
			cg.mu.RLock()
			cached, ok := cg.cache[baseURL]
			cg.mu.RUnlock()
			if ok && time.Since(cached.lastFetched) <= cg.config.CacheTimeout {
				return cached, nil
			}

			fresh := cg.fetchRobots(ctx, baseURL)
			cg.mu.Lock()
			cg.cache[baseURL] = fresh
			cg.mu.Unlock()
			return fresh, nil
		})
		entry = fetched.(*robotsEntry)
	}

	if entry.group == nil {
		return true, nil
	}

	path := parsedURL.Path
	if path == "" {
		path = "/"
	}

	return entry.group.Test(path), nil
}

// fetchRobots fetches and parses robots.txt for a site
func (cg *ComplianceGate) fetchRobots(ctx context.Context, baseURL string) *robotsEntry {
	robotsURL := baseURL + "/robots.txt"

	resp, err := cg.client.Do(ctx, robotsURL)
	if err != nil {
		log.Debug().Err(err).Str("robots_url", robotsURL).Msg("Could not fetch robots.txt, assuming allowed")
		return &robotsEntry{lastFetched: time.Now()}
	}

	robots, err := robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	if err != nil {
		log.Debug().Err(err).Str("robots_url", robotsURL).Msg("Could not parse robots.txt, assuming allowed")
		return &robotsEntry{lastFetched: time.Now()}
	}

	return &robotsEntry{
		group:       robots.FindGroup(cg.config.UserAgent),
		lastFetched: time.Now(),
	}
}
