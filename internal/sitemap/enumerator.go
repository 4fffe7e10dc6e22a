package sitemap

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Caia-Tech/bitext-miner/internal/scraping"
)

// Enumerator expands a sitemap URL into the page URLs it declares, descending
// through nested sitemap indexes. Parsed sitemaps are memoized so repeated
// runs in one process don't refetch unchanged shards.
type Enumerator struct {
	client  *scraping.Client
	limiter *scraping.RateLimiter
	config  *EnumeratorConfig
	cache   *lru.Cache[string, *sitemapDoc]

	mu    sync.RWMutex
	stats Stats
}

// EnumeratorConfig configures sitemap traversal
type EnumeratorConfig struct {
	MaxDepth    int `json:"max_depth" yaml:"max_depth"`
	Concurrency int `json:"concurrency" yaml:"concurrency"`
	CacheSize   int `json:"cache_size" yaml:"cache_size"`
}

// DefaultEnumeratorConfig returns default enumerator configuration
func DefaultEnumeratorConfig() *EnumeratorConfig {
	return &EnumeratorConfig{
		MaxDepth:    5,
		Concurrency: 10,
		CacheSize:   1000,
	}
}

// Stats counts enumeration outcomes
type Stats struct {
	SitemapsFetched int64 `json:"sitemaps_fetched"`
	SitemapsFailed  int64 `json:"sitemaps_failed"`
	CacheHits       int64 `json:"cache_hits"`
	URLsDiscovered  int64 `json:"urls_discovered"`
}

type sitemapDoc struct {
	children []string
	pages    []string
}

type locEntry struct {
	Loc string `xml:"loc"`
}

// NewEnumerator creates a new sitemap enumerator
func NewEnumerator(client *scraping.Client, limiter *scraping.RateLimiter, config *EnumeratorConfig) (*Enumerator, error) {
	if config == nil {
		config = DefaultEnumeratorConfig()
	}

	cache, err := lru.New[string, *sitemapDoc](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating sitemap cache: %w", err)
	}

	return &Enumerator{
		client:  client,
		limiter: limiter,
		config:  config,
		cache:   cache,
	}, nil
}

// Enumerate returns every page URL declared under sitemapURL. The root
// sitemap must be readable; a nested shard that fails to fetch or parse is
// logged and skipped so one bad shard never sinks the run. Duplicate page
// URLs across shards are removed.
func (e *Enumerator) Enumerate(ctx context.Context, sitemapURL string) ([]string, error) {
	root, err := e.fetchSitemap(ctx, sitemapURL)
	if err != nil {
		e.recordFailure()
		return nil, fmt.Errorf("fetching sitemap %s: %w", sitemapURL, err)
	}

	visited := map[string]bool{sitemapURL: true}
	seen := make(map[string]bool)
	var pages []string

	collect := func(doc *sitemapDoc) []string {
		var next []string
		for _, page := range doc.pages {
			if !seen[page] {
				seen[page] = true
				pages = append(pages, page)
			}
		}
		for _, child := range doc.children {
			if !visited[child] {
				visited[child] = true
				next = append(next, child)
			}
		}
		return next
	}

	frontier := collect(root)

	for depth := 1; len(frontier) > 0; depth++ {
		if e.config.MaxDepth > 0 && depth > e.config.MaxDepth {
			log.Warn().
				Int("depth", depth).
				Int("pending", len(frontier)).
				Str("sitemap_url", sitemapURL).
				Msg("Sitemap nesting exceeds depth limit, stopping descent")
			break
		}

		var collectMu sync.Mutex
		var next []string

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.config.Concurrency)

		for _, shardURL := range frontier {
			shardURL := shardURL
			g.Go(func() error {
				doc, err := e.fetchSitemap(gctx, shardURL)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					e.recordFailure()
					log.Warn().Err(err).Str("sitemap_url", shardURL).Msg("Skipping unreadable sitemap shard")
					return nil
				}

				collectMu.Lock()
				next = append(next, collect(doc)...)
				collectMu.Unlock()
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}

		frontier = next
	}

	e.mu.Lock()
	e.stats.URLsDiscovered += int64(len(pages))
	e.mu.Unlock()

	log.Info().
		Str("sitemap_url", sitemapURL).
		Int("urls", len(pages)).
		Msg("Sitemap enumeration completed")

	return pages, nil
}

// Stats returns a copy of the enumeration counters
func (e *Enumerator) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// CacheLen returns the number of memoized sitemaps
func (e *Enumerator) CacheLen() int {
	return e.cache.Len()
}

func (e *Enumerator) fetchSitemap(ctx context.Context, sitemapURL string) (*sitemapDoc, error) {
	if doc, ok := e.cache.Get(sitemapURL); ok {
		e.mu.Lock()
		e.stats.CacheHits++
		e.mu.Unlock()
		return doc, nil
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, sitemapURL); err != nil {
			return nil, err
		}
	}

	body, err := e.client.Get(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}

	doc, err := parseSitemap(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing sitemap %s: %w", sitemapURL, err)
	}

	e.cache.Add(sitemapURL, doc)

	e.mu.Lock()
	e.stats.SitemapsFetched++
	e.mu.Unlock()

	log.Debug().
		Str("sitemap_url", sitemapURL).
		Int("children", len(doc.children)).
		Int("pages", len(doc.pages)).
		Msg("Parsed sitemap")

	return doc, nil
}

func (e *Enumerator) recordFailure() {
	e.mu.Lock()
	e.stats.SitemapsFailed++
	e.mu.Unlock()
}

// parseSitemap reads a sitemap or sitemap index with a streaming decoder.
// Element namespaces are ignored so non-standard feeds still parse.
func parseSitemap(r io.Reader) (*sitemapDoc, error) {
	decoder := xml.NewDecoder(r)
	doc := &sitemapDoc{}

	for {
		t, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		se, ok := t.(xml.StartElement)
		if !ok {
			continue
		}

		switch se.Name.Local {
		case "sitemap":
			var entry locEntry
			if err := decoder.DecodeElement(&entry, &se); err == nil {
				if loc := strings.TrimSpace(entry.Loc); loc != "" {
					doc.children = append(doc.children, loc)
				}
			}
		case "url":
			var entry locEntry
			if err := decoder.DecodeElement(&entry, &se); err == nil {
				if loc := strings.TrimSpace(entry.Loc); loc != "" {
					doc.pages = append(doc.pages, loc)
				}
			}
		}
	}

	return doc, nil
}
