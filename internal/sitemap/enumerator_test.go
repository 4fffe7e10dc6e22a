package sitemap

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Caia-Tech/bitext-miner/internal/scraping"
)

func newTestClient() *scraping.Client {
	return scraping.NewClient(&scraping.ClientConfig{
		Timeout:        5 * time.Second,
		MaxContentSize: 1024 * 1024,
		Retry: &scraping.RetryPolicy{
			MaxRetries:       1,
			BaseDelay:        time.Millisecond,
			MaxDelay:         5 * time.Millisecond,
			BackoffFactor:    2.0,
			RetryStatusCodes: []int{500, 502, 503, 504},
		},
	})
}

// sitemapSite serves canned sitemap documents and counts hits per path.
// Bodies may reference {{base}} to build absolute URLs.
type sitemapSite struct {
	server *httptest.Server
	mu     sync.Mutex
	hits   map[string]int
}

func newSitemapSite(t *testing.T, docs map[string]string) *sitemapSite {
	t.Helper()

	site := &sitemapSite{hits: make(map[string]int)}
	mux := http.NewServeMux()
	for path, body := range docs {
		path, body := path, body
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			site.mu.Lock()
			site.hits[path]++
			site.mu.Unlock()
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprint(w, strings.ReplaceAll(body, "{{base}}", site.server.URL))
		})
	}

	site.server = httptest.NewServer(mux)
	t.Cleanup(site.server.Close)
	return site
}

func (s *sitemapSite) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func newTestEnumerator(t *testing.T, config *EnumeratorConfig) *Enumerator {
	t.Helper()

	enum, err := NewEnumerator(newTestClient(), nil, config)
	require.NoError(t, err)
	return enum
}

func TestEnumerator_ExpandsNestedIndexes(t *testing.T) {
	site := newSitemapSite(t, map[string]string{
		"/sitemap.xml": `<?xml version="1.0" encoding="UTF-8"?>
			<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
				<sitemap><loc>{{base}}/sitemap-news.xml</loc></sitemap>
				<sitemap><loc>{{base}}/sitemap-archive.xml</loc></sitemap>
			</sitemapindex>`,
		"/sitemap-news.xml": `<?xml version="1.0" encoding="UTF-8"?>
			<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
				<url><loc>{{base}}/news/schools</loc></url>
				<url><loc>{{base}}/news/transport</loc></url>
			</urlset>`,
		"/sitemap-archive.xml": `<?xml version="1.0" encoding="UTF-8"?>
			<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
				<url><loc>{{base}}/news/archive-item</loc></url>
			</urlset>`,
	})

	enum := newTestEnumerator(t, nil)
	urls, err := enum.Enumerate(context.Background(), site.server.URL+"/sitemap.xml")

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		site.server.URL + "/news/schools",
		site.server.URL + "/news/transport",
		site.server.URL + "/news/archive-item",
	}, urls)

	stats := enum.Stats()
	assert.Equal(t, int64(3), stats.SitemapsFetched)
	assert.Equal(t, int64(3), stats.URLsDiscovered)
}

func TestEnumerator_RootFetchFailure(t *testing.T) {
	site := newSitemapSite(t, map[string]string{})

	enum := newTestEnumerator(t, nil)
	_, err := enum.Enumerate(context.Background(), site.server.URL+"/sitemap.xml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetching sitemap")
}

func TestEnumerator_SkipsBrokenShards(t *testing.T) {
	site := newSitemapSite(t, map[string]string{
		"/sitemap.xml": `<sitemapindex>
				<sitemap><loc>{{base}}/good.xml</loc></sitemap>
				<sitemap><loc>{{base}}/missing.xml</loc></sitemap>
				<sitemap><loc>{{base}}/malformed.xml</loc></sitemap>
			</sitemapindex>`,
		"/good.xml": `<urlset>
				<url><loc>{{base}}/news/one</loc></url>
				<url><loc>{{base}}/news/two</loc></url>
			</urlset>`,
		"/malformed.xml": `<urlset></wrong>`,
	})

	enum := newTestEnumerator(t, nil)
	urls, err := enum.Enumerate(context.Background(), site.server.URL+"/sitemap.xml")

	require.NoError(t, err, "broken shards should not fail the run")
	assert.ElementsMatch(t, []string{
		site.server.URL + "/news/one",
		site.server.URL + "/news/two",
	}, urls)

	stats := enum.Stats()
	assert.Equal(t, int64(2), stats.SitemapsFailed)
}

func TestEnumerator_MemoizesFetches(t *testing.T) {
	site := newSitemapSite(t, map[string]string{
		"/sitemap.xml": `<sitemapindex>
				<sitemap><loc>{{base}}/shard.xml</loc></sitemap>
			</sitemapindex>`,
		"/shard.xml": `<urlset>
				<url><loc>{{base}}/news/one</loc></url>
			</urlset>`,
	})

	enum := newTestEnumerator(t, nil)
	ctx := context.Background()

	first, err := enum.Enumerate(ctx, site.server.URL+"/sitemap.xml")
	require.NoError(t, err)

	second, err := enum.Enumerate(ctx, site.server.URL+"/sitemap.xml")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, site.hitCount("/sitemap.xml"), "memoized sitemaps should not be refetched")
	assert.Equal(t, 1, site.hitCount("/shard.xml"))
	assert.Equal(t, 2, enum.CacheLen())

	stats := enum.Stats()
	assert.Equal(t, int64(2), stats.CacheHits)
}

func TestEnumerator_BreaksCycles(t *testing.T) {
	site := newSitemapSite(t, map[string]string{
		"/a.xml": `<sitemapindex>
				<sitemap><loc>{{base}}/b.xml</loc></sitemap>
			</sitemapindex>`,
		"/b.xml": `<sitemapindex>
				<sitemap><loc>{{base}}/a.xml</loc></sitemap>
				<sitemap><loc>{{base}}/pages.xml</loc></sitemap>
			</sitemapindex>`,
		"/pages.xml": `<urlset>
				<url><loc>{{base}}/news/one</loc></url>
				<url><loc>{{base}}/news/two</loc></url>
			</urlset>`,
	})

	enum := newTestEnumerator(t, nil)

	done := make(chan struct{})
	var urls []string
	var err error
	go func() {
		urls, err = enum.Enumerate(context.Background(), site.server.URL+"/a.xml")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("enumeration did not terminate, cycle not broken")
	}

	require.NoError(t, err)
	assert.Len(t, urls, 2)
	assert.Equal(t, 1, site.hitCount("/a.xml"))
	assert.Equal(t, 1, site.hitCount("/b.xml"))
}

func TestEnumerator_DepthLimit(t *testing.T) {
	site := newSitemapSite(t, map[string]string{
		"/root.xml": `<sitemapindex>
				<sitemap><loc>{{base}}/level1.xml</loc></sitemap>
			</sitemapindex>`,
		"/level1.xml": `<sitemapindex>
				<sitemap><loc>{{base}}/level2.xml</loc></sitemap>
			</sitemapindex>`,
		"/level2.xml": `<urlset>
				<url><loc>{{base}}/news/deep</loc></url>
			</urlset>`,
	})

	enum := newTestEnumerator(t, &EnumeratorConfig{
		MaxDepth:    1,
		Concurrency: 4,
		CacheSize:   100,
	})
	urls, err := enum.Enumerate(context.Background(), site.server.URL+"/root.xml")

	require.NoError(t, err)
	assert.Empty(t, urls)
	assert.Equal(t, 0, site.hitCount("/level2.xml"), "shards past the depth limit should not be fetched")
}

func TestEnumerator_DeduplicatesPageURLs(t *testing.T) {
	site := newSitemapSite(t, map[string]string{
		"/sitemap.xml": `<sitemapindex>
				<sitemap><loc>{{base}}/one.xml</loc></sitemap>
				<sitemap><loc>{{base}}/two.xml</loc></sitemap>
			</sitemapindex>`,
		"/one.xml": `<urlset>
				<url><loc>{{base}}/news/shared</loc></url>
			</urlset>`,
		"/two.xml": `<urlset>
				<url><loc>{{base}}/news/shared</loc></url>
				<url><loc>{{base}}/news/extra</loc></url>
			</urlset>`,
	})

	enum := newTestEnumerator(t, nil)
	urls, err := enum.Enumerate(context.Background(), site.server.URL+"/sitemap.xml")

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		site.server.URL + "/news/shared",
		site.server.URL + "/news/extra",
	}, urls)
}

func TestDefaultEnumeratorConfig(t *testing.T) {
	config := DefaultEnumeratorConfig()

	assert.Equal(t, 5, config.MaxDepth)
	assert.Equal(t, 10, config.Concurrency)
	assert.Equal(t, 1000, config.CacheSize)
}
