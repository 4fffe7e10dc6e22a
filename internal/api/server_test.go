package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Caia-Tech/bitext-miner/internal/output"
	"github.com/Caia-Tech/bitext-miner/internal/pipeline"
	"github.com/Caia-Tech/bitext-miner/internal/quality"
	"github.com/Caia-Tech/bitext-miner/internal/scraping"
	"github.com/Caia-Tech/bitext-miner/internal/sitemap"
)

type stubDetector struct{}

func (stubDetector) Detect(text string) (quality.Language, bool) {
	return quality.LanguageOther, false
}

type testComponents struct {
	orchestrator *pipeline.Orchestrator
	events       *pipeline.EventBus
	enumerator   *sitemap.Enumerator
	limiter      *scraping.RateLimiter
	writer       *output.Writer
}

func newTestComponents(t *testing.T, sitemapURL string) *testComponents {
	t.Helper()

	client := scraping.NewClient(&scraping.ClientConfig{
		UserAgent:      "BitextMiner/1.0 (+https://caia.tech/bot)",
		Timeout:        2 * time.Second,
		MaxContentSize: 1 << 20,
		PoolSize:       5,
		Retry: &scraping.RetryPolicy{
			MaxRetries:       0,
			BaseDelay:        time.Millisecond,
			MaxDelay:         time.Millisecond,
			BackoffFactor:    1.0,
			RetryStatusCodes: []int{},
		},
	})
	limiter := scraping.NewRateLimiter(0)
	gate := scraping.NewComplianceGate(client, nil)

	enumerator, err := sitemap.NewEnumerator(client, limiter, nil)
	require.NoError(t, err)

	filter, err := quality.NewFilter(stubDetector{}, nil)
	require.NoError(t, err)

	writer, err := output.NewWriter(&output.WriterConfig{Dir: t.TempDir(), Filename: "pairs.jsonl"})
	require.NoError(t, err)
	t.Cleanup(func() { writer.Close() })

	events := pipeline.NewEventBus(10, 1)
	t.Cleanup(events.Close)

	orch := pipeline.NewOrchestrator(
		enumerator,
		scraping.NewPairResolver(client, limiter, gate, nil),
		scraping.NewContentScraper(client, limiter, gate, nil),
		filter,
		writer,
		events,
		&pipeline.OrchestratorConfig{SitemapURL: sitemapURL, Workers: 2},
	)

	return &testComponents{
		orchestrator: orch,
		events:       events,
		enumerator:   enumerator,
		limiter:      limiter,
		writer:       writer,
	}
}

func newTestServer(t *testing.T, c *testComponents) *Server {
	t.Helper()
	return NewServer(NewHandlers(c.orchestrator, c.events, c.enumerator, c.limiter, c.writer), nil)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &body))
	return body
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t, newTestComponents(t, "https://gov.wales/sitemap.xml"))

	resp, err := server.App().Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "bitext-miner", body["service"])
	assert.NotEmpty(t, body["uptime"])
}

func TestReportEndpointBeforeRun(t *testing.T) {
	server := newTestServer(t, newTestComponents(t, "https://gov.wales/sitemap.xml"))

	resp, err := server.App().Test(httptest.NewRequest("GET", "/api/v1/report", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Contains(t, body["error"], "no mining run")
}

func TestReportEndpointAfterRun(t *testing.T) {
	// A sitemap that 404s still produces a finished report
	site := httptest.NewServer(http.NotFoundHandler())
	defer site.Close()

	components := newTestComponents(t, site.URL+"/sitemap.xml")
	server := newTestServer(t, components)

	_, err := components.orchestrator.Run(context.Background())
	require.Error(t, err)

	resp, err := server.App().Test(httptest.NewRequest("GET", "/api/v1/report", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body := decodeBody(t, resp)
	report, ok := body["report"].(map[string]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, report["run_id"])
	assert.Equal(t, float64(0), report["urls_discovered"])
}

func TestStatsEndpoint(t *testing.T) {
	components := newTestComponents(t, "https://gov.wales/sitemap.xml")
	server := newTestServer(t, components)

	resp, err := server.App().Test(httptest.NewRequest("GET", "/api/v1/stats", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body := decodeBody(t, resp)

	eventBus, ok := body["event_bus"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(0), eventBus["events_published"])

	out, ok := body["output"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(0), out["pairs_written"])
	assert.NotEmpty(t, out["path"])
}

func TestUnknownRoute(t *testing.T) {
	server := newTestServer(t, newTestComponents(t, "https://gov.wales/sitemap.xml"))

	resp, err := server.App().Test(httptest.NewRequest("GET", "/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}
