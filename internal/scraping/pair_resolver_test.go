package scraping

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveHTML(t *testing.T, body string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestPairResolver_FindsWelshLink(t *testing.T) {
	page := `<html><body>
		<a class="language-link" href="/cy/newyddion">Cymraeg</a>
		<div class="announcement-item__article"><p>News.</p></div>
	</body></html>`
	server := serveHTML(t, page)

	resolver := NewPairResolver(newTestClient(), nil, nil, nil)
	pair, err := resolver.Resolve(context.Background(), server.URL+"/news")

	require.NoError(t, err)
	require.NotNil(t, pair)
	assert.Equal(t, server.URL+"/news", pair.EnglishURL)
	assert.Equal(t, server.URL+"/cy/newyddion", pair.WelshURL)
}

func TestPairResolver_NoWelshVersion(t *testing.T) {
	page := `<html><body><p>English only content.</p></body></html>`
	server := serveHTML(t, page)

	resolver := NewPairResolver(newTestClient(), nil, nil, nil)
	pair, err := resolver.Resolve(context.Background(), server.URL+"/news")

	require.NoError(t, err)
	assert.Nil(t, pair, "a page without a language link is not an error")
}

func TestPairResolver_RequiresExactLinkText(t *testing.T) {
	tests := []struct {
		name string
		page string
	}{
		{
			name: "different language name",
			page: `<a class="language-link" href="/en">English</a>`,
		},
		{
			name: "surrounding whitespace",
			page: `<a class="language-link" href="/cy"> Cymraeg </a>`,
		},
		{
			name: "missing href",
			page: `<a class="language-link">Cymraeg</a>`,
		},
		{
			name: "wrong class",
			page: `<a class="nav-link" href="/cy">Cymraeg</a>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := serveHTML(t, "<html><body>"+tt.page+"</body></html>")

			resolver := NewPairResolver(newTestClient(), nil, nil, nil)
			pair, err := resolver.Resolve(context.Background(), server.URL+"/news")

			require.NoError(t, err)
			assert.Nil(t, pair)
		})
	}
}

func TestPairResolver_FirstMatchWins(t *testing.T) {
	page := `<html><body>
		<a class="language-link" href="/cy/un">Cymraeg</a>
		<a class="language-link" href="/cy/dau">Cymraeg</a>
	</body></html>`
	server := serveHTML(t, page)

	resolver := NewPairResolver(newTestClient(), nil, nil, nil)
	pair, err := resolver.Resolve(context.Background(), server.URL+"/news")

	require.NoError(t, err)
	require.NotNil(t, pair)
	assert.Equal(t, server.URL+"/cy/un", pair.WelshURL)
}

func TestPairResolver_KeepsAbsoluteHref(t *testing.T) {
	page := `<html><body>
		<a class="language-link" href="https://llyw.cymru/newyddion">Cymraeg</a>
	</body></html>`
	server := serveHTML(t, page)

	resolver := NewPairResolver(newTestClient(), nil, nil, nil)
	pair, err := resolver.Resolve(context.Background(), server.URL+"/news")

	require.NoError(t, err)
	require.NotNil(t, pair)
	assert.Equal(t, "https://llyw.cymru/newyddion", pair.WelshURL)
}

func TestPairResolver_FetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	resolver := NewPairResolver(newTestClient(), nil, nil, nil)
	pair, err := resolver.Resolve(context.Background(), server.URL+"/gone")

	assert.Error(t, err)
	assert.Nil(t, pair)
	assert.Contains(t, err.Error(), "404")
}

func TestPairResolver_HonorsRobots(t *testing.T) {
	robots := "User-agent: *\nDisallow: /\n"
	gate, server, _ := newTestGate(t, robots, http.StatusOK)

	resolver := NewPairResolver(newTestClient(), nil, gate, nil)
	pair, err := resolver.Resolve(context.Background(), server.URL+"/news")

	assert.ErrorIs(t, err, ErrRobotsDisallowed)
	assert.Nil(t, pair)
}
