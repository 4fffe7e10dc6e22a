package scraping

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient returns a client with fast retries so tests don't sit in
// backoff sleeps.
func newTestClient() *Client {
	return NewClient(&ClientConfig{
		UserAgent:       "BitextMiner/1.0 (+https://caia.tech/bot)",
		Timeout:         5 * time.Second,
		MaxContentSize:  10 * 1024 * 1024,
		PoolSize:        10,
		AcceptLanguages: []string{"en", "cy"},
		Retry: &RetryPolicy{
			MaxRetries:       5,
			BaseDelay:        1 * time.Millisecond,
			MaxDelay:         10 * time.Millisecond,
			BackoffFactor:    2.0,
			RetryStatusCodes: []int{500, 502, 503, 504},
		},
	})
}

func TestClient_RetriesTransientErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := newTestClient()
	body, err := client.Get(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), hits.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient()

	resp, err := client.Do(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), hits.Load())

	_, err = client.Get(context.Background(), server.URL)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(&ClientConfig{
		Timeout:        5 * time.Second,
		MaxContentSize: 1024,
		Retry: &RetryPolicy{
			MaxRetries:       2,
			BaseDelay:        1 * time.Millisecond,
			MaxDelay:         10 * time.Millisecond,
			BackoffFactor:    2.0,
			RetryStatusCodes: []int{500},
		},
	})

	_, err := client.Do(context.Background(), server.URL)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), hits.Load())
}

func TestClient_EnforcesContentSizeLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2048))
	}))
	defer server.Close()

	client := NewClient(&ClientConfig{
		Timeout:        5 * time.Second,
		MaxContentSize: 1024,
		Retry: &RetryPolicy{
			MaxRetries:    0,
			BaseDelay:     1 * time.Millisecond,
			MaxDelay:      10 * time.Millisecond,
			BackoffFactor: 2.0,
		},
	})

	_, err := client.Get(context.Background(), server.URL)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum size")
}

func TestClient_SetsRequestHeaders(t *testing.T) {
	var userAgent, acceptLanguage string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		acceptLanguage = r.Header.Get("Accept-Language")
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient(nil)
	_, err := client.Get(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Contains(t, userAgent, "BitextMiner")
	assert.Equal(t, "en,cy", acceptLanguage)
}

func TestDefaultRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()

	assert.Equal(t, 5, policy.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, policy.BaseDelay)
	assert.Equal(t, 10*time.Second, policy.MaxDelay)
	assert.Equal(t, 2.0, policy.BackoffFactor)
	assert.Equal(t, []int{500, 502, 503, 504}, policy.RetryStatusCodes)
}
