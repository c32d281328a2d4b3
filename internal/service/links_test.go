package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"whatsgate/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractLinks(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"no links", "just words here", nil},
		{"http url", "see https://example.com/a?q=1 now", []string{"https://example.com/a?q=1"}},
		{"ftp and ws", "ftp://host/file and ws://host/sock", []string{"ftp://host/file", "ws://host/sock"}},
		{"bare www", "visit www.example.com today", []string{"www.example.com"}},
		{"subdomain host", "at docs.example.com/path ok", []string{"docs.example.com/path"}},
		{"duplicates collapsed", "https://a.io/x https://a.io/x", []string{"https://a.io/x"}},
		{"multiple", "https://a.io/1 then www.b.org/2", []string{"https://a.io/1", "www.b.org/2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractLinks(tt.text))
		})
	}
}

func TestLinkNotifierPush(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewLinkNotifier(models.CrawlerConfig{URL: server.URL, TimeoutSec: 5}, quietLogger())
	require.NoError(t, n.Push(context.Background(), []string{"https://a.io/1", "https://b.io/2"}))
	assert.Equal(t, "https://a.io/1,https://b.io/2", got["links"])
}

func TestLinkNotifierNoEndpointIsNoOp(t *testing.T) {
	n := NewLinkNotifier(models.CrawlerConfig{}, quietLogger())
	assert.NoError(t, n.Push(context.Background(), []string{"https://a.io/1"}))
}

func TestLinkNotifierBreakerOpensOnRepeatedFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := NewLinkNotifier(models.CrawlerConfig{URL: server.URL, TimeoutSec: 5}, quietLogger())
	for i := 0; i < 5; i++ {
		require.Error(t, n.Push(context.Background(), []string{"https://a.io/1"}))
	}

	server.Close()
	// Breaker is open now; the push fails without reaching the network.
	err := n.Push(context.Background(), []string{"https://a.io/1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker")
}
