package bibleapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"bible-study/domain/bible"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failingBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
		MaxRequests:      1,
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewCircuitBreakerClient(newTestClient(server.URL), failingBreakerConfig())
	req := &bible.SearchRequest{Query: "love", Translations: []string{"NIV"}}

	for i := 0; i < 3; i++ {
		_, err := client.Search(context.Background(), req)
		require.Error(t, err)
	}

	// Breaker is open now: the next call fails fast without touching the wire.
	_, err := client.Search(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))

	states := client.GetCircuitStates()
	assert.Equal(t, gobreaker.StateOpen, states["search"])
}

func TestCircuitBreaker_PerOperationIsolation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/search" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"translations":[],"total_count":0}`))
	}))
	defer server.Close()

	client := NewCircuitBreakerClient(newTestClient(server.URL), failingBreakerConfig())
	req := &bible.SearchRequest{Query: "love", Translations: []string{"NIV"}}

	for i := 0; i < 4; i++ {
		client.Search(context.Background(), req)
	}
	states := client.GetCircuitStates()
	require.Equal(t, gobreaker.StateOpen, states["search"])

	// Reference data keeps flowing while the search breaker is open.
	resp, err := client.ListTranslations(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, resp.TotalCount)
	assert.Equal(t, gobreaker.StateClosed, client.GetCircuitStates()["translations"])
}

func TestCircuitBreaker_DisabledPassesThrough(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	config := failingBreakerConfig()
	config.Enabled = false
	client := NewCircuitBreakerClient(newTestClient(server.URL), config)
	req := &bible.SearchRequest{Query: "love", Translations: []string{"NIV"}}

	for i := 0; i < 6; i++ {
		_, err := client.Search(context.Background(), req)
		require.Error(t, err)
		assert.NotContains(t, err.Error(), "circuit breaker")
	}
	assert.Equal(t, int32(6), atomic.LoadInt32(&requests))
	assert.Empty(t, client.GetCircuitStates())
}

func TestCircuitBreaker_HealthBypassesBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.Write([]byte(`{"status":"healthy"}`))
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewCircuitBreakerClient(newTestClient(server.URL), failingBreakerConfig())
	req := &bible.SearchRequest{Query: "love", Translations: []string{"NIV"}}

	for i := 0; i < 4; i++ {
		client.Search(context.Background(), req)
	}
	require.Equal(t, gobreaker.StateOpen, client.GetCircuitStates()["search"])

	health, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
}

func TestCircuitBreaker_StreamFailuresCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewCircuitBreakerClient(newTestClient(server.URL), failingBreakerConfig())
	req := &bible.SearchRequest{Query: "love", Translations: []string{"NIV"}}

	for i := 0; i < 3; i++ {
		err := client.StreamSearch(context.Background(), req, func(event bible.StreamEvent) error { return nil })
		require.Error(t, err)
	}

	err := client.StreamSearch(context.Background(), req, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")
}
