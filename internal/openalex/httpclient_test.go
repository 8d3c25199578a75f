package openalex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperdesk/research-assistant-service/internal/observability"
)

// One registration per test binary; promauto uses the default registry.
var testMetrics = observability.NewMetrics("openalex_test")

func TestRetryAfterDelay(t *testing.T) {
	client := NewHTTPClient(HTTPClientConfig{RetryDelay: 100 * time.Millisecond}, nil)

	responseWith := func(retryAfter string) *http.Response {
		resp := &http.Response{Header: http.Header{}}
		if retryAfter != "" {
			resp.Header.Set("Retry-After", retryAfter)
		}
		return resp
	}

	t.Run("seconds value", func(t *testing.T) {
		delay := client.retryAfterDelay(responseWith("3"), 0)
		assert.Equal(t, 3*time.Second, delay)
	})

	t.Run("http date in the future", func(t *testing.T) {
		future := time.Now().Add(5 * time.Second).UTC().Format(http.TimeFormat)
		delay := client.retryAfterDelay(responseWith(future), 0)
		assert.Greater(t, delay, 3*time.Second)
		assert.LessOrEqual(t, delay, 5*time.Second)
	})

	t.Run("http date in the past falls back to backoff", func(t *testing.T) {
		past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
		delay := client.retryAfterDelay(responseWith(past), 1)
		assert.Equal(t, 200*time.Millisecond, delay)
	})

	t.Run("zero seconds falls back to backoff", func(t *testing.T) {
		delay := client.retryAfterDelay(responseWith("0"), 0)
		assert.Equal(t, 100*time.Millisecond, delay)
	})

	t.Run("missing header falls back to backoff", func(t *testing.T) {
		delay := client.retryAfterDelay(responseWith(""), 2)
		assert.Equal(t, 400*time.Millisecond, delay)
	})

	t.Run("garbage header falls back to backoff", func(t *testing.T) {
		delay := client.retryAfterDelay(responseWith("soon"), 0)
		assert.Equal(t, 100*time.Millisecond, delay)
	})
}

func TestDo_RecordsUpstreamMetrics(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPClientConfig{
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
		RateLimit:   1000,
		BurstSize:   1000,
	}, testMetrics)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL+"/works-observed", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	requests := testutil.ToFloat64(
		testMetrics.UpstreamRequestsTotal.WithLabelValues(sourceName, "/works-observed"))
	assert.Equal(t, float64(2), requests, "both the 429 attempt and the retry count")

	rateLimited := testutil.ToFloat64(
		testMetrics.UpstreamRateLimited.WithLabelValues(sourceName))
	assert.Equal(t, float64(1), rateLimited)
}

func TestDo_RecordsNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewHTTPClient(HTTPClientConfig{
		MaxAttempts: 2,
		RetryDelay:  time.Millisecond,
		RateLimit:   1000,
		BurstSize:   1000,
	}, testMetrics)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL+"/works-refused", nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	require.Error(t, err)

	failed := testutil.ToFloat64(
		testMetrics.UpstreamRequestsFailed.WithLabelValues(sourceName, "/works-refused", "network"))
	assert.Equal(t, float64(2), failed, "every attempt records a failure")
}
