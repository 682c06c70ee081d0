package external

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satwallet/internal/types"
)

func newTestClient(maxRetries int) *BaseClient {
	c := NewBaseClient(&http.Client{}, "test", RetryPolicy{
		MaxRetries: maxRetries,
		MinWait:    time.Millisecond,
		MaxWait:    time.Millisecond,
	}, "satwallet-test")
	c.sleepFn = func(time.Duration) {}
	return c
}

func TestDo_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newTestClient(2)
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(3), hits.Load())
}

func TestDo_ExhaustedRetriesMapToUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(1)
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamPrice, appErr.Code)
}

func TestDo_RateLimitMapsToRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestClient(0)
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamRateLimited, appErr.Code)
}

func TestDo_DoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(2)
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int64(1), hits.Load())
}

func TestComputeBackoff_RespectsRetryAfter(t *testing.T) {
	client := NewBaseClient(&http.Client{}, "test", RetryPolicy{
		MaxRetries: 2,
		MinWait:    100 * time.Millisecond,
		MaxWait:    3 * time.Second,
	}, "")

	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("Retry-After", "2")
	assert.Equal(t, 2*time.Second, client.computeBackoff(0, resp))

	// Retry-After beyond MaxWait is clamped.
	resp.Header.Set("Retry-After", "30")
	assert.Equal(t, 3*time.Second, client.computeBackoff(0, resp))
}
