package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string, retries int) *Client {
	c := NewClient(Options{BaseURL: url + "/", APIKey: "k", MaxRetries: retries}, zerolog.Nop())
	c.backoff = func(int) time.Duration { return time.Millisecond }
	return c
}

func TestAnalyse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/analyse", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))

		var req analyseRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "<svg/>", req.SVG)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"svg":"<svg><path/></svg>","stats":{"paths":1},
			"classes":{"tags":{"path":1},"strokes_px":{"1":1}}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3)
	a, err := c.Analyse(context.Background(), "<svg/>")
	require.NoError(t, err)
	assert.Equal(t, "<svg><path/></svg>", a.SVG)
	assert.Equal(t, map[string]int{"path": 1}, a.Classes.Tags)
	assert.Equal(t, map[string]int{"1": 1}, a.Classes.StrokesPx)
	assert.JSONEq(t, `{"paths":1}`, string(a.Stats))
	assert.Equal(t, 1, c.Stats().Count)
}

func TestAnalyse_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"svg":"<svg/>"}`))
	}))
	defer srv.Close()

	a, err := newTestClient(srv.URL, 3).Analyse(context.Background(), "<svg/>")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.NotNil(t, a.Classes.Tags)
	assert.NotNil(t, a.Classes.StrokesPx)
}

func TestAnalyse_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 2)
	_, err := c.Analyse(context.Background(), "<svg/>")
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, c.Stats().Failed)
}

func TestAnalyse_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad svg", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 3).Analyse(context.Background(), "<svg/>")
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestAnalyse_RejectsEmptySVG(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"svg":"  "}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 1).Analyse(context.Background(), "<svg/>")
	assert.Error(t, err)
}

func TestAnalyse_NotConfigured(t *testing.T) {
	c := NewClient(Options{}, zerolog.Nop())
	assert.False(t, c.Configured())
	_, err := c.Analyse(context.Background(), "<svg/>")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestAnalyse_CancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)
	c.backoff = func(int) time.Duration { return time.Hour }
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Analyse(ctx, "<svg/>")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBackoff(t *testing.T) {
	for attempt := range 8 {
		d := Backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 45*time.Second)
	}
}

func TestRetryableError(t *testing.T) {
	err := &RetryableError{StatusCode: 503, Message: "down"}
	assert.Equal(t, "retryable error (status 503): down", err.Error())
	assert.False(t, IsRetryable(context.Canceled))
}
