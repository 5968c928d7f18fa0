// Package classify talks to the drawing analysis service, which cleans an
// SVG and counts its elements by tag and stroke width.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dgallion1/inkport/internal/filter"
)

// ErrNotConfigured is returned when no analysis service URL is set.
var ErrNotConfigured = errors.New("classification service not configured")

// Client calls the analysis service.
type Client struct {
	baseURL    string
	apiKey     string
	maxRetries int
	httpClient *http.Client
	stats      *Stats
	log        zerolog.Logger

	backoff func(attempt int) time.Duration
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	StatsAge   time.Duration
}

func NewClient(opts Options, log zerolog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		maxRetries: opts.MaxRetries,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		stats:   NewStats(opts.StatsAge),
		log:     log.With().Str("component", "classify").Logger(),
		backoff: Backoff,
	}
}

// Configured reports whether the client has somewhere to send requests.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

type analyseRequest struct {
	SVG string `json:"svg"`
}

// Analysis is the service's answer: a cleaned copy of the drawing, opaque
// service statistics, and the element classes.
type Analysis struct {
	SVG     string          `json:"svg"`
	Stats   json.RawMessage `json:"stats,omitempty"`
	Classes filter.Classes  `json:"classes"`
}

// Analyse posts svg to /analyse, retrying transient failures.
func (c *Client) Analyse(ctx context.Context, svg string) (*Analysis, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	body, err := json.Marshal(analyseRequest{SVG: svg})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	var result *Analysis
	var lastErr error
	for attempt := range c.maxRetries {
		result, lastErr = c.analyseOnce(ctx, body)
		if lastErr == nil || !IsRetryable(lastErr) || attempt == c.maxRetries-1 {
			break
		}
		c.log.Warn().Int("attempt", attempt).Err(lastErr).Msg("retryable analysis error")
		select {
		case <-time.After(c.backoff(attempt)):
		case <-ctx.Done():
			lastErr = ctx.Err()
		}
		if ctx.Err() != nil {
			break
		}
	}

	elapsed := time.Since(start).Milliseconds()
	if lastErr != nil {
		c.stats.RecordFailure(elapsed)
		return nil, lastErr
	}
	c.stats.Record(elapsed)
	return result, nil
}

func (c *Client) analyseOnce(ctx context.Context, body []byte) (*Analysis, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyse", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("analyse: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &RetryableError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("analyse status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var a Analysis
	if err := json.Unmarshal(respBody, &a); err != nil {
		return nil, fmt.Errorf("decode analysis: %w (raw: %s)", err, truncate(string(respBody), 200))
	}
	if strings.TrimSpace(a.SVG) == "" {
		return nil, errors.New("analysis returned no svg")
	}
	if a.Classes.Tags == nil {
		a.Classes.Tags = map[string]int{}
	}
	if a.Classes.StrokesPx == nil {
		a.Classes.StrokesPx = map[string]int{}
	}
	return &a, nil
}

// Stats returns the latency window for analysis calls.
func (c *Client) Stats() StatsSnapshot {
	return c.stats.Snapshot()
}

// Close releases resources.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
