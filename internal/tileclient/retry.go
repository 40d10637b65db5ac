// Package tileclient fetches and decodes raster DEM and vector (MVT) tiles
// over HTTP, sharing one retry/backoff/timeout/validate core (§4.2, §4.3).
package tileclient

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

// RetryConfig configures retry behavior with exponential backoff, mirroring
// the shape the teacher carried from go-overpass's RetryConfig.
type RetryConfig struct {
	MaxRetries        int
	TimeoutMs         int
	InitialBackoffMs  int
	MaxBackoffMs      int
	BackoffMultiplier float64
	Jitter            bool
	ValidateContent   bool
}

// DefaultRetryConfig returns sensible defaults for tile fetching.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		TimeoutMs:         10_000,
		InitialBackoffMs:  250,
		MaxBackoffMs:      10_000,
		BackoffMultiplier: 2.0,
		Jitter:            true,
		ValidateContent:   true,
	}
}

// fetcher is the shared retrying-fetch core used by both the raster and
// vector clients.
type fetcher struct {
	http  *http.Client
	retry RetryConfig
}

func newFetcher(retry RetryConfig) *fetcher {
	return &fetcher{
		http:  &http.Client{Timeout: time.Duration(retry.TimeoutMs) * time.Millisecond},
		retry: retry,
	}
}

// fetch retries GET url up to MaxRetries times with exponential backoff
// InitialBackoffMs·BackoffMultiplier^attempt (§4.2), capped at
// MaxBackoffMs and, when Jitter is set, scaled by a random factor in
// [0.75, 1.25), failing with a NetworkTimeout-flavored error after the
// last attempt. Cancelable via ctx (dropping the process aborts
// in-flight requests per §5).
func (f *fetcher) fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= f.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := f.backoffDuration(attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		data, err := f.fetchOnce(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("tileclient: exhausted %d retries fetching %s: %w", f.retry.MaxRetries, url, lastErr)
}

func (f *fetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("tileclient: building request: %w", err)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tileclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tileclient: unexpected status %d for %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tileclient: reading body: %w", err)
	}

	if f.retry.ValidateContent && len(data) == 0 {
		return nil, fmt.Errorf("tileclient: empty response body for %s", url)
	}

	return data, nil
}

func (f *fetcher) backoffDuration(attempt int) time.Duration {
	mult := f.retry.BackoffMultiplier
	if mult <= 0 {
		mult = 2.0
	}
	ms := float64(f.retry.InitialBackoffMs)
	for i := 0; i < attempt; i++ {
		ms *= mult
	}
	if f.retry.MaxBackoffMs > 0 && ms > float64(f.retry.MaxBackoffMs) {
		ms = float64(f.retry.MaxBackoffMs)
	}
	if f.retry.Jitter {
		ms *= 0.75 + rand.Float64()*0.5
	}
	return time.Duration(ms) * time.Millisecond
}
