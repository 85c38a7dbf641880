// Package fetcher issues the HTTP GET requests the ingestion pipeline runs
// against registered feed URLs.
package fetcher

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"time"

	"github.com/avchen/feedwright/internal/ratelimit"
)

const timeout = 30 * time.Second

// Result is the raw outcome of one fetch attempt.
type Result struct {
	Status  int
	Body    []byte
	Headers http.Header
}

// Fetcher issues feed GET requests through a shared, connection-reusing
// HTTP client, honoring a per-host RateLimiter around every call.
type Fetcher struct {
	client  *http.Client
	limiter *ratelimit.Limiter
}

// New returns a Fetcher that bounds concurrency via limiter.
func New(limiter *ratelimit.Limiter) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		limiter: limiter,
	}
}

// Fetch issues one GET against url. The RateLimiter lease is acquired
// before the request and released on every exit path, including
// cancellation. Transport errors and timeouts are returned as errors; any
// response that arrives, whatever its status code, is returned as a Result
// with a nil error. This layer never retries.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Result, error) {
	lease, err := f.limiter.Acquire(ctx, url)
	if err != nil {
		return Result{}, err
	}
	defer f.limiter.Release(lease)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, err
	}

	return Result{Status: resp.StatusCode, Body: body, Headers: resp.Header}, nil
}
