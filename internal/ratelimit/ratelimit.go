// Package ratelimit bounds concurrent outbound requests per remote host.
package ratelimit

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/sync/semaphore"
)

const defaultBucket = "default"

// Observer is notified as leases are acquired and released, so the
// Supervisor can expose the current per-host in-flight count as a gauge
// without the RateLimiter depending on any particular metrics library.
type Observer interface {
	IncInFlight(host string)
	DecInFlight(host string)
}

// Limiter caps the number of in-flight requests to any one host. A mutex
// guards lazy creation of per-host semaphores; the mutex is never held
// while a semaphore is being awaited.
type Limiter struct {
	mu       sync.Mutex
	hosts    map[string]*semaphore.Weighted
	limit    int64
	observer Observer
}

// New returns a Limiter admitting at most perHostLimit concurrent callers
// to any single host.
func New(perHostLimit int) *Limiter {
	if perHostLimit < 1 {
		perHostLimit = 1
	}
	return &Limiter{
		hosts: make(map[string]*semaphore.Weighted),
		limit: int64(perHostLimit),
	}
}

// SetObserver attaches obs so future Acquire/Release calls report
// in-flight lease counts. Not safe to call concurrently with Acquire;
// callers set it once during startup before traffic begins.
func (l *Limiter) SetObserver(obs Observer) {
	l.observer = obs
}

// Lease represents a held slot for one host; it must be released exactly
// once via Release.
type Lease struct {
	sem  *semaphore.Weighted
	host string
}

// Acquire blocks until a slot for the request's host is available, or
// until ctx is cancelled. Waiters for a given host are admitted in FIFO
// order; there is no fairness guarantee across different hosts.
func (l *Limiter) Acquire(ctx context.Context, rawURL string) (Lease, error) {
	host := hostOf(rawURL)
	sem := l.semaphoreFor(host)
	if err := sem.Acquire(ctx, 1); err != nil {
		return Lease{}, err
	}
	if l.observer != nil {
		l.observer.IncInFlight(host)
	}
	return Lease{sem: sem, host: host}, nil
}

// Release returns the slot held by lease. Safe to call once per successful
// Acquire.
func (l *Limiter) Release(lease Lease) {
	if lease.sem == nil {
		return
	}
	lease.sem.Release(1)
	if l.observer != nil {
		l.observer.DecInFlight(lease.host)
	}
}

func (l *Limiter) semaphoreFor(host string) *semaphore.Weighted {
	l.mu.Lock()
	sem, ok := l.hosts[host]
	if !ok {
		sem = semaphore.NewWeighted(l.limit)
		l.hosts[host] = sem
	}
	l.mu.Unlock()

	return sem
}

// hostOf extracts the host a request would be sent to; unparseable URLs
// fall back to a shared sentinel bucket so they still contend with each
// other without affecting real hosts.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return defaultBucket
	}
	return u.Host
}
