// Package ratelimit throttles page fetches per host. Unattended template
// re-extraction can walk hundreds of pages on one restaurant site; without
// a limiter that looks like an attack.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	urlutil "github.com/menucollect/clipper/internal/utils/url"
)

// RateLimiter gates requests keyed by URL host.
type RateLimiter interface {
	// Wait blocks until a request to urlStr may proceed, or ctx is done.
	Wait(ctx context.Context, urlStr string) error

	// Allow reports whether a request to urlStr may proceed right now.
	Allow(urlStr string) bool
}

// HostLimiter is a token-bucket limiter per host.
type HostLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	perHost  rate.Limit
	burst    int
}

// NewHostLimiter creates a limiter allowing requestsPerSecond per host.
// Menu sites are small; the defaults stay polite.
func NewHostLimiter(requestsPerSecond float64, burst int) *HostLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 2.0
	}
	if burst <= 0 {
		burst = 4
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		perHost:  rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

func (hl *HostLimiter) Wait(ctx context.Context, urlStr string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	host := urlutil.Host(urlStr)
	if host == "" {
		// Unparsable URL; the fetch will fail with a better error.
		return nil
	}
	return hl.limiterFor(host).Wait(ctx)
}

func (hl *HostLimiter) Allow(urlStr string) bool {
	host := urlutil.Host(urlStr)
	if host == "" {
		return true
	}
	return hl.limiterFor(host).Allow()
}

// SetLimit overrides the rate for one host.
func (hl *HostLimiter) SetLimit(host string, requestsPerSecond float64, burst int) {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	if limiter, ok := hl.limiters[host]; ok {
		limiter.SetLimit(rate.Limit(requestsPerSecond))
		limiter.SetBurst(burst)
		return
	}
	hl.limiters[host] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

func (hl *HostLimiter) limiterFor(host string) *rate.Limiter {
	hl.mu.RLock()
	limiter, ok := hl.limiters[host]
	hl.mu.RUnlock()
	if ok {
		return limiter
	}

	hl.mu.Lock()
	defer hl.mu.Unlock()
	if limiter, ok := hl.limiters[host]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(hl.perHost, hl.burst)
	hl.limiters[host] = limiter
	return limiter
}
