// Package ratelimit provides per-host politeness for the crawler: request
// pacing and robots.txt rules.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces requests per host.
type Limiter struct {
	mu           sync.RWMutex
	perHost      map[string]*rate.Limiter
	hostDelay    map[string]time.Duration
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a limiter allowing requestsPerSecond to each host.
// requestsPerSecond <= 0 disables pacing unless a host delay is set.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	if burst < 1 {
		burst = 1
	}

	return &Limiter{
		perHost:      make(map[string]*rate.Limiter),
		hostDelay:    make(map[string]time.Duration),
		defaultRate:  limit,
		defaultBurst: burst,
	}
}

// Wait blocks until a request to host is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	return l.hostLimiter(host).Wait(ctx)
}

// Allow reports whether a request to host may happen now, consuming a token
// if so.
func (l *Limiter) Allow(host string) bool {
	return l.hostLimiter(host).Allow()
}

func (l *Limiter) hostLimiter(host string) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.perHost[host]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok = l.perHost[host]; ok {
		return lim
	}
	lim = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.perHost[host] = lim
	return lim
}

// SetHostDelay enforces a minimum delay between requests to host, as
// requested by a robots.txt Crawl-delay. It only ever slows a host down.
func (l *Limiter) SetHostDelay(host string, delay time.Duration) {
	if delay <= 0 {
		return
	}

	limit := rate.Every(delay)
	lim := l.hostLimiter(host)

	l.mu.Lock()
	defer l.mu.Unlock()

	if limit >= lim.Limit() {
		return
	}
	lim.SetLimit(limit)
	lim.SetBurst(1)
	l.hostDelay[host] = delay
}

// HostDelay returns the delay set for host, if any.
func (l *Limiter) HostDelay(host string) time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.hostDelay[host]
}

// Stats returns limiter statistics.
func (l *Limiter) Stats() LimiterStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rps := float64(l.defaultRate)
	if l.defaultRate == rate.Inf {
		rps = 0
	}

	return LimiterStats{
		HostCount:    len(l.perHost),
		DelayedHosts: len(l.hostDelay),
		DefaultRate:  rps,
		DefaultBurst: l.defaultBurst,
	}
}

// LimiterStats contains rate limiter statistics.
type LimiterStats struct {
	HostCount    int     `json:"host_count"`
	DelayedHosts int     `json:"delayed_hosts"`
	DefaultRate  float64 `json:"default_rate"`
	DefaultBurst int     `json:"default_burst"`
}
