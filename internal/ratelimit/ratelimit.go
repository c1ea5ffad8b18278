// Package ratelimit provides an in-memory token-bucket limiter used to cap
// outbound calls to generation providers. Remote generative-language APIs
// enforce their own per-key request quotas; limiting locally turns a hard
// remote 429 into an immediate local rejection the dispatcher can report.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a single token-bucket rate limiter.
type Limiter struct {
	mu         sync.Mutex
	rate       float64 // tokens added per second
	burst      float64 // maximum token capacity
	tokens     float64 // current token count
	lastRefill time.Time
}

// New creates a Limiter allowing ratePerSecond calls/s with a burst capacity.
// If burst <= 0, it defaults to ratePerSecond (no extra burst).
func New(ratePerSecond, burst float64) *Limiter {
	if burst <= 0 {
		burst = ratePerSecond
	}
	return &Limiter{
		rate:       ratePerSecond,
		burst:      burst,
		tokens:     burst,
		lastRefill: time.Now(),
	}
}

// Allow consumes one token and returns true if the call is permitted.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	l.tokens += elapsed * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.lastRefill = now

	if l.tokens >= 1.0 {
		l.tokens--
		return true
	}
	return false
}

// PerProvider maintains one Limiter per provider name, all sharing the same
// rate and burst. A zero rate disables limiting entirely.
type PerProvider struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
	rate     float64
	burst    float64
}

// NewPerProvider creates a PerProvider limiter set. ratePerSecond <= 0
// disables limiting: Allow always returns true.
func NewPerProvider(ratePerSecond, burst float64) *PerProvider {
	return &PerProvider{
		limiters: make(map[string]*Limiter),
		rate:     ratePerSecond,
		burst:    burst,
	}
}

// Allow checks (and creates if needed) the limiter for provider.
func (p *PerProvider) Allow(provider string) bool {
	if p == nil || p.rate <= 0 {
		return true
	}

	p.mu.RLock()
	l, ok := p.limiters[provider]
	p.mu.RUnlock()
	if ok {
		return l.Allow()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok = p.limiters[provider]; ok {
		return l.Allow()
	}
	l = New(p.rate, p.burst)
	p.limiters[provider] = l
	return l.Allow()
}
