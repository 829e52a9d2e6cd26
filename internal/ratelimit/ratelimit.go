// Package ratelimit bounds per-source-IP webhook load ahead of signature
// verification.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PerIP is a token-bucket limiter keyed by client IP. Entries idle past the
// TTL are dropped on the fly so the map does not grow with every scanner
// that probes the endpoint once.
type PerIP struct {
	mu      sync.Mutex
	entries map[string]*entry
	rps     rate.Limit
	burst   int
	ttl     time.Duration

	lastSweep time.Time
}

func NewPerIP(rps float64, burst int, idleTTL time.Duration) *PerIP {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &PerIP{
		entries: make(map[string]*entry),
		rps:     rate.Limit(rps),
		burst:   burst,
		ttl:     idleTTL,
	}
}

func (p *PerIP) Allow(ip string) bool {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if now.Sub(p.lastSweep) > p.ttl {
		p.sweepLocked(now)
	}

	e, ok := p.entries[ip]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(p.rps, p.burst)}
		p.entries[ip] = e
	}
	e.lastSeen = now
	return e.limiter.Allow()
}

func (p *PerIP) sweepLocked(now time.Time) {
	for ip, e := range p.entries {
		if now.Sub(e.lastSeen) > p.ttl {
			delete(p.entries, ip)
		}
	}
	p.lastSweep = now
}
