// Package ratelimit implements the two-level (global + per-source-
// address) token-bucket admission control consulted before a never-seen
// address is allowed to start a handshake, grounded on
// ws/internal/shared/limits/connection_rate_limiter.go. Unlike the
// teacher's limiter, which runs its own cleanup goroutine on a ticker,
// Limiter.Tick is driven from the caller's own tick loop: §5's "single
// Tick call per frame, no background goroutines" rules out a
// self-scheduled ticker here.
package ratelimit

import (
	"time"

	"golang.org/x/time/rate"
)

// Config holds burst/sustained rates for both limiting levels.
type Config struct {
	GlobalBurst int
	GlobalRate  float64

	PerAddressBurst int
	PerAddressRate  float64

	// StaleAfter is how long a per-address bucket may sit unused before
	// Tick evicts it.
	StaleAfter time.Duration
}

// DefaultConfig mirrors connection_rate_limiter.go's defaults.
func DefaultConfig() Config {
	return Config{
		GlobalBurst:     300,
		GlobalRate:      50.0,
		PerAddressBurst: 10,
		PerAddressRate:  1.0,
		StaleAfter:      5 * time.Minute,
	}
}

type addrEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Limiter gates new-connection attempts: a global bucket protects
// against a system-wide flood, a per-address bucket protects against one
// spoofed or misbehaving source hogging every global token.
type Limiter struct {
	cfg    Config
	global *rate.Limiter
	perIP  map[string]*addrEntry
}

// New builds a Limiter from cfg.
func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:    cfg,
		global: rate.NewLimiter(rate.Limit(cfg.GlobalRate), cfg.GlobalBurst),
		perIP:  make(map[string]*addrEntry),
	}
}

// Allow reports whether a new handshake attempt from addr should be
// admitted right now: the global bucket is checked first (cheap, no map
// lookup), then the per-address bucket.
func (l *Limiter) Allow(addr string, now time.Time) bool {
	if l == nil {
		return true
	}
	if !l.global.AllowN(now, 1) {
		return false
	}
	entry, ok := l.perIP[addr]
	if !ok {
		entry = &addrEntry{limiter: rate.NewLimiter(rate.Limit(l.cfg.PerAddressRate), l.cfg.PerAddressBurst)}
		l.perIP[addr] = entry
	}
	entry.lastAccess = now
	return entry.limiter.AllowN(now, 1)
}

// Tick evicts per-address buckets that have been idle past StaleAfter,
// bounding map growth from addresses that only ever connect once. Call
// it from the owning Server's own Tick.
func (l *Limiter) Tick(now time.Time) {
	if l == nil || l.cfg.StaleAfter <= 0 {
		return
	}
	for addr, entry := range l.perIP {
		if now.Sub(entry.lastAccess) > l.cfg.StaleAfter {
			delete(l.perIP, addr)
		}
	}
}
