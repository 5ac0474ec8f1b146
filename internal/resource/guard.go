// Package resource implements the RSS-based admission guard consulted
// before a Server accepts a new handshake, grounded on
// src/resource_guard.go and ws/internal/shared/limits/resource_guard.go.
// Unlike the teacher's ResourceGuard, which also rate-limits Kafka
// consumption and caps goroutine counts, Irmo has neither concern (no
// message bus, no per-connection goroutine): only the memory emergency
// brake carries over.
package resource

// Guard refuses new connections once the process's resident set size
// exceeds a configured ceiling (§7's "resource exhaustion" error kind,
// connection dimension).
type Guard struct {
	sample  func() int64
	ceiling int64
}

// NewGuard builds a Guard that calls sample to measure current RSS in
// bytes and refuses admission once it exceeds ceiling. A ceiling of 0
// disables the check (every connection is accepted).
func NewGuard(sample func() int64, ceiling int64) *Guard {
	return &Guard{sample: sample, ceiling: ceiling}
}

// Allow reports whether a new connection may be admitted right now, and
// a human-readable reason if not, matching the refusal-string shape
// ResourceGuard.ShouldAcceptConnection uses.
func (g *Guard) Allow() (bool, string) {
	if g == nil || g.ceiling <= 0 {
		return true, ""
	}
	rss := g.sample()
	if rss > g.ceiling {
		return false, "server over its configured memory ceiling"
	}
	return true, ""
}
