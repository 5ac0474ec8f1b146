package protocol

import "sync"

// lastError is the process-global last-error buffer required by §7 for
// the protocol layer's own error category: handshake refusals, which
// have no other return path to surface through, since the tick loop
// does not return per-packet errors. Malformed packets are dropped
// without recording anything here. It
// mirrors the reference library's irmo_error_report/irmo_error_get: one
// retrievable string, last writer wins, cleared by whoever reads it.
//
// Ordinary, directly-returned errors (a bad schema definition, a
// refused local mutation on a remote world) use plain Go error values
// instead, per this codebase's own idiom elsewhere (pkg/schema,
// pkg/world) — this buffer exists only for the one category in §7 that
// has no caller-held return path to carry an error through: events
// discovered deep inside Server.Tick's packet demux, long after the
// call that could have returned an error to an application's own stack
// frame has already returned.
var (
	lastErrorMu sync.Mutex
	lastError   string
)

// setLastError records msg as the most recent protocol-layer error.
func setLastError(msg string) {
	lastErrorMu.Lock()
	lastError = msg
	lastErrorMu.Unlock()
}

// LastError returns and clears the most recently recorded protocol-layer
// error, or "" if none is pending.
func LastError() string {
	lastErrorMu.Lock()
	defer lastErrorMu.Unlock()
	msg := lastError
	lastError = ""
	return msg
}
