// Package protocol implements Irmo's per-client protocol engine (§4.5):
// the packet header, stream-position bookkeeping, send/receive windows,
// RTT/AIMD congestion control, the connection state machine, and the
// Client/Server types that tie a netmodule.Socket and a world.World
// together. It is grounded on the teacher's per-connection state
// tracking (src/connection.go) and resource/backpressure shape
// (ws/internal/shared/limits), adapted from an always-on TCP+goroutine
// server to a single-threaded, tick-driven UDP-style protocol.
package protocol

import "time"

// ProtocolVersion is the wire protocol version exchanged during the SYN
// handshake (§6).
const ProtocolVersion uint16 = 4

// Packet header flag bits (§4.5).
const (
	FlagSYN uint16 = 1 << 0
	FlagACK uint16 = 1 << 1
	FlagFIN uint16 = 1 << 2
	FlagDTA uint16 = 1 << 3
)

const (
	// MaxSendWindow is the largest number of atoms a send window holds
	// at once (§4.5).
	MaxSendWindow = 1024
	// PacketThreshold is both the byte budget of one outgoing data
	// packet and the AIMD slow-start increment (§4.5).
	PacketThreshold = 1024
	// MaxRunLength is the largest atom count a single run-length group
	// can carry (the low 5 bits of a run header byte, §4.5).
	MaxRunLength = 32

	// ConnectRetryInterval is how often an unanswered SYN is resent
	// while CONNECTING (§4.5).
	ConnectRetryInterval = time.Second
	// ConnectMaxAttempts bounds the number of SYN resends before giving
	// up on a handshake (§4.5).
	ConnectMaxAttempts = 6
	// DisconnectRetryInterval is how often an unanswered SYN|FIN is
	// resent while DISCONNECTING (§4.5).
	DisconnectRetryInterval = time.Second
	// DisconnectMaxAttempts bounds the number of SYN|FIN resends (§4.5).
	DisconnectMaxAttempts = 6
	// DisconnectHoldoff is how long a disconnected client record is
	// retained so its peer's retransmitted FIN still gets acked (§4.5).
	DisconnectHoldoff = 10 * time.Second
	// DeadPeerTimeout is the effective retransmit timeout past which a
	// connection is declared dead (§4.5).
	DeadPeerTimeout = 40 * time.Second

	// maxBackoff caps the exponential retransmit backoff multiplier so
	// a long-silent peer doesn't push the retransmit timer to
	// effectively infinite; it yields an effective timeout comfortably
	// past DeadPeerTimeout before that cap itself matters.
	maxBackoff = 64
)

// State is a connection's position in the handshake/teardown state
// machine (§4.5).
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
