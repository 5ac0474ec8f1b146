// Package netmodule implements Irmo's pluggable transport contract
// (§6): a Module opens client/server sockets and resolves addresses: a
// Socket sends and non-blockingly receives whole packets to/from a
// peer Address.
//
// The reference C library's socket class offers a synchronous
// block_set(sockets[], timeout) that blocks the calling thread across a
// heterogeneous set of sockets. Go has no portable select() over
// arbitrary net.Conns, and the protocol engine's own concurrency model
// (§5: "single-threaded cooperative... tick... a separate block call
// ... waits with a timeout") only ever needs "wait until any socket in
// this set has a packet or the timeout expires." Every Socket here
// therefore exposes a Ready() channel that a background reader
// goroutine signals when a packet is queued; BlockSet selects across
// those channels instead of reimplementing a generic multiplexed
// blocking read. The tick loop itself stays single-threaded: Socket
// implementations move bytes off the OS socket on a private goroutine,
// but RecvPacket and BlockSet never run application code concurrently
// with a Tick call.
package netmodule

import (
	"fmt"
	"time"

	"github.com/irmosync/irmo/pkg/wire"
)

// Address identifies a remote endpoint (§6, §5: "Network addresses are
// reference-counted; the network module may intern them so that
// resolve(host, port) returns the same handle twice for equal inputs").
type Address interface {
	fmt.Stringer
	Port() int
}

// Socket sends and receives whole packets to/from peers (§6).
type Socket interface {
	// SendPacket transmits p to addr.
	SendPacket(addr Address, p *wire.Packet) error
	// RecvPacket returns the next queued packet and its source address,
	// or ok=false if none is currently available. It never blocks.
	RecvPacket() (p *wire.Packet, from Address, ok bool, err error)
	// Ready is signalled (best-effort, may coalesce) whenever a packet
	// becomes available to RecvPacket.
	Ready() <-chan struct{}
	// Close releases the socket's resources.
	Close() error
}

// Module opens sockets and resolves addresses for one transport (§6).
type Module interface {
	OpenClientSocket() (Socket, error)
	OpenServerSocket(port int) (Socket, error)
	ResolveAddress(host string, port int) (Address, error)
}

// BlockSet waits until any socket in sockets has a packet ready to
// receive, or timeout elapses (timeout <= 0 means wait indefinitely).
// It selects across the Ready channels of every socket at once, for a
// single socket as for many; it never falls back to polling, since every
// Socket implementation in this package offers a Ready channel.
func BlockSet(sockets []Socket, timeout time.Duration) error {
	if len(sockets) == 0 {
		return fmt.Errorf("netmodule: BlockSet called with no sockets")
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	cases := make([]<-chan struct{}, len(sockets))
	for i, s := range sockets {
		cases[i] = s.Ready()
	}

	return blockOnChannels(cases, timeoutCh)
}
