package protocol

import (
	"fmt"
	"time"

	"github.com/irmosync/irmo/pkg/netmodule"
	"github.com/irmosync/irmo/pkg/schema"
	"github.com/irmosync/irmo/pkg/world"
)

// Client is one side's connection to a single, already-known peer: a
// Server configured as §4.6's "internal server," which can only
// initiate its own handshake and refuses any incoming SYN (it is not
// listening for new peers).
type Client struct {
	*Server
	conn *Connection
}

// NewClient builds a Client that will connect to addr once Connect is
// called. offeredWorld is the world this side publishes to the peer
// (nil if none); expectIface is the schema this side expects the peer
// to offer (nil if this side expects no synchronized state from it).
func NewClient(socket netmodule.Socket, module netmodule.Module, addr netmodule.Address, offeredWorld *world.World, expectIface *schema.Interface) *Client {
	s := NewServer(socket, module, offeredWorld, expectIface)
	s.internalServer = true
	return &Client{Server: s, conn: s.Connect(addr)}
}

// Connection returns the client's single connection to its peer.
func (cl *Client) Connection() *Connection { return cl.conn }

// State returns the connection's current handshake/teardown state.
func (cl *Client) State() State { return cl.conn.State() }

// Connect starts the handshake: the connection is already in
// CONNECTING from construction, so this is a no-op kept for symmetry
// with the reference library's explicit connect call and to read well
// at call sites.
func (cl *Client) Connect() { _ = cl.conn }

// Disconnect requests an orderly teardown of the client's connection.
func (cl *Client) Disconnect() { cl.conn.Disconnect() }

// WaitConnected blocks, ticking the client on a short interval, until
// the connection reaches CONNECTED or is refused/times out. It exists
// for tests and simple synchronous call sites; event-driven callers
// should use OnConnect/OnDisconnect and their own tick loop instead.
func (cl *Client) WaitConnected(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		now := time.Now()
		cl.Tick(now)
		switch cl.conn.State() {
		case StateConnected:
			return nil
		case StateDisconnected:
			if cl.conn.Error() != "" {
				return fmt.Errorf("protocol: connection refused: %s", cl.conn.Error())
			}
			return fmt.Errorf("protocol: connection failed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("protocol: timed out waiting to connect")
}
