package protocol

import (
	"time"

	"go.uber.org/zap"

	"github.com/irmosync/irmo/internal/metrics"
	"github.com/irmosync/irmo/pkg/atom"
	"github.com/irmosync/irmo/pkg/netmodule"
	"github.com/irmosync/irmo/pkg/schema"
	"github.com/irmosync/irmo/pkg/wire"
	"github.com/irmosync/irmo/pkg/world"
)

// Connection is one peer's protocol state within a Server: the
// handshake/teardown state machine, the send/receive windows, and (once
// connected, if the peer offers a world) a mirror World fed by applied
// atoms (§4.5). A Server holds one Connection per known peer address; a
// Client (§4.6's "internal server") holds exactly one.
type Connection struct {
	server *Server
	peer   netmodule.Address

	state State

	in  *recvWindow
	out *outbound

	remoteWorld *world.World // mirror of the peer's offered world, nil if it offers none

	localSynced  bool
	remoteSynced bool

	// errorMessage carries a handshake-refusal reason back to the
	// initiator (§7: "initiator surfaces the reason via its
	// connection-error field").
	errorMessage     string
	disconnectReason string

	handshakeAttempts int
	lastHandshakeSent time.Time

	disconnectHoldoffUntil time.Time

	peerHostname string
}

func newConnection(s *Server, peer netmodule.Address) *Connection {
	c := &Connection{
		server: s,
		peer:   peer,
		state:  StateConnecting,
		in:     newRecvWindow(),
		out:    newOutbound(),
	}
	c.out.onRetransmit = func() {
		if c.server.metrics != nil {
			c.server.metrics.Retransmits.Inc()
		}
	}
	return c
}

// State returns the connection's current handshake/teardown state.
func (c *Connection) State() State { return c.state }

// Synchronized reports whether the initial world-state exchange has
// completed in both directions (§4.5's SYNCHRONIZED substate).
func (c *Connection) Synchronized() bool {
	return c.state == StateConnected && c.localSynced && c.remoteSynced
}

// Error returns the handshake-refusal reason, if the connection was
// refused by its peer.
func (c *Connection) Error() string { return c.errorMessage }

// DisconnectReason returns why the connection was torn down, if it was.
func (c *Connection) DisconnectReason() string { return c.disconnectReason }

// RemoteWorld returns the mirror of the peer's offered world, or nil if
// the peer offers none or the handshake has not completed.
func (c *Connection) RemoteWorld() *world.World { return c.remoteWorld }

// Peer returns the connection's remote address.
func (c *Connection) Peer() netmodule.Address { return c.peer }

// InvokeMethod enqueues a method call to be sent to the peer (§4.4,
// §8 scenario 6). It is not subject to coalescing.
func (c *Connection) InvokeMethod(def *schema.Method, args []schema.Value) {
	c.out.Enqueue(atom.NewMethod(def, args))
}

// Disconnect requests an orderly teardown: CONNECTED -> DISCONNECTING,
// resending SYN|FIN until the peer acknowledges or the retry budget is
// exhausted (§4.5).
func (c *Connection) Disconnect() {
	if c.state != StateConnected {
		return
	}
	c.state = StateDisconnecting
	c.handshakeAttempts = 0
	c.lastHandshakeSent = time.Time{}
}

// sendRaw writes a handshake/control packet directly to the socket,
// bypassing the atom send queue (SYN/ACK/FIN packets carry no sequence
// number of their own).
func (c *Connection) sendRaw(p *wire.Packet) {
	_ = c.server.socket.SendPacket(c.peer, p)
}

// tick advances this connection's state machine and, if CONNECTED or
// DISCONNECTING, pumps and transmits its send window (§4.5).
func (c *Connection) tick(now time.Time) {
	switch c.state {
	case StateConnecting:
		c.tickConnecting(now)
	case StateDisconnecting:
		c.tickDisconnecting(now)
	case StateDisconnected:
		// Retained only for the holdoff window so a retransmitted FIN
		// from the peer still gets acked (§4.5); the server reaps it
		// once the holdoff elapses.
	}

	if c.state != StateConnected && c.state != StateDisconnecting {
		return
	}

	c.out.Pump()
	packets, err := c.out.BuildPackets(now, uint16(c.in.Start()))
	if err != nil {
		return
	}
	for _, p := range packets {
		c.sendRaw(p)
	}
	if len(packets) == 0 && c.in.NeedAck() {
		c.sendRaw(WriteBareACK(uint16(c.in.Start())))
	}
	c.in.ClearNeedAck()
}

func (c *Connection) tickConnecting(now time.Time) {
	if !c.server.internalServer {
		// Server-side CONNECTING connections are transitional only: the
		// simplified two-way handshake (see SPEC_FULL.md's OPEN
		// QUESTION DECISIONS) moves them to CONNECTED the instant the
		// validated initial SYN is answered, so tickConnecting never
		// actually observes one in steady state.
		return
	}
	if c.handshakeAttempts > 0 && now.Sub(c.lastHandshakeSent) < ConnectRetryInterval {
		return
	}
	if c.handshakeAttempts >= ConnectMaxAttempts {
		c.state = StateDisconnected
		c.errorMessage = "no response from peer"
		c.server.fireDisconnect(c, c.errorMessage)
		return
	}
	c.sendRaw(c.server.buildInitialSYN())
	c.handshakeAttempts++
	c.lastHandshakeSent = now
}

func (c *Connection) tickDisconnecting(now time.Time) {
	if c.handshakeAttempts > 0 && now.Sub(c.lastHandshakeSent) < DisconnectRetryInterval {
		return
	}
	if c.handshakeAttempts >= DisconnectMaxAttempts {
		c.state = StateDisconnected
		c.disconnectReason = "peer did not acknowledge disconnect"
		c.server.fireDisconnect(c, c.disconnectReason)
		return
	}
	c.sendRaw(WriteFIN(""))
	c.handshakeAttempts++
	c.lastHandshakeSent = now
}

// checkDeadPeer forces DISCONNECTED once the effective retransmit
// timeout exceeds the dead-peer threshold (§4.5).
func (c *Connection) checkDeadPeer() {
	if c.state != StateConnected {
		return
	}
	if c.out.congestion.IsDead() {
		c.state = StateDisconnected
		c.disconnectReason = "peer timed out"
		c.server.log().Warn("peer declared dead", zap.String("peer", c.peer.String()))
		if c.server.metrics != nil {
			c.server.metrics.DeadPeers.Inc()
		}
		c.server.fireDisconnect(c, c.disconnectReason)
	}
}

// handlePacket dispatches one received packet to the right handler
// based on its flags word (§4.5).
func (c *Connection) handlePacket(p *wire.Packet, now time.Time) {
	flags, err := ReadFlags(p)
	if err != nil {
		c.countDropped()
		return // malformed packet, silently dropped (§7)
	}

	switch {
	case flags == FlagSYN|FlagACK:
		c.handleSYNACK(now)
	case flags&FlagSYN != 0 && flags&FlagFIN != 0 && flags&FlagACK != 0:
		c.handleFINACK()
	case flags&FlagSYN != 0 && flags&FlagFIN != 0:
		c.handleFIN(p)
	case flags == FlagACK:
		c.handleBareAck(p, now)
	case flags == FlagACK|FlagDTA:
		c.handleData(p, now)
	default:
		// Unknown/malformed flag combination: dropped (§7).
		c.countDropped()
	}
}

func (c *Connection) countDropped() {
	if c.server.metrics != nil {
		c.server.metrics.AtomsDropped.Inc()
	}
}

func (c *Connection) handleSYNACK(now time.Time) {
	if c.state != StateConnecting {
		return
	}
	c.state = StateConnected
	c.completeHandshake(now)
}

func (c *Connection) handleFIN(p *wire.Packet) {
	reason, _ := readFINReason(p)
	wasConnecting := c.state == StateConnecting
	c.state = StateDisconnected
	if wasConnecting {
		c.errorMessage = reason
		setLastError(reason)
	} else {
		c.disconnectReason = reason
	}
	c.sendRaw(WriteFINACK())
	c.server.log().Info("connection closed by peer", zap.String("peer", c.peer.String()), zap.String("reason", reason))
	c.countDisconnect()
	c.server.fireDisconnect(c, reason)
}

func (c *Connection) handleFINACK() {
	if c.state != StateDisconnecting {
		return
	}
	c.state = StateDisconnected
	c.disconnectReason = "disconnected"
	c.server.log().Info("connection closed", zap.String("peer", c.peer.String()))
	c.countDisconnect()
	c.server.fireDisconnect(c, c.disconnectReason)
}

func (c *Connection) countDisconnect() {
	if c.server.metrics != nil {
		c.server.metrics.Disconnects.Inc()
	}
}

func (c *Connection) handleBareAck(p *wire.Packet, now time.Time) {
	ackLow, err := p.ReadU16()
	if err != nil {
		return
	}
	full := ReconstructSequence(c.out.windowStart, ackLow)
	c.out.HandleAck(full, now)
}

func (c *Connection) handleData(p *wire.Packet, now time.Time) {
	payload, err := readDataPacket(c.server.codec, p, c)
	if err != nil {
		c.countDropped()
		return // malformed packet or unknown atom kind: dropped (§7)
	}

	ackFull := ReconstructSequence(c.out.windowStart, payload.RecvStartLow)
	c.out.HandleAck(ackFull, now)

	base := ReconstructSequence(c.in.Start(), payload.SendStartLow)
	for i, a := range payload.Atoms {
		c.in.Insert(base+uint32(i), a)
		if c.server.metrics != nil {
			c.server.metrics.AtomsReceived.WithLabelValues(metrics.KindLabel(a.Kind())).Inc()
		}
	}

	runCtx := &atom.RunContext{World: c.runWorld(), Source: c}
	c.in.PreExecute(runCtx)
	c.in.DrainContiguous(runCtx, c.onAtomRun, nil)
}

// runWorld is the World that incoming atoms from this peer are applied
// to: the mirror of whatever world the peer offers.
func (c *Connection) runWorld() *world.World { return c.remoteWorld }

func (c *Connection) onAtomRun(a atom.Atom) {
	switch v := a.(type) {
	case *atom.SyncPoint:
		c.localSynced = true
	case *atom.SendWindow:
		c.out.remoteMaxBytes = int(v.MaxBytes)
	}
}

// completeHandshake is run once a connection transitions to CONNECTED
// (on either the initiator, upon receiving SYN|ACK, or the responder,
// upon validating the initial SYN): it prepares the mirror world (if
// the peer offers one) and enqueues the initial world-state dump plus a
// terminating SyncPoint (§4.5).
func (c *Connection) completeHandshake(now time.Time) {
	if c.server.expectIface != nil {
		c.remoteWorld = world.New(c.server.expectIface)
		c.remoteWorld.MarkRemote(c)
	}
	if c.server.world != nil {
		enqueueWorldDump(c.out, c.server.world)
	}
	c.out.Enqueue(atom.NewSyncPoint(func() { c.remoteSynced = true }))
	c.server.fireConnect(c)
}
