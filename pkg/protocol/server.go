package protocol

import (
	"time"

	"go.uber.org/zap"

	"github.com/irmosync/irmo/internal/metrics"
	"github.com/irmosync/irmo/internal/ratelimit"
	"github.com/irmosync/irmo/internal/resource"
	"github.com/irmosync/irmo/pkg/atom"
	"github.com/irmosync/irmo/pkg/netmodule"
	"github.com/irmosync/irmo/pkg/schema"
	"github.com/irmosync/irmo/pkg/wire"
	"github.com/irmosync/irmo/pkg/world"
)

// ConnectCallback is invoked whenever a connection reaches CONNECTED.
type ConnectCallback func(c *Connection)

// DisconnectCallback is invoked whenever a connection is torn down,
// with the reason recorded for the teardown.
type DisconnectCallback func(c *Connection, reason string)

// Server is the central protocol engine for one side of one or more
// connections (§4.5, §4.6). It owns the socket, a world to offer (may
// be nil, meaning this side offers no synchronized state), the schema
// it expects a peer to offer (may be nil), and one Connection per
// known peer address.
//
// §4.6's "client-side connection modelled as a server whose single
// client is the remote endpoint" is implemented directly: Client (in
// client.go) is a thin wrapper that constructs a Server with
// internalServer set and exactly one address ever dialed. Grounded on
// src/connection.go's connection-registry-plus-per-connection-state
// shape, adapted from many goroutines each owning one net.Conn to one
// goroutine-free struct ticked cooperatively (§5).
type Server struct {
	socket netmodule.Socket
	module netmodule.Module

	world       *world.World
	expectIface *schema.Interface
	codec       *atom.Codec

	internalServer bool
	hostname       string

	clients map[string]*Connection

	onConnect    []ConnectCallback
	onDisconnect []DisconnectCallback

	// Ambient stack, all optional and nil-safe: a Server built directly
	// with NewServer (as every test in this package does) runs with none
	// of them wired, exactly as before. cmd/irmo-server wires all four.
	logger    *zap.Logger
	metrics   *metrics.Registry
	guard     *resource.Guard
	ratelimit *ratelimit.Limiter
}

// NewServer builds a Server bound to socket. offeredWorld is the world
// this side publishes to peers (nil if none); expectIface is the schema
// a peer's own offered world must hash-match (nil if this side accepts
// peers with no world of their own).
func NewServer(socket netmodule.Socket, module netmodule.Module, offeredWorld *world.World, expectIface *schema.Interface) *Server {
	s := &Server{
		socket:      socket,
		module:      module,
		world:       offeredWorld,
		expectIface: expectIface,
		codec:       atom.NewCodec(expectIface),
		clients:     make(map[string]*Connection),
	}
	if offeredWorld != nil {
		offeredWorld.SetSink(s)
	}
	return s
}

// SetHostname sets the hostname this side offers during the handshake
// (§4.5's SYN-initial payload).
func (s *Server) SetHostname(h string) { s.hostname = h }

// SetLogger attaches a structured logger (internal/logging). Protocol
// errors stay silent to the peer (§7) but are logged here for an
// operator.
func (s *Server) SetLogger(l *zap.Logger) { s.logger = l }

// SetMetrics attaches a Prometheus registry (internal/metrics).
func (s *Server) SetMetrics(m *metrics.Registry) { s.metrics = m }

// SetResourceGuard attaches the admission guard (internal/resource)
// consulted before a new handshake is accepted.
func (s *Server) SetResourceGuard(g *resource.Guard) { s.guard = g }

// SetRateLimiter attaches the two-level token-bucket limiter
// (internal/ratelimit) consulted before a never-seen address is allowed
// to start a handshake.
func (s *Server) SetRateLimiter(l *ratelimit.Limiter) { s.ratelimit = l }

func (s *Server) log() *zap.Logger {
	if s.logger == nil {
		return zap.NewNop()
	}
	return s.logger
}

// OnConnect registers fn to be called whenever a peer reaches CONNECTED.
func (s *Server) OnConnect(fn ConnectCallback) { s.onConnect = append(s.onConnect, fn) }

// OnDisconnect registers fn to be called whenever a connection is torn
// down.
func (s *Server) OnDisconnect(fn DisconnectCallback) {
	s.onDisconnect = append(s.onDisconnect, fn)
}

// Clients returns every known connection, connected or not, keyed by
// peer address string.
func (s *Server) Clients() map[string]*Connection { return s.clients }

func (s *Server) fireConnect(c *Connection) {
	for _, fn := range s.onConnect {
		fn(c)
	}
}

func (s *Server) fireDisconnect(c *Connection, reason string) {
	for _, fn := range s.onDisconnect {
		fn(c, reason)
	}
}

// localHash is the hash of the world this side offers, or 0 ("no
// interface") if it offers none (§3, §6).
func (s *Server) localHash() uint32 {
	if s.world == nil {
		return 0
	}
	return s.world.Interface().Hash()
}

// expectHash is the hash this side expects a peer's offered world to
// match, or 0 if it expects none (§3, §6).
func (s *Server) expectHash() uint32 {
	if s.expectIface == nil {
		return 0
	}
	return s.expectIface.Hash()
}

// buildInitialSYN builds this side's connect request: LocalHash is the
// hash of the world this side offers; RemoteHash is the hash this side
// expects the peer to offer (§4.5, §6).
func (s *Server) buildInitialSYN() *wire.Packet {
	return WriteSYNInitial(ProtocolVersion, s.localHash(), s.expectHash(), s.hostname)
}

// Connect creates (or returns the existing) CONNECTING connection to
// addr and kicks off the handshake on this tick (§4.6: only meaningful
// on an internal server, i.e. a Client).
func (s *Server) Connect(addr netmodule.Address) *Connection {
	key := addr.String()
	if c, ok := s.clients[key]; ok {
		return c
	}
	c := newConnection(s, addr)
	s.clients[key] = c
	return c
}

// Tick drains every pending packet from the socket, demuxing each to
// its connection (creating one for an unseen address bearing a valid
// initial SYN, unless this is an internal server, which only ever
// initiates), then advances every connection's own state machine and
// reaps connections that have sat DISCONNECTED past their holdoff
// (§4.5, §5: "a single Tick call per server per frame").
func (s *Server) Tick(now time.Time) {
	for {
		p, from, ok, err := s.socket.RecvPacket()
		if err != nil || !ok {
			break
		}
		s.handleIncoming(from, p, now)
	}

	connected := 0
	for key, c := range s.clients {
		c.tick(now)
		c.checkDeadPeer()
		if c.state == StateDisconnected {
			if c.disconnectHoldoffUntil.IsZero() {
				c.disconnectHoldoffUntil = now.Add(DisconnectHoldoff)
			} else if now.After(c.disconnectHoldoffUntil) {
				delete(s.clients, key)
			}
			continue
		}
		if c.state == StateConnected {
			connected++
		}
	}

	if s.ratelimit != nil {
		s.ratelimit.Tick(now)
	}
	s.sampleMetrics(connected)
}

// sampleMetrics refreshes the gauges that reflect point-in-time state
// rather than a discrete event (active clients, per-connection cwnd/rtt).
func (s *Server) sampleMetrics(connected int) {
	if s.metrics == nil {
		return
	}
	s.metrics.ActiveClients.Set(float64(connected))
	for _, c := range s.clients {
		if c.state != StateConnected {
			continue
		}
		peer := c.peer.String()
		s.metrics.Cwnd.WithLabelValues(peer).Set(c.out.congestion.cwnd)
		s.metrics.RTT.WithLabelValues(peer).Set(c.out.congestion.rtt)
	}
}

func (s *Server) handleIncoming(from netmodule.Address, p *wire.Packet, now time.Time) {
	key := from.String()
	c, known := s.clients[key]

	flags, err := p.ReadU16()
	if err != nil {
		return
	}
	p.SetPos(0)

	if !known {
		if flags != FlagSYN {
			return // anything but a bare initial SYN from an unknown peer is dropped (§7)
		}
		s.handleInitialSYN(from, p, now)
		return
	}

	c.handlePacket(p, now)
}

// handleInitialSYN validates an unknown peer's connect request and
// either refuses it or admits it directly into CONNECTED, implementing
// the two-leg handshake simplification recorded in SPEC_FULL.md's OPEN
// QUESTION DECISIONS (the literal three-way wording's extra leg adds no
// testable behavior beyond what a validate-then-reply exchange already
// gives §8 scenario 1).
func (s *Server) handleInitialSYN(from netmodule.Address, p *wire.Packet, now time.Time) {
	if s.internalServer {
		reply := WriteFIN("connections may only be initiated from the owning side")
		_ = s.socket.SendPacket(from, reply)
		return
	}

	if s.ratelimit != nil && !s.ratelimit.Allow(from.String(), now) {
		s.log().Debug("handshake dropped by rate limiter", zap.String("peer", from.String()))
		return
	}

	if ok, reason := s.guard.Allow(); !ok {
		s.log().Warn("handshake refused by resource guard", zap.String("peer", from.String()), zap.String("reason", reason))
		s.countRefusal()
		_ = s.socket.SendPacket(from, WriteFIN(reason))
		return
	}

	if _, err := p.ReadU16(); err != nil { // consume the flags word
		return
	}
	payload, err := readSYNInitial(p)
	if err != nil {
		return
	}

	// payload.LocalHash is the hash of the world the connecting peer
	// offers: it must match what this server expects a client to offer.
	// payload.RemoteHash is the hash the peer expects this server to
	// offer: it must match what this server actually offers.
	if payload.LocalHash != s.expectHash() || payload.RemoteHash != s.localHash() {
		reason := "client side and server side client interfaces do not match"
		setLastError(reason)
		s.log().Warn("handshake refused", zap.String("peer", from.String()), zap.String("reason", reason))
		s.countRefusal()
		_ = s.socket.SendPacket(from, WriteFIN(reason))
		return
	}

	c := newConnection(s, from)
	c.peerHostname = payload.Hostname
	c.state = StateConnected
	s.clients[from.String()] = c
	c.completeHandshake(now)
	s.socket.SendPacket(from, WriteSYNACK())

	s.log().Info("handshake accepted", zap.String("peer", from.String()), zap.String("hostname", payload.Hostname))
	if s.metrics != nil {
		s.metrics.HandshakeSuccess.Inc()
	}
}

func (s *Server) countRefusal() {
	if s.metrics != nil {
		s.metrics.HandshakeRefused.Inc()
	}
}

func (s *Server) countSent(k atom.Kind) {
	if s.metrics != nil {
		s.metrics.AtomsSent.WithLabelValues(metrics.KindLabel(k)).Inc()
	}
}

// ObjectCreated implements world.ChangeSink: fan the creation out to
// every connected client as a NewObject atom (§4.3, §4.4).
func (s *Server) ObjectCreated(obj *world.Object) {
	class := obj.Class()
	for _, c := range s.clients {
		if c.state != StateConnected {
			continue
		}
		c.out.Enqueue(&atom.NewObject{ObjectID: obj.ID(), ClassID: class.Index})
	}
	s.countSent(atom.KindNewObject)
}

// VariableChanged implements world.ChangeSink: fan the write out to
// every connected client with sender-side coalescing (§4.4).
func (s *Server) VariableChanged(obj *world.Object, idx schema.VarIndex) {
	class := obj.Class()
	v := class.Variable(idx)
	val := obj.ValueAt(idx)
	for _, c := range s.clients {
		if c.state != StateConnected {
			continue
		}
		c.out.EnqueueChange(class, obj.ID(), idx, v.Type, val)
	}
	s.countSent(atom.KindChange)
}

// ObjectDestroyed implements world.ChangeSink: fan the destruction out
// to every connected client, nullifying any pending Change (§4.4).
func (s *Server) ObjectDestroyed(obj *world.Object) {
	for _, c := range s.clients {
		if c.state != StateConnected {
			continue
		}
		c.out.EnqueueDestroy(obj.ID())
	}
	s.countSent(atom.KindDestroy)
}
