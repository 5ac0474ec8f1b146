package netmodule

import (
	"fmt"
	"sync"

	"github.com/irmosync/irmo/pkg/wire"
)

// LoopbackModule is an in-process transport used for testing: sockets
// opened against the same LoopbackModule instance can exchange packets
// without touching the network, addressed by an integer "port" (§6:
// "a loopback used for testing"). The per-port mailbox is a buffered
// channel, the same shape as the teacher's per-connection `send chan
// []byte` outbound queue, repurposed here as an inbound mailbox keyed
// by destination port instead of destination connection.
type LoopbackModule struct {
	mu        sync.Mutex
	listeners map[int]*loopbackSocket
	nextPort  int

	addrs sync.Map // string(host:port) -> *loopbackAddress, per §5 address interning
}

// NewLoopbackModule returns an empty loopback transport. Client and
// server sockets opened on the same instance can reach each other.
func NewLoopbackModule() *LoopbackModule {
	return &LoopbackModule{listeners: make(map[int]*loopbackSocket), nextPort: 49152}
}

type loopbackAddress struct {
	host string
	port int
}

func (a *loopbackAddress) String() string { return fmt.Sprintf("%s:%d", a.host, a.port) }
func (a *loopbackAddress) Port() int      { return a.port }

// ResolveAddress returns an interned loopback address for host:port.
func (m *LoopbackModule) ResolveAddress(host string, port int) (Address, error) {
	key := fmt.Sprintf("%s:%d", host, port)
	if existing, ok := m.addrs.Load(key); ok {
		return existing.(*loopbackAddress), nil
	}
	addr := &loopbackAddress{host: host, port: port}
	actual, _ := m.addrs.LoadOrStore(key, addr)
	return actual.(*loopbackAddress), nil
}

const loopbackMailboxDepth = 2048

type loopbackPacket struct {
	p    *wire.Packet
	from Address
}

type loopbackSocket struct {
	module *LoopbackModule
	port   int
	inbox  chan loopbackPacket
	ready  chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

// OpenServerSocket binds a socket at a specific, caller-chosen port.
func (m *LoopbackModule) OpenServerSocket(port int) (Socket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.listeners[port]; taken {
		return nil, fmt.Errorf("netmodule: loopback port %d already bound", port)
	}
	s := &loopbackSocket{
		module: m,
		port:   port,
		inbox:  make(chan loopbackPacket, loopbackMailboxDepth),
		ready:  make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
	m.listeners[port] = s
	return s, nil
}

// OpenClientSocket binds a socket at an auto-assigned ephemeral port.
func (m *LoopbackModule) OpenClientSocket() (Socket, error) {
	m.mu.Lock()
	port := m.nextPort
	m.nextPort++
	m.mu.Unlock()
	return m.OpenServerSocket(port)
}

func (s *loopbackSocket) SendPacket(addr Address, p *wire.Packet) error {
	la, ok := addr.(*loopbackAddress)
	if !ok {
		return fmt.Errorf("netmodule: loopback socket cannot address %T", addr)
	}
	s.module.mu.Lock()
	dest, ok := s.module.listeners[la.port]
	s.module.mu.Unlock()
	if !ok {
		// No listener bound at that port: the datagram is silently
		// dropped, matching real UDP's unreliable-delivery contract.
		return nil
	}

	replyAddr, err := s.module.ResolveAddress("loopback", s.port)
	if err != nil {
		return err
	}

	select {
	case dest.inbox <- loopbackPacket{p: wire.FromBytes(append([]byte(nil), p.Bytes()...)), from: replyAddr}:
	default:
		// Mailbox full: drop, matching UDP's best-effort delivery under
		// congestion rather than blocking the sender.
		return nil
	}
	select {
	case dest.ready <- struct{}{}:
	default:
	}
	return nil
}

func (s *loopbackSocket) RecvPacket() (*wire.Packet, Address, bool, error) {
	select {
	case pkt := <-s.inbox:
		return pkt.p, pkt.from, true, nil
	default:
		return nil, nil, false, nil
	}
}

func (s *loopbackSocket) Ready() <-chan struct{} { return s.ready }

func (s *loopbackSocket) Close() error {
	s.closeOnce.Do(func() {
		s.module.mu.Lock()
		delete(s.module.listeners, s.port)
		s.module.mu.Unlock()
		close(s.closed)
	})
	return nil
}
