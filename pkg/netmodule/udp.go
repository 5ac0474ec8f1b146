package netmodule

import (
	"fmt"
	"net"
	"sync"

	"github.com/irmosync/irmo/pkg/wire"
)

// UDPModule is the production transport: UDP/IPv4 or UDP/IPv6 depending
// on network ("udp4" or "udp6"), per §6.
type UDPModule struct {
	network string // "udp4" or "udp6"

	mu    sync.Mutex
	addrs map[string]*udpAddress
}

// NewUDP4Module returns a Module bound to IPv4 UDP sockets.
func NewUDP4Module() *UDPModule { return &UDPModule{network: "udp4", addrs: make(map[string]*udpAddress)} }

// NewUDP6Module returns a Module bound to IPv6 UDP sockets.
func NewUDP6Module() *UDPModule { return &UDPModule{network: "udp6", addrs: make(map[string]*udpAddress)} }

type udpAddress struct {
	addr *net.UDPAddr
}

func (a *udpAddress) String() string { return a.addr.IP.String() }
func (a *udpAddress) Port() int      { return a.addr.Port }

// ResolveAddress resolves host:port, interning the result per address
// string so repeated resolution of the same endpoint returns the same
// handle (§5).
func (m *UDPModule) ResolveAddress(host string, port int) (Address, error) {
	key := fmt.Sprintf("%s/%s:%d", m.network, host, port)
	m.mu.Lock()
	if existing, ok := m.addrs[key]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.mu.Unlock()

	resolved, err := net.ResolveUDPAddr(m.network, fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("netmodule: resolve %s: %w", host, err)
	}
	addr := &udpAddress{addr: resolved}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.addrs[key]; ok {
		return existing, nil
	}
	m.addrs[key] = addr
	return addr, nil
}

const udpRecvQueueDepth = 2048
const maxDatagramSize = 65507

type udpSocket struct {
	conn  *net.UDPConn
	inbox chan loopbackPacket
	ready chan struct{}

	closeOnce sync.Once
}

func newUDPSocket(conn *net.UDPConn) *udpSocket {
	s := &udpSocket{
		conn:  conn,
		inbox: make(chan loopbackPacket, udpRecvQueueDepth),
		ready: make(chan struct{}, 1),
	}
	go s.readLoop()
	return s
}

// readLoop is the one blocking goroutine per OS socket that the package
// doc comment describes: it moves bytes off the kernel socket and into
// the non-blocking inbox, so RecvPacket itself never blocks the tick
// loop (§5's single-threaded cooperative model).
func (s *udpSocket) readLoop() {
	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		pkt := loopbackPacket{p: wire.FromBytes(data), from: &udpAddress{addr: from}}
		select {
		case s.inbox <- pkt:
		default:
			// Inbox full: drop, same as real UDP would under loss.
		}
		select {
		case s.ready <- struct{}{}:
		default:
		}
	}
}

func (s *udpSocket) SendPacket(addr Address, p *wire.Packet) error {
	ua, ok := addr.(*udpAddress)
	if !ok {
		return fmt.Errorf("netmodule: udp socket cannot address %T", addr)
	}
	_, err := s.conn.WriteToUDP(p.Bytes(), ua.addr)
	return err
}

func (s *udpSocket) RecvPacket() (*wire.Packet, Address, bool, error) {
	select {
	case pkt := <-s.inbox:
		return pkt.p, pkt.from, true, nil
	default:
		return nil, nil, false, nil
	}
}

func (s *udpSocket) Ready() <-chan struct{} { return s.ready }

func (s *udpSocket) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.conn.Close() })
	return err
}

// OpenClientSocket opens a UDP socket on an OS-assigned ephemeral port.
func (m *UDPModule) OpenClientSocket() (Socket, error) {
	return m.OpenServerSocket(0)
}

// OpenServerSocket opens a UDP socket bound to port (0 for ephemeral).
func (m *UDPModule) OpenServerSocket(port int) (Socket, error) {
	addr := &net.UDPAddr{Port: port}
	conn, err := net.ListenUDP(m.network, addr)
	if err != nil {
		return nil, fmt.Errorf("netmodule: listen %s:%d: %w", m.network, port, err)
	}
	return newUDPSocket(conn), nil
}
