package netmodule

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	gobwasws "github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/irmosync/irmo/pkg/wire"
)

// WSModule is a WebSocket-framed transport: useful when Irmo peers sit
// behind infrastructure that only forwards HTTP, such as a browser
// client. Each Irmo packet is carried as exactly one binary WebSocket
// frame (§6 lists "transports a single Irmo packet per WS frame" as the
// wire contract this module must honor).
type WSModule struct {
	mu    sync.Mutex
	addrs map[string]*wsAddress
}

// NewWSModule returns an empty WebSocket transport.
func NewWSModule() *WSModule { return &WSModule{addrs: make(map[string]*wsAddress)} }

type wsAddress struct {
	host string
	port int
}

func (a *wsAddress) String() string { return a.host }
func (a *wsAddress) Port() int      { return a.port }

func (m *WSModule) ResolveAddress(host string, port int) (Address, error) {
	key := fmt.Sprintf("%s:%d", host, port)
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.addrs[key]; ok {
		return existing, nil
	}
	addr := &wsAddress{host: host, port: port}
	m.addrs[key] = addr
	return addr, nil
}

// OpenClientSocket always returns an error: a WebSocket client socket
// needs a host and port to dial, so it is opened with DialClient.
func (m *WSModule) OpenClientSocket() (Socket, error) {
	return nil, fmt.Errorf("netmodule: WSModule client sockets are opened with DialClient(host, port), not OpenClientSocket")
}

// DialClient performs the WebSocket handshake against a server opened
// with OpenServerSocket and returns a connected peer Socket.
func (m *WSModule) DialClient(host string, port int) (Socket, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, _, _, err := gobwasws.Dial(nil, fmt.Sprintf("ws://%s/", addr))
	if err != nil {
		return nil, fmt.Errorf("netmodule: ws dial %s: %w", addr, err)
	}
	peer := &wsAddress{host: host, port: port}
	return newWSSocket(conn, gobwasws.StateClientSide, peer), nil
}

// OpenServerSocket always returns an error: Irmo's single-threaded tick
// loop expects one Socket per peer, so WebSocket servers are opened with
// Listen(port), whose *WSListener hands out one Socket per accepted
// connection.
func (m *WSModule) OpenServerSocket(port int) (Socket, error) {
	return nil, fmt.Errorf("netmodule: WSModule servers are opened with Listen(port), not OpenServerSocket")
}

// WSListener accepts incoming WebSocket connections, each becoming its
// own Socket. This mirrors the teacher's acceptLoop spawning one
// handleConnection per accepted net.Conn, except each resulting Socket
// is handed to the caller instead of registered in a broadcast hub.
type WSListener struct {
	ln net.Listener
}

// Listen binds a TCP listener on port and upgrades incoming
// connections to WebSocket.
func Listen(port int) (*WSListener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("netmodule: ws listen :%d: %w", port, err)
	}
	return &WSListener{ln: ln}, nil
}

// Accept blocks until a client connects and the WebSocket handshake
// completes, returning a Socket for that peer.
func (l *WSListener) Accept() (Socket, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	if err := conn.SetDeadline(time.Now().Add(10 * time.Second)); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := gobwasws.Upgrade(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("netmodule: ws upgrade: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})

	peer := &wsAddress{host: conn.RemoteAddr().String(), port: 0}
	return newWSSocket(conn, gobwasws.StateServerSide, peer), nil
}

// Close stops accepting new connections.
func (l *WSListener) Close() error { return l.ln.Close() }

const wsRecvQueueDepth = 2048

type wsSocket struct {
	conn  net.Conn
	state gobwasws.State
	peer  Address

	inbox chan loopbackPacket
	ready chan struct{}

	closeOnce sync.Once
}

func newWSSocket(conn net.Conn, state gobwasws.State, peer Address) *wsSocket {
	s := &wsSocket{
		conn:  conn,
		state: state,
		peer:  peer,
		inbox: make(chan loopbackPacket, wsRecvQueueDepth),
		ready: make(chan struct{}, 1),
	}
	go s.readLoop()
	return s
}

// readLoop mirrors the teacher's readLoop: pull frames off the
// connection on a private goroutine, answer pings, discard anything
// that isn't a data frame, and hand binary/text payloads to the
// non-blocking inbox instead of a broadcast hub.
func (s *wsSocket) readLoop() {
	var reader *wsutil.Reader
	if s.state == gobwasws.StateServerSide {
		reader = wsutil.NewReader(s.conn, gobwasws.StateServerSide)
	} else {
		reader = wsutil.NewReader(s.conn, gobwasws.StateClientSide)
	}

	for {
		head, err := reader.NextFrame()
		if err != nil {
			return
		}

		switch head.OpCode {
		case gobwasws.OpClose:
			return
		case gobwasws.OpPing:
			if err := s.writePong(); err != nil {
				return
			}
		case gobwasws.OpText, gobwasws.OpBinary:
			payload := make([]byte, head.Length)
			if _, err := io.ReadFull(reader, payload); err != nil {
				return
			}
			pkt := loopbackPacket{p: wire.FromBytes(payload), from: s.peer}
			select {
			case s.inbox <- pkt:
			default:
			}
			select {
			case s.ready <- struct{}{}:
			default:
			}
		default:
			if _, err := io.CopyN(io.Discard, reader, int64(head.Length)); err != nil {
				return
			}
		}
	}
}

func (s *wsSocket) writePong() error {
	if s.state == gobwasws.StateServerSide {
		return wsutil.WriteServerMessage(s.conn, gobwasws.OpPong, nil)
	}
	return wsutil.WriteClientMessage(s.conn, gobwasws.OpPong, nil)
}

func (s *wsSocket) SendPacket(addr Address, p *wire.Packet) error {
	if s.state == gobwasws.StateServerSide {
		return wsutil.WriteServerMessage(s.conn, gobwasws.OpBinary, p.Bytes())
	}
	return wsutil.WriteClientMessage(s.conn, gobwasws.OpBinary, p.Bytes())
}

func (s *wsSocket) RecvPacket() (*wire.Packet, Address, bool, error) {
	select {
	case pkt := <-s.inbox:
		return pkt.p, pkt.from, true, nil
	default:
		return nil, nil, false, nil
	}
}

func (s *wsSocket) Ready() <-chan struct{} { return s.ready }

func (s *wsSocket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.state == gobwasws.StateServerSide {
			_ = wsutil.WriteServerMessage(s.conn, gobwasws.OpClose, nil)
		} else {
			_ = wsutil.WriteClientMessage(s.conn, gobwasws.OpClose, nil)
		}
		err = s.conn.Close()
	})
	return err
}
