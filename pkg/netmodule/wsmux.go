package netmodule

import (
	"fmt"
	"sync"

	"github.com/irmosync/irmo/pkg/wire"
)

// wsMuxSocket fans in packets from every WebSocket connection accepted
// on a WSListener into a single Socket, the shape pkg/protocol.Server
// expects (one socket serving many peer addresses, as udpSocket already
// does for UDP). WSListener.Accept hands back one Socket per connection
// because each is a distinct net.Conn; wsMuxSocket is the adapter that
// lets a single Server instance still own every WS-connected peer the
// way it owns every UDP-connected peer, instead of requiring one Server
// per browser connection.
type wsMuxSocket struct {
	ln *WSListener

	mu   sync.Mutex
	byID map[string]Socket

	inbox chan loopbackPacket
	ready chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

// ListenMux binds a WebSocket listener on port and returns a Socket
// that multiplexes every accepted connection, suitable for passing
// directly to protocol.NewServer alongside a WSModule for
// ResolveAddress.
func ListenMux(port int) (Socket, error) {
	ln, err := Listen(port)
	if err != nil {
		return nil, err
	}
	s := &wsMuxSocket{
		ln:     ln,
		byID:   make(map[string]Socket),
		inbox:  make(chan loopbackPacket, wsRecvQueueDepth),
		ready:  make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
	go s.acceptLoop()
	return s, nil
}

func (s *wsMuxSocket) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.pump(conn)
	}
}

// pump relays packets from one accepted connection's own Socket into
// the shared inbox until that connection closes.
func (s *wsMuxSocket) pump(conn Socket) {
	addrKey := ""
	for {
		p, from, ok, err := conn.RecvPacket()
		if err != nil {
			s.forget(addrKey)
			return
		}
		if !ok {
			select {
			case <-conn.Ready():
			case <-s.closed:
				return
			}
			continue
		}
		addrKey = from.String()
		s.remember(addrKey, conn)

		select {
		case s.inbox <- loopbackPacket{p: p, from: from}:
		default:
		}
		select {
		case s.ready <- struct{}{}:
		default:
		}
	}
}

func (s *wsMuxSocket) remember(key string, conn Socket) {
	s.mu.Lock()
	s.byID[key] = conn
	s.mu.Unlock()
}

func (s *wsMuxSocket) forget(key string) {
	if key == "" {
		return
	}
	s.mu.Lock()
	delete(s.byID, key)
	s.mu.Unlock()
}

func (s *wsMuxSocket) SendPacket(addr Address, p *wire.Packet) error {
	s.mu.Lock()
	conn, ok := s.byID[addr.String()]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("netmodule: no ws connection for %s", addr.String())
	}
	return conn.SendPacket(addr, p)
}

func (s *wsMuxSocket) RecvPacket() (*wire.Packet, Address, bool, error) {
	select {
	case pkt := <-s.inbox:
		return pkt.p, pkt.from, true, nil
	default:
		return nil, nil, false, nil
	}
}

func (s *wsMuxSocket) Ready() <-chan struct{} { return s.ready }

func (s *wsMuxSocket) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.ln.Close()
		s.mu.Lock()
		for _, c := range s.byID {
			_ = c.Close()
		}
		s.mu.Unlock()
	})
	return nil
}
