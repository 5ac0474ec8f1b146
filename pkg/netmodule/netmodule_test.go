package netmodule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/irmosync/irmo/pkg/wire"
)

func TestLoopbackSendRecvRoundTrip(t *testing.T) {
	m := NewLoopbackModule()

	server, err := m.OpenServerSocket(9000)
	require.NoError(t, err)
	defer server.Close()

	client, err := m.OpenClientSocket()
	require.NoError(t, err)
	defer client.Close()

	serverAddr, err := m.ResolveAddress("loopback", 9000)
	require.NoError(t, err)

	p := wire.New()
	require.NoError(t, p.WriteU16(0xBEEF))
	require.NoError(t, client.SendPacket(serverAddr, p))

	require.NoError(t, waitReady(server, time.Second))

	got, from, ok, err := server.RecvPacket()
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, from)

	v, err := got.ReadU16()
	require.NoError(t, err)
	require.Equal(t, uint16(0xBEEF), v)
}

func TestLoopbackRecvPacketNonBlockingWhenEmpty(t *testing.T) {
	m := NewLoopbackModule()
	s, err := m.OpenServerSocket(9001)
	require.NoError(t, err)
	defer s.Close()

	_, _, ok, err := s.RecvPacket()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLoopbackSendToUnboundPortIsSilentlyDropped(t *testing.T) {
	m := NewLoopbackModule()
	client, err := m.OpenClientSocket()
	require.NoError(t, err)
	defer client.Close()

	addr, err := m.ResolveAddress("loopback", 40000)
	require.NoError(t, err)

	p := wire.New()
	require.NoError(t, client.SendPacket(addr, p))
}

func TestLoopbackResolveAddressInterns(t *testing.T) {
	m := NewLoopbackModule()
	a, err := m.ResolveAddress("host", 1234)
	require.NoError(t, err)
	b, err := m.ResolveAddress("host", 1234)
	require.NoError(t, err)
	require.Same(t, a, b)
}

func TestBlockSetReturnsWhenAnySocketReady(t *testing.T) {
	m := NewLoopbackModule()
	serverA, err := m.OpenServerSocket(9100)
	require.NoError(t, err)
	defer serverA.Close()
	serverB, err := m.OpenServerSocket(9101)
	require.NoError(t, err)
	defer serverB.Close()

	client, err := m.OpenClientSocket()
	require.NoError(t, err)
	defer client.Close()

	addrB, err := m.ResolveAddress("loopback", 9101)
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		p := wire.New()
		_ = client.SendPacket(addrB, p)
	}()

	err = BlockSet([]Socket{serverA, serverB}, time.Second)
	require.NoError(t, err)

	_, _, ok, err := serverB.RecvPacket()
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBlockSetTimesOutWithNoTraffic(t *testing.T) {
	m := NewLoopbackModule()
	s, err := m.OpenServerSocket(9200)
	require.NoError(t, err)
	defer s.Close()

	start := time.Now()
	err = BlockSet([]Socket{s}, 20*time.Millisecond)
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func waitReady(s Socket, timeout time.Duration) error {
	select {
	case <-s.Ready():
		return nil
	case <-time.After(timeout):
		return errTimeout
	}
}

var errTimeout = &timeoutError{}

type timeoutError struct{}

func (e *timeoutError) Error() string { return "netmodule: timed out waiting for Ready" }
