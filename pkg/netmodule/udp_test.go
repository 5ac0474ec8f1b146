package netmodule

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/irmosync/irmo/pkg/wire"
)

func TestUDPSendRecvRoundTrip(t *testing.T) {
	m := NewUDP4Module()

	server, err := m.OpenServerSocket(0)
	require.NoError(t, err)
	defer server.Close()

	serverPort := server.(*udpSocket).conn.LocalAddr().(*net.UDPAddr).Port

	client, err := m.OpenClientSocket()
	require.NoError(t, err)
	defer client.Close()

	addr, err := m.ResolveAddress("127.0.0.1", serverPort)
	require.NoError(t, err)

	p := wire.New()
	require.NoError(t, p.WriteU32(0xCAFEBABE))
	require.NoError(t, client.SendPacket(addr, p))

	require.NoError(t, waitReady(server, 2*time.Second))

	got, from, ok, err := server.RecvPacket()
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, from)

	v, err := got.ReadU32()
	require.NoError(t, err)
	require.Equal(t, uint32(0xCAFEBABE), v)
}

func TestUDPResolveAddressInterns(t *testing.T) {
	m := NewUDP4Module()
	a, err := m.ResolveAddress("127.0.0.1", 5000)
	require.NoError(t, err)
	b, err := m.ResolveAddress("127.0.0.1", 5000)
	require.NoError(t, err)
	require.Same(t, a, b)
}

func TestUDPRecvPacketNonBlockingWhenEmpty(t *testing.T) {
	m := NewUDP4Module()
	s, err := m.OpenServerSocket(0)
	require.NoError(t, err)
	defer s.Close()

	_, _, ok, err := s.RecvPacket()
	require.NoError(t, err)
	require.False(t, ok)
}
