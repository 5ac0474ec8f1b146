package netmodule

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/irmosync/irmo/pkg/wire"
)

func TestWSMuxSocketFansInMultipleConnections(t *testing.T) {
	muxSocket, err := ListenMux(0)
	require.NoError(t, err)
	defer muxSocket.Close()

	mux := muxSocket.(*wsMuxSocket)
	port := mux.ln.ln.Addr().(*net.TCPAddr).Port

	module := NewWSModule()

	clientA, err := module.DialClient("127.0.0.1", port)
	require.NoError(t, err)
	defer clientA.Close()

	clientB, err := module.DialClient("127.0.0.1", port)
	require.NoError(t, err)
	defer clientB.Close()

	p := wire.New()
	require.NoError(t, p.WriteU16(0x1234))
	require.NoError(t, clientA.SendPacket(nil, p))

	require.NoError(t, waitReady(muxSocket, 2*time.Second))
	got, from, ok, err := muxSocket.RecvPacket()
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, from)
	v, err := got.ReadU16()
	require.NoError(t, err)
	require.Equal(t, uint16(0x1234), v)

	q := wire.New()
	require.NoError(t, q.WriteU16(0x5678))
	require.NoError(t, clientB.SendPacket(nil, q))

	require.NoError(t, waitReady(muxSocket, 2*time.Second))
	got2, from2, ok2, err := muxSocket.RecvPacket()
	require.NoError(t, err)
	require.True(t, ok2)
	require.NotEqual(t, from.String(), from2.String())
}

func TestWSMuxSocketSendPacketRoutesByAddress(t *testing.T) {
	muxSocket, err := ListenMux(0)
	require.NoError(t, err)
	defer muxSocket.Close()

	mux := muxSocket.(*wsMuxSocket)
	port := mux.ln.ln.Addr().(*net.TCPAddr).Port

	module := NewWSModule()
	client, err := module.DialClient("127.0.0.1", port)
	require.NoError(t, err)
	defer client.Close()

	p := wire.New()
	require.NoError(t, p.WriteU8(1))
	require.NoError(t, client.SendPacket(nil, p))
	require.NoError(t, waitReady(muxSocket, 2*time.Second))
	_, from, ok, err := muxSocket.RecvPacket()
	require.NoError(t, err)
	require.True(t, ok)

	reply := wire.New()
	require.NoError(t, reply.WriteU8(2))
	require.NoError(t, muxSocket.SendPacket(from, reply))

	require.NoError(t, waitReady(client, 2*time.Second))
	got, _, ok, err := client.RecvPacket()
	require.NoError(t, err)
	require.True(t, ok)
	v, err := got.ReadU8()
	require.NoError(t, err)
	require.Equal(t, uint8(2), v)
}
