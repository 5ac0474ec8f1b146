package protocol

import (
	"testing"
	"time"

	"github.com/irmosync/irmo/pkg/netmodule"
	"github.com/irmosync/irmo/pkg/schema"
	"github.com/irmosync/irmo/pkg/world"
)

func buildTestIface(t *testing.T) (*schema.Interface, *schema.Class, *schema.Method) {
	t.Helper()
	iface := schema.New()
	class, err := iface.NewClass("player", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := class.NewVariable("hp", schema.TypeInt32); err != nil {
		t.Fatal(err)
	}
	method, err := iface.NewMethod("ping")
	if err != nil {
		t.Fatal(err)
	}
	return iface, class, method
}

// pumpUntil ticks both sides repeatedly until cond returns true or timeout
// elapses, advancing a fake wall clock so retransmit/RTT logic sees real
// elapsed time without the test actually sleeping that long.
func pumpUntil(t *testing.T, server, client *Server, cond func() bool, timeout time.Duration) {
	t.Helper()
	start := time.Now()
	now := start
	for elapsed := time.Duration(0); elapsed < timeout; elapsed += 5 * time.Millisecond {
		now = start.Add(elapsed)
		server.Tick(now)
		client.Tick(now)
		if cond() {
			return
		}
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestHandshakeReachesConnectedAndSynchronized(t *testing.T) {
	iface, class, _ := buildTestIface(t)

	serverWorld := world.New(iface)
	obj, err := serverWorld.NewObject(class)
	if err != nil {
		t.Fatal(err)
	}
	if err := obj.SetInt("hp", 100); err != nil {
		t.Fatal(err)
	}

	module := netmodule.NewLoopbackModule()
	serverSocket, err := module.OpenServerSocket(9000)
	if err != nil {
		t.Fatal(err)
	}
	server := NewServer(serverSocket, module, serverWorld, iface)

	clientSocket, err := module.OpenClientSocket()
	if err != nil {
		t.Fatal(err)
	}
	serverAddr, err := module.ResolveAddress("loopback", 9000)
	if err != nil {
		t.Fatal(err)
	}
	clientWorld := world.New(iface)
	client := NewClient(clientSocket, module, serverAddr, clientWorld, iface)

	pumpUntil(t, server, client.Server, func() bool {
		return client.Connection().Synchronized()
	}, time.Second)

	if client.State() != StateConnected {
		t.Fatalf("client state = %v, want connected", client.State())
	}

	mirror := client.Connection().RemoteWorld()
	if mirror == nil {
		t.Fatalf("client connection has no remote world mirror")
	}
	if mirror.NumObjects() != 1 {
		t.Fatalf("mirror has %d objects, want 1", mirror.NumObjects())
	}
	mirrorObj, ok := mirror.GetObject(obj.ID())
	if !ok {
		t.Fatalf("mirror is missing object %d", obj.ID())
	}
	if hp, err := mirrorObj.GetInt("hp"); err != nil || hp != 100 {
		t.Fatalf("mirrored hp = %v err=%v, want 100", hp, err)
	}
}

func TestHandshakeRefusedOnInterfaceMismatch(t *testing.T) {
	iface, _, _ := buildTestIface(t)
	other := schema.New()
	if _, err := other.NewClass("enemy", ""); err != nil {
		t.Fatal(err)
	}

	module := netmodule.NewLoopbackModule()
	serverSocket, _ := module.OpenServerSocket(9001)
	server := NewServer(serverSocket, module, nil, iface)

	clientSocket, _ := module.OpenClientSocket()
	serverAddr, _ := module.ResolveAddress("loopback", 9001)
	// Client offers a world built against a different schema than the
	// server expects: the handshake must be refused.
	client := NewClient(clientSocket, module, serverAddr, world.New(other), nil)

	pumpUntil(t, server, client.Server, func() bool {
		return client.State() == StateDisconnected
	}, time.Second)

	if client.Connection().Error() == "" {
		t.Fatalf("expected a refusal reason to be recorded")
	}
}

func TestMethodInvocationCarriesSourceIdentity(t *testing.T) {
	iface, _, method := buildTestIface(t)

	module := netmodule.NewLoopbackModule()
	serverSocket, _ := module.OpenServerSocket(9002)
	server := NewServer(serverSocket, module, nil, iface)

	clientSocket, _ := module.OpenClientSocket()
	serverAddr, _ := module.ResolveAddress("loopback", 9002)
	// The client expects nothing from the server (expectIface=nil) since
	// this server offers no world of its own; only the server's mirror
	// of what the client offers matters for this test.
	client := NewClient(clientSocket, module, serverAddr, world.New(iface), nil)

	pumpUntil(t, server, client.Server, func() bool {
		return client.Connection().Synchronized()
	}, time.Second)

	var gotSource any
	var calls int
	var serverConn *Connection
	for _, c := range server.Clients() {
		serverConn = c
	}
	if serverConn == nil {
		t.Fatalf("server has no connection recorded for the client")
	}
	// The server's mirror of what the client offers is where a
	// client-originated method invocation is dispatched (see
	// SPEC_FULL.md's "method-atom dispatch world" decision).
	serverConn.RemoteWorld().WatchMethod(method, func(call *world.MethodCall) {
		calls++
		gotSource = call.Source
	})

	client.Connection().InvokeMethod(method, nil)

	pumpUntil(t, server, client.Server, func() bool { return calls > 0 }, time.Second)

	if gotSource != serverConn {
		t.Fatalf("method call source = %v, want the server's Connection for this client", gotSource)
	}
}
