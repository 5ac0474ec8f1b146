// Command irmo-loadtest ramps up a configurable number of WebSocket
// connections against an irmo-server's netmodule/ws listener and reports
// handshake success/failure and round-trip latency, directly adapted from
// loadtest/main.go's ramp-up/report loop shape (ramp rate, sustain
// duration, periodic reporting), retargeted from a browser-pubsub
// protocol onto Irmo's own SYN/SYN|ACK handshake. Where the teacher's
// loadtest speaks the server's own JSON subscribe protocol over
// gorilla/websocket, here each connection performs a raw Irmo handshake:
// the wire-level frames are identical to what pkg/netmodule/ws.go speaks
// (both sides are plain RFC 6455 WebSocket), so a gorilla/websocket
// client can drive an irmo-server's ws listener without depending on
// pkg/protocol's own client state machine — useful for pure connection-
// count/latency load testing independent of the library's own client.
package main

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/irmosync/irmo/pkg/protocol"
	"github.com/irmosync/irmo/pkg/wire"
)

type result struct {
	total      int64
	succeeded  int64
	refused    int64
	failed     int64
	rttTotalMS int64
}

func main() {
	var (
		url               string
		targetConnections int
		rampRate          int
		reportIntervalSec int
		hostname          string
	)

	root := &cobra.Command{
		Use:   "irmo-loadtest",
		Short: "Ramp up WebSocket connections against an irmo-server and report handshake latency",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(url, targetConnections, rampRate, reportIntervalSec, hostname)
		},
	}

	root.Flags().StringVar(&url, "url", "ws://127.0.0.1:9443/", "irmo-server WebSocket listener URL")
	root.Flags().IntVar(&targetConnections, "connections", 100, "target number of connections")
	root.Flags().IntVar(&rampRate, "ramp-rate", 10, "connections per second during ramp-up")
	root.Flags().IntVar(&reportIntervalSec, "report-interval", 5, "report interval in seconds")
	root.Flags().StringVar(&hostname, "hostname", "irmo-loadtest", "hostname advertised in each connection's SYN")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(url string, target, rampRate, reportIntervalSec int, hostname string) error {
	res := &result{}

	fmt.Printf("ramping up %d connections at %d/sec against %s\n", target, rampRate, url)

	stopReport := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		report(res, target, reportIntervalSec, stopReport)
	}()

	ticker := time.NewTicker(time.Second / time.Duration(max1(rampRate)))
	defer ticker.Stop()

	var connWG sync.WaitGroup
	for i := 0; i < target; i++ {
		<-ticker.C
		connWG.Add(1)
		go func(id int) {
			defer connWG.Done()
			dialOne(url, hostname, res)
		}(i)
	}
	connWG.Wait()
	close(stopReport)
	wg.Wait()

	fmt.Printf("\nfinal: %d total, %d succeeded, %d refused, %d failed\n",
		atomic.LoadInt64(&res.total), atomic.LoadInt64(&res.succeeded),
		atomic.LoadInt64(&res.refused), atomic.LoadInt64(&res.failed))
	return nil
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// dialOne opens one WebSocket connection, sends an Irmo initial SYN
// carrying no offered/expected interface (hash 0 on both sides, which a
// server accepts only if it neither offers nor expects a world), and
// waits for SYN|ACK or a
// SYN|FIN refusal, timing the round trip.
func dialOne(url, hostname string, res *result) {
	atomic.AddInt64(&res.total, 1)
	start := time.Now()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		atomic.AddInt64(&res.failed, 1)
		return
	}
	defer conn.Close()

	syn := protocol.WriteSYNInitial(protocol.ProtocolVersion, 0, 0, hostname)
	if err := conn.WriteMessage(websocket.BinaryMessage, syn.Bytes()); err != nil {
		atomic.AddInt64(&res.failed, 1)
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		atomic.AddInt64(&res.failed, 1)
		return
	}

	rtt := time.Since(start)
	atomic.AddInt64(&res.rttTotalMS, rtt.Milliseconds())

	p := wire.FromBytes(data)
	flags, err := protocol.ReadFlags(p)
	if err != nil {
		atomic.AddInt64(&res.failed, 1)
		return
	}
	switch {
	case flags == protocol.FlagSYN|protocol.FlagACK:
		atomic.AddInt64(&res.succeeded, 1)
	case flags&protocol.FlagSYN != 0 && flags&protocol.FlagFIN != 0:
		atomic.AddInt64(&res.refused, 1)
	default:
		atomic.AddInt64(&res.failed, 1)
	}

	// Keep the connection open for the remainder of the run so the
	// server's active-connection gauge reflects sustained load, not just
	// handshake throughput.
	for {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func report(res *result, target, intervalSec int, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Duration(intervalSec) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			total := atomic.LoadInt64(&res.total)
			succeeded := atomic.LoadInt64(&res.succeeded)
			refused := atomic.LoadInt64(&res.refused)
			failed := atomic.LoadInt64(&res.failed)
			avgRTT := float64(0)
			if succeeded > 0 {
				avgRTT = float64(atomic.LoadInt64(&res.rttTotalMS)) / float64(succeeded)
			}
			fmt.Printf("progress: %d/%d dialed, %d succeeded, %d refused, %d failed, avg handshake rtt %.1fms\n",
				total, target, succeeded, refused, failed, avgRTT)
		}
	}
}
