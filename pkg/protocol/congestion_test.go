package protocol

import (
	"math"
	"testing"
	"time"
)

func approxEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestCongestionOnRTTSampleUsesOldRTT(t *testing.T) {
	c := &congestion{rtt: 1000, rttDev: 200, backoff: 2}
	c.OnRTTSample(500 * time.Millisecond)

	if !approxEqual(c.rtt, 950, 0.001) {
		t.Fatalf("rtt = %v, want 950", c.rtt)
	}
	if !approxEqual(c.rttDev, 230, 0.001) {
		t.Fatalf("rttDev = %v, want 230 (must be computed from the OLD rtt, not the updated one)", c.rttDev)
	}
	if c.backoff != 1 {
		t.Fatalf("backoff = %v, want reset to 1", c.backoff)
	}
}

func TestCongestionGrowWindowSlowStart(t *testing.T) {
	c := &congestion{cwnd: 100, ssthresh: 1000}
	c.GrowWindow()
	if c.cwnd != 100+PacketThreshold {
		t.Fatalf("cwnd = %v, want %v", c.cwnd, 100+float64(PacketThreshold))
	}
}

func TestCongestionGrowWindowCongestionAvoidance(t *testing.T) {
	c := &congestion{cwnd: 2000, ssthresh: 1000}
	c.GrowWindow()
	want := 2000 + float64(PacketThreshold*PacketThreshold)/2000
	if !approxEqual(c.cwnd, want, 0.001) {
		t.Fatalf("cwnd = %v, want %v", c.cwnd, want)
	}
}

func TestCongestionOnWindowZeroRetransmitHalvesSsthresh(t *testing.T) {
	c := newCongestion()
	c.cwnd = 4000
	c.backoff = 1
	c.OnWindowZeroRetransmit()

	if c.ssthresh != 2000 {
		t.Fatalf("ssthresh = %v, want 2000", c.ssthresh)
	}
	if c.cwnd != PacketThreshold {
		t.Fatalf("cwnd = %v, want reset to %v", c.cwnd, float64(PacketThreshold))
	}
	if c.backoff != 2 {
		t.Fatalf("backoff = %v, want doubled to 2", c.backoff)
	}
}

func TestCongestionBackoffCapped(t *testing.T) {
	c := newCongestion()
	c.backoff = maxBackoff
	c.OnWindowZeroRetransmit()
	if c.backoff != maxBackoff {
		t.Fatalf("backoff = %v, want capped at %v", c.backoff, maxBackoff)
	}
}

func TestCongestionTimeoutGrowsWithBackoff(t *testing.T) {
	c := &congestion{rtt: 100, rttDev: 0, backoff: 1}
	t1 := c.Timeout()
	c.backoff = 4
	t2 := c.Timeout()
	if t2 != 4*t1 {
		t.Fatalf("timeout did not scale linearly with backoff: t1=%v t2=%v", t1, t2)
	}
}

func TestCongestionIsDead(t *testing.T) {
	c := &congestion{rtt: 100, rttDev: 0, backoff: 1}
	if c.IsDead() {
		t.Fatalf("fresh connection should not be dead")
	}
	c.backoff = maxBackoff
	c.rtt = 1000
	if !c.IsDead() {
		t.Fatalf("connection with a huge effective timeout should be dead")
	}
}
