package protocol

import "time"

// congestion holds one connection's RTT estimate and AIMD congestion
// window state (§4.5). Grounded on the same fields the reference
// implementation's connection struct tracks; reimplemented here as
// float64 milliseconds since the formulas are EMA arithmetic, not
// fixed-point.
type congestion struct {
	rtt      float64 // ms
	rttDev   float64 // ms
	backoff  float64 // retransmit-timeout multiplier
	cwnd     float64 // bytes
	ssthresh float64 // bytes
}

// newCongestion returns a connection's initial congestion state: a
// conservative RTT estimate (no sample taken yet), backoff reset, and a
// cwnd of one packet's worth of slow start.
func newCongestion() *congestion {
	return &congestion{
		rtt:      1000,
		rttDev:   0,
		backoff:  1,
		cwnd:     PacketThreshold,
		ssthresh: MaxSendWindow * PacketThreshold,
	}
}

// Timeout returns the current retransmit timeout: "ripe" atoms are
// those whose age exceeds this (§4.5: "(rtt + 2*rtt_deviation + 1) *
// backoff").
func (c *congestion) Timeout() time.Duration {
	ms := (c.rtt + 2*c.rttDev + 1) * c.backoff
	return time.Duration(ms * float64(time.Millisecond))
}

// IsDead reports whether the current timeout has crossed the
// dead-peer threshold (§4.5).
func (c *congestion) IsDead() bool {
	return c.Timeout() > DeadPeerTimeout
}

// OnRTTSample updates the RTT estimate for a non-resent atom whose
// delivery was just acknowledged, and resets backoff (§4.5: "If the
// oldest cleared atom was not resent, sample ... reset backoff = 1").
// sample is the measured round-trip time for that atom.
func (c *congestion) OnRTTSample(sample time.Duration) {
	sampleMs := float64(sample) / float64(time.Millisecond)

	// rtt_dev uses the *old* rtt estimate (before this sample updates
	// it): rtt=1000,dev=200,sample=500 -> rtt=950,dev=230 only holds
	// this way round (§8).
	c.rttDev = 0.9*c.rttDev + 0.1*absDiffF(sampleMs, c.rtt)
	c.rtt = 0.9*c.rtt + 0.1*sampleMs
	c.backoff = 1
}

// GrowWindow applies one AIMD growth step to cwnd, called whenever any
// atom was freed by an incoming ack regardless of whether it had been
// resent (§4.5's "AIMD" bullet is unconditional on that point).
func (c *congestion) GrowWindow() {
	if c.cwnd < c.ssthresh {
		c.cwnd += PacketThreshold // slow start
	} else {
		c.cwnd += (PacketThreshold * PacketThreshold) / c.cwnd // congestion avoidance
	}
}

// OnWindowZeroRetransmit records that the atom at window index 0 has
// just been retransmitted: backoff doubles (capped) and the window
// collapses to one packet's worth of cwnd (§4.5).
func (c *congestion) OnWindowZeroRetransmit() {
	c.backoff *= 2
	if c.backoff > maxBackoff {
		c.backoff = maxBackoff
	}
	c.ssthresh = c.cwnd / 2
	c.cwnd = PacketThreshold
}

func absDiffF(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
