package protocol

import (
	"time"

	"github.com/irmosync/irmo/pkg/atom"
	"github.com/irmosync/irmo/pkg/schema"
	"github.com/irmosync/irmo/pkg/wire"
)

type sendSlot struct {
	seq      uint32
	atom     atom.Atom
	sendTime time.Time // zero = UNSENT
	size     int
	resent   bool
}

func (s *sendSlot) ripe(now time.Time, timeout time.Duration) bool {
	return s.sendTime.IsZero() || now.Sub(s.sendTime) >= timeout
}

// outbound is one connection's send side: the queue of atoms awaiting
// entry into the window, the window itself, and the congestion state
// governing how much of the window may be in flight (§4.4, §4.5).
type outbound struct {
	queue        []atom.Atom
	queueChange  map[schema.ObjectID]*atom.Change
	window       []*sendSlot
	windowStart  uint32
	windowChange map[schema.ObjectID]*atom.Change

	nextSeq uint32

	congestion *congestion

	localMaxBytes  int // 0 = unset
	remoteMaxBytes int // 0 = unset, set by a received SendWindow atom

	// onRetransmit, if set, is called once per BuildPackets invocation
	// that had to resend the oldest unacked atom in the window.
	onRetransmit func()
}

func newOutbound() *outbound {
	return &outbound{
		queueChange:  make(map[schema.ObjectID]*atom.Change),
		windowChange: make(map[schema.ObjectID]*atom.Change),
		congestion:   newCongestion(),
	}
}

// Enqueue appends an atom with no coalescing behavior of its own
// (NewObject, Method, SendWindow, SyncPoint).
func (ow *outbound) Enqueue(a atom.Atom) {
	ow.queue = append(ow.queue, a)
}

// EnqueueChange applies the sender-side coalescing rule for a single
// variable write (§4.4): clear the bit from any unacked in-window
// Change for the object, then merge into (or create) the queued Change
// for the object.
func (ow *outbound) EnqueueChange(class *schema.Class, objID schema.ObjectID, idx schema.VarIndex, t schema.ValueType, v schema.Value) {
	if c, ok := ow.windowChange[objID]; ok && c.HasBit(int(idx)) {
		if !c.ClearBit(int(idx)) {
			ow.nullifyWindowChange(objID)
		} else {
			ow.resizeWindowSlot(objID, c)
		}
	}

	if c, ok := ow.queueChange[objID]; ok {
		c.SetValue(int(idx), t, v)
		return
	}

	c := atom.NewChange(class, objID, []schema.VarIndex{idx}, []schema.Value{v})
	ow.queue = append(ow.queue, c)
	ow.queueChange[objID] = c
}

// EnqueueDestroy applies destroy-atom coalescing (§4.4): any pending
// queued or windowed Change for the object is nullified, then a Destroy
// atom is appended.
func (ow *outbound) EnqueueDestroy(objID schema.ObjectID) {
	if c, ok := ow.queueChange[objID]; ok {
		for i, a := range ow.queue {
			if a == atom.Atom(c) {
				ow.queue[i] = &atom.Null{}
				break
			}
		}
		delete(ow.queueChange, objID)
	}
	ow.nullifyWindowChange(objID)

	ow.queue = append(ow.queue, &atom.Destroy{ObjectID: objID})
}

func (ow *outbound) nullifyWindowChange(objID schema.ObjectID) {
	c, ok := ow.windowChange[objID]
	if !ok {
		return
	}
	delete(ow.windowChange, objID)
	for _, s := range ow.window {
		if s.atom == atom.Atom(c) {
			c.Destroy()
			s.atom = &atom.Null{}
			s.size = 0
			return
		}
	}
}

func (ow *outbound) resizeWindowSlot(objID schema.ObjectID, c *atom.Change) {
	for _, s := range ow.window {
		if s.atom == atom.Atom(c) {
			s.size = c.Length()
			return
		}
	}
}

// effectiveMax is the byte budget governing how much may sit in the
// window at once: the smallest of whichever of local cap, peer-
// advertised cap, and cwnd are set (§4.5).
func (ow *outbound) effectiveMax() float64 {
	max := ow.congestion.cwnd
	if ow.localMaxBytes > 0 && float64(ow.localMaxBytes) < max {
		max = float64(ow.localMaxBytes)
	}
	if ow.remoteMaxBytes > 0 && float64(ow.remoteMaxBytes) < max {
		max = float64(ow.remoteMaxBytes)
	}
	return max
}

func (ow *outbound) windowBytes() int {
	total := 0
	for _, s := range ow.window {
		total += s.size
	}
	return total
}

// Pump drains the queue into the window while capacity allows (§4.5).
func (ow *outbound) Pump() {
	for len(ow.queue) > 0 &&
		len(ow.window) < MaxSendWindow &&
		float64(ow.windowBytes()) < ow.effectiveMax() {

		a := ow.queue[0]
		ow.queue = ow.queue[1:]

		if c, ok := a.(*atom.Change); ok {
			if existing, tracked := ow.queueChange[c.ObjectID]; tracked && existing == c {
				delete(ow.queueChange, c.ObjectID)
			}
			ow.windowChange[c.ObjectID] = c
		}

		slot := &sendSlot{seq: ow.windowStart + uint32(len(ow.window)), atom: a, size: a.Length()}
		ow.window = append(ow.window, slot)
	}
}

// BuildPackets walks the window looking for ripe runs (UNSENT, or timed
// out since their last send), grouping each run into one outgoing data
// packet bounded by PacketThreshold bytes, and repeating until the
// window is exhausted (§4.5). recvStartLow is this side's current
// cumulative ack, carried on every data packet regardless of why it was
// built.
func (ow *outbound) BuildPackets(now time.Time, recvStartLow uint16) ([]*wire.Packet, error) {
	var packets []*wire.Packet
	timeout := ow.congestion.Timeout()

	i := 0
	for i < len(ow.window) {
		if !ow.window[i].ripe(now, timeout) {
			i++
			continue
		}

		runStart := i
		bytes := 0
		for i < len(ow.window) && ow.window[i].ripe(now, timeout) && bytes < PacketThreshold {
			bytes += ow.window[i].size
			i++
		}

		run := ow.window[runStart:i]
		atoms := make([]atom.Atom, len(run))
		for k, s := range run {
			atoms[k] = s.atom
		}

		p, err := WriteDataPacket(recvStartLow, uint16(run[0].seq), atoms)
		if err != nil {
			return nil, err
		}
		packets = append(packets, p)

		zeroResent := runStart == 0 && len(ow.window) > 0 && !ow.window[0].sendTime.IsZero()
		for _, s := range run {
			if !s.sendTime.IsZero() {
				s.resent = true
			}
			s.sendTime = now
		}
		if zeroResent {
			ow.congestion.OnWindowZeroRetransmit()
			if ow.onRetransmit != nil {
				ow.onRetransmit()
			}
		}
	}
	return packets, nil
}

// HandleAck frees every window atom up to (but excluding) ackSeqFull,
// firing each one's Acked hook, and updates RTT/AIMD state from the
// oldest freed atom (§4.5). Acks at or below the current window start
// are no-ops; acks past the end of the window are ignored as bogus.
func (ow *outbound) HandleAck(ackSeqFull uint32, now time.Time) {
	if ackSeqFull <= ow.windowStart {
		return
	}
	if ackSeqFull > ow.windowStart+uint32(len(ow.window)) {
		return
	}

	n := int(ackSeqFull - ow.windowStart)
	oldest := ow.window[0]
	for _, s := range ow.window[:n] {
		s.atom.Acked()
		if c, ok := s.atom.(*atom.Change); ok {
			if existing, tracked := ow.windowChange[c.ObjectID]; tracked && existing == c {
				delete(ow.windowChange, c.ObjectID)
			}
		}
		s.atom.Destroy()
	}

	if !oldest.resent && !oldest.sendTime.IsZero() {
		ow.congestion.OnRTTSample(now.Sub(oldest.sendTime))
	}
	ow.congestion.GrowWindow()

	ow.window = ow.window[n:]
	ow.windowStart = ackSeqFull
}

// HasUnacked reports whether any atom remains in the window.
func (ow *outbound) HasUnacked() bool { return len(ow.window) > 0 }
