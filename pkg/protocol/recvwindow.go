package protocol

import (
	"github.com/irmosync/irmo/pkg/atom"
)

type recvSlot struct {
	atom     atom.Atom
	seq      uint32
	executed bool
}

// recvWindow is the receive side of a connection: a sparse, growable
// array of not-yet-fully-delivered atoms indexed by seq-start (§4.5).
type recvWindow struct {
	start uint32
	slots []*recvSlot

	// needAck is set whenever an incoming atom's sequence falls at or
	// below the window start, meaning the peer should hear our
	// cumulative ack again (a fresh delivery at the front, or a
	// retransmit of something already consumed).
	needAck bool
}

func newRecvWindow() *recvWindow {
	return &recvWindow{}
}

// Insert stores one received atom at its assigned sequence number
// (§4.5). Atoms landing below the window start are discarded as
// already-delivered duplicates. Atoms landing below or exactly at the
// start set needAck; atoms further inside the window do not.
func (w *recvWindow) Insert(seq uint32, a atom.Atom) {
	if seq < w.start {
		w.needAck = true
		return
	}
	if seq == w.start {
		w.needAck = true
	}

	offset := int(seq - w.start)
	for offset >= len(w.slots) {
		w.slots = append(w.slots, nil)
	}
	w.slots[offset] = &recvSlot{atom: a, seq: seq}
}

// PreExecute runs a just-inserted Change atom immediately rather than
// waiting for the contiguous-prefix sweep, so a variable's latest value
// is visible as soon as it arrives even if an earlier sequence number is
// still missing (§4.5: "optionally pre-execute any Change atoms in the
// newly inserted range"). It is idempotent: the slot's executed flag and
// the target variable's own stale-write guard mean calling it twice, or
// calling it and then running it again in the contiguous sweep, has no
// further effect beyond the first successful application.
func (w *recvWindow) PreExecute(ctx *atom.RunContext) {
	for _, s := range w.slots {
		if s == nil || s.executed || s.atom.Kind() != atom.KindChange {
			continue
		}
		runCtx := *ctx
		runCtx.Sequence = s.seq
		_ = s.atom.Run(&runCtx)
		s.executed = true
	}
}

// DrainContiguous executes every atom from the window start forward
// while slots remain contiguously non-empty, advancing the window past
// them (§4.5). onErr, if non-nil, is called for an atom whose Run
// returned an error (a protocol error per §7: the atom is dropped, the
// connection is not torn down); onRun, if non-nil, is called for an atom
// this sweep ran successfully. Atoms already run by PreExecute are
// consumed without calling either.
func (w *recvWindow) DrainContiguous(ctx *atom.RunContext, onRun func(a atom.Atom), onErr func(seq uint32, err error)) {
	for len(w.slots) > 0 && w.slots[0] != nil {
		s := w.slots[0]
		if !s.executed {
			runCtx := *ctx
			runCtx.Sequence = s.seq
			if err := s.atom.Run(&runCtx); err != nil {
				if onErr != nil {
					onErr(s.seq, err)
				}
			} else if onRun != nil {
				onRun(s.atom)
			}
		}
		s.atom.Destroy()
		w.slots = w.slots[1:]
		w.start++
	}
}

// Start returns the window's current stream-start sequence, the value
// transmitted (low 16 bits) as the cumulative ack (§4.5).
func (w *recvWindow) Start() uint32 { return w.start }

// NeedAck reports whether an ack is owed to the peer. It does not clear
// the flag; ClearNeedAck does.
func (w *recvWindow) NeedAck() bool {
	v := w.needAck
	return v
}

// ClearNeedAck resets the ack-owed flag after a packet carrying the
// current cumulative ack has gone out.
func (w *recvWindow) ClearNeedAck() { w.needAck = false }
