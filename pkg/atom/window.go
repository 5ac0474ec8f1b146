package atom

import "github.com/irmosync/irmo/pkg/wire"

// SendWindow tells the peer to cap its send window at MaxBytes,
// implementing flow control (§4.4: "u16 max_bytes").
type SendWindow struct {
	MaxBytes uint16
}

func readSendWindow(p *wire.Packet) (Atom, error) {
	n, err := p.ReadU16()
	if err != nil {
		return nil, err
	}
	return &SendWindow{MaxBytes: n}, nil
}

func (a *SendWindow) Kind() Kind               { return KindSendWindow }
func (a *SendWindow) Write(p *wire.Packet) error { return p.WriteU16(a.MaxBytes) }
func (a *SendWindow) Length() int                { return 2 }
func (a *SendWindow) Acked()                     {}
func (a *SendWindow) Destroy()                   {}

// Run is handled specially by pkg/protocol, which owns the peer-
// advertised cap used by the send-window pump (§4.5); World has no
// notion of flow control, so Run is a no-op here and the connection
// layer inspects the atom directly when it arrives.
func (a *SendWindow) Run(ctx *RunContext) error { return nil }

// SyncPoint marks the end of the initial world-state dump and
// acknowledges world synchronization once its delivery is ACKed
// (§4.4, §4.5's SYNCHRONIZED substate).
type SyncPoint struct {
	onAcked func()
}

// NewSyncPoint builds a SyncPoint atom that calls onAcked once the peer
// has acknowledged it, signalling the connection can move to
// SYNCHRONIZED.
func NewSyncPoint(onAcked func()) *SyncPoint {
	return &SyncPoint{onAcked: onAcked}
}

func readSyncPoint(p *wire.Packet) (Atom, error) { return &SyncPoint{}, nil }

func (a *SyncPoint) Kind() Kind                { return KindSyncPoint }
func (a *SyncPoint) Write(p *wire.Packet) error { return nil }
func (a *SyncPoint) Run(ctx *RunContext) error  { return nil }
func (a *SyncPoint) Length() int                { return 0 }
func (a *SyncPoint) Destroy()                   {}

// Acked fires the callback registered at construction, if any.
func (a *SyncPoint) Acked() {
	if a.onAcked != nil {
		a.onAcked()
	}
}
