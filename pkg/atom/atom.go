// Package atom implements Irmo's send-atoms: the wire-level mutation
// records a connection exchanges to keep a remote world in sync with a
// local one (§4.4). An atom's lifecycle is verify (can this be read
// without a schema-specific decode error), read, write, run (apply to a
// world), length (bytes on the wire), and destroy (release any
// references it holds, e.g. to keep it out of a send window's byte
// accounting after coalescing).
package atom

import (
	"fmt"

	"github.com/irmosync/irmo/pkg/schema"
	"github.com/irmosync/irmo/pkg/wire"
	"github.com/irmosync/irmo/pkg/world"
)

// Kind identifies an atom's wire tag (§4.4). Values are fixed by the
// protocol, not Go iota convenience: they are transmitted on the wire
// as the top 3 bits of every run-length header byte.
type Kind uint8

const (
	KindNull Kind = iota
	KindNewObject
	KindChange
	KindDestroy
	KindMethod
	KindSendWindow
	KindSyncPoint
	numKinds
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNewObject:
		return "new-object"
	case KindChange:
		return "change"
	case KindDestroy:
		return "destroy"
	case KindMethod:
		return "method"
	case KindSendWindow:
		return "send-window"
	case KindSyncPoint:
		return "sync-point"
	default:
		return "unknown"
	}
}

// Valid reports whether k is one of the seven defined atom kinds.
func (k Kind) Valid() bool { return k < numKinds }

// RunContext carries what an atom needs to apply itself to a remote
// world: the world to mutate, the sequence number this atom occupies in
// the receive window (used for Change's stale-write check), and an
// opaque handle identifying the connection that delivered it (recorded
// as MethodCall.Source for Method atoms, per §4.4: "recorded source =
// the sending client").
type RunContext struct {
	World    *world.World
	Sequence uint32
	Source   any
}

// Atom is a single send-atom, already read from or ready to be written
// to the wire.
type Atom interface {
	Kind() Kind
	Write(p *wire.Packet) error
	Run(ctx *RunContext) error
	Length() int
	// Acked is called when this atom's delivery has been cumulatively
	// acknowledged by the peer. Most kinds ignore it; SyncPoint uses it
	// to signal that initial world synchronization is complete.
	Acked()
	// Destroy releases any references the atom holds (e.g. the class and
	// value slice of a Change atom) once it leaves the send window.
	Destroy()
}

// Codec reads and verifies atoms against a fixed interface: Change,
// NewObject, Destroy, and Method payloads all refer to the schema's
// classes, variables, and methods by index, so decoding them requires
// knowing the schema in scope for the connection.
type Codec struct {
	Interface *schema.Interface
}

// NewCodec returns a Codec bound to iface.
func NewCodec(iface *schema.Interface) *Codec {
	return &Codec{Interface: iface}
}

// Verify reports whether an atom of the given kind can be read from p's
// current position without consuming it (§4.1: used before committing
// to interpreting a packet).
func (c *Codec) Verify(kind Kind, p *wire.Packet) bool {
	save := p.Pos()
	defer p.SetPos(save)
	_, err := c.Read(kind, p, nil)
	return err == nil
}

// Read decodes one atom of the given kind from p. source is recorded on
// Method atoms as the invoking client handle; other kinds ignore it.
func (c *Codec) Read(kind Kind, p *wire.Packet, source any) (Atom, error) {
	switch kind {
	case KindNull:
		return readNull(p)
	case KindNewObject:
		return readNewObject(p)
	case KindChange:
		return readChange(c.Interface, p)
	case KindDestroy:
		return readDestroy(p)
	case KindMethod:
		return readMethod(c.Interface, p, source)
	case KindSendWindow:
		return readSendWindow(p)
	case KindSyncPoint:
		return readSyncPoint(p)
	default:
		return nil, fmt.Errorf("atom: unknown kind %d", kind)
	}
}
