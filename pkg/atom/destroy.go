package atom

import (
	"fmt"

	"github.com/irmosync/irmo/pkg/schema"
	"github.com/irmosync/irmo/pkg/wire"
)

// Destroy removes an object on the remote side (§4.4: "u16 object_id").
type Destroy struct {
	ObjectID schema.ObjectID
}

func readDestroy(p *wire.Packet) (Atom, error) {
	id, err := p.ReadU16()
	if err != nil {
		return nil, err
	}
	return &Destroy{ObjectID: schema.ObjectID(id)}, nil
}

func (a *Destroy) Kind() Kind { return KindDestroy }

func (a *Destroy) Write(p *wire.Packet) error {
	return p.WriteU16(uint16(a.ObjectID))
}

func (a *Destroy) Run(ctx *RunContext) error {
	obj, ok := ctx.World.GetObject(a.ObjectID)
	if !ok {
		// Unknown object id: the object may already have been destroyed
		// by a duplicate delivery. Reported to the caller, which drops the
		// atom without tearing the connection down (§7).
		return fmt.Errorf("atom: destroy references unknown object id %d", a.ObjectID)
	}
	obj.DestroyRemote()
	return nil
}

func (a *Destroy) Length() int { return 2 }
func (a *Destroy) Acked()      {}
func (a *Destroy) Destroy()    {}
