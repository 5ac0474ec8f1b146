package atom

import (
	"fmt"

	"github.com/irmosync/irmo/pkg/schema"
	"github.com/irmosync/irmo/pkg/wire"
)

// NewObject allocates a remote-side object of a given class at a given
// id (§4.4: "u16 object_id, u8 class_id").
type NewObject struct {
	ObjectID schema.ObjectID
	ClassID  schema.ClassID
}

func readNewObject(p *wire.Packet) (Atom, error) {
	id, err := p.ReadU16()
	if err != nil {
		return nil, err
	}
	classID, err := p.ReadU8()
	if err != nil {
		return nil, err
	}
	return &NewObject{ObjectID: schema.ObjectID(id), ClassID: schema.ClassID(classID)}, nil
}

func (a *NewObject) Kind() Kind { return KindNewObject }

func (a *NewObject) Write(p *wire.Packet) error {
	if err := p.WriteU16(uint16(a.ObjectID)); err != nil {
		return err
	}
	return p.WriteU8(uint8(a.ClassID))
}

func (a *NewObject) Run(ctx *RunContext) error {
	class := ctx.World.Interface().Class(a.ClassID)
	if class == nil {
		return fmt.Errorf("atom: new-object references unknown class id %d", a.ClassID)
	}
	_, err := ctx.World.NewObjectAtID(class, a.ObjectID)
	return err
}

func (a *NewObject) Length() int { return 3 }
func (a *NewObject) Acked()      {}
func (a *NewObject) Destroy()    {}
