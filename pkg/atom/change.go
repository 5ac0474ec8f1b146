package atom

import (
	"fmt"

	"github.com/irmosync/irmo/pkg/schema"
	"github.com/irmosync/irmo/pkg/wire"
)

// Change applies one or more per-variable writes to an existing
// object, guarded by stale-write protection (§4.4: "u8 class_id, u16
// object_id, bitmap of changed variable indices ... then each changed
// variable's value in declared order").
//
// Values holds exactly one entry per set bit in Bitmap, in ascending
// variable-index order — the order the values appear on the wire. It is
// the sender's own copy, taken at enqueue time, independent of the
// originating Object's current contents (so later coalescing of other
// writes into the same object never disturbs an atom already built).
// Types parallels Values with each entry's declared variable type,
// since a bare schema.Value carries no type tag of its own.
type Change struct {
	ClassID  schema.ClassID
	ObjectID schema.ObjectID
	Bitmap   []byte
	Values   []schema.Value
	Types    []schema.ValueType
}

// NewChange builds a Change atom for one or more variables on an
// object of the given class.
func NewChange(class *schema.Class, objID schema.ObjectID, idxs []schema.VarIndex, values []schema.Value) *Change {
	c := &Change{
		ClassID:  class.Index,
		ObjectID: objID,
		Bitmap:   make([]byte, bitmapLen(class.NumVariables())),
	}
	for i, idx := range idxs {
		c.SetBit(int(idx))
		c.Values = append(c.Values, values[i])
		c.Types = append(c.Types, class.Variable(idx).Type)
	}
	return c
}

func bitmapLen(nvars int) int { return (nvars + 7) / 8 }

// HasBit reports whether variable index idx is set in the bitmap.
func (a *Change) HasBit(idx int) bool {
	byteIdx := idx / 8
	if byteIdx >= len(a.Bitmap) {
		return false
	}
	return a.Bitmap[byteIdx]&(1<<uint(idx%8)) != 0
}

// SetBit sets variable index idx in the bitmap, growing it if needed.
func (a *Change) SetBit(idx int) {
	byteIdx := idx / 8
	for byteIdx >= len(a.Bitmap) {
		a.Bitmap = append(a.Bitmap, 0)
	}
	a.Bitmap[byteIdx] |= 1 << uint(idx%8)
}

// ClearBit clears variable index idx (and its Values/Types entry),
// implementing the sender-side coalescing rule in §4.4 ("that bit is
// cleared"). Reports whether any bit remains set afterward.
func (a *Change) ClearBit(idx int) (anyBitsLeft bool) {
	if a.HasBit(idx) {
		pos := a.valuePosition(idx)
		a.Bitmap[idx/8] &^= 1 << uint(idx%8)
		a.Values = append(a.Values[:pos], a.Values[pos+1:]...)
		a.Types = append(a.Types[:pos], a.Types[pos+1:]...)
	}
	return a.anyBitSet()
}

// SetValue sets variable index idx's value, inserting it into the
// bitmap and the parallel Values/Types slices in index order if it
// wasn't already set, or replacing the existing entry in place if it
// was (§4.4's queue-side coalescing: "v is OR'd into its bitmap").
func (a *Change) SetValue(idx int, t schema.ValueType, v schema.Value) {
	pos := a.valuePosition(idx)
	if a.HasBit(idx) {
		a.Values[pos] = v
		a.Types[pos] = t
		return
	}
	a.SetBit(idx)
	a.Values = append(a.Values, schema.Value{})
	copy(a.Values[pos+1:], a.Values[pos:])
	a.Values[pos] = v
	a.Types = append(a.Types, schema.ValueType(0))
	copy(a.Types[pos+1:], a.Types[pos:])
	a.Types[pos] = t
}

// valuePosition returns the index into Values/Types that corresponds to
// variable index idx, counting set bits below it.
func (a *Change) valuePosition(idx int) int {
	pos := 0
	for i := 0; i < idx; i++ {
		if a.HasBit(i) {
			pos++
		}
	}
	return pos
}

func (a *Change) anyBitSet() bool {
	for _, b := range a.Bitmap {
		if b != 0 {
			return true
		}
	}
	return false
}

func readChange(iface *schema.Interface, p *wire.Packet) (Atom, error) {
	classID, err := p.ReadU8()
	if err != nil {
		return nil, err
	}
	objID, err := p.ReadU16()
	if err != nil {
		return nil, err
	}
	class := iface.Class(schema.ClassID(classID))
	if class == nil {
		return nil, fmt.Errorf("atom: change references unknown class id %d", classID)
	}
	bitmap, err := p.ReadBytes(bitmapLen(class.NumVariables()))
	if err != nil {
		return nil, err
	}
	c := &Change{ClassID: schema.ClassID(classID), ObjectID: schema.ObjectID(objID), Bitmap: bitmap}
	for idx := 0; idx < class.NumVariables(); idx++ {
		if !c.HasBit(idx) {
			continue
		}
		v := class.Variable(schema.VarIndex(idx))
		val, err := schema.ReadValue(p, v.Type)
		if err != nil {
			return nil, err
		}
		c.Values = append(c.Values, val)
		c.Types = append(c.Types, v.Type)
	}
	return c, nil
}

func (a *Change) Kind() Kind { return KindChange }

func (a *Change) Write(p *wire.Packet) error {
	if err := p.WriteU8(uint8(a.ClassID)); err != nil {
		return err
	}
	if err := p.WriteU16(uint16(a.ObjectID)); err != nil {
		return err
	}
	if err := p.WriteBytes(a.Bitmap); err != nil {
		return err
	}
	for i := range a.Values {
		if err := schema.WriteValue(p, a.Types[i], a.Values[i]); err != nil {
			return err
		}
	}
	return nil
}

func (a *Change) Run(ctx *RunContext) error {
	obj, ok := ctx.World.GetObject(a.ObjectID)
	if !ok {
		return fmt.Errorf("atom: change references unknown object id %d", a.ObjectID)
	}
	class := obj.Class()
	i := 0
	for idx := 0; idx < class.NumVariables(); idx++ {
		if !a.HasBit(idx) {
			continue
		}
		v := class.Variable(schema.VarIndex(idx))
		val := a.Values[i]
		i++
		if v.Type == schema.TypeString {
			obj.ApplyString(schema.VarIndex(idx), val.S, ctx.Sequence)
		} else {
			obj.ApplyInt(schema.VarIndex(idx), val.I, ctx.Sequence)
		}
	}
	return nil
}

func (a *Change) Length() int {
	n := 1 + 2 + len(a.Bitmap)
	for i := range a.Values {
		n += schema.ValueLength(a.Types[i], a.Values[i])
	}
	return n
}

func (a *Change) Acked()   {}
func (a *Change) Destroy() { a.Values, a.Types = nil, nil }
