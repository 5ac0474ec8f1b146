package world

import (
	"fmt"

	"github.com/irmosync/irmo/pkg/schema"
)

// Object is a single instance of a schema class, holding one value per
// entry in its class's flattened variable array (§3). Objects are only
// ever constructed through a World (NewObject / NewObjectAtID).
type Object struct {
	world *World
	class *schema.Class
	id    schema.ObjectID

	vars []schema.Value

	// varSeq holds, for a remote-mirror world, the sequence number of the
	// last Change atom applied to each variable. A Change atom is only
	// applied if its sequence number exceeds the target variable's
	// recorded value here — stale-write protection against
	// out-of-order/duplicate delivery (§4.4). Local worlds leave this nil.
	varSeq []uint32

	callbacks objectCallbacks

	userData  any
	destroyed bool
}

type objectCallbacks struct {
	varSpecific map[schema.VarIndex]*CallbackList[VarCallback]
	anyVar      CallbackList[VarCallback]
	destroy     CallbackList[ObjCallback]
}

func (oc *objectCallbacks) varList(idx schema.VarIndex) *CallbackList[VarCallback] {
	if oc.varSpecific == nil {
		oc.varSpecific = make(map[schema.VarIndex]*CallbackList[VarCallback])
	}
	l, ok := oc.varSpecific[idx]
	if !ok {
		l = &CallbackList[VarCallback]{}
		oc.varSpecific[idx] = l
	}
	return l
}

func (oc *objectCallbacks) fireVariable(obj *Object, idx schema.VarIndex) {
	if l, ok := oc.varSpecific[idx]; ok {
		l.Each(func(fn VarCallback) { fn(obj, idx) })
	}
	oc.anyVar.Each(func(fn VarCallback) { fn(obj, idx) })
}

func newObject(w *World, class *schema.Class, id schema.ObjectID) *Object {
	obj := &Object{
		world: w,
		class: class,
		id:    id,
		vars:  make([]schema.Value, class.NumVariables()),
	}
	if w.remote {
		obj.varSeq = make([]uint32, class.NumVariables())
	}
	return obj
}

// ID returns the object's world-unique identifier.
func (obj *Object) ID() schema.ObjectID { return obj.id }

// Class returns the object's class.
func (obj *Object) Class() *schema.Class { return obj.class }

// World returns the object's owning world.
func (obj *Object) World() *World { return obj.world }

// IsA reports whether the object is an instance of class or a subclass.
func (obj *Object) IsA(class *schema.Class) bool { return obj.class.IsA(class) }

// IsDestroyed reports whether Destroy has already removed this object
// from its world.
func (obj *Object) IsDestroyed() bool { return obj.destroyed }

// UserData returns the opaque application value last set with
// SetUserData (§9 supplemented feature: "user_data" closures).
func (obj *Object) UserData() any { return obj.userData }

// SetUserData attaches an opaque application value to the object.
func (obj *Object) SetUserData(v any) { obj.userData = v }

func (obj *Object) lookup(name string) (*schema.ClassVar, error) {
	v, ok := obj.class.VariableByName(name)
	if !ok {
		return nil, fmt.Errorf("world: class %q has no variable %q", obj.class.Name, name)
	}
	return v, nil
}

// Get returns the raw value of the named variable.
func (obj *Object) Get(name string) (schema.Value, error) {
	v, err := obj.lookup(name)
	if err != nil {
		return schema.Value{}, err
	}
	return obj.vars[v.Index], nil
}

// ValueAt returns the raw value stored at variable index idx, with no
// class-membership check. Used by pkg/protocol to read a variable's
// current value when building Change atoms, where the index is already
// known to be valid from the class's own variable array.
func (obj *Object) ValueAt(idx schema.VarIndex) schema.Value { return obj.vars[idx] }

// GetInt returns the value of the named integer variable (int8/16/32).
func (obj *Object) GetInt(name string) (uint32, error) {
	v, err := obj.lookup(name)
	if err != nil {
		return 0, err
	}
	if v.Type == schema.TypeString {
		return 0, fmt.Errorf("world: variable %q is a string, not an integer", name)
	}
	return obj.vars[v.Index].I, nil
}

// GetString returns the value of the named string variable.
func (obj *Object) GetString(name string) (string, error) {
	v, err := obj.lookup(name)
	if err != nil {
		return "", err
	}
	if v.Type != schema.TypeString {
		return "", fmt.Errorf("world: variable %q is not a string", name)
	}
	return obj.vars[v.Index].S, nil
}

// SetInt sets the named integer variable, masking the value to the
// variable's wire width (§3: "assignment silently reduces modulo the
// type's range, it is never an error") and firing change callbacks. It
// refuses to run on a remote-mirror world (§3, §8): those are mutated
// only by applying received atoms, via ApplyInt.
func (obj *Object) SetInt(name string, value uint32) error {
	if obj.world.remote {
		return ErrRemoteWorld
	}
	v, err := obj.lookup(name)
	if err != nil {
		return err
	}
	max, err := v.Type.MaxIntValue()
	if err != nil {
		return fmt.Errorf("world: variable %q is a string, not an integer", name)
	}
	obj.vars[v.Index] = schema.Value{I: value & max}
	obj.world.fireVariableChanged(obj, v.Index)
	return nil
}

// SetString sets the named string variable and fires change callbacks.
func (obj *Object) SetString(name string, value string) error {
	if obj.world.remote {
		return ErrRemoteWorld
	}
	v, err := obj.lookup(name)
	if err != nil {
		return err
	}
	if v.Type != schema.TypeString {
		return fmt.Errorf("world: variable %q is not a string", name)
	}
	obj.vars[v.Index] = schema.Value{S: value}
	obj.world.fireVariableChanged(obj, v.Index)
	return nil
}

// ApplyInt sets the named integer variable's value as the result of
// applying a received Change atom at the given sequence number, unless
// seq does not exceed the variable's last-applied sequence number, in
// which case it is a stale-write no-op (§4.4: "apply per-variable
// write, but only if the atom's sequence number exceeds that
// variable's variable_time"). Reports whether the write was applied.
func (obj *Object) ApplyInt(idx schema.VarIndex, value uint32, seq uint32) bool {
	if obj.varSeq != nil {
		if seq <= obj.varSeq[idx] {
			return false
		}
		obj.varSeq[idx] = seq
	}
	v := obj.class.Variable(idx)
	max, err := v.Type.MaxIntValue()
	if err != nil {
		max = 0xffffffff
	}
	obj.vars[idx] = schema.Value{I: value & max}
	obj.world.fireVariableChanged(obj, idx)
	return true
}

// ApplyString is ApplyInt's string-variable counterpart.
func (obj *Object) ApplyString(idx schema.VarIndex, value string, seq uint32) bool {
	if obj.varSeq != nil {
		if seq <= obj.varSeq[idx] {
			return false
		}
		obj.varSeq[idx] = seq
	}
	obj.vars[idx] = schema.Value{S: value}
	obj.world.fireVariableChanged(obj, idx)
	return true
}

// LastAppliedSequence returns the sequence number of the last Change
// atom applied to the variable at idx, for a remote-mirror world. It is
// always 0 on a local world.
func (obj *Object) LastAppliedSequence(idx schema.VarIndex) uint32 {
	if obj.varSeq == nil {
		return 0
	}
	return obj.varSeq[idx]
}

// WatchVariable registers fn for changes to the named variable on this
// object specifically (as opposed to every instance of its class).
func (obj *Object) WatchVariable(name string, fn VarCallback) (*Callback[VarCallback], error) {
	v, err := obj.lookup(name)
	if err != nil {
		return nil, err
	}
	return obj.callbacks.varList(v.Index).Add(fn), nil
}

// WatchAnyVariable registers fn for a change to any variable on this
// object.
func (obj *Object) WatchAnyVariable(fn VarCallback) *Callback[VarCallback] {
	return obj.callbacks.anyVar.Add(fn)
}

// WatchDestroy registers fn to be called when this specific object is
// destroyed.
func (obj *Object) WatchDestroy(fn ObjCallback) *Callback[ObjCallback] {
	return obj.callbacks.destroy.Add(fn)
}

// Destroy removes the object from its world, firing destroy callbacks
// and notifying the change sink (§4.3). It refuses to run on a
// remote-mirror world; those objects are destroyed only by applying a
// received Destroy atom, via world package-internal teardown.
func (obj *Object) Destroy() error {
	if obj.destroyed {
		return fmt.Errorf("world: object %d already destroyed", obj.id)
	}
	if obj.world.remote {
		return ErrRemoteWorld
	}
	obj.world.destroyObject(obj)
	return nil
}

// DestroyRemote tears down a remote-mirror object in response to an
// applied Destroy atom.
func (obj *Object) DestroyRemote() {
	if obj.destroyed {
		return
	}
	obj.world.destroyObject(obj)
}
