package world

import (
	"fmt"

	"github.com/irmosync/irmo/pkg/schema"
)

// VarCallback is invoked when a variable changes on an object.
type VarCallback func(obj *Object, idx schema.VarIndex)

// ObjCallback is invoked for whole-object lifecycle events (creation,
// destruction).
type ObjCallback func(obj *Object)

// MethodCall carries the data passed to a method-invocation watcher:
// the method's arguments and an opaque handle identifying whoever
// invoked it (the originating pkg/protocol.Client, left untyped so
// pkg/world never has to import pkg/protocol — see SPEC_FULL.md
// supplemented feature 2).
type MethodCall struct {
	Method *schema.Method
	Args   []schema.Value
	Source any
}

// MethodCallback is invoked when a method is called on a world.
type MethodCallback func(call *MethodCall)

// ChangeSink receives notification of every mutation applied to a
// World's objects, so a server can fan the change out to connected
// clients' send queues without World needing to know about
// pkg/protocol.Client at all (§4.3: "ask the owning world to enqueue ...
// on every connected client").
type ChangeSink interface {
	ObjectCreated(obj *Object)
	VariableChanged(obj *Object, idx schema.VarIndex)
	ObjectDestroyed(obj *Object)
}

type classWatchers struct {
	varSpecific map[schema.VarIndex]*CallbackList[VarCallback]
	anyVar      CallbackList[VarCallback]
	newObject   CallbackList[ObjCallback]
	destroy     CallbackList[ObjCallback]
}

func newClassWatchers() *classWatchers {
	return &classWatchers{varSpecific: make(map[schema.VarIndex]*CallbackList[VarCallback])}
}

func (cw *classWatchers) varList(idx schema.VarIndex) *CallbackList[VarCallback] {
	l, ok := cw.varSpecific[idx]
	if !ok {
		l = &CallbackList[VarCallback]{}
		cw.varSpecific[idx] = l
	}
	return l
}

// World is a runtime container of objects against a fixed Interface
// (§3). A World created with MarkRemote is a mirror of a remote peer's
// world: direct mutation through the public API is refused, and
// mutations arrive only through applied send-atoms (pkg/atom).
type World struct {
	iface *schema.Interface

	objects map[schema.ObjectID]*Object
	lastID  schema.ObjectID

	classWatchers map[*schema.Class]*classWatchers
	anyClass      *classWatchers
	methodWatch   map[schema.MethodID]*CallbackList[MethodCallback]

	sink ChangeSink

	remote       bool
	remoteSource any // opaque back-reference to the feeding pkg/protocol.Client
}

// New creates an empty local world against the given interface.
func New(iface *schema.Interface) *World {
	return &World{
		iface:         iface,
		objects:       make(map[schema.ObjectID]*Object),
		classWatchers: make(map[*schema.Class]*classWatchers),
		anyClass:      newClassWatchers(),
		methodWatch:   make(map[schema.MethodID]*CallbackList[MethodCallback]),
	}
}

// Interface returns the world's schema.
func (w *World) Interface() *schema.Interface { return w.iface }

// IsRemote reports whether this world is a mirror of a remote peer's
// world (§3).
func (w *World) IsRemote() bool { return w.remote }

// MarkRemote flips the world into remote-mirror mode and records the
// opaque source (a pkg/protocol.Client) feeding it with atoms.
func (w *World) MarkRemote(source any) {
	w.remote = true
	w.remoteSource = source
}

// RemoteSource returns the opaque back-reference set by MarkRemote, or
// nil for a local world.
func (w *World) RemoteSource() any { return w.remoteSource }

// SetSink installs the change sink that will be notified of every
// mutation (§4.3). Typically a pkg/protocol.Server.
func (w *World) SetSink(sink ChangeSink) { w.sink = sink }

// NumObjects returns the number of live objects.
func (w *World) NumObjects() int { return len(w.objects) }

// GetObject looks up an object by id.
func (w *World) GetObject(id schema.ObjectID) (*Object, bool) {
	obj, ok := w.objects[id]
	return obj, ok
}

// ErrWorldFull is returned by NewObject when every id in the 16-bit
// object-id space is already in use (§3, §7 resource exhaustion).
var ErrWorldFull = fmt.Errorf("world: object id space exhausted")

// ErrRemoteWorld is returned by any public mutation API call on a
// world marked remote (§3 invariant: "A remote world is read-only via
// the public mutation API").
var ErrRemoteWorld = fmt.Errorf("world: direct mutation of a remote world is forbidden")

// allocID finds the next unused object id by linear probing around the
// 16-bit space starting just after lastID (§3).
func (w *World) allocID() (schema.ObjectID, error) {
	start := w.lastID
	for i := 0; i < schema.MaxObjects; i++ {
		candidate := schema.ObjectID(uint32(start) + uint32(i) + 1)
		if _, used := w.objects[candidate]; !used {
			w.lastID = candidate
			return candidate, nil
		}
	}
	return 0, ErrWorldFull
}

// NewObject creates a new object of the given class, firing new-object
// callbacks (parents-first, most-specific last) and notifying the sink.
// It fails if the world is remote or the object id space is exhausted.
func (w *World) NewObject(class *schema.Class) (*Object, error) {
	if w.remote {
		return nil, ErrRemoteWorld
	}
	return w.newObjectWithID(class, 0, true)
}

// NewObjectAtID is used by pkg/atom's NewObject atom to create a
// remote-mirror object at a server-assigned id; it bypasses the
// remote-world mutation guard because it represents an already-applied
// wire mutation, not a direct API call.
func (w *World) NewObjectAtID(class *schema.Class, id schema.ObjectID) (*Object, error) {
	return w.newObjectWithID(class, id, false)
}

func (w *World) newObjectWithID(class *schema.Class, id schema.ObjectID, allocate bool) (*Object, error) {
	if allocate {
		newID, err := w.allocID()
		if err != nil {
			return nil, err
		}
		id = newID
	} else if _, used := w.objects[id]; used {
		return nil, fmt.Errorf("world: object id %d already in use", id)
	} else if id > w.lastID {
		w.lastID = id
	}

	obj := newObject(w, class, id)
	w.objects[id] = obj

	// Fire new-object callbacks from the most general ancestor to the
	// most specific, i.e. parents first (§4.3).
	var chain []*schema.Class
	for c := class; c != nil; c = c.Parent {
		chain = append(chain, c)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if cw, ok := w.classWatchers[chain[i]]; ok {
			cw.newObject.Each(func(fn ObjCallback) { fn(obj) })
		}
	}
	w.anyClass.newObject.Each(func(fn ObjCallback) { fn(obj) })

	if w.sink != nil {
		w.sink.ObjectCreated(obj)
	}

	return obj, nil
}

// fireVariableChanged walks the dispatch chain described in §4.3:
// per-object variable-specific, then per-object any-variable, then
// per-class (from the object's own class up through its ancestors) and
// finally the top-level any-class record.
func (w *World) fireVariableChanged(obj *Object, idx schema.VarIndex) {
	obj.callbacks.fireVariable(obj, idx)

	for c := obj.class; c != nil; c = c.Parent {
		if cw, ok := w.classWatchers[c]; ok {
			if vl, ok := cw.varSpecific[idx]; ok {
				vl.Each(func(fn VarCallback) { fn(obj, idx) })
			}
			cw.anyVar.Each(func(fn VarCallback) { fn(obj, idx) })
		}
	}
	w.anyClass.anyVar.Each(func(fn VarCallback) { fn(obj, idx) })

	if w.sink != nil {
		w.sink.VariableChanged(obj, idx)
	}
}

// destroyObject fires destroy callbacks bottom-up (per-object, then
// per-class from most specific to least, then any-class), notifies the
// sink, unlinks the object from the world, and unregisters the object's
// own watches (§4.3).
func (w *World) destroyObject(obj *Object) {
	obj.callbacks.destroy.Each(func(fn ObjCallback) { fn(obj) })

	for c := obj.class; c != nil; c = c.Parent {
		if cw, ok := w.classWatchers[c]; ok {
			cw.destroy.Each(func(fn ObjCallback) { fn(obj) })
		}
	}
	w.anyClass.destroy.Each(func(fn ObjCallback) { fn(obj) })

	if w.sink != nil {
		w.sink.ObjectDestroyed(obj)
	}

	delete(w.objects, obj.id)
	obj.destroyed = true

	// Unregister every per-object watch, firing each handle's destroy
	// watchers.
	for _, l := range obj.callbacks.varSpecific {
		l.Destroy()
	}
	obj.callbacks.anyVar.Destroy()
	obj.callbacks.destroy.Destroy()
}

func (w *World) classData(class *schema.Class) *classWatchers {
	if class == nil {
		return w.anyClass
	}
	cw, ok := w.classWatchers[class]
	if !ok {
		cw = newClassWatchers()
		w.classWatchers[class] = cw
	}
	return cw
}

// WatchNew registers fn to be called whenever a new object of class
// (or, if class is nil, any class) is created. The watch also fires for
// subclasses of class (§8).
func (w *World) WatchNew(class *schema.Class, fn ObjCallback) *Callback[ObjCallback] {
	return w.classData(class).newObject.Add(fn)
}

// WatchDestroyClass registers fn to be called whenever an object of
// class (or, if class is nil, any class) is destroyed.
func (w *World) WatchDestroyClass(class *schema.Class, fn ObjCallback) *Callback[ObjCallback] {
	return w.classData(class).destroy.Add(fn)
}

// WatchVariable registers fn to be called whenever the named variable
// changes on an object of class (or a subclass). If varName is empty,
// fn is called for any variable change on such an object.
func (w *World) WatchVariable(class *schema.Class, varName string, fn VarCallback) (*Callback[VarCallback], error) {
	cw := w.classData(class)
	if varName == "" {
		return cw.anyVar.Add(fn), nil
	}
	if class == nil {
		return nil, fmt.Errorf("world: a variable name requires a class")
	}
	v, ok := class.VariableByName(varName)
	if !ok {
		return nil, fmt.Errorf("world: class %q has no variable %q", class.Name, varName)
	}
	return cw.varList(v.Index).Add(fn), nil
}

// WatchMethod registers fn to be invoked whenever method is called on
// this world.
func (w *World) WatchMethod(method *schema.Method, fn MethodCallback) *Callback[MethodCallback] {
	list, ok := w.methodWatch[method.Index]
	if !ok {
		list = &CallbackList[MethodCallback]{}
		w.methodWatch[method.Index] = list
	}
	return list.Add(fn)
}

// InvokeMethod runs every watcher registered for call.Method, most
// recently registered first. source identifies the caller for §8
// testable property 6 ("source == that client").
func (w *World) InvokeMethod(method *schema.Method, args []schema.Value, source any) {
	list, ok := w.methodWatch[method.Index]
	if !ok {
		return
	}
	call := &MethodCall{Method: method, Args: args, Source: source}
	list.Each(func(fn MethodCallback) { fn(call) })
}

// ObjectIterator walks a subset of a world's live objects, optionally
// filtered to instances of a particular class (§4.3, §9 supplemented
// feature 3).
type ObjectIterator struct {
	objects []*Object
	pos     int
}

// Objects returns an iterator over every live object, or (if class is
// non-nil) only those that are instances of class or a subclass.
func (w *World) Objects(class *schema.Class) *ObjectIterator {
	it := &ObjectIterator{objects: make([]*Object, 0, len(w.objects))}
	for _, obj := range w.objects {
		if class == nil || obj.class.IsA(class) {
			it.objects = append(it.objects, obj)
		}
	}
	return it
}

// HasNext reports whether Next would return another object.
func (it *ObjectIterator) HasNext() bool {
	return it.pos < len(it.objects)
}

// Next returns the next object in the iteration.
func (it *ObjectIterator) Next() *Object {
	obj := it.objects[it.pos]
	it.pos++
	return obj
}
