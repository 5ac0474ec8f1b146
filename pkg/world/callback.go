// Package world implements Irmo's runtime object graph: objects
// instantiated against a pkg/schema.Interface, with per-variable value
// storage and callback-based change observation (§3, §4.3).
package world

// Callback is the handle returned when registering a watcher. The
// subject (a World, Object, or CallbackList) owns the underlying list
// node; the caller holds only this handle, which remains valid until
// either Unset is called or the subject itself is destroyed (at which
// point any registered destroy watchers fire) — see spec.md §5 resource
// ownership and §9's callback design note.
type Callback[F any] struct {
	fn              F
	list            *CallbackList[F]
	prev, next      *Callback[F]
	destroyWatchers []func()
}

// Unset removes this callback from its list and fires any destroy
// watchers registered on it. Calling Unset twice is a no-op.
func (cb *Callback[F]) Unset() {
	if cb.list == nil {
		return
	}
	cb.list.remove(cb)
	cb.list = nil
	cb.fireDestroyWatchers()
}

// WatchDestroy registers fn to be called when this callback is
// unregistered, either explicitly via Unset or because its owning
// subject was destroyed.
func (cb *Callback[F]) WatchDestroy(fn func()) {
	cb.destroyWatchers = append(cb.destroyWatchers, fn)
}

func (cb *Callback[F]) fireDestroyWatchers() {
	watchers := cb.destroyWatchers
	cb.destroyWatchers = nil
	for _, w := range watchers {
		w()
	}
}

// CallbackList is a doubly-linked list of registered callbacks. New
// entries are prepended, mirroring original_source/src/base/callback.c's
// irmo_slist_prepend. Removing the currently-visited entry during an
// Each walk is explicitly supported: Each captures the next pointer
// before invoking the callback, so a callback that Unsets itself (or a
// sibling) does not corrupt the walk.
type CallbackList[F any] struct {
	head, tail *Callback[F]
}

// Add registers fn, returning a handle that can later be used to remove
// exactly this registration.
func (l *CallbackList[F]) Add(fn F) *Callback[F] {
	cb := &Callback[F]{fn: fn, list: l}
	cb.next = l.head
	if l.head != nil {
		l.head.prev = cb
	}
	l.head = cb
	if l.tail == nil {
		l.tail = cb
	}
	return cb
}

func (l *CallbackList[F]) remove(cb *Callback[F]) {
	if cb.prev != nil {
		cb.prev.next = cb.next
	} else if l.head == cb {
		l.head = cb.next
	}
	if cb.next != nil {
		cb.next.prev = cb.prev
	} else if l.tail == cb {
		l.tail = cb.prev
	}
	cb.prev, cb.next = nil, nil
}

// Each invokes fn for every callback currently registered, in
// most-recently-added-first order.
func (l *CallbackList[F]) Each(invoke func(F)) {
	for cb := l.head; cb != nil; {
		next := cb.next
		invoke(cb.fn)
		cb = next
	}
}

// Len reports how many callbacks are registered.
func (l *CallbackList[F]) Len() int {
	n := 0
	for cb := l.head; cb != nil; cb = cb.next {
		n++
	}
	return n
}

// Destroy unregisters every callback in the list, firing each one's
// destroy watchers, and empties the list. Used when the owning Object
// is itself destroyed.
func (l *CallbackList[F]) Destroy() {
	for cb := l.head; cb != nil; {
		next := cb.next
		cb.list = nil
		cb.prev, cb.next = nil, nil
		cb.fireDestroyWatchers()
		cb = next
	}
	l.head, l.tail = nil, nil
}
