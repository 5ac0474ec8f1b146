package protocol

import (
	"github.com/irmosync/irmo/pkg/atom"
	"github.com/irmosync/irmo/pkg/schema"
	"github.com/irmosync/irmo/pkg/world"
)

// enqueueWorldDump enqueues a NewObject atom plus a full-variable Change
// atom for every live object in w, so a newly handshaken peer receives
// the complete current state rather than only future deltas (§4.5: "on
// reaching CONNECTED, the side offering a world enqueues its entire
// current state"). The caller appends the terminating SyncPoint.
func enqueueWorldDump(out *outbound, w *world.World) {
	it := w.Objects(nil)
	for it.HasNext() {
		obj := it.Next()
		class := obj.Class()

		out.Enqueue(&atom.NewObject{ObjectID: obj.ID(), ClassID: class.Index})

		n := class.NumVariables()
		if n == 0 {
			continue
		}
		idxs := make([]schema.VarIndex, n)
		values := make([]schema.Value, n)
		for i := 0; i < n; i++ {
			idxs[i] = schema.VarIndex(i)
			values[i] = obj.ValueAt(schema.VarIndex(i))
		}
		out.Enqueue(atom.NewChange(class, obj.ID(), idxs, values))
	}
}
