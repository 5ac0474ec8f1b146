package protocol

import (
	"testing"
	"time"

	"github.com/irmosync/irmo/pkg/atom"
	"github.com/irmosync/irmo/pkg/schema"
)

func TestEnqueueChangeCoalescesSuccessiveSetsIntoOneAtom(t *testing.T) {
	_, class := testInterface(t)
	ow := newOutbound()

	ow.EnqueueChange(class, 1, 0, schema.TypeInt32, schema.IntValue(1))
	ow.EnqueueChange(class, 1, 0, schema.TypeInt32, schema.IntValue(2))
	ow.EnqueueChange(class, 1, 0, schema.TypeInt32, schema.IntValue(3))

	if len(ow.queue) != 1 {
		t.Fatalf("queue has %d atoms, want 1 (coalesced)", len(ow.queue))
	}
	c, ok := ow.queue[0].(*atom.Change)
	if !ok {
		t.Fatalf("queued atom is %T, want *atom.Change", ow.queue[0])
	}
	if len(c.Values) != 1 || c.Values[0].I != 3 {
		t.Fatalf("coalesced change value = %+v, want the latest write (3)", c.Values)
	}
}

func TestEnqueueDestroyNullifiesPendingChange(t *testing.T) {
	_, class := testInterface(t)
	ow := newOutbound()

	ow.EnqueueChange(class, 1, 0, schema.TypeInt32, schema.IntValue(9))
	ow.EnqueueDestroy(1)

	if len(ow.queue) != 2 {
		t.Fatalf("queue has %d atoms, want 2 (nulled change + destroy)", len(ow.queue))
	}
	if ow.queue[0].Kind() != atom.KindNull {
		t.Fatalf("first queued atom is %s, want null", ow.queue[0].Kind())
	}
	if ow.queue[1].Kind() != atom.KindDestroy {
		t.Fatalf("second queued atom is %s, want destroy", ow.queue[1].Kind())
	}
	if _, tracked := ow.queueChange[1]; tracked {
		t.Fatalf("object 1 still tracked in queueChange after destroy")
	}
}

func TestEnqueueChangeClearsBitFromWindowedAtom(t *testing.T) {
	_, class := testInterface(t)
	ow := newOutbound()

	ow.EnqueueChange(class, 1, 0, schema.TypeInt32, schema.IntValue(1))
	ow.Pump()
	if len(ow.window) != 1 {
		t.Fatalf("window has %d atoms, want 1", len(ow.window))
	}

	ow.EnqueueChange(class, 1, 0, schema.TypeInt32, schema.IntValue(2))

	windowed := ow.window[0].atom
	if windowed.Kind() != atom.KindNull {
		t.Fatalf("windowed atom is %s, want nulled out once its only bit is cleared", windowed.Kind())
	}
	if len(ow.queue) != 1 {
		t.Fatalf("queue has %d atoms, want 1 (the re-coalesced write)", len(ow.queue))
	}
}

func TestPumpRespectsMaxSendWindow(t *testing.T) {
	_, class := testInterface(t)
	ow := newOutbound()
	for i := 0; i < MaxSendWindow+5; i++ {
		ow.Enqueue(&atom.NewObject{ObjectID: schema.ObjectID(i), ClassID: class.Index})
	}
	ow.Pump()
	if len(ow.window) != MaxSendWindow {
		t.Fatalf("window has %d atoms, want %d", len(ow.window), MaxSendWindow)
	}
	if len(ow.queue) != 5 {
		t.Fatalf("queue has %d leftover atoms, want 5", len(ow.queue))
	}
}

func TestHandleAckFreesWindowAndSamplesRTT(t *testing.T) {
	_, class := testInterface(t)
	ow := newOutbound()
	ow.Enqueue(&atom.NewObject{ObjectID: 1, ClassID: class.Index})
	ow.Enqueue(&atom.NewObject{ObjectID: 2, ClassID: class.Index})
	ow.Pump()

	t0 := time.Now()
	ow.BuildPackets(t0, 0)

	initialRTT := ow.congestion.rtt
	t1 := t0.Add(50 * time.Millisecond)
	ow.HandleAck(2, t1)

	if ow.HasUnacked() {
		t.Fatalf("expected window fully drained after acking both atoms")
	}
	if ow.windowStart != 2 {
		t.Fatalf("windowStart = %d, want 2", ow.windowStart)
	}
	if ow.congestion.rtt == initialRTT {
		t.Fatalf("expected an RTT sample to have adjusted rtt from its initial value")
	}
}

func TestHandleAckBelowWindowStartIsNoOp(t *testing.T) {
	ow := newOutbound()
	ow.windowStart = 10
	ow.HandleAck(5, time.Now())
	if ow.windowStart != 10 {
		t.Fatalf("windowStart changed on a stale ack: %d", ow.windowStart)
	}
}
