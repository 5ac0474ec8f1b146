package atom

import (
	"testing"

	"github.com/irmosync/irmo/pkg/schema"
	"github.com/irmosync/irmo/pkg/wire"
	"github.com/irmosync/irmo/pkg/world"
)

func buildTestSchema(t *testing.T) *schema.Interface {
	t.Helper()
	in := schema.New()
	c, err := in.NewClass("Player", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.NewVariable("health", schema.TypeInt8); err != nil {
		t.Fatal(err)
	}
	if _, err := c.NewVariable("name", schema.TypeString); err != nil {
		t.Fatal(err)
	}
	m, err := in.NewMethod("Shoot")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.NewArgument("power", schema.TypeInt8); err != nil {
		t.Fatal(err)
	}
	return in
}

func writeThenRead(t *testing.T, codec *Codec, kind Kind, a Atom, source any) Atom {
	t.Helper()
	p := wire.New()
	if err := a.Write(p); err != nil {
		t.Fatal(err)
	}
	if p.Len() != a.Length() {
		t.Fatalf("Length() = %d, but Write produced %d bytes", a.Length(), p.Len())
	}
	p.SetPos(0)
	got, err := codec.Read(kind, p, source)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestNewObjectRoundTripAndRun(t *testing.T) {
	in := buildTestSchema(t)
	codec := NewCodec(in)
	class, _ := in.ClassByName("Player")

	a := &NewObject{ObjectID: 7, ClassID: class.Index}
	got := writeThenRead(t, codec, KindNewObject, a, nil).(*NewObject)
	if got.ObjectID != 7 || got.ClassID != class.Index {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	w := world.New(in)
	w.MarkRemote(nil)
	ctx := &RunContext{World: w, Sequence: 1}
	if err := got.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := w.GetObject(7); !ok {
		t.Fatal("NewObject.Run did not create the object")
	}
}

func TestChangeRoundTripAndRun(t *testing.T) {
	in := buildTestSchema(t)
	codec := NewCodec(in)
	class, _ := in.ClassByName("Player")
	healthVar, _ := class.VariableByName("health")
	nameVar, _ := class.VariableByName("name")

	c := NewChange(class, 3,
		[]schema.VarIndex{healthVar.Index, nameVar.Index},
		[]schema.Value{{I: 42}, {S: "zaphod"}},
	)

	got := writeThenRead(t, codec, KindChange, c, nil).(*Change)
	if len(got.Values) != 2 {
		t.Fatalf("Values = %v, want 2 entries", got.Values)
	}

	w := world.New(in)
	w.MarkRemote(nil)
	obj, err := w.NewObjectAtID(class, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := got.Run(&RunContext{World: w, Sequence: 5}); err != nil {
		t.Fatal(err)
	}
	h, _ := obj.GetInt("health")
	if h != 42 {
		t.Fatalf("health = %d, want 42", h)
	}
	n, _ := obj.GetString("name")
	if n != "zaphod" {
		t.Fatalf("name = %q, want zaphod", n)
	}
}

func TestChangeStaleWriteIsNoOp(t *testing.T) {
	in := buildTestSchema(t)
	class, _ := in.ClassByName("Player")
	healthVar, _ := class.VariableByName("health")

	w := world.New(in)
	w.MarkRemote(nil)
	obj, _ := w.NewObjectAtID(class, 1)

	first := NewChange(class, 1, []schema.VarIndex{healthVar.Index}, []schema.Value{{I: 10}})
	if err := first.Run(&RunContext{World: w, Sequence: 5}); err != nil {
		t.Fatal(err)
	}

	stale := NewChange(class, 1, []schema.VarIndex{healthVar.Index}, []schema.Value{{I: 99}})
	if err := stale.Run(&RunContext{World: w, Sequence: 5}); err != nil {
		t.Fatal(err)
	}
	h, _ := obj.GetInt("health")
	if h != 10 {
		t.Fatalf("stale Change mutated the object: health = %d, want 10", h)
	}
}

func TestChangeClearBitCoalescing(t *testing.T) {
	in := buildTestSchema(t)
	class, _ := in.ClassByName("Player")
	healthVar, _ := class.VariableByName("health")
	nameVar, _ := class.VariableByName("name")

	c := NewChange(class, 1,
		[]schema.VarIndex{healthVar.Index, nameVar.Index},
		[]schema.Value{{I: 1}, {S: "x"}},
	)

	if remaining := c.ClearBit(int(healthVar.Index)); !remaining {
		t.Fatal("expected a bit to remain set after clearing one of two")
	}
	if len(c.Values) != 1 || c.Values[0].S != "x" {
		t.Fatalf("Values after ClearBit = %v, want [{S:x}]", c.Values)
	}

	if remaining := c.ClearBit(int(nameVar.Index)); remaining {
		t.Fatal("expected no bits left after clearing the last one")
	}
	if len(c.Values) != 0 {
		t.Fatalf("Values after clearing all bits = %v, want empty", c.Values)
	}
}

func TestDestroyRoundTripAndRun(t *testing.T) {
	in := buildTestSchema(t)
	codec := NewCodec(in)
	class, _ := in.ClassByName("Player")

	w := world.New(in)
	w.MarkRemote(nil)
	obj, _ := w.NewObjectAtID(class, 9)

	d := &Destroy{ObjectID: 9}
	got := writeThenRead(t, codec, KindDestroy, d, nil).(*Destroy)

	if err := got.Run(&RunContext{World: w}); err != nil {
		t.Fatal(err)
	}
	if !obj.IsDestroyed() {
		t.Fatal("Destroy.Run did not destroy the object")
	}
	if _, ok := w.GetObject(9); ok {
		t.Fatal("object still present after Destroy.Run")
	}
}

func TestMethodRoundTripRecordsSource(t *testing.T) {
	in := buildTestSchema(t)
	codec := NewCodec(in)
	m, _ := in.MethodByName("Shoot")

	a := NewMethod(m, []schema.Value{{I: 7}})
	source := "peer-1"
	got := writeThenRead(t, codec, KindMethod, a, source).(*Method)

	if len(got.Args) != 1 || got.Args[0].I != 7 {
		t.Fatalf("Args = %v, want [{I:7}]", got.Args)
	}
	if got.Source != source {
		t.Fatalf("Source = %v, want %v", got.Source, source)
	}

	w := world.New(in)
	var gotPower uint32
	var gotSource any
	w.WatchMethod(m, func(call *world.MethodCall) {
		gotPower = call.Args[0].I
		gotSource = call.Source
	})
	if err := got.Run(&RunContext{World: w, Source: source}); err != nil {
		t.Fatal(err)
	}
	if gotPower != 7 || gotSource != source {
		t.Fatalf("watcher saw power=%d source=%v", gotPower, gotSource)
	}
}

func TestNullHasZeroLengthAndNoOpRun(t *testing.T) {
	codec := NewCodec(buildTestSchema(t))
	n := &Null{}
	got := writeThenRead(t, codec, KindNull, n, nil).(*Null)
	if got.Length() != 0 {
		t.Fatalf("Length() = %d, want 0", got.Length())
	}
	if err := got.Run(&RunContext{}); err != nil {
		t.Fatal(err)
	}
}

func TestSendWindowRoundTrip(t *testing.T) {
	codec := NewCodec(buildTestSchema(t))
	a := &SendWindow{MaxBytes: 4096}
	got := writeThenRead(t, codec, KindSendWindow, a, nil).(*SendWindow)
	if got.MaxBytes != 4096 {
		t.Fatalf("MaxBytes = %d, want 4096", got.MaxBytes)
	}
}

func TestSyncPointFiresOnAcked(t *testing.T) {
	fired := false
	sp := NewSyncPoint(func() { fired = true })
	sp.Acked()
	if !fired {
		t.Fatal("SyncPoint.Acked did not fire its callback")
	}
}

func TestVerifyRejectsTruncatedPacket(t *testing.T) {
	in := buildTestSchema(t)
	codec := NewCodec(in)
	p := wire.New()
	p.WriteU8(0) // class id only, missing object id and bitmap
	p.SetPos(0)  // rewind so Verify reads from the start
	if codec.Verify(KindChange, p) {
		t.Fatal("Verify should reject a truncated Change payload")
	}
	if p.Pos() != 0 {
		t.Fatalf("Verify must not move the packet's cursor, pos = %d", p.Pos())
	}
}
