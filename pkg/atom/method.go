package atom

import (
	"fmt"

	"github.com/irmosync/irmo/pkg/schema"
	"github.com/irmosync/irmo/pkg/wire"
)

// Method invokes a named method with the given arguments; the recorded
// source is the sending client (§4.4: "u8 method_id, then each argument
// value in declared order").
type Method struct {
	Def    *schema.Method
	Args   []schema.Value
	Source any
}

// NewMethod builds a Method atom for an invocation of def with args, to
// be written to the wire and placed in a send window.
func NewMethod(def *schema.Method, args []schema.Value) *Method {
	return &Method{Def: def, Args: args}
}

func readMethod(iface *schema.Interface, p *wire.Packet, source any) (Atom, error) {
	methodID, err := p.ReadU8()
	if err != nil {
		return nil, err
	}
	m := iface.Method(schema.MethodID(methodID))
	if m == nil {
		return nil, fmt.Errorf("atom: method references unknown method id %d", methodID)
	}
	args := make([]schema.Value, 0, m.NumArguments())
	for _, arg := range m.Arguments() {
		val, err := schema.ReadValue(p, arg.Type)
		if err != nil {
			return nil, err
		}
		args = append(args, val)
	}
	return &Method{Def: m, Args: args, Source: source}, nil
}

func (a *Method) Kind() Kind { return KindMethod }

func (a *Method) Write(p *wire.Packet) error {
	if err := p.WriteU8(uint8(a.Def.Index)); err != nil {
		return err
	}
	for i, arg := range a.Def.Arguments() {
		if err := schema.WriteValue(p, arg.Type, a.Args[i]); err != nil {
			return err
		}
	}
	return nil
}

func (a *Method) Run(ctx *RunContext) error {
	ctx.World.InvokeMethod(a.Def, a.Args, ctx.Source)
	return nil
}

func (a *Method) Length() int {
	n := 1
	for i, arg := range a.Def.Arguments() {
		n += schema.ValueLength(arg.Type, a.Args[i])
	}
	return n
}

func (a *Method) Acked()   {}
func (a *Method) Destroy() { a.Args = nil }
