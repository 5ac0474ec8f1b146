package atom

import "github.com/irmosync/irmo/pkg/wire"

// Null occupies a sequence slot with no payload. Produced when a queued
// Change or Destroy atom is obsoleted by coalescing (§4.4); ignored on
// Run.
type Null struct{}

func readNull(p *wire.Packet) (Atom, error) { return &Null{}, nil }

func (a *Null) Kind() Kind               { return KindNull }
func (a *Null) Write(p *wire.Packet) error { return nil }
func (a *Null) Run(ctx *RunContext) error  { return nil }
func (a *Null) Length() int                { return 0 }
func (a *Null) Acked()                     {}
func (a *Null) Destroy()                   {}
