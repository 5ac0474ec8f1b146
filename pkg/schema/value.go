package schema

import (
	"fmt"

	"github.com/irmosync/irmo/pkg/wire"
)

// WriteValue writes v to p according to its declared type t (§4.1).
func WriteValue(p *wire.Packet, t ValueType, v Value) error {
	switch t {
	case TypeInt8:
		return p.WriteU8(uint8(v.I))
	case TypeInt16:
		return p.WriteU16(uint16(v.I))
	case TypeInt32:
		return p.WriteU32(v.I)
	case TypeString:
		return p.WriteString(v.S)
	default:
		return fmt.Errorf("schema: cannot write value of type %s", t)
	}
}

// ReadValue reads a Value of declared type t from p.
func ReadValue(p *wire.Packet, t ValueType) (Value, error) {
	switch t {
	case TypeInt8:
		u, err := p.ReadU8()
		return Value{I: uint32(u)}, err
	case TypeInt16:
		u, err := p.ReadU16()
		return Value{I: uint32(u)}, err
	case TypeInt32:
		u, err := p.ReadU32()
		return Value{I: u}, err
	case TypeString:
		s, err := p.ReadString()
		return Value{S: s}, err
	default:
		return Value{}, fmt.Errorf("schema: cannot read value of type %s", t)
	}
}

// VerifyValue checks that a value of type t can be read from p's current
// position without consuming it, used by atom Verify implementations to
// validate a packet before committing to interpreting it (§4.1, §4.4).
func VerifyValue(p *wire.Packet, t ValueType) bool {
	save := p.Pos()
	_, err := ReadValue(p, t)
	p.SetPos(save)
	return err == nil
}

// ValueLength returns the number of bytes WriteValue would emit for a
// value of type t (does not depend on the value itself, except for
// strings).
func ValueLength(t ValueType, v Value) int {
	switch t {
	case TypeInt8:
		return 1
	case TypeInt16:
		return 2
	case TypeInt32:
		return 4
	case TypeString:
		return len(v.S) + 1
	default:
		return 0
	}
}
