// Package schema implements Irmo's interface model: classes with single
// inheritance, typed variables, and methods with typed arguments. A
// schema's structural hash is the compatibility token two peers exchange
// during the handshake (see pkg/protocol).
package schema

import "fmt"

// ValueType is the wire type tag of a class variable or method argument.
// Values are fixed by the wire protocol (§6 of the spec): unknown=0,
// int8=1, int16=2, int32=3, string=4.
type ValueType uint8

const (
	TypeUnknown ValueType = iota
	TypeInt8
	TypeInt16
	TypeInt32
	TypeString
	numTypes
)

func (t ValueType) String() string {
	switch t {
	case TypeInt8:
		return "int8"
	case TypeInt16:
		return "int16"
	case TypeInt32:
		return "int32"
	case TypeString:
		return "string"
	default:
		return "unknown"
	}
}

// Valid reports whether t is one of the four declarable variable types
// (TypeUnknown is the wire tag for "no such type," never a declarable
// variable type).
func (t ValueType) Valid() bool {
	return t > TypeUnknown && t < numTypes
}

// MaxIntValue returns the largest value representable by an integer type,
// used to validate a Set call's range (§4.3).
func (t ValueType) MaxIntValue() (uint32, error) {
	switch t {
	case TypeInt8:
		return 0xff, nil
	case TypeInt16:
		return 0xffff, nil
	case TypeInt32:
		return 0xffffffff, nil
	default:
		return 0, fmt.Errorf("schema: %s is not an integer type", t)
	}
}

// Value is Irmo's tagged union of a u32 integer and a string. The
// variable or argument's declared ValueType says which field applies;
// Value itself carries no tag, matching the C union it replaces (§3).
type Value struct {
	I uint32
	S string
}

// IntValue constructs an integer-carrying Value.
func IntValue(i uint32) Value { return Value{I: i} }

// StringValue constructs a string-carrying Value. A Go string is never
// nil, so this already satisfies the "string is never null" invariant.
func StringValue(s string) Value { return Value{S: s} }

// ObjectID identifies an object within a World (§3: max 65536 objects).
type ObjectID uint16

// ClassID identifies a class within an Interface (§3: max 256 classes).
type ClassID uint8

// MethodID identifies a method within an Interface (§3: max 256 methods).
type MethodID uint8

// VarIndex identifies a variable's position within a class's variable
// array (§3: max 256 variables per class).
type VarIndex uint8

const (
	// MaxClasses is the largest number of classes an Interface can hold.
	MaxClasses = 256
	// MaxMethods is the largest number of methods an Interface can hold.
	MaxMethods = 256
	// MaxVars is the largest number of variables a single class's
	// variable array (including inherited variables) can hold.
	MaxVars = 256
	// MaxObjects is the largest number of live objects a World can hold.
	MaxObjects = 1 << 16
)
