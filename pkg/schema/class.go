package schema

import "fmt"

// ClassVar describes one variable declared on a class (§3).
type ClassVar struct {
	Name  string
	Type  ValueType
	Index VarIndex // position in the owning class's variable array

	// DeclaredIn is the class in which this variable was originally
	// declared. For an inherited variable this is an ancestor of the
	// class that holds the copy. pkg/world's callback dispatch does not
	// read it; that walk starts at the object's own class.
	DeclaredIn *Class
}

// Class is a schema class: a name, an optional parent, and a dense,
// inheritance-flattened array of variables (§3).
type Class struct {
	Name   string
	Parent *Class
	Index  ClassID

	vars        []ClassVar
	varName     map[string]VarIndex
	uniqueStart int // index of the first variable declared on this class, not inherited

	iface *Interface
}

func newClass(iface *Interface, name string, parent *Class) *Class {
	c := &Class{
		Name:    name,
		Parent:  parent,
		varName: make(map[string]VarIndex),
		iface:   iface,
	}
	if parent != nil {
		c.vars = append(c.vars, parent.vars...)
		for name, idx := range parent.varName {
			c.varName[name] = idx
		}
	}
	c.uniqueStart = len(c.vars)
	return c
}

// UniqueVariables returns the variables declared directly on this class
// (excluding those copied in from a parent), in declared order. This is
// the set serialized by Interface.Dump (§4.2: "number of *unique*
// variables").
func (c *Class) UniqueVariables() []ClassVar {
	return c.vars[c.uniqueStart:]
}

// NewVariable appends a new variable of the given type to the class. It
// fails if the name is already declared on this class or any ancestor,
// or if the class's variable array is already at capacity (§4.2).
func (c *Class) NewVariable(name string, t ValueType) (*ClassVar, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("schema: unknown variable type %d", t)
	}
	if _, exists := c.varName[name]; exists {
		return nil, fmt.Errorf("schema: class %q already has a variable named %q", c.Name, name)
	}
	if len(c.vars) >= MaxVars {
		return nil, fmt.Errorf("schema: class %q is at its variable capacity (%d)", c.Name, MaxVars)
	}

	idx := VarIndex(len(c.vars))
	cv := ClassVar{Name: name, Type: t, Index: idx, DeclaredIn: c}
	c.vars = append(c.vars, cv)
	c.varName[name] = idx
	return &c.vars[idx], nil
}

// NumVariables returns the total number of variables visible on this
// class, including inherited ones.
func (c *Class) NumVariables() int {
	return len(c.vars)
}

// Variable returns the variable at the given index, or nil if out of
// range.
func (c *Class) Variable(idx VarIndex) *ClassVar {
	if int(idx) >= len(c.vars) {
		return nil
	}
	return &c.vars[idx]
}

// VariableByName looks up a variable by name, searching this class and
// (because the array is inheritance-flattened) implicitly its ancestors.
func (c *Class) VariableByName(name string) (*ClassVar, bool) {
	idx, ok := c.varName[name]
	if !ok {
		return nil, false
	}
	return &c.vars[idx], true
}

// Variables returns the class's variables in declared order (for
// iteration and hashing); callers must not mutate the returned slice.
func (c *Class) Variables() []ClassVar {
	return c.vars
}

// IsA reports whether c is other or a (transitive) descendant of other
// (§3: "An object is 'a' class C iff C is its class or a (transitive)
// ancestor").
func (c *Class) IsA(other *Class) bool {
	for k := c; k != nil; k = k.Parent {
		if k == other {
			return true
		}
	}
	return false
}

// Hash folds the class's variables and name into a structural hash
// value, per spec.md §3: "(accumulator rotated-left-by-1 XOR var_hash)
// folded over vars in declared order, XOR string_hash(class_name),
// rotated-left-by-1 XOR parent_class.index if it has a parent."
func (c *Class) Hash() uint32 {
	var acc uint32
	for _, v := range c.vars {
		acc = rotl1(acc) ^ v.hash()
	}
	acc ^= StringHash(c.Name)
	if c.Parent != nil {
		acc = rotl1(acc) ^ uint32(c.Parent.Index)
	}
	return acc
}

// hash is "type XOR string_hash(name)" for a single variable (§3).
func (v *ClassVar) hash() uint32 {
	return uint32(v.Type) ^ StringHash(v.Name)
}
