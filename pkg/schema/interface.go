package schema

import "fmt"

// Interface is a schema: a dense array of classes and a dense array of
// methods, each with a lookup-by-name index. Once shared with a World it
// should be treated as immutable; Interface does not enforce this itself
// (callers own that discipline, as described in §4.2).
type Interface struct {
	classes   []*Class
	className map[string]ClassID

	methods    []*Method
	methodName map[string]MethodID
}

// New returns an empty interface, ready for incremental construction via
// NewClass / NewMethod.
func New() *Interface {
	return &Interface{
		className:  make(map[string]ClassID),
		methodName: make(map[string]MethodID),
	}
}

// NewClass appends a new class to the interface. If parentName is
// non-empty, the new class inherits that class's variables (§3: "all
// parent variables are copied into the child's variable array"). Fails
// on a duplicate class name, an unknown parent, or capacity exceeded.
func (in *Interface) NewClass(name string, parentName string) (*Class, error) {
	if _, exists := in.className[name]; exists {
		return nil, fmt.Errorf("schema: interface already has a class named %q", name)
	}
	if len(in.classes) >= MaxClasses {
		return nil, fmt.Errorf("schema: interface is at its class capacity (%d)", MaxClasses)
	}

	var parent *Class
	if parentName != "" {
		p, ok := in.ClassByName(parentName)
		if !ok {
			return nil, fmt.Errorf("schema: unknown parent class %q", parentName)
		}
		parent = p
	}

	c := newClass(in, name, parent)
	c.Index = ClassID(len(in.classes))
	in.classes = append(in.classes, c)
	in.className[name] = c.Index
	return c, nil
}

// NewMethod appends a new method to the interface. Fails on a duplicate
// name or capacity exceeded.
func (in *Interface) NewMethod(name string) (*Method, error) {
	if _, exists := in.methodName[name]; exists {
		return nil, fmt.Errorf("schema: interface already has a method named %q", name)
	}
	if len(in.methods) >= MaxMethods {
		return nil, fmt.Errorf("schema: interface is at its method capacity (%d)", MaxMethods)
	}

	m := newMethod(name)
	m.Index = MethodID(len(in.methods))
	in.methods = append(in.methods, m)
	in.methodName[name] = m.Index
	return m, nil
}

// NumClasses returns the number of classes in the interface.
func (in *Interface) NumClasses() int { return len(in.classes) }

// NumMethods returns the number of methods in the interface.
func (in *Interface) NumMethods() int { return len(in.methods) }

// Class returns the class with the given id, or nil if out of range.
func (in *Interface) Class(id ClassID) *Class {
	if int(id) >= len(in.classes) {
		return nil
	}
	return in.classes[id]
}

// Method returns the method with the given id, or nil if out of range.
func (in *Interface) Method(id MethodID) *Method {
	if int(id) >= len(in.methods) {
		return nil
	}
	return in.methods[id]
}

// ClassByName looks up a class by name.
func (in *Interface) ClassByName(name string) (*Class, bool) {
	id, ok := in.className[name]
	if !ok {
		return nil, false
	}
	return in.classes[id], true
}

// MethodByName looks up a method by name.
func (in *Interface) MethodByName(name string) (*Method, bool) {
	id, ok := in.methodName[name]
	if !ok {
		return nil, false
	}
	return in.methods[id], true
}

// Classes returns the interface's classes in declaration order; callers
// must not mutate the returned slice.
func (in *Interface) Classes() []*Class { return in.classes }

// Methods returns the interface's methods in declaration order; callers
// must not mutate the returned slice.
func (in *Interface) Methods() []*Method { return in.methods }

// Hash computes the interface's structural hash: a fold over classes
// then methods, substituting 1 for a result of 0 (0 is reserved to mean
// "no interface" in the handshake) (§3).
func (in *Interface) Hash() uint32 {
	var acc uint32
	for _, c := range in.classes {
		acc = rotl1(acc) ^ c.Hash()
	}
	for _, m := range in.methods {
		acc = rotl1(acc) ^ m.Hash()
	}
	if acc == 0 {
		acc = 1
	}
	return acc
}
