package schema

import (
	"fmt"

	"github.com/irmosync/irmo/pkg/wire"
)

const (
	blobSignature = "Irmo Interface Blob\x00"
	blobVersion   = 1
)

// Dump serializes the interface to a versioned binary blob (§4.2, §6):
// signature, version, classes (name, optional parent, unique variables),
// methods (name, arguments), then the structural hash as a self-check.
func (in *Interface) Dump() ([]byte, error) {
	if len(in.classes) > 0xff || len(in.methods) > 0xff {
		return nil, fmt.Errorf("schema: too many classes or methods to dump (max 255 each)")
	}

	p := wire.New()
	if err := p.WriteBytes([]byte(blobSignature)); err != nil {
		return nil, err
	}
	if err := p.WriteU32(blobVersion); err != nil {
		return nil, err
	}

	if err := p.WriteU8(uint8(len(in.classes))); err != nil {
		return nil, err
	}
	for _, c := range in.classes {
		if err := dumpClass(p, c); err != nil {
			return nil, err
		}
	}

	if err := p.WriteU8(uint8(len(in.methods))); err != nil {
		return nil, err
	}
	for _, m := range in.methods {
		if err := dumpMethod(p, m); err != nil {
			return nil, err
		}
	}

	if err := p.WriteU32(in.Hash()); err != nil {
		return nil, err
	}

	return p.Bytes(), nil
}

func dumpClass(p *wire.Packet, c *Class) error {
	if err := p.WriteString(c.Name); err != nil {
		return err
	}
	hasParent := uint8(0)
	if c.Parent != nil {
		hasParent = 1
	}
	if err := p.WriteU8(hasParent); err != nil {
		return err
	}
	if c.Parent != nil {
		if err := p.WriteString(c.Parent.Name); err != nil {
			return err
		}
	}

	unique := c.UniqueVariables()
	if len(unique) > 0xff {
		return fmt.Errorf("schema: class %q has too many unique variables to dump", c.Name)
	}
	if err := p.WriteU8(uint8(len(unique))); err != nil {
		return err
	}
	for _, v := range unique {
		if err := p.WriteString(v.Name); err != nil {
			return err
		}
		if err := p.WriteU8(uint8(v.Type)); err != nil {
			return err
		}
	}
	return nil
}

func dumpMethod(p *wire.Packet, m *Method) error {
	if err := p.WriteString(m.Name); err != nil {
		return err
	}
	if len(m.args) > 0xff {
		return fmt.Errorf("schema: method %q has too many arguments to dump", m.Name)
	}
	if err := p.WriteU8(uint8(len(m.args))); err != nil {
		return err
	}
	for _, a := range m.args {
		if err := p.WriteString(a.Name); err != nil {
			return err
		}
		if err := p.WriteU8(uint8(a.Type)); err != nil {
			return err
		}
	}
	return nil
}

// Load deserializes a binary blob produced by Dump. It fails on
// signature mismatch, version mismatch, an unknown parent reference, an
// unknown type tag, or a hash mismatch; on any failure no partial
// interface is returned (§4.2, §7).
func Load(data []byte) (*Interface, error) {
	p := wire.FromBytes(data)

	sig, err := p.ReadBytes(len(blobSignature))
	if err != nil || string(sig) != blobSignature {
		return nil, fmt.Errorf("schema: bad blob signature")
	}
	version, err := p.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("schema: truncated blob: %w", err)
	}
	if version != blobVersion {
		return nil, fmt.Errorf("schema: unsupported blob version %d", version)
	}

	in := New()

	numClasses, err := p.ReadU8()
	if err != nil {
		return nil, fmt.Errorf("schema: truncated blob: %w", err)
	}
	type pendingClass struct {
		name, parent string
		hasParent    bool
		vars         []ClassVar
	}
	pending := make([]pendingClass, 0, numClasses)
	for i := 0; i < int(numClasses); i++ {
		name, err := p.ReadString()
		if err != nil {
			return nil, fmt.Errorf("schema: truncated blob: %w", err)
		}
		hasParentFlag, err := p.ReadU8()
		if err != nil {
			return nil, fmt.Errorf("schema: truncated blob: %w", err)
		}
		var parentName string
		if hasParentFlag != 0 {
			parentName, err = p.ReadString()
			if err != nil {
				return nil, fmt.Errorf("schema: truncated blob: %w", err)
			}
		}
		numVars, err := p.ReadU8()
		if err != nil {
			return nil, fmt.Errorf("schema: truncated blob: %w", err)
		}
		vars := make([]ClassVar, 0, numVars)
		for j := 0; j < int(numVars); j++ {
			vname, err := p.ReadString()
			if err != nil {
				return nil, fmt.Errorf("schema: truncated blob: %w", err)
			}
			vtypeRaw, err := p.ReadU8()
			if err != nil {
				return nil, fmt.Errorf("schema: truncated blob: %w", err)
			}
			vtype := ValueType(vtypeRaw)
			if !vtype.Valid() {
				return nil, fmt.Errorf("schema: unknown type tag %d for variable %q", vtypeRaw, vname)
			}
			vars = append(vars, ClassVar{Name: vname, Type: vtype})
		}
		pending = append(pending, pendingClass{name: name, parent: parentName, hasParent: hasParentFlag != 0, vars: vars})
	}

	// Classes must be declared after their parent in the blob, matching
	// dump order; build incrementally the same way NewClass does.
	for _, pc := range pending {
		parentName := ""
		if pc.hasParent {
			if _, ok := in.ClassByName(pc.parent); !ok {
				return nil, fmt.Errorf("schema: class %q references unknown parent %q", pc.name, pc.parent)
			}
			parentName = pc.parent
		}
		c, err := in.NewClass(pc.name, parentName)
		if err != nil {
			return nil, err
		}
		for _, v := range pc.vars {
			if _, err := c.NewVariable(v.Name, v.Type); err != nil {
				return nil, err
			}
		}
	}

	numMethods, err := p.ReadU8()
	if err != nil {
		return nil, fmt.Errorf("schema: truncated blob: %w", err)
	}
	for i := 0; i < int(numMethods); i++ {
		name, err := p.ReadString()
		if err != nil {
			return nil, fmt.Errorf("schema: truncated blob: %w", err)
		}
		m, err := in.NewMethod(name)
		if err != nil {
			return nil, err
		}
		numArgs, err := p.ReadU8()
		if err != nil {
			return nil, fmt.Errorf("schema: truncated blob: %w", err)
		}
		for j := 0; j < int(numArgs); j++ {
			aname, err := p.ReadString()
			if err != nil {
				return nil, fmt.Errorf("schema: truncated blob: %w", err)
			}
			atypeRaw, err := p.ReadU8()
			if err != nil {
				return nil, fmt.Errorf("schema: truncated blob: %w", err)
			}
			atype := ValueType(atypeRaw)
			if !atype.Valid() {
				return nil, fmt.Errorf("schema: unknown type tag %d for argument %q", atypeRaw, aname)
			}
			if _, err := m.NewArgument(aname, atype); err != nil {
				return nil, err
			}
		}
	}

	wantHash, err := p.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("schema: truncated blob: %w", err)
	}
	if got := in.Hash(); got != wantHash {
		return nil, fmt.Errorf("schema: hash mismatch after load (got %#x, blob says %#x)", got, wantHash)
	}

	return in, nil
}
