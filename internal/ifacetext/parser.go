// Package ifacetext parses Irmo's text interface description format and
// builds a *schema.Interface from it, the Go-native replacement for
// cmd/irmoc's input side of original_source/tools/interface-compiler.c's
// irmo_interface_parse. No lexer/grammar source for the original
// "simple C-style syntax" survived retrieval (only the character-stream
// helpers in src/interface-parser/{file,buffer}-input.c did), so this is
// a small hand-rolled recursive-descent parser over a format designed to
// match that description rather than a port of a specific grammar:
//
//	class player {
//	    int32 hp;
//	    string name;
//	};
//	class admin : player {
//	    int8 level;
//	};
//	method chat(string text);
//
// Declaration order in the file is preserved as declaration order in the
// resulting interface, matching the reference tool's single left-to-right
// pass.
package ifacetext

import (
	"fmt"

	"github.com/irmosync/irmo/pkg/schema"
)

// Parse reads a text interface description and builds a *schema.Interface
// from it. The returned error, if any, has the "<line>: <message>" shape
// cmd/irmoc prefixes with the source filename for its "<file>:<message>"
// diagnostic (§6).
func Parse(src []byte) (*schema.Interface, error) {
	toks, err := lex(string(src))
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, iface: schema.New()}
	if err := p.parseFile(); err != nil {
		return nil, err
	}
	return p.iface, nil
}

type parser struct {
	toks []token
	pos  int

	iface *schema.Interface
}

func (p *parser) peek() token {
	if p.pos >= len(p.toks) {
		return token{kind: tokEOF, line: p.lastLine()}
	}
	return p.toks[p.pos]
}

func (p *parser) lastLine() int {
	if len(p.toks) == 0 {
		return 1
	}
	return p.toks[len(p.toks)-1].line
}

func (p *parser) next() token {
	t := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *parser) errorf(line int, format string, args ...any) error {
	return fmt.Errorf("%d: %s", line, fmt.Sprintf(format, args...))
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return token{}, p.errorf(t.line, "expected %s, got %q", what, t.text)
	}
	return t, nil
}

func (p *parser) parseFile() error {
	for p.peek().kind != tokEOF {
		t := p.peek()
		switch {
		case t.kind == tokIdent && t.text == "class":
			if err := p.parseClass(); err != nil {
				return err
			}
		case t.kind == tokIdent && t.text == "method":
			if err := p.parseMethod(); err != nil {
				return err
			}
		default:
			return p.errorf(t.line, "expected 'class' or 'method', got %q", t.text)
		}
	}
	return nil
}

// parseClass parses `class NAME [: PARENT] { (TYPE NAME ;)* };`.
func (p *parser) parseClass() error {
	p.next() // 'class'
	name, err := p.expect(tokIdent, "class name")
	if err != nil {
		return err
	}

	parentName := ""
	if p.peek().kind == tokColon {
		p.next()
		parent, err := p.expect(tokIdent, "parent class name")
		if err != nil {
			return err
		}
		parentName = parent.text
	}

	class, err := p.iface.NewClass(name.text, parentName)
	if err != nil {
		return p.errorf(name.line, "%v", err)
	}

	if _, err := p.expect(tokLBrace, "'{'"); err != nil {
		return err
	}
	for p.peek().kind != tokRBrace {
		if err := p.parseVariable(class); err != nil {
			return err
		}
	}
	p.next() // '}'
	if _, err := p.expect(tokSemi, "';'"); err != nil {
		return err
	}
	return nil
}

func (p *parser) parseVariable(class *schema.Class) error {
	typeTok, err := p.expect(tokIdent, "variable type")
	if err != nil {
		return err
	}
	t, ok := parseType(typeTok.text)
	if !ok {
		return p.errorf(typeTok.line, "unknown type %q", typeTok.text)
	}
	nameTok, err := p.expect(tokIdent, "variable name")
	if err != nil {
		return err
	}
	if _, err := p.expect(tokSemi, "';'"); err != nil {
		return err
	}
	if _, err := class.NewVariable(nameTok.text, t); err != nil {
		return p.errorf(nameTok.line, "%v", err)
	}
	return nil
}

// parseMethod parses `method NAME ( (TYPE NAME ,)* ) ;`.
func (p *parser) parseMethod() error {
	p.next() // 'method'
	name, err := p.expect(tokIdent, "method name")
	if err != nil {
		return err
	}
	method, err := p.iface.NewMethod(name.text)
	if err != nil {
		return p.errorf(name.line, "%v", err)
	}

	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return err
	}
	for p.peek().kind != tokRParen {
		typeTok, err := p.expect(tokIdent, "argument type")
		if err != nil {
			return err
		}
		t, ok := parseType(typeTok.text)
		if !ok {
			return p.errorf(typeTok.line, "unknown type %q", typeTok.text)
		}
		argNameTok, err := p.expect(tokIdent, "argument name")
		if err != nil {
			return err
		}
		if _, err := method.NewArgument(argNameTok.text, t); err != nil {
			return p.errorf(argNameTok.line, "%v", err)
		}
		if p.peek().kind == tokComma {
			p.next()
			continue
		}
		break
	}
	if _, err := p.expect(tokRParen, "')'"); err != nil {
		return err
	}
	if _, err := p.expect(tokSemi, "';'"); err != nil {
		return err
	}
	return nil
}

func parseType(name string) (schema.ValueType, bool) {
	switch name {
	case "int8":
		return schema.TypeInt8, true
	case "int16":
		return schema.TypeInt16, true
	case "int32":
		return schema.TypeInt32, true
	case "string":
		return schema.TypeString, true
	default:
		return 0, false
	}
}
