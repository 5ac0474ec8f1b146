package ifacetext

import "testing"

const sample = `
class player {
    int32 hp;
    string name;
};

class admin : player {
    int8 level;
};

method chat(string text, int32 channel);
`

func TestParseBuildsInterface(t *testing.T) {
	iface, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}

	if got, want := iface.NumClasses(), 2; got != want {
		t.Fatalf("NumClasses() = %d, want %d", got, want)
	}
	if got, want := iface.NumMethods(), 1; got != want {
		t.Fatalf("NumMethods() = %d, want %d", got, want)
	}

	admin, ok := iface.ClassByName("admin")
	if !ok {
		t.Fatal("admin class not found")
	}
	if got, want := admin.NumVariables(), 3; got != want {
		t.Fatalf("admin.NumVariables() = %d, want %d (2 inherited + 1 own)", got, want)
	}

	chat, ok := iface.MethodByName("chat")
	if !ok {
		t.Fatal("chat method not found")
	}
	if got, want := chat.NumArguments(), 2; got != want {
		t.Fatalf("chat.NumArguments() = %d, want %d", got, want)
	}
}

func TestParseRejectsUnknownParent(t *testing.T) {
	_, err := Parse([]byte(`class admin : nosuch { int8 level; };`))
	if err == nil {
		t.Fatal("expected an error for an unknown parent class")
	}
}

func TestParseRejectsUnknownType(t *testing.T) {
	_, err := Parse([]byte(`class foo { frobnicate x; };`))
	if err == nil {
		t.Fatal("expected an error for an unknown variable type")
	}
}

func TestParseRejectsDuplicateClassName(t *testing.T) {
	_, err := Parse([]byte(`class foo {}; class foo {};`))
	if err == nil {
		t.Fatal("expected an error for a duplicate class name")
	}
}

func TestWriteCArrayMatchesReferenceShape(t *testing.T) {
	out := string(WriteCArray("interface_foo", []byte{0x01, 0x02, 0x03}))
	if want := "unsigned char interface_foo[] =\n{\n\t0x01, 0x02, 0x03\n};\n\nunsigned int interface_foo_length = 3;\n\n"; out != want {
		t.Fatalf("WriteCArray() = %q, want %q", out, want)
	}
}

func TestDefaultArrayName(t *testing.T) {
	cases := map[string]string{
		"player.iface":        "interface_player",
		"/tmp/my-game.iface":  "interface_my_game",
		"no-extension-here":   "interface_no_extension_here",
	}
	for in, want := range cases {
		if got := DefaultArrayName(in); got != want {
			t.Errorf("DefaultArrayName(%q) = %q, want %q", in, got, want)
		}
	}
}
