package ifacetext

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultArrayName derives a default C array name from an input filename,
// matching set_c_array_name in original_source/tools/interface-compiler.c:
// strip the directory and extension, prefix "interface_", and replace
// every non-alphanumeric, non-underscore character with an underscore.
func DefaultArrayName(inputFilename string) string {
	base := filepath.Base(inputFilename)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	name := "interface_" + base
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// WriteCArray renders data as a C byte-array source fragment, matching
// write_c_array_file in original_source/tools/interface-compiler.c byte
// for byte (8 bytes per line, "0x%02x" formatting, trailing length
// constant).
func WriteCArray(name string, data []byte) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "unsigned char %s[] =\n{", name)
	for i, c := range data {
		if i%8 == 0 {
			b.WriteString("\n\t")
		}
		fmt.Fprintf(&b, "0x%02x", c)
		if i != len(data)-1 {
			b.WriteString(", ")
		}
	}
	b.WriteString("\n};\n\n")
	fmt.Fprintf(&b, "unsigned int %s_length = %d;\n\n", name, len(data))
	return []byte(b.String())
}
