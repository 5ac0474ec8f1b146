// Package debug holds the bug-trap helper used for internal invariant
// violations (never for caller mistakes, which return errors instead).
// Grounded on original_source/src/base/assert.c's assertion macro.
package debug

import "fmt"

// Invariant panics with msg if cond is false. It exists only for the
// "unknown type tag reached in a switch" class of internal bug spec.md
// §7 calls out: a failure here means the library itself is broken, not
// that the caller passed something invalid.
func Invariant(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("irmo: invariant violated: "+format, args...))
	}
}
