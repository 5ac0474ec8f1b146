package debug

import "testing"

func TestInvariantPassesWhenTrue(t *testing.T) {
	Invariant(true, "should not panic")
}

func TestInvariantPanicsWhenFalse(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic when the invariant is false")
		}
	}()
	Invariant(false, "unreachable kind %d", 7)
}
