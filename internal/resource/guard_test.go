package resource

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGuardAllowsBelowCeiling(t *testing.T) {
	g := NewGuard(func() int64 { return 100 }, 200)
	ok, reason := g.Allow()
	require.True(t, ok)
	require.Empty(t, reason)
}

func TestGuardRefusesAboveCeiling(t *testing.T) {
	g := NewGuard(func() int64 { return 300 }, 200)
	ok, reason := g.Allow()
	require.False(t, ok)
	require.NotEmpty(t, reason)
}

func TestGuardZeroCeilingDisablesCheck(t *testing.T) {
	g := NewGuard(func() int64 { return 1 << 40 }, 0)
	ok, _ := g.Allow()
	require.True(t, ok)
}

func TestNilGuardAlwaysAllows(t *testing.T) {
	var g *Guard
	ok, reason := g.Allow()
	require.True(t, ok)
	require.Empty(t, reason)
}
