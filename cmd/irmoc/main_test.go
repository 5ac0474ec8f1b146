package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/irmosync/irmo/pkg/schema"
)

const sampleInterface = `
class player {
    int32 hp;
    string name;
};

method chat(string text);
`

func TestCompileWritesBinaryBlob(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "player.iface")
	output := filepath.Join(dir, "player.out")
	require.NoError(t, os.WriteFile(input, []byte(sampleInterface), 0644))

	err := compile(input, output, "binary", "")
	require.NoError(t, err)

	blob, err := os.ReadFile(output)
	require.NoError(t, err)

	iface, err := schema.Load(blob)
	require.NoError(t, err)
	require.Equal(t, 1, iface.NumClasses())
	require.Equal(t, 1, iface.NumMethods())
}

func TestCompileWritesCArray(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "player.iface")
	output := filepath.Join(dir, "player.c")
	require.NoError(t, os.WriteFile(input, []byte(sampleInterface), 0644))

	err := compile(input, output, "carray", "")
	require.NoError(t, err)

	out, err := os.ReadFile(output)
	require.NoError(t, err)
	require.Contains(t, string(out), "unsigned char interface_player[] =")
	require.Contains(t, string(out), "interface_player_length")
}
