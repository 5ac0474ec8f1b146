package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/irmosync/irmo/pkg/atom"
)

func TestKindLabelCoversEveryKind(t *testing.T) {
	cases := map[atom.Kind]string{
		atom.KindNull:       "null",
		atom.KindNewObject:  "new_object",
		atom.KindChange:     "change",
		atom.KindDestroy:    "destroy",
		atom.KindMethod:     "method",
		atom.KindSendWindow: "send_window",
		atom.KindSyncPoint:  "sync_point",
	}
	for kind, want := range cases {
		require.Equal(t, want, KindLabel(kind))
	}
}

func TestSamplerRSSReturnsPositiveValue(t *testing.T) {
	s, err := NewSampler()
	require.NoError(t, err)
	require.Greater(t, s.RSS(), int64(0))
}
