package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/irmosync/irmo/pkg/protocol"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	require.NoError(t, err)

	require.Equal(t, "udp4", cfg.Listen.Transport)
	require.Equal(t, 9999, cfg.Listen.Port)
	require.Equal(t, protocol.PacketThreshold, cfg.Protocol.PacketThreshold)
	require.Equal(t, protocol.ConnectMaxAttempts, cfg.Protocol.HandshakeRetries)
	require.Equal(t, int(protocol.DeadPeerTimeout/time.Millisecond), cfg.Protocol.DeadPeerTimeoutMS)
	require.True(t, cfg.Metrics.Enabled)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadClientConfigDefaults(t *testing.T) {
	cfg, err := LoadClientConfig()
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1", cfg.ServerHost)
	require.Equal(t, 9999, cfg.ServerPort)
	require.Equal(t, "irmo-client", cfg.Hostname)
}

func TestRateLimitConfigConversion(t *testing.T) {
	cfg, err := LoadServerConfig()
	require.NoError(t, err)

	rl := cfg.RateLimit.ToRateLimitConfig()
	require.Equal(t, cfg.RateLimit.GlobalBurst, rl.GlobalBurst)
	require.Equal(t, cfg.RateLimit.StaleAfter, rl.StaleAfter)
}
