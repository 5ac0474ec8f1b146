// Package config loads layered (defaults -> file -> env) configuration
// for the Irmo daemons, grounded on go-server-3/internal/config/config.go:
// the same v.SetDefault + SetEnvPrefix + AutomaticEnv shape, retargeted
// from websocket/shard settings to protocol tuning knobs.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/irmosync/irmo/internal/logging"
	"github.com/irmosync/irmo/internal/ratelimit"
	"github.com/irmosync/irmo/pkg/protocol"
)

// ServerConfig holds everything needed to stand up cmd/irmo-server.
type ServerConfig struct {
	Listen    ListenConfig    `mapstructure:"listen"`
	World     WorldConfig     `mapstructure:"world"`
	Protocol  ProtocolConfig  `mapstructure:"protocol"`
	Resource  ResourceConfig  `mapstructure:"resource"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ProtocolConfig records the tuning knobs pkg/protocol exposes as
// compile-time constants today (MaxSendWindow, PacketThreshold,
// ConnectRetryInterval/ConnectMaxAttempts as InitialRTT/HandshakeRetries,
// DeadPeerTimeout). They are surfaced here, and logged at startup by
// cmd/irmo-server, so an operator can see and eventually override them;
// threading them as live overrides into pkg/protocol's congestion/window
// arithmetic (congestion.go, sendqueue.go) is left for a later pass, since
// that arithmetic is exercised by fixed-constant-assuming tests today and
// pkg/protocol's own teacher grounding (ws/internal/shared/limits) also
// keeps its backoff/window tuning as fixed constants, not runtime config.
type ProtocolConfig struct {
	MaxSendWindowBytes int           `mapstructure:"max_send_window_bytes"`
	PacketThreshold    int           `mapstructure:"packet_threshold"`
	InitialRTT         time.Duration `mapstructure:"initial_rtt"`
	HandshakeRetries   int           `mapstructure:"handshake_retries"`
	DeadPeerTimeoutMS  int           `mapstructure:"dead_peer_timeout_ms"`
}

// ClientConfig holds everything needed to stand up a single outbound
// connection for an embedder of pkg/protocol.Client. cmd/irmo-loadtest
// does not use it; it takes its settings from command-line flags.
type ClientConfig struct {
	ServerHost string        `mapstructure:"server_host"`
	ServerPort int           `mapstructure:"server_port"`
	Hostname   string        `mapstructure:"hostname"`
	Logging    LoggingConfig `mapstructure:"logging"`
}

// ListenConfig is the network-module binding this side listens on.
type ListenConfig struct {
	Transport string `mapstructure:"transport"` // "udp4", "udp6", "ws"
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Hostname  string `mapstructure:"hostname"`
}

// WorldConfig controls the shape of the world this side offers.
type WorldConfig struct {
	ShardCount int `mapstructure:"shard_count"`
	// SchemaPath is a binary schema blob produced by cmd/irmoc. If empty,
	// irmo-server starts with no offered world and accepts peers that
	// offer none of their own (a pure relay/handshake-only server).
	SchemaPath string `mapstructure:"schema_path"`
}

// ResourceConfig controls internal/resource's admission guard.
type ResourceConfig struct {
	MemoryCeilingBytes int64 `mapstructure:"memory_ceiling_bytes"`
}

// RateLimitConfig controls internal/ratelimit's two-level limiter.
type RateLimitConfig struct {
	GlobalBurst     int           `mapstructure:"global_burst"`
	GlobalRate      float64       `mapstructure:"global_rate"`
	PerAddressBurst int           `mapstructure:"per_address_burst"`
	PerAddressRate  float64       `mapstructure:"per_address_rate"`
	StaleAfter      time.Duration `mapstructure:"stale_after"`
}

// ToRateLimitConfig converts to the ratelimit package's own Config.
func (c RateLimitConfig) ToRateLimitConfig() ratelimit.Config {
	return ratelimit.Config{
		GlobalBurst:     c.GlobalBurst,
		GlobalRate:      c.GlobalRate,
		PerAddressBurst: c.PerAddressBurst,
		PerAddressRate:  c.PerAddressRate,
		StaleAfter:      c.StaleAfter,
	}
}

// MetricsConfig controls the Prometheus/health HTTP endpoint.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// ToLoggingConfig converts to the logging package's own Config.
func (c LoggingConfig) ToLoggingConfig() logging.Config {
	return logging.Config{Level: c.Level, Development: c.Development}
}

func newViper(envPrefix string, extraConfigPaths ...string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("irmo")
	v.SetConfigType("yaml")
	for _, p := range extraConfigPaths {
		if p != "" {
			v.AddConfigPath(p)
		}
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	return v
}

// LoadServerConfig reads cmd/irmo-server's configuration from an
// optional irmo.yaml plus IRMO_-prefixed environment variables, layered
// over the defaults below. configDir, if non-empty, is searched before
// the default "." and "./config" locations (cmd/irmo-server's --config
// flag).
func LoadServerConfig(configDir ...string) (ServerConfig, error) {
	var dir string
	if len(configDir) > 0 {
		dir = configDir[0]
	}
	v := newViper("IRMO", dir)

	v.SetDefault("listen.transport", "udp4")
	v.SetDefault("listen.host", "0.0.0.0")
	v.SetDefault("listen.port", 9999)
	v.SetDefault("listen.hostname", "irmo-server")

	v.SetDefault("world.shard_count", 1)
	v.SetDefault("world.schema_path", "")

	v.SetDefault("protocol.max_send_window_bytes", protocol.MaxSendWindow*protocol.PacketThreshold)
	v.SetDefault("protocol.packet_threshold", protocol.PacketThreshold)
	v.SetDefault("protocol.initial_rtt", time.Second)
	v.SetDefault("protocol.handshake_retries", protocol.ConnectMaxAttempts)
	v.SetDefault("protocol.dead_peer_timeout_ms", int(protocol.DeadPeerTimeout/time.Millisecond))

	v.SetDefault("resource.memory_ceiling_bytes", int64(0))

	v.SetDefault("rate_limit.global_burst", 300)
	v.SetDefault("rate_limit.global_rate", 50.0)
	v.SetDefault("rate_limit.per_address_burst", 10)
	v.SetDefault("rate_limit.per_address_rate", 1.0)
	v.SetDefault("rate_limit.stale_after", 5*time.Minute)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen_addr", ":9095")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	_ = v.ReadInConfig()

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("config: unmarshal server config: %w", err)
	}
	return cfg, nil
}

// LoadClientConfig reads a ClientConfig the same way, from an optional
// irmo.yaml plus IRMOC_-prefixed environment variables.
func LoadClientConfig() (ClientConfig, error) {
	v := newViper("IRMOC")

	v.SetDefault("server_host", "127.0.0.1")
	v.SetDefault("server_port", 9999)
	v.SetDefault("hostname", "irmo-client")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	_ = v.ReadInConfig()

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("config: unmarshal client config: %w", err)
	}
	return cfg, nil
}
