// Command irmo-server runs a standalone Irmo protocol server: it loads
// configuration and an optional compiled schema, wires the ambient
// stack (structured logging, Prometheus metrics, resource admission
// guard, connection rate limiter) into a pkg/protocol.Server, and drives
// it on a fixed tick while exposing /health and /metrics over HTTP.
// Directly modeled on go-server-3/cmd/odin-ws/main.go's startup/shutdown
// sequence: load config, build logger, build metrics registry, start the
// serving loop, run the metrics HTTP server in a goroutine, select on a
// signal context and the HTTP server's error channel, then stop.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	_ "go.uber.org/automaxprocs"

	"github.com/irmosync/irmo/internal/config"
	"github.com/irmosync/irmo/internal/logging"
	"github.com/irmosync/irmo/internal/metrics"
	"github.com/irmosync/irmo/internal/ratelimit"
	"github.com/irmosync/irmo/internal/resource"
	"github.com/irmosync/irmo/pkg/netmodule"
	"github.com/irmosync/irmo/pkg/protocol"
	"github.com/irmosync/irmo/pkg/schema"
	"github.com/irmosync/irmo/pkg/world"
)

const tickInterval = 50 * time.Millisecond

func main() {
	var configDir string

	root := &cobra.Command{
		Use:          "irmo-server",
		Short:        "Run a standalone Irmo protocol server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configDir)
		},
	}
	root.Flags().StringVar(&configDir, "config", "", "directory to search for irmo.yaml before the defaults (./ and ./config)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(configDir string) error {
	cfg, err := config.LoadServerConfig(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.ToLoggingConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("protocol tuning",
		zap.Int("max_send_window_bytes", cfg.Protocol.MaxSendWindowBytes),
		zap.Int("packet_threshold", cfg.Protocol.PacketThreshold),
		zap.Duration("initial_rtt", cfg.Protocol.InitialRTT),
		zap.Int("handshake_retries", cfg.Protocol.HandshakeRetries),
		zap.Int("dead_peer_timeout_ms", cfg.Protocol.DeadPeerTimeoutMS),
	)

	registry := metrics.NewRegistry()

	sampler, err := metrics.NewSampler()
	if err != nil {
		logger.Warn("resource sampler unavailable, memory guard disabled", zap.Error(err))
	}
	var guard *resource.Guard
	if sampler != nil {
		guard = resource.NewGuard(sampler.RSS, cfg.Resource.MemoryCeilingBytes)
	}

	limiter := ratelimit.New(cfg.RateLimit.ToRateLimitConfig())

	srv, err := buildServer(cfg, logger, registry, guard, limiter)
	if err != nil {
		logger.Fatal("failed to build protocol server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tickDone := make(chan struct{})
	go func() {
		defer close(tickDone)
		runTickLoop(ctx, srv)
	}()

	httpErrCh := make(chan error, 1)
	go func() {
		httpErrCh <- runHTTPServer(ctx, cfg, srv, registry, logger)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-httpErrCh:
		if err != nil {
			logger.Error("http server error", zap.Error(err))
		}
		stop()
	}

	<-tickDone
	logger.Info("protocol server stopped")
	return nil
}

// buildServer resolves the configured transport into a netmodule.Module
// and netmodule.Socket pair, loads the offered world's schema if one was
// configured, and wires every ambient-stack setter pkg/protocol.Server
// exposes.
func buildServer(cfg config.ServerConfig, logger *zap.Logger, registry *metrics.Registry, guard *resource.Guard, limiter *ratelimit.Limiter) (*protocol.Server, error) {
	var (
		module netmodule.Module
		socket netmodule.Socket
		err    error
	)

	switch cfg.Listen.Transport {
	case "udp4":
		m := netmodule.NewUDP4Module()
		module = m
		socket, err = m.OpenServerSocket(cfg.Listen.Port)
	case "udp6":
		m := netmodule.NewUDP6Module()
		module = m
		socket, err = m.OpenServerSocket(cfg.Listen.Port)
	case "ws":
		module = netmodule.NewWSModule()
		socket, err = netmodule.ListenMux(cfg.Listen.Port)
	default:
		return nil, fmt.Errorf("irmo-server: unknown listen.transport %q", cfg.Listen.Transport)
	}
	if err != nil {
		return nil, fmt.Errorf("irmo-server: open %s listener on port %d: %w", cfg.Listen.Transport, cfg.Listen.Port, err)
	}

	var offeredWorld *world.World
	var expectIface *schema.Interface
	if cfg.World.SchemaPath != "" {
		blob, err := os.ReadFile(cfg.World.SchemaPath)
		if err != nil {
			return nil, fmt.Errorf("irmo-server: read schema %s: %w", cfg.World.SchemaPath, err)
		}
		iface, err := schema.Load(blob)
		if err != nil {
			return nil, fmt.Errorf("irmo-server: load schema %s: %w", cfg.World.SchemaPath, err)
		}
		expectIface = iface
		offeredWorld = world.New(iface)
	}

	srv := protocol.NewServer(socket, module, offeredWorld, expectIface)
	srv.SetHostname(cfg.Listen.Hostname)
	srv.SetLogger(logger)
	srv.SetMetrics(registry)
	srv.SetResourceGuard(guard)
	srv.SetRateLimiter(limiter)
	return srv, nil
}

// runTickLoop drives srv.Tick on a fixed interval until ctx is
// cancelled, the single cooperative tick §5 calls for: no per-connection
// goroutines, one Tick call per frame.
func runTickLoop(ctx context.Context, srv *protocol.Server) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			srv.Tick(now)
		}
	}
}

func runHTTPServer(ctx context.Context, cfg config.ServerConfig, srv *protocol.Server, registry *metrics.Registry, logger *zap.Logger) error {
	if !cfg.Metrics.Enabled {
		<-ctx.Done()
		return nil
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
			"clients":   len(srv.Clients()),
		})
	})

	mux.Handle("/metrics", registry.Handler())

	httpServer := &http.Server{
		Addr:         cfg.Metrics.ListenAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics http server starting", zap.String("addr", cfg.Metrics.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics http server shutdown error", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
