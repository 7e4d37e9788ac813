package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/centrifugal/centrifuge"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/livechat/internal/adapter/connlimit"
	"github.com/pscheid92/livechat/internal/adapter/httpserver"
	"github.com/pscheid92/livechat/internal/adapter/mediarelay"
	"github.com/pscheid92/livechat/internal/adapter/metrics"
	"github.com/pscheid92/livechat/internal/adapter/socket"
	"github.com/pscheid92/livechat/internal/adapter/websocket"
	"github.com/pscheid92/livechat/internal/app"
	"github.com/pscheid92/livechat/internal/platform/config"
	"github.com/pscheid92/livechat/internal/platform/logging"
	"github.com/pscheid92/livechat/internal/platform/version"
	"github.com/pscheid92/livechat/internal/stream"
)

const shutdownTimeout = 10 * time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupNode(cfg *config.Config, relay *app.Relay, limits *connlimit.Limits, wsMetrics *metrics.WebSocketMetrics) *centrifuge.Node {
	node, err := websocket.NewNode(relay, limits, wsMetrics, cfg.LogLevel)
	if err != nil {
		slog.Error("Failed to create centrifuge node", "error", err)
		os.Exit(1)
	}
	if err := node.Run(); err != nil {
		slog.Error("Failed to run centrifuge node", "error", err)
		os.Exit(1)
	}
	return node
}

// startMediaRelay launches the external RTMP relay on local deployments and
// returns a readiness check for it. Launch failures only degrade RTMP ingest.
func startMediaRelay(ctx context.Context, cfg *config.Config, clock clockwork.Clock, mediaMetrics *metrics.MediaMetrics) []httpserver.HealthCheck {
	if cfg.Hosted() {
		slog.Info("Hosted deployment, not starting RTMP relay", "site", cfg.SiteName)
		return nil
	}

	launcher := mediarelay.NewLauncher(cfg.RTMPArgs(), mediaMetrics)
	if err := launcher.Start(ctx); err != nil {
		slog.Error("Failed to start RTMP relay", "error", err)
		return nil
	}

	probe := mediarelay.NewProbe(cfg.RTMPAddr, mediaMetrics)
	go func() {
		if err := probe.WaitReady(ctx, clock); err != nil {
			slog.Warn("RTMP relay did not become ready", "addr", cfg.RTMPAddr, "error", err)
			return
		}
		slog.Info("RTMP relay ready", "addr", cfg.RTMPAddr)
	}()
	return []httpserver.HealthCheck{{Name: "rtmp_relay", Check: probe.Ready}}
}

func runGracefulShutdown(srv *httpserver.Server, node *centrifuge.Node, stopRelay context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := node.Shutdown(shutdownCtx); err != nil {
			slog.Error("Centrifuge shutdown error", "error", err)
		}
		stopRelay()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "hosted", cfg.Hosted(), "version", version.Get().Version)

	reg := metrics.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(reg)
	wsMetrics := metrics.NewWebSocketMetrics(reg)
	relayMetrics := metrics.NewRelayMetrics(reg)
	mediaMetrics := metrics.NewMediaMetrics(reg)

	relay := app.NewRelay(stream.NewRegistry(), app.RelayOptions{
		ChatRatePerSecond: cfg.ChatRatePerSecond,
		ChatBurst:         cfg.ChatBurst,
		ChatMaxLength:     cfg.ChatMaxLength,
	}, clock, relayMetrics)

	limits := connlimit.New(int64(cfg.MaxWebSocketConnections), cfg.MaxConnectionsPerIP, cfg.ConnectionsPerSecond, cfg.ConnectionBurst, clock)
	checkOrigin := websocket.NewCheckOrigin(cfg.AppURL, cfg.IsDevelopment(), wsMetrics)

	node := setupNode(cfg, relay, limits, wsMetrics)
	realtimeHandler := centrifuge.NewWebsocketHandler(node, centrifuge.WebsocketConfig{CheckOrigin: checkOrigin})
	socketHandler := socket.NewHandler(relay, limits, checkOrigin, clock, wsMetrics)

	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	healthChecks := startMediaRelay(relayCtx, cfg, clock, mediaMetrics)

	srv, err := httpserver.NewServer(cfg, httpserver.Dependencies{
		Relay:    relay,
		Keys:     mediarelay.NewKeyIssuer(cfg.HLSPort, clock, mediaMetrics),
		Clock:    clock,
		Socket:   socketHandler,
		Realtime: realtimeHandler,
		Metrics:  metrics.Handler(reg),
		HTTP:     httpMetrics,
		Media:    mediaMetrics,
		Health:   healthChecks,
	})
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	done := runGracefulShutdown(srv, node, stopRelay)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
