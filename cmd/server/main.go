// socketclaude - session server bridging remote clients to a local
// conversational agent, directly or through a relay broker.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Yllib/socketclaude/internal/config"
	"github.com/Yllib/socketclaude/internal/keys"
	"github.com/Yllib/socketclaude/internal/plugin"
	"github.com/Yllib/socketclaude/internal/relay"
	"github.com/Yllib/socketclaude/internal/server"
	"github.com/Yllib/socketclaude/internal/session"
	"github.com/Yllib/socketclaude/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	kp, err := keys.LoadOrCreate(cfg.KeyPath)
	if err != nil {
		slog.Error("Failed to load identity key pair", "error", err)
		os.Exit(1)
	}
	slog.Info("Identity key pair ready", "public_key", kp.PublicKeyString())

	registry := session.NewRegistry()
	plugins := plugin.NewHost()
	dispatcher := server.NewDispatcher(repo, registry, plugins, cfg.AgentBinary, cfg.WorkDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Optional relay tunnel for clients that cannot reach this host directly.
	var tunnel *relay.Tunnel
	if cfg.Relay.URL != "" {
		var relayConn *server.Conn
		tunnel = relay.New(cfg.Relay.URL, cfg.Relay.PairingToken, kp, func(payload []byte) {
			relayConn.Handle(context.Background(), payload)
		}, cfg.Relay.InitialBackoff, cfg.Relay.MaxBackoff)
		relayConn = dispatcher.NewConn(tunnel.Transport())

		go tunnel.Run(ctx)
		slog.Info("Relay tunnel starting", "broker", cfg.Relay.URL)
		slog.Info("Pairing payload", "payload", tunnel.PairingPayload())
	}

	r := server.NewRouter(dispatcher, repo, cfg.AllowedOrigin, cfg.IsDevelopment())

	// No WriteTimeout: websocket connections are long-lived by design.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	if tunnel != nil {
		tunnel.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
