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

	"github.com/jonboulle/clockwork"

	"github.com/Cristianpl08/live-translation/internal/config"
	"github.com/Cristianpl08/live-translation/internal/logging"
	"github.com/Cristianpl08/live-translation/internal/realtime"
	"github.com/Cristianpl08/live-translation/internal/relay"
	"github.com/Cristianpl08/live-translation/internal/server"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func runGracefulShutdown(cfg *config.Config, srv *server.Server, r *relay.Relay) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		r.Stop()

		close(done)
	}()

	return done
}

func main() {
	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	dialer := func(ctx context.Context, apiKey string) (relay.Upstream, error) {
		return realtime.Dial(ctx, realtime.Config{
			URL:   cfg.RealtimeURL,
			Model: cfg.RealtimeModel,
		}, apiKey)
	}

	r := relay.New(dialer, clockwork.NewRealClock(), cfg.MaxViewers)
	srv := server.NewServer(cfg, r)

	done := runGracefulShutdown(cfg, srv, r)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
