package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pong-server/internal/config"
	"pong-server/internal/events"
	"pong-server/internal/server"
	"pong-server/internal/storage"
)

func gracefulShutdown(customServer *server.Server, httpServer *http.Server, timeout time.Duration, logger *slog.Logger, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	logger.Info("shutdown signal received, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop sessions and record their matches
	if err := customServer.Shutdown(ctx); err != nil {
		logger.Error("game server shutdown", "error", err)
	}

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("http server forced to shutdown", "error", err)
	}

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func openPublisher(cfg *config.Config, logger *slog.Logger) events.Publisher {
	if cfg.Events.NATSURL == "" {
		return events.Nop{}
	}
	pub, err := events.Connect(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, logger)
	if err != nil {
		logger.Warn("match events disabled", "error", err)
		return events.Nop{}
	}
	logger.Info("publishing match events", "url", cfg.Events.NATSURL, "prefix", cfg.Events.SubjectPrefix)
	return pub
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := storage.Open(startCtx, cfg, logger)
	cancel()
	if err != nil {
		return fmt.Errorf("open match history: %w", err)
	}
	defer store.Close()

	publisher := openPublisher(cfg, logger)
	defer publisher.Close()

	customServer, httpServer := server.NewServer(cfg, logger, store, publisher)

	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(customServer, httpServer, cfg.Server.ShutdownTimeout, logger, done)

	logger.Info("server listening", "addr", httpServer.Addr, "static_dir", cfg.Server.StaticDir)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	// Wait for the graceful shutdown to complete
	<-done
	logger.Info("graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}
