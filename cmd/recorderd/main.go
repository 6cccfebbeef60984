// recorderd subscribes to the firewall event stream and archives log
// entries into Postgres.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fwpanel/panel-stream/internal/config"
	"github.com/fwpanel/panel-stream/internal/database"
	"github.com/fwpanel/panel-stream/internal/recorder"
	"github.com/fwpanel/panel-stream/internal/stream"
	"github.com/fwpanel/panel-stream/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/recorder.local.yaml", "path to config file")
	healthAddr := flag.String("health", ":8080", "health endpoint listen address")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting recorderd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"endpoints", cfg.Stream.Endpoints,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("database connected")

	// Create stream client and recorder
	client := stream.New(cfg.Stream.ClientConfig(), logger)

	recCfg := recorder.DefaultConfig()
	if cfg.Recorder.BatchSize > 0 {
		recCfg.BatchSize = cfg.Recorder.BatchSize
	}
	if cfg.Recorder.FlushInterval > 0 {
		recCfg.FlushInterval = cfg.Recorder.FlushInterval
	}
	rec := recorder.New(recCfg, client, pool, logger)

	if err := rec.Start(ctx); err != nil {
		logger.Error("failed to start recorder", "error", err)
		os.Exit(1)
	}

	// Health server
	healthServer := &http.Server{
		Addr:    *healthAddr,
		Handler: createHealthHandler(pool, client, rec),
	}
	go func() {
		logger.Info("starting health server", "addr", *healthAddr)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	logger.Info("connecting to event stream", "client_id", client.ID())
	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect to event stream", "error", err)
		os.Exit(1)
	}

	logger.Info("recorderd running", "instance_id", cfg.Instance.ID)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	client.Disconnect()
	rec.Stop(shutdownCtx)
	healthServer.Shutdown(shutdownCtx)

	logger.Info("recorderd stopped")
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(pool interface{ Ping(context.Context) error }, client *stream.Client, rec *recorder.Recorder) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["database"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["database"] = "connected"
		}

		status := client.Status()
		health.Components["stream"] = map[string]any{
			"state":   status.State.String(),
			"quality": string(status.Quality),
			"queued":  status.QueueLength,
		}
		if !status.Connected {
			health.Status = "degraded"
		}

		stats := rec.Stats()
		health.Components["recorder"] = map[string]any{
			"inserts":      stats.Inserts,
			"conflicts":    stats.Conflicts,
			"flushes":      stats.Flushes,
			"errors":       stats.Errors,
			"parse_errors": stats.ParseErrors,
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics := client.Metrics()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"messages_sent":       metrics.MessagesSent,
			"messages_received":   metrics.MessagesReceived,
			"reconnects":          metrics.Reconnects,
			"queue_dropped":       metrics.QueueDropped,
			"received_by_channel": metrics.ReceivedByChannel,
		})
	})

	return mux
}
