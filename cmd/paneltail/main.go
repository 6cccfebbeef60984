// paneltail connects to the firewall event stream and tails parsed
// messages to the console.
// Usage: go run ./cmd/paneltail --config configs/panel.local.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fwpanel/panel-stream/internal/config"
	"github.com/fwpanel/panel-stream/internal/stream"
)

func main() {
	configPath := flag.String("config", "configs/panel.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	client := stream.New(cfg.Stream.ClientConfig(), logger)

	defer client.Subscribe(stream.ChannelNewEntry, func(ev stream.Event) {
		printEntry(ev.Payload, *verbose)
	})()

	defer client.Subscribe(stream.ChannelSecurityAlert, func(ev stream.Event) {
		fmt.Printf("[ALERT] %s\n", ev.Payload)
	})()

	defer client.Subscribe(stream.ChannelConnection, func(ev stream.Event) {
		if ev.Status == nil {
			return
		}
		logger.Info("connection change",
			"connected", ev.Status.Connected,
			"quality", ev.Status.Quality,
		)
	})()

	defer client.Subscribe(stream.ChannelReconnect, func(ev stream.Event) {
		if ev.Progress == nil {
			return
		}
		logger.Info("reconnecting",
			"attempt", ev.Progress.Attempt,
			"max_attempts", ev.Progress.MaxAttempts,
		)
	})()

	defer client.Subscribe(stream.ChannelError, func(ev stream.Event) {
		logger.Warn("stream error", "error", ev.Err)
	})()

	logger.Info("connecting", "client_id", client.ID(), "endpoints", cfg.Stream.Endpoints)
	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer client.Disconnect()

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				status := client.Status()
				metrics := client.Metrics()
				logger.Info("stats",
					"state", status.State,
					"quality", status.Quality,
					"queued", status.QueueLength,
					"received", metrics.MessagesReceived,
					"sent", metrics.MessagesSent,
					"reconnects", metrics.Reconnects,
					"queue_dropped", metrics.QueueDropped,
				)
			}
		}
	}()

	logger.Info("tailing started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutdown complete")
}

func printEntry(payload []byte, verbose bool) {
	if verbose {
		var pretty map[string]any
		if err := json.Unmarshal(payload, &pretty); err == nil {
			data, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Printf("[ENTRY] %s\n", data)
			return
		}
		fmt.Printf("[ENTRY] %s\n", payload)
		return
	}

	var entry struct {
		DisplayTime string `json:"display_time"`
		Badge       string `json:"badge"`
		Iface       string `json:"iface"`
		Action      string `json:"action"`
		SrcIP       string `json:"src_ip"`
		SrcPort     int    `json:"src_port"`
		DstIP       string `json:"dst_ip"`
		DstPort     int    `json:"dst_port"`
		Protocol    string `json:"protocol"`
	}
	if err := json.Unmarshal(payload, &entry); err != nil {
		fmt.Printf("[ENTRY] %s\n", payload)
		return
	}

	fmt.Printf("[ENTRY %s] %s %s %s %s:%d -> %s:%d %s\n",
		entry.Badge, entry.DisplayTime, entry.Iface, entry.Action,
		entry.SrcIP, entry.SrcPort, entry.DstIP, entry.DstPort, entry.Protocol)
}
