// Command relay streams statuses from a Mastodon account's feeds and
// relays them to configured webhook endpoints, with per-endpoint
// filtering and Discord-specific formatting. On startup it replays
// statuses missed while it was down, resuming from a persisted cursor.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blackmichael/fedi-relay/internal/config"
	"github.com/blackmichael/fedi-relay/internal/httpserver"
	"github.com/blackmichael/fedi-relay/internal/mastodon"
	"github.com/blackmichael/fedi-relay/internal/relay"
	"github.com/blackmichael/fedi-relay/internal/storage"
	"github.com/blackmichael/fedi-relay/internal/stream"
	"github.com/blackmichael/fedi-relay/internal/webhook"
)

const cursorFlushInterval = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up the cursor store and load the persisted position.
	cursorFile, err := storage.NewCursorFile(cfg.CursorPath)
	if err != nil {
		return fmt.Errorf("create cursor store: %w", err)
	}
	cursor := relay.NewCursor(cursorFile, logger)
	if err := cursor.Load(context.Background()); err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}

	// The filter store is optional; without it only static endpoints match.
	var filterStore relay.FilterStore
	if cfg.DatabaseURL != "" {
		store, err := storage.NewFilterStore(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("create filter store: %w", err)
		}
		defer store.Close()
		filterStore = store
		logger.Info("connected to filter store")
	}

	client := mastodon.NewClient(cfg.Server, cfg.AccessToken)

	// The relay account's own id gates private-status delivery.
	selfID := ""
	if cfg.AccessToken != "" {
		self, err := client.VerifyCredentials(context.Background())
		if err != nil {
			return fmt.Errorf("verify credentials: %w", err)
		}
		selfID = self.ID
		logger.Info("authenticated", "acct", self.Acct, "account_id", self.ID)
	}

	subscribePublic := cfg.SubscribePublic && cfg.Transport == "websocket"
	router := relay.NewRouter(cfg.LocalHost, selfID, subscribePublic, cfg.StaticEndpoints, filterStore, logger)
	sender := webhook.NewSender(cfg.LocalHost, logger)
	service := relay.NewService(router, sender, cursor, logger)

	// Set up graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Replay the gap before going live. A recovery failure leaves a
	// permanent gap but must not keep the live stream down.
	recoverer := relay.NewRecoverer(client, service, cursor, cfg.RecoveryPageSize, logger)
	if processed, err := recoverer.Run(ctx); err != nil {
		logger.Error("gap recovery aborted, starting live stream anyway", "processed", processed, "error", err)
	}

	// Start the live stream subscriber in the background.
	go func() {
		var err error
		switch cfg.Transport {
		case "sse":
			err = stream.NewSSESubscriber(cfg.Server, cfg.AccessToken, service, logger).Start(ctx)
		default:
			channels := []string{stream.ChannelUser}
			if subscribePublic {
				channels = append(channels, stream.ChannelPublic)
			}
			err = stream.NewSubscriber(cfg.Server, cfg.AccessToken, channels, service, logger).Start(ctx)
		}
		if err != nil && ctx.Err() == nil {
			logger.Error("stream subscriber exited with error", "error", err)
		}
	}()

	// Periodic cursor snapshots; the loop flushes once more on cancel.
	go cursor.StartFlushLoop(ctx, cursorFlushInterval)

	// Start the admin HTTP server.
	server := httpserver.NewServer(cfg.Port, cursor, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("relay started",
		"server", cfg.Server,
		"transport", cfg.Transport,
		"static_endpoints", len(cfg.StaticEndpoints),
		"cursor", cursor.Current(),
	)

	// Wait for shutdown signal.
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}
	if err := cursor.Flush(context.Background()); err != nil {
		logger.Error("error flushing cursor", "error", err)
	}

	return nil
}
