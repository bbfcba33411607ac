package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"oneclick/pkg/bus"
	"oneclick/pkg/channel"
	"oneclick/pkg/channel/telegram"
	"oneclick/pkg/config"
	"oneclick/pkg/gateway"
	"oneclick/pkg/logger"
	"oneclick/pkg/router"

	"github.com/spf13/cobra"
)

const telegramChannelName = "telegram"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session server",
	Long:  "Serves the WebSocket session channel, landing page, health, readiness, echo and metrics endpoints on one listener.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.serve")

		r, err := newRouter(cfg)
		if err != nil {
			log.Error("Router configuration invalid", "error", err)
			return
		}

		adapters, err := enabledAdapters(cfg, log)
		if err != nil {
			log.Error("Channel configuration invalid", "error", err)
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := gateway.NewService(cfg, r, adapters, log)
		if err != nil {
			log.Error("Failed to initialize gateway service", "error", err)
			return
		}

		events, unsubscribe := svc.Events().Subscribe(runCtx, 0)
		defer unsubscribe()
		go func() {
			for event := range events {
				logEvent(log, event)
			}
		}()

		log.Info("Server starting", "address", cfg.Server.Addr(), "locale", cfg.Router.Locale, "channels", enabledChannelNames(adapters))
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Server failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func newRouter(cfg *config.Config) (*router.Router, error) {
	catalog, err := router.CatalogFor(cfg.Router.Locale)
	if err != nil {
		return nil, err
	}

	return router.New(
		router.WithCatalog(catalog),
		router.WithStepDelay(time.Duration(cfg.Server.StepDelayMS)*time.Millisecond),
	), nil
}

// enabledAdapters builds the optional channels that run beside the WebSocket one.
func enabledAdapters(cfg *config.Config, log *slog.Logger) ([]channel.Adapter, error) {
	adapters := make([]channel.Adapter, 0, 1)

	if cfg.Channels.Telegram.Enabled {
		adapter, err := telegram.NewAdapter(cfg.Channels.Telegram, log)
		if err != nil {
			return nil, fmt.Errorf("configure %s channel: %w", telegramChannelName, err)
		}
		adapters = append(adapters, adapter)
	}

	return adapters, nil
}

func enabledChannelNames(adapters []channel.Adapter) string {
	names := []string{"websocket"}
	for _, adapter := range adapters {
		names = append(names, adapter.Name())
	}

	return strings.Join(names, ",")
}

func logEvent(log *slog.Logger, event bus.Event) {
	attrs := []any{"type", event.Type, "channel", event.Channel, "session_key", event.SessionKey}

	switch event.Type {
	case bus.EventSessionOpened:
		log.Info("Session event", attrs...)
	case bus.EventSessionClosed:
		log.Info("Session event", append(attrs, "reason", event.Reason, "duration", event.Duration)...)
	case bus.EventIntentRouted:
		log.Debug("Session event", append(attrs, "intent", event.Intent, "messages", event.Messages, "duration", event.Duration)...)
	case bus.EventRouteFailed:
		log.Warn("Session event", append(attrs, "intent", event.Intent, "messages", event.Messages, "reason", event.Reason, "error", event.Error)...)
	}
}
