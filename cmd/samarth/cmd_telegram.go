package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/samarth/internal/telegram"
)

func init() {
	rootCmd.AddCommand(telegramCmd)
}

var telegramCmd = &cobra.Command{
	Use:   "telegram",
	Short: "Relay Telegram chats to the backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		if cfg.Telegram.Token == "" {
			return fmt.Errorf("telegram.token is not set (config or TELEGRAM_BOT_TOKEN)")
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a := newApp(cfg, false)
		state := a.monitor.Probe(ctx)
		slog.Info("backend probed", "base_url", a.client.BaseURL(), "state", state)

		adapter, err := telegram.New(cfg.Telegram.Token, a.registry())
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		slog.Info("telegram adapter started")
		adapter.Start(ctx)
		slog.Info("telegram adapter stopped")
		return nil
	},
}
