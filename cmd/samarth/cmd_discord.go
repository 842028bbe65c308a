package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/samarth/internal/discord"
)

func init() {
	rootCmd.AddCommand(discordCmd)
}

var discordCmd = &cobra.Command{
	Use:   "discord",
	Short: "Relay prefixed Discord channel messages to the backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		if cfg.Discord.Token == "" {
			return fmt.Errorf("discord.token is not set (config or DISCORD_BOT_TOKEN)")
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a := newApp(cfg, false)
		state := a.monitor.Probe(ctx)
		slog.Info("backend probed", "base_url", a.client.BaseURL(), "state", state)

		relay, err := discord.New(cfg.Discord.Token, cfg.Discord.Prefix, a.registry())
		if err != nil {
			return err
		}
		if err := relay.Run(ctx); err != nil {
			return err
		}
		slog.Info("discord relay stopped")
		return nil
	},
}
