package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/samarth/internal/render"
	"github.com/user/samarth/internal/types"
)

func init() {
	rootCmd.AddCommand(healthCmd)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check whether the backend is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		a := newApp(cfg, false)
		state := a.monitor.Probe(context.Background())

		r := render.New(os.Stdout)
		r.Line(fmt.Sprintf("%s  %s", r.Badge(state), a.client.BaseURL()))
		if state != types.ConnectivityConnected {
			return fmt.Errorf("backend unreachable at %s", a.client.BaseURL())
		}
		return nil
	},
}
