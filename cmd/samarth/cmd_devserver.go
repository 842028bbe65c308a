package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/samarth/internal/conversation"
	"github.com/user/samarth/internal/devbackend"
)

var (
	devListen    string
	devDelay     time.Duration
	devFailQuery int
	devUnhealthy bool
)

func init() {
	devserverCmd.Flags().StringVar(&devListen, "listen", "", "listen address (default from devserver.listen)")
	devserverCmd.Flags().DurationVar(&devDelay, "delay", 0, "minimum latency added to each query")
	devserverCmd.Flags().IntVar(&devFailQuery, "fail-query", 0, "answer every query with this HTTP status")
	devserverCmd.Flags().BoolVar(&devUnhealthy, "unhealthy", false, "report 503 from the health endpoint")
	rootCmd.AddCommand(devserverCmd)
}

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local backend with canned, cited answers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		listen := devListen
		if listen == "" {
			listen = cfg.DevServer.Listen
		}

		srv := devbackend.NewServer(
			devbackend.WithDelay(devDelay),
			devbackend.WithTranscripts(conversation.NewTranscript(cfg.DataDir)),
		)
		srv.SetHealthy(!devUnhealthy)
		srv.FailQueries(devFailQuery)

		httpServer := &http.Server{
			Addr:              listen,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			slog.Info("devserver started", "listen", listen, "api", fmt.Sprintf("http://%s/api", listen))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("devserver: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			slog.Info("devserver shutting down")
			return httpServer.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}
