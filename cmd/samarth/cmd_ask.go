package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/samarth/internal/orchestrator"
	"github.com/user/samarth/internal/render"
)

var askJSON bool

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the reply message as JSON")
	rootCmd.AddCommand(askCmd)
}

var errDegraded = errors.New("backend could not answer")

var askCmd = &cobra.Command{
	Use:   "ask <question...>",
	Short: "Ask a single question and print the cited answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sess := newApp(cfg, false).session()
		o, err := askOnce(ctx, sess, strings.Join(args, " "))
		if err != nil {
			return err
		}

		if askJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(o.Reply); err != nil {
				return err
			}
		} else {
			r := render.New(os.Stdout)
			r.Message(*o.Reply)
			if len(o.Reply.Sources) > 0 {
				r.Footer()
			}
		}

		if o.Status == orchestrator.StatusDegraded {
			return errDegraded
		}
		return nil
	},
}

// askOnce submits question and waits for its outcome or for ctx to end.
func askOnce(ctx context.Context, sess *orchestrator.Session, question string) (orchestrator.Outcome, error) {
	select {
	case o := <-sess.SubmitAsync(ctx, question):
		if !o.Accepted() {
			return o, fmt.Errorf("question is empty")
		}
		return o, nil
	case <-ctx.Done():
		return orchestrator.Outcome{}, fmt.Errorf("interrupted before the backend answered: %w", ctx.Err())
	}
}
