package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/samarth/internal/conversation"
	"github.com/user/samarth/internal/render"
	"github.com/user/samarth/internal/types"
)

var transcriptLimit int

func init() {
	transcriptShowCmd.Flags().IntVarP(&transcriptLimit, "limit", "n", 0, "show only the last N messages")
	rootCmd.AddCommand(transcriptCmd)
	transcriptCmd.AddCommand(transcriptListCmd, transcriptShowCmd)
}

var transcriptCmd = &cobra.Command{
	Use:   "transcript",
	Short: "Inspect recorded conversations",
}

var transcriptListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded conversations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		transcripts := conversation.NewTranscript(cfg.DataDir)

		ctx := context.Background()
		list, err := transcripts.List(ctx)
		if err != nil {
			return fmt.Errorf("list transcripts: %w", err)
		}
		if len(list) == 0 {
			fmt.Println("No transcripts found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tMESSAGES\tMODIFIED")
		for _, info := range list {
			count, err := transcripts.Count(ctx, info.SessionID)
			if err != nil {
				count = 0
			}
			fmt.Fprintf(w, "%s\t%d\t%s\n", info.SessionID, count, info.ModTime)
		}
		return w.Flush()
	},
}

var transcriptShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a recorded conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		transcripts := conversation.NewTranscript(cfg.DataDir)

		id, err := types.ParseSessionID(args[0])
		if err != nil {
			return err
		}
		entries, err := transcripts.Tail(context.Background(), id, transcriptLimit)
		if err != nil {
			return err
		}

		r := render.New(os.Stdout)
		for _, e := range entries {
			r.Message(e.Message)
		}
		return nil
	},
}
