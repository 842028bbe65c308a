package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/samarth/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Long: `Walk through the settings in the config file. Environment overrides
such as SAMARTH_API_URL are not written to the file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetup(os.Stdin, os.Stdout, cfgPath)
	},
}

// runSetup edits the config file at path from answers read on in. It starts
// from the file contents alone.
func runSetup(in io.Reader, out io.Writer, path string) error {
	cfg, err := config.Read(path)
	if err != nil {
		return err
	}
	w := &wizard{scanner: bufio.NewScanner(in), out: out}

	fmt.Fprintln(out, "Samarth Setup Wizard")
	fmt.Fprintln(out, "Press Enter to accept the default value shown in brackets.")
	fmt.Fprintln(out)

	cfg.Backend.BaseURL = w.prompt("Backend API URL", cfg.Backend.BaseURL)
	if env := config.OverriddenBy("backend.base_url"); env != "" {
		fmt.Fprintf(out, "  note: %s is set and overrides this value at runtime\n", env)
	}

	timeout := w.prompt("Query timeout", cfg.QueryTimeout().String())
	if d, err := time.ParseDuration(timeout); err == nil && d > 0 {
		cfg.Backend.QueryTimeout = d.String()
	} else {
		fmt.Fprintf(out, "  keeping %s (%q is not a duration)\n", cfg.QueryTimeout(), timeout)
	}

	attempts := w.prompt("Attempts per query (1 disables retries)", strconv.Itoa(max(cfg.Query.MaxAttempts, 1)))
	if n, err := strconv.Atoi(attempts); err == nil && n > 0 {
		cfg.Query.MaxAttempts = n
	}

	record := w.prompt("Record chat transcripts (y/n)", yesNo(cfg.Chat.Transcript))
	cfg.Chat.Transcript = strings.HasPrefix(strings.ToLower(record), "y")

	cfg.Telegram.Token = w.secret("Telegram bot token (optional)", cfg.Telegram.Token)
	cfg.Discord.Token = w.secret("Discord bot token (optional)", cfg.Discord.Token)

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(path, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration saved to", path)
	return nil
}

type wizard struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func (w *wizard) prompt(label, defaultVal string) string {
	return w.ask(label, defaultVal, defaultVal)
}

// secret is prompt with the current value masked on screen.
func (w *wizard) secret(label, current string) string {
	return w.ask(label, config.Mask(current), current)
}

func (w *wizard) ask(label, shown, defaultVal string) string {
	if shown != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", label, shown)
	} else {
		fmt.Fprintf(w.out, "%s: ", label)
	}
	if w.scanner.Scan() {
		if input := strings.TrimSpace(w.scanner.Text()); input != "" {
			return input
		}
	}
	return defaultVal
}

func yesNo(b bool) string {
	if b {
		return "y"
	}
	return "n"
}
