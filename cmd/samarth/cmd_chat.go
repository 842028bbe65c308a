package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/samarth/internal/orchestrator"
	"github.com/user/samarth/internal/render"
	"github.com/user/samarth/internal/types"
)

var chatTranscript bool

func init() {
	chatCmd.Flags().BoolVar(&chatTranscript, "transcript", false, "record the conversation under <data_dir>/transcripts")
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sess := newApp(cfg, chatTranscript).session()
		return runREPL(ctx, os.Stdin, render.New(os.Stdout), sess)
	},
}

const replHelp = `Commands:
  /sample N   load sample question N into the input (Enter sends it)
  /health     re-check the backend
  /history    show the whole conversation
  /help       show this help
  /quit       leave`

// runREPL drives one conversation from lines read on in. It returns when
// in is exhausted, on /quit, or as soon as ctx is cancelled, even with a
// query still in flight.
func runREPL(ctx context.Context, in io.Reader, r *render.Renderer, sess *orchestrator.Session) error {
	c := &repl{r: r, sess: sess}

	r.Header(sess.Connectivity())
	r.Message(sess.Messages()[0])
	c.shown = sess.Probe(ctx)
	r.Line(r.Badge(c.shown))
	c.changes = sess.Subscribe()
	if sess.ShowSamples() {
		r.Samples(sess.Samples())
	}
	r.Footer()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		c.refreshBadge()
		r.Prompt(sess.Input())
		var raw string
		select {
		case <-ctx.Done():
			r.Line("")
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			raw = l
		}

		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "/") {
			if quit := c.command(ctx, line); quit {
				return nil
			}
			continue
		}

		// A blank line sends whatever is already in the input buffer.
		if line != "" {
			sess.SetInput(raw)
		}
		if !c.submit(ctx) {
			r.Line("")
			return nil
		}
	}
}

type repl struct {
	r       *render.Renderer
	sess    *orchestrator.Session
	changes <-chan types.ConnectivityState
	shown   types.ConnectivityState
}

// refreshBadge prints the badge when connectivity moved away from the
// last state shown.
func (c *repl) refreshBadge() {
	for {
		select {
		case state := <-c.changes:
			if state != c.shown {
				c.shown = state
				c.r.Line(c.r.Badge(state))
			}
		default:
			return
		}
	}
}

// command handles a slash command and reports whether to exit.
func (c *repl) command(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/health":
		c.shown = c.sess.Probe(ctx)
		// The badge is printed below; skip the probe's own notification.
		c.drain()
		c.r.Line(c.r.Badge(c.shown))
	case "/history":
		c.r.Messages(c.sess.Messages())
	case "/sample":
		if len(fields) != 2 {
			c.r.Line("Usage: /sample N")
			return false
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			c.r.Line("Usage: /sample N")
			return false
		}
		if _, err := c.sess.UseSample(n - 1); err != nil {
			c.r.Line(err.Error())
		}
	case "/help":
		c.r.Line(replHelp)
	default:
		c.r.Line(fmt.Sprintf("Unknown command %s. Type /help for a list.", fields[0]))
	}
	return false
}

func (c *repl) drain() {
	for {
		select {
		case <-c.changes:
		default:
			return
		}
	}
}

// submit sends the input buffer and renders the reply. It reports false
// when ctx was cancelled before the reply arrived; the query itself keeps
// running detached.
func (c *repl) submit(ctx context.Context) bool {
	ch := c.sess.SubmitInputAsync(ctx)
	if c.sess.Busy() {
		c.r.Pending(orchestrator.PendingText)
	}
	select {
	case o := <-ch:
		if o.Accepted() {
			c.r.Message(*o.Reply)
		}
		return true
	case <-ctx.Done():
		return false
	}
}
