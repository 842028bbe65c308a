// Package render formats conversation messages and connectivity state as
// terminal text.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/user/samarth/internal/types"
)

const (
	Title    = "Project Samarth"
	Subtitle = "Intelligent Q&A over data.gov.in"

	FooterText   = "All responses are sourced from live data.gov.in datasets with full citations"
	SamplesTitle = "Try these sample questions:"
	SourcesTitle = "Data Sources:"

	TimeFormat = "15:04:05"
)

const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiDim    = "\x1b[2m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
)

// Renderer writes formatted output to w.
type Renderer struct {
	w     io.Writer
	color bool
}

// New creates a Renderer. Color is enabled only when w is a terminal and
// NO_COLOR is unset.
func New(w io.Writer) *Renderer {
	return &Renderer{w: w, color: colorCapable(w)}
}

// NewPlain creates a Renderer that never emits escape sequences.
func NewPlain(w io.Writer) *Renderer {
	return &Renderer{w: w}
}

func colorCapable(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (r *Renderer) paint(code, s string) string {
	if !r.color {
		return s
	}
	return code + s + ansiReset
}

// BadgeText is the connectivity label for state.
func BadgeText(state types.ConnectivityState) string {
	switch state {
	case types.ConnectivityConnected:
		return "Backend Connected"
	case types.ConnectivityUnreachable:
		return "Backend Offline"
	default:
		return "Checking..."
	}
}

// Badge returns the connectivity label with its marker.
func (r *Renderer) Badge(state types.ConnectivityState) string {
	switch state {
	case types.ConnectivityConnected:
		return r.paint(ansiGreen, "● "+BadgeText(state))
	case types.ConnectivityUnreachable:
		return r.paint(ansiRed, "● "+BadgeText(state))
	default:
		return r.paint(ansiYellow, "○ "+BadgeText(state))
	}
}

// Header writes the title line and the connectivity badge.
func (r *Renderer) Header(state types.ConnectivityState) {
	fmt.Fprintf(r.w, "%s  %s\n", r.paint(ansiBold, Title), r.Badge(state))
	fmt.Fprintln(r.w, r.paint(ansiDim, Subtitle))
	fmt.Fprintln(r.w)
}

// Samples writes the numbered sample questions. Nothing is written for an
// empty list.
func (r *Renderer) Samples(samples []string) {
	if len(samples) == 0 {
		return
	}
	fmt.Fprintln(r.w, r.paint(ansiBold, SamplesTitle))
	for i, q := range samples {
		fmt.Fprintf(r.w, "  %d. %s\n", i+1, q)
	}
	fmt.Fprintln(r.w, r.paint(ansiDim, "Type /sample N to use one."))
	fmt.Fprintln(r.w)
}

// Pending writes the in-flight indicator.
func (r *Renderer) Pending(text string) {
	fmt.Fprintln(r.w, r.paint(ansiDim, "… "+text))
}

// Line writes s followed by a newline.
func (r *Renderer) Line(s string) {
	fmt.Fprintln(r.w, s)
}

// Prompt writes the input prompt. Prefilled input is shown above it and is
// sent by an empty line.
func (r *Renderer) Prompt(prefill string) {
	if prefill != "" {
		fmt.Fprintln(r.w, r.paint(ansiDim, "[Enter to send] ")+prefill)
	}
	fmt.Fprint(r.w, "> ")
}

// Footer writes the citation notice.
func (r *Renderer) Footer() {
	fmt.Fprintln(r.w, r.paint(ansiDim, FooterText))
}

// Message writes one message.
func (r *Renderer) Message(m types.Message) {
	io.WriteString(r.w, r.Format(m))
}

// Messages writes every message in order.
func (r *Renderer) Messages(msgs []types.Message) {
	for _, m := range msgs {
		r.Message(m)
	}
}

// Format returns the text block for m, ending in a blank line.
func (r *Renderer) Format(m types.Message) string {
	var b strings.Builder

	stamp := r.paint(ansiDim, m.CreatedAt.Local().Format(TimeFormat))
	switch m.Kind {
	case types.KindSystem:
		fmt.Fprintf(&b, "%s %s\n", r.paint(ansiGreen, "✓"), m.Content)
	case types.KindUser:
		fmt.Fprintf(&b, "%s %s\n", r.paint(ansiBold+ansiCyan, "You:"), m.Content)
	default:
		label := r.paint(ansiBold, "Samarth:")
		body := m.Content
		if m.Degraded {
			body = r.paint(ansiYellow, body)
		}
		if strings.Contains(body, "\n") {
			fmt.Fprintf(&b, "%s\n%s\n", label, indent(body, "  "))
		} else {
			fmt.Fprintf(&b, "%s %s\n", label, body)
		}
		r.sources(&b, m.Sources)
	}
	fmt.Fprintf(&b, "  %s\n\n", stamp)
	return b.String()
}

func (r *Renderer) sources(b *strings.Builder, sources []types.Source) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintf(b, "  %s\n", r.paint(ansiBold, SourcesTitle))
	for _, src := range sources {
		fmt.Fprintf(b, "  - %s\n", src.Dataset)
		if src.Publisher != "" {
			fmt.Fprintf(b, "    %s\n", r.paint(ansiDim, src.Publisher))
		}
		if src.URL != "" {
			fmt.Fprintf(b, "    View Dataset: %s\n", r.paint(ansiCyan, src.URL))
		}
		if src.ResourceID != "" {
			fmt.Fprintf(b, "    ID: %s\n", src.ResourceID)
		}
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}
