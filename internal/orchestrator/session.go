// Package orchestrator drives the lifecycle of user queries against the
// backend: validation, message logging, the single in-flight gate, and
// degradation when the backend cannot answer.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/samarth/internal/connectivity"
	"github.com/user/samarth/internal/conversation"
	"github.com/user/samarth/internal/types"
	"github.com/user/samarth/pkg/backend"
)

// DegradationNotice is the bot reply shown whenever a query fails.
const DegradationNotice = "⚠️ Could not connect to the backend. Please make sure the query server is running and try again."

// PendingText is shown by front ends while a query is in flight.
const PendingText = "Analyzing data from data.gov.in..."

// DefaultSamples are offered to the user before the first question.
var DefaultSamples = []string{
	"Compare the average annual rainfall in Punjab and Haryana for the last 5 years",
	"Identify the district in Punjab with the highest production of Wheat in 2023",
	"What are the top 3 crops produced in Maharashtra?",
}

// OutcomeStatus reports how a submission ended.
type OutcomeStatus string

const (
	StatusRejected OutcomeStatus = "rejected"
	StatusAnswered OutcomeStatus = "answered"
	StatusDegraded OutcomeStatus = "degraded"
)

// RejectReason explains why a submission was ignored.
type RejectReason string

const (
	RejectEmpty RejectReason = "empty"
	RejectBusy  RejectReason = "busy"
)

// Outcome is the completion signal of one submission. Rejected outcomes
// carry no messages.
type Outcome struct {
	Status   OutcomeStatus
	Reason   RejectReason
	User     *types.Message
	Reply    *types.Message
	Duration time.Duration
}

// Accepted reports whether the submission reached the backend.
func (o Outcome) Accepted() bool {
	return o.Status != StatusRejected
}

// Session is the state container for one conversation. It owns the message
// log, shares a connectivity monitor, and gates submissions so that at most
// one query is in flight.
type Session struct {
	client  backend.Client
	store   *conversation.Store
	monitor *connectivity.Monitor
	retry   *RetryPolicy
	samples []string

	gate *semaphore.Weighted
	busy atomic.Bool

	inputMu sync.Mutex
	input   string
}

// Option configures optional behavior on a Session.
type Option func(*Session)

// WithRetryPolicy overrides the single-attempt default.
func WithRetryPolicy(p *RetryPolicy) Option {
	return func(s *Session) {
		if p != nil {
			s.retry = p
		}
	}
}

// WithSamples replaces the sample questions.
func WithSamples(samples []string) Option {
	return func(s *Session) { s.samples = samples }
}

// New creates a Session over an existing store and monitor.
func New(client backend.Client, store *conversation.Store, monitor *connectivity.Monitor, opts ...Option) *Session {
	s := &Session{
		client:  client,
		store:   store,
		monitor: monitor,
		retry:   DefaultRetryPolicy(),
		samples: DefaultSamples,
		gate:    semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit runs one query to completion and returns its outcome.
func (s *Session) Submit(ctx context.Context, text string) Outcome {
	return <-s.SubmitAsync(ctx, text)
}

// SubmitAsync validates text, records the user message, and engages the
// busy gate before returning. The backend call completes in the background
// and the returned channel receives exactly one Outcome before closing.
//
// The in-flight query is detached from ctx cancellation; it ends when the
// backend client's own timeouts do.
func (s *Session) SubmitAsync(ctx context.Context, text string) <-chan Outcome {
	out := make(chan Outcome, 1)

	if backend.IsBlank(text) {
		out <- Outcome{Status: StatusRejected, Reason: RejectEmpty}
		close(out)
		return out
	}
	if !s.gate.TryAcquire(1) {
		slog.Debug("submission rejected while busy", "session_id", s.store.SessionID())
		out <- Outcome{Status: StatusRejected, Reason: RejectBusy}
		close(out)
		return out
	}
	s.busy.Store(true)

	user := types.NewUserMessage(text)
	s.store.Append(ctx, user)
	s.SetInput("")

	queryCtx := context.WithoutCancel(ctx)
	go func() {
		defer close(out)
		out <- s.complete(queryCtx, text, user)
	}()
	return out
}

// complete performs the backend call and records its result. The gate is
// released on every path, including a panicking client.
func (s *Session) complete(ctx context.Context, text string, user types.Message) (outcome Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("query panicked", "session_id", s.store.SessionID(), "panic", r)
			outcome = s.degrade(ctx, user, fmt.Errorf("panic: %v", r))
		}
		outcome.Duration = time.Since(start)
		s.busy.Store(false)
		s.gate.Release(1)
	}()

	var answer *backend.Answer
	err := s.retry.Execute(ctx, func() error {
		a, err := s.client.Query(ctx, text)
		if err != nil {
			return err
		}
		if a == nil {
			return &backend.Failure{Kind: backend.MalformedResponse, Err: errors.New("empty answer object")}
		}
		answer = a
		return nil
	})
	if err != nil {
		return s.degrade(ctx, user, err)
	}

	reply := types.NewBotMessage(answer.Text, toSources(answer.Sources), answer.Metadata)
	s.store.Append(ctx, reply)
	slog.Info("query answered",
		"session_id", s.store.SessionID(),
		"sources", len(reply.Sources),
		"duration", time.Since(start),
	)
	return Outcome{Status: StatusAnswered, User: &user, Reply: &reply}
}

func (s *Session) degrade(ctx context.Context, user types.Message, err error) Outcome {
	kind := "unknown"
	if f, ok := backend.AsFailure(err); ok {
		kind = string(f.Kind)
	}
	slog.Warn("query failed", "session_id", s.store.SessionID(), "kind", kind, "error", err)

	reply := types.NewDegradedMessage(DegradationNotice)
	s.store.Append(ctx, reply)
	s.monitor.MarkUnreachable("query failed: " + kind)
	return Outcome{Status: StatusDegraded, User: &user, Reply: &reply}
}

func toSources(in []backend.Source) []types.Source {
	out := make([]types.Source, len(in))
	for i, src := range in {
		out[i] = types.Source{
			Dataset:    src.Dataset,
			Publisher:  src.Publisher,
			URL:        src.URL,
			ResourceID: src.ResourceID,
		}
	}
	return out
}

// Busy reports whether a query is currently in flight.
func (s *Session) Busy() bool {
	return s.busy.Load()
}

// SetInput replaces the input buffer.
func (s *Session) SetInput(text string) {
	s.inputMu.Lock()
	s.input = text
	s.inputMu.Unlock()
}

// Input returns the input buffer.
func (s *Session) Input() string {
	s.inputMu.Lock()
	defer s.inputMu.Unlock()
	return s.input
}

// SubmitInput submits the current input buffer and waits for the outcome.
func (s *Session) SubmitInput(ctx context.Context) Outcome {
	return <-s.SubmitInputAsync(ctx)
}

// SubmitInputAsync is SubmitAsync over the input buffer. A rejected
// submission leaves the buffer as it was.
func (s *Session) SubmitInputAsync(ctx context.Context) <-chan Outcome {
	return s.SubmitAsync(ctx, s.Input())
}

// Samples returns the sample questions.
func (s *Session) Samples() []string {
	out := make([]string, len(s.samples))
	copy(out, s.samples)
	return out
}

// ShowSamples reports whether sample questions should be offered, which is
// only while the conversation holds nothing but the welcome message.
func (s *Session) ShowSamples() bool {
	return len(s.samples) > 0 && s.store.Len() == 1
}

// UseSample loads sample question i (0-based) into the input buffer without
// submitting it.
func (s *Session) UseSample(i int) (string, error) {
	if i < 0 || i >= len(s.samples) {
		return "", fmt.Errorf("sample %d out of range (have %d)", i+1, len(s.samples))
	}
	s.SetInput(s.samples[i])
	return s.samples[i], nil
}

// Messages returns a snapshot of the conversation log.
func (s *Session) Messages() []types.Message {
	return s.store.Messages()
}

// SessionID identifies the conversation.
func (s *Session) SessionID() types.SessionID {
	return s.store.SessionID()
}

// Connectivity returns the monitor's current state.
func (s *Session) Connectivity() types.ConnectivityState {
	return s.monitor.State()
}

// Subscribe returns a channel of connectivity changes from the shared
// monitor.
func (s *Session) Subscribe() <-chan types.ConnectivityState {
	return s.monitor.Subscribe()
}

// Probe re-runs the backend health check.
func (s *Session) Probe(ctx context.Context) types.ConnectivityState {
	return s.monitor.Probe(ctx)
}
