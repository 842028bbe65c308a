package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/samarth/internal/connectivity"
	"github.com/user/samarth/internal/conversation"
	"github.com/user/samarth/internal/types"
	"github.com/user/samarth/pkg/backend"
)

// mockClient returns pre-configured results and counts calls.
type mockClient struct {
	healthFunc func(ctx context.Context) backend.Status
	queryFunc  func(ctx context.Context, text string) (*backend.Answer, error)
	queries    atomic.Int32
}

func (m *mockClient) Health(ctx context.Context) backend.Status {
	if m.healthFunc != nil {
		return m.healthFunc(ctx)
	}
	return backend.StatusConnected
}

func (m *mockClient) Query(ctx context.Context, text string) (*backend.Answer, error) {
	m.queries.Add(1)
	if m.queryFunc != nil {
		return m.queryFunc(ctx, text)
	}
	return &backend.Answer{Text: "answer to " + text, Sources: []backend.Source{}}, nil
}

func newTestSession(client *mockClient, opts ...Option) (*Session, *connectivity.Monitor) {
	monitor := connectivity.New(client)
	store := conversation.NewStore("")
	return New(client, store, monitor, opts...), monitor
}

func TestSubmitSuccessGrowsByTwo(t *testing.T) {
	client := &mockClient{}
	s, _ := newTestSession(client)
	ctx := context.Background()

	for n := 1; n <= 4; n++ {
		out := s.Submit(ctx, fmt.Sprintf("question %d", n))
		if out.Status != StatusAnswered {
			t.Fatalf("submission %d: expected answered, got %s", n, out.Status)
		}
		if got := len(s.Messages()); got != 1+2*n {
			t.Errorf("after %d submissions expected %d messages, got %d", n, 1+2*n, got)
		}
	}
	if s.Busy() {
		t.Error("expected busy to be released")
	}
}

func TestSubmitScenarioA(t *testing.T) {
	client := &mockClient{
		queryFunc: func(_ context.Context, text string) (*backend.Answer, error) {
			return &backend.Answer{
				Text: "Rice, Cotton, Soybean",
				Sources: []backend.Source{{
					Dataset:   "Crop Production Survey",
					Publisher: "Ministry of Agriculture",
					URL:       "https://data.gov.in/x",
				}},
			}, nil
		},
	}
	s, _ := newTestSession(client)

	out := s.Submit(context.Background(), "What are the top 3 crops produced in Maharashtra?")
	if out.Status != StatusAnswered {
		t.Fatalf("expected answered, got %s", out.Status)
	}

	msgs := s.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	user, bot := msgs[1], msgs[2]
	if user.Kind != types.KindUser || user.Content != "What are the top 3 crops produced in Maharashtra?" {
		t.Errorf("unexpected user message: %+v", user)
	}
	if bot.Kind != types.KindBot || bot.Content != "Rice, Cotton, Soybean" {
		t.Errorf("unexpected bot message: %+v", bot)
	}
	if len(bot.Sources) != 1 {
		t.Fatalf("expected 1 source, got %d", len(bot.Sources))
	}
	want := types.Source{Dataset: "Crop Production Survey", Publisher: "Ministry of Agriculture", URL: "https://data.gov.in/x"}
	if bot.Sources[0] != want {
		t.Errorf("expected source %+v, got %+v", want, bot.Sources[0])
	}
	if bot.Degraded {
		t.Error("answer must not be degraded")
	}
	if out.Reply == nil || out.Reply.ID != bot.ID || out.User == nil || out.User.ID != user.ID {
		t.Error("outcome should reference the appended messages")
	}
}

func TestSubmitPreservesRawText(t *testing.T) {
	client := &mockClient{}
	s, _ := newTestSession(client)

	text := "  rainfall in Punjab?  \n"
	var got string
	client.queryFunc = func(_ context.Context, q string) (*backend.Answer, error) {
		got = q
		return &backend.Answer{Text: "ok"}, nil
	}
	s.Submit(context.Background(), text)

	if s.Messages()[1].Content != text {
		t.Errorf("user text was altered: %q", s.Messages()[1].Content)
	}
	if got != text {
		t.Errorf("query text was altered: %q", got)
	}
}

func TestSubmitBlankIsNoop(t *testing.T) {
	client := &mockClient{}
	s, _ := newTestSession(client)

	for _, text := range []string{"", "   ", "\t\n"} {
		out := s.Submit(context.Background(), text)
		if out.Status != StatusRejected || out.Reason != RejectEmpty {
			t.Errorf("%q: expected rejected/empty, got %s/%s", text, out.Status, out.Reason)
		}
		if out.Accepted() {
			t.Errorf("%q: expected not accepted", text)
		}
	}
	if len(s.Messages()) != 1 {
		t.Errorf("expected log unchanged, got %d messages", len(s.Messages()))
	}
	if client.queries.Load() != 0 {
		t.Errorf("expected no backend calls, got %d", client.queries.Load())
	}
}

func TestSubmitWhileBusyIsNoop(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	client := &mockClient{
		queryFunc: func(_ context.Context, text string) (*backend.Answer, error) {
			once.Do(func() { close(started) })
			<-release
			return &backend.Answer{Text: "done"}, nil
		},
	}
	s, _ := newTestSession(client)
	ctx := context.Background()

	first := s.SubmitAsync(ctx, "first")
	if !s.Busy() {
		t.Fatal("expected busy immediately after SubmitAsync returns")
	}
	<-started

	before := len(s.Messages())
	second := s.Submit(ctx, "second")
	if second.Status != StatusRejected || second.Reason != RejectBusy {
		t.Errorf("expected rejected/busy, got %s/%s", second.Status, second.Reason)
	}
	if len(s.Messages()) != before {
		t.Errorf("busy submission changed the log: %d -> %d", before, len(s.Messages()))
	}
	if client.queries.Load() != 1 {
		t.Errorf("expected 1 backend call, got %d", client.queries.Load())
	}

	close(release)
	select {
	case out := <-first:
		if out.Status != StatusAnswered {
			t.Errorf("expected first to be answered, got %s", out.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first submission")
	}
	if s.Busy() {
		t.Error("expected busy released after completion")
	}

	// The gate accepts new submissions once released.
	if out := s.Submit(ctx, "third"); out.Status != StatusAnswered {
		t.Errorf("expected third to be answered, got %s", out.Status)
	}
}

func TestSubmitConcurrentOnlyOneAccepted(t *testing.T) {
	release := make(chan struct{})
	client := &mockClient{
		queryFunc: func(_ context.Context, text string) (*backend.Answer, error) {
			<-release
			return &backend.Answer{Text: "ok"}, nil
		},
	}
	s, _ := newTestSession(client)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var channels []<-chan Outcome
	var rejected int
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ch := s.SubmitAsync(ctx, fmt.Sprintf("q%d", i))
			mu.Lock()
			channels = append(channels, ch)
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	close(release)

	answered := 0
	for _, ch := range channels {
		out := <-ch
		switch out.Status {
		case StatusAnswered:
			answered++
		case StatusRejected:
			rejected++
		}
	}
	if answered != 1 || rejected != 19 {
		t.Errorf("expected 1 answered and 19 rejected, got %d and %d", answered, rejected)
	}
	if client.queries.Load() != 1 {
		t.Errorf("expected 1 backend call, got %d", client.queries.Load())
	}
	if len(s.Messages()) != 3 {
		t.Errorf("expected 3 messages, got %d", len(s.Messages()))
	}
}

func TestSubmitFailureDegrades(t *testing.T) {
	failures := map[string]error{
		"network":   &backend.Failure{Kind: backend.NetworkFailure, Err: errors.New("connection refused")},
		"backend":   &backend.Failure{Kind: backend.BackendFailure, StatusCode: 500, Err: errors.New("Internal Server Error")},
		"malformed": &backend.Failure{Kind: backend.MalformedResponse, Err: errors.New("missing answer field")},
	}
	priors := map[string]backend.Status{
		"unknown":     "",
		"connected":   backend.StatusConnected,
		"unreachable": backend.StatusUnreachable,
	}

	for fname, ferr := range failures {
		for pname, prior := range priors {
			t.Run(fname+"/"+pname, func(t *testing.T) {
				client := &mockClient{
					healthFunc: func(context.Context) backend.Status { return prior },
					queryFunc: func(context.Context, string) (*backend.Answer, error) {
						return nil, ferr
					},
				}
				s, monitor := newTestSession(client)
				if prior != "" {
					monitor.Probe(context.Background())
				}

				out := s.Submit(context.Background(), "question")
				if out.Status != StatusDegraded {
					t.Fatalf("expected degraded, got %s", out.Status)
				}

				msgs := s.Messages()
				if len(msgs) != 3 {
					t.Fatalf("expected exactly one bot message appended, got %d messages", len(msgs))
				}
				bot := msgs[2]
				if bot.Kind != types.KindBot || bot.Content != DegradationNotice {
					t.Errorf("unexpected degraded message: %+v", bot)
				}
				if len(bot.Sources) != 0 {
					t.Errorf("degraded message carries sources: %+v", bot.Sources)
				}
				if !bot.Degraded {
					t.Error("expected degraded flag")
				}
				if s.Connectivity() != types.ConnectivityUnreachable {
					t.Errorf("expected unreachable, got %s", s.Connectivity())
				}
				if s.Busy() {
					t.Error("expected busy released after failure")
				}
			})
		}
	}
}

func TestSubmitScenarioCTimeout(t *testing.T) {
	client := &mockClient{
		queryFunc: func(ctx context.Context, text string) (*backend.Answer, error) {
			return nil, &backend.Failure{Kind: backend.NetworkFailure, Err: context.DeadlineExceeded}
		},
	}
	s, monitor := newTestSession(client)
	monitor.Probe(context.Background())
	if s.Connectivity() != types.ConnectivityConnected {
		t.Fatalf("expected connected before query, got %s", s.Connectivity())
	}

	out := s.Submit(context.Background(), "slow question")
	if out.Reply == nil || out.Reply.Content != DegradationNotice {
		t.Errorf("expected degradation notice, got %+v", out.Reply)
	}
	if s.Connectivity() != types.ConnectivityUnreachable {
		t.Errorf("expected unreachable, got %s", s.Connectivity())
	}
	if s.Busy() {
		t.Error("expected busy false")
	}
}

func TestSubmitAfterFailureStillUsable(t *testing.T) {
	fail := true
	client := &mockClient{
		queryFunc: func(context.Context, string) (*backend.Answer, error) {
			if fail {
				return nil, &backend.Failure{Kind: backend.NetworkFailure, Err: errors.New("down")}
			}
			return &backend.Answer{Text: "back"}, nil
		},
	}
	s, _ := newTestSession(client)
	ctx := context.Background()

	s.Submit(ctx, "one")
	fail = false
	out := s.Submit(ctx, "two")
	if out.Status != StatusAnswered {
		t.Errorf("expected answered after recovery, got %s", out.Status)
	}
	if len(s.Messages()) != 5 {
		t.Errorf("expected 5 messages, got %d", len(s.Messages()))
	}
	// No automatic recovery: a successful query does not mark connected.
	if s.Connectivity() != types.ConnectivityUnreachable {
		t.Errorf("expected connectivity to stay unreachable, got %s", s.Connectivity())
	}
}

func TestSubmitOmittedAndEmptySourcesIdentical(t *testing.T) {
	for name, sources := range map[string][]backend.Source{"omitted": nil, "empty": {}} {
		t.Run(name, func(t *testing.T) {
			client := &mockClient{
				queryFunc: func(context.Context, string) (*backend.Answer, error) {
					return &backend.Answer{Text: "x", Sources: sources}, nil
				},
			}
			s, _ := newTestSession(client)
			s.Submit(context.Background(), "q")
			bot := s.Messages()[2]
			if bot.Sources == nil || len(bot.Sources) != 0 {
				t.Errorf("expected empty non-nil sources, got %#v", bot.Sources)
			}
		})
	}
}

func TestSubmitEmptyAnswerIsValidMessage(t *testing.T) {
	client := &mockClient{
		queryFunc: func(context.Context, string) (*backend.Answer, error) {
			return &backend.Answer{Text: ""}, nil
		},
	}
	s, monitor := newTestSession(client)
	monitor.Probe(context.Background())

	out := s.Submit(context.Background(), "q")
	if out.Status != StatusAnswered {
		t.Errorf("expected answered, got %s", out.Status)
	}
	if s.Connectivity() != types.ConnectivityConnected {
		t.Errorf("empty answer must not affect connectivity, got %s", s.Connectivity())
	}
}

func TestSubmitNilAnswerDegrades(t *testing.T) {
	client := &mockClient{
		queryFunc: func(context.Context, string) (*backend.Answer, error) { return nil, nil },
	}
	s, _ := newTestSession(client)
	if out := s.Submit(context.Background(), "q"); out.Status != StatusDegraded {
		t.Errorf("expected degraded, got %s", out.Status)
	}
}

func TestSubmitPanicReleasesGate(t *testing.T) {
	client := &mockClient{
		queryFunc: func(context.Context, string) (*backend.Answer, error) { panic("boom") },
	}
	s, _ := newTestSession(client)

	out := s.Submit(context.Background(), "q")
	if out.Status != StatusDegraded {
		t.Errorf("expected degraded, got %s", out.Status)
	}
	if s.Busy() {
		t.Error("expected gate released after panic")
	}
}

func TestSubmitMetadataPassedThrough(t *testing.T) {
	client := &mockClient{
		queryFunc: func(context.Context, string) (*backend.Answer, error) {
			return &backend.Answer{Text: "x", Metadata: json.RawMessage(`{"query_type":"comparison"}`)}, nil
		},
	}
	s, _ := newTestSession(client)
	s.Submit(context.Background(), "q")
	if got := string(s.Messages()[2].Metadata); got != `{"query_type":"comparison"}` {
		t.Errorf("unexpected metadata %s", got)
	}
}

func TestSubmitDetachedFromCallerCancel(t *testing.T) {
	release := make(chan struct{})
	client := &mockClient{
		queryFunc: func(ctx context.Context, text string) (*backend.Answer, error) {
			<-release
			if ctx.Err() != nil {
				return nil, &backend.Failure{Kind: backend.NetworkFailure, Err: ctx.Err()}
			}
			return &backend.Answer{Text: "ok"}, nil
		},
	}
	s, _ := newTestSession(client)

	ctx, cancel := context.WithCancel(context.Background())
	ch := s.SubmitAsync(ctx, "q")
	cancel()
	close(release)

	if out := <-ch; out.Status != StatusAnswered {
		t.Errorf("expected in-flight query to survive caller cancellation, got %s", out.Status)
	}
}

func TestSubmitRetriesNetworkFailures(t *testing.T) {
	client := &mockClient{}
	client.queryFunc = func(context.Context, string) (*backend.Answer, error) {
		if client.queries.Load() < 2 {
			return nil, &backend.Failure{Kind: backend.NetworkFailure, Err: errors.New("reset")}
		}
		return &backend.Answer{Text: "ok"}, nil
	}
	s, _ := newTestSession(client, WithRetryPolicy(&RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		Multiplier:   1,
		MaxDelay:     time.Millisecond,
	}))

	out := s.Submit(context.Background(), "q")
	if out.Status != StatusAnswered {
		t.Errorf("expected answered after retry, got %s", out.Status)
	}
	if client.queries.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", client.queries.Load())
	}
	if len(s.Messages()) != 3 {
		t.Errorf("retries must not add messages, got %d", len(s.Messages()))
	}
}

func TestInputBuffer(t *testing.T) {
	client := &mockClient{}
	s, _ := newTestSession(client)
	ctx := context.Background()

	if !s.ShowSamples() {
		t.Error("expected samples before the first question")
	}

	text, err := s.UseSample(2)
	if err != nil {
		t.Fatal(err)
	}
	if text != DefaultSamples[2] || s.Input() != DefaultSamples[2] {
		t.Errorf("expected sample loaded into input, got %q", s.Input())
	}
	if len(s.Messages()) != 1 {
		t.Error("using a sample must not submit it")
	}

	out := s.SubmitInput(ctx)
	if out.Status != StatusAnswered {
		t.Fatalf("expected answered, got %s", out.Status)
	}
	if s.Input() != "" {
		t.Errorf("expected input cleared, got %q", s.Input())
	}
	if s.Messages()[1].Content != DefaultSamples[2] {
		t.Errorf("expected sample as user message, got %q", s.Messages()[1].Content)
	}
	if s.ShowSamples() {
		t.Error("samples should be hidden once the conversation started")
	}

	if _, err := s.UseSample(3); err == nil {
		t.Error("expected out of range error")
	}
	if _, err := s.UseSample(-1); err == nil {
		t.Error("expected out of range error")
	}
}

func TestSubmitInputBlankRejected(t *testing.T) {
	client := &mockClient{}
	s, _ := newTestSession(client)
	s.SetInput("   ")
	if out := s.SubmitInput(context.Background()); out.Reason != RejectEmpty {
		t.Errorf("expected empty rejection, got %s", out.Reason)
	}
	if s.Input() != "   " {
		t.Error("rejected submission must not clear the input")
	}
}

func TestWithSamples(t *testing.T) {
	s, _ := newTestSession(&mockClient{}, WithSamples(nil))
	if s.ShowSamples() {
		t.Error("expected no samples")
	}
	if len(s.Samples()) != 0 {
		t.Errorf("expected 0 samples, got %d", len(s.Samples()))
	}
}

func TestSubmitInputAsyncKeepsBufferWhenBusy(t *testing.T) {
	release := make(chan struct{})
	client := &mockClient{
		queryFunc: func(_ context.Context, text string) (*backend.Answer, error) {
			<-release
			return &backend.Answer{Text: "done"}, nil
		},
	}
	s, _ := newTestSession(client)
	ctx := context.Background()

	s.SetInput("first")
	first := s.SubmitInputAsync(ctx)
	if s.Input() != "" {
		t.Errorf("expected input cleared on acceptance, got %q", s.Input())
	}

	s.SetInput("second")
	if out := <-s.SubmitInputAsync(ctx); out.Reason != RejectBusy {
		t.Errorf("expected busy rejection, got %s", out.Reason)
	}
	if s.Input() != "second" {
		t.Errorf("busy rejection must keep the input, got %q", s.Input())
	}

	close(release)
	if out := <-first; out.Status != StatusAnswered {
		t.Errorf("expected answered, got %s", out.Status)
	}
}

func TestSubscribeSeesDegradation(t *testing.T) {
	client := &mockClient{
		queryFunc: func(context.Context, string) (*backend.Answer, error) {
			return nil, &backend.Failure{Kind: backend.NetworkFailure, Err: errors.New("down")}
		},
	}
	s, _ := newTestSession(client)
	ctx := context.Background()
	s.Probe(ctx)

	changes := s.Subscribe()
	s.Submit(ctx, "rainfall")

	select {
	case state := <-changes:
		if state != types.ConnectivityUnreachable {
			t.Errorf("expected unreachable, got %v", state)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a connectivity change")
	}
}
