// Package connectivity tracks whether the query backend is reachable.
package connectivity

import (
	"context"
	"log/slog"
	"sync"

	"github.com/user/samarth/internal/types"
	"github.com/user/samarth/pkg/backend"
)

// Prober is the subset of backend.Client the monitor needs.
type Prober interface {
	Health(ctx context.Context) backend.Status
}

// Monitor holds the connectivity state machine:
//
//	unknown -> connected | unreachable   (Probe)
//	any     -> unreachable               (MarkUnreachable)
//
// There is no automatic recovery. Only an explicit Probe can move the
// monitor back to connected.
type Monitor struct {
	prober Prober

	mu          sync.RWMutex
	state       types.ConnectivityState
	subscribers []chan types.ConnectivityState
}

// New creates a Monitor in the unknown state.
func New(prober Prober) *Monitor {
	return &Monitor{
		prober: prober,
		state:  types.ConnectivityUnknown,
	}
}

// State returns the current connectivity state.
func (m *Monitor) State() types.ConnectivityState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Probe runs a health check and settles the monitor on its result.
func (m *Monitor) Probe(ctx context.Context) types.ConnectivityState {
	next := types.ConnectivityUnreachable
	if m.prober.Health(ctx) == backend.StatusConnected {
		next = types.ConnectivityConnected
	}
	m.set(next, "health probe")
	return next
}

// MarkUnreachable demotes the monitor after a failed query.
func (m *Monitor) MarkUnreachable(reason string) {
	m.set(types.ConnectivityUnreachable, reason)
}

// Subscribe returns a channel that receives every state change. Slow
// subscribers miss intermediate states rather than blocking the monitor.
func (m *Monitor) Subscribe() <-chan types.ConnectivityState {
	ch := make(chan types.ConnectivityState, 4)
	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()
	return ch
}

func (m *Monitor) set(next types.ConnectivityState, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.state
	m.state = next
	if prev == next {
		return
	}

	slog.Info("connectivity changed", "from", prev, "to", next, "reason", reason)
	for _, ch := range m.subscribers {
		select {
		case ch <- next:
		default:
		}
	}
}
