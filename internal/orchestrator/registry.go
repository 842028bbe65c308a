package orchestrator

import (
	"sync"

	"github.com/user/samarth/internal/connectivity"
	"github.com/user/samarth/internal/conversation"
	"github.com/user/samarth/internal/types"
	"github.com/user/samarth/pkg/backend"
)

// Registry maps external conversation keys (such as a Telegram chat) to
// Sessions. All sessions share one backend client and one monitor.
type Registry struct {
	client    backend.Client
	monitor   *connectivity.Monitor
	welcome   string
	recorders []conversation.Recorder
	opts      []Option

	mu       sync.Mutex
	sessions map[types.SessionKey]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry(client backend.Client, monitor *connectivity.Monitor, welcome string, recorders []conversation.Recorder, opts ...Option) *Registry {
	return &Registry{
		client:    client,
		monitor:   monitor,
		welcome:   welcome,
		recorders: recorders,
		opts:      opts,
		sessions:  make(map[types.SessionKey]*Session),
	}
}

// ResolveOrCreate returns the Session for key, creating a fresh
// conversation on first use.
func (r *Registry) ResolveOrCreate(key types.SessionKey) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[key]; ok {
		return s
	}
	store := conversation.NewStore(r.welcome, r.recorders...)
	s := New(r.client, store, r.monitor, r.opts...)
	r.sessions[key] = s
	return s
}

// Reset replaces the conversation for key with a new one. The old Session
// is left to finish any in-flight query on its own log.
func (r *Registry) Reset(key types.SessionKey) *Session {
	r.mu.Lock()
	delete(r.sessions, key)
	r.mu.Unlock()
	return r.ResolveOrCreate(key)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Monitor returns the shared connectivity monitor.
func (r *Registry) Monitor() *connectivity.Monitor {
	return r.monitor
}
