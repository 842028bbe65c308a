// internal/conversation/store.go
package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/user/samarth/internal/types"
)

// WelcomeText seeds every new conversation.
const WelcomeText = "Welcome to Project Samarth! Ask me questions about India's agricultural economy and climate patterns."

// Recorder receives every message appended to a Store, in order.
type Recorder interface {
	Record(ctx context.Context, sessionID types.SessionID, msg types.Message) error
}

// Store is the in-memory conversation log. It is seeded with a system
// welcome message, only grows, and never reorders or drops entries.
type Store struct {
	id        types.SessionID
	mu        sync.RWMutex
	messages  []types.Message
	recorders []Recorder
}

// NewStore creates a Store seeded with the given welcome text. An empty
// welcome falls back to WelcomeText.
func NewStore(welcome string, recorders ...Recorder) *Store {
	if welcome == "" {
		welcome = WelcomeText
	}
	s := &Store{
		id:        types.NewSessionID(),
		recorders: recorders,
	}
	s.Append(context.Background(), types.NewSystemMessage(welcome))
	return s
}

// SessionID identifies this conversation in transcripts and logs.
func (s *Store) SessionID() types.SessionID {
	return s.id
}

// Append adds msg to the end of the log and forwards it to recorders.
// Recorder failures are logged and never affect the in-memory log.
func (s *Store) Append(ctx context.Context, msg types.Message) {
	msg = msg.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)
	for _, r := range s.recorders {
		if err := r.Record(ctx, s.id, msg); err != nil {
			slog.Warn("transcript record failed", "session_id", s.id, "message_id", msg.ID, "error", err)
		}
	}
}

// Messages returns a snapshot of the log in chronological order.
func (s *Store) Messages() []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

// Len returns the number of messages in the log. It is always at least 1.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Last returns the most recent message.
func (s *Store) Last() types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messages[len(s.messages)-1].Clone()
}
