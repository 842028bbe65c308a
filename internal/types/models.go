// internal/types/models.go
package types

import (
	"encoding/json"
	"time"
)

// MessageKind discriminates how a message is rendered and which payload
// fields it carries.
type MessageKind string

const (
	KindSystem MessageKind = "system"
	KindUser   MessageKind = "user"
	KindBot    MessageKind = "bot"
)

// ConnectivityState is the last known reachability of the query backend.
type ConnectivityState string

const (
	ConnectivityUnknown     ConnectivityState = "unknown"
	ConnectivityConnected   ConnectivityState = "connected"
	ConnectivityUnreachable ConnectivityState = "unreachable"
)

// Source is one citation backing a bot answer.
type Source struct {
	Dataset    string `json:"dataset"`
	Publisher  string `json:"publisher"`
	URL        string `json:"url,omitempty"`
	ResourceID string `json:"resource_id,omitempty"`
}

// Message is a single entry in the conversation log. Messages are built
// through the New*Message constructors and never modified afterwards.
type Message struct {
	ID        MessageID       `json:"id"`
	Kind      MessageKind     `json:"kind"`
	Content   string          `json:"content"`
	Sources   []Source        `json:"sources,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Degraded  bool            `json:"degraded,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func newMessage(kind MessageKind, content string) Message {
	return Message{
		ID:        NewMessageID(),
		Kind:      kind,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewSystemMessage creates a system notice such as the welcome banner.
func NewSystemMessage(content string) Message {
	return newMessage(KindSystem, content)
}

// NewUserMessage records the user's text exactly as typed.
func NewUserMessage(content string) Message {
	return newMessage(KindUser, content)
}

// NewBotMessage creates an answer message. A nil sources slice is stored as
// an empty one so that omitted and empty citation lists look the same.
func NewBotMessage(content string, sources []Source, metadata json.RawMessage) Message {
	msg := newMessage(KindBot, content)
	msg.Sources = make([]Source, len(sources))
	copy(msg.Sources, sources)
	if len(metadata) > 0 {
		msg.Metadata = append(json.RawMessage(nil), metadata...)
	}
	return msg
}

// NewDegradedMessage creates the fallback bot message shown when the
// backend could not produce an answer. It never carries sources.
func NewDegradedMessage(content string) Message {
	msg := newMessage(KindBot, content)
	msg.Sources = []Source{}
	msg.Degraded = true
	return msg
}

// Clone returns a copy whose slices do not alias the receiver's.
func (m Message) Clone() Message {
	out := m
	if m.Sources != nil {
		out.Sources = make([]Source, len(m.Sources))
		copy(out.Sources, m.Sources)
	}
	if m.Metadata != nil {
		out.Metadata = append(json.RawMessage(nil), m.Metadata...)
	}
	return out
}
