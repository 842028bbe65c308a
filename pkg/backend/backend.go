package backend

import (
	"context"
	"time"
)

// Client defines the two operations the query backend exposes.
// Implementations never panic and never return raw transport errors from
// Health; Query failures are always reported as *Failure.
type Client interface {
	// Health probes backend reachability. It always settles to a Status.
	Health(ctx context.Context) Status

	// Query submits a natural-language question and returns the cited answer.
	// The returned error is ErrEmptyQuery for blank input, otherwise *Failure.
	Query(ctx context.Context, text string) (*Answer, error)
}

// Status is the outcome of a health probe.
type Status string

const (
	StatusConnected   Status = "connected"
	StatusUnreachable Status = "unreachable"
)

// Config holds connection settings for a backend client.
type Config struct {
	BaseURL       string
	HealthTimeout time.Duration
	QueryTimeout  time.Duration
}

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://localhost:5000/api"
