package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyQuery is returned by Query when the text is empty or whitespace.
// No request is sent in that case.
var ErrEmptyQuery = errors.New("query text is empty")

// Source is a citation record as returned by the backend.
type Source struct {
	Dataset    string `json:"dataset"`
	Publisher  string `json:"source"`
	URL        string `json:"url,omitempty"`
	ResourceID string `json:"resource_id,omitempty"`
}

// Answer is a successful query response.
type Answer struct {
	Text     string
	Sources  []Source
	Metadata json.RawMessage
}

// QueryRequest is the JSON body of POST {base}/query.
type QueryRequest struct {
	Query string `json:"query"`
}

// QueryResponse is the JSON body of a successful query. Answer is a pointer
// so that a missing field can be told apart from an empty string.
type QueryResponse struct {
	Answer   *string         `json:"answer"`
	Sources  []Source        `json:"sources,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// FailureKind classifies why a query did not produce an answer.
type FailureKind string

const (
	NetworkFailure    FailureKind = "network"
	BackendFailure    FailureKind = "backend"
	MalformedResponse FailureKind = "malformed_response"
)

// Failure is the single error type returned by Query.
type Failure struct {
	Kind       FailureKind
	StatusCode int
	Err        error
}

func (f *Failure) Error() string {
	switch f.Kind {
	case BackendFailure:
		return fmt.Sprintf("backend error (status %d): %v", f.StatusCode, f.Err)
	case MalformedResponse:
		return fmt.Sprintf("malformed response: %v", f.Err)
	default:
		return fmt.Sprintf("network error: %v", f.Err)
	}
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// AsFailure extracts a *Failure from err, if any.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsBlank reports whether text has no non-whitespace content.
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}
