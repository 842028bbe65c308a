package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/user/samarth/pkg/backend"
)

const (
	defaultHealthTimeout = 5 * time.Second
	defaultQueryTimeout  = 60 * time.Second
)

var _ backend.Client = (*Client)(nil)

// Client implements backend.Client over the backend's JSON HTTP API.
type Client struct {
	config     *backend.Config
	httpClient *http.Client
}

// New creates a client for the given configuration. Zero timeouts fall back
// to package defaults and an empty base URL to backend.DefaultBaseURL.
func New(config *backend.Config) *Client {
	cfg := *config
	if cfg.BaseURL == "" {
		cfg.BaseURL = backend.DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = defaultHealthTimeout
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaultQueryTimeout
	}
	return &Client{
		config: &cfg,
		httpClient: &http.Client{
			Timeout: cfg.QueryTimeout,
		},
	}
}

// BaseURL returns the normalized base URL requests are sent to.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Health issues GET {base}/health. Only the status code is inspected.
func (c *Client) Health(ctx context.Context) backend.Status {
	ctx, cancel := context.WithTimeout(ctx, c.config.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/health", nil)
	if err != nil {
		return backend.StatusUnreachable
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return backend.StatusUnreachable
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return backend.StatusUnreachable
	}
	return backend.StatusConnected
}

// Query issues POST {base}/query and decodes the cited answer.
func (c *Client) Query(ctx context.Context, text string) (*backend.Answer, error) {
	if backend.IsBlank(text) {
		return nil, backend.ErrEmptyQuery
	}

	body, err := json.Marshal(backend.QueryRequest{Query: text})
	if err != nil {
		return nil, &backend.Failure{Kind: backend.NetworkFailure, Err: fmt.Errorf("marshaling request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, &backend.Failure{Kind: backend.NetworkFailure, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &backend.Failure{Kind: backend.NetworkFailure, Err: fmt.Errorf("sending request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &backend.Failure{Kind: backend.NetworkFailure, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &backend.Failure{
			Kind:       backend.BackendFailure,
			StatusCode: resp.StatusCode,
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	var qr backend.QueryResponse
	if err := json.Unmarshal(respBody, &qr); err != nil {
		return nil, &backend.Failure{Kind: backend.MalformedResponse, StatusCode: resp.StatusCode, Err: fmt.Errorf("parsing response: %w", err)}
	}
	if qr.Answer == nil {
		return nil, &backend.Failure{Kind: backend.MalformedResponse, StatusCode: resp.StatusCode, Err: errors.New("missing answer field")}
	}

	sources := qr.Sources
	if sources == nil {
		sources = []backend.Source{}
	}
	var metadata json.RawMessage
	if len(qr.Metadata) > 0 && string(qr.Metadata) != "null" {
		metadata = qr.Metadata
	}

	return &backend.Answer{
		Text:     *qr.Answer,
		Sources:  sources,
		Metadata: metadata,
	}, nil
}
