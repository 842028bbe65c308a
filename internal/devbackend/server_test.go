package devbackend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/user/samarth/internal/conversation"
	"github.com/user/samarth/internal/types"
	"github.com/user/samarth/pkg/backend"
	"github.com/user/samarth/pkg/backend/httpapi"
)

func postQuery(t *testing.T, srv http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer()

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}

	srv.SetHealthy(false)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when unhealthy, got %d", w.Code)
	}
}

func TestQueryMatchesCatalog(t *testing.T) {
	srv := NewServer()

	w := postQuery(t, srv, `{"query":"Compare the average annual rainfall in Punjab and Haryana for the last 5 years"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp backend.QueryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Answer == nil || !strings.Contains(*resp.Answer, "Punjab") {
		t.Errorf("unexpected answer: %v", resp.Answer)
	}
	if len(resp.Sources) != 1 {
		t.Fatalf("expected 1 source, got %d", len(resp.Sources))
	}
	if resp.Sources[0].Publisher == "" || resp.Sources[0].ResourceID == "" {
		t.Errorf("expected publisher and resource id, got %+v", resp.Sources[0])
	}

	var meta map[string]any
	if err := json.Unmarshal(resp.Metadata, &meta); err != nil {
		t.Fatalf("metadata not JSON: %v", err)
	}
	if meta["datasets_consulted"] != float64(1) {
		t.Errorf("expected datasets_consulted=1, got %v", meta["datasets_consulted"])
	}
}

func TestQueryFallbackHasEmptySources(t *testing.T) {
	srv := NewServer()

	w := postQuery(t, srv, `{"query":"how many tractors are in Goa"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatal(err)
	}
	if string(raw["sources"]) != "[]" {
		t.Errorf("expected empty sources array, got %s", raw["sources"])
	}
}

func TestQueryValidation(t *testing.T) {
	srv := NewServer()

	if w := postQuery(t, srv, `not json`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid JSON, got %d", w.Code)
	}
	if w := postQuery(t, srv, `{"query":"   "}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for blank query, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/query", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code == http.StatusOK {
		t.Error("GET /api/query should not be served")
	}
}

func TestFailQueries(t *testing.T) {
	srv := NewServer()
	srv.FailQueries(http.StatusBadGateway)

	if w := postQuery(t, srv, `{"query":"rainfall"}`); w.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", w.Code)
	}

	srv.FailQueries(0)
	if w := postQuery(t, srv, `{"query":"rainfall"}`); w.Code != http.StatusOK {
		t.Errorf("expected 200 after reset, got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := NewServer().Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/query", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard allow-origin, got %q", got)
	}
}

func TestWithHTTPClient(t *testing.T) {
	ts := httptest.NewServer(NewServer().Handler())
	defer ts.Close()

	client := httpapi.New(&backend.Config{BaseURL: ts.URL + "/api"})
	ctx := context.Background()

	if client.Health(ctx) != backend.StatusConnected {
		t.Fatal("expected connected")
	}
	answer, err := client.Query(ctx, "What are the top 3 crops produced in Maharashtra?")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if !strings.Contains(answer.Text, "Sugarcane") {
		t.Errorf("unexpected answer %q", answer.Text)
	}
	if len(answer.Sources) != 1 {
		t.Errorf("expected 1 source, got %d", len(answer.Sources))
	}
}

func TestTranscriptEndpoints(t *testing.T) {
	transcripts := conversation.NewTranscript(t.TempDir())
	srv := NewServer(WithTranscripts(transcripts))

	ctx := context.Background()
	id := types.NewSessionID()
	if err := transcripts.Record(ctx, id, types.NewUserMessage("hello")); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/transcripts", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var list []transcriptInfo
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].SessionID != string(id) {
		t.Fatalf("unexpected list %+v", list)
	}

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/transcripts/"+string(id), nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var entries []conversation.Entry
	if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Message.Content != "hello" {
		t.Errorf("unexpected entries %+v", entries)
	}

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/transcripts/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing transcript, got %d", w.Code)
	}
}

func TestTranscriptEndpointsUnconfigured(t *testing.T) {
	srv := NewServer()
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/transcripts", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestCatalogMatching(t *testing.T) {
	c := Canned{Keywords: []string{"District", "wheat"}}
	if !c.matches("which district grows the most wheat") {
		t.Error("expected case-insensitive match")
	}
	if c.matches("which district grows rice") {
		t.Error("expected no match when a keyword is missing")
	}
	if (Canned{}).matches("anything") {
		t.Error("entry without keywords should never match")
	}
}
