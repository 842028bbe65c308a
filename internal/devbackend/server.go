// Package devbackend is a local stand-in for the query backend. It serves
// the health and query endpoints with canned, cited answers so the client
// can be exercised without the real data pipeline, and exposes recorded
// transcripts for debugging.
package devbackend

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/user/samarth/internal/conversation"
	"github.com/user/samarth/internal/types"
	"github.com/user/samarth/pkg/backend"
)

// Server answers backend API requests from a fixed catalog.
type Server struct {
	catalog     []Canned
	transcripts *conversation.Transcript
	router      *mux.Router

	mu          sync.RWMutex
	healthy     bool
	queryStatus int
	delay       time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithCatalog replaces the default canned answers.
func WithCatalog(c []Canned) Option {
	return func(s *Server) { s.catalog = c }
}

// WithTranscripts exposes recorded conversations under /debug/transcripts.
func WithTranscripts(t *conversation.Transcript) Option {
	return func(s *Server) { s.transcripts = t }
}

// WithDelay makes every query take at least d.
func WithDelay(d time.Duration) Option {
	return func(s *Server) { s.delay = d }
}

// NewServer creates a healthy Server with routes mounted under /api.
func NewServer(opts ...Option) *Server {
	s := &Server{
		catalog: DefaultCatalog(),
		router:  mux.NewRouter(),
		healthy: true,
	}
	for _, opt := range opts {
		opt(s)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/query", s.handleQuery).Methods(http.MethodPost)

	debug := s.router.PathPrefix("/debug").Subrouter()
	debug.HandleFunc("/transcripts", s.handleTranscripts).Methods(http.MethodGet)
	debug.HandleFunc("/transcripts/{id}", s.handleTranscript).Methods(http.MethodGet)
	return s
}

// Handler returns the router wrapped with permissive CORS so a browser
// client on another origin can use it.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(s.router)
}

// ServeHTTP serves the routes without the CORS wrapper.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetHealthy toggles the health endpoint between 200 and 503.
func (s *Server) SetHealthy(ok bool) {
	s.mu.Lock()
	s.healthy = ok
	s.mu.Unlock()
}

// FailQueries makes every query respond with status. Zero restores normal
// answers.
func (s *Server) FailQueries(status int) {
	s.mu.Lock()
	s.queryStatus = status
	s.mu.Unlock()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	healthy := s.healthy
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	status, delay := s.queryStatus, s.delay
	s.mu.RUnlock()

	var req backend.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if backend.IsBlank(req.Query) {
		http.Error(w, `{"error":"query is required"}`, http.StatusBadRequest)
		return
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if status != 0 {
		slog.Debug("devbackend failing query", "status", status)
		http.Error(w, `{"error":"simulated failure"}`, status)
		return
	}

	c := s.match(req.Query)
	slog.Info("devbackend answered", "question", req.Query, "sources", len(c.Sources))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(c.response(req.Query))
}

func (s *Server) match(question string) Canned {
	q := strings.ToLower(question)
	for _, c := range s.catalog {
		if c.matches(q) {
			return c
		}
	}
	return Fallback
}

type transcriptInfo struct {
	SessionID string `json:"session_id"`
	ModTime   string `json:"mod_time"`
	Size      int64  `json:"size"`
}

func (s *Server) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	if s.transcripts == nil {
		http.Error(w, `{"error":"transcripts not configured"}`, http.StatusServiceUnavailable)
		return
	}
	infos, err := s.transcripts.List(r.Context())
	if err != nil {
		slog.Error("list transcripts failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	result := make([]transcriptInfo, 0, len(infos))
	for _, info := range infos {
		result = append(result, transcriptInfo{
			SessionID: string(info.SessionID),
			ModTime:   info.ModTime,
			Size:      info.Size,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if s.transcripts == nil {
		http.Error(w, `{"error":"transcripts not configured"}`, http.StatusServiceUnavailable)
		return
	}
	sessionID, err := types.ParseSessionID(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, `{"error":"invalid session id"}`, http.StatusNotFound)
		return
	}

	limit := 200
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := s.transcripts.Tail(r.Context(), sessionID, limit)
	if err != nil {
		http.Error(w, `{"error":"transcript not found"}`, http.StatusNotFound)
		return
	}
	if entries == nil {
		entries = []*conversation.Entry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
