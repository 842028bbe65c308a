package main

import (
	"log/slog"

	"github.com/user/samarth/internal/config"
	"github.com/user/samarth/internal/connectivity"
	"github.com/user/samarth/internal/conversation"
	"github.com/user/samarth/internal/orchestrator"
	"github.com/user/samarth/pkg/backend"
	"github.com/user/samarth/pkg/backend/httpapi"
)

// app holds the pieces shared by every front end: one backend client, one
// connectivity monitor, and the optional transcript recorder.
type app struct {
	cfg       *config.Config
	client    *httpapi.Client
	monitor   *connectivity.Monitor
	recorders []conversation.Recorder
	opts      []orchestrator.Option
}

func newApp(cfg *config.Config, transcript bool) *app {
	client := httpapi.New(&backend.Config{
		BaseURL:       cfg.Backend.BaseURL,
		HealthTimeout: cfg.HealthTimeout(),
		QueryTimeout:  cfg.QueryTimeout(),
	})

	a := &app{
		cfg:     cfg,
		client:  client,
		monitor: connectivity.New(client),
		opts:    []orchestrator.Option{orchestrator.WithRetryPolicy(retryPolicy(cfg))},
	}
	if transcript || cfg.Chat.Transcript {
		a.recorders = append(a.recorders, conversation.NewTranscript(cfg.DataDir))
		slog.Debug("recording transcripts", "data_dir", cfg.DataDir)
	}
	return a
}

func retryPolicy(cfg *config.Config) *orchestrator.RetryPolicy {
	p := orchestrator.DefaultRetryPolicy()
	if cfg.Query.MaxAttempts > 0 {
		p.MaxAttempts = cfg.Query.MaxAttempts
	}
	p.InitialDelay = cfg.RetryDelay()
	return p
}

// session starts a fresh conversation.
func (a *app) session() *orchestrator.Session {
	store := conversation.NewStore(a.cfg.Chat.Welcome, a.recorders...)
	return orchestrator.New(a.client, store, a.monitor, a.opts...)
}

// registry serves many conversations over the shared client and monitor.
func (a *app) registry() *orchestrator.Registry {
	return orchestrator.NewRegistry(a.client, a.monitor, a.cfg.Chat.Welcome, a.recorders, a.opts...)
}
