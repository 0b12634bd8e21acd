// Package server wires conductor's components together: the Store,
// Feature Model, Scheduler, Agent Runner, VCS Bridge, Spec Importer,
// and Autoplay Controller, plus the Read-Model Server's HTTP handler.
// It is the single construction point both the CLI and the dashboard
// command build from.
package server

import (
	"context"
	"fmt"

	"github.com/pipelinekiln/conductor/internal/agentrunner"
	"github.com/pipelinekiln/conductor/internal/api"
	"github.com/pipelinekiln/conductor/internal/api/handlers"
	"github.com/pipelinekiln/conductor/internal/autoplay"
	"github.com/pipelinekiln/conductor/internal/config"
	"github.com/pipelinekiln/conductor/internal/feature"
	"github.com/pipelinekiln/conductor/internal/openspec"
	"github.com/pipelinekiln/conductor/internal/scheduler"
	"github.com/pipelinekiln/conductor/internal/store"
	"github.com/pipelinekiln/conductor/internal/vcsbridge"

	"net/http"
)

// Server holds every wired component for a single project root.
type Server struct {
	Root string

	Store     store.Store
	Features  *feature.Model
	Config    *config.PersistedConfig
	Scheduler *scheduler.Scheduler
	Runner    *agentrunner.Runner
	VCS       *vcsbridge.Bridge
	Importer  *openspec.Importer

	// Controller drives the autoplay loop. Constructed here so the CLI's
	// autoplay command and any future embedder share one wiring path.
	Controller *autoplay.Controller

	// Handler is the Read-Model Server's HTTP handler (dashboard command).
	Handler http.Handler

	handlers *handlers.Handlers
}

// New opens the Store at root and wires every component over it.
func New(root string) (*Server, error) {
	st, err := store.Open(root)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	features := feature.New(st)
	cfg := config.New(st)
	sched := scheduler.New(features)
	runner := agentrunner.New()
	vcs := vcsbridge.New(root)
	importer := openspec.New(features, root)
	ctrl := autoplay.New(features, sched, runner, vcs, importer, cfg, root)

	h := handlers.New(features, cfg, runner)
	router := api.NewRouter(h)

	return &Server{
		Root:       root,
		Store:      st,
		Features:   features,
		Config:     cfg,
		Scheduler:  sched,
		Runner:     runner,
		VCS:        vcs,
		Importer:   importer,
		Controller: ctrl,
		Handler:    router,
		handlers:   h,
	}, nil
}

// RunEventLoop drives the Read-Model Server's periodic snapshot
// broadcaster. Blocks until ctx is canceled; run it in its own
// goroutine alongside http.Serve.
func (s *Server) RunEventLoop(ctx context.Context) {
	s.handlers.RunEventLoop(ctx)
}

// Close releases the Store's underlying resources.
func (s *Server) Close() error {
	return s.Store.Close()
}
