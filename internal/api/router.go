// Package api builds the Read-Model Server's HTTP router: the feature
// read/patch endpoints, pipeline status, OpenSpec change progress,
// config snapshot, the SSE event stream (§4.8), and a live agent-log
// stream off the Agent Runner's output buffer.
package api

import (
	"net/http"

	"github.com/pipelinekiln/conductor/internal/api/handlers"
	"github.com/pipelinekiln/conductor/internal/api/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter builds the HTTP handler bound by the dashboard command.
// Bound to loopback by the caller; this router applies no auth since
// the orchestrator is single-machine, single-tenant (§1 Non-goals).
func NewRouter(h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/features", h.ListFeatures)
		r.Get("/features/{id}", h.GetFeature)
		r.Patch("/features/{id}", h.UpdateFeature)
		r.Get("/status", h.Status)
		r.Get("/openspec/changes", h.OpenspecChanges)
		r.Get("/config", h.GetConfig)
		r.Get("/events", h.Events)
		r.Get("/agent/log", h.AgentLog)
	})

	return r
}
