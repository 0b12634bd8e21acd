// Package handlers implements the Read-Model Server's HTTP handlers:
// a JSON read/patch API over the Feature Model plus an SSE event
// stream that fans out feature snapshots and update deltas to
// connected dashboard clients.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pipelinekiln/conductor/internal/agentrunner"
	"github.com/pipelinekiln/conductor/internal/config"
	"github.com/pipelinekiln/conductor/internal/feature"
	"github.com/pipelinekiln/conductor/internal/store"
	"github.com/pipelinekiln/conductor/pkg/models"
	"github.com/rs/zerolog/log"
)

// snapshotInterval is how often the broadcaster polls the Store for a
// fresh feature snapshot (§4.8).
const snapshotInterval = 2 * time.Second

// agentLogBacklog is how many recent agent log lines a newly connected
// dashboard client is replayed before it starts receiving live lines.
const agentLogBacklog = 200

// Handlers holds the Read-Model Server's dependencies.
type Handlers struct {
	Features *feature.Model
	Config   *config.PersistedConfig
	Runner   *agentrunner.Runner
	Hub      *Hub
}

// New wires a Handlers instance over the Feature Model, persisted
// config, and the Agent Runner whose subprocess output it streams.
func New(features *feature.Model, cfg *config.PersistedConfig, runner *agentrunner.Runner) *Handlers {
	return &Handlers{Features: features, Config: cfg, Runner: runner, Hub: NewHub()}
}

// RunEventLoop snapshots the feature list every snapshotInterval and
// broadcasts a "features" event when the serialized snapshot changes.
// Snapshot failures (the Store locked by a writer) are swallowed; the
// next tick retries. Runs until ctx is canceled.
func (h *Handlers) RunEventLoop(ctx context.Context) {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	var last string
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			all, err := h.Features.List(ctx, models.ListFilter{})
			if err != nil {
				continue
			}
			if all == nil {
				all = []models.Feature{}
			}
			data, err := json.Marshal(all)
			if err != nil {
				continue
			}
			if string(data) == last {
				continue
			}
			last = string(data)
			h.Hub.broadcast(sseFrame("features", data))
		}
	}
}

// ListFeatures handles GET /api/features[?status=&assigned=].
func (h *Handlers) ListFeatures(w http.ResponseWriter, r *http.Request) {
	filter := models.ListFilter{
		Status:   models.Status(r.URL.Query().Get("status")),
		Assigned: r.URL.Query().Get("assigned"),
	}
	all, err := h.Features.List(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if all == nil {
		all = []models.Feature{}
	}
	respondJSON(w, http.StatusOK, all)
}

// GetFeature handles GET /api/features/:id.
func (h *Handlers) GetFeature(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	f, err := h.Features.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if f == nil {
		respondError(w, http.StatusNotFound, "feature not found: "+id)
		return
	}
	respondJSON(w, http.StatusOK, f)
}

// UpdateFeature handles PATCH /api/features/:id: a partial update that
// broadcasts a feature-updated event on success.
func (h *Handlers) UpdateFeature(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.Features.Update(r.Context(), id, patch)
	var notFound *store.ErrNotFound
	if errors.As(err, &notFound) {
		respondError(w, http.StatusNotFound, "feature not found: "+id)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if updated == nil {
		respondError(w, http.StatusNotFound, "feature not found: "+id)
		return
	}

	data, err := json.Marshal(updated)
	if err == nil {
		h.Hub.broadcast(sseFrame("feature-updated", data))
	}
	respondJSON(w, http.StatusOK, updated)
}

// statusCounts is the GET /api/status response shape.
type statusCounts struct {
	Total    int                   `json:"total"`
	ByStatus map[models.Status]int `json:"by_status"`
	Blocked  []string              `json:"blocked"`
}

// Status handles GET /api/status: counts per pipeline status plus a
// list of features blocked on an unmet or unknown dependency.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	all, err := h.Features.List(ctx, models.ListFilter{})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := statusCounts{Total: len(all), ByStatus: map[models.Status]int{}, Blocked: []string{}}
	for _, f := range all {
		out.ByStatus[f.Status]++
		if f.Status.Terminal() {
			continue
		}
		reason, err := h.Features.BlockedReason(ctx, f)
		if err != nil {
			log.Warn().Err(err).Str("feature", f.ID).Msg("⚠️ failed to resolve blocked reason")
			continue
		}
		if reason != "" {
			out.Blocked = append(out.Blocked, f.ID+": "+reason)
		}
	}
	respondJSON(w, http.StatusOK, out)
}

// changeSummary groups a feature's progress within an OpenSpec change.
type changeSummary struct {
	ChangeID string           `json:"change_id"`
	Complete int              `json:"complete"`
	Total    int              `json:"total"`
	Features []models.Feature `json:"features"`
}

// OpenspecChanges handles GET /api/openspec/changes: features grouped
// by openspec_change_id, with {complete, total} progress per group.
// Features with no change id are omitted.
func (h *Handlers) OpenspecChanges(w http.ResponseWriter, r *http.Request) {
	all, err := h.Features.List(r.Context(), models.ListFilter{})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	groups := make(map[string]*changeSummary)
	var order []string
	for _, f := range all {
		if f.OpenspecChangeID == "" {
			continue
		}
		g, ok := groups[f.OpenspecChangeID]
		if !ok {
			g = &changeSummary{ChangeID: f.OpenspecChangeID, Features: []models.Feature{}}
			groups[f.OpenspecChangeID] = g
			order = append(order, f.OpenspecChangeID)
		}
		g.Total++
		if f.Status == models.StatusComplete {
			g.Complete++
		}
		g.Features = append(g.Features, f)
	}
	sort.Strings(order)

	out := make([]*changeSummary, 0, len(order))
	for _, id := range order {
		out = append(out, groups[id])
	}
	respondJSON(w, http.StatusOK, out)
}

// GetConfig handles GET /api/config: a snapshot of every persisted
// config key.
func (h *Handlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	all, err := h.Config.All(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, all)
}

// Events handles GET /api/events: the SSE stream. Each client gets its
// own queue off the Hub; a slow client is detected on a full channel
// and simply misses frames rather than blocking the broadcaster.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	c := h.Hub.subscribe()
	defer h.Hub.unsubscribe(c)

	w.Write(sseFrame("connected", []byte(`{}`)))
	flusher.Flush()

	for {
		select {
		case frame, ok := <-c.frames:
			if !ok {
				return
			}
			w.Write(frame)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// AgentLog handles GET /api/agent/log: the live agent subprocess output
// stream. A newly connected client first replays the recent backlog
// from the Agent Runner's ring buffer, then receives each line as it
// arrives. Used by the dashboard to tail whatever agent autoplay is
// currently running.
func (h *Handlers) AgentLog(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	for _, entry := range h.Runner.Logs.Recent(agentLogBacklog) {
		if data, err := json.Marshal(entry); err == nil {
			w.Write(sseFrame("agent-log", data))
		}
	}
	flusher.Flush()

	ch := h.Runner.Logs.Subscribe()
	defer h.Runner.Logs.Unsubscribe(ch)

	for {
		select {
		case entry, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(entry)
			if err != nil {
				continue
			}
			w.Write(sseFrame("agent-log", data))
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
