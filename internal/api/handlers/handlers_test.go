package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pipelinekiln/conductor/internal/agentrunner"
	"github.com/pipelinekiln/conductor/internal/api"
	"github.com/pipelinekiln/conductor/internal/api/handlers"
	"github.com/pipelinekiln/conductor/internal/config"
	"github.com/pipelinekiln/conductor/internal/feature"
	"github.com/pipelinekiln/conductor/internal/store"
	"github.com/pipelinekiln/conductor/pkg/models"
)

func newTestRouter(t *testing.T) (http.Handler, *feature.Model) {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	features := feature.New(s)
	cfg := config.New(s)
	runner := agentrunner.New()
	h := handlers.New(features, cfg, runner)
	return api.NewRouter(h), features
}

func TestListFeaturesEmpty(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/features", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got []models.Feature
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got == nil {
		t.Error("expected an empty slice, got nil (null JSON)")
	}
	if len(got) != 0 {
		t.Errorf("len(got) = %d, want 0", len(got))
	}
}

func TestGetFeatureNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/features/FEAT-999", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestGetFeatureFound(t *testing.T) {
	router, features := newTestRouter(t)

	created, err := features.Create(context.Background(), models.Feature{Description: "widget"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/features/"+created.ID, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got models.Feature
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("got.ID = %q, want %q", got.ID, created.ID)
	}
}

func TestUpdateFeaturePatch(t *testing.T) {
	router, features := newTestRouter(t)

	created, err := features.Create(context.Background(), models.Feature{Description: "widget"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	body := strings.NewReader(`{"status":"in-dev"}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/features/"+created.ID, body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var got models.Feature
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Status != models.StatusInDev {
		t.Errorf("got.Status = %q, want %q", got.Status, models.StatusInDev)
	}
}

func TestUpdateFeatureNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	body := strings.NewReader(`{"status":"in-dev"}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/features/FEAT-999", body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestStatusCounts(t *testing.T) {
	router, features := newTestRouter(t)

	if _, err := features.Create(context.Background(), models.Feature{Description: "a"}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := features.Create(context.Background(), models.Feature{Description: "b", DependsOn: []string{"FEAT-999"}}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got struct {
		Total    int                   `json:"total"`
		ByStatus map[models.Status]int `json:"by_status"`
		Blocked  []string              `json:"blocked"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Total != 2 {
		t.Errorf("Total = %d, want 2", got.Total)
	}
	if len(got.Blocked) != 1 {
		t.Errorf("len(Blocked) = %d, want 1 (the feature depending on a missing id)", len(got.Blocked))
	}
}

func TestGetConfigSnapshot(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
