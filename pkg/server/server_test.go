package server

import (
	"context"
	"testing"

	"github.com/pipelinekiln/conductor/pkg/models"
)

func TestNewWiresEveryComponent(t *testing.T) {
	srv, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer srv.Close()

	if srv.Store == nil || srv.Features == nil || srv.Config == nil ||
		srv.Scheduler == nil || srv.Runner == nil || srv.VCS == nil ||
		srv.Importer == nil || srv.Controller == nil || srv.Handler == nil {
		t.Fatal("New() left at least one component nil")
	}
}

func TestServerFeaturesRoundTripThroughStore(t *testing.T) {
	srv, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer srv.Close()

	ctx := context.Background()
	created, err := srv.Features.Create(ctx, models.Feature{Description: "wire it up"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := srv.Features.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got == nil || got.Description != "wire it up" {
		t.Errorf("Get(%s) = %+v, want description %q", created.ID, got, "wire it up")
	}
}
