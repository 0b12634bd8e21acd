package scheduler

import (
	"context"
	"testing"

	"github.com/pipelinekiln/conductor/internal/feature"
	"github.com/pipelinekiln/conductor/internal/store"
	"github.com/pipelinekiln/conductor/pkg/models"
)

func newTestScheduler(t *testing.T) (*Scheduler, *feature.Model) {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	fm := feature.New(s)
	return New(fm), fm
}

func TestNextPicksFirstActionableInDependencyOrder(t *testing.T) {
	sch, fm := newTestScheduler(t)
	ctx := context.Background()

	a, _ := fm.Create(ctx, models.Feature{Description: "a"})
	_, err := fm.Create(ctx, models.Feature{Description: "b", DependsOn: []string{a.ID}})
	if err != nil {
		t.Fatalf("Create(b) error: %v", err)
	}

	action, ok, err := sch.Next(ctx, map[string]struct{}{})
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if !ok {
		t.Fatal("Next() = not ok, want an actionable feature")
	}
	if action.FeatureID != a.ID || action.Action != models.ActionDev {
		t.Errorf("Next() = %+v, want (%s, dev)", action, a.ID)
	}
}

func TestNextPicksDependentOnceDependencyComplete(t *testing.T) {
	sch, fm := newTestScheduler(t)
	ctx := context.Background()

	a, _ := fm.Create(ctx, models.Feature{Description: "a"})
	b, _ := fm.Create(ctx, models.Feature{Description: "b", DependsOn: []string{a.ID}})

	if _, err := fm.Update(ctx, a.ID, map[string]any{"status": string(models.StatusComplete)}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	action, ok, err := sch.Next(ctx, map[string]struct{}{})
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if !ok || action.FeatureID != b.ID {
		t.Errorf("Next() = %+v, ok=%v, want b actionable now that a is complete", action, ok)
	}
}

func TestNextPassesShortCircuitsToPR(t *testing.T) {
	sch, fm := newTestScheduler(t)
	ctx := context.Background()

	a, _ := fm.Create(ctx, models.Feature{Description: "a"})
	if _, err := fm.Update(ctx, a.ID, map[string]any{
		"status": string(models.StatusQATesting),
		"passes": true,
	}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	action, ok, err := sch.Next(ctx, map[string]struct{}{})
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if !ok || action.Action != models.ActionPR {
		t.Errorf("Next() = %+v, ok=%v, want action=pr when passes=true regardless of status", action, ok)
	}
}

func TestNextReturnsNothingWhenAllComplete(t *testing.T) {
	sch, fm := newTestScheduler(t)
	ctx := context.Background()

	a, _ := fm.Create(ctx, models.Feature{Description: "a"})
	if _, err := fm.Update(ctx, a.ID, map[string]any{"status": string(models.StatusComplete)}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	_, ok, err := sch.Next(ctx, map[string]struct{}{})
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if ok {
		t.Error("Next() = ok, want none when every feature is complete")
	}
}

func TestNextSkipsEscalatedFeature(t *testing.T) {
	sch, fm := newTestScheduler(t)
	ctx := context.Background()

	a, _ := fm.Create(ctx, models.Feature{Description: "a"})

	_, ok, err := sch.Next(ctx, map[string]struct{}{a.ID: {}})
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if ok {
		t.Error("Next() = ok, want escalated feature to be skipped")
	}
}

func TestNextPROpenMapsToMerge(t *testing.T) {
	sch, fm := newTestScheduler(t)
	ctx := context.Background()

	a, _ := fm.Create(ctx, models.Feature{Description: "a"})
	if _, err := fm.Update(ctx, a.ID, map[string]any{"status": string(models.StatusPROpen)}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	action, ok, err := sch.Next(ctx, map[string]struct{}{})
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if !ok || action.Action != models.ActionMerge {
		t.Errorf("Next() = %+v, ok=%v, want action=merge for pr-open", action, ok)
	}
}
