package feature

import (
	"context"
	"errors"
	"testing"

	"github.com/pipelinekiln/conductor/internal/store"
	"github.com/pipelinekiln/conductor/pkg/models"
)

func newTestModel(t *testing.T) *Model {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s)
}

func TestNextIDStartsAtOne(t *testing.T) {
	m := newTestModel(t)
	id, err := m.NextID(context.Background())
	if err != nil {
		t.Fatalf("NextID() error: %v", err)
	}
	if id != "FEAT-001" {
		t.Errorf("NextID() = %q, want FEAT-001", id)
	}
}

func TestNextIDIsMonotonic(t *testing.T) {
	m := newTestModel(t)
	ctx := context.Background()

	f1, err := m.Create(ctx, models.Feature{Description: "a"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if f1.ID != "FEAT-001" {
		t.Fatalf("first Create() id = %q, want FEAT-001", f1.ID)
	}

	id2, err := m.NextID(ctx)
	if err != nil {
		t.Fatalf("NextID() error: %v", err)
	}
	if id2 != "FEAT-002" {
		t.Errorf("NextID() after one create = %q, want FEAT-002", id2)
	}
}

func TestCreateDefaultsStatusPendingAndPassesFalse(t *testing.T) {
	m := newTestModel(t)
	f, err := m.Create(context.Background(), models.Feature{Description: "x"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if f.Status != models.StatusPending {
		t.Errorf("Status = %q, want pending", f.Status)
	}
	if f.Passes {
		t.Error("Passes = true, want false on create")
	}
}

func TestResolveOrderRespectsDependencies(t *testing.T) {
	m := newTestModel(t)
	ctx := context.Background()

	a, _ := m.Create(ctx, models.Feature{Description: "a"})
	b, err := m.Create(ctx, models.Feature{Description: "b", DependsOn: []string{a.ID}})
	if err != nil {
		t.Fatalf("Create(b) error: %v", err)
	}

	order, err := m.ResolveOrder(ctx)
	if err != nil {
		t.Fatalf("ResolveOrder() error: %v", err)
	}
	if len(order) != 2 {
		t.Fatalf("ResolveOrder() returned %d features, want 2", len(order))
	}
	if order[0].ID != a.ID || order[1].ID != b.ID {
		t.Errorf("ResolveOrder() = [%s, %s], want [%s, %s]", order[0].ID, order[1].ID, a.ID, b.ID)
	}
}

func TestResolveOrderDetectsCycle(t *testing.T) {
	m := newTestModel(t)
	ctx := context.Background()

	a, _ := m.Create(ctx, models.Feature{Description: "a"})
	b, _ := m.Create(ctx, models.Feature{Description: "b", DependsOn: []string{a.ID}})
	// introduce a back-edge: a now depends on b
	if _, err := m.Update(ctx, a.ID, map[string]any{"depends_on": []string{b.ID}}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	_, err := m.ResolveOrder(ctx)
	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("ResolveOrder() error = %v, want *CycleError", err)
	}
}

func TestResolveOrderDetectsSelfLoop(t *testing.T) {
	m := newTestModel(t)
	ctx := context.Background()

	a, _ := m.Create(ctx, models.Feature{Description: "a"})
	if _, err := m.Update(ctx, a.ID, map[string]any{"depends_on": []string{a.ID}}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	_, err := m.ResolveOrder(ctx)
	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("ResolveOrder() error = %v, want *CycleError for self-loop", err)
	}
}

func TestDepsAreMetRequiresStatusComplete(t *testing.T) {
	m := newTestModel(t)
	ctx := context.Background()

	a, _ := m.Create(ctx, models.Feature{Description: "a"})
	b, _ := m.Create(ctx, models.Feature{Description: "b", DependsOn: []string{a.ID}})

	met, err := m.DepsAreMet(ctx, *b)
	if err != nil {
		t.Fatalf("DepsAreMet() error: %v", err)
	}
	if met {
		t.Error("DepsAreMet() = true before dependency is complete")
	}

	// passes=true alone must not satisfy the dependency (§9 Open Question).
	if _, err := m.Update(ctx, a.ID, map[string]any{"passes": true}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	met, err = m.DepsAreMet(ctx, *b)
	if err != nil {
		t.Fatalf("DepsAreMet() error: %v", err)
	}
	if met {
		t.Error("DepsAreMet() = true when dependency merely passes, not complete")
	}

	if _, err := m.Update(ctx, a.ID, map[string]any{"status": string(models.StatusComplete)}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	met, err = m.DepsAreMet(ctx, *b)
	if err != nil {
		t.Fatalf("DepsAreMet() error: %v", err)
	}
	if !met {
		t.Error("DepsAreMet() = false after dependency completes")
	}
}

func TestDepsAreMetMissingReferenceIsUnmet(t *testing.T) {
	m := newTestModel(t)
	b, _ := m.Create(context.Background(), models.Feature{Description: "b", DependsOn: []string{"FEAT-404"}})

	met, err := m.DepsAreMet(context.Background(), *b)
	if err != nil {
		t.Fatalf("DepsAreMet() error: %v", err)
	}
	if met {
		t.Error("DepsAreMet() = true for a missing dependency reference")
	}

	reason, err := m.BlockedReason(context.Background(), *b)
	if err != nil {
		t.Fatalf("BlockedReason() error: %v", err)
	}
	if reason == "" {
		t.Error("BlockedReason() = \"\", want a reason naming the missing reference")
	}
}
