package openspec

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pipelinekiln/conductor/internal/feature"
	"github.com/pipelinekiln/conductor/internal/store"
	"github.com/pipelinekiln/conductor/pkg/models"
)

func newTestImporter(t *testing.T) (*Importer, *feature.Model, string) {
	t.Helper()
	root := t.TempDir()
	s, err := store.Open(root)
	if err != nil {
		t.Fatalf("store.Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	fm := feature.New(s)
	return New(fm, root), fm, root
}

func writeChange(t *testing.T, root, change, tasksMD, specMD string) {
	t.Helper()
	changeDir := filepath.Join(root, "openspec", "changes", change)
	if err := os.MkdirAll(changeDir, 0o755); err != nil {
		t.Fatalf("mkdir change dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(changeDir, "tasks.md"), []byte(tasksMD), 0o644); err != nil {
		t.Fatalf("write tasks.md: %v", err)
	}
	specsDir := filepath.Join(changeDir, "specs", "widgets")
	if err := os.MkdirAll(specsDir, 0o755); err != nil {
		t.Fatalf("mkdir specs dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(specsDir, "spec.md"), []byte(specMD), 0o644); err != nil {
		t.Fatalf("write spec.md: %v", err)
	}
}

const twoGroupTasks = `
1. Add the endpoint
   - write handler
2. Document it
   - update README
`

func TestImportCreatesOneFeaturePerTaskGroup(t *testing.T) {
	imp, fm, root := newTestImporter(t)
	writeChange(t, root, "add-widgets", twoGroupTasks, "### Requirement: validate input\n")

	ids, err := imp.Import(context.Background(), "add-widgets")
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("Import() created %d features, want 2", len(ids))
	}

	all, err := fm.List(context.Background(), models.ListFilter{})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("store has %d features, want 2", len(all))
	}
}

func TestImportWiresSequentialDependency(t *testing.T) {
	imp, fm, root := newTestImporter(t)
	writeChange(t, root, "add-widgets", twoGroupTasks, "")

	ids, err := imp.Import(context.Background(), "add-widgets")
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}

	second, err := fm.Get(context.Background(), ids[1])
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if len(second.DependsOn) != 1 || second.DependsOn[0] != ids[0] {
		t.Errorf("second feature DependsOn = %v, want [%s]", second.DependsOn, ids[0])
	}
}

func TestImportIsIdempotent(t *testing.T) {
	imp, fm, root := newTestImporter(t)
	writeChange(t, root, "add-widgets", twoGroupTasks, "")

	first, err := imp.Import(context.Background(), "add-widgets")
	if err != nil {
		t.Fatalf("first Import() error: %v", err)
	}

	// Mutate status as an agent would before re-importing.
	if _, err := fm.Update(context.Background(), first[0], map[string]any{"status": "in-dev"}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	second, err := imp.Import(context.Background(), "add-widgets")
	if err != nil {
		t.Fatalf("second Import() error: %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("second Import() produced %d ids, want %d (no duplicates)", len(second), len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("id at position %d changed across imports: %s -> %s", i, first[i], second[i])
		}
	}

	f, err := fm.Get(context.Background(), first[0])
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if f.Status != "in-dev" {
		t.Errorf("re-import overwrote status: got %q, want in-dev preserved", f.Status)
	}

	all, err := fm.List(context.Background(), models.ListFilter{})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("store has %d features after re-import, want 2 (no duplicates)", len(all))
	}
}

func TestImportZeroTaskGroupsCreatesOneFeatureNamedAfterChange(t *testing.T) {
	imp, fm, root := newTestImporter(t)
	writeChange(t, root, "tidy-up", "just prose, no numbered items\n", "")

	ids, err := imp.Import(context.Background(), "tidy-up")
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("Import() created %d features, want 1", len(ids))
	}
	f, err := fm.Get(context.Background(), ids[0])
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if f.Description != "tidy-up" {
		t.Errorf("Description = %q, want change name tidy-up", f.Description)
	}
}
