package config

import (
	"context"
	"os"
	"testing"

	"github.com/pipelinekiln/conductor/internal/store"
)

func newTestConfigStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPersistedConfigDefaults(t *testing.T) {
	pc := New(newTestConfigStore(t))
	ctx := context.Background()

	if got := pc.MaxRetries(ctx); got != 3 {
		t.Errorf("MaxRetries() = %d, want 3", got)
	}
	if got := pc.AutoMerge(ctx); got != true {
		t.Errorf("AutoMerge() = %v, want true", got)
	}
	if got := pc.SafeMode(ctx); got != false {
		t.Errorf("SafeMode() = %v, want false", got)
	}
	if got := pc.OpenspecAutoImport(ctx); got != false {
		t.Errorf("OpenspecAutoImport() = %v, want false", got)
	}
}

func TestPersistedConfigSetOverridesDefault(t *testing.T) {
	pc := New(newTestConfigStore(t))
	ctx := context.Background()

	if err := pc.Set(ctx, "max_retries", "7"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if got := pc.MaxRetries(ctx); got != 7 {
		t.Errorf("MaxRetries() = %d, want 7 after Set", got)
	}
}

func TestLoadUsesEnvironmentOverrides(t *testing.T) {
	t.Setenv("FRAMEWORK_PROJECT_ROOT", "/tmp/project")
	t.Setenv("FRAMEWORK_PORT", "9090")

	cfg := Load()
	if cfg.ProjectRoot != "/tmp/project" {
		t.Errorf("ProjectRoot = %q, want /tmp/project", cfg.ProjectRoot)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
}

func TestLoadFallsBackToDefaultsWhenUnset(t *testing.T) {
	os.Unsetenv("FRAMEWORK_PROJECT_ROOT")
	os.Unsetenv("FRAMEWORK_PORT")

	cfg := Load()
	if cfg.ProjectRoot != "." {
		t.Errorf("ProjectRoot = %q, want .", cfg.ProjectRoot)
	}
	if cfg.Port != 4173 {
		t.Errorf("Port = %d, want 4173", cfg.Port)
	}
}
