// Package store provides the storage interface and the SQLite-backed
// implementation used by conductor. It is process-local and
// transactional: every mutating operation executes inside an exclusive
// transaction, while readers proceed concurrently against SQLite's WAL
// journal.
package store

import (
	"context"

	"github.com/pipelinekiln/conductor/pkg/models"
)

// Store is the primary storage interface. All components depend on
// this interface rather than on *SQLiteStore directly, which keeps
// tests able to swap in a temp-file-backed store without touching
// production wiring.
type Store interface {
	FeatureStore
	ConfigStore
	ArchitectureStore
	SessionStore

	// Ping checks that the underlying database is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ── Feature Store ───────────────────────────────────────────

type FeatureStore interface {
	ListFeatures(ctx context.Context, filter models.ListFilter) ([]models.Feature, error)
	GetFeature(ctx context.Context, id string) (*models.Feature, error)
	// FindByOpenspec looks up a feature by its natural upsert key. Returns
	// nil, nil when no such feature exists.
	FindByOpenspec(ctx context.Context, changeID string, taskGroup int) (*models.Feature, error)
	CreateFeature(ctx context.Context, f *models.Feature) error
	UpdateFeature(ctx context.Context, id string, fields map[string]any) (*models.Feature, error)
	DeleteFeature(ctx context.Context, id string) error
}

// ── Config Store ────────────────────────────────────────────

type ConfigStore interface {
	GetConfig(ctx context.Context, key string) (string, bool, error)
	SetConfig(ctx context.Context, key, value string) error
	AllConfig(ctx context.Context) (map[string]string, error)
}

// ── Architecture Store ──────────────────────────────────────

type ArchitectureStore interface {
	GetArchitectureBlob(ctx context.Context, kind models.BlobKind) (*models.ArchitectureBlob, error)
	SetArchitectureBlob(ctx context.Context, kind models.BlobKind, payload string) error
}

// ── Session Store ───────────────────────────────────────────

// SessionStore records the append-only pipeline session log.
type SessionStore interface {
	AppendSession(ctx context.Context, s *models.PipelineSession) error
	ListSessions(ctx context.Context, featureID string, limit int) ([]models.PipelineSession, error)
}

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}
