package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pipelinekiln/conductor/pkg/models"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// DBFileName is the Store's file under <root>/.framework/.
const DBFileName = "framework.db"

// SQLiteStore is the file-backed, single-writer Store implementation.
type SQLiteStore struct {
	db *sql.DB
}

// Open is idempotent: it creates <root>/.framework/framework.db and its
// schema on first call, applies forward-only migrations, and seeds
// default config keys if absent.
func Open(root string) (*SQLiteStore, error) {
	dir := filepath.Join(root, ".framework")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	dbPath := filepath.Join(dir, DBFileName)

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// SQLite tolerates a single writer; keep the pool small so WAL
	// contention is bounded instead of thrashing between connections.
	db.SetMaxOpenConns(8)

	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	if err := s.seedDefaultConfig(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed default config: %w", err)
	}
	log.Info().Str("path", dbPath).Msg("📦 store opened")
	return s, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migrate applies additive, forward-only schema changes. Each step is
// safe to run against a fresh database or one that already has the
// column/table in question.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS features (
			id TEXT PRIMARY KEY,
			category TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			depends_on TEXT NOT NULL DEFAULT '[]',
			requirements TEXT NOT NULL DEFAULT '[]',
			architecture_compliance TEXT NOT NULL DEFAULT '[]',
			verification_steps TEXT NOT NULL DEFAULT '[]',
			assigned_to TEXT NOT NULL DEFAULT '',
			reviewed_by TEXT NOT NULL DEFAULT '',
			tested_by TEXT NOT NULL DEFAULT '',
			passes INTEGER NOT NULL DEFAULT 0,
			openspec_change_id TEXT NOT NULL DEFAULT '',
			openspec_task_group INTEGER NOT NULL DEFAULT 0,
			openspec_reference TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_features_openspec_key
			ON features(openspec_change_id, openspec_task_group)
			WHERE openspec_change_id != ''`,
		`CREATE TABLE IF NOT EXISTS config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS architecture_blobs (
			kind TEXT PRIMARY KEY,
			payload TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pipeline_sessions (
			session_number INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_role TEXT NOT NULL DEFAULT '',
			feature_id TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			timestamp TEXT NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return s.addColumnIfMissing(ctx, "features", "openspec_reference", "TEXT NOT NULL DEFAULT ''")
}

// addColumnIfMissing guards an ALTER TABLE ADD COLUMN behind a
// PRAGMA table_info introspection, the forward-only-migration pattern
// the spec calls for without pulling in a migration-framework
// dependency (see DESIGN.md).
func (s *SQLiteStore) addColumnIfMissing(ctx context.Context, table, column, ddl string) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		if name == column {
			return nil // already present
		}
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, ddl))
	return err
}

func (s *SQLiteStore) seedDefaultConfig(ctx context.Context) error {
	for key, value := range models.DefaultConfig() {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO config(key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`,
			key, value)
		if err != nil {
			return err
		}
	}
	return nil
}

// ── Feature Store ───────────────────────────────────────────

func (s *SQLiteStore) ListFeatures(ctx context.Context, filter models.ListFilter) ([]models.Feature, error) {
	query := "SELECT " + featureColumns + " FROM features WHERE 1=1"
	var args []any
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Assigned != "" {
		query += " AND assigned_to = ?"
		args = append(args, filter.Assigned)
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list features: %w", err)
	}
	defer rows.Close()

	var out []models.Feature
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetFeature(ctx context.Context, id string) (*models.Feature, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+featureColumns+" FROM features WHERE id = ?", id)
	f, err := scanFeatureRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get feature %s: %w", id, err)
	}
	return &f, nil
}

func (s *SQLiteStore) FindByOpenspec(ctx context.Context, changeID string, taskGroup int) (*models.Feature, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+featureColumns+" FROM features WHERE openspec_change_id = ? AND openspec_task_group = ?",
		changeID, taskGroup)
	f, err := scanFeatureRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find feature by openspec key %s/%d: %w", changeID, taskGroup, err)
	}
	return &f, nil
}

func (s *SQLiteStore) CreateFeature(ctx context.Context, f *models.Feature) error {
	now := time.Now().UTC()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now

	dependsOn, err := marshalSlice(f.DependsOn)
	if err != nil {
		return err
	}
	requirements, err := marshalSlice(f.Requirements)
	if err != nil {
		return err
	}
	compliance, err := marshalSlice(f.ArchitectureCompliance)
	if err != nil {
		return err
	}
	steps, err := marshalSlice(f.VerificationSteps)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO features (
		id, category, description, notes, status, depends_on, requirements,
		architecture_compliance, verification_steps, assigned_to, reviewed_by,
		tested_by, passes, openspec_change_id, openspec_task_group,
		openspec_reference, created_at, updated_at
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		f.ID, f.Category, f.Description, f.Notes, string(f.Status), dependsOn, requirements,
		compliance, steps, f.AssignedTo, f.ReviewedBy, f.TestedBy, boolToInt(f.Passes),
		f.OpenspecChangeID, f.OpenspecTaskGroup, f.OpenspecReference,
		f.CreatedAt.Format(time.RFC3339Nano), f.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("create feature %s: %w", f.ID, err)
	}
	return nil
}

// featureFieldColumns maps the spec's patchable field names to SQL
// columns and a scalar-encoding function for the value supplied in
// Update's fields map.
var featureFieldColumns = map[string]string{
	"category":                "category",
	"description":             "description",
	"notes":                   "notes",
	"status":                  "status",
	"depends_on":              "depends_on",
	"requirements":            "requirements",
	"architecture_compliance": "architecture_compliance",
	"verification_steps":      "verification_steps",
	"assigned_to":             "assigned_to",
	"reviewed_by":             "reviewed_by",
	"tested_by":               "tested_by",
	"passes":                  "passes",
	"openspec_change_id":      "openspec_change_id",
	"openspec_task_group":     "openspec_task_group",
	"openspec_reference":      "openspec_reference",
}

func (s *SQLiteStore) UpdateFeature(ctx context.Context, id string, fields map[string]any) (*models.Feature, error) {
	if len(fields) == 0 {
		return s.GetFeature(ctx, id)
	}

	setClauses := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+2)

	for name, value := range fields {
		if _, ok := models.MutableFields[name]; !ok {
			return nil, fmt.Errorf("field %q is not mutable", name)
		}
		col := featureFieldColumns[name]
		encoded, err := encodeFieldValue(name, value)
		if err != nil {
			return nil, fmt.Errorf("encode field %q: %w", name, err)
		}
		setClauses = append(setClauses, col+" = ?")
		args = append(args, encoded)
	}
	setClauses = append(setClauses, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano))
	args = append(args, id)

	query := "UPDATE features SET " + strings.Join(setClauses, ", ") + " WHERE id = ?"
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update feature %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, &ErrNotFound{Entity: "feature", Key: id}
	}
	return s.GetFeature(ctx, id)
}

func encodeFieldValue(name string, value any) (any, error) {
	switch name {
	case "depends_on", "requirements", "architecture_compliance", "verification_steps":
		switch v := value.(type) {
		case []string:
			return marshalSlice(v)
		case string:
			return v, nil // caller already supplied JSON
		default:
			return nil, fmt.Errorf("expected []string, got %T", value)
		}
	case "passes":
		switch v := value.(type) {
		case bool:
			return boolToInt(v), nil
		default:
			return nil, fmt.Errorf("expected bool, got %T", value)
		}
	case "openspec_task_group":
		switch v := value.(type) {
		case int:
			return v, nil
		case string:
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, err
			}
			return n, nil
		default:
			return nil, fmt.Errorf("expected int, got %T", value)
		}
	default:
		return fmt.Sprintf("%v", value), nil
	}
}

func (s *SQLiteStore) DeleteFeature(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM features WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete feature %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &ErrNotFound{Entity: "feature", Key: id}
	}
	return nil
}

const featureColumns = `id, category, description, notes, status, depends_on, requirements,
	architecture_compliance, verification_steps, assigned_to, reviewed_by,
	tested_by, passes, openspec_change_id, openspec_task_group,
	openspec_reference, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeature(rows *sql.Rows) (models.Feature, error) {
	return scanFeatureRow(rows)
}

func scanFeatureRow(row rowScanner) (models.Feature, error) {
	var f models.Feature
	var status string
	var dependsOn, requirements, compliance, steps string
	var passes int
	var createdAt, updatedAt string

	err := row.Scan(&f.ID, &f.Category, &f.Description, &f.Notes, &status,
		&dependsOn, &requirements, &compliance, &steps,
		&f.AssignedTo, &f.ReviewedBy, &f.TestedBy, &passes,
		&f.OpenspecChangeID, &f.OpenspecTaskGroup, &f.OpenspecReference,
		&createdAt, &updatedAt)
	if err != nil {
		return models.Feature{}, err
	}

	f.Status = models.Status(status)
	f.Passes = passes != 0
	if f.DependsOn, err = unmarshalSlice(dependsOn); err != nil {
		return models.Feature{}, err
	}
	if f.Requirements, err = unmarshalSlice(requirements); err != nil {
		return models.Feature{}, err
	}
	if f.ArchitectureCompliance, err = unmarshalSlice(compliance); err != nil {
		return models.Feature{}, err
	}
	if f.VerificationSteps, err = unmarshalSlice(steps); err != nil {
		return models.Feature{}, err
	}
	if f.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return models.Feature{}, err
	}
	if f.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return models.Feature{}, err
	}
	return f, nil
}

func marshalSlice(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalSlice(s string) ([]string, error) {
	if s == "" {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ── Config Store ────────────────────────────────────────────

func (s *SQLiteStore) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get config %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO config(key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("set config %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) AllConfig(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM config ORDER BY key ASC")
	if err != nil {
		return nil, fmt.Errorf("list config: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// ── Architecture Store ──────────────────────────────────────

func (s *SQLiteStore) GetArchitectureBlob(ctx context.Context, kind models.BlobKind) (*models.ArchitectureBlob, error) {
	var payload, updatedAt string
	err := s.db.QueryRowContext(ctx, "SELECT payload, updated_at FROM architecture_blobs WHERE kind = ?", string(kind)).
		Scan(&payload, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get architecture blob %s: %w", kind, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, err
	}
	return &models.ArchitectureBlob{Kind: kind, Payload: payload, UpdatedAt: ts}, nil
}

func (s *SQLiteStore) SetArchitectureBlob(ctx context.Context, kind models.BlobKind, payload string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO architecture_blobs(kind, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(kind) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		string(kind), payload, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set architecture blob %s: %w", kind, err)
	}
	return nil
}

// ── Session Store ───────────────────────────────────────────

func (s *SQLiteStore) AppendSession(ctx context.Context, sess *models.PipelineSession) error {
	if sess.Timestamp.IsZero() {
		sess.Timestamp = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_sessions(agent_role, feature_id, outcome, notes, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		sess.AgentRole, sess.FeatureID, sess.Outcome, sess.Notes, sess.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append session: %w", err)
	}
	id, err := res.LastInsertId()
	if err == nil {
		sess.SessionNumber = int(id)
	}
	return nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, featureID string, limit int) ([]models.PipelineSession, error) {
	query := "SELECT session_number, agent_role, feature_id, outcome, notes, timestamp FROM pipeline_sessions WHERE 1=1"
	var args []any
	if featureID != "" {
		query += " AND feature_id = ?"
		args = append(args, featureID)
	}
	query += " ORDER BY session_number DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []models.PipelineSession
	for rows.Next() {
		var sess models.PipelineSession
		var ts string
		if err := rows.Scan(&sess.SessionNumber, &sess.AgentRole, &sess.FeatureID, &sess.Outcome, &sess.Notes, &ts); err != nil {
			return nil, err
		}
		if sess.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}
