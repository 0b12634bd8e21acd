// Package config holds two distinct configuration notions. ProcessConfig
// is read once at startup from the environment, the way the rest of the
// orchestrator's process-level settings are. PersistedConfig is the
// recognized key-value map stored in the Store and read fresh on every
// access, since any command (including a concurrently running `config
// set`) may change it between autoplay iterations.
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/pipelinekiln/conductor/internal/store"
	"github.com/pipelinekiln/conductor/pkg/models"
)

// ProcessConfig holds the environment-derived settings consumed by the
// Read-Model Server.
type ProcessConfig struct {
	ProjectRoot string
	Port        int
}

// Load reads ProcessConfig from the environment, applying the defaults
// named in the orchestrator's environment table.
func Load() *ProcessConfig {
	return &ProcessConfig{
		ProjectRoot: envStr("FRAMEWORK_PROJECT_ROOT", "."),
		Port:        envInt("FRAMEWORK_PORT", 4173),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// PersistedConfig is a thin typed layer over the Store's ConfigStore for
// the recognized config keys (§3). It holds no cache: every accessor
// reads through to the Store so config set takes effect on the very
// next autoplay iteration.
type PersistedConfig struct {
	store store.ConfigStore
}

// New wraps a Store's ConfigStore with typed accessors.
func New(s store.ConfigStore) *PersistedConfig {
	return &PersistedConfig{store: s}
}

// Get returns the raw string value for key, or "" if unset.
func (c *PersistedConfig) Get(ctx context.Context, key string) (string, error) {
	v, _, err := c.store.GetConfig(ctx, key)
	return v, err
}

// Set writes key=value. Callers are responsible for validating that key
// is recognized; the Store does not reject unrecognized keys so that
// forward-compatible keys can be introduced without a migration.
func (c *PersistedConfig) Set(ctx context.Context, key, value string) error {
	return c.store.SetConfig(ctx, key, value)
}

// All returns every persisted config key and value.
func (c *PersistedConfig) All(ctx context.Context) (map[string]string, error) {
	return c.store.AllConfig(ctx)
}

func (c *PersistedConfig) string(ctx context.Context, key, fallback string) string {
	v, ok, err := c.store.GetConfig(ctx, key)
	if err != nil || !ok || v == "" {
		return fallback
	}
	return v
}

func (c *PersistedConfig) boolean(ctx context.Context, key string, fallback bool) bool {
	v, ok, err := c.store.GetConfig(ctx, key)
	if err != nil || !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func (c *PersistedConfig) integer(ctx context.Context, key string, fallback int) int {
	v, ok, err := c.store.GetConfig(ctx, key)
	if err != nil || !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// ExecutionMode returns "team" or "orchestrator".
func (c *PersistedConfig) ExecutionMode(ctx context.Context) string {
	return c.string(ctx, models.ConfigExecutionMode, models.ExecutionModeOrchestrator)
}

// Model returns the coding-agent model identifier, or "" if unset.
func (c *PersistedConfig) Model(ctx context.Context) string {
	return c.string(ctx, models.ConfigModel, "")
}

// MaxRetries returns the per-feature retry cap before escalation.
func (c *PersistedConfig) MaxRetries(ctx context.Context) int {
	return c.integer(ctx, models.ConfigMaxRetries, 3)
}

// MaxAgentTurns returns the turn budget handed to each agent subprocess.
func (c *PersistedConfig) MaxAgentTurns(ctx context.Context) int {
	return c.integer(ctx, models.ConfigMaxAgentTurns, 40)
}

// FeaturesPerLeadSession returns the team-mode batching size.
func (c *PersistedConfig) FeaturesPerLeadSession(ctx context.Context) int {
	return c.integer(ctx, models.ConfigFeaturesPerLeadSession, 1)
}

// AutoMerge reports whether the Controller may merge PRs automatically.
func (c *PersistedConfig) AutoMerge(ctx context.Context) bool {
	return c.boolean(ctx, models.ConfigAutoMerge, true)
}

// SafeMode reports whether merges are disabled regardless of AutoMerge.
func (c *PersistedConfig) SafeMode(ctx context.Context) bool {
	return c.boolean(ctx, models.ConfigSafeMode, false)
}

// OpenspecAutoArchive reports whether a fully-complete change should be
// archived automatically.
func (c *PersistedConfig) OpenspecAutoArchive(ctx context.Context) bool {
	return c.boolean(ctx, models.ConfigOpenspecAutoArchive, false)
}

// OpenspecAutoImport reports whether autoplay should import all active
// changes before its first iteration.
func (c *PersistedConfig) OpenspecAutoImport(ctx context.Context) bool {
	return c.boolean(ctx, models.ConfigOpenspecAutoImport, false)
}

// PromptPath resolves the role prompt file for action under
// <root>/prompts/. Missing prompt templates are a configuration error
// per the orchestrator's error-handling design, surfaced by the caller
// with the offending path.
func PromptPath(root string, action models.Action) string {
	return fmt.Sprintf("%s/prompts/%s.md", root, action)
}
