// Package openspec turns an external change (a named directory of
// markdown artifacts, managed by the OpenSpec CLI) into features. It
// prefers the CLI's machine-readable output and falls back to reading
// the change's files directly when the CLI is absent or fails.
package openspec

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pipelinekiln/conductor/internal/feature"
	"github.com/pipelinekiln/conductor/pkg/models"
	"github.com/rs/zerolog/log"
)

// Importer upserts features from OpenSpec changes into the Feature
// Model.
type Importer struct {
	features *feature.Model
	root     string
}

// New creates a Spec Importer rooted at root (the project directory
// containing an openspec/ subdirectory).
func New(features *feature.Model, root string) *Importer {
	return &Importer{features: features, root: root}
}

// cliArtifact is the shape expected from `openspec show <change> --json`.
// The CLI's exact schema lives outside this repo's scope (§1: "the
// external specification tool... specified only through its
// interface"); this is the minimal shape the importer needs.
type cliArtifact struct {
	TasksMD string `json:"tasks_md"`
	SpecMD  string `json:"spec_md"`
}

// Import upserts every task group of change into a feature. Returns
// the ids created or updated, in order.
func (imp *Importer) Import(ctx context.Context, change string) ([]string, error) {
	tasksContent, specContent, err := imp.readChangeContent(ctx, change)
	if err != nil {
		return nil, fmt.Errorf("read change %s: %w", change, err)
	}

	groups := ParseTasks(tasksContent, change)
	requirements, verificationSteps := ParseSpec(specContent)

	ids := make([]string, 0, len(groups))
	var previousID string
	for i, group := range groups {
		taskGroup := i + 1
		id, err := imp.upsert(ctx, change, taskGroup, group, requirements, verificationSteps)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)

		if taskGroup >= 2 && previousID != "" {
			if err := imp.ensureDependency(ctx, id, previousID); err != nil {
				return ids, err
			}
		}
		previousID = id
	}
	return ids, nil
}

// upsert implements the natural-key upsert rule: create on absence,
// refresh content fields on presence while preserving id/status/passes/
// manually-set depends_on.
func (imp *Importer) upsert(ctx context.Context, change string, taskGroup int, group TaskGroup, requirements, verificationSteps []string) (string, error) {
	found, err := imp.findByNaturalKey(ctx, change, taskGroup)
	if err != nil {
		return "", err
	}

	reference := filepath.Join("openspec", "changes", change)
	combinedRequirements := append(append([]string{}, group.Steps...), requirements...)

	if found == nil {
		created, err := imp.features.Create(ctx, models.Feature{
			Category:               change,
			Description:            group.Title,
			Requirements:           combinedRequirements,
			VerificationSteps:      verificationSteps,
			OpenspecChangeID:       change,
			OpenspecTaskGroup:      taskGroup,
			OpenspecReference:      reference,
			ArchitectureCompliance: []string{},
			DependsOn:              []string{},
		})
		if err != nil {
			return "", err
		}
		return created.ID, nil
	}

	_, err = imp.features.Update(ctx, found.ID, map[string]any{
		"category":           change,
		"description":        group.Title,
		"requirements":       combinedRequirements,
		"verification_steps": verificationSteps,
		"openspec_reference": reference,
		"notes":              found.Notes,
	})
	if err != nil {
		return "", err
	}
	return found.ID, nil
}

func (imp *Importer) findByNaturalKey(ctx context.Context, change string, taskGroup int) (*models.Feature, error) {
	all, err := imp.features.List(ctx, models.ListFilter{})
	if err != nil {
		return nil, err
	}
	for _, f := range all {
		if f.OpenspecChangeID == change && f.OpenspecTaskGroup == taskGroup {
			return &f, nil
		}
	}
	return nil, nil
}

func (imp *Importer) ensureDependency(ctx context.Context, featureID, dependsOnID string) error {
	f, err := imp.features.Get(ctx, featureID)
	if err != nil || f == nil {
		return err
	}
	for _, existing := range f.DependsOn {
		if existing == dependsOnID {
			return nil
		}
	}
	updated := append(append([]string{}, f.DependsOn...), dependsOnID)
	_, err = imp.features.Update(ctx, featureID, map[string]any{"depends_on": updated})
	return err
}

// readChangeContent prefers the external CLI's machine-readable output;
// falls back to reading the change's files directly when the CLI
// returns no usable content.
func (imp *Importer) readChangeContent(ctx context.Context, change string) (tasksMD, specMD string, err error) {
	if artifact, ok := imp.tryCLI(ctx, change); ok {
		return artifact.TasksMD, artifact.SpecMD, nil
	}
	return imp.readFromFilesystem(change)
}

func (imp *Importer) tryCLI(ctx context.Context, change string) (cliArtifact, bool) {
	if _, err := exec.LookPath("openspec"); err != nil {
		return cliArtifact{}, false
	}
	cmd := exec.CommandContext(ctx, "openspec", "show", change, "--json")
	cmd.Dir = imp.root
	out, err := cmd.Output()
	if err != nil {
		log.Info().Str("change", change).Msg("ℹ️ openspec CLI unavailable or failed, falling back to filesystem")
		return cliArtifact{}, false
	}
	var artifact cliArtifact
	if err := json.Unmarshal(out, &artifact); err != nil {
		return cliArtifact{}, false
	}
	if artifact.TasksMD == "" && artifact.SpecMD == "" {
		return cliArtifact{}, false
	}
	return artifact, true
}

func (imp *Importer) readFromFilesystem(change string) (tasksMD, specMD string, err error) {
	changeDir := filepath.Join(imp.root, "openspec", "changes", change)

	tasksMD = readIfExists(filepath.Join(changeDir, "tasks.md"))

	var specParts []string
	for _, name := range []string{"proposal.md", "design.md"} {
		if content := readIfExists(filepath.Join(changeDir, name)); content != "" {
			specParts = append(specParts, content)
		}
	}

	specsDir := filepath.Join(changeDir, "specs")
	_ = filepath.Walk(specsDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // best-effort walk: missing specs/ is not fatal
		}
		if info.IsDir() || filepath.Base(path) != "spec.md" {
			return nil
		}
		if content := readIfExists(path); content != "" {
			specParts = append(specParts, content)
		}
		return nil
	})

	specMD = strings.Join(specParts, "\n\n")
	return tasksMD, specMD, nil
}

func readIfExists(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(b)
}

// MaybeArchive implements §4.3's auto-archive check: after any feature
// reaches status=complete, read all features sharing its
// openspec_change_id; if every one is complete, invoke the external CLI
// to archive the change. Failure to archive is non-fatal.
func (imp *Importer) MaybeArchive(ctx context.Context, featureID string) error {
	f, err := imp.features.Get(ctx, featureID)
	if err != nil {
		return err
	}
	if f == nil || f.OpenspecChangeID == "" {
		return nil
	}

	all, err := imp.features.List(ctx, models.ListFilter{})
	if err != nil {
		return err
	}
	for _, sibling := range all {
		if sibling.OpenspecChangeID != f.OpenspecChangeID {
			continue
		}
		if sibling.Status != models.StatusComplete {
			return nil // not all complete yet
		}
	}

	if _, err := exec.LookPath("openspec"); err != nil {
		log.Info().Str("change", f.OpenspecChangeID).Msg("ℹ️ openspec CLI unavailable, skipping archive")
		return nil
	}
	cmd := exec.CommandContext(ctx, "openspec", "archive", f.OpenspecChangeID)
	cmd.Dir = imp.root
	if out, err := cmd.CombinedOutput(); err != nil {
		log.Warn().Err(err).Str("change", f.OpenspecChangeID).Str("output", string(out)).Msg("⚠️ archive failed, non-fatal")
		return nil
	}
	log.Info().Str("change", f.OpenspecChangeID).Msg("📦 change archived")
	return nil
}

// ListActiveChanges lists subdirectories of <root>/openspec/changes —
// used by autoplay's openspec_auto_import pre-loop step.
func ListActiveChanges(root string) ([]string, error) {
	changesDir := filepath.Join(root, "openspec", "changes")
	entries, err := os.ReadDir(changesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
