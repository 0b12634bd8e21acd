// Package autoplay implements the main control loop: pick the next
// action from the Scheduler, run it via the Agent Runner or VCS Bridge,
// observe whether the feature's state advanced, and apply the
// retry/escalation policy. The Controller is single-threaded and holds
// the only state that does not live in the Store: a per-run retry
// counter and escalation set.
package autoplay

import (
	"context"
	"fmt"
	"os"

	"github.com/pipelinekiln/conductor/internal/agentrunner"
	"github.com/pipelinekiln/conductor/internal/config"
	"github.com/pipelinekiln/conductor/internal/feature"
	"github.com/pipelinekiln/conductor/internal/openspec"
	"github.com/pipelinekiln/conductor/internal/scheduler"
	"github.com/pipelinekiln/conductor/internal/vcsbridge"
	"github.com/pipelinekiln/conductor/pkg/models"
	"github.com/rs/zerolog/log"
)

// Controller drives features to completion. It holds references to
// every collaborator it needs but no persistent state of its own beyond
// the retry/escalation maps, which are local to a single Run.
type Controller struct {
	features  *feature.Model
	scheduler *scheduler.Scheduler
	runner    *agentrunner.Runner
	vcs       *vcsbridge.Bridge
	importer  *openspec.Importer
	cfg       *config.PersistedConfig
	root      string
	agentBin  string

	retries   map[string]int
	escalated map[string]struct{}
}

// New wires a Controller over its collaborators. root is the project
// directory: role prompt files live at <root>/prompts/<action>.md.
func New(features *feature.Model, sched *scheduler.Scheduler, runner *agentrunner.Runner, vcs *vcsbridge.Bridge, importer *openspec.Importer, cfg *config.PersistedConfig, root string) *Controller {
	return &Controller{
		features:  features,
		scheduler: sched,
		runner:    runner,
		vcs:       vcs,
		importer:  importer,
		cfg:       cfg,
		root:      root,
		agentBin:  agentrunner.DefaultAgentBinary,
		retries:   make(map[string]int),
		escalated: make(map[string]struct{}),
	}
}

// Summary reports a completed autoplay run's outcome.
type Summary struct {
	Completed []string
	Escalated []string
}

// Run drives the loop to completion: every feature reaches a terminal
// state, is escalated, or becomes unreachable because of an unresolved
// dependency. Returns a non-nil error for Store errors, a dependency
// cycle, or a missing role prompt file; a feature's own agent and VCS
// failures are counted and escalated, never propagated outward.
func (c *Controller) Run(ctx context.Context) (Summary, error) {
	if c.cfg.OpenspecAutoImport(ctx) {
		if err := c.importActiveChanges(ctx); err != nil {
			log.Warn().Err(err).Msg("⚠️ openspec auto-import failed, continuing without it")
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return c.summary(ctx), nil
		}

		action, ok, err := c.scheduler.Next(ctx, c.escalated)
		if err != nil {
			return c.summary(ctx), fmt.Errorf("resolve next action: %w", err)
		}
		if !ok {
			break
		}

		if err := c.runIteration(ctx, action); err != nil {
			return c.summary(ctx), fmt.Errorf("run iteration for %s: %w", action.FeatureID, err)
		}
	}

	return c.summary(ctx), nil
}

func (c *Controller) summary(ctx context.Context) Summary {
	var s Summary
	all, err := c.features.List(ctx, models.ListFilter{})
	if err != nil {
		return s
	}
	for _, f := range all {
		if f.Status == models.StatusComplete {
			s.Completed = append(s.Completed, f.ID)
		}
	}
	for id := range c.escalated {
		s.Escalated = append(s.Escalated, id)
	}
	return s
}

// runIteration executes one (feature, action) pair per §4.7's steps 3-7.
func (c *Controller) runIteration(ctx context.Context, action models.ScheduledAction) error {
	f, err := c.features.Get(ctx, action.FeatureID)
	if err != nil {
		return err
	}
	if f == nil {
		return nil // raced with a delete between scheduling and running; skip
	}

	switch action.Action {
	case models.ActionPR:
		return c.runCreatePR(ctx, *f)
	case models.ActionMerge:
		return c.runMergePR(ctx, *f)
	case models.ActionDev, models.ActionReview, models.ActionQA:
		return c.runAgentAction(ctx, *f, action.Action)
	default:
		return fmt.Errorf("unrecognized action %q", action.Action)
	}
}

func (c *Controller) runCreatePR(ctx context.Context, f models.Feature) error {
	if err := c.vcs.CreatePR(ctx, f); err != nil {
		log.Warn().Err(err).Str("feature", f.ID).Msg("⚠️ PR creation failed, will retry next iteration")
		return nil
	}
	// Clear passes alongside the status flip: passes=true is a
	// precondition for the pr action, not a standing fact (spec §9's
	// "passes does not imply complete" note) — leaving it set would make
	// the scheduler route this feature back through pr forever instead
	// of on to merge once it reaches pr-open.
	_, err := c.features.Update(ctx, f.ID, map[string]any{
		"status": string(models.StatusPROpen),
		"passes": false,
	})
	return err
}

func (c *Controller) runMergePR(ctx context.Context, f models.Feature) error {
	safeMode := c.cfg.SafeMode(ctx)
	autoMerge := c.cfg.AutoMerge(ctx)

	merged, err := c.vcs.MergePR(ctx, f, safeMode, autoMerge)
	if err != nil {
		log.Warn().Err(err).Str("feature", f.ID).Msg("⚠️ merge failed, will retry next iteration")
		return nil
	}
	if !merged {
		// Safe mode or auto_merge=false: leave it at pr-open and escalate
		// for this run so the loop doesn't spin on the same feature.
		c.escalated[f.ID] = struct{}{}
		log.Info().Str("feature", f.ID).Msg("🔒 merge skipped, escalating for this run")
		return nil
	}

	if _, err := c.features.Update(ctx, f.ID, map[string]any{"status": string(models.StatusComplete)}); err != nil {
		return err
	}

	if c.cfg.OpenspecAutoArchive(ctx) {
		if err := c.importer.MaybeArchive(ctx, f.ID); err != nil {
			log.Warn().Err(err).Str("feature", f.ID).Msg("⚠️ archive check failed, non-fatal")
		}
	}
	return nil
}

// runAgentAction covers dev/review/qa: composes the role prompt, spawns
// the agent, and applies the retry/stall policy from the observed
// status transition.
func (c *Controller) runAgentAction(ctx context.Context, f models.Feature, action models.Action) error {
	if action == models.ActionDev && f.Status == models.StatusNeedsRevision {
		if c.bumpRetryAndCheckEscalation(ctx, f.ID) {
			return nil
		}
	}

	rolePrompt, err := c.loadRolePrompt(action)
	if err != nil {
		return err
	}
	prompt, err := agentrunner.ComposePrompt(rolePrompt, action, f)
	if err != nil {
		return err
	}
	promptFile, err := os.CreateTemp("", "conductor-prompt-*.md")
	if err != nil {
		return fmt.Errorf("create prompt file: %w", err)
	}
	defer os.Remove(promptFile.Name())
	if _, err := promptFile.WriteString(prompt); err != nil {
		promptFile.Close()
		return fmt.Errorf("write prompt file: %w", err)
	}
	promptFile.Close()

	statusBefore := f.Status
	_, err = c.runner.Run(ctx, agentrunner.RunRequest{
		Binary:     c.agentBin,
		PromptFile: promptFile.Name(),
		MaxTurns:   c.cfg.MaxAgentTurns(ctx),
		Model:      c.cfg.Model(ctx),
		ProjectDir: c.root,
	})
	if err != nil {
		log.Warn().Err(err).Str("feature", f.ID).Str("action", string(action)).Msg("⚠️ agent subprocess failed to start, treating as stall")
		c.bumpRetryAndCheckEscalation(ctx, f.ID)
		return nil
	}
	if ctx.Err() != nil {
		return nil // run cancelled mid-session: not a stall, no retry counted
	}

	after, err := c.features.Get(ctx, f.ID)
	if err != nil {
		return err
	}
	if after == nil || after.Status == statusBefore {
		log.Info().Str("feature", f.ID).Str("action", string(action)).Msg("⏸️ agent session produced no status change, treating as stall")
		c.bumpRetryAndCheckEscalation(ctx, f.ID)
	}
	return nil
}

// bumpRetryAndCheckEscalation increments the retry counter for id and
// escalates it once the counter exceeds max_retries. Returns true if the
// feature is now escalated.
func (c *Controller) bumpRetryAndCheckEscalation(ctx context.Context, id string) bool {
	c.retries[id]++
	if c.retries[id] > c.cfg.MaxRetries(ctx) {
		c.escalated[id] = struct{}{}
		log.Warn().Str("feature", id).Int("retries", c.retries[id]).Msg("🚨 feature escalated after exceeding max_retries")
		return true
	}
	return false
}

func (c *Controller) loadRolePrompt(action models.Action) (string, error) {
	path := config.PromptPath(c.root, action)
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("role prompt for %s not found at %s: %w", action, path, err)
	}
	return string(b), nil
}

func (c *Controller) importActiveChanges(ctx context.Context) error {
	changes, err := openspec.ListActiveChanges(c.root)
	if err != nil {
		return err
	}
	for _, change := range changes {
		if _, err := c.importer.Import(ctx, change); err != nil {
			log.Warn().Err(err).Str("change", change).Msg("⚠️ import of active change failed, continuing")
		}
	}
	return nil
}
