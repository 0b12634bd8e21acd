// Package vcsbridge wraps the git and gh CLIs for branch creation,
// push, PR creation, and merge. Every operation degrades gracefully
// when the external tool or a remote is absent — absence is never a
// crash, per the orchestrator's error-handling design.
package vcsbridge

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pipelinekiln/conductor/pkg/models"
	"github.com/rs/zerolog/log"
)

// Bridge operates git/gh against a single project directory.
type Bridge struct {
	Dir string
}

// New creates a VCS Bridge rooted at dir.
func New(dir string) *Bridge {
	return &Bridge{Dir: dir}
}

func (b *Bridge) git(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = b.Dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

func ghAvailable() bool {
	_, err := exec.LookPath("gh")
	return err == nil
}

func hasRemote(dir, name string) bool {
	cmd := exec.Command("git", "remote")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) == name {
			return true
		}
	}
	return false
}

func currentBranch(dir string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("get current branch: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

func branchExists(dir, name string) bool {
	cmd := exec.Command("git", "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	cmd.Dir = dir
	return cmd.Run() == nil
}

// FeatureBranchName returns the branch a feature's work lives on.
func FeatureBranchName(f models.Feature) string {
	return "feature/" + strings.ToLower(f.ID)
}

func retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// CreatePR implements the createPR contract (§4.6):
//  1. Determine the feature branch name, create it if the current
//     branch differs.
//  2. Push to origin if a remote exists; otherwise stay local-only.
//  3. If the gh CLI is available, open a PR.
//  4. If gh is absent, instruct the operator to open the PR manually.
//
// The Bridge writes no feature status; the caller moves the feature to
// pr-open when CreatePR returns nil. Only a failed branch step returns an
// error: push and gh pr create failures are logged and CreatePR still
// returns nil.
func (b *Bridge) CreatePR(ctx context.Context, f models.Feature) error {
	branch := FeatureBranchName(f)

	current, err := currentBranch(b.Dir)
	if err != nil {
		return err
	}
	if current != branch {
		if branchExists(b.Dir, branch) {
			if _, err := b.git("checkout", branch); err != nil {
				return err
			}
		} else {
			if _, err := b.git("checkout", "-b", branch); err != nil {
				return err
			}
		}
	}

	if hasRemote(b.Dir, "origin") {
		op := func() error {
			_, err := b.git("push", "--set-upstream", "origin", branch)
			return err
		}
		if err := backoff.Retry(op, backoff.WithContext(retryPolicy(), ctx)); err != nil {
			log.Warn().Err(err).Str("feature", f.ID).Msg("⚠️ push failed after retries, continuing local-only")
		}
	} else {
		log.Info().Str("feature", f.ID).Msg("ℹ️ no origin remote configured, staying local-only")
	}

	if ghAvailable() {
		title := fmt.Sprintf("%s: %s", f.ID, f.Description)
		body := prBody(f)
		op := func() error {
			cmd := exec.CommandContext(ctx, "gh", "pr", "create", "--title", title, "--body", body, "--head", branch)
			cmd.Dir = b.Dir
			out, err := cmd.CombinedOutput()
			if err != nil {
				return fmt.Errorf("gh pr create: %s", strings.TrimSpace(string(out)))
			}
			return nil
		}
		if err := backoff.Retry(op, backoff.WithContext(retryPolicy(), ctx)); err != nil {
			log.Warn().Err(err).Str("feature", f.ID).Msg("⚠️ gh pr create failed, operator must open the PR manually")
		} else {
			log.Info().Str("feature", f.ID).Str("branch", branch).Msg("✅ PR opened")
		}
	} else {
		fmt.Printf("gh CLI not found: push branch %q manually and open a PR for %s.\n", branch, f.ID)
	}

	return nil
}

func prBody(f models.Feature) string {
	var b strings.Builder
	b.WriteString(f.Description)
	b.WriteString("\n\n### Architecture compliance\n")
	for _, c := range f.ArchitectureCompliance {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	b.WriteString("\n### Verification steps\n")
	for _, v := range f.VerificationSteps {
		fmt.Fprintf(&b, "- %s\n", v)
	}
	return b.String()
}

// MergePR implements the mergePR contract (§4.6). safeMode and
// autoMerge are read from the Config; when safe mode is in effect the
// feature is left at pr-open and the caller (Autoplay Controller) is
// expected to escalate it for the run so the loop doesn't spin.
func (b *Bridge) MergePR(ctx context.Context, f models.Feature, safeMode, autoMerge bool) (merged bool, err error) {
	if safeMode || !autoMerge {
		log.Info().Str("feature", f.ID).Msg("🔒 safe mode / auto_merge=false, leaving PR open for human review")
		return false, nil
	}

	branch := FeatureBranchName(f)

	if ghAvailable() {
		op := func() error {
			cmd := exec.CommandContext(ctx, "gh", "pr", "merge", branch, "--merge", "--delete-branch")
			cmd.Dir = b.Dir
			out, err := cmd.CombinedOutput()
			if err != nil {
				return fmt.Errorf("gh pr merge: %s", strings.TrimSpace(string(out)))
			}
			return nil
		}
		if err := backoff.Retry(op, backoff.WithContext(retryPolicy(), ctx)); err == nil {
			log.Info().Str("feature", f.ID).Msg("✅ PR merged via gh")
			return true, nil
		}
		log.Warn().Str("feature", f.ID).Msg("⚠️ gh pr merge failed, falling back to local merge")
	}

	defaultBranch, err := b.defaultBranch()
	if err != nil {
		defaultBranch = "main"
	}
	if _, err := b.git("checkout", defaultBranch); err != nil {
		return false, err
	}
	if _, err := b.git("merge", "--no-ff", branch); err != nil {
		return false, fmt.Errorf("local merge of %s failed: %w", branch, err)
	}
	log.Info().Str("feature", f.ID).Str("branch", defaultBranch).Msg("✅ merged locally (no PR CLI available)")
	return true, nil
}

// defaultBranch resolves the remote's symbolic HEAD, falling back to
// "main" when no remote is configured.
func (b *Bridge) defaultBranch() (string, error) {
	out, err := b.git("symbolic-ref", "refs/remotes/origin/HEAD")
	if err != nil {
		return "main", err
	}
	parts := strings.Split(out, "/")
	return parts[len(parts)-1], nil
}
