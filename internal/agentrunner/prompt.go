package agentrunner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pipelinekiln/conductor/pkg/models"
)

// delimiter separates the role prompt file's content from the
// task-specific block the Agent Runner appends.
const delimiter = "\n\n---\n\n"

// roleDirectives gives each action's verbatim-semantics instruction.
// Wording is the orchestrator's own; the meaning is fixed by the spec.
var roleDirectives = map[models.Action]string{
	models.ActionDev:    "Implement this feature with full architecture compliance. When the implementation is complete, transition its status to ready-for-review.",
	models.ActionReview: "Execute every verification step for every architecture principle. Approve or reject the feature with evidence for your decision.",
	models.ActionQA:     "Execute every verification step. On success, set passes=true but do not set status=complete. On failure, set status=needs-revision.",
}

// ComposePrompt loads the role prompt file for action, appends the
// fixed delimiter, and appends a task block containing the feature id,
// description, a full JSON dump of the feature, and the role-specific
// directive. When the feature is in needs-revision under the dev
// action, an explicit instruction to consult rejection feedback in
// version-control notes is appended.
func ComposePrompt(rolePromptContent string, action models.Action, f models.Feature) (string, error) {
	dump, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal feature for prompt: %w", err)
	}

	var b strings.Builder
	b.WriteString(rolePromptContent)
	b.WriteString(delimiter)
	fmt.Fprintf(&b, "Feature: %s\n", f.ID)
	fmt.Fprintf(&b, "Description: %s\n\n", f.Description)
	b.WriteString("Full feature record:\n")
	b.Write(dump)
	b.WriteString("\n\n")

	if directive, ok := roleDirectives[action]; ok {
		b.WriteString(directive)
		b.WriteString("\n")
	}

	if action == models.ActionDev && f.Status == models.StatusNeedsRevision {
		b.WriteString("\nThis feature was sent back for revision. Consult the rejection feedback left in version-control notes (commit messages, PR review comments) before re-implementing.\n")
	}

	return b.String(), nil
}
