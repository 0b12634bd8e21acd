package cli

import (
	"fmt"

	"github.com/pipelinekiln/conductor/pkg/models"
	"github.com/pipelinekiln/conductor/pkg/server"
)

// openServer opens the Store under projectRoot and wires every
// component over it. Callers must defer srv.Close().
func openServer() (*server.Server, error) {
	srv, err := server.New(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("open project at %s: %w", projectRoot, err)
	}
	return srv, nil
}

// statusIcon returns the emoji shown alongside a feature's status in
// text output.
func statusIcon(s models.Status) string {
	switch s {
	case models.StatusPending:
		return "⏳"
	case models.StatusInDev:
		return "🛠️ "
	case models.StatusReadyForReview:
		return "👀"
	case models.StatusApproved:
		return "✅"
	case models.StatusNeedsRevision:
		return "🔁"
	case models.StatusQATesting:
		return "🧪"
	case models.StatusPROpen:
		return "🔀"
	case models.StatusComplete:
		return "🎉"
	default:
		return "❔"
	}
}

// actionVerb describes the action a scheduled action will take, for
// guided/status human-readable output.
func actionVerb(a models.Action) string {
	switch a {
	case models.ActionDev:
		return "implement"
	case models.ActionReview:
		return "review"
	case models.ActionQA:
		return "QA-test"
	case models.ActionPR:
		return "open a pull request for"
	case models.ActionMerge:
		return "merge"
	default:
		return string(a)
	}
}
