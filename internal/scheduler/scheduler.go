// Package scheduler implements the stateless next-action query over the
// feature set: given every feature's current status, dependency state,
// and the Controller's escalation set, it returns the single next
// (feature, action) pair to drive, honoring topological order.
package scheduler

import (
	"context"

	"github.com/pipelinekiln/conductor/internal/feature"
	"github.com/pipelinekiln/conductor/pkg/models"
)

// Scheduler is stateless; it holds only a reference to the Feature
// Model it reads through.
type Scheduler struct {
	features *feature.Model
}

// New creates a Scheduler over the given Feature Model.
func New(features *feature.Model) *Scheduler {
	return &Scheduler{features: features}
}

// Next returns the first actionable feature in topological order, or
// ok=false if nothing is actionable (every feature is complete,
// blocked, or escalated).
func (s *Scheduler) Next(ctx context.Context, escalated map[string]struct{}) (models.ScheduledAction, bool, error) {
	order, err := s.features.ResolveOrder(ctx)
	if err != nil {
		return models.ScheduledAction{}, false, err
	}

	for _, f := range order {
		if f.Status.Terminal() {
			continue
		}
		if _, skip := escalated[f.ID]; skip {
			continue
		}
		met, err := s.features.DepsAreMet(ctx, f)
		if err != nil {
			return models.ScheduledAction{}, false, err
		}
		if !met {
			continue
		}

		action, ok := actionFor(f)
		if !ok {
			continue
		}
		return models.ScheduledAction{FeatureID: f.ID, Action: action}, true, nil
	}
	return models.ScheduledAction{}, false, nil
}

// actionFor maps a feature's status to the action the Scheduler should
// return for it. The passes=true short-circuit takes priority over
// status-based routing: a feature QA has passed is always routed
// through PR creation next, regardless of what status QA also set.
func actionFor(f models.Feature) (models.Action, bool) {
	if f.Status.Terminal() {
		return "", false
	}
	if f.Passes {
		return models.ActionPR, true
	}
	switch f.Status {
	case models.StatusPending, models.StatusNeedsRevision:
		return models.ActionDev, true
	case models.StatusReadyForReview:
		return models.ActionReview, true
	case models.StatusApproved, models.StatusQATesting:
		return models.ActionQA, true
	case models.StatusPROpen:
		return models.ActionMerge, true
	default:
		// Defensive default per spec §4.4: any unrecognized status is
		// routed back through dev rather than wedging the loop.
		return models.ActionDev, true
	}
}
