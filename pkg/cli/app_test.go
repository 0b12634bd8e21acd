package cli

import (
	"testing"

	"github.com/pipelinekiln/conductor/pkg/models"
)

func TestStatusIconKnownStatuses(t *testing.T) {
	for _, s := range statusOrder {
		if got := statusIcon(s); got == "❔" {
			t.Errorf("statusIcon(%q) fell through to the unknown-status icon", s)
		}
	}
}

func TestStatusIconUnknown(t *testing.T) {
	if got := statusIcon(models.Status("bogus")); got != "❔" {
		t.Errorf("statusIcon(bogus) = %q, want ❔", got)
	}
}

func TestActionVerb(t *testing.T) {
	cases := map[models.Action]string{
		models.ActionDev:    "implement",
		models.ActionReview: "review",
		models.ActionQA:     "QA-test",
		models.ActionPR:     "open a pull request for",
		models.ActionMerge:  "merge",
	}
	for action, want := range cases {
		if got := actionVerb(action); got != want {
			t.Errorf("actionVerb(%q) = %q, want %q", action, got, want)
		}
	}
}

func TestActionVerbUnknownFallsBackToRawValue(t *testing.T) {
	if got := actionVerb(models.Action("bogus")); got != "bogus" {
		t.Errorf("actionVerb(bogus) = %q, want %q", got, "bogus")
	}
}
