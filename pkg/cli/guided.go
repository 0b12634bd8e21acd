package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pipelinekiln/conductor/internal/vcsbridge"
	"github.com/pipelinekiln/conductor/pkg/models"
)

var guidedCmd = &cobra.Command{
	Use:   "guided",
	Short: "Print next step instructions for a human driver",
	Args:  cobra.NoArgs,
	RunE:  runGuided,
}

func init() {
	rootCmd.AddCommand(guidedCmd)
}

func runGuided(cmd *cobra.Command, args []string) error {
	srv, err := openServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx := cmd.Context()
	action, ok, err := srv.Scheduler.Next(ctx, map[string]struct{}{})
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println(good + "✓ nothing actionable — every feature is complete, blocked, or needs a human" + reset)
		return nil
	}

	f, err := srv.Features.Get(ctx, action.FeatureID)
	if err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("scheduled feature %s vanished", action.FeatureID)
	}

	fmt.Println()
	fmt.Printf(whiteBold+"Next step: %s %s"+reset+"\n", action.Action, f.ID)
	fmt.Printf("%s — %s\n\n", f.ID, f.Description)

	switch action.Action {
	case models.ActionDev:
		fmt.Println("Assign this to the " + whiteBold + "dev" + reset + " agent. Implement with full architecture")
		fmt.Println("compliance, then transition its status to ready-for-review.")
		if f.Status == models.StatusNeedsRevision {
			fmt.Println(warn + "This feature was sent back for revision — consult the rejection" + reset)
			fmt.Println(warn + "feedback left in version-control notes before re-implementing." + reset)
		}
	case models.ActionReview:
		fmt.Println("Assign this to the " + whiteBold + "reviewer" + reset + " agent. Execute every verification")
		fmt.Println("step for every architecture principle; approve or reject with evidence.")
	case models.ActionQA:
		fmt.Println("Assign this to the " + whiteBold + "QA" + reset + " agent. Execute every verification step.")
		fmt.Println("On success, set passes=true (status stays unchanged). On failure,")
		fmt.Println("set status=needs-revision.")
	case models.ActionPR:
		fmt.Println("QA has passed this feature. Run `conductor autoplay` or open the pull")
		fmt.Println("request yourself against branch " + vcsbridge.FeatureBranchName(*f) + ".")
	case models.ActionMerge:
		fmt.Println("The pull request is open. Merge it (or run `conductor autoplay`) to")
		fmt.Println("advance this feature to complete.")
	}
	fmt.Println()
	if len(f.Requirements) > 0 {
		fmt.Println(whiteBold + "Requirements:" + reset)
		for _, r := range f.Requirements {
			fmt.Println("  - " + r)
		}
		fmt.Println()
	}
	if len(f.VerificationSteps) > 0 {
		fmt.Println(whiteBold + "Verification steps:" + reset)
		for _, v := range f.VerificationSteps {
			fmt.Println("  - " + v)
		}
		fmt.Println()
	}
	return nil
}
