package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pipelinekiln/conductor/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print pipeline status with counts",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusOrder = []models.Status{
	models.StatusPending,
	models.StatusInDev,
	models.StatusReadyForReview,
	models.StatusApproved,
	models.StatusNeedsRevision,
	models.StatusQATesting,
	models.StatusPROpen,
	models.StatusComplete,
}

func runStatus(cmd *cobra.Command, args []string) error {
	srv, err := openServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx := cmd.Context()
	all, err := srv.Features.List(ctx, models.ListFilter{})
	if err != nil {
		return err
	}

	counts := map[models.Status]int{}
	var blocked []string
	for _, f := range all {
		counts[f.Status]++
		if f.Status.Terminal() {
			continue
		}
		reason, err := srv.Features.BlockedReason(ctx, f)
		if err != nil {
			return err
		}
		if reason != "" {
			blocked = append(blocked, fmt.Sprintf("%s %s", f.ID, reason))
		}
	}

	fmt.Println()
	fmt.Printf(whiteBold+"Pipeline status"+reset+" — %d features\n", len(all))
	fmt.Println()
	for _, s := range statusOrder {
		if counts[s] == 0 {
			continue
		}
		fmt.Printf("  %s %-18s %d\n", statusIcon(s), s, counts[s])
	}
	fmt.Println()

	if len(blocked) > 0 {
		fmt.Println(warn + "Blocked:" + reset)
		for _, b := range blocked {
			fmt.Println("  " + b)
		}
		fmt.Println()
	}

	action, ok, err := srv.Scheduler.Next(ctx, map[string]struct{}{})
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println(good + "✓ nothing actionable — every feature is complete, blocked, or needs a human" + reset)
		return nil
	}
	next, err := srv.Features.Get(ctx, action.FeatureID)
	if err != nil {
		return err
	}
	fmt.Printf("Next: %s %s — %s it\n", statusIcon(next.Status), action.FeatureID, actionVerb(action.Action))
	return nil
}
