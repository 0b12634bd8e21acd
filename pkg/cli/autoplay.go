package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pipelinekiln/conductor/pkg/models"
)

var (
	autoplayMode      string
	autoplayAutoMerge bool
)

var autoplayCmd = &cobra.Command{
	Use:   "autoplay",
	Short: "Run the pipeline to completion or until every feature is escalated",
	Args:  cobra.NoArgs,
	RunE:  runAutoplay,
}

func init() {
	autoplayCmd.Flags().StringVar(&autoplayMode, "mode", "", "execution mode: team or orchestrator (default: config execution_mode)")
	autoplayCmd.Flags().BoolVar(&autoplayAutoMerge, "auto-merge", false, "set the persisted auto_merge config key before running")
	rootCmd.AddCommand(autoplayCmd)
}

func runAutoplay(cmd *cobra.Command, args []string) error {
	srv, err := openServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mode := autoplayMode
	if mode == "" {
		mode = srv.Config.ExecutionMode(ctx)
	}
	if mode != models.ExecutionModeTeam && mode != models.ExecutionModeOrchestrator {
		return fmt.Errorf("--mode must be %q or %q, got %q", models.ExecutionModeTeam, models.ExecutionModeOrchestrator, mode)
	}

	if cmd.Flags().Changed("auto-merge") {
		if err := srv.Config.Set(ctx, models.ConfigAutoMerge, boolStr(autoplayAutoMerge)); err != nil {
			return err
		}
	}

	if mode == models.ExecutionModeTeam {
		return runGuided(cmd, args)
	}

	summary, err := srv.Controller.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf(good+"✓ completed: %d"+reset+"\n", len(summary.Completed))
	for _, id := range summary.Completed {
		fmt.Println("  " + id)
	}
	if len(summary.Escalated) > 0 {
		fmt.Println()
		fmt.Printf(bad+"✗ escalated: %d"+reset+"\n", len(summary.Escalated))
		for _, id := range summary.Escalated {
			fmt.Println("  " + id)
		}
		return fmt.Errorf("autoplay finished with %d escalated feature(s)", len(summary.Escalated))
	}
	return nil
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
