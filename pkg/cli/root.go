// Package cli implements conductor's command-line surface: the verb/
// noun structure binding feature/status/guided/autoplay/import/config/
// dashboard to the orchestration components in internal/.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

// ANSI styling, kept minimal and reused across subcommands' text output.
const (
	reset     = "\033[0m"
	dim       = "\033[38;5;245m"
	whiteBold = "\033[1;37m"
	good      = "\033[38;5;82m"
	warn      = "\033[38;5;214m"
	bad       = "\033[38;5;196m"
)

// projectRoot holds the -p/--project flag shared by every subcommand.
var projectRoot string

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "conductor drives a backlog of features through a dev/review/QA/PR pipeline",
	Long: whiteBold + "conductor" + reset + dim + " — multi-agent coding pipeline orchestrator" + reset + `

conductor holds a dependency-ordered backlog of features and drives each
one through pending → in-dev → ready-for-review → approved → qa-testing
→ pr-open → complete, spawning coding-agent subprocesses and invoking
git/gh along the way. A needs-revision loop sends rejected work back to
dev; features that exceed their retry budget are escalated to a human.`,
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectRoot, "project", "p", ".", "project root directory")
	rootCmd.SetVersionTemplate("conductor version {{.Version}}\n")
}

// Execute runs the root command, exiting non-zero on any returned error
// per §6's exit code table.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, bad+"✗ "+reset+err.Error())
		os.Exit(1)
	}
}
