package cli

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pipelinekiln/conductor/internal/openspec"
)

var openspecCmd = &cobra.Command{
	Use:   "openspec",
	Short: "Interact with the external OpenSpec CLI and import its changes",
}

func init() {
	rootCmd.AddCommand(openspecCmd)
}

var openspecInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the external OpenSpec CLI (best-effort)",
	Args:  cobra.NoArgs,
	RunE:  runOpenspecInstall,
}

func init() {
	openspecCmd.AddCommand(openspecInstallCmd)
}

func runOpenspecInstall(cmd *cobra.Command, args []string) error {
	if _, err := exec.LookPath("openspec"); err == nil {
		fmt.Println(good + "✓ openspec CLI already installed" + reset)
		return nil
	}
	if _, err := exec.LookPath("npm"); err != nil {
		return fmt.Errorf("npm not found on PATH; install the openspec CLI manually")
	}
	out, err := exec.CommandContext(cmd.Context(), "npm", "install", "-g", "@openspec/cli").CombinedOutput()
	if err != nil {
		return fmt.Errorf("npm install -g @openspec/cli: %s", strings.TrimSpace(string(out)))
	}
	fmt.Println(good + "✓ openspec CLI installed" + reset)
	return nil
}

var openspecRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-run the external CLI's project update",
	Args:  cobra.NoArgs,
	RunE:  runOpenspecRefresh,
}

func init() {
	openspecCmd.AddCommand(openspecRefreshCmd)
}

func runOpenspecRefresh(cmd *cobra.Command, args []string) error {
	if _, err := exec.LookPath("openspec"); err != nil {
		return fmt.Errorf("openspec CLI not found; run `conductor openspec install` first")
	}
	c := exec.CommandContext(cmd.Context(), "openspec", "update")
	c.Dir = projectRoot
	out, err := c.CombinedOutput()
	if err != nil {
		return fmt.Errorf("openspec update: %s", strings.TrimSpace(string(out)))
	}
	fmt.Print(string(out))
	fmt.Println(good + "✓ project refreshed" + reset)
	return nil
}

var openspecStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the external CLI's version and active changes",
	Args:  cobra.NoArgs,
	RunE:  runOpenspecStatus,
}

func init() {
	openspecCmd.AddCommand(openspecStatusCmd)
}

func runOpenspecStatus(cmd *cobra.Command, args []string) error {
	if path, err := exec.LookPath("openspec"); err == nil {
		out, err := exec.CommandContext(cmd.Context(), "openspec", "--version").Output()
		if err == nil {
			fmt.Printf("openspec CLI: %s (%s)\n", strings.TrimSpace(string(out)), path)
		} else {
			fmt.Println("openspec CLI: found but --version failed")
		}
	} else {
		fmt.Println(warn + "openspec CLI: not found" + reset)
	}

	changes, err := openspec.ListActiveChanges(projectRoot)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		fmt.Println("active changes: (none)")
		return nil
	}
	fmt.Println("active changes:")
	for _, c := range changes {
		fmt.Println("  - " + c)
	}
	return nil
}

var openspecImportAll bool

var openspecImportCmd = &cobra.Command{
	Use:   "import [change]",
	Short: "Upsert features from one change, or every active change with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runOpenspecImport,
}

func init() {
	openspecImportCmd.Flags().BoolVar(&openspecImportAll, "all", false, "import every active change")
	openspecCmd.AddCommand(openspecImportCmd)
}

func runOpenspecImport(cmd *cobra.Command, args []string) error {
	if !openspecImportAll && len(args) != 1 {
		return fmt.Errorf("provide a change name or pass --all")
	}
	if openspecImportAll && len(args) == 1 {
		return fmt.Errorf("pass a change name or --all, not both")
	}

	srv, err := openServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx := cmd.Context()

	var changes []string
	if openspecImportAll {
		changes, err = openspec.ListActiveChanges(projectRoot)
		if err != nil {
			return err
		}
	} else {
		changes = []string{args[0]}
	}

	for _, change := range changes {
		ids, err := srv.Importer.Import(ctx, change)
		if err != nil {
			return fmt.Errorf("import %s: %w", change, err)
		}
		fmt.Printf(good+"✓ %s: %d feature(s) — %s"+reset+"\n", change, len(ids), strings.Join(ids, ", "))
	}
	return nil
}

var openspecArchiveCmd = &cobra.Command{
	Use:   "archive <feature-id>",
	Short: "Archive the feature's change if every sibling feature is complete",
	Args:  cobra.ExactArgs(1),
	RunE:  runOpenspecArchive,
}

func init() {
	openspecCmd.AddCommand(openspecArchiveCmd)
}

func runOpenspecArchive(cmd *cobra.Command, args []string) error {
	srv, err := openServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	if err := srv.Importer.MaybeArchive(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Println(good + "✓ archive check complete" + reset)
	return nil
}
