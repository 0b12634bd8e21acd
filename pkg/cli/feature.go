package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pipelinekiln/conductor/pkg/models"
)

var featureCmd = &cobra.Command{
	Use:   "feature",
	Short: "Manage individual features in the backlog",
}

func init() {
	rootCmd.AddCommand(featureCmd)
}

// ── list ─────────────────────────────────────────────────────

var (
	listStatus   string
	listAssigned string
)

var featureListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print features, one per line",
	Args:  cobra.NoArgs,
	RunE:  runFeatureList,
}

func init() {
	featureListCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	featureListCmd.Flags().StringVar(&listAssigned, "assigned", "", "filter by assigned_to")
	featureCmd.AddCommand(featureListCmd)
}

func runFeatureList(cmd *cobra.Command, args []string) error {
	srv, err := openServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx := cmd.Context()
	filter := models.ListFilter{Status: models.Status(listStatus), Assigned: listAssigned}
	features, err := srv.Features.List(ctx, filter)
	if err != nil {
		return err
	}
	if len(features) == 0 {
		fmt.Println(dim + "(no features)" + reset)
		return nil
	}
	for _, f := range features {
		deps := "-"
		if len(f.DependsOn) > 0 {
			deps = strings.Join(f.DependsOn, ",")
		}
		fmt.Printf("%s %s  %-40s  %-18s  deps: %s\n", statusIcon(f.Status), f.ID, truncate(f.Description, 40), f.Status, deps)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// ── get ──────────────────────────────────────────────────────

var featureGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print the feature as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runFeatureGet,
}

func init() {
	featureCmd.AddCommand(featureGetCmd)
}

func runFeatureGet(cmd *cobra.Command, args []string) error {
	srv, err := openServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	f, err := srv.Features.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("feature not found: %s", args[0])
	}
	return printJSON(f)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// ── create ───────────────────────────────────────────────────

var (
	createDescription string
	createCategory    string
	createDependsOn   []string
	createOpenspec    string
	createCompliance  []string
)

var featureCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Allocate the next feature id and create a feature",
	Args:  cobra.NoArgs,
	RunE:  runFeatureCreate,
}

func init() {
	featureCreateCmd.Flags().StringVarP(&createDescription, "description", "d", "", "feature description (required)")
	featureCreateCmd.Flags().StringVarP(&createCategory, "category", "c", "", "feature category")
	featureCreateCmd.Flags().StringSliceVar(&createDependsOn, "depends", nil, "dependency feature ids")
	featureCreateCmd.Flags().StringVar(&createOpenspec, "openspec", "", "openspec reference path")
	featureCreateCmd.Flags().StringSliceVar(&createCompliance, "compliance", nil, "architecture compliance ids")
	_ = featureCreateCmd.MarkFlagRequired("description")
	featureCmd.AddCommand(featureCreateCmd)
}

func runFeatureCreate(cmd *cobra.Command, args []string) error {
	srv, err := openServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	created, err := srv.Features.Create(cmd.Context(), models.Feature{
		Category:               createCategory,
		Description:            createDescription,
		DependsOn:              createDependsOn,
		OpenspecReference:      createOpenspec,
		ArchitectureCompliance: createCompliance,
	})
	if err != nil {
		return err
	}
	fmt.Printf(good+"✓ created %s"+reset+"\n", created.ID)
	return nil
}

// ── update ───────────────────────────────────────────────────

var (
	updateStatus string
	updatePasses string
	updateNotes  string
)

var featureUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Partially update a feature",
	Args:  cobra.ExactArgs(1),
	RunE:  runFeatureUpdate,
}

func init() {
	featureUpdateCmd.Flags().StringVar(&updateStatus, "status", "", "new status")
	featureUpdateCmd.Flags().StringVar(&updatePasses, "passes", "", "QA verdict (true/false)")
	featureUpdateCmd.Flags().StringVar(&updateNotes, "notes", "", "notes")
	featureCmd.AddCommand(featureUpdateCmd)
}

func runFeatureUpdate(cmd *cobra.Command, args []string) error {
	srv, err := openServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	fields := map[string]any{}
	if cmd.Flags().Changed("status") {
		fields["status"] = updateStatus
	}
	if cmd.Flags().Changed("passes") {
		passes, err := strconv.ParseBool(updatePasses)
		if err != nil {
			return fmt.Errorf("--passes must be true or false: %w", err)
		}
		fields["passes"] = passes
	}
	if cmd.Flags().Changed("notes") {
		fields["notes"] = updateNotes
	}
	if len(fields) == 0 {
		return fmt.Errorf("nothing to update: pass at least one of --status, --passes, --notes")
	}

	updated, err := srv.Features.Update(cmd.Context(), args[0], fields)
	if err != nil {
		return err
	}
	if updated == nil {
		return fmt.Errorf("feature not found: %s", args[0])
	}
	fmt.Printf(good+"✓ updated %s"+reset+"\n", updated.ID)
	return nil
}

// ── export / import ──────────────────────────────────────────

// featureExportDoc is the shape written to feature-requirements.json
// per §6's persisted state layout.
type featureExportDoc struct {
	Features []models.Feature `json:"features"`
}

var exportPath string

var featureExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every feature to a JSON file",
	Args:  cobra.NoArgs,
	RunE:  runFeatureExport,
}

func init() {
	featureExportCmd.Flags().StringVarP(&exportPath, "output", "o", "", "output path (default <root>/architecture/feature-requirements.json)")
	featureCmd.AddCommand(featureExportCmd)
}

func runFeatureExport(cmd *cobra.Command, args []string) error {
	srv, err := openServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	all, err := srv.Features.List(cmd.Context(), models.ListFilter{})
	if err != nil {
		return err
	}
	if all == nil {
		all = []models.Feature{}
	}

	path := exportPath
	if path == "" {
		path = defaultExportPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	data, err := json.MarshalIndent(featureExportDoc{Features: all}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf(good+"✓ exported %d features to %s"+reset+"\n", len(all), path)
	return nil
}

var importPath string

var featureImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import features from a JSON file (round-trips feature export)",
	Args:  cobra.NoArgs,
	RunE:  runFeatureImport,
}

func init() {
	featureImportCmd.Flags().StringVarP(&importPath, "input", "i", "", "input path (default <root>/architecture/feature-requirements.json)")
	featureCmd.AddCommand(featureImportCmd)
}

func runFeatureImport(cmd *cobra.Command, args []string) error {
	srv, err := openServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	path := importPath
	if path == "" {
		path = defaultExportPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var doc featureExportDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	ctx := cmd.Context()
	for _, f := range doc.Features {
		existing, err := srv.Features.Get(ctx, f.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			if err := srv.Store.CreateFeature(ctx, &f); err != nil {
				return fmt.Errorf("create %s: %w", f.ID, err)
			}
			continue
		}
		fields := map[string]any{
			"category":                f.Category,
			"description":             f.Description,
			"notes":                   f.Notes,
			"status":                  string(f.Status),
			"depends_on":              f.DependsOn,
			"requirements":            f.Requirements,
			"architecture_compliance": f.ArchitectureCompliance,
			"verification_steps":      f.VerificationSteps,
			"assigned_to":             f.AssignedTo,
			"reviewed_by":             f.ReviewedBy,
			"tested_by":               f.TestedBy,
			"passes":                  f.Passes,
			"openspec_change_id":      f.OpenspecChangeID,
			"openspec_task_group":     f.OpenspecTaskGroup,
			"openspec_reference":      f.OpenspecReference,
		}
		if _, err := srv.Features.Update(ctx, f.ID, fields); err != nil {
			return fmt.Errorf("update %s: %w", f.ID, err)
		}
	}
	fmt.Printf(good+"✓ imported %d features from %s"+reset+"\n", len(doc.Features), path)
	return nil
}

func defaultExportPath() string {
	return filepath.Join(projectRoot, "architecture", "feature-requirements.json")
}
