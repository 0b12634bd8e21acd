package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pipelinekiln/conductor/pkg/models"
)

var archCmd = &cobra.Command{
	Use:   "arch",
	Short: "Copy architecture JSON blobs into or out of the Store",
}

func init() {
	rootCmd.AddCommand(archCmd)
}

var archBlobKinds = []models.BlobKind{models.BlobPrinciples, models.BlobPatterns, models.BlobStandards}

func archDir() string {
	return filepath.Join(projectRoot, "architecture")
}

var archImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Read architecture/{principles,patterns,standards}.json into the Store",
	Args:  cobra.NoArgs,
	RunE:  runArchImport,
}

func init() {
	archCmd.AddCommand(archImportCmd)
}

func runArchImport(cmd *cobra.Command, args []string) error {
	srv, err := openServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx := cmd.Context()
	imported := 0
	for _, kind := range archBlobKinds {
		path := filepath.Join(archDir(), string(kind)+".json")
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("read %s: %w", path, err)
		}
		if err := srv.Store.SetArchitectureBlob(ctx, kind, string(data)); err != nil {
			return fmt.Errorf("store %s blob: %w", kind, err)
		}
		imported++
	}
	fmt.Printf(good+"✓ imported %d architecture blob(s)"+reset+"\n", imported)
	return nil
}

var archExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the Store's architecture blobs to architecture/{principles,patterns,standards}.json",
	Args:  cobra.NoArgs,
	RunE:  runArchExport,
}

func init() {
	archCmd.AddCommand(archExportCmd)
}

func runArchExport(cmd *cobra.Command, args []string) error {
	srv, err := openServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx := cmd.Context()
	if err := os.MkdirAll(archDir(), 0o755); err != nil {
		return fmt.Errorf("create architecture directory: %w", err)
	}

	exported := 0
	for _, kind := range archBlobKinds {
		blob, err := srv.Store.GetArchitectureBlob(ctx, kind)
		if err != nil {
			return fmt.Errorf("read %s blob: %w", kind, err)
		}
		if blob == nil {
			continue
		}
		path := filepath.Join(archDir(), string(kind)+".json")
		if err := os.WriteFile(path, []byte(blob.Payload), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		exported++
	}
	fmt.Printf(good+"✓ exported %d architecture blob(s) to %s"+reset+"\n", exported, archDir())
	return nil
}
