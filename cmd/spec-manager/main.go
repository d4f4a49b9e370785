package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/database"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/models"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/repository"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/server"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/services"
)

var (
	databaseURL string
	activeOnly  bool
	importToken string
	logger      = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "spec-manager",
	Short: "Manage the OpenAPI documents stored in PostgreSQL",
	Long: `spec-manager stores OpenAPI documents in the openapi_specs table. The bridge serves a
stored document when started with a db:<name> spec location.`,
	Example: `  spec-manager import weather.yaml weather --token "Bearer abc"
  spec-manager list --active
  spec-manager deactivate 1
  openapi-mcp-bridge serve --spec db:weather`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored specs",
		Args:  cobra.NoArgs,
		RunE: withService(func(ctx context.Context, svc *services.SpecService, cmd *cobra.Command, _ []string) error {
			specs, err := svc.List(ctx, activeOnly)
			if err != nil {
				return fmt.Errorf("failed to get specs: %w", err)
			}
			printSpecs(cmd.OutOrStdout(), specs)
			return nil
		}),
	}
	listCmd.Flags().BoolVar(&activeOnly, "active", false, "only active specs")

	importCmd := &cobra.Command{
		Use:   "import <file> [name]",
		Short: "Import a spec file; the name defaults to the file name",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withService(func(ctx context.Context, svc *services.SpecService, cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 2 {
				name = args[1]
			}
			var token *string
			if importToken != "" {
				token = &importToken
			}
			stored, err := svc.ImportFile(ctx, args[0], name, token)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Imported %s as '%s' (id %d)\n", args[0], stored.Name, stored.ID)
			return nil
		}),
	}
	importCmd.Flags().StringVar(&importToken, "token", "", "credential forwarded to the API for this spec")

	importDirCmd := &cobra.Command{
		Use:   "import-dir [dir]",
		Short: "Import every .yaml, .yml and .json file in a directory (default ./specs)",
		Args:  cobra.MaximumNArgs(1),
		RunE: withService(func(ctx context.Context, svc *services.SpecService, cmd *cobra.Command, args []string) error {
			dir := "./specs"
			if len(args) == 1 {
				dir = args[0]
			}
			files, err := specFiles(dir)
			if err != nil {
				return err
			}
			imported := 0
			for _, file := range files {
				stored, err := svc.ImportFile(ctx, file, "", nil)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to import %s: %v\n", filepath.Base(file), err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Imported %s as '%s'\n", filepath.Base(file), stored.Name)
				imported++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nImport completed: %d of %d specs imported\n", imported, len(files))
			return nil
		}),
	}

	activateCmd := &cobra.Command{
		Use:   "activate <id>",
		Short: "Activate a spec",
		Args:  cobra.ExactArgs(1),
		RunE:  withID(func(ctx context.Context, svc *services.SpecService, id int) error { return svc.SetActive(ctx, id, true) }, "activated"),
	}
	deactivateCmd := &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Deactivate a spec",
		Args:  cobra.ExactArgs(1),
		RunE:  withID(func(ctx context.Context, svc *services.SpecService, id int) error { return svc.SetActive(ctx, id, false) }, "deactivated"),
	}
	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a spec",
		Args:  cobra.ExactArgs(1),
		RunE:  withID(func(ctx context.Context, svc *services.SpecService, id int) error { return svc.Delete(ctx, id) }, "deleted"),
	}

	setTokenCmd := &cobra.Command{
		Use:   "set-token <id> [token]",
		Short: "Set or clear the credential stored with a spec",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withService(func(ctx context.Context, svc *services.SpecService, cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			token := ""
			if len(args) == 2 {
				token = args[1]
			}
			if err := svc.SetToken(ctx, id, token); err != nil {
				return err
			}
			if token == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared token of spec %d\n", id)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Set token of spec %d to %s\n", id, server.MaskSensitive(token))
			}
			return nil
		}),
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the openapi_specs table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := database.Open(cmd.Context(), databaseURL, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Migrations applied")
			return nil
		},
	}

	rootCmd.AddCommand(listCmd, importCmd, importDirCmd, activateCmd, deactivateCmd, deleteCmd, setTokenCmd, migrateCmd)
}

type serviceFunc func(ctx context.Context, svc *services.SpecService, cmd *cobra.Command, args []string) error

// withService opens the database, runs migrations and hands fn a SpecService.
func withService(fn serviceFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(cmd.Context(), databaseURL, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		return fn(cmd.Context(), newService(db), cmd, args)
	}
}

func newService(db *sql.DB) *services.SpecService {
	return services.NewSpecService(repository.NewOpenAPISpecRepository(db))
}

func withID(fn func(ctx context.Context, svc *services.SpecService, id int) error, verb string) func(*cobra.Command, []string) error {
	return withService(func(ctx context.Context, svc *services.SpecService, cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := fn(ctx, svc, id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Spec %d %s\n", id, verb)
		return nil
	})
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid spec ID: %s", s)
	}
	return id, nil
}

// specFiles lists the spec documents directly inside dir, sorted by name.
func specFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read specs directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".json":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func printSpecs(w io.Writer, specs []*models.OpenAPISpec) {
	if len(specs) == 0 {
		fmt.Fprintln(w, "No specs found in the database.")
		return
	}

	fmt.Fprintf(w, "%-4s %-20s %-30s %-10s %-8s %-8s %s\n", "ID", "Name", "Title", "Version", "Active", "Format", "Has Token")
	fmt.Fprintln(w, strings.Repeat("-", 96))
	for _, spec := range specs {
		hasToken := "No"
		if spec.Token() != "" {
			hasToken = "Yes"
		}
		fmt.Fprintf(w, "%-4d %-20s %-30s %-10s %-8t %-8s %s\n",
			spec.ID,
			truncate(spec.Name, 17),
			truncate(deref(spec.Title), 27),
			truncate(deref(spec.Version), 7),
			spec.Active(),
			deref(spec.FileFormat),
			hasToken)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
