package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewImportCmd creates the import subcommand. It prints the import report
// as JSON, also when the import fails.
func NewImportCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "import <nodeset-file>...",
		Short:        "Import NodeSet2 files and the models they require",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFlag(cmd))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			var o overrides
			if cmd.Flags().Changed("tenant") {
				tenant, _ := cmd.Flags().GetString("tenant")
				o.tenant = &tenant
			}
			if cmd.Flags().Changed("fail-on-already-imported") {
				fail, _ := cmd.Flags().GetBool("fail-on-already-imported")
				o.failOnAlreadyImported = &fail
			}

			payloads := make([][]byte, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading nodeset: %w", err)
				}
				payloads = append(payloads, data)
			}

			ctx := cmd.Context()
			e, err := openEnv(ctx, cfg, version, cmd.ErrOrStderr(), o)
			if err != nil {
				return err
			}
			defer e.Close()

			report, importErr := e.designer.Import(ctx, payloads)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("encoding report: %w", err)
			}
			if importErr != nil {
				return fmt.Errorf("import failed: %w", importErr)
			}
			return nil
		},
	}

	cmd.Flags().String("tenant", "", "Tenant to import for (overrides import.tenant)")
	cmd.Flags().Bool("fail-on-already-imported", false, "Fail when every file is already cached at the same or a newer publication")

	return cmd
}
