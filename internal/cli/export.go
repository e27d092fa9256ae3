package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cesmii/profiledesigner/export"
	"github.com/cesmii/profiledesigner/nodeset"
	"github.com/cesmii/profiledesigner/profile"
)

// NewExportCmd creates the export subcommand.
func NewExportCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "export <namespace-uri>",
		Short:        "Export a namespace from the profile store as NodeSet2 XML",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			namespace := args[0]
			cfg, err := loadConfig(configFlag(cmd))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			req := export.Request{Namespace: namespace}
			items, _ := cmd.Flags().GetStringSlice("item")
			for _, local := range items {
				req.Items = append(req.Items, profile.ItemKey{
					NodeID:    nodeset.ExpandedID(namespace, local),
					Namespace: namespace,
				})
			}

			ctx := cmd.Context()
			e, err := openEnv(ctx, cfg, version, cmd.ErrOrStderr(), overrides{})
			if err != nil {
				return err
			}
			defer e.Close()

			out, err := e.designer.Export(ctx, req)
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			path, _ := cmd.Flags().GetString("output")
			if path == "" || path == "-" {
				_, err = cmd.OutOrStdout().Write(out)
				return err
			}
			if err := os.WriteFile(path, out, 0o644); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}
			e.logger.Info("exported namespace", "namespace", namespace, "file", path, "bytes", len(out))
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringSlice("item", nil, "Export only these node ids of the namespace (e.g. i=1000); repeatable")

	return cmd
}
