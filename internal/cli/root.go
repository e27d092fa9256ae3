// Package cli implements the profiledesigner commands.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root profiledesigner command with all subcommands
// registered.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "profiledesigner",
		Short:         "Import, resolve and export OPC UA NodeSet2 information models",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		Version:       version,
	}
	root.PersistentFlags().String("config", "", "Path to designer.yaml or its directory (default: search the working directory and its parents)")

	root.AddCommand(NewImportCmd(version))
	root.AddCommand(NewExportCmd(version))
	root.AddCommand(NewServeCmd(version))
	root.AddCommand(NewVersionCmd(version))
	return root
}

// configFlag returns the value of the persistent --config flag.
func configFlag(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
