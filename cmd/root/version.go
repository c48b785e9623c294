package root

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paninifs/engine/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the panini version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "panini %s (%s)\n", version.Version, version.Commit)
			return nil
		},
	}
}
