package root

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/paninifs/engine/pkg/extractor"
)

func newExtractCmd(flags *rootFlags) *cobra.Command {
	var author string

	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Select a grammar for a file, run it, and store the metadata record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			s, err := flags.openStore()
			if err != nil {
				return err
			}
			driver, err := extractor.New(s)
			if err != nil {
				return err
			}

			recordHash, record, err := driver.Extract(cmd.Context(), input, author)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(record, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			fmt.Fprintf(cmd.OutOrStdout(), "record: %s\n", recordHash)
			return nil
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "record author for provenance")
	return cmd
}
