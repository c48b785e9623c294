package root

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/paninifs/engine/pkg/grammar"
	"github.com/paninifs/engine/pkg/store"
)

func newGrammarCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grammar",
		Short: "Compile and run grammars",
	}
	cmd.AddCommand(newGrammarRunCmd(flags))
	return cmd
}

func newGrammarRunCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <grammar-ref-or-hash> <file>",
		Short: "Execute a grammar against a file and print the extracted fields",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.openStore()
			if err != nil {
				return err
			}

			grammarHash, err := resolveGrammar(s, args[0])
			if err != nil {
				return err
			}

			raw, _, err := s.Get(grammarHash, store.TypeGrammar)
			if err != nil {
				return err
			}
			compiled, err := grammar.Compile(s, raw)
			if err != nil {
				return err
			}

			input, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			result, err := compiled.Execute(cmd.Context(), input)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(map[string]any{
				"format":         result.Format,
				"version":        result.Version,
				"bytes_consumed": result.BytesConsumed,
				"extracted":      result.Extracted,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	return cmd
}

// resolveGrammar accepts either a symbolic ref ("PNG/latest") or a
// full exact hash.
func resolveGrammar(s *store.Store, identifier string) (string, error) {
	if len(identifier) == 64 && !strings.Contains(identifier, "/") {
		return identifier, nil
	}
	return s.ResolveRef(identifier, store.TypeGrammar)
}
