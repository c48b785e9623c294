package root

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/paninifs/engine/pkg/derivation"
)

func newDeriveCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Create and inspect derivations",
	}
	cmd.AddCommand(newDeriveCreateCmd(flags), newDeriveAncestorsCmd(flags))
	return cmd
}

func newDeriveCreateCmd(flags *rootFlags) *cobra.Command {
	var (
		typeName      string
		parents       []string
		transformFile string
		author        string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Derive a new object from parents via a transformation document",
		Long: `Apply a declarative transformation (YAML or JSON) to one or more
parent objects and record the derivation in the DAG. The document
carries operation, description, changes, and an optional semantic
fingerprint under the "semantic" key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, ok := parseObjectType(typeName)
			if !ok {
				return fmt.Errorf("unknown object type %q", typeName)
			}

			raw, err := os.ReadFile(transformFile)
			if err != nil {
				return err
			}
			var doc struct {
				derivation.Transformation `yaml:",inline"`
				Semantic                  derivation.SemanticFingerprint `yaml:"semantic"`
			}
			if err := yaml.Unmarshal(raw, &doc); err != nil {
				return fmt.Errorf("parsing transformation %q: %w", transformFile, err)
			}

			s, err := flags.openStore()
			if err != nil {
				return err
			}
			manager := derivation.NewManager(s)

			childHash, _, err := manager.Create(cmd.Context(), derivation.CreateRequest{
				Parents:        parents,
				ParentType:     typ,
				Transformation: doc.Transformation,
				Semantic:       doc.Semantic,
				Author:         author,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), childHash)
			return nil
		},
	}
	cmd.Flags().StringVar(&typeName, "type", "grammar", "parent object type")
	cmd.Flags().StringArrayVar(&parents, "parent", nil, "parent exact hash (repeatable)")
	cmd.Flags().StringVarP(&transformFile, "file", "f", "", "transformation document (YAML or JSON)")
	cmd.Flags().StringVar(&author, "author", "", "derivation author")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newDeriveAncestorsCmd(flags *rootFlags) *cobra.Command {
	var maxDepth int

	cmd := &cobra.Command{
		Use:   "ancestors <exact-hash>",
		Short: "Print a derivation's ancestor hashes, nearest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.openStore()
			if err != nil {
				return err
			}
			manager := derivation.NewManager(s)

			ancestors, err := manager.Ancestors(cmd.Context(), args[0], maxDepth)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(ancestors, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "walk depth bound (0 = unbounded)")
	return cmd
}
