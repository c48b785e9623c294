package root

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRefCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ref",
		Short: "Manage symbolic refs",
	}
	cmd.AddCommand(newRefSetCmd(flags), newRefGetCmd(flags), newRefLsCmd(flags))
	return cmd
}

func newRefSetCmd(flags *rootFlags) *cobra.Command {
	var typeName string

	cmd := &cobra.Command{
		Use:   "set <name> <exact-hash>",
		Short: "Point a named ref at an object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, ok := parseObjectType(typeName)
			if !ok {
				return fmt.Errorf("unknown object type %q", typeName)
			}

			s, err := flags.openStore()
			if err != nil {
				return err
			}
			return s.CreateRef(args[0], typ, args[1])
		},
	}
	cmd.Flags().StringVar(&typeName, "type", "grammar", "object type")
	return cmd
}

func newRefGetCmd(flags *rootFlags) *cobra.Command {
	var typeName string

	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Resolve a named ref",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, ok := parseObjectType(typeName)
			if !ok {
				return fmt.Errorf("unknown object type %q", typeName)
			}

			s, err := flags.openStore()
			if err != nil {
				return err
			}
			exact, err := s.ResolveRef(args[0], typ)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), exact)
			return nil
		},
	}
	cmd.Flags().StringVar(&typeName, "type", "grammar", "object type")
	return cmd
}

func newRefLsCmd(flags *rootFlags) *cobra.Command {
	var typeName string

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List refs of a type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, ok := parseObjectType(typeName)
			if !ok {
				return fmt.Errorf("unknown object type %q", typeName)
			}

			s, err := flags.openStore()
			if err != nil {
				return err
			}
			refs, err := s.ListRefs(typ)
			if err != nil {
				return err
			}
			for _, ref := range refs {
				fmt.Fprintf(cmd.OutOrStdout(), "%-30s %s\n", ref.Name, ref.ExactHash)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&typeName, "type", "grammar", "object type")
	return cmd
}
