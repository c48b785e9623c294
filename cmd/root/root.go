// Package root wires the panini CLI: a thin surface over the store,
// the derivation manager and the grammar engine.
package root

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/paninifs/engine/pkg/config"
	"github.com/paninifs/engine/pkg/logging"
	"github.com/paninifs/engine/pkg/store"
)

type rootFlags struct {
	debugMode   bool
	logFilePath string
	storeRoot   string
	logFile     io.Closer
}

func NewRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "panini",
		Short: "panini - universal format-extraction and derivation engine",
		Long: `panini stores declarative patterns and grammars in a
content-addressed store, extracts structured metadata from arbitrary
file formats, and tracks grammar evolution as a DAG of derivations.`,
		Example: `  panini store put --type pattern png-magic.json
  panini grammar run PNG/latest image.png
  panini derive create --type grammar --parent <hash> -f transform.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if flags.storeRoot == "" {
				flags.storeRoot = cfg.StoreRoot
			}
			if flags.logFilePath == "" {
				flags.logFilePath = cfg.LogFile
			}

			level := logging.ParseLevel(cfg.LogLevel)
			if flags.debugMode {
				level = slog.LevelDebug
			}
			closer, err := logging.Setup(level, flags.logFilePath)
			if err != nil {
				return err
			}
			flags.logFile = closer
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if flags.logFile != nil {
				return flags.logFile.Close()
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVar(&flags.debugMode, "debug", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&flags.logFilePath, "log-file", "", "write logs to a rotating file")
	cmd.PersistentFlags().StringVar(&flags.storeRoot, "store", "", "content-addressed store root")

	cmd.AddCommand(
		newStoreCmd(&flags),
		newRefCmd(&flags),
		newDeriveCmd(&flags),
		newGrammarCmd(&flags),
		newExtractCmd(&flags),
		newVersionCmd(),
	)
	return cmd
}

func (f *rootFlags) openStore() (*store.Store, error) {
	return store.New(store.WithRoot(f.storeRoot))
}

func parseObjectType(s string) (store.ObjectType, bool) {
	t := store.ObjectType(s)
	return t, t.Valid()
}
