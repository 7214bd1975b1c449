package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/sigilgate/internal/config"
	"github.com/nvandessel/sigilgate/internal/constants"
	"github.com/nvandessel/sigilgate/internal/store"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize sigilgate in the current directory",
		Long: `Create the .sigilgate directory with a default config.yaml and an empty
sigil catalog. An existing config is left untouched unless --force is given.

Examples:
  sigilgate init            # Initialize <root>/.sigilgate
  sigilgate init --global   # Initialize ~/.sigilgate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			globalInit, _ := cmd.Flags().GetBool("global")
			force, _ := cmd.Flags().GetBool("force")
			jsonOut, _ := cmd.Flags().GetBool("json")

			dir := store.LocalPath(root)
			scope := constants.ScopeLocal
			if globalInit {
				var err error
				if dir, err = store.GlobalPath(); err != nil {
					return err
				}
				scope = constants.ScopeGlobal
			}

			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create %s directory: %w", constants.DirName, err)
			}

			configPath := filepath.Join(dir, constants.ConfigFile)
			wroteConfig := false
			if _, err := os.Stat(configPath); os.IsNotExist(err) || force {
				if err := config.Default().Save(configPath); err != nil {
					return err
				}
				wroteConfig = true
			}

			catalog, err := store.NewSQLiteCatalog(dir, scope)
			if err != nil {
				return fmt.Errorf("failed to create sigil catalog: %w", err)
			}
			catalogPath := catalog.Path()
			if err := catalog.Close(); err != nil {
				return fmt.Errorf("failed to close sigil catalog: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"status":         "initialized",
					"path":           dir,
					"scope":          scope,
					"config":         configPath,
					"config_written": wroteConfig,
					"catalog":        catalogPath,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Initialized %s (%s)\n", dir, scope)
			if wroteConfig {
				fmt.Fprintf(out, "  config:  %s\n", configPath)
			} else {
				fmt.Fprintf(out, "  config:  %s (kept existing)\n", configPath)
			}
			fmt.Fprintf(out, "  catalog: %s\n", catalogPath)
			return nil
		},
	}

	cmd.Flags().Bool("global", false, "Initialize the global ~/.sigilgate directory")
	cmd.Flags().Bool("force", false, "Overwrite an existing config.yaml with defaults")
	return cmd
}
