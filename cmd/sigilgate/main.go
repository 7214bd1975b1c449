package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/sigilgate/internal/config"
	"github.com/nvandessel/sigilgate/internal/logging"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sigilgate",
		Short: "Sigil gate - gesture verification for onboarding flows",
		Long: `sigilgate verifies that a user traced a sigil (an ordered path of anchor
points) within spatial tolerance and a time budget, and sequences the
onboarding stages that follow.

It can replay scripted gestures, keep a catalog of sigils, and expose a
live onboarding session to agents over MCP.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")
	rootCmd.PersistentFlags().String("config", "", "Config file (default: ~/.sigilgate/config.yaml then <root>/.sigilgate/config.yaml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newConfigCmd(),
		newValidateCmd(),
		newGraphCmd(),
		newReplayCmd(),
		newCatalogCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"version": version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sigilgate version %s\n", version)
			return nil
		},
	}
}

// loadSettings returns the effective configuration: --config when given,
// otherwise the layered defaults for --root.
func loadSettings(cmd *cobra.Command) (*config.SigilgateConfig, error) {
	root, _ := cmd.Flags().GetString("root")
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.SigilgateConfig
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load(root)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newLogger writes leveled logs to the command's stderr.
func newLogger(cmd *cobra.Command, cfg *config.SigilgateConfig) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
