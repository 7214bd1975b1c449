package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/sigilgate/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Run an MCP server exposing an onboarding session over stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout.

The server drives one onboarding session at a time. Clients start it with
sigil_activate, feed pointer events with sigil_pointer and follow the
session with sigil_state and stage_state. Logs go to stderr; tool calls are
recorded without their coordinates in .sigilgate/audit.jsonl.

When metrics are enabled in the config, Prometheus metrics are served on
metrics.addr while the server runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			absRoot, err := filepath.Abs(root)
			if err != nil {
				return fmt.Errorf("resolve root: %w", err)
			}

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if enabled, _ := cmd.Flags().GetBool("metrics"); enabled {
				cfg.Metrics.Enabled = true
			}
			logger := newLogger(cmd, cfg)

			server, err := mcp.NewServer(&mcp.Config{
				Name:     "sigilgate",
				Version:  version,
				Root:     absRoot,
				Settings: cfg,
				Logger:   logger,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			logger.Info("mcp server starting", "root", absRoot, "version", version)
			if err := server.Run(cmd.Context()); err != nil {
				return fmt.Errorf("mcp server: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().Bool("metrics", false, "Serve Prometheus metrics (overrides metrics.enabled)")
	return cmd
}
