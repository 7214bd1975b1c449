package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/sigilgate/internal/config"
	"github.com/nvandessel/sigilgate/internal/constants"
	"github.com/nvandessel/sigilgate/internal/geometry"
	"github.com/nvandessel/sigilgate/internal/sigil"
	"github.com/nvandessel/sigilgate/internal/store"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and the sigil's anchor graph",
		Long: `Validate the effective configuration and the sigil it describes.

This command checks for:
  - Field rules (positive tolerance, capture radius within tolerance, ...)
  - A progress table matching the stage list
  - A traceable anchor graph (entry, exit, edges visiting every anchor once)

Examples:
  sigilgate validate                 # Validate config and configured sigil
  sigilgate validate --sigil spiral  # Also validate a catalog sigil`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			name, _ := cmd.Flags().GetString("sigil")

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			graph, err := resolveGraph(cmd.Context(), root, cfg, name)
			if err != nil {
				return err
			}
			summary := summarizeGraph(graph)
			summary["valid"] = true
			if name != "" {
				summary["sigil"] = name
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration valid: %d anchors, %d edges, path length %.1f\n",
				summary["anchors"], summary["edges"], summary["path_length"])
			return nil
		},
	}

	cmd.Flags().String("sigil", "", "Catalog sigil name or ID (default: the configured sigil)")
	return cmd
}

// resolveGraph returns the named catalog sigil, or the configured one when
// name is empty. The catalog is only opened when needed.
func resolveGraph(ctx context.Context, root string, cfg *config.SigilgateConfig, name string) (*sigil.Graph, error) {
	if name == "" {
		g, err := cfg.Graph()
		if err != nil {
			return nil, fmt.Errorf("configured sigil: %w", err)
		}
		return g, nil
	}

	catalog, err := store.NewMultiCatalog(root, constants.ScopeLocal)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer catalog.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	rec, err := catalog.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	g, err := rec.Graph()
	if err != nil {
		return nil, fmt.Errorf("sigil %q: %w", name, err)
	}
	return g, nil
}

func summarizeGraph(g *sigil.Graph) map[string]any {
	length := 0.0
	for i := 0; i < g.NumEdges(); i++ {
		from, to := g.Segment(i)
		length += geometry.Distance(from, to)
	}
	return map[string]any{
		"anchors":     len(g.Anchors()),
		"edges":       g.NumEdges(),
		"path_length": length,
		"entry":       g.Entry().Pos,
		"exit":        g.Exit().Pos,
	}
}
