package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/sigilgate/internal/visualization"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Visualize the sigil's anchor graph",
		Long: `Output the sigil's anchor graph in DOT (Graphviz) or JSON format.

Examples:
  sigilgate graph | dot -Tsvg > sigil.svg
  sigilgate graph --format json --sigil spiral`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			formatName, _ := cmd.Flags().GetString("format")
			name, _ := cmd.Flags().GetString("sigil")
			output, _ := cmd.Flags().GetString("output")

			format, err := visualization.ParseFormat(formatName)
			if err != nil {
				return err
			}

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			graph, err := resolveGraph(cmd.Context(), root, cfg, name)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer f.Close()
				w = f
			}

			switch format {
			case visualization.FormatJSON:
				if err := writeJSON(w, visualization.RenderJSON(graph, nil)); err != nil {
					return fmt.Errorf("encode JSON: %w", err)
				}
			default:
				fmt.Fprint(w, visualization.RenderDOT(graph, nil))
			}

			if output != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Graph written to %s\n", output)
			}
			return nil
		},
	}

	cmd.Flags().String("format", "dot", "Output format: dot or json")
	cmd.Flags().String("sigil", "", "Catalog sigil name or ID (default: the configured sigil)")
	cmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")
	return cmd
}
