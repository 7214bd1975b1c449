package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/sigilgate/internal/constants"
	"github.com/nvandessel/sigilgate/internal/sanitize"
	"github.com/nvandessel/sigilgate/internal/sigil"
	"github.com/nvandessel/sigilgate/internal/store"
)

// sigilFile is the YAML form accepted by catalog add --file.
type sigilFile struct {
	Description string         `yaml:"description,omitempty"`
	Anchors     []sigil.Anchor `yaml:"anchors"`
	Edges       []sigil.Edge   `yaml:"edges,omitempty"`
}

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the sigil catalog",
		Long: `Save, list, show and remove named sigils.

Sigils are stored in SQLite: <root>/.sigilgate/sigils.db for the project and
~/.sigilgate/sigils.db globally. A project sigil shadows a global one with
the same name.

Examples:
  sigilgate catalog add spiral --file spiral.yaml
  sigilgate catalog add zz --zigzag 6 --step 80 --amplitude 60 --scope global
  sigilgate catalog list --scope both
  sigilgate catalog show spiral
  sigilgate catalog remove spiral
  sigilgate catalog export --scope both
  sigilgate catalog import ~/.sigilgate/backups/sigilgate-catalog-<ts>.json.gz --mode merge
  sigilgate catalog archives --verify`,
	}

	cmd.PersistentFlags().String("scope", "local", "Catalog scope: local, global, or both (reads only)")
	cmd.AddCommand(
		newCatalogAddCmd(),
		newCatalogListCmd(),
		newCatalogShowCmd(),
		newCatalogRemoveCmd(),
		newCatalogExportCmd(),
		newCatalogImportCmd(),
		newCatalogArchivesCmd(),
	)
	return cmd
}

// openCatalog opens the multi-scope catalog writing to the --scope flag.
// Reads always see both scopes.
func openCatalog(cmd *cobra.Command, writable bool) (*store.MultiCatalog, constants.Scope, error) {
	root, _ := cmd.Flags().GetString("root")
	scopeName, _ := cmd.Flags().GetString("scope")

	scope, err := constants.ParseScope(scopeName)
	if err != nil {
		return nil, "", err
	}
	writeScope := scope
	if !scope.Writable() {
		if writable {
			return nil, "", fmt.Errorf("scope both is read-only; choose local or global")
		}
		writeScope = constants.ScopeLocal
	}

	catalog, err := store.NewMultiCatalog(root, writeScope)
	if err != nil {
		return nil, "", fmt.Errorf("open catalog: %w", err)
	}
	return catalog, scope, nil
}

func newCatalogAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add or replace a sigil",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			file, _ := cmd.Flags().GetString("file")
			points, _ := cmd.Flags().GetInt("zigzag")
			step, _ := cmd.Flags().GetFloat64("step")
			amplitude, _ := cmd.Flags().GetFloat64("amplitude")
			description, _ := cmd.Flags().GetString("description")

			name := sanitize.SanitizeSigilName(args[0])
			if name == "" {
				return fmt.Errorf("invalid sigil name %q: use letters, digits, '-' or '_'", args[0])
			}
			rec := store.SigilRecord{Name: name}
			switch {
			case file != "" && points > 0:
				return fmt.Errorf("--file and --zigzag are mutually exclusive")
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read sigil file: %w", err)
				}
				var sf sigilFile
				if err := yaml.Unmarshal(data, &sf); err != nil {
					return fmt.Errorf("parse sigil file: %w", err)
				}
				rec.Anchors = sf.Anchors
				rec.Edges = sf.Edges
				rec.Description = sf.Description
			case points > 0:
				rec.Anchors = sigil.Zigzag(points, step, amplitude)
			default:
				return fmt.Errorf("one of --file or --zigzag is required")
			}
			if description != "" {
				rec.Description = description
			}
			rec.Description = sanitize.SanitizeDescription(rec.Description)

			catalog, scope, err := openCatalog(cmd, true)
			if err != nil {
				return err
			}
			defer catalog.Close()

			rec.Scope = scope
			id, err := catalog.Save(cmd.Context(), rec)
			if err != nil {
				return fmt.Errorf("save sigil: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"status": "saved",
					"id":     id,
					"name":   rec.Name,
					"scope":  scope,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved sigil %q (%s) to %s catalog\n", rec.Name, id, scope)
			return nil
		},
	}

	cmd.Flags().StringP("file", "f", "", "YAML file with anchors (and optional edges)")
	cmd.Flags().Int("zigzag", 0, "Generate a zig-zag with this many anchors")
	cmd.Flags().Float64("step", constants.DefaultSigilStep, "Zig-zag horizontal step")
	cmd.Flags().Float64("amplitude", constants.DefaultSigilAmplitude, "Zig-zag vertical amplitude")
	cmd.Flags().String("description", "", "Human-readable description")
	return cmd
}

func newCatalogListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sigils",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			catalog, scope, err := openCatalog(cmd, false)
			if err != nil {
				return err
			}
			defer catalog.Close()

			recs, err := catalog.ListScope(cmd.Context(), scope)
			if err != nil {
				return err
			}

			if jsonOut {
				if recs == nil {
					recs = []store.SigilRecord{}
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"sigils": recs, "count": len(recs)})
			}
			if len(recs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No sigils in %s catalog.\n", scope)
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSCOPE\tANCHORS\tUPDATED\tDESCRIPTION")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", r.Name, r.Scope, len(r.Anchors),
					r.UpdatedAt.Format("2006-01-02 15:04"), r.Description)
			}
			return tw.Flush()
		},
	}
}

func newCatalogShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name-or-id>",
		Short: "Show a sigil",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			catalog, _, err := openCatalog(cmd, false)
			if err != nil {
				return err
			}
			defer catalog.Close()

			rec, err := catalog.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), rec)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:    %s\n", rec.Name)
			fmt.Fprintf(out, "ID:      %s\n", rec.ID)
			fmt.Fprintf(out, "Scope:   %s\n", rec.Scope)
			if rec.Description != "" {
				fmt.Fprintf(out, "About:   %s\n", rec.Description)
			}
			fmt.Fprintf(out, "Updated: %s\n", rec.UpdatedAt.Format("2006-01-02 15:04:05"))
			graph, err := rec.Graph()
			if err != nil {
				return fmt.Errorf("sigil %q: %w", rec.Name, err)
			}
			fmt.Fprintln(out, "Anchors:")
			for i, a := range graph.Anchors() {
				role := ""
				switch {
				case a.IsEntry:
					role = " (entry)"
				case a.IsExit:
					role = " (exit)"
				}
				fmt.Fprintf(out, "  %2d  %-10s (%.1f, %.1f)%s\n", i, a.ID, a.Pos.X, a.Pos.Y, role)
			}
			if len(rec.Edges) > 0 {
				fmt.Fprintln(out, "Edges:")
				for i, e := range rec.Edges {
					fmt.Fprintf(out, "  %2d  %d -> %d\n", i, e.From, e.To)
				}
			}
			return nil
		},
	}
}

func newCatalogRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name-or-id>",
		Short: "Remove a sigil",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			catalog, _, err := openCatalog(cmd, false)
			if err != nil {
				return err
			}
			defer catalog.Close()

			if err := catalog.Delete(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return err
				}
				return fmt.Errorf("remove sigil: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"status": "removed", "sigil": args[0]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed sigil %q\n", args[0])
			return nil
		},
	}
}
