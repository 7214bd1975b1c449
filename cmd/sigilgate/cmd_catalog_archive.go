package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvandessel/sigilgate/internal/backup"
	"github.com/nvandessel/sigilgate/internal/pathutil"
)

// archivePath validates a user-supplied archive path against the backup
// directories for --root.
func archivePath(cmd *cobra.Command, path string) (string, error) {
	root, _ := cmd.Flags().GetString("root")
	allowed, err := pathutil.AllowedBackupDirs(root)
	if err != nil {
		return "", fmt.Errorf("failed to determine allowed backup dirs: %w", err)
	}
	if err := pathutil.ValidateArchivePath(path, allowed); err != nil {
		return "", err
	}
	return filepath.Abs(path)
}

func newCatalogExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export sigils to an archive",
		Long: `Write the sigils in --scope to an archive file.

Default location: ~/.sigilgate/backups/sigilgate-catalog-<timestamp>.json.gz
An explicit --output must live under ~/.sigilgate/backups/ or
<root>/.sigilgate/backups/. Older archives in the same directory are pruned
by the backup retention settings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			output, _ := cmd.Flags().GetString("output")
			noCompress, _ := cmd.Flags().GetBool("no-compress")

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			retention, err := cfg.Retention()
			if err != nil {
				return fmt.Errorf("backup retention: %w", err)
			}
			compress := cfg.Backup.Compression && !noCompress

			if output == "" {
				dir, err := pathutil.GlobalBackupDir()
				if err != nil {
					return err
				}
				output = backup.GeneratePath(dir, compress)
			} else if output, err = archivePath(cmd, output); err != nil {
				return fmt.Errorf("export path rejected: %w", err)
			}

			catalog, scope, err := openCatalog(cmd, false)
			if err != nil {
				return err
			}
			defer catalog.Close()

			archive, err := backup.Export(cmd.Context(), catalog.Catalog(scope), output, compress)
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			deleted, err := backup.ApplyRetention(filepath.Dir(output), retention)
			if err != nil {
				newLogger(cmd, cfg).Warn("failed to apply archive retention", "error", err)
			}

			if jsonOut {
				var size int64
				if info, err := os.Stat(output); err == nil {
					size = info.Size()
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"path":        output,
					"scope":       scope,
					"sigil_count": len(archive.Sigils),
					"version":     archive.Version,
					"compressed":  compress,
					"size_bytes":  size,
					"pruned":      len(deleted),
				})
			}

			label := "v2/gzip"
			if !compress {
				label = "v1/json"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d sigils from %s catalog (%s)\n", len(archive.Sigils), scope, label)
			fmt.Fprintf(cmd.OutOrStdout(), "  Path: %s\n", output)
			if len(deleted) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "  Pruned %d old archives\n", len(deleted))
			}
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "Archive path (default: auto-generated in ~/.sigilgate/backups/)")
	cmd.Flags().Bool("no-compress", false, "Write a plain JSON archive")
	return cmd
}

func newCatalogImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <archive>",
		Short: "Import sigils from an archive",
		Long: `Load an archive (either format, auto-detected) into --scope.

Modes:
  merge   - keep existing sigils, skip archived ones with the same name (default)
  replace - empty the catalog first`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			modeName, _ := cmd.Flags().GetString("mode")

			mode, err := backup.ParseImportMode(modeName)
			if err != nil {
				return err
			}
			path, err := archivePath(cmd, args[0])
			if err != nil {
				return fmt.Errorf("import path rejected: %w", err)
			}

			catalog, scope, err := openCatalog(cmd, true)
			if err != nil {
				return err
			}
			defer catalog.Close()

			result, err := backup.Import(cmd.Context(), catalog.Catalog(scope), path, mode)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"path":    path,
					"scope":   scope,
					"mode":    mode,
					"added":   len(result.Added),
					"skipped": len(result.Skipped),
					"removed": result.Removed,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported into %s catalog (%s): %d added, %d skipped, %d removed\n",
				scope, mode, len(result.Added), len(result.Skipped), result.Removed)
			for _, name := range result.Skipped {
				fmt.Fprintf(cmd.OutOrStdout(), "  skipped %s (already exists)\n", name)
			}
			return nil
		},
	}

	cmd.Flags().String("mode", string(backup.ImportMerge), "Import mode: merge or replace")
	return cmd
}

func newCatalogArchivesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archives",
		Short: "List archives in the backup directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			verify, _ := cmd.Flags().GetBool("verify")
			root, _ := cmd.Flags().GetString("root")

			dirs, err := pathutil.AllowedBackupDirs(root)
			if err != nil {
				return err
			}

			type archiveRow struct {
				Path    string `json:"path"`
				Version int    `json:"version"`
				Size    int64  `json:"size_bytes"`
				Sigils  int    `json:"sigil_count"`
				Created string `json:"created"`
				Status  string `json:"status,omitempty"`
			}
			rows := []archiveRow{}
			failed := 0
			for _, dir := range dirs {
				infos, err := backup.ListArchives(dir)
				if err != nil {
					return err
				}
				for _, a := range infos {
					row := archiveRow{
						Path:    a.Path,
						Version: a.Version,
						Size:    a.Size,
						Sigils:  a.Sigils,
						Created: a.CreatedAt.Format("2006-01-02 15:04:05"),
					}
					if verify {
						row.Status = verifyArchive(a)
						if row.Status != "ok" {
							failed++
						}
					}
					rows = append(rows, row)
				}
			}

			if jsonOut {
				if err := writeJSON(cmd.OutOrStdout(), map[string]any{"archives": rows, "count": len(rows)}); err != nil {
					return err
				}
			} else if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No archives found.")
			} else {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PATH\tVERSION\tSIGILS\tSIZE\tCREATED\tSTATUS")
				for _, r := range rows {
					fmt.Fprintf(tw, "%s\tv%d\t%d\t%d\t%s\t%s\n", r.Path, r.Version, r.Sigils, r.Size, r.Created, r.Status)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d archives failed verification", failed)
			}
			return nil
		},
	}

	cmd.Flags().Bool("verify", false, "Check each archive can be read")
	return cmd
}

func verifyArchive(a backup.ArchiveInfo) string {
	var err error
	if a.Version == backup.FormatV2 {
		err = backup.VerifyChecksum(a.Path)
	} else {
		_, err = backup.Read(a.Path)
	}
	if err != nil {
		return err.Error()
	}
	return "ok"
}
