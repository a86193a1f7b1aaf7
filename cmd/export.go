package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/derickschaefer/ratecal/internal/pipeline"
	"github.com/derickschaefer/ratecal/internal/store"
)

var exportQuery queryFlags

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every room category for a range as JSONL",
	Long: `Fetch all pages for a range and write one room category per line in the
backend's wire format. The file can be browsed offline with --from.

When writing to a file the export is recorded in the local store; list past
exports with 'ratecal cache exports'.`,
	Example: `  ratecal export --property 7 --start 2024-06-01 --out june.jsonl
  ratecal export --property 7 | jq .name
  ratecal view --from june.jsonl`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		q, err := exportQuery.resolve(deps.Config)
		if err != nil {
			return err
		}
		started := time.Now()

		g, err := loadGrid(cmd.Context(), deps, q, 0, 0, true)
		if err != nil {
			return err
		}
		if err := requireComplete(g, "export"); err != nil {
			return err
		}

		w, closeFn, err := outputWriter(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if err := pipeline.WriteJSONL(w, g.Rooms()); err != nil {
			closeFn()
			return err
		}
		if err := closeFn(); err != nil {
			return err
		}

		stats := statsFor(deps, g, started)
		if globalFlags.Out != "" && deps.Store != nil {
			rec := store.Export{
				ID:    uuid.NewString(),
				Query: q,
				Path:  globalFlags.Out,
				Rooms: stats.Items,
				Pages: stats.Pages,
			}
			if err := deps.Store.PutExport(rec); err != nil {
				return fmt.Errorf("recording export: %w", err)
			}
		}
		for _, warn := range g.Warnings() {
			fmt.Fprintf(cmd.ErrOrStderr(), "⚠  %s\n", warn)
		}
		if !deps.Config.Quiet && globalFlags.Out != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported %d rooms (%d pages) to %s\n",
				stats.Items, stats.Pages, globalFlags.Out)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	addQueryFlags(exportCmd, &exportQuery)
}
