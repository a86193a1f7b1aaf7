package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/ratecal/internal/model"
	"github.com/derickschaefer/ratecal/internal/render"
)

var (
	fetchQuery queryFlags
	fetchAll   bool
	fetchStore bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch room categories and warm the local store",
	Long: `Fetch room category pages for a property and list the rooms.

Without --all only the first page is fetched. Every fetched page is written
to the local store unless --no-cache is set, so later views of the same
range load from disk. Use --store to fail instead of fetching uncached when
the store cannot be opened.`,
	Example: `  ratecal fetch --property 7 --all
  ratecal fetch --property 7 --start 2024-06-01 --all --store
  ratecal fetch --property 7 --all --refresh`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		if fetchStore {
			if deps.Config.NoCache {
				return fmt.Errorf("--store and --no-cache are mutually exclusive")
			}
			if err := deps.RequireStore(); err != nil {
				return err
			}
		}

		q, err := fetchQuery.resolve(deps.Config)
		if err != nil {
			return err
		}
		started := time.Now()

		// Height 0 keeps the sentinel out of view, so only --all pages further.
		g, err := loadGrid(cmd.Context(), deps, q, 0, 0, fetchAll)
		if err != nil {
			return err
		}

		win := g.Window()
		result := newResult(model.KindRooms, "fetch", g.Rooms())
		result.Warnings = g.Warnings()
		result.Status = render.SentinelStatus(win.Sentinel)
		result.Stats = statsFor(deps, g, started)
		if fetchStore && deps.Store != nil {
			result.Status += fmt.Sprintf("\n✓ Stored %d pages in %s", result.Stats.Pages, deps.Store.Path())
		}
		return emit(cmd, deps, result)
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	addQueryFlags(fetchCmd, &fetchQuery)
	fetchCmd.Flags().BoolVar(&fetchAll, "all", false, "fetch every page")
	fetchCmd.Flags().BoolVar(&fetchStore, "store", false, "require the local store")
}
