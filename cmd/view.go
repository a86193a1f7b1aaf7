package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/ratecal/internal/model"
	"github.com/derickschaefer/ratecal/internal/render"
	"github.com/derickschaefer/ratecal/internal/scroll"
	"github.com/derickschaefer/ratecal/internal/util"
)

// viewSource is the pane id CLI-requested scrolls are reported under.
const viewSource scroll.PaneID = "cli"

var (
	viewQuery      queryFlags
	viewLeft       int
	viewTop        int
	viewWidth      int
	viewHeight     int
	viewAll        bool
	viewScrollDate string
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Print the visible window of the rate calendar",
	Long: `Load a property's calendar into a virtual viewport and print only the
cells that would be on screen.

The viewport is --width character columns of dates by --height lines of
rooms. Each room takes one inventory line, one line per rate plan and a
separator. Scrolling to the bottom of the loaded rooms fetches the next
page, exactly as the interactive view does.

Inventory cells show available units, "x" when closed for sale and "—"
when the backend returned no entry for that night.`,
	Example: `  ratecal view --property 7 --start 2024-06-01 --end 2024-08-31
  ratecal view --property 7 --scroll-date 2024-07-15 --width 112
  ratecal view --property 7 --scroll-top 40 --format csv
  ratecal view --from rooms.jsonl --all --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		q, err := viewQuery.resolve(deps.Config)
		if err != nil {
			return err
		}
		started := time.Now()

		width := viewWidth
		if width <= 0 {
			width = 14 * deps.Config.CellWidth
		}
		g, err := loadGrid(cmd.Context(), deps, q, width, viewHeight, viewAll)
		if err != nil {
			return err
		}

		left := viewLeft
		if viewScrollDate != "" {
			d, err := util.ParseDate(viewScrollDate)
			if err != nil {
				return fmt.Errorf("invalid --scroll-date: %w", err)
			}
			i := g.Axis().IndexOf(d)
			if i < 0 {
				return fmt.Errorf("--scroll-date %s is outside the range", viewScrollDate)
			}
			left = i * deps.Config.CellWidth
		}
		if left > 0 || viewTop > 0 {
			ctx, cancel := contextWithLoadTimeout(cmd, deps)
			defer cancel()
			if err := g.ScrollTo(ctx, viewSource, left, viewTop); err != nil {
				return err
			}
		}

		win := g.Window()
		result := newResult(model.KindWindow, "view", &win)
		result.Warnings = g.Warnings()
		result.Status = render.SentinelStatus(win.Sentinel)
		result.Stats = statsFor(deps, g, started)
		return emit(cmd, deps, result)
	},
}

func init() {
	rootCmd.AddCommand(viewCmd)
	addQueryFlags(viewCmd, &viewQuery)
	viewCmd.Flags().IntVar(&viewLeft, "scroll-left", 0, "horizontal scroll offset in character columns")
	viewCmd.Flags().IntVar(&viewTop, "scroll-top", 0, "vertical scroll offset in lines")
	viewCmd.Flags().StringVar(&viewScrollDate, "scroll-date", "", "scroll so this date is the first column (YYYY-MM-DD)")
	viewCmd.Flags().IntVar(&viewWidth, "width", 0, "viewport width in character columns (default: 14 cells)")
	viewCmd.Flags().IntVar(&viewHeight, "height", 30, "viewport height in lines")
	viewCmd.Flags().BoolVar(&viewAll, "all", false, "load every page before rendering")
}
