package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/ratecal/internal/analyze"
	"github.com/derickschaefer/ratecal/internal/chart"
	"github.com/derickschaefer/ratecal/internal/model"
	"github.com/derickschaefer/ratecal/internal/timeaxis"
)

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Render rates or occupancy as an ASCII chart",
	Long: `Chart commands load every room category for the range and draw to the
terminal. Nights without data appear as gaps, not zeros.`,
}

// ─── chart plot ──────────────────────────────────────────────────────────────

var (
	chartPlotQuery  queryFlags
	chartPlotRoom   string
	chartPlotPlan   int
	chartPlotAvail  bool
	chartPlotWidth  int
	chartPlotHeight int
)

var chartPlotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Plot nightly rates (or availability) of one room category",
	Long: `Renders one multi-line chart per rate plan of the chosen room, with
Y-axis rate labels and X-axis dates. With --availability the room's
available units are plotted instead.

Width auto-detects from $COLUMNS (falls back to 80).`,
	Example: `  ratecal chart plot --property 7 --room deluxe-king
  ratecal chart plot --property 7 --room deluxe-king --plan 3 --height 8
  ratecal chart plot --from june.jsonl --availability`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		q, err := chartPlotQuery.resolve(deps.Config)
		if err != nil {
			return err
		}
		g, err := loadGrid(cmd.Context(), deps, q, 0, 0, true)
		if err != nil {
			return err
		}
		if err := requireComplete(g, "chart"); err != nil {
			return err
		}
		room, err := pickRoom(g.Rooms(), chartPlotRoom)
		if err != nil {
			return err
		}

		w, closeFn, err := outputWriter(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if err := plotRoom(w, g.Axis(), room); err != nil {
			closeFn()
			return err
		}
		return closeFn()
	},
}

func plotRoom(w io.Writer, axis *timeaxis.Axis, room model.RoomCategory) error {
	opts := chart.PlotOptions{Width: chartPlotWidth, Height: chartPlotHeight}
	if chartPlotAvail {
		return chart.Plot(w, room.Name+" available", chart.AvailabilitySeries(axis, room), opts)
	}

	plotted := 0
	for _, plan := range room.RatePlans {
		if chartPlotPlan != 0 && plan.ID != chartPlotPlan {
			continue
		}
		if plotted > 0 {
			fmt.Fprintln(w)
		}
		title := fmt.Sprintf("%s · %s", room.Name, plan.Name)
		if err := chart.Plot(w, title, chart.RateSeries(axis, plan), opts); err != nil {
			return fmt.Errorf("plan %d: %w", plan.ID, err)
		}
		plotted++
	}
	if plotted == 0 {
		return fmt.Errorf("room %q has no rate plan %d", room.ID, chartPlotPlan)
	}
	return nil
}

// pickRoom returns the room with id, or the first room when id is empty.
func pickRoom(rooms []model.RoomCategory, id string) (model.RoomCategory, error) {
	if len(rooms) == 0 {
		return model.RoomCategory{}, fmt.Errorf("no room categories for this property")
	}
	if id == "" {
		return rooms[0], nil
	}
	for _, r := range rooms {
		if r.ID == id {
			return r, nil
		}
	}
	return model.RoomCategory{}, fmt.Errorf("room %q not found among %d room categories", id, len(rooms))
}

// ─── chart occupancy ─────────────────────────────────────────────────────────

var (
	chartOccQuery   queryFlags
	chartOccWidth   int
	chartOccMaxBars int
)

var chartOccupancyCmd = &cobra.Command{
	Use:   "occupancy",
	Short: "Bar chart of booked percentage per room category",
	Example: `  ratecal chart occupancy --property 7 --start 2024-06-01 --end 2024-06-30
  ratecal chart occupancy --from june.jsonl --max-bars 10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		q, err := chartOccQuery.resolve(deps.Config)
		if err != nil {
			return err
		}
		g, err := loadGrid(cmd.Context(), deps, q, 0, 0, true)
		if err != nil {
			return err
		}
		if err := requireComplete(g, "chart"); err != nil {
			return err
		}
		report := analyze.Summarize(q, g.Rooms())

		w, closeFn, err := outputWriter(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		title := fmt.Sprintf("Booked %% · property %d · %s to %s",
			q.PropertyID, q.Start.Format("2006-01-02"), q.End.Format("2006-01-02"))
		if err := chart.Bar(w, title, chart.OccupancyItems(report), chart.BarOptions{
			Width:   chartOccWidth,
			MaxBars: chartOccMaxBars,
			Unit:    "%",
		}); err != nil {
			closeFn()
			return err
		}
		return closeFn()
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(chartCmd)
	chartCmd.AddCommand(chartPlotCmd)
	chartCmd.AddCommand(chartOccupancyCmd)

	addQueryFlags(chartPlotCmd, &chartPlotQuery)
	chartPlotCmd.Flags().StringVar(&chartPlotRoom, "room", "", "room category ID (default: first room)")
	chartPlotCmd.Flags().IntVar(&chartPlotPlan, "plan", 0, "rate plan ID (default: every plan of the room)")
	chartPlotCmd.Flags().BoolVar(&chartPlotAvail, "availability", false, "plot available units instead of rates")
	chartPlotCmd.Flags().IntVar(&chartPlotWidth, "width", 0,
		"chart width in characters (default: auto-detect from $COLUMNS, fallback 80)")
	chartPlotCmd.Flags().IntVar(&chartPlotHeight, "height", 12, "chart height in rows")

	addQueryFlags(chartOccupancyCmd, &chartOccQuery)
	chartOccupancyCmd.Flags().IntVar(&chartOccWidth, "width", 0,
		"total chart width in characters (default: auto-detect from $COLUMNS, fallback 80)")
	chartOccupancyCmd.Flags().IntVar(&chartOccMaxBars, "max-bars", 0, "maximum bars to render (0 = no limit)")
}
