package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/ratecal/internal/analyze"
	"github.com/derickschaefer/ratecal/internal/model"
	"github.com/derickschaefer/ratecal/internal/render"
)

var summaryQuery queryFlags

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize occupancy and rates per room category",
	Long: `Load every room category for the range and report, per room: nights,
available and booked units, booked percentage and closed nights; per rate
plan: min, median, mean, max and Friday/Saturday average rate.`,
	Example: `  ratecal summary --property 7 --start 2024-06-01 --end 2024-06-30
  ratecal summary --from rooms.jsonl --format csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		q, err := summaryQuery.resolve(deps.Config)
		if err != nil {
			return err
		}
		started := time.Now()

		g, err := loadGrid(cmd.Context(), deps, q, 0, 0, true)
		if err != nil {
			return err
		}

		report := analyze.Summarize(q, g.Rooms())
		win := g.Window()
		result := newResult(model.KindSummary, "summary", &report)
		result.Warnings = g.Warnings()
		result.Status = render.SentinelStatus(win.Sentinel)
		result.Stats = statsFor(deps, g, started)
		return emit(cmd, deps, result)
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)
	addQueryFlags(summaryCmd, &summaryQuery)
}
