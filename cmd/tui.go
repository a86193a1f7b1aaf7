package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/ratecal/internal/loop"
	"github.com/derickschaefer/ratecal/internal/tui"
)

var tuiQuery queryFlags

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Browse the rate calendar interactively",
	Long: `Open a full-screen, scrollable rate calendar. The month and date headers
and every room pane scroll together; more rooms load as the bottom comes into
view.

Keys:
  ←/→ h/l        scroll one night
  ↑/↓ k/j        scroll one line
  pgup/pgdn      scroll one page
  home/end g/G   jump to first/last
  tab            cycle the focused pane
  r              retry a failed page
  q, esc         quit

Mouse drag and the wheel scroll as well.`,
	Example: `  ratecal tui --property 7
  ratecal tui --from june.jsonl`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		q, err := tuiQuery.resolve(deps.Config)
		if err != nil {
			return err
		}

		l := loop.New(time.Now())
		g, err := deps.NewGrid(l)
		if err != nil {
			return err
		}
		return tui.Run(cmd.Context(), g, l, q, tui.Options{
			CellWidth:     deps.Config.CellWidth,
			FrameInterval: deps.Config.FrameInterval,
			GestureGain:   deps.Config.GestureGain,
		})
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
	addQueryFlags(tuiCmd, &tuiQuery)
}
