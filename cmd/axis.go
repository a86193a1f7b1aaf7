package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/ratecal/internal/model"
	"github.com/derickschaefer/ratecal/internal/timeaxis"
)

var axisQuery queryFlags

var axisCmd = &cobra.Command{
	Use:   "axis",
	Short: "Print the date axis and month groups for a range",
	Long: `Compute the time axis for a date range without contacting the backend:
one column per night and one header group per calendar month.`,
	Example: `  ratecal axis --start 2024-01-30 --end 2024-03-02
  ratecal axis --start 2024-01-01 --format jsonl`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		// The axis does not depend on a property.
		if axisQuery.property == 0 && deps.Config.PropertyID == 0 {
			axisQuery.property = offlineProperty
		}
		q, err := axisQuery.resolve(deps.Config)
		if err != nil {
			return err
		}
		axis, err := timeaxis.Build(q.Start, q.End)
		if err != nil {
			return err
		}
		result := newResult(model.KindAxis, "axis", axis)
		result.Stats.Items = axis.Len()
		result.Status = fmt.Sprintf("%d nights in %d months", axis.Len(), len(axis.Months))
		return emit(cmd, deps, result)
	},
}

func init() {
	rootCmd.AddCommand(axisCmd)
	addQueryFlags(axisCmd, &axisQuery)
}
