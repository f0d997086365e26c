package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lineage/internal/export"
	"github.com/sells-group/lineage/internal/model"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export lineage for offline review",
}

var exportReviewCmd = &cobra.Command{
	Use:   "review <file.xlsx>",
	Short: "Write low-confidence entries to an XLSX review workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer e.Close()

		_, threshold := e.Service.Quality.Thresholds()
		if cmd.Flags().Changed("threshold") {
			threshold, _ = cmd.Flags().GetFloat64("threshold")
		}
		tableName, _ := cmd.Flags().GetString("table")
		limit, _ := cmd.Flags().GetInt("limit")

		res, err := export.WriteReview(ctx, e.Service, model.LowConfidenceQuery{
			Threshold: threshold,
			Table:     tableName,
			Limit:     limit,
		}, args[0])
		if err != nil {
			return eris.Wrap(err, "export review")
		}
		return render(cmd.OutOrStdout(), res, reviewTable(res))
	},
}

func reviewTable(res *export.ReviewResult) func(table.Writer) {
	return func(t table.Writer) {
		t.AppendRows([]table.Row{
			{"File", res.Path},
			{"Threshold", score(res.Threshold)},
			{"Entries", count(int64(res.Entries))},
			{"Orphaned", fmt.Sprintf("%d", res.Orphans)},
		})
	}
}

func init() {
	exportReviewCmd.Flags().Float64("threshold", 0, "confidence threshold (default quality.low_threshold)")
	exportReviewCmd.Flags().String("table", "", "only entries for this table")
	exportReviewCmd.Flags().Int("limit", 0, "max number of entries (0 for all)")

	exportCmd.AddCommand(exportReviewCmd)
	rootCmd.AddCommand(exportCmd)
}
