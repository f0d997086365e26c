package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lineage/internal/model"
)

var findCmd = &cobra.Command{
	Use:   "find",
	Short: "Look up lineage entries",
}

// -- find record --

var findRecordCmd = &cobra.Command{
	Use:   "record <table> <record-id>",
	Short: "Show the provenance of a record, newest first",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := parseRef(args[0], args[1])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		e, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer e.Close()

		history, err := e.Service.Tracker.Provenance(ctx, ref)
		if err != nil {
			return eris.Wrap(err, "find record")
		}
		if history == nil {
			history = []model.RecordLineage{}
		}
		return render(cmd.OutOrStdout(), history, provenanceTable(history))
	},
}

// -- find source --

var findSourceCmd = &cobra.Command{
	Use:   "source <source-id>",
	Short: "List entries extracted from a source report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseIDArg(args[0], "source_report_id")
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		e, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer e.Close()

		table, _ := cmd.Flags().GetString("table")
		entries, err := e.Service.Tracker.FindBySource(ctx, id, table)
		if err != nil {
			return eris.Wrap(err, "find source")
		}
		if entries == nil {
			entries = []model.LineageEntry{}
		}
		return render(cmd.OutOrStdout(), entries, entriesTable(entries))
	},
}

// -- find low --

var findLowCmd = &cobra.Command{
	Use:   "low",
	Short: "List entries scoring below a confidence threshold",
	RunE: func(cmd *cobra.Command, _ []string) error {
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
		table, _ := cmd.Flags().GetString("table")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		entries, err := e.Service.Tracker.FindLowConfidence(ctx, model.LowConfidenceQuery{
			Threshold: threshold,
			Table:     table,
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			return eris.Wrap(err, "find low")
		}
		if entries == nil {
			entries = []model.LineageEntry{}
		}
		return render(cmd.OutOrStdout(), entries, entriesTable(entries))
	},
}

func init() {
	findSourceCmd.Flags().String("table", "", "only entries for this table")

	findLowCmd.Flags().Float64("threshold", 0, "confidence threshold (default quality.low_threshold)")
	findLowCmd.Flags().String("table", "", "only entries for this table")
	findLowCmd.Flags().Int("limit", 100, "max number of entries")
	findLowCmd.Flags().Int("offset", 0, "number of entries to skip")

	findCmd.AddCommand(findRecordCmd)
	findCmd.AddCommand(findSourceCmd)
	findCmd.AddCommand(findLowCmd)
	rootCmd.AddCommand(findCmd)
}
