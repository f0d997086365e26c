package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lineage/internal/model"
)

var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Report on extraction confidence and coverage",
}

var qualityOverviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Summarize confidence across all lineage entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer e.Close()

		ov, err := e.Service.Quality.Overview(ctx)
		if err != nil {
			return eris.Wrap(err, "quality overview")
		}
		return render(cmd.OutOrStdout(), ov, overviewTable(ov))
	},
}

var qualityTimelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Show extraction volume and confidence over time",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer e.Close()

		bucket, _ := cmd.Flags().GetString("bucket")
		since, _ := cmd.Flags().GetDuration("since")
		var from time.Time
		if since > 0 {
			from = time.Now().UTC().Add(-since)
		}

		points := []model.TimelinePoint{}
		for p, err := range e.Service.Quality.Timeline(ctx, model.BucketSize(bucket), from, time.Time{}) {
			if err != nil {
				return eris.Wrap(err, "quality timeline")
			}
			points = append(points, p)
		}
		return render(cmd.OutOrStdout(), points, timelineTable(points))
	},
}

var qualityCoverageCmd = &cobra.Command{
	Use:   "coverage <table>",
	Short: "Show the share of a table's rows that have lineage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer e.Close()

		total, _ := cmd.Flags().GetInt64("total-rows")
		cov, err := e.Service.Quality.TableCoverage(ctx, args[0], total)
		if err != nil {
			return eris.Wrap(err, "quality coverage")
		}
		return render(cmd.OutOrStdout(), cov, coverageTable(cov))
	},
}

var qualityTablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Summarize lineage per table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer e.Close()

		tables, err := e.Service.Quality.TableSummary(ctx)
		if err != nil {
			return eris.Wrap(err, "quality tables")
		}
		if tables == nil {
			tables = []model.TableSummary{}
		}
		return render(cmd.OutOrStdout(), tables, tableSummaryTable(tables))
	},
}

var qualityBandsCmd = &cobra.Command{
	Use:   "bands",
	Short: "Count entries per confidence band",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer e.Close()

		bands, err := e.Service.Quality.Bands(ctx)
		if err != nil {
			return eris.Wrap(err, "quality bands")
		}
		return render(cmd.OutOrStdout(), bands, bandsTable(bands))
	},
}

func init() {
	qualityTimelineCmd.Flags().String("bucket", string(model.BucketDay), "bucket size: hour, day, week or month")
	qualityTimelineCmd.Flags().Duration("since", 0, "only entries extracted within this window (e.g. 168h)")

	qualityCoverageCmd.Flags().Int64("total-rows", 0, "row count of the table")
	_ = qualityCoverageCmd.MarkFlagRequired("total-rows")

	qualityCmd.AddCommand(qualityOverviewCmd)
	qualityCmd.AddCommand(qualityTimelineCmd)
	qualityCmd.AddCommand(qualityCoverageCmd)
	qualityCmd.AddCommand(qualityTablesCmd)
	qualityCmd.AddCommand(qualityBandsCmd)
	rootCmd.AddCommand(qualityCmd)
}
