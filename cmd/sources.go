package main

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lineage/internal/model"
	"github.com/sells-group/lineage/internal/store"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage source reports",
	Long:  "Register source reports, move them through ingestion and inspect the registry.",
}

// -- sources register --

var sourcesRegisterCmd = &cobra.Command{
	Use:   "register <filename>",
	Short: "Register a source report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer e.Close()

		reportType, _ := cmd.Flags().GetString("type")
		locality, _ := cmd.Flags().GetString("locality")
		period, _ := cmd.Flags().GetString("period")
		pages, _ := cmd.Flags().GetInt("pages")

		src, err := e.Service.Registry.Register(ctx, model.NewSource{
			Filename:   args[0],
			ReportType: reportType,
			Locality:   locality,
			Period:     period,
			PageCount:  pages,
		})
		if err != nil {
			return eris.Wrap(err, "sources register")
		}
		return render(cmd.OutOrStdout(), src, sourceTable(src))
	},
}

// -- sources ingested / failed --

var sourcesIngestedCmd = &cobra.Command{
	Use:   "ingested <id>",
	Short: "Mark a source report as ingested",
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

		if err := e.Service.Registry.MarkIngested(ctx, id); err != nil {
			return eris.Wrap(err, "sources ingested")
		}
		src, err := e.Service.Registry.Get(ctx, id)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), src, sourceTable(src))
	},
}

var sourcesFailedCmd = &cobra.Command{
	Use:   "failed <id>",
	Short: "Mark a source report as failed",
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

		reason, _ := cmd.Flags().GetString("reason")
		if err := e.Service.Registry.MarkFailed(ctx, id, reason); err != nil {
			return eris.Wrap(err, "sources failed")
		}
		src, err := e.Service.Registry.Get(ctx, id)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), src, sourceTable(src))
	},
}

// -- sources list / show --

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List source reports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer e.Close()

		status, _ := cmd.Flags().GetString("status")
		reportType, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		sources, err := e.Service.Registry.List(ctx, store.SourceFilter{
			Status:     model.SourceStatus(status),
			ReportType: reportType,
			Limit:      limit,
			Offset:     offset,
		})
		if err != nil {
			return eris.Wrap(err, "sources list")
		}
		return render(cmd.OutOrStdout(), sources, sourcesTable(sources))
	},
}

var sourcesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a source report",
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

		src, err := e.Service.Registry.Get(ctx, id)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), src, sourceTable(src))
	},
}

// -- sources delete --

var sourcesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a source report and every lineage entry extracted from it",
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

		res, err := e.Service.Maintenance.DeleteSource(ctx, id)
		if err != nil {
			return eris.Wrap(err, "sources delete")
		}
		return render(cmd.OutOrStdout(), res, cleanupTable(res))
	},
}

func parseIDArg(raw, field string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewValidationError(field, "must be a positive integer, got %q", raw)
	}
	return id, nil
}

func init() {
	sourcesRegisterCmd.Flags().String("type", "", "report type (e.g. capital_plan, budget)")
	sourcesRegisterCmd.Flags().String("locality", "", "locality the report covers")
	sourcesRegisterCmd.Flags().String("period", "", "reporting period (e.g. FY2024)")
	sourcesRegisterCmd.Flags().Int("pages", 0, "page count")
	_ = sourcesRegisterCmd.MarkFlagRequired("type")

	sourcesFailedCmd.Flags().String("reason", "", "failure reason")

	sourcesListCmd.Flags().String("status", "", "filter by status (registered, ingested, failed)")
	sourcesListCmd.Flags().String("type", "", "filter by report type")
	sourcesListCmd.Flags().Int("limit", 50, "max number of sources to display")
	sourcesListCmd.Flags().Int("offset", 0, "number of sources to skip")

	sourcesCmd.AddCommand(sourcesRegisterCmd)
	sourcesCmd.AddCommand(sourcesIngestedCmd)
	sourcesCmd.AddCommand(sourcesFailedCmd)
	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesShowCmd)
	sourcesCmd.AddCommand(sourcesDeleteCmd)
	rootCmd.AddCommand(sourcesCmd)
}
