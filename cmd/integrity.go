package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lineage/internal/model"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check lineage integrity",
	Long:  "Reports lineage entries whose source report is gone and ingested source reports that produced no lineage. Exits non-zero when issues are found and --strict is set.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer e.Close()

		report, err := e.Service.Validator.Validate(ctx)
		if err != nil {
			return eris.Wrap(err, "validate")
		}
		if err := render(cmd.OutOrStdout(), report, integrityTable(report)); err != nil {
			return err
		}
		strict, _ := cmd.Flags().GetBool("strict")
		if strict && !report.IsValid {
			return eris.Errorf("validate: %d orphaned entries, %d unused sources", report.OrphanedEntries, report.UnusedSources)
		}
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Repair integrity issues",
}

var cleanupOrphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "Delete lineage entries whose source report no longer exists",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runCleanup(cmd, func(e *env, dryRun bool) (*model.CleanupResult, error) {
			return e.Service.Maintenance.DeleteOrphans(cmd.Context(), dryRun)
		})
	},
}

var cleanupUnusedCmd = &cobra.Command{
	Use:   "unused",
	Short: "Archive ingested source reports that produced no lineage",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runCleanup(cmd, func(e *env, dryRun bool) (*model.CleanupResult, error) {
			return e.Service.Maintenance.ArchiveUnusedSources(cmd.Context(), dryRun)
		})
	},
}

func runCleanup(cmd *cobra.Command, fn func(e *env, dryRun bool) (*model.CleanupResult, error)) error {
	e, err := initEnv(cmd.Context(), "cli")
	if err != nil {
		return err
	}
	defer e.Close()

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	res, err := fn(e, dryRun)
	if err != nil {
		return eris.Wrapf(err, "cleanup %s", cmd.Name())
	}
	return render(cmd.OutOrStdout(), res, cleanupTable(res))
}

var impactCmd = &cobra.Command{
	Use:   "impact [source-id]",
	Short: "Show the records attributable to a source report",
	Long:  "With a source id, reports that source's records per table. With --all, ranks every source by record count.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if all == (len(args) == 1) {
			return eris.New("impact: pass a source id or --all")
		}
		ctx := cmd.Context()
		e, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer e.Close()

		if all {
			limit, _ := cmd.Flags().GetInt("limit")
			impacts, err := e.Service.Impact.AnalyzeAll(ctx, limit)
			if err != nil {
				return eris.Wrap(err, "impact")
			}
			if impacts == nil {
				impacts = []model.Impact{}
			}
			return render(cmd.OutOrStdout(), impacts, impactTable(impacts))
		}

		id, err := parseIDArg(args[0], "source_report_id")
		if err != nil {
			return err
		}
		imp, err := e.Service.Impact.Analyze(ctx, id)
		if err != nil {
			return eris.Wrap(err, "impact")
		}
		return render(cmd.OutOrStdout(), imp, impactTable([]model.Impact{*imp}))
	},
}

func init() {
	validateCmd.Flags().Bool("strict", false, "exit non-zero when issues are found")

	for _, c := range []*cobra.Command{cleanupOrphansCmd, cleanupUnusedCmd} {
		c.Flags().Bool("dry-run", false, "count affected rows without changing anything")
		cleanupCmd.AddCommand(c)
	}

	impactCmd.Flags().Bool("all", false, "rank every source report")
	impactCmd.Flags().Int("limit", 20, "max number of sources with --all (0 for all)")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(impactCmd)
}
