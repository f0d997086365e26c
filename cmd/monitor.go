package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lineage/internal/lineage"
	"github.com/sells-group/lineage/internal/monitoring"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run lineage health checks",
}

var monitorCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one integrity and quality check",
	Long:  "Collects integrity and confidence metrics, evaluates the alert thresholds and prints the result. With --send, alerts are posted to monitoring.webhook_url.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer e.Close()

		checker := newChecker(e.Service)
		send, _ := cmd.Flags().GetBool("send")
		var res *monitoring.CheckResult
		if send {
			res, err = checker.Check(ctx)
		} else {
			res, err = checker.Evaluate(ctx)
		}
		if err != nil {
			return eris.Wrap(err, "monitor check")
		}
		return render(cmd.OutOrStdout(), res, checkTable(res))
	},
}

func newChecker(svc *lineage.Service) *monitoring.Checker {
	collector := monitoring.NewCollector(svc.Validator, svc.Quality, svc.Registry)
	return monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
}

func checkTable(res *monitoring.CheckResult) func(table.Writer) {
	return func(t table.Writer) {
		snap := res.Snapshot
		t.AppendHeader(table.Row{"Severity", "Alert", "Message"})
		for _, a := range res.Alerts {
			t.AppendRow(table.Row{a.Severity, a.Type, a.Message})
		}
		if len(res.Alerts) == 0 {
			t.AppendRow(table.Row{"", "none", "all checks passed"})
		}
		t.AppendFooter(table.Row{
			fmt.Sprintf("%s entries", count(snap.TotalEntries)),
			fmt.Sprintf("%s in last %dh", count(snap.RecentEntries), snap.LookbackHours),
			fmt.Sprintf("%d sent", res.Sent),
		})
	}
}

func init() {
	monitorCheckCmd.Flags().Bool("send", false, "post raised alerts to the webhook")
	monitorCmd.AddCommand(monitorCheckCmd)
	rootCmd.AddCommand(monitorCmd)
}
