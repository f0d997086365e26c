package main

import (
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lineage/internal/ingest"
	"github.com/sells-group/lineage/internal/resilience"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Bulk-load lineage entries from a JSONL, CSV or XLSX file",
	Long: "Reads one lineage entry per line or row and writes them in batched transactions. " +
		"Rows that cannot be imported are written to the dead-letter file with the reason.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		format, _ := cmd.Flags().GetString("format")
		charset, _ := cmd.Flags().GetString("charset")
		sheet, _ := cmd.Flags().GetString("sheet")
		delimiter, _ := cmd.Flags().GetString("delimiter")
		dlqPath, _ := cmd.Flags().GetString("dead-letter")

		opts := ingest.ReadOptions{Format: format, Charset: charset, Sheet: sheet}
		if delimiter != "" {
			r := []rune(delimiter)
			if len(r) != 1 {
				return eris.Errorf("import: delimiter must be one character, got %q", delimiter)
			}
			opts.Delimiter = r[0]
		}
		stream, err := ingest.Open(args[0], opts)
		if err != nil {
			return err
		}

		e, err := initEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer e.Close()

		var dlqOut io.Writer
		if dlqPath != "" {
			f, err := os.Create(dlqPath)
			if err != nil {
				return eris.Wrap(err, "import: create dead-letter file")
			}
			defer f.Close() //nolint:errcheck
			dlqOut = f
		}
		dlq := resilience.NewDeadLetterWriter(dlqOut)

		ic := cfg.Import
		retry := resilience.FromRetryConfig(ic.RetryAttempts, ic.RetryInitialBackoffMs, ic.RetryMaxBackoffMs)
		retry.OnRetry = resilience.RetryLogger("ingest.importer", "write batch")

		im := ingest.NewImporter(e.Store, e.Service, dlq, ingest.Options{
			Concurrency: ic.Concurrency,
			BatchSize:   ic.BatchSize,
			RatePerSec:  ic.RatePerSec,
			Retry:       retry,
		})
		res, err := im.Run(ctx, stream)
		if res != nil {
			if rerr := renderImport(cmd.OutOrStdout(), args[0], dlqPath, res); rerr != nil {
				return rerr
			}
		}
		if err != nil {
			return eris.Wrap(err, "import")
		}
		if res.Rejected > 0 {
			zap.L().Warn("rows rejected", zap.Int64("rejected", res.Rejected), zap.String("dead_letter", dlqPath))
		}
		return nil
	},
}

func renderImport(w io.Writer, path, dlqPath string, res *ingest.Result) error {
	return render(w, res, func(t table.Writer) {
		t.AppendRows([]table.Row{
			{"File", path},
			{"Rows", count(res.Rows)},
			{"Imported", count(res.Imported)},
			{"Rejected", count(res.Rejected)},
			{"Batches", count(res.Batches)},
			{"Duration", res.Duration.Round(time.Millisecond)},
		})
		if dlqPath != "" && res.Rejected > 0 {
			t.AppendRow(table.Row{"Dead letters", dlqPath})
		}
	})
}

func init() {
	importCmd.Flags().String("format", "", "input format: jsonl, csv or xlsx (default from file extension)")
	importCmd.Flags().String("charset", "", "csv character set, e.g. windows-1252 (default utf-8)")
	importCmd.Flags().String("delimiter", "", "csv field delimiter (default ,)")
	importCmd.Flags().String("sheet", "", "xlsx sheet name (default first sheet)")
	importCmd.Flags().String("dead-letter", "", "write rejected rows to this JSONL file")
	rootCmd.AddCommand(importCmd)
}
