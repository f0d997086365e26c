package main

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lineage/internal/model"
)

var trackCmd = &cobra.Command{
	Use:   "track <table> <record-id>",
	Short: "Record that a record was extracted from a source report",
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

		sourceID, _ := cmd.Flags().GetInt64("source")
		pageNum, _ := cmd.Flags().GetInt("page")
		confidence, _ := cmd.Flags().GetFloat64("confidence")

		entry, err := e.Service.Tracker.Track(ctx, model.TrackRequest{
			Record:          ref,
			SourceReportID:  sourceID,
			PageNumber:      pageNum,
			ConfidenceScore: confidence,
		})
		if err != nil {
			return eris.Wrap(err, "track")
		}
		entries := []model.LineageEntry{*entry}
		return render(cmd.OutOrStdout(), entry, entriesTable(entries))
	},
}

var confidenceCmd = &cobra.Command{
	Use:   "confidence",
	Short: "Adjust confidence scores",
}

var confidenceSetCmd = &cobra.Command{
	Use:   "set <table> <record-id> <score>",
	Short: "Re-score the most recent lineage entry of a record",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := parseRef(args[0], args[1])
		if err != nil {
			return err
		}
		score, err := parseScoreArg(args[2])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		e, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer e.Close()

		entry, err := e.Service.Tracker.UpdateConfidence(ctx, ref, score)
		if err != nil {
			return eris.Wrap(err, "confidence set")
		}
		if entry == nil {
			return eris.Errorf("confidence set: %s has no lineage", ref)
		}
		entries := []model.LineageEntry{*entry}
		return render(cmd.OutOrStdout(), entry, entriesTable(entries))
	},
}

func parseRef(table, rawID string) (model.RecordRef, error) {
	id, err := parseIDArg(rawID, "record_id")
	if err != nil {
		return model.RecordRef{}, err
	}
	return model.RecordRef{Table: table, ID: id}, nil
}

func parseScoreArg(raw string) (float64, error) {
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, model.NewValidationError("confidence_score", "not a number: %q", raw)
	}
	return score, nil
}

func init() {
	trackCmd.Flags().Int64("source", 0, "source report id")
	trackCmd.Flags().Int("page", 0, "page the value was extracted from")
	trackCmd.Flags().Float64("confidence", 0, "extraction confidence in [0,1]")
	_ = trackCmd.MarkFlagRequired("source")
	_ = trackCmd.MarkFlagRequired("confidence")

	confidenceCmd.AddCommand(confidenceSetCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(confidenceCmd)
}
