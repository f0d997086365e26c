package lineage

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/lineage/internal/model"
	"github.com/sells-group/lineage/internal/store"
)

// checksPerformed is the number of integrity checks Validate runs.
const checksPerformed = 2

// Validator detects broken references. It never modifies data.
type Validator struct {
	r   store.ReadStore
	log *zap.Logger
}

// NewValidator returns a Validator reading from r.
func NewValidator(r store.ReadStore) *Validator {
	return &Validator{
		r:   r,
		log: zap.L().With(zap.String("component", "lineage.validator")),
	}
}

// Validate reports orphaned entries and ingested sources with no lineage.
// Both checks read one snapshot, and issues are ordered by kind then id, so
// two runs over unchanged data return equal reports.
func (v *Validator) Validate(ctx context.Context) (*model.IntegrityReport, error) {
	report := &model.IntegrityReport{
		ChecksPerformed: checksPerformed,
		Issues:          []model.IntegrityIssue{},
	}

	err := v.r.WithSnapshot(ctx, func(r store.Reader) error {
		if err := r.ScanOrphanedEntries(ctx, func(e model.LineageEntry) error {
			report.OrphanedEntries++
			report.Issues = append(report.Issues, orphanIssue(e))
			return nil
		}); err != nil {
			return err
		}
		return r.ScanUnusedSources(ctx, func(s model.SourceReport) error {
			report.UnusedSources++
			report.Issues = append(report.Issues, unusedIssue(s))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(report.Issues, func(i, j int) bool {
		a, b := report.Issues[i], report.Issues[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return issueID(a) < issueID(b)
	})
	report.IsValid = len(report.Issues) == 0

	v.log.Info("integrity validated",
		zap.Bool("valid", report.IsValid),
		zap.Int("orphaned_entries", report.OrphanedEntries),
		zap.Int("unused_sources", report.UnusedSources),
	)
	return report, nil
}

func orphanIssue(e model.LineageEntry) model.IntegrityIssue {
	return model.IntegrityIssue{
		Kind:           model.IssueOrphanedEntry,
		EntryID:        e.ID,
		Table:          e.TableName,
		RecordID:       e.RecordID,
		SourceReportID: e.SourceReportID,
		Message: fmt.Sprintf("lineage entry %d (%s) references missing source report %d",
			e.ID, e.Ref(), e.SourceReportID),
	}
}

func unusedIssue(s model.SourceReport) model.IntegrityIssue {
	return model.IntegrityIssue{
		Kind:           model.IssueUnusedSource,
		SourceReportID: s.ID,
		Filename:       s.Filename,
		Message:        fmt.Sprintf("source report %d (%s) is ingested but has no lineage entries", s.ID, s.Filename),
	}
}

func issueID(i model.IntegrityIssue) int64 {
	if i.Kind == model.IssueOrphanedEntry {
		return i.EntryID
	}
	return i.SourceReportID
}
