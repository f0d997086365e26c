package lineage

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lineage/internal/model"
	"github.com/sells-group/lineage/internal/store"
)

const defaultImpactConcurrency = 4

// Impact answers which application records a source report is responsible
// for.
type Impact struct {
	r           store.ReadStore
	concurrency int
}

// NewImpact returns an Impact over r. concurrency bounds AnalyzeAll; values
// below 1 take the default.
func NewImpact(r store.ReadStore, concurrency int) *Impact {
	if concurrency < 1 {
		concurrency = defaultImpactConcurrency
	}
	return &Impact{r: r, concurrency: concurrency}
}

// Analyze counts the source's lineage entries per table. The source row need
// not exist, so entries orphaned by a deleted source are still counted.
func (a *Impact) Analyze(ctx context.Context, sourceID int64) (*model.Impact, error) {
	out := &model.Impact{SourceReportID: sourceID, Breakdown: []model.TableCount{}}
	err := a.r.WithSnapshot(ctx, func(r store.Reader) error {
		breakdown, err := r.SourceBreakdown(ctx, sourceID)
		if err != nil {
			return err
		}
		for _, tc := range breakdown {
			out.TotalRecords += tc.Count
		}
		if breakdown != nil {
			out.Breakdown = breakdown
		}
		out.Source, err = r.GetSource(ctx, sourceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AnalyzeAll returns the impact of every source with at least one entry,
// largest first. limit caps the result; zero means no cap.
func (a *Impact) AnalyzeAll(ctx context.Context, limit int) ([]model.Impact, error) {
	if limit < 0 {
		return nil, model.NewValidationError("limit", "must not be negative, got %d", limit)
	}
	ids, err := a.r.SourcesWithLineage(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	results := make([]model.Impact, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			imp, err := a.Analyze(gctx, id)
			if err != nil {
				return err
			}
			results[i] = *imp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].TotalRecords != results[j].TotalRecords {
			return results[i].TotalRecords > results[j].TotalRecords
		}
		return results[i].SourceReportID < results[j].SourceReportID
	})
	return results, nil
}
