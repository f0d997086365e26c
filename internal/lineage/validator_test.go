package lineage

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lineage/internal/model"
)

func TestValidator_CleanStore(t *testing.T) {
	svc, _ := newTestService(t)

	report, err := svc.Validator.Validate(context.Background())
	require.NoError(t, err)
	assert.True(t, report.IsValid)
	assert.Equal(t, 2, report.ChecksPerformed)
	assert.NotNil(t, report.Issues)
	assert.Empty(t, report.Issues)
}

func TestValidator_OrphanAfterOutOfBandDelete(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	a := mustRegister(t, svc, "a.txt")
	b := mustRegister(t, svc, "b.txt")
	mustTrack(t, svc, "projects", 1, a.ID, 0.9)
	orphan := mustTrack(t, svc, "projects", 42, b.ID, 0.7)

	deleted, err := st.DeleteSource(ctx, b.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	report, err := svc.Validator.Validate(ctx)
	require.NoError(t, err)
	assert.False(t, report.IsValid)
	assert.Equal(t, 1, report.OrphanedEntries)
	require.Len(t, report.Issues, 1)

	issue := report.Issues[0]
	assert.Equal(t, model.IssueOrphanedEntry, issue.Kind)
	assert.Equal(t, orphan.ID, issue.EntryID)
	assert.Equal(t, "projects", issue.Table)
	assert.Equal(t, int64(42), issue.RecordID)
	assert.Equal(t, b.ID, issue.SourceReportID)
	assert.Contains(t, issue.Message, "projects:42")

	// The orphan still counts toward the deleted source's impact.
	imp, err := svc.Impact.Analyze(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), imp.TotalRecords)
	assert.Nil(t, imp.Source)
}

func TestValidator_UnusedSources(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	used := mustRegister(t, svc, "used.txt")
	unused := mustRegister(t, svc, "unused.txt")
	mustRegister(t, svc, "pending.txt")

	require.NoError(t, svc.Registry.MarkIngested(ctx, used.ID))
	require.NoError(t, svc.Registry.MarkIngested(ctx, unused.ID))
	mustTrack(t, svc, "projects", 1, used.ID, 0.9)

	report, err := svc.Validator.Validate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.UnusedSources)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, model.IssueUnusedSource, report.Issues[0].Kind)
	assert.Equal(t, unused.ID, report.Issues[0].SourceReportID)
	assert.Equal(t, "unused.txt", report.Issues[0].Filename)
}

func TestValidator_OrderedAndRepeatable(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	gone := mustRegister(t, svc, "gone.txt")
	for i := int64(1); i <= 3; i++ {
		mustTrack(t, svc, "projects", i, gone.ID, 0.5)
	}
	_, err := st.DeleteSource(ctx, gone.ID)
	require.NoError(t, err)

	for _, name := range []string{"x.txt", "y.txt"} {
		src := mustRegister(t, svc, name)
		require.NoError(t, svc.Registry.MarkIngested(ctx, src.ID))
	}

	first, err := svc.Validator.Validate(ctx)
	require.NoError(t, err)
	second, err := svc.Validator.Validate(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	require.Len(t, first.Issues, 5)
	kinds := []model.IssueKind{}
	for _, i := range first.Issues {
		kinds = append(kinds, i.Kind)
	}
	assert.Equal(t, []model.IssueKind{
		model.IssueOrphanedEntry, model.IssueOrphanedEntry, model.IssueOrphanedEntry,
		model.IssueUnusedSource, model.IssueUnusedSource,
	}, kinds)
	assert.Less(t, first.Issues[0].EntryID, first.Issues[1].EntryID)
	assert.Less(t, first.Issues[3].SourceReportID, first.Issues[4].SourceReportID)
}

func TestValidator_Cancelled(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Validator.Validate(ctx)
	assert.Error(t, err)
}
