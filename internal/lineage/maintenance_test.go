package lineage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lineage/internal/model"
)

func TestMaintenance_DeleteOrphans(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	a := mustRegister(t, svc, "a.txt")
	b := mustRegister(t, svc, "b.txt")
	mustTrack(t, svc, "projects", 1, a.ID, 0.9)
	mustTrack(t, svc, "projects", 2, b.ID, 0.9)
	mustTrack(t, svc, "prices", 2, b.ID, 0.9)
	_, err := st.DeleteSource(ctx, b.ID)
	require.NoError(t, err)

	dry, err := svc.Maintenance.DeleteOrphans(ctx, true)
	require.NoError(t, err)
	assert.True(t, dry.DryRun)
	assert.Equal(t, int64(2), dry.Affected)
	assert.Empty(t, dry.AuditID)

	report, err := svc.Validator.Validate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.OrphanedEntries, "dry run changes nothing")

	res, err := svc.Maintenance.DeleteOrphans(ctx, false)
	require.NoError(t, err)
	assert.False(t, res.DryRun)
	assert.Equal(t, model.ActionDeleteOrphans, res.Action)
	assert.Equal(t, int64(2), res.Affected)
	_, err = uuid.Parse(res.AuditID)
	assert.NoError(t, err)

	report, err = svc.Validator.Validate(ctx)
	require.NoError(t, err)
	assert.True(t, report.IsValid)

	remaining, err := svc.Tracker.FindBySource(ctx, a.ID, "")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestMaintenance_ArchiveUnusedSources(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	unused := mustRegister(t, svc, "unused.txt")
	require.NoError(t, svc.Registry.MarkIngested(ctx, unused.ID))

	dry, err := svc.Maintenance.ArchiveUnusedSources(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dry.Affected)

	got, err := svc.Registry.Get(ctx, unused.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ArchivedAt)

	res, err := svc.Maintenance.ArchiveUnusedSources(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Affected)

	got, err = svc.Registry.Get(ctx, unused.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.ArchivedAt)

	report, err := svc.Validator.Validate(ctx)
	require.NoError(t, err)
	assert.True(t, report.IsValid)

	again, err := svc.Maintenance.ArchiveUnusedSources(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, again.Affected)
}

func TestMaintenance_DeleteSource(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	src := mustRegister(t, svc, "a.txt")
	mustTrack(t, svc, "projects", 1, src.ID, 0.9)

	svc.Maintenance.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	svc.Maintenance.newID = func() string { return "audit-1" }

	res, err := svc.Maintenance.DeleteSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionDeleteSource, res.Action)
	assert.Equal(t, int64(1), res.Affected)
	assert.Equal(t, "audit-1", res.AuditID)

	_, err = svc.Registry.Get(ctx, src.ID)
	assert.True(t, model.IsUnknownSource(err))

	// Entries are left behind as orphans.
	entries, err := svc.Tracker.FindBySource(ctx, src.ID, "")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = svc.Maintenance.DeleteSource(ctx, src.ID)
	assert.True(t, model.IsUnknownSource(err))
}

func TestMaintenance_DuplicateAuditIDRollsBack(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := mustRegister(t, svc, "a.txt")
	b := mustRegister(t, svc, "b.txt")
	svc.Maintenance.newID = func() string { return "fixed" }

	_, err := svc.Maintenance.DeleteSource(ctx, a.ID)
	require.NoError(t, err)

	_, err = svc.Maintenance.DeleteSource(ctx, b.ID)
	require.Error(t, err)

	got, err := svc.Registry.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "b.txt", got.Filename, "delete rolled back with its audit row")
}
