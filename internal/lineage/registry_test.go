package lineage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lineage/internal/model"
	"github.com/sells-group/lineage/internal/store"
)

func TestRegistry_RegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		src   model.NewSource
		field string
	}{
		{"missing filename", model.NewSource{ReportType: "annual"}, "filename"},
		{"blank filename", model.NewSource{Filename: "   ", ReportType: "annual"}, "filename"},
		{"missing report type", model.NewSource{Filename: "a.txt"}, "report_type"},
		{"negative pages", model.NewSource{Filename: "a.txt", ReportType: "annual", PageCount: -1}, "page_count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Registry.Register(ctx, tt.src)
			require.Error(t, err)
			var verr *model.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	list, err := svc.Registry.List(ctx, store.SourceFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRegistry_RegisterTrimsAndDefaults(t *testing.T) {
	svc, _ := newTestService(t)

	src, err := svc.Registry.Register(context.Background(), model.NewSource{
		Filename:   "  budget-2024.pdf ",
		ReportType: " budget ",
		Locality:   " Springfield ",
	})
	require.NoError(t, err)
	assert.Equal(t, "budget-2024.pdf", src.Filename)
	assert.Equal(t, "budget", src.ReportType)
	assert.Equal(t, "Springfield", src.Locality)
	assert.Zero(t, src.PageCount)
	assert.Equal(t, model.SourceStatusRegistered, src.Status)
}

func TestRegistry_Duplicate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustRegister(t, svc, "a.txt")

	_, err := svc.Registry.Register(ctx, model.NewSource{Filename: "a.txt", ReportType: "other"})
	require.Error(t, err)
	assert.True(t, model.IsDuplicateSource(err))
}

func TestRegistry_StatusTransitions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := mustRegister(t, svc, "a.txt")
	b := mustRegister(t, svc, "b.txt")

	require.NoError(t, svc.Registry.MarkIngested(ctx, a.ID))
	require.NoError(t, svc.Registry.MarkIngested(ctx, a.ID), "repeat is a no-op")

	err := svc.Registry.MarkFailed(ctx, a.ID, "late failure")
	require.Error(t, err)
	var terr *model.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, model.SourceStatusIngested, terr.From)
	assert.Equal(t, model.SourceStatusFailed, terr.To)

	require.NoError(t, svc.Registry.MarkFailed(ctx, b.ID, " OCR timeout "))
	require.NoError(t, svc.Registry.MarkFailed(ctx, b.ID, "OCR timeout"))
	got, err := svc.Registry.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SourceStatusFailed, got.Status)
	assert.Equal(t, "OCR timeout", got.FailureReason)

	assert.True(t, model.IsTransition(svc.Registry.MarkIngested(ctx, b.ID)))
	assert.True(t, model.IsUnknownSource(svc.Registry.MarkIngested(ctx, 999)))
	assert.True(t, model.IsUnknownSource(svc.Registry.MarkFailed(ctx, 999, "x")))
}

func TestRegistry_GetAndList(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := mustRegister(t, svc, "a.txt")
	b := mustRegister(t, svc, "b.txt")
	require.NoError(t, svc.Registry.MarkIngested(ctx, a.ID))

	_, err := svc.Registry.Get(ctx, 999)
	assert.True(t, model.IsUnknownSource(err))

	byName, err := svc.Registry.GetByFilename(ctx, "b.txt")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, b.ID, byName.ID)

	missing, err := svc.Registry.GetByFilename(ctx, "zzz.txt")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = svc.Registry.GetByFilename(ctx, "")
	assert.True(t, model.IsValidation(err))

	ingested, err := svc.Registry.List(ctx, store.SourceFilter{Status: model.SourceStatusIngested})
	require.NoError(t, err)
	require.Len(t, ingested, 1)
	assert.Equal(t, a.ID, ingested[0].ID)

	_, err = svc.Registry.List(ctx, store.SourceFilter{Status: "done"})
	assert.True(t, model.IsValidation(err))
	_, err = svc.Registry.List(ctx, store.SourceFilter{Limit: -1})
	assert.True(t, model.IsValidation(err))
}

func TestRegistry_OnTxRollsBack(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	err := st.WithTx(ctx, func(tx store.Tx) error {
		if _, err := svc.Registry.On(tx).Register(ctx, model.NewSource{Filename: "a.txt", ReportType: "annual"}); err != nil {
			return err
		}
		return model.NewValidationError("batch", "aborted")
	})
	require.Error(t, err)

	got, err := svc.Registry.GetByFilename(ctx, "a.txt")
	require.NoError(t, err)
	assert.Nil(t, got)
}
