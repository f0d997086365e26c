package lineage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lineage/internal/model"
	"github.com/sells-group/lineage/internal/store"
)

// mockReadStore stubs the read surface. Methods not overridden panic through
// the nil embedded Reader.
type mockReadStore struct {
	store.Reader
	mock.Mock
}

func (m *mockReadStore) WithSnapshot(ctx context.Context, fn func(r store.Reader) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(m)
}

func (m *mockReadStore) ConfidenceStats(ctx context.Context, high, low float64) (*model.QualityOverview, error) {
	args := m.Called(ctx, high, low)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QualityOverview), args.Error(1)
}

func (m *mockReadStore) CountSources(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockReadStore) SourceBreakdown(ctx context.Context, sourceID int64) ([]model.TableCount, error) {
	args := m.Called(ctx, sourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.TableCount), args.Error(1)
}

func (m *mockReadStore) GetSource(ctx context.Context, id int64) (*model.SourceReport, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SourceReport), args.Error(1)
}

func (m *mockReadStore) SourcesWithLineage(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *mockReadStore) CountInRange(ctx context.Context, lo, hi float64, inclusiveMax bool) (int64, error) {
	args := m.Called(ctx, lo, hi, inclusiveMax)
	return args.Get(0).(int64), args.Error(1)
}

func TestQuality_OverviewPropagatesErrors(t *testing.T) {
	rs := new(mockReadStore)
	q, err := NewQuality(rs, nil, QualityConfig{})
	require.NoError(t, err)

	boom := errors.New("connection refused")
	rs.On("WithSnapshot", mock.Anything).Return(nil)
	rs.On("ConfidenceStats", mock.Anything, DefaultHighThreshold, DefaultLowThreshold).
		Return(&model.QualityOverview{Total: 1}, nil)
	rs.On("CountSources", mock.Anything).Return(int64(0), boom)

	_, err = q.Overview(context.Background())
	assert.ErrorIs(t, err, boom)
	rs.AssertExpectations(t)
}

func TestQuality_BandsUseHalfOpenRanges(t *testing.T) {
	rs := new(mockReadStore)
	q, err := NewQuality(rs, nil, QualityConfig{Bands: []Band{{Label: "high", Min: 0.6}, {Label: "low", Min: 0}}})
	require.NoError(t, err)

	rs.On("WithSnapshot", mock.Anything).Return(nil)
	rs.On("CountInRange", mock.Anything, 0.6, 1.0, true).Return(int64(4), nil)
	rs.On("CountInRange", mock.Anything, 0.0, 0.6, false).Return(int64(6), nil)

	bands, err := q.Bands(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.BandCount{
		{Label: "high", Min: 0.6, Max: 1, Count: 4},
		{Label: "low", Min: 0, Max: 0.6, Count: 6},
	}, bands)
	rs.AssertExpectations(t)
}

func TestImpact_AnalyzeAllStopsOnError(t *testing.T) {
	rs := new(mockReadStore)
	a := NewImpact(rs, 2)

	boom := errors.New("timeout")
	rs.On("SourcesWithLineage", mock.Anything).Return([]int64{1, 2}, nil)
	rs.On("WithSnapshot", mock.Anything).Return(nil)
	rs.On("SourceBreakdown", mock.Anything, int64(1)).Return([]model.TableCount{{Table: "projects", Count: 2}}, nil)
	rs.On("GetSource", mock.Anything, int64(1)).Return(nil, nil)
	rs.On("SourceBreakdown", mock.Anything, int64(2)).Return(nil, boom)

	_, err := a.AnalyzeAll(context.Background(), 0)
	assert.ErrorIs(t, err, boom)
}

func TestImpact_SnapshotError(t *testing.T) {
	rs := new(mockReadStore)
	a := NewImpact(rs, 0)

	boom := errors.New("database is locked")
	rs.On("WithSnapshot", mock.Anything).Return(boom)

	_, err := a.Analyze(context.Background(), 1)
	assert.ErrorIs(t, err, boom)
	rs.AssertExpectations(t)
}
