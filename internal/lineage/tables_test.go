package lineage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lineage/internal/model"
)

func TestTableRegistry_Open(t *testing.T) {
	r, err := NewTableRegistry(nil)
	require.NoError(t, err)
	assert.True(t, r.Open())
	assert.Nil(t, r.Tables())
	assert.NoError(t, r.Check("anything_goes2"))
	assert.True(t, model.IsValidation(r.Check("")))
	assert.True(t, model.IsValidation(r.Check("Projects")))
	assert.True(t, model.IsValidation(r.Check("projects; drop table x")))
	assert.True(t, model.IsValidation(r.Check("1projects")))

	var nilRegistry *TableRegistry
	assert.NoError(t, nilRegistry.Check("projects"))
}

func TestTableRegistry_AllowList(t *testing.T) {
	r, err := NewTableRegistry([]string{" Projects ", "prices", "projects"})
	require.NoError(t, err)
	assert.False(t, r.Open())
	assert.Equal(t, []string{"prices", "projects"}, r.Tables())
	assert.NoError(t, r.Check("projects"))
	assert.True(t, model.IsValidation(r.Check("contracts")))

	assert.NoError(t, r.CheckRef(model.RecordRef{Table: "prices", ID: 1}))
	assert.True(t, model.IsValidation(r.CheckRef(model.RecordRef{Table: "prices", ID: -1})))

	_, err = NewTableRegistry([]string{"ok", "not-ok"})
	assert.True(t, model.IsValidation(err))
}

func TestBandPolicy(t *testing.T) {
	p, err := NewBandPolicy(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBands(), p.Bands())

	tests := []struct {
		score float64
		want  string
	}{
		{1.0, "excellent"},
		{0.9, "excellent"},
		{0.8999, "good"},
		{0.7, "good"},
		{0.5, "fair"},
		{0.3, "poor"},
		{0.2999, "unreliable"},
		{0, "unreliable"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Label(tt.score), "score %v", tt.score)
	}
}

func TestBandPolicy_SortsAndValidates(t *testing.T) {
	p, err := NewBandPolicy([]Band{{Label: "low", Min: 0}, {Label: "high", Min: 0.75}})
	require.NoError(t, err)
	assert.Equal(t, "high", p.Bands()[0].Label)
	assert.Equal(t, "low", p.Label(0.74))

	ranges := p.ranges()
	assert.Equal(t, model.BandCount{Label: "high", Min: 0.75, Max: 1}, ranges[0])
	assert.Equal(t, model.BandCount{Label: "low", Min: 0, Max: 0.75}, ranges[1])

	bad := [][]Band{
		{{Label: "", Min: 0}},
		{{Label: "a", Min: 0}, {Label: "a", Min: 0.5}},
		{{Label: "a", Min: 0}, {Label: "b", Min: 1.5}},
		{{Label: "a", Min: 0}, {Label: "b", Min: 0}},
		{{Label: "a", Min: 0.2}},
	}
	for i, bands := range bad {
		_, err := NewBandPolicy(bands)
		assert.True(t, model.IsValidation(err), "case %d", i)
	}
}

func TestLoadBandsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bands.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bands:\n  - label: trusted\n    min: 0.8\n  - label: review\n    min: 0\n"), 0o600))

	bands, err := LoadBandsFile(path)
	require.NoError(t, err)
	assert.Equal(t, []Band{{Label: "trusted", Min: 0.8}, {Label: "review", Min: 0}}, bands)

	_, err = LoadBandsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
