package lineage

import (
	"math"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lineage/internal/model"
)

// Band is a named confidence range. A score belongs to the band with the
// greatest Min that does not exceed it.
type Band struct {
	Label string  `yaml:"label" mapstructure:"label" json:"label"`
	Min   float64 `yaml:"min" mapstructure:"min" json:"min"`
}

// DefaultBands returns the standard five-band policy.
func DefaultBands() []Band {
	return []Band{
		{Label: "excellent", Min: 0.9},
		{Label: "good", Min: 0.7},
		{Label: "fair", Min: 0.5},
		{Label: "poor", Min: 0.3},
		{Label: "unreliable", Min: 0.0},
	}
}

// BandPolicy classifies confidence scores into bands.
type BandPolicy struct {
	bands []Band // descending by Min
}

// NewBandPolicy validates bands and returns a policy. Every score in [0,1]
// must land in exactly one band, so the lowest band has to start at 0.
// An empty slice yields the default policy.
func NewBandPolicy(bands []Band) (*BandPolicy, error) {
	if len(bands) == 0 {
		bands = DefaultBands()
	}
	sorted := make([]Band, len(bands))
	copy(sorted, bands)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Min > sorted[j].Min })

	seenLabel := make(map[string]struct{}, len(sorted))
	for i, b := range sorted {
		if b.Label == "" {
			return nil, model.NewValidationError("bands", "band %d has no label", i)
		}
		if _, dup := seenLabel[b.Label]; dup {
			return nil, model.NewValidationError("bands", "duplicate label %q", b.Label)
		}
		seenLabel[b.Label] = struct{}{}
		if math.IsNaN(b.Min) || b.Min < 0 || b.Min > 1 {
			return nil, model.NewValidationError("bands", "%s: min %v outside [0,1]", b.Label, b.Min)
		}
		if i > 0 && sorted[i-1].Min == b.Min {
			return nil, model.NewValidationError("bands", "%s and %s share min %v", sorted[i-1].Label, b.Label, b.Min)
		}
	}
	if sorted[len(sorted)-1].Min != 0 {
		return nil, model.NewValidationError("bands", "lowest band must start at 0")
	}
	return &BandPolicy{bands: sorted}, nil
}

// LoadBandsFile reads a band policy from a YAML file of the form:
//
//	bands:
//	  - label: excellent
//	    min: 0.9
func LoadBandsFile(path string) ([]Band, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "lineage: read bands %s", path)
	}
	var wrapper struct {
		Bands []Band `yaml:"bands"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrapf(err, "lineage: parse bands %s", path)
	}
	return wrapper.Bands, nil
}

// Bands returns the policy's bands, highest first.
func (p *BandPolicy) Bands() []Band {
	out := make([]Band, len(p.bands))
	copy(out, p.bands)
	return out
}

// Label returns the band label for score.
func (p *BandPolicy) Label(score float64) string {
	for _, b := range p.bands {
		if score >= b.Min {
			return b.Label
		}
	}
	return p.bands[len(p.bands)-1].Label
}

// ranges returns each band with its upper bound. The top band is closed at 1;
// the rest are half-open.
func (p *BandPolicy) ranges() []model.BandCount {
	out := make([]model.BandCount, len(p.bands))
	for i, b := range p.bands {
		hi := 1.0
		if i > 0 {
			hi = p.bands[i-1].Min
		}
		out[i] = model.BandCount{Label: b.Label, Min: b.Min, Max: hi}
	}
	return out
}
