// Package lineage records which source report produced each ingested record
// and answers provenance, quality, integrity and impact questions about them.
package lineage

import (
	"github.com/sells-group/lineage/internal/store"
)

// Config configures a Service.
type Config struct {
	// Tables is the allow-list of application tables. Empty accepts any
	// well-formed name.
	Tables            []string
	Quality           QualityConfig
	ImpactConcurrency int
}

// Service bundles the lineage components over one store.
type Service struct {
	Tables      *TableRegistry
	Registry    *Registry
	Tracker     *Tracker
	Quality     *Quality
	Validator   *Validator
	Maintenance *Maintenance
	Impact      *Impact
}

// New wires every component to s.
func New(s store.Store, cfg Config) (*Service, error) {
	tables, err := NewTableRegistry(cfg.Tables)
	if err != nil {
		return nil, err
	}
	quality, err := NewQuality(s, tables, cfg.Quality)
	if err != nil {
		return nil, err
	}
	return &Service{
		Tables:      tables,
		Registry:    NewRegistry(s),
		Tracker:     NewTracker(s, tables),
		Quality:     quality,
		Validator:   NewValidator(s),
		Maintenance: NewMaintenance(s),
		Impact:      NewImpact(s, cfg.ImpactConcurrency),
	}, nil
}
