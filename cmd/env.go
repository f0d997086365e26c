package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lineage/internal/config"
	"github.com/sells-group/lineage/internal/lineage"
	"github.com/sells-group/lineage/internal/store"
)

// env bundles the store and lineage service for one command run.
type env struct {
	Store   store.Store
	Service *lineage.Service
}

func (e *env) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// lineageConfig translates application config into the service config. A
// bands file replaces inline bands.
func lineageConfig(c *config.Config) (lineage.Config, error) {
	bands := make([]lineage.Band, 0, len(c.Quality.Bands))
	for _, b := range c.Quality.Bands {
		bands = append(bands, lineage.Band{Label: b.Label, Min: b.Min})
	}
	if c.Quality.BandsFile != "" {
		loaded, err := lineage.LoadBandsFile(c.Quality.BandsFile)
		if err != nil {
			return lineage.Config{}, err
		}
		bands = loaded
	}
	return lineage.Config{
		Tables: c.Lineage.Tables,
		Quality: lineage.QualityConfig{
			HighThreshold: c.Quality.HighThreshold,
			LowThreshold:  c.Quality.LowThreshold,
			Bands:         bands,
		},
		ImpactConcurrency: c.Lineage.ImpactConcurrency,
	}, nil
}

// initEnv validates config for mode, opens and migrates the store and wires
// the lineage service.
func initEnv(ctx context.Context, mode string) (*env, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	lc, err := lineageConfig(cfg)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	svc, err := lineage.New(st, lc)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return &env{Store: st, Service: svc}, nil
}
