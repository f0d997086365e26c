package store

import (
	"context"
	"embed"
	"io/fs"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lineage/internal/db"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

const (
	postgresMigrationDir  = "migrations/postgres"
	migrationAdvisoryLock = 54612011
)

// migratePostgres runs all pending SQL migrations in lexicographic order,
// recording each applied file in lineage_schema_migrations.
func migratePostgres(ctx context.Context, pool db.Pool) error {
	log := zap.L().With(zap.String("component", "store.migrate"))

	// Advisory lock prevents concurrent migration runs (e.g. overlapping deploys).
	if _, err := pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationAdvisoryLock); err != nil {
		return eris.Wrap(err, "postgres: acquire migration advisory lock")
	}
	defer func() {
		if _, err := pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationAdvisoryLock); err != nil {
			log.Warn("postgres: failed to release migration advisory lock", zap.Error(err))
		}
	}()

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS lineage_schema_migrations (
			id         SERIAL PRIMARY KEY,
			filename   TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return eris.Wrap(err, "postgres: ensure migration table")
	}

	names, err := migrationNames()
	if err != nil {
		return err
	}

	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return err
	}

	for _, name := range names {
		if applied[name] {
			continue
		}

		data, err := postgresMigrations.ReadFile(postgresMigrationDir + "/" + name)
		if err != nil {
			return eris.Wrapf(err, "postgres: read migration %s", name)
		}

		log.Info("applying migration", zap.String("file", name))

		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "postgres: apply migration %s", name)
		}
		if _, err := pool.Exec(ctx,
			"INSERT INTO lineage_schema_migrations (filename) VALUES ($1)", name,
		); err != nil {
			return eris.Wrapf(err, "postgres: record migration %s", name)
		}
	}
	return nil
}

// migrationNames lists the embedded migration files in apply order.
func migrationNames() ([]string, error) {
	entries, err := fs.ReadDir(postgresMigrations, postgresMigrationDir)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: read migration dir")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func appliedMigrations(ctx context.Context, pool db.Querier) (map[string]bool, error) {
	rows, err := pool.Query(ctx, "SELECT filename FROM lineage_schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan migration row")
		}
		applied[name] = true
	}
	return applied, eris.Wrap(rows.Err(), "postgres: iterate migrations")
}
