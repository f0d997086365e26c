package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lineage/internal/db"
	"github.com/sells-group/lineage/internal/model"
)

// pgOps holds every query, bound to either the pool or a transaction.
type pgOps struct {
	q db.Querier
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pgOps
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Timeline buckets and returned timestamps are UTC.
	pgxCfg.ConnConfig.RuntimeParams["timezone"] = "UTC"
	if _, ok := pgxCfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		pgxCfg.ConnConfig.RuntimeParams["application_name"] = "lineage"
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresStore(pool, pool.Close), nil
}

func newPostgresStore(pool db.Pool, closeFn func()) *PostgresStore {
	return &PostgresStore{pgOps: pgOps{q: pool}, pool: pool, closeFn: closeFn}
}

// Pool returns the underlying database pool for callers that need direct
// query access to application tables.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migratePostgres(ctx, s.pool)
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// WithTx runs fn inside a read-committed transaction. Errors returned by fn
// pass through unwrapped so callers can match typed errors.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := fn(&pgTx{pgOps{q: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit tx")
	}
	committed = true
	return nil
}

// WithSnapshot runs fn inside a REPEATABLE READ, READ ONLY transaction so
// every query sees the same snapshot.
func (s *PostgresStore) WithSnapshot(ctx context.Context, fn func(r Reader) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return eris.Wrap(err, "postgres: begin snapshot")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	return fn(pgOps{q: tx})
}

// InsertLineageBatch copies every request in one transaction.
func (s *PostgresStore) InsertLineageBatch(ctx context.Context, reqs []model.TrackRequest) (int64, error) {
	var n int64
	err := s.WithTx(ctx, func(tx Tx) error {
		var err error
		n, err = tx.InsertLineageBatch(ctx, reqs)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// pgTx is a Tx over a pgx.Tx.
type pgTx struct {
	pgOps
}

func (t *pgTx) InsertRecord(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := t.q.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, eris.Wrap(err, "postgres: insert record")
	}
	return id, nil
}

func (t *pgTx) ExecRecord(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := t.q.Exec(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: exec record")
	}
	return tag.RowsAffected(), nil
}
