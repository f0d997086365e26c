package store

import (
	"context"
	"database/sql"
	"embed"
	"strings"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lineage/internal/model"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

// goose keeps its filesystem and dialect in package globals.
var gooseMu sync.Mutex

// sqliteTimeLayout is fixed width so stored timestamps sort lexically and
// remain parseable by SQLite's date functions.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

// sqliteNow renders the statement time in sqliteTimeLayout. Write times come
// from the database so they are taken under the write lock.
const sqliteNow = `strftime('%Y-%m-%d %H:%M:%f000000', 'now')`

// sqlQuerier is satisfied by *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqliteOps holds every query, bound to either the database or a transaction.
type sqliteOps struct {
	q sqlQuerier
}

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	sqliteOps
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// Pragmas travel in the DSN so every pooled connection gets them; write
// transactions take the lock up front so concurrent writers wait on
// busy_timeout instead of failing on upgrade.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{sqliteOps: sqliteOps{q: db}, db: db}, nil
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join([]string{
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
		"_pragma=synchronous(NORMAL)",
		"_txlock=immediate",
	}, "&")
}

// Migrate applies the embedded goose migrations.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(sqliteMigrations)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(gooseLogger{log: zap.L().Sugar()})

	if err := goose.SetDialect("sqlite"); err != nil {
		return eris.Wrap(err, "sqlite: set goose dialect")
	}
	return eris.Wrap(goose.UpContext(ctx, s.db, "migrations/sqlite"), "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a write transaction. Errors returned by fn pass
// through unwrapped so callers can match typed errors.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&sqliteTx{sqliteOps{q: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit tx")
	}
	committed = true
	return nil
}

// WithSnapshot runs fn against one transaction so every read sees the same
// database state. Read-only transactions open with a deferred BEGIN, so the
// snapshot never holds the write lock. The transaction is always rolled back.
func (s *SQLiteStore) WithSnapshot(ctx context.Context, fn func(r Reader) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return eris.Wrap(err, "sqlite: begin snapshot")
	}
	defer tx.Rollback() //nolint:errcheck

	return fn(sqliteOps{q: tx})
}

// InsertLineageBatch inserts every request atomically.
func (s *SQLiteStore) InsertLineageBatch(ctx context.Context, reqs []model.TrackRequest) (int64, error) {
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

// sqliteTx is a Tx over a *sql.Tx.
type sqliteTx struct {
	sqliteOps
}

func (t *sqliteTx) InsertRecord(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := t.q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, eris.Wrap(err, "sqlite: insert record")
	}
	return id, nil
}

func (t *sqliteTx) ExecRecord(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: exec record")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func sqliteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse time %q", s)
	}
	return t, nil
}

type scannable interface {
	Scan(dest ...any) error
}

// gooseLogger routes goose output through zap.
type gooseLogger struct {
	log *zap.SugaredLogger
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.log.Infof(strings.TrimSpace(format), v...)
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.log.Fatalf(strings.TrimSpace(format), v...)
}
