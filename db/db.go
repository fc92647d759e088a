package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"strings"
	"time"

	//nolint:revive,nolintlint // Idiomatic way of loading DB libraries.
	_ "github.com/glebarez/go-sqlite"

	"go.hackfix.me/switchboard/db/migrator"
	"go.hackfix.me/switchboard/db/queries"
	"go.hackfix.me/switchboard/db/types"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps sql.DB with additional context and migration functionality.
type DB struct {
	*sql.DB
	ctx        context.Context
	timeNow    func() time.Time
	path       string
	migrations []*migrator.Migration
}

var _ types.Querier = (*DB)(nil)

// Init creates the database schema and initial records.
func (d *DB) Init(appVersion string, logger *slog.Logger) error {
	dblogger := logger.With("path", d.path)
	dblogger.Debug("initializing database")

	err := migrator.RunMigrations(d.NewContext(), d, d.migrations, migrator.MigrationUp, "all", logger)
	if err != nil {
		return err
	}

	_, err = d.ExecContext(d.NewContext(),
		`INSERT INTO _meta (version, initialized_at) VALUES (?, ?)`,
		appVersion, d.timeNow().UTC().Unix())
	if err != nil {
		return fmt.Errorf("failed inserting into _meta: %w", err)
	}

	tables, err := queries.DataTables(d.NewContext(), d)
	if err != nil {
		return err
	}
	dblogger.Info("database initialized", "version", appVersion, "tables", len(tables))

	return nil
}

// NewContext returns a new child context of the main database context.
func (d *DB) NewContext() context.Context {
	ctx, _ := context.WithCancel(d.ctx) //nolint:govet // Canceled together with the parent.
	return ctx
}

// Tx runs fn inside a transaction. The transaction is committed if fn returns
// nil, and rolled back otherwise.
func (d *DB) Tx(ctx context.Context, fn func(types.Querier) error) (rerr error) {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed starting transaction: %w", err)
	}
	defer func() {
		if rerr != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				rerr = fmt.Errorf("%w; failed rolling back transaction: %w", rerr, rbErr)
			}
		}
	}()

	if err = fn(&txQuerier{tx: tx, db: d}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed committing transaction: %w", err)
	}

	return nil
}

// Open creates and configures a new SQLite database connection with migrations support.
func Open(ctx context.Context, path string, timeNow func() time.Time) (*DB, error) {
	var d *DB
	inMemory := strings.Contains(path, "mode=memory") || strings.Contains(path, ":memory:")
	if inMemory {
		defer func() {
			if d != nil {
				// See https://github.com/mattn/go-sqlite3#faq
				d.SetMaxIdleConns(10)
				d.SetConnMaxLifetime(time.Duration(math.Inf(1)))
			}
		}()
	}

	// Pragmas are set in the DSN, so that they apply to every pooled connection.
	// The server's sweeper and CLI cache commands write from separate processes.
	pragmas := []string{"foreign_keys(1)"}
	if !inMemory {
		pragmas = append(pragmas, "journal_mode(WAL)", "busy_timeout(5000)")
	}
	dsn := path
	for i, p := range pragmas {
		sep := "&"
		if i == 0 && !strings.Contains(path, "?") {
			sep = "?"
		}
		dsn += sep + "_pragma=" + p
	}

	sqliteDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed opening SQLite database: %w", err)
	}

	d = &DB{DB: sqliteDB, ctx: ctx, path: path, timeNow: timeNow}

	migrationsDir, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed getting migrations directory: %w", err)
	}
	migrations, err := migrator.LoadMigrations(migrationsDir)
	if err != nil {
		return nil, err
	}
	d.migrations = migrations

	return d, nil
}

// TimeNow returns the current system time.
func (d *DB) TimeNow() time.Time {
	return d.timeNow()
}

// Path returns the path the database was opened with.
func (d *DB) Path() string {
	return d.path
}

type txQuerier struct {
	tx *sql.Tx
	db *DB
}

var _ types.Querier = (*txQuerier)(nil)

func (q *txQuerier) NewContext() context.Context {
	return q.db.NewContext()
}

func (q *txQuerier) TimeNow() time.Time {
	return q.db.timeNow()
}

func (q *txQuerier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.tx.ExecContext(ctx, query, args...)
}

func (q *txQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.tx.QueryContext(ctx, query, args...)
}

func (q *txQuerier) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return q.tx.QueryRowContext(ctx, query, args...)
}

func (q *txQuerier) Tx(_ context.Context, fn func(types.Querier) error) error {
	// Already inside a transaction.
	return fn(q)
}
