// Package sqlstore provides PostgreSQL and SQLite storage for users,
// sessions and todos.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/voltigdev/voltig-turbo/internal/domain/auth"
	"github.com/voltigdev/voltig-turbo/internal/domain/session"
	"github.com/voltigdev/voltig-turbo/internal/domain/todo"
	"github.com/voltigdev/voltig-turbo/internal/port/outbound"
)

// Dialect identifies the SQL flavour behind a DB.
type Dialect string

const (
	// DialectPostgres is PostgreSQL through lib/pq.
	DialectPostgres Dialect = "postgres"
	// DialectSQLite is embedded SQLite through modernc.org/sqlite.
	DialectSQLite Dialect = "sqlite"
)

// builder returns the statement builder with the dialect's placeholders.
func (d Dialect) builder() sq.StatementBuilderType {
	if d == DialectPostgres {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// Options configures the connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DB is a SQL-backed outbound.Database.
type DB struct {
	db       *sql.DB
	dialect  Dialect
	todos    *TodoStore
	users    *UserStore
	sessions *SessionStore
}

// Open connects to the database named by rawURL and verifies it with a ping.
// postgres:// and postgresql:// URLs use PostgreSQL; sqlite://path uses an
// embedded SQLite file, and sqlite://:memory: a private in-memory database.
func Open(ctx context.Context, rawURL string, opts Options) (*DB, error) {
	dialect, driver, dsn, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", dialect, err)
	}

	if dialect == DialectSQLite {
		// SQLite serialises writers; one connection also keeps an in-memory
		// database alive for the life of the pool.
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			db.SetMaxIdleConns(opts.MaxIdleConns)
		}
		if opts.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(opts.ConnMaxLifetime)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to %s database: %w", dialect, err)
	}

	return New(db, dialect), nil
}

// New wraps an existing *sql.DB.
func New(db *sql.DB, dialect Dialect) *DB {
	b := dialect.builder()
	return &DB{
		db:       db,
		dialect:  dialect,
		todos:    &TodoStore{db: db, sb: b},
		users:    &UserStore{db: db, sb: b, dialect: dialect},
		sessions: &SessionStore{db: db, sb: b},
	}
}

// parseURL maps a DATABASE_URL onto a driver name and DSN.
func parseURL(rawURL string) (Dialect, string, string, error) {
	switch {
	case strings.HasPrefix(rawURL, "postgres://"), strings.HasPrefix(rawURL, "postgresql://"):
		return DialectPostgres, "postgres", rawURL, nil
	case strings.HasPrefix(rawURL, "sqlite://"):
		path := strings.TrimPrefix(rawURL, "sqlite://")
		if path == "" {
			return "", "", "", fmt.Errorf("sqlite URL %q has no path", rawURL)
		}
		if path == ":memory:" {
			return DialectSQLite, "sqlite", "file::memory:?_pragma=foreign_keys(1)", nil
		}
		return DialectSQLite, "sqlite", "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", nil
	default:
		return "", "", "", fmt.Errorf("unsupported database URL scheme in %q", redactURL(rawURL))
	}
}

// redactURL drops everything after the scheme so credentials never reach logs.
func redactURL(rawURL string) string {
	if scheme, _, ok := strings.Cut(rawURL, "://"); ok {
		return scheme + "://..."
	}
	return "..."
}

// Dialect returns the SQL flavour.
func (d *DB) Dialect() Dialect { return d.dialect }

// SQL returns the underlying connection pool.
func (d *DB) SQL() *sql.DB { return d.db }

// Todos returns the todo store.
func (d *DB) Todos() todo.Store { return d.todos }

// Users returns the user store.
func (d *DB) Users() auth.UserStore { return d.users }

// Sessions returns the session store.
func (d *DB) Sessions() session.SessionStore { return d.sessions }

// Ping verifies the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (d *DB) Close() error {
	return d.db.Close()
}

// Compile-time interface verification.
var _ outbound.Database = (*DB)(nil)
