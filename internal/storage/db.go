package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	// Import postgres driver
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	// Import sqlite driver
	_ "modernc.org/sqlite"
)

// Driver names a supported database backend.
type Driver string

const (
	// SQLite stores everything in a single file (or in memory).
	SQLite Driver = "sqlite"
	// Postgres connects through pgx using a DSN.
	Postgres Driver = "postgres"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidCard is returned for card values that break the session invariants.
	ErrInvalidCard = errors.New("invalid session card")
	// ErrDuplicate is returned when an insert hits a unique constraint.
	ErrDuplicate = errors.New("record already exists")
)

type dialect struct {
	sqlDriver string
	dsn       func(string) string
	schema    []string
	setup     func(*sql.DB) error
}

var dialects = map[Driver]dialect{
	SQLite: {
		sqlDriver: "sqlite",
		dsn:       sqliteDSN,
		schema: []string{
			`CREATE TABLE IF NOT EXISTS members (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				email TEXT UNIQUE NOT NULL,
				first_name TEXT NOT NULL DEFAULT '',
				last_name TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS session_cards (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				member_id INTEGER NOT NULL REFERENCES members(id) ON DELETE CASCADE,
				card_type TEXT NOT NULL,
				total_sessions INTEGER NOT NULL CHECK (total_sessions >= 1),
				sessions_used INTEGER NOT NULL DEFAULT 0 CHECK (sessions_used >= 0),
				status TEXT NOT NULL DEFAULT 'active',
				is_trial BOOLEAN NOT NULL DEFAULT FALSE,
				purchased_date DATETIME NOT NULL,
				expiry_date DATETIME,
				notes TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS session_attendances (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				member_id INTEGER NOT NULL REFERENCES members(id) ON DELETE CASCADE,
				session_card_id INTEGER REFERENCES session_cards(id) ON DELETE SET NULL,
				card_session_used BOOLEAN NOT NULL DEFAULT FALSE,
				session_date DATETIME NOT NULL,
				title TEXT NOT NULL,
				UNIQUE (member_id, session_date, title)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_session_attendances_date ON session_attendances (session_date)`,
			`CREATE INDEX IF NOT EXISTS idx_session_cards_member_status ON session_cards (member_id, status)`,
		},
		setup: func(conn *sql.DB) error {
			// A single connection keeps ":memory:" databases shared and
			// serialises writers within one process.
			conn.SetMaxOpenConns(1)
			return nil
		},
	},
	Postgres: {
		sqlDriver: "pgx",
		dsn:       func(dsn string) string { return dsn },
		schema: []string{
			`CREATE TABLE IF NOT EXISTS members (
				id BIGSERIAL PRIMARY KEY,
				email TEXT UNIQUE NOT NULL,
				first_name TEXT NOT NULL DEFAULT '',
				last_name TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS session_cards (
				id BIGSERIAL PRIMARY KEY,
				member_id BIGINT NOT NULL REFERENCES members(id) ON DELETE CASCADE,
				card_type TEXT NOT NULL,
				total_sessions INTEGER NOT NULL CHECK (total_sessions >= 1),
				sessions_used INTEGER NOT NULL DEFAULT 0 CHECK (sessions_used >= 0),
				status TEXT NOT NULL DEFAULT 'active',
				is_trial BOOLEAN NOT NULL DEFAULT FALSE,
				purchased_date TIMESTAMPTZ NOT NULL,
				expiry_date TIMESTAMPTZ,
				notes TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS session_attendances (
				id BIGSERIAL PRIMARY KEY,
				member_id BIGINT NOT NULL REFERENCES members(id) ON DELETE CASCADE,
				session_card_id BIGINT REFERENCES session_cards(id) ON DELETE SET NULL,
				card_session_used BOOLEAN NOT NULL DEFAULT FALSE,
				session_date TIMESTAMPTZ NOT NULL,
				title TEXT NOT NULL,
				UNIQUE (member_id, session_date, title)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_session_attendances_date ON session_attendances (session_date)`,
			`CREATE INDEX IF NOT EXISTS idx_session_cards_member_status ON session_cards (member_id, status)`,
		},
		setup: func(conn *sql.DB) error {
			conn.SetMaxOpenConns(10)
			conn.SetConnMaxLifetime(time.Hour)
			conn.SetConnMaxIdleTime(30 * time.Minute)
			return nil
		},
	},
}

// ParseDriver validates a driver name from configuration or flags.
func ParseDriver(name string) (Driver, error) {
	d := Driver(strings.ToLower(strings.TrimSpace(name)))
	if d == "postgresql" || d == "pgx" {
		d = Postgres
	}
	if _, ok := dialects[d]; !ok {
		return "", fmt.Errorf("unsupported database driver %q (want sqlite or postgres)", name)
	}
	return d, nil
}

// DB wraps a sql.DB connection.
type DB struct {
	conn    *sqlx.DB
	dialect dialect
}

// NewDB opens a SQLite database at path and runs migrations.
func NewDB(path string) (*DB, error) {
	return Open(context.Background(), SQLite, path)
}

// Open connects to the given backend and runs migrations.
func Open(ctx context.Context, driver Driver, dsn string) (*DB, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(d.sqlDriver, d.dsn(dsn))
	if err != nil {
		return nil, err
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	if err := d.setup(conn); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: sqlx.NewDb(conn, d.sqlDriver), dialect: d}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *DB) migrate(ctx context.Context) error {
	for _, m := range db.dialect.schema {
		if _, err := db.conn.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// rebind rewrites ? placeholders into the driver's bind style.
func (db *DB) rebind(query string) string {
	return db.conn.Rebind(query)
}

// sqliteDSN adds the per-connection pragmas and makes every transaction
// BEGIN IMMEDIATE, so a writer waits on busy_timeout instead of failing
// when another process holds the write lock.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// dbTime normalises timestamps before they reach the driver so that stored
// values compare consistently.
func dbTime(t time.Time) time.Time {
	return t.UTC()
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// isUniqueViolation reports whether err came from a unique constraint.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var coded interface{ SQLState() string }
	if errors.As(err, &coded) {
		return coded.SQLState() == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
