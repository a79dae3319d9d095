package sqlstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver
)

// Driver names registered with database/sql.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const memoryPath = ":memory:"

// Target is a parsed DATABASE_URL.
type Target struct {
	Driver string
	DSN    string
	// Path is the database file for SQLite targets; empty otherwise.
	Path string
}

// ParseDatabaseURL selects a backend from the URL scheme. SQLite URLs follow the
// SQLAlchemy convention: sqlite:///relative/path, sqlite:////absolute/path and
// sqlite:///:memory:.
func ParseDatabaseURL(databaseURL string) (Target, error) {
	switch {
	case strings.HasPrefix(databaseURL, "sqlite://"):
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		path = strings.TrimPrefix(path, "/")
		if path == "" {
			return Target{}, fmt.Errorf("database url %q: missing sqlite path", databaseURL)
		}
		if path == memoryPath {
			return Target{Driver: DriverSQLite, DSN: memoryPath, Path: memoryPath}, nil
		}
		return Target{
			Driver: DriverSQLite,
			DSN:    path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
			Path:   path,
		}, nil
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return Target{Driver: DriverPostgres, DSN: databaseURL}, nil
	default:
		return Target{}, fmt.Errorf("database url %q: unsupported scheme", databaseURL)
	}
}

// Open connects to the backend named by databaseURL, creating the SQLite data
// directory if needed, and applies the schema.
func Open(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	target, err := ParseDatabaseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	if target.Driver == DriverSQLite && target.Path != memoryPath {
		if dir := filepath.Dir(target.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
	}

	db, err := sqlx.ConnectContext(ctx, target.Driver, target.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", target.Driver, err)
	}
	if target.Driver == DriverSQLite {
		// SQLite allows one writer; an in-memory database also lives only as
		// long as its connection.
		db.SetMaxOpenConns(1)
	}

	s := New(db, logger)
	if err := s.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, err
	}
	logger.Info("alert store opened", "driver", target.Driver, "path", target.Path)
	return s, nil
}
